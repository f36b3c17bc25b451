package observability

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/aretw0/sagaflow/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Command outcomes used as the "outcome" label.
const (
	OutcomeOK       = "ok"
	OutcomeDeferred = "deferred"
	OutcomeError    = "error"
)

// Metrics wraps the Prometheus collectors for saga orchestration.
type Metrics struct {
	registry        *prometheus.Registry
	transitions     *prometheus.CounterVec
	events          *prometheus.CounterVec
	terminal        *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec
	activeSagas     *prometheus.GaugeVec
}

// New creates a registry with the Go and process collectors plus the saga metrics.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWithRegistry(registry)
}

// NewWithRegistry registers the saga metrics on registry.
func NewWithRegistry(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		registry: registry,
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sagaflow_transitions_total",
			Help: "Total number of saga state transitions.",
		}, []string{"saga", "from", "to"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sagaflow_events_total",
			Help: "Total number of published saga events.",
		}, []string{"saga", "type"}),
		terminal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sagaflow_sagas_terminal_total",
			Help: "Total number of sagas that reached a terminal state.",
		}, []string{"saga", "status"}),
		commandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sagaflow_command_duration_seconds",
			Help:    "Duration of command dispatches in seconds, retries included.",
			Buckets: prometheus.DefBuckets,
		}, []string{"domain", "command_type", "kind", "outcome"}),
		activeSagas: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sagaflow_active_sagas",
			Help: "Number of started sagas that have not finished.",
		}, []string{"saga"}),
	}
	registry.MustRegister(m.transitions, m.events, m.terminal, m.commandDuration, m.activeSagas)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Hooks returns lifecycle hooks that feed the metrics.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnTransition: m.observeTransition,
		OnEvent:      m.observeEvent,
		OnCommand:    m.observeCommand,
		OnTerminal:   m.observeTerminal,
	}
}

func (m *Metrics) observeTransition(_ context.Context, saga *domain.Saga, t domain.SagaTransition) {
	m.transitions.WithLabelValues(saga.Name, string(t.From.Status), string(t.To.Status)).Inc()
	if t.From.Status == domain.StatusPending {
		m.activeSagas.WithLabelValues(saga.Name).Inc()
	}
}

func (m *Metrics) observeEvent(_ context.Context, env domain.Envelope) {
	m.events.WithLabelValues(env.SagaName, string(env.Event.Type)).Inc()
}

func (m *Metrics) observeCommand(_ context.Context, msg domain.CommandMessage, elapsed time.Duration, err error) {
	outcome := OutcomeOK
	switch {
	case errors.Is(err, domain.ErrDeferred):
		outcome = OutcomeDeferred
	case err != nil:
		outcome = OutcomeError
	}
	m.commandDuration.
		WithLabelValues(msg.Domain, msg.CommandType, string(msg.Kind), outcome).
		Observe(elapsed.Seconds())
}

func (m *Metrics) observeTerminal(_ context.Context, saga *domain.Saga) {
	m.terminal.WithLabelValues(saga.Name, string(saga.State.Status)).Inc()
	m.activeSagas.WithLabelValues(saga.Name).Dec()
}
