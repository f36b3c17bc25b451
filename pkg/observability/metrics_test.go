package observability_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aretw0/sagaflow/internal/runtime"
	"github.com/aretw0/sagaflow/pkg/adapters/memory"
	"github.com/aretw0/sagaflow/pkg/domain"
	"github.com/aretw0/sagaflow/pkg/observability"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sample returns the value of the series of family name whose labels include want.
func sample(t *testing.T, reg *prometheus.Registry, name string, want map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			if !hasLabels(metric, want) {
				continue
			}
			switch family.GetType() {
			case dto.MetricType_COUNTER:
				return metric.GetCounter().GetValue()
			case dto.MetricType_GAUGE:
				return metric.GetGauge().GetValue()
			case dto.MetricType_HISTOGRAM:
				return float64(metric.GetHistogram().GetSampleCount())
			}
		}
	}
	t.Fatalf("no series %s%v", name, want)
	return 0
}

func hasLabels(metric *dto.Metric, want map[string]string) bool {
	got := make(map[string]string, len(metric.GetLabel()))
	for _, lp := range metric.GetLabel() {
		got[lp.GetName()] = lp.GetValue()
	}
	for k, v := range want {
		if got[k] != v {
			return false
		}
	}
	return true
}

func TestMetrics_Hooks(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := observability.NewWithRegistry(reg)
	hooks := m.Hooks()
	ctx := context.Background()
	saga := &domain.Saga{ID: "s-1", Name: "order"}
	charge := domain.CommandMessage{Domain: "payments", CommandType: "Charge", Kind: domain.CommandExecuteStep}

	hooks.OnTransition(ctx, saga, domain.SagaTransition{From: domain.Pending(), To: domain.Running("a", nil)})
	hooks.OnEvent(ctx, domain.Envelope{SagaName: "order", Event: domain.Event{Type: domain.EventSagaStarted}})
	hooks.OnCommand(ctx, charge, 20*time.Millisecond, nil)
	hooks.OnCommand(ctx, charge, time.Millisecond, errors.New("declined"))
	hooks.OnCommand(ctx, charge, time.Millisecond, domain.ErrDeferred)
	hooks.OnCommand(ctx, charge, time.Millisecond, domain.ErrDeferred)

	assert.Equal(t, 1.0, sample(t, reg, "sagaflow_active_sagas", map[string]string{"saga": "order"}))

	hooks.OnTransition(ctx, saga, domain.SagaTransition{From: domain.Running("a", nil), To: domain.Completed()})
	saga.State = domain.Completed()
	hooks.OnTerminal(ctx, saga)

	assert.Equal(t, 0.0, sample(t, reg, "sagaflow_active_sagas", map[string]string{"saga": "order"}))
	assert.Equal(t, 1.0, sample(t, reg, "sagaflow_transitions_total", map[string]string{"from": "pending", "to": "running"}))
	assert.Equal(t, 1.0, sample(t, reg, "sagaflow_transitions_total", map[string]string{"from": "running", "to": "completed"}))
	assert.Equal(t, 1.0, sample(t, reg, "sagaflow_sagas_terminal_total", map[string]string{"status": "completed"}))
	assert.Equal(t, 1.0, sample(t, reg, "sagaflow_events_total", map[string]string{"type": "saga_started"}))
	assert.Equal(t, 1.0, sample(t, reg, "sagaflow_command_duration_seconds", map[string]string{"outcome": observability.OutcomeOK}))
	assert.Equal(t, 1.0, sample(t, reg, "sagaflow_command_duration_seconds", map[string]string{"outcome": observability.OutcomeError}))
	assert.Equal(t, 2.0, sample(t, reg, "sagaflow_command_duration_seconds", map[string]string{"outcome": observability.OutcomeDeferred}))
}

func TestMetrics_WithOrchestrator(t *testing.T) {
	m := observability.New()
	bus := memory.NewBus()
	bus.FailStep("charge", errors.New("card declined"))

	orch := runtime.New(
		runtime.WithCommandBus(bus),
		runtime.WithLifecycleHooks(m.Hooks()),
	)

	saga, err := domain.NewBuilder("order").
		AddStep(domain.Step{ID: "reserve", Domain: "inventory", CommandType: "Reserve", RetryPolicy: domain.NoRetry()}).
		AddStep(domain.Step{ID: "charge", Domain: "payments", CommandType: "Charge", DependsOn: []string{"reserve"}, RetryPolicy: domain.NoRetry()}).
		Compensation("reserve", "inventory", "Release", nil).
		Build()
	require.NoError(t, err)

	_, err = orch.StartSaga(context.Background(), saga)
	require.NoError(t, err)
	orch.Wait()

	reg := m.Registry()
	assert.Equal(t, 1.0, sample(t, reg, "sagaflow_sagas_terminal_total", map[string]string{"status": "compensated"}))
	assert.Equal(t, 0.0, sample(t, reg, "sagaflow_active_sagas", map[string]string{"saga": "order"}))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `sagaflow_command_duration_seconds_count{command_type="Charge",domain="payments",kind="execute_step",outcome="error"} 1`)
	assert.Contains(t, body, "go_goroutines")
}
