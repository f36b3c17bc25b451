package runtime

import (
	"log/slog"
	"time"

	"github.com/aretw0/sagaflow/pkg/domain"
	"github.com/aretw0/sagaflow/pkg/ports"
	"go.opentelemetry.io/otel/trace"
)

// Option configures the Orchestrator.
type Option func(*Orchestrator)

// WithCommandBus sets where commands are sent.
// Without a bus, commands only appear in outputs and results must be fed back by the caller.
func WithCommandBus(bus ports.CommandBus) Option {
	return func(o *Orchestrator) {
		o.bus = bus
	}
}

// WithEventSink adds sinks receiving every stamped event.
func WithEventSink(sinks ...ports.EventSink) Option {
	return func(o *Orchestrator) {
		o.sinks = append(o.sinks, sinks...)
	}
}

// WithSnapshotStore mirrors every saga into a read-model store.
func WithSnapshotStore(store ports.SnapshotStore) Option {
	return func(o *Orchestrator) {
		o.store = store
	}
}

// WithLocker enables distributed locking of each transition with the given lease TTL.
func WithLocker(locker ports.DistributedLocker, ttl time.Duration) Option {
	return func(o *Orchestrator) {
		o.locker = locker
		if ttl > 0 {
			o.leaseTTL = ttl
		}
	}
}

// WithLogger configures a logger for the Orchestrator.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithTracer overrides the tracer taken from the global provider.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *Orchestrator) {
		o.tracer = tracer
	}
}

// WithLifecycleHooks registers observability callbacks. It may be given more than once.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(o *Orchestrator) {
		o.hooks = append(o.hooks, hooks)
	}
}

// WithClock overrides the clock used for transitions and envelopes.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// WithIDGenerator overrides how saga, transition and envelope ids are generated.
func WithIDGenerator(newID func() string) Option {
	return func(o *Orchestrator) {
		o.newID = newID
	}
}

// WithAsyncDispatch sends commands from background goroutines instead of the caller's.
// Use Wait to block until in-flight commands settle.
func WithAsyncDispatch() Option {
	return func(o *Orchestrator) {
		o.async = true
	}
}
