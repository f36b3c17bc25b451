package sagaflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/sagaflow/internal/logging"
	"github.com/aretw0/sagaflow/internal/runtime"
	"github.com/aretw0/sagaflow/pkg/coordinator"
	"github.com/aretw0/sagaflow/pkg/definition"
	"github.com/aretw0/sagaflow/pkg/domain"
	"github.com/aretw0/sagaflow/pkg/ports"
	"go.opentelemetry.io/otel/trace"
)

// Engine is the high-level entry point for the library.
// It wires the orchestrator, the coordinator and the process manager together
// and implements ports.Engine for the HTTP and MCP adapters.
type Engine struct {
	orchestrator *runtime.Orchestrator
	coordinator  *coordinator.Coordinator
	process      *coordinator.ProcessManager
	store        ports.SnapshotStore
	logger       *slog.Logger
}

var _ ports.Engine = (*Engine)(nil)

type settings struct {
	runtimeOpts []runtime.Option
	store       ports.SnapshotStore
	logger      *slog.Logger
}

// Option defines a functional option for configuring the Engine.
type Option func(*settings)

// WithCommandBus sets where step and compensation commands are sent.
func WithCommandBus(bus ports.CommandBus) Option {
	return func(s *settings) {
		s.runtimeOpts = append(s.runtimeOpts, runtime.WithCommandBus(bus))
	}
}

// WithEventSink adds sinks receiving every saga event.
func WithEventSink(sinks ...ports.EventSink) Option {
	return func(s *settings) {
		s.runtimeOpts = append(s.runtimeOpts, runtime.WithEventSink(sinks...))
	}
}

// WithSnapshotStore mirrors sagas into store. Sagas this process does not hold,
// such as those driven by another replica, are then readable through Saga.
func WithSnapshotStore(store ports.SnapshotStore) Option {
	return func(s *settings) {
		s.store = store
		s.runtimeOpts = append(s.runtimeOpts, runtime.WithSnapshotStore(store))
	}
}

// WithLocker serializes transitions across replicas.
func WithLocker(locker ports.DistributedLocker, ttl time.Duration) Option {
	return func(s *settings) {
		s.runtimeOpts = append(s.runtimeOpts, runtime.WithLocker(locker, ttl))
	}
}

// WithLifecycleHooks registers observability hooks. It may be given more than once.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(s *settings) {
		s.runtimeOpts = append(s.runtimeOpts, runtime.WithLifecycleHooks(hooks))
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		s.logger = logger
	}
}

// WithTracer overrides the tracer taken from the global provider.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *settings) {
		s.runtimeOpts = append(s.runtimeOpts, runtime.WithTracer(tracer))
	}
}

// WithAsyncDispatch sends commands from background goroutines. Use Wait to settle them.
func WithAsyncDispatch() Option {
	return func(s *settings) {
		s.runtimeOpts = append(s.runtimeOpts, runtime.WithAsyncDispatch())
	}
}

// WithClock overrides the clock stamped on transitions and events.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		s.runtimeOpts = append(s.runtimeOpts, runtime.WithClock(now))
	}
}

// WithIDGenerator overrides how saga, transition and event ids are generated.
func WithIDGenerator(newID func() string) Option {
	return func(s *settings) {
		s.runtimeOpts = append(s.runtimeOpts, runtime.WithIDGenerator(newID))
	}
}

// New creates an Engine with no registered saga types.
func New(opts ...Option) *Engine {
	s := &settings{}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.NewNop()
	}

	orch := runtime.New(append([]runtime.Option{runtime.WithLogger(s.logger)}, s.runtimeOpts...)...)
	coord := coordinator.New(orch, coordinator.WithLogger(s.logger))
	return &Engine{
		orchestrator: orch,
		coordinator:  coord,
		process:      coordinator.NewProcessManager(coord, coordinator.WithLogger(s.logger)),
		store:        s.store,
		logger:       s.logger,
	}
}

// Register adds saga definitions.
func (e *Engine) Register(defs ...ports.SagaDefinition) error {
	for _, def := range defs {
		if err := e.coordinator.Register(def); err != nil {
			return err
		}
	}
	return nil
}

// RegisterPolicy adds a process policy starting sagas from domain events.
func (e *Engine) RegisterPolicy(policies ...ports.ProcessPolicy) {
	for _, p := range policies {
		e.process.RegisterPolicy(p)
	}
}

// RegisterTemplate registers templates together with their start_on policies.
func (e *Engine) RegisterTemplate(templates ...*definition.Template) error {
	for _, t := range templates {
		if err := e.coordinator.Register(t); err != nil {
			return err
		}
		e.RegisterPolicy(t.Policies()...)
		e.logger.Debug("saga template registered", "saga_type", t.Name, "steps", len(t.Steps))
	}
	return nil
}

// LoadTemplates reads a template file or directory and registers everything in it.
func (e *Engine) LoadTemplates(path string) error {
	templates, err := definition.Load(path)
	if err != nil {
		return err
	}
	return e.RegisterTemplate(templates...)
}

// StartSaga creates a saga from a registered definition and starts it.
// With a synchronous bus the returned saga may already be terminal.
func (e *Engine) StartSaga(ctx context.Context, req ports.StartRequest) (*domain.Saga, error) {
	id, err := e.coordinator.StartSaga(ctx, req)
	if err != nil {
		return nil, err
	}
	return e.orchestrator.Saga(id)
}

// Run starts an already built saga, bypassing the definition registry.
// Its events are still delivered to sinks and hooks but are not routed by correlation.
func (e *Engine) Run(ctx context.Context, saga *domain.Saga) (*domain.Saga, error) {
	id, err := e.orchestrator.StartSaga(ctx, saga)
	if err != nil {
		return nil, err
	}
	return e.orchestrator.Saga(id)
}

// HandleEvent starts the sagas process policies ask for, then routes the event
// to the live sagas sharing its correlation id.
func (e *Engine) HandleEvent(ctx context.Context, event domain.DomainEvent) error {
	_, err := e.process.HandleEvent(ctx, event)
	return err
}

// Transition feeds an input directly to a saga, typically the outcome of a deferred command.
func (e *Engine) Transition(ctx context.Context, sagaID string, in domain.Input) (domain.SagaState, error) {
	return e.orchestrator.Transition(ctx, sagaID, in)
}

// Saga returns a copy of a saga, falling back to the snapshot store for sagas
// no longer held in memory.
func (e *Engine) Saga(ctx context.Context, id string) (*domain.Saga, error) {
	saga, err := e.orchestrator.Saga(id)
	if err == nil || e.store == nil || !errors.Is(err, domain.ErrSagaNotFound) {
		return saga, err
	}
	saga, err = e.store.Load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", id, err)
	}
	return saga, nil
}

// History returns the transitions recorded for a live saga.
func (e *Engine) History(_ context.Context, id string) ([]domain.SagaTransition, error) {
	return e.orchestrator.History(id)
}

// List returns copies of every live saga ordered by ID.
func (e *Engine) List(_ context.Context) ([]*domain.Saga, error) {
	return e.orchestrator.List(), nil
}

// SagaTypes lists the registered definitions.
func (e *Engine) SagaTypes() []string {
	return e.coordinator.SagaTypes()
}

// Policies lists the registered process policies.
func (e *Engine) Policies() []string {
	return e.process.Policies()
}

// AddLifecycleHooks registers hooks after construction, e.g. metrics.
func (e *Engine) AddLifecycleHooks(hooks domain.LifecycleHooks) {
	e.orchestrator.AddLifecycleHooks(hooks)
}

// Wait blocks until commands dispatched in the background have settled.
func (e *Engine) Wait() {
	e.orchestrator.Wait()
}
