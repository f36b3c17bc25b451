package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"

	"github.com/aretw0/sagaflow/internal/logging"
	"github.com/aretw0/sagaflow/pkg/domain"
	"github.com/aretw0/sagaflow/pkg/ports"
	"github.com/google/uuid"
)

// ErrDefinitionExists is returned when a saga type is registered twice.
var ErrDefinitionExists = errors.New("saga definition already registered")

// Runner is the engine the coordinator drives. *runtime.Orchestrator satisfies it.
type Runner interface {
	StartSaga(ctx context.Context, saga *domain.Saga) (string, error)
	Transition(ctx context.Context, sagaID string, in domain.Input) (domain.SagaState, error)
	Saga(sagaID string) (*domain.Saga, error)
	History(sagaID string) ([]domain.SagaTransition, error)
	AddLifecycleHooks(hooks domain.LifecycleHooks)
}

// Option configures a Coordinator or ProcessManager.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger configures a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func newOptions(opts []Option) options {
	o := options{logger: logging.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Coordinator registers saga definitions and routes domain events to live sagas.
type Coordinator struct {
	runner Runner
	logger *slog.Logger

	mu            sync.RWMutex
	definitions   map[string]ports.SagaDefinition
	byCorrelation map[string][]string // correlation id -> live saga ids
}

// New creates a Coordinator on top of runner and subscribes to terminal transitions.
func New(runner Runner, opts ...Option) *Coordinator {
	o := newOptions(opts)
	c := &Coordinator{
		runner:        runner,
		logger:        o.logger,
		definitions:   make(map[string]ports.SagaDefinition),
		byCorrelation: make(map[string][]string),
	}
	runner.AddLifecycleHooks(domain.LifecycleHooks{OnTerminal: c.onTerminal})
	return c
}

// Register adds a saga definition.
func (c *Coordinator) Register(def ports.SagaDefinition) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.definitions[def.SagaType()]; exists {
		return fmt.Errorf("%w: %s", ErrDefinitionExists, def.SagaType())
	}
	c.definitions[def.SagaType()] = def
	return nil
}

// Definition looks up a registered definition.
func (c *Coordinator) Definition(sagaType string) (ports.SagaDefinition, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	def, ok := c.definitions[sagaType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrDefinitionNotFound, sagaType)
	}
	return def, nil
}

// SagaTypes returns the registered saga types, sorted.
func (c *Coordinator) SagaTypes() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	types := make([]string, 0, len(c.definitions))
	for t := range c.definitions {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// StartSaga creates a saga from its definition and starts it. Returns the saga ID.
func (c *Coordinator) StartSaga(ctx context.Context, req ports.StartRequest) (string, error) {
	def, err := c.Definition(req.SagaType)
	if err != nil {
		return "", err
	}

	saga, err := def.CreateSaga(ctx, req.Params)
	if err != nil {
		return "", fmt.Errorf("create %s saga: %w", req.SagaType, err)
	}
	if saga.ID == "" {
		saga.ID = uuid.NewString()
	}
	if saga.Name == "" {
		saga.Name = def.SagaType()
	}
	if req.CorrelationID != "" {
		saga.CorrelationID = req.CorrelationID
	}
	correlation := saga.Correlation()

	// Track before starting: a synchronous bus may finish the saga inside StartSaga.
	c.track(correlation, saga.ID)
	id, err := c.runner.StartSaga(ctx, saga)
	if err != nil {
		if id == "" {
			c.untrack(correlation, saga.ID)
		}
		return id, err
	}

	c.logger.InfoContext(ctx, "saga started",
		"saga_type", req.SagaType,
		"saga_id", id,
		"correlation_id", correlation,
	)
	return id, nil
}

// HandleEvent routes event to every live saga sharing its correlation id.
// Events without a correlation id, or matching no saga, are ignored.
func (c *Coordinator) HandleEvent(ctx context.Context, event domain.DomainEvent) error {
	if event.CorrelationID == "" {
		c.logger.DebugContext(ctx, "event without correlation id ignored", "event_type", event.Type)
		return nil
	}

	var errs []error
	for _, id := range c.route(event.CorrelationID) {
		saga, err := c.runner.Saga(id)
		if err != nil {
			if errors.Is(err, domain.ErrSagaNotFound) {
				continue
			}
			errs = append(errs, err)
			continue
		}
		if saga.State.IsTerminal() {
			continue
		}

		def, err := c.Definition(saga.Name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		in, ok := def.EventToInput(saga, event)
		if !ok {
			continue
		}

		c.logger.DebugContext(ctx, "routing event",
			"event_type", event.Type,
			"saga_id", id,
			"input", in.String(),
		)
		if _, err := c.runner.Transition(ctx, id, in); err != nil {
			errs = append(errs, fmt.Errorf("saga %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// route returns the sagas tracked under correlation, plus the saga whose ID equals it.
func (c *Coordinator) route(correlation string) []string {
	c.mu.RLock()
	ids := slices.Clone(c.byCorrelation[correlation])
	c.mu.RUnlock()

	if !slices.Contains(ids, correlation) {
		if _, err := c.runner.Saga(correlation); err == nil {
			ids = append(ids, correlation)
		}
	}
	return ids
}

func (c *Coordinator) track(correlation, sagaID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byCorrelation[correlation] = append(c.byCorrelation[correlation], sagaID)
}

func (c *Coordinator) untrack(correlation, sagaID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := slices.DeleteFunc(c.byCorrelation[correlation], func(id string) bool { return id == sagaID })
	if len(ids) == 0 {
		delete(c.byCorrelation, correlation)
		return
	}
	c.byCorrelation[correlation] = ids
}

// onTerminal notifies the saga's definition once it reaches a terminal state.
func (c *Coordinator) onTerminal(ctx context.Context, saga *domain.Saga) {
	c.untrack(saga.Correlation(), saga.ID)

	def, err := c.Definition(saga.Name)
	if err != nil {
		return
	}

	switch saga.State.Status {
	case domain.StatusCompleted:
		err = def.OnCompleted(ctx, saga)
	case domain.StatusFailed:
		err = def.OnFailed(ctx, saga, saga.State.Error)
	case domain.StatusCompensated:
		err = def.OnFailed(ctx, saga, c.failureReason(saga.ID))
	}
	if err != nil {
		c.logger.ErrorContext(ctx, "saga completion callback failed",
			"saga_id", saga.ID,
			"state", saga.State.Name(),
			"err", err,
		)
	}
}

// failureReason finds the step failure that led to compensation.
func (c *Coordinator) failureReason(sagaID string) string {
	history, err := c.runner.History(sagaID)
	if err != nil {
		return "compensated"
	}
	for i := len(history) - 1; i >= 0; i-- {
		in := history[i].Input
		if in != nil && in.Kind == domain.InputStepFailed {
			return fmt.Sprintf("step %s failed: %s", in.StepID, in.Error)
		}
	}
	return "compensated"
}
