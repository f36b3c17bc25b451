package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/aretw0/sagaflow/internal/logging"
	"github.com/aretw0/sagaflow/pkg/domain"
	"github.com/aretw0/sagaflow/pkg/fsm"
	"github.com/aretw0/sagaflow/pkg/ports"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/aretw0/sagaflow/internal/runtime"

// instance pairs a saga with the machine driving it.
// mu is the saga's writer lock; readers take it shared.
type instance struct {
	mu      sync.RWMutex
	saga    *domain.Saga
	machine *domain.Machine
	seq     uint64
}

// Orchestrator owns live sagas and drives them through their transitions.
type Orchestrator struct {
	mu        sync.RWMutex // Guards the instance map only
	instances map[string]*instance

	bus      ports.CommandBus
	sinks    []ports.EventSink
	store    ports.SnapshotStore
	locker   ports.DistributedLocker
	leaseTTL time.Duration
	hooks    []domain.LifecycleHooks

	logger *slog.Logger
	tracer trace.Tracer
	now    func() time.Time
	newID  func() string

	async    bool
	inflight sync.WaitGroup
}

// New creates an Orchestrator.
func New(opts ...Option) *Orchestrator {
	o := &Orchestrator{
		instances: make(map[string]*instance),
		leaseTTL:  30 * time.Second,
		logger:    logging.NewNop(),
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer(tracerName)
	}
	return o
}

// AddLifecycleHooks registers hooks after construction.
func (o *Orchestrator) AddLifecycleHooks(hooks domain.LifecycleHooks) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.hooks = append(o.hooks, hooks)
}

// StartSaga registers a copy of saga in Pending state and applies Start.
// An empty ID is replaced with a generated one. Returns the saga ID.
func (o *Orchestrator) StartSaga(ctx context.Context, saga *domain.Saga) (string, error) {
	if err := domain.Validate(saga); err != nil {
		return "", err
	}

	owned := saga.Clone()
	if owned.ID == "" {
		owned.ID = o.newID()
	}
	owned.State = domain.Pending()

	inst := &instance{
		saga:    owned,
		machine: domain.NewMachine(owned, fsm.WithClock(o.now), fsm.WithIDGenerator(o.newID)),
	}

	o.mu.Lock()
	if _, exists := o.instances[owned.ID]; exists {
		o.mu.Unlock()
		return "", fmt.Errorf("%w: %s", domain.ErrSagaExists, owned.ID)
	}
	o.instances[owned.ID] = inst
	o.mu.Unlock()

	o.logger.InfoContext(ctx, "saga registered",
		"saga_id", owned.ID,
		"saga_name", owned.Name,
		"steps", len(owned.Steps),
	)
	o.saveSnapshot(ctx, owned.Clone())

	if _, err := o.Transition(ctx, owned.ID, domain.StartInput()); err != nil {
		return owned.ID, err
	}
	return owned.ID, nil
}

// Transition applies one input to a saga and returns the resulting state.
//
// Commands produced by the transition are dispatched after the saga lock is released.
// Without async dispatch that happens before Transition returns, so with a synchronous
// bus a single call can drive the saga to a terminal state; the returned state is the
// one produced by this input alone.
//
// A completion that was already applied is ignored: the current state is returned
// with a nil error.
func (o *Orchestrator) Transition(ctx context.Context, sagaID string, in domain.Input) (domain.SagaState, error) {
	state, cmds, err := o.apply(ctx, sagaID, in)
	if err != nil {
		return state, err
	}
	o.dispatch(ctx, sagaID, cmds)
	return state, nil
}

// apply computes and records one transition under the saga lock.
func (o *Orchestrator) apply(ctx context.Context, sagaID string, in domain.Input) (domain.SagaState, []domain.Command, error) {
	ctx, span := o.tracer.Start(ctx, "saga.transition", trace.WithAttributes(
		attribute.String("saga.id", sagaID),
		attribute.String("saga.input", string(in.Kind)),
		attribute.String("saga.step", in.StepID),
	))
	defer span.End()

	fail := func(err error) error {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if err := in.Validate(); err != nil {
		return domain.SagaState{}, nil, fail(fmt.Errorf("%w: %v", domain.ErrInvalidTransition, err))
	}

	inst, err := o.lookup(sagaID)
	if err != nil {
		return domain.SagaState{}, nil, fail(err)
	}

	var (
		rec      domain.SagaTransition
		snapshot *domain.Saga
		current  domain.SagaState
	)
	err = o.withLease(ctx, inst, func(ctx context.Context) error {
		current = inst.machine.CurrentState()
		target, err := domain.NextState(inst.saga, current, in)
		if err != nil {
			return err
		}
		rec, err = inst.machine.TransitionTo(target, in)
		if err != nil {
			return err
		}
		inst.saga.State = target.Clone()
		snapshot = inst.saga.Clone()

		o.publish(ctx, inst, rec)
		o.saveSnapshot(ctx, snapshot)
		return nil
	})

	if errors.Is(err, domain.ErrDuplicateInput) {
		o.logger.WarnContext(ctx, "duplicate input ignored",
			"saga_id", sagaID,
			"input", in.String(),
			"err", err,
		)
		span.AddEvent("duplicate input ignored")
		return current, nil, nil
	}
	if err != nil {
		o.logger.DebugContext(ctx, "transition rejected", "saga_id", sagaID, "input", in.String(), "err", err)
		return current, nil, fail(err)
	}

	span.SetAttributes(
		attribute.String("saga.from", rec.From.Name()),
		attribute.String("saga.to", rec.To.Name()),
	)
	o.logger.InfoContext(ctx, "saga transition",
		"saga_id", sagaID,
		"from", rec.From.Name(),
		"to", rec.To.Name(),
		"input", in.String(),
	)

	for _, h := range o.hookSet() {
		if h.OnTransition != nil {
			h.OnTransition(ctx, snapshot, rec)
		}
	}
	if rec.To.IsTerminal() {
		o.logger.InfoContext(ctx, "saga finished", "saga_id", sagaID, "state", rec.To.Name())
		for _, h := range o.hookSet() {
			if h.OnTerminal != nil {
				h.OnTerminal(ctx, snapshot.Clone())
			}
		}
	}

	return rec.To.Clone(), rec.Output.Commands, nil
}

// publish stamps the transition's events and hands them to every sink.
// Called with the saga lock held so sinks observe per-saga order.
func (o *Orchestrator) publish(ctx context.Context, inst *instance, rec domain.SagaTransition) {
	for _, ev := range rec.Output.Events {
		inst.seq++
		env := domain.Envelope{
			ID:            o.newID(),
			SagaID:        inst.saga.ID,
			SagaName:      inst.saga.Name,
			CorrelationID: inst.saga.Correlation(),
			Sequence:      inst.seq,
			Timestamp:     rec.Timestamp,
			Event:         ev,
		}
		for _, sink := range o.sinks {
			if err := sink.Publish(ctx, env); err != nil {
				o.logger.WarnContext(ctx, "failed to publish saga event",
					"saga_id", env.SagaID,
					"event", string(ev.Type),
					"err", err,
				)
			}
		}
		for _, h := range o.hookSet() {
			if h.OnEvent != nil {
				h.OnEvent(ctx, env)
			}
		}
	}
}

func (o *Orchestrator) saveSnapshot(ctx context.Context, saga *domain.Saga) {
	if o.store == nil {
		return
	}
	if err := o.store.Save(ctx, saga); err != nil {
		o.logger.WarnContext(ctx, "failed to save saga snapshot", "saga_id", saga.ID, "err", err)
	}
}

func (o *Orchestrator) lookup(sagaID string) (*instance, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	inst, ok := o.instances[sagaID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrSagaNotFound, sagaID)
	}
	return inst, nil
}

func (o *Orchestrator) hookSet() []domain.LifecycleHooks {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.hooks
}

// State returns the current state of a saga.
func (o *Orchestrator) State(sagaID string) (domain.SagaState, error) {
	inst, err := o.lookup(sagaID)
	if err != nil {
		return domain.SagaState{}, err
	}
	inst.mu.RLock()
	defer inst.mu.RUnlock()
	return inst.machine.CurrentState().Clone(), nil
}

// Saga returns a copy of a saga.
func (o *Orchestrator) Saga(sagaID string) (*domain.Saga, error) {
	inst, err := o.lookup(sagaID)
	if err != nil {
		return nil, err
	}
	inst.mu.RLock()
	defer inst.mu.RUnlock()
	return inst.saga.Clone(), nil
}

// History returns the transitions recorded for a saga, oldest first.
func (o *Orchestrator) History(sagaID string) ([]domain.SagaTransition, error) {
	inst, err := o.lookup(sagaID)
	if err != nil {
		return nil, err
	}
	inst.mu.RLock()
	defer inst.mu.RUnlock()
	return inst.machine.History(), nil
}

// List returns copies of all sagas ordered by ID.
func (o *Orchestrator) List() []*domain.Saga {
	o.mu.RLock()
	insts := make([]*instance, 0, len(o.instances))
	for _, inst := range o.instances {
		insts = append(insts, inst)
	}
	o.mu.RUnlock()

	out := make([]*domain.Saga, 0, len(insts))
	for _, inst := range insts {
		inst.mu.RLock()
		out = append(out, inst.saga.Clone())
		inst.mu.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Wait blocks until commands dispatched in the background have settled.
func (o *Orchestrator) Wait() {
	o.inflight.Wait()
}
