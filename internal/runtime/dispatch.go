package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"maps"
	"time"

	"github.com/aretw0/sagaflow/pkg/domain"
	"github.com/aretw0/sagaflow/pkg/resilience"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// dispatch sends each command and feeds its outcome back as an input.
// Commands run detached from the caller's cancellation.
func (o *Orchestrator) dispatch(ctx context.Context, sagaID string, cmds []domain.Command) {
	if o.bus == nil || len(cmds) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)
	for _, cmd := range cmds {
		if !o.async {
			o.execute(ctx, sagaID, cmd)
			continue
		}
		o.inflight.Add(1)
		go func() {
			defer o.inflight.Done()
			o.execute(ctx, sagaID, cmd)
		}()
	}
}

// execute sends one command with its retry and timeout policy, then applies the outcome.
func (o *Orchestrator) execute(ctx context.Context, sagaID string, cmd domain.Command) {
	msg, policy, timeout, err := o.resolve(sagaID, cmd)
	if err != nil {
		o.logger.ErrorContext(ctx, "cannot resolve command", "saga_id", sagaID, "step_id", cmd.StepID, "err", err)
		return
	}

	ctx, span := o.tracer.Start(ctx, "saga.command", trace.WithAttributes(
		attribute.String("saga.id", sagaID),
		attribute.String("command.kind", string(msg.Kind)),
		attribute.String("command.step", msg.StepID),
		attribute.String("command.domain", msg.Domain),
		attribute.String("command.type", msg.CommandType),
	))
	defer span.End()

	start := time.Now()
	result, err := resilience.WithRetry(ctx, policy,
		func(ctx context.Context) (json.RawMessage, error) {
			return resilience.WithTimeout(ctx, timeout, func(ctx context.Context) (json.RawMessage, error) {
				return o.bus.Send(ctx, msg)
			})
		},
		resilience.WithNotify(func(err error, attempt int, wait time.Duration) {
			o.logger.WarnContext(ctx, "command failed, retrying",
				"saga_id", sagaID,
				"step_id", msg.StepID,
				"attempt", attempt,
				"wait", wait,
				"err", err,
			)
		}),
	)
	elapsed := time.Since(start)
	attempts := resilience.Attempts(err)
	span.SetAttributes(attribute.Int("command.attempts", attempts))

	for _, h := range o.hookSet() {
		if h.OnCommand != nil {
			h.OnCommand(ctx, msg, elapsed, err)
		}
	}

	if errors.Is(err, domain.ErrDeferred) {
		span.AddEvent("deferred")
		o.logger.DebugContext(ctx, "command deferred", "saga_id", sagaID, "step_id", msg.StepID)
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.logger.WarnContext(ctx, "command failed",
			"saga_id", sagaID,
			"step_id", msg.StepID,
			"kind", string(msg.Kind),
			"attempts", attempts,
			"err", err,
		)
	}

	// The saga records the last attempt's error verbatim.
	next := outcome(msg, result, resilience.LastError(err))
	if _, err := o.Transition(ctx, sagaID, next); err != nil {
		o.logger.ErrorContext(ctx, "failed to apply command outcome",
			"saga_id", sagaID,
			"input", next.String(),
			"err", err,
		)
	}
}

// outcome translates a bus result into the input that reports it.
func outcome(msg domain.CommandMessage, result json.RawMessage, err error) domain.Input {
	switch msg.Kind {
	case domain.CommandExecuteCompensation:
		if err != nil {
			return domain.CompensationFailedInput(msg.StepID, err.Error())
		}
		return domain.CompensationCompletedInput(msg.StepID)
	default:
		if err != nil {
			return domain.StepFailedInput(msg.StepID, err.Error())
		}
		return domain.StepCompletedInput(msg.StepID, result)
	}
}

// resolve looks up the step or compensation a command refers to.
func (o *Orchestrator) resolve(sagaID string, cmd domain.Command) (domain.CommandMessage, domain.RetryPolicy, time.Duration, error) {
	inst, err := o.lookup(sagaID)
	if err != nil {
		return domain.CommandMessage{}, domain.RetryPolicy{}, 0, err
	}
	inst.mu.RLock()
	defer inst.mu.RUnlock()
	saga := inst.saga

	msg := domain.CommandMessage{
		SagaID:        saga.ID,
		SagaName:      saga.Name,
		CorrelationID: saga.Correlation(),
		Kind:          cmd.Kind,
		StepID:        cmd.StepID,
		Context:       maps.Clone(saga.Context),
	}
	step, hasStep := saga.Step(cmd.StepID)

	switch cmd.Kind {
	case domain.CommandExecuteStep:
		if !hasStep {
			return msg, domain.RetryPolicy{}, 0, domain.ErrStepNotFound
		}
		msg.Domain = step.Domain
		msg.CommandType = step.CommandType
		return msg, step.RetryPolicy, step.Timeout(), nil

	case domain.CommandExecuteCompensation:
		action, ok := saga.Compensations[cmd.StepID]
		if !ok {
			return msg, domain.RetryPolicy{}, 0, domain.ErrStepNotFound
		}
		msg.Domain = action.Domain
		msg.CommandType = action.CommandType
		msg.Parameters = maps.Clone(action.Parameters)
		if hasStep {
			return msg, step.RetryPolicy, step.Timeout(), nil
		}
		return msg, domain.DefaultRetryPolicy(), 0, nil
	}
	return msg, domain.RetryPolicy{}, 0, errors.New("unknown command kind " + string(cmd.Kind))
}
