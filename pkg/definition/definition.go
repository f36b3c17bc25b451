package definition

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aretw0/sagaflow/pkg/domain"
	"github.com/aretw0/sagaflow/pkg/ports"
)

var _ ports.SagaDefinition = (*Template)(nil)

// Callbacks receive terminal outcomes of sagas created from a template.
type Callbacks struct {
	Completed func(ctx context.Context, saga *domain.Saga) error
	Failed    func(ctx context.Context, saga *domain.Saga, reason string) error
}

// WithCallbacks sets the terminal callbacks and returns t.
func (t *Template) WithCallbacks(cb Callbacks) *Template {
	t.callbacks = cb
	return t
}

// SagaType implements ports.SagaDefinition.
func (t *Template) SagaType() string {
	return t.Name
}

// CreateSaga builds a Pending saga. params are merged over the template defaults and
// the result must satisfy Parameters. The CorrelationKey parameter becomes the
// correlation id.
func (t *Template) CreateSaga(_ context.Context, params map[string]any) (*domain.Saga, error) {
	saga := t.newSaga()
	for k, v := range params {
		saga.Context[k] = v
	}
	if err := t.Parameters.Validate(saga.Context); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidSaga, err)
	}
	if t.CorrelationKey != "" {
		v, ok := saga.Context[t.CorrelationKey]
		if !ok || v == nil {
			return nil, fmt.Errorf("%w: missing correlation parameter %q", domain.ErrInvalidSaga, t.CorrelationKey)
		}
		saga.CorrelationID = fmt.Sprint(v)
	}
	return saga.Clone(), nil
}

// EventToInput applies the first event rule matching the event.
func (t *Template) EventToInput(_ *domain.Saga, event domain.DomainEvent) (domain.Input, bool) {
	for _, rule := range t.Events {
		if rule.Event != event.Type {
			continue
		}
		if rule.Domain != "" && rule.Domain != event.Domain {
			continue
		}
		return rule.input(event), true
	}
	return domain.Input{}, false
}

func (r EventRule) input(event domain.DomainEvent) domain.Input {
	switch r.Input {
	case domain.InputStepCompleted:
		return domain.StepCompletedInput(r.Step, event.Payload)
	case domain.InputStepFailed:
		return domain.StepFailedInput(r.Step, r.reason(event))
	case domain.InputCompensationCompleted:
		return domain.CompensationCompletedInput(r.Step)
	default:
		return domain.CompensationFailedInput(r.Step, r.reason(event))
	}
}

// reason reads ErrorField (default "error") from the payload, falling back to the event type.
func (r EventRule) reason(event domain.DomainEvent) string {
	field := r.ErrorField
	if field == "" {
		field = "error"
	}
	var payload map[string]any
	if err := json.Unmarshal(event.Payload, &payload); err == nil {
		if v, ok := payload[field]; ok && v != nil {
			return fmt.Sprint(v)
		}
	}
	return event.Type
}

// OnCompleted implements ports.SagaDefinition.
func (t *Template) OnCompleted(ctx context.Context, saga *domain.Saga) error {
	if t.callbacks.Completed == nil {
		return nil
	}
	return t.callbacks.Completed(ctx, saga)
}

// OnFailed implements ports.SagaDefinition.
func (t *Template) OnFailed(ctx context.Context, saga *domain.Saga, reason string) error {
	if t.callbacks.Failed == nil {
		return nil
	}
	return t.callbacks.Failed(ctx, saga, reason)
}
