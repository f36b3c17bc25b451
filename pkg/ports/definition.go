package ports

import (
	"context"

	"github.com/aretw0/sagaflow/pkg/domain"
)

// SagaDefinition describes one saga type.
type SagaDefinition interface {
	// SagaType is the unique name the definition is registered under.
	SagaType() string

	// CreateSaga builds a fresh saga in Pending state from the start parameters.
	CreateSaga(ctx context.Context, params map[string]any) (*domain.Saga, error)

	// EventToInput maps a domain event onto an input for saga.
	// It returns false when the event is irrelevant to the saga.
	EventToInput(saga *domain.Saga, event domain.DomainEvent) (domain.Input, bool)

	// OnCompleted runs once when a saga reaches Completed.
	OnCompleted(ctx context.Context, saga *domain.Saga) error

	// OnFailed runs once when a saga reaches Compensated or Failed.
	OnFailed(ctx context.Context, saga *domain.Saga, reason string) error
}

// StartRequest asks for a new saga of SagaType.
type StartRequest struct {
	SagaType      string         `json:"saga_type"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	Params        map[string]any `json:"params,omitempty"`
}

// ProcessPolicy decides whether a domain event starts a saga.
type ProcessPolicy interface {
	Name() string
	ShouldStart(ctx context.Context, event domain.DomainEvent) (StartRequest, bool)
}
