package ports

import (
	"context"

	"github.com/aretw0/sagaflow/pkg/domain"
)

// Engine is the surface exposed to driving adapters (HTTP, CLI).
type Engine interface {
	// StartSaga creates a saga from a registered definition and starts it.
	StartSaga(ctx context.Context, req StartRequest) (*domain.Saga, error)

	// HandleEvent feeds a domain event to the process manager and the coordinator.
	HandleEvent(ctx context.Context, event domain.DomainEvent) error

	// Saga returns a copy of a live saga.
	Saga(ctx context.Context, id string) (*domain.Saga, error)

	// History returns the transitions recorded for a saga.
	History(ctx context.Context, id string) ([]domain.SagaTransition, error)

	// List returns copies of every live saga.
	List(ctx context.Context) ([]*domain.Saga, error)

	// SagaTypes lists the registered definitions.
	SagaTypes() []string
}
