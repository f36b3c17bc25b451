package ports

import (
	"context"

	"github.com/aretw0/sagaflow/pkg/domain"
)

// SnapshotStore keeps a read-model copy of every saga, updated after each transition.
// The orchestrator only writes to it; in-flight sagas are not restored from it.
type SnapshotStore interface {
	// Save persists the saga under its ID, replacing any previous snapshot.
	Save(ctx context.Context, saga *domain.Saga) error

	// Load retrieves a snapshot.
	// Returns domain.ErrSagaNotFound if the saga does not exist.
	Load(ctx context.Context, sagaID string) (*domain.Saga, error)

	// Delete removes a snapshot. Deleting a missing saga is not an error.
	Delete(ctx context.Context, sagaID string) error

	// List returns the IDs of all stored snapshots.
	List(ctx context.Context) ([]string, error)
}
