package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/aretw0/sagaflow/pkg/domain"
)

// Store implements ports.SnapshotStore in memory.
// Safe for concurrent use.
type Store struct {
	data map[string]*domain.Saga
	mu   sync.RWMutex
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[string]*domain.Saga),
	}
}

// Save stores a copy of the saga.
func (s *Store) Save(ctx context.Context, saga *domain.Saga) error {
	copied := saga.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[saga.ID] = copied
	return nil
}

// Load returns a copy so callers can't mutate stored snapshots.
func (s *Store) Load(ctx context.Context, sagaID string) (*domain.Saga, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	saga, ok := s.data[sagaID]
	if !ok {
		return nil, domain.ErrSagaNotFound
	}
	return saga.Clone(), nil
}

// Delete removes the snapshot.
func (s *Store) Delete(ctx context.Context, sagaID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, sagaID)
	return nil
}

// List returns stored saga IDs in sorted order.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.data))
	for id := range s.data {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
