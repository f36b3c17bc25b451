package ports

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/sagaflow/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunSnapshotStoreContract runs a suite of tests to verify that a SnapshotStore
// implementation adheres to the defined interface contract.
func RunSnapshotStoreContract(t *testing.T, store SnapshotStore) {
	ctx := context.Background()
	prefix := "contract-" + time.Now().Format("20060102150405")

	newSaga := func(id string) *domain.Saga {
		return &domain.Saga{
			ID:    id,
			Name:  "contract",
			Steps: []domain.Step{{ID: "a", Domain: "x", CommandType: "do"}},
			State: domain.Running("a", nil),
			Compensations: map[string]domain.CompensationAction{
				"a": {Domain: "x", CommandType: "undo"},
			},
			Context: map[string]any{"foo": "bar"},
		}
	}

	t.Run("Save and Load", func(t *testing.T) {
		id := prefix + "-save"
		require.NoError(t, store.Save(ctx, newSaga(id)))

		loaded, err := store.Load(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, id, loaded.ID)
		assert.Equal(t, domain.Running("a", nil), loaded.State)
		assert.Equal(t, "bar", loaded.Context["foo"])
		assert.Equal(t, "undo", loaded.Compensations["a"].CommandType)
	})

	t.Run("Save replaces", func(t *testing.T) {
		id := prefix + "-replace"
		saga := newSaga(id)
		require.NoError(t, store.Save(ctx, saga))

		saga.State = domain.Completed()
		require.NoError(t, store.Save(ctx, saga))

		loaded, err := store.Load(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusCompleted, loaded.State.Status)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+prefix)
		assert.ErrorIs(t, err, domain.ErrSagaNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		id := prefix + "-delete"
		require.NoError(t, store.Save(ctx, newSaga(id)))
		require.NoError(t, store.Delete(ctx, id))

		_, err := store.Load(ctx, id)
		assert.ErrorIs(t, err, domain.ErrSagaNotFound, "Load after Delete should return ErrSagaNotFound")
		assert.NoError(t, store.Delete(ctx, id), "Delete is idempotent")
	})

	t.Run("List", func(t *testing.T) {
		id1 := prefix + "-1"
		id2 := prefix + "-2"
		require.NoError(t, store.Save(ctx, newSaga(id1)))
		require.NoError(t, store.Save(ctx, newSaga(id2)))
		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		ids, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, ids, id1)
		assert.Contains(t, ids, id2)
	})
}

// RunLockerContract verifies mutual exclusion for a DistributedLocker implementation.
func RunLockerContract(t *testing.T, locker DistributedLocker) {
	ctx := context.Background()
	key := "contract-lock-" + time.Now().Format("20060102150405")

	t.Run("Exclusive", func(t *testing.T) {
		var (
			mu      sync.Mutex
			holders int
			maxSeen int
			wg      sync.WaitGroup
		)
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				unlock, err := locker.Lock(ctx, key, 5*time.Second)
				if !assert.NoError(t, err) {
					return
				}
				mu.Lock()
				holders++
				if holders > maxSeen {
					maxSeen = holders
				}
				mu.Unlock()

				time.Sleep(5 * time.Millisecond)

				mu.Lock()
				holders--
				mu.Unlock()
				assert.NoError(t, unlock(ctx))
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, maxSeen)
	})

	t.Run("Context canceled while waiting", func(t *testing.T) {
		unlock, err := locker.Lock(ctx, key, 5*time.Second)
		require.NoError(t, err)
		defer func() { _ = unlock(ctx) }()

		waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()
		_, err = locker.Lock(waitCtx, key, 5*time.Second)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}
