package redis_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/sagaflow/pkg/adapters/redis"
	"github.com/aretw0/sagaflow/pkg/domain"
	"github.com/aretw0/sagaflow/pkg/ports"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*miniredis.Miniredis, *backend.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func testSaga(id string) *domain.Saga {
	return &domain.Saga{
		ID:    id,
		Name:  "order",
		Steps: []domain.Step{{ID: "a", Domain: "x", CommandType: "do"}},
		State: domain.Pending(),
	}
}

func TestRedisStore_Contract(t *testing.T) {
	_, client := setup(t)
	ports.RunSnapshotStoreContract(t, redis.NewFromClient(client))
}

func TestRedisStore_TTL_Expiration(t *testing.T) {
	mr, client := setup(t)
	store := redis.NewFromClient(client, redis.WithTTL(1*time.Second))
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testSaga("saga-ttl")))

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.Contains(t, ids, "saga-ttl")

	mr.FastForward(2 * time.Second)

	_, err = store.Load(ctx, "saga-ttl")
	assert.ErrorIs(t, err, domain.ErrSagaNotFound)

	// The index is pruned against wall-clock time.
	time.Sleep(1200 * time.Millisecond)

	ids, err = store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestRedisStore_Prefix(t *testing.T) {
	mr, client := setup(t)
	store := redis.NewFromClient(client, redis.WithPrefix("custom:app:"))
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testSaga("my-saga")))

	assert.True(t, mr.Exists("custom:app:my-saga"), "Expected key with custom prefix to exist")
	assert.True(t, mr.Exists("custom:app:index"), "Expected index with custom prefix to exist")

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"my-saga"}, ids)
}

func TestRedisLocker_Contract(t *testing.T) {
	_, client := setup(t)
	ports.RunLockerContract(t, redis.NewLocker(client, "test:").WithPollInterval(5*time.Millisecond))
}

func TestRedisLocker_LockUnlock(t *testing.T) {
	mr, client := setup(t)
	locker := redis.NewLocker(client, "test:lock:")
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "resource1", 5*time.Second)
	require.NoError(t, err)
	assert.True(t, mr.Exists("test:lock:lock:resource1"), "Lock key should be set in Redis")

	require.NoError(t, unlock(ctx))
	assert.False(t, mr.Exists("test:lock:lock:resource1"), "Lock key should be removed after unlock")
}

func TestRedisLocker_StaleUnlockKeepsNewOwner(t *testing.T) {
	mr, client := setup(t)
	locker := redis.NewLocker(client, "test:")
	ctx := context.Background()

	unlockOld, err := locker.Lock(ctx, "r", time.Second)
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)

	unlockNew, err := locker.Lock(ctx, "r", 5*time.Second)
	require.NoError(t, err)

	require.NoError(t, unlockOld(ctx))
	assert.True(t, mr.Exists("test:lock:r"), "expired holder must not release the new lock")

	require.NoError(t, unlockNew(ctx))
	assert.False(t, mr.Exists("test:lock:r"))
}

func TestEventStream_Publish(t *testing.T) {
	_, client := setup(t)
	sink := redis.NewEventStream(client, "sagaflow:events", 0)
	ctx := context.Background()

	env := domain.Envelope{
		ID:       "e-1",
		SagaID:   "s-1",
		SagaName: "order",
		Sequence: 1,
		Event:    domain.Event{Type: domain.EventSagaStarted},
	}
	require.NoError(t, sink.Publish(ctx, env))

	entries, err := client.XRange(ctx, "sagaflow:events", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)

	var got domain.Envelope
	require.NoError(t, json.Unmarshal([]byte(entries[0].Values["data"].(string)), &got))
	assert.Equal(t, "s-1", got.SagaID)
	assert.Equal(t, domain.EventSagaStarted, got.Event.Type)
}

func TestCommandStream_SendDefers(t *testing.T) {
	_, client := setup(t)
	bus := redis.NewCommandStream(client, "sagaflow:commands:")
	ctx := context.Background()

	cmd := domain.CommandMessage{
		SagaID:      "s-1",
		Kind:        domain.CommandExecuteStep,
		StepID:      "charge",
		Domain:      "payments",
		CommandType: "ChargeCard",
	}
	result, err := bus.Send(ctx, cmd)
	assert.ErrorIs(t, err, domain.ErrDeferred)
	assert.Nil(t, result)

	assert.Equal(t, "sagaflow:commands:payments", bus.Stream("payments"))
	entries, err := client.XRange(ctx, bus.Stream("payments"), "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)

	var got domain.CommandMessage
	require.NoError(t, json.Unmarshal([]byte(entries[0].Values["data"].(string)), &got))
	assert.Equal(t, cmd, got)
}

func TestConsumer_Poll(t *testing.T) {
	_, client := setup(t)
	ctx := context.Background()
	const stream = "sagaflow:domain-events"

	var handled []domain.DomainEvent
	errUnknown := errors.New("unknown saga")
	consumer := redis.NewConsumer(client, stream, "sagaflow", "worker-1",
		func(_ context.Context, ev domain.DomainEvent) error {
			if ev.CorrelationID == "missing" {
				return errUnknown
			}
			handled = append(handled, ev)
			return nil
		},
		&redis.ConsumerOptions{BatchSize: 10, BlockTime: 20 * time.Millisecond},
	)
	require.NoError(t, consumer.Setup(ctx))
	require.NoError(t, consumer.Setup(ctx), "Setup is idempotent")

	_, err := redis.PublishEvent(ctx, client, stream, domain.DomainEvent{Type: "StockReserved", CorrelationID: "o-1"})
	require.NoError(t, err)
	_, err = redis.PublishEvent(ctx, client, stream, domain.DomainEvent{Type: "StockReserved", CorrelationID: "missing"})
	require.NoError(t, err)
	require.NoError(t, client.XAdd(ctx, &backend.XAddArgs{Stream: stream, Values: map[string]any{"data": "{not json"}}).Err())

	n, err := consumer.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	require.Len(t, handled, 1)
	assert.Equal(t, "o-1", handled[0].CorrelationID)

	dead, err := client.XRange(ctx, consumer.DeadLetterStream(), "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, dead, 2)
	assert.Equal(t, "unknown saga", dead[0].Values["reason"])

	pending, err := client.XPending(ctx, stream, "sagaflow").Result()
	require.NoError(t, err)
	assert.Zero(t, pending.Count, "every entry is acknowledged")

	n, err = consumer.Poll(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestConsumer_RunStopsOnCancel(t *testing.T) {
	_, client := setup(t)
	const stream = "events"

	got := make(chan domain.DomainEvent, 1)
	consumer := redis.NewConsumer(client, stream, "g", "c",
		func(_ context.Context, ev domain.DomainEvent) error {
			got <- ev
			return nil
		},
		&redis.ConsumerOptions{BatchSize: 1, BlockTime: 10 * time.Millisecond},
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- consumer.Run(ctx) }()

	require.Eventually(t, func() bool {
		return client.Exists(context.Background(), stream).Val() == 1
	}, time.Second, 5*time.Millisecond)

	_, err := redis.PublishEvent(context.Background(), client, stream, domain.DomainEvent{Type: "Ping", CorrelationID: "c-1"})
	require.NoError(t, err)

	select {
	case ev := <-got:
		assert.Equal(t, "Ping", ev.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("event not consumed")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}
