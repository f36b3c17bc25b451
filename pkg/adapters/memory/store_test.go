package memory_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aretw0/sagaflow/pkg/adapters/memory"
	"github.com/aretw0/sagaflow/pkg/domain"
	"github.com/aretw0/sagaflow/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Contract(t *testing.T) {
	store := memory.NewStore()
	ports.RunSnapshotStoreContract(t, store)
}

func TestMemoryStore_Isolation(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	saga := &domain.Saga{ID: "s", Name: "n", Context: map[string]any{"k": "v"}}
	require.NoError(t, store.Save(ctx, saga))

	saga.Context["k"] = "changed"
	loaded, err := store.Load(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, "v", loaded.Context["k"])

	loaded.Context["k"] = "mutated"
	again, err := store.Load(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, "v", again.Context["k"])
}

func TestBus(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")
	bus := memory.NewBus().
		Handle("payments", "Charge", func(ctx context.Context, cmd domain.CommandMessage) (json.RawMessage, error) {
			return json.RawMessage(`{"charged":true}`), nil
		}).
		FailStepTimes("reserve", boom, 1).
		FailCompensation("reserve", boom)

	res, err := bus.Send(ctx, domain.CommandMessage{Kind: domain.CommandExecuteStep, StepID: "pay", Domain: "payments", CommandType: "Charge"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"charged":true}`, string(res))

	_, err = bus.Send(ctx, domain.CommandMessage{Kind: domain.CommandExecuteStep, StepID: "reserve"})
	assert.ErrorIs(t, err, boom)
	_, err = bus.Send(ctx, domain.CommandMessage{Kind: domain.CommandExecuteStep, StepID: "reserve"})
	assert.NoError(t, err, "scripted failure is used up")

	_, err = bus.Send(ctx, domain.CommandMessage{Kind: domain.CommandExecuteCompensation, StepID: "reserve"})
	assert.ErrorIs(t, err, boom)

	assert.Equal(t, []string{"pay", "reserve", "reserve"}, bus.SentSteps(domain.CommandExecuteStep))
	assert.Len(t, bus.Sent(), 4)
}

func TestRecorder(t *testing.T) {
	ctx := context.Background()
	rec := memory.NewRecorder()
	require.NoError(t, rec.Publish(ctx, domain.Envelope{SagaID: "a", Event: domain.Event{Type: domain.EventStarted}}))
	require.NoError(t, rec.Publish(ctx, domain.Envelope{SagaID: "b", Event: domain.Event{Type: domain.EventStarted}}))
	require.NoError(t, rec.Publish(ctx, domain.Envelope{SagaID: "a", Event: domain.Event{Type: domain.EventCompleted}}))

	assert.Equal(t, []domain.EventType{domain.EventStarted, domain.EventCompleted}, rec.Types("a"))
	assert.Len(t, rec.Envelopes(), 3)

	rec.Reset()
	assert.Empty(t, rec.Envelopes())
}
