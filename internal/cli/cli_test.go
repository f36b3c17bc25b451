package cli

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/sagaflow/internal/config"
	"github.com/aretw0/sagaflow/internal/logging"
	"github.com/aretw0/sagaflow/internal/presentation/tui"
	redisAdapter "github.com/aretw0/sagaflow/pkg/adapters/redis"
	"github.com/aretw0/sagaflow/pkg/definition"
	"github.com/aretw0/sagaflow/pkg/domain"
	"github.com/aretw0/sagaflow/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sagasDir = filepath.Join("..", "..", "examples", "sagas")

func TestParseParams(t *testing.T) {
	params, err := ParseParams([]string{"order_id=o-1", "amount=42", "express=true", `meta={"a":1}`, "note=a=b"})
	require.NoError(t, err)
	assert.Equal(t, "o-1", params["order_id"])
	assert.Equal(t, float64(42), params["amount"])
	assert.Equal(t, true, params["express"])
	assert.Equal(t, map[string]any{"a": float64(1)}, params["meta"])
	assert.Equal(t, "a=b", params["note"])

	_, err = ParseParams([]string{"novalue"})
	assert.Error(t, err)
	_, err = ParseParams([]string{"=x"})
	assert.Error(t, err)
}

func loadTravel(t *testing.T) *definition.Template {
	t.Helper()
	tpl, err := definition.LoadFile(filepath.Join(sagasDir, "travel-booking.yaml"))
	require.NoError(t, err)
	return tpl
}

func TestRun_Completes(t *testing.T) {
	var out bytes.Buffer
	report, err := Run(context.Background(), &out, RunOptions{
		Template: loadTravel(t),
		Painter:  tui.NewPlainPainter(),
		Logger:   logging.NewNop(),
	})
	require.NoError(t, err)

	assert.Equal(t, domain.StatusCompleted, report.Saga.State.Status)
	assert.Contains(t, report.Saga.CorrelationID, "run-", "correlation key is generated when missing")
	assert.Len(t, report.Commands, 3)
	assert.Contains(t, out.String(), "travel-booking")
	assert.Contains(t, out.String(), "→ Completed")
	assert.Contains(t, out.String(), "lodging/ReserveHotel")
}

func TestRun_FailureAsJSON(t *testing.T) {
	var out bytes.Buffer
	_, err := Run(context.Background(), &out, RunOptions{
		Template:  loadTravel(t),
		Params:    map[string]any{"trip_id": "t-9"},
		FailSteps: []string{"flight"},
		JSON:      true,
		Logger:    logging.NewNop(),
	})
	require.NoError(t, err)

	var report RunReport
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	assert.Equal(t, "t-9", report.Saga.CorrelationID)
	assert.Equal(t, domain.StatusCompensated, report.Saga.State.Status)
	require.NotEmpty(t, report.Commands)
	last := report.Commands[len(report.Commands)-1]
	assert.Equal(t, domain.CommandExecuteCompensation, last.Kind)
	assert.Equal(t, "hotel", last.StepID)
}

func TestRun_FailedCompensation(t *testing.T) {
	report, err := Run(context.Background(), &bytes.Buffer{}, RunOptions{
		Template:          loadTravel(t),
		FailSteps:         []string{"flight"},
		FailCompensations: []string{"hotel"},
		Logger:            logging.NewNop(),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, report.Saga.State.Status)
}

func TestBuildStack_Memory(t *testing.T) {
	cfg := config.Default()
	cfg.Templates = sagasDir

	stack, err := BuildStack(context.Background(), cfg, logging.NewNop())
	require.NoError(t, err)
	defer stack.Close()

	assert.Equal(t, []string{"order-fulfillment", "travel-booking"}, stack.Engine.SagaTypes())
	assert.Nil(t, stack.Consumer)
}

func TestBuildStack_NoTemplates(t *testing.T) {
	cfg := config.Default()
	cfg.Templates = t.TempDir()

	_, err := BuildStack(context.Background(), cfg, logging.NewNop())
	assert.ErrorContains(t, err, "no saga templates")
}

func TestBuildStack_Redis(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	cfg := config.Default()
	cfg.Templates = sagasDir
	cfg.Redis.Addr = mr.Addr()
	cfg.Redis.InboundStream = "domain-events"

	stack, err := BuildStack(ctx, cfg, logging.NewNop())
	require.NoError(t, err)
	defer stack.Close()
	require.NotNil(t, stack.Consumer)
	require.NoError(t, stack.Consumer.Setup(ctx))

	client := redisAdapter.NewClient(mr.Addr(), "", 0)
	defer client.Close()
	payload, err := json.Marshal(map[string]any{"order_id": "o-7", "amount": 5})
	require.NoError(t, err)
	_, err = redisAdapter.PublishEvent(ctx, client, "domain-events", domain.DomainEvent{
		Type:          "OrderPlaced",
		Domain:        "orders",
		CorrelationID: "o-7",
		Payload:       payload,
	})
	require.NoError(t, err)

	n, err := stack.Consumer.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	sagas, err := stack.Engine.List(ctx)
	require.NoError(t, err)
	require.Len(t, sagas, 1)
	assert.Equal(t, "o-7", sagas[0].CorrelationID)
	assert.Equal(t, domain.StatusRunning, sagas[0].State.Status, "the command stream defers the first step")

	// The snapshot and the first command landed in Redis.
	ids, err := client.ZRange(ctx, "sagaflow:saga:index", 0, -1).Result()
	require.NoError(t, err)
	assert.Contains(t, ids, sagas[0].ID)
	entries, err := client.XLen(ctx, "sagaflow:commands:inventory").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), entries)
}

func TestBuildStack_RedisUnreachable(t *testing.T) {
	cfg := config.Default()
	cfg.Templates = sagasDir
	cfg.Redis.Addr = "127.0.0.1:1"

	_, err := BuildStack(context.Background(), cfg, logging.NewNop())
	assert.ErrorContains(t, err, "connect redis")
}

func TestBuildStack_ProcessCommands(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell commands are not portable to windows")
	}
	dir := t.TempDir()
	commands := filepath.Join(dir, "commands.yaml")
	require.NoError(t, os.WriteFile(commands, []byte(`
commands:
  - {domain: lodging, command_type: ReserveHotel, command: "true"}
  - {domain: airline, command_type: BookFlight, command: echo, args: ["{\"pnr\": \"X1\"}"]}
  - {domain: rentals, command_type: RentCar, command: "true"}
`), 0o644))

	cfg := config.Default()
	cfg.Templates = filepath.Join(sagasDir, "travel-booking.yaml")
	cfg.Commands = commands

	stack, err := BuildStack(context.Background(), cfg, logging.NewNop())
	require.NoError(t, err)
	defer stack.Close()

	saga, err := stack.Engine.StartSaga(context.Background(), ports.StartRequest{
		SagaType: "travel-booking",
		Params:   map[string]any{"trip_id": "t-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, saga.State.Status)
}

func TestBuildStack_EncryptedSnapshots(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	cfg := config.Default()
	cfg.Templates = sagasDir
	cfg.Redis.Addr = mr.Addr()
	cfg.Snapshot.EncryptionKey = base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{7}, 32))
	cfg.Snapshot.Redact = []string{"^amount$"}

	stack, err := BuildStack(ctx, cfg, logging.NewNop())
	require.NoError(t, err)
	defer stack.Close()

	saga, err := stack.Engine.StartSaga(ctx, ports.StartRequest{
		SagaType: "order-fulfillment",
		Params:   map[string]any{"order_id": "o-9", "amount": 12},
	})
	require.NoError(t, err)

	client := redisAdapter.NewClient(mr.Addr(), "", 0)
	defer client.Close()
	raw, err := redisAdapter.NewFromClient(client).Load(ctx, saga.ID)
	require.NoError(t, err)
	assert.Contains(t, raw.Context, "__encrypted__")
	assert.NotContains(t, raw.Context, "order_id")
	assert.Equal(t, saga.State.Status, raw.State.Status)
}

func TestBuildStack_BadEncryptionKey(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := config.Default()
	cfg.Templates = sagasDir
	cfg.Redis.Addr = mr.Addr()
	cfg.Snapshot.EncryptionKey = "c2hvcnQ="

	_, err := BuildStack(context.Background(), cfg, logging.NewNop())
	assert.ErrorContains(t, err, "encryption key")
}
