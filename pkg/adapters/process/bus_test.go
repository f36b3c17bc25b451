package process

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/aretw0/sagaflow/pkg/adapters/memory"
	"github.com/aretw0/sagaflow/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not portable to windows")
	}
}

func message(domainName, commandType string) domain.CommandMessage {
	return domain.CommandMessage{
		SagaID:      "saga-1",
		SagaName:    "checkout",
		Kind:        domain.CommandExecuteStep,
		StepID:      "charge",
		Domain:      domainName,
		CommandType: commandType,
		Parameters:  map[string]any{"amount": 42, "currency": "EUR", "items": []any{"a"}},
	}
}

func TestBus_Send(t *testing.T) {
	requireShell(t)
	bus := NewBus()
	bus.Register("payments", "Charge", "sh", "-c", `echo "{\"charged\": $SAGAFLOW_PARAM_AMOUNT, \"step\": \"$SAGAFLOW_STEP_ID\"}"`)
	bus.Register("payments", "Hello", "echo", "hello")
	bus.Register("payments", "Stdin", "cat")
	bus.Register("payments", "Silent", "true")

	t.Run("JSON stdout is the result", func(t *testing.T) {
		res, err := bus.Send(context.Background(), message("payments", "Charge"))
		require.NoError(t, err)
		assert.JSONEq(t, `{"charged": 42, "step": "charge"}`, string(res))
	})

	t.Run("Plain stdout becomes a JSON string", func(t *testing.T) {
		res, err := bus.Send(context.Background(), message("payments", "Hello"))
		require.NoError(t, err)
		assert.Equal(t, `"hello"`, string(res))
	})

	t.Run("Command message arrives on stdin", func(t *testing.T) {
		res, err := bus.Send(context.Background(), message("payments", "Stdin"))
		require.NoError(t, err)
		var echoed domain.CommandMessage
		require.NoError(t, json.Unmarshal(res, &echoed))
		assert.Equal(t, "saga-1", echoed.SagaID)
		assert.Equal(t, "Stdin", echoed.CommandType)
	})

	t.Run("Empty stdout is an empty result", func(t *testing.T) {
		res, err := bus.Send(context.Background(), message("payments", "Silent"))
		require.NoError(t, err)
		assert.Nil(t, res)
	})
}

func TestBus_Failures(t *testing.T) {
	requireShell(t)
	bus := NewBus()
	bus.Register("payments", "Decline", "sh", "-c", "echo 'card declined' >&2; exit 3")
	bus.Register("payments", "Slow", "sleep", "5")

	_, err := bus.Send(context.Background(), message("payments", "Decline"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "card declined")

	_, err = bus.Send(context.Background(), message("payments", "Unknown"))
	assert.ErrorIs(t, err, ErrNotRegistered)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = bus.Send(ctx, message("payments", "Slow"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBus_Fallback(t *testing.T) {
	fallback := memory.NewBus()
	bus := NewBus(WithFallback(fallback))

	_, err := bus.Send(context.Background(), message("inventory", "Reserve"))
	require.NoError(t, err)
	assert.Equal(t, []string{"charge"}, fallback.SentSteps(domain.CommandExecuteStep))
}

func TestLoadCommands(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "commands.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
commands:
  - domain: payments
    command_type: Charge
    command: ./charge.sh
    args: [--live]
    env:
      API_KEY: secret
`), 0o644))

	cmds, err := LoadCommands(path)
	require.NoError(t, err)
	require.Len(t, cmds, 1)
	assert.Equal(t, "payments/Charge", cmds[0].Key())
	assert.Equal(t, []string{"--live"}, cmds[0].Args)
	assert.Equal(t, "secret", cmds[0].Environment["API_KEY"])

	bus := NewBus(WithCommands(cmds))
	assert.Contains(t, bus.registry, "payments/Charge")

	missing, err := LoadCommands(filepath.Join(dir, "none.yaml"))
	require.NoError(t, err)
	assert.Empty(t, missing)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"commands":[{"domain":"x"}]}`), 0o644))
	_, err = LoadCommands(bad)
	assert.Error(t, err)
}
