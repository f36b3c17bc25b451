package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aretw0/sagaflow/pkg/domain"
)

// debugHooks logs every transition and command at debug level.
func debugHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnTransition: func(ctx context.Context, saga *domain.Saga, t domain.SagaTransition) {
			logger.DebugContext(ctx, "transition",
				"saga_id", saga.ID,
				"from", t.From.Name(),
				"to", t.To.Name(),
			)
		},
		OnCommand: func(ctx context.Context, msg domain.CommandMessage, elapsed time.Duration, err error) {
			if err != nil {
				logger.DebugContext(ctx, "command returned error", "saga_id", msg.SagaID, "step_id", msg.StepID, "kind", msg.Kind, "err", err)
				return
			}
			logger.DebugContext(ctx, "command returned", "saga_id", msg.SagaID, "step_id", msg.StepID, "kind", msg.Kind, "elapsed", elapsed)
		},
	}
}

// ParseParams turns key=value pairs into start parameters. Values that parse as
// JSON (numbers, booleans, objects) keep their type; anything else is a string.
func ParseParams(pairs []string) (map[string]any, error) {
	params := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid parameter %q, expected key=value", pair)
		}
		var value any
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			value = raw
		}
		params[key] = value
	}
	return params, nil
}
