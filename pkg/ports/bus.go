package ports

import (
	"context"
	"encoding/json"

	"github.com/aretw0/sagaflow/pkg/domain"
)

// CommandBus delivers commands to the domain that owns them.
//
// A nil error with a result means the command finished and the saga advances with
// StepCompleted (or CompensationCompleted). Returning domain.ErrDeferred means the
// command was accepted and its outcome will be reported later as an input.
// Any other error fails the step.
type CommandBus interface {
	Send(ctx context.Context, cmd domain.CommandMessage) (json.RawMessage, error)
}

// CommandBusFunc adapts a function to CommandBus.
type CommandBusFunc func(ctx context.Context, cmd domain.CommandMessage) (json.RawMessage, error)

func (f CommandBusFunc) Send(ctx context.Context, cmd domain.CommandMessage) (json.RawMessage, error) {
	return f(ctx, cmd)
}

// EventSink receives saga events in transition order.
// Publish errors are logged and do not roll back the transition.
type EventSink interface {
	Publish(ctx context.Context, env domain.Envelope) error
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(ctx context.Context, env domain.Envelope) error

func (f EventSinkFunc) Publish(ctx context.Context, env domain.Envelope) error {
	return f(ctx, env)
}
