package memory

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/aretw0/sagaflow/pkg/domain"
)

// Handler answers one command type on a Bus.
type Handler func(ctx context.Context, cmd domain.CommandMessage) (json.RawMessage, error)

type failure struct {
	err       error
	remaining int // <= 0 fails forever
}

// Bus is a scripted in-process CommandBus. Commands succeed with an empty result
// unless a handler or a scripted failure says otherwise. Every command is recorded.
type Bus struct {
	mu           sync.Mutex
	handlers     map[string]Handler
	stepFailures map[string]*failure
	compFailures map[string]*failure
	sent         []domain.CommandMessage
}

// NewBus creates a bus where every command succeeds.
func NewBus() *Bus {
	return &Bus{
		handlers:     make(map[string]Handler),
		stepFailures: make(map[string]*failure),
		compFailures: make(map[string]*failure),
	}
}

// Handle routes commands of (domain, commandType) to h.
func (b *Bus) Handle(domainName, commandType string, h Handler) *Bus {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[domainName+"/"+commandType] = h
	return b
}

// FailStep makes every execution of stepID fail with err.
func (b *Bus) FailStep(stepID string, err error) *Bus {
	return b.FailStepTimes(stepID, err, 0)
}

// FailStepTimes makes the next n executions of stepID fail with err.
func (b *Bus) FailStepTimes(stepID string, err error, n int) *Bus {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stepFailures[stepID] = &failure{err: err, remaining: n}
	return b
}

// FailCompensation makes every compensation of stepID fail with err.
func (b *Bus) FailCompensation(stepID string, err error) *Bus {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.compFailures[stepID] = &failure{err: err}
	return b
}

// Send implements ports.CommandBus.
func (b *Bus) Send(ctx context.Context, cmd domain.CommandMessage) (json.RawMessage, error) {
	b.mu.Lock()
	b.sent = append(b.sent, cmd)
	failures := b.stepFailures
	if cmd.Kind == domain.CommandExecuteCompensation {
		failures = b.compFailures
	}
	if f, ok := failures[cmd.StepID]; ok {
		if f.remaining > 0 {
			f.remaining--
			if f.remaining == 0 {
				delete(failures, cmd.StepID)
			}
		}
		b.mu.Unlock()
		return nil, f.err
	}
	h := b.handlers[cmd.Domain+"/"+cmd.CommandType]
	b.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if h != nil {
		return h(ctx, cmd)
	}
	return nil, nil
}

// Sent returns the commands received so far.
func (b *Bus) Sent() []domain.CommandMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.CommandMessage, len(b.sent))
	copy(out, b.sent)
	return out
}

// SentSteps returns the step ids of received commands of the given kind.
func (b *Bus) SentSteps(kind domain.CommandKind) []string {
	var out []string
	for _, cmd := range b.Sent() {
		if cmd.Kind == kind {
			out = append(out, cmd.StepID)
		}
	}
	return out
}
