package domain

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aretw0/sagaflow/pkg/fsm"
)

// EventType defines the category of a saga event.
type EventType string

const (
	EventStarted             EventType = "saga_started"
	EventStepStarted         EventType = "step_started"
	EventStepCompleted       EventType = "step_completed"
	EventStepFailed          EventType = "step_failed"
	EventCompleted           EventType = "saga_completed"
	EventCompensationStarted EventType = "compensation_started"
	EventStepCompensated     EventType = "step_compensated"
	EventCompensationFailed  EventType = "compensation_failed"
	EventCompensated         EventType = "saga_compensated"
	EventFailed              EventType = "saga_failed"
)

// Event is a fact produced by a transition. It carries no time or identity.
type Event struct {
	Type   EventType       `json:"type"`
	StepID string          `json:"step_id,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// CommandKind names what a command asks a domain to do.
type CommandKind string

const (
	CommandExecuteStep         CommandKind = "execute_step"
	CommandExecuteCompensation CommandKind = "execute_compensation"
)

// Command is a request produced by a transition. The orchestrator resolves it
// against the saga into a CommandMessage before dispatch.
type Command struct {
	Kind   CommandKind `json:"kind"`
	StepID string      `json:"step_id"`
}

// Output is everything a transition emits.
type Output struct {
	Events   []Event   `json:"events,omitempty"`
	Commands []Command `json:"commands,omitempty"`
}

func (o *Output) startStep(stepID string) {
	if stepID == "" {
		return
	}
	o.Events = append(o.Events, Event{Type: EventStepStarted, StepID: stepID})
	o.Commands = append(o.Commands, Command{Kind: CommandExecuteStep, StepID: stepID})
}

func (o *Output) compensate(stepID string) {
	if stepID == "" {
		return
	}
	o.Commands = append(o.Commands, Command{Kind: CommandExecuteCompensation, StepID: stepID})
}

// CommandMessage is a command resolved against its saga, ready for the bus.
type CommandMessage struct {
	SagaID        string         `json:"saga_id"`
	SagaName      string         `json:"saga_name"`
	CorrelationID string         `json:"correlation_id"`
	Kind          CommandKind    `json:"kind"`
	StepID        string         `json:"step_id"`
	Domain        string         `json:"domain"`
	CommandType   string         `json:"command_type"`
	Parameters    map[string]any `json:"parameters,omitempty"`
	Context       map[string]any `json:"context,omitempty"`
}

// Envelope is an event stamped for publication.
type Envelope struct {
	ID            string    `json:"id"`
	SagaID        string    `json:"saga_id"`
	SagaName      string    `json:"saga_name"`
	CorrelationID string    `json:"correlation_id"`
	Sequence      uint64    `json:"sequence"`
	Timestamp     time.Time `json:"timestamp"`
	Event         Event     `json:"event"`
}

// DomainEvent is an event published by a business domain, consumed by the coordinator.
type DomainEvent struct {
	ID            string          `json:"id,omitempty"`
	Type          string          `json:"type"`
	Domain        string          `json:"domain,omitempty"`
	CorrelationID string          `json:"correlation_id"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	Timestamp     time.Time       `json:"timestamp,omitempty"`
}

// SagaTransition is one recorded transition of a saga machine.
type SagaTransition = fsm.Transition[SagaState, Input, Output]

// Machine is the state machine type driving a saga.
type Machine = fsm.MealyMachine[SagaState, Input, Output]

// LifecycleHooks defines callbacks for orchestrator observability.
// Hooks run synchronously and must not block.
type LifecycleHooks struct {
	OnTransition func(ctx context.Context, saga *Saga, t SagaTransition)
	OnEvent      func(ctx context.Context, env Envelope)
	OnCommand    func(ctx context.Context, msg CommandMessage, elapsed time.Duration, err error)
	OnTerminal   func(ctx context.Context, saga *Saga)
}
