package domain

import (
	"fmt"
	"reflect"
	"slices"

	"github.com/aretw0/sagaflow/pkg/fsm"
)

// Status is the lifecycle phase of a saga.
// Completed, Compensated and Failed are terminal.
type Status string

const (
	StatusPending      Status = "pending"
	StatusRunning      Status = "running"
	StatusCompleted    Status = "completed"
	StatusCompensating Status = "compensating"
	StatusCompensated  Status = "compensated"
	StatusFailed       Status = "failed"
)

// SagaState is the state of a saga machine.
// Only the fields relevant to Status are populated.
type SagaState struct {
	Status Status `json:"status"`

	// Running
	CurrentStep    string   `json:"current_step,omitempty"`
	CompletedSteps []string `json:"completed_steps,omitempty"`

	// Compensating
	FailedStep          string   `json:"failed_step,omitempty"`
	CompensatedSteps    []string `json:"compensated_steps,omitempty"`
	CurrentCompensation string   `json:"current_compensation,omitempty"`

	// Failed
	Error string `json:"error,omitempty"`
}

var _ fsm.MealyState[SagaState, Input, Output] = SagaState{}

// Pending is the initial state of every saga.
func Pending() SagaState {
	return SagaState{Status: StatusPending}
}

// Running returns a running state with the given in-flight step.
func Running(current string, completed []string) SagaState {
	return SagaState{
		Status:         StatusRunning,
		CurrentStep:    current,
		CompletedSteps: cloneIDs(completed),
	}
}

// Completed is the terminal success state.
func Completed() SagaState {
	return SagaState{Status: StatusCompleted}
}

// Compensating returns a state undoing work after failedStep failed.
// next is the compensation currently dispatched.
func Compensating(failedStep string, compensated []string, next string) SagaState {
	return SagaState{
		Status:              StatusCompensating,
		FailedStep:          failedStep,
		CompensatedSteps:    cloneIDs(compensated),
		CurrentCompensation: next,
	}
}

// Compensated is the terminal state after every compensation ran.
func Compensated() SagaState {
	return SagaState{Status: StatusCompensated}
}

// Failed is the terminal state after a compensation failed.
func Failed(err string) SagaState {
	return SagaState{Status: StatusFailed, Error: err}
}

func (s SagaState) Name() string {
	switch s.Status {
	case StatusPending:
		return "Pending"
	case StatusRunning:
		return "Running"
	case StatusCompleted:
		return "Completed"
	case StatusCompensating:
		return "Compensating"
	case StatusCompensated:
		return "Compensated"
	case StatusFailed:
		return "Failed"
	}
	return fmt.Sprintf("Unknown(%s)", string(s.Status))
}

func (s SagaState) IsTerminal() bool {
	switch s.Status {
	case StatusCompleted, StatusCompensated, StatusFailed:
		return true
	}
	return false
}

// Clone returns a copy with its own slices.
func (s SagaState) Clone() SagaState {
	s.CompletedSteps = cloneIDs(s.CompletedSteps)
	s.CompensatedSteps = cloneIDs(s.CompensatedSteps)
	return s
}

// CanTransitionTo reports whether the state-local shape of target is reachable under in.
// Saga-level rules (dependencies, step counts) are checked by SagaGuard.
func (s SagaState) CanTransitionTo(target SagaState, in Input) bool {
	switch {
	case s.Status == StatusPending && in.Kind == InputStart:
		return target.Status == StatusRunning && len(target.CompletedSteps) == 0

	case s.Status == StatusRunning && in.Kind == InputStepCompleted:
		if in.StepID == "" || slices.Contains(s.CompletedSteps, in.StepID) {
			return false
		}
		switch target.Status {
		case StatusRunning:
			return slices.Equal(target.CompletedSteps, append(cloneIDs(s.CompletedSteps), in.StepID)) &&
				!slices.Contains(target.CompletedSteps, target.CurrentStep)
		case StatusCompleted:
			return true
		}

	case s.Status == StatusRunning && in.Kind == InputStepFailed:
		if in.StepID == "" || slices.Contains(s.CompletedSteps, in.StepID) {
			return false
		}
		switch target.Status {
		case StatusCompensating:
			return target.FailedStep == in.StepID && len(target.CompensatedSteps) == 0
		case StatusCompensated:
			return true
		}

	case s.Status == StatusCompensating && in.Kind == InputCompensationCompleted:
		if in.StepID == "" || slices.Contains(s.CompensatedSteps, in.StepID) {
			return false
		}
		switch target.Status {
		case StatusCompensating:
			return target.FailedStep == s.FailedStep &&
				slices.Equal(target.CompensatedSteps, append(cloneIDs(s.CompensatedSteps), in.StepID)) &&
				!slices.Contains(target.CompensatedSteps, target.CurrentCompensation)
		case StatusCompensated:
			return true
		}

	case s.Status == StatusCompensating && in.Kind == InputCompensationFailed:
		return target.Status == StatusFailed && target.Error == in.Error
	}
	return false
}

// ValidTransitions lists the target shapes reachable under in.
// Step selection is left empty since it depends on the saga definition.
func (s SagaState) ValidTransitions(in Input) []SagaState {
	if s.IsTerminal() {
		return nil
	}
	switch {
	case s.Status == StatusPending && in.Kind == InputStart:
		return []SagaState{Running("", nil)}
	case s.Status == StatusRunning && in.Kind == InputStepCompleted:
		if in.StepID == "" || slices.Contains(s.CompletedSteps, in.StepID) {
			return nil
		}
		return []SagaState{
			Running("", append(cloneIDs(s.CompletedSteps), in.StepID)),
			Completed(),
		}
	case s.Status == StatusRunning && in.Kind == InputStepFailed:
		if in.StepID == "" || slices.Contains(s.CompletedSteps, in.StepID) {
			return nil
		}
		return []SagaState{Compensating(in.StepID, nil, ""), Compensated()}
	case s.Status == StatusCompensating && in.Kind == InputCompensationCompleted:
		if in.StepID == "" || slices.Contains(s.CompensatedSteps, in.StepID) {
			return nil
		}
		return []SagaState{
			Compensating(s.FailedStep, append(cloneIDs(s.CompensatedSteps), in.StepID), ""),
			Compensated(),
		}
	case s.Status == StatusCompensating && in.Kind == InputCompensationFailed:
		return []SagaState{Failed(in.Error)}
	}
	return nil
}

// TransitionOutput returns the events and commands for moving from s to target.
// It is pure: no clocks, no identifiers.
func (s SagaState) TransitionOutput(target SagaState, in Input) Output {
	var out Output
	switch {
	case s.Status == StatusPending && target.Status == StatusRunning:
		out.Events = append(out.Events, Event{Type: EventStarted})
		out.startStep(target.CurrentStep)

	case s.Status == StatusRunning && target.Status == StatusRunning:
		out.Events = append(out.Events, Event{Type: EventStepCompleted, StepID: in.StepID, Result: in.Result})
		if target.CurrentStep != s.CurrentStep {
			out.startStep(target.CurrentStep)
		}

	case s.Status == StatusRunning && target.Status == StatusCompleted:
		out.Events = append(out.Events,
			Event{Type: EventStepCompleted, StepID: in.StepID, Result: in.Result},
			Event{Type: EventCompleted},
		)

	case s.Status == StatusRunning && target.Status == StatusCompensating:
		out.Events = append(out.Events,
			Event{Type: EventStepFailed, StepID: in.StepID, Error: in.Error},
			Event{Type: EventCompensationStarted, StepID: in.StepID},
		)
		out.compensate(target.CurrentCompensation)

	case s.Status == StatusRunning && target.Status == StatusCompensated:
		out.Events = append(out.Events,
			Event{Type: EventStepFailed, StepID: in.StepID, Error: in.Error},
			Event{Type: EventCompensationStarted, StepID: in.StepID},
			Event{Type: EventCompensated},
		)

	case s.Status == StatusCompensating && target.Status == StatusCompensating:
		out.Events = append(out.Events, Event{Type: EventStepCompensated, StepID: in.StepID})
		if target.CurrentCompensation != s.CurrentCompensation {
			out.compensate(target.CurrentCompensation)
		}

	case s.Status == StatusCompensating && target.Status == StatusCompensated:
		out.Events = append(out.Events,
			Event{Type: EventStepCompensated, StepID: in.StepID},
			Event{Type: EventCompensated},
		)

	case s.Status == StatusCompensating && target.Status == StatusFailed:
		out.Events = append(out.Events,
			Event{Type: EventCompensationFailed, StepID: in.StepID, Error: in.Error},
			Event{Type: EventFailed, Error: target.Error},
		)
	}
	return out
}

// Equal reports whether two states are identical, treating nil and empty slices alike.
func (s SagaState) Equal(other SagaState) bool {
	return reflect.DeepEqual(s.normalized(), other.normalized())
}

func (s SagaState) normalized() SagaState {
	s.CompletedSteps = cloneIDs(s.CompletedSteps)
	s.CompensatedSteps = cloneIDs(s.CompensatedSteps)
	return s
}

// cloneIDs returns nil for empty input so states compare equal after a JSON round trip.
func cloneIDs(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	return slices.Clone(ids)
}
