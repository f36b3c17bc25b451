package domain

import (
	"encoding/json"
	"fmt"
)

// InputKind names the kind of input driving a saga.
type InputKind string

const (
	InputStart                 InputKind = "start"
	InputStepCompleted         InputKind = "step_completed"
	InputStepFailed            InputKind = "step_failed"
	InputCompensationCompleted InputKind = "compensation_completed"
	InputCompensationFailed    InputKind = "compensation_failed"
)

// Input is a message driving a saga transition.
type Input struct {
	Kind   InputKind       `json:"kind"`
	StepID string          `json:"step_id,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

func StartInput() Input {
	return Input{Kind: InputStart}
}

func StepCompletedInput(stepID string, result json.RawMessage) Input {
	return Input{Kind: InputStepCompleted, StepID: stepID, Result: result}
}

func StepFailedInput(stepID, err string) Input {
	return Input{Kind: InputStepFailed, StepID: stepID, Error: err}
}

func CompensationCompletedInput(stepID string) Input {
	return Input{Kind: InputCompensationCompleted, StepID: stepID}
}

func CompensationFailedInput(stepID, err string) Input {
	return Input{Kind: InputCompensationFailed, StepID: stepID, Error: err}
}

// Validate checks that the input carries the fields its kind requires.
func (in Input) Validate() error {
	switch in.Kind {
	case InputStart:
		return nil
	case InputStepCompleted, InputStepFailed, InputCompensationCompleted, InputCompensationFailed:
		if in.StepID == "" {
			return fmt.Errorf("input %s requires a step id", in.Kind)
		}
		return nil
	}
	return fmt.Errorf("unknown input kind %q", in.Kind)
}

func (in Input) String() string {
	switch in.Kind {
	case InputStart:
		return "Start saga"
	case InputStepCompleted:
		return fmt.Sprintf("Step %s completed", in.StepID)
	case InputStepFailed:
		return fmt.Sprintf("Step %s failed: %s", in.StepID, in.Error)
	case InputCompensationCompleted:
		return fmt.Sprintf("Compensation for %s completed", in.StepID)
	case InputCompensationFailed:
		return fmt.Sprintf("Compensation for %s failed: %s", in.StepID, in.Error)
	}
	return string(in.Kind)
}
