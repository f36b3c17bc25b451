package fsm

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTransition is matched by every rejected transition.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrReplayDivergence is returned when replaying a history does not reproduce it.
	ErrReplayDivergence = errors.New("replay diverged from recorded history")
)

// InvalidTransitionError describes a rejected transition.
type InvalidTransitionError struct {
	From   string
	To     string
	Reason string
}

func (e *InvalidTransitionError) Error() string {
	if e.To == "" {
		return fmt.Sprintf("invalid state transition from %s: %s", e.From, e.Reason)
	}
	if e.Reason != "" {
		return fmt.Sprintf("invalid state transition from %s to %s: %s", e.From, e.To, e.Reason)
	}
	return fmt.Sprintf("invalid state transition from %s to %s", e.From, e.To)
}

// Unwrap lets errors.Is match ErrInvalidTransition.
func (e *InvalidTransitionError) Unwrap() error {
	return ErrInvalidTransition
}

func invalid(from, to State, reason string) error {
	return &InvalidTransitionError{From: from.Name(), To: to.Name(), Reason: reason}
}
