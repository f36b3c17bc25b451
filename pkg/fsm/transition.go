package fsm

import "time"

// NoInput is the input type recorded by Moore machines.
type NoInput struct{}

// Transition is the immutable record of one state change.
type Transition[S any, I any, O any] struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	From      S         `json:"from"`
	To        S         `json:"to"`
	Input     *I        `json:"input,omitempty"`
	Output    O         `json:"output"`
}

// Guard is an extra precondition evaluated after CanTransitionTo.
// Returning a non-nil error rejects the transition.
type Guard[S any, I any] func(from, to S, input I) error
