package fsm

// State is implemented by every value used as a machine state.
type State interface {
	// Name returns a stable, human readable label used in errors and logs.
	Name() string
	// IsTerminal reports whether the state accepts no further transitions.
	IsTerminal() bool
}

// MooreState describes a state whose transition output depends only on the state being entered.
type MooreState[S any, O any] interface {
	State

	// CanTransitionTo reports whether moving to target is allowed.
	CanTransitionTo(target S) bool

	// ValidTransitions lists every state reachable in one step.
	ValidTransitions() []S

	// EntryOutput is the output produced when this state is entered.
	EntryOutput() O
}

// MealyState describes a state whose transition output depends on the current state,
// the target and the input that triggered the move.
type MealyState[S any, I any, O any] interface {
	State

	// CanTransitionTo reports whether moving to target is allowed for input.
	CanTransitionTo(target S, input I) bool

	// ValidTransitions lists the states reachable in one step for input.
	ValidTransitions(input I) []S

	// TransitionOutput computes the output of moving to target with input.
	TransitionOutput(target S, input I) O
}

// Transient can be embedded by states that are never terminal.
type Transient struct{}

// IsTerminal always returns false.
func (Transient) IsTerminal() bool { return false }
