package fsm

import "reflect"

// MooreMachine tracks the state of one aggregate using Moore semantics.
type MooreMachine[S MooreState[S, O], O any] struct {
	current     S
	aggregateID string
	history     []Transition[S, NoInput, O]
	cfg         config
}

// NewMooreMachine creates a machine positioned at initial.
func NewMooreMachine[S MooreState[S, O], O any](initial S, aggregateID string, opts ...Option) *MooreMachine[S, O] {
	return &MooreMachine[S, O]{
		current:     initial,
		aggregateID: aggregateID,
		cfg:         newConfig(opts),
	}
}

// CurrentState returns the active state.
func (m *MooreMachine[S, O]) CurrentState() S {
	return m.current
}

// AggregateID returns the id of the aggregate owning this machine.
func (m *MooreMachine[S, O]) AggregateID() string {
	return m.aggregateID
}

// TransitionTo moves the machine to target and records the transition.
func (m *MooreMachine[S, O]) TransitionTo(target S) (Transition[S, NoInput, O], error) {
	if m.current.IsTerminal() {
		return Transition[S, NoInput, O]{}, invalid(m.current, target, "current state is terminal")
	}
	if !m.current.CanTransitionTo(target) {
		return Transition[S, NoInput, O]{}, invalid(m.current, target, "")
	}

	t := Transition[S, NoInput, O]{
		ID:        m.cfg.newID(),
		Timestamp: m.cfg.now().UTC(),
		From:      m.current,
		To:        target,
		Output:    target.EntryOutput(),
	}
	m.history = append(m.history, t)
	m.current = target
	return t, nil
}

// History returns a copy of the recorded transitions, oldest first.
func (m *MooreMachine[S, O]) History() []Transition[S, NoInput, O] {
	out := make([]Transition[S, NoInput, O], len(m.history))
	copy(out, m.history)
	return out
}

// IsInState reports whether the current state equals s.
func (m *MooreMachine[S, O]) IsInState(s S) bool {
	return reflect.DeepEqual(m.current, s)
}

// ValidNextStates lists the states reachable from the current one.
func (m *MooreMachine[S, O]) ValidNextStates() []S {
	if m.current.IsTerminal() {
		return nil
	}
	return m.current.ValidTransitions()
}
