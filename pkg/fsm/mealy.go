package fsm

import (
	"fmt"
	"reflect"
)

// MealyMachine tracks the state of one aggregate using Mealy semantics.
type MealyMachine[S MealyState[S, I, O], I any, O any] struct {
	current     S
	aggregateID string
	history     []Transition[S, I, O]
	guard       Guard[S, I]
	cfg         config
}

// NewMealyMachine creates a machine positioned at initial.
func NewMealyMachine[S MealyState[S, I, O], I any, O any](initial S, aggregateID string, opts ...Option) *MealyMachine[S, I, O] {
	return &MealyMachine[S, I, O]{
		current:     initial,
		aggregateID: aggregateID,
		cfg:         newConfig(opts),
	}
}

// SetGuard installs a precondition evaluated on every transition.
func (m *MealyMachine[S, I, O]) SetGuard(g Guard[S, I]) {
	m.guard = g
}

// CurrentState returns the active state.
func (m *MealyMachine[S, I, O]) CurrentState() S {
	return m.current
}

// AggregateID returns the id of the aggregate owning this machine.
func (m *MealyMachine[S, I, O]) AggregateID() string {
	return m.aggregateID
}

// CanTransition reports whether TransitionTo(target, input) would succeed.
func (m *MealyMachine[S, I, O]) CanTransition(target S, input I) error {
	if m.current.IsTerminal() {
		return invalid(m.current, target, "current state is terminal")
	}
	if !m.current.CanTransitionTo(target, input) {
		return invalid(m.current, target, "")
	}
	if m.guard != nil {
		if err := m.guard(m.current, target, input); err != nil {
			return invalid(m.current, target, err.Error())
		}
	}
	return nil
}

// TransitionTo moves the machine to target for input and records the transition.
// On error the machine is left untouched.
func (m *MealyMachine[S, I, O]) TransitionTo(target S, input I) (Transition[S, I, O], error) {
	if err := m.CanTransition(target, input); err != nil {
		return Transition[S, I, O]{}, err
	}

	in := input
	t := Transition[S, I, O]{
		ID:        m.cfg.newID(),
		Timestamp: m.cfg.now().UTC(),
		From:      m.current,
		To:        target,
		Input:     &in,
		Output:    m.current.TransitionOutput(target, input),
	}
	m.history = append(m.history, t)
	m.current = target
	return t, nil
}

// History returns a copy of the recorded transitions, oldest first.
func (m *MealyMachine[S, I, O]) History() []Transition[S, I, O] {
	out := make([]Transition[S, I, O], len(m.history))
	copy(out, m.history)
	return out
}

// IsInState reports whether the current state equals s.
func (m *MealyMachine[S, I, O]) IsInState(s S) bool {
	return reflect.DeepEqual(m.current, s)
}

// ValidNextStates lists the states reachable from the current one for input.
func (m *MealyMachine[S, I, O]) ValidNextStates(input I) []S {
	if m.current.IsTerminal() {
		return nil
	}
	return m.current.ValidTransitions(input)
}

// Replay re-applies a recorded history onto a fresh machine.
// Each recorded input must drive the machine to the recorded target and produce the
// recorded output; ids and timestamps are carried over so the rebuilt history is identical.
func (m *MealyMachine[S, I, O]) Replay(history []Transition[S, I, O]) error {
	if len(m.history) != 0 {
		return fmt.Errorf("%w: machine already has %d transitions", ErrReplayDivergence, len(m.history))
	}

	for i, rec := range history {
		if rec.Input == nil {
			return fmt.Errorf("%w: transition %d has no input", ErrReplayDivergence, i)
		}
		if !reflect.DeepEqual(m.current, rec.From) {
			return fmt.Errorf("%w: transition %d starts at %s, machine is at %s",
				ErrReplayDivergence, i, rec.From.Name(), m.current.Name())
		}

		got, err := m.TransitionTo(rec.To, *rec.Input)
		if err != nil {
			return fmt.Errorf("%w: transition %d: %v", ErrReplayDivergence, i, err)
		}
		if !reflect.DeepEqual(got.Output, rec.Output) {
			return fmt.Errorf("%w: transition %d produced a different output", ErrReplayDivergence, i)
		}

		last := &m.history[len(m.history)-1]
		last.ID = rec.ID
		last.Timestamp = rec.Timestamp
	}
	return nil
}

// ReplayMealy builds a fresh machine at initial and replays history onto it.
func ReplayMealy[S MealyState[S, I, O], I any, O any](initial S, aggregateID string, history []Transition[S, I, O], opts ...Option) (*MealyMachine[S, I, O], error) {
	m := NewMealyMachine[S, I, O](initial, aggregateID, opts...)
	if err := m.Replay(history); err != nil {
		return nil, err
	}
	return m, nil
}
