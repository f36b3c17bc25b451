package fsm_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/aretw0/sagaflow/pkg/fsm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// turnstile is a coin-operated gate that breaks after a configurable number of pushes.
type turnstile struct {
	Locked bool
	Broken bool
	Pushes int
}

type gateInput string

const (
	coin gateInput = "coin"
	push gateInput = "push"
	kick gateInput = "kick"
)

func (s turnstile) Name() string {
	switch {
	case s.Broken:
		return "Broken"
	case s.Locked:
		return "Locked"
	default:
		return "Unlocked"
	}
}

func (s turnstile) IsTerminal() bool { return s.Broken }

func (s turnstile) ValidTransitions(in gateInput) []turnstile {
	if s.Broken {
		return nil
	}
	switch in {
	case coin:
		if s.Locked {
			return []turnstile{{Locked: false, Pushes: s.Pushes}}
		}
	case push:
		if !s.Locked {
			return []turnstile{{Locked: true, Pushes: s.Pushes + 1}}
		}
	case kick:
		return []turnstile{{Locked: s.Locked, Broken: true, Pushes: s.Pushes}}
	}
	return nil
}

func (s turnstile) CanTransitionTo(target turnstile, in gateInput) bool {
	for _, v := range s.ValidTransitions(in) {
		if v == target {
			return true
		}
	}
	return false
}

func (s turnstile) TransitionOutput(target turnstile, in gateInput) []string {
	return []string{fmt.Sprintf("%s --%s--> %s", s.Name(), in, target.Name())}
}

type gate = fsm.MealyMachine[turnstile, gateInput, []string]

func newGate() *gate {
	return fsm.NewMealyMachine[turnstile, gateInput, []string](turnstile{Locked: true}, "gate-1")
}

func TestMealyMachine_Transitions(t *testing.T) {
	m := newGate()

	tr, err := m.TransitionTo(turnstile{Locked: false}, coin)
	require.NoError(t, err)
	assert.Equal(t, []string{"Locked --coin--> Unlocked"}, tr.Output)
	require.NotNil(t, tr.Input)
	assert.Equal(t, coin, *tr.Input)

	_, err = m.TransitionTo(turnstile{Locked: true, Pushes: 1}, push)
	require.NoError(t, err)
	assert.True(t, m.IsInState(turnstile{Locked: true, Pushes: 1}))
	assert.Len(t, m.History(), 2)
}

func TestMealyMachine_RejectsPairsOutsideTheTable(t *testing.T) {
	m := newGate()
	before := m.CurrentState()

	cases := []struct {
		target turnstile
		input  gateInput
	}{
		{turnstile{Locked: true, Pushes: 1}, push},
		{turnstile{Locked: false}, push},
		{turnstile{Locked: true}, coin},
	}
	for _, c := range cases {
		_, err := m.TransitionTo(c.target, c.input)
		assert.ErrorIs(t, err, fsm.ErrInvalidTransition, "%v/%s", c.target, c.input)
		assert.Equal(t, before, m.CurrentState())
	}
	assert.Empty(t, m.History())
}

func TestMealyMachine_TerminalStateRejectsEverything(t *testing.T) {
	m := newGate()
	_, err := m.TransitionTo(turnstile{Locked: true, Broken: true}, kick)
	require.NoError(t, err)

	for _, in := range []gateInput{coin, push, kick} {
		assert.Empty(t, m.ValidNextStates(in))
		_, err := m.TransitionTo(turnstile{Locked: false}, in)
		assert.ErrorIs(t, err, fsm.ErrInvalidTransition)
	}
}

func TestMealyMachine_Guard(t *testing.T) {
	m := newGate()
	errTooMany := errors.New("push limit reached")
	m.SetGuard(func(from, to turnstile, in gateInput) error {
		if to.Pushes > 1 {
			return errTooMany
		}
		return nil
	})

	_, err := m.TransitionTo(turnstile{Locked: false}, coin)
	require.NoError(t, err)
	_, err = m.TransitionTo(turnstile{Locked: true, Pushes: 1}, push)
	require.NoError(t, err)
	_, err = m.TransitionTo(turnstile{Locked: false, Pushes: 1}, coin)
	require.NoError(t, err)

	_, err = m.TransitionTo(turnstile{Locked: true, Pushes: 2}, push)
	require.ErrorIs(t, err, fsm.ErrInvalidTransition)
	assert.Contains(t, err.Error(), "push limit reached")
	assert.Equal(t, turnstile{Locked: false, Pushes: 1}, m.CurrentState())
}

func TestMealyMachine_Replay(t *testing.T) {
	original := newGate()
	steps := []struct {
		to turnstile
		in gateInput
	}{
		{turnstile{Locked: false}, coin},
		{turnstile{Locked: true, Pushes: 1}, push},
		{turnstile{Locked: false, Pushes: 1}, coin},
	}
	for _, s := range steps {
		_, err := original.TransitionTo(s.to, s.in)
		require.NoError(t, err)
	}

	replayed := newGate()
	require.NoError(t, replayed.Replay(original.History()))
	assert.Equal(t, original.History(), replayed.History())
	assert.Equal(t, original.CurrentState(), replayed.CurrentState())

	rebuilt, err := fsm.ReplayMealy(turnstile{Locked: true}, "gate-1", original.History())
	require.NoError(t, err)
	assert.Equal(t, original.History(), rebuilt.History())
}

func TestMealyMachine_ReplayDetectsDivergence(t *testing.T) {
	original := newGate()
	_, err := original.TransitionTo(turnstile{Locked: false}, coin)
	require.NoError(t, err)

	history := original.History()
	history[0].Output = []string{"tampered"}

	err = newGate().Replay(history)
	assert.ErrorIs(t, err, fsm.ErrReplayDivergence)

	used := newGate()
	_, err = used.TransitionTo(turnstile{Locked: false}, coin)
	require.NoError(t, err)
	assert.ErrorIs(t, used.Replay(original.History()), fsm.ErrReplayDivergence)
}
