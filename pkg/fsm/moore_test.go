package fsm_test

import (
	"testing"
	"time"

	"github.com/aretw0/sagaflow/pkg/fsm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type documentState string

const (
	draft       documentState = "Draft"
	underReview documentState = "UnderReview"
	approved    documentState = "Approved"
	published   documentState = "Published"
	archived    documentState = "Archived"
)

var documentTransitions = map[documentState][]documentState{
	draft:       {underReview},
	underReview: {draft, approved},
	approved:    {published, underReview},
	published:   {archived},
	archived:    {},
}

func (s documentState) Name() string { return string(s) }
func (s documentState) IsTerminal() bool { return s == archived }

func (s documentState) CanTransitionTo(target documentState) bool {
	for _, t := range documentTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

func (s documentState) ValidTransitions() []documentState {
	return documentTransitions[s]
}

func (s documentState) EntryOutput() string {
	return "entered " + string(s)
}

func TestMooreMachine_DocumentLifecycle(t *testing.T) {
	m := fsm.NewMooreMachine[documentState, string](draft, "doc-1")

	_, err := m.TransitionTo(underReview)
	require.NoError(t, err)
	assert.Equal(t, underReview, m.CurrentState())

	_, err = m.TransitionTo(published)
	assert.ErrorIs(t, err, fsm.ErrInvalidTransition)
	assert.Equal(t, underReview, m.CurrentState(), "rejected transition must not move the machine")

	for _, next := range []documentState{approved, published, archived} {
		_, err := m.TransitionTo(next)
		require.NoError(t, err)
	}

	_, err = m.TransitionTo(draft)
	var invalidErr *fsm.InvalidTransitionError
	require.ErrorAs(t, err, &invalidErr)
	assert.Equal(t, "Archived", invalidErr.From)
	assert.Equal(t, "Draft", invalidErr.To)

	assert.Len(t, m.History(), 4)
	assert.Empty(t, m.ValidNextStates())
	assert.True(t, m.IsInState(archived))
	assert.Equal(t, "doc-1", m.AggregateID())
}

func TestMooreMachine_EntryOutputAndTimestamps(t *testing.T) {
	loc := time.FixedZone("UTC-3", -3*60*60)
	fixed := time.Date(2025, 3, 1, 9, 0, 0, 0, loc)
	ids := 0

	m := fsm.NewMooreMachine[documentState, string](draft, "doc-2",
		fsm.WithClock(func() time.Time { return fixed }),
		fsm.WithIDGenerator(func() string { ids++; return "t-" + string(rune('0'+ids)) }),
	)

	tr, err := m.TransitionTo(underReview)
	require.NoError(t, err)

	assert.Equal(t, "entered UnderReview", tr.Output)
	assert.Equal(t, "t-1", tr.ID)
	assert.Equal(t, time.UTC, tr.Timestamp.Location())
	assert.True(t, tr.Timestamp.Equal(fixed))
	assert.Nil(t, tr.Input)
	assert.Equal(t, draft, tr.From)
	assert.Equal(t, underReview, tr.To)
}

func TestMooreMachine_HistoryIsACopy(t *testing.T) {
	m := fsm.NewMooreMachine[documentState, string](draft, "doc-3")
	_, err := m.TransitionTo(underReview)
	require.NoError(t, err)

	h := m.History()
	h[0].To = archived

	assert.Equal(t, underReview, m.History()[0].To)
}

func TestMooreMachine_TerminalStatesHaveNoTransitions(t *testing.T) {
	for state := range documentTransitions {
		if state.IsTerminal() {
			assert.Empty(t, state.ValidTransitions(), "terminal state %s", state)
		}
	}
}
