package domain

import (
	"errors"

	"github.com/aretw0/sagaflow/pkg/fsm"
)

// ErrInvalidTransition is returned when a (state, input) pair is not in the transition table.
var ErrInvalidTransition = fsm.ErrInvalidTransition

// ErrSagaNotFound is returned when a saga ID cannot be found.
var ErrSagaNotFound = errors.New("saga not found")

// ErrStepNotFound is returned when an input names a step the saga does not declare.
var ErrStepNotFound = errors.New("step not found")

// ErrSagaExists is returned when a saga with the same ID is already registered.
var ErrSagaExists = errors.New("saga already exists")

// ErrNoNextStep is returned when no pending step has its dependencies satisfied.
var ErrNoNextStep = errors.New("no valid next step")

// ErrDuplicateInput is returned for a completion that was already applied.
var ErrDuplicateInput = errors.New("duplicate input")

// ErrInvalidSaga is returned when a saga definition fails validation.
var ErrInvalidSaga = errors.New("invalid saga")

// ErrDefinitionNotFound is returned when no saga definition is registered under a name.
var ErrDefinitionNotFound = errors.New("saga definition not found")

// ErrDeferred is returned by a command bus that accepted a command whose outcome
// will be reported later as an input.
var ErrDeferred = errors.New("command deferred")
