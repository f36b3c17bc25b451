package domain

import (
	"fmt"
	"slices"
	"sort"

	"github.com/aretw0/sagaflow/pkg/fsm"
)

// NextState computes the single legal target for applying in to a saga in state current.
//
// Errors:
//   - ErrInvalidTransition when the pair is not in the table or dependencies are unmet.
//   - ErrStepNotFound when the input names an undeclared step or compensation.
//   - ErrDuplicateInput when the completion was already applied.
//   - ErrNoNextStep when nothing is runnable although steps remain.
func NextState(saga *Saga, current SagaState, in Input) (SagaState, error) {
	if current.IsTerminal() {
		return SagaState{}, rejected(current, in, "current state is terminal")
	}

	switch {
	case current.Status == StatusPending && in.Kind == InputStart:
		next, ok := NextStep(saga, nil)
		if !ok {
			return SagaState{}, fmt.Errorf("%w: saga %s has no root step", ErrNoNextStep, saga.ID)
		}
		return Running(next, nil), nil

	case current.Status == StatusRunning && in.Kind == InputStepCompleted:
		step, ok := saga.Step(in.StepID)
		if !ok {
			return SagaState{}, fmt.Errorf("%w: %s", ErrStepNotFound, in.StepID)
		}
		if slices.Contains(current.CompletedSteps, in.StepID) {
			return SagaState{}, fmt.Errorf("%w: step %s already completed", ErrDuplicateInput, in.StepID)
		}
		for _, dep := range step.DependsOn {
			if !slices.Contains(current.CompletedSteps, dep) {
				return SagaState{}, rejected(current, in, fmt.Sprintf("step %s depends on %s", in.StepID, dep))
			}
		}
		completed := append(cloneIDs(current.CompletedSteps), in.StepID)
		if len(completed) == len(saga.Steps) {
			return Completed(), nil
		}
		next, ok := NextStep(saga, completed)
		if !ok {
			return SagaState{}, fmt.Errorf("%w: saga %s after %s", ErrNoNextStep, saga.ID, in.StepID)
		}
		return Running(next, completed), nil

	case current.Status == StatusRunning && in.Kind == InputStepFailed:
		if _, ok := saga.Step(in.StepID); !ok {
			return SagaState{}, fmt.Errorf("%w: %s", ErrStepNotFound, in.StepID)
		}
		if slices.Contains(current.CompletedSteps, in.StepID) {
			return SagaState{}, rejected(current, in, fmt.Sprintf("step %s already completed", in.StepID))
		}
		order := CompensationOrder(saga)
		if len(order) == 0 {
			return Compensated(), nil
		}
		return Compensating(in.StepID, nil, order[0]), nil

	case current.Status == StatusCompensating && in.Kind == InputCompensationCompleted:
		if _, ok := saga.Compensations[in.StepID]; !ok {
			return SagaState{}, fmt.Errorf("%w: no compensation registered for %s", ErrStepNotFound, in.StepID)
		}
		if slices.Contains(current.CompensatedSteps, in.StepID) {
			return SagaState{}, fmt.Errorf("%w: step %s already compensated", ErrDuplicateInput, in.StepID)
		}
		compensated := append(cloneIDs(current.CompensatedSteps), in.StepID)
		if len(compensated) == len(saga.Compensations) {
			return Compensated(), nil
		}
		var next string
		for _, id := range CompensationOrder(saga) {
			if !slices.Contains(compensated, id) {
				next = id
				break
			}
		}
		return Compensating(current.FailedStep, compensated, next), nil

	case current.Status == StatusCompensating && in.Kind == InputCompensationFailed:
		if in.StepID != "" {
			if _, ok := saga.Compensations[in.StepID]; !ok {
				return SagaState{}, fmt.Errorf("%w: no compensation registered for %s", ErrStepNotFound, in.StepID)
			}
		}
		return Failed(in.Error), nil
	}

	return SagaState{}, rejected(current, in, fmt.Sprintf("input %s not accepted", in.Kind))
}

// NextStep returns the first declared step that is not completed and whose
// dependencies are all completed.
func NextStep(saga *Saga, completed []string) (string, bool) {
	for _, step := range saga.Steps {
		if slices.Contains(completed, step.ID) {
			continue
		}
		ready := true
		for _, dep := range step.DependsOn {
			if !slices.Contains(completed, dep) {
				ready = false
				break
			}
		}
		if ready {
			return step.ID, true
		}
	}
	return "", false
}

// ReadySteps returns every pending step whose dependencies are completed, in declared order.
func ReadySteps(saga *Saga, completed []string) []string {
	var out []string
	for _, step := range saga.Steps {
		if slices.Contains(completed, step.ID) {
			continue
		}
		ready := true
		for _, dep := range step.DependsOn {
			if !slices.Contains(completed, dep) {
				ready = false
				break
			}
		}
		if ready {
			out = append(out, step.ID)
		}
	}
	return out
}

// CompensationOrder lists registered compensations in reverse declared step order.
// Keys that match no step come last, sorted.
func CompensationOrder(saga *Saga) []string {
	if len(saga.Compensations) == 0 {
		return nil
	}
	order := make([]string, 0, len(saga.Compensations))
	for i := len(saga.Steps) - 1; i >= 0; i-- {
		if _, ok := saga.Compensations[saga.Steps[i].ID]; ok {
			order = append(order, saga.Steps[i].ID)
		}
	}
	var extra []string
	for id := range saga.Compensations {
		if _, ok := saga.Step(id); !ok {
			extra = append(extra, id)
		}
	}
	sort.Strings(extra)
	return append(order, extra...)
}

// SagaGuard returns a guard that only admits the target NextState computes.
func SagaGuard(saga *Saga) fsm.Guard[SagaState, Input] {
	return func(from, to SagaState, in Input) error {
		want, err := NextState(saga, from, in)
		if err != nil {
			return err
		}
		if !want.Equal(to) {
			return fmt.Errorf("expected %s", describe(want))
		}
		return nil
	}
}

// NewMachine creates a machine for saga, positioned at its current state and guarded by SagaGuard.
func NewMachine(saga *Saga, opts ...fsm.Option) *Machine {
	m := fsm.NewMealyMachine[SagaState, Input, Output](saga.State, saga.ID, opts...)
	m.SetGuard(SagaGuard(saga))
	return m
}

func rejected(from SagaState, in Input, reason string) error {
	return &fsm.InvalidTransitionError{From: from.Name(), Reason: fmt.Sprintf("%s: %s", in, reason)}
}

func describe(s SagaState) string {
	switch s.Status {
	case StatusRunning:
		return fmt.Sprintf("Running(current=%s, completed=%v)", s.CurrentStep, s.CompletedSteps)
	case StatusCompensating:
		return fmt.Sprintf("Compensating(failed=%s, compensated=%v, next=%s)",
			s.FailedStep, s.CompensatedSteps, s.CurrentCompensation)
	}
	return s.Name()
}
