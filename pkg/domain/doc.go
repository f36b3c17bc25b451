/*
Package domain contains the saga data model and its transition rules.

A Saga is an ordered set of Steps forming a dependency graph, plus a map of
CompensationActions that undo steps when a later one fails. The lifecycle of a saga is
described by SagaState, which implements fsm.MealyState: given the current state, a
target and an Input, it decides whether the move is legal and which Output (events and
commands) it produces.

# Transition Table

	Pending      + Start                 -> Running (first root step)
	Running      + StepCompleted         -> Running | Completed
	Running      + StepFailed            -> Compensating | Compensated (nothing to undo)
	Compensating + CompensationCompleted -> Compensating | Compensated
	Compensating + CompensationFailed    -> Failed

Every other pair is rejected with ErrInvalidTransition. NextState computes the only
legal target for a saga; SagaGuard binds that computation to a machine so the count
invariants (all steps completed, all compensations run) are enforced at transition time.

Outputs never carry timestamps or random identifiers. The orchestrator stamps events
into Envelopes when publishing, which keeps transitions replayable.

This package has no I/O.
*/
package domain
