/*
Package fsm provides generic finite state machines used to enforce valid state changes
on aggregates.

Two flavours are available:

  - MooreMachine: the output of a transition is a function of the target state alone.
  - MealyMachine: the output is a function of the (current, target, input) triple.

Both machines own their current state and an append-only transition history. Every
recorded Transition carries a unique id and a UTC timestamp. Outputs are required to be
pure values so that a history can be replayed deterministically (see MealyMachine.Replay).

Machines are not safe for concurrent use; callers serialize access per aggregate.
*/
package fsm
