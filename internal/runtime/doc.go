// Package runtime hosts the Orchestrator, which owns every live saga and its machine.
//
// Each saga has its own lock, so unrelated sagas never contend. Transitions are applied,
// published and snapshotted under that lock; the resulting commands are sent to the
// command bus after it is released, and their outcomes come back as new inputs.
package runtime
