/*
Package ports defines the driven ports (interfaces) for the sagaflow engine.

These interfaces decouple the orchestration core from the outside world: where commands
go, where events are published, where read-model snapshots live and how sagas are
created from business events.

# Key Interfaces

  - CommandBus: Delivers step and compensation commands to the owning domain.
  - EventSink: Receives every saga event after the transition is applied.
  - SnapshotStore: Holds a read-model copy of each saga. It is never read back for recovery.
  - DistributedLocker: Serializes transitions of one saga across replicas.
  - SagaDefinition: Builds sagas of one type and maps domain events onto inputs.
  - ProcessPolicy: Decides whether a domain event starts a new saga.
  - Engine: The surface adapters (HTTP, CLI) drive.
*/
package ports
