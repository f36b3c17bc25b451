/*
Package sagaflow is a saga orchestration engine built on deterministic Mealy machines.

A saga is a sequence of steps owned by different domains. The engine sends each
step as a command, advances when the step completes, and when one fails it runs
the compensations of the steps already done in reverse order.

# Concept

Every saga is a Mealy machine: the next state and the commands to send depend on
the current state and the input (StepCompleted, StepFailed, CompensationCompleted,
CompensationFailed). Transitions are validated, recorded and replayable, so the
history alone rebuilds a saga.

The Engine wires three layers together:

  - the orchestrator drives individual sagas and dispatches their commands;
  - the coordinator registers saga types and routes domain events by correlation id;
  - the process manager starts new sagas when an event matches a policy.

Storage, command delivery and event publication are ports with in-memory and Redis adapters.

# Usage

Saga types are declared in YAML templates:

	name: order-fulfillment
	correlation_key: order_id
	steps:
	  - id: reserve
	    domain: inventory
	    command_type: ReserveStock
	  - id: charge
	    domain: payments
	    command_type: ChargeCard
	    depends_on: [reserve]
	compensations:
	  reserve: inventory/ReleaseStock

Then loaded and started:

	package main

	import (
		"context"
		"log"

		"github.com/aretw0/sagaflow"
		"github.com/aretw0/sagaflow/pkg/adapters/memory"
		"github.com/aretw0/sagaflow/pkg/ports"
	)

	func main() {
		eng := sagaflow.New(sagaflow.WithCommandBus(memory.NewBus()))
		if err := eng.LoadTemplates("./sagas"); err != nil {
			log.Fatal(err)
		}

		saga, err := eng.StartSaga(context.Background(), ports.StartRequest{
			SagaType: "order-fulfillment",
			Params:   map[string]any{"order_id": "o-1"},
		})
		if err != nil {
			log.Fatal(err)
		}
		log.Println(saga.State.Name())
	}
*/
package sagaflow
