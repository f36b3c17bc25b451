/*
Package definition loads saga templates from YAML (or JSON) files.

A Template declares the steps and compensations of one saga type, which domain events
advance it and which events start it. It implements ports.SagaDefinition, and its
StartOn rules become ports.ProcessPolicy values.

	name: order-fulfillment
	correlation_key: order_id
	steps:
	  - id: reserve
	    domain: inventory
	    command_type: ReserveStock
	    retry_policy: default
	  - id: pay
	    domain: payments
	    command_type: ChargeCard
	    depends_on: [reserve]
	    timeout_ms: 5000
	compensations:
	  reserve: inventory/ReleaseStock
	events:
	  - event: StockReserved
	    input: step_completed
	    step: reserve
	  - event: PaymentDeclined
	    input: step_failed
	    step: pay
	    error_field: reason
	start_on:
	  - event: OrderPlaced
	    params: [order_id, amount]
*/
package definition
