/*
Package coordinator starts and routes sagas from business events.

A Coordinator holds saga definitions and maps correlation ids onto live sagas; it owns
no saga state itself, every instance lives in the runner (the orchestrator). A
ProcessManager sits in front of it and evaluates ProcessPolicies so a domain event can
start new sagas before being routed.

	orch := runtime.New(runtime.WithCommandBus(bus))
	coord := coordinator.New(orch)
	_ = coord.Register(def)
	pm := coordinator.NewProcessManager(coord)
	pm.RegisterPolicy(policy)
	_, err := pm.HandleEvent(ctx, event)
*/
package coordinator
