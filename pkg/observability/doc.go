/*
Package observability exposes orchestrator activity as Prometheus metrics.

Metrics are collected through domain.LifecycleHooks, so they attach to an orchestrator
like any other hook:

	m := observability.New()
	orch := runtime.New(runtime.WithLifecycleHooks(m.Hooks()))
	http.Handle("/metrics", m.Handler())
*/
package observability
