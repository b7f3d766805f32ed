// Package inspector serves a live view of a reactive runtime over HTTP.
//
// An Inspector is a reactive.Observer. Install it on a runtime and every
// effect and registry event is appended to a bounded ring buffer and pushed
// to connected WebSocket clients. Dependency graph snapshots are published
// explicitly with Publish, typically from the goroutine that owns the
// runtime:
//
//	ins := inspector.New(inspector.WithGatherer(registry))
//	rt := reactive.NewRuntime(reactive.WithObserver(ins))
//	go ins.ListenAndServe(ctx, "localhost:7070")
//	...
//	ins.Publish(rt.Snapshot())
//
// Routes:
//
//	GET /healthz        liveness check
//	GET /graph          latest published graph snapshot
//	GET /events?limit=n most recent events, oldest first
//	GET /metrics        Prometheus exposition, when a gatherer is set
//	GET /ws             WebSocket stream of events and graph snapshots
//
// Each WebSocket client has its own rate limiter. Messages over the limit
// are dropped for that client only, so a slow browser never stalls the
// engine.
package inspector
