// Package reactive provides fine-grained dependency tracking and effect
// scheduling.
//
// State is held in observable containers. While an Effect runs, every
// tracked read links the effect to the property that was read; a later
// write to that property invokes the effect's scheduler. Dependencies are
// discovered dynamically on every run, so an effect that stops reading a
// property also stops being notified about it.
//
// # Core Types
//
// Object wraps a composite value (map, slice or struct pointer) and tracks
// reads and writes through Get and Set:
//
//	state := reactive.Reactive(map[string]any{"count": 0}).(*reactive.Object)
//	reactive.CreateEffect(func() {
//	    fmt.Println("count is", state.Get("count"))
//	})
//	state.Set("count", 1) // prints "count is 1"
//
// Ref is a single reactive slot:
//
//	n := reactive.NewRef(0)
//	n.Set(n.Get() + 1)
//
// Computed is a lazily evaluated derived value. It recomputes only when it is
// read after one of its dependencies changed:
//
//	doubled := reactive.NewComputed(func(prev int) int { return n.Get() * 2 })
//
// Watch observes a source and calls back with the new and old values:
//
//	stop := reactive.Watch(state, func(newValue, oldValue any, onCleanup func(func())) {
//	    fmt.Println("state changed")
//	}, reactive.Deep())
//	defer stop()
//
// # Schedulers
//
// An effect never re-runs itself. Writes call the effect's scheduler, and
// the scheduler decides what to do: re-run immediately (the CreateEffect
// default), mark something stale (Computed), or enqueue a job for a later
// flush (see package scheduler).
//
// # Runtimes and Goroutines
//
// All tracking state lives in a Runtime. A Runtime is single-threaded and
// must only be used from one goroutine at a time. Package-level functions
// use the calling goroutine's default runtime; values remember the runtime
// they were created in.
package reactive
