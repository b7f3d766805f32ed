package reactive

import (
	"runtime"
	"sync"
)

// trackingContexts stores the default Runtime for each goroutine.
var trackingContexts sync.Map

// getGoroutineID returns a unique identifier for the current goroutine.
// This uses the runtime stack to extract the goroutine ID.
func getGoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)

	// The stack starts with "goroutine <id> "
	var id uint64
	for i := 10; i < n; i++ { // Skip "goroutine "
		if buf[i] == ' ' {
			break
		}
		id = id*10 + uint64(buf[i]-'0')
	}
	return id
}

// Default returns the runtime bound to the calling goroutine, creating one
// on first use.
func Default() *Runtime {
	gid := getGoroutineID()

	if rt, ok := trackingContexts.Load(gid); ok {
		return rt.(*Runtime)
	}

	rt := NewRuntime()
	trackingContexts.Store(gid, rt)
	return rt
}

// setDefault binds rt to the calling goroutine and returns the previous
// binding. A nil rt removes the binding.
func setDefault(rt *Runtime) *Runtime {
	gid := getGoroutineID()

	var old *Runtime
	if v, ok := trackingContexts.Load(gid); ok {
		old = v.(*Runtime)
	}
	if rt == nil {
		trackingContexts.Delete(gid)
	} else {
		trackingContexts.Store(gid, rt)
	}
	return old
}

// WithRuntime runs fn with rt as the calling goroutine's default runtime.
// Package-level constructors called inside fn create values in rt.
//
// Example:
//
//	rt := reactive.NewRuntime(reactive.WithObserver(metrics))
//	reactive.WithRuntime(rt, func() {
//	    count := reactive.NewRef(0)
//	    reactive.CreateEffect(func() { fmt.Println(count.Get()) })
//	})
func WithRuntime(rt *Runtime, fn func()) {
	old := setDefault(rt)
	defer setDefault(old)
	fn()
}

// ReleaseGoroutine drops the default runtime bound to the calling goroutine.
// Long-lived worker goroutines that used package-level functions should call
// it before exiting.
func ReleaseGoroutine() {
	trackingContexts.Delete(getGoroutineID())
}

// ActiveEffect returns the effect currently tracking reads in the calling
// goroutine's default runtime, or nil.
func ActiveEffect() *Effect {
	return Default().ActiveEffect()
}

// Untracked runs fn in the default runtime with tracking paused.
func Untracked(fn func()) {
	Default().Untracked(fn)
}
