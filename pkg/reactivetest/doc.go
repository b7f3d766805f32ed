// Package reactivetest provides testing helpers for code built on the
// reactive engine.
//
// The package reduces boilerplate when asserting on effect runs and the
// dependency graph by providing a fluent runtime builder, a recording
// observer and graph assertions.
//
// # Quick Start
//
//	func TestBadge(t *testing.T) {
//	    env := reactivetest.NewEnv(t).Build()
//	    cart := env.Runtime.Reactive(map[string]any{"n": 0}).(*reactive.Object)
//	    env.Runtime.CreateEffect(func() { cart.Get("n") }, reactive.EffectName("badge"))
//
//	    cart.Set("n", 1)
//	    reactivetest.ExpectRuns(t, env.Recorder, "badge", 2)
//	    reactivetest.ExpectSubscribers(t, env.Runtime, cart, "n", 1)
//	}
//
// # Leak Checks
//
// A builder created with ExpectNoLeaks fails the test at cleanup if any
// target still has subscribers:
//
//	env := reactivetest.NewEnv(t).ExpectNoLeaks().Build()
package reactivetest
