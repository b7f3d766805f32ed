package reactive

import "time"

// Observer receives engine events. Calls are made synchronously on the
// runtime's goroutine, so implementations must be fast and must not call
// back into the runtime.
type Observer interface {
	// EffectCreated is called when an effect is constructed.
	EffectCreated(e *Effect)

	// EffectRun is called after every tracked run, including runs whose
	// body panicked.
	EffectRun(e *Effect, d time.Duration, panicked bool)

	// EffectStopped is called once when an effect is stopped.
	EffectStopped(e *Effect)

	// Tracked is called when a run links e to target[key] for the first
	// time in that run. For refs and computeds target is the cell.
	Tracked(e *Effect, target any, key string)

	// Triggered is called when target[key] notifies its subscribers.
	Triggered(target any, key string, subscribers int)
}

// NopObserver ignores all events. Embed it to implement a subset of
// Observer.
type NopObserver struct{}

func (NopObserver) EffectCreated(*Effect)                   {}
func (NopObserver) EffectRun(*Effect, time.Duration, bool)  {}
func (NopObserver) EffectStopped(*Effect)                   {}
func (NopObserver) Tracked(*Effect, any, string)            {}
func (NopObserver) Triggered(any, string, int)              {}

// MultiObserver fans events out to several observers in order.
type MultiObserver []Observer

func (m MultiObserver) EffectCreated(e *Effect) {
	for _, o := range m {
		o.EffectCreated(e)
	}
}

func (m MultiObserver) EffectRun(e *Effect, d time.Duration, panicked bool) {
	for _, o := range m {
		o.EffectRun(e, d, panicked)
	}
}

func (m MultiObserver) EffectStopped(e *Effect) {
	for _, o := range m {
		o.EffectStopped(e)
	}
}

func (m MultiObserver) Tracked(e *Effect, target any, key string) {
	for _, o := range m {
		o.Tracked(e, target, key)
	}
}

func (m MultiObserver) Triggered(target any, key string, subscribers int) {
	for _, o := range m {
		o.Triggered(target, key, subscribers)
	}
}

// Observers combines observers, skipping nils.
func Observers(obs ...Observer) Observer {
	var m MultiObserver
	for _, o := range obs {
		if o != nil {
			m = append(m, o)
		}
	}
	switch len(m) {
	case 0:
		return NopObserver{}
	case 1:
		return m[0]
	}
	return m
}
