package reactive

import (
	"testing"
	"time"
)

type recordingObserver struct {
	NopObserver
	created, runs, stopped int
	panics                 int
	tracked                []string
	triggered              []int
}

func (o *recordingObserver) EffectCreated(*Effect) { o.created++ }

func (o *recordingObserver) EffectRun(_ *Effect, _ time.Duration, panicked bool) {
	o.runs++
	if panicked {
		o.panics++
	}
}

func (o *recordingObserver) EffectStopped(*Effect) { o.stopped++ }

func (o *recordingObserver) Tracked(_ *Effect, _ any, key string) {
	o.tracked = append(o.tracked, key)
}

func (o *recordingObserver) Triggered(_ any, _ string, n int) {
	o.triggered = append(o.triggered, n)
}

func TestObserverEvents(t *testing.T) {
	rec := &recordingObserver{}
	rt := NewRuntime(WithObserver(rec))
	state := rt.Reactive(map[string]any{"a": 1}).(*Object)

	e := rt.CreateEffect(func() {
		state.Get("a")
		state.Get("a")
	})
	state.Set("a", 2)
	e.Stop()

	if rec.created != 1 {
		t.Errorf("expected 1 created, got %d", rec.created)
	}
	if rec.runs != 2 {
		t.Errorf("expected 2 runs, got %d", rec.runs)
	}
	if rec.stopped != 1 {
		t.Errorf("expected 1 stopped, got %d", rec.stopped)
	}
	// One Tracked per run, not per read.
	if len(rec.tracked) != 2 {
		t.Errorf("expected 2 tracked events, got %v", rec.tracked)
	}
	if len(rec.triggered) != 1 || rec.triggered[0] != 1 {
		t.Errorf("expected one trigger with 1 subscriber, got %v", rec.triggered)
	}
}

func TestObserverSeesPanickedRun(t *testing.T) {
	rec := &recordingObserver{}
	rt := NewRuntime(WithObserver(rec))

	func() {
		defer func() { recover() }()
		rt.CreateEffect(func() { panic("boom") })
	}()

	if rec.panics != 1 {
		t.Errorf("expected 1 panicked run, got %d", rec.panics)
	}
}

func TestObservers(t *testing.T) {
	if _, ok := Observers().(NopObserver); !ok {
		t.Errorf("expected NopObserver for no observers")
	}
	a := &recordingObserver{}
	if Observers(nil, a) != Observer(a) {
		t.Errorf("expected single observer returned as is")
	}

	b := &recordingObserver{}
	rt := NewRuntime(WithObserver(Observers(a, b)))
	rt.CreateEffect(func() {})
	if a.created != 1 || b.created != 1 {
		t.Errorf("expected fan-out, got a=%d b=%d", a.created, b.created)
	}
}
