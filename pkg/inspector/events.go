package inspector

import (
	"fmt"
	"time"

	"github.com/vango-dev/reactor/pkg/reactive"
)

// EventKind identifies an engine event.
type EventKind string

const (
	EventCreated   EventKind = "created"
	EventRun       EventKind = "run"
	EventStopped   EventKind = "stopped"
	EventTracked   EventKind = "tracked"
	EventTriggered EventKind = "triggered"
)

// Event is one engine event as recorded by the inspector.
type Event struct {
	Seq         uint64        `json:"seq"`
	Time        time.Time     `json:"time"`
	Kind        EventKind     `json:"kind"`
	Effect      string        `json:"effect,omitempty"`
	EffectID    uint64        `json:"effectId,omitempty"`
	Target      string        `json:"target,omitempty"`
	Key         string        `json:"key,omitempty"`
	Subscribers int           `json:"subscribers,omitempty"`
	Duration    time.Duration `json:"duration,omitempty"`
	Panicked    bool          `json:"panicked,omitempty"`
}

// ring is a fixed-size event buffer.
type ring struct {
	buf  []Event
	next int
	full bool
}

func newRing(size int) *ring {
	if size < 1 {
		size = 1
	}
	return &ring{buf: make([]Event, size)}
}

func (r *ring) add(ev Event) {
	r.buf[r.next] = ev
	r.next++
	if r.next == len(r.buf) {
		r.next = 0
		r.full = true
	}
}

func (r *ring) len() int {
	if r.full {
		return len(r.buf)
	}
	return r.next
}

// last returns up to n most recent events, oldest first.
func (r *ring) last(n int) []Event {
	size := r.len()
	if n <= 0 || n > size {
		n = size
	}
	out := make([]Event, 0, n)
	start := r.next - n
	if start < 0 {
		start += len(r.buf)
	}
	for i := 0; i < n; i++ {
		out = append(out, r.buf[(start+i)%len(r.buf)])
	}
	return out
}

// EffectCreated implements reactive.Observer.
func (ins *Inspector) EffectCreated(e *reactive.Effect) {
	ins.record(Event{Kind: EventCreated, Effect: e.Name(), EffectID: e.ID()})
}

// EffectRun implements reactive.Observer.
func (ins *Inspector) EffectRun(e *reactive.Effect, d time.Duration, panicked bool) {
	ins.record(Event{
		Kind:     EventRun,
		Effect:   e.Name(),
		EffectID: e.ID(),
		Duration: d,
		Panicked: panicked,
	})
}

// EffectStopped implements reactive.Observer.
func (ins *Inspector) EffectStopped(e *reactive.Effect) {
	ins.record(Event{Kind: EventStopped, Effect: e.Name(), EffectID: e.ID()})
}

// Tracked implements reactive.Observer.
func (ins *Inspector) Tracked(e *reactive.Effect, target any, key string) {
	if !ins.config.TrackEvents {
		return
	}
	ins.record(Event{
		Kind:     EventTracked,
		Effect:   e.Name(),
		EffectID: e.ID(),
		Target:   fmt.Sprintf("%T", target),
		Key:      key,
	})
}

// Triggered implements reactive.Observer.
func (ins *Inspector) Triggered(target any, key string, subscribers int) {
	ins.record(Event{
		Kind:        EventTriggered,
		Target:      fmt.Sprintf("%T", target),
		Key:         key,
		Subscribers: subscribers,
	})
}

var _ reactive.Observer = (*Inspector)(nil)
