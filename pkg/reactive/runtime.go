package reactive

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"weak"
)

// globalIDCounter is the source of unique IDs for effects.
var globalIDCounter uint64

// nextID returns the next unique effect ID.
func nextID() uint64 {
	return atomic.AddUint64(&globalIDCounter, 1)
}

// Runtime owns the dependency registry, the wrapper cache and the currently
// executing effect. It is not safe for concurrent use.
type Runtime struct {
	// activeEffect is the effect whose reads are being tracked.
	activeEffect *Effect

	// registry maps target identity to its per-key subscriber maps.
	registry map[identity]*keyMap

	// cache maps target identity to its wrapper without keeping the
	// wrapper alive. Entries are evicted by a runtime cleanup, which runs on
	// a separate goroutine, hence the mutex.
	cache   map[identity]weak.Pointer[Object]
	cacheMu sync.Mutex

	logger   *slog.Logger
	observer Observer
}

// keyMap is the registry entry for one target.
type keyMap struct {
	// target pins the observed value while it has subscribers so its
	// identity cannot be reused.
	target any
	keys   map[string]*Dep
}

// RuntimeOption configures a Runtime.
type RuntimeOption func(*Runtime)

// WithLogger sets the runtime logger.
func WithLogger(logger *slog.Logger) RuntimeOption {
	return func(rt *Runtime) {
		if logger != nil {
			rt.logger = logger
		}
	}
}

// WithObserver installs an observer for effect and registry events.
func WithObserver(o Observer) RuntimeOption {
	return func(rt *Runtime) {
		if o != nil {
			rt.observer = o
		}
	}
}

// NewRuntime creates an empty runtime.
func NewRuntime(opts ...RuntimeOption) *Runtime {
	rt := &Runtime{
		registry: make(map[identity]*keyMap),
		cache:    make(map[identity]weak.Pointer[Object]),
		logger:   slog.Default().With("component", "reactive"),
		observer: NopObserver{},
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

// Logger returns the runtime logger.
func (rt *Runtime) Logger() *slog.Logger {
	return rt.logger
}

// ActiveEffect returns the effect currently tracking reads, or nil.
func (rt *Runtime) ActiveEffect() *Effect {
	return rt.activeEffect
}

// Untracked runs fn with no active effect, so reads inside fn create no
// dependencies.
func (rt *Runtime) Untracked(fn func()) {
	prev := rt.activeEffect
	rt.activeEffect = nil
	defer func() { rt.activeEffect = prev }()
	fn()
}

// Track records that the active effect read target[key]. It is a no-op when
// no effect is running or target is not composite.
func (rt *Runtime) Track(target any, key string) {
	if rt.activeEffect == nil {
		return
	}
	raw := ToRaw(target)
	id, ok := identityOf(raw)
	if !ok {
		return
	}
	rt.track(id, raw, key)
}

func (rt *Runtime) track(id identity, raw any, key string) {
	e := rt.activeEffect
	if e == nil || !e.active {
		return
	}

	km := rt.registry[id]
	if km == nil {
		km = &keyMap{target: raw, keys: make(map[string]*Dep)}
		rt.registry[id] = km
	}

	d := km.keys[key]
	if d == nil {
		d = newDep(key, nil)
		d.onEmpty = func() {
			if km.keys[key] == d {
				delete(km.keys, key)
			}
			if len(km.keys) == 0 && rt.registry[id] == km {
				delete(rt.registry, id)
			}
		}
		km.keys[key] = d
	}

	if rt.link(e, d) {
		rt.observer.Tracked(e, raw, key)
	}
}

// Trigger invokes the scheduler of every effect subscribed to target[key].
// Unknown targets and keys are silently ignored.
func (rt *Runtime) Trigger(target any, key string) {
	raw := ToRaw(target)
	id, ok := identityOf(raw)
	if !ok {
		return
	}
	rt.trigger(id, raw, key)
}

func (rt *Runtime) trigger(id identity, raw any, key string) {
	km := rt.registry[id]
	if km == nil {
		return
	}
	d := km.keys[key]
	if d == nil {
		return
	}
	rt.notify(d, raw, key)
}

// notify marks every subscriber of d dirty and calls its scheduler, in
// insertion order. The subscriber list is copied first so schedulers may
// relink or stop effects while notification is in progress.
func (rt *Runtime) notify(d *Dep, target any, key string) {
	subs := d.effects()
	rt.observer.Triggered(target, key, len(subs))

	for _, e := range subs {
		if !e.active {
			continue
		}
		e.dirty = true
		if e.scheduler != nil {
			e.scheduler()
		}
	}
}

// link joins e to d for the current run. It returns true when a new link was
// recorded, false when d was already read during this run.
func (rt *Runtime) link(e *Effect, d *Dep) bool {
	if !e.active {
		return false
	}
	if gen, ok := d.get(e); ok && gen == e.gen {
		return false
	}
	d.set(e, e.gen)

	if e.depsLen < len(e.deps) {
		old := e.deps[e.depsLen]
		if old != d {
			e.unlinkStale(old)
			e.deps[e.depsLen] = d
		}
	} else {
		e.deps = append(e.deps, d)
	}
	e.depsLen++
	return true
}

// Subscribers returns the number of effects subscribed to target[key].
func (rt *Runtime) Subscribers(target any, key string) int {
	id, ok := identityOf(ToRaw(target))
	if !ok {
		return 0
	}
	km := rt.registry[id]
	if km == nil {
		return 0
	}
	if d := km.keys[key]; d != nil {
		return d.Len()
	}
	return 0
}

// Targets returns the number of targets with at least one subscriber.
func (rt *Runtime) Targets() int {
	return len(rt.registry)
}

// GraphSnapshot is a point-in-time copy of the dependency registry.
type GraphSnapshot struct {
	Targets []TargetSnapshot `json:"targets"`
}

// TargetSnapshot describes one observed target.
type TargetSnapshot struct {
	ID   string        `json:"id"`
	Type string        `json:"type"`
	Keys []KeySnapshot `json:"keys"`
}

// KeySnapshot lists the effects subscribed to one key.
type KeySnapshot struct {
	Key         string   `json:"key"`
	Subscribers []string `json:"subscribers"`
}

// Snapshot copies the registry. The result is safe to hand to other
// goroutines.
func (rt *Runtime) Snapshot() GraphSnapshot {
	snap := GraphSnapshot{Targets: make([]TargetSnapshot, 0, len(rt.registry))}
	for id, km := range rt.registry {
		ts := TargetSnapshot{
			ID:   fmt.Sprintf("%#x", id.ptr),
			Type: fmt.Sprintf("%T", km.target),
			Keys: make([]KeySnapshot, 0, len(km.keys)),
		}
		for key, d := range km.keys {
			ks := KeySnapshot{Key: key}
			if key == iterateKey {
				ks.Key = "<keys>"
			}
			for _, e := range d.effects() {
				ks.Subscribers = append(ks.Subscribers, e.Name())
			}
			ts.Keys = append(ts.Keys, ks)
		}
		sort.Slice(ts.Keys, func(i, j int) bool { return ts.Keys[i].Key < ts.Keys[j].Key })
		snap.Targets = append(snap.Targets, ts)
	}
	sort.Slice(snap.Targets, func(i, j int) bool {
		if snap.Targets[i].Type != snap.Targets[j].Type {
			return snap.Targets[i].Type < snap.Targets[j].Type
		}
		return snap.Targets[i].ID < snap.Targets[j].ID
	})
	return snap
}

// Track records a dependency in the default runtime.
func Track(target any, key string) {
	Default().Track(target, key)
}

// Trigger notifies subscribers in the default runtime.
func Trigger(target any, key string) {
	Default().Trigger(target, key)
}
