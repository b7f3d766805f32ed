package reactive

import (
	"fmt"
	"time"
)

// Effect is a unit of reactive computation. Running it executes its body
// with the effect installed as the tracking context; every tracked read
// during the body links the effect to the property that was read. A later
// write to such a property calls the effect's scheduler.
//
// The effect never calls its own scheduler and never re-runs itself.
type Effect struct {
	rt   *Runtime
	id   uint64
	name string

	// fn is the effect body.
	fn func() any

	// scheduler is called by trigger when a dependency changes.
	scheduler func()

	// gen is the run generation, incremented at the start of every run.
	gen uint64

	// deps holds the subscriber maps joined by the effect. Only the first
	// depsLen entries are valid for the current run.
	deps    []*Dep
	depsLen int

	active       bool
	runnings     int
	dirty        bool
	nonReactive  bool
	allowRecurse bool
	onStop       func()
}

// EffectOption configures an Effect.
type EffectOption interface {
	applyEffect(c *effectConfig)
}

type effectConfig struct {
	scheduler    func()
	lazy         bool
	nonReactive  bool
	allowRecurse bool
	onStop       func()
	name         string
}

type effectOptionFunc func(*effectConfig)

func (f effectOptionFunc) applyEffect(c *effectConfig) { f(c) }

// WithScheduler replaces the default re-run scheduler of CreateEffect.
func WithScheduler(fn func()) EffectOption {
	return effectOptionFunc(func(c *effectConfig) {
		c.scheduler = fn
	})
}

// Lazy skips the initial run in CreateEffect.
func Lazy() EffectOption {
	return effectOptionFunc(func(c *effectConfig) {
		c.lazy = true
	})
}

// NonReactive makes Run invoke the body without any tracking.
func NonReactive() EffectOption {
	return effectOptionFunc(func(c *effectConfig) {
		c.nonReactive = true
	})
}

// AllowRecurse lets the default CreateEffect scheduler re-run an effect
// whose own body triggered it. Without it such re-entrant runs are skipped.
func AllowRecurse() EffectOption {
	return effectOptionFunc(func(c *effectConfig) {
		c.allowRecurse = true
	})
}

// OnStop registers a callback invoked once when the effect is stopped.
func OnStop(fn func()) EffectOption {
	return effectOptionFunc(func(c *effectConfig) {
		c.onStop = fn
	})
}

// EffectName sets the name reported to observers and in graph snapshots.
func EffectName(name string) EffectOption {
	return effectOptionFunc(func(c *effectConfig) {
		c.name = name
	})
}

// NewEffect creates an effect in rt without running it. scheduler may be
// nil, in which case writes only mark the effect dirty.
func (rt *Runtime) NewEffect(fn func() any, scheduler func(), opts ...EffectOption) *Effect {
	cfg := effectConfig{scheduler: scheduler}
	for _, opt := range opts {
		opt.applyEffect(&cfg)
	}
	return rt.newEffect(fn, cfg)
}

func (rt *Runtime) newEffect(fn func() any, cfg effectConfig) *Effect {
	e := &Effect{
		rt:           rt,
		id:           nextID(),
		name:         cfg.name,
		fn:           fn,
		scheduler:    cfg.scheduler,
		active:       true,
		dirty:        true,
		nonReactive:  cfg.nonReactive,
		allowRecurse: cfg.allowRecurse,
		onStop:       cfg.onStop,
	}
	if e.name == "" {
		e.name = fmt.Sprintf("effect#%d", e.id)
	}
	rt.observer.EffectCreated(e)
	return e
}

// CreateEffect creates an effect in rt whose default scheduler re-runs it,
// and runs it once unless Lazy is given.
//
// Example:
//
//	count := rt.Reactive(map[string]any{"n": 0}).(*Object)
//	rt.CreateEffect(func() {
//	    fmt.Println("n is", count.Get("n"))
//	})
func (rt *Runtime) CreateEffect(fn func(), opts ...EffectOption) *Effect {
	var cfg effectConfig
	for _, opt := range opts {
		opt.applyEffect(&cfg)
	}

	var e *Effect
	if cfg.scheduler == nil {
		cfg.scheduler = func() {
			if e.runnings > 0 && !e.allowRecurse {
				return
			}
			e.Run()
		}
	}
	e = rt.newEffect(func() any {
		fn()
		return nil
	}, cfg)

	if !cfg.lazy {
		e.Run()
	}
	return e
}

// CreateEffect creates and runs an effect in the default runtime.
func CreateEffect(fn func(), opts ...EffectOption) *Effect {
	return Default().CreateEffect(fn, opts...)
}

// Run executes the body and returns its result. A stopped effect does
// nothing and returns nil.
//
// Tracking context restore and dependency trimming happen in a deferred
// block, so they also run when the body panics; the panic then propagates
// to the caller.
func (e *Effect) Run() any {
	if !e.active {
		return nil
	}
	e.dirty = false
	if e.nonReactive {
		prev := e.rt.activeEffect
		e.rt.activeEffect = nil
		defer func() { e.rt.activeEffect = prev }()
		return e.fn()
	}

	rt := e.rt
	prev := rt.activeEffect
	rt.activeEffect = e
	e.preCleanup()
	e.runnings++

	start := time.Now()
	panicked := true
	defer func() {
		e.runnings--
		rt.activeEffect = prev
		e.postCleanup()
		rt.observer.EffectRun(e, time.Since(start), panicked)
	}()

	v := e.fn()
	panicked = false
	return v
}

// Stop permanently deactivates the effect and unlinks every dependency.
// It is safe to call more than once.
func (e *Effect) Stop() {
	if !e.active {
		return
	}
	e.active = false
	e.preCleanup()
	e.postCleanup()

	if e.onStop != nil {
		e.onStop()
	}
	e.rt.observer.EffectStopped(e)
	e.rt.logger.Debug("effect stopped", "effect", e.name)
}

// preCleanup starts a new generation and rewinds the dependency cursor.
func (e *Effect) preCleanup() {
	e.gen++
	e.depsLen = 0
}

// postCleanup unlinks dependencies read in an earlier run but not in this
// one and trims them from the list.
func (e *Effect) postCleanup() {
	if len(e.deps) <= e.depsLen {
		return
	}
	for i := e.depsLen; i < len(e.deps); i++ {
		e.unlinkStale(e.deps[i])
		e.deps[i] = nil
	}
	e.deps = e.deps[:e.depsLen]
}

// unlinkStale removes e from d unless d was read during the current run.
func (e *Effect) unlinkStale(d *Dep) {
	if gen, ok := d.get(e); ok && gen != e.gen {
		d.remove(e)
	}
}

// ID returns the unique identifier for this effect.
func (e *Effect) ID() uint64 {
	return e.id
}

// Name returns the effect name.
func (e *Effect) Name() string {
	return e.name
}

// Active reports whether the effect has not been stopped.
func (e *Effect) Active() bool {
	return e.active
}

// Dirty reports whether a dependency changed since the last run started.
func (e *Effect) Dirty() bool {
	return e.dirty
}

// Running reports the re-entrancy depth of Run.
func (e *Effect) Running() int {
	return e.runnings
}

// Deps returns the number of properties the effect currently depends on.
func (e *Effect) Deps() int {
	return len(e.deps)
}

// Runtime returns the runtime the effect belongs to.
func (e *Effect) Runtime() *Runtime {
	return e.rt
}
