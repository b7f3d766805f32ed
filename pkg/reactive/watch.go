package reactive

import (
	"fmt"
	"math"
)

// StopFunc stops a watcher. Calling it more than once is safe.
type StopFunc func()

// WatchCallback receives the new and previous values of a watched source.
// Functions passed to onCleanup run before the next callback invocation and
// when the watcher stops.
type WatchCallback func(newValue, oldValue any, onCleanup func(func()))

// WatchOption configures Watch and WatchEffect.
type WatchOption func(*watchConfig)

type watchConfig struct {
	deep      bool
	depth     int
	immediate bool
	schedule  func(job func())
	name      string
}

// Deep traverses the source without a depth limit.
func Deep() WatchOption {
	return func(c *watchConfig) {
		c.deep = true
	}
}

// Depth limits source traversal to n levels. Values below 1 mean 1.
func Depth(n int) WatchOption {
	return func(c *watchConfig) {
		c.depth = n
	}
}

// Immediate invokes the callback once during setup.
func Immediate() WatchOption {
	return func(c *watchConfig) {
		c.immediate = true
	}
}

// WithWatchScheduler hands every watcher job to schedule instead of running
// it synchronously, for example to defer it onto a job queue.
func WithWatchScheduler(schedule func(job func())) WatchOption {
	return func(c *watchConfig) {
		c.schedule = schedule
	}
}

// WatchName sets the name of the watcher's effect.
func WatchName(name string) WatchOption {
	return func(c *watchConfig) {
		c.name = name
	}
}

// Watch observes source and calls cb when it changes.
//
// The source may be an *Object (or a composite value, which is wrapped), a
// RefLike, or a getter of type func() any. Objects and refs are traversed
// down to the configured depth so that every visited property becomes a
// dependency; reading a ref's value counts as the first level. A getter
// determines its own dependencies.
//
// The returned StopFunc severs all dependencies.
func (rt *Runtime) Watch(source any, cb WatchCallback, opts ...WatchOption) StopFunc {
	cfg := watchConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cb == nil {
		rt.logger.Warn("watch called without a callback; use WatchEffect")
		cb = func(any, any, func(func())) {}
	}
	return rt.doWatch(rt.watchGetter(source, cfg), cb, cfg)
}

// Watch observes source in the default runtime.
func Watch(source any, cb WatchCallback, opts ...WatchOption) StopFunc {
	return Default().Watch(source, cb, opts...)
}

// WatchEffect runs fn immediately and again whenever anything it read
// changes.
func (rt *Runtime) WatchEffect(fn func(onCleanup func(func())), opts ...WatchOption) StopFunc {
	cfg := watchConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	var w *watcher
	getter := func() any {
		fn(w.onCleanup)
		return nil
	}
	w = rt.newWatcher(getter, nil, cfg)
	w.effect.Run()
	return w.stop
}

// WatchEffect runs fn as a watcher in the default runtime.
func WatchEffect(fn func(onCleanup func(func())), opts ...WatchOption) StopFunc {
	return Default().WatchEffect(fn, opts...)
}

// WatchValue watches a typed getter.
func WatchValue[T any](getter func() T, cb func(newValue, oldValue T, onCleanup func(func())), opts ...WatchOption) StopFunc {
	return Default().Watch(
		func() any { return getter() },
		func(n, o any, onCleanup func(func())) {
			nv, _ := n.(T)
			ov, _ := o.(T)
			cb(nv, ov, onCleanup)
		},
		opts...,
	)
}

func (rt *Runtime) watchGetter(source any, cfg watchConfig) func() any {
	depth := cfg.depth
	if depth < 1 {
		depth = 1
	}
	if cfg.deep {
		depth = math.MaxInt
	}

	switch s := source.(type) {
	case func() any:
		return s
	case RefLike:
		return func() any {
			v := s.Value()
			if depth > 1 {
				traverse(v, depth-1, 0, make(map[*Object]struct{}))
			}
			return v
		}
	}

	if o, ok := rt.Reactive(source).(*Object); ok {
		return func() any {
			traverse(o, depth, 0, make(map[*Object]struct{}))
			return o
		}
	}

	rt.logger.Warn("watch source is not reactive", "type", fmt.Sprintf("%T", source))
	return func() any { return source }
}

// traverse reads every key of v down to depth levels so each read becomes a
// dependency of the running effect. seen guards against cycles.
func traverse(v any, depth, current int, seen map[*Object]struct{}) {
	if r, ok := v.(RefLike); ok {
		v = r.Value()
	}
	o, ok := v.(*Object)
	if !ok || current >= depth {
		return
	}
	if _, ok := seen[o]; ok {
		return
	}
	seen[o] = struct{}{}

	for _, k := range o.Keys() {
		traverse(o.Get(k), depth, current+1, seen)
	}
}

// watcher holds the state shared by the scheduler job of one watch.
type watcher struct {
	effect   *Effect
	cb       WatchCallback
	oldValue any
	cleanup  func()
}

func (rt *Runtime) doWatch(getter func() any, cb WatchCallback, cfg watchConfig) StopFunc {
	w := rt.newWatcher(getter, cb, cfg)
	if cfg.immediate {
		w.job()
	} else {
		w.oldValue = w.effect.Run()
	}
	return w.stop
}

func (rt *Runtime) newWatcher(getter func() any, cb WatchCallback, cfg watchConfig) *watcher {
	w := &watcher{cb: cb}

	scheduler := w.job
	if cfg.schedule != nil {
		scheduler = func() { cfg.schedule(w.job) }
	}

	opts := []EffectOption{OnStop(w.runCleanup)}
	if cfg.name != "" {
		opts = append(opts, EffectName(cfg.name))
	}
	w.effect = rt.NewEffect(getter, scheduler, opts...)
	return w
}

func (w *watcher) onCleanup(fn func()) {
	w.cleanup = fn
}

func (w *watcher) runCleanup() {
	if w.cleanup != nil {
		fn := w.cleanup
		w.cleanup = nil
		fn()
	}
}

// job is the watcher's scheduler: clean up after the previous callback,
// re-run the getter, then call back with the new and old values.
func (w *watcher) job() {
	if !w.effect.Active() {
		return
	}
	w.runCleanup()

	if w.cb == nil {
		w.effect.Run()
		return
	}
	newValue := w.effect.Run()
	w.cb(newValue, w.oldValue, w.onCleanup)
	w.oldValue = newValue
}

func (w *watcher) stop() {
	w.effect.Stop()
}
