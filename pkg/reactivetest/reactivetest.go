package reactivetest

import (
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vango-dev/reactor/pkg/reactive"
)

// Recorder is an observer that counts engine events per effect name.
// It is safe for concurrent use.
type Recorder struct {
	reactive.NopObserver

	mu        sync.Mutex
	created   map[string]int
	runs      map[string]int
	panics    map[string]int
	stopped   map[string]int
	triggered []string
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		created: make(map[string]int),
		runs:    make(map[string]int),
		panics:  make(map[string]int),
		stopped: make(map[string]int),
	}
}

func (r *Recorder) EffectCreated(e *reactive.Effect) {
	r.mu.Lock()
	r.created[e.Name()]++
	r.mu.Unlock()
}

func (r *Recorder) EffectRun(e *reactive.Effect, _ time.Duration, panicked bool) {
	r.mu.Lock()
	r.runs[e.Name()]++
	if panicked {
		r.panics[e.Name()]++
	}
	r.mu.Unlock()
}

func (r *Recorder) EffectStopped(e *reactive.Effect) {
	r.mu.Lock()
	r.stopped[e.Name()]++
	r.mu.Unlock()
}

func (r *Recorder) Triggered(_ any, key string, _ int) {
	r.mu.Lock()
	r.triggered = append(r.triggered, key)
	r.mu.Unlock()
}

// Runs returns how many times effects with the given name ran.
func (r *Recorder) Runs(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runs[name]
}

// Panics returns how many runs of the named effect panicked.
func (r *Recorder) Panics(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.panics[name]
}

// Stopped returns how many effects with the given name were stopped.
func (r *Recorder) Stopped(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped[name]
}

// Created returns how many effects with the given name were constructed.
func (r *Recorder) Created(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.created[name]
}

// Triggers returns the keys of every trigger that reached a subscriber,
// in order.
func (r *Recorder) Triggers() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.triggered...)
}

// Reset clears all counts.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.created)
	clear(r.runs)
	clear(r.panics)
	clear(r.stopped)
	r.triggered = nil
}

// Env bundles a runtime with the recorder observing it.
type Env struct {
	Runtime  *reactive.Runtime
	Recorder *Recorder
}

// EnvBuilder allows fluent construction of test runtimes.
type EnvBuilder struct {
	tb        testing.TB
	observers []reactive.Observer
	logger    *slog.Logger
	noLeaks   bool
}

// NewEnv creates a new runtime builder for testing. Engine logs go to
// tb.Log by default.
//
// Example:
//
//	env := reactivetest.NewEnv(t).
//	    WithObserver(myObserver).
//	    ExpectNoLeaks().
//	    Build()
func NewEnv(tb testing.TB) *EnvBuilder {
	return &EnvBuilder{tb: tb}
}

// WithObserver adds an observer next to the recorder.
func (b *EnvBuilder) WithObserver(o reactive.Observer) *EnvBuilder {
	b.observers = append(b.observers, o)
	return b
}

// WithLogger replaces the test logger.
func (b *EnvBuilder) WithLogger(logger *slog.Logger) *EnvBuilder {
	b.logger = logger
	return b
}

// ExpectNoLeaks registers a cleanup that fails the test if the registry
// is not empty when the test ends.
func (b *EnvBuilder) ExpectNoLeaks() *EnvBuilder {
	b.noLeaks = true
	return b
}

// Build returns the configured environment.
func (b *EnvBuilder) Build() *Env {
	rec := NewRecorder()
	logger := b.logger
	if logger == nil {
		logger = NewLogger(b.tb)
	}
	rt := reactive.NewRuntime(
		reactive.WithLogger(logger),
		reactive.WithObserver(reactive.Observers(append([]reactive.Observer{rec}, b.observers...)...)),
	)
	if b.noLeaks {
		tb := b.tb
		tb.Cleanup(func() { ExpectNoTargets(tb, rt) })
	}
	return &Env{Runtime: rt, Recorder: rec}
}

// NewLogger returns a debug-level logger that writes through tb.Log.
func NewLogger(tb testing.TB) *slog.Logger {
	return slog.New(slog.NewTextHandler(tbWriter{tb}, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

type tbWriter struct{ tb testing.TB }

func (w tbWriter) Write(p []byte) (int, error) {
	w.tb.Helper()
	w.tb.Log(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

// ExpectRuns asserts that effects with the given name ran exactly n times.
//
// Example:
//
//	reactivetest.ExpectRuns(t, env.Recorder, "render", 2)
func ExpectRuns(tb testing.TB, rec *Recorder, name string, n int) {
	tb.Helper()
	if got := rec.Runs(name); got != n {
		tb.Errorf("expected effect %q to run %d times, got %d", name, n, got)
	}
}

// ExpectSubscribers asserts the number of effects subscribed to
// target[key].
func ExpectSubscribers(tb testing.TB, rt *reactive.Runtime, target any, key string, n int) {
	tb.Helper()
	if got := rt.Subscribers(target, key); got != n {
		tb.Errorf("expected %d subscribers on %q, got %d", n, key, got)
	}
}

// ExpectNoTargets asserts that no reactive object has subscribers left.
// Refs and computeds keep their subscribers outside the registry.
func ExpectNoTargets(tb testing.TB, rt *reactive.Runtime) {
	tb.Helper()
	if n := rt.Targets(); n != 0 {
		tb.Errorf("expected an empty registry, got %d targets:\n%s", n, truncate(describe(rt.Snapshot()), 500))
	}
}

// ExpectSubscribed asserts that an effect with the given name appears
// somewhere in the dependency graph.
func ExpectSubscribed(tb testing.TB, rt *reactive.Runtime, name string) {
	tb.Helper()
	snap := rt.Snapshot()
	for _, target := range snap.Targets {
		for _, key := range target.Keys {
			for _, sub := range key.Subscribers {
				if sub == name {
					return
				}
			}
		}
	}
	tb.Errorf("expected %q in the dependency graph, got:\n%s", name, truncate(describe(snap), 500))
}

func describe(snap reactive.GraphSnapshot) string {
	var b strings.Builder
	for _, target := range snap.Targets {
		for _, key := range target.Keys {
			b.WriteString(target.Type)
			b.WriteString(" ")
			b.WriteString(key.Key)
			b.WriteString(": ")
			b.WriteString(strings.Join(key.Subscribers, ", "))
			b.WriteString("\n")
		}
	}
	return b.String()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
