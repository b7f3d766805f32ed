package scenario

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	rerrors "github.com/vango-dev/reactor/internal/errors"
	"github.com/vango-dev/reactor/internal/tracing"
	"github.com/vango-dev/reactor/pkg/reactive"
	"github.com/vango-dev/reactor/pkg/scheduler"
)

// RunOption configures a scenario run.
type RunOption func(*runConfig)

type runConfig struct {
	logger  *slog.Logger
	budget  *scheduler.BudgetConfig
	tracing *tracing.Observer
	onFlush func(scheduler.FlushStats)
	onStep  func(i int, s *Step)
}

// WithLogger sets the run logger.
func WithLogger(logger *slog.Logger) RunOption {
	return func(c *runConfig) {
		c.logger = logger
	}
}

// WithBudget bounds the flushes of the run's job queue.
func WithBudget(cfg scheduler.BudgetConfig) RunOption {
	return func(c *runConfig) {
		c.budget = &cfg
	}
}

// WithTracing wraps the run and each step in spans and parents effect
// spans recorded by obs under the current step.
func WithTracing(obs *tracing.Observer) RunOption {
	return func(c *runConfig) {
		c.tracing = obs
	}
}

// WithFlushHook is called after every flush of the run's job queue.
func WithFlushHook(fn func(scheduler.FlushStats)) RunOption {
	return func(c *runConfig) {
		c.onFlush = fn
	}
}

// WithStepHook is called after every step, for example to publish a graph
// snapshot.
func WithStepHook(fn func(i int, s *Step)) RunOption {
	return func(c *runConfig) {
		c.onStep = fn
	}
}

// Report is the outcome of one run.
type Report struct {
	RunID    string
	Scenario string
	File     string
	Started  time.Time
	Duration time.Duration

	// Steps is the number of steps executed.
	Steps int

	// Fired is the final run count per effect and watch.
	Fired map[string]int

	// Failures are the expectations that did not hold.
	Failures []*rerrors.ReactorError

	Queue scheduler.Stats
}

// Passed reports whether every expectation held.
func (r *Report) Passed() bool {
	return len(r.Failures) == 0
}

// runner holds the live graph of one run.
type runner struct {
	s      *Scenario
	rt     *reactive.Runtime
	root   *reactive.Object
	queue  *scheduler.Queue
	logger *slog.Logger

	fired     map[string]int
	stoppers  map[string]func()
	computeds map[string]*reactive.Computed[float64]
	failures  []*rerrors.ReactorError
}

// Run builds the scenario's graph in rt and executes its steps. The state
// tree is copied first, so a Scenario can be run more than once.
//
// Failed expectations are collected in the report. Errors that make the
// rest of the run meaningless (unresolvable paths, exhausted flush budget,
// cancellation) stop the run and are returned along with the partial
// report.
func (s *Scenario) Run(ctx context.Context, rt *reactive.Runtime, opts ...RunOption) (*Report, error) {
	cfg := runConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	logger := cfg.logger
	if logger == nil {
		logger = slog.Default().With("component", "scenario")
	}

	report := &Report{
		RunID:    uuid.NewString(),
		Scenario: s.Name,
		File:     s.File,
		Started:  time.Now(),
	}
	logger = logger.With("scenario", s.Name, "run", report.RunID)

	qopts := []scheduler.QueueOption{scheduler.WithLogger(logger)}
	if cfg.budget != nil {
		qopts = append(qopts, scheduler.WithBudget(*cfg.budget))
	}
	if cfg.onFlush != nil {
		qopts = append(qopts, scheduler.WithFlushHook(cfg.onFlush))
	}

	r := &runner{
		s:         s,
		rt:        rt,
		queue:     scheduler.NewQueue(qopts...),
		logger:    logger,
		fired:     make(map[string]int),
		stoppers:  make(map[string]func()),
		computeds: make(map[string]*reactive.Computed[float64]),
	}
	r.root = rt.Reactive(deepCopy(s.State)).(*reactive.Object)
	defer r.stopAll()

	var span trace.Span
	if cfg.tracing != nil {
		ctx, span = cfg.tracing.Tracer().Start(ctx, "scenario "+s.Name,
			trace.WithAttributes(
				attribute.String("reactor.scenario", s.Name),
				attribute.String("reactor.run_id", report.RunID),
			))
		defer span.End()
		cfg.tracing.SetContext(ctx)
		defer cfg.tracing.SetContext(context.Background())
	}

	finish := func(err error) (*Report, error) {
		report.Duration = time.Since(report.Started)
		report.Fired = r.fired
		report.Failures = r.failures
		report.Queue = r.queue.Stats()
		if span != nil {
			span.SetAttributes(attribute.Int("reactor.failures", len(r.failures)))
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			} else if !report.Passed() {
				span.SetStatus(codes.Error, "expectations failed")
			}
		}
		if err != nil {
			logger.Error("scenario aborted", "error", err)
		} else {
			logger.Info("scenario finished",
				"steps", report.Steps,
				"failures", len(r.failures),
				"duration", report.Duration)
		}
		return report, err
	}

	if err := r.build(); err != nil {
		return finish(err)
	}

	for i := range s.Steps {
		if err := ctx.Err(); err != nil {
			return finish(err)
		}
		step := &s.Steps[i]

		var stepSpan trace.Span
		if cfg.tracing != nil {
			var stepCtx context.Context
			stepCtx, stepSpan = cfg.tracing.Tracer().Start(ctx, fmt.Sprintf("step %d %s", i+1, step.Kind()),
				trace.WithAttributes(attribute.Int("reactor.step.line", step.Line)))
			cfg.tracing.SetContext(stepCtx)
		}

		err := r.step(i, step)
		report.Steps++

		if stepSpan != nil {
			if err != nil {
				stepSpan.SetStatus(codes.Error, err.Error())
			}
			stepSpan.End()
			cfg.tracing.SetContext(ctx)
		}
		if cfg.onStep != nil {
			cfg.onStep(i, step)
		}
		if err != nil {
			return finish(err)
		}
	}
	return finish(nil)
}

func (r *runner) build() error {
	for _, def := range r.s.Computeds {
		r.computeds[def.Name] = r.computed(def)
	}

	for _, def := range r.s.Effects {
		name := def.Name
		reads := def.Reads
		body := func() {
			r.fired[name]++
			for _, p := range reads {
				lookup(r.root, p, true)
			}
		}
		var e *reactive.Effect
		if def.Queued {
			e = r.queue.Effect(r.rt, body, reactive.EffectName(name))
		} else {
			e = r.rt.CreateEffect(body, reactive.EffectName(name))
		}
		r.stoppers[name] = e.Stop
	}

	for _, def := range r.s.Watches {
		source, err := r.watchSource(def.Path)
		if err != nil {
			return r.unknownPath(def.Line, def.Path, err)
		}
		opts := []reactive.WatchOption{reactive.WatchName(def.Name)}
		if def.Deep {
			opts = append(opts, reactive.Deep())
		} else if def.Depth > 0 {
			opts = append(opts, reactive.Depth(def.Depth))
		}
		if def.Immediate {
			opts = append(opts, reactive.Immediate())
		}
		if def.Queued {
			opts = append(opts, reactive.WithWatchScheduler(r.queue.Deferred(def.Name)))
		}
		name := def.Name
		r.stoppers[name] = r.rt.Watch(source, func(any, any, func(func())) {
			r.fired[name]++
		}, opts...)
	}
	return nil
}

func (r *runner) computed(def ComputedDef) *reactive.Computed[float64] {
	if def.Count != "" {
		path := def.Count
		return reactive.NewComputedIn(r.rt, func(float64) float64 {
			v, err := lookup(r.root, path, true)
			if obj, ok := v.(*reactive.Object); ok && err == nil {
				return float64(obj.Len())
			}
			return 0
		})
	}
	paths := def.Sum
	return reactive.NewComputedIn(r.rt, func(float64) float64 {
		total := 0.0
		for _, p := range paths {
			v, err := lookup(r.root, p, true)
			if err != nil {
				continue
			}
			if f, ok := toFloat(reactive.ToRaw(v)); ok {
				total += f
			}
		}
		return total
	})
}

// watchSource returns the object at path, or a getter for leaf values.
func (r *runner) watchSource(path string) (any, error) {
	v, err := lookup(r.root, path, false)
	if err != nil {
		return nil, err
	}
	if obj, ok := v.(*reactive.Object); ok {
		return obj, nil
	}
	return func() any {
		v, _ := lookup(r.root, path, true)
		return v
	}, nil
}

func (r *runner) step(i int, s *Step) error {
	switch {
	case s.Set != nil:
		obj, key, err := parent(r.root, s.Set.Path)
		if err != nil {
			return r.unknownPath(s.Line, s.Set.Path, err)
		}
		if err := obj.Set(key, deepCopy(s.Set.Value)); err != nil {
			return r.unknownPath(s.Line, s.Set.Path, err)
		}

	case s.Delete != "":
		obj, key, err := parent(r.root, s.Delete)
		if err != nil {
			return r.unknownPath(s.Line, s.Delete, err)
		}
		if err := obj.Delete(key); err != nil {
			return r.unknownPath(s.Line, s.Delete, err)
		}

	case s.Stop != "":
		if c, ok := r.computeds[s.Stop]; ok {
			c.Stop()
		} else if stop := r.stoppers[s.Stop]; stop != nil {
			stop()
		}

	case s.Flush:
		if err := r.queue.Flush(); err != nil {
			re := rerrors.FromError(err, "R002")
			if errors.Is(err, scheduler.ErrBudgetExceeded) {
				re.WithLocation(r.s.fileName(), s.Line, 0)
			}
			return re
		}

	case s.Expect != nil:
		return r.expect(i, s)
	}
	return nil
}

func (r *runner) expect(i int, s *Step) error {
	x := s.Expect
	fail := func(what string, want, got any) {
		err := rerrors.New("R005").
			WithDetailf("%s: want %v, got %v", what, want, got).
			WithField("step", i+1).
			WithLocation(r.s.fileName(), s.Line, 0)
		r.failures = append(r.failures, err)
		r.logger.Warn("expectation failed", err.LogAttrs()...)
	}

	for _, name := range sortedNames(x.Fired) {
		if got := r.fired[name]; got != x.Fired[name] {
			fail("fired "+name, x.Fired[name], got)
		}
	}
	for _, name := range sortedNames(x.Computed) {
		var got float64
		r.rt.Untracked(func() { got = r.computeds[name].Get() })
		if got != x.Computed[name] {
			fail("computed "+name, x.Computed[name], got)
		}
	}
	for _, path := range sortedNames(x.State) {
		got, err := lookup(r.root, path, false)
		if err != nil {
			return r.unknownPath(s.Line, path, err)
		}
		if !equalValues(got, x.State[path]) {
			fail("state "+path, x.State[path], reactive.ToRaw(got))
		}
	}
	for _, path := range sortedNames(x.Subscribers) {
		obj, key, err := parent(r.root, path)
		if err != nil {
			return r.unknownPath(s.Line, path, err)
		}
		if got := r.rt.Subscribers(obj, key); got != x.Subscribers[path] {
			fail("subscribers "+path, x.Subscribers[path], got)
		}
	}
	return nil
}

func (r *runner) unknownPath(line int, path string, err error) error {
	return rerrors.New("R006").
		WithField("path", path).
		WithLocation(r.s.fileName(), line, 0).
		Wrap(err)
}

func (r *runner) stopAll() {
	names := make([]string, 0, len(r.stoppers))
	for name := range r.stoppers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		r.stoppers[name]()
	}
	for _, c := range r.computeds {
		c.Stop()
	}
	r.queue.Reset()
}

// deepCopy copies the maps and slices of a decoded YAML tree.
func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[k] = deepCopy(val)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, val := range t {
			s[i] = deepCopy(val)
		}
		return s
	}
	return v
}
