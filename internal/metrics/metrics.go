// Package metrics exports reactive engine activity as Prometheus metrics.
//
// A Collector implements reactive.Observer. Install it on a runtime and,
// optionally, as the flush hook of a scheduler queue:
//
//	reg := prometheus.NewRegistry()
//	m := metrics.New(metrics.WithRegistry(reg))
//	rt := reactive.NewRuntime(reactive.WithObserver(m))
//	q := scheduler.NewQueue(scheduler.WithFlushHook(m.ObserveFlush))
//
// Metrics collected (namespace "reactor" by default):
//   - effects_created_total, effects_stopped_total, effects_active
//   - effect_runs_total{outcome="ok"|"panic"}
//   - effect_run_duration_seconds
//   - dependencies_tracked_total
//   - triggers_total, trigger_fanout
//   - scheduler_flushes_total{result="ok"|"budget_exceeded"}
//   - scheduler_flush_jobs, scheduler_pending_jobs
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vango-dev/reactor/pkg/reactive"
	"github.com/vango-dev/reactor/pkg/scheduler"
)

// Config configures the collector.
type Config struct {
	// Namespace is the metrics namespace (default: "reactor").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for run duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// Option configures the collector.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) Option {
	return func(c *Config) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the run duration histogram buckets.
func WithBuckets(buckets []float64) Option {
	return func(c *Config) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registry = registry
	}
}

func defaultConfig() Config {
	return Config{
		Namespace: "reactor",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Collector records engine events into Prometheus metrics.
type Collector struct {
	effectsCreated prometheus.Counter
	effectsStopped prometheus.Counter
	effectsActive  prometheus.Gauge
	effectRuns     *prometheus.CounterVec
	runDuration    prometheus.Histogram
	tracked        prometheus.Counter
	triggers       prometheus.Counter
	fanout         prometheus.Histogram
	flushes        *prometheus.CounterVec
	flushJobs      prometheus.Histogram
	pending        prometheus.Gauge
}

var _ reactive.Observer = (*Collector)(nil)

// New registers the metrics and returns a collector. Registering twice on
// the same registry panics.
func New(opts ...Option) *Collector {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	if config.Registry == nil {
		config.Registry = prometheus.DefaultRegisterer
	}
	if len(config.Buckets) == 0 {
		config.Buckets = prometheus.DefBuckets
	}

	factory := promauto.With(config.Registry)
	counter := func(name, help string) prometheus.Counter {
		return factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: config.ConstLabels,
		})
	}

	return &Collector{
		effectsCreated: counter("effects_created_total", "Total number of effects created"),
		effectsStopped: counter("effects_stopped_total", "Total number of effects stopped"),
		tracked:        counter("dependencies_tracked_total", "Total number of dependency links recorded by effect runs"),
		triggers:       counter("triggers_total", "Total number of property writes that reached subscribers"),

		effectsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "effects_active",
			Help:        "Number of effects created and not yet stopped",
			ConstLabels: config.ConstLabels,
		}),

		effectRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "effect_runs_total",
			Help:        "Total number of tracked effect runs by outcome",
			ConstLabels: config.ConstLabels,
		}, []string{"outcome"}),

		runDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "effect_run_duration_seconds",
			Help:        "Effect run duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}),

		fanout: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "trigger_fanout",
			Help:        "Number of subscribers notified per trigger",
			ConstLabels: config.ConstLabels,
			Buckets:     []float64{0, 1, 2, 5, 10, 25, 50, 100},
		}),

		flushes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "scheduler_flushes_total",
			Help:        "Total number of scheduler flushes by result",
			ConstLabels: config.ConstLabels,
		}, []string{"result"}),

		flushJobs: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "scheduler_flush_jobs",
			Help:        "Number of jobs run per scheduler flush",
			ConstLabels: config.ConstLabels,
			Buckets:     []float64{1, 2, 5, 10, 50, 100, 1000, 10000},
		}),

		pending: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "scheduler_pending_jobs",
			Help:        "Jobs left queued after the last flush",
			ConstLabels: config.ConstLabels,
		}),
	}
}

func (c *Collector) EffectCreated(*reactive.Effect) {
	c.effectsCreated.Inc()
	c.effectsActive.Inc()
}

func (c *Collector) EffectRun(_ *reactive.Effect, d time.Duration, panicked bool) {
	outcome := "ok"
	if panicked {
		outcome = "panic"
	}
	c.effectRuns.WithLabelValues(outcome).Inc()
	c.runDuration.Observe(d.Seconds())
}

func (c *Collector) EffectStopped(*reactive.Effect) {
	c.effectsStopped.Inc()
	c.effectsActive.Dec()
}

func (c *Collector) Tracked(*reactive.Effect, any, string) {
	c.tracked.Inc()
}

func (c *Collector) Triggered(_ any, _ string, subscribers int) {
	c.triggers.Inc()
	c.fanout.Observe(float64(subscribers))
}

// ObserveFlush records a scheduler flush. It matches the signature of
// scheduler.WithFlushHook.
func (c *Collector) ObserveFlush(s scheduler.FlushStats) {
	result := "ok"
	if errors.Is(s.Err, scheduler.ErrBudgetExceeded) {
		result = "budget_exceeded"
	}
	c.flushes.WithLabelValues(result).Inc()
	c.flushJobs.Observe(float64(s.Jobs))
	c.pending.Set(float64(s.Left))
}
