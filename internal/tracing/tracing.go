// Package tracing exports reactive engine activity as OpenTelemetry spans.
//
// An Observer records one span per tracked effect run and adds trigger and
// stop events to the span found in its current context, typically a span
// covering one scenario step:
//
//	obs := tracing.New(tracing.WithTracerName("reactor"))
//	rt := reactive.NewRuntime(reactive.WithObserver(obs))
//
//	ctx, span := obs.Tracer().Start(ctx, "step")
//	obs.SetContext(ctx)
//	... mutate state ...
//	span.End()
package tracing

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/reactor/pkg/reactive"
)

// Default tracer name for reactor.
const defaultTracerName = "github.com/vango-dev/reactor"

// Config configures the Observer.
type Config struct {
	// TracerName is the name of the tracer.
	TracerName string

	// Provider is the tracer provider. Default: the global provider.
	Provider trace.TracerProvider

	// Filter decides which effects are traced. If nil, all are.
	Filter func(e *reactive.Effect) bool

	// IncludeTriggers adds an event to the current span for every trigger.
	// Enabled by default.
	IncludeTriggers bool
}

// Option configures the Observer.
type Option func(*Config)

// WithTracerName sets the tracer name.
func WithTracerName(name string) Option {
	return func(c *Config) {
		c.TracerName = name
	}
}

// WithTracerProvider sets the tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Config) {
		c.Provider = tp
	}
}

// WithEffectFilter sets a filter for traced effects.
func WithEffectFilter(filter func(e *reactive.Effect) bool) Option {
	return func(c *Config) {
		c.Filter = filter
	}
}

// WithIncludeTriggers enables/disables trigger events.
func WithIncludeTriggers(include bool) Option {
	return func(c *Config) {
		c.IncludeTriggers = include
	}
}

func defaultConfig() Config {
	return Config{
		TracerName:      defaultTracerName,
		IncludeTriggers: true,
	}
}

// Observer turns engine events into spans. It belongs to the goroutine of
// the runtime it observes.
type Observer struct {
	reactive.NopObserver

	config Config
	tracer trace.Tracer
	ctx    context.Context
}

var _ reactive.Observer = (*Observer)(nil)

// New creates an Observer.
func New(opts ...Option) *Observer {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	if config.TracerName == "" {
		config.TracerName = defaultTracerName
	}

	var tracer trace.Tracer
	if config.Provider != nil {
		tracer = config.Provider.Tracer(config.TracerName)
	} else {
		tracer = otel.Tracer(config.TracerName)
	}

	return &Observer{
		config: config,
		tracer: tracer,
		ctx:    context.Background(),
	}
}

// Tracer returns the tracer used for effect spans.
func (o *Observer) Tracer() trace.Tracer {
	return o.tracer
}

// SetContext sets the parent context for subsequent spans and events.
func (o *Observer) SetContext(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	o.ctx = ctx
}

// EffectRun records a span covering the run that just finished.
func (o *Observer) EffectRun(e *reactive.Effect, d time.Duration, panicked bool) {
	if o.config.Filter != nil && !o.config.Filter(e) {
		return
	}

	end := time.Now()
	_, span := o.tracer.Start(o.ctx, "effect "+e.Name(),
		trace.WithTimestamp(end.Add(-d)),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("reactor.effect.name", e.Name()),
			attribute.Int64("reactor.effect.id", int64(e.ID())),
			attribute.Int("reactor.effect.deps", e.Deps()),
		),
	)
	if panicked {
		span.SetStatus(codes.Error, "effect panicked")
		span.SetAttributes(attribute.Bool("reactor.effect.panicked", true))
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End(trace.WithTimestamp(end))
}

// EffectStopped adds a stop event to the current span.
func (o *Observer) EffectStopped(e *reactive.Effect) {
	span := trace.SpanFromContext(o.ctx)
	if !span.IsRecording() {
		return
	}
	span.AddEvent("effect.stopped", trace.WithAttributes(
		attribute.String("reactor.effect.name", e.Name()),
	))
}

// Triggered adds a trigger event to the current span.
func (o *Observer) Triggered(target any, key string, subscribers int) {
	if !o.config.IncludeTriggers {
		return
	}
	span := trace.SpanFromContext(o.ctx)
	if !span.IsRecording() {
		return
	}
	span.AddEvent("trigger", trace.WithAttributes(
		attribute.String("reactor.target", fmt.Sprintf("%T", target)),
		attribute.String("reactor.key", key),
		attribute.Int("reactor.subscribers", subscribers),
	))
}
