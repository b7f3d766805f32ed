package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/vango-dev/reactor/internal/config"
	"github.com/vango-dev/reactor/internal/metrics"
	"github.com/vango-dev/reactor/internal/scenario"
	"github.com/vango-dev/reactor/internal/tracing"
	"github.com/vango-dev/reactor/pkg/reactive"
	"github.com/vango-dev/reactor/pkg/scheduler"
)

// app holds what every command builds from the configuration.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	registry *prometheus.Registry
	metrics  *metrics.Collector
	tracer   *tracing.Observer
	shutdown tracing.ShutdownFunc
}

func newApp(flags *globalFlags, logOut io.Writer) (*app, error) {
	cfg, err := loadConfig(flags.configPath)
	if err != nil {
		return nil, err
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}
	if flags.logFormat != "" {
		cfg.Log.Format = flags.logFormat
	}

	logger, err := newLogger(cfg, logOut)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	a := &app{
		cfg:      cfg,
		logger:   logger,
		shutdown: func(context.Context) error { return nil },
	}

	if cfg.Metrics.Enabled {
		a.registry = prometheus.NewRegistry()
		a.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		a.metrics = metrics.New(
			metrics.WithNamespace(cfg.Metrics.Namespace),
			metrics.WithRegistry(a.registry),
		)
	}

	if cfg.Tracing.Enabled {
		shutdown, err := tracing.Setup(cfg.Tracing.Exporter, "reactor", version, nil)
		if err != nil {
			return nil, err
		}
		a.shutdown = shutdown
		a.tracer = tracing.New(tracing.WithTracerName(cfg.Tracing.TracerName))
	}
	return a, nil
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	return config.Load(wd)
}

func newLogger(cfg *config.Config, w io.Writer) (*slog.Logger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, fmt.Errorf("log level %q: %w", cfg.Log.Level, err)
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Log.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler), nil
}

// runtime creates a runtime observed by the configured observers and any
// extra ones.
func (a *app) runtime(extra ...reactive.Observer) *reactive.Runtime {
	obs := append([]reactive.Observer{}, extra...)
	if a.metrics != nil {
		obs = append(obs, a.metrics)
	}
	if a.tracer != nil {
		obs = append(obs, a.tracer)
	}
	return reactive.NewRuntime(
		reactive.WithLogger(a.logger.With("component", "reactive")),
		reactive.WithObserver(reactive.Observers(obs...)),
	)
}

func (a *app) budget() scheduler.BudgetConfig {
	return scheduler.BudgetConfig{
		MaxJobsPerFlush:  a.cfg.Scheduler.MaxJobsPerFlush,
		MaxJobsPerWindow: a.cfg.Scheduler.MaxJobsPerSecond,
		OnExceeded:       scheduler.ParseBudgetMode(a.cfg.Scheduler.OnExceeded),
	}
}

// runOptions returns the scenario options every command shares.
func (a *app) runOptions(extra ...scenario.RunOption) []scenario.RunOption {
	opts := []scenario.RunOption{
		scenario.WithLogger(a.logger.With("component", "scenario")),
		scenario.WithBudget(a.budget()),
	}
	if a.metrics != nil {
		opts = append(opts, scenario.WithFlushHook(a.metrics.ObserveFlush))
	}
	if a.tracer != nil {
		opts = append(opts, scenario.WithTracing(a.tracer))
	}
	return append(opts, extra...)
}

func (a *app) close(ctx context.Context) {
	if err := a.shutdown(ctx); err != nil {
		a.logger.Warn("tracer shutdown failed", "error", err)
	}
}
