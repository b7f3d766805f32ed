package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	rerrors "github.com/vango-dev/reactor/internal/errors"
	"github.com/vango-dev/reactor/internal/filewatch"
	"github.com/vango-dev/reactor/internal/scenario"
	"github.com/vango-dev/reactor/pkg/inspector"
	"github.com/vango-dev/reactor/pkg/scheduler"
)

func serveCmd(flags *globalFlags) *cobra.Command {
	var (
		addr  string
		watch bool
		every time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve [files or directories...]",
		Short: "Run scenarios behind the live inspector",
		Long: `Start the inspector and run scenarios on a single engine goroutine.

The inspector serves the dependency graph, a WebSocket event stream and
Prometheus metrics. Scenarios run once at start, again on file change
with --watch, and on a fixed period with --every.

Examples:
  reactor serve scenarios/
  reactor serve cart.yaml --addr=:7070 --watch
  reactor serve scenarios/ --every=5s`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(flags, os.Stderr)
			if err != nil {
				return err
			}
			defer a.close(context.Background())

			if addr != "" {
				a.cfg.Inspector.Addr = addr
			}
			files, err := scenario.Discover(args)
			if err != nil {
				return err
			}
			return serve(ctx, a, files, watch, every)
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Inspector address (default from config)")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Re-run scenarios on file change")
	cmd.Flags().DurationVar(&every, "every", 0, "Re-run scenarios on this period")

	return cmd
}

// serve confines the runtime to the goroutine running the engine queue.
// Other goroutines hand work to it with Post.
func serve(ctx context.Context, a *app, files []string, watch bool, every time.Duration) error {
	opts := []inspector.Option{
		inspector.WithLogger(a.logger.With("component", "inspector")),
		inspector.WithEventBuffer(a.cfg.Inspector.EventBuffer),
		inspector.WithRateLimit(float64(a.cfg.Inspector.MaxEventsPerSecond), 0),
	}
	if a.registry != nil {
		opts = append(opts, inspector.WithGatherer(a.registry))
	}
	ins := inspector.New(opts...)

	engine := newEngine(a)
	post := func(name string, fn func()) {
		if !engine.Post(name, fn) {
			a.logger.Warn("engine refused job", "job", name)
		}
	}
	rt := a.runtime(ins)

	runAll := func() {
		for _, file := range files {
			s, err := scenario.Load(file)
			if err != nil {
				a.logger.Error("scenario load failed", "file", file, "error", err)
				continue
			}
			report, err := s.Run(ctx, rt, a.runOptions(
				scenario.WithStepHook(func(int, *scenario.Step) { ins.Publish(rt.Snapshot()) }),
			)...)
			if err != nil {
				var re *rerrors.ReactorError
				if errors.As(err, &re) {
					a.logger.Error("scenario aborted", re.LogAttrs()...)
				}
				continue
			}
			a.logger.Info("scenario finished",
				"scenario", report.Scenario,
				"passed", report.Passed(),
				"steps", report.Steps)
		}
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return ins.ListenAndServe(ctx, a.cfg.Inspector.Addr)
	})

	g.Go(func() error {
		err := engine.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		snapshot := time.NewTicker(a.cfg.SnapshotInterval())
		defer snapshot.Stop()

		var rerun <-chan time.Time
		if every > 0 {
			t := time.NewTicker(every)
			defer t.Stop()
			rerun = t.C
		}

		post("scenarios", runAll)
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-snapshot.C:
				post("snapshot", func() { ins.Publish(rt.Snapshot()) })
			case <-rerun:
				post("scenarios", runAll)
			}
		}
	})

	if watch && len(files) > 0 {
		w, err := filewatch.New(filewatch.Config{
			Paths:    files,
			Debounce: a.cfg.Debounce(),
			Logger:   a.logger.With("component", "filewatch"),
		})
		if err != nil {
			return err
		}
		g.Go(func() error { return w.Run(ctx) })
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case change := <-w.Changes():
					a.logger.Info("scenario changed", "path", change.Path)
					post("scenarios", runAll)
				}
			}
		})
	}

	printBanner()
	info("inspector on http://%s", a.cfg.Inspector.Addr)
	info("%d scenarios, Ctrl+C to stop", len(files))
	fmt.Println()

	return g.Wait()
}

// newEngine builds the queue that owns the serve runtime. It carries only
// control jobs, so the scenario storm budget is not applied to it.
func newEngine(a *app) *scheduler.Queue {
	return scheduler.NewQueue(scheduler.WithLogger(a.logger.With("component", "engine")))
}
