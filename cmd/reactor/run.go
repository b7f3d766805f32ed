package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	rerrors "github.com/vango-dev/reactor/internal/errors"
	"github.com/vango-dev/reactor/internal/filewatch"
	"github.com/vango-dev/reactor/internal/scenario"
)

func runCmd(flags *globalFlags) *cobra.Command {
	var (
		watch   bool
		jsonOut bool
	)

	cmd := &cobra.Command{
		Use:   "run [files or directories...]",
		Short: "Run scenario files",
		Long: `Run scenario files against a fresh runtime and report the results.

Directories are expanded to the .yaml and .yml files they contain.
With --watch the scenarios are re-run whenever one of them, or the
config file, changes.

Examples:
  reactor run scenarios/
  reactor run cart.yaml --watch
  reactor run scenarios/ --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(flags, os.Stderr)
			if err != nil {
				return err
			}
			defer a.close(context.Background())

			files, err := scenario.Discover(args)
			if err != nil {
				return err
			}
			if len(files) == 0 {
				return fmt.Errorf("no scenario files in %v", args)
			}

			if !watch {
				return runOnce(ctx, a, files, jsonOut)
			}
			return runWatch(ctx, a, files, jsonOut)
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Re-run on file change")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print reports as JSON lines")

	return cmd
}

// errFailed is returned when at least one scenario failed.
var errFailed = errors.New("scenarios failed")

func runOnce(ctx context.Context, a *app, files []string, jsonOut bool) error {
	failed := 0
	for _, file := range files {
		s, err := scenario.Load(file)
		if err != nil {
			rerrors.Fprint(os.Stderr, err)
			failed++
			continue
		}

		report, err := s.Run(ctx, a.runtime(), a.runOptions()...)
		if jsonOut {
			data, _ := json.Marshal(report)
			fmt.Println(string(data))
		} else {
			report.Write(os.Stdout)
		}
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			rerrors.Fprint(os.Stderr, err)
			failed++
			continue
		}
		if !report.Passed() {
			failed++
		}
	}

	if failed > 0 {
		return fmt.Errorf("%w: %d of %d", errFailed, failed, len(files))
	}
	if !jsonOut {
		success("%d scenarios passed", len(files))
	}
	return nil
}

func runWatch(ctx context.Context, a *app, files []string, jsonOut bool) error {
	paths := append([]string{}, files...)
	if p := a.cfg.Path(); p != "" {
		paths = append(paths, p)
	}

	w, err := filewatch.New(filewatch.Config{
		Paths:    paths,
		Debounce: a.cfg.Debounce(),
		Logger:   a.logger.With("component", "filewatch"),
	})
	if err != nil {
		return err
	}
	go w.Run(ctx)

	printBanner()
	info("watching %d files, Ctrl+C to stop", len(paths))
	fmt.Println()

	for {
		if err := runOnce(ctx, a, files, jsonOut); err != nil && !errors.Is(err, errFailed) {
			return err
		} else if err != nil {
			errorMsg("%s", err)
		}

		select {
		case <-ctx.Done():
			fmt.Println("\n  Shutting down...")
			return nil
		case change := <-w.Changes():
			fmt.Println()
			info("%s changed, re-running", change.Path)
			if change.Path == a.cfg.Path() {
				reloaded, err := loadConfig(change.Path)
				if err != nil {
					rerrors.Fprint(os.Stderr, err)
					continue
				}
				a.cfg = reloaded
			}
		}
	}
}
