package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/vango-dev/reactor/internal/config"
)

const exampleScenario = `name: counter
description: A counter, its double, and a watch on both.
state:
  count: 0
effects:
  - name: render
    reads: [count]
computeds:
  - name: double
    sum: [count, count]
watches:
  - name: log
    path: count
steps:
  - expect: {fired: {render: 1, log: 0}, computed: {double: 0}}
  - set: {path: count, value: 2}
  - expect: {fired: {render: 2, log: 1}, computed: {double: 4}}
  - set: {path: count, value: 2}
  - expect: {fired: {render: 2, log: 1}}
`

func initCmd() *cobra.Command {
	var (
		format string
		force  bool
	)

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Write a default config and an example scenario",
		Long: `Write reactor.yaml (or reactor.json) with default settings and
scenarios/counter.yaml to the target directory.

Examples:
  reactor init
  reactor init myproject --format=json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			return runInit(dir, format, force)
		},
	}

	cmd.Flags().StringVar(&format, "format", "yaml", "Config format (yaml, json)")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite existing files")

	return cmd
}

func runInit(dir, format string, force bool) error {
	var name string
	switch format {
	case "yaml":
		name = "reactor.yaml"
	case "json":
		name = "reactor.json"
	default:
		return fmt.Errorf("unknown format %q", format)
	}

	cfgPath := filepath.Join(dir, name)
	scenarioPath := filepath.Join(dir, "scenarios", "counter.yaml")
	for _, p := range []string{cfgPath, scenarioPath} {
		if _, err := os.Stat(p); err == nil && !force {
			return fmt.Errorf("%s already exists (use --force to overwrite)", p)
		}
	}

	if err := os.MkdirAll(filepath.Dir(scenarioPath), 0o755); err != nil {
		return err
	}
	if err := config.New().SaveTo(cfgPath); err != nil {
		return err
	}
	if err := os.WriteFile(scenarioPath, []byte(exampleScenario), 0o644); err != nil {
		return err
	}

	success("Wrote %s", cfgPath)
	success("Wrote %s", scenarioPath)
	info("Run it with: reactor run %s", filepath.Dir(scenarioPath))
	return nil
}
