package main

import (
	"encoding/json"
	"fmt"
	"io"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/spf13/cobra"
)

// buildInfo describes the running binary. Values stamped with -ldflags win
// over the VCS settings embedded by the toolchain.
type buildInfo struct {
	Version   string            `json:"version"`
	Commit    string            `json:"commit"`
	Date      string            `json:"date"`
	Module    string            `json:"module"`
	GoVersion string            `json:"goVersion"`
	Platform  string            `json:"platform"`
	Deps      map[string]string `json:"deps,omitempty"`
}

// reportedDeps are the libraries whose versions matter when filing issues
// about the engine's metrics, tracing or inspector output.
var reportedDeps = []string{
	"github.com/prometheus/client_golang",
	"go.opentelemetry.io/otel",
	"github.com/gorilla/websocket",
	"gopkg.in/yaml.v3",
}

func currentBuild() buildInfo {
	bi, _ := debug.ReadBuildInfo()
	return newBuildInfo(bi)
}

func newBuildInfo(bi *debug.BuildInfo) buildInfo {
	info := buildInfo{
		Version:   version,
		Commit:    commit,
		Date:      date,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if bi == nil {
		return info
	}

	info.Module = bi.Main.Path
	dirty := false
	if info.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch {
		case s.Key == "vcs.revision" && info.Commit == "none":
			info.Commit = s.Value
		case s.Key == "vcs.time" && info.Date == "unknown":
			info.Date = s.Value
		case s.Key == "vcs.modified" && s.Value == "true":
			dirty = true
		}
	}
	if dirty && !strings.HasSuffix(info.Commit, "-dirty") {
		info.Commit += "-dirty"
	}
	for _, dep := range bi.Deps {
		for _, want := range reportedDeps {
			if dep.Path == want {
				if info.Deps == nil {
					info.Deps = make(map[string]string)
				}
				info.Deps[dep.Path] = dep.Version
			}
		}
	}
	return info
}

func (b buildInfo) write(w io.Writer) {
	fmt.Fprintf(w, "  Version:    %s\n", b.Version)
	fmt.Fprintf(w, "  Commit:     %s\n", b.Commit)
	fmt.Fprintf(w, "  Built:      %s\n", b.Date)
	if b.Module != "" {
		fmt.Fprintf(w, "  Module:     %s\n", b.Module)
	}
	fmt.Fprintf(w, "  Go version: %s\n", b.GoVersion)
	fmt.Fprintf(w, "  OS/Arch:    %s\n", b.Platform)
	for _, dep := range reportedDeps {
		if v, ok := b.Deps[dep]; ok {
			fmt.Fprintf(w, "  %s %s\n", dep, v)
		}
	}
}

func versionCmd() *cobra.Command {
	var (
		short  bool
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long:  `Print the reactor version, the commit it was built from and the versions of its metrics, tracing and inspector libraries.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := currentBuild()
			out := cmd.OutOrStdout()
			switch {
			case short:
				fmt.Fprintln(out, info.Version)
			case asJSON:
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			default:
				printBanner()
				fmt.Fprintln(out)
				info.write(out)
				fmt.Fprintln(out)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&short, "short", "s", false, "Print only version number")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print build information as JSON")

	return cmd
}
