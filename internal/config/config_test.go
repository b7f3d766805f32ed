package config

import (
	stderrors "errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/vango-dev/reactor/internal/errors"
)

func TestNew(t *testing.T) {
	cfg := New()

	if cfg.Inspector.Addr != DefaultInspectorAddr {
		t.Errorf("Inspector.Addr = %q, want %q", cfg.Inspector.Addr, DefaultInspectorAddr)
	}
	if cfg.Metrics.Namespace != DefaultNamespace || !cfg.Metrics.Enabled {
		t.Errorf("unexpected metrics defaults %+v", cfg.Metrics)
	}
	if cfg.Scheduler.MaxJobsPerFlush != DefaultMaxJobsPerFlush {
		t.Errorf("Scheduler.MaxJobsPerFlush = %d, want %d", cfg.Scheduler.MaxJobsPerFlush, DefaultMaxJobsPerFlush)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Path() != "" {
		t.Errorf("expected defaults without a path, got %q", cfg.Path())
	}
}

func TestLoadJSON(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "reactor.json", `{
  "log": {"level": "debug"},
  "inspector": {"addr": ":9000"},
  "scheduler": {"maxJobsPerFlush": 50, "onExceeded": "trip"}
}
`)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Inspector.Addr != ":9000" {
		t.Errorf("Inspector.Addr = %q, want :9000", cfg.Inspector.Addr)
	}
	if cfg.Scheduler.MaxJobsPerFlush != 50 || cfg.Scheduler.OnExceeded != "trip" {
		t.Errorf("unexpected scheduler %+v", cfg.Scheduler)
	}
	if lvl, _ := cfg.SlogLevel(); lvl != slog.LevelDebug {
		t.Errorf("SlogLevel = %v, want debug", lvl)
	}
	// Untouched sections keep defaults.
	if cfg.Log.Format != "text" || cfg.Inspector.EventBuffer != 256 {
		t.Errorf("defaults not applied: %+v %+v", cfg.Log, cfg.Inspector)
	}
	if cfg.Path() != filepath.Join(dir, "reactor.json") {
		t.Errorf("Path = %q", cfg.Path())
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "reactor.yaml", `log:
  format: json
metrics:
  enabled: false
tracing:
  enabled: true
  exporter: stdout
watch:
  debounce: 1s
`)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want json", cfg.Log.Format)
	}
	if cfg.Metrics.Enabled {
		t.Error("Metrics.Enabled should be false")
	}
	if !cfg.Tracing.Enabled || cfg.Tracing.Exporter != "stdout" {
		t.Errorf("unexpected tracing %+v", cfg.Tracing)
	}
	if cfg.Debounce() != time.Second {
		t.Errorf("Debounce = %v, want 1s", cfg.Debounce())
	}
	if cfg.Tracing.TracerName != DefaultTracerName {
		t.Errorf("TracerName default not applied")
	}
}

func TestLoadPrefersJSON(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "reactor.json", `{"inspector": {"addr": ":1"}}`)
	writeFile(t, dir, "reactor.yaml", "inspector:\n  addr: \":2\"\n")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Inspector.Addr != ":1" {
		t.Errorf("expected reactor.json to win, got %q", cfg.Inspector.Addr)
	}
}

func TestLoadFileErrors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		file    string
		content string
		detail  string
	}{
		{
			name:    "missing file",
			file:    "absent.json",
			content: "",
			detail:  "No configuration file",
		},
		{
			name:    "bad json",
			file:    "bad.json",
			content: `{"log": `,
			detail:  "Failed to parse bad.json",
		},
		{
			name:    "bad yaml",
			file:    "bad.yaml",
			content: "log:\n  level: [\n",
			detail:  "",
		},
		{
			name:    "invalid level",
			file:    "level.json",
			content: `{"log": {"level": "loud"}}`,
			detail:  "log.level",
		},
		{
			name:    "invalid addr",
			file:    "addr.json",
			content: `{"inspector": {"addr": "nope"}}`,
			detail:  "inspector.addr",
		},
		{
			name:    "invalid mode",
			file:    "mode.yaml",
			content: "scheduler:\n  onExceeded: explode\n",
			detail:  "scheduler.onExceeded",
		},
		{
			name:    "invalid exporter",
			file:    "exp.yaml",
			content: "tracing:\n  exporter: jaeger\n",
			detail:  "tracing.exporter",
		},
		{
			name:    "invalid interval",
			file:    "interval.json",
			content: `{"inspector": {"snapshotInterval": "0s"}}`,
			detail:  "snapshotInterval",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.file)
			if tt.content != "" {
				writeFile(t, dir, tt.file, tt.content)
			}

			_, err := LoadFile(path)
			if err == nil {
				t.Fatal("expected error")
			}
			var re *errors.ReactorError
			if !stderrors.As(err, &re) || re.Code != "R003" {
				t.Fatalf("expected R003, got %v", err)
			}
			if tt.detail != "" && !strings.Contains(re.Detail, tt.detail) {
				t.Errorf("Detail = %q, want it to contain %q", re.Detail, tt.detail)
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"out.json", "out.yaml"} {
		cfg := New()
		cfg.Inspector.Addr = "0.0.0.0:8123"
		cfg.Scheduler.MaxJobsPerSecond = 99

		path := filepath.Join(dir, name)
		if err := cfg.SaveTo(path); err != nil {
			t.Fatalf("SaveTo(%s): %v", name, err)
		}
		loaded, err := LoadFile(path)
		if err != nil {
			t.Fatalf("LoadFile(%s): %v", name, err)
		}
		if loaded.Inspector.Addr != "0.0.0.0:8123" || loaded.Scheduler.MaxJobsPerSecond != 99 {
			t.Errorf("%s: values lost in round trip: %+v", name, loaded)
		}
	}
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}
