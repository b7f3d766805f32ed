package config

import (
	"encoding/json"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vango-dev/reactor/internal/errors"
)

// FileNames are the configuration files Load looks for, in order.
var FileNames = []string{"reactor.json", "reactor.yaml", "reactor.yml"}

const (
	// DefaultInspectorAddr is the default inspector listen address.
	DefaultInspectorAddr = "localhost:7070"

	// DefaultNamespace is the default Prometheus namespace.
	DefaultNamespace = "reactor"

	// DefaultTracerName is the default OpenTelemetry tracer name.
	DefaultTracerName = "github.com/vango-dev/reactor"

	// DefaultMaxJobsPerFlush bounds a single scheduler flush.
	DefaultMaxJobsPerFlush = 10000
)

// Config is the complete reactor configuration.
type Config struct {
	Log       LogConfig       `json:"log" yaml:"log"`
	Inspector InspectorConfig `json:"inspector" yaml:"inspector"`
	Metrics   MetricsConfig   `json:"metrics" yaml:"metrics"`
	Tracing   TracingConfig   `json:"tracing" yaml:"tracing"`
	Scheduler SchedulerConfig `json:"scheduler" yaml:"scheduler"`
	Watch     WatchConfig     `json:"watch" yaml:"watch"`

	// configPath stores the path where the config was loaded from.
	configPath string
}

// LogConfig selects the slog handler.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `json:"level,omitempty" yaml:"level,omitempty"`

	// Format is text or json.
	Format string `json:"format,omitempty" yaml:"format,omitempty"`
}

// InspectorConfig configures the HTTP inspector started by `reactor serve`.
type InspectorConfig struct {
	Addr string `json:"addr,omitempty" yaml:"addr,omitempty"`

	// EventBuffer is the number of recent events kept for /events.
	EventBuffer int `json:"eventBuffer,omitempty" yaml:"eventBuffer,omitempty"`

	// SnapshotInterval is how often the graph is republished (e.g. "500ms").
	SnapshotInterval string `json:"snapshotInterval,omitempty" yaml:"snapshotInterval,omitempty"`

	// MaxEventsPerSecond throttles the websocket stream per client.
	MaxEventsPerSecond int `json:"maxEventsPerSecond,omitempty" yaml:"maxEventsPerSecond,omitempty"`
}

// MetricsConfig configures the Prometheus observer.
type MetricsConfig struct {
	Enabled   bool   `json:"enabled" yaml:"enabled"`
	Namespace string `json:"namespace,omitempty" yaml:"namespace,omitempty"`
}

// TracingConfig configures the OpenTelemetry observer.
type TracingConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	TracerName string `json:"tracerName,omitempty" yaml:"tracerName,omitempty"`

	// Exporter is stdout or none.
	Exporter string `json:"exporter,omitempty" yaml:"exporter,omitempty"`
}

// SchedulerConfig configures the job queue storm budget.
type SchedulerConfig struct {
	MaxJobsPerFlush  int    `json:"maxJobsPerFlush,omitempty" yaml:"maxJobsPerFlush,omitempty"`
	MaxJobsPerSecond int    `json:"maxJobsPerSecond,omitempty" yaml:"maxJobsPerSecond,omitempty"`
	OnExceeded       string `json:"onExceeded,omitempty" yaml:"onExceeded,omitempty"`
}

// WatchConfig configures `reactor run --watch`.
type WatchConfig struct {
	// Debounce coalesces bursts of file events (e.g. "200ms").
	Debounce string `json:"debounce,omitempty" yaml:"debounce,omitempty"`
}

// New creates a new Config with default values.
func New() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Inspector: InspectorConfig{
			Addr:             DefaultInspectorAddr,
			EventBuffer:      256,
			SnapshotInterval: "500ms",
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: DefaultNamespace,
		},
		Tracing: TracingConfig{
			TracerName: DefaultTracerName,
			Exporter:   "none",
		},
		Scheduler: SchedulerConfig{
			MaxJobsPerFlush: DefaultMaxJobsPerFlush,
			OnExceeded:      "throttle",
		},
		Watch: WatchConfig{
			Debounce: "200ms",
		},
	}
}

// Load reads the first configuration file found in dir. When dir holds none
// of FileNames the defaults are returned.
func Load(dir string) (*Config, error) {
	for _, name := range FileNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return LoadFile(path)
		}
	}
	return New(), nil
}

// LoadFile reads configuration from path. The format follows the file
// extension: .yaml and .yml are YAML, anything else is JSON.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("R003").
				WithDetail("No configuration file at " + path).
				Wrap(err)
		}
		return nil, errors.New("R003").Wrap(err)
	}

	cfg := New()
	if isYAML(path) {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.New("R003").
				WithLocationFromYAML(path, err).
				WithSuggestion("Check that " + filepath.Base(path) + " is valid YAML").
				Wrap(err)
		}
	} else {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, errors.New("R003").
				WithDetail("Failed to parse " + filepath.Base(path) + ": " + err.Error()).
				WithSuggestion("Check that " + filepath.Base(path) + " is valid JSON")
		}
	}

	cfg.configPath = path
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveTo writes the configuration to path in the format its extension
// selects.
func (c *Config) SaveTo(path string) error {
	var data []byte
	var err error
	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
		data = append(data, '\n')
	}
	if err != nil {
		return errors.New("R003").Wrap(err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.New("R003").Wrap(err)
	}
	c.configPath = path
	return nil
}

// Path returns the path where the config was loaded from, or "" for
// defaults.
func (c *Config) Path() string {
	return c.configPath
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// applyDefaults fills in default values for empty fields.
func (c *Config) applyDefaults() {
	d := New()
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}
	if c.Inspector.Addr == "" {
		c.Inspector.Addr = d.Inspector.Addr
	}
	if c.Inspector.EventBuffer == 0 {
		c.Inspector.EventBuffer = d.Inspector.EventBuffer
	}
	if c.Inspector.SnapshotInterval == "" {
		c.Inspector.SnapshotInterval = d.Inspector.SnapshotInterval
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = d.Metrics.Namespace
	}
	if c.Tracing.TracerName == "" {
		c.Tracing.TracerName = d.Tracing.TracerName
	}
	if c.Tracing.Exporter == "" {
		c.Tracing.Exporter = d.Tracing.Exporter
	}
	if c.Scheduler.MaxJobsPerFlush == 0 {
		c.Scheduler.MaxJobsPerFlush = d.Scheduler.MaxJobsPerFlush
	}
	if c.Scheduler.OnExceeded == "" {
		c.Scheduler.OnExceeded = d.Scheduler.OnExceeded
	}
	if c.Watch.Debounce == "" {
		c.Watch.Debounce = d.Watch.Debounce
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	invalid := func(detail string) error {
		err := errors.New("R003").WithDetail(detail)
		if c.configPath != "" {
			err.WithField("file", c.configPath)
		}
		return err
	}

	if _, err := c.SlogLevel(); err != nil {
		return invalid("log.level must be debug, info, warn or error, got " + c.Log.Level)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return invalid("log.format must be text or json, got " + c.Log.Format)
	}
	if _, _, err := net.SplitHostPort(c.Inspector.Addr); err != nil {
		return invalid("inspector.addr must be host:port, got " + c.Inspector.Addr)
	}
	if c.Inspector.EventBuffer < 0 {
		return invalid("inspector.eventBuffer must not be negative")
	}
	if c.Inspector.MaxEventsPerSecond < 0 {
		return invalid("inspector.maxEventsPerSecond must not be negative")
	}
	if d, err := time.ParseDuration(c.Inspector.SnapshotInterval); err != nil || d <= 0 {
		return invalid("inspector.snapshotInterval must be a positive duration, got " + c.Inspector.SnapshotInterval)
	}
	if c.Tracing.Exporter != "stdout" && c.Tracing.Exporter != "none" {
		return invalid("tracing.exporter must be stdout or none, got " + c.Tracing.Exporter)
	}
	if c.Scheduler.MaxJobsPerFlush < 0 || c.Scheduler.MaxJobsPerSecond < 0 {
		return invalid("scheduler limits must not be negative")
	}
	if c.Scheduler.OnExceeded != "throttle" && c.Scheduler.OnExceeded != "trip" {
		return invalid("scheduler.onExceeded must be throttle or trip, got " + c.Scheduler.OnExceeded)
	}
	if d, err := time.ParseDuration(c.Watch.Debounce); err != nil || d < 0 {
		return invalid("watch.debounce must be a duration, got " + c.Watch.Debounce)
	}
	return nil
}

// SlogLevel maps Log.Level to a slog level.
func (c *Config) SlogLevel() (slog.Level, error) {
	var l slog.Level
	err := l.UnmarshalText([]byte(c.Log.Level))
	return l, err
}

// SnapshotInterval returns the parsed inspector snapshot interval.
func (c *Config) SnapshotInterval() time.Duration {
	d, err := time.ParseDuration(c.Inspector.SnapshotInterval)
	if err != nil || d <= 0 {
		return 500 * time.Millisecond
	}
	return d
}

// Debounce returns the parsed file watch debounce.
func (c *Config) Debounce() time.Duration {
	d, err := time.ParseDuration(c.Watch.Debounce)
	if err != nil || d < 0 {
		return 200 * time.Millisecond
	}
	return d
}
