package inspector

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vango-dev/reactor/pkg/reactive"
)

// Config configures an Inspector.
type Config struct {
	// EventBuffer is the number of events kept for /events.
	// Default: 1024.
	EventBuffer int

	// MaxEventsPerSecond limits messages pushed to each WebSocket client.
	// Zero disables the limit. Default: 200.
	MaxEventsPerSecond float64

	// Burst is the per-client limiter burst. Default: MaxEventsPerSecond.
	Burst int

	// TrackEvents records Tracked events, which are frequent.
	// Default: false.
	TrackEvents bool

	// Gatherer backs /metrics. If nil the route is not mounted.
	Gatherer prometheus.Gatherer

	// Logger is the inspector logger.
	Logger *slog.Logger
}

// Option configures an Inspector.
type Option func(*Config)

// WithEventBuffer sets the event ring size.
func WithEventBuffer(n int) Option {
	return func(c *Config) {
		c.EventBuffer = n
	}
}

// WithRateLimit sets the per-client message rate and burst.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Config) {
		c.MaxEventsPerSecond = perSecond
		c.Burst = burst
	}
}

// WithTrackEvents enables recording of Tracked events.
func WithTrackEvents(enabled bool) Option {
	return func(c *Config) {
		c.TrackEvents = enabled
	}
}

// WithGatherer mounts /metrics for the given gatherer.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(c *Config) {
		c.Gatherer = g
	}
}

// WithLogger sets the inspector logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

func defaultConfig() Config {
	return Config{
		EventBuffer:        1024,
		MaxEventsPerSecond: 200,
	}
}

// Inspector records engine events and serves them over HTTP.
// Its methods are safe for concurrent use.
type Inspector struct {
	config Config
	logger *slog.Logger

	mu     sync.RWMutex
	events *ring
	seq    uint64
	graph  reactive.GraphSnapshot
	graphT time.Time

	hub    *hub
	router chi.Router
}

// New creates an Inspector.
func New(opts ...Option) *Inspector {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	if config.EventBuffer <= 0 {
		config.EventBuffer = 1024
	}
	if config.Burst <= 0 {
		config.Burst = int(config.MaxEventsPerSecond)
		if config.Burst < 1 {
			config.Burst = 1
		}
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default().With("component", "inspector")
	}

	ins := &Inspector{
		config: config,
		logger: logger,
		events: newRing(config.EventBuffer),
		graph:  reactive.GraphSnapshot{Targets: []reactive.TargetSnapshot{}},
	}
	ins.hub = newHub(logger, config.MaxEventsPerSecond, config.Burst)
	ins.router = ins.routes()
	return ins
}

func (ins *Inspector) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("ok"))
	})
	r.Get("/graph", ins.handleGraph)
	r.Get("/events", ins.handleEvents)
	r.Get("/ws", ins.handleWebSocket)
	if ins.config.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(ins.config.Gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

// Handler returns the inspector's HTTP handler.
func (ins *Inspector) Handler() http.Handler {
	return ins.router
}

// record stamps ev, stores it and pushes it to clients.
func (ins *Inspector) record(ev Event) {
	ins.mu.Lock()
	ins.seq++
	ev.Seq = ins.seq
	ev.Time = time.Now()
	ins.events.add(ev)
	ins.mu.Unlock()

	ins.hub.broadcast(Message{Type: MessageEvent, Event: &ev})
}

// Publish replaces the served graph snapshot and pushes it to clients.
func (ins *Inspector) Publish(snap reactive.GraphSnapshot) {
	if snap.Targets == nil {
		snap.Targets = []reactive.TargetSnapshot{}
	}
	ins.mu.Lock()
	ins.graph = snap
	ins.graphT = time.Now()
	ins.mu.Unlock()

	ins.hub.broadcast(Message{Type: MessageGraph, Graph: &snap})
}

// Events returns up to limit most recent events, oldest first. A limit of
// zero or less returns the whole buffer.
func (ins *Inspector) Events(limit int) []Event {
	ins.mu.RLock()
	defer ins.mu.RUnlock()
	return ins.events.last(limit)
}

// Graph returns the latest published snapshot.
func (ins *Inspector) Graph() reactive.GraphSnapshot {
	ins.mu.RLock()
	defer ins.mu.RUnlock()
	return ins.graph
}

// Clients returns the number of connected WebSocket clients.
func (ins *Inspector) Clients() int {
	return ins.hub.count()
}

// Dropped returns the number of messages dropped by client rate limits or
// full send buffers.
func (ins *Inspector) Dropped() uint64 {
	return ins.hub.dropped.Load()
}

// Close disconnects all WebSocket clients.
func (ins *Inspector) Close() {
	ins.hub.close()
}

type graphResponse struct {
	Published time.Time              `json:"published"`
	Graph     reactive.GraphSnapshot `json:"graph"`
}

func (ins *Inspector) handleGraph(w http.ResponseWriter, _ *http.Request) {
	ins.mu.RLock()
	resp := graphResponse{Published: ins.graphT, Graph: ins.graph}
	ins.mu.RUnlock()
	writeJSON(w, http.StatusOK, resp)
}

func (ins *Inspector) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, ins.Events(limit))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
