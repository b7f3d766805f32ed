package scheduler

import (
	"sync"
	"time"
)

// BudgetMode determines behavior when a storm budget is exceeded.
type BudgetMode int

const (
	// BudgetModeThrottle stops the flush and leaves the remaining jobs
	// queued for the next one (default).
	BudgetModeThrottle BudgetMode = iota

	// BudgetModeTripBreaker discards the remaining jobs and refuses new ones
	// until Reset is called.
	BudgetModeTripBreaker
)

// String returns the config spelling of the mode.
func (m BudgetMode) String() string {
	if m == BudgetModeTripBreaker {
		return "trip"
	}
	return "throttle"
}

// ParseBudgetMode maps "throttle" and "trip" to a mode. Anything else is
// throttle.
func ParseBudgetMode(s string) BudgetMode {
	if s == "trip" {
		return BudgetModeTripBreaker
	}
	return BudgetModeThrottle
}

// BudgetConfig holds the limits applied while flushing. Zero disables a
// limit.
type BudgetConfig struct {
	// MaxJobsPerFlush bounds the jobs run by one Flush, including jobs
	// queued while it runs.
	MaxJobsPerFlush int

	// MaxJobsPerWindow bounds the jobs run within Window across flushes.
	MaxJobsPerWindow int

	// Window defaults to one second.
	Window time.Duration

	OnExceeded BudgetMode
}

// Budget protects a queue against amplification loops where jobs keep
// queueing more jobs. A nil *Budget allows everything.
type Budget struct {
	maxPerFlush   int
	window        *slidingWindow
	onExceeded    BudgetMode
	jobsThisFlush int
	mu            sync.Mutex
}

// NewBudget creates a budget. A nil config returns nil.
func NewBudget(cfg *BudgetConfig) *Budget {
	if cfg == nil {
		return nil
	}
	window := cfg.Window
	if window == 0 {
		window = time.Second
	}
	return &Budget{
		maxPerFlush: cfg.MaxJobsPerFlush,
		window:      newSlidingWindow(window, cfg.MaxJobsPerWindow),
		onExceeded:  cfg.OnExceeded,
	}
}

// CheckJob reserves one job slot. It returns ErrBudgetExceeded when either
// limit is reached.
func (b *Budget) CheckJob() error {
	if b == nil {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.maxPerFlush > 0 && b.jobsThisFlush >= b.maxPerFlush {
		return ErrBudgetExceeded
	}
	if !b.window.tryAdd() {
		return ErrBudgetExceeded
	}
	b.jobsThisFlush++
	return nil
}

// ResetFlush resets the per-flush counter. Flush calls it on entry.
func (b *Budget) ResetFlush() {
	if b == nil {
		return
	}
	b.mu.Lock()
	b.jobsThisFlush = 0
	b.mu.Unlock()
}

// Mode returns the configured behavior when the budget is exceeded.
func (b *Budget) Mode() BudgetMode {
	if b == nil {
		return BudgetModeThrottle
	}
	return b.onExceeded
}

// RetryAfter returns how long until the window has room for another job.
// It is zero when only the per-flush limit stopped the last flush.
func (b *Budget) RetryAfter() time.Duration {
	if b == nil {
		return 0
	}
	return b.window.nextFree()
}

// BudgetStats reports current usage.
type BudgetStats struct {
	JobsThisFlush int `json:"jobsThisFlush"`
	JobsInWindow  int `json:"jobsInWindow"`
}

// Stats returns the jobs counted in the current flush and window.
func (b *Budget) Stats() BudgetStats {
	if b == nil {
		return BudgetStats{}
	}
	b.mu.Lock()
	n := b.jobsThisFlush
	b.mu.Unlock()
	return BudgetStats{JobsThisFlush: n, JobsInWindow: b.window.count()}
}

// slidingWindow counts events within a time window.
type slidingWindow struct {
	events     []time.Time
	windowSize time.Duration
	maxEvents  int
	now        func() time.Time
	mu         sync.Mutex
}

func newSlidingWindow(windowSize time.Duration, maxEvents int) *slidingWindow {
	return &slidingWindow{
		windowSize: windowSize,
		maxEvents:  maxEvents,
		now:        time.Now,
	}
}

// tryAdd records an event if the window has room.
func (w *slidingWindow) tryAdd() bool {
	if w.maxEvents == 0 {
		return true
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	w.prune(now)
	if len(w.events) >= w.maxEvents {
		return false
	}
	w.events = append(w.events, now)
	return true
}

func (w *slidingWindow) prune(now time.Time) {
	cutoff := now.Add(-w.windowSize)
	valid := 0
	for _, t := range w.events {
		if t.After(cutoff) {
			w.events[valid] = t
			valid++
		}
	}
	w.events = w.events[:valid]
}

func (w *slidingWindow) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.prune(w.now())
	return len(w.events)
}

// nextFree returns the time until the oldest event leaves a full window.
func (w *slidingWindow) nextFree() time.Duration {
	if w.maxEvents == 0 {
		return 0
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	now := w.now()
	w.prune(now)
	if len(w.events) < w.maxEvents {
		return 0
	}
	return w.events[0].Add(w.windowSize).Sub(now)
}
