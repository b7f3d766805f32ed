package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	rerrors "github.com/vango-dev/reactor/internal/errors"
	"github.com/vango-dev/reactor/pkg/reactive"
)

func TestQueueDedupe(t *testing.T) {
	q := NewQueue()
	runs := 0
	j := NewJob("j", func() { runs++ })

	if !q.Queue(j) {
		t.Fatal("first Queue should add the job")
	}
	if q.Queue(j) {
		t.Error("second Queue should be a no-op")
	}
	if q.Len() != 1 || !q.Pending(j) {
		t.Errorf("expected 1 pending job, got %d", q.Len())
	}

	if err := q.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if runs != 1 {
		t.Errorf("expected 1 run, got %d", runs)
	}
	if q.Pending(j) {
		t.Error("job should not be pending after flush")
	}
}

func TestQueueFIFO(t *testing.T) {
	q := NewQueue()
	var order []string
	for _, name := range []string{"a", "b", "c"} {
		name := name
		q.Post(name, func() { order = append(order, name) })
	}
	q.Flush()

	if len(order) != 3 || order[0] != "a" || order[1] != "b" || order[2] != "c" {
		t.Errorf("expected [a b c], got %v", order)
	}
}

func TestQueueJobsQueuedDuringFlush(t *testing.T) {
	q := NewQueue()
	var order []string
	second := NewJob("second", func() { order = append(order, "second") })
	q.Post("first", func() {
		order = append(order, "first")
		q.Queue(second)
		if err := q.Flush(); err != nil {
			t.Errorf("nested Flush: %v", err)
		}
	})

	q.Flush()
	if len(order) != 2 || order[1] != "second" {
		t.Errorf("expected job queued during flush to run, got %v", order)
	}
}

func TestQueueBudgetThrottle(t *testing.T) {
	q := NewQueue(WithBudget(BudgetConfig{MaxJobsPerFlush: 3}))

	// A job that keeps re-queueing itself.
	runs := 0
	var loop *Job
	loop = NewJob("loop", func() {
		runs++
		q.Queue(loop)
	})
	q.Queue(loop)

	err := q.Flush()
	if !errors.Is(err, ErrBudgetExceeded) {
		t.Fatalf("expected ErrBudgetExceeded, got %v", err)
	}
	if !errors.Is(err, rerrors.New("R002")) {
		t.Errorf("expected R002, got %v", err)
	}
	if runs != 3 {
		t.Errorf("expected 3 runs, got %d", runs)
	}
	if q.Len() != 1 || !q.Pending(loop) {
		t.Errorf("throttled job should stay queued")
	}

	q.Flush()
	if runs != 6 {
		t.Errorf("next flush should get a fresh budget, got %d runs", runs)
	}
}

func TestQueueBudgetTrip(t *testing.T) {
	q := NewQueue(WithBudget(BudgetConfig{MaxJobsPerFlush: 1, OnExceeded: BudgetModeTripBreaker}))
	q.Post("a", func() {})
	q.Post("b", func() {})
	q.Post("c", func() {})

	if err := q.Flush(); !errors.Is(err, ErrBudgetExceeded) {
		t.Fatalf("expected ErrBudgetExceeded, got %v", err)
	}
	if !q.Tripped() || q.Len() != 0 {
		t.Errorf("expected tripped empty queue, got tripped=%v len=%d", q.Tripped(), q.Len())
	}
	if q.Post("d", func() {}) {
		t.Error("tripped queue should refuse work")
	}

	q.Reset()
	if !q.Post("e", func() {}) {
		t.Error("reset queue should accept work")
	}
}

func TestQueueFlushHook(t *testing.T) {
	var stats []FlushStats
	q := NewQueue(WithFlushHook(func(s FlushStats) { stats = append(stats, s) }))

	q.Flush()
	if len(stats) != 0 {
		t.Errorf("empty flush should not report")
	}

	q.Post("a", func() {})
	q.Post("b", func() {})
	q.Flush()
	if len(stats) != 1 || stats[0].Jobs != 2 || stats[0].Left != 0 {
		t.Errorf("unexpected stats %+v", stats)
	}
	if s := q.Stats(); s.Flushes != 2 || s.JobsRun != 2 {
		t.Errorf("unexpected totals %+v", s)
	}
}

func TestQueueRun(t *testing.T) {
	q := NewQueue()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- q.Run(ctx) }()

	ran := make(chan struct{})
	q.Post("signal", func() { close(ran) })

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not run")
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestQueueRunResumesThrottledJobs(t *testing.T) {
	tests := []struct {
		name   string
		budget BudgetConfig
	}{
		{"per flush", BudgetConfig{MaxJobsPerFlush: 1}},
		{"window", BudgetConfig{MaxJobsPerWindow: 1, Window: 50 * time.Millisecond}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := NewQueue(WithBudget(tt.budget))
			ran := make(chan string, 2)
			q.Post("a", func() { ran <- "a" })
			q.Post("b", func() { ran <- "b" })

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			go q.Run(ctx)

			for _, want := range []string{"a", "b"} {
				select {
				case got := <-ran:
					if got != want {
						t.Errorf("expected %s, got %s", want, got)
					}
				case <-time.After(2 * time.Second):
					t.Fatalf("job %s did not run, %d pending", want, q.Len())
				}
			}
		})
	}
}

func TestQueueEffect(t *testing.T) {
	q := NewQueue()
	rt := reactive.NewRuntime()
	count := reactive.NewRefIn(rt, 0)

	var seen []int
	e := q.Effect(rt, func() {
		seen = append(seen, count.Get())
	})

	count.Set(1)
	count.Set(2)
	if len(seen) != 1 {
		t.Errorf("re-runs should wait for flush, got %v", seen)
	}
	if q.Len() != 1 {
		t.Errorf("expected one queued job, got %d", q.Len())
	}

	q.Flush()
	if len(seen) != 2 || seen[1] != 2 {
		t.Errorf("expected one re-run with the latest value, got %v", seen)
	}

	count.Set(3)
	e.Stop()
	q.Flush()
	if len(seen) != 2 {
		t.Errorf("stopped effect should not run, got %v", seen)
	}
}

func TestQueueDeferredWatch(t *testing.T) {
	q := NewQueue()
	rt := reactive.NewRuntime()
	state := rt.Reactive(map[string]any{"n": 0}).(*reactive.Object)

	var changes [][2]any
	rt.Watch(state, func(n, o any, _ func(func())) {
		changes = append(changes, [2]any{n, o})
	}, reactive.WithWatchScheduler(q.Deferred("state")))

	state.Set("n", 1)
	state.Set("n", 2)
	if q.Len() != 1 {
		t.Errorf("expected one queued watcher job, got %d", q.Len())
	}
	q.Flush()
	if len(changes) != 1 {
		t.Errorf("expected one callback, got %d", len(changes))
	}
}

func TestBudgetWindow(t *testing.T) {
	b := NewBudget(&BudgetConfig{MaxJobsPerWindow: 2, Window: time.Minute})
	now := time.Unix(1000, 0)
	b.window.now = func() time.Time { return now }

	if b.CheckJob() != nil || b.CheckJob() != nil {
		t.Fatal("first two jobs should pass")
	}
	b.ResetFlush()
	if !errors.Is(b.CheckJob(), ErrBudgetExceeded) {
		t.Error("window limit should hold across flushes")
	}
	now = now.Add(20 * time.Second)
	if d := b.RetryAfter(); d != 40*time.Second {
		t.Errorf("expected retry after 40s, got %v", d)
	}

	now = now.Add(2 * time.Minute)
	if err := b.CheckJob(); err != nil {
		t.Errorf("window should have slid, got %v", err)
	}
	if s := b.Stats(); s.JobsInWindow != 1 {
		t.Errorf("expected 1 job in window, got %d", s.JobsInWindow)
	}
}

func TestNilBudget(t *testing.T) {
	var b *Budget
	if b.CheckJob() != nil {
		t.Error("nil budget should allow everything")
	}
	b.ResetFlush()
	if b.Mode() != BudgetModeThrottle {
		t.Error("nil budget should throttle")
	}
	if b.RetryAfter() != 0 {
		t.Error("nil budget should never ask to wait")
	}
}

func TestParseBudgetMode(t *testing.T) {
	tests := []struct {
		in   string
		want BudgetMode
	}{
		{"trip", BudgetModeTripBreaker},
		{"throttle", BudgetModeThrottle},
		{"", BudgetModeThrottle},
	}
	for _, tt := range tests {
		if got := ParseBudgetMode(tt.in); got != tt.want {
			t.Errorf("ParseBudgetMode(%q) = %v, want %v", tt.in, got, tt.want)
		}
		if tt.in != "" && ParseBudgetMode(tt.in).String() != tt.in {
			t.Errorf("String() should round-trip %q", tt.in)
		}
	}
}
