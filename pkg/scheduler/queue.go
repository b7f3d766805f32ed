// Package scheduler defers reactive work onto a deduplicated job queue.
//
// Effects and watchers created through a Queue do not re-run when their
// dependencies change; they are queued once and run on the next Flush, in
// the order they were first queued. Several writes between flushes
// therefore cost one run per job.
//
//	q := scheduler.NewQueue()
//	rt := reactive.NewRuntime()
//	count := reactive.NewRefIn(rt, 0)
//	q.Effect(rt, func() { fmt.Println(count.Get()) })
//	count.Set(1)
//	count.Set(2)
//	q.Flush() // prints 2 once
//
// A Queue may be fed from any goroutine, but Flush and Run execute jobs on
// the calling goroutine, which must be the one that owns the runtimes the
// jobs touch.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	rerrors "github.com/vango-dev/reactor/internal/errors"
	"github.com/vango-dev/reactor/pkg/reactive"
)

// ErrBudgetExceeded is returned by Flush when the storm budget stops it.
var ErrBudgetExceeded = errors.New("scheduler: budget exceeded")

// ErrTripped is returned by Queue while a tripped breaker refuses work.
var ErrTripped = errors.New("scheduler: breaker tripped")

// Job is a unit of deferred work. A job is pending in a queue at most once;
// queueing it again before it runs is a no-op.
type Job struct {
	Name string

	fn      func()
	pending bool
}

// NewJob creates a job.
func NewJob(name string, fn func()) *Job {
	return &Job{Name: name, fn: fn}
}

// FlushStats describes one completed or interrupted flush.
type FlushStats struct {
	Jobs     int
	Left     int
	Duration time.Duration
	Err      error
}

// Queue is a FIFO of pending jobs.
type Queue struct {
	mu      sync.Mutex
	jobs    []*Job
	tripped bool

	notify   chan struct{}
	flushing atomic.Bool

	budget  *Budget
	logger  *slog.Logger
	onFlush func(FlushStats)

	flushes atomic.Uint64
	ran     atomic.Uint64
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithLogger sets the queue logger.
func WithLogger(logger *slog.Logger) QueueOption {
	return func(q *Queue) {
		if logger != nil {
			q.logger = logger
		}
	}
}

// WithBudget installs a storm budget.
func WithBudget(cfg BudgetConfig) QueueOption {
	return func(q *Queue) {
		q.budget = NewBudget(&cfg)
	}
}

// WithFlushHook registers fn to be called after every flush that ran or
// refused at least one job.
func WithFlushHook(fn func(FlushStats)) QueueOption {
	return func(q *Queue) {
		q.onFlush = fn
	}
}

// NewQueue creates an empty queue.
func NewQueue(opts ...QueueOption) *Queue {
	q := &Queue{
		notify: make(chan struct{}, 1),
		logger: slog.Default().With("component", "scheduler"),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Queue adds j unless it is already pending. It reports whether j was
// added.
func (q *Queue) Queue(j *Job) bool {
	q.mu.Lock()
	if j.pending || q.tripped {
		q.mu.Unlock()
		return false
	}
	j.pending = true
	q.jobs = append(q.jobs, j)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return true
}

// Post queues fn as a fresh job. Use it to hand work to the goroutine that
// runs the queue.
func (q *Queue) Post(name string, fn func()) bool {
	return q.Queue(NewJob(name, fn))
}

// Pending reports whether j is waiting to run.
func (q *Queue) Pending(j *Job) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return j.pending
}

// Len returns the number of pending jobs.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// Notify returns a channel that receives after a job is queued.
func (q *Queue) Notify() <-chan struct{} {
	return q.notify
}

// Tripped reports whether the breaker is refusing work.
func (q *Queue) Tripped() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.tripped
}

// Reset closes a tripped breaker.
func (q *Queue) Reset() {
	q.mu.Lock()
	q.tripped = false
	q.mu.Unlock()
}

func (q *Queue) pop() *Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.jobs) == 0 {
		return nil
	}
	j := q.jobs[0]
	q.jobs[0] = nil
	q.jobs = q.jobs[1:]
	j.pending = false
	return j
}

func (q *Queue) pushFront(j *Job) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if j.pending {
		return
	}
	j.pending = true
	q.jobs = append([]*Job{j}, q.jobs...)
}

// drain discards every pending job and returns how many there were.
func (q *Queue) drain() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.jobs)
	for _, j := range q.jobs {
		j.pending = false
	}
	q.jobs = nil
	return n
}

// Flush runs pending jobs in FIFO order until the queue is empty. Jobs
// queued while flushing run in the same flush. A Flush called from inside
// a job returns immediately; the outer flush picks up the work.
//
// When the budget is exceeded Flush stops and returns an error matching
// ErrBudgetExceeded. In throttle mode the remaining jobs stay queued; in
// trip mode they are discarded and the queue refuses work until Reset.
func (q *Queue) Flush() error {
	if !q.flushing.CompareAndSwap(false, true) {
		return nil
	}
	defer q.flushing.Store(false)

	q.budget.ResetFlush()
	start := time.Now()
	ran := 0

	var err error
	for {
		j := q.pop()
		if j == nil {
			break
		}
		if berr := q.budget.CheckJob(); berr != nil {
			err = q.exceeded(j, ran, berr)
			break
		}
		ran++
		q.ran.Add(1)
		j.fn()
	}

	q.flushes.Add(1)
	if q.onFlush != nil && (ran > 0 || err != nil) {
		q.onFlush(FlushStats{Jobs: ran, Left: q.Len(), Duration: time.Since(start), Err: err})
	}
	return err
}

func (q *Queue) exceeded(j *Job, ran int, cause error) error {
	var left int
	if q.budget.Mode() == BudgetModeTripBreaker {
		left = q.drain() + 1
		q.mu.Lock()
		q.tripped = true
		q.mu.Unlock()
	} else {
		q.pushFront(j)
		left = q.Len()
	}

	err := rerrors.New("R002").
		WithField("ran", ran).
		WithField("left", left).
		WithField("mode", q.budget.Mode().String()).
		Wrap(cause)
	q.logger.Warn(err.Message, err.LogAttrs()...)
	return err
}

// Run flushes whenever work is queued until ctx is done. Budget errors are
// logged and the loop continues. Jobs left behind by a throttled flush run
// once the budget has room again.
func (q *Queue) Run(ctx context.Context) error {
	var retry <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.notify:
		case <-retry:
			retry = nil
		}
		if err := q.Flush(); err != nil {
			q.logger.Debug("flush interrupted", "error", err)
			if q.Len() > 0 && !q.Tripped() {
				retry = time.After(q.budget.RetryAfter())
			}
		}
	}
}

// Stats reports totals since the queue was created.
type Stats struct {
	Flushes uint64      `json:"flushes"`
	JobsRun uint64      `json:"jobsRun"`
	Pending int         `json:"pending"`
	Tripped bool        `json:"tripped"`
	Budget  BudgetStats `json:"budget"`
}

// Stats returns the queue totals and the current budget usage.
func (q *Queue) Stats() Stats {
	return Stats{
		Flushes: q.flushes.Load(),
		JobsRun: q.ran.Load(),
		Pending: q.Len(),
		Tripped: q.Tripped(),
		Budget:  q.budget.Stats(),
	}
}

// Effect creates an effect in rt whose re-runs are queued on q instead of
// happening synchronously. The first run happens immediately unless Lazy
// is given.
func (q *Queue) Effect(rt *reactive.Runtime, fn func(), opts ...reactive.EffectOption) *reactive.Effect {
	var e *reactive.Effect
	job := NewJob("", func() {
		if e.Dirty() {
			e.Run()
		}
	})
	opts = append(opts, reactive.WithScheduler(func() { q.Queue(job) }))
	e = rt.CreateEffect(fn, opts...)
	job.Name = e.Name()
	return e
}

// Deferred returns a watch scheduler that queues the watcher's job on q.
// Each call owns one job slot, so pass a fresh Deferred to every watch.
//
//	rt.Watch(state, cb, reactive.WithWatchScheduler(q.Deferred("title")))
func (q *Queue) Deferred(name string) func(job func()) {
	j := &Job{Name: name}
	return func(job func()) {
		j.fn = job
		q.Queue(j)
	}
}
