// Package filewatch reports debounced changes to scenario and config files.
//
// Parent directories are watched rather than the files themselves so that
// editors which save by renaming a temporary file over the original are
// still seen. Bursts of events for one path are coalesced into a single
// Change after the debounce delay.
package filewatch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is used when Config.Debounce is zero.
const DefaultDebounce = 100 * time.Millisecond

// Config configures the file watcher.
type Config struct {
	// Paths are the files or directories to watch. A directory matches
	// every file directly inside it.
	Paths []string

	// Debounce is the delay before a change is delivered.
	Debounce time.Duration

	// Logger is the watcher logger.
	Logger *slog.Logger
}

// Change represents a detected file change.
type Change struct {
	Path string
	Op   fsnotify.Op
	Time time.Time
}

// Watcher monitors files for changes.
type Watcher struct {
	config Config
	logger *slog.Logger
	fs     *fsnotify.Watcher

	files map[string]struct{}
	dirs  map[string]struct{}

	mu      sync.Mutex
	pending map[string]*pendingChange
	closed  bool

	out       chan Change
	done      chan struct{}
	closeOnce sync.Once

	coalesced atomic.Uint64
}

type pendingChange struct {
	timer  *time.Timer
	change Change
}

// New creates a watcher for the configured paths. Watched files need not
// exist yet, but their directories must.
func New(config Config) (*Watcher, error) {
	if len(config.Paths) == 0 {
		return nil, fmt.Errorf("filewatch: no paths")
	}
	if config.Debounce <= 0 {
		config.Debounce = DefaultDebounce
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default().With("component", "filewatch")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("filewatch: %w", err)
	}

	w := &Watcher{
		config:  config,
		logger:  logger,
		fs:      fsw,
		files:   make(map[string]struct{}),
		dirs:    make(map[string]struct{}),
		pending: make(map[string]*pendingChange),
		out:     make(chan Change, 16),
		done:    make(chan struct{}),
	}

	watched := make(map[string]bool)
	for _, p := range config.Paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			fsw.Close()
			return nil, fmt.Errorf("filewatch: %w", err)
		}
		dir := filepath.Dir(abs)
		if info, err := os.Stat(abs); err == nil && info.IsDir() {
			dir = abs
			w.dirs[abs] = struct{}{}
		} else {
			w.files[abs] = struct{}{}
		}
		if watched[dir] {
			continue
		}
		if err := fsw.Add(dir); err != nil {
			fsw.Close()
			return nil, fmt.Errorf("filewatch: watch %s: %w", dir, err)
		}
		watched[dir] = true
	}
	return w, nil
}

// Changes returns the channel of debounced changes. The channel is not
// closed; select on the context passed to Run as well.
func (w *Watcher) Changes() <-chan Change {
	return w.out
}

// Coalesced returns the number of events merged into an already pending
// change.
func (w *Watcher) Coalesced() uint64 {
	return w.coalesced.Load()
}

// Run processes file system events until ctx is done or the watcher is
// closed. It closes the watcher before returning.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.Close()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.done:
			return nil
		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("file watch error", "error", err)
		}
	}
}

func (w *Watcher) matches(path string) bool {
	if _, ok := w.files[path]; ok {
		return true
	}
	_, ok := w.dirs[filepath.Dir(path)]
	return ok
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if ev.Op == fsnotify.Chmod {
		return
	}
	path, err := filepath.Abs(ev.Name)
	if err != nil || !w.matches(path) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}

	change := Change{Path: path, Op: ev.Op, Time: time.Now()}
	if p, ok := w.pending[path]; ok {
		p.change.Op |= ev.Op
		p.change.Time = change.Time
		p.timer.Reset(w.config.Debounce)
		w.coalesced.Add(1)
		return
	}
	w.pending[path] = &pendingChange{
		change: change,
		timer: time.AfterFunc(w.config.Debounce, func() {
			w.flush(path)
		}),
	}
}

func (w *Watcher) flush(path string) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	p, ok := w.pending[path]
	if !ok {
		w.mu.Unlock()
		return
	}
	delete(w.pending, path)
	w.mu.Unlock()

	w.logger.Debug("file changed", "path", path, "op", p.change.Op.String())
	select {
	case w.out <- p.change:
	case <-w.done:
	}
}

// Close stops the watcher. It is safe to call more than once.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		w.mu.Lock()
		w.closed = true
		for _, p := range w.pending {
			p.timer.Stop()
		}
		w.pending = nil
		w.mu.Unlock()

		close(w.done)
		err = w.fs.Close()
	})
	return err
}
