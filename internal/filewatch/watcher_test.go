package filewatch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func startWatcher(t *testing.T, paths ...string) *Watcher {
	t.Helper()
	w, err := New(Config{Paths: paths, Debounce: 50 * time.Millisecond})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return w
}

func expectChange(t *testing.T, w *Watcher, path string) Change {
	t.Helper()
	select {
	case c := <-w.Changes():
		if c.Path != path {
			t.Fatalf("expected change for %s, got %s", path, c.Path)
		}
		return c
	case <-time.After(3 * time.Second):
		t.Fatalf("no change for %s", path)
	}
	return Change{}
}

func expectNoChange(t *testing.T, w *Watcher, wait time.Duration) {
	t.Helper()
	select {
	case c := <-w.Changes():
		t.Fatalf("unexpected change %+v", c)
	case <-time.After(wait):
	}
}

func TestWatchFileDebounced(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scenario.yaml")
	if err := os.WriteFile(path, []byte("a: 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	w := startWatcher(t, path)

	for i := 0; i < 5; i++ {
		if err := os.WriteFile(path, []byte("a: 2\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	expectChange(t, w, path)
	expectNoChange(t, w, 200*time.Millisecond)
	if w.Coalesced() == 0 {
		t.Error("expected coalesced events")
	}
}

func TestWatchIgnoresSiblings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "reactor.yaml")
	w := startWatcher(t, path)

	if err := os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	expectNoChange(t, w, 200*time.Millisecond)

	// The watched file may be created after the watcher starts.
	if err := os.WriteFile(path, []byte("log: {}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	expectChange(t, w, path)
}

func TestWatchDirectory(t *testing.T) {
	dir := t.TempDir()
	w := startWatcher(t, dir)

	path := filepath.Join(dir, "new.yaml")
	if err := os.WriteFile(path, []byte("x: 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	expectChange(t, w, path)
}

func TestWatchRenameOver(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scenario.yaml")
	if err := os.WriteFile(path, []byte("a: 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	w := startWatcher(t, path)

	tmp := filepath.Join(dir, ".scenario.yaml.swp")
	if err := os.WriteFile(tmp, []byte("a: 3\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(tmp, path); err != nil {
		t.Fatal(err)
	}
	expectChange(t, w, path)
}

func TestNewErrors(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("expected error for no paths")
	}
	missing := filepath.Join(t.TempDir(), "nope", "file.yaml")
	if _, err := New(Config{Paths: []string{missing}}); err == nil {
		t.Error("expected error for missing directory")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	w, err := New(Config{Paths: []string{t.TempDir()}})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("first Close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if err := w.Run(context.Background()); err != nil {
		t.Errorf("Run after Close: %v", err)
	}
}
