package reactive

import (
	"testing"
)

// A deep watch sees nested writes; a depth-1 watch only sees top-level ones.
func TestWatchDeepVersusShallow(t *testing.T) {
	rt := NewRuntime()
	state := rt.Reactive(map[string]any{
		"user": map[string]any{"name": "ann"},
		"n":    0,
	}).(*Object)

	deepCalls, shallowCalls := 0, 0
	rt.Watch(state, func(any, any, func(func())) { deepCalls++ }, Deep())
	rt.Watch(state, func(any, any, func(func())) { shallowCalls++ }, Depth(1))

	state.Get("user").(*Object).Set("name", "bob")
	if deepCalls != 1 {
		t.Errorf("deep watch: expected 1 call, got %d", deepCalls)
	}
	if shallowCalls != 0 {
		t.Errorf("shallow watch: expected 0 calls, got %d", shallowCalls)
	}

	state.Set("n", 1)
	if deepCalls != 2 || shallowCalls != 1 {
		t.Errorf("top-level write: expected deep=2 shallow=1, got deep=%d shallow=%d", deepCalls, shallowCalls)
	}
}

// Replacing a nested object fires both watches and moves the deep watch
// onto the replacement.
func TestWatchNestedReplacement(t *testing.T) {
	rt := NewRuntime()
	state := rt.Reactive(map[string]any{
		"a": map[string]any{"b": 1},
	}).(*Object)

	deepCalls, shallowCalls := 0, 0
	stopDeep := rt.Watch(state, func(any, any, func(func())) { deepCalls++ }, Deep())
	stopShallow := rt.Watch(state, func(any, any, func(func())) { shallowCalls++ }, Depth(1))

	oldA := state.Get("a").(*Object)
	state.Set("a", map[string]any{"b": 2})
	if deepCalls != 1 || shallowCalls != 1 {
		t.Fatalf("reassigning a: expected deep=1 shallow=1, got deep=%d shallow=%d", deepCalls, shallowCalls)
	}

	oldA.Set("b", 10)
	if deepCalls != 1 {
		t.Errorf("write to the replaced object should not fire, got deep=%d", deepCalls)
	}
	if rt.Subscribers(oldA, "b") != 0 {
		t.Errorf("expected the old object to be released, got %d subscribers", rt.Subscribers(oldA, "b"))
	}

	state.Get("a").(*Object).Set("b", 3)
	if deepCalls != 2 || shallowCalls != 1 {
		t.Errorf("nested write: expected deep=2 shallow=1, got deep=%d shallow=%d", deepCalls, shallowCalls)
	}

	stopDeep()
	stopShallow()
	stopDeep()
	stopShallow()
	if rt.Targets() != 0 {
		t.Errorf("expected an empty registry after stop, got %d targets", rt.Targets())
	}
}

func TestWatchGetterNewAndOld(t *testing.T) {
	rt := NewRuntime()
	count := NewRefIn(rt, 1)

	type change struct{ n, o any }
	var changes []change
	rt.Watch(func() any { return count.Get() * 10 }, func(n, o any, _ func(func())) {
		changes = append(changes, change{n, o})
	})

	if len(changes) != 0 {
		t.Errorf("callback should not run during setup")
	}
	count.Set(2)
	count.Set(3)

	if len(changes) != 2 {
		t.Fatalf("expected 2 changes, got %d", len(changes))
	}
	if changes[0].n != 20 || changes[0].o != 10 || changes[1].n != 30 || changes[1].o != 20 {
		t.Errorf("unexpected changes %+v", changes)
	}
}

func TestWatchImmediate(t *testing.T) {
	rt := NewRuntime()
	r := NewRefIn(rt, "a")

	var olds, news []any
	rt.Watch(r, func(n, o any, _ func(func())) {
		news = append(news, n)
		olds = append(olds, o)
	}, Immediate())

	if len(news) != 1 || news[0] != "a" || olds[0] != nil {
		t.Fatalf("expected immediate call with (a, nil), got news=%v olds=%v", news, olds)
	}
	r.Set("b")
	if len(news) != 2 || news[1] != "b" || olds[1] != "a" {
		t.Errorf("expected (b, a), got news=%v olds=%v", news, olds)
	}
}

func TestWatchRefOfObject(t *testing.T) {
	rt := NewRuntime()
	r := NewRefIn(rt, map[string]any{"n": 1})

	shallow, deep := 0, 0
	rt.Watch(r, func(any, any, func(func())) { shallow++ })
	rt.Watch(r, func(any, any, func(func())) { deep++ }, Deep())

	r.Value().(*Object).Set("n", 2)
	if shallow != 0 || deep != 1 {
		t.Errorf("nested write: expected shallow=0 deep=1, got shallow=%d deep=%d", shallow, deep)
	}

	r.Set(map[string]any{"n": 3})
	if shallow != 1 || deep != 2 {
		t.Errorf("ref write: expected shallow=1 deep=2, got shallow=%d deep=%d", shallow, deep)
	}
}

func TestWatchCleanup(t *testing.T) {
	rt := NewRuntime()
	r := NewRefIn(rt, 0)

	var cleaned []int
	stop := rt.Watch(r, func(n, _ any, onCleanup func(func())) {
		v := n.(int)
		onCleanup(func() { cleaned = append(cleaned, v) })
	})

	r.Set(1)
	r.Set(2)
	if len(cleaned) != 1 || cleaned[0] != 1 {
		t.Errorf("expected cleanup of 1 before second callback, got %v", cleaned)
	}

	stop()
	if len(cleaned) != 2 || cleaned[1] != 2 {
		t.Errorf("expected cleanup on stop, got %v", cleaned)
	}
}

func TestWatchStop(t *testing.T) {
	rt := NewRuntime()
	r := NewRefIn(rt, 0)

	calls := 0
	stop := rt.Watch(r, func(any, any, func(func())) { calls++ })
	stop()
	stop()

	r.Set(1)
	if calls != 0 {
		t.Errorf("stopped watcher was called")
	}
	if r.Subscribers() != 0 {
		t.Errorf("expected no subscribers, got %d", r.Subscribers())
	}
}

func TestWatchSelfReferentialDeep(t *testing.T) {
	rt := NewRuntime()
	m := map[string]any{"n": 0}
	m["self"] = m
	state := rt.Reactive(m).(*Object)

	calls := 0
	rt.Watch(state, func(any, any, func(func())) { calls++ }, Deep())

	state.Set("n", 1)
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestWatchNilCallback(t *testing.T) {
	rt := NewRuntime()
	r := NewRefIn(rt, 0)

	stop := rt.Watch(r, nil)
	r.Set(1)
	stop()
}

func TestWatchNonReactiveSource(t *testing.T) {
	rt := NewRuntime()
	calls := 0
	stop := rt.Watch(42, func(any, any, func(func())) { calls++ })
	stop()
	if calls != 0 {
		t.Errorf("expected no calls, got %d", calls)
	}
}

func TestWatchEffect(t *testing.T) {
	rt := NewRuntime()
	r := NewRefIn(rt, 0)

	var seen []int
	cleanups := 0
	stop := rt.WatchEffect(func(onCleanup func(func())) {
		seen = append(seen, r.Get())
		onCleanup(func() { cleanups++ })
	})

	if len(seen) != 1 {
		t.Fatalf("expected immediate run, got %d runs", len(seen))
	}
	r.Set(1)
	if len(seen) != 2 || seen[1] != 1 {
		t.Errorf("expected re-run with 1, got %v", seen)
	}
	if cleanups != 1 {
		t.Errorf("expected 1 cleanup, got %d", cleanups)
	}

	stop()
	if cleanups != 2 {
		t.Errorf("expected cleanup on stop, got %d", cleanups)
	}
	r.Set(2)
	if len(seen) != 2 {
		t.Errorf("stopped watcher re-ran")
	}
}

func TestWatchWithScheduler(t *testing.T) {
	rt := NewRuntime()
	r := NewRefIn(rt, 0)

	var queue []func()
	var got []any
	rt.Watch(r, func(n, _ any, _ func(func())) { got = append(got, n) },
		WithWatchScheduler(func(job func()) { queue = append(queue, job) }))

	r.Set(1)
	r.Set(2)
	if len(got) != 0 {
		t.Errorf("callback should be deferred")
	}
	if len(queue) != 2 {
		t.Fatalf("expected 2 queued jobs, got %d", len(queue))
	}

	queue[0]()
	if len(got) != 1 || got[0] != 2 {
		t.Errorf("expected latest value 2, got %v", got)
	}
}

func TestWatchValueTyped(t *testing.T) {
	WithRuntime(NewRuntime(), func() {
		r := NewRef(1)
		var last, prev int
		stop := WatchValue(func() int { return r.Get() }, func(n, o int, _ func(func())) {
			last, prev = n, o
		})
		defer stop()

		r.Set(4)
		if last != 4 || prev != 1 {
			t.Errorf("expected (4, 1), got (%d, %d)", last, prev)
		}
	})
}

func TestWatchName(t *testing.T) {
	rt := NewRuntime()
	r := NewRefIn(rt, 0)
	rt.Watch(r, func(any, any, func(func())) {}, WatchName("title"))

	found := false
	for _, e := range r.cell.dep.effects() {
		if e.Name() == "title" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected watcher effect named title")
	}
}
