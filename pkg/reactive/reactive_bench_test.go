package reactive

import (
	"testing"
)

// Benchmark tests for the engine hot paths.

func BenchmarkRefGetNoTracking(b *testing.B) {
	r := NewRefIn(NewRuntime(), 42)
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		_ = r.Get()
	}
}

func BenchmarkRefGetWithTracking(b *testing.B) {
	rt := NewRuntime()
	r := NewRefIn(rt, 42)
	e := rt.NewEffect(func() any { return r.Get() }, nil)
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		e.Run()
	}
}

func BenchmarkRefSet1Subscriber(b *testing.B) {
	rt := NewRuntime()
	r := NewRefIn(rt, 0)
	rt.CreateEffect(func() { _ = r.Get() })
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		r.Set(i)
	}
}

func BenchmarkRefSet100Subscribers(b *testing.B) {
	rt := NewRuntime()
	r := NewRefIn(rt, 0)
	for i := 0; i < 100; i++ {
		rt.CreateEffect(func() { _ = r.Get() })
	}
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		r.Set(i)
	}
}

func BenchmarkObjectGetTracked(b *testing.B) {
	rt := NewRuntime()
	o := rt.Reactive(map[string]any{"a": 1, "b": 2}).(*Object)
	e := rt.NewEffect(func() any {
		o.Get("a")
		return o.Get("b")
	}, nil)
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		e.Run()
	}
}

func BenchmarkObjectSet10Subscribers(b *testing.B) {
	rt := NewRuntime()
	o := rt.Reactive(map[string]any{"n": 0}).(*Object)
	for i := 0; i < 10; i++ {
		rt.CreateEffect(func() { o.Get("n") })
	}
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		o.Set("n", i)
	}
}

func BenchmarkReactiveCacheHit(b *testing.B) {
	rt := NewRuntime()
	m := map[string]any{"n": 0}
	_ = rt.Reactive(m)
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		_ = rt.Reactive(m)
	}
}

func BenchmarkComputedGetCached(b *testing.B) {
	rt := NewRuntime()
	count := NewRefIn(rt, 42)
	c := NewComputedIn(rt, func(int) int { return count.Get() * 2 })
	_ = c.Get()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		_ = c.Get()
	}
}

func BenchmarkComputedRecompute(b *testing.B) {
	rt := NewRuntime()
	count := NewRefIn(rt, 0)
	c := NewComputedIn(rt, func(int) int { return count.Get() * 2 })
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		count.Set(i + 1)
		_ = c.Get()
	}
}

func BenchmarkDeepWatchTraversal(b *testing.B) {
	rt := NewRuntime()
	items := make([]any, 50)
	for i := range items {
		items[i] = map[string]any{"id": i, "done": false}
	}
	state := rt.Reactive(map[string]any{"items": items}).(*Object)
	rt.Watch(state, func(any, any, func(func())) {}, Deep())
	first := state.Get("items").(*Object).Get("0").(*Object)
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		first.Set("done", i%2 == 0)
	}
}
