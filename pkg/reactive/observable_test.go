package reactive

import (
	"errors"
	"math"
	"testing"
)

type point struct {
	X, Y int
}

type shape struct {
	Name   string
	Origin point
	Tags   []string
	hidden int
}

func TestReactiveReturnsSameWrapper(t *testing.T) {
	rt := NewRuntime()
	m := map[string]any{"a": 1}

	o1 := rt.Reactive(m)
	o2 := rt.Reactive(m)
	if o1 != o2 {
		t.Errorf("expected the same wrapper for the same target")
	}
	if rt.Reactive(o1) != o1 {
		t.Errorf("wrapping a wrapper should return it unchanged")
	}
	if ToRaw(o1).(map[string]any)["a"] != 1 {
		t.Errorf("ToRaw should return the target")
	}
}

func TestReactivePassesThroughNonComposites(t *testing.T) {
	rt := NewRuntime()
	var nilMap map[string]any
	ref := NewRefIn(rt, 1)

	for _, v := range []any{1, "s", 2.5, true, nil, nilMap, []int{}, map[int]int{1: 1}, ref} {
		if IsReactive(rt.Reactive(v)) {
			t.Errorf("%T should not be wrapped", v)
		}
	}
}

func TestObjectNestedWrapping(t *testing.T) {
	rt := NewRuntime()
	inner := map[string]any{"v": 1}
	o := rt.Reactive(map[string]any{"inner": inner}).(*Object)

	got, ok := o.Get("inner").(*Object)
	if !ok {
		t.Fatalf("expected nested map to be wrapped, got %T", o.Get("inner"))
	}
	if got != rt.Reactive(inner) {
		t.Errorf("nested wrapper should come from the cache")
	}
	if _, ok := o.Peek("inner").(map[string]any); !ok {
		t.Errorf("Peek should return the raw value")
	}
}

func TestObjectSetSameValueDoesNotTrigger(t *testing.T) {
	rt := NewRuntime()
	o := rt.Reactive(map[string]any{"n": 1, "f": math.NaN()}).(*Object)

	runs := 0
	rt.CreateEffect(func() {
		runs++
		o.Get("n")
		o.Get("f")
	})

	o.Set("n", 1)
	o.Set("f", math.NaN())
	if runs != 1 {
		t.Errorf("same-value writes should not trigger, got %d runs", runs)
	}

	o.Set("n", 2)
	if runs != 2 {
		t.Errorf("expected 2 runs, got %d", runs)
	}
}

func TestObjectNewKeyTriggersKeys(t *testing.T) {
	rt := NewRuntime()
	o := rt.Reactive(map[string]any{"a": 1}).(*Object)

	var lens []int
	rt.CreateEffect(func() {
		lens = append(lens, len(o.Keys()))
	})

	o.Set("a", 2)
	if len(lens) != 1 {
		t.Errorf("overwriting a key should not trigger enumeration, got %d runs", len(lens))
	}

	o.Set("b", 1)
	if len(lens) != 2 || lens[1] != 2 {
		t.Errorf("expected re-run with 2 keys, got %v", lens)
	}

	o.Delete("a")
	if len(lens) != 3 || lens[2] != 1 {
		t.Errorf("expected re-run with 1 key after delete, got %v", lens)
	}

	if err := o.Delete("missing"); err != nil {
		t.Errorf("deleting a missing key: %v", err)
	}
	if len(lens) != 3 {
		t.Errorf("deleting a missing key should not trigger")
	}
}

func TestObjectHasTracksKey(t *testing.T) {
	rt := NewRuntime()
	o := rt.Reactive(map[string]any{}).(*Object)

	var seen []bool
	rt.CreateEffect(func() {
		seen = append(seen, o.Has("x"))
	})
	o.Set("x", 1)

	if len(seen) != 2 || seen[0] || !seen[1] {
		t.Errorf("expected [false true], got %v", seen)
	}
}

func TestObjectSlice(t *testing.T) {
	rt := NewRuntime()
	s := []int{1, 2, 3}
	o := rt.Reactive(s).(*Object)

	var seen []any
	rt.CreateEffect(func() {
		seen = append(seen, o.Get("1"))
	})

	if err := o.Set("1", 20); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if s[1] != 20 {
		t.Errorf("write should land in the raw slice, got %d", s[1])
	}
	if len(seen) != 2 || seen[1] != 20 {
		t.Errorf("expected re-run with 20, got %v", seen)
	}

	if err := o.Set("3", 4); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("expected ErrIndexOutOfRange, got %v", err)
	}
	if err := o.Delete("0"); !errors.Is(err, ErrNotSupported) {
		t.Errorf("expected ErrNotSupported, got %v", err)
	}
	if o.Len() != 3 {
		t.Errorf("expected len 3, got %d", o.Len())
	}
}

func TestObjectStruct(t *testing.T) {
	rt := NewRuntime()
	sh := &shape{Name: "box", Origin: point{1, 2}}
	o := rt.Reactive(sh).(*Object)

	keys := o.Keys()
	if len(keys) != 3 || keys[0] != "Name" || keys[1] != "Origin" || keys[2] != "Tags" {
		t.Errorf("expected exported fields in order, got %v", keys)
	}

	origin, ok := o.Get("Origin").(*Object)
	if !ok {
		t.Fatalf("expected nested struct to be wrapped, got %T", o.Get("Origin"))
	}
	if origin == o {
		t.Errorf("struct and its first field must have distinct wrappers")
	}

	runs := 0
	rt.CreateEffect(func() {
		runs++
		origin.Get("X")
	})
	origin.Set("X", 10)
	if sh.Origin.X != 10 {
		t.Errorf("expected write through field pointer, got %d", sh.Origin.X)
	}
	if runs != 2 {
		t.Errorf("expected 2 runs, got %d", runs)
	}

	if err := o.Set("hidden", 1); !errors.Is(err, ErrNoSuchKey) {
		t.Errorf("expected ErrNoSuchKey, got %v", err)
	}
	if err := o.Set("Name", 5); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("expected ErrTypeMismatch, got %v", err)
	}
}

func TestObjectNumericConversion(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  int
		runs  int
	}{
		{"float converts", 2.0, 2, 2},
		{"int64 converts", int64(3), 3, 2},
		{"converted equal value is a no-op", int64(1), 1, 1},
		{"converted equal float is a no-op", 1.0, 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := NewRuntime()
			o := rt.Reactive(map[string]int{"n": 1}).(*Object)
			runs := 0
			rt.CreateEffect(func() {
				runs++
				o.Get("n")
			})

			if err := o.Set("n", tt.value); err != nil {
				t.Fatalf("Set: %v", err)
			}
			if o.Peek("n") != tt.want {
				t.Errorf("expected %d, got %v", tt.want, o.Peek("n"))
			}
			if runs != tt.runs {
				t.Errorf("expected %d runs, got %d", tt.runs, runs)
			}
		})
	}
}

func TestSetWithWrappedValueStoresRaw(t *testing.T) {
	rt := NewRuntime()
	child := map[string]any{"v": 1}
	o := rt.Reactive(map[string]any{}).(*Object)

	o.Set("child", rt.Reactive(child))
	if _, ok := o.Peek("child").(map[string]any); !ok {
		t.Errorf("expected raw map stored, got %T", o.Peek("child"))
	}
}

func TestSameValue(t *testing.T) {
	m := map[string]any{}
	s := []int{1}
	tests := []struct {
		name string
		a, b any
		want bool
	}{
		{"equal ints", 1, 1, true},
		{"different ints", 1, 2, false},
		{"different types", 1, int64(1), false},
		{"nan", math.NaN(), math.NaN(), true},
		{"signed zero", 0.0, math.Copysign(0, -1), false},
		{"same map", m, m, true},
		{"different maps", m, map[string]any{}, false},
		{"same slice", s, s, true},
		{"resliced", s, s[:0], false},
		{"nil", nil, nil, true},
		{"nil and value", nil, 0, false},
		{"uncomparable structs", struct{ V any }{[]int{1}}, struct{ V any }{[]int{1}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SameValue(tt.a, tt.b); got != tt.want {
				t.Errorf("SameValue(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestTrackTriggerDirect(t *testing.T) {
	rt := NewRuntime()
	target := map[string]any{}

	calls := 0
	e := rt.NewEffect(func() any {
		rt.Track(target, "k")
		return nil
	}, func() { calls++ })
	e.Run()

	if rt.Subscribers(target, "k") != 1 {
		t.Fatalf("expected 1 subscriber, got %d", rt.Subscribers(target, "k"))
	}

	rt.Trigger(target, "other")
	rt.Trigger(map[string]any{}, "k")
	if calls != 0 {
		t.Errorf("unrelated triggers should be ignored")
	}

	rt.Trigger(target, "k")
	if calls != 1 {
		t.Errorf("expected 1 scheduler call, got %d", calls)
	}

	rt.Track(target, "k")
	if rt.Subscribers(target, "k") != 1 {
		t.Errorf("Track outside an effect should be a no-op")
	}
}

func TestSnapshot(t *testing.T) {
	rt := NewRuntime()
	o := rt.Reactive(map[string]any{"a": 1}).(*Object)
	rt.CreateEffect(func() {
		o.Get("a")
		o.Keys()
	}, EffectName("reader"))

	snap := rt.Snapshot()
	if len(snap.Targets) != 1 {
		t.Fatalf("expected 1 target, got %d", len(snap.Targets))
	}
	keys := snap.Targets[0].Keys
	if len(keys) != 2 || keys[0].Key != "<keys>" || keys[1].Key != "a" {
		t.Fatalf("unexpected keys %+v", keys)
	}
	if len(keys[1].Subscribers) != 1 || keys[1].Subscribers[0] != "reader" {
		t.Errorf("unexpected subscribers %v", keys[1].Subscribers)
	}
}
