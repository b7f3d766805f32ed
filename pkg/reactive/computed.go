package reactive

import (
	"fmt"

	rerrors "github.com/vango-dev/reactor/internal/errors"
)

// Computed is a lazily evaluated derived value.
//
// The getter runs on the first read and again only on a read that follows a
// change to one of its dependencies. A dependency change does not recompute;
// it marks the cell stale and notifies the effects that read the cell.
type Computed[T any] struct {
	rt     *Runtime
	effect *Effect
	value  T
	cell   cellDep
	setter func(T)
}

// NewComputedIn creates a read-only computed in rt. The getter receives the
// previously cached value (the zero value on the first run).
func NewComputedIn[T any](rt *Runtime, getter func(prev T) T) *Computed[T] {
	return NewWritableComputedIn(rt, getter, nil)
}

// NewWritableComputedIn creates a computed in rt whose Set delegates to
// setter.
func NewWritableComputedIn[T any](rt *Runtime, getter func(prev T) T, setter func(T)) *Computed[T] {
	c := &Computed[T]{rt: rt, setter: setter}
	c.effect = rt.NewEffect(
		func() any {
			c.value = getter(c.value)
			return c.value
		},
		func() { c.cell.trigger(rt, c) },
		EffectName(fmt.Sprintf("computed#%d", nextID())),
	)
	return c
}

// NewComputed creates a read-only computed in the default runtime.
//
// Example:
//
//	count := reactive.NewRef(2)
//	doubled := reactive.NewComputed(func(int) int { return count.Get() * 2 })
//	doubled.Get() // 4
func NewComputed[T any](getter func(prev T) T) *Computed[T] {
	return NewComputedIn(Default(), getter)
}

// NewWritableComputed creates a writable computed in the default runtime.
func NewWritableComputed[T any](getter func(prev T) T, setter func(T)) *Computed[T] {
	return NewWritableComputedIn(Default(), getter, setter)
}

func (c *Computed[T]) isRef() {}

// Get recomputes the value if stale, then links the active effect to the
// cell. The link is made even when the cached value was fresh.
func (c *Computed[T]) Get() T {
	if c.effect.Dirty() {
		c.effect.Run()
	}
	c.cell.track(c.rt, c)
	return c.value
}

// Value is the untyped form of Get.
func (c *Computed[T]) Value() any {
	return c.Get()
}

// Peek returns the value, recomputing if stale, without linking the active
// effect.
func (c *Computed[T]) Peek() T {
	if c.effect.Dirty() {
		c.effect.Run()
	}
	return c.value
}

// Set passes v to the setter. It does not notify anyone itself. On a
// read-only computed the write is dropped with a warning.
func (c *Computed[T]) Set(v T) {
	if c.setter == nil {
		err := rerrors.New("R001")
		c.rt.logger.Warn(err.Message, "code", err.Code, "computed", c.effect.Name())
		return
	}
	c.setter(v)
}

// SetValue is the untyped form of Set.
func (c *Computed[T]) SetValue(v any) error {
	if c.setter == nil {
		return rerrors.New("R001")
	}
	var tv T
	if v != nil {
		var ok bool
		tv, ok = ToRaw(v).(T)
		if !ok {
			return fmt.Errorf("%w: cannot store %T in Computed[%T]", ErrTypeMismatch, v, c.value)
		}
	}
	c.setter(tv)
	return nil
}

// Dirty reports whether the cached value is stale.
func (c *Computed[T]) Dirty() bool {
	return c.effect.Dirty()
}

// Effect returns the internal effect driving the computation.
func (c *Computed[T]) Effect() *Effect {
	return c.effect
}

// Stop detaches the computed from its dependencies. The last value stays
// readable.
func (c *Computed[T]) Stop() {
	c.effect.Stop()
}

// Subscribers returns the number of effects currently depending on the cell.
func (c *Computed[T]) Subscribers() int {
	return c.cell.subscribers()
}
