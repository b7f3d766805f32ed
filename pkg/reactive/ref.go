package reactive

import "fmt"

// valueKey is the key reported to observers for cell reads and writes.
const valueKey = "value"

// cellDep is the private, lazily created subscriber map of a single-slot
// cell.
type cellDep struct {
	dep *Dep
}

// track joins the active effect of rt to the cell.
func (c *cellDep) track(rt *Runtime, owner any) {
	e := rt.activeEffect
	if e == nil || !e.active {
		return
	}
	if c.dep == nil {
		d := newDep(valueKey, nil)
		d.onEmpty = func() {
			if c.dep == d {
				c.dep = nil
			}
		}
		c.dep = d
	}
	if rt.link(e, c.dep) {
		rt.observer.Tracked(e, owner, valueKey)
	}
}

// trigger notifies the cell's subscribers.
func (c *cellDep) trigger(rt *Runtime, owner any) {
	if c.dep == nil {
		return
	}
	rt.notify(c.dep, owner, valueKey)
}

func (c *cellDep) subscribers() int {
	if c.dep == nil {
		return 0
	}
	return c.dep.Len()
}

// RefLike is implemented by single-slot reactive values: Ref, Computed and
// ObjectRef. Value performs a tracked read.
type RefLike interface {
	Value() any
	isRef()
}

// writableRef is a RefLike that accepts untyped writes.
type writableRef interface {
	RefLike
	SetValue(v any) error
}

// Ref is a boxed reactive value. Composite values are also kept in wrapped
// form and returned by Value.
type Ref[T any] struct {
	rt    *Runtime
	raw   T
	value any
	cell  cellDep
}

// NewRefIn creates a ref in rt.
func NewRefIn[T any](rt *Runtime, v T) *Ref[T] {
	return &Ref[T]{rt: rt, raw: v, value: rt.Reactive(v)}
}

// NewRef creates a ref in the default runtime.
//
// Example:
//
//	count := reactive.NewRef(0)
//	reactive.CreateEffect(func() { fmt.Println(count.Get()) })
//	count.Set(1)
func NewRef[T any](v T) *Ref[T] {
	return NewRefIn(Default(), v)
}

func (r *Ref[T]) isRef() {}

// Get tracks the ref and returns the raw value.
func (r *Ref[T]) Get() T {
	r.cell.track(r.rt, r)
	return r.raw
}

// Value tracks the ref and returns the wrapped value: an *Object when the
// raw value is composite, the raw value otherwise.
func (r *Ref[T]) Value() any {
	r.cell.track(r.rt, r)
	return r.value
}

// Peek returns the raw value without tracking.
func (r *Ref[T]) Peek() T {
	return r.raw
}

// Set stores v and notifies subscribers, unless v is identical to the
// current raw value.
func (r *Ref[T]) Set(v T) {
	if SameValue(v, r.raw) {
		return
	}
	r.raw = v
	r.value = r.rt.Reactive(v)
	r.cell.trigger(r.rt, r)
}

// Update sets the ref to fn applied to the current raw value.
func (r *Ref[T]) Update(fn func(T) T) {
	r.Set(fn(r.raw))
}

// SetValue is the untyped form of Set. Wrapped values are unwrapped first.
func (r *Ref[T]) SetValue(v any) error {
	if v == nil {
		var zero T
		r.Set(zero)
		return nil
	}
	tv, ok := ToRaw(v).(T)
	if !ok {
		return fmt.Errorf("%w: cannot store %T in Ref[%T]", ErrTypeMismatch, v, r.raw)
	}
	r.Set(tv)
	return nil
}

// Subscribers returns the number of effects currently depending on the ref.
func (r *Ref[T]) Subscribers() int {
	return r.cell.subscribers()
}

func (r *Ref[T]) String() string {
	return fmt.Sprintf("Ref(%v)", r.raw)
}

// IsRef reports whether v is a ref-like value.
func IsRef(v any) bool {
	_, ok := v.(RefLike)
	return ok
}

// Unref returns the tracked value of a ref-like v, or v itself.
func Unref(v any) any {
	if r, ok := v.(RefLike); ok {
		return r.Value()
	}
	return v
}

// ObjectRef is a ref bound to one key of an observable object. Reads and
// writes go through the object, so they are tracked and triggered there.
type ObjectRef struct {
	obj *Object
	key string
}

// ToRef returns a ref to obj[key].
func ToRef(obj *Object, key string) *ObjectRef {
	return &ObjectRef{obj: obj, key: key}
}

// ToRefs returns a ref for every key of obj.
func ToRefs(obj *Object) map[string]*ObjectRef {
	var keys []string
	obj.rt.Untracked(func() { keys = obj.Keys() })

	refs := make(map[string]*ObjectRef, len(keys))
	for _, k := range keys {
		refs[k] = ToRef(obj, k)
	}
	return refs
}

func (r *ObjectRef) isRef() {}

// Value reads the bound key through the object.
func (r *ObjectRef) Value() any {
	return r.obj.Get(r.key)
}

// SetValue writes the bound key through the object.
func (r *ObjectRef) SetValue(v any) error {
	return r.obj.Set(r.key, v)
}

// Key returns the bound key.
func (r *ObjectRef) Key() string {
	return r.key
}

// RefProxy gives transparent access to a map whose values may be refs: Get
// unwraps refs and Set writes into an existing ref instead of replacing it.
type RefProxy struct {
	obj *Object
}

// ProxyRefs wraps m in the default runtime.
func ProxyRefs(m map[string]any) *RefProxy {
	return ProxyRefsIn(Default(), m)
}

// ProxyRefsIn wraps m in rt.
func ProxyRefsIn(rt *Runtime, m map[string]any) *RefProxy {
	if m == nil {
		m = make(map[string]any)
	}
	return &RefProxy{obj: rt.Reactive(m).(*Object)}
}

// Get returns the value of key, unwrapping refs.
func (p *RefProxy) Get(key string) any {
	return Unref(p.obj.Peek(key))
}

// Set writes v to key, or into the ref stored at key when v is not itself a
// ref.
func (p *RefProxy) Set(key string, v any) error {
	if old, ok := p.obj.Peek(key).(writableRef); ok && !IsRef(v) {
		return old.SetValue(v)
	}
	return p.obj.Set(key, v)
}
