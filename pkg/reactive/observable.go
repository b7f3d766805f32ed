package reactive

import (
	"errors"
	"fmt"
	"reflect"
	"runtime"
	"sort"
	"strconv"
	"weak"
)

// iterateKey is the pseudo-key tracked by enumeration (Keys, Len) and
// triggered when a map gains or loses a key.
const iterateKey = "\x00iterate"

var (
	// ErrNoSuchKey is returned for writes to a struct field that does not
	// exist or is not exported.
	ErrNoSuchKey = errors.New("reactive: no such key")

	// ErrIndexOutOfRange is returned for slice writes outside the slice.
	ErrIndexOutOfRange = errors.New("reactive: index out of range")

	// ErrTypeMismatch is returned when a value cannot be stored in the
	// target's element or field type.
	ErrTypeMismatch = errors.New("reactive: type mismatch")

	// ErrNotSupported is returned by Delete on targets other than maps.
	ErrNotSupported = errors.New("reactive: operation not supported")
)

// Object is the observable wrapper of a composite value. Get tracks the read
// key in the active effect and Set triggers subscribers of the written key.
//
// Supported targets:
//   - maps with string-kinded keys; keys are map keys
//   - non-empty slices; keys are decimal indices
//   - pointers to structs; keys are exported field names
//
// Composite values read through Get are wrapped on access, never eagerly.
type Object struct {
	rt  *Runtime
	raw any
	rv  reflect.Value
	id  identity
}

// Reactive returns the wrapper of target in rt. Wrapping the same target
// twice returns the same *Object, an *Object is returned as is, and
// non-composite values are returned unchanged.
func (rt *Runtime) Reactive(target any) any {
	switch t := target.(type) {
	case *Object:
		return t
	case RefLike:
		return t
	}
	id, ok := identityOf(target)
	if !ok {
		return target
	}

	rt.cacheMu.Lock()
	defer rt.cacheMu.Unlock()

	if wp, ok := rt.cache[id]; ok {
		if o := wp.Value(); o != nil {
			return o
		}
	}

	o := &Object{rt: rt, raw: target, rv: reflect.ValueOf(target), id: id}
	rt.cache[id] = weak.Make(o)
	runtime.AddCleanup(o, rt.evict, id)
	return o
}

// evict drops a cache entry whose wrapper has been collected.
func (rt *Runtime) evict(id identity) {
	rt.cacheMu.Lock()
	defer rt.cacheMu.Unlock()
	if wp, ok := rt.cache[id]; ok && wp.Value() == nil {
		delete(rt.cache, id)
	}
}

// Reactive wraps target in the default runtime.
func Reactive(target any) any {
	return Default().Reactive(target)
}

// ReactiveObject wraps target in the default runtime and reports whether it
// was composite.
func ReactiveObject(target any) (*Object, bool) {
	o, ok := Default().Reactive(target).(*Object)
	return o, ok
}

// IsReactive reports whether v is an observable wrapper.
func IsReactive(v any) bool {
	_, ok := v.(*Object)
	return ok
}

// ToRaw returns the value wrapped by v, or v itself when it is not a
// wrapper.
func ToRaw(v any) any {
	if o, ok := v.(*Object); ok {
		return o.raw
	}
	return v
}

// Raw returns the wrapped value.
func (o *Object) Raw() any {
	return o.raw
}

// Runtime returns the runtime the wrapper belongs to.
func (o *Object) Runtime() *Runtime {
	return o.rt
}

// Get tracks key and returns its value, wrapping composite results.
// Missing keys read as nil.
func (o *Object) Get(key string) any {
	o.rt.track(o.id, o.raw, key)
	v, _ := o.read(key)
	return o.rt.Reactive(v)
}

// Peek returns the value of key without tracking or wrapping.
func (o *Object) Peek(key string) any {
	v, _ := o.read(key)
	return v
}

// Has tracks key and reports whether it exists.
func (o *Object) Has(key string) bool {
	o.rt.track(o.id, o.raw, key)
	_, ok := o.read(key)
	return ok
}

// Set writes value to key. Writing a value identical to the current one is a
// no-op; otherwise subscribers of key are triggered, and for a new map key
// so are subscribers of the key set.
func (o *Object) Set(key string, value any) error {
	value = ToRaw(value)
	old, existed := o.read(key)
	stored, err := o.write(key, value)
	if err != nil {
		return err
	}
	if existed && SameValue(old, stored.Interface()) {
		return nil
	}
	o.rt.trigger(o.id, o.raw, key)
	if !existed {
		o.rt.trigger(o.id, o.raw, iterateKey)
	}
	return nil
}

// Delete removes key from a map target and triggers its subscribers.
// Deleting a missing key is a no-op.
func (o *Object) Delete(key string) error {
	if o.rv.Kind() != reflect.Map {
		return fmt.Errorf("%w: delete on %s", ErrNotSupported, o.rv.Type())
	}
	if _, existed := o.read(key); !existed {
		return nil
	}
	o.rv.SetMapIndex(o.mapKey(key), reflect.Value{})
	o.rt.trigger(o.id, o.raw, key)
	o.rt.trigger(o.id, o.raw, iterateKey)
	return nil
}

// Keys tracks the key set and returns the keys in a stable order: sorted map
// keys, ascending indices, or exported fields in declaration order.
func (o *Object) Keys() []string {
	o.rt.track(o.id, o.raw, iterateKey)

	switch o.rv.Kind() {
	case reflect.Map:
		keys := make([]string, 0, o.rv.Len())
		iter := o.rv.MapRange()
		for iter.Next() {
			keys = append(keys, iter.Key().String())
		}
		sort.Strings(keys)
		return keys
	case reflect.Slice:
		keys := make([]string, o.rv.Len())
		for i := range keys {
			keys[i] = strconv.Itoa(i)
		}
		return keys
	default:
		st := o.rv.Elem().Type()
		keys := make([]string, 0, st.NumField())
		for i := 0; i < st.NumField(); i++ {
			if st.Field(i).IsExported() {
				keys = append(keys, st.Field(i).Name)
			}
		}
		return keys
	}
}

// Len tracks the key set and returns the number of keys.
func (o *Object) Len() int {
	o.rt.track(o.id, o.raw, iterateKey)
	switch o.rv.Kind() {
	case reflect.Map, reflect.Slice:
		return o.rv.Len()
	default:
		n := 0
		st := o.rv.Elem().Type()
		for i := 0; i < st.NumField(); i++ {
			if st.Field(i).IsExported() {
				n++
			}
		}
		return n
	}
}

func (o *Object) String() string {
	return fmt.Sprintf("Reactive(%v)", o.raw)
}

func (o *Object) mapKey(key string) reflect.Value {
	return reflect.ValueOf(key).Convert(o.rv.Type().Key())
}

// read returns the raw value stored under key and whether it exists. Struct
// values held in addressable slots are returned as pointers so they can be
// wrapped in turn.
func (o *Object) read(key string) (any, bool) {
	switch o.rv.Kind() {
	case reflect.Map:
		v := o.rv.MapIndex(o.mapKey(key))
		if !v.IsValid() {
			return nil, false
		}
		return v.Interface(), true
	case reflect.Slice:
		i, err := strconv.Atoi(key)
		if err != nil || i < 0 || i >= o.rv.Len() {
			return nil, false
		}
		return slotValue(o.rv.Index(i)), true
	default:
		f, ok := o.field(key)
		if !ok {
			return nil, false
		}
		return slotValue(f), true
	}
}

// write stores value under key and returns the value as converted for the
// slot.
func (o *Object) write(key string, value any) (reflect.Value, error) {
	switch o.rv.Kind() {
	case reflect.Map:
		v, err := convertValue(value, o.rv.Type().Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		o.rv.SetMapIndex(o.mapKey(key), v)
		return v, nil
	case reflect.Slice:
		i, err := strconv.Atoi(key)
		if err != nil || i < 0 || i >= o.rv.Len() {
			return reflect.Value{}, fmt.Errorf("%w: %q (len %d)", ErrIndexOutOfRange, key, o.rv.Len())
		}
		slot := o.rv.Index(i)
		v, err := convertValue(value, slot.Type())
		if err != nil {
			return reflect.Value{}, err
		}
		slot.Set(v)
		return v, nil
	default:
		f, ok := o.field(key)
		if !ok {
			return reflect.Value{}, fmt.Errorf("%w: %s.%s", ErrNoSuchKey, o.rv.Elem().Type(), key)
		}
		v, err := convertValue(value, f.Type())
		if err != nil {
			return reflect.Value{}, err
		}
		f.Set(v)
		return v, nil
	}
}

func (o *Object) field(key string) (reflect.Value, bool) {
	sf, ok := o.rv.Elem().Type().FieldByName(key)
	if !ok || !sf.IsExported() || len(sf.Index) != 1 {
		return reflect.Value{}, false
	}
	return o.rv.Elem().Field(sf.Index[0]), true
}

// slotValue returns the value of an addressable slot, handing out a pointer
// for struct values so nested structs stay observable.
func slotValue(v reflect.Value) any {
	if v.Kind() == reflect.Struct && v.CanAddr() {
		return v.Addr().Interface()
	}
	return v.Interface()
}

// convertValue adapts value to typ. nil becomes the zero value; a pointer to
// a struct is accepted for a struct-typed slot.
func convertValue(value any, typ reflect.Type) (reflect.Value, error) {
	if value == nil {
		return reflect.Zero(typ), nil
	}
	v := reflect.ValueOf(value)
	if v.Type().AssignableTo(typ) {
		return v, nil
	}
	if typ.Kind() == reflect.Struct && v.Kind() == reflect.Pointer && v.Type().Elem() == typ && !v.IsNil() {
		return v.Elem(), nil
	}
	if isNumber(v.Kind()) && isNumber(typ.Kind()) {
		return v.Convert(typ), nil
	}
	return reflect.Value{}, fmt.Errorf("%w: cannot store %s in %s", ErrTypeMismatch, v.Type(), typ)
}

func isNumber(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
