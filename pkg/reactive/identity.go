package reactive

import (
	"math"
	"reflect"
)

// identity is the comparable identity of a composite target. The type is
// part of the key because a struct and its first field share an address.
type identity struct {
	ptr uintptr
	n   int
	typ reflect.Type
}

// identityOf reports the identity of v if v is composite: a non-nil map, a
// non-empty slice, or a non-nil pointer to a struct.
func identityOf(v any) (identity, bool) {
	if v == nil {
		return identity{}, false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		if rv.IsNil() || rv.Type().Key().Kind() != reflect.String {
			return identity{}, false
		}
		return identity{ptr: rv.Pointer(), typ: rv.Type()}, true
	case reflect.Slice:
		if rv.Len() == 0 {
			return identity{}, false
		}
		return identity{ptr: rv.Pointer(), n: rv.Len(), typ: rv.Type()}, true
	case reflect.Pointer:
		if rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
			return identity{}, false
		}
		return identity{ptr: rv.Pointer(), typ: rv.Type()}, true
	default:
		return identity{}, false
	}
}

// IsComposite reports whether v can be wrapped by Reactive.
func IsComposite(v any) bool {
	switch v.(type) {
	case *Object:
		return true
	case RefLike:
		return false
	}
	_, ok := identityOf(v)
	return ok
}

// SameValue reports whether a and b are identical in the sense used to
// suppress redundant writes: reference identity for maps, slices, pointers,
// channels and funcs; value equality for everything else. NaN is the same
// as NaN, and +0 is not the same as -0. Wrapped values compare by their raw
// targets.
func SameValue(a, b any) bool {
	a, b = ToRaw(a), ToRaw(b)
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb {
		return false
	}

	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	switch ta.Kind() {
	case reflect.Func:
		// Funcs are only comparable to nil.
		return va.IsNil() && vb.IsNil()
	case reflect.Map, reflect.Chan, reflect.Pointer, reflect.UnsafePointer:
		return va.Pointer() == vb.Pointer()
	case reflect.Slice:
		return va.Pointer() == vb.Pointer() && va.Len() == vb.Len() && va.Cap() == vb.Cap()
	case reflect.Float32, reflect.Float64:
		fa, fb := va.Float(), vb.Float()
		if math.IsNaN(fa) && math.IsNaN(fb) {
			return true
		}
		return fa == fb && math.Signbit(fa) == math.Signbit(fb)
	}
	return safeEqual(a, b)
}

// safeEqual compares with == and treats values that panic on comparison
// (structs holding uncomparable interface values) as different.
func safeEqual(a, b any) (eq bool) {
	defer func() {
		if recover() != nil {
			eq = false
		}
	}()
	return a == b
}
