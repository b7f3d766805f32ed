package scenario

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/vango-dev/reactor/pkg/reactive"
)

func splitPath(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}

// lookup walks path from root. With track set every step is read through
// Get, so the active effect subscribes to each key on the way.
func lookup(root *reactive.Object, path string, track bool) (any, error) {
	var cur any = root
	for i, key := range splitPath(path) {
		obj, ok := cur.(*reactive.Object)
		if !ok {
			return nil, fmt.Errorf("%s is not a container", strings.Join(splitPath(path)[:i], "."))
		}
		if track {
			if !obj.Has(key) {
				return nil, fmt.Errorf("no key %q", key)
			}
			cur = obj.Get(key)
			continue
		}
		v := obj.Peek(key)
		if v == nil {
			if _, exists := keysOf(obj)[key]; !exists {
				return nil, fmt.Errorf("no key %q", key)
			}
		}
		cur = root.Runtime().Reactive(v)
	}
	return cur, nil
}

// parent resolves everything but the last key of path without tracking.
func parent(root *reactive.Object, path string) (*reactive.Object, string, error) {
	keys := splitPath(path)
	if len(keys) == 0 {
		return nil, "", fmt.Errorf("empty path")
	}
	v, err := lookup(root, strings.Join(keys[:len(keys)-1], "."), false)
	if err != nil {
		return nil, "", err
	}
	obj, ok := v.(*reactive.Object)
	if !ok {
		return nil, "", fmt.Errorf("%s is not a container", strings.Join(keys[:len(keys)-1], "."))
	}
	return obj, keys[len(keys)-1], nil
}

func keysOf(obj *reactive.Object) map[string]struct{} {
	var keys []string
	obj.Runtime().Untracked(func() { keys = obj.Keys() })
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return set
}

func toFloat(v any) (float64, bool) {
	if v == nil {
		return 0, false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	case reflect.String:
		f, err := strconv.ParseFloat(rv.String(), 64)
		return f, err == nil
	}
	return 0, false
}

// equalValues compares a state value with an expected YAML value. Numbers
// compare by value regardless of type.
func equalValues(got, want any) bool {
	got = reactive.ToRaw(got)
	if g, ok := toFloat(got); ok {
		if _, isString := got.(string); !isString {
			w, ok := toFloat(want)
			if _, wantString := want.(string); ok && !wantString {
				return g == w
			}
		}
	}
	return reflect.DeepEqual(got, want)
}
