// ABOUTME: Structured containers moved by the codec: Object (string keyed) and Array
// ABOUTME: Typed accessors only succeed when the stored value has the exact width asked for
package codec

import (
	"math"
	"sort"
)

// Object is a string keyed map of codec values.
type Object map[string]any

// Array is an ordered list of codec values.
type Array []any

// Has reports whether key is present, including explicit nulls.
func (o Object) Has(key string) bool {
	_, ok := o[key]
	return ok
}

// IsNull reports whether key is present and holds nil.
func (o Object) IsNull(key string) bool {
	v, ok := o[key]
	return ok && v == nil
}

// Keys returns the keys in sorted order.
func (o Object) Keys() []string {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a shallow copy.
func (o Object) Clone() Object {
	out := make(Object, len(o))
	for k, v := range o {
		out[k] = v
	}
	return out
}

func (o Object) Byte(key string) (byte, bool) { return as[byte](o.get(key)) }
func (o Object) Short(key string) (int16, bool) { return as[int16](o.get(key)) }
func (o Object) Int(key string) (int32, bool) { return asInt(o.get(key)) }
func (o Object) Long(key string) (int64, bool) { return as[int64](o.get(key)) }
func (o Object) Bool(key string) (bool, bool) { return as[bool](o.get(key)) }
func (o Object) Float(key string) (float32, bool) { return as[float32](o.get(key)) }
func (o Object) Double(key string) (float64, bool) { return as[float64](o.get(key)) }
func (o Object) String(key string) (string, bool) { return as[string](o.get(key)) }
func (o Object) Bytes(key string) ([]byte, bool) { return as[[]byte](o.get(key)) }
func (o Object) Object(key string) (Object, bool) { return asObject(o.get(key)) }
func (o Object) Array(key string) (Array, bool) { return asArray(o.get(key)) }

func (o Object) get(key string) (any, bool) {
	v, ok := o[key]
	return v, ok
}

// IsNull reports whether index i holds nil.
func (a Array) IsNull(i int) bool {
	v, ok := a.get(i)
	return ok && v == nil
}

func (a Array) Byte(i int) (byte, bool) { return as[byte](a.get(i)) }
func (a Array) Short(i int) (int16, bool) { return as[int16](a.get(i)) }
func (a Array) Int(i int) (int32, bool) { return asInt(a.get(i)) }
func (a Array) Long(i int) (int64, bool) { return as[int64](a.get(i)) }
func (a Array) Bool(i int) (bool, bool) { return as[bool](a.get(i)) }
func (a Array) Float(i int) (float32, bool) { return as[float32](a.get(i)) }
func (a Array) Double(i int) (float64, bool) { return as[float64](a.get(i)) }
func (a Array) String(i int) (string, bool) { return as[string](a.get(i)) }
func (a Array) Bytes(i int) ([]byte, bool) { return as[[]byte](a.get(i)) }
func (a Array) Object(i int) (Object, bool) { return asObject(a.get(i)) }
func (a Array) Array(i int) (Array, bool) { return asArray(a.get(i)) }

func (a Array) get(i int) (any, bool) {
	if i < 0 || i >= len(a) {
		return nil, false
	}
	return a[i], true
}

func as[T any](v any, ok bool) (T, bool) {
	if !ok {
		var zero T
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}

// asInt also accepts a Go int that fits in 32 bits, as built locally before a round trip.
func asInt(v any, ok bool) (int32, bool) {
	if !ok {
		return 0, false
	}
	switch x := v.(type) {
	case int32:
		return x, true
	case int:
		if x >= math.MinInt32 && x <= math.MaxInt32 {
			return int32(x), true
		}
	}
	return 0, false
}

func asObject(v any, ok bool) (Object, bool) {
	if !ok {
		return nil, false
	}
	switch x := v.(type) {
	case Object:
		return x, true
	case map[string]any:
		return Object(x), true
	}
	return nil, false
}

func asArray(v any, ok bool) (Array, bool) {
	if !ok {
		return nil, false
	}
	switch x := v.(type) {
	case Array:
		return x, true
	case []any:
		return Array(x), true
	}
	return nil, false
}
