// ABOUTME: Serialization between native Go values and tagged generic values
// ABOUTME: Handles primitives, nested Object/Array collections and registered custom types
package codec

import (
	"fmt"
	"math"
	"reflect"
)

// Serialize converts a native value into its tagged form.
func (r *Registry) Serialize(v any) (Value, error) {
	switch x := v.(type) {
	case nil:
		return Value{Type: TypeNull}, nil
	case []byte:
		return Value{Type: TypeBytes, Bytes: x}, nil
	case byte:
		return Value{Type: TypeByte, Int: int32(x)}, nil
	case int16:
		return Value{Type: TypeShort, Int: int32(x)}, nil
	case int32:
		return Value{Type: TypeInt, Int: x}, nil
	case int:
		if x >= math.MinInt32 && x <= math.MaxInt32 {
			return Value{Type: TypeInt, Int: int32(x)}, nil
		}
		return Value{Type: TypeLong, Long: int64(x)}, nil
	case int64:
		return Value{Type: TypeLong, Long: x}, nil
	case bool:
		return Value{Type: TypeBool, Bool: x}, nil
	case float32:
		return Value{Type: TypeFloat, Float: x}, nil
	case float64:
		return Value{Type: TypeDouble, Double: x}, nil
	case string:
		return Value{Type: TypeString, String: x}, nil
	case Object:
		return r.serializeMap(x)
	case map[string]any:
		return r.serializeMap(Object(x))
	case Array:
		return r.serializeArray(x)
	case []any:
		return r.serializeArray(Array(x))
	}

	ct, ok := r.lookupType(reflect.TypeOf(v))
	if !ok {
		return Value{}, fmt.Errorf("%w: %T", ErrUnsupportedType, v)
	}
	b, err := ct.encode(v)
	if err != nil {
		return Value{}, fmt.Errorf("encode %s: %w", ct.typ, err)
	}
	return Value{Type: TypeObject, ObjectTypeID: ct.id, Bytes: b}, nil
}

// Deserialize converts a tagged value back into its native form.
func (r *Registry) Deserialize(v Value) (any, error) {
	switch v.Type {
	case TypeNull:
		return nil, nil
	case TypeBytes:
		return append([]byte{}, v.Bytes...), nil
	case TypeByte:
		return byte(v.Int), nil
	case TypeShort:
		return int16(v.Int), nil
	case TypeInt:
		return v.Int, nil
	case TypeLong:
		return v.Long, nil
	case TypeBool:
		return v.Bool, nil
	case TypeFloat:
		return v.Float, nil
	case TypeDouble:
		return v.Double, nil
	case TypeString:
		return v.String, nil
	case TypeMap:
		return r.UnmarshalObject(v.Bytes)
	case TypeArray:
		return r.unmarshalArray(v.Bytes)
	case TypeObject:
		ct, ok := r.lookupID(v.ObjectTypeID)
		if !ok {
			return nil, fmt.Errorf("%w: %d", ErrUnsupportedTypeID, v.ObjectTypeID)
		}
		out, err := ct.decode(v.Bytes)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", ct.typ, err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, v.Type)
	}
}

// MarshalObject encodes obj as a GenericCollection of map entries.
func (r *Registry) MarshalObject(obj Object) ([]byte, error) {
	c := collection{entries: make([]mapEntry, 0, len(obj))}
	for _, key := range obj.Keys() {
		val, err := r.Serialize(obj[key])
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", key, err)
		}
		c.entries = append(c.entries, mapEntry{key: key, val: val})
	}
	return c.marshal(), nil
}

// UnmarshalObject decodes bytes produced by MarshalObject. Empty input yields an empty Object.
func (r *Registry) UnmarshalObject(b []byte) (Object, error) {
	c, err := unmarshalCollection(b)
	if err != nil {
		return nil, err
	}
	obj := make(Object, len(c.entries))
	for _, e := range c.entries {
		v, err := r.Deserialize(e.val)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", e.key, err)
		}
		obj[e.key] = v
	}
	return obj, nil
}

func (r *Registry) serializeMap(obj Object) (Value, error) {
	b, err := r.MarshalObject(obj)
	if err != nil {
		return Value{}, err
	}
	return Value{Type: TypeMap, Bytes: b}, nil
}

func (r *Registry) serializeArray(arr Array) (Value, error) {
	c := collection{list: make([]Value, 0, len(arr))}
	for i, elem := range arr {
		v, err := r.Serialize(elem)
		if err != nil {
			return Value{}, fmt.Errorf("index %d: %w", i, err)
		}
		c.list = append(c.list, v)
	}
	return Value{Type: TypeArray, Bytes: c.marshal()}, nil
}

func (r *Registry) unmarshalArray(b []byte) (Array, error) {
	c, err := unmarshalCollection(b)
	if err != nil {
		return nil, err
	}
	arr := make(Array, 0, len(c.list))
	for i, elem := range c.list {
		v, err := r.Deserialize(elem)
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", i, err)
		}
		arr = append(arr, v)
	}
	return arr, nil
}

// Serialize uses the Default registry.
func Serialize(v any) (Value, error) {
	return Default.Serialize(v)
}

// Deserialize uses the Default registry.
func Deserialize(v Value) (any, error) {
	return Default.Deserialize(v)
}

// MarshalObject uses the Default registry.
func MarshalObject(obj Object) ([]byte, error) {
	return Default.MarshalObject(obj)
}

// UnmarshalObject uses the Default registry.
func UnmarshalObject(b []byte) (Object, error) {
	return Default.UnmarshalObject(b)
}
