// ABOUTME: Tagged generic value and its protobuf-compatible wire layout
// ABOUTME: Encodes GenericCollectionValue and GenericCollection messages with protowire
package codec

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Type is the wire tag of a generic value.
type Type int32

const (
	TypeNull Type = iota
	TypeBytes
	TypeByte
	TypeShort
	TypeInt
	TypeLong
	TypeBool
	TypeFloat
	TypeDouble
	TypeString
	TypeMap
	TypeArray
	TypeObject
)

var typeNames = [...]string{
	"null", "bytes", "byte", "short", "int", "long", "bool",
	"float", "double", "string", "map", "array", "object",
}

func (t Type) String() string {
	if t >= 0 && int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("type(%d)", int32(t))
}

// Value is a single tagged value. Only the payload field matching Type is meaningful.
// Map, Array and Object payloads are carried in Bytes.
type Value struct {
	Type         Type
	Int          int32
	Long         int64
	Bool         bool
	Float        float32
	Double       float64
	String       string
	Bytes        []byte
	ObjectTypeID int32
}

// GenericCollectionValue field numbers
const (
	fieldType         protowire.Number = 1
	fieldBytes        protowire.Number = 2
	fieldInt          protowire.Number = 3
	fieldLong         protowire.Number = 4
	fieldBool         protowire.Number = 5
	fieldFloat        protowire.Number = 6
	fieldDouble       protowire.Number = 7
	fieldString       protowire.Number = 8
	fieldObjectTypeID protowire.Number = 9
)

// GenericCollection field numbers
const (
	fieldList     protowire.Number = 1
	fieldMapEntry protowire.Number = 2

	fieldEntryKey protowire.Number = 1
	fieldEntryVal protowire.Number = 2
)

// Marshal encodes v as a GenericCollectionValue message.
func (v Value) Marshal() []byte {
	return v.appendTo(nil)
}

func (v Value) appendTo(b []byte) []byte {
	if v.Type != TypeNull {
		b = appendVarint(b, fieldType, uint64(v.Type))
	}

	switch v.Type {
	case TypeBytes, TypeMap, TypeArray:
		b = appendBytes(b, fieldBytes, v.Bytes)
	case TypeByte, TypeShort, TypeInt:
		// int32 is sign-extended on the wire
		b = appendVarint(b, fieldInt, uint64(int64(v.Int)))
	case TypeLong:
		b = appendVarint(b, fieldLong, uint64(v.Long))
	case TypeBool:
		if v.Bool {
			b = appendVarint(b, fieldBool, 1)
		}
	case TypeFloat:
		if v.Float != 0 {
			b = protowire.AppendTag(b, fieldFloat, protowire.Fixed32Type)
			b = protowire.AppendFixed32(b, math.Float32bits(v.Float))
		}
	case TypeDouble:
		if v.Double != 0 {
			b = protowire.AppendTag(b, fieldDouble, protowire.Fixed64Type)
			b = protowire.AppendFixed64(b, math.Float64bits(v.Double))
		}
	case TypeString:
		if v.String != "" {
			b = protowire.AppendTag(b, fieldString, protowire.BytesType)
			b = protowire.AppendString(b, v.String)
		}
	case TypeObject:
		b = appendVarint(b, fieldObjectTypeID, uint64(int64(v.ObjectTypeID)))
		b = appendBytes(b, fieldBytes, v.Bytes)
	}

	return b
}

// UnmarshalValue decodes a GenericCollectionValue message. Unknown fields are skipped.
func UnmarshalValue(b []byte) (Value, error) {
	var v Value
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Value{}, malformed(n)
		}
		b = b[n:]

		switch {
		case num == fieldType && typ == protowire.VarintType:
			x, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Value{}, malformed(n)
			}
			v.Type = Type(int32(x))
			b = b[n:]
		case num == fieldBytes && typ == protowire.BytesType:
			x, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return Value{}, malformed(n)
			}
			v.Bytes = append([]byte{}, x...)
			b = b[n:]
		case num == fieldInt && typ == protowire.VarintType:
			x, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Value{}, malformed(n)
			}
			v.Int = int32(x)
			b = b[n:]
		case num == fieldLong && typ == protowire.VarintType:
			x, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Value{}, malformed(n)
			}
			v.Long = int64(x)
			b = b[n:]
		case num == fieldBool && typ == protowire.VarintType:
			x, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Value{}, malformed(n)
			}
			v.Bool = protowire.DecodeBool(x)
			b = b[n:]
		case num == fieldFloat && typ == protowire.Fixed32Type:
			x, n := protowire.ConsumeFixed32(b)
			if n < 0 {
				return Value{}, malformed(n)
			}
			v.Float = math.Float32frombits(x)
			b = b[n:]
		case num == fieldDouble && typ == protowire.Fixed64Type:
			x, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return Value{}, malformed(n)
			}
			v.Double = math.Float64frombits(x)
			b = b[n:]
		case num == fieldString && typ == protowire.BytesType:
			x, n := protowire.ConsumeString(b)
			if n < 0 {
				return Value{}, malformed(n)
			}
			v.String = x
			b = b[n:]
		case num == fieldObjectTypeID && typ == protowire.VarintType:
			x, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Value{}, malformed(n)
			}
			v.ObjectTypeID = int32(x)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return Value{}, malformed(n)
			}
			b = b[n:]
		}
	}
	return v, nil
}

// collection is the GenericCollection message: either a list or a set of map entries.
type collection struct {
	list    []Value
	entries []mapEntry
}

type mapEntry struct {
	key string
	val Value
}

func (c collection) marshal() []byte {
	var b []byte
	for _, v := range c.list {
		b = protowire.AppendTag(b, fieldList, protowire.BytesType)
		b = protowire.AppendBytes(b, v.Marshal())
	}
	for _, e := range c.entries {
		var entry []byte
		entry = protowire.AppendTag(entry, fieldEntryKey, protowire.BytesType)
		entry = protowire.AppendString(entry, e.key)
		entry = protowire.AppendTag(entry, fieldEntryVal, protowire.BytesType)
		entry = protowire.AppendBytes(entry, e.val.Marshal())

		b = protowire.AppendTag(b, fieldMapEntry, protowire.BytesType)
		b = protowire.AppendBytes(b, entry)
	}
	return b
}

func unmarshalCollection(b []byte) (collection, error) {
	var c collection
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return collection{}, malformed(n)
		}
		b = b[n:]

		if typ != protowire.BytesType || (num != fieldList && num != fieldMapEntry) {
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return collection{}, malformed(n)
			}
			b = b[n:]
			continue
		}

		raw, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return collection{}, malformed(n)
		}
		b = b[n:]

		if num == fieldList {
			v, err := UnmarshalValue(raw)
			if err != nil {
				return collection{}, err
			}
			c.list = append(c.list, v)
			continue
		}

		e, err := unmarshalEntry(raw)
		if err != nil {
			return collection{}, err
		}
		c.entries = append(c.entries, e)
	}
	return c, nil
}

func unmarshalEntry(b []byte) (mapEntry, error) {
	var e mapEntry
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return mapEntry{}, malformed(n)
		}
		b = b[n:]

		switch {
		case num == fieldEntryKey && typ == protowire.BytesType:
			key, n := protowire.ConsumeString(b)
			if n < 0 {
				return mapEntry{}, malformed(n)
			}
			e.key = key
			b = b[n:]
		case num == fieldEntryVal && typ == protowire.BytesType:
			raw, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return mapEntry{}, malformed(n)
			}
			v, err := UnmarshalValue(raw)
			if err != nil {
				return mapEntry{}, err
			}
			e.val = v
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return mapEntry{}, malformed(n)
			}
			b = b[n:]
		}
	}
	return e, nil
}

func appendVarint(b []byte, num protowire.Number, x uint64) []byte {
	if x == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, x)
}

func appendBytes(b []byte, num protowire.Number, x []byte) []byte {
	if len(x) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, x)
}

func malformed(n int) error {
	return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
}
