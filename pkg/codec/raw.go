// ABOUTME: Undecoded form of a structured object
// ABOUTME: Lets servers store, compare and re-emit properties without knowing custom types
package codec

import (
	"bytes"
	"sort"
)

// RawObject maps keys to values that have not been deserialized.
type RawObject map[string]Value

// UnmarshalRawObject splits bytes produced by MarshalObject into per-key values.
func UnmarshalRawObject(b []byte) (RawObject, error) {
	c, err := unmarshalCollection(b)
	if err != nil {
		return nil, err
	}
	obj := make(RawObject, len(c.entries))
	for _, e := range c.entries {
		obj[e.key] = e.val
	}
	return obj, nil
}

// Marshal encodes the object with keys in sorted order, as MarshalObject does.
func (o RawObject) Marshal() []byte {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	c := collection{entries: make([]mapEntry, 0, len(o))}
	for _, k := range keys {
		c.entries = append(c.entries, mapEntry{key: k, val: o[k]})
	}
	return c.marshal()
}

// Equal reports whether both values have the same encoding.
func (v Value) Equal(other Value) bool {
	return bytes.Equal(v.Marshal(), other.Marshal())
}
