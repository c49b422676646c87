// ABOUTME: Tests for Object and Array typed accessors
// ABOUTME: Accessors must key off the stored width, not the numeric value
package codec

import "testing"

func TestObjectAccessorsExactWidth(t *testing.T) {
	obj := Object{
		"short": int16(3),
		"int":   int32(4),
		"local": 5,
		"long":  int64(6),
		"name":  "bob",
		"none":  nil,
	}

	if v, ok := obj.Short("short"); !ok || v != 3 {
		t.Errorf("expected short 3, got %v %v", v, ok)
	}
	if _, ok := obj.Int("short"); ok {
		t.Error("Int should not read a short")
	}
	if v, ok := obj.Int("int"); !ok || v != 4 {
		t.Errorf("expected int 4, got %v %v", v, ok)
	}
	if v, ok := obj.Int("local"); !ok || v != 5 {
		t.Errorf("expected local int 5, got %v %v", v, ok)
	}
	if _, ok := obj.Long("int"); ok {
		t.Error("Long should not read an int")
	}
	if v, ok := obj.String("name"); !ok || v != "bob" {
		t.Errorf("expected name bob, got %v %v", v, ok)
	}
	if _, ok := obj.String("missing"); ok {
		t.Error("missing key should not be found")
	}
	if !obj.IsNull("none") || obj.IsNull("missing") {
		t.Error("IsNull should only report present nil values")
	}
	if !obj.Has("none") {
		t.Error("Has should report explicit nulls")
	}
}

func TestObjectCloneAndKeys(t *testing.T) {
	obj := Object{"b": 1, "a": 2}
	clone := obj.Clone()
	clone["c"] = 3

	if obj.Has("c") {
		t.Error("clone should not alias the original")
	}

	keys := clone.Keys()
	want := []string{"a", "b", "c"}
	if len(keys) != len(want) {
		t.Fatalf("expected %d keys, got %d", len(want), len(keys))
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("key %d: expected %s, got %s", i, want[i], keys[i])
		}
	}
}

func TestArrayAccessors(t *testing.T) {
	arr := Array{byte(1), 2.5, Object{"k": "v"}, []any{"x"}}

	if v, ok := arr.Byte(0); !ok || v != 1 {
		t.Errorf("expected byte 1, got %v %v", v, ok)
	}
	if v, ok := arr.Double(1); !ok || v != 2.5 {
		t.Errorf("expected double 2.5, got %v %v", v, ok)
	}
	if _, ok := arr.Float(1); ok {
		t.Error("Float should not read a double")
	}
	if o, ok := arr.Object(2); !ok || o["k"] != "v" {
		t.Errorf("expected nested object, got %v %v", o, ok)
	}
	if a, ok := arr.Array(3); !ok || len(a) != 1 {
		t.Errorf("expected nested array, got %v %v", a, ok)
	}
	if _, ok := arr.Byte(10); ok {
		t.Error("out of range index should not be found")
	}
	if _, ok := arr.Byte(-1); ok {
		t.Error("negative index should not be found")
	}
}
