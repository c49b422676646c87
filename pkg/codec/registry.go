// ABOUTME: Custom type registry for the generic value codec
// ABOUTME: Maps Go types and numeric type ids to user supplied encode/decode functions
package codec

import (
	"fmt"
	"reflect"
	"sync"
)

// EncodeFunc turns a registered custom value into its opaque payload.
type EncodeFunc func(v any) ([]byte, error)

// DecodeFunc rebuilds a registered custom value from its payload.
type DecodeFunc func(b []byte) (any, error)

type customType struct {
	typ    reflect.Type
	id     int32
	encode EncodeFunc
	decode DecodeFunc
}

// Registry holds custom type registrations. Register types during initialization,
// before the registry is shared with connections that serialize those types.
type Registry struct {
	mu     sync.RWMutex
	byType map[reflect.Type]*customType
	byID   map[int32]*customType
}

// Default is the process-wide registry used by the package level helpers.
var Default = NewRegistry()

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byType: make(map[reflect.Type]*customType),
		byID:   make(map[int32]*customType),
	}
}

// Register installs a custom type identified by the dynamic type of sample.
// A collision on either the type or the id is rejected and the existing
// registration is left untouched.
func (r *Registry) Register(sample any, id int32, encode EncodeFunc, decode DecodeFunc) error {
	if sample == nil {
		return fmt.Errorf("%w: nil sample", ErrInvalidRegistration)
	}
	return r.register(reflect.TypeOf(sample), id, encode, decode)
}

// RegisterType is the typed form of Register. T must be a concrete type.
func RegisterType[T any](r *Registry, id int32, encode func(T) ([]byte, error), decode func([]byte) (T, error)) error {
	if encode == nil || decode == nil {
		return fmt.Errorf("%w: nil encode or decode func", ErrInvalidRegistration)
	}
	typ := reflect.TypeOf((*T)(nil)).Elem()

	enc := func(v any) ([]byte, error) {
		t, ok := v.(T)
		if !ok {
			return nil, fmt.Errorf("%w: %T", ErrUnsupportedType, v)
		}
		return encode(t)
	}
	dec := func(b []byte) (any, error) {
		return decode(b)
	}
	return r.register(typ, id, enc, dec)
}

func (r *Registry) register(typ reflect.Type, id int32, encode EncodeFunc, decode DecodeFunc) error {
	if encode == nil || decode == nil {
		return fmt.Errorf("%w: nil encode or decode func", ErrInvalidRegistration)
	}
	if typ.Kind() == reflect.Interface {
		return fmt.Errorf("%w: %s is an interface", ErrInvalidRegistration, typ)
	}
	if isNative(typ) {
		return fmt.Errorf("%w: %s already has a built-in tag", ErrInvalidRegistration, typ)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byType[typ]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateType, typ)
	}
	if existing, ok := r.byID[id]; ok {
		return fmt.Errorf("%w: %d (%s)", ErrDuplicateTypeID, id, existing.typ)
	}

	ct := &customType{typ: typ, id: id, encode: encode, decode: decode}
	r.byType[typ] = ct
	r.byID[id] = ct
	return nil
}

func (r *Registry) lookupType(typ reflect.Type) (*customType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ct, ok := r.byType[typ]
	return ct, ok
}

func (r *Registry) lookupID(id int32) (*customType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ct, ok := r.byID[id]
	return ct, ok
}

var nativeTypes = map[reflect.Type]struct{}{
	reflect.TypeOf([]byte(nil)):         {},
	reflect.TypeOf(byte(0)):             {},
	reflect.TypeOf(int16(0)):            {},
	reflect.TypeOf(int32(0)):            {},
	reflect.TypeOf(int(0)):              {},
	reflect.TypeOf(int64(0)):            {},
	reflect.TypeOf(false):               {},
	reflect.TypeOf(float32(0)):          {},
	reflect.TypeOf(float64(0)):          {},
	reflect.TypeOf(""):                  {},
	reflect.TypeOf(Object(nil)):         {},
	reflect.TypeOf(Array(nil)):          {},
	reflect.TypeOf(map[string]any(nil)): {},
	reflect.TypeOf([]any(nil)):          {},
}

func isNative(typ reflect.Type) bool {
	_, ok := nativeTypes[typ]
	return ok
}

// Register installs a custom type on the Default registry.
func Register(sample any, id int32, encode EncodeFunc, decode DecodeFunc) error {
	return Default.Register(sample, id, encode, decode)
}
