// ABOUTME: Sentinel errors returned by the generic value codec
// ABOUTME: Distinguishes registration mistakes from undecodable payloads
package codec

import "errors"

var (
	// ErrUnsupportedType is returned for values the codec has no tag or registration for.
	ErrUnsupportedType = errors.New("codec: unsupported type")
	// ErrUnsupportedTypeID is returned when an Object payload names an unregistered type id.
	ErrUnsupportedTypeID = errors.New("codec: unsupported type id")
	// ErrMalformed is returned when encoded bytes cannot be parsed.
	ErrMalformed = errors.New("codec: malformed payload")

	ErrInvalidRegistration = errors.New("codec: invalid type registration")
	ErrDuplicateType       = errors.New("codec: type already registered")
	ErrDuplicateTypeID     = errors.New("codec: type id already registered")
)
