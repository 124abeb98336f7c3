// Package ubjson implements the UBJSON binary format over document
// values: a nested-tag format where every value starts with a marker
// byte, containers are either length-counted or open-ended with an end
// marker, and strongly typed arrays carry a single element marker for
// the whole container.
package ubjson

import "fmt"

// Marker bytes of the format.
const (
	markerNull      = 'Z'
	markerNoop      = 'N'
	markerTrue      = 'T'
	markerFalse     = 'F'
	markerInt8      = 'i'
	markerUint8     = 'U'
	markerInt16     = 'I'
	markerInt32     = 'l'
	markerInt64     = 'L'
	markerFloat32   = 'd'
	markerFloat64   = 'D'
	markerChar      = 'C'
	markerString    = 'S'
	markerHighPre   = 'H'
	markerArray     = '['
	markerArrayEnd  = ']'
	markerObject    = '{'
	markerObjectEnd = '}'
	markerType      = '$'
	markerCount     = '#'
)

// DecodeErrorKind distinguishes the ways wire data can be malformed.
type DecodeErrorKind int

const (
	UnexpectedEOF DecodeErrorKind = iota + 1
	InvalidTag
	LengthExceedsInput
	DepthExceeded
	// InvalidLength: a negative or non-integer length value.
	InvalidLength
)

func (k DecodeErrorKind) String() string {
	switch k {
	case UnexpectedEOF:
		return "unexpected end of input"
	case InvalidTag:
		return "invalid marker"
	case LengthExceedsInput:
		return "length exceeds remaining input"
	case DepthExceeded:
		return "nesting depth exceeded"
	case InvalidLength:
		return "invalid length value"
	default:
		return "malformed input"
	}
}

// DecodeError reports malformed wire data with the byte offset at which
// decoding stopped.
type DecodeError struct {
	Kind   DecodeErrorKind
	Offset int64
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("ubjson: %s at offset %d", e.Kind, e.Offset)
}

type options struct {
	maxDepth      int
	sortedObjects bool
}

// Option configures an encode or decode call.
type Option func(*options)

// WithMaxDepth overrides the container nesting limit (default 1024).
func WithMaxDepth(n int) Option {
	return func(o *options) {
		o.maxDepth = n
	}
}

// WithSortedObjects makes the decoder build sorted objects instead of
// insertion-ordered ones.
func WithSortedObjects() Option {
	return func(o *options) {
		o.sortedObjects = true
	}
}

func applyOptions(opts []Option) options {
	o := options{maxDepth: 1024}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
