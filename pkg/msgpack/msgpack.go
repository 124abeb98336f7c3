// Package msgpack implements the MessagePack binary format over document
// values: a length-prefixed container format with smallest-width integer
// encoding, raw byte strings, extension payloads and the timestamp
// extension.
package msgpack

import (
	"fmt"
)

// DecodeErrorKind distinguishes the ways wire data can be malformed.
type DecodeErrorKind int

const (
	// UnexpectedEOF: the input ended inside a value.
	UnexpectedEOF DecodeErrorKind = iota + 1
	// InvalidTag: a leading type byte that the format does not define for
	// this position.
	InvalidTag
	// LengthExceedsInput: a length prefix larger than the remaining input.
	LengthExceedsInput
	// DepthExceeded: container nesting beyond the configured limit.
	DepthExceeded
)

func (k DecodeErrorKind) String() string {
	switch k {
	case UnexpectedEOF:
		return "unexpected end of input"
	case InvalidTag:
		return "invalid type tag"
	case LengthExceedsInput:
		return "length prefix exceeds remaining input"
	case DepthExceeded:
		return "nesting depth exceeded"
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
	return fmt.Sprintf("msgpack: %s at offset %d", e.Kind, e.Offset)
}

// options configures a single encode or decode call.
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
