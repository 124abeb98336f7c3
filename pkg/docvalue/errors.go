package docvalue

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a conversion failure.
type ErrorKind int

const (
	// ConversionFailed: the value is structurally plausible but could not
	// be coerced to the target representation.
	ConversionFailed ErrorKind = iota + 1
	NotAnObject
	NotAnArray
	NotString
	NotByteString
	NotAnInteger
	NotDouble
	NotBool
	NotEpoch
	// MissingRequiredMember: an aggregate field before the mandatory split
	// point was absent from the source object.
	MissingRequiredMember
	// ValueOutOfRange: numeric value does not fit the target width.
	ValueOutOfRange
	// ArityMismatch: fixed-size array or tuple length differs from the
	// source array length.
	ArityMismatch
)

func (k ErrorKind) String() string {
	switch k {
	case ConversionFailed:
		return "conversion failed"
	case NotAnObject:
		return "not an object"
	case NotAnArray:
		return "not an array"
	case NotString:
		return "not a string"
	case NotByteString:
		return "not a byte string"
	case NotAnInteger:
		return "not an integer"
	case NotDouble:
		return "not a double"
	case NotBool:
		return "not a bool"
	case NotEpoch:
		return "not an epoch timestamp"
	case MissingRequiredMember:
		return "missing required member"
	case ValueOutOfRange:
		return "value out of range"
	case ArityMismatch:
		return "arity mismatch"
	default:
		return "unknown conversion error"
	}
}

// ConvError is the typed error returned by every fallible conversion.
// Context carries the offending detail: a field name for missing members,
// the unexpected kind name for structural mismatches, the out-of-range
// text for numeric failures.
type ConvError struct {
	Kind    ErrorKind
	Context string
}

func (e *ConvError) Error() string {
	if e.Context == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Context)
}

// NewError returns a ConvError with the given kind and context.
func NewError(kind ErrorKind, context string) *ConvError {
	return &ConvError{Kind: kind, Context: context}
}

func newError(kind ErrorKind, context string) *ConvError {
	return &ConvError{Kind: kind, Context: context}
}

// KindOf returns the error kind of err if it is (or wraps) a ConvError,
// or zero.
func KindOf(err error) ErrorKind {
	var ce *ConvError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return 0
}
