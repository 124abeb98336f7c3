package convert

import (
	"reflect"

	"github.com/twinfer/docbin/pkg/docvalue"
)

// Pair is a positional two-element tuple mapped to a two-element array.
// Instantiations must be registered via RegisterPair before use.
type Pair[A, B any] struct {
	First  A
	Second B
}

// Triple is a positional three-element tuple mapped to a three-element
// array. Instantiations must be registered via RegisterTriple.
type Triple[A, B, C any] struct {
	First  A
	Second B
	Third  C
}

// position describes one tuple slot: how to check, extract and encode it.
type position struct {
	is      func(r *Registry, v *docvalue.Value) bool
	tryAs   func(r *Registry, v *docvalue.Value) (reflect.Value, error)
	toValue func(r *Registry, x reflect.Value) (*docvalue.Value, error)
}

func positionFor(t reflect.Type) position {
	return position{
		is: func(r *Registry, v *docvalue.Value) bool {
			_, err := r.valueToNative(v, t)
			return err == nil
		},
		tryAs: func(r *Registry, v *docvalue.Value) (reflect.Value, error) {
			return r.valueToNative(v, t)
		},
		toValue: func(r *Registry, x reflect.Value) (*docvalue.Value, error) {
			return r.nativeToValue(x)
		},
	}
}

// tupleEntry maps a struct's fields positionally onto array elements.
type tupleEntry struct {
	reg       *Registry
	typ       reflect.Type
	positions []position
}

func (e *tupleEntry) Type() reflect.Type { return e.typ }

// Is requires the exact arity and checks every position before accepting.
func (e *tupleEntry) Is(v *docvalue.Value) bool {
	elems, err := v.Elements()
	if err != nil || len(elems) != len(e.positions) {
		return false
	}
	for i, p := range e.positions {
		if !p.is(e.reg, elems[i]) {
			return false
		}
	}
	return true
}

// TryAs fails at the first position whose extraction fails, surfacing
// that position's error.
func (e *tupleEntry) TryAs(v *docvalue.Value) (any, error) {
	elems, err := v.Elements()
	if err != nil {
		return nil, err
	}
	if len(elems) != len(e.positions) {
		return nil, docvalue.NewError(docvalue.ArityMismatch, e.typ.String())
	}
	out := reflect.New(e.typ).Elem()
	for i, p := range e.positions {
		fv, err := p.tryAs(e.reg, elems[i])
		if err != nil {
			return nil, wrapIndex(err, i)
		}
		out.Field(i).Set(fv)
	}
	return out.Interface(), nil
}

func (e *tupleEntry) ToValue(x any) (*docvalue.Value, error) {
	rv := reflect.ValueOf(x)
	elems := make([]*docvalue.Value, len(e.positions))
	for i, p := range e.positions {
		ev, err := p.toValue(e.reg, rv.Field(i))
		if err != nil {
			return nil, wrapIndex(err, i)
		}
		elems[i] = ev
	}
	return docvalue.ArrayFromSlice(elems), nil
}

func registerTuple(r *Registry, t reflect.Type) {
	positions := make([]position, t.NumField())
	for i := range positions {
		positions[i] = positionFor(t.Field(i).Type)
	}
	r.Register(&tupleEntry{reg: r, typ: t, positions: positions})
}

// RegisterPair registers the positional entry for Pair[A, B] in the
// default registry.
func RegisterPair[A, B any]() {
	registerTuple(Default(), reflect.TypeFor[Pair[A, B]]())
}

// RegisterTriple registers the positional entry for Triple[A, B, C] in
// the default registry.
func RegisterTriple[A, B, C any]() {
	registerTuple(Default(), reflect.TypeFor[Triple[A, B, C]]())
}
