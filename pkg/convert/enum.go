package convert

import (
	"reflect"

	"github.com/twinfer/docbin/pkg/docvalue"
)

// EnumPair binds one enumerator to its wire name.
type EnumPair[E comparable] struct {
	Value E
	Name  string
}

type enumEntry[E comparable] struct {
	name      string
	pairs     []EnumPair[E]
	byName    map[string]E
	emptyIsOK bool // empty string decodes to the zero enumerator
}

// RegisterEnum registers a bidirectional string⇄enumerator table for E in
// the default registry. Decoding an unknown string fails with the enum
// name in context.
//
// Compatibility behavior, kept from the original wire contract rather
// than designed: when no enumerator is explicitly mapped to the empty
// string, decoding an empty string succeeds and yields the zero-valued
// enumerator.
func RegisterEnum[E comparable](name string, pairs ...EnumPair[E]) {
	byName := make(map[string]E, len(pairs))
	emptyMapped := false
	for _, p := range pairs {
		byName[p.Name] = p.Value
		if p.Name == "" {
			emptyMapped = true
		}
	}
	Default().Register(&enumEntry[E]{
		name:      name,
		pairs:     pairs,
		byName:    byName,
		emptyIsOK: !emptyMapped,
	})
}

func (e *enumEntry[E]) Type() reflect.Type { return reflect.TypeFor[E]() }

func (e *enumEntry[E]) Is(v *docvalue.Value) bool {
	s, err := v.AsString()
	if err != nil {
		return false
	}
	if _, ok := e.byName[s]; ok {
		return true
	}
	return s == "" && e.emptyIsOK
}

func (e *enumEntry[E]) TryAs(v *docvalue.Value) (any, error) {
	s, err := v.AsString()
	if err != nil {
		return nil, err
	}
	if ev, ok := e.byName[s]; ok {
		return ev, nil
	}
	if s == "" && e.emptyIsOK {
		var zero E
		return zero, nil
	}
	return nil, docvalue.NewError(docvalue.ConversionFailed, e.name)
}

func (e *enumEntry[E]) ToValue(x any) (*docvalue.Value, error) {
	ev := x.(E)
	for _, p := range e.pairs {
		if p.Value == ev {
			return docvalue.String(p.Name), nil
		}
	}
	return nil, docvalue.NewError(docvalue.ConversionFailed, e.name)
}
