package convert

import (
	"reflect"

	"github.com/twinfer/docbin/pkg/docvalue"
)

// Alternative describes one member of a closed type set, for tagged
// unions and polymorphic bases. Build with Alt.
type Alternative struct {
	typ     reflect.Type
	is      func(r *Registry, v *docvalue.Value) bool
	tryAs   func(r *Registry, v *docvalue.Value) (any, error)
	matches func(x any) bool
	toValue func(r *Registry, x any) (*docvalue.Value, error)
}

// Alt declares A as an alternative. A's own entry (registered or
// structural) handles the conversion.
func Alt[A any]() Alternative {
	t := reflect.TypeFor[A]()
	return Alternative{
		typ: t,
		is: func(r *Registry, v *docvalue.Value) bool {
			if e, ok := r.Lookup(t); ok {
				return e.Is(v)
			}
			_, err := r.valueToNative(v, t)
			return err == nil
		},
		tryAs: func(r *Registry, v *docvalue.Value) (any, error) {
			rv, err := r.valueToNative(v, t)
			if err != nil {
				return nil, err
			}
			return rv.Interface(), nil
		},
		matches: func(x any) bool {
			return x != nil && reflect.TypeOf(x) == t
		},
		toValue: func(r *Registry, x any) (*docvalue.Value, error) {
			return r.nativeToValue(reflect.ValueOf(x))
		},
	}
}

// unionEntry converts a closed set of alternative types behind U, tried
// in declared order.
type unionEntry struct {
	reg  *Registry
	typ  reflect.Type
	alts []Alternative
}

// RegisterUnion registers U (an interface type) as a tagged union over
// the declared alternatives in the default registry. Decode returns the
// first alternative that both matches and extracts; encode dispatches on
// the dynamic type. A nil union value encodes to null, matching the
// nil-pointer rule.
func RegisterUnion[U any](alts ...Alternative) {
	r := Default()
	r.Register(&unionEntry{reg: r, typ: reflect.TypeFor[U](), alts: alts})
}

func (e *unionEntry) Type() reflect.Type { return e.typ }

func (e *unionEntry) Is(v *docvalue.Value) bool {
	for _, a := range e.alts {
		if a.is(e.reg, v) {
			return true
		}
	}
	return false
}

func (e *unionEntry) TryAs(v *docvalue.Value) (any, error) {
	for _, a := range e.alts {
		if !a.is(e.reg, v) {
			continue
		}
		x, err := a.tryAs(e.reg, v)
		if err == nil {
			return x, nil
		}
	}
	return nil, docvalue.NewError(docvalue.ConversionFailed,
		e.typ.String()+": no matching alternative")
}

func (e *unionEntry) ToValue(x any) (*docvalue.Value, error) {
	if x == nil {
		return docvalue.Null(), nil
	}
	inner := reflect.ValueOf(x)
	if inner.Kind() == reflect.Interface {
		inner = inner.Elem()
	}
	if !inner.IsValid() || (inner.Kind() == reflect.Ptr && inner.IsNil()) {
		return docvalue.Null(), nil
	}
	dyn := inner.Interface()
	for _, a := range e.alts {
		if a.matches(dyn) {
			return a.toValue(e.reg, dyn)
		}
	}
	return nil, docvalue.NewError(docvalue.ConversionFailed,
		e.typ.String()+": active alternative is not declared")
}
