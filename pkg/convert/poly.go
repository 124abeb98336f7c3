package convert

import (
	"reflect"

	"github.com/twinfer/docbin/pkg/docvalue"
)

// polyEntry converts a fixed, closed set of derived types behind a base
// interface.
type polyEntry struct {
	reg     *Registry
	typ     reflect.Type
	derived []Alternative
}

// RegisterPolymorphic registers B (an interface type) as a closed-world
// polymorphic base over the declared derived types, in declared order.
//
// Dispatch is structural: decode returns the first derived type whose
// shape matches and extracts, so two derived types with overlapping
// required fields are ambiguous and the earlier declaration wins. A shape
// matching no derived type decodes to a nil B without error, and a
// concrete value outside the declared set encodes to null. Open-world
// polymorphism is out of scope.
func RegisterPolymorphic[B any](derived ...Alternative) {
	r := Default()
	r.Register(&polyEntry{reg: r, typ: reflect.TypeFor[B](), derived: derived})
}

func (e *polyEntry) Type() reflect.Type { return e.typ }

func (e *polyEntry) Is(v *docvalue.Value) bool {
	for _, d := range e.derived {
		if d.is(e.reg, v) {
			return true
		}
	}
	return false
}

func (e *polyEntry) TryAs(v *docvalue.Value) (any, error) {
	for _, d := range e.derived {
		if !d.is(e.reg, v) {
			continue
		}
		x, err := d.tryAs(e.reg, v)
		if err == nil {
			return x, nil
		}
	}
	// No declared derived type matched: a nil base, not an error.
	return nil, nil
}

func (e *polyEntry) ToValue(x any) (*docvalue.Value, error) {
	if x == nil {
		return docvalue.Null(), nil
	}
	inner := reflect.ValueOf(x)
	if inner.Kind() == reflect.Ptr && inner.IsNil() {
		return docvalue.Null(), nil
	}
	dyn := inner.Interface()
	for _, d := range e.derived {
		if d.matches(dyn) {
			return d.toValue(e.reg, dyn)
		}
	}
	return docvalue.Null(), nil
}
