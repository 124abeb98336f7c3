package convert

import (
	"reflect"

	"github.com/twinfer/docbin/pkg/docvalue"
)

// FieldSpec describes one member of an aggregate mapping: its wire name
// and how to read and write it on the native struct. Build with Field or
// FieldGetSet.
type FieldSpec[T any] struct {
	name   string
	is     func(r *Registry, v *docvalue.Value) bool
	decode func(r *Registry, dst *T, v *docvalue.Value) error
	encode func(r *Registry, src *T) (*docvalue.Value, error)
	isSet  func(src *T) bool
}

// Field maps a member through direct access: access returns a pointer to
// the field inside the aggregate.
func Field[T, F any](name string, access func(*T) *F) FieldSpec[T] {
	ft := reflect.TypeFor[F]()
	return FieldSpec[T]{
		name: name,
		is: func(r *Registry, v *docvalue.Value) bool {
			_, err := r.valueToNative(v, ft)
			return err == nil
		},
		decode: func(r *Registry, dst *T, v *docvalue.Value) error {
			fv, err := r.valueToNative(v, ft)
			if err != nil {
				return err
			}
			reflect.ValueOf(access(dst)).Elem().Set(fv)
			return nil
		},
		encode: func(r *Registry, src *T) (*docvalue.Value, error) {
			return r.nativeToValue(reflect.ValueOf(access(src)).Elem())
		},
		isSet: func(src *T) bool {
			return fieldIsSet(reflect.ValueOf(access(src)).Elem())
		},
	}
}

// FieldGetSet maps a member through a getter/setter pair. It produces the
// same wire output as Field for the same logical content.
func FieldGetSet[T, F any](name string, get func(*T) F, set func(*T, F)) FieldSpec[T] {
	ft := reflect.TypeFor[F]()
	return FieldSpec[T]{
		name: name,
		is: func(r *Registry, v *docvalue.Value) bool {
			_, err := r.valueToNative(v, ft)
			return err == nil
		},
		decode: func(r *Registry, dst *T, v *docvalue.Value) error {
			fv, err := r.valueToNative(v, ft)
			if err != nil {
				return err
			}
			set(dst, fv.Interface().(F))
			return nil
		},
		encode: func(r *Registry, src *T) (*docvalue.Value, error) {
			return r.nativeToValue(reflect.ValueOf(get(src)))
		},
		isSet: func(src *T) bool {
			return fieldIsSet(reflect.ValueOf(get(src)))
		},
	}
}

// fieldIsSet reports whether an optional member is present: wrapper
// (pointer) fields are set when non-nil, plain fields are always set.
func fieldIsSet(rv reflect.Value) bool {
	if !rv.IsValid() {
		return false
	}
	if rv.Kind() == reflect.Ptr || rv.Kind() == reflect.Interface {
		return !rv.IsNil()
	}
	return true
}

// StructBuilder assembles an aggregate entry from a declared field list
// and a mandatory split point.
type StructBuilder[T any] struct {
	name      string
	fields    []FieldSpec[T]
	mandatory int
	haveSplit bool
}

// Struct starts an aggregate mapping for T. name appears in error
// context ("name: field").
func Struct[T any](name string) *StructBuilder[T] {
	return &StructBuilder[T]{name: name}
}

// Fields appends field specs in declaration order.
func (b *StructBuilder[T]) Fields(fs ...FieldSpec[T]) *StructBuilder[T] {
	b.fields = append(b.fields, fs...)
	return b
}

// Mandatory sets the split point: fields with index < n are required on
// decode and always emitted on encode; the rest default silently when
// missing and are emitted only when set. Without a call every field is
// mandatory.
func (b *StructBuilder[T]) Mandatory(n int) *StructBuilder[T] {
	b.mandatory = n
	b.haveSplit = true
	return b
}

// Register installs the entry in the default registry.
func (b *StructBuilder[T]) Register() {
	b.RegisterIn(Default())
}

// RegisterIn installs the entry in the given registry.
func (b *StructBuilder[T]) RegisterIn(r *Registry) {
	mandatory := b.mandatory
	if !b.haveSplit {
		mandatory = len(b.fields)
	}
	r.Register(&structEntry[T]{
		reg:       r,
		name:      b.name,
		fields:    b.fields,
		mandatory: mandatory,
	})
}

type structEntry[T any] struct {
	reg       *Registry
	name      string
	fields    []FieldSpec[T]
	mandatory int
}

func (e *structEntry[T]) Type() reflect.Type { return reflect.TypeFor[T]() }

// Is requires an object carrying every mandatory member with a matching
// shape.
func (e *structEntry[T]) Is(v *docvalue.Value) bool {
	obj, err := v.Object()
	if err != nil {
		return false
	}
	for i, f := range e.fields {
		mv, ok := obj.Get(f.name)
		if !ok {
			if i < e.mandatory {
				return false
			}
			continue
		}
		if !f.is(e.reg, mv) {
			return false
		}
	}
	return true
}

func (e *structEntry[T]) TryAs(v *docvalue.Value) (any, error) {
	obj, err := v.Object()
	if err != nil {
		return nil, err
	}
	var out T
	for i, f := range e.fields {
		mv, ok := obj.Get(f.name)
		if !ok {
			if i < e.mandatory {
				return nil, docvalue.NewError(docvalue.MissingRequiredMember,
					e.name+": "+f.name)
			}
			continue // optional member defaults silently
		}
		if err := f.decode(e.reg, &out, mv); err != nil {
			return nil, wrapMember(err, f.name)
		}
	}
	return out, nil
}

func (e *structEntry[T]) ToValue(x any) (*docvalue.Value, error) {
	src := x.(T)
	obj := docvalue.NewObject()
	for i, f := range e.fields {
		if i >= e.mandatory && !f.isSet(&src) {
			continue
		}
		mv, err := f.encode(e.reg, &src)
		if err != nil {
			return nil, wrapMember(err, f.name)
		}
		obj.Set(f.name, mv)
	}
	return docvalue.ObjectValue(obj), nil
}

// CtorField describes one member of a constructor-style aggregate, where
// decoded members become constructor arguments and encode reads through a
// getter. Build with CtorArg.
type CtorField[T any] struct {
	name   string
	typ    reflect.Type
	is     func(r *Registry, v *docvalue.Value) bool
	encode func(r *Registry, src *T) (*docvalue.Value, error)
	isSet  func(src *T) bool
}

// CtorArg declares a constructor argument with its getter.
func CtorArg[T, F any](name string, get func(*T) F) CtorField[T] {
	ft := reflect.TypeFor[F]()
	return CtorField[T]{
		name: name,
		typ:  ft,
		is: func(r *Registry, v *docvalue.Value) bool {
			_, err := r.valueToNative(v, ft)
			return err == nil
		},
		encode: func(r *Registry, src *T) (*docvalue.Value, error) {
			return r.nativeToValue(reflect.ValueOf(get(src)))
		},
		isSet: func(src *T) bool {
			return fieldIsSet(reflect.ValueOf(get(src)))
		},
	}
}

// RegisterStructCtor registers a constructor-style aggregate: members
// decode positionally into args (missing optional members pass their zero
// value) and ctor builds the instance. Wire output is identical to the
// other two field shapes for the same logical content.
func RegisterStructCtor[T any](name string, mandatory int, ctor func(args []any) (T, error), fields ...CtorField[T]) {
	r := Default()
	r.Register(&ctorEntry[T]{reg: r, name: name, mandatory: mandatory, ctor: ctor, fields: fields})
}

type ctorEntry[T any] struct {
	reg       *Registry
	name      string
	mandatory int
	ctor      func(args []any) (T, error)
	fields    []CtorField[T]
}

func (e *ctorEntry[T]) Type() reflect.Type { return reflect.TypeFor[T]() }

func (e *ctorEntry[T]) Is(v *docvalue.Value) bool {
	obj, err := v.Object()
	if err != nil {
		return false
	}
	for i, f := range e.fields {
		mv, ok := obj.Get(f.name)
		if !ok {
			if i < e.mandatory {
				return false
			}
			continue
		}
		if !f.is(e.reg, mv) {
			return false
		}
	}
	return true
}

func (e *ctorEntry[T]) TryAs(v *docvalue.Value) (any, error) {
	obj, err := v.Object()
	if err != nil {
		return nil, err
	}
	args := make([]any, len(e.fields))
	for i, f := range e.fields {
		mv, ok := obj.Get(f.name)
		if !ok {
			if i < e.mandatory {
				return nil, docvalue.NewError(docvalue.MissingRequiredMember,
					e.name+": "+f.name)
			}
			args[i] = reflect.Zero(f.typ).Interface()
			continue
		}
		fv, err := e.reg.valueToNative(mv, f.typ)
		if err != nil {
			return nil, wrapMember(err, f.name)
		}
		args[i] = fv.Interface()
	}
	out, err := e.ctor(args)
	if err != nil {
		return nil, docvalue.NewError(docvalue.ConversionFailed, e.name+": "+err.Error())
	}
	return out, nil
}

func (e *ctorEntry[T]) ToValue(x any) (*docvalue.Value, error) {
	src := x.(T)
	obj := docvalue.NewObject()
	for i, f := range e.fields {
		if i >= e.mandatory && !f.isSet(&src) {
			continue
		}
		mv, err := f.encode(e.reg, &src)
		if err != nil {
			return nil, wrapMember(err, f.name)
		}
		obj.Set(f.name, mv)
	}
	return docvalue.ObjectValue(obj), nil
}
