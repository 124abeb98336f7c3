// Package convert bridges native Go types and document values through a
// registry of conversion entries. Every entry supplies three operations:
// a cheap match predicate, a fallible extraction, and a total encoding.
// Entries are keyed by type identity (reflect.Type); types without an
// explicit entry fall back to a structural conversion that composes
// entries recursively across pointers, slices, arrays, maps and structs.
package convert

import (
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/twinfer/docbin/pkg/docvalue"
)

// Entry is one registered bidirectional conversion between a native type
// and the document value.
type Entry interface {
	// Type identifies the native type this entry serves.
	Type() reflect.Type
	// Is reports whether v could convert to the native type. It never
	// fails and performs no allocation-heavy work.
	Is(v *docvalue.Value) bool
	// TryAs extracts the native value, returning a typed error on any
	// mismatch. It never panics and never mutates v.
	TryAs(v *docvalue.Value) (any, error)
	// ToValue encodes the native value. The argument's dynamic type is
	// always Type().
	ToValue(x any) (*docvalue.Value, error)
}

// Registry is a type-indexed set of conversion entries. The zero value is
// not usable; use NewRegistry or Default.
type Registry struct {
	mu      sync.RWMutex
	entries map[reflect.Type]Entry
}

// NewRegistry returns an empty registry. Most callers want Default, which
// comes pre-populated with the builtin entries.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[reflect.Type]Entry)}
}

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// Default returns the process-wide registry, populating the builtin
// entries on first use. Concurrent first use is race-free.
func Default() *Registry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewRegistry()
		registerBuiltins(defaultRegistry)
	})
	return defaultRegistry
}

// Register adds or replaces the entry for its type.
func (r *Registry) Register(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[e.Type()] = e
}

// Lookup returns the entry registered for t.
func (r *Registry) Lookup(t reflect.Type) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[t]
	return e, ok
}

// Register adds an entry to the default registry.
func Register(e Entry) { Default().Register(e) }

// As extracts a T from v through the default registry.
func As[T any](v *docvalue.Value) (T, error) {
	var out T
	err := Default().Decode(v, &out)
	return out, err
}

// MustAs is the panicking shape of As.
func MustAs[T any](v *docvalue.Value) T {
	out, err := As[T](v)
	if err != nil {
		panic(err)
	}
	return out
}

// Is reports whether v could convert to T.
func Is[T any](v *docvalue.Value) bool {
	t := reflect.TypeFor[T]()
	if e, ok := Default().Lookup(t); ok {
		return e.Is(v)
	}
	_, err := As[T](v)
	return err == nil
}

// ToValue encodes a native value through the default registry.
func ToValue(x any) (*docvalue.Value, error) {
	return Default().Encode(x)
}

// MustToValue is the panicking shape of ToValue.
func MustToValue(x any) *docvalue.Value {
	v, err := ToValue(x)
	if err != nil {
		panic(err)
	}
	return v
}

// Decode converts v into *out, which must be a non-nil pointer.
func (r *Registry) Decode(v *docvalue.Value, out any) error {
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return docvalue.NewError(docvalue.ConversionFailed, "decode target must be a non-nil pointer")
	}
	got, err := r.valueToNative(v, rv.Type().Elem())
	if err != nil {
		return err
	}
	rv.Elem().Set(got)
	return nil
}

// Encode converts a native value to a document value.
func (r *Registry) Encode(x any) (*docvalue.Value, error) {
	if x == nil {
		return docvalue.Null(), nil
	}
	if v, ok := x.(*docvalue.Value); ok {
		return v, nil
	}
	return r.nativeToValue(reflect.ValueOf(x))
}

var (
	anyType      = reflect.TypeFor[any]()
	docValueType = reflect.TypeFor[*docvalue.Value]()
)

func (r *Registry) valueToNative(v *docvalue.Value, t reflect.Type) (reflect.Value, error) {
	if t == docValueType {
		return reflect.ValueOf(v), nil
	}
	if e, ok := r.Lookup(t); ok {
		x, err := e.TryAs(v)
		if err != nil {
			return reflect.Value{}, err
		}
		return assignTo(x, t)
	}

	switch t.Kind() {
	case reflect.Ptr:
		if v.IsNull() {
			return reflect.Zero(t), nil
		}
		p := reflect.New(t.Elem())
		inner, err := r.valueToNative(v, t.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		p.Elem().Set(inner)
		return p, nil

	case reflect.Interface:
		if t == anyType {
			x, err := r.valueToAny(v)
			if err != nil {
				return reflect.Value{}, err
			}
			rv := reflect.New(t).Elem()
			if x != nil {
				rv.Set(reflect.ValueOf(x))
			}
			return rv, nil
		}
		return reflect.Value{}, docvalue.NewError(docvalue.ConversionFailed,
			fmt.Sprintf("no conversion entry for %s", t))

	case reflect.Slice:
		return r.valueToSlice(v, t)

	case reflect.Array:
		return r.valueToArray(v, t)

	case reflect.Map:
		return r.valueToMap(v, t)

	case reflect.Struct:
		return r.valueToStruct(v, t)

	case reflect.Bool:
		b, err := v.AsBool()
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(b).Convert(t), nil

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i, err := asSigned(v, t.Bits())
		if err != nil {
			return reflect.Value{}, err
		}
		rv := reflect.New(t).Elem()
		rv.SetInt(i)
		return rv, nil

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u, err := asUnsigned(v, t.Bits())
		if err != nil {
			return reflect.Value{}, err
		}
		rv := reflect.New(t).Elem()
		rv.SetUint(u)
		return rv, nil

	case reflect.Float32, reflect.Float64:
		f, err := asFloat(v, t.Bits())
		if err != nil {
			return reflect.Value{}, err
		}
		rv := reflect.New(t).Elem()
		rv.SetFloat(f)
		return rv, nil

	case reflect.String:
		s, err := v.AsString()
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(s).Convert(t), nil
	}

	return reflect.Value{}, docvalue.NewError(docvalue.ConversionFailed,
		fmt.Sprintf("unsupported native type %s", t))
}

// assignTo places the entry result x into a value of static type t,
// handling interface targets and nil results.
func assignTo(x any, t reflect.Type) (reflect.Value, error) {
	rv := reflect.New(t).Elem()
	if x == nil {
		return rv, nil
	}
	xv := reflect.ValueOf(x)
	if xv.Type() == t {
		return xv, nil
	}
	if xv.Type().AssignableTo(t) {
		rv.Set(xv)
		return rv, nil
	}
	if xv.Type().ConvertibleTo(t) {
		return xv.Convert(t), nil
	}
	return reflect.Value{}, docvalue.NewError(docvalue.ConversionFailed,
		fmt.Sprintf("entry produced %s, want %s", xv.Type(), t))
}

// valueToAny produces the default dynamic representation: nil, bool,
// int64, uint64, float64, string, []byte, []any, or map[string]any.
func (r *Registry) valueToAny(v *docvalue.Value) (any, error) {
	switch v.Kind() {
	case docvalue.KindNull:
		return nil, nil
	case docvalue.KindBool:
		return v.AsBool()
	case docvalue.KindInt64:
		return v.AsInt64()
	case docvalue.KindUint64:
		return v.AsUint64()
	case docvalue.KindDouble:
		return v.AsFloat64()
	case docvalue.KindString:
		return v.AsString()
	case docvalue.KindBytes:
		return v.AsBytes()
	case docvalue.KindArray:
		elems, _ := v.Elements()
		out := make([]any, len(elems))
		for i, e := range elems {
			x, err := r.valueToAny(e)
			if err != nil {
				return nil, err
			}
			out[i] = x
		}
		return out, nil
	case docvalue.KindObject:
		obj, _ := v.Object()
		out := make(map[string]any, obj.Len())
		for _, m := range obj.Members() {
			x, err := r.valueToAny(m.Value)
			if err != nil {
				return nil, err
			}
			out[m.Key] = x
		}
		return out, nil
	}
	return nil, docvalue.NewError(docvalue.ConversionFailed, v.Kind().String())
}

func (r *Registry) valueToSlice(v *docvalue.Value, t reflect.Type) (reflect.Value, error) {
	// Byte-valued slices accept three source forms: a byte-string, a
	// string, and an array of byte-sized integers.
	if t.Elem().Kind() == reflect.Uint8 {
		b, err := bytesFromValue(v)
		if err != nil {
			return reflect.Value{}, err
		}
		rv := reflect.MakeSlice(t, len(b), len(b))
		reflect.Copy(rv, reflect.ValueOf(b))
		return rv, nil
	}
	elems, err := v.Elements()
	if err != nil {
		return reflect.Value{}, err
	}
	// Capacity is reserved from the source array's declared length.
	rv := reflect.MakeSlice(t, 0, len(elems))
	for i, e := range elems {
		ev, err := r.valueToNative(e, t.Elem())
		if err != nil {
			return reflect.Value{}, wrapIndex(err, i)
		}
		rv = reflect.Append(rv, ev)
	}
	return rv, nil
}

func (r *Registry) valueToArray(v *docvalue.Value, t reflect.Type) (reflect.Value, error) {
	elems, err := v.Elements()
	if err != nil {
		return reflect.Value{}, err
	}
	if len(elems) != t.Len() {
		return reflect.Value{}, docvalue.NewError(docvalue.ArityMismatch,
			fmt.Sprintf("expected %d elements, got %d", t.Len(), len(elems)))
	}
	rv := reflect.New(t).Elem()
	for i, e := range elems {
		ev, err := r.valueToNative(e, t.Elem())
		if err != nil {
			return reflect.Value{}, wrapIndex(err, i)
		}
		rv.Index(i).Set(ev)
	}
	return rv, nil
}

func (r *Registry) valueToMap(v *docvalue.Value, t reflect.Type) (reflect.Value, error) {
	obj, err := v.Object()
	if err != nil {
		return reflect.Value{}, err
	}
	rv := reflect.MakeMapWithSize(t, obj.Len())
	keyT := t.Key()
	stringKey := keyT.Kind() == reflect.String
	for _, m := range obj.Members() {
		var kv reflect.Value
		if stringKey {
			// Fast path: the member name bytes are the key.
			kv = reflect.ValueOf(m.Key).Convert(keyT)
		} else {
			// Slow path: wrap the name as a one-element value and run
			// it through the key type's own conversion.
			kv, err = r.valueToNative(docvalue.String(m.Key), keyT)
			if err != nil {
				return reflect.Value{}, wrapMember(err, m.Key)
			}
		}
		vv, err := r.valueToNative(m.Value, t.Elem())
		if err != nil {
			return reflect.Value{}, wrapMember(err, m.Key)
		}
		rv.SetMapIndex(kv, vv)
	}
	return rv, nil
}

// valueToStruct is the structural fallback for struct types without a
// registered entry: every exported field maps by name (json tag first),
// missing members default silently. Aggregates that need a mandatory
// split register through the Struct builder instead.
func (r *Registry) valueToStruct(v *docvalue.Value, t reflect.Type) (reflect.Value, error) {
	obj, err := v.Object()
	if err != nil {
		return reflect.Value{}, err
	}
	rv := reflect.New(t).Elem()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name := fieldName(f)
		if name == "-" {
			continue
		}
		mv, ok := obj.Get(name)
		if !ok {
			continue
		}
		fv, err := r.valueToNative(mv, f.Type)
		if err != nil {
			return reflect.Value{}, wrapMember(err, name)
		}
		rv.Field(i).Set(fv)
	}
	return rv, nil
}

func (r *Registry) nativeToValue(rv reflect.Value) (*docvalue.Value, error) {
	if !rv.IsValid() {
		return docvalue.Null(), nil
	}
	t := rv.Type()
	if t == docValueType {
		return rv.Interface().(*docvalue.Value), nil
	}
	if e, ok := r.Lookup(t); ok {
		return e.ToValue(rv.Interface())
	}

	switch t.Kind() {
	case reflect.Ptr:
		if rv.IsNil() {
			return docvalue.Null(), nil
		}
		return r.nativeToValue(rv.Elem())

	case reflect.Interface:
		if rv.IsNil() {
			return docvalue.Null(), nil
		}
		return r.nativeToValue(rv.Elem())

	case reflect.Slice, reflect.Array:
		if t.Elem().Kind() == reflect.Uint8 {
			b := make([]byte, rv.Len())
			reflect.Copy(reflect.ValueOf(b), rv)
			return docvalue.Bytes(b), nil
		}
		elems := make([]*docvalue.Value, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			ev, err := r.nativeToValue(rv.Index(i))
			if err != nil {
				return nil, wrapIndex(err, i)
			}
			elems[i] = ev
		}
		return docvalue.ArrayFromSlice(elems), nil

	case reflect.Map:
		return r.mapToValue(rv)

	case reflect.Struct:
		obj := docvalue.NewObject()
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if !f.IsExported() {
				continue
			}
			name := fieldName(f)
			if name == "-" {
				continue
			}
			fv, err := r.nativeToValue(rv.Field(i))
			if err != nil {
				return nil, wrapMember(err, name)
			}
			obj.Set(name, fv)
		}
		return docvalue.ObjectValue(obj), nil

	case reflect.Bool:
		return docvalue.Bool(rv.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return docvalue.Int(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return docvalue.Uint(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return docvalue.Float(rv.Float()), nil
	case reflect.String:
		return docvalue.String(rv.String()), nil
	}

	return nil, docvalue.NewError(docvalue.ConversionFailed,
		fmt.Sprintf("unsupported native type %s", t))
}

// mapToValue encodes a map deterministically: member names sort, and a
// key whose encoding is not a string value is dumped to its compact text
// form. Colliding names are last write wins in that sorted order.
func (r *Registry) mapToValue(rv reflect.Value) (*docvalue.Value, error) {
	type pair struct {
		name string
		val  reflect.Value
	}
	pairs := make([]pair, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		k := iter.Key()
		var name string
		if k.Kind() == reflect.String {
			name = k.String()
		} else {
			kv, err := r.nativeToValue(k)
			if err != nil {
				return nil, err
			}
			if s, err := kv.AsString(); err == nil {
				name = s
			} else {
				name = kv.DumpText()
			}
		}
		pairs = append(pairs, pair{name: name, val: iter.Value()})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].name < pairs[j].name })
	obj := docvalue.NewObject()
	for _, p := range pairs {
		vv, err := r.nativeToValue(p.val)
		if err != nil {
			return nil, wrapMember(err, p.name)
		}
		obj.Set(p.name, vv)
	}
	return docvalue.ObjectValue(obj), nil
}

func fieldName(f reflect.StructField) string {
	if tag, ok := f.Tag.Lookup("json"); ok {
		name := tag
		for i := 0; i < len(tag); i++ {
			if tag[i] == ',' {
				name = tag[:i]
				break
			}
		}
		if name != "" {
			return name
		}
	}
	return f.Name
}

func wrapIndex(err error, i int) error {
	if ce, ok := err.(*docvalue.ConvError); ok && ce.Context == "" {
		return docvalue.NewError(ce.Kind, fmt.Sprintf("element %d", i))
	}
	return err
}

func wrapMember(err error, name string) error {
	if ce, ok := err.(*docvalue.ConvError); ok {
		if ce.Context == "" {
			return docvalue.NewError(ce.Kind, name)
		}
		return docvalue.NewError(ce.Kind, name+": "+ce.Context)
	}
	return err
}
