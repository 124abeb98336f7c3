// Package docvalue defines the dynamic document value at the center of
// docbin: a recursively structured, semantically tagged value that every
// codec decodes into and every conversion encodes out of.
package docvalue

import (
	"fmt"
	"math"
	"math/big"
	"strconv"
)

// Kind is the discriminant of a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt64
	KindUint64
	KindDouble
	KindString
	KindBytes
	KindArray
	KindObject
)

// String returns the lower-case kind name used in error messages.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt64:
		return "int64"
	case KindUint64:
		return "uint64"
	case KindDouble:
		return "double"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Tag refines the interpretation of a Value without changing its Kind.
// A string tagged TagBigInt holds the decimal text of an integer too wide
// for 64 bits; an integer tagged TagEpochNano is a timestamp.
type Tag uint8

const (
	TagNone Tag = iota
	TagUndefined
	TagBigInt
	TagBigDec
	TagDateTime
	TagEpochSecond
	TagEpochMilli
	TagEpochNano
	TagBase16
	TagBase64
	TagBase64URL
	TagURI
	TagRegex
	TagExt
)

// String returns the tag name used in diagnostics.
func (t Tag) String() string {
	switch t {
	case TagNone:
		return "none"
	case TagUndefined:
		return "undefined"
	case TagBigInt:
		return "bigint"
	case TagBigDec:
		return "bigdec"
	case TagDateTime:
		return "datetime"
	case TagEpochSecond:
		return "epoch-second"
	case TagEpochMilli:
		return "epoch-milli"
	case TagEpochNano:
		return "epoch-nano"
	case TagBase16:
		return "base16"
	case TagBase64:
		return "base64"
	case TagBase64URL:
		return "base64url"
	case TagURI:
		return "uri"
	case TagRegex:
		return "regex"
	case TagExt:
		return "ext"
	default:
		return "unknown"
	}
}

// IsEpoch reports whether the tag marks a timestamp payload.
func (t Tag) IsEpoch() bool {
	return t == TagEpochSecond || t == TagEpochMilli || t == TagEpochNano
}

// Value is a dynamic document value. The zero Value is null.
//
// A Value owns its children exclusively; arrays and objects are built
// bottom-up by moving child values in, so cycles are not constructible.
// Values handed to a conversion for reading are never mutated by it.
type Value struct {
	kind Kind
	tag  Tag
	ext  int8 // extension type code, meaningful only when tag == TagExt

	num uint64 // bit pattern for bool/int64/uint64/double
	str string
	bin []byte
	arr []*Value
	obj *Object
}

var nullValue = &Value{kind: KindNull}

// Null returns the null value.
func Null() *Value { return nullValue }

// Undefined returns a null value tagged TagUndefined.
func Undefined() *Value { return &Value{kind: KindNull, tag: TagUndefined} }

// Bool returns a boolean value.
func Bool(b bool) *Value {
	var n uint64
	if b {
		n = 1
	}
	return &Value{kind: KindBool, num: n}
}

// Int returns a signed integer value.
func Int(i int64) *Value {
	return &Value{kind: KindInt64, num: uint64(i)}
}

// Uint returns an unsigned integer value.
func Uint(u uint64) *Value {
	return &Value{kind: KindUint64, num: u}
}

// Float returns a double-precision value.
func Float(f float64) *Value {
	return &Value{kind: KindDouble, num: math.Float64bits(f)}
}

// String returns a string value.
func String(s string) *Value {
	return &Value{kind: KindString, str: s}
}

// Bytes returns a byte-string value. The slice is taken over, not copied.
func Bytes(b []byte) *Value {
	return &Value{kind: KindBytes, bin: b}
}

// Array returns an array value owning the given elements.
func Array(elems ...*Value) *Value {
	return &Value{kind: KindArray, arr: elems}
}

// ArrayFromSlice returns an array value backed by the given slice.
func ArrayFromSlice(elems []*Value) *Value {
	return &Value{kind: KindArray, arr: elems}
}

// ObjectValue wraps an Object as a value.
func ObjectValue(obj *Object) *Value {
	if obj == nil {
		obj = NewObject()
	}
	return &Value{kind: KindObject, obj: obj}
}

// BigInt returns the canonical representation of an arbitrary-precision
// integer: its decimal text tagged TagBigInt.
func BigInt(n *big.Int) *Value {
	return &Value{kind: KindString, tag: TagBigInt, str: n.String()}
}

// Ext returns a byte-string carrying a format-specific extension payload
// with the given extension type code.
func Ext(typeCode int8, payload []byte) *Value {
	return &Value{kind: KindBytes, tag: TagExt, ext: typeCode, bin: payload}
}

// WithTag returns a copy of v carrying the given semantic tag.
func (v *Value) WithTag(tag Tag) *Value {
	w := *v
	w.tag = tag
	return &w
}

// Kind returns the discriminant.
func (v *Value) Kind() Kind { return v.kind }

// Tag returns the semantic tag.
func (v *Value) Tag() Tag { return v.tag }

// ExtType returns the extension type code. Meaningful only when
// Tag() == TagExt.
func (v *Value) ExtType() int8 { return v.ext }

// IsNull reports whether the value is null (including undefined).
func (v *Value) IsNull() bool { return v.kind == KindNull }

// IsNumber reports whether the value holds a numeric payload.
func (v *Value) IsNumber() bool {
	return v.kind == KindInt64 || v.kind == KindUint64 || v.kind == KindDouble
}

// AsBool extracts a boolean.
func (v *Value) AsBool() (bool, error) {
	if v.kind != KindBool {
		return false, newError(NotBool, v.kind.String())
	}
	return v.num != 0, nil
}

// AsInt64 extracts a signed 64-bit integer. Unsigned and floating payloads
// convert when exactly representable; BigInt-tagged strings parse through
// their decimal text. Out-of-range values fail with ValueOutOfRange rather
// than truncating.
func (v *Value) AsInt64() (int64, error) {
	switch v.kind {
	case KindInt64:
		return int64(v.num), nil
	case KindUint64:
		if v.num > math.MaxInt64 {
			return 0, newError(ValueOutOfRange, strconv.FormatUint(v.num, 10))
		}
		return int64(v.num), nil
	case KindDouble:
		f := math.Float64frombits(v.num)
		if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
			return 0, newError(ValueOutOfRange, strconv.FormatFloat(f, 'g', -1, 64))
		}
		return int64(f), nil
	case KindString:
		if v.tag == TagBigInt {
			return parseBigAsInt64(v.str)
		}
		n, err := strconv.ParseInt(v.str, 10, 64)
		if err != nil {
			return 0, newError(NotAnInteger, v.str)
		}
		return n, nil
	default:
		return 0, newError(NotAnInteger, v.kind.String())
	}
}

// AsUint64 extracts an unsigned 64-bit integer.
func (v *Value) AsUint64() (uint64, error) {
	switch v.kind {
	case KindUint64:
		return v.num, nil
	case KindInt64:
		i := int64(v.num)
		if i < 0 {
			return 0, newError(ValueOutOfRange, strconv.FormatInt(i, 10))
		}
		return uint64(i), nil
	case KindDouble:
		f := math.Float64frombits(v.num)
		if f != math.Trunc(f) || f < 0 || f >= math.MaxUint64 {
			return 0, newError(ValueOutOfRange, strconv.FormatFloat(f, 'g', -1, 64))
		}
		return uint64(f), nil
	case KindString:
		if v.tag == TagBigInt {
			return parseBigAsUint64(v.str)
		}
		n, err := strconv.ParseUint(v.str, 10, 64)
		if err != nil {
			return 0, newError(NotAnInteger, v.str)
		}
		return n, nil
	default:
		return 0, newError(NotAnInteger, v.kind.String())
	}
}

// AsFloat64 extracts a double. Integer payloads widen; string payloads
// parse.
func (v *Value) AsFloat64() (float64, error) {
	switch v.kind {
	case KindDouble:
		return math.Float64frombits(v.num), nil
	case KindInt64:
		return float64(int64(v.num)), nil
	case KindUint64:
		return float64(v.num), nil
	case KindString:
		f, err := strconv.ParseFloat(v.str, 64)
		if err != nil {
			return 0, newError(NotDouble, v.str)
		}
		return f, nil
	default:
		return 0, newError(NotDouble, v.kind.String())
	}
}

// AsString extracts a string payload. Only string-kind values are viewable
// as strings; numbers do not stringify here.
func (v *Value) AsString() (string, error) {
	if v.kind != KindString {
		return "", newError(NotString, v.kind.String())
	}
	return v.str, nil
}

// AsBytes extracts a byte-string payload. The returned slice aliases the
// value's storage and must not be modified.
func (v *Value) AsBytes() ([]byte, error) {
	if v.kind != KindBytes {
		return nil, newError(NotByteString, v.kind.String())
	}
	return v.bin, nil
}

// AsBigInt extracts an arbitrary-precision integer from an integer payload
// or a BigInt-tagged string.
func (v *Value) AsBigInt() (*big.Int, error) {
	switch v.kind {
	case KindInt64:
		return big.NewInt(int64(v.num)), nil
	case KindUint64:
		return new(big.Int).SetUint64(v.num), nil
	case KindString:
		n, ok := new(big.Int).SetString(v.str, 10)
		if !ok {
			return nil, newError(NotAnInteger, v.str)
		}
		return n, nil
	default:
		return nil, newError(NotAnInteger, v.kind.String())
	}
}

// Elements returns the array payload.
func (v *Value) Elements() ([]*Value, error) {
	if v.kind != KindArray {
		return nil, newError(NotAnArray, v.kind.String())
	}
	return v.arr, nil
}

// Object returns the object payload.
func (v *Value) Object() (*Object, error) {
	if v.kind != KindObject {
		return nil, newError(NotAnObject, v.kind.String())
	}
	return v.obj, nil
}

// Len returns the element count for arrays, the member count for objects,
// the byte count for strings and byte-strings, and zero otherwise.
func (v *Value) Len() int {
	switch v.kind {
	case KindArray:
		return len(v.arr)
	case KindObject:
		return v.obj.Len()
	case KindString:
		return len(v.str)
	case KindBytes:
		return len(v.bin)
	default:
		return 0
	}
}

// Equal reports deep equality of two values. Numeric payloads compare by
// value across the three numeric kinds; tags must match.
func (v *Value) Equal(w *Value) bool {
	if v == w {
		return true
	}
	if v == nil || w == nil {
		return false
	}
	if v.tag != w.tag || v.ext != w.ext {
		return false
	}
	if v.IsNumber() && w.IsNumber() {
		return numericEqual(v, w)
	}
	if v.kind != w.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.num == w.num
	case KindString:
		return v.str == w.str
	case KindBytes:
		return string(v.bin) == string(w.bin)
	case KindArray:
		if len(v.arr) != len(w.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equal(w.arr[i]) {
				return false
			}
		}
		return true
	case KindObject:
		return v.obj.Equal(w.obj)
	default:
		return false
	}
}

func numericEqual(v, w *Value) bool {
	if v.kind == w.kind {
		return v.num == w.num
	}
	// Mixed signedness or width: compare through the widest common view.
	vi, verr := v.AsInt64()
	wi, werr := w.AsInt64()
	if verr == nil && werr == nil {
		return vi == wi
	}
	vu, verr2 := v.AsUint64()
	wu, werr2 := w.AsUint64()
	if verr2 == nil && werr2 == nil {
		return vu == wu
	}
	vf, _ := v.AsFloat64()
	wf, _ := w.AsFloat64()
	return vf == wf
}

// String renders a short diagnostic form, not a serialization.
func (v *Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBool:
		if v.num != 0 {
			return "true"
		}
		return "false"
	case KindInt64:
		return strconv.FormatInt(int64(v.num), 10)
	case KindUint64:
		return strconv.FormatUint(v.num, 10)
	case KindDouble:
		return strconv.FormatFloat(math.Float64frombits(v.num), 'g', -1, 64)
	case KindString:
		return strconv.Quote(v.str)
	case KindBytes:
		return fmt.Sprintf("b%q", v.bin)
	case KindArray:
		return fmt.Sprintf("array[%d]", len(v.arr))
	case KindObject:
		return fmt.Sprintf("object[%d]", v.obj.Len())
	default:
		return "unknown"
	}
}

func parseBigAsInt64(s string) (int64, error) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return 0, newError(NotAnInteger, s)
	}
	if !n.IsInt64() {
		return 0, newError(ValueOutOfRange, s)
	}
	return n.Int64(), nil
}

func parseBigAsUint64(s string) (uint64, error) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return 0, newError(NotAnInteger, s)
	}
	if !n.IsUint64() {
		return 0, newError(ValueOutOfRange, s)
	}
	return n.Uint64(), nil
}
