// Package cborx bridges document values to CBOR through the fxamacker
// codec. Semantic tags map onto their registered CBOR tag numbers:
// bignums to tags 2 and 3, decimal fractions to tag 4, timestamps to
// tags 0 and 1, expected byte encodings to tags 21 through 23.
//
// Encoding uses Core Deterministic Encoding, so object member order is
// not preserved across a CBOR round trip; decoded objects are sorted.
package cborx

import (
	"fmt"
	"math"
	"math/big"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/twinfer/docbin/pkg/convert"
	"github.com/twinfer/docbin/pkg/docvalue"
)

// encMode is the CBOR encoder configured with Core Deterministic
// Encoding: sorted map keys, smallest integer encoding, no
// indefinite-length items.
var encMode cbor.EncMode

var decMode cbor.DecMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("cborx: encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("cborx: decoder initialization failed: " + err.Error())
	}
}

// Encode serializes a document value to CBOR bytes.
func Encode(v *docvalue.Value) ([]byte, error) {
	x, err := toEncodable(v)
	if err != nil {
		return nil, err
	}
	return encMode.Marshal(x)
}

// Decode parses one CBOR value from a buffer.
func Decode(data []byte) (*docvalue.Value, error) {
	var x any
	if err := decMode.Unmarshal(data, &x); err != nil {
		return nil, err
	}
	return fromDecoded(x)
}

// MustEncode is the panicking shape of Encode.
func MustEncode(v *docvalue.Value) []byte {
	b, err := Encode(v)
	if err != nil {
		panic(err)
	}
	return b
}

// MustDecode is the panicking shape of Decode.
func MustDecode(data []byte) *docvalue.Value {
	v, err := Decode(data)
	if err != nil {
		panic(err)
	}
	return v
}

// Marshal converts a native value through the conversion registry and
// encodes it.
func Marshal[T any](x T) ([]byte, error) {
	v, err := convert.ToValue(x)
	if err != nil {
		return nil, err
	}
	return Encode(v)
}

// Unmarshal decodes one value and converts it to T through the
// conversion registry.
func Unmarshal[T any](data []byte) (T, error) {
	var zero T
	v, err := Decode(data)
	if err != nil {
		return zero, err
	}
	return convert.As[T](v)
}

// toEncodable lowers a document value to the codec's native
// representation, wrapping tagged payloads in their CBOR tag numbers.
func toEncodable(v *docvalue.Value) (any, error) {
	switch v.Kind() {
	case docvalue.KindNull:
		return nil, nil
	case docvalue.KindBool:
		b, _ := v.AsBool()
		return b, nil
	case docvalue.KindInt64:
		i, _ := v.AsInt64()
		if v.Tag().IsEpoch() {
			return cbor.Tag{Number: 1, Content: epochSecondsContent(i, v.Tag())}, nil
		}
		return i, nil
	case docvalue.KindUint64:
		u, _ := v.AsUint64()
		if v.Tag().IsEpoch() && u <= math.MaxInt64 {
			return cbor.Tag{Number: 1, Content: epochSecondsContent(int64(u), v.Tag())}, nil
		}
		return u, nil
	case docvalue.KindDouble:
		f, _ := v.AsFloat64()
		if v.Tag().IsEpoch() {
			return cbor.Tag{Number: 1, Content: f}, nil
		}
		return f, nil
	case docvalue.KindString:
		s, _ := v.AsString()
		switch v.Tag() {
		case docvalue.TagBigInt:
			n, ok := new(big.Int).SetString(s, 10)
			if !ok {
				return nil, docvalue.NewError(docvalue.NotAnInteger, s)
			}
			return n, nil
		case docvalue.TagBigDec:
			mant, exp, err := parseDecimal(s)
			if err != nil {
				return nil, err
			}
			return cbor.Tag{Number: 4, Content: []any{exp, mant}}, nil
		case docvalue.TagDateTime:
			return cbor.Tag{Number: 0, Content: s}, nil
		case docvalue.TagURI:
			return cbor.Tag{Number: 32, Content: s}, nil
		case docvalue.TagRegex:
			return cbor.Tag{Number: 35, Content: s}, nil
		}
		return s, nil
	case docvalue.KindBytes:
		b, _ := v.AsBytes()
		switch v.Tag() {
		case docvalue.TagBase64URL:
			return cbor.Tag{Number: 21, Content: b}, nil
		case docvalue.TagBase64:
			return cbor.Tag{Number: 22, Content: b}, nil
		case docvalue.TagBase16:
			return cbor.Tag{Number: 23, Content: b}, nil
		case docvalue.TagExt:
			return nil, docvalue.NewError(docvalue.ConversionFailed, "extension payloads have no CBOR representation")
		}
		return b, nil
	case docvalue.KindArray:
		elems, _ := v.Elements()
		out := make([]any, len(elems))
		for i, el := range elems {
			x, err := toEncodable(el)
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
			x, err := toEncodable(m.Value)
			if err != nil {
				return nil, err
			}
			out[m.Key] = x
		}
		return out, nil
	}
	return nil, docvalue.NewError(docvalue.ConversionFailed, v.Kind().String())
}

// epochSecondsContent renders a tagged epoch integer as tag 1 content:
// whole seconds stay integral, sub-second precision becomes a float.
func epochSecondsContent(i int64, tag docvalue.Tag) any {
	switch tag {
	case docvalue.TagEpochMilli:
		if i%1000 == 0 {
			return i / 1000
		}
		return float64(i) / 1e3
	case docvalue.TagEpochNano:
		if i%int64(1e9) == 0 {
			return i / int64(1e9)
		}
		return float64(i) / 1e9
	default:
		return i
	}
}

// fromDecoded raises the codec's native representation back to a
// document value. Tag numbers 0 and 1 may already have been turned into
// time.Time by the codec; both shapes are handled.
func fromDecoded(x any) (*docvalue.Value, error) {
	switch t := x.(type) {
	case nil:
		return docvalue.Null(), nil
	case bool:
		return docvalue.Bool(t), nil
	case uint64:
		return docvalue.Uint(t), nil
	case int64:
		return docvalue.Int(t), nil
	case float64:
		return docvalue.Float(t), nil
	case float32:
		return docvalue.Float(float64(t)), nil
	case string:
		return docvalue.String(t), nil
	case []byte:
		return docvalue.Bytes(t), nil
	case big.Int:
		return docvalue.BigInt(&t), nil
	case *big.Int:
		return docvalue.BigInt(t), nil
	case time.Time:
		if t.Nanosecond() != 0 {
			return docvalue.Int(t.UnixNano()).WithTag(docvalue.TagEpochNano), nil
		}
		return docvalue.Int(t.Unix()).WithTag(docvalue.TagEpochSecond), nil
	case []any:
		elems := make([]*docvalue.Value, len(t))
		for i, el := range t {
			v, err := fromDecoded(el)
			if err != nil {
				return nil, err
			}
			elems[i] = v
		}
		return docvalue.ArrayFromSlice(elems), nil
	case map[any]any:
		obj := docvalue.NewSortedObject()
		for k, el := range t {
			v, err := fromDecoded(el)
			if err != nil {
				return nil, err
			}
			name, ok := k.(string)
			if !ok {
				kv, err := fromDecoded(k)
				if err != nil {
					return nil, err
				}
				name = kv.DumpText()
			}
			obj.Set(name, v)
		}
		return docvalue.ObjectValue(obj), nil
	case map[string]any:
		obj := docvalue.NewSortedObject()
		for k, el := range t {
			v, err := fromDecoded(el)
			if err != nil {
				return nil, err
			}
			obj.Set(k, v)
		}
		return docvalue.ObjectValue(obj), nil
	case cbor.Tag:
		return fromTagged(t)
	}
	return nil, docvalue.NewError(docvalue.ConversionFailed, fmt.Sprintf("%T", x))
}

func fromTagged(t cbor.Tag) (*docvalue.Value, error) {
	switch t.Number {
	case 0:
		if s, ok := t.Content.(string); ok {
			return docvalue.String(s).WithTag(docvalue.TagDateTime), nil
		}
	case 1:
		switch c := t.Content.(type) {
		case int64:
			return docvalue.Int(c).WithTag(docvalue.TagEpochSecond), nil
		case uint64:
			return docvalue.Uint(c).WithTag(docvalue.TagEpochSecond), nil
		case float64:
			return docvalue.Float(c).WithTag(docvalue.TagEpochSecond), nil
		}
	case 4:
		parts, ok := t.Content.([]any)
		if !ok || len(parts) != 2 {
			return nil, docvalue.NewError(docvalue.ConversionFailed, "malformed decimal fraction")
		}
		exp, err := asExponent(parts[0])
		if err != nil {
			return nil, err
		}
		mant, err := asMantissa(parts[1])
		if err != nil {
			return nil, err
		}
		return docvalue.String(formatDecimal(mant, exp)).WithTag(docvalue.TagBigDec), nil
	case 21, 22, 23:
		if b, ok := t.Content.([]byte); ok {
			tag := docvalue.TagBase64URL
			if t.Number == 22 {
				tag = docvalue.TagBase64
			} else if t.Number == 23 {
				tag = docvalue.TagBase16
			}
			return docvalue.Bytes(b).WithTag(tag), nil
		}
	case 32:
		if s, ok := t.Content.(string); ok {
			return docvalue.String(s).WithTag(docvalue.TagURI), nil
		}
	case 35:
		if s, ok := t.Content.(string); ok {
			return docvalue.String(s).WithTag(docvalue.TagRegex), nil
		}
	}
	// Unknown tag numbers are dropped; the content survives.
	return fromDecoded(t.Content)
}

// maxDecimalExponent bounds the zero padding a decimal fraction can
// demand from the formatter; a few wire bytes must not expand into
// megabytes of digits.
const maxDecimalExponent = 4096

func asExponent(x any) (int64, error) {
	var e int64
	switch v := x.(type) {
	case int64:
		e = v
	case uint64:
		if v > math.MaxInt64 {
			return 0, docvalue.NewError(docvalue.ValueOutOfRange, "decimal exponent")
		}
		e = int64(v)
	default:
		return 0, docvalue.NewError(docvalue.ConversionFailed, "decimal exponent")
	}
	if e > maxDecimalExponent || e < -maxDecimalExponent {
		return 0, docvalue.NewError(docvalue.ValueOutOfRange, "decimal exponent")
	}
	return e, nil
}

func asMantissa(x any) (*big.Int, error) {
	switch m := x.(type) {
	case int64:
		return big.NewInt(m), nil
	case uint64:
		return new(big.Int).SetUint64(m), nil
	case big.Int:
		return &m, nil
	case *big.Int:
		return m, nil
	}
	return nil, docvalue.NewError(docvalue.ConversionFailed, "decimal mantissa")
}

// parseDecimal splits decimal text into a mantissa and a base-10
// exponent, the tag 4 representation.
func parseDecimal(s string) (*big.Int, int64, error) {
	text := s
	var exp int64
	if i := strings.IndexAny(text, "eE"); i >= 0 {
		e, ok := new(big.Int).SetString(text[i+1:], 10)
		if !ok || !e.IsInt64() {
			return nil, 0, docvalue.NewError(docvalue.NotDouble, s)
		}
		exp = e.Int64()
		text = text[:i]
	}
	if i := strings.IndexByte(text, '.'); i >= 0 {
		frac := text[i+1:]
		exp -= int64(len(frac))
		text = text[:i] + frac
	}
	mant, ok := new(big.Int).SetString(text, 10)
	if !ok {
		return nil, 0, docvalue.NewError(docvalue.NotDouble, s)
	}
	return mant, exp, nil
}

// formatDecimal renders a mantissa and base-10 exponent as plain decimal
// text, without scientific notation.
func formatDecimal(mant *big.Int, exp int64) string {
	digits := mant.String()
	neg := strings.HasPrefix(digits, "-")
	if neg {
		digits = digits[1:]
	}
	switch {
	case exp >= 0:
		digits += strings.Repeat("0", int(exp))
	case int64(len(digits)) > -exp:
		point := int64(len(digits)) + exp
		digits = digits[:point] + "." + digits[point:]
	default:
		digits = "0." + strings.Repeat("0", int(-exp)-len(digits)) + digits
	}
	if neg {
		digits = "-" + digits
	}
	return digits
}
