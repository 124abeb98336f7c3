package convert

import (
	"encoding/base64"
	"encoding/hex"
	"math"
	"math/big"
	"reflect"
	"strconv"

	"github.com/twinfer/docbin/pkg/docvalue"
	"golang.org/x/text/encoding/unicode"
)

// registerBuiltins populates a registry with the entries that are not
// derivable structurally: arbitrary-precision integers, UTF-16 strings,
// bitsets, durations and timestamps.
func registerBuiltins(r *Registry) {
	r.Register(bigIntEntry{})
	r.Register(utf16Entry{})
	r.Register(bitsEntry{})
	r.Register(durationEntry{})
	r.Register(timeEntry{})
}

// asSigned extracts a signed integer that must fit in the given bit width.
func asSigned(v *docvalue.Value, bits int) (int64, error) {
	i, err := v.AsInt64()
	if err != nil {
		return 0, err
	}
	if bits < 64 {
		limit := int64(1) << (bits - 1)
		if i < -limit || i >= limit {
			return 0, docvalue.NewError(docvalue.ValueOutOfRange, strconv.FormatInt(i, 10))
		}
	}
	return i, nil
}

// asUnsigned extracts an unsigned integer that must fit in the given bit
// width.
func asUnsigned(v *docvalue.Value, bits int) (uint64, error) {
	u, err := v.AsUint64()
	if err != nil {
		return 0, err
	}
	if bits < 64 && u >= uint64(1)<<bits {
		return 0, docvalue.NewError(docvalue.ValueOutOfRange, strconv.FormatUint(u, 10))
	}
	return u, nil
}

// asFloat extracts a float; 32-bit targets reject values beyond the
// float32 range rather than narrowing silently.
func asFloat(v *docvalue.Value, bits int) (float64, error) {
	f, err := v.AsFloat64()
	if err != nil {
		return 0, err
	}
	if bits == 32 && !math.IsInf(f, 0) && math.Abs(f) > math.MaxFloat32 {
		return 0, docvalue.NewError(docvalue.ValueOutOfRange, strconv.FormatFloat(f, 'g', -1, 64))
	}
	return f, nil
}

// bytesFromValue accepts the three byte-source forms: a byte-string, an
// encoded string (base16/base64url by tag, base64 otherwise), and an
// array of byte-sized integers.
func bytesFromValue(v *docvalue.Value) ([]byte, error) {
	switch v.Kind() {
	case docvalue.KindBytes:
		b, _ := v.AsBytes()
		out := make([]byte, len(b))
		copy(out, b)
		return out, nil
	case docvalue.KindString:
		s, _ := v.AsString()
		switch v.Tag() {
		case docvalue.TagBase16:
			b, err := hex.DecodeString(s)
			if err != nil {
				return nil, docvalue.NewError(docvalue.ConversionFailed, "invalid base16 string")
			}
			return b, nil
		case docvalue.TagBase64URL:
			b, err := base64.RawURLEncoding.DecodeString(s)
			if err != nil {
				return nil, docvalue.NewError(docvalue.ConversionFailed, "invalid base64url string")
			}
			return b, nil
		default:
			b, err := base64.StdEncoding.DecodeString(s)
			if err != nil {
				return nil, docvalue.NewError(docvalue.ConversionFailed, "invalid base64 string")
			}
			return b, nil
		}
	case docvalue.KindArray:
		elems, _ := v.Elements()
		out := make([]byte, len(elems))
		for i, e := range elems {
			u, err := asUnsigned(e, 8)
			if err != nil {
				return nil, wrapIndex(err, i)
			}
			out[i] = byte(u)
		}
		return out, nil
	default:
		return nil, docvalue.NewError(docvalue.NotByteString, v.Kind().String())
	}
}

// bigIntEntry converts *big.Int. The canonical wire form is the decimal
// text tagged bigint; round-trips go through that text, not through any
// original radix.
type bigIntEntry struct{}

func (bigIntEntry) Type() reflect.Type { return reflect.TypeFor[*big.Int]() }

func (bigIntEntry) Is(v *docvalue.Value) bool {
	return v.IsNumber() || (v.Kind() == docvalue.KindString && v.Tag() == docvalue.TagBigInt)
}

func (bigIntEntry) TryAs(v *docvalue.Value) (any, error) {
	n, err := v.AsBigInt()
	if err != nil {
		return nil, err
	}
	return n, nil
}

func (bigIntEntry) ToValue(x any) (*docvalue.Value, error) {
	n := x.(*big.Int)
	if n.IsInt64() {
		return docvalue.Int(n.Int64()), nil
	}
	if n.IsUint64() {
		return docvalue.Uint(n.Uint64()), nil
	}
	return docvalue.BigInt(n), nil
}

// utf16Entry converts []uint16 code-unit strings, transcoding through
// UTF-8. This is the mismatched-character-width string path.
type utf16Entry struct{}

var utf16Codec = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

func (utf16Entry) Type() reflect.Type { return reflect.TypeFor[[]uint16]() }

func (utf16Entry) Is(v *docvalue.Value) bool {
	return v.Kind() == docvalue.KindString
}

func (utf16Entry) TryAs(v *docvalue.Value) (any, error) {
	s, err := v.AsString()
	if err != nil {
		return nil, err
	}
	raw, err := utf16Codec.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, docvalue.NewError(docvalue.ConversionFailed, "string is not valid UTF-8")
	}
	units := make([]uint16, len(raw)/2)
	for i := range units {
		units[i] = uint16(raw[2*i]) | uint16(raw[2*i+1])<<8
	}
	return units, nil
}

func (utf16Entry) ToValue(x any) (*docvalue.Value, error) {
	units := x.([]uint16)
	raw := make([]byte, len(units)*2)
	for i, u := range units {
		raw[2*i] = byte(u)
		raw[2*i+1] = byte(u >> 8)
	}
	decoded, err := utf16Codec.NewDecoder().Bytes(raw)
	if err != nil {
		return nil, docvalue.NewError(docvalue.ConversionFailed, "invalid UTF-16 sequence")
	}
	return docvalue.String(string(decoded)), nil
}
