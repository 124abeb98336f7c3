package convert

import (
	"math"
	"math/big"
	"reflect"
	"time"

	"github.com/twinfer/docbin/pkg/docvalue"
)

var (
	bigNanosPerSec   = big.NewInt(int64(time.Second))
	bigNanosPerMilli = big.NewInt(int64(time.Millisecond))
)

// epochNanos extracts a timestamp value as whole nanoseconds. The value
// must carry an epoch tag; numeric and string payloads are both accepted,
// the string path running through big.Int so nanosecond counts beyond 53
// significant bits survive. Unit conversion truncates toward zero.
func epochNanos(v *docvalue.Value) (*big.Int, error) {
	var scale *big.Int
	switch v.Tag() {
	case docvalue.TagEpochSecond:
		scale = bigNanosPerSec
	case docvalue.TagEpochMilli:
		scale = bigNanosPerMilli
	case docvalue.TagEpochNano:
		scale = big.NewInt(1)
	default:
		return nil, docvalue.NewError(docvalue.NotEpoch, v.Tag().String())
	}

	switch v.Kind() {
	case docvalue.KindInt64, docvalue.KindUint64, docvalue.KindString:
		n, err := v.AsBigInt()
		if err != nil {
			return nil, err
		}
		return n.Mul(n, scale), nil
	case docvalue.KindDouble:
		f, _ := v.AsFloat64()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, docvalue.NewError(docvalue.ConversionFailed, "non-finite epoch value")
		}
		// Scale in float space first, then truncate toward zero.
		bf := new(big.Float).SetFloat64(f)
		bf.Mul(bf, new(big.Float).SetInt(scale))
		n, _ := bf.Int(nil)
		return n, nil
	default:
		return nil, docvalue.NewError(docvalue.NotEpoch, v.Kind().String())
	}
}

// durationEntry converts time.Duration. Encode always tags at the native
// resolution, nanoseconds.
type durationEntry struct{}

func (durationEntry) Type() reflect.Type { return reflect.TypeFor[time.Duration]() }

func (durationEntry) Is(v *docvalue.Value) bool {
	return v.Tag().IsEpoch() && (v.IsNumber() || v.Kind() == docvalue.KindString)
}

func (durationEntry) TryAs(v *docvalue.Value) (any, error) {
	n, err := epochNanos(v)
	if err != nil {
		return nil, err
	}
	if !n.IsInt64() {
		return nil, docvalue.NewError(docvalue.ValueOutOfRange, n.String())
	}
	return time.Duration(n.Int64()), nil
}

func (durationEntry) ToValue(x any) (*docvalue.Value, error) {
	d := x.(time.Duration)
	return docvalue.Int(int64(d)).WithTag(docvalue.TagEpochNano), nil
}

// timeEntry converts time.Time through epoch-tagged payloads.
type timeEntry struct{}

func (timeEntry) Type() reflect.Type { return reflect.TypeFor[time.Time]() }

func (timeEntry) Is(v *docvalue.Value) bool {
	return v.Tag().IsEpoch() && (v.IsNumber() || v.Kind() == docvalue.KindString)
}

func (timeEntry) TryAs(v *docvalue.Value) (any, error) {
	n, err := epochNanos(v)
	if err != nil {
		return nil, err
	}
	sec, nsec := new(big.Int).QuoRem(n, bigNanosPerSec, new(big.Int))
	if !sec.IsInt64() {
		return nil, docvalue.NewError(docvalue.ValueOutOfRange, n.String())
	}
	return time.Unix(sec.Int64(), nsec.Int64()).UTC(), nil
}

func (timeEntry) ToValue(x any) (*docvalue.Value, error) {
	t := x.(time.Time)
	return docvalue.Int(t.UnixNano()).WithTag(docvalue.TagEpochNano), nil
}
