package ubjson

import (
	"bytes"
	"fmt"
	"io"
	"math"

	"github.com/kaitai-io/kaitai_struct_go_runtime/kaitai"
	"github.com/twinfer/docbin/pkg/convert"
	"github.com/twinfer/docbin/pkg/docvalue"
)

// Encode serializes a document value to UBJSON bytes. Containers are
// emitted count-optimized; byte strings become strongly typed uint8
// arrays.
func Encode(v *docvalue.Value, opts ...Option) ([]byte, error) {
	var buf bytes.Buffer
	if err := EncodeTo(&buf, v, opts...); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeTo serializes a document value to a stream.
func EncodeTo(w io.Writer, v *docvalue.Value, opts ...Option) error {
	o := applyOptions(opts)
	e := &encoder{w: kaitai.NewWriter(w), maxDepth: o.maxDepth}
	return e.writeValue(v, 0)
}

// MustEncode is the panicking shape of Encode.
func MustEncode(v *docvalue.Value, opts ...Option) []byte {
	b, err := Encode(v, opts...)
	if err != nil {
		panic(err)
	}
	return b
}

// Marshal converts a native value through the conversion registry and
// encodes it.
func Marshal[T any](x T, opts ...Option) ([]byte, error) {
	v, err := convert.ToValue(x)
	if err != nil {
		return nil, err
	}
	return Encode(v, opts...)
}

type encoder struct {
	w        *kaitai.Writer
	maxDepth int
}

func (e *encoder) writeValue(v *docvalue.Value, depth int) error {
	if depth > e.maxDepth {
		return fmt.Errorf("ubjson: value nesting exceeds depth limit %d", e.maxDepth)
	}
	switch v.Kind() {
	case docvalue.KindNull:
		return e.w.WriteU1(markerNull)
	case docvalue.KindBool:
		b, _ := v.AsBool()
		if b {
			return e.w.WriteU1(markerTrue)
		}
		return e.w.WriteU1(markerFalse)
	case docvalue.KindInt64:
		i, _ := v.AsInt64()
		return e.writeInt(i)
	case docvalue.KindUint64:
		u, _ := v.AsUint64()
		if u > math.MaxInt64 {
			// Beyond the widest signed marker: high-precision number.
			return e.writeBigNumber(fmt.Sprintf("%d", u))
		}
		return e.writeInt(int64(u))
	case docvalue.KindDouble:
		f, _ := v.AsFloat64()
		if err := e.w.WriteU1(markerFloat64); err != nil {
			return err
		}
		return e.w.WriteF8be(f)
	case docvalue.KindString:
		s, _ := v.AsString()
		if v.Tag() == docvalue.TagBigInt || v.Tag() == docvalue.TagBigDec {
			return e.writeBigNumber(s)
		}
		if err := e.w.WriteU1(markerString); err != nil {
			return err
		}
		return e.writeTextPayload(s)
	case docvalue.KindBytes:
		b, _ := v.AsBytes()
		return e.writeByteArray(b)
	case docvalue.KindArray:
		elems, _ := v.Elements()
		if err := e.w.WriteU1(markerArray); err != nil {
			return err
		}
		if err := e.writeCount(len(elems)); err != nil {
			return err
		}
		for _, el := range elems {
			if err := e.writeValue(el, depth+1); err != nil {
				return err
			}
		}
		return nil
	case docvalue.KindObject:
		obj, _ := v.Object()
		if err := e.w.WriteU1(markerObject); err != nil {
			return err
		}
		if err := e.writeCount(obj.Len()); err != nil {
			return err
		}
		for _, m := range obj.Members() {
			if err := e.writeTextPayload(m.Key); err != nil {
				return err
			}
			if err := e.writeValue(m.Value, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("ubjson: cannot encode value of kind %s", v.Kind())
}

// writeInt chooses the smallest integer marker that holds i. The uint8
// marker serves the 128..255 gap between int8 and int16.
func (e *encoder) writeInt(i int64) error {
	switch {
	case i >= math.MinInt8 && i <= math.MaxInt8:
		if err := e.w.WriteU1(markerInt8); err != nil {
			return err
		}
		return e.w.WriteS1(int8(i))
	case i >= 0 && i <= math.MaxUint8:
		if err := e.w.WriteU1(markerUint8); err != nil {
			return err
		}
		return e.w.WriteU1(uint8(i))
	case i >= math.MinInt16 && i <= math.MaxInt16:
		if err := e.w.WriteU1(markerInt16); err != nil {
			return err
		}
		return e.w.WriteS2be(int16(i))
	case i >= math.MinInt32 && i <= math.MaxInt32:
		if err := e.w.WriteU1(markerInt32); err != nil {
			return err
		}
		return e.w.WriteS4be(int32(i))
	default:
		if err := e.w.WriteU1(markerInt64); err != nil {
			return err
		}
		return e.w.WriteS8be(i)
	}
}

// writeTextPayload writes a length-prefixed UTF-8 string without a
// leading S marker, the form used for object member names and the tail
// of S and H values.
func (e *encoder) writeTextPayload(s string) error {
	if err := e.writeInt(int64(len(s))); err != nil {
		return err
	}
	return e.w.WriteBytes([]byte(s))
}

func (e *encoder) writeBigNumber(s string) error {
	if err := e.w.WriteU1(markerHighPre); err != nil {
		return err
	}
	return e.writeTextPayload(s)
}

// writeByteArray emits a strongly typed uint8 array, the format's only
// binary representation.
func (e *encoder) writeByteArray(b []byte) error {
	if err := e.w.WriteU1(markerArray); err != nil {
		return err
	}
	if err := e.w.WriteU1(markerType); err != nil {
		return err
	}
	if err := e.w.WriteU1(markerUint8); err != nil {
		return err
	}
	if err := e.writeCount(len(b)); err != nil {
		return err
	}
	return e.w.WriteBytes(b)
}

func (e *encoder) writeCount(n int) error {
	if err := e.w.WriteU1(markerCount); err != nil {
		return err
	}
	return e.writeInt(int64(n))
}
