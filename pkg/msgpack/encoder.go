package msgpack

import (
	"bytes"
	"fmt"
	"io"
	"math"

	"github.com/kaitai-io/kaitai_struct_go_runtime/kaitai"
	"github.com/twinfer/docbin/pkg/convert"
	"github.com/twinfer/docbin/pkg/docvalue"
)

// Encode serializes a document value to MessagePack bytes.
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
		return fmt.Errorf("msgpack: value nesting exceeds depth limit %d", e.maxDepth)
	}
	switch v.Kind() {
	case docvalue.KindNull:
		return e.w.WriteU1(0xc0)
	case docvalue.KindBool:
		b, _ := v.AsBool()
		if b {
			return e.w.WriteU1(0xc3)
		}
		return e.w.WriteU1(0xc2)
	case docvalue.KindInt64:
		i, _ := v.AsInt64()
		if v.Tag().IsEpoch() {
			return e.writeTimestamp(i, v.Tag())
		}
		return e.writeInt(i)
	case docvalue.KindUint64:
		u, _ := v.AsUint64()
		if v.Tag().IsEpoch() && u <= math.MaxInt64 {
			return e.writeTimestamp(int64(u), v.Tag())
		}
		return e.writeUint(u)
	case docvalue.KindDouble:
		f, _ := v.AsFloat64()
		if err := e.w.WriteU1(0xcb); err != nil {
			return err
		}
		return e.w.WriteF8be(f)
	case docvalue.KindString:
		s, _ := v.AsString()
		return e.writeString(s)
	case docvalue.KindBytes:
		b, _ := v.AsBytes()
		if v.Tag() == docvalue.TagExt {
			return e.writeExt(v.ExtType(), b)
		}
		return e.writeBytes(b)
	case docvalue.KindArray:
		elems, _ := v.Elements()
		if err := e.writeArrayHeader(len(elems)); err != nil {
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
		if err := e.writeMapHeader(obj.Len()); err != nil {
			return err
		}
		for _, m := range obj.Members() {
			if err := e.writeString(m.Key); err != nil {
				return err
			}
			if err := e.writeValue(m.Value, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("msgpack: cannot encode value of kind %s", v.Kind())
}

// writeInt chooses the smallest tag that losslessly represents i.
// Non-negative values use the unsigned family.
func (e *encoder) writeInt(i int64) error {
	if i >= 0 {
		return e.writeUint(uint64(i))
	}
	switch {
	case i >= -32:
		return e.w.WriteS1(int8(i))
	case i >= math.MinInt8:
		if err := e.w.WriteU1(0xd0); err != nil {
			return err
		}
		return e.w.WriteS1(int8(i))
	case i >= math.MinInt16:
		if err := e.w.WriteU1(0xd1); err != nil {
			return err
		}
		return e.w.WriteS2be(int16(i))
	case i >= math.MinInt32:
		if err := e.w.WriteU1(0xd2); err != nil {
			return err
		}
		return e.w.WriteS4be(int32(i))
	default:
		if err := e.w.WriteU1(0xd3); err != nil {
			return err
		}
		return e.w.WriteS8be(i)
	}
}

func (e *encoder) writeUint(u uint64) error {
	switch {
	case u <= 0x7f:
		return e.w.WriteU1(uint8(u))
	case u <= math.MaxUint8:
		if err := e.w.WriteU1(0xcc); err != nil {
			return err
		}
		return e.w.WriteU1(uint8(u))
	case u <= math.MaxUint16:
		if err := e.w.WriteU1(0xcd); err != nil {
			return err
		}
		return e.w.WriteU2be(uint16(u))
	case u <= math.MaxUint32:
		if err := e.w.WriteU1(0xce); err != nil {
			return err
		}
		return e.w.WriteU4be(uint32(u))
	default:
		if err := e.w.WriteU1(0xcf); err != nil {
			return err
		}
		return e.w.WriteU8be(u)
	}
}

func (e *encoder) writeString(s string) error {
	n := len(s)
	switch {
	case n < 32:
		if err := e.w.WriteU1(0xa0 | uint8(n)); err != nil {
			return err
		}
	case n <= math.MaxUint8:
		if err := e.w.WriteU1(0xd9); err != nil {
			return err
		}
		if err := e.w.WriteU1(uint8(n)); err != nil {
			return err
		}
	case n <= math.MaxUint16:
		if err := e.w.WriteU1(0xda); err != nil {
			return err
		}
		if err := e.w.WriteU2be(uint16(n)); err != nil {
			return err
		}
	default:
		if err := e.w.WriteU1(0xdb); err != nil {
			return err
		}
		if err := e.w.WriteU4be(uint32(n)); err != nil {
			return err
		}
	}
	return e.w.WriteBytes([]byte(s))
}

func (e *encoder) writeBytes(b []byte) error {
	n := len(b)
	switch {
	case n <= math.MaxUint8:
		if err := e.w.WriteU1(0xc4); err != nil {
			return err
		}
		if err := e.w.WriteU1(uint8(n)); err != nil {
			return err
		}
	case n <= math.MaxUint16:
		if err := e.w.WriteU1(0xc5); err != nil {
			return err
		}
		if err := e.w.WriteU2be(uint16(n)); err != nil {
			return err
		}
	default:
		if err := e.w.WriteU1(0xc6); err != nil {
			return err
		}
		if err := e.w.WriteU4be(uint32(n)); err != nil {
			return err
		}
	}
	return e.w.WriteBytes(b)
}

func (e *encoder) writeExt(typeCode int8, b []byte) error {
	n := len(b)
	switch n {
	case 1:
		if err := e.w.WriteU1(0xd4); err != nil {
			return err
		}
	case 2:
		if err := e.w.WriteU1(0xd5); err != nil {
			return err
		}
	case 4:
		if err := e.w.WriteU1(0xd6); err != nil {
			return err
		}
	case 8:
		if err := e.w.WriteU1(0xd7); err != nil {
			return err
		}
	case 16:
		if err := e.w.WriteU1(0xd8); err != nil {
			return err
		}
	default:
		switch {
		case n <= math.MaxUint8:
			if err := e.w.WriteU1(0xc7); err != nil {
				return err
			}
			if err := e.w.WriteU1(uint8(n)); err != nil {
				return err
			}
		case n <= math.MaxUint16:
			if err := e.w.WriteU1(0xc8); err != nil {
				return err
			}
			if err := e.w.WriteU2be(uint16(n)); err != nil {
				return err
			}
		default:
			if err := e.w.WriteU1(0xc9); err != nil {
				return err
			}
			if err := e.w.WriteU4be(uint32(n)); err != nil {
				return err
			}
		}
	}
	if err := e.w.WriteS1(typeCode); err != nil {
		return err
	}
	return e.w.WriteBytes(b)
}

// writeTimestamp emits the timestamp extension (type -1) in its smallest
// form: 32-bit seconds, 64-bit packed, or 96-bit.
func (e *encoder) writeTimestamp(v int64, tag docvalue.Tag) error {
	var sec, nsec int64
	switch tag {
	case docvalue.TagEpochSecond:
		sec = v
	case docvalue.TagEpochMilli:
		sec, nsec = v/1000, (v%1000)*int64(1e6)
	case docvalue.TagEpochNano:
		sec, nsec = v/int64(1e9), v%int64(1e9)
	}
	if nsec < 0 {
		sec--
		nsec += 1e9
	}

	if nsec == 0 && sec >= 0 && sec <= math.MaxUint32 {
		if err := e.w.WriteU1(0xd6); err != nil { // fixext4
			return err
		}
		if err := e.w.WriteS1(-1); err != nil {
			return err
		}
		return e.w.WriteU4be(uint32(sec))
	}
	if sec >= 0 && sec < 1<<34 {
		if err := e.w.WriteU1(0xd7); err != nil { // fixext8
			return err
		}
		if err := e.w.WriteS1(-1); err != nil {
			return err
		}
		return e.w.WriteU8be(uint64(nsec)<<34 | uint64(sec))
	}
	if err := e.w.WriteU1(0xc7); err != nil { // ext8, 12 bytes
		return err
	}
	if err := e.w.WriteU1(12); err != nil {
		return err
	}
	if err := e.w.WriteS1(-1); err != nil {
		return err
	}
	if err := e.w.WriteU4be(uint32(nsec)); err != nil {
		return err
	}
	return e.w.WriteS8be(sec)
}

func (e *encoder) writeArrayHeader(n int) error {
	switch {
	case n < 16:
		return e.w.WriteU1(0x90 | uint8(n))
	case n <= math.MaxUint16:
		if err := e.w.WriteU1(0xdc); err != nil {
			return err
		}
		return e.w.WriteU2be(uint16(n))
	default:
		if err := e.w.WriteU1(0xdd); err != nil {
			return err
		}
		return e.w.WriteU4be(uint32(n))
	}
}

func (e *encoder) writeMapHeader(n int) error {
	switch {
	case n < 16:
		return e.w.WriteU1(0x80 | uint8(n))
	case n <= math.MaxUint16:
		if err := e.w.WriteU1(0xde); err != nil {
			return err
		}
		return e.w.WriteU2be(uint16(n))
	default:
		if err := e.w.WriteU1(0xdf); err != nil {
			return err
		}
		return e.w.WriteU4be(uint32(n))
	}
}
