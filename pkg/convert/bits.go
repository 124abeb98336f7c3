package convert

import (
	"encoding/hex"
	"reflect"

	"github.com/twinfer/docbin/pkg/docvalue"
)

// Bits is a fixed-length bit set packed MSB-first within each byte: bit 0
// is the high bit of the first byte.
type Bits struct {
	n    int
	data []byte
}

// NewBits returns a bit set of n bits, all clear.
func NewBits(n int) Bits {
	return Bits{n: n, data: make([]byte, (n+7)/8)}
}

// BitsFromBytes wraps raw packed bytes as an 8*len(b)-bit set.
func BitsFromBytes(b []byte) Bits {
	data := make([]byte, len(b))
	copy(data, b)
	return Bits{n: len(b) * 8, data: data}
}

// Len returns the bit count.
func (b Bits) Len() int { return b.n }

// Test reports whether bit i is set.
func (b Bits) Test(i int) bool {
	if i < 0 || i >= b.n {
		return false
	}
	return b.data[i/8]&(0x80>>(i%8)) != 0
}

// Set sets or clears bit i.
func (b Bits) Set(i int, on bool) {
	if i < 0 || i >= b.n {
		return
	}
	mask := byte(0x80 >> (i % 8))
	if on {
		b.data[i/8] |= mask
	} else {
		b.data[i/8] &^= mask
	}
}

// Bytes returns the packed representation.
func (b Bits) Bytes() []byte {
	out := make([]byte, len(b.data))
	copy(out, b.data)
	return out
}

// Equal reports equality of length and contents.
func (b Bits) Equal(c Bits) bool {
	return b.n == c.n && string(b.data) == string(c.data)
}

// bitsEntry converts Bits. Decode accepts a byte-string or a hex-encoded
// string; encode always emits the packed bytes tagged base16, so text
// formats render them as hex.
type bitsEntry struct{}

func (bitsEntry) Type() reflect.Type { return reflect.TypeFor[Bits]() }

func (bitsEntry) Is(v *docvalue.Value) bool {
	return v.Kind() == docvalue.KindBytes || v.Kind() == docvalue.KindString
}

func (bitsEntry) TryAs(v *docvalue.Value) (any, error) {
	switch v.Kind() {
	case docvalue.KindBytes:
		b, _ := v.AsBytes()
		return BitsFromBytes(b), nil
	case docvalue.KindString:
		s, _ := v.AsString()
		raw, err := hex.DecodeString(s)
		if err != nil {
			return nil, docvalue.NewError(docvalue.ConversionFailed, "bitset string is not base16")
		}
		return BitsFromBytes(raw), nil
	default:
		return nil, docvalue.NewError(docvalue.NotByteString, v.Kind().String())
	}
}

func (bitsEntry) ToValue(x any) (*docvalue.Value, error) {
	b := x.(Bits)
	return docvalue.Bytes(b.Bytes()).WithTag(docvalue.TagBase16), nil
}
