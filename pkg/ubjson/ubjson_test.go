package ubjson

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twinfer/docbin/pkg/docvalue"
)

func obj(pairs ...any) *docvalue.Value {
	o := docvalue.NewObject()
	for i := 0; i < len(pairs); i += 2 {
		o.Set(pairs[i].(string), pairs[i+1].(*docvalue.Value))
	}
	return docvalue.ObjectValue(o)
}

func TestScalarRoundTrips(t *testing.T) {
	values := []*docvalue.Value{
		docvalue.Null(),
		docvalue.Bool(true),
		docvalue.Bool(false),
		docvalue.Int(0),
		docvalue.Int(127),
		docvalue.Int(-128),
		docvalue.Int(255),
		docvalue.Int(-129),
		docvalue.Int(math.MaxInt16),
		docvalue.Int(math.MinInt32),
		docvalue.Int(math.MaxInt64),
		docvalue.Int(math.MinInt64),
		docvalue.Float(0),
		docvalue.Float(25.17),
		docvalue.Float(-1e300),
		docvalue.String(""),
		docvalue.String("Kafka on the Shore"),
		docvalue.String(string(make([]byte, 300))),
		docvalue.Bytes([]byte{}),
		docvalue.Bytes([]byte{0xde, 0xad, 0xbe, 0xef}),
	}
	for _, v := range values {
		b, err := Encode(v)
		require.NoError(t, err, "encode %s", v)
		back, err := Decode(b)
		require.NoError(t, err, "decode %s", v)
		assert.True(t, v.Equal(back), "round trip %s -> %s", v, back)
	}
}

func TestSmallestWidthSelection(t *testing.T) {
	tests := []struct {
		v    *docvalue.Value
		want []byte
	}{
		{docvalue.Int(5), []byte{'i', 0x05}},
		{docvalue.Int(-1), []byte{'i', 0xff}},
		{docvalue.Int(200), []byte{'U', 200}},
		{docvalue.Int(-200), []byte{'I', 0xff, 0x38}},
		{docvalue.Int(70000), []byte{'l', 0x00, 0x01, 0x11, 0x70}},
		{docvalue.Uint(5), []byte{'i', 0x05}},
		{docvalue.Float(1.5), []byte{'D', 0x3f, 0xf8, 0, 0, 0, 0, 0, 0}},
	}
	for _, tt := range tests {
		b, err := Encode(tt.v)
		require.NoError(t, err)
		assert.Equal(t, tt.want, b, "value %s", tt.v)
	}
}

func TestStringEncoding(t *testing.T) {
	b, err := Encode(docvalue.String("hi"))
	require.NoError(t, err)
	assert.Equal(t, []byte{'S', 'i', 2, 'h', 'i'}, b)
}

func TestCountedContainerEncoding(t *testing.T) {
	b, err := Encode(docvalue.Array(docvalue.Int(1), docvalue.Int(2)))
	require.NoError(t, err)
	assert.Equal(t, []byte{'[', '#', 'i', 2, 'i', 1, 'i', 2}, b)

	b, err = Encode(obj("a", docvalue.Int(1)))
	require.NoError(t, err)
	assert.Equal(t, []byte{'{', '#', 'i', 1, 'i', 1, 'a', 'i', 1}, b)
}

func TestOpenEndedContainersDecode(t *testing.T) {
	// Open-ended array with a no-op in the middle.
	data := []byte{'[', 'i', 1, 'N', 'T', ']'}
	v, err := Decode(data)
	require.NoError(t, err)
	assert.True(t, v.Equal(docvalue.Array(docvalue.Int(1), docvalue.Bool(true))))

	// Open-ended object; names are bare length-prefixed text.
	data = []byte{'{', 'i', 1, 'a', 'i', 7, 'N', 'i', 1, 'b', 'Z', '}'}
	v, err = Decode(data)
	require.NoError(t, err)
	assert.True(t, v.Equal(obj("a", docvalue.Int(7), "b", docvalue.Null())))

	// Empty open-ended containers.
	v, err = Decode([]byte{'[', ']'})
	require.NoError(t, err)
	assert.Equal(t, 0, v.Len())
	v, err = Decode([]byte{'{', '}'})
	require.NoError(t, err)
	assert.Equal(t, 0, v.Len())
}

func TestCountedAndOpenEndedAgree(t *testing.T) {
	counted := []byte{'[', '#', 'i', 3, 'i', 1, 'i', 2, 'i', 3}
	open := []byte{'[', 'i', 1, 'i', 2, 'i', 3, ']'}
	a, err := Decode(counted)
	require.NoError(t, err)
	b, err := Decode(open)
	require.NoError(t, err)
	assert.True(t, a.Equal(b))
}

func TestByteStringsAsTypedArrays(t *testing.T) {
	v := docvalue.Bytes([]byte{1, 2, 3})
	b, err := Encode(v)
	require.NoError(t, err)
	assert.Equal(t, []byte{'[', '$', 'U', '#', 'i', 3, 1, 2, 3}, b)
	back, err := Decode(b)
	require.NoError(t, err)
	assert.True(t, v.Equal(back))
}

func TestTypedArrayOfInts(t *testing.T) {
	// Strongly typed int8 array: one marker, then bare payloads.
	data := []byte{'[', '$', 'i', '#', 'i', 3, 0xff, 1, 2}
	v, err := Decode(data)
	require.NoError(t, err)
	assert.True(t, v.Equal(docvalue.Array(docvalue.Int(-1), docvalue.Int(1), docvalue.Int(2))))

	// A type marker without a count has no framing.
	_, err = Decode([]byte{'[', '$', 'i', 'i', 1, ']'})
	var de *DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, InvalidTag, de.Kind)
}

func TestTypedObjectDecode(t *testing.T) {
	data := []byte{'{', '$', 'i', '#', 'i', 2, 'i', 1, 'x', 5, 'i', 1, 'y', 6}
	v, err := Decode(data)
	require.NoError(t, err)
	assert.True(t, v.Equal(obj("x", docvalue.Int(5), "y", docvalue.Int(6))))
}

func TestHighPrecisionNumbers(t *testing.T) {
	// Unsigned values beyond the widest signed marker go out as
	// high-precision text and come back big-integer tagged.
	b, err := Encode(docvalue.Uint(math.MaxUint64))
	require.NoError(t, err)
	assert.Equal(t, byte('H'), b[0])
	back, err := Decode(b)
	require.NoError(t, err)
	assert.Equal(t, docvalue.TagBigInt, back.Tag())
	u, err := back.AsUint64()
	require.NoError(t, err)
	assert.Equal(t, uint64(math.MaxUint64), u)

	// Big-decimal payloads keep their textual form.
	dec := docvalue.String("3.141592653589793238462643383279").WithTag(docvalue.TagBigDec)
	b, err = Encode(dec)
	require.NoError(t, err)
	back, err = Decode(b)
	require.NoError(t, err)
	assert.True(t, dec.Equal(back))

	// Big-integer payloads round trip with their tag.
	bi := docvalue.String("-123456789012345678901234567890").WithTag(docvalue.TagBigInt)
	back, err = Decode(MustEncode(bi))
	require.NoError(t, err)
	assert.True(t, bi.Equal(back))
}

func TestCharDecodesToString(t *testing.T) {
	v, err := Decode([]byte{'C', 'q'})
	require.NoError(t, err)
	s, err := v.AsString()
	require.NoError(t, err)
	assert.Equal(t, "q", s)
}

func TestFloat32Decodes(t *testing.T) {
	v, err := Decode([]byte{'d', 0x3f, 0xc0, 0x00, 0x00}) // 1.5f
	require.NoError(t, err)
	f, err := v.AsFloat64()
	require.NoError(t, err)
	assert.Equal(t, 1.5, f)
}

func TestObjectOrderPreserved(t *testing.T) {
	v := obj("z", docvalue.Int(1), "a", docvalue.Int(2), "m", docvalue.Int(3))
	b, err := Encode(v)
	require.NoError(t, err)
	back, err := Decode(b)
	require.NoError(t, err)

	o, err := back.Object()
	require.NoError(t, err)
	var keys []string
	for _, m := range o.Members() {
		keys = append(keys, m.Key)
	}
	assert.Equal(t, []string{"z", "a", "m"}, keys)

	sortedBack, err := Decode(b, WithSortedObjects())
	require.NoError(t, err)
	so, _ := sortedBack.Object()
	keys = keys[:0]
	for _, m := range so.Members() {
		keys = append(keys, m.Key)
	}
	assert.Equal(t, []string{"a", "m", "z"}, keys)
	assert.True(t, back.Equal(sortedBack))
}

func TestTruncationSafety(t *testing.T) {
	v := obj(
		"author", docvalue.String("Haruki Murakami"),
		"xs", docvalue.Array(docvalue.Int(1), docvalue.Int(-70000), docvalue.Float(2.5)),
		"bin", docvalue.Bytes([]byte{1, 2, 3, 4, 5}),
		"big", docvalue.String("99999999999999999999").WithTag(docvalue.TagBigInt),
	)
	full, err := Encode(v)
	require.NoError(t, err)

	// Every strict prefix must fail cleanly, never panic, never succeed.
	for n := 0; n < len(full); n++ {
		_, err := Decode(full[:n])
		require.Error(t, err, "prefix length %d", n)
		var de *DecodeError
		require.ErrorAs(t, err, &de, "prefix length %d", n)
	}

	back, err := Decode(full)
	require.NoError(t, err)
	assert.True(t, v.Equal(back))
}

func TestHostileLengthPrefix(t *testing.T) {
	// A string claiming 2 billion bytes against a 3-byte remainder.
	data := []byte{'S', 'l', 0x7f, 0xff, 0xff, 0xff, 'a', 'b', 'c'}
	_, err := Decode(data)
	var de *DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, LengthExceedsInput, de.Kind)

	// An impossible element count.
	data = []byte{'[', '#', 'l', 0x7f, 0xff, 0xff, 0xff, 'i', 1}
	_, err = Decode(data)
	require.ErrorAs(t, err, &de)
	assert.Equal(t, LengthExceedsInput, de.Kind)
}

func TestNegativeLengthRejected(t *testing.T) {
	_, err := Decode([]byte{'S', 'i', 0xff})
	var de *DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, InvalidLength, de.Kind)
}

func TestInvalidMarkers(t *testing.T) {
	var de *DecodeError
	_, err := Decode([]byte{'Q'})
	require.ErrorAs(t, err, &de)
	assert.Equal(t, InvalidTag, de.Kind)

	// A string length marked with a non-integer marker.
	_, err = Decode([]byte{'S', 'D', 0, 0, 0, 0, 0, 0, 0, 0})
	require.ErrorAs(t, err, &de)
	assert.Equal(t, InvalidTag, de.Kind)
}

func TestTrailingBytesRejected(t *testing.T) {
	b, err := Encode(docvalue.Int(1))
	require.NoError(t, err)
	_, err = Decode(append(b, 'Z'))
	assert.Error(t, err)
}

func TestDepthLimit(t *testing.T) {
	v := docvalue.Int(1)
	for i := 0; i < 40; i++ {
		v = docvalue.Array(v)
	}
	b, err := Encode(v)
	require.NoError(t, err)

	_, err = Decode(b, WithMaxDepth(10))
	var de *DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, DepthExceeded, de.Kind)

	back, err := Decode(b)
	require.NoError(t, err)
	assert.True(t, v.Equal(back))
}

func TestMarshalUnmarshalThroughRegistry(t *testing.T) {
	type track struct {
		Title   string `json:"title"`
		Seconds int    `json:"seconds"`
	}
	in := track{Title: "Norwegian Wood", Seconds: 125}
	b, err := Marshal(in)
	require.NoError(t, err)
	out, err := Unmarshal[track](b)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestMustShapesPanicOnError(t *testing.T) {
	assert.Panics(t, func() { MustDecode([]byte{'Q'}) })
	assert.NotPanics(t, func() { MustDecode(MustEncode(docvalue.Int(1))) })
}
