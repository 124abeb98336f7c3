package cborx

import (
	"math/big"
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
		docvalue.Uint(0),
		docvalue.Uint(200),
		docvalue.Int(-70000),
		docvalue.Float(25.17),
		docvalue.String("Kafka on the Shore"),
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

func TestDeterministicEncoding(t *testing.T) {
	v := obj("z", docvalue.Int(1), "a", docvalue.Int(2))
	b1, err := Encode(v)
	require.NoError(t, err)
	// Same members, different insertion order, identical bytes.
	b2, err := Encode(obj("a", docvalue.Int(2), "z", docvalue.Int(1)))
	require.NoError(t, err)
	assert.Equal(t, b1, b2)

	back, err := Decode(b1)
	require.NoError(t, err)
	assert.True(t, v.Equal(back))
}

func TestBignumTags(t *testing.T) {
	// Wider than 64 bits, so the bignum tag is kept on the wire.
	n, _ := new(big.Int).SetString("123456789012345678901234567890", 10)
	v := docvalue.BigInt(n)
	b, err := Encode(v)
	require.NoError(t, err)
	back, err := Decode(b)
	require.NoError(t, err)
	assert.True(t, v.Equal(back))

	neg := docvalue.BigInt(new(big.Int).Neg(n))
	back, err = Decode(MustEncode(neg))
	require.NoError(t, err)
	assert.True(t, neg.Equal(back))
}

func TestDecimalFractionTag(t *testing.T) {
	tests := []string{"25.17", "-0.001", "300", "0.5"}
	for _, s := range tests {
		v := docvalue.String(s).WithTag(docvalue.TagBigDec)
		b, err := Encode(v)
		require.NoError(t, err)
		back, err := Decode(b)
		require.NoError(t, err)
		assert.Equal(t, docvalue.TagBigDec, back.Tag(), "input %s", s)
		got, err := back.AsString()
		require.NoError(t, err)
		assert.Equal(t, s, got, "input %s", s)
	}
}

func TestDecimalFractionExponentBounded(t *testing.T) {
	// Tag 4 over [100000000, 3]: eight wire bytes that would otherwise
	// expand into a hundred-megabyte digit string.
	payload := []byte{0xc4, 0x82, 0x1a, 0x05, 0xf5, 0xe1, 0x00, 0x03}
	_, err := Decode(payload)
	assert.Equal(t, docvalue.ValueOutOfRange, docvalue.KindOf(err))

	// Same shape with a huge negative exponent: [-100000000, 3].
	payload = []byte{0xc4, 0x82, 0x3a, 0x05, 0xf5, 0xe0, 0xff, 0x03}
	_, err = Decode(payload)
	assert.Equal(t, docvalue.ValueOutOfRange, docvalue.KindOf(err))

	// A boundary exponent still decodes.
	v := docvalue.String("1e100").WithTag(docvalue.TagBigDec)
	back, err := Decode(MustEncode(v))
	require.NoError(t, err)
	assert.Equal(t, docvalue.TagBigDec, back.Tag())
}

func TestEpochTimestampTag(t *testing.T) {
	v := docvalue.Int(1700000000).WithTag(docvalue.TagEpochSecond)
	b, err := Encode(v)
	require.NoError(t, err)
	back, err := Decode(b)
	require.NoError(t, err)
	assert.True(t, back.Tag().IsEpoch())
	sec, err := back.AsInt64()
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000), sec)
}

func TestExpectedEncodingTags(t *testing.T) {
	payload := []byte{0x80, 0x10}
	for _, tag := range []docvalue.Tag{docvalue.TagBase16, docvalue.TagBase64, docvalue.TagBase64URL} {
		v := docvalue.Bytes(payload).WithTag(tag)
		back, err := Decode(MustEncode(v))
		require.NoError(t, err)
		assert.True(t, v.Equal(back), "tag %s", tag)
	}
}

func TestStringTags(t *testing.T) {
	for _, tag := range []docvalue.Tag{docvalue.TagDateTime, docvalue.TagURI, docvalue.TagRegex} {
		v := docvalue.String("2023-11-14T22:13:20Z").WithTag(tag)
		back, err := Decode(MustEncode(v))
		require.NoError(t, err)
		assert.Equal(t, tag, back.Tag())
	}
}

func TestNestedStructureRoundTrip(t *testing.T) {
	v := obj(
		"author", docvalue.String("Haruki Murakami"),
		"xs", docvalue.Array(docvalue.Int(1), docvalue.Float(2.5), docvalue.Null()),
		"inner", obj("ok", docvalue.Bool(true)),
	)
	back, err := Decode(MustEncode(v))
	require.NoError(t, err)
	assert.True(t, v.Equal(back))
}

func TestExtensionPayloadRejected(t *testing.T) {
	_, err := Encode(docvalue.Ext(7, []byte{1}))
	assert.Equal(t, docvalue.ConversionFailed, docvalue.KindOf(err))
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

func TestMalformedInputFails(t *testing.T) {
	_, err := Decode([]byte{0xff})
	assert.Error(t, err)
	_, err = Decode([]byte{0x82, 0x01}) // array of 2 with 1 element
	assert.Error(t, err)
}
