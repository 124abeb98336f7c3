package docvalue

import (
	"math"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindAndTag(t *testing.T) {
	v := Int(42)
	assert.Equal(t, KindInt64, v.Kind())
	assert.Equal(t, TagNone, v.Tag())

	ts := Int(1700000000).WithTag(TagEpochSecond)
	assert.Equal(t, KindInt64, ts.Kind())
	assert.Equal(t, TagEpochSecond, ts.Tag())
	assert.True(t, ts.Tag().IsEpoch())

	// WithTag copies; the original is untouched.
	assert.Equal(t, TagNone, v.WithTag(TagBase16).Tag())
	assert.Equal(t, TagNone, v.Tag())
}

func TestNumericExtraction(t *testing.T) {
	tests := []struct {
		name    string
		value   *Value
		wantI64 int64
		wantErr ErrorKind
	}{
		{"int", Int(-7), -7, 0},
		{"uint in range", Uint(7), 7, 0},
		{"uint out of range", Uint(math.MaxUint64), 0, ValueOutOfRange},
		{"integral double", Float(12.0), 12, 0},
		{"fractional double", Float(12.5), 0, ValueOutOfRange},
		{"string digits", String("123"), 123, 0},
		{"string junk", String("abc"), 0, NotAnInteger},
		{"bool", Bool(true), 0, NotAnInteger},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.value.AsInt64()
			if tt.wantErr != 0 {
				require.Error(t, err)
				assert.Equal(t, tt.wantErr, KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantI64, got)
		})
	}
}

func TestUnsignedExtraction(t *testing.T) {
	u, err := Int(5).AsUint64()
	require.NoError(t, err)
	assert.Equal(t, uint64(5), u)

	_, err = Int(-5).AsUint64()
	assert.Equal(t, ValueOutOfRange, KindOf(err))

	u, err = Uint(math.MaxUint64).AsUint64()
	require.NoError(t, err)
	assert.Equal(t, uint64(math.MaxUint64), u)
}

func TestBigIntRoundTrip(t *testing.T) {
	n, ok := new(big.Int).SetString("123456789012345678901234567890", 10)
	require.True(t, ok)

	v := BigInt(n)
	assert.Equal(t, KindString, v.Kind())
	assert.Equal(t, TagBigInt, v.Tag())

	back, err := v.AsBigInt()
	require.NoError(t, err)
	assert.Zero(t, n.Cmp(back))

	// Too wide for 64 bits.
	_, err = v.AsInt64()
	assert.Equal(t, ValueOutOfRange, KindOf(err))
}

func TestObjectPolicies(t *testing.T) {
	ins := NewObject()
	ins.Set("b", Int(2))
	ins.Set("a", Int(1))
	ins.Set("c", Int(3))
	keys := func(o *Object) []string {
		var out []string
		for _, m := range o.Members() {
			out = append(out, m.Key)
		}
		return out
	}
	assert.Equal(t, []string{"b", "a", "c"}, keys(ins))

	srt := NewSortedObject()
	srt.Set("b", Int(2))
	srt.Set("a", Int(1))
	srt.Set("c", Int(3))
	assert.Equal(t, []string{"a", "b", "c"}, keys(srt))

	// Last write wins under both policies.
	ins.Set("a", Int(9))
	srt.Set("a", Int(9))
	iv, _ := ins.Get("a")
	sv, _ := srt.Get("a")
	assert.True(t, iv.Equal(Int(9)))
	assert.True(t, sv.Equal(Int(9)))
	assert.Equal(t, 3, ins.Len())
	assert.Equal(t, 3, srt.Len())

	// Policy is not part of equality.
	assert.True(t, ins.Equal(srt))
}

func TestEqualAcrossNumericKinds(t *testing.T) {
	assert.True(t, Int(5).Equal(Uint(5)))
	assert.True(t, Uint(5).Equal(Int(5)))
	assert.False(t, Int(-1).Equal(Uint(math.MaxUint64)))
	assert.False(t, Int(5).Equal(Int(5).WithTag(TagEpochSecond)))
	assert.True(t, Float(2.5).Equal(Float(2.5)))
}

func TestEqualNested(t *testing.T) {
	obj := NewObject()
	obj.Set("xs", Array(Int(1), Int(2)))
	obj.Set("s", String("hi"))
	a := ObjectValue(obj)

	obj2 := NewObject()
	obj2.Set("xs", Array(Int(1), Int(2)))
	obj2.Set("s", String("hi"))
	b := ObjectValue(obj2)

	assert.True(t, a.Equal(b))

	obj2.Set("s", String("bye"))
	assert.False(t, a.Equal(b))
}

func TestFromJSONPreservesOrderAndPrecision(t *testing.T) {
	v, err := FromJSON([]byte(`{"z":1,"a":[true,null,"x"],"big":123456789012345678901234567890,"f":1.5}`))
	require.NoError(t, err)

	obj, err := v.Object()
	require.NoError(t, err)
	var keys []string
	for _, m := range obj.Members() {
		keys = append(keys, m.Key)
	}
	assert.Equal(t, []string{"z", "a", "big", "f"}, keys)

	bigV, ok := obj.Get("big")
	require.True(t, ok)
	assert.Equal(t, TagBigInt, bigV.Tag())

	out, err := v.MarshalJSON()
	require.NoError(t, err)
	back, err := FromJSON(out)
	require.NoError(t, err)
	assert.True(t, v.Equal(back))
}

func TestFromJSONTrailingGarbage(t *testing.T) {
	_, err := FromJSON([]byte(`{"a":1} extra`))
	assert.Error(t, err)
}

func TestBytesJSONEncodings(t *testing.T) {
	hex, err := Bytes([]byte{0xde, 0xad}).WithTag(TagBase16).MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"dead"`, string(hex))

	b64, err := Bytes([]byte{1, 2, 3}).MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"AQID"`, string(b64))
}

func TestConvErrorText(t *testing.T) {
	err := NewError(MissingRequiredMember, "Book: price")
	assert.Equal(t, "missing required member: Book: price", err.Error())
	assert.Equal(t, MissingRequiredMember, KindOf(err))
}
