package docbin

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twinfer/docbin/pkg/csvmap"
	"github.com/twinfer/docbin/pkg/docvalue"
)

func sample() *docvalue.Value {
	o := docvalue.NewObject()
	o.Set("author", docvalue.String("Haruki Murakami"))
	o.Set("title", docvalue.String("Kafka on the Shore"))
	o.Set("price", docvalue.Float(25.17))
	o.Set("tags", docvalue.Array(docvalue.String("novel"), docvalue.String("jp")))
	return docvalue.ObjectValue(o)
}

func TestRoundTripEveryBinaryFormat(t *testing.T) {
	v := sample()
	for _, format := range []Format{FormatMsgpack, FormatUBJSON, FormatCBOR, FormatJSON} {
		data, err := Encode(v, format)
		require.NoError(t, err, "encode %s", format)
		back, err := Decode(data, format)
		require.NoError(t, err, "decode %s", format)
		assert.True(t, v.Equal(back), "round trip %s", format)
	}
}

func TestTranscode(t *testing.T) {
	v := sample()
	mp, err := Encode(v, FormatMsgpack)
	require.NoError(t, err)

	ub, err := Transcode(mp, FormatMsgpack, FormatUBJSON)
	require.NoError(t, err)
	back, err := Decode(ub, FormatUBJSON)
	require.NoError(t, err)
	assert.True(t, v.Equal(back))

	jsonData, err := DecodeToJSON(mp, FormatMsgpack)
	require.NoError(t, err)
	assert.Contains(t, string(jsonData), "Kafka on the Shore")

	mp2, err := EncodeFromJSON(jsonData, FormatMsgpack)
	require.NoError(t, err)
	back, err = Decode(mp2, FormatMsgpack)
	require.NoError(t, err)
	assert.True(t, v.Equal(back))
}

func TestCSVFormatUsesMappingConfig(t *testing.T) {
	cfg := &csvmap.Config{Header: true}
	rows := docvalue.Array(sampleRow("a", 1), sampleRow("b", 2))

	codec := NewCodec(WithCSVConfig(cfg))
	data, err := codec.Encode(context.Background(), rows, FormatCSV)
	require.NoError(t, err)
	back, err := codec.Decode(context.Background(), data, FormatCSV)
	require.NoError(t, err)
	assert.True(t, rows.Equal(back))
}

func sampleRow(name string, n int64) *docvalue.Value {
	o := docvalue.NewObject()
	o.Set("name", docvalue.String(name))
	o.Set("n", docvalue.Int(n))
	return docvalue.ObjectValue(o)
}

func TestOptionsReachTheCodecs(t *testing.T) {
	v := docvalue.Int(1)
	for i := 0; i < 40; i++ {
		v = docvalue.Array(v)
	}
	data, err := Encode(v, FormatMsgpack)
	require.NoError(t, err)

	codec := NewCodec(WithMaxDepth(10))
	_, err = codec.Decode(context.Background(), data, FormatMsgpack)
	assert.Error(t, err)

	// Per-call options override the instance configuration.
	_, err = codec.Decode(context.Background(), data, FormatMsgpack, WithMaxDepth(100))
	assert.NoError(t, err)
}

func TestContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	codec := NewCodec()
	_, err := codec.Decode(ctx, []byte{0xc0}, FormatMsgpack)
	assert.ErrorIs(t, err, context.Canceled)
	_, err = codec.Encode(ctx, docvalue.Null(), FormatMsgpack)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestUnknownFormat(t *testing.T) {
	_, err := Decode([]byte{}, Format("avro"))
	assert.Error(t, err)
	_, err = Encode(docvalue.Null(), Format("avro"))
	assert.Error(t, err)

	_, err = ParseFormat("avro")
	assert.Error(t, err)
	f, err := ParseFormat("ubjson")
	require.NoError(t, err)
	assert.Equal(t, FormatUBJSON, f)
}

func TestLoadCSVConfigCaching(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mapping.yaml")
	require.NoError(t, os.WriteFile(path, []byte("header: true\n"), 0o600))

	codec := NewCodec()
	cfg1, err := codec.LoadCSVConfig(path)
	require.NoError(t, err)
	cfg2, err := codec.LoadCSVConfig(path)
	require.NoError(t, err)
	assert.Same(t, cfg1, cfg2)

	codec.ClearCache()
	cfg3, err := codec.LoadCSVConfig(path)
	require.NoError(t, err)
	assert.NotSame(t, cfg1, cfg3)
}
