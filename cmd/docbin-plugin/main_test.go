package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/redpanda-data/benthos/v4/public/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twinfer/docbin/pkg/docvalue"
	"github.com/twinfer/docbin/pkg/msgpack"
)

func writeTempCSVConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mapping.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newProcessor(t *testing.T, confYAML string) *TranscodeProcessor {
	t.Helper()
	pConf, err := transcodeProcessorConfig().ParseYAML(confYAML, nil)
	require.NoError(t, err)
	processor, err := newTranscodeProcessorFromConfig(pConf, service.MockResources())
	require.NoError(t, err)
	return processor
}

func TestProcessTranscodesMsgpackToJSON(t *testing.T) {
	processor := newProcessor(t, "format_from: msgpack\nformat_to: json")

	obj := docvalue.NewObject()
	obj.Set("title", docvalue.String("Kafka on the Shore"))
	obj.Set("price", docvalue.Float(25.17))
	payload := msgpack.MustEncode(docvalue.ObjectValue(obj))

	inputMsg := service.NewMessage(payload)
	inputMsg.MetaSet("source", "shelf-1")
	batch, err := processor.Process(context.Background(), inputMsg)
	require.NoError(t, err)
	require.Len(t, batch, 1)

	out, err := batch[0].AsBytes()
	require.NoError(t, err)
	assert.Contains(t, string(out), "Kafka on the Shore")

	meta, ok := batch[0].MetaGet("source")
	assert.True(t, ok)
	assert.Equal(t, "shelf-1", meta)
}

func TestProcessCSVWithMappingConfig(t *testing.T) {
	cfgPath := writeTempCSVConfig(t, "header: true\n")
	processor := newProcessor(t, fmt.Sprintf("format_from: csv\nformat_to: json\ncsv_config_path: %s", cfgPath))

	inputMsg := service.NewMessage([]byte("title,price\nNorwegian Wood,14.5\n"))
	batch, err := processor.Process(context.Background(), inputMsg)
	require.NoError(t, err)
	require.Len(t, batch, 1)

	out, err := batch[0].AsBytes()
	require.NoError(t, err)
	assert.Contains(t, string(out), "Norwegian Wood")

	// Second message hits the config cache; same result.
	batch, err = processor.Process(context.Background(), service.NewMessage([]byte("title,price\nKafka on the Shore,25.17\n")))
	require.NoError(t, err)
	require.Len(t, batch, 1)
}

func TestConfigValidation(t *testing.T) {
	conf := transcodeProcessorConfig()

	pConf, err := conf.ParseYAML("format_from: avro\nformat_to: json", nil)
	require.NoError(t, err)
	_, err = newTranscodeProcessorFromConfig(pConf, service.MockResources())
	assert.Error(t, err)

	// CSV without a mapping config is rejected at construction.
	pConf, err = conf.ParseYAML("format_from: csv\nformat_to: json", nil)
	require.NoError(t, err)
	_, err = newTranscodeProcessorFromConfig(pConf, service.MockResources())
	assert.Error(t, err)

	pConf, err = conf.ParseYAML("format_from: csv\nformat_to: json\ncsv_config_path: /does/not/exist.yaml", nil)
	require.NoError(t, err)
	_, err = newTranscodeProcessorFromConfig(pConf, service.MockResources())
	assert.Error(t, err)
}

func TestProcessErrorsAreAttachedToTheMessage(t *testing.T) {
	processor := newProcessor(t, "format_from: msgpack\nformat_to: json")

	// Empty payload.
	batch, err := processor.Process(context.Background(), service.NewMessage(nil))
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Error(t, batch[0].GetError())

	// Malformed payload.
	batch, err = processor.Process(context.Background(), service.NewMessage([]byte{0xc1}))
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Error(t, batch[0].GetError())
}

func TestTranscodeToDepthLimit(t *testing.T) {
	processor := newProcessor(t, "format_from: msgpack\nformat_to: ubjson\nmax_depth: 4")

	v := docvalue.Int(1)
	for i := 0; i < 10; i++ {
		v = docvalue.Array(v)
	}
	batch, err := processor.Process(context.Background(), service.NewMessage(msgpack.MustEncode(v)))
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Error(t, batch[0].GetError())
}
