package main

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/redpanda-data/benthos/v4/public/service"

	"github.com/twinfer/docbin/pkg/csvmap"
	"github.com/twinfer/docbin/pkg/docbin"
)

// TranscodeProcessor is a Benthos processor that converts message
// payloads between the interchange formats supported by docbin.
type TranscodeProcessor struct {
	config       TranscodeConfig
	configMap    sync.Map // Cache for parsed CSV mapping configs
	codec        *docbin.Codec
	logger       *service.Logger
	mTranscoded  *service.MetricCounter
	mErrors      *service.MetricCounter
	mCacheHits   *service.MetricCounter
	mCacheMisses *service.MetricCounter
}

// TranscodeConfig contains configuration parameters for the docbin processor.
type TranscodeConfig struct {
	FormatFrom    docbin.Format `json:"format_from" yaml:"format_from"`
	FormatTo      docbin.Format `json:"format_to" yaml:"format_to"`
	CSVConfigPath string        `json:"csv_config_path" yaml:"csv_config_path"`
	SortedObjects bool          `json:"sorted_objects" yaml:"sorted_objects"`
	MaxDepth      int           `json:"max_depth" yaml:"max_depth"`
}

func init() {
	// Register the processor with Benthos
	err := service.RegisterProcessor(
		"docbin",
		transcodeProcessorConfig(),
		func(conf *service.ParsedConfig, mgr *service.Resources) (service.Processor, error) {
			return newTranscodeProcessorFromConfig(conf, mgr)
		},
	)
	if err != nil {
		panic(err)
	}
}

func main() {
	service.RunCLI(context.Background())
}

// transcodeProcessorConfig returns a config spec for a docbin processor.
func transcodeProcessorConfig() *service.ConfigSpec {
	return service.NewConfigSpec().
		Summary("Transcodes message payloads between MessagePack, UBJSON, CBOR, CSV and JSON.").
		Description("This processor decodes the payload from the source format into a dynamic document value and re-encodes it in the target format. CSV payloads are shaped by a mapping configuration file.").
		Field(service.NewStringField("format_from").
			Description("Source payload format: msgpack, ubjson, cbor, csv or json.").
			Example("msgpack")).
		Field(service.NewStringField("format_to").
			Description("Target payload format: msgpack, ubjson, cbor, csv or json.").
			Example("json")).
		Field(service.NewStringField("csv_config_path").
			Description("Path to a YAML CSV mapping configuration. Required when either format is csv.").
			Default("")).
		Field(service.NewBoolField("sorted_objects").
			Description("Whether decoded objects are sorted by member name instead of preserving wire order.").
			Default(false)).
		Field(service.NewIntField("max_depth").
			Description("Container nesting limit for the binary formats.").
			Default(1024)).
		Version("0.1.0")
}

// newTranscodeProcessorFromConfig creates a new TranscodeProcessor from a parsed config.
func newTranscodeProcessorFromConfig(conf *service.ParsedConfig, mgr *service.Resources) (*TranscodeProcessor, error) {
	fromName, err := conf.FieldString("format_from")
	if err != nil {
		return nil, err
	}
	from, err := docbin.ParseFormat(fromName)
	if err != nil {
		return nil, err
	}

	toName, err := conf.FieldString("format_to")
	if err != nil {
		return nil, err
	}
	to, err := docbin.ParseFormat(toName)
	if err != nil {
		return nil, err
	}

	csvConfigPath, err := conf.FieldString("csv_config_path")
	if err != nil {
		return nil, err
	}

	sortedObjects, err := conf.FieldBool("sorted_objects")
	if err != nil {
		return nil, err
	}

	maxDepth, err := conf.FieldInt("max_depth")
	if err != nil {
		return nil, err
	}

	config := TranscodeConfig{
		FormatFrom:    from,
		FormatTo:      to,
		CSVConfigPath: csvConfigPath,
		SortedObjects: sortedObjects,
		MaxDepth:      maxDepth,
	}

	if from == docbin.FormatCSV || to == docbin.FormatCSV {
		if csvConfigPath == "" {
			return nil, fmt.Errorf("csv_config_path is required when transcoding csv")
		}
		if _, err := os.Stat(csvConfigPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("csv config file not found at path: %s", csvConfigPath)
		}
	}

	codecOpts := []docbin.Option{docbin.WithMaxDepth(maxDepth)}
	if sortedObjects {
		codecOpts = append(codecOpts, docbin.WithSortedObjects())
	}

	logger := mgr.Logger()
	metrics := mgr.Metrics()

	return &TranscodeProcessor{
		config:       config,
		codec:        docbin.NewCodec(codecOpts...),
		logger:       logger,
		mTranscoded:  metrics.NewCounter("docbin_transcoded_messages"),
		mErrors:      metrics.NewCounter("docbin_processing_errors"),
		mCacheHits:   metrics.NewCounter("docbin_csv_config_cache_hits"),
		mCacheMisses: metrics.NewCounter("docbin_csv_config_cache_misses"),
	}, nil
}

// Process transcodes one message payload.
func (p *TranscodeProcessor) Process(ctx context.Context, msg *service.Message) (service.MessageBatch, error) {
	p.logger.Debugf("Transcoding payload from %s to %s", p.config.FormatFrom, p.config.FormatTo)

	data, err := msg.AsBytes()
	if err != nil {
		p.logger.Errorf("Failed to get payload from message: %v", err)
		p.mErrors.Incr(1)
		msg.SetError(fmt.Errorf("failed to get payload from message: %w", err))
		return service.MessageBatch{msg}, nil
	}

	if len(data) == 0 {
		p.logger.Warn("Empty payload provided")
		p.mErrors.Incr(1)
		msg.SetError(fmt.Errorf("empty payload provided"))
		return service.MessageBatch{msg}, nil
	}

	opts, err := p.transcodeOptions()
	if err != nil {
		p.logger.Errorf("Failed to load CSV mapping config: %v", err)
		p.mErrors.Incr(1)
		msg.SetError(fmt.Errorf("failed to load CSV mapping config: %w", err))
		return service.MessageBatch{msg}, nil
	}

	out, err := p.codec.Transcode(ctx, data, p.config.FormatFrom, p.config.FormatTo, opts...)
	if err != nil {
		p.logger.Errorf("Failed to transcode %d bytes: %v", len(data), err)
		p.mErrors.Incr(1)
		msg.SetError(fmt.Errorf("failed to transcode %d bytes: %w", len(data), err))
		return service.MessageBatch{msg}, nil
	}

	p.logger.Debugf("Successfully transcoded %d bytes to %d bytes", len(data), len(out))
	p.mTranscoded.Incr(1)

	newMsg := service.NewMessage(out)

	// Copy metadata from original message
	msg.MetaWalk(func(key, value string) error {
		newMsg.MetaSet(key, value)
		return nil
	})

	return service.MessageBatch{newMsg}, nil
}

// transcodeOptions resolves per-message codec options, loading the CSV
// mapping config through the cache when one is configured.
func (p *TranscodeProcessor) transcodeOptions() ([]docbin.Option, error) {
	if p.config.CSVConfigPath == "" {
		return nil, nil
	}
	cfg, err := p.loadCSVConfig(p.config.CSVConfigPath)
	if err != nil {
		return nil, err
	}
	return []docbin.Option{docbin.WithCSVConfig(cfg)}, nil
}

// loadCSVConfig loads and parses a CSV mapping config file.
func (p *TranscodeProcessor) loadCSVConfig(path string) (*csvmap.Config, error) {
	// Check config cache first
	if cached, ok := p.configMap.Load(path); ok {
		p.logger.Tracef("CSV config cache hit for path: %s", path)
		p.mCacheHits.Incr(1)
		return cached.(*csvmap.Config), nil
	}

	p.logger.Debugf("Loading CSV config from path: %s", path)
	p.mCacheMisses.Incr(1)

	cfg, err := csvmap.LoadConfig(path)
	if err != nil {
		return nil, err
	}

	// Store in cache
	p.configMap.Store(path, cfg)
	p.logger.Debugf("Loaded and cached CSV config from: %s", path)

	return cfg, nil
}

// Close the processor resources
func (p *TranscodeProcessor) Close(ctx context.Context) error {
	p.logger.Debug("Closing docbin processor and clearing CSV config cache")
	p.configMap = sync.Map{} // Clear the cache
	return nil
}
