// Package docbin provides a high-level API for decoding, encoding and
// transcoding structured data across the supported interchange formats.
//
// Basic usage:
//
//	// Decode MessagePack bytes to a document value
//	v, err := docbin.Decode(data, docbin.FormatMsgpack)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Transcode MessagePack to UBJSON
//	out, err := docbin.Transcode(data, docbin.FormatMsgpack, docbin.FormatUBJSON)
//	if err != nil {
//	    log.Fatal(err)
//	}
package docbin

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/twinfer/docbin/pkg/cborx"
	"github.com/twinfer/docbin/pkg/csvmap"
	"github.com/twinfer/docbin/pkg/docvalue"
	"github.com/twinfer/docbin/pkg/msgpack"
	"github.com/twinfer/docbin/pkg/ubjson"
)

// Format names a supported serialization.
type Format string

const (
	FormatMsgpack Format = "msgpack"
	FormatUBJSON  Format = "ubjson"
	FormatCBOR    Format = "cbor"
	FormatCSV     Format = "csv"
	FormatJSON    Format = "json"
)

// ParseFormat resolves a format name from configuration text.
func ParseFormat(name string) (Format, error) {
	switch Format(name) {
	case FormatMsgpack, FormatUBJSON, FormatCBOR, FormatCSV, FormatJSON:
		return Format(name), nil
	}
	return "", fmt.Errorf("unknown format %q", name)
}

// Codec wraps the per-format packages with shared configuration and
// CSV mapping config caching.
type Codec struct {
	csvConfigCache map[string]*csvmap.Config
	cacheMutex     sync.RWMutex
	logger         *slog.Logger
	options        options
}

// options holds configuration for the codec
type options struct {
	logger        *slog.Logger
	maxDepth      int
	sortedObjects bool
	csvConfig     *csvmap.Config
	debugMode     bool
}

// Option is a function that configures codec options
type Option func(*options)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMaxDepth overrides the container nesting limit for the binary
// codecs (defaults to 1024)
func WithMaxDepth(n int) Option {
	return func(o *options) {
		o.maxDepth = n
	}
}

// WithSortedObjects makes decoded objects sorted instead of
// insertion-ordered
func WithSortedObjects() Option {
	return func(o *options) {
		o.sortedObjects = true
	}
}

// WithCSVConfig sets the tabular mapping configuration used by the CSV
// format
func WithCSVConfig(cfg *csvmap.Config) Option {
	return func(o *options) {
		o.csvConfig = cfg
	}
}

// WithDebugMode enables debug logging
func WithDebugMode(enabled bool) Option {
	return func(o *options) {
		o.debugMode = enabled
	}
}

// defaultOptions returns the default configuration
func defaultOptions() options {
	return options{
		logger:   slog.Default(),
		maxDepth: 1024,
	}
}

// Global codec instance for convenience functions
var globalCodec *Codec
var globalCodecOnce sync.Once

// getGlobalCodec returns a singleton codec instance
func getGlobalCodec() *Codec {
	globalCodecOnce.Do(func() {
		globalCodec = NewCodec()
	})
	return globalCodec
}

// NewCodec creates a new codec instance with the given options
func NewCodec(opts ...Option) *Codec {
	options := defaultOptions()
	for _, opt := range opts {
		opt(&options)
	}

	if options.debugMode {
		options.logger = options.logger.With("debug", true)
	}

	return &Codec{
		csvConfigCache: make(map[string]*csvmap.Config),
		logger:         options.logger,
		options:        options,
	}
}

// Decode parses serialized data in the named format to a document value
func Decode(data []byte, format Format, opts ...Option) (*docvalue.Value, error) {
	return getGlobalCodec().Decode(context.Background(), data, format, opts...)
}

// DecodeWithContext parses serialized data with a context
func DecodeWithContext(ctx context.Context, data []byte, format Format, opts ...Option) (*docvalue.Value, error) {
	return getGlobalCodec().Decode(ctx, data, format, opts...)
}

// Encode serializes a document value in the named format
func Encode(v *docvalue.Value, format Format, opts ...Option) ([]byte, error) {
	return getGlobalCodec().Encode(context.Background(), v, format, opts...)
}

// EncodeWithContext serializes a document value with a context
func EncodeWithContext(ctx context.Context, v *docvalue.Value, format Format, opts ...Option) ([]byte, error) {
	return getGlobalCodec().Encode(ctx, v, format, opts...)
}

// Transcode converts serialized data from one format to another
func Transcode(data []byte, from, to Format, opts ...Option) ([]byte, error) {
	return getGlobalCodec().Transcode(context.Background(), data, from, to, opts...)
}

// TranscodeWithContext converts serialized data with a context
func TranscodeWithContext(ctx context.Context, data []byte, from, to Format, opts ...Option) ([]byte, error) {
	return getGlobalCodec().Transcode(ctx, data, from, to, opts...)
}

// DecodeToJSON decodes data in the named format and renders it as JSON
func DecodeToJSON(data []byte, format Format, opts ...Option) ([]byte, error) {
	return getGlobalCodec().DecodeToJSON(context.Background(), data, format, opts...)
}

// EncodeFromJSON parses JSON text and serializes it in the named format
func EncodeFromJSON(jsonData []byte, format Format, opts ...Option) ([]byte, error) {
	return getGlobalCodec().EncodeFromJSON(context.Background(), jsonData, format, opts...)
}

// Decode parses serialized data in the named format to a document value
func (c *Codec) Decode(ctx context.Context, data []byte, format Format, opts ...Option) (*docvalue.Value, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	options := c.options
	for _, opt := range opts {
		opt(&options)
	}
	c.logger.Debug("decoding", "format", format, "bytes", len(data))

	switch format {
	case FormatMsgpack:
		return msgpack.Decode(data, msgpackOptions(options)...)
	case FormatUBJSON:
		return ubjson.Decode(data, ubjsonOptions(options)...)
	case FormatCBOR:
		return cborx.Decode(data)
	case FormatCSV:
		return csvmap.Decode(data, options.csvConfig)
	case FormatJSON:
		return docvalue.FromJSON(data)
	}
	return nil, fmt.Errorf("unknown format %q", format)
}

// Encode serializes a document value in the named format
func (c *Codec) Encode(ctx context.Context, v *docvalue.Value, format Format, opts ...Option) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	options := c.options
	for _, opt := range opts {
		opt(&options)
	}
	c.logger.Debug("encoding", "format", format)

	switch format {
	case FormatMsgpack:
		return msgpack.Encode(v, msgpackOptions(options)...)
	case FormatUBJSON:
		return ubjson.Encode(v, ubjsonOptions(options)...)
	case FormatCBOR:
		return cborx.Encode(v)
	case FormatCSV:
		return csvmap.Encode(v, options.csvConfig)
	case FormatJSON:
		return v.MarshalJSON()
	}
	return nil, fmt.Errorf("unknown format %q", format)
}

// Transcode converts serialized data from one format to another through
// the document value
func (c *Codec) Transcode(ctx context.Context, data []byte, from, to Format, opts ...Option) ([]byte, error) {
	v, err := c.Decode(ctx, data, from, opts...)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", from, err)
	}
	out, err := c.Encode(ctx, v, to, opts...)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", to, err)
	}
	return out, nil
}

// DecodeToJSON decodes data in the named format and renders it as JSON
func (c *Codec) DecodeToJSON(ctx context.Context, data []byte, format Format, opts ...Option) ([]byte, error) {
	return c.Transcode(ctx, data, format, FormatJSON, opts...)
}

// EncodeFromJSON parses JSON text and serializes it in the named format
func (c *Codec) EncodeFromJSON(ctx context.Context, jsonData []byte, format Format, opts ...Option) ([]byte, error) {
	return c.Transcode(ctx, jsonData, FormatJSON, format, opts...)
}

// LoadCSVConfig loads a tabular mapping configuration from a YAML file
// with caching support
func (c *Codec) LoadCSVConfig(path string) (*csvmap.Config, error) {
	c.cacheMutex.RLock()
	cached, exists := c.csvConfigCache[path]
	c.cacheMutex.RUnlock()
	if exists {
		return cached, nil
	}

	cfg, err := csvmap.LoadConfig(path)
	if err != nil {
		return nil, err
	}

	c.cacheMutex.Lock()
	c.csvConfigCache[path] = cfg
	c.cacheMutex.Unlock()
	return cfg, nil
}

// ClearCache clears the CSV config cache
func (c *Codec) ClearCache() {
	c.cacheMutex.Lock()
	defer c.cacheMutex.Unlock()
	c.csvConfigCache = make(map[string]*csvmap.Config)
}

func msgpackOptions(o options) []msgpack.Option {
	opts := []msgpack.Option{msgpack.WithMaxDepth(o.maxDepth)}
	if o.sortedObjects {
		opts = append(opts, msgpack.WithSortedObjects())
	}
	return opts
}

func ubjsonOptions(o options) []ubjson.Option {
	opts := []ubjson.Option{ubjson.WithMaxDepth(o.maxDepth)}
	if o.sortedObjects {
		opts = append(opts, ubjson.WithSortedObjects())
	}
	return opts
}
