// Package docbin provides a high-level API for decoding, encoding and
// transcoding structured data across the supported interchange formats.
//
// # Overview
//
// This package ties the per-format packages together behind one
// surface. It supports:
//
//   - MessagePack, UBJSON and CBOR binary data
//   - CSV tabular data driven by a mapping configuration
//   - JSON text
//   - Transcoding between any pair of formats
//   - Context support for cancellation and timeouts
//   - Flexible configuration options
//
// # Quick Start
//
// The simplest way to work with serialized data is using the global
// functions:
//
//	v, err := docbin.Decode(data, docbin.FormatMsgpack)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(v.DumpText())
//
// # Transcoding
//
// Convert between formats without touching the document value:
//
//	out, err := docbin.Transcode(data, docbin.FormatMsgpack, docbin.FormatCBOR)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Or inspect any format as JSON
//	jsonData, err := docbin.DecodeToJSON(data, docbin.FormatUBJSON)
//
// # Custom Codec Instance
//
// For more control, create a custom codec with specific options:
//
//	codec := docbin.NewCodec(
//	    docbin.WithMaxDepth(64),
//	    docbin.WithSortedObjects(),
//	)
//
//	v, err := codec.Decode(ctx, data, docbin.FormatUBJSON)
//
// # Configuration Options
//
//   - WithLogger(*slog.Logger): Custom logging
//   - WithMaxDepth(int): Container nesting limit for binary codecs
//   - WithSortedObjects(): Sorted instead of insertion-ordered objects
//   - WithCSVConfig(*csvmap.Config): Tabular mapping configuration
//   - WithDebugMode(bool): Enable debug output
//
// # Typed Access
//
// The per-format packages expose generic Marshal and Unmarshal
// functions that move data between serialized bytes and native Go
// values through the conversion registry in package convert. This
// facade works on the dynamic document value only.
//
// # Thread Safety
//
// The package is thread-safe:
//
//   - Global codec instance uses proper synchronization
//   - The CSV config cache uses read-write mutexes
//   - Multiple goroutines can safely use the same Codec instance
package docbin
