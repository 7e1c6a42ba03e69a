// Package press provides a push-based streaming interface over multiple
// compression codecs, plus format auto-detection from magic bytes.
//
// Callers write arbitrary-sized byte buffers into a stream without
// knowing which codec backs it; the stream re-chunks the input, drives
// the codec's incremental state, and forwards the result to a downstream
// sink.
//
// # Features
//
//   - One write/close contract over 9 codecs: gzip, bzip2, xz, lzma,
//     lz4 (frame), lz4_legacy (block container), zstd, brotli, snappy
//   - Automatic format detection from magic bytes
//   - Byte-exact reproduction of the legacy block-chunked LZ4 container
//   - Extension-derived output paths for the file entry points
//   - Bounded memory regardless of stream size
//
// # Quick Start
//
//	import "github.com/go-press/press"
//
//	// Compress a file; writes archive.tar.xz and removes archive.tar.
//	stats, err := press.Compress("xz", "archive.tar", "", nil)
//
//	// Decompress with auto-detection; writes archive.tar.
//	stats, err = press.Decompress("archive.tar.xz", "", nil)
//
//	// Stream into an arbitrary sink.
//	enc, err := press.NewEncoder(press.FormatGzip, sink)
//	enc.Write(data)
//	enc.Close()
//
// # Stream Contract
//
// Encoders and decoders are io.WriteCloser values that own their sink:
// Close flushes any buffered codec state, emits trailers, and closes the
// sink exactly once. Close is idempotent, and empty writes are no-ops.
// Any codec or container error is fatal to the operation; there is no
// retry or partial-result salvage.
package press
