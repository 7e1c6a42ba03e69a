package press

import (
	"bytes"
	"io"
	"strings"

	"github.com/go-faster/errors"
)

// Format identifies a compression format supported by the registry.
type Format string

const (
	FormatGzip      Format = "gzip"
	FormatBzip2     Format = "bzip2"
	FormatXZ        Format = "xz"
	FormatLZMA      Format = "lzma"
	FormatLZ4       Format = "lz4"
	FormatLZ4Legacy Format = "lz4_legacy"
	FormatZstd      Format = "zstd"
	FormatBrotli    Format = "brotli"
	FormatSnappy    Format = "snappy"

	// FormatUnknown is returned by Detect when no magic signature matches.
	FormatUnknown Format = ""
)

// codec describes one registry entry: how to recognize the format on the
// wire, how it shows up in file names, and how to construct the push
// streams for both directions.
type codec struct {
	format  Format
	ext     string
	magic   []byte // nil when the format has no reliable signature
	encoder func(sink io.WriteCloser) (io.WriteCloser, error)
	decoder func(sink io.WriteCloser) (io.WriteCloser, error)
}

// codecs is ordered by detection priority. The weak 3-byte lzma-alone
// signature goes last so it cannot shadow a stronger match.
var codecs = []codec{
	{FormatGzip, ".gz", []byte{0x1f, 0x8b}, newGzipEncoder, newGzipDecoder},
	{FormatXZ, ".xz", []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}, newXZEncoder, newXZDecoder},
	{FormatBzip2, ".bz2", []byte("BZh"), newBzip2Encoder, newBzip2Decoder},
	{FormatZstd, ".zst", []byte{0x28, 0xb5, 0x2f, 0xfd}, newZstdEncoder, newZstdDecoder},
	{FormatLZ4, ".lz4", []byte{0x04, 0x22, 0x4d, 0x18}, newLZ4FrameEncoder, newLZ4FrameDecoder},
	{FormatLZ4Legacy, ".lz4", []byte{0x02, 0x21, 0x4c, 0x18}, newLZ4LegacyEncoder, newLZ4LegacyDecoder},
	{FormatSnappy, ".sz", []byte{0xff, 0x06, 0x00, 0x00, 0x73, 0x4e, 0x61, 0x50, 0x70, 0x59}, newSnappyEncoder, newSnappyDecoder},
	{FormatBrotli, ".br", nil, newBrotliEncoder, newBrotliDecoder},
	{FormatLZMA, ".lzma", []byte{0x5d, 0x00, 0x00}, newLZMAEncoder, newLZMADecoder},
}

// Method name aliases accepted by FormatByName.
var nameAliases = map[string]Format{
	"gz":         FormatGzip,
	"bz2":        FormatBzip2,
	"zst":        FormatZstd,
	"lz4-legacy": FormatLZ4Legacy,
	"br":         FormatBrotli,
}

// Detect inspects the leading bytes of buf and returns the matching
// format, or FormatUnknown if no known magic signature is present.
func Detect(buf []byte) Format {
	for i := range codecs {
		c := &codecs[i]
		if c.magic == nil {
			continue
		}
		if bytes.HasPrefix(buf, c.magic) {
			return c.format
		}
	}
	return FormatUnknown
}

// FormatByName resolves a user-supplied method name to a format.
func FormatByName(name string) (Format, bool) {
	name = strings.ToLower(name)
	if f, ok := nameAliases[name]; ok {
		return f, true
	}
	for i := range codecs {
		if string(codecs[i].format) == name {
			return codecs[i].format, true
		}
	}
	return FormatUnknown, false
}

// Extension returns the canonical file extension for a format,
// including the leading dot.
func Extension(f Format) string {
	if c, ok := lookup(f); ok {
		return c.ext
	}
	return ""
}

// StripExtension removes the format's canonical extension from name.
// It reports false when the name does not end in exactly that extension
// or nothing would remain after stripping.
func StripExtension(name string, f Format) (string, bool) {
	ext := Extension(f)
	if ext == "" || !strings.HasSuffix(name, ext) || len(name) == len(ext) {
		return name, false
	}
	return name[:len(name)-len(ext)], true
}

func lookup(f Format) (*codec, bool) {
	for i := range codecs {
		if codecs[i].format == f {
			return &codecs[i], true
		}
	}
	return nil, false
}

// NewEncoder constructs a push stream that compresses everything written
// to it into sink. The stream owns the sink and closes it on Close.
func NewEncoder(f Format, sink io.WriteCloser) (io.WriteCloser, error) {
	c, ok := lookup(f)
	if !ok {
		return nil, errors.Wrapf(ErrUnknownMethod, "%q", f)
	}
	return c.encoder(sink)
}

// NewDecoder constructs a push stream that decompresses everything
// written to it into sink. The stream owns the sink and closes it on
// Close.
func NewDecoder(f Format, sink io.WriteCloser) (io.WriteCloser, error) {
	c, ok := lookup(f)
	if !ok {
		return nil, errors.Wrapf(ErrUnknownMethod, "%q", f)
	}
	return c.decoder(sink)
}
