package press

import (
	"io"
	"os"

	"github.com/go-faster/errors"
	"github.com/rs/zerolog"
)

// Stdio is the sentinel path selecting standard input or output.
const Stdio = "-"

// windowSize is the fixed read window the entry points pump input with.
// Detection always runs against the first window, which is larger than
// every known magic signature.
const windowSize = 4096

var (
	ErrUnknownFormat = errors.New("press: input is not a supported compressed type")
	ErrUnknownMethod = errors.New("press: unknown compression method")
	ErrMismatchedExt = errors.New("press: input extension does not match detected format")
	ErrContainer     = errors.New("press: corrupted container")
	ErrClosed        = errors.New("press: stream already closed")
)

// Options configures the Compress and Decompress entry points.
type Options struct {
	// Keep prevents deletion of the input file when the output path was
	// derived from it.
	Keep bool

	// Logger receives progress messages. Defaults to a no-op logger.
	Logger zerolog.Logger
}

// DefaultOptions returns the options used when nil is passed.
func DefaultOptions() *Options {
	return &Options{Logger: zerolog.Nop()}
}

// Stats reports what a single operation did.
type Stats struct {
	// Format is the codec used: detected for Decompress, resolved from
	// the method name for Compress.
	Format Format

	// BytesRead counts input bytes consumed.
	BytesRead int64

	// BytesWritten counts bytes that reached the output sink.
	BytesWritten int64
}

// Decompress reads input, detects its format from the first read window,
// and streams the decoded bytes to output. The path "-" means stdin or
// stdout. When output is empty and input is a real file, the output path
// is derived by stripping the detected format's canonical extension; a
// mismatched suffix is an error. A fully successful derived-path run
// deletes the input file.
func Decompress(input, output string, opts *Options) (*Stats, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	src, err := openSource(input)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	stats := &Stats{}
	var strm io.WriteCloser
	removeInput := false
	done := false
	defer func() {
		// Flush-and-release on every exit path; Close is idempotent so
		// the success path's explicit close is not repeated.
		if strm != nil && !done {
			_ = strm.Close()
		}
	}()

	buf := make([]byte, windowSize)
	for {
		n, rerr := readWindow(src, buf)
		if n > 0 {
			if strm == nil {
				strm, removeInput, err = resolveDecoder(buf[:n], input, output, opts, stats)
				if err != nil {
					return nil, err
				}
			}
			if _, werr := strm.Write(buf[:n]); werr != nil {
				return nil, werr
			}
			stats.BytesRead += int64(n)
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return nil, rerr
		}
	}
	if strm == nil {
		return nil, ErrUnknownFormat
	}
	if err := strm.Close(); err != nil {
		return nil, err
	}
	done = true
	if removeInput {
		if err := os.Remove(input); err != nil {
			return nil, err
		}
	}
	return stats, nil
}

// Compress resolves a codec from the method name and streams the encoded
// input to output. The path "-" means stdin or stdout. When output is
// empty, the destination is the input path with the format's canonical
// extension appended (or stdout when input is stdin). A fully successful
// derived-path run deletes the input file.
func Compress(method, input, output string, opts *Options) (*Stats, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	format, ok := FormatByName(method)
	if !ok {
		return nil, errors.Wrapf(ErrUnknownMethod, "%q", method)
	}

	src, err := openSource(input)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	removeInput := false
	if output == "" {
		if input == Stdio {
			output = Stdio
		} else {
			output = input + Extension(format)
			removeInput = !opts.Keep
			opts.Logger.Info().Str("path", output).Msg("compressing")
		}
	}

	stats := &Stats{Format: format}
	dst, err := openSink(output)
	if err != nil {
		return nil, err
	}
	strm, err := NewEncoder(format, &countingSink{w: dst, n: &stats.BytesWritten})
	if err != nil {
		_ = dst.Close()
		return nil, err
	}
	done := false
	defer func() {
		if !done {
			_ = strm.Close()
		}
	}()

	buf := make([]byte, windowSize)
	for {
		n, rerr := readWindow(src, buf)
		if n > 0 {
			if _, werr := strm.Write(buf[:n]); werr != nil {
				return nil, werr
			}
			stats.BytesRead += int64(n)
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return nil, rerr
		}
	}
	if err := strm.Close(); err != nil {
		return nil, err
	}
	done = true
	if removeInput {
		if err := os.Remove(input); err != nil {
			return nil, err
		}
	}
	return stats, nil
}

// resolveDecoder runs detection on the first window and builds the
// decoder over the derived (or given) output sink.
func resolveDecoder(window []byte, input, output string, opts *Options, stats *Stats) (io.WriteCloser, bool, error) {
	format := Detect(window)
	if format == FormatUnknown {
		return nil, false, ErrUnknownFormat
	}
	stats.Format = format
	opts.Logger.Info().Str("format", string(format)).Msg("detected format")

	removeInput := false
	if output == "" {
		output = input
		if input != Stdio {
			stripped, ok := StripExtension(input, format)
			if !ok {
				return nil, false, errors.Wrapf(ErrMismatchedExt, "%q is not a %s path", input, Extension(format))
			}
			output = stripped
			removeInput = !opts.Keep
			opts.Logger.Info().Str("path", output).Msg("decompressing")
		}
	}

	dst, err := openSink(output)
	if err != nil {
		return nil, false, err
	}
	strm, err := NewDecoder(format, &countingSink{w: dst, n: &stats.BytesWritten})
	if err != nil {
		_ = dst.Close()
		return nil, false, err
	}
	return strm, removeInput, nil
}

// readWindow fills buf as far as input allows, mapping a short final
// window to io.EOF.
func readWindow(r io.Reader, buf []byte) (int, error) {
	n, err := io.ReadFull(r, buf)
	if err == io.ErrUnexpectedEOF {
		err = io.EOF
	}
	return n, err
}

func openSource(path string) (io.ReadCloser, error) {
	if path == Stdio {
		return io.NopCloser(os.Stdin), nil
	}
	return os.Open(path)
}

func openSink(path string) (io.WriteCloser, error) {
	if path == Stdio {
		return nopCloseWriter{os.Stdout}, nil
	}
	return os.Create(path)
}

// nopCloseWriter shields process-level streams from the adapter's close.
type nopCloseWriter struct {
	io.Writer
}

func (nopCloseWriter) Close() error { return nil }

// countingSink counts bytes on their way to the real sink.
type countingSink struct {
	w io.WriteCloser
	n *int64
}

func (c *countingSink) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	*c.n += int64(n)
	return n, err
}

func (c *countingSink) Close() error { return c.w.Close() }
