package press

import (
	"io"

	"github.com/andybalholm/brotli"
	"github.com/dsnet/compress/bzip2"
	"github.com/go-faster/errors"
	"github.com/golang/snappy"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
	"github.com/ulikunitz/xz/lzma"
)

// encodeStream adapts a codec's io.WriteCloser over a sink. All generic
// encoders (gzip, bzip2, xz, lzma, zstd, brotli, snappy, lz4 frame) share
// it: Write feeds the codec, Close flushes the codec's buffered state and
// then closes the sink exactly once.
type encodeStream struct {
	codec  io.WriteCloser
	sink   io.WriteCloser
	closed bool
}

func (s *encodeStream) Write(p []byte) (int, error) {
	if s.closed {
		return 0, ErrClosed
	}
	if len(p) == 0 {
		return 0, nil
	}
	n, err := s.codec.Write(p)
	if err != nil {
		return n, errors.Wrap(err, "encode")
	}
	return n, nil
}

func (s *encodeStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	err := s.codec.Close()
	if err != nil {
		err = errors.Wrap(err, "encode flush")
	}
	if cerr := s.sink.Close(); err == nil {
		err = cerr
	}
	return err
}

// decodeStream adapts the pull-model codec readers to the push contract.
// Writes feed one end of a pipe; a pump goroutine runs the codec reader
// over the other end and copies decoded bytes to the sink. Writes block
// until the pump consumes them, so memory stays bounded, and a pump
// failure surfaces on the next Write or on Close.
type decodeStream struct {
	pw     *io.PipeWriter
	sink   io.WriteCloser
	done   chan error
	closed bool
}

func newDecodeStream(sink io.WriteCloser, open func(io.Reader) (io.Reader, error)) *decodeStream {
	pr, pw := io.Pipe()
	s := &decodeStream{pw: pw, sink: sink, done: make(chan error, 1)}
	go func() {
		err := pump(pr, sink, open)
		if err != nil {
			pr.CloseWithError(err)
		}
		s.done <- err
	}()
	return s
}

func pump(pr *io.PipeReader, sink io.Writer, open func(io.Reader) (io.Reader, error)) error {
	r, err := open(pr)
	if err != nil {
		return errors.Wrap(err, "decode init")
	}
	if _, err := io.Copy(sink, r); err != nil {
		return errors.Wrap(err, "decode")
	}
	if c, ok := r.(io.Closer); ok {
		if err := c.Close(); err != nil {
			return errors.Wrap(err, "decode close")
		}
	}
	// Bytes past the codec's end marker are ignored. Draining them keeps
	// later writes from blocking on a reader that already stopped.
	_, _ = io.Copy(io.Discard, pr)
	return nil
}

func (s *decodeStream) Write(p []byte) (int, error) {
	if s.closed {
		return 0, ErrClosed
	}
	if len(p) == 0 {
		return 0, nil
	}
	return s.pw.Write(p)
}

func (s *decodeStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	_ = s.pw.Close()
	err := <-s.done
	if cerr := s.sink.Close(); err == nil {
		err = cerr
	}
	return err
}

// Generic encoder constructors. Levels are fixed at the strongest setting
// each codec offers, matching the canonical tool output.

func newGzipEncoder(sink io.WriteCloser) (io.WriteCloser, error) {
	zw, err := gzip.NewWriterLevel(sink, gzip.BestCompression)
	if err != nil {
		return nil, err
	}
	return &encodeStream{codec: zw, sink: sink}, nil
}

func newBzip2Encoder(sink io.WriteCloser) (io.WriteCloser, error) {
	bw, err := bzip2.NewWriter(sink, &bzip2.WriterConfig{Level: bzip2.BestCompression})
	if err != nil {
		return nil, err
	}
	return &encodeStream{codec: bw, sink: sink}, nil
}

func newXZEncoder(sink io.WriteCloser) (io.WriteCloser, error) {
	xw, err := xz.NewWriter(sink)
	if err != nil {
		return nil, err
	}
	return &encodeStream{codec: xw, sink: sink}, nil
}

func newLZMAEncoder(sink io.WriteCloser) (io.WriteCloser, error) {
	lw, err := lzma.NewWriter(sink)
	if err != nil {
		return nil, err
	}
	return &encodeStream{codec: lw, sink: sink}, nil
}

func newZstdEncoder(sink io.WriteCloser) (io.WriteCloser, error) {
	zw, err := zstd.NewWriter(sink,
		zstd.WithEncoderLevel(zstd.SpeedBestCompression),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		return nil, err
	}
	return &encodeStream{codec: zw, sink: sink}, nil
}

func newBrotliEncoder(sink io.WriteCloser) (io.WriteCloser, error) {
	return &encodeStream{codec: brotli.NewWriterLevel(sink, brotli.BestCompression), sink: sink}, nil
}

func newSnappyEncoder(sink io.WriteCloser) (io.WriteCloser, error) {
	return &encodeStream{codec: snappy.NewBufferedWriter(sink), sink: sink}, nil
}

// Generic decoder constructors.

func newGzipDecoder(sink io.WriteCloser) (io.WriteCloser, error) {
	return newDecodeStream(sink, func(r io.Reader) (io.Reader, error) {
		return gzip.NewReader(r)
	}), nil
}

func newBzip2Decoder(sink io.WriteCloser) (io.WriteCloser, error) {
	return newDecodeStream(sink, func(r io.Reader) (io.Reader, error) {
		return bzip2.NewReader(r, new(bzip2.ReaderConfig))
	}), nil
}

func newXZDecoder(sink io.WriteCloser) (io.WriteCloser, error) {
	return newDecodeStream(sink, func(r io.Reader) (io.Reader, error) {
		return xz.NewReader(r)
	}), nil
}

func newLZMADecoder(sink io.WriteCloser) (io.WriteCloser, error) {
	return newDecodeStream(sink, func(r io.Reader) (io.Reader, error) {
		return lzma.NewReader(r)
	}), nil
}

func newZstdDecoder(sink io.WriteCloser) (io.WriteCloser, error) {
	return newDecodeStream(sink, func(r io.Reader) (io.Reader, error) {
		zr, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, err
		}
		return zr.IOReadCloser(), nil
	}), nil
}

func newBrotliDecoder(sink io.WriteCloser) (io.WriteCloser, error) {
	return newDecodeStream(sink, func(r io.Reader) (io.Reader, error) {
		return brotli.NewReader(r), nil
	}), nil
}

func newSnappyDecoder(sink io.WriteCloser) (io.WriteCloser, error) {
	return newDecodeStream(sink, func(r io.Reader) (io.Reader, error) {
		return snappy.NewReader(r), nil
	}), nil
}
