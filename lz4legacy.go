package press

import (
	"encoding/binary"
	"io"

	"github.com/go-faster/errors"
	"github.com/pierrec/lz4/v4"
)

// The legacy LZ4 container is a bespoke block-chunked format used by
// existing boot-image tooling, so its byte layout must be reproduced
// exactly: a 4-byte magic, then (u32 LE block length, LZ4-HC block)
// records, then a u32 LE trailer holding the total uncompressed size
// (wrapping at 2^32).
const legacyBlockSize = 8 << 20

var legacyMagic = []byte{0x02, 0x21, 0x4c, 0x18}

// lz4LegacyEncoder accumulates raw input into one 8 MiB super-block at a
// time; each full super-block is compressed as a single LZ4-HC block and
// emitted with its length prefix.
type lz4LegacyEncoder struct {
	sink   io.WriteCloser
	zc     lz4.CompressorHC
	buf    []byte // super-block accumulator, cap legacyBlockSize
	dst    []byte // compressed scratch
	opened bool   // magic emitted
	total  uint32 // all uncompressed bytes ever written, wraps
	closed bool
}

func newLZ4LegacyEncoder(sink io.WriteCloser) (io.WriteCloser, error) {
	return &lz4LegacyEncoder{
		sink: sink,
		zc:   lz4.CompressorHC{Level: lz4.Level9},
		buf:  make([]byte, 0, legacyBlockSize),
		dst:  make([]byte, lz4.CompressBlockBound(legacyBlockSize)),
	}, nil
}

func (e *lz4LegacyEncoder) Write(p []byte) (int, error) {
	if e.closed {
		return 0, ErrClosed
	}
	if err := e.writeMagic(); err != nil {
		return 0, err
	}
	if len(p) == 0 {
		return 0, nil
	}
	total := len(p)
	e.total += uint32(total)
	for len(p) > 0 {
		n := legacyBlockSize - len(e.buf)
		if n > len(p) {
			n = len(p)
		}
		e.buf = append(e.buf, p[:n]...)
		p = p[n:]
		if len(e.buf) == legacyBlockSize {
			if err := e.flushBlock(); err != nil {
				return total - len(p), err
			}
		}
	}
	return total, nil
}

func (e *lz4LegacyEncoder) writeMagic() error {
	if e.opened {
		return nil
	}
	e.opened = true
	_, err := e.sink.Write(legacyMagic)
	return err
}

func (e *lz4LegacyEncoder) flushBlock() error {
	n, err := e.zc.CompressBlock(e.buf, e.dst)
	if err != nil {
		return errors.Wrap(err, "lz4hc block")
	}
	var prefix [4]byte
	binary.LittleEndian.PutUint32(prefix[:], uint32(n))
	if _, err := e.sink.Write(prefix[:]); err != nil {
		return err
	}
	if _, err := e.sink.Write(e.dst[:n]); err != nil {
		return err
	}
	e.buf = e.buf[:0]
	return nil
}

// Close emits the final partial block (if any buffered input remains)
// and the total-size trailer, then closes the sink. The magic and the
// trailer are written even when no data was ever received, so an empty
// input still produces a well-formed container.
func (e *lz4LegacyEncoder) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	err := e.writeMagic()
	if err == nil && len(e.buf) > 0 {
		err = e.flushBlock()
	}
	if err == nil {
		var trailer [4]byte
		binary.LittleEndian.PutUint32(trailer[:], e.total)
		_, err = e.sink.Write(trailer[:])
	}
	if cerr := e.sink.Close(); err == nil {
		err = cerr
	}
	return err
}

// lz4LegacyDecoder parses the container with an explicit two-state
// machine: awaiting a 4-byte block length, or accumulating the block
// body until it holds exactly that many bytes. Any field, including the
// magic, may straddle Write boundaries.
type lz4LegacyDecoder struct {
	sink   io.WriteCloser
	closed bool

	magicN int // magic bytes consumed so far

	haveLen  bool
	word     [4]byte
	wordN    int
	blockLen uint32

	block []byte // body accumulator
	out   []byte // 8 MiB decode scratch
	total uint32 // decoded bytes, wraps like the encoder's trailer
}

// maxLegacyBlock bounds a plausible compressed block length. Anything
// larger mid-stream is a corrupt container rather than a block.
var maxLegacyBlock = uint32(lz4.CompressBlockBound(legacyBlockSize))

func newLZ4LegacyDecoder(sink io.WriteCloser) (io.WriteCloser, error) {
	return &lz4LegacyDecoder{
		sink:  sink,
		block: make([]byte, 0, maxLegacyBlock),
		out:   make([]byte, legacyBlockSize),
	}, nil
}

func (d *lz4LegacyDecoder) Write(p []byte) (int, error) {
	if d.closed {
		return 0, ErrClosed
	}
	total := len(p)
	for len(p) > 0 {
		switch {
		case d.magicN < len(legacyMagic):
			n := len(legacyMagic) - d.magicN
			if n > len(p) {
				n = len(p)
			}
			for i := 0; i < n; i++ {
				if p[i] != legacyMagic[d.magicN+i] {
					return total - len(p), errors.Wrap(ErrContainer, "bad lz4 legacy magic")
				}
			}
			d.magicN += n
			p = p[n:]

		case !d.haveLen:
			n := copy(d.word[d.wordN:], p)
			d.wordN += n
			p = p[n:]
			if d.wordN == 4 {
				d.blockLen = binary.LittleEndian.Uint32(d.word[:])
				d.haveLen = true
				d.wordN = 0
				d.block = d.block[:0]
			}

		default:
			// The trailer is indistinguishable from a block length until
			// end of input, so an implausible pending length with more
			// input behind it means the container is corrupt.
			if d.blockLen == 0 || d.blockLen > maxLegacyBlock {
				return total - len(p), errors.Wrapf(ErrContainer, "bad lz4 legacy block length %d", d.blockLen)
			}
			n := int(d.blockLen) - len(d.block)
			if n > len(p) {
				n = len(p)
			}
			d.block = append(d.block, p[:n]...)
			p = p[n:]
			if uint32(len(d.block)) < d.blockLen {
				break
			}
			if err := d.flushBlock(); err != nil {
				return total - len(p), err
			}
		}
	}
	return total, nil
}

func (d *lz4LegacyDecoder) flushBlock() error {
	n, err := lz4.UncompressBlock(d.block, d.out)
	if err != nil {
		return errors.Wrap(err, "lz4 block")
	}
	if _, err := d.sink.Write(d.out[:n]); err != nil {
		return err
	}
	d.total += uint32(n)
	d.haveLen = false
	d.block = d.block[:0]
	return nil
}

// Close validates the trailer: the stream must end on a fully consumed
// 4-byte field whose value equals the running decoded total.
func (d *lz4LegacyDecoder) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	var err error
	switch {
	case d.magicN < len(legacyMagic):
		err = errors.Wrap(ErrContainer, "truncated lz4 legacy container")
	case !d.haveLen || len(d.block) > 0:
		err = errors.Wrap(ErrContainer, "truncated lz4 legacy container")
	case d.blockLen != d.total:
		err = errors.Wrapf(ErrContainer, "lz4 legacy trailer %d does not match decoded size %d", d.blockLen, d.total)
	}
	if cerr := d.sink.Close(); err == nil {
		err = cerr
	}
	return err
}
