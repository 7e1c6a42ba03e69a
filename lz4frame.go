package press

import (
	"encoding/binary"
	"io"

	"github.com/go-faster/errors"
	"github.com/pierrec/lz4/v4"
)

// newLZ4FrameEncoder compresses into a standard LZ4 frame: independent
// 4 MiB blocks, content checksum on, block checksums off, level 9.
func newLZ4FrameEncoder(sink io.WriteCloser) (io.WriteCloser, error) {
	zw := lz4.NewWriter(sink)
	err := zw.Apply(
		lz4.BlockSizeOption(lz4.Block4Mb),
		lz4.CompressionLevelOption(lz4.Level9),
		lz4.ChecksumOption(true),
		lz4.BlockChecksumOption(false),
	)
	if err != nil {
		return nil, errors.Wrap(err, "lz4 frame options")
	}
	return &encodeStream{codec: zw, sink: sink}, nil
}

// Decoder states. The parse is driven entirely by accumulated byte
// counts, so a single Write may cross any number of state boundaries and
// any field (including the frame header) may straddle Write calls.
const (
	frameStateHeader = iota
	frameStateBlockLen
	frameStateBlockData
	frameStateBlockChecksum
	frameStateContentChecksum
	frameStateDone
)

const (
	frameHeaderMin  = 7 // magic + FLG + BD + header checksum
	frameHeaderMax  = frameHeaderMin + 8 + 4
	frameWindowSize = 64 << 10 // history kept for block-linked frames

	flgDictID          = 1 << 0
	flgContentChecksum = 1 << 2
	flgContentSize     = 1 << 3
	flgBlockChecksum   = 1 << 4
	flgBlockIndep      = 1 << 5

	storedBlockFlag = 1 << 31
)

var lz4FrameMagic = []byte{0x04, 0x22, 0x4d, 0x18}

// lz4FrameDecoder incrementally parses an LZ4 frame container and
// decompresses its blocks into the sink. The scratch buffer cannot be
// allocated up front: its capacity comes from the block-size ID inside
// the frame header, which is only known once enough of the first writes
// has been accumulated.
type lz4FrameDecoder struct {
	sink   io.WriteCloser
	closed bool

	state  int
	header []byte  // frame descriptor accumulator
	word   [4]byte // accumulator for block lengths and checksums
	wordN  int

	blockChecksum   bool
	contentChecksum bool
	linked          bool

	blockLen int
	stored   bool   // current block is raw, not compressed
	block    []byte // current block body accumulator
	out      []byte // decode scratch, sized from the header
	history  []byte // trailing decoded bytes for linked frames
}

func newLZ4FrameDecoder(sink io.WriteCloser) (io.WriteCloser, error) {
	return &lz4FrameDecoder{
		sink:   sink,
		header: make([]byte, 0, frameHeaderMax),
	}, nil
}

func (d *lz4FrameDecoder) Write(p []byte) (int, error) {
	if d.closed {
		return 0, ErrClosed
	}
	total := len(p)
	for len(p) > 0 {
		switch d.state {
		case frameStateHeader:
			var err error
			if p, err = d.fillHeader(p); err != nil {
				return total - len(p), err
			}

		case frameStateBlockLen:
			p = d.fillWord(p)
			if d.wordN < 4 {
				break
			}
			d.wordN = 0
			v := binary.LittleEndian.Uint32(d.word[:])
			if v == 0 {
				// End mark.
				if d.contentChecksum {
					d.state = frameStateContentChecksum
				} else {
					d.state = frameStateDone
				}
				break
			}
			d.stored = v&storedBlockFlag != 0
			d.blockLen = int(v &^ storedBlockFlag)
			if d.blockLen > len(d.out) {
				return total - len(p), errors.Wrapf(ErrContainer, "lz4 frame block length %d exceeds block size", d.blockLen)
			}
			d.block = d.block[:0]
			d.state = frameStateBlockData

		case frameStateBlockData:
			n := d.blockLen - len(d.block)
			if n > len(p) {
				n = len(p)
			}
			d.block = append(d.block, p[:n]...)
			p = p[n:]
			if len(d.block) < d.blockLen {
				break
			}
			if err := d.flushBlock(); err != nil {
				return total - len(p), err
			}
			if d.blockChecksum {
				d.state = frameStateBlockChecksum
			} else {
				d.state = frameStateBlockLen
			}

		case frameStateBlockChecksum:
			// Consumed but not verified.
			p = d.fillWord(p)
			if d.wordN == 4 {
				d.wordN = 0
				d.state = frameStateBlockLen
			}

		case frameStateContentChecksum:
			p = d.fillWord(p)
			if d.wordN == 4 {
				d.wordN = 0
				d.state = frameStateDone
			}

		case frameStateDone:
			// Trailing bytes after the end mark are ignored.
			p = nil
		}
	}
	return total, nil
}

// fillWord accumulates up to 4 bytes into the word buffer.
func (d *lz4FrameDecoder) fillWord(p []byte) []byte {
	n := copy(d.word[d.wordN:], p)
	d.wordN += n
	return p[n:]
}

// fillHeader accumulates frame descriptor bytes until the full header is
// present, then parses it. The header length itself depends on the FLG
// byte, so the required count is re-derived as bytes arrive.
func (d *lz4FrameDecoder) fillHeader(p []byte) ([]byte, error) {
	need := frameHeaderMin
	if len(d.header) > 4 {
		need = frameHeaderLen(d.header[4])
	}
	for len(p) > 0 && len(d.header) < need {
		n := need - len(d.header)
		if n > len(p) {
			n = len(p)
		}
		d.header = append(d.header, p[:n]...)
		p = p[n:]
		if len(d.header) > 4 {
			need = frameHeaderLen(d.header[4])
		}
	}
	if len(d.header) < need {
		return p, nil
	}
	if err := d.parseHeader(); err != nil {
		return p, err
	}
	d.state = frameStateBlockLen
	return p, nil
}

func frameHeaderLen(flg byte) int {
	n := frameHeaderMin
	if flg&flgContentSize != 0 {
		n += 8
	}
	if flg&flgDictID != 0 {
		n += 4
	}
	return n
}

func (d *lz4FrameDecoder) parseHeader() error {
	h := d.header
	if string(h[:4]) != string(lz4FrameMagic) {
		return errors.Wrap(ErrContainer, "bad lz4 frame magic")
	}
	flg := h[4]
	if flg>>6 != 1 {
		return errors.Wrapf(ErrContainer, "unsupported lz4 frame version %d", flg>>6)
	}
	if flg&flgDictID != 0 {
		return errors.Wrap(ErrContainer, "lz4 frame dictionaries not supported")
	}
	d.blockChecksum = flg&flgBlockChecksum != 0
	d.contentChecksum = flg&flgContentChecksum != 0
	d.linked = flg&flgBlockIndep == 0

	var capacity int
	switch bd := h[5] >> 4 & 0x7; bd {
	case 4:
		capacity = 64 << 10
	case 5:
		capacity = 256 << 10
	case 6:
		capacity = 1 << 20
	case 7:
		capacity = 4 << 20
	default:
		return errors.Wrapf(ErrContainer, "invalid lz4 frame block size id %d", bd)
	}
	d.out = make([]byte, capacity)
	d.block = make([]byte, 0, capacity)
	if d.linked {
		d.history = make([]byte, 0, frameWindowSize)
	}
	return nil
}

func (d *lz4FrameDecoder) flushBlock() error {
	out := d.block
	if !d.stored {
		var (
			n   int
			err error
		)
		if d.linked {
			n, err = lz4.UncompressBlockWithDict(d.block, d.out, d.history)
		} else {
			n, err = lz4.UncompressBlock(d.block, d.out)
		}
		if err != nil {
			return errors.Wrap(err, "lz4 block")
		}
		out = d.out[:n]
	}
	if _, err := d.sink.Write(out); err != nil {
		return err
	}
	if d.linked {
		d.pushHistory(out)
	}
	return nil
}

// pushHistory keeps the trailing 64 KiB of decoded output as the
// dictionary for the next linked block.
func (d *lz4FrameDecoder) pushHistory(out []byte) {
	if len(out) >= frameWindowSize {
		d.history = append(d.history[:0], out[len(out)-frameWindowSize:]...)
		return
	}
	d.history = append(d.history, out...)
	if n := len(d.history); n > frameWindowSize {
		d.history = append(d.history[:0], d.history[n-frameWindowSize:]...)
	}
}

func (d *lz4FrameDecoder) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	var err error
	if d.state != frameStateDone {
		err = errors.Wrap(ErrContainer, "truncated lz4 frame")
	}
	if cerr := d.sink.Close(); err == nil {
		err = cerr
	}
	return err
}
