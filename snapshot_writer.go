package blockidx

import (
	"encoding/binary"
	"errors"
	"io"

	"github.com/zeebo/blake3"
)

const (
	snapshotFooterSize  = 24
	snapshotTrailerSize = 9 // plain length, codec, checksum
)

var errOutOfOrder = errors.New("blockidx: attempted an out-of-order append")

// SnapshotOptions define snapshot writer specific options.
type SnapshotOptions struct {
	// BlockSize is the minimum uncompressed size in bytes of each block.
	// Default: 4KiB.
	BlockSize int

	// The compression codec to use.
	// Default: SnappyCompression.
	Compression Compression
}

func (o *SnapshotOptions) norm() *SnapshotOptions {
	var oo SnapshotOptions
	if o != nil {
		oo = *o
	}

	if oo.BlockSize < 1 {
		oo.BlockSize = 1 << 12
	}
	if !oo.Compression.isValid() {
		oo.Compression = SnappyCompression
	}

	return &oo
}

type snapshotBlock[T any] struct {
	Last   T     // last element in the block
	Offset int64 // block offset position
}

// SnapshotWriter writes a sorted sequence of elements as a compressed,
// checksummed snapshot.
type SnapshotWriter[T any] struct {
	w     io.Writer
	o     *SnapshotOptions
	codec Codec[T]
	cc    *compressor
	err   error

	offset int64
	last   T     // the last appended element
	count  int64 // number of appended elements

	buf []byte // plain buffer
	out []byte // block buffer
	tmp []byte // scratch buffer

	index []snapshotBlock[T]
}

// NewSnapshotWriter wraps a writer and returns a SnapshotWriter.
func NewSnapshotWriter[T any](w io.Writer, c Codec[T], o *SnapshotOptions) *SnapshotWriter[T] {
	o = o.norm()
	cc, err := newCompressor(o.Compression)
	return &SnapshotWriter[T]{
		w:     w,
		o:     o,
		codec: c,
		cc:    cc,
		err:   err,
		tmp:   make([]byte, c.Size()+refSize),
	}
}

// Append appends an element. Elements must be appended in strictly
// ascending order.
func (w *SnapshotWriter[T]) Append(v T) error {
	if w.tmp == nil {
		return ErrClosed
	}
	if w.err != nil {
		return w.err
	}
	if w.count != 0 && w.codec.Compare(v, w.last) <= 0 {
		return errOutOfOrder
	}

	sz := w.codec.Size()
	if len(w.buf) != 0 && len(w.buf)+sz > w.o.BlockSize {
		if err := w.flush(); err != nil {
			return err
		}
	}

	n := len(w.buf)
	w.buf = append(w.buf, make([]byte, sz)...)
	if err := w.codec.Encode(w.buf[n:], v); err != nil {
		w.buf = w.buf[:n]
		return err
	}

	w.last = v
	w.count++
	return nil
}

// Close flushes pending data and writes the block index and footer. It does
// not close the underlying writer.
func (w *SnapshotWriter[T]) Close() error {
	if w.tmp == nil {
		return ErrClosed
	}

	err := w.finish()
	if cerr := w.release(); err == nil {
		err = cerr
	}
	return err
}

func (w *SnapshotWriter[T]) finish() error {
	if w.err != nil {
		return w.err
	}
	if err := w.flush(); err != nil {
		return err
	}

	indexOffset := w.offset
	if err := w.writeIndex(); err != nil {
		return err
	}
	return w.writeFooter(indexOffset)
}

// release closes the writer without completing the snapshot.
func (w *SnapshotWriter[T]) release() error {
	if w.tmp == nil {
		return nil
	}
	w.tmp = nil
	if w.cc != nil {
		return w.cc.Close()
	}
	return nil
}

func (w *SnapshotWriter[T]) writeIndex() error {
	sz := w.codec.Size()
	for _, ent := range w.index {
		if err := w.codec.Encode(w.tmp[:sz], ent.Last); err != nil {
			return err
		}
		binary.LittleEndian.PutUint64(w.tmp[sz:], uint64(ent.Offset))

		if err := w.writeRaw(w.tmp); err != nil {
			return err
		}
	}
	return nil
}

func (w *SnapshotWriter[T]) writeFooter(indexOffset int64) error {
	footer := make([]byte, snapshotFooterSize)
	binary.LittleEndian.PutUint64(footer[0:], uint64(indexOffset))
	binary.LittleEndian.PutUint64(footer[8:], uint64(w.count))
	copy(footer[16:], magic)
	return w.writeRaw(footer)
}

func (w *SnapshotWriter[T]) writeRaw(p []byte) error {
	n, err := w.w.Write(p)
	w.offset += int64(n)
	return err
}

func (w *SnapshotWriter[T]) flush() error {
	if len(w.buf) == 0 {
		return nil
	}

	payload, codec, err := w.cc.compress(w.buf)
	if err != nil {
		return err
	}

	w.out = append(w.out[:0], payload...)
	w.out = binary.LittleEndian.AppendUint32(w.out, uint32(len(w.buf)))
	w.out = append(w.out, codec)
	sum := blake3.Sum256(w.out)
	w.out = append(w.out, sum[:4]...)

	w.index = append(w.index, snapshotBlock[T]{Last: w.last, Offset: w.offset})
	w.buf = w.buf[:0]

	return w.writeRaw(w.out)
}
