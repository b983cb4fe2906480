package blockidx

import (
	"bytes"
	"encoding/binary"
	"io"
	"sort"

	"github.com/zeebo/blake3"
)

// SnapshotReader instances can seek and iterate across snapshot data.
type SnapshotReader[T any] struct {
	r     io.ReaderAt
	codec Codec[T]

	index     []snapshotBlock[T]
	count     int64
	maxOffset int64
}

// NewSnapshotReader opens a snapshot reader.
func NewSnapshotReader[T any](r io.ReaderAt, size int64, c Codec[T]) (*SnapshotReader[T], error) {
	if size < snapshotFooterSize {
		return nil, ErrBadMagic
	}

	// read footer
	footer := make([]byte, snapshotFooterSize)
	footerOffset := size - snapshotFooterSize
	if err := readSnapshotAt(r, footer, footerOffset); err != nil {
		return nil, err
	}

	// parse footer
	if !bytes.Equal(footer[16:], magic) {
		return nil, ErrBadMagic
	}
	indexOffset := int64(binary.LittleEndian.Uint64(footer[0:]))
	count := int64(binary.LittleEndian.Uint64(footer[8:]))

	// read index
	sz := c.Size()
	entSize := int64(sz + refSize)
	if indexOffset < 0 || indexOffset > footerOffset || (footerOffset-indexOffset)%entSize != 0 {
		return nil, ErrCorrupt
	}

	raw := make([]byte, footerOffset-indexOffset)
	if err := readSnapshotAt(r, raw, indexOffset); err != nil {
		return nil, err
	}

	index := make([]snapshotBlock[T], 0, len(raw)/int(entSize))
	for off := 0; off < len(raw); off += int(entSize) {
		index = append(index, snapshotBlock[T]{
			Last:   c.Decode(raw[off : off+sz]),
			Offset: int64(binary.LittleEndian.Uint64(raw[off+sz:])),
		})
	}

	return &SnapshotReader[T]{
		r:     r,
		codec: c,

		index:     index,
		count:     count,
		maxOffset: indexOffset,
	}, nil
}

// NumBlocks returns the number of stored blocks.
func (r *SnapshotReader[T]) NumBlocks() int { return len(r.index) }

// Len returns the number of stored elements.
func (r *SnapshotReader[T]) Len() int { return int(r.count) }

// Contains returns true if v is stored.
func (r *SnapshotReader[T]) Contains(v T) (bool, error) {
	iter, err := r.Seek(v)
	if err != nil {
		return false, err
	}
	defer iter.Release()

	return iter.Next() && r.codec.Compare(iter.Value(), v) == 0, iter.Err()
}

// Begin returns an iterator starting at the first element.
func (r *SnapshotReader[T]) Begin() (*SnapshotIterator[T], error) {
	return r.iterAt(0)
}

// Seek returns an iterator starting at the position >= v.
func (r *SnapshotReader[T]) Seek(v T) (*SnapshotIterator[T], error) {
	bpos := sort.Search(len(r.index), func(i int) bool {
		return r.codec.Compare(r.index[i].Last, v) >= 0
	})

	iter, err := r.iterAt(bpos)
	if err != nil || iter.block == nil {
		return iter, err
	}

	sz := r.codec.Size()
	iter.pos = sort.Search(len(iter.block)/sz, func(i int) bool {
		return r.codec.Compare(r.codec.Decode(iter.block[i*sz:(i+1)*sz]), v) >= 0
	})
	return iter, nil
}

func (r *SnapshotReader[T]) iterAt(bpos int) (*SnapshotIterator[T], error) {
	iter := &SnapshotIterator[T]{r: r, bpos: bpos}
	if bpos < len(r.index) {
		block, err := r.readBlock(bpos)
		if err != nil {
			return nil, err
		}
		iter.block = block
	}
	return iter, nil
}

func (r *SnapshotReader[T]) readBlock(bpos int) ([]byte, error) {
	min := r.index[bpos].Offset
	max := r.maxOffset
	if next := bpos + 1; next < len(r.index) {
		max = r.index[next].Offset
	}
	if max-min < snapshotTrailerSize {
		return nil, ErrCorrupt
	}

	raw := fetchBuffer(int(max - min))
	if err := readSnapshotAt(r.r, raw, min); err != nil {
		releaseBuffer(raw)
		return nil, err
	}

	sumPos := len(raw) - 4
	if sum := blake3.Sum256(raw[:sumPos]); !bytes.Equal(sum[:4], raw[sumPos:]) {
		releaseBuffer(raw)
		return nil, ErrBadChecksum
	}

	codec := raw[sumPos-1]
	plainLen := int(binary.LittleEndian.Uint32(raw[sumPos-5:]))
	payload := raw[:sumPos-5]

	var block []byte
	switch codec {
	case blockNoCompression:
		if len(payload) != plainLen {
			releaseBuffer(raw)
			return nil, ErrCorrupt
		}
		block = payload
	default:
		defer releaseBuffer(raw)

		plain, err := decompress(codec, payload, plainLen)
		if err != nil {
			return nil, err
		}
		block = plain
	}

	if len(block)%r.codec.Size() != 0 {
		releaseBuffer(block)
		return nil, ErrCorrupt
	}
	return block, nil
}

func readSnapshotAt(r io.ReaderAt, p []byte, off int64) error {
	if n, err := r.ReadAt(p, off); err != nil && (err != io.EOF || n != len(p)) {
		name := "snapshot"
		if f, ok := r.(interface{ Name() string }); ok {
			name = f.Name()
		}
		return &IOError{Op: "read", Path: name, Err: err}
	}
	return nil
}

// --------------------------------------------------------------------

// SnapshotIterator is a forward iterator across the blocks of a snapshot.
type SnapshotIterator[T any] struct {
	r *SnapshotReader[T]

	block []byte // plain block data
	bpos  int    // the current block position
	pos   int    // the next element within the block

	cur T
	err error
}

// Value returns the current element.
func (i *SnapshotIterator[T]) Value() T { return i.cur }

// Next advances the cursor to the next element and returns true if
// successful.
func (i *SnapshotIterator[T]) Next() bool {
	if i.err != nil {
		return false
	}

	sz := i.r.codec.Size()
	for (i.pos+1)*sz > len(i.block) {
		if i.bpos+1 >= i.r.NumBlocks() {
			return false
		}

		releaseBuffer(i.block)
		i.block = nil
		i.bpos++
		i.pos = 0
		if i.block, i.err = i.r.readBlock(i.bpos); i.err != nil {
			return false
		}
	}

	i.cur = i.r.codec.Decode(i.block[i.pos*sz : (i.pos+1)*sz])
	i.pos++
	return true
}

// Err exposes iterator errors, if any.
func (i *SnapshotIterator[T]) Err() error {
	return i.err
}

// Release releases the iterator and frees up resources. The iterator must
// not be used after this method is called.
func (i *SnapshotIterator[T]) Release() {
	releaseBuffer(i.block)
	i.block = nil
	i.err = errReleased
}
