package blockidx

import (
	"encoding/binary"
	"sort"
)

// SortedBlock is a fixed-capacity, strictly sorted and duplicate-free
// collection.
type SortedBlock[T any] struct {
	data []T
	cmp  func(a, b T) int
}

// NewSortedBlock allocates an empty block with the given capacity.
func NewSortedBlock[T any](capacity int, cmp func(a, b T) int) *SortedBlock[T] {
	return &SortedBlock[T]{
		data: make([]T, 0, capacity),
		cmp:  cmp,
	}
}

// Len returns the number of elements.
func (b *SortedBlock[T]) Len() int { return len(b.data) }

// Cap returns the capacity.
func (b *SortedBlock[T]) Cap() int { return cap(b.data) }

// Empty is true when the block holds no elements.
func (b *SortedBlock[T]) Empty() bool { return len(b.data) == 0 }

// Full is true when the block has reached its capacity.
func (b *SortedBlock[T]) Full() bool { return len(b.data) >= cap(b.data) }

// At returns the i-th element.
func (b *SortedBlock[T]) At(i int) T { return b.data[i] }

// Min returns the first element. The block must not be empty.
func (b *SortedBlock[T]) Min() T {
	if len(b.data) == 0 {
		panic("blockidx: Min called on an empty block")
	}
	return b.data[0]
}

// Insert places t at its sorted position. It returns false if the block is
// full or already contains t.
func (b *SortedBlock[T]) Insert(t T) bool {
	if b.Full() {
		return false
	}

	p := b.FirstNoSmaller(t)
	if p < len(b.data) && b.cmp(b.data[p], t) == 0 {
		return false
	}

	b.data = append(b.data, t)
	copy(b.data[p+1:], b.data[p:])
	b.data[p] = t
	return true
}

// Erase removes t and returns false if it was not present.
func (b *SortedBlock[T]) Erase(t T) bool {
	p := b.FirstNoSmaller(t)
	if p >= len(b.data) || b.cmp(b.data[p], t) != 0 {
		return false
	}
	b.removeAt(p)
	return true
}

// Contains returns true if t is present.
func (b *SortedBlock[T]) Contains(t T) bool {
	p := b.FirstNoSmaller(t)
	return p < len(b.data) && b.cmp(b.data[p], t) == 0
}

// LastNoGreater returns the position of the last element <= t, or -1 if t
// is smaller than all elements.
func (b *SortedBlock[T]) LastNoGreater(t T) int {
	return sort.Search(len(b.data), func(i int) bool {
		return b.cmp(b.data[i], t) > 0
	}) - 1
}

// FirstNoSmaller returns the position of the first element >= t, or Len()
// if t is greater than all elements.
func (b *SortedBlock[T]) FirstNoSmaller(t T) int {
	return sort.Search(len(b.data), func(i int) bool {
		return b.cmp(b.data[i], t) >= 0
	})
}

// Split moves the upper half (Len()/2 elements) into a new block of the same
// capacity. On odd sizes the extra element stays in b.
func (b *SortedBlock[T]) Split() *SortedBlock[T] {
	upper := NewSortedBlock(cap(b.data), b.cmp)
	keep := len(b.data) - len(b.data)/2
	upper.data = append(upper.data, b.data[keep:]...)
	clear(b.data[keep:])
	b.data = b.data[:keep]
	return upper
}

func (b *SortedBlock[T]) reset() {
	clear(b.data)
	b.data = b.data[:0]
}

// setAt replaces the i-th element. The caller must preserve the order.
func (b *SortedBlock[T]) setAt(i int, t T) { b.data[i] = t }

func (b *SortedBlock[T]) removeAt(i int) {
	copy(b.data[i:], b.data[i+1:])
	var zero T
	b.data[len(b.data)-1] = zero
	b.data = b.data[:len(b.data)-1]
}

// --------------------------------------------------------------------

// blockCodec encodes a block as a 4-byte element count followed by capacity
// element slots.
type blockCodec[T any] struct {
	elem     Codec[T]
	capacity int
}

func (c blockCodec[T]) Size() int { return 4 + c.capacity*c.elem.Size() }

func (c blockCodec[T]) encode(dst []byte, b *SortedBlock[T]) error {
	binary.LittleEndian.PutUint32(dst, uint32(b.Len()))

	w := c.elem.Size()
	off := 4
	for _, t := range b.data {
		if err := c.elem.Encode(dst[off:off+w], t); err != nil {
			return err
		}
		off += w
	}
	clear(dst[off:])
	return nil
}

func (c blockCodec[T]) decode(b *SortedBlock[T], src []byte) error {
	n := int(binary.LittleEndian.Uint32(src))
	if n > c.capacity || len(src) < c.Size() {
		return ErrCorrupt
	}

	b.reset()
	w := c.elem.Size()
	for off := 4; len(b.data) < n; off += w {
		b.data = append(b.data, c.elem.Decode(src[off:off+w]))
	}
	return nil
}
