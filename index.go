package blockidx

import (
	"encoding/binary"
	"log/slog"
)

// indexEntry points at a leaf block and caches its smallest element.
type indexEntry[T any] struct {
	Min T
	Ref SlotRef
}

type entryCodec[T any] struct{ elem Codec[T] }

func (c entryCodec[T]) Size() int { return c.elem.Size() + refSize }

func (c entryCodec[T]) Encode(dst []byte, e indexEntry[T]) error {
	n := c.elem.Size()
	if err := c.elem.Encode(dst[:n], e.Min); err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(dst[n:], uint64(e.Ref))
	return nil
}

func (c entryCodec[T]) Decode(src []byte) indexEntry[T] {
	n := c.elem.Size()
	return indexEntry[T]{Min: c.elem.Decode(src[:n]), Ref: SlotRef(binary.LittleEndian.Uint64(src[n:]))}
}

func (c entryCodec[T]) Compare(a, b indexEntry[T]) int { return c.elem.Compare(a.Min, b.Min) }

// --------------------------------------------------------------------

// BlockIndex is a persistent, ordered, duplicate-free set. Elements live in
// leaf blocks stored as slots of a SlotStore; the index block of leaf minimums
// is held in memory and persisted as the store header on Close.
//
// The index block is not split itself, so an index holds at most
// IndexCapacity leaf blocks.
type BlockIndex[T any] struct {
	store *SlotStore
	codec Codec[T]
	log   *slog.Logger

	leafCodec  blockCodec[T]
	indexCodec blockCodec[indexEntry[T]]

	index *SortedBlock[indexEntry[T]]
	leaf  *SortedBlock[T] // the resident leaf
	buf   []byte          // leaf encoding buffer
	tmp   []byte          // element scratch buffer
}

// OpenBlockIndex opens the index file at name, creating it when absent.
func OpenBlockIndex[T any](name string, c Codec[T], o *Options) (*BlockIndex[T], error) {
	o = o.norm()

	ec := entryCodec[T]{elem: c}
	x := &BlockIndex[T]{
		codec:      c,
		log:        o.Logger.With("file", name),
		leafCodec:  blockCodec[T]{elem: c, capacity: o.BlockCapacity},
		indexCodec: blockCodec[indexEntry[T]]{elem: ec, capacity: o.IndexCapacity},
		index:      NewSortedBlock(o.IndexCapacity, ec.Compare),
		leaf:       NewSortedBlock(o.BlockCapacity, c.Compare),
	}
	x.buf = make([]byte, x.leafCodec.Size())
	x.tmp = make([]byte, c.Size())

	store, err := OpenSlotStore(name, x.indexCodec.Size(), x.leafCodec.Size(), o)
	if err != nil {
		return nil, err
	}

	header, err := store.ReadHeader()
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	if err := x.indexCodec.decode(x.index, header); err != nil {
		_ = store.Close()
		return nil, err
	}

	x.store = store
	x.log.Debug("index opened", "blocks", x.index.Len())
	return x, nil
}

// NumBlocks returns the number of leaf blocks.
func (x *BlockIndex[T]) NumBlocks() int { return x.index.Len() }

// Insert adds t and returns true if it was not present yet.
func (x *BlockIndex[T]) Insert(t T) (bool, error) {
	if x.store == nil {
		return false, ErrClosed
	}
	if err := x.codec.Encode(x.tmp, t); err != nil {
		return false, err
	}

	if x.index.Empty() {
		x.leaf.reset()
		x.leaf.Insert(t)
		ref, err := x.addLeaf(x.leaf)
		if err != nil {
			return false, err
		}
		x.index.Insert(indexEntry[T]{Min: t, Ref: ref})
		return true, nil
	}

	pos := max(0, x.index.LastNoGreater(indexEntry[T]{Min: t}))
	ent := x.index.At(pos)
	if err := x.loadLeaf(x.leaf, ent.Ref); err != nil {
		return false, err
	}

	// a full leaf is only left behind when the index block could not take
	// another entry; split it once the index has room again
	if x.leaf.Full() {
		if x.leaf.Contains(t) {
			return false, nil
		}
		if x.index.Full() {
			return false, ErrIndexFull
		}

		upper, ref, err := x.splitLeaf(pos, ent.Ref)
		if err != nil {
			return false, err
		}
		if x.codec.Compare(t, upper.Min()) >= 0 {
			x.leaf = upper
			pos, ent = pos+1, indexEntry[T]{Min: upper.Min(), Ref: ref}
		}
	}
	if !x.leaf.Insert(t) {
		return false, nil
	}

	if x.leaf.Full() && !x.index.Full() {
		if _, _, err := x.splitLeaf(pos, ent.Ref); err != nil {
			return false, err
		}
		return true, nil
	}

	if err := x.storeLeaf(ent.Ref, x.leaf); err != nil {
		return false, err
	}
	x.index.setAt(pos, indexEntry[T]{Min: x.leaf.Min(), Ref: ent.Ref})
	return true, nil
}

// Erase removes t and returns true if it was present. Leaf blocks which
// become empty are reclaimed; blocks are never merged.
func (x *BlockIndex[T]) Erase(t T) (bool, error) {
	if x.store == nil {
		return false, ErrClosed
	}
	if x.index.Empty() {
		return false, nil
	}

	pos := x.index.LastNoGreater(indexEntry[T]{Min: t})
	if pos < 0 {
		return false, nil
	}
	ent := x.index.At(pos)
	if err := x.loadLeaf(x.leaf, ent.Ref); err != nil {
		return false, err
	}
	if !x.leaf.Erase(t) {
		return false, nil
	}

	if x.leaf.Empty() {
		if err := x.store.Remove(ent.Ref); err != nil {
			return false, err
		}
		x.index.removeAt(pos)
		x.log.Debug("leaf reclaimed", "ref", ent.Ref, "blocks", x.index.Len())
		return true, nil
	}

	if err := x.storeLeaf(ent.Ref, x.leaf); err != nil {
		return false, err
	}
	x.index.setAt(pos, indexEntry[T]{Min: x.leaf.Min(), Ref: ent.Ref})
	return true, nil
}

// Search returns an iterator over all elements between min and max
// (inclusive) in ascending order. The iterator must not be used after the
// index has been modified.
func (x *BlockIndex[T]) Search(min, max T) *Iterator[T] {
	return &Iterator[T]{x: x, min: min, max: max, bounded: true}
}

// All returns an iterator over all elements in ascending order.
func (x *BlockIndex[T]) All() *Iterator[T] {
	return &Iterator[T]{x: x}
}

// Range collects all elements between min and max (inclusive).
func (x *BlockIndex[T]) Range(min, max T) ([]T, error) {
	var res []T
	iter := x.Search(min, max)
	for iter.Next() {
		res = append(res, iter.Value())
	}
	return res, iter.Err()
}

// Close persists the index block and closes the file.
func (x *BlockIndex[T]) Close() error {
	if x.store == nil {
		return ErrClosed
	}

	store := x.store
	x.store = nil

	header := make([]byte, x.indexCodec.Size())
	if err := x.indexCodec.encode(header, x.index); err != nil {
		_ = store.Close()
		return err
	}
	if err := store.WriteHeader(header); err != nil {
		_ = store.Close()
		return err
	}
	x.log.Debug("index flushed", "blocks", x.index.Len())
	return store.Close()
}

// splitLeaf moves the upper half of the resident leaf, stored at index
// position pos, into a new slot and registers it in the index block.
func (x *BlockIndex[T]) splitLeaf(pos int, ref SlotRef) (*SortedBlock[T], SlotRef, error) {
	upper := x.leaf.Split()
	if err := x.storeLeaf(ref, x.leaf); err != nil {
		return nil, 0, err
	}
	newRef, err := x.addLeaf(upper)
	if err != nil {
		return nil, 0, err
	}
	x.index.setAt(pos, indexEntry[T]{Min: x.leaf.Min(), Ref: ref})
	x.index.Insert(indexEntry[T]{Min: upper.Min(), Ref: newRef})
	x.log.Debug("leaf split", "ref", ref, "new", newRef, "blocks", x.index.Len())
	return upper, newRef, nil
}

func (x *BlockIndex[T]) loadLeaf(dst *SortedBlock[T], ref SlotRef) error {
	raw, err := x.store.Get(ref)
	if err != nil {
		return err
	}
	return x.leafCodec.decode(dst, raw)
}

func (x *BlockIndex[T]) storeLeaf(ref SlotRef, b *SortedBlock[T]) error {
	if err := x.leafCodec.encode(x.buf, b); err != nil {
		return err
	}
	return x.store.Set(ref, x.buf)
}

func (x *BlockIndex[T]) addLeaf(b *SortedBlock[T]) (SlotRef, error) {
	if err := x.leafCodec.encode(x.buf, b); err != nil {
		return 0, err
	}
	return x.store.Add(x.buf)
}

// --------------------------------------------------------------------

// Iterator is a lazy, forward-only cursor across the leaf blocks of an
// index.
type Iterator[T any] struct {
	x *BlockIndex[T]

	min, max T
	bounded  bool

	leaf *SortedBlock[T]
	bpos int // the current index entry
	pos  int // the next position within the leaf

	cur  T
	done bool
	err  error
}

// Next advances the cursor and returns true if an element is available.
func (i *Iterator[T]) Next() bool {
	if i.done || i.err != nil {
		return false
	}

	if i.leaf == nil && !i.seek() {
		return false
	}

	for i.pos >= i.leaf.Len() {
		if i.bpos+1 >= i.x.index.Len() {
			i.done = true
			return false
		}
		i.bpos++
		if !i.load() {
			return false
		}
		i.pos = 0
	}

	v := i.leaf.At(i.pos)
	if i.bounded && i.x.codec.Compare(i.max, v) < 0 {
		i.done = true
		return false
	}
	i.cur = v
	i.pos++
	return true
}

// Value returns the current element.
func (i *Iterator[T]) Value() T { return i.cur }

// Err exposes iterator errors, if any.
func (i *Iterator[T]) Err() error { return i.err }

func (i *Iterator[T]) seek() bool {
	if i.x.store == nil {
		i.err = ErrClosed
		return false
	}
	if i.x.index.Empty() {
		i.done = true
		return false
	}

	i.leaf = NewSortedBlock(i.x.leafCodec.capacity, i.x.codec.Compare)
	if i.bounded {
		i.bpos = max(0, i.x.index.LastNoGreater(indexEntry[T]{Min: i.min}))
	}
	if !i.load() {
		return false
	}
	if i.bounded {
		i.pos = i.leaf.FirstNoSmaller(i.min)
	}
	return true
}

func (i *Iterator[T]) load() bool {
	if i.x.store == nil {
		i.err = ErrClosed
		return false
	}
	if err := i.x.loadLeaf(i.leaf, i.x.index.At(i.bpos).Ref); err != nil {
		i.err = err
		return false
	}
	return true
}
