package blockidx

import "io"

// Codec returns the element codec.
func (x *BlockIndex[T]) Codec() Codec[T] { return x.codec }

// Snapshot writes all elements to w.
func (x *BlockIndex[T]) Snapshot(w io.Writer, o *SnapshotOptions) error {
	if x.store == nil {
		return ErrClosed
	}

	sw := NewSnapshotWriter(w, x.codec, o)
	iter := x.All()
	for iter.Next() {
		if err := sw.Append(iter.Value()); err != nil {
			_ = sw.release()
			return err
		}
	}
	if err := iter.Err(); err != nil {
		_ = sw.release()
		return err
	}
	return sw.Close()
}

// Restore inserts all elements of a snapshot and returns the number of
// elements which were not present yet.
func (x *BlockIndex[T]) Restore(r *SnapshotReader[T]) (int, error) {
	return restore(r, x.Insert)
}

// Snapshot writes all key/value pairs to w.
func (x *KeyedIndex[K, V]) Snapshot(w io.Writer, o *SnapshotOptions) error {
	return x.set.Snapshot(w, o)
}

// Restore puts all pairs of a snapshot and returns the number of pairs
// which were stored. In Unique mode, pairs for keys which already have a
// value are skipped.
func (x *KeyedIndex[K, V]) Restore(r *SnapshotReader[Pair[K, V]]) (int, error) {
	return restore(r, func(p Pair[K, V]) (bool, error) {
		return x.Put(p.Key, p.Value)
	})
}

func restore[T any](r *SnapshotReader[T], insert func(T) (bool, error)) (int, error) {
	iter, err := r.Begin()
	if err != nil {
		return 0, err
	}
	defer iter.Release()

	n := 0
	for iter.Next() {
		ok, err := insert(iter.Value())
		if err != nil {
			return n, err
		}
		if ok {
			n++
		}
	}
	return n, iter.Err()
}
