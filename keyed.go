package blockidx

// Mode selects the key semantics of a KeyedIndex.
type Mode int

// Supported modes
const (
	// Unique allows at most one value per key.
	Unique Mode = iota
	// Multi allows any number of distinct values per key.
	Multi
)

// KeyedIndex is a persistent ordered map built on a BlockIndex of key/value
// pairs.
type KeyedIndex[K, V any] struct {
	set  *BlockIndex[Pair[K, V]]
	vals Bounded[V]
	mode Mode
}

// OpenKeyedIndex opens the keyed index file at name, creating it when absent.
// The mode is not stored in the file and must be the same on every open.
func OpenKeyedIndex[K, V any](name string, mode Mode, k Codec[K], v Bounded[V], o *Options) (*KeyedIndex[K, V], error) {
	set, err := OpenBlockIndex(name, PairCodec[K, V](k, v), o)
	if err != nil {
		return nil, err
	}
	return &KeyedIndex[K, V]{set: set, vals: v, mode: mode}, nil
}

// Mode returns the key semantics.
func (x *KeyedIndex[K, V]) Mode() Mode { return x.mode }

// Set exposes the underlying pair set.
func (x *KeyedIndex[K, V]) Set() *BlockIndex[Pair[K, V]] { return x.set }

// Put stores v under k. In Unique mode it returns false without modification
// if k already has a value; in Multi mode it returns false if the exact pair
// exists.
func (x *KeyedIndex[K, V]) Put(k K, v V) (bool, error) {
	if x.mode == Unique {
		_, found, err := x.first(k)
		if err != nil || found {
			return false, err
		}
	}
	return x.set.Insert(Pair[K, V]{Key: k, Value: v})
}

// Remove removes the value stored under k in a Unique index. On a Multi
// index it fails with ErrAmbiguousRemove; use RemoveValue instead.
func (x *KeyedIndex[K, V]) Remove(k K) (bool, error) {
	if x.mode == Multi {
		return false, ErrAmbiguousRemove
	}

	p, found, err := x.first(k)
	if err != nil || !found {
		return false, err
	}
	return x.set.Erase(p)
}

// RemoveValue removes the exact pair (k, v). Passing the minimum value
// sentinel behaves like Remove(k).
func (x *KeyedIndex[K, V]) RemoveValue(k K, v V) (bool, error) {
	if x.vals.Compare(v, x.vals.Min()) == 0 {
		return x.Remove(k)
	}
	return x.set.Erase(Pair[K, V]{Key: k, Value: v})
}

// Get returns the value stored under k in a Unique index. When absent, it
// returns the minimum value sentinel and false. On a Multi index it fails
// with ErrMultiGet.
func (x *KeyedIndex[K, V]) Get(k K) (V, bool, error) {
	if x.mode == Multi {
		return x.vals.Min(), false, ErrMultiGet
	}

	p, found, err := x.first(k)
	if err != nil || !found {
		return x.vals.Min(), false, err
	}
	return p.Value, true, nil
}

// Iterate calls visit for each value of k in ascending order, or onEmpty
// (if non-nil) when there are none. Matches are collected before visit is
// called, so visit may modify the index. Iteration stops at the first error
// returned by visit.
func (x *KeyedIndex[K, V]) Iterate(k K, visit func(V) error, onEmpty func()) error {
	return x.IterateRange(k, k, visit, onEmpty)
}

// IterateRange is like Iterate, but visits the values of all keys between
// k1 and k2 (inclusive), ordered by key, then value.
func (x *KeyedIndex[K, V]) IterateRange(k1, k2 K, visit func(V) error, onEmpty func()) error {
	pairs, err := x.set.Range(
		Pair[K, V]{Key: k1, Value: x.vals.Min()},
		Pair[K, V]{Key: k2, Value: x.vals.Max()},
	)
	if err != nil {
		return err
	}

	if len(pairs) == 0 {
		if onEmpty != nil {
			onEmpty()
		}
		return nil
	}
	for _, p := range pairs {
		if err := visit(p.Value); err != nil {
			return err
		}
	}
	return nil
}

// Close persists the index and closes the file.
func (x *KeyedIndex[K, V]) Close() error { return x.set.Close() }

func (x *KeyedIndex[K, V]) first(k K) (Pair[K, V], bool, error) {
	iter := x.set.Search(
		Pair[K, V]{Key: k, Value: x.vals.Min()},
		Pair[K, V]{Key: k, Value: x.vals.Max()},
	)
	if iter.Next() {
		return iter.Value(), true, nil
	}
	return Pair[K, V]{}, false, iter.Err()
}

// --------------------------------------------------------------------

// Edit is an explicit commit guard for a record selected from a Unique
// index. Exactly one of Save or Discard takes effect; the other becomes a
// no-op. Typical use:
//
//	e, err := books.Edit(isbn)
//	if err != nil {
//		return err
//	}
//	defer e.Discard()
//
//	e.Value.Stock--
//	_, err = e.Save()
//	return err
type Edit[K, V any] struct {
	x *KeyedIndex[K, V]

	// Key and Value hold the record to be saved. Changing Key re-keys the
	// record on Save.
	Key   K
	Value V

	origKey   K
	origValue V
	found     bool
	done      bool
}

// Edit selects the record stored under k in a Unique index. The returned
// edit starts from the minimum value sentinel when k is absent.
func (x *KeyedIndex[K, V]) Edit(k K) (*Edit[K, V], error) {
	v, found, err := x.Get(k)
	if err != nil {
		return nil, err
	}
	return &Edit[K, V]{
		x:         x,
		Key:       k,
		Value:     v,
		origKey:   k,
		origValue: v,
		found:     found,
	}, nil
}

// Found is true when the selected key existed.
func (e *Edit[K, V]) Found() bool { return e.found }

// Save writes the record back, replacing the selected one. It returns false
// (and restores the original record) when a re-keyed record collides with
// an existing key. Once the edit was saved or discarded, Save is a no-op
// which returns false.
func (e *Edit[K, V]) Save() (bool, error) {
	if e.done {
		return false, nil
	}
	e.done = true

	if e.found {
		if _, err := e.x.set.Erase(Pair[K, V]{Key: e.origKey, Value: e.origValue}); err != nil {
			return false, err
		}
	}

	ok, err := e.x.Put(e.Key, e.Value)
	if err != nil {
		return false, err
	}
	if !ok && e.found {
		if _, err := e.x.set.Insert(Pair[K, V]{Key: e.origKey, Value: e.origValue}); err != nil {
			return false, err
		}
	}
	return ok, nil
}

// Discard drops pending changes.
func (e *Edit[K, V]) Discard() { e.done = true }
