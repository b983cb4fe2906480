package blockidx

import "encoding/binary"

const logHeaderSize = 16

// AppendLog is a persistent, append-only sequence of fixed-size records,
// iterable from the most recent record backwards.
type AppendLog[T any] struct {
	store *SlotStore
	codec Codec[T]

	last  int64 // offset of the most recent record
	count int64 // number of records ever appended

	buf []byte
}

// OpenAppendLog opens the log file at name, creating it when absent.
func OpenAppendLog[T any](name string, c Codec[T], o *Options) (*AppendLog[T], error) {
	store, err := OpenSlotStore(name, logHeaderSize, c.Size(), o)
	if err != nil {
		return nil, err
	}

	header, err := store.ReadHeader()
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return &AppendLog[T]{
		store: store,
		codec: c,
		last:  int64(binary.LittleEndian.Uint64(header[0:])),
		count: int64(binary.LittleEndian.Uint64(header[8:])),
		buf:   make([]byte, c.Size()),
	}, nil
}

// Len returns the number of records ever appended.
func (l *AppendLog[T]) Len() int { return int(l.count) }

// Append appends a record.
func (l *AppendLog[T]) Append(t T) error {
	if l.store == nil {
		return ErrClosed
	}
	if err := l.codec.Encode(l.buf, t); err != nil {
		return err
	}

	ref, err := l.store.Add(l.buf)
	if err != nil {
		return err
	}
	l.last = int64(ref)
	l.count++
	return nil
}

// Iterate visits the n most recent records, most recent first. Passing -1
// visits all of them. It fails with ErrCountExceeded if n is greater than
// Len(). Iteration stops at the first error returned by visit.
func (l *AppendLog[T]) Iterate(n int, visit func(T) error) error {
	if l.store == nil {
		return ErrClosed
	}
	if n == -1 {
		n = int(l.count)
	}
	if n < 0 || int64(n) > l.count {
		return ErrCountExceeded
	}

	step := int64(l.store.SlotSize())
	for i := 0; i < n; i++ {
		if err := l.visitAt(l.last-int64(i)*step, visit); err != nil {
			return err
		}
	}
	return nil
}

// Scan visits all records, oldest first.
func (l *AppendLog[T]) Scan(visit func(T) error) error {
	if l.store == nil {
		return ErrClosed
	}

	step := int64(l.store.SlotSize())
	first := l.last - (l.count-1)*step
	for i := int64(0); i < l.count; i++ {
		if err := l.visitAt(first+i*step, visit); err != nil {
			return err
		}
	}
	return nil
}

// Close persists the log header and closes the file.
func (l *AppendLog[T]) Close() error {
	if l.store == nil {
		return ErrClosed
	}

	store := l.store
	l.store = nil

	header := make([]byte, logHeaderSize)
	binary.LittleEndian.PutUint64(header[0:], uint64(l.last))
	binary.LittleEndian.PutUint64(header[8:], uint64(l.count))
	if err := store.WriteHeader(header); err != nil {
		_ = store.Close()
		return err
	}
	return store.Close()
}

func (l *AppendLog[T]) visitAt(pos int64, visit func(T) error) error {
	raw, err := l.store.Get(SlotRef(pos))
	if err != nil {
		return err
	}
	return visit(l.codec.Decode(raw))
}
