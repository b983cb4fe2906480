package blockidx

import (
	"encoding/binary"
	"errors"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"github.com/RoaringBitmap/roaring/v2"
)

// SlotRef is the stable file offset of a slot.
type SlotRef int64

// SlotStore stores fixed-size records in slots of a single file and reuses
// the slots of removed records through an intrusive free list.
//
// A freed slot holds the offset of the next freed slot. The head of the list
// is kept right behind the header; a head at or beyond the end of the file is
// the growth point where fresh slots are appended.
type SlotStore struct {
	f    *os.File
	name string
	log  *slog.Logger

	headerSize int
	recordSize int
	slotSize   int

	size int64 // current file size
	head int64 // free-list head
	free *roaring.Bitmap

	tmp []byte // scratch buffer, one slot wide
}

// OpenSlotStore opens the store at name, creating it when absent. Every
// record written to the store must be exactly recordSize bytes long, every
// header headerSize bytes.
func OpenSlotStore(name string, headerSize, recordSize int, o *Options) (*SlotStore, error) {
	o = o.norm()

	slotSize := recordSize
	if slotSize < refSize {
		slotSize = refSize
	}

	if _, err := os.Stat(name); errors.Is(err, fs.ErrNotExist) {
		if err := initSlotFile(name, headerSize, o.Perm); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, &IOError{Op: "stat", Path: name, Err: err}
	}

	f, err := os.OpenFile(name, os.O_RDWR, o.Perm)
	if err != nil {
		return nil, &IOError{Op: "open", Path: name, Err: err}
	}

	s := &SlotStore{
		f:          f,
		name:       name,
		log:        o.Logger.With("file", name),
		headerSize: headerSize,
		recordSize: recordSize,
		slotSize:   slotSize,
		free:       roaring.New(),
		tmp:        make([]byte, slotSize),
	}
	if err := s.attach(); err != nil {
		_ = f.Close()
		return nil, err
	}

	s.log.Debug("slot store opened", "size", s.size, "free", s.free.GetCardinality())
	return s, nil
}

func initSlotFile(name string, headerSize int, perm os.FileMode) error {
	if dir := filepath.Dir(name); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return &IOError{Op: "mkdir", Path: dir, Err: err}
		}
	}

	buf := make([]byte, headerSize+refSize)
	binary.LittleEndian.PutUint64(buf[headerSize:], uint64(headerSize+refSize))
	if err := os.WriteFile(name, buf, perm); err != nil {
		return &IOError{Op: "create", Path: name, Err: err}
	}
	return nil
}

// attach reads the file size and the free-list head, then walks the free list
// once to record which slots are free.
func (s *SlotStore) attach() error {
	fi, err := s.f.Stat()
	if err != nil {
		return &IOError{Op: "stat", Path: s.name, Err: err}
	}
	s.size = fi.Size()
	if s.size < s.dataStart() {
		return ErrCorrupt
	}

	if err := s.readAt(s.tmp[:refSize], int64(s.headerSize)); err != nil {
		return err
	}
	s.head = int64(binary.LittleEndian.Uint64(s.tmp))

	for pos := s.head; pos < s.size; {
		n, ok := s.slotNo(pos)
		if !ok || s.free.Contains(n) {
			return ErrCorrupt
		}
		s.free.Add(n)

		if err := s.readAt(s.tmp[:refSize], pos); err != nil {
			return err
		}
		pos = int64(binary.LittleEndian.Uint64(s.tmp))
	}
	return nil
}

// Name returns the file name.
func (s *SlotStore) Name() string { return s.name }

// SlotSize returns the width of a slot in bytes.
func (s *SlotStore) SlotSize() int { return s.slotSize }

// NumFree returns the number of reclaimed slots awaiting reuse.
func (s *SlotStore) NumFree() int { return int(s.free.GetCardinality()) }

// ReadHeader reads the whole header.
func (s *SlotStore) ReadHeader() ([]byte, error) {
	if s.f == nil {
		return nil, ErrClosed
	}

	buf := make([]byte, s.headerSize)
	if err := s.readAt(buf, 0); err != nil {
		return nil, err
	}
	return buf, nil
}

// WriteHeader replaces the whole header.
func (s *SlotStore) WriteHeader(header []byte) error {
	if s.f == nil {
		return ErrClosed
	}
	if len(header) != s.headerSize {
		return ErrRecordSize
	}
	return s.writeAt(header, 0)
}

// Add stores a record in the first free slot and returns its reference.
func (s *SlotStore) Add(record []byte) (SlotRef, error) {
	if s.f == nil {
		return 0, ErrClosed
	}
	if len(record) != s.recordSize {
		return 0, ErrRecordSize
	}

	pos := s.head
	next := pos + int64(s.slotSize)
	if pos < s.size {
		if err := s.readAt(s.tmp[:refSize], pos); err != nil {
			return 0, err
		}
		next = int64(binary.LittleEndian.Uint64(s.tmp))
	}

	if err := s.writeSlot(pos, record); err != nil {
		return 0, err
	}
	if err := s.setHead(next); err != nil {
		return 0, err
	}

	if n, ok := s.slotNo(pos); ok {
		s.free.Remove(n)
	}
	return SlotRef(pos), nil
}

// Set overwrites the record at a live reference.
func (s *SlotStore) Set(ref SlotRef, record []byte) error {
	if s.f == nil {
		return ErrClosed
	}
	if len(record) != s.recordSize {
		return ErrRecordSize
	}
	if err := s.checkLive(ref); err != nil {
		return err
	}
	return s.writeSlot(int64(ref), record)
}

// Get reads the record at a live reference.
func (s *SlotStore) Get(ref SlotRef) ([]byte, error) {
	if s.f == nil {
		return nil, ErrClosed
	}
	if err := s.checkLive(ref); err != nil {
		return nil, err
	}

	buf := make([]byte, s.recordSize)
	if err := s.readAt(buf, int64(ref)); err != nil {
		return nil, err
	}
	return buf, nil
}

// Remove frees the slot at ref and makes it the head of the free list.
// Removing a reference twice fails with ErrDoubleRemove.
func (s *SlotStore) Remove(ref SlotRef) error {
	if s.f == nil {
		return ErrClosed
	}

	n, ok := s.slotNo(int64(ref))
	if !ok {
		return ErrInvalidRef
	}
	if s.free.Contains(n) {
		return ErrDoubleRemove
	}

	clear(s.tmp)
	binary.LittleEndian.PutUint64(s.tmp, uint64(s.head))
	if err := s.writeAt(s.tmp, int64(ref)); err != nil {
		return err
	}
	if err := s.setHead(int64(ref)); err != nil {
		return err
	}

	s.free.Add(n)
	return nil
}

// Close closes the underlying file.
func (s *SlotStore) Close() error {
	if s.f == nil {
		return ErrClosed
	}

	err := s.f.Close()
	s.f = nil
	if err != nil {
		return &IOError{Op: "close", Path: s.name, Err: err}
	}
	return nil
}

func (s *SlotStore) dataStart() int64 { return int64(s.headerSize + refSize) }

// slotNo returns the slot number of an offset within the file.
func (s *SlotStore) slotNo(pos int64) (uint32, bool) {
	off := pos - s.dataStart()
	if off < 0 || off%int64(s.slotSize) != 0 || pos+int64(s.slotSize) > s.size {
		return 0, false
	}
	if n := off / int64(s.slotSize); n <= math.MaxUint32 {
		return uint32(n), true
	}
	return 0, false
}

func (s *SlotStore) checkLive(ref SlotRef) error {
	n, ok := s.slotNo(int64(ref))
	if !ok || s.free.Contains(n) {
		return ErrInvalidRef
	}
	return nil
}

func (s *SlotStore) setHead(head int64) error {
	binary.LittleEndian.PutUint64(s.tmp[:refSize], uint64(head))
	if err := s.writeAt(s.tmp[:refSize], int64(s.headerSize)); err != nil {
		return err
	}
	s.head = head
	return nil
}

func (s *SlotStore) writeSlot(pos int64, record []byte) error {
	n := copy(s.tmp, record)
	clear(s.tmp[n:])
	return s.writeAt(s.tmp, pos)
}

func (s *SlotStore) readAt(p []byte, pos int64) error {
	if _, err := s.f.ReadAt(p, pos); err != nil {
		return &IOError{Op: "read", Path: s.name, Err: err}
	}
	return nil
}

func (s *SlotStore) writeAt(p []byte, pos int64) error {
	if _, err := s.f.WriteAt(p, pos); err != nil {
		return &IOError{Op: "write", Path: s.name, Err: err}
	}
	if end := pos + int64(len(p)); end > s.size {
		s.size = end
	}
	return nil
}
