package blockidx

import (
	"errors"
	"fmt"
)

// refSize is the width of a slot reference and of the free-list head.
const refSize = 8

var magic = []byte{98, 108, 107, 105, 100, 120, 115, 1}

const (
	blockNoCompression     = 0
	blockSnappyCompression = 1
	blockZstdCompression   = 2
	blockLZ4Compression    = 3
)

var (
	// ErrClosed is returned when a closed store, index or log is used.
	ErrClosed = errors.New("blockidx: is closed")
	// ErrIndexFull is returned when a new element would need a leaf block
	// beyond the capacity of the index block.
	ErrIndexFull = errors.New("blockidx: index block is full")
	// ErrCorrupt is returned when a file does not have the expected shape.
	ErrCorrupt = errors.New("blockidx: corrupt file")
	// ErrValueTooLong is returned when a value exceeds its fixed width.
	ErrValueTooLong = errors.New("blockidx: value exceeds fixed width")
	// ErrInvalidValue is returned when a value cannot be encoded.
	ErrInvalidValue = errors.New("blockidx: value cannot be encoded")
	// ErrAlreadyOpen is returned by a Catalog when a name is opened twice.
	ErrAlreadyOpen = errors.New("blockidx: name is already open")
	// ErrBadChecksum is returned when a snapshot block fails verification.
	ErrBadChecksum = errors.New("blockidx: bad block checksum")
	// ErrBadMagic is returned when a snapshot footer is not recognised.
	ErrBadMagic = errors.New("blockidx: bad magic byte sequence")
)

var (
	errBadCompression = errors.New("blockidx: bad compression codec")
	errReleased       = errors.New("blockidx: iterator was released")
)

// ErrContractViolation is matched (via errors.Is) by all errors signalling
// caller misuse. They are never retried internally.
var ErrContractViolation = errors.New("blockidx: contract violation")

type contractError string

func (e contractError) Error() string { return "blockidx: " + string(e) }
func (e contractError) Is(target error) bool { return target == ErrContractViolation }

// Contract violations.
var (
	ErrInvalidRef      error = contractError("invalid slot reference")
	ErrDoubleRemove    error = contractError("slot is already free")
	ErrRecordSize      error = contractError("record size mismatch")
	ErrAmbiguousRemove error = contractError("ambiguous remove, a value is required on a multi index")
	ErrMultiGet        error = contractError("get is not supported on a multi index, use Iterate")
	ErrCountExceeded   error = contractError("count exceeds log length")
	ErrInvalidName     error = contractError("invalid catalog name")
)

// IOError wraps a failed filesystem operation.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("blockidx: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// --------------------------------------------------------------------

// Compression is the snapshot compression codec.
type Compression byte

func (c Compression) isValid() bool {
	return c >= SnappyCompression && c < unknownCompression
}

// Supported compression codecs
const (
	SnappyCompression Compression = iota
	NoCompression
	ZstdCompression
	LZ4Compression
	unknownCompression
)
