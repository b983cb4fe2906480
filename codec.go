package blockidx

import (
	"bytes"
	"cmp"
	"encoding/binary"
	"math"
	"strings"
)

// Codec describes the fixed-width binary encoding of T and its total order.
// All values of T occupy exactly Size() bytes on disk.
type Codec[T any] interface {
	// Size returns the encoded width in bytes.
	Size() int
	// Encode writes v into dst, which is exactly Size() bytes long.
	Encode(dst []byte, v T) error
	// Decode reads a value from src, which is exactly Size() bytes long.
	Decode(src []byte) T
	// Compare returns a negative number when a < b, a positive number
	// when a > b and zero otherwise.
	Compare(a, b T) int
}

// Bounded is a Codec with smallest and largest values, used as open range
// bounds.
type Bounded[T any] interface {
	Codec[T]
	Min() T
	Max() T
}

// --------------------------------------------------------------------

type uint64Codec struct{}

// Uint64 encodes uint64 values.
var Uint64 Bounded[uint64] = uint64Codec{}

func (uint64Codec) Size() int { return 8 }
func (uint64Codec) Encode(dst []byte, v uint64) error {
	binary.LittleEndian.PutUint64(dst, v)
	return nil
}
func (uint64Codec) Decode(src []byte) uint64 { return binary.LittleEndian.Uint64(src) }
func (uint64Codec) Compare(a, b uint64) int { return cmp.Compare(a, b) }
func (uint64Codec) Min() uint64 { return 0 }
func (uint64Codec) Max() uint64 { return math.MaxUint64 }

type int64Codec struct{}

// Int64 encodes int64 values.
var Int64 Bounded[int64] = int64Codec{}

func (int64Codec) Size() int { return 8 }
func (int64Codec) Encode(dst []byte, v int64) error {
	binary.LittleEndian.PutUint64(dst, uint64(v))
	return nil
}
func (int64Codec) Decode(src []byte) int64 { return int64(binary.LittleEndian.Uint64(src)) }
func (int64Codec) Compare(a, b int64) int { return cmp.Compare(a, b) }
func (int64Codec) Min() int64 { return math.MinInt64 }
func (int64Codec) Max() int64 { return math.MaxInt64 }

type int32Codec struct{}

// Int32 encodes int32 values.
var Int32 Bounded[int32] = int32Codec{}

func (int32Codec) Size() int { return 4 }
func (int32Codec) Encode(dst []byte, v int32) error {
	binary.LittleEndian.PutUint32(dst, uint32(v))
	return nil
}
func (int32Codec) Decode(src []byte) int32 { return int32(binary.LittleEndian.Uint32(src)) }
func (int32Codec) Compare(a, b int32) int { return cmp.Compare(a, b) }
func (int32Codec) Min() int32 { return math.MinInt32 }
func (int32Codec) Max() int32 { return math.MaxInt32 }

type float64Codec struct{}

// Float64 encodes float64 values. NaN cannot be encoded.
var Float64 Bounded[float64] = float64Codec{}

func (float64Codec) Size() int { return 8 }
func (float64Codec) Encode(dst []byte, v float64) error {
	if math.IsNaN(v) {
		return ErrInvalidValue
	}
	binary.LittleEndian.PutUint64(dst, math.Float64bits(v))
	return nil
}
func (float64Codec) Decode(src []byte) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(src))
}
func (float64Codec) Compare(a, b float64) int { return cmp.Compare(a, b) }
func (float64Codec) Min() float64 { return math.Inf(-1) }
func (float64Codec) Max() float64 { return math.Inf(1) }

// --------------------------------------------------------------------

type fixedString int

// FixedString returns a codec for strings of up to n bytes, stored NUL padded.
// Strings order bytewise; the empty string is the minimum, n 0xFF bytes the
// maximum. Strings containing NUL bytes cannot be encoded.
func FixedString(n int) Bounded[string] { return fixedString(n) }

func (c fixedString) Size() int { return int(c) }

func (c fixedString) Encode(dst []byte, v string) error {
	if len(v) > int(c) {
		return ErrValueTooLong
	}
	if strings.IndexByte(v, 0) >= 0 {
		return ErrInvalidValue
	}
	n := copy(dst, v)
	clear(dst[n:])
	return nil
}

func (c fixedString) Decode(src []byte) string {
	if n := bytes.IndexByte(src, 0); n >= 0 {
		src = src[:n]
	}
	return string(src)
}

func (fixedString) Compare(a, b string) int { return strings.Compare(a, b) }
func (fixedString) Min() string { return "" }
func (c fixedString) Max() string { return strings.Repeat("\xff", int(c)) }

// --------------------------------------------------------------------

// Pair is a key/value element, ordered by key, then by value.
type Pair[K, V any] struct {
	Key   K
	Value V
}

type pairCodec[K, V any] struct {
	k Codec[K]
	v Codec[V]
}

// PairCodec combines a key and a value codec into a lexicographically
// ordered pair codec.
func PairCodec[K, V any](k Codec[K], v Codec[V]) Codec[Pair[K, V]] {
	return pairCodec[K, V]{k: k, v: v}
}

func (c pairCodec[K, V]) Size() int { return c.k.Size() + c.v.Size() }

func (c pairCodec[K, V]) Encode(dst []byte, p Pair[K, V]) error {
	n := c.k.Size()
	if err := c.k.Encode(dst[:n], p.Key); err != nil {
		return err
	}
	return c.v.Encode(dst[n:], p.Value)
}

func (c pairCodec[K, V]) Decode(src []byte) Pair[K, V] {
	n := c.k.Size()
	return Pair[K, V]{Key: c.k.Decode(src[:n]), Value: c.v.Decode(src[n:])}
}

func (c pairCodec[K, V]) Compare(a, b Pair[K, V]) int {
	if n := c.k.Compare(a.Key, b.Key); n != 0 {
		return n
	}
	return c.v.Compare(a.Value, b.Value)
}
