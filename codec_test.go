package blockidx_test

import (
	"math"

	"github.com/bsm/blockidx"
	. "github.com/onsi/ginkgo"
	"github.com/onsi/ginkgo/extensions/table"
	. "github.com/onsi/gomega"
)

var _ = Describe("Codec", func() {
	table.DescribeTable("integers",
		func(c blockidx.Bounded[int64], v int64) {
			buf := make([]byte, c.Size())
			Expect(c.Encode(buf, v)).To(Succeed())
			Expect(c.Decode(buf)).To(Equal(v))
			Expect(c.Compare(c.Min(), v)).To(BeNumerically("<=", 0))
			Expect(c.Compare(c.Max(), v)).To(BeNumerically(">=", 0))
		},
		table.Entry("zero", blockidx.Int64, int64(0)),
		table.Entry("negative", blockidx.Int64, int64(-42)),
		table.Entry("min", blockidx.Int64, int64(math.MinInt64)),
		table.Entry("max", blockidx.Int64, int64(math.MaxInt64)),
	)

	It("should encode uint64 and int32", func() {
		buf := make([]byte, 8)
		Expect(blockidx.Uint64.Encode(buf, 1<<40)).To(Succeed())
		Expect(blockidx.Uint64.Decode(buf)).To(Equal(uint64(1 << 40)))
		Expect(blockidx.Uint64.Compare(3, 4)).To(Equal(-1))

		Expect(blockidx.Int32.Size()).To(Equal(4))
		Expect(blockidx.Int32.Encode(buf[:4], -7)).To(Succeed())
		Expect(blockidx.Int32.Decode(buf[:4])).To(Equal(int32(-7)))
	})

	It("should reject NaN floats", func() {
		buf := make([]byte, 8)
		Expect(blockidx.Float64.Encode(buf, math.NaN())).To(MatchError(blockidx.ErrInvalidValue))
		Expect(blockidx.Float64.Encode(buf, -1.5)).To(Succeed())
		Expect(blockidx.Float64.Decode(buf)).To(Equal(-1.5))
		Expect(blockidx.Float64.Compare(blockidx.Float64.Min(), -1e300)).To(Equal(-1))
	})

	It("should encode fixed strings", func() {
		c := blockidx.FixedString(6)
		buf := make([]byte, 6)
		Expect(c.Size()).To(Equal(6))

		Expect(c.Encode(buf, "abc")).To(Succeed())
		Expect(buf).To(Equal([]byte{'a', 'b', 'c', 0, 0, 0}))
		Expect(c.Decode(buf)).To(Equal("abc"))

		Expect(c.Encode(buf, "abcdef")).To(Succeed())
		Expect(c.Decode(buf)).To(Equal("abcdef"))

		Expect(c.Encode(buf, "abcdefg")).To(MatchError(blockidx.ErrValueTooLong))
		Expect(c.Encode(buf, "a\x00b")).To(MatchError(blockidx.ErrInvalidValue))

		Expect(c.Compare("abc", "abd")).To(Equal(-1))
		Expect(c.Compare(c.Min(), "")).To(Equal(0))
		Expect(c.Compare(c.Max(), "zzzzzz")).To(Equal(1))
	})

	It("should order pairs by key, then value", func() {
		c := blockidx.PairCodec[string, int64](blockidx.FixedString(4), blockidx.Int64)
		Expect(c.Size()).To(Equal(12))

		a := blockidx.Pair[string, int64]{Key: "b", Value: 1}
		b := blockidx.Pair[string, int64]{Key: "b", Value: 2}
		z := blockidx.Pair[string, int64]{Key: "a", Value: 9}
		Expect(c.Compare(a, b)).To(Equal(-1))
		Expect(c.Compare(z, a)).To(Equal(-1))
		Expect(c.Compare(a, a)).To(Equal(0))

		buf := make([]byte, c.Size())
		Expect(c.Encode(buf, b)).To(Succeed())
		Expect(c.Decode(buf)).To(Equal(b))
		Expect(c.Encode(buf, blockidx.Pair[string, int64]{Key: "toolong"})).To(MatchError(blockidx.ErrValueTooLong))
	})
})
