package blockidx_test

import (
	"bytes"
	"encoding/binary"

	"github.com/bsm/blockidx"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("SnapshotWriter", func() {
	var buf *bytes.Buffer
	var subject *blockidx.SnapshotWriter[uint64]

	BeforeEach(func() {
		buf = new(bytes.Buffer)
		subject = blockidx.NewSnapshotWriter(buf, blockidx.Uint64, &blockidx.SnapshotOptions{
			BlockSize:   128,
			Compression: blockidx.NoCompression,
		})
	})

	It("should write empty snapshots", func() {
		Expect(subject.Close()).To(Succeed())
		Expect(buf.Len()).To(Equal(24))
		Expect(buf.Bytes()[16:]).To(Equal([]byte("blkidxs\x01")))
		Expect(subject.Close()).To(MatchError(blockidx.ErrClosed))
	})

	It("should write blocks", func() {
		for i := uint64(0); i < 100; i++ {
			Expect(subject.Append(i * 4)).To(Succeed())
		}
		Expect(subject.Close()).To(Succeed())

		// 7 blocks of up to 16 plain elements plus trailers, 7 index entries
		// and the footer
		Expect(buf.Len()).To(Equal(100*8 + 7*9 + 7*16 + 24))

		raw := buf.Bytes()
		footer := raw[len(raw)-24:]
		Expect(binary.LittleEndian.Uint64(footer[0:])).To(Equal(uint64(100*8 + 7*9)))
		Expect(binary.LittleEndian.Uint64(footer[8:])).To(Equal(uint64(100)))

		// first block trailer
		trailer := raw[128 : 128+9]
		Expect(binary.LittleEndian.Uint32(trailer[0:])).To(Equal(uint32(128)))
		Expect(trailer[4]).To(Equal(byte(0)))
	})

	It("should reject out-of-order appends", func() {
		Expect(subject.Append(8)).To(Succeed())
		Expect(subject.Append(8)).To(MatchError(`blockidx: attempted an out-of-order append`))
		Expect(subject.Append(4)).To(MatchError(`blockidx: attempted an out-of-order append`))
		Expect(subject.Append(9)).To(Succeed())
	})

	It("should compress", func() {
		plain := new(bytes.Buffer)
		Expect(seedSnapshot(plain, 1000, &blockidx.SnapshotOptions{Compression: blockidx.NoCompression})).To(Succeed())

		for _, c := range []blockidx.Compression{
			blockidx.SnappyCompression,
			blockidx.ZstdCompression,
			blockidx.LZ4Compression,
		} {
			compressed := new(bytes.Buffer)
			Expect(seedSnapshot(compressed, 1000, &blockidx.SnapshotOptions{Compression: c})).To(Succeed())
			Expect(compressed.Len()).To(BeNumerically("<", plain.Len()*3/4), "codec %d", c)
		}
	})

	It("should release resources when writes fail", func() {
		w := blockidx.NewSnapshotWriter(failingWriter{}, blockidx.Uint64, &blockidx.SnapshotOptions{
			Compression: blockidx.ZstdCompression,
		})
		Expect(w.Append(1)).To(Succeed())
		Expect(w.Close()).To(MatchError(errWriteFailed))
		Expect(w.Close()).To(MatchError(blockidx.ErrClosed))
		Expect(w.Append(2)).To(MatchError(blockidx.ErrClosed))
	})

	It("should reject invalid elements", func() {
		w := blockidx.NewSnapshotWriter(new(bytes.Buffer), blockidx.FixedString(2), nil)
		Expect(w.Append("abc")).To(MatchError(blockidx.ErrValueTooLong))
		Expect(w.Append("ab")).To(Succeed())
		Expect(w.Close()).To(Succeed())
	})
})
