package blockidx_test

import (
	"bytes"
	"errors"
	"math"
	"path/filepath"

	"github.com/bsm/blockidx"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("KeyedIndex", func() {
	var dir string

	withTempDir(&dir)

	open := func(name string, mode blockidx.Mode) *blockidx.KeyedIndex[string, int64] {
		x, err := blockidx.OpenKeyedIndex(filepath.Join(dir, name), mode, blockidx.FixedString(16), blockidx.Int64, &blockidx.Options{BlockCapacity: 4})
		Expect(err).NotTo(HaveOccurred())
		return x
	}

	values := func(x *blockidx.KeyedIndex[string, int64], k string) []int64 {
		var res []int64
		Expect(x.Iterate(k, func(v int64) error {
			res = append(res, v)
			return nil
		}, nil)).To(Succeed())
		return res
	}

	Describe("Unique", func() {
		var subject *blockidx.KeyedIndex[string, int64]

		BeforeEach(func() {
			subject = open("unique.dat", blockidx.Unique)
		})

		AfterEach(func() {
			_ = subject.Close()
		})

		It("should put/get", func() {
			Expect(subject.Mode()).To(Equal(blockidx.Unique))
			Expect(subject.Put("a", 1)).To(BeTrue())
			Expect(subject.Put("a", 2)).To(BeFalse())
			Expect(subject.Put("b", 3)).To(BeTrue())

			v, found, err := subject.Get("a")
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(BeTrue())
			Expect(v).To(Equal(int64(1)))

			v, found, err = subject.Get("c")
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(BeFalse())
			Expect(v).To(Equal(int64(math.MinInt64)))
		})

		It("should remove", func() {
			Expect(subject.Put("a", 1)).To(BeTrue())
			Expect(subject.Remove("a")).To(BeTrue())
			Expect(subject.Remove("a")).To(BeFalse())

			_, found, err := subject.Get("a")
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(BeFalse())
			Expect(subject.Put("a", 2)).To(BeTrue())
		})

		It("should remove exact values", func() {
			Expect(subject.Put("a", 1)).To(BeTrue())
			Expect(subject.RemoveValue("a", 2)).To(BeFalse())
			Expect(subject.RemoveValue("a", math.MinInt64)).To(BeTrue())
			Expect(subject.Set().NumBlocks()).To(Equal(0))
		})

		It("should iterate", func() {
			var empty int
			Expect(subject.Iterate("a", func(int64) error {
				return errors.New("unexpected")
			}, func() { empty++ })).To(Succeed())
			Expect(empty).To(Equal(1))

			Expect(subject.Put("a", 1)).To(BeTrue())
			Expect(values(subject, "a")).To(Equal([]int64{1}))
		})

		It("should persist", func() {
			for i, k := range []string{"d", "b", "a", "c", "e"} {
				Expect(subject.Put(k, int64(i))).To(BeTrue())
			}
			Expect(subject.Close()).To(Succeed())

			subject = open("unique.dat", blockidx.Unique)
			v, found, err := subject.Get("c")
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(BeTrue())
			Expect(v).To(Equal(int64(3)))
		})

		It("should edit records", func() {
			Expect(subject.Put("a", 10)).To(BeTrue())
			Expect(subject.Put("b", 20)).To(BeTrue())

			e, err := subject.Edit("a")
			Expect(err).NotTo(HaveOccurred())
			Expect(e.Found()).To(BeTrue())
			e.Value++
			Expect(e.Save()).To(BeTrue())
			e.Value++
			Expect(e.Save()).To(BeFalse())
			e.Discard()
			Expect(values(subject, "a")).To(Equal([]int64{11}))

			// re-key onto an existing key
			e, err = subject.Edit("a")
			Expect(err).NotTo(HaveOccurred())
			e.Key = "b"
			Expect(e.Save()).To(BeFalse())
			Expect(values(subject, "a")).To(Equal([]int64{11}))
			Expect(values(subject, "b")).To(Equal([]int64{20}))

			// re-key onto a free key
			e, err = subject.Edit("a")
			Expect(err).NotTo(HaveOccurred())
			e.Key = "c"
			Expect(e.Save()).To(BeTrue())
			Expect(values(subject, "a")).To(BeEmpty())
			Expect(values(subject, "c")).To(Equal([]int64{11}))
		})

		It("should discard edits", func() {
			Expect(subject.Put("a", 10)).To(BeTrue())

			e, err := subject.Edit("a")
			Expect(err).NotTo(HaveOccurred())
			e.Value = 99
			e.Discard()
			Expect(e.Save()).To(BeFalse())
			e.Discard()
			Expect(values(subject, "a")).To(Equal([]int64{10}))

			e, err = subject.Edit("x")
			Expect(err).NotTo(HaveOccurred())
			Expect(e.Found()).To(BeFalse())
			e.Value = 5
			Expect(e.Save()).To(BeTrue())
			Expect(values(subject, "x")).To(Equal([]int64{5}))
		})

		It("should reject invalid keys", func() {
			_, err := subject.Put("this key is too long", 1)
			Expect(err).To(MatchError(blockidx.ErrValueTooLong))
		})
	})

	Describe("Multi", func() {
		var subject *blockidx.KeyedIndex[string, int64]

		BeforeEach(func() {
			subject = open("multi.dat", blockidx.Multi)
		})

		AfterEach(func() {
			_ = subject.Close()
		})

		It("should put multiple values", func() {
			Expect(subject.Put("a", 2)).To(BeTrue())
			Expect(subject.Put("a", 1)).To(BeTrue())
			Expect(subject.Put("a", 2)).To(BeFalse())
			Expect(subject.Put("b", 3)).To(BeTrue())
			Expect(values(subject, "a")).To(Equal([]int64{1, 2}))
			Expect(values(subject, "b")).To(Equal([]int64{3}))
		})

		It("should not support Get", func() {
			_, _, err := subject.Get("a")
			Expect(err).To(MatchError(blockidx.ErrMultiGet))
			Expect(err).To(MatchError(blockidx.ErrContractViolation))

			_, err = subject.Edit("a")
			Expect(err).To(MatchError(blockidx.ErrMultiGet))
		})

		It("should remove exact pairs", func() {
			Expect(subject.Put("a", 1)).To(BeTrue())
			Expect(subject.Put("a", 2)).To(BeTrue())

			_, err := subject.Remove("a")
			Expect(err).To(MatchError(blockidx.ErrAmbiguousRemove))
			_, err = subject.RemoveValue("a", math.MinInt64)
			Expect(err).To(MatchError(blockidx.ErrAmbiguousRemove))

			Expect(subject.RemoveValue("a", 1)).To(BeTrue())
			Expect(subject.RemoveValue("a", 1)).To(BeFalse())
			Expect(values(subject, "a")).To(Equal([]int64{2}))
		})

		It("should iterate ranges", func() {
			for i, k := range []string{"c", "a", "b", "a", "d", "b"} {
				Expect(subject.Put(k, int64(i))).To(BeTrue())
			}

			var res []int64
			Expect(subject.IterateRange("a", "b", func(v int64) error {
				res = append(res, v)
				return nil
			}, nil)).To(Succeed())
			Expect(res).To(Equal([]int64{1, 3, 2, 5}))
		})

		It("should allow modifications while iterating", func() {
			for i := int64(1); i <= 10; i++ {
				Expect(subject.Put("a", i)).To(BeTrue())
			}

			Expect(subject.Iterate("a", func(v int64) error {
				if v%2 == 0 {
					_, err := subject.RemoveValue("a", v)
					return err
				}
				return nil
			}, nil)).To(Succeed())
			Expect(values(subject, "a")).To(Equal([]int64{1, 3, 5, 7, 9}))
		})

		It("should stop on visitor errors", func() {
			Expect(subject.Put("a", 1)).To(BeTrue())
			Expect(subject.Put("a", 2)).To(BeTrue())

			stop := errors.New("stop")
			var seen int
			Expect(subject.Iterate("a", func(int64) error {
				seen++
				return stop
			}, nil)).To(MatchError(stop))
			Expect(seen).To(Equal(1))
		})

		It("should snapshot and restore", func() {
			Expect(subject.Put("a", 1)).To(BeTrue())
			Expect(subject.Put("a", 2)).To(BeTrue())
			Expect(subject.Put("b", 1)).To(BeTrue())

			var buf bytes.Buffer
			Expect(subject.Snapshot(&buf, &blockidx.SnapshotOptions{Compression: blockidx.ZstdCompression})).To(Succeed())

			r, err := blockidx.NewSnapshotReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()), subject.Set().Codec())
			Expect(err).NotTo(HaveOccurred())

			unique := open("restored.dat", blockidx.Unique)
			defer unique.Close()
			Expect(unique.Restore(r)).To(Equal(2))
			Expect(values(unique, "a")).To(Equal([]int64{1}))
			Expect(values(unique, "b")).To(Equal([]int64{1}))
		})
	})
})
