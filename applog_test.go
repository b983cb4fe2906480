package blockidx_test

import (
	"errors"
	"path/filepath"

	"github.com/bsm/blockidx"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("AppendLog", func() {
	var dir, name string
	var subject *blockidx.AppendLog[int64]

	withTempDir(&dir)

	open := func() {
		var err error
		subject, err = blockidx.OpenAppendLog(name, blockidx.Int64, nil)
		Expect(err).NotTo(HaveOccurred())
	}

	iterate := func(n int) ([]int64, error) {
		var res []int64
		err := subject.Iterate(n, func(v int64) error {
			res = append(res, v)
			return nil
		})
		return res, err
	}

	scan := func() []int64 {
		var res []int64
		Expect(subject.Scan(func(v int64) error {
			res = append(res, v)
			return nil
		})).To(Succeed())
		return res
	}

	BeforeEach(func() {
		name = filepath.Join(dir, "log.dat")
		open()
	})

	AfterEach(func() {
		_ = subject.Close()
	})

	It("should init", func() {
		Expect(subject.Len()).To(Equal(0))
		Expect(iterate(-1)).To(BeEmpty())
		Expect(iterate(0)).To(BeEmpty())
		Expect(scan()).To(BeEmpty())
	})

	It("should iterate most recent first", func() {
		for _, v := range []int64{10, 20, 30} {
			Expect(subject.Append(v)).To(Succeed())
		}
		Expect(subject.Len()).To(Equal(3))

		Expect(iterate(2)).To(Equal([]int64{30, 20}))
		Expect(iterate(-1)).To(Equal([]int64{30, 20, 10}))
		Expect(scan()).To(Equal([]int64{10, 20, 30}))
	})

	It("should reject counts beyond the length", func() {
		Expect(subject.Append(1)).To(Succeed())

		_, err := iterate(2)
		Expect(err).To(MatchError(blockidx.ErrCountExceeded))
		Expect(err).To(MatchError(blockidx.ErrContractViolation))

		_, err = iterate(-2)
		Expect(err).To(MatchError(blockidx.ErrCountExceeded))
	})

	It("should stop on visitor errors", func() {
		Expect(subject.Append(1)).To(Succeed())
		Expect(subject.Append(2)).To(Succeed())

		stop := errors.New("stop")
		var seen []int64
		Expect(subject.Iterate(-1, func(v int64) error {
			seen = append(seen, v)
			return stop
		})).To(MatchError(stop))
		Expect(seen).To(Equal([]int64{2}))
	})

	It("should persist", func() {
		Expect(subject.Append(1)).To(Succeed())
		Expect(subject.Append(2)).To(Succeed())
		Expect(subject.Close()).To(Succeed())
		Expect(fileSize(name)).To(Equal(int64(16 + 8 + 2*8)))

		open()
		Expect(subject.Len()).To(Equal(2))
		Expect(subject.Append(3)).To(Succeed())
		Expect(iterate(-1)).To(Equal([]int64{3, 2, 1}))
		Expect(scan()).To(Equal([]int64{1, 2, 3}))
	})

	It("should close", func() {
		Expect(subject.Close()).To(Succeed())
		Expect(subject.Close()).To(MatchError(blockidx.ErrClosed))
		Expect(subject.Append(1)).To(MatchError(blockidx.ErrClosed))
		Expect(subject.Scan(func(int64) error { return nil })).To(MatchError(blockidx.ErrClosed))
	})
})
