package blockidx

import (
	"sync"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// compressor compresses snapshot blocks. It keeps its scratch space across
// blocks and is not safe for concurrent use.
type compressor struct {
	c    Compression
	zenc *zstd.Encoder
	buf  []byte
}

func newCompressor(c Compression) (*compressor, error) {
	cc := &compressor{c: c}
	if c == ZstdCompression {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
		if err != nil {
			return nil, err
		}
		cc.zenc = enc
	}
	return cc, nil
}

// compress returns the compressed payload and its block codec. Payloads
// which do not shrink by at least 25% are returned plain.
func (cc *compressor) compress(plain []byte) ([]byte, byte, error) {
	limit := len(plain) - len(plain)/4

	switch cc.c {
	case SnappyCompression:
		cc.buf = snappy.Encode(cc.buf[:cap(cc.buf)], plain)
		if len(cc.buf) < limit {
			return cc.buf, blockSnappyCompression, nil
		}
	case ZstdCompression:
		cc.buf = cc.zenc.EncodeAll(plain, cc.buf[:0])
		if len(cc.buf) < limit {
			return cc.buf, blockZstdCompression, nil
		}
	case LZ4Compression:
		if n := lz4.CompressBlockBound(len(plain)); cap(cc.buf) < n {
			cc.buf = make([]byte, n)
		}
		n, err := lz4.CompressBlock(plain, cc.buf[:cap(cc.buf)], nil)
		if err != nil {
			return nil, 0, err
		}
		if n > 0 && n < limit {
			return cc.buf[:n], blockLZ4Compression, nil
		}
	}
	return plain, blockNoCompression, nil
}

func (cc *compressor) Close() error {
	if cc.zenc != nil {
		return cc.zenc.Close()
	}
	return nil
}

var zstdDecoder struct {
	once sync.Once
	dec  *zstd.Decoder
	err  error
}

// decompress decodes a payload of the given codec into a buffer of plainLen
// bytes.
func decompress(codec byte, payload []byte, plainLen int) ([]byte, error) {
	plain := fetchBuffer(plainLen)

	var err error
	switch codec {
	case blockSnappyCompression:
		plain, err = snappy.Decode(plain, payload)
	case blockZstdCompression:
		zstdDecoder.once.Do(func() {
			zstdDecoder.dec, zstdDecoder.err = zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		})
		if err = zstdDecoder.err; err == nil {
			plain, err = zstdDecoder.dec.DecodeAll(payload, plain[:0])
		}
	case blockLZ4Compression:
		var n int
		if n, err = lz4.UncompressBlock(payload, plain); err == nil {
			plain = plain[:n]
		}
	default:
		err = errBadCompression
	}

	if err != nil {
		releaseBuffer(plain)
		return nil, err
	}
	if len(plain) != plainLen {
		releaseBuffer(plain)
		return nil, ErrCorrupt
	}
	return plain, nil
}

// --------------------------------------------------------------------

var bufPool sync.Pool

func fetchBuffer(sz int) []byte {
	if v := bufPool.Get(); v != nil {
		if p := v.([]byte); sz <= cap(p) {
			return p[:sz]
		}
	}
	return make([]byte, sz)
}

func releaseBuffer(p []byte) {
	if cap(p) != 0 {
		bufPool.Put(p)
	}
}
