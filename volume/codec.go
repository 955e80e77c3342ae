package volume

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec identifies the per-block compression algorithm.
type Codec uint8

const (
	// CodecNone stores blocks uncompressed.
	CodecNone Codec = 0
	// CodecLZ4 favors decode speed; the default for interactive streaming.
	CodecLZ4 Codec = 1
	// CodecZSTD favors ratio; suited to cold datasets on object storage.
	CodecZSTD Codec = 2
)

func (c Codec) String() string {
	switch c {
	case CodecNone:
		return "none"
	case CodecLZ4:
		return "lz4"
	case CodecZSTD:
		return "zstd"
	default:
		return fmt.Sprintf("codec(%d)", uint8(c))
	}
}

// ZSTD coder pools: encoders and decoders are expensive to construct and
// are reused across decode workers.
var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

// compressBlock compresses raw with the requested codec. It returns the
// stored payload and the codec actually used: incompressible blocks fall
// back to CodecNone rather than growing.
func compressBlock(raw []byte, codec Codec) ([]byte, Codec, error) {
	if codec == CodecNone || len(raw) == 0 {
		return raw, CodecNone, nil
	}

	switch codec {
	case CodecLZ4:
		dst := make([]byte, lz4.CompressBlockBound(len(raw)))
		var c lz4.Compressor
		n, err := c.CompressBlock(raw, dst)
		if err != nil {
			return nil, 0, err
		}
		if n == 0 || n >= len(raw) {
			return raw, CodecNone, nil
		}
		return dst[:n], CodecLZ4, nil

	case CodecZSTD:
		enc := getZstdEncoder()
		compressed := enc.EncodeAll(raw, nil)
		zstdEncoderPool.Put(enc)
		if len(compressed) >= len(raw) {
			return raw, CodecNone, nil
		}
		return compressed, CodecZSTD, nil

	default:
		return nil, 0, fmt.Errorf("volume: unknown codec %d", codec)
	}
}

// decompressBlock expands a stored payload to rawLen bytes.
func decompressBlock(stored []byte, codec Codec, rawLen int) ([]byte, error) {
	switch codec {
	case CodecNone:
		if len(stored) != rawLen {
			return nil, fmt.Errorf("volume: stored size %d != raw size %d", len(stored), rawLen)
		}
		raw := make([]byte, rawLen)
		copy(raw, stored)
		return raw, nil

	case CodecLZ4:
		raw := make([]byte, rawLen)
		n, err := lz4.UncompressBlock(stored, raw)
		if err != nil {
			return nil, fmt.Errorf("volume: lz4 decode: %w", err)
		}
		if n != rawLen {
			return nil, fmt.Errorf("volume: lz4 decoded %d bytes, want %d", n, rawLen)
		}
		return raw, nil

	case CodecZSTD:
		dec := getZstdDecoder()
		raw, err := dec.DecodeAll(stored, make([]byte, 0, rawLen))
		zstdDecoderPool.Put(dec)
		if err != nil {
			return nil, fmt.Errorf("volume: zstd decode: %w", err)
		}
		if len(raw) != rawLen {
			return nil, fmt.Errorf("volume: zstd decoded %d bytes, want %d", len(raw), rawLen)
		}
		return raw, nil

	default:
		return nil, fmt.Errorf("volume: unknown codec %d", codec)
	}
}
