// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"encoding/binary"
	"fmt"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// DefaultMinCompressSize is the smallest payload the codec tries to
// compress. Anything smaller rarely shrinks enough to pay for the
// length prefix.
const DefaultMinCompressSize = 32

// compressedSizePrefix is the uint32 uncompressed length that starts
// every compressed payload.
const compressedSizePrefix = 4

// maxUncompressedSize caps the uncompressed length a peer may claim.
// A larger claim is treated as a corrupt payload.
const maxUncompressedSize = 256 << 20

// Compression selects the payload compression algorithm. Both
// endpoints must use the same algorithm; the frame only says whether a
// payload is compressed, not how.
type Compression int

const (
	// CompressionLZ4 compresses with LZ4 block format. The default.
	CompressionLZ4 Compression = iota

	// CompressionZstd compresses with Zstandard at its fastest level.
	CompressionZstd

	// CompressionNone never compresses outgoing payloads. Compressed
	// incoming payloads are still decoded with LZ4.
	CompressionNone
)

func (c Compression) String() string {
	switch c {
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	case CompressionNone:
		return "none"
	default:
		return fmt.Sprintf("Compression(%d)", int(c))
	}
}

// ParseCompression parses "lz4", "zstd", or "none". The empty string
// selects LZ4.
func ParseCompression(name string) (Compression, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	case "none", "off":
		return CompressionNone, nil
	default:
		return 0, fmt.Errorf("unknown compression %q (want lz4, zstd, or none)", name)
	}
}

// The zstd coders are shared by every codec in the process. EncodeAll
// and DecodeAll are safe for concurrent use.
var (
	zstdEncoder = sync.OnceValues(func() (*zstd.Encoder, error) {
		return zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.SpeedFastest),
			zstd.WithEncoderConcurrency(1))
	})
	zstdDecoder = sync.OnceValues(func() (*zstd.Decoder, error) {
		return zstd.NewReader(nil,
			zstd.WithDecoderConcurrency(1),
			zstd.WithDecoderMaxMemory(maxUncompressedSize))
	})
)

// compressor holds per-codec compression state. LZ4's hash table is
// reused across calls, so a compressor belongs to one goroutine.
type compressor struct {
	algorithm Compression
	lz4       lz4.Compressor
	scratch   []byte
}

// compress returns the compressed form of payload (length prefix
// included) and true, or false if the algorithm is disabled, failed,
// or did not produce something strictly smaller. The returned slice is
// valid until the next call.
func (c *compressor) compress(payload []byte) ([]byte, bool) {
	switch c.algorithm {
	case CompressionLZ4:
		bound := compressedSizePrefix + lz4.CompressBlockBound(len(payload))
		if cap(c.scratch) < bound {
			c.scratch = make([]byte, bound)
		}
		c.scratch = c.scratch[:bound]
		written, err := c.lz4.CompressBlock(payload, c.scratch[compressedSizePrefix:])
		if err != nil || written == 0 {
			return nil, false
		}
		c.scratch = c.scratch[:compressedSizePrefix+written]

	case CompressionZstd:
		encoder, err := zstdEncoder()
		if err != nil {
			return nil, false
		}
		c.scratch = append(c.scratch[:0], 0, 0, 0, 0)
		c.scratch = encoder.EncodeAll(payload, c.scratch)

	default:
		return nil, false
	}

	binary.BigEndian.PutUint32(c.scratch, uint32(len(payload)))
	if len(c.scratch) >= len(payload) {
		return nil, false
	}
	return c.scratch, true
}

// decompress decodes a compressed payload into the slice returned by
// resize, which is called with the claimed uncompressed length. Any
// corruption is an error; the caller treats it as an empty payload.
func (c *compressor) decompress(compressed []byte, resize func(int) []byte) error {
	if len(compressed) < compressedSizePrefix {
		return fmt.Errorf("compressed payload of %d bytes is shorter than its length prefix", len(compressed))
	}
	size := binary.BigEndian.Uint32(compressed)
	if size > maxUncompressedSize {
		return fmt.Errorf("claimed uncompressed size %d exceeds limit %d", size, maxUncompressedSize)
	}
	body := compressed[compressedSizePrefix:]
	dst := resize(int(size))

	if c.algorithm == CompressionZstd {
		decoder, err := zstdDecoder()
		if err != nil {
			return err
		}
		decoded, err := decoder.DecodeAll(body, dst[:0])
		if err != nil {
			return fmt.Errorf("zstd: %w", err)
		}
		if len(decoded) != int(size) {
			return fmt.Errorf("zstd: decoded %d bytes, prefix claims %d", len(decoded), size)
		}
		copy(dst, decoded)
		return nil
	}

	read, err := lz4.UncompressBlock(body, dst)
	if err != nil {
		return fmt.Errorf("lz4: %w", err)
	}
	if read != int(size) {
		return fmt.Errorf("lz4: decoded %d bytes, prefix claims %d", read, size)
	}
	return nil
}
