// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package snapshot

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// CompressionTag identifies the compression applied to the snapshot
// payload. The tag is stored in the snapshot header, so decoders
// never guess.
type CompressionTag byte

const (
	// CompressionNone stores the payload as-is. Also the fallback
	// when the configured codec cannot shrink the payload.
	CompressionNone CompressionTag = 0

	// CompressionLZ4 is lz4 block compression: fast with moderate
	// ratios, the right default for frequent snapshots.
	CompressionLZ4 CompressionTag = 1

	// CompressionZstd is zstd at the default level: better ratios
	// than lz4 at higher CPU cost.
	CompressionZstd CompressionTag = 2
)

// String returns the config-file name of the tag.
func (t CompressionTag) String() string {
	switch t {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("compression(0x%02x)", byte(t))
	}
}

// ParseCompression converts a config-file name into a tag.
func ParseCompression(name string) (CompressionTag, error) {
	switch name {
	case "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("unknown compression %q (expected none, lz4, or zstd)", name)
	}
}

// errIncompressible reports that compression would not shrink the
// payload. The encoder falls back to CompressionNone.
var errIncompressible = errors.New("payload is incompressible")

// Shared zstd encoder/decoder. Both are safe for concurrent use;
// per-snapshot instances would waste the encoder's internal buffers.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("snapshot: initializing zstd encoder: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("snapshot: initializing zstd decoder: " + err.Error())
	}
}

// compressPayload compresses data with the requested codec. Returns
// errIncompressible if the result would be at least as large as the
// input; callers then store the payload uncompressed.
func compressPayload(data []byte, tag CompressionTag) ([]byte, error) {
	switch tag {
	case CompressionNone:
		return data, nil
	case CompressionLZ4:
		return compressLZ4(data)
	case CompressionZstd:
		compressed := zstdEncoder.EncodeAll(data, make([]byte, 0, len(data)))
		if len(compressed) >= len(data) {
			return nil, errIncompressible
		}
		return compressed, nil
	default:
		return nil, fmt.Errorf("unknown compression tag 0x%02x", byte(tag))
	}
}

func compressLZ4(data []byte) ([]byte, error) {
	bound := lz4.CompressBlockBound(len(data))
	compressed := make([]byte, bound)

	var compressor lz4.Compressor
	n, err := compressor.CompressBlock(data, compressed)
	if err != nil {
		return nil, fmt.Errorf("lz4 compression: %w", err)
	}
	// n == 0 means the block was incompressible.
	if n == 0 || n >= len(data) {
		return nil, errIncompressible
	}
	return compressed[:n], nil
}

// decompressPayload reverses compressPayload. uncompressedSize comes
// from the snapshot header and must match the decompressed output
// exactly; a mismatch means the header or payload was corrupted.
func decompressPayload(data []byte, tag CompressionTag, uncompressedSize int) ([]byte, error) {
	switch tag {
	case CompressionNone:
		if len(data) != uncompressedSize {
			return nil, fmt.Errorf("stored payload is %d bytes, header says %d", len(data), uncompressedSize)
		}
		return data, nil

	case CompressionLZ4:
		decompressed := make([]byte, uncompressedSize)
		n, err := lz4.UncompressBlock(data, decompressed)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompression: %w", err)
		}
		if n != uncompressedSize {
			return nil, fmt.Errorf("lz4 decompressed to %d bytes, header says %d", n, uncompressedSize)
		}
		return decompressed, nil

	case CompressionZstd:
		decompressed, err := zstdDecoder.DecodeAll(data, make([]byte, 0, uncompressedSize))
		if err != nil {
			return nil, fmt.Errorf("zstd decompression: %w", err)
		}
		if len(decompressed) != uncompressedSize {
			return nil, fmt.Errorf("zstd decompressed to %d bytes, header says %d", len(decompressed), uncompressedSize)
		}
		return decompressed, nil

	default:
		return nil, fmt.Errorf("unknown compression tag 0x%02x", byte(tag))
	}
}
