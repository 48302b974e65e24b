// Copyright 2026 The Agentdeck Authors
// SPDX-License-Identifier: Apache-2.0

// Package journal is a flight recorder for push-channel traffic. A
// Writer appends raw frames as CBOR records batched into compressed,
// checksummed segments; a Reader streams them back for replay. Records
// keep the wire bytes untouched so a replay exercises the same decode
// path as a live connection. Record encoding goes through lib/codec,
// so identical records always produce identical bytes.
package journal

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/zeebo/blake3"
)

// Record is one captured frame with its arrival context.
type Record struct {
	// Time is when the frame arrived, unix milliseconds.
	Time int64 `cbor:"time"`
	// Endpoint and Directory identify the channel the frame came from.
	Endpoint  string `cbor:"endpoint"`
	Directory string `cbor:"directory"`
	// Frame is the raw wire payload, exactly as received.
	Frame []byte `cbor:"frame"`
}

// fileMagic opens every journal file: "agentdeck journal", format 1.
const fileMagic = "adjl1"

// segmentHeaderSize is the fixed per-segment prefix: codec tag (1),
// uncompressed length (4, big endian), payload length (4, big endian),
// BLAKE3 checksum of the uncompressed bytes (32).
const segmentHeaderSize = 1 + 4 + 4 + 32

// maxSegmentBytes bounds both segment lengths when reading. Way above
// anything the writer produces; a header claiming more is corruption,
// not data.
const maxSegmentBytes = 64 << 20

// segmentDomainKey is the BLAKE3 key for segment checksums: the ASCII
// domain name, zero-padded to 32 bytes. Keyed hashing separates journal
// checksums from every other BLAKE3 use; readable ASCII keeps the key
// inspectable in hex dumps.
var segmentDomainKey = [32]byte{
	'a', 'g', 'e', 'n', 't', 'd', 'e', 'c', 'k', ':', 'j', 'o', 'u', 'r', 'n', 'a',
	'l', ':', 's', 'e', 'g', 'm', 'e', 'n', 't', ':', 'v', '1', 0, 0, 0, 0,
}

// checksum computes the segment-domain BLAKE3 keyed hash. Checksums
// cover the uncompressed bytes so they hold across codec changes.
func checksum(data []byte) [32]byte {
	hasher, err := blake3.NewKeyed(segmentDomainKey[:])
	if err != nil {
		panic("journal: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(data)
	var sum [32]byte
	copy(sum[:], hasher.Sum(nil))
	return sum
}

// Codec identifies a segment's compression algorithm. The values are
// format constants stored in segment headers; changing them breaks
// existing journals.
type Codec uint8

const (
	// CodecNone stores segments uncompressed. Also the automatic
	// fallback when compression does not shrink a segment.
	CodecNone Codec = 0
	// CodecLZ4 is LZ4 block compression: fast, modest ratio.
	CodecLZ4 Codec = 1
	// CodecZstd is zstd at the default level: the best ratio for the
	// JSON frames journals hold.
	CodecZstd Codec = 2
)

// String returns the codec's configuration name.
func (c Codec) String() string {
	switch c {
	case CodecNone:
		return "none"
	case CodecLZ4:
		return "lz4"
	case CodecZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// ParseCodec parses a codec from its configuration name.
func ParseCodec(name string) (Codec, error) {
	switch name {
	case "none":
		return CodecNone, nil
	case "lz4":
		return CodecLZ4, nil
	case "zstd":
		return CodecZstd, nil
	default:
		return 0, fmt.Errorf("unknown journal codec: %q", name)
	}
}

// errIncompressible reports that compression would not shrink the
// data. The writer falls back to CodecNone for that segment.
var errIncompressible = fmt.Errorf("data is incompressible")

// zstdEncoder and zstdDecoder are shared across all writers and
// readers; both are safe for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
	)
	if err != nil {
		panic("journal: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("journal: zstd decoder initialization failed: " + err.Error())
	}
}

// compress shrinks data with the given codec, or returns
// errIncompressible when the output would not be smaller.
func compress(data []byte, codec Codec) ([]byte, error) {
	switch codec {
	case CodecNone:
		return data, nil

	case CodecLZ4:
		destination := make([]byte, lz4.CompressBlockBound(len(data)))
		written, err := lz4.CompressBlock(data, destination, nil)
		if err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}
		// CompressBlock returns 0 for incompressible input.
		if written == 0 || written >= len(data) {
			return nil, errIncompressible
		}
		return destination[:written], nil

	case CodecZstd:
		compressed := zstdEncoder.EncodeAll(data, nil)
		if len(compressed) >= len(data) {
			return nil, errIncompressible
		}
		return compressed, nil

	default:
		return nil, fmt.Errorf("unsupported journal codec: %d", codec)
	}
}

// decompress reverses compress. uncompressedSize must match the
// original length exactly; a mismatch is corruption.
func decompress(compressed []byte, codec Codec, uncompressedSize int) ([]byte, error) {
	switch codec {
	case CodecNone:
		if len(compressed) != uncompressedSize {
			return nil, fmt.Errorf("uncompressed segment: size %d does not match expected %d",
				len(compressed), uncompressedSize)
		}
		return compressed, nil

	case CodecLZ4:
		destination := make([]byte, uncompressedSize)
		read, err := lz4.UncompressBlock(compressed, destination)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		if read != uncompressedSize {
			return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", read, uncompressedSize)
		}
		return destination, nil

	case CodecZstd:
		result, err := zstdDecoder.DecodeAll(compressed, make([]byte, 0, uncompressedSize))
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		if len(result) != uncompressedSize {
			return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(result), uncompressedSize)
		}
		return result, nil

	default:
		return nil, fmt.Errorf("unsupported journal codec: %d", codec)
	}
}
