// Copyright 2026 The Agentdeck Authors
// SPDX-License-Identifier: Apache-2.0

package journal

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/agentdeck/agentdeck/lib/codec"
)

// Reader streams records back out of a journal file. Errors from Next
// name the offending segment; a clean end of file is io.EOF.
type Reader struct {
	file    *os.File
	segment int
	decoder *codec.Decoder
}

// Open opens a journal file and verifies its header.
func Open(path string) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	magic := make([]byte, len(fileMagic))
	if _, err := io.ReadFull(file, magic); err != nil {
		file.Close()
		return nil, fmt.Errorf("reading journal header: %w", err)
	}
	if string(magic) != fileMagic {
		file.Close()
		return nil, fmt.Errorf("not a journal file: header %q", magic)
	}
	return &Reader{file: file}, nil
}

// Next returns the next record. It returns io.EOF at a clean end of
// the journal.
func (r *Reader) Next() (Record, error) {
	for {
		if r.decoder != nil {
			var record Record
			err := r.decoder.Decode(&record)
			if err == nil {
				return record, nil
			}
			if err != io.EOF {
				return Record{}, fmt.Errorf("journal segment %d: decoding record: %w", r.segment-1, err)
			}
			r.decoder = nil
		}
		if err := r.loadSegment(); err != nil {
			return Record{}, err
		}
	}
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.file.Close()
}

// loadSegment reads, verifies, and decompresses the next segment,
// leaving a record decoder over its contents. io.EOF means the file
// ended cleanly on a segment boundary.
func (r *Reader) loadSegment() error {
	var header [segmentHeaderSize]byte
	if _, err := io.ReadFull(r.file, header[:]); err != nil {
		if err == io.EOF {
			return io.EOF
		}
		return fmt.Errorf("journal segment %d: truncated header: %w", r.segment, err)
	}

	segmentCodec := Codec(header[0])
	uncompressedLen := binary.BigEndian.Uint32(header[1:5])
	payloadLen := binary.BigEndian.Uint32(header[5:9])
	var sum [32]byte
	copy(sum[:], header[9:])

	if uncompressedLen > maxSegmentBytes || payloadLen > maxSegmentBytes {
		return fmt.Errorf("journal segment %d: implausible size %d/%d", r.segment, uncompressedLen, payloadLen)
	}

	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(r.file, payload); err != nil {
		return fmt.Errorf("journal segment %d: truncated payload: %w", r.segment, err)
	}

	records, err := decompress(payload, segmentCodec, int(uncompressedLen))
	if err != nil {
		return fmt.Errorf("journal segment %d: %w", r.segment, err)
	}
	if checksum(records) != sum {
		return fmt.Errorf("journal segment %d: checksum mismatch", r.segment)
	}

	r.decoder = codec.NewDecoder(bytes.NewReader(records))
	r.segment++
	return nil
}
