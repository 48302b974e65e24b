// Copyright 2026 The Agentdeck Authors
// SPDX-License-Identifier: Apache-2.0

package journal

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/agentdeck/agentdeck/lib/codec"
)

// DefaultFlushThreshold is how many buffered record bytes trigger a
// segment write.
const DefaultFlushThreshold = 256 << 10

// WriterConfig holds configuration for creating a Writer.
type WriterConfig struct {
	// Codec is the segment compression. The zero value writes
	// uncompressed segments.
	Codec Codec
	// FlushThreshold is the buffered byte count that triggers a
	// segment write. Zero means DefaultFlushThreshold.
	FlushThreshold int
}

// Writer appends records to a journal file. Records accumulate in
// memory and are written as one compressed, checksummed segment when
// the buffer passes the flush threshold, on Flush, and on Close.
// Safe for concurrent use: the engine's frame tap calls Append from
// channel goroutines.
type Writer struct {
	mu        sync.Mutex
	file      *os.File
	codec     Codec
	threshold int
	buffer    bytes.Buffer
}

// Create creates (or truncates) a journal file and writes its header.
func Create(path string, config WriterConfig) (*Writer, error) {
	threshold := config.FlushThreshold
	if threshold <= 0 {
		threshold = DefaultFlushThreshold
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating journal: %w", err)
	}
	if _, err := file.WriteString(fileMagic); err != nil {
		file.Close()
		return nil, fmt.Errorf("writing journal header: %w", err)
	}
	return &Writer{
		file:      file,
		codec:     config.Codec,
		threshold: threshold,
	}, nil
}

// Append adds one record. The record is durable only once its segment
// is flushed.
func (w *Writer) Append(record Record) error {
	encoded, err := codec.Marshal(record)
	if err != nil {
		return fmt.Errorf("encoding journal record: %w", err)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return fmt.Errorf("journal writer is closed")
	}
	w.buffer.Write(encoded)
	if w.buffer.Len() >= w.threshold {
		return w.flushLocked()
	}
	return nil
}

// Flush writes any buffered records as a segment.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return fmt.Errorf("journal writer is closed")
	}
	return w.flushLocked()
}

// Close flushes and closes the file. The writer is unusable afterwards.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	flushErr := w.flushLocked()
	closeErr := w.file.Close()
	w.file = nil
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}

// flushLocked writes the buffered records as one segment. Checksums
// cover the uncompressed bytes; segments that do not shrink are stored
// uncompressed so the journal never grows past its input.
func (w *Writer) flushLocked() error {
	if w.buffer.Len() == 0 {
		return nil
	}
	records := w.buffer.Bytes()
	sum := checksum(records)

	payload := records
	segmentCodec := w.codec
	if segmentCodec != CodecNone {
		compressed, err := compress(records, segmentCodec)
		switch {
		case err == nil:
			payload = compressed
		case errors.Is(err, errIncompressible):
			segmentCodec = CodecNone
		default:
			return fmt.Errorf("compressing journal segment: %w", err)
		}
	}

	var header [segmentHeaderSize]byte
	header[0] = byte(segmentCodec)
	binary.BigEndian.PutUint32(header[1:5], uint32(len(records)))
	binary.BigEndian.PutUint32(header[5:9], uint32(len(payload)))
	copy(header[9:], sum[:])

	if _, err := w.file.Write(header[:]); err != nil {
		return fmt.Errorf("writing journal segment header: %w", err)
	}
	if _, err := w.file.Write(payload); err != nil {
		return fmt.Errorf("writing journal segment: %w", err)
	}
	w.buffer.Reset()
	return nil
}
