// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package journal

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/zeebo/blake3"
)

// A journal file is a fixed header followed by frames:
//
//	header: magic[8] version[1] flags[1]
//	frame:  storedLen[4] compression[1] rawLen[4] blake3(raw)[32] stored[storedLen]
//
// Integers are big-endian. The checksum covers the uncompressed CBOR
// record, so it also catches a bad decompression. When flagEncrypted
// is set everything after the header is one age stream.

var magic = [8]byte{'C', 'O', 'N', 'S', 'U', 'L', 'T', 'J'}

const (
	formatVersion = 1

	flagEncrypted = 1 << 0

	headerSize      = len(magic) + 2
	frameHeaderSize = 4 + 1 + 4 + blake3Size
	blake3Size      = 32

	// maxFrameSize bounds a single record. Real records are a few
	// hundred bytes; anything larger is corruption.
	maxFrameSize = 1 << 20
)

var (
	// ErrNotJournal is returned for input that does not start with
	// the journal header.
	ErrNotJournal = errors.New("not a session journal")

	// ErrChecksum marks a frame whose payload does not match its
	// checksum.
	ErrChecksum = errors.New("journal frame checksum mismatch")

	// ErrTruncated marks input that ends inside a frame, typically a
	// journal whose writer did not shut down cleanly.
	ErrTruncated = errors.New("journal truncated mid-frame")
)

func writeHeader(w io.Writer, flags byte) error {
	header := make([]byte, 0, headerSize)
	header = append(header, magic[:]...)
	header = append(header, formatVersion, flags)
	_, err := w.Write(header)
	return err
}

func readHeader(r io.Reader) (flags byte, err error) {
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(r, header); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return 0, ErrNotJournal
		}
		return 0, err
	}
	if [8]byte(header[:8]) != magic {
		return 0, ErrNotJournal
	}
	if version := header[8]; version != formatVersion {
		return 0, fmt.Errorf("%w: unsupported version %d", ErrNotJournal, version)
	}
	return header[9], nil
}

// encodeFrame checksums and compresses raw into one frame.
func encodeFrame(raw []byte, compression Compression) ([]byte, error) {
	if len(raw) > maxFrameSize {
		return nil, fmt.Errorf("record is %d bytes, limit is %d", len(raw), maxFrameSize)
	}
	stored, used, err := compress(raw, compression)
	if err != nil {
		return nil, err
	}
	sum := blake3.Sum256(raw)

	frame := make([]byte, frameHeaderSize, frameHeaderSize+len(stored))
	binary.BigEndian.PutUint32(frame[0:4], uint32(len(stored)))
	frame[4] = byte(used)
	binary.BigEndian.PutUint32(frame[5:9], uint32(len(raw)))
	copy(frame[9:], sum[:])
	return append(frame, stored...), nil
}

// readFrame returns the next frame's raw payload. It returns io.EOF
// only at a clean frame boundary.
func readFrame(r io.Reader) ([]byte, error) {
	header := make([]byte, frameHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrTruncated
		}
		return nil, err
	}
	storedSize := binary.BigEndian.Uint32(header[0:4])
	compression := Compression(header[4])
	rawSize := binary.BigEndian.Uint32(header[5:9])
	if storedSize > maxFrameSize || rawSize > maxFrameSize {
		return nil, fmt.Errorf("%w: frame claims %d bytes stored, %d raw", ErrChecksum, storedSize, rawSize)
	}

	stored := make([]byte, storedSize)
	if _, err := io.ReadFull(r, stored); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrTruncated
		}
		return nil, err
	}

	raw, err := decompress(stored, compression, int(rawSize))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrChecksum, err)
	}
	if sum := blake3.Sum256(raw); [blake3Size]byte(header[9:]) != sum {
		return nil, ErrChecksum
	}
	return raw, nil
}
