// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package journal

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"filippo.io/age"

	"github.com/bureau-foundation/consult/lib/codec"
)

// ErrWriterClosed is returned by Append after Close.
var ErrWriterClosed = errors.New("journal writer closed")

// Options configure a Writer.
type Options struct {
	Compression Compression

	// Recipients are age X25519 public keys (age1...). When present
	// the journal body is encrypted to all of them.
	Recipients []string
}

// Writer appends records to a journal stream. Safe for concurrent use.
//
// Encrypted journals buffer up to one age chunk (64 KiB) in memory;
// records are durable only once Close finalizes the stream.
type Writer struct {
	compression Compression

	mu     sync.Mutex
	body   io.Writer
	sealer io.WriteCloser
	file   io.Closer
	closed bool
	count  int
}

// NewWriter writes the journal header to w and returns a Writer for
// the records. Close does not close w.
func NewWriter(w io.Writer, options Options) (*Writer, error) {
	if options.Compression > CompressionZstd {
		return nil, fmt.Errorf("unsupported compression %s", options.Compression)
	}

	var flags byte
	var recipients []age.Recipient
	for _, key := range options.Recipients {
		recipient, err := age.ParseX25519Recipient(key)
		if err != nil {
			return nil, fmt.Errorf("parsing recipient key %q: %w", key, err)
		}
		recipients = append(recipients, recipient)
	}
	if len(recipients) > 0 {
		flags |= flagEncrypted
	}

	if err := writeHeader(w, flags); err != nil {
		return nil, fmt.Errorf("writing journal header: %w", err)
	}

	writer := &Writer{compression: options.Compression, body: w}
	if len(recipients) > 0 {
		sealer, err := age.Encrypt(w, recipients...)
		if err != nil {
			return nil, fmt.Errorf("creating age encryptor: %w", err)
		}
		writer.sealer = sealer
		writer.body = sealer
	}
	return writer, nil
}

// Create makes a new journal file in dir named for the given start
// time, e.g. sessions-20260301T090000Z.journal. It never overwrites an
// existing file.
func Create(dir string, started time.Time, options Options) (*Writer, string, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, "", fmt.Errorf("creating journal directory: %w", err)
	}
	name := "sessions-" + started.UTC().Format("20060102T150405Z") + ".journal"
	path := filepath.Join(dir, name)

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return nil, "", fmt.Errorf("creating journal: %w", err)
	}
	writer, err := NewWriter(file, options)
	if err != nil {
		file.Close()
		os.Remove(path)
		return nil, "", err
	}
	writer.file = file
	return writer, path, nil
}

// Append encodes record as CBOR and writes it as one frame.
func (w *Writer) Append(record Record) error {
	raw, err := codec.Marshal(record)
	if err != nil {
		return fmt.Errorf("encoding %s record: %w", record.Kind, err)
	}
	frame, err := encodeFrame(raw, w.compression)
	if err != nil {
		return fmt.Errorf("framing %s record: %w", record.Kind, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWriterClosed
	}
	if _, err := w.body.Write(frame); err != nil {
		return fmt.Errorf("writing %s record: %w", record.Kind, err)
	}
	w.count++
	return nil
}

// Count returns how many records have been appended.
func (w *Writer) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// Close finalizes the age stream, if any, and closes the file opened
// by Create. Safe to call more than once.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	var errs []error
	if w.sealer != nil {
		if err := w.sealer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("finalizing age encryption: %w", err))
		}
	}
	if w.file != nil {
		if err := w.file.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
