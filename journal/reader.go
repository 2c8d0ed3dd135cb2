// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package journal

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"filippo.io/age"

	"github.com/bureau-foundation/consult/lib/codec"
)

// ErrNoIdentity is returned when opening an encrypted journal without
// any age identity.
var ErrNoIdentity = errors.New("journal is encrypted and no identity was given")

// Reader reads records back from a journal stream.
type Reader struct {
	body      io.Reader
	encrypted bool
}

// NewReader checks the header of r and prepares to read records.
// identities are only used for encrypted journals.
func NewReader(r io.Reader, identities ...age.Identity) (*Reader, error) {
	buffered := bufio.NewReader(r)
	flags, err := readHeader(buffered)
	if err != nil {
		return nil, err
	}

	reader := &Reader{body: buffered}
	if flags&flagEncrypted != 0 {
		if len(identities) == 0 {
			return nil, ErrNoIdentity
		}
		body, err := age.Decrypt(buffered, identities...)
		if err != nil {
			return nil, fmt.Errorf("decrypting journal: %w", err)
		}
		reader.body = body
		reader.encrypted = true
	}
	return reader, nil
}

// Encrypted reports whether the journal body is age-encrypted.
func (r *Reader) Encrypted() bool { return r.encrypted }

// Next returns the next record. It returns io.EOF after the last one,
// ErrTruncated if the stream ends mid-frame and ErrChecksum for a
// damaged frame.
func (r *Reader) Next() (Record, error) {
	raw, err := r.NextRaw()
	if err != nil {
		return Record{}, err
	}
	var record Record
	if err := codec.Unmarshal(raw, &record); err != nil {
		return Record{}, fmt.Errorf("decoding record: %w", err)
	}
	return record, nil
}

// NextRaw returns the next record's verified CBOR bytes without
// decoding them.
func (r *Reader) NextRaw() ([]byte, error) {
	return readFrame(r.body)
}

// ReadAll returns every remaining record. On error it returns the
// records read so far along with the error.
func (r *Reader) ReadAll() ([]Record, error) {
	var records []Record
	for {
		record, err := r.Next()
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return records, err
		}
		records = append(records, record)
	}
}
