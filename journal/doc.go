// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package journal records consultation sessions out of band for
// billing and audit.
//
// [Observer] implements switchboard.SessionObserver. Each session start
// and end becomes a [Record], encoded as deterministic CBOR and
// appended to a journal by a background goroutine so the switchboard
// loop never waits on disk.
//
// A journal is a small header followed by self-checking frames. Each
// frame carries a BLAKE3-256 checksum of its record and may be stored
// compressed with zstd or lz4; a frame that would not shrink is stored
// as is. The body can be encrypted to one or more age X25519
// recipients, in which case it is a single age stream readable only
// with a matching identity.
//
// [Reader] verifies every frame on the way back in and distinguishes a
// damaged frame ([ErrChecksum]) from a journal cut off mid-write
// ([ErrTruncated]).
package journal
