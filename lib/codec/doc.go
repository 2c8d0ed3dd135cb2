// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec is consult's binary encoding: CBOR (RFC 8949) with Core
// Deterministic Encoding.
//
// JSON is the wire format between browsers, clients and the server;
// CBOR is used where records are written to disk, currently the session
// journal. Deterministic encoding matters there because each journal
// frame carries a checksum of its payload: the same record always
// produces the same bytes and therefore the same checksum.
//
// Struct fields use `cbor:"name"` tags; unknown fields are ignored on
// decode so older readers tolerate newer records.
package codec
