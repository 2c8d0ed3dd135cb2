// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// consult-journal prints the session records in journals written by
// consult-server.
//
//	consult-journal sessions-20260301T090000Z.journal
//	consult-journal --identity ~/.config/consult/journal.key --format json *.journal
//
// Formats:
//
//	table  one row per record, then a per-file summary of ended
//	       sessions and billed time (default)
//	json   one JSON object per line, field names as stored
//	diag   CBOR diagnostic notation of each stored record
//
// Encrypted journals need an age identity file (as written by
// age-keygen) for one of the recipients the server was configured
// with. --identity may be repeated.
//
// A journal whose server did not shut down cleanly ends mid-frame. The
// records before the damage are printed and the command exits 1.
package main
