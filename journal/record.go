// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package journal

import (
	"time"

	"github.com/bureau-foundation/consult/switchboard"
)

// Kind says what a Record marks.
type Kind string

const (
	KindStarted Kind = "session_started"
	KindEnded   Kind = "session_ended"
)

// Record is one journal entry. Ended records repeat the session's
// participants and start time so a billing reader can price a session
// from its end record alone.
type Record struct {
	Kind        Kind      `cbor:"kind"`
	SessionID   string    `cbor:"session_id"`
	RequesterID string    `cbor:"requester_id"`
	ResponderID string    `cbor:"responder_id"`
	StartedAt   time.Time `cbor:"started_at"`

	// Set on KindEnded only.
	EndedAt  time.Time     `cbor:"ended_at,omitempty"`
	Duration time.Duration `cbor:"duration_ns,omitempty"`
	Reason   string        `cbor:"reason,omitempty"`
}

func startedRecord(event switchboard.SessionEvent) Record {
	return Record{
		Kind:        KindStarted,
		SessionID:   event.SessionID,
		RequesterID: event.RequesterID,
		ResponderID: event.ResponderID,
		StartedAt:   event.StartedAt,
	}
}

func endedRecord(event switchboard.SessionEvent) Record {
	record := startedRecord(event)
	record.Kind = KindEnded
	record.EndedAt = event.EndedAt
	record.Duration = event.EndedAt.Sub(event.StartedAt)
	record.Reason = string(event.Reason)
	return record
}
