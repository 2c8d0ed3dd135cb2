// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package switchboard

import (
	"encoding/json"
	"log/slog"

	"github.com/bureau-foundation/consult/lib/protocol"
)

// Conn is a live client connection as the switchboard sees it.
type Conn interface {
	// ID identifies the connection in logs.
	ID() string

	// Notify queues one frame for delivery. It must not block; an
	// implementation that cannot accept the frame drops the
	// connection instead.
	Notify(frame []byte)
}

// Participant is a registered user bound to one connection. Role
// decides how the queue and coordinator treat it; Context is only
// meaningful for requesters.
type Participant struct {
	ID        string
	Role      protocol.Role
	Conn      Conn
	SessionID string
	Context   json.RawMessage
}

// InSession reports whether the participant is bound to a session.
func (p *Participant) InSession() bool {
	return p.SessionID != ""
}

// send encodes payload and pushes it to the participant's connection.
// Encoding failures are programming errors in the payload types; they
// are logged rather than propagated so one bad notification cannot
// abort a fan-out half way.
func (p *Participant) send(logger *slog.Logger, messageType protocol.Type, payload any) {
	frame, err := protocol.Encode(messageType, payload)
	if err != nil {
		logger.Error("encoding notification failed",
			"type", messageType,
			"participant", p.ID,
			"error", err,
		)
		return
	}
	p.Conn.Notify(frame)
}
