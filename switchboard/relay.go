// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package switchboard

import (
	"fmt"
	"log/slog"

	"github.com/bureau-foundation/consult/lib/protocol"
)

// SignalingRelay forwards negotiation frames between the two
// participants of a session. Payloads are opaque: the relay only reads
// the session id and adds senderId. Owned by the server loop.
type SignalingRelay struct {
	registry    *ConnectionRegistry
	coordinator *MatchCoordinator
	logger      *slog.Logger
}

// NewSignalingRelay returns a relay routing through registry and
// coordinator.
func NewSignalingRelay(registry *ConnectionRegistry, coordinator *MatchCoordinator, logger *slog.Logger) *SignalingRelay {
	return &SignalingRelay{
		registry:    registry,
		coordinator: coordinator,
		logger:      logger,
	}
}

// Forward delivers envelope from sender to the sender's partner, with
// every original field intact and senderId set. Frames from unbound
// senders, or naming a session the sender is not bound to, are dropped
// with a StateViolation error and nothing is delivered.
func (r *SignalingRelay) Forward(envelope protocol.Envelope, sender Conn) error {
	if envelope.SessionID == "" {
		return fmt.Errorf("%w: %s without sessionId", ErrProtocol, envelope.Type)
	}
	participant, ok := r.registry.Lookup(sender)
	if !ok {
		return fmt.Errorf("%w: %s from unregistered connection %s", ErrStateViolation, envelope.Type, sender.ID())
	}
	if participant.SessionID != envelope.SessionID {
		return fmt.Errorf("%w: %s from %s for session %q, bound to %q",
			ErrStateViolation, envelope.Type, participant.ID, envelope.SessionID, participant.SessionID)
	}
	session, ok := r.coordinator.Lookup(envelope.SessionID)
	if !ok {
		return fmt.Errorf("%w: session %s no longer exists", ErrStateViolation, envelope.SessionID)
	}
	partner, ok := r.coordinator.partnerOf(session, participant.ID)
	if !ok {
		// The partner left; End will run (or has run) for it.
		r.logger.Debug("dropping signaling for departed partner",
			"type", envelope.Type,
			"session_id", envelope.SessionID,
			"sender", participant.ID,
		)
		return nil
	}

	frame, err := protocol.WithSender(envelope.Raw, participant.ID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	partner.Conn.Notify(frame)
	return nil
}
