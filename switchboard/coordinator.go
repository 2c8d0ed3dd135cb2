// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package switchboard

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/consult/lib/clock"
	"github.com/bureau-foundation/consult/lib/protocol"
)

// Session is a matched requester/responder pair.
type Session struct {
	ID          string
	RequesterID string
	ResponderID string
	StartedAt   time.Time

	// joined records which participants have sent a valid join.
	joined map[string]bool
}

// Partner returns the other participant's id, or "" if id is not part
// of the session.
func (s *Session) Partner(id string) string {
	switch id {
	case s.RequesterID:
		return s.ResponderID
	case s.ResponderID:
		return s.RequesterID
	}
	return ""
}

// EndReason says why a session ended.
type EndReason string

const (
	// EndDisconnect: one participant's connection went away.
	EndDisconnect EndReason = "disconnect"
	// EndExplicit: a participant sent end_consultation.
	EndExplicit EndReason = "explicit"
	// EndShutdown: the server is stopping.
	EndShutdown EndReason = "shutdown"
)

// SessionEvent is what a SessionObserver learns about a session.
type SessionEvent struct {
	SessionID   string
	RequesterID string
	ResponderID string
	StartedAt   time.Time

	// EndedAt and Reason are set only for ended sessions.
	EndedAt time.Time
	Reason  EndReason
}

// SessionObserver is informed out of band when sessions start and end,
// e.g. for billing. Calls happen on the server loop and must return
// promptly.
type SessionObserver interface {
	SessionStarted(event SessionEvent)
	SessionEnded(event SessionEvent)
}

// MatchCoordinator creates and destroys sessions. Owned by the server
// loop; not safe for concurrent use.
type MatchCoordinator struct {
	registry *ConnectionRegistry
	queue    *WaitingQueue
	sessions map[string]*Session
	observer SessionObserver
	clock    clock.Clock
	logger   *slog.Logger

	// newID generates session ids. Replaced in tests to force
	// collisions.
	newID func() string
}

// NewMatchCoordinator returns a coordinator over registry and queue.
// observer may be nil.
func NewMatchCoordinator(registry *ConnectionRegistry, queue *WaitingQueue, observer SessionObserver, clk clock.Clock, logger *slog.Logger) *MatchCoordinator {
	return &MatchCoordinator{
		registry: registry,
		queue:    queue,
		sessions: make(map[string]*Session),
		observer: observer,
		clock:    clk,
		logger:   logger,
		newID:    uuid.NewString,
	}
}

// Match pairs responderID with requesterID. It fails with ErrRaceLost,
// changing nothing, when the requester is no longer queued (another
// responder took it) or the responder is unknown or already busy. On
// success the requester leaves the queue, with the usual position and
// snapshot cascade, and both sides receive consultation_starting.
func (c *MatchCoordinator) Match(responderID, requesterID string) (*Session, error) {
	entry, ok := c.queue.Get(requesterID)
	if !ok {
		return nil, fmt.Errorf("%w: requester %s is not waiting", ErrRaceLost, requesterID)
	}
	responder, ok := c.registry.LookupUser(responderID)
	if !ok || responder.Role != protocol.RoleResponder {
		return nil, fmt.Errorf("%w: responder %s is not registered", ErrRaceLost, responderID)
	}
	if responder.InSession() {
		return nil, fmt.Errorf("%w: responder %s is already in session %s", ErrRaceLost, responderID, responder.SessionID)
	}
	requester := entry.Participant

	session := &Session{
		ID:          c.freshID(),
		RequesterID: requester.ID,
		ResponderID: responder.ID,
		StartedAt:   c.clock.Now(),
		joined:      make(map[string]bool),
	}
	c.sessions[session.ID] = session

	// Dequeue before binding so no entry ever coexists with a session
	// id on the same participant.
	c.queue.removePair(requester.ID, responder.ID)
	requester.SessionID = session.ID
	responder.SessionID = session.ID

	c.logger.Info("consultation starting",
		"session_id", session.ID,
		"requester", requester.ID,
		"responder", responder.ID,
		"waited", session.StartedAt.Sub(entry.JoinedAt),
	)

	responder.send(c.logger, protocol.TypeConsultationStarting, protocol.ConsultationStarting{
		SessionID: session.ID,
		PartnerID: requester.ID,
	})
	requester.send(c.logger, protocol.TypeConsultationStarting, protocol.ConsultationStarting{
		SessionID: session.ID,
		PartnerID: responder.ID,
	})

	if c.observer != nil {
		c.observer.SessionStarted(session.event())
	}
	return session, nil
}

// Join records that participant has entered sessionID and tells its
// partner. The participant must already be bound to sessionID and
// userID must be its own id. The partner hears about each participant
// once; repeated joins are accepted and ignored.
func (c *MatchCoordinator) Join(participant *Participant, sessionID, userID string) error {
	if userID != participant.ID {
		return fmt.Errorf("%w: %s tried to join as %s", ErrStateViolation, participant.ID, userID)
	}
	if sessionID == "" || participant.SessionID != sessionID {
		return fmt.Errorf("%w: %s is not bound to session %s", ErrStateViolation, participant.ID, sessionID)
	}
	session, ok := c.sessions[sessionID]
	if !ok {
		return fmt.Errorf("%w: session %s does not exist", ErrStateViolation, sessionID)
	}

	if session.joined[participant.ID] {
		c.logger.Debug("repeated join ignored", "session_id", sessionID, "participant", participant.ID)
		return nil
	}
	session.joined[participant.ID] = true
	c.logger.Info("participant joined session", "session_id", sessionID, "participant", participant.ID)

	if partner, ok := c.partnerOf(session, participant.ID); ok {
		partner.send(c.logger, protocol.TypePeerJoined, protocol.PeerJoined{
			SessionID: sessionID,
			UserID:    participant.ID,
		})
	}
	return nil
}

// End tears down participant's session: the partner receives
// peer_disconnected, both bindings are cleared and the session record
// is released. Calling End for a participant with no session, or for a
// session already ended, does nothing and returns false.
//
// Responders that remain connected go back to watching the waiting
// room.
func (c *MatchCoordinator) End(participant *Participant, reason EndReason) bool {
	sessionID := participant.SessionID
	if sessionID == "" {
		return false
	}
	participant.SessionID = ""

	session, ok := c.sessions[sessionID]
	if !ok {
		return false
	}
	delete(c.sessions, sessionID)

	partner, hasPartner := c.partnerOf(session, participant.ID)
	if hasPartner {
		partner.SessionID = ""
		partner.send(c.logger, protocol.TypePeerDisconnected, protocol.PeerDisconnected{
			SessionID: sessionID,
			UserID:    participant.ID,
		})
	}

	c.logger.Info("consultation ended",
		"session_id", sessionID,
		"ended_by", participant.ID,
		"reason", reason,
		"duration", c.clock.Now().Sub(session.StartedAt),
	)

	if reason != EndShutdown {
		if reason != EndDisconnect && participant.Role == protocol.RoleResponder {
			c.queue.AddResponder(participant)
		}
		if hasPartner && partner.Role == protocol.RoleResponder {
			c.queue.AddResponder(partner)
		}
	}

	if c.observer != nil {
		event := session.event()
		event.EndedAt = c.clock.Now()
		event.Reason = reason
		c.observer.SessionEnded(event)
	}
	return true
}

// EndAll ends every session, used at shutdown.
func (c *MatchCoordinator) EndAll() {
	for _, session := range c.sessions {
		if participant, ok := c.registry.LookupUser(session.RequesterID); ok && participant.SessionID == session.ID {
			c.End(participant, EndShutdown)
			continue
		}
		if participant, ok := c.registry.LookupUser(session.ResponderID); ok && participant.SessionID == session.ID {
			c.End(participant, EndShutdown)
			continue
		}
		delete(c.sessions, session.ID)
	}
}

// Lookup returns the live session with id.
func (c *MatchCoordinator) Lookup(id string) (*Session, bool) {
	session, ok := c.sessions[id]
	return session, ok
}

// ActiveCount returns the number of live sessions.
func (c *MatchCoordinator) ActiveCount() int {
	return len(c.sessions)
}

// partnerOf returns the other participant of session if it is still
// connected and still bound to the session.
func (c *MatchCoordinator) partnerOf(session *Session, id string) (*Participant, bool) {
	partnerID := session.Partner(id)
	if partnerID == "" {
		return nil, false
	}
	partner, ok := c.registry.LookupUser(partnerID)
	if !ok || partner.SessionID != session.ID {
		return nil, false
	}
	return partner, true
}

func (c *MatchCoordinator) freshID() string {
	for {
		id := c.newID()
		if _, taken := c.sessions[id]; !taken {
			return id
		}
		c.logger.Warn("session id collision, regenerating", "session_id", id)
	}
}

func (s *Session) event() SessionEvent {
	return SessionEvent{
		SessionID:   s.ID,
		RequesterID: s.RequesterID,
		ResponderID: s.ResponderID,
		StartedAt:   s.StartedAt,
	}
}
