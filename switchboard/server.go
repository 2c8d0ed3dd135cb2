// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package switchboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bureau-foundation/consult/lib/clock"
	"github.com/bureau-foundation/consult/lib/protocol"
)

// ErrStopped is returned by Server methods called after Run returned.
var ErrStopped = errors.New("switchboard stopped")

// defaultEventBuffer is the capacity of the event channel between
// connection goroutines and the loop.
const defaultEventBuffer = 256

// Config holds the parameters for NewServer.
type Config struct {
	// Clock stamps queue entries and sessions. Production callers pass
	// clock.Real(); tests pass clock.Fake().
	Clock clock.Clock

	// Logger receives every dispatch decision and dropped message.
	Logger *slog.Logger

	// ConsultMinutes is the expected consultation length used for
	// waiting-room estimates.
	ConsultMinutes int

	// Observer, if set, is told when sessions start and end.
	Observer SessionObserver

	// Metrics, if set, is updated after every event.
	Metrics *Metrics

	// EventBuffer is the event channel capacity. Zero means
	// defaultEventBuffer.
	EventBuffer int
}

// Status is the switchboard's externally visible counts.
type Status struct {
	Waiting int `json:"waiting"`
	// Responders counts responders watching the waiting room;
	// ConnectedResponders also counts those in a session.
	Responders          int `json:"responders"`
	ConnectedResponders int `json:"connectedResponders"`
	ActiveSessions      int `json:"activeSessions"`
	Connections         int `json:"connections"`
}

type eventKind int

const (
	eventMessage eventKind = iota
	eventDisconnect
	eventStatus
)

type event struct {
	kind  eventKind
	conn  Conn
	frame []byte
	reply chan<- Status
}

// Server is the dispatch loop. One goroutine, Run, owns the registry,
// queue, coordinator and relay; connection goroutines hand it events
// through Deliver and Disconnect. Each event is processed to completion,
// including every notification it causes, before the next is taken.
type Server struct {
	registry    *ConnectionRegistry
	queue       *WaitingQueue
	coordinator *MatchCoordinator
	relay       *SignalingRelay

	events  chan event
	done    chan struct{}
	logger  *slog.Logger
	metrics *Metrics
}

// NewServer creates a server. Call Run to start processing.
func NewServer(config Config) *Server {
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	if config.EventBuffer <= 0 {
		config.EventBuffer = defaultEventBuffer
	}

	registry := NewConnectionRegistry()
	queue := NewWaitingQueue(config.Clock, config.ConsultMinutes, config.Logger)
	coordinator := NewMatchCoordinator(registry, queue, config.Observer, config.Clock, config.Logger)
	return &Server{
		registry:    registry,
		queue:       queue,
		coordinator: coordinator,
		relay:       NewSignalingRelay(registry, coordinator, config.Logger),
		events:      make(chan event, config.EventBuffer),
		done:        make(chan struct{}),
		logger:      config.Logger,
		metrics:     config.Metrics,
	}
}

// Run processes events until ctx is cancelled. Sessions still live at
// that point are ended with EndShutdown so observers see every end.
func (s *Server) Run(ctx context.Context) error {
	defer close(s.done)
	s.logger.Info("switchboard running")
	for {
		select {
		case <-ctx.Done():
			s.coordinator.EndAll()
			s.logger.Info("switchboard stopped", "reason", context.Cause(ctx))
			return nil
		case ev := <-s.events:
			s.handle(ev)
		}
	}
}

// Deliver hands one inbound frame from conn to the loop. It blocks
// while the event buffer is full.
func (s *Server) Deliver(ctx context.Context, conn Conn, frame []byte) error {
	return s.enqueue(ctx, event{kind: eventMessage, conn: conn, frame: frame})
}

// Disconnect tells the loop conn is gone. Safe to call more than once.
func (s *Server) Disconnect(conn Conn) {
	// Disconnects must not be lost, so this ignores caller cancellation
	// and only gives up when the loop is gone.
	_ = s.enqueue(context.Background(), event{kind: eventDisconnect, conn: conn})
}

// Status returns the current counts, computed on the loop so they are
// never observed mid-update.
func (s *Server) Status(ctx context.Context) (Status, error) {
	reply := make(chan Status, 1)
	if err := s.enqueue(ctx, event{kind: eventStatus, reply: reply}); err != nil {
		return Status{}, err
	}
	select {
	case status := <-reply:
		return status, nil
	case <-ctx.Done():
		return Status{}, ctx.Err()
	case <-s.done:
		return Status{}, ErrStopped
	}
}

func (s *Server) enqueue(ctx context.Context, ev event) error {
	select {
	case <-s.done:
		return ErrStopped
	default:
	}
	select {
	case s.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrStopped
	}
}

func (s *Server) handle(ev event) {
	switch ev.kind {
	case eventMessage:
		s.handleFrame(ev.conn, ev.frame)
	case eventDisconnect:
		s.handleDisconnect(ev.conn)
	case eventStatus:
		ev.reply <- s.status()
		return
	}
	s.metrics.observe(s.status())
}

func (s *Server) status() Status {
	return Status{
		Waiting:             s.queue.Len(),
		Responders:          s.queue.ResponderCount(),
		ConnectedResponders: s.registry.Count(protocol.RoleResponder),
		ActiveSessions:      s.coordinator.ActiveCount(),
		Connections:         s.registry.Len(),
	}
}

func (s *Server) handleFrame(conn Conn, frame []byte) {
	envelope, err := protocol.Decode(frame)
	if err != nil {
		s.reject(conn, "", fmt.Errorf("%w: %v", ErrProtocol, err))
		return
	}
	label := string(envelope.Type)
	switch {
	case envelope.Type == protocol.TypeRegister:
		err = s.handleRegister(conn, envelope)
	case envelope.Type == protocol.TypeAcceptConsultation:
		err = s.handleAccept(conn, envelope)
	case envelope.Type == protocol.TypeJoin:
		err = s.handleJoin(conn, envelope)
	case envelope.Type == protocol.TypeEndConsultation:
		err = s.handleEnd(conn, envelope)
	case envelope.Type.IsSignaling():
		err = s.relay.Forward(envelope, conn)
	default:
		// Types come from the client; only known ones get a series.
		label = unknownTypeLabel
		err = fmt.Errorf("%w: %q", ErrUnknownType, envelope.Type)
	}
	s.metrics.message(label)
	if err != nil {
		s.reject(conn, envelope.Type, err)
	}
}

// reject logs a dropped message at the level its class deserves. The
// connection stays open.
func (s *Server) reject(conn Conn, messageType protocol.Type, err error) {
	class := errorClass(err)
	s.metrics.drop(class)

	level := slog.LevelWarn
	switch class {
	case "race_lost":
		level = slog.LevelInfo
	case "internal":
		level = slog.LevelError
	}
	s.logger.Log(context.Background(), level, "message dropped",
		"connection", conn.ID(),
		"type", messageType,
		"class", class,
		"error", err,
	)
}

func (s *Server) handleRegister(conn Conn, envelope protocol.Envelope) error {
	var register protocol.Register
	if err := envelope.Payload(&register); err != nil {
		return fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	if register.UserID == "" {
		return fmt.Errorf("%w: register without userId", ErrProtocol)
	}
	if !register.Role.Valid() {
		return fmt.Errorf("%w: register with role %q", ErrProtocol, register.Role)
	}

	if bound, ok := s.registry.Lookup(conn); ok && bound.ID != register.UserID {
		return fmt.Errorf("%w: connection already registered as %s, cannot register as %s",
			ErrStateViolation, bound.ID, register.UserID)
	}
	if previous, ok := s.registry.LookupUser(register.UserID); ok {
		if previous.InSession() {
			return fmt.Errorf("%w: %s re-registered while in session %s",
				ErrStateViolation, register.UserID, previous.SessionID)
		}
		if previous.Role != register.Role {
			return fmt.Errorf("%w: %s re-registered as %s, was %s",
				ErrStateViolation, register.UserID, register.Role, previous.Role)
		}
		if previous.Conn != conn {
			// The old connection's eventual disconnect must not
			// dequeue the participant that replaced it.
			s.registry.Unregister(previous.Conn)
			s.logger.Info("participant moved to new connection",
				"participant", register.UserID,
				"old_connection", previous.Conn.ID(),
				"connection", conn.ID(),
			)
		}
	}

	participant := &Participant{
		ID:      register.UserID,
		Role:    register.Role,
		Context: register.Context,
	}
	s.registry.Register(conn, participant)
	s.logger.Info("participant registered",
		"participant", participant.ID,
		"role", participant.Role,
		"connection", conn.ID(),
	)

	switch participant.Role {
	case protocol.RoleRequester:
		s.queue.AddRequester(participant, register.Context)
	case protocol.RoleResponder:
		s.queue.AddResponder(participant)
	}
	return nil
}

func (s *Server) handleAccept(conn Conn, envelope protocol.Envelope) error {
	var accept protocol.AcceptConsultation
	if err := envelope.Payload(&accept); err != nil {
		return fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	if accept.RequesterID == "" {
		return fmt.Errorf("%w: accept_consultation without requesterId", ErrProtocol)
	}
	sender, err := s.sender(conn)
	if err != nil {
		return err
	}
	if sender.Role != protocol.RoleResponder {
		return fmt.Errorf("%w: %s is not a responder", ErrStateViolation, sender.ID)
	}
	if accept.ResponderID != "" && accept.ResponderID != sender.ID {
		return fmt.Errorf("%w: %s tried to accept as %s", ErrStateViolation, sender.ID, accept.ResponderID)
	}

	if _, err := s.coordinator.Match(sender.ID, accept.RequesterID); err != nil {
		return err
	}
	s.metrics.matched()
	return nil
}

func (s *Server) handleJoin(conn Conn, envelope protocol.Envelope) error {
	var join protocol.Join
	if err := envelope.Payload(&join); err != nil {
		return fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	sender, err := s.sender(conn)
	if err != nil {
		return err
	}
	return s.coordinator.Join(sender, join.SessionID, join.UserID)
}

func (s *Server) handleEnd(conn Conn, envelope protocol.Envelope) error {
	sender, err := s.sender(conn)
	if err != nil {
		return err
	}
	if !sender.InSession() {
		// Both sides may end at once; the second end finds nothing.
		s.logger.Debug("end_consultation with no session", "participant", sender.ID)
		return nil
	}
	if envelope.SessionID != "" && envelope.SessionID != sender.SessionID {
		return fmt.Errorf("%w: %s ended session %s, bound to %s",
			ErrStateViolation, sender.ID, envelope.SessionID, sender.SessionID)
	}
	s.endSession(sender, EndExplicit)
	return nil
}

func (s *Server) handleDisconnect(conn Conn) {
	participant, ok := s.registry.Lookup(conn)
	if !ok {
		return
	}
	s.registry.Unregister(conn)
	s.logger.Info("participant disconnected",
		"participant", participant.ID,
		"connection", conn.ID(),
	)

	if participant.InSession() {
		s.endSession(participant, EndDisconnect)
	}
	switch participant.Role {
	case protocol.RoleRequester:
		if entry, ok := s.queue.Get(participant.ID); ok && entry.Participant == participant {
			s.queue.RemoveRequester(participant.ID)
		}
	case protocol.RoleResponder:
		if subscribed, ok := s.queue.Responder(participant.ID); ok && subscribed == participant {
			s.queue.RemoveResponder(participant.ID)
		}
	}
}

func (s *Server) endSession(participant *Participant, reason EndReason) {
	if s.coordinator.End(participant, reason) {
		s.metrics.sessionEnded(reason)
	}
}

func (s *Server) sender(conn Conn) (*Participant, error) {
	participant, ok := s.registry.Lookup(conn)
	if !ok {
		return nil, fmt.Errorf("%w: connection %s has not registered", ErrStateViolation, conn.ID())
	}
	return participant, nil
}
