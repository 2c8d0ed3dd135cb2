// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/bureau-foundation/consult/lib/clock"
	"github.com/bureau-foundation/consult/lib/netutil"
	"github.com/bureau-foundation/consult/lib/protocol"
	"github.com/bureau-foundation/consult/negotiation"
	"github.com/bureau-foundation/consult/transport"
)

// maxChatMessage bounds one chat message. Each message is one data
// channel write and arrives as one read.
const maxChatMessage = 4096

const defaultEventBuffer = 256

var (
	errNoSession    = errors.New("no consultation in progress")
	errChatNotReady = errors.New("chat channel is not open yet")
)

var _ negotiation.Prompter = (*client)(nil)

// switchboardConn is the client's connection to the switchboard.
// transport.WebSocketSignaler implements it.
type switchboardConn interface {
	negotiation.Signaler
	Register(ctx context.Context, register protocol.Register) error
	Accept(ctx context.Context, accept protocol.AcceptConsultation) error
	Join(ctx context.Context, join protocol.Join) error
	Inbound() <-chan protocol.Envelope
	Err() error
	Close() error
}

type clientConfig struct {
	UserID string
	Role   protocol.Role
	// Context is the requester's opaque waiting-room payload.
	Context json.RawMessage

	ICE    transport.ICEConfig
	Clock  clock.Clock
	Logger *slog.Logger

	// Deliver hands a message to the UI. It is called from a single
	// goroutine in event order and may block.
	Deliver func(tea.Msg)

	EventBuffer int
}

// client owns the switchboard connection and the current session's
// negotiation engine and chat channel. Switchboard frames are handled
// on one goroutine in arrival order: session setup and teardown happen
// there, before the UI hears about them, so a later frame always finds
// the state an earlier one created.
type client struct {
	config clientConfig
	conn   switchboardConn
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	events chan tea.Msg

	closeOnce sync.Once
	closeErr  error

	mu      sync.Mutex
	session *session
}

type session struct {
	id      string
	partner string
	engine  *negotiation.Engine
	// chat is guarded by client.mu.
	chat *transport.DataChannelConn
}

func newClient(conn switchboardConn, config clientConfig) *client {
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	if config.Deliver == nil {
		config.Deliver = func(tea.Msg) {}
	}
	if config.EventBuffer <= 0 {
		config.EventBuffer = defaultEventBuffer
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &client{
		config: config,
		conn:   conn,
		logger: config.Logger.With("participant", config.UserID, "role", config.Role),
		ctx:    ctx,
		cancel: cancel,
		events: make(chan tea.Msg, config.EventBuffer),
	}
}

// Start begins routing switchboard frames and registers the
// participant.
func (c *client) Start() error {
	go c.forward()
	go c.route()
	return c.Register()
}

// Register joins the waiting room (requesters) or starts watching it
// (responders). Requesters call it again after a consultation to wait
// for another.
func (c *client) Register() error {
	return c.conn.Register(c.ctx, protocol.Register{
		UserID:  c.config.UserID,
		Role:    c.config.Role,
		Context: c.config.Context,
	})
}

// Accept asks for a consultation with requesterID.
func (c *client) Accept(requesterID string) error {
	return c.conn.Accept(c.ctx, protocol.AcceptConsultation{
		ResponderID: c.config.UserID,
		RequesterID: requesterID,
	})
}

// Say sends one chat message to the partner.
func (c *client) Say(text string) error {
	if len(text) > maxChatMessage {
		return fmt.Errorf("message is %d bytes, limit is %d", len(text), maxChatMessage)
	}
	c.mu.Lock()
	if c.session == nil {
		c.mu.Unlock()
		return errNoSession
	}
	chat := c.session.chat
	c.mu.Unlock()
	if chat == nil {
		return errChatNotReady
	}
	if _, err := chat.Write([]byte(text)); err != nil {
		return fmt.Errorf("sending chat message: %w", err)
	}
	return nil
}

// Retry is the prompt's "retry".
func (c *client) Retry() error {
	c.mu.Lock()
	s := c.session
	c.mu.Unlock()
	if s == nil {
		return errNoSession
	}
	return s.engine.Retry(c.ctx)
}

// End is the prompt's "end": the switchboard is told and the partner
// sees the session end.
func (c *client) End() error {
	s := c.takeSession("")
	if s == nil {
		return errNoSession
	}
	err := s.engine.End(c.ctx)
	c.notify(sessionEndedMsg{SessionID: s.id, Reason: "you ended the consultation"})
	return err
}

// Close ends any session in progress and closes the switchboard
// connection. Safe to call more than once.
func (c *client) Close() error {
	c.closeOnce.Do(func() {
		if s := c.takeSession(""); s != nil {
			if err := s.engine.End(c.ctx); err != nil {
				c.logger.Warn("ending consultation on exit failed", "session_id", s.id, "error", err)
			}
		}
		c.closeErr = c.conn.Close()
		c.cancel()
	})
	return c.closeErr
}

// ShowReconnectPrompt implements negotiation.Prompter.
func (c *client) ShowReconnectPrompt(sessionID string) {
	c.notify(promptMsg{SessionID: sessionID, Show: true})
}

// DismissPrompt implements negotiation.Prompter.
func (c *client) DismissPrompt(sessionID string) {
	c.notify(promptMsg{SessionID: sessionID, Show: false})
}

// notify queues message for the UI without blocking. The engine calls
// into the client with its lock held, so this must never wait.
func (c *client) notify(message tea.Msg) {
	select {
	case c.events <- message:
	default:
		c.logger.Warn("UI event queue full, dropping event", "event", fmt.Sprintf("%T", message))
	}
}

func (c *client) forward() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case message := <-c.events:
			c.config.Deliver(message)
		}
	}
}

func (c *client) route() {
	for envelope := range c.conn.Inbound() {
		if envelope.Type.IsSignaling() {
			c.relay(envelope)
			continue
		}
		if err := c.control(envelope); err != nil {
			c.logger.Warn("handling switchboard frame failed", "type", envelope.Type, "error", err)
		}
	}
	if s := c.takeSession(""); s != nil {
		s.engine.Close()
		c.notify(sessionEndedMsg{SessionID: s.id, Reason: "lost the connection to the switchboard"})
	}
	c.notify(offlineMsg{Err: c.conn.Err()})
}

func (c *client) control(envelope protocol.Envelope) error {
	switch envelope.Type {
	case protocol.TypeWaitingRoomJoined:
		var joined protocol.WaitingRoomJoined
		if err := envelope.Payload(&joined); err != nil {
			return err
		}
		c.notify(waitingMsg(joined))
	case protocol.TypeWaitingListUpdate:
		var update protocol.WaitingListUpdate
		if err := envelope.Payload(&update); err != nil {
			return err
		}
		c.notify(waitingListMsg(update))
	case protocol.TypeConsultationStarting:
		var starting protocol.ConsultationStarting
		if err := envelope.Payload(&starting); err != nil {
			return err
		}
		return c.startSession(starting)
	case protocol.TypePeerJoined:
		var joined protocol.PeerJoined
		if err := envelope.Payload(&joined); err != nil {
			return err
		}
		return c.partnerJoined(joined)
	case protocol.TypePeerDisconnected:
		var left protocol.PeerDisconnected
		if err := envelope.Payload(&left); err != nil {
			return err
		}
		if s := c.takeSession(left.SessionID); s != nil {
			s.engine.Close()
			c.notify(sessionEndedMsg{SessionID: s.id, Reason: left.UserID + " left the consultation"})
		}
	default:
		return fmt.Errorf("unexpected message type %s", envelope.Type)
	}
	return nil
}

// startSession builds the engine for a new match and joins. The
// responder is the initiator and offers once the requester has joined.
func (c *client) startSession(starting protocol.ConsultationStarting) error {
	if previous := c.takeSession(""); previous != nil {
		c.logger.Warn("new consultation replaces one still open", "previous_session_id", previous.id)
		previous.engine.Close()
	}

	s := &session{id: starting.SessionID, partner: starting.PartnerID}
	engine, err := negotiation.NewEngine(negotiation.Config{
		SessionID: starting.SessionID,
		LocalID:   c.config.UserID,
		RemoteID:  starting.PartnerID,
		Initiator: c.config.Role == protocol.RoleResponder,
		Links: &transport.PionLinkFactory{
			ICE:      c.config.ICE,
			Logger:   c.logger.With("component", "peerlink"),
			LocalID:  c.config.UserID,
			RemoteID: starting.PartnerID,
			OnChat:   func(conn *transport.DataChannelConn) { c.chatOpened(s, conn) },
		},
		Signaler: c.conn,
		Prompter: c,
		Clock:    c.config.Clock,
		Logger:   c.logger.With("component", "negotiation"),
		OnStateChange: func(state negotiation.State) {
			c.notify(negotiationMsg{SessionID: starting.SessionID, State: state})
		},
	})
	if err != nil {
		return fmt.Errorf("starting session %s: %w", starting.SessionID, err)
	}
	s.engine = engine

	c.mu.Lock()
	c.session = s
	c.mu.Unlock()
	c.notify(sessionStartedMsg{SessionID: s.id, PartnerID: s.partner})

	if err := engine.Start(c.ctx); err != nil {
		c.takeSession(s.id)
		engine.Close()
		return fmt.Errorf("starting session %s: %w", s.id, err)
	}
	c.logger.Info("consultation starting", "session_id", s.id, "partner", s.partner)
	return c.conn.Join(c.ctx, protocol.Join{SessionID: s.id, UserID: c.config.UserID})
}

func (c *client) partnerJoined(joined protocol.PeerJoined) error {
	s := c.current(joined.SessionID)
	if s == nil {
		return fmt.Errorf("peer_joined for unknown session %s", joined.SessionID)
	}
	c.notify(partnerJoinedMsg{SessionID: s.id})
	if c.config.Role != protocol.RoleResponder {
		return nil
	}
	return s.engine.Offer(c.ctx)
}

// relay hands a signaling frame to the current session's engine.
func (c *client) relay(envelope protocol.Envelope) {
	s := c.current(envelope.SessionID)
	if s == nil {
		c.logger.Debug("dropping signaling frame for no session",
			"type", envelope.Type, "session_id", envelope.SessionID)
		return
	}
	err := s.engine.Handle(c.ctx, envelope)
	switch {
	case err == nil:
	case errors.Is(err, negotiation.ErrDuplicate), errors.Is(err, negotiation.ErrClosed):
		c.logger.Debug("ignored signaling frame", "type", envelope.Type, "error", err)
	default:
		c.logger.Warn("signaling frame rejected", "type", envelope.Type, "error", err)
	}
}

func (c *client) chatOpened(s *session, conn *transport.DataChannelConn) {
	c.mu.Lock()
	if c.session != s {
		c.mu.Unlock()
		conn.Close()
		return
	}
	// A retried link opens a fresh channel; the old one closed with
	// its link.
	s.chat = conn
	c.mu.Unlock()

	c.notify(chatReadyMsg{SessionID: s.id})
	go c.readChat(s.id, conn)
}

func (c *client) readChat(sessionID string, conn *transport.DataChannelConn) {
	buffer := make([]byte, maxChatMessage)
	for {
		n, err := conn.Read(buffer)
		if err != nil {
			if netutil.IsExpectedCloseError(err) {
				c.logger.Debug("chat channel closed", "session_id", sessionID)
			} else {
				c.logger.Warn("chat channel read failed", "session_id", sessionID, "error", err)
			}
			return
		}
		c.notify(chatLineMsg{SessionID: sessionID, Text: string(buffer[:n])})
	}
}

// current returns the session if its id is sessionID.
func (c *client) current(sessionID string) *session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil || c.session.id != sessionID {
		return nil
	}
	return c.session
}

// takeSession detaches the current session, or nil if there is none or
// sessionID names another. An empty sessionID matches any session.
func (c *client) takeSession(sessionID string) *session {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.session
	if s == nil || (sessionID != "" && s.id != sessionID) {
		return nil
	}
	c.session = nil
	return s
}
