// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bureau-foundation/consult/lib/clock"
	"github.com/bureau-foundation/consult/lib/protocol"
	"github.com/bureau-foundation/consult/negotiation"
)

var (
	// ErrSignalerClosed is returned by sends after Close or after the
	// connection to the server is lost.
	ErrSignalerClosed = errors.New("signaler closed")

	// ErrSendQueueFull is returned when the outbound queue has no room.
	ErrSendQueueFull = errors.New("signaler send queue full")
)

var _ negotiation.Signaler = (*WebSocketSignaler)(nil)

// SignalerConfig holds the parameters for DialSignaler.
type SignalerConfig struct {
	// URL is the switchboard's WebSocket endpoint, e.g.
	// "ws://localhost:8080/ws".
	URL    string
	Header http.Header

	Clock  clock.Clock
	Logger *slog.Logger

	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	SendQueue        int
	InboundQueue     int
}

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultWriteTimeout     = 10 * time.Second
	defaultSignalerQueue    = 64
)

// WebSocketSignaler is a client connection to the switchboard. It
// sends control and signaling frames and exposes every inbound frame
// on Inbound, in arrival order.
//
// Sends never block on the network: frames are queued for a writer
// goroutine, so a Signaler call made under the engine's lock returns
// promptly.
type WebSocketSignaler struct {
	ws      *websocket.Conn
	clock   clock.Clock
	logger  *slog.Logger
	timeout time.Duration

	send    chan []byte
	inbound chan protocol.Envelope

	closed    chan struct{}
	closeOnce sync.Once
	done      chan struct{}

	mu  sync.Mutex
	err error
}

// DialSignaler connects to the switchboard at config.URL.
func DialSignaler(ctx context.Context, config SignalerConfig) (*WebSocketSignaler, error) {
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	if config.HandshakeTimeout <= 0 {
		config.HandshakeTimeout = defaultHandshakeTimeout
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = defaultWriteTimeout
	}
	if config.SendQueue <= 0 {
		config.SendQueue = defaultSignalerQueue
	}
	if config.InboundQueue <= 0 {
		config.InboundQueue = defaultSignalerQueue
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: config.HandshakeTimeout,
		Proxy:            http.ProxyFromEnvironment,
	}
	ws, _, err := dialer.DialContext(ctx, config.URL, config.Header)
	if err != nil {
		return nil, fmt.Errorf("dialing switchboard %s: %w", config.URL, err)
	}

	signaler := &WebSocketSignaler{
		ws:      ws,
		clock:   config.Clock,
		logger:  config.Logger.With("switchboard", config.URL),
		timeout: config.WriteTimeout,
		send:    make(chan []byte, config.SendQueue),
		inbound: make(chan protocol.Envelope, config.InboundQueue),
		closed:  make(chan struct{}),
		done:    make(chan struct{}),
	}
	go signaler.writeLoop()
	go signaler.readLoop()
	return signaler, nil
}

// Inbound delivers frames from the switchboard. It is closed when the
// connection ends; Err then reports why.
func (s *WebSocketSignaler) Inbound() <-chan protocol.Envelope { return s.inbound }

// Done is closed once the connection has ended.
func (s *WebSocketSignaler) Done() <-chan struct{} { return s.done }

// Err returns the error that ended the connection, or nil after a
// clean Close.
func (s *WebSocketSignaler) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Register binds this connection to a participant.
func (s *WebSocketSignaler) Register(ctx context.Context, register protocol.Register) error {
	return s.enqueue(protocol.TypeRegister, register)
}

// Accept asks the switchboard to match a responder with a requester.
func (s *WebSocketSignaler) Accept(ctx context.Context, accept protocol.AcceptConsultation) error {
	return s.enqueue(protocol.TypeAcceptConsultation, accept)
}

// Join confirms entry into a matched session.
func (s *WebSocketSignaler) Join(ctx context.Context, join protocol.Join) error {
	return s.enqueue(protocol.TypeJoin, join)
}

// SendOffer implements negotiation.Signaler.
func (s *WebSocketSignaler) SendOffer(ctx context.Context, offer protocol.Offer) error {
	return s.enqueue(protocol.TypeSendOffer, offer)
}

// SendAnswer implements negotiation.Signaler.
func (s *WebSocketSignaler) SendAnswer(ctx context.Context, answer protocol.Answer) error {
	return s.enqueue(protocol.TypeSendAnswer, answer)
}

// SendCandidate implements negotiation.Signaler.
func (s *WebSocketSignaler) SendCandidate(ctx context.Context, candidate protocol.Candidate) error {
	return s.enqueue(protocol.TypeICECandidate, candidate)
}

// SendEnd implements negotiation.Signaler.
func (s *WebSocketSignaler) SendEnd(ctx context.Context, end protocol.EndConsultation) error {
	return s.enqueue(protocol.TypeEndConsultation, end)
}

func (s *WebSocketSignaler) enqueue(messageType protocol.Type, payload any) error {
	frame, err := protocol.Encode(messageType, payload)
	if err != nil {
		return err
	}
	select {
	case <-s.closed:
		return ErrSignalerClosed
	default:
	}
	select {
	case s.send <- frame:
		return nil
	default:
		return fmt.Errorf("%w: dropping %s", ErrSendQueueFull, messageType)
	}
}

// Close sends a close frame and tears down the connection. Queued
// frames are flushed first. Safe to call more than once.
func (s *WebSocketSignaler) Close() error {
	s.shutdown(nil)
	<-s.done
	return nil
}

func (s *WebSocketSignaler) shutdown(err error) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.closed)
	})
}

func (s *WebSocketSignaler) readLoop() {
	defer close(s.inbound)
	for {
		messageType, frame, err := s.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.shutdown(nil)
			} else {
				s.shutdown(fmt.Errorf("reading from switchboard: %w", err))
			}
			return
		}
		if messageType != websocket.TextMessage {
			s.logger.Warn("dropping non-text frame", "frame_type", messageType)
			continue
		}
		envelope, err := protocol.Decode(frame)
		if err != nil {
			s.logger.Warn("dropping malformed frame", "error", err)
			continue
		}
		select {
		case s.inbound <- envelope:
		case <-s.closed:
			return
		}
	}
}

func (s *WebSocketSignaler) writeLoop() {
	defer func() {
		s.ws.Close()
		close(s.done)
	}()

	for {
		select {
		case frame := <-s.send:
			if err := s.write(frame); err != nil {
				s.shutdown(err)
				return
			}
		case <-s.closed:
			s.flush()
			deadline := s.clock.Now().Add(s.timeout)
			message := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			if err := s.ws.WriteControl(websocket.CloseMessage, message, deadline); err != nil &&
				!errors.Is(err, websocket.ErrCloseSent) {
				s.logger.Debug("close frame failed", "error", err)
			}
			return
		}
	}
}

func (s *WebSocketSignaler) flush() {
	for {
		select {
		case frame := <-s.send:
			if err := s.write(frame); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (s *WebSocketSignaler) write(frame []byte) error {
	if err := s.ws.SetWriteDeadline(s.clock.Now().Add(s.timeout)); err != nil {
		return fmt.Errorf("writing to switchboard: %w", err)
	}
	if err := s.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("writing to switchboard: %w", err)
	}
	return nil
}
