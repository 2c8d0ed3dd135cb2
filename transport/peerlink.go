// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/bureau-foundation/consult/lib/protocol"
	"github.com/bureau-foundation/consult/negotiation"
)

// ChatLabel is the label of the consultation's text channel. Both sides
// create it pre-negotiated with the same stream id, so it exists no
// matter which side's offer wins.
const ChatLabel = "consult"

const chatStreamID uint16 = 0

// eventQueueSize bounds the callbacks a PionLink holds for delivery.
// Pion's callback goroutines block when it is full.
const eventQueueSize = 256

var _ negotiation.PeerLink = (*PionLink)(nil)

// PionLinkFactory builds PionLinks for a negotiation engine.
type PionLinkFactory struct {
	ICE    ICEConfig
	Logger *slog.Logger

	// LocalID and RemoteID label the chat connection's addresses.
	LocalID  string
	RemoteID string

	// OnChat receives the chat channel each time a link opens it. A
	// retried link opens a new one; the previous conn is closed with
	// its link.
	OnChat func(conn *DataChannelConn)
}

// NewLink implements negotiation.LinkFactory.
func (f *PionLinkFactory) NewLink(events negotiation.LinkEvents) (negotiation.PeerLink, error) {
	logger := f.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return NewPionLink(f.ICE, events, PionLinkOptions{
		Logger:   logger,
		LocalID:  f.LocalID,
		RemoteID: f.RemoteID,
		OnChat:   f.OnChat,
	})
}

// PionLinkOptions are the optional parts of a PionLink.
type PionLinkOptions struct {
	Logger   *slog.Logger
	LocalID  string
	RemoteID string
	OnChat   func(conn *DataChannelConn)
}

// PionLink is a negotiation.PeerLink over a pion PeerConnection using
// trickle ICE. Pion's callbacks are queued and delivered to the
// LinkEvents from a single goroutine in the order pion raised them,
// never from inside a PionLink method.
type PionLink struct {
	connection *webrtc.PeerConnection
	chat       *webrtc.DataChannel
	events     negotiation.LinkEvents
	options    PionLinkOptions
	logger     *slog.Logger

	queue  chan func()
	closed chan struct{}

	mu       sync.Mutex
	chatConn *DataChannelConn

	closeOnce sync.Once
	closeErr  error
}

// NewPionLink creates the PeerConnection and its chat channel.
func NewPionLink(ice ICEConfig, events negotiation.LinkEvents, options PionLinkOptions) (*PionLink, error) {
	if events == nil {
		return nil, errors.New("transport: PionLink requires LinkEvents")
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.DiscardHandler)
	}

	connection, err := newPeerConnection(ice)
	if err != nil {
		return nil, fmt.Errorf("creating peer connection: %w", err)
	}

	link := &PionLink{
		connection: connection,
		events:     events,
		options:    options,
		logger:     options.Logger,
		queue:      make(chan func(), eventQueueSize),
		closed:     make(chan struct{}),
	}

	negotiated := true
	ordered := true
	streamID := chatStreamID
	chat, err := connection.CreateDataChannel(ChatLabel, &webrtc.DataChannelInit{
		Ordered:    &ordered,
		Negotiated: &negotiated,
		ID:         &streamID,
	})
	if err != nil {
		connection.Close()
		return nil, fmt.Errorf("creating %s data channel: %w", ChatLabel, err)
	}
	link.chat = chat
	chat.OnOpen(link.chatOpened)

	connection.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		// nil marks the end of gathering.
		if candidate == nil {
			return
		}
		init := candidate.ToJSON()
		link.post(func() {
			events.LocalCandidate(protocol.ICECandidate{
				Candidate:        init.Candidate,
				SDPMid:           init.SDPMid,
				SDPMLineIndex:    init.SDPMLineIndex,
				UsernameFragment: init.UsernameFragment,
			})
		})
	})
	connection.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		link.logger.Debug("ICE state change", "state", state.String())
		mapped, ok := linkState(state)
		if !ok {
			return
		}
		link.post(func() { events.StateChanged(mapped) })
	})

	go link.deliver()
	return link, nil
}

// newPeerConnection creates a pion PeerConnection. Data channels are
// detached so the chat channel can be used as a stream. Loopback
// candidates are gathered so two peers on one host (tests, local
// development) can connect.
func newPeerConnection(ice ICEConfig) (*webrtc.PeerConnection, error) {
	settingEngine := webrtc.SettingEngine{}
	settingEngine.DetachDataChannels()
	settingEngine.SetIncludeLoopbackCandidate(true)

	api := webrtc.NewAPI(webrtc.WithSettingEngine(settingEngine))
	return api.NewPeerConnection(webrtc.Configuration{
		ICEServers: ice.Servers,
	})
}

func linkState(state webrtc.ICEConnectionState) (negotiation.LinkState, bool) {
	switch state {
	case webrtc.ICEConnectionStateNew:
		return negotiation.LinkNew, true
	case webrtc.ICEConnectionStateChecking:
		return negotiation.LinkConnecting, true
	case webrtc.ICEConnectionStateConnected, webrtc.ICEConnectionStateCompleted:
		return negotiation.LinkConnected, true
	case webrtc.ICEConnectionStateDisconnected:
		return negotiation.LinkDisconnected, true
	case webrtc.ICEConnectionStateFailed:
		return negotiation.LinkFailed, true
	case webrtc.ICEConnectionStateClosed:
		return negotiation.LinkClosed, true
	}
	return 0, false
}

func (l *PionLink) post(event func()) {
	select {
	case <-l.closed:
	case l.queue <- event:
	}
}

func (l *PionLink) deliver() {
	for {
		select {
		case <-l.closed:
			return
		case event := <-l.queue:
			event()
		}
	}
}

func (l *PionLink) chatOpened() {
	raw, err := l.chat.Detach()
	if err != nil {
		l.logger.Error("detaching chat channel failed", "error", err)
		return
	}
	conn := NewDataChannelConn(raw,
		l.options.LocalID+"/"+ChatLabel,
		l.options.RemoteID+"/"+ChatLabel,
	)

	l.mu.Lock()
	select {
	case <-l.closed:
		l.mu.Unlock()
		conn.Close()
		return
	default:
	}
	l.chatConn = conn
	l.mu.Unlock()

	l.logger.Debug("chat channel open", "remote", l.options.RemoteID)
	if l.options.OnChat != nil {
		l.post(func() { l.options.OnChat(conn) })
	}
}

// CreateOffer implements negotiation.PeerLink.
func (l *PionLink) CreateOffer(ctx context.Context, restart bool) (protocol.SessionDescription, error) {
	offer, err := l.connection.CreateOffer(&webrtc.OfferOptions{ICERestart: restart})
	if err != nil {
		return protocol.SessionDescription{}, fmt.Errorf("creating offer: %w", err)
	}
	return fromPion(offer), nil
}

// CreateAnswer implements negotiation.PeerLink.
func (l *PionLink) CreateAnswer(ctx context.Context) (protocol.SessionDescription, error) {
	answer, err := l.connection.CreateAnswer(nil)
	if err != nil {
		return protocol.SessionDescription{}, fmt.Errorf("creating answer: %w", err)
	}
	return fromPion(answer), nil
}

// SetLocalDescription implements negotiation.PeerLink.
func (l *PionLink) SetLocalDescription(ctx context.Context, description protocol.SessionDescription) error {
	if err := l.connection.SetLocalDescription(toPion(description)); err != nil {
		return fmt.Errorf("setting local %s: %w", description.Type, err)
	}
	return nil
}

// SetRemoteDescription implements negotiation.PeerLink.
func (l *PionLink) SetRemoteDescription(ctx context.Context, description protocol.SessionDescription) error {
	if err := l.connection.SetRemoteDescription(toPion(description)); err != nil {
		return fmt.Errorf("setting remote %s: %w", description.Type, err)
	}
	return nil
}

// Rollback implements negotiation.PeerLink.
func (l *PionLink) Rollback(ctx context.Context) error {
	err := l.connection.SetLocalDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeRollback})
	if err != nil {
		return fmt.Errorf("rolling back local offer: %w", err)
	}
	return nil
}

// AddICECandidate implements negotiation.PeerLink.
func (l *PionLink) AddICECandidate(ctx context.Context, candidate protocol.ICECandidate) error {
	err := l.connection.AddICECandidate(webrtc.ICECandidateInit{
		Candidate:        candidate.Candidate,
		SDPMid:           candidate.SDPMid,
		SDPMLineIndex:    candidate.SDPMLineIndex,
		UsernameFragment: candidate.UsernameFragment,
	})
	if err != nil {
		return fmt.Errorf("adding remote candidate: %w", err)
	}
	return nil
}

// Close stops event delivery and closes the chat conn and the
// PeerConnection. Safe to call more than once.
func (l *PionLink) Close() error {
	l.closeOnce.Do(func() {
		l.mu.Lock()
		close(l.closed)
		conn := l.chatConn
		l.chatConn = nil
		l.mu.Unlock()

		if conn != nil {
			conn.Close()
		}
		l.closeErr = l.connection.Close()
	})
	return l.closeErr
}

func fromPion(description webrtc.SessionDescription) protocol.SessionDescription {
	return protocol.SessionDescription{
		Type: description.Type.String(),
		SDP:  description.SDP,
	}
}

func toPion(description protocol.SessionDescription) webrtc.SessionDescription {
	return webrtc.SessionDescription{
		Type: webrtc.NewSDPType(description.Type),
		SDP:  description.SDP,
	}
}
