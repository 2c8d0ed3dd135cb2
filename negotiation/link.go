// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package negotiation

import (
	"context"

	"github.com/bureau-foundation/consult/lib/protocol"
)

// LinkState is the connectivity of a PeerLink.
type LinkState int

const (
	LinkNew LinkState = iota
	LinkConnecting
	LinkConnected
	LinkDisconnected
	LinkFailed
	LinkClosed
)

func (s LinkState) String() string {
	switch s {
	case LinkNew:
		return "new"
	case LinkConnecting:
		return "connecting"
	case LinkConnected:
		return "connected"
	case LinkDisconnected:
		return "disconnected"
	case LinkFailed:
		return "failed"
	case LinkClosed:
		return "closed"
	}
	return "unknown"
}

// unhealthy reports whether s should start recovery.
func (s LinkState) unhealthy() bool {
	return s == LinkDisconnected || s == LinkFailed
}

// PeerLink is the peer connection the engine negotiates. Methods are
// called with the engine's lock held, one at a time.
type PeerLink interface {
	// CreateOffer produces a local offer. restart asks for fresh ICE
	// credentials so connectivity is re-gathered.
	CreateOffer(ctx context.Context, restart bool) (protocol.SessionDescription, error)

	// CreateAnswer produces an answer to the applied remote offer.
	CreateAnswer(ctx context.Context) (protocol.SessionDescription, error)

	SetLocalDescription(ctx context.Context, description protocol.SessionDescription) error
	SetRemoteDescription(ctx context.Context, description protocol.SessionDescription) error

	// Rollback discards the outstanding local offer.
	Rollback(ctx context.Context) error

	AddICECandidate(ctx context.Context, candidate protocol.ICECandidate) error

	Close() error
}

// LinkEvents receives a PeerLink's asynchronous events. Implementations
// of PeerLink must not call these while inside one of their own
// methods, since the engine's lock is held there.
type LinkEvents interface {
	LocalCandidate(candidate protocol.ICECandidate)
	StateChanged(state LinkState)
}

// LinkFactory builds peer links. The engine calls it once at start and
// again for every retry or remote rebuild.
type LinkFactory interface {
	NewLink(events LinkEvents) (PeerLink, error)
}

// LinkFactoryFunc adapts a function to LinkFactory.
type LinkFactoryFunc func(events LinkEvents) (PeerLink, error)

func (f LinkFactoryFunc) NewLink(events LinkEvents) (PeerLink, error) { return f(events) }

// Signaler carries the engine's outbound messages to the partner
// through the switchboard. Called with the engine's lock held; must not
// call back into the engine.
type Signaler interface {
	SendOffer(ctx context.Context, offer protocol.Offer) error
	SendAnswer(ctx context.Context, answer protocol.Answer) error
	SendCandidate(ctx context.Context, candidate protocol.Candidate) error
	SendEnd(ctx context.Context, end protocol.EndConsultation) error
}

// Prompter shows and hides the end/retry choice. The user's answer
// comes back as Engine.End or Engine.Retry. Called with the engine's
// lock held; must not call back into the engine synchronously.
type Prompter interface {
	ShowReconnectPrompt(sessionID string)
	DismissPrompt(sessionID string)
}
