// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/bureau-foundation/consult/lib/protocol"
	"github.com/bureau-foundation/consult/negotiation"
)

var _ negotiation.Signaler = (*MemorySignaler)(nil)

// memoryQueue bounds the frames waiting on one side of a memory pair.
const memoryQueue = 256

// MemorySignaler is one end of an in-process signaling pair for tests.
// Frames sent on one end arrive on the other end's Inbound in send
// order, with senderId attached the way the switchboard relays them.
// No switchboard or network is involved.
type MemorySignaler struct {
	userID  string
	partner *MemorySignaler
	inbound chan protocol.Envelope

	// duplicate delivers every frame twice, as a relay might across a
	// reconnect.
	duplicate atomic.Bool

	mu     sync.Mutex
	closed bool
	ends   int
}

// NewMemorySignalerPair returns two connected ends for the named
// participants.
func NewMemorySignalerPair(firstID, secondID string) (*MemorySignaler, *MemorySignaler) {
	first := &MemorySignaler{userID: firstID, inbound: make(chan protocol.Envelope, memoryQueue)}
	second := &MemorySignaler{userID: secondID, inbound: make(chan protocol.Envelope, memoryQueue)}
	first.partner = second
	second.partner = first
	return first, second
}

// Inbound delivers the partner's frames. Closed by Close.
func (s *MemorySignaler) Inbound() <-chan protocol.Envelope { return s.inbound }

// DuplicateDeliveries makes every later frame from this end arrive
// twice at the partner.
func (s *MemorySignaler) DuplicateDeliveries(enabled bool) { s.duplicate.Store(enabled) }

// Ends returns how many end_consultation frames this end has sent.
// The partner never sees them; the switchboard turns them into
// peer_disconnected.
func (s *MemorySignaler) Ends() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ends
}

// SendOffer implements negotiation.Signaler.
func (s *MemorySignaler) SendOffer(_ context.Context, offer protocol.Offer) error {
	return s.relay(protocol.TypeSendOffer, offer)
}

// SendAnswer implements negotiation.Signaler.
func (s *MemorySignaler) SendAnswer(_ context.Context, answer protocol.Answer) error {
	return s.relay(protocol.TypeSendAnswer, answer)
}

// SendCandidate implements negotiation.Signaler.
func (s *MemorySignaler) SendCandidate(_ context.Context, candidate protocol.Candidate) error {
	return s.relay(protocol.TypeICECandidate, candidate)
}

// SendEnd implements negotiation.Signaler.
func (s *MemorySignaler) SendEnd(_ context.Context, _ protocol.EndConsultation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSignalerClosed
	}
	s.ends++
	return nil
}

// Close closes this end's Inbound. Frames sent to a closed end fail
// with ErrSignalerClosed.
func (s *MemorySignaler) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.inbound)
	}
	return nil
}

func (s *MemorySignaler) relay(messageType protocol.Type, payload any) error {
	frame, err := protocol.Encode(messageType, payload)
	if err != nil {
		return err
	}
	frame, err = protocol.WithSender(frame, s.userID)
	if err != nil {
		return err
	}
	envelope, err := protocol.Decode(frame)
	if err != nil {
		return err
	}

	copies := 1
	if s.duplicate.Load() {
		copies = 2
	}
	for range copies {
		if err := s.partner.deliver(envelope); err != nil {
			return err
		}
	}
	return nil
}

func (s *MemorySignaler) deliver(envelope protocol.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSignalerClosed
	}
	select {
	case s.inbound <- envelope:
		return nil
	default:
		return ErrSendQueueFull
	}
}
