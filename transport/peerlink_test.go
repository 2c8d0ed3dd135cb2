// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/bureau-foundation/consult/lib/protocol"
	"github.com/bureau-foundation/consult/lib/testutil"
	"github.com/bureau-foundation/consult/negotiation"
)

const linkTimeout = 30 * time.Second

// peer is one side of a pion loopback consultation.
type peer struct {
	engine *negotiation.Engine
	states chan negotiation.State
	chats  chan *DataChannelConn
}

// pump feeds relayed frames to engine. Duplicates and frames arriving
// after Close are expected and ignored.
func pump(ctx context.Context, engine *negotiation.Engine, inbound <-chan protocol.Envelope) {
	for {
		select {
		case <-ctx.Done():
			return
		case envelope, ok := <-inbound:
			if !ok {
				return
			}
			engine.Handle(ctx, envelope)
		}
	}
}

func startPeer(ctx context.Context, t *testing.T, local, remote string, initiator bool, signaler *MemorySignaler) *peer {
	t.Helper()
	p := &peer{
		states: make(chan negotiation.State, 64),
		chats:  make(chan *DataChannelConn, 4),
	}
	logger := slog.New(slog.DiscardHandler)
	engine, err := negotiation.NewEngine(negotiation.Config{
		SessionID: "session-loopback",
		LocalID:   local,
		RemoteID:  remote,
		Initiator: initiator,
		Links: &PionLinkFactory{
			Logger:   logger,
			LocalID:  local,
			RemoteID: remote,
			OnChat:   func(conn *DataChannelConn) { p.chats <- conn },
		},
		Signaler: signaler,
		Prompter: noPrompt{},
		Logger:   logger,
		OnStateChange: func(state negotiation.State) {
			select {
			case p.states <- state:
			default:
			}
		},
	})
	if err != nil {
		t.Fatalf("NewEngine(%s): %v", local, err)
	}
	p.engine = engine
	t.Cleanup(func() { engine.Close() })

	if err := engine.Start(ctx); err != nil {
		t.Fatalf("Start(%s): %v", local, err)
	}
	go pump(ctx, engine, signaler.Inbound())
	return p
}

func (p *peer) waitConnected(t *testing.T) {
	t.Helper()
	deadline := time.After(linkTimeout) //nolint:realclock
	for {
		select {
		case state := <-p.states:
			if state == negotiation.StateConnected {
				return
			}
		case <-deadline:
			t.Fatalf("engine never reached connected, last state %s", p.engine.State())
		}
	}
}

type noPrompt struct{}

func (noPrompt) ShowReconnectPrompt(string) {}
func (noPrompt) DismissPrompt(string)       {}

func connectLoopback(t *testing.T, duplicate bool) (*peer, *peer) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	responderSignal, requesterSignal := NewMemorySignalerPair("responder", "requester")
	t.Cleanup(func() {
		responderSignal.Close()
		requesterSignal.Close()
	})
	responderSignal.DuplicateDeliveries(duplicate)
	requesterSignal.DuplicateDeliveries(duplicate)

	responder := startPeer(ctx, t, "responder", "requester", true, responderSignal)
	requester := startPeer(ctx, t, "requester", "responder", false, requesterSignal)

	if err := responder.engine.Offer(ctx); err != nil {
		t.Fatalf("Offer: %v", err)
	}
	responder.waitConnected(t)
	requester.waitConnected(t)
	return responder, requester
}

func TestPionLink_Loopback(t *testing.T) {
	responder, requester := connectLoopback(t, false)

	responderChat := testutil.RequireReceive(t, responder.chats, linkTimeout, "responder chat channel")
	requesterChat := testutil.RequireReceive(t, requester.chats, linkTimeout, "requester chat channel")

	if got := responderChat.RemoteAddr().String(); got != "requester/"+ChatLabel {
		t.Errorf("RemoteAddr() = %q, want %q", got, "requester/"+ChatLabel)
	}

	go func() {
		if _, err := responderChat.Write([]byte("how is the patient today?")); err != nil {
			t.Errorf("Write: %v", err)
		}
	}()
	buffer := make([]byte, 256)
	requesterChat.SetReadDeadline(time.Now().Add(linkTimeout)) //nolint:realclock
	n, err := requesterChat.Read(buffer)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(buffer[:n]) != "how is the patient today?" {
		t.Errorf("read = %q, want %q", buffer[:n], "how is the patient today?")
	}
}

func TestPionLink_DuplicateDeliveries(t *testing.T) {
	// Every offer, answer and candidate arrives twice. The engines
	// discard the copies and still connect.
	connectLoopback(t, true)
}

func TestPionLink_CloseEndsChat(t *testing.T) {
	responder, requester := connectLoopback(t, false)
	testutil.RequireReceive(t, responder.chats, linkTimeout, "responder chat channel")
	requesterChat := testutil.RequireReceive(t, requester.chats, linkTimeout, "requester chat channel")

	if err := requester.engine.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if requester.engine.State() != negotiation.StateClosed {
		t.Fatalf("State() = %s, want closed", requester.engine.State())
	}
	if _, err := requesterChat.Read(make([]byte, 8)); err == nil {
		t.Fatalf("Read after Close = %v, want a closed-stream error", err)
	}
}

func TestLinkStateMapping(t *testing.T) {
	if _, ok := linkState(0); ok {
		t.Error("unknown ICE state mapped to a link state")
	}
}
