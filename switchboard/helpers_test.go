// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package switchboard

import (
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/consult/lib/clock"
	"github.com/bureau-foundation/consult/lib/protocol"
)

// epoch is the fake clock's starting time in every test.
var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// fakeConn records every frame the switchboard sends it.
type fakeConn struct {
	id string

	mu     sync.Mutex
	frames [][]byte
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Notify(frame []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, append([]byte(nil), frame...))
}

// drain returns and forgets every recorded frame.
func (c *fakeConn) drain() []protocol.Envelope {
	c.mu.Lock()
	frames := c.frames
	c.frames = nil
	c.mu.Unlock()

	envelopes := make([]protocol.Envelope, 0, len(frames))
	for _, frame := range frames {
		envelope, err := protocol.Decode(frame)
		if err != nil {
			panic("switchboard sent an undecodable frame: " + string(frame))
		}
		envelopes = append(envelopes, envelope)
	}
	return envelopes
}

// only drains the connection and requires exactly one frame of type
// messageType, decoded into T.
func only[T any](t *testing.T, conn *fakeConn, messageType protocol.Type) T {
	t.Helper()
	envelopes := conn.drain()
	if len(envelopes) != 1 {
		t.Fatalf("%s received %d frames (%s), want exactly one %s",
			conn.id, len(envelopes), types(envelopes), messageType)
	}
	return decodeAs[T](t, envelopes[0], messageType)
}

// latest drains the connection and returns the last frame of
// messageType, failing if there is none.
func latest[T any](t *testing.T, conn *fakeConn, messageType protocol.Type) T {
	t.Helper()
	envelopes := conn.drain()
	for index := len(envelopes) - 1; index >= 0; index-- {
		if envelopes[index].Type == messageType {
			return decodeAs[T](t, envelopes[index], messageType)
		}
	}
	t.Fatalf("%s received no %s among %s", conn.id, messageType, types(envelopes))
	panic("unreachable")
}

func requireSilent(t *testing.T, conn *fakeConn) {
	t.Helper()
	if envelopes := conn.drain(); len(envelopes) != 0 {
		t.Fatalf("%s received %s, want nothing", conn.id, types(envelopes))
	}
}

func decodeAs[T any](t *testing.T, envelope protocol.Envelope, messageType protocol.Type) T {
	t.Helper()
	if envelope.Type != messageType {
		t.Fatalf("frame type = %q, want %q", envelope.Type, messageType)
	}
	var value T
	if err := json.Unmarshal(envelope.Raw, &value); err != nil {
		t.Fatalf("decoding %s: %v", messageType, err)
	}
	return value
}

func types(envelopes []protocol.Envelope) []protocol.Type {
	result := make([]protocol.Type, len(envelopes))
	for index, envelope := range envelopes {
		result[index] = envelope.Type
	}
	return result
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// fixture wires a registry, queue and coordinator directly, without a
// server loop.
type fixture struct {
	clock       *clock.FakeClock
	registry    *ConnectionRegistry
	queue       *WaitingQueue
	coordinator *MatchCoordinator
	relay       *SignalingRelay
	observer    *recordingObserver
}

func newFixture() *fixture {
	fake := clock.Fake(epoch)
	registry := NewConnectionRegistry()
	queue := NewWaitingQueue(fake, 15, testLogger())
	observer := &recordingObserver{}
	coordinator := NewMatchCoordinator(registry, queue, observer, fake, testLogger())
	return &fixture{
		clock:       fake,
		registry:    registry,
		queue:       queue,
		coordinator: coordinator,
		relay:       NewSignalingRelay(registry, coordinator, testLogger()),
		observer:    observer,
	}
}

// requester registers and queues a requester on a fresh connection.
func (f *fixture) requester(id string) (*Participant, *fakeConn) {
	conn := newFakeConn("conn-" + id)
	participant := &Participant{ID: id, Role: protocol.RoleRequester}
	f.registry.Register(conn, participant)
	f.queue.AddRequester(participant, nil)
	return participant, conn
}

// responder registers and subscribes a responder on a fresh connection.
func (f *fixture) responder(id string) (*Participant, *fakeConn) {
	conn := newFakeConn("conn-" + id)
	participant := &Participant{ID: id, Role: protocol.RoleResponder}
	f.registry.Register(conn, participant)
	f.queue.AddResponder(participant)
	return participant, conn
}

type recordingObserver struct {
	mu      sync.Mutex
	started []SessionEvent
	ended   []SessionEvent
}

func (o *recordingObserver) SessionStarted(event SessionEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started = append(o.started, event)
}

func (o *recordingObserver) SessionEnded(event SessionEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ended = append(o.ended, event)
}
