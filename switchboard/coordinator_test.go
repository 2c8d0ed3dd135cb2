// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package switchboard

import (
	"errors"
	"testing"
	"time"

	"github.com/bureau-foundation/consult/lib/protocol"
)

func TestMatchStartsSession(t *testing.T) {
	f := newFixture()
	r1, r1Conn := f.requester("R1")
	r2, r2Conn := f.requester("R2")
	v1, v1Conn := f.responder("V1")
	_, v2Conn := f.responder("V2")
	for _, conn := range []*fakeConn{r1Conn, r2Conn, v1Conn, v2Conn} {
		conn.drain()
	}

	f.clock.Advance(3 * time.Minute)
	session, err := f.coordinator.Match("V1", "R1")
	if err != nil {
		t.Fatalf("Match: %v", err)
	}

	if r1.SessionID != session.ID || v1.SessionID != session.ID {
		t.Fatalf("bindings = %q/%q, want %q", r1.SessionID, v1.SessionID, session.ID)
	}
	if _, queued := f.queue.Get("R1"); queued {
		t.Fatal("R1 still queued after match")
	}
	if _, subscribed := f.queue.Responder("V1"); subscribed {
		t.Fatal("V1 still watching the waiting room while in session")
	}
	if r2.InSession() {
		t.Fatal("R2 bound to a session")
	}

	toRequester := latest[protocol.ConsultationStarting](t, r1Conn, protocol.TypeConsultationStarting)
	toResponder := latest[protocol.ConsultationStarting](t, v1Conn, protocol.TypeConsultationStarting)
	if toRequester.SessionID != session.ID || toResponder.SessionID != session.ID {
		t.Fatalf("session ids = %q/%q, want %q", toRequester.SessionID, toResponder.SessionID, session.ID)
	}
	if toRequester.PartnerID != "V1" || toResponder.PartnerID != "R1" {
		t.Fatalf("partner ids = %q/%q, want V1/R1", toRequester.PartnerID, toResponder.PartnerID)
	}

	moved := latest[protocol.WaitingRoomJoined](t, r2Conn, protocol.TypeWaitingRoomJoined)
	if moved.Position != 1 {
		t.Fatalf("R2 position after match = %d, want 1", moved.Position)
	}
	update := latest[protocol.WaitingListUpdate](t, v2Conn, protocol.TypeWaitingListUpdate)
	if len(update.WaitingEntries) != 1 || update.WaitingEntries[0].UserID != "R2" {
		t.Fatalf("V2 snapshot = %+v, want [R2]", update.WaitingEntries)
	}

	if len(f.observer.started) != 1 || f.observer.started[0].SessionID != session.ID {
		t.Fatalf("observer started = %+v", f.observer.started)
	}
	if !f.observer.started[0].StartedAt.Equal(epoch.Add(3 * time.Minute)) {
		t.Fatalf("StartedAt = %v", f.observer.started[0].StartedAt)
	}
	if f.coordinator.ActiveCount() != 1 {
		t.Fatalf("ActiveCount() = %d, want 1", f.coordinator.ActiveCount())
	}
}

func TestMatchRaceLost(t *testing.T) {
	f := newFixture()
	_, r1Conn := f.requester("R1")
	_, v1Conn := f.responder("V1")
	v2, v2Conn := f.responder("V2")

	if _, err := f.coordinator.Match("V1", "R1"); err != nil {
		t.Fatalf("first Match: %v", err)
	}
	for _, conn := range []*fakeConn{r1Conn, v1Conn, v2Conn} {
		conn.drain()
	}

	_, err := f.coordinator.Match("V2", "R1")
	if !errors.Is(err, ErrRaceLost) {
		t.Fatalf("second Match error = %v, want ErrRaceLost", err)
	}
	if v2.InSession() {
		t.Fatal("losing responder was bound to a session")
	}
	if f.coordinator.ActiveCount() != 1 {
		t.Fatalf("ActiveCount() = %d, want 1", f.coordinator.ActiveCount())
	}
	for _, conn := range []*fakeConn{r1Conn, v1Conn, v2Conn} {
		requireSilent(t, conn)
	}
}

func TestMatchRejectsBusyOrUnknownResponder(t *testing.T) {
	f := newFixture()
	f.requester("R1")
	f.requester("R2")
	f.responder("V1")

	if _, err := f.coordinator.Match("nobody", "R1"); !errors.Is(err, ErrRaceLost) {
		t.Fatalf("unknown responder: err = %v, want ErrRaceLost", err)
	}
	if _, err := f.coordinator.Match("R2", "R1"); !errors.Is(err, ErrRaceLost) {
		t.Fatalf("requester as responder: err = %v, want ErrRaceLost", err)
	}
	if _, err := f.coordinator.Match("V1", "R1"); err != nil {
		t.Fatalf("Match: %v", err)
	}
	if _, err := f.coordinator.Match("V1", "R2"); !errors.Is(err, ErrRaceLost) {
		t.Fatalf("busy responder: err = %v, want ErrRaceLost", err)
	}
	if _, queued := f.queue.Get("R2"); !queued {
		t.Fatal("R2 dequeued by a failed match")
	}
}

func TestEndNotifiesPartnerOnce(t *testing.T) {
	f := newFixture()
	r1, r1Conn := f.requester("R1")
	v1, v1Conn := f.responder("V1")
	session, err := f.coordinator.Match("V1", "R1")
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	r1Conn.drain()
	v1Conn.drain()

	// V1 disconnects mid-session.
	f.registry.Unregister(v1Conn)
	if !f.coordinator.End(v1, EndDisconnect) {
		t.Fatal("End = false for a live session")
	}

	disconnected := only[protocol.PeerDisconnected](t, r1Conn, protocol.TypePeerDisconnected)
	if disconnected.SessionID != session.ID || disconnected.UserID != "V1" {
		t.Fatalf("peer_disconnected = %+v", disconnected)
	}
	if r1.InSession() || v1.InSession() {
		t.Fatal("bindings survived End")
	}
	if _, ok := f.coordinator.Lookup(session.ID); ok {
		t.Fatal("session record survived End")
	}

	// A second disconnect signal for the same session does nothing.
	if f.coordinator.End(v1, EndDisconnect) {
		t.Fatal("second End = true")
	}
	if f.coordinator.End(r1, EndDisconnect) {
		t.Fatal("End from the partner after the session ended = true")
	}
	requireSilent(t, r1Conn)
	if len(f.observer.ended) != 1 || f.observer.ended[0].Reason != EndDisconnect {
		t.Fatalf("observer ended = %+v, want one disconnect", f.observer.ended)
	}
}

func TestEndResubscribesConnectedResponder(t *testing.T) {
	f := newFixture()
	r1, _ := f.requester("R1")
	f.requester("R2")
	_, v1Conn := f.responder("V1")
	if _, err := f.coordinator.Match("V1", "R1"); err != nil {
		t.Fatalf("Match: %v", err)
	}
	v1Conn.drain()

	f.coordinator.End(r1, EndExplicit)

	disconnected := latest[protocol.PeerDisconnected](t, v1Conn, protocol.TypePeerDisconnected)
	if disconnected.UserID != "R1" {
		t.Fatalf("peer_disconnected user = %q, want R1", disconnected.UserID)
	}
	if _, subscribed := f.queue.Responder("V1"); !subscribed {
		t.Fatal("V1 not back in the waiting room after its session ended")
	}
}

func TestEndExplicitByResponderResubscribesIt(t *testing.T) {
	f := newFixture()
	f.requester("R1")
	v1, v1Conn := f.responder("V1")
	if _, err := f.coordinator.Match("V1", "R1"); err != nil {
		t.Fatalf("Match: %v", err)
	}
	v1Conn.drain()

	f.coordinator.End(v1, EndExplicit)

	update := only[protocol.WaitingListUpdate](t, v1Conn, protocol.TypeWaitingListUpdate)
	if len(update.WaitingEntries) != 0 {
		t.Fatalf("snapshot = %+v, want empty", update.WaitingEntries)
	}
}

func TestJoinNotifiesPartner(t *testing.T) {
	f := newFixture()
	r1, r1Conn := f.requester("R1")
	v1, v1Conn := f.responder("V1")
	session, err := f.coordinator.Match("V1", "R1")
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	r1Conn.drain()
	v1Conn.drain()

	if err := f.coordinator.Join(r1, session.ID, "R1"); err != nil {
		t.Fatalf("Join: %v", err)
	}
	joined := only[protocol.PeerJoined](t, v1Conn, protocol.TypePeerJoined)
	if joined.SessionID != session.ID || joined.UserID != "R1" {
		t.Fatalf("peer_joined = %+v", joined)
	}

	if err := f.coordinator.Join(v1, "other-session", "V1"); !errors.Is(err, ErrStateViolation) {
		t.Fatalf("join for foreign session: err = %v, want ErrStateViolation", err)
	}
	if err := f.coordinator.Join(v1, session.ID, "R1"); !errors.Is(err, ErrStateViolation) {
		t.Fatalf("join as another user: err = %v, want ErrStateViolation", err)
	}
	requireSilent(t, r1Conn)
}

func TestRepeatedJoinNotifiesPartnerOnce(t *testing.T) {
	f := newFixture()
	r1, r1Conn := f.requester("R1")
	v1, v1Conn := f.responder("V1")
	session, err := f.coordinator.Match("V1", "R1")
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	r1Conn.drain()
	v1Conn.drain()

	for range 3 {
		if err := f.coordinator.Join(r1, session.ID, "R1"); err != nil {
			t.Fatalf("Join: %v", err)
		}
	}
	only[protocol.PeerJoined](t, v1Conn, protocol.TypePeerJoined)

	if err := f.coordinator.Join(v1, session.ID, "V1"); err != nil {
		t.Fatalf("Join: %v", err)
	}
	joined := only[protocol.PeerJoined](t, r1Conn, protocol.TypePeerJoined)
	if joined.UserID != "V1" {
		t.Fatalf("peer_joined = %+v, want V1", joined)
	}
	requireSilent(t, v1Conn)
}

func TestMatchRegeneratesCollidingSessionID(t *testing.T) {
	f := newFixture()
	f.requester("R1")
	f.requester("R2")
	f.responder("V1")
	f.responder("V2")

	ids := []string{"dup", "dup", "fresh"}
	f.coordinator.newID = func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}

	first, err := f.coordinator.Match("V1", "R1")
	if err != nil {
		t.Fatalf("first Match: %v", err)
	}
	second, err := f.coordinator.Match("V2", "R2")
	if err != nil {
		t.Fatalf("second Match: %v", err)
	}
	if first.ID != "dup" || second.ID != "fresh" {
		t.Fatalf("session ids = %q, %q; want dup, fresh", first.ID, second.ID)
	}
}

func TestEndAllEndsEverySession(t *testing.T) {
	f := newFixture()
	f.requester("R1")
	f.requester("R2")
	f.responder("V1")
	f.responder("V2")
	if _, err := f.coordinator.Match("V1", "R1"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.coordinator.Match("V2", "R2"); err != nil {
		t.Fatal(err)
	}

	f.coordinator.EndAll()

	if f.coordinator.ActiveCount() != 0 {
		t.Fatalf("ActiveCount() = %d, want 0", f.coordinator.ActiveCount())
	}
	if len(f.observer.ended) != 2 {
		t.Fatalf("observer saw %d ends, want 2", len(f.observer.ended))
	}
	for _, event := range f.observer.ended {
		if event.Reason != EndShutdown {
			t.Fatalf("reason = %q, want shutdown", event.Reason)
		}
	}
}
