// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package switchboard

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/bureau-foundation/consult/lib/protocol"
)

func TestWaitingQueuePositionsFollowJoinOrder(t *testing.T) {
	f := newFixture()

	_, connA := f.requester("a")
	_, connB := f.requester("b")
	_, connC := f.requester("c")

	for index, conn := range []*fakeConn{connA, connB, connC} {
		joined := only[protocol.WaitingRoomJoined](t, conn, protocol.TypeWaitingRoomJoined)
		if joined.Position != index+1 {
			t.Fatalf("%s position = %d, want %d", conn.id, joined.Position, index+1)
		}
	}

	if !f.queue.RemoveRequester("b") {
		t.Fatal("RemoveRequester(b) = false")
	}

	// Every remaining requester hears its recomputed position once:
	// a keeps 1, c moves up to 2.
	if joined := only[protocol.WaitingRoomJoined](t, connA, protocol.TypeWaitingRoomJoined); joined.Position != 1 {
		t.Fatalf("a position after removal = %d, want 1", joined.Position)
	}
	if joined := only[protocol.WaitingRoomJoined](t, connC, protocol.TypeWaitingRoomJoined); joined.Position != 2 {
		t.Fatalf("c position after removal = %d, want 2", joined.Position)
	}

	snapshot := f.queue.Snapshot()
	if len(snapshot) != 2 || snapshot[0].UserID != "a" || snapshot[1].UserID != "c" {
		t.Fatalf("Snapshot() = %+v, want [a c]", snapshot)
	}

	if f.queue.RemoveRequester("b") {
		t.Fatal("second RemoveRequester(b) = true")
	}
}

func TestWaitingQueueTiedJoinTimesKeepRegistrationOrder(t *testing.T) {
	f := newFixture()

	// The fake clock never advances, so every entry has the same
	// JoinedAt.
	for _, id := range []string{"r3", "r1", "r2"} {
		f.requester(id)
	}

	snapshot := f.queue.Snapshot()
	for index, want := range []string{"r3", "r1", "r2"} {
		if snapshot[index].UserID != want || snapshot[index].Position != index+1 {
			t.Fatalf("snapshot[%d] = %s pos %d, want %s pos %d",
				index, snapshot[index].UserID, snapshot[index].Position, want, index+1)
		}
	}
}

func TestWaitingQueueNewResponderReceivesSnapshot(t *testing.T) {
	f := newFixture()

	f.requester("R1")
	f.clock.Advance(time.Second)
	f.requester("R2")
	f.clock.Advance(time.Second)

	_, responderConn := f.responder("V1")

	update := only[protocol.WaitingListUpdate](t, responderConn, protocol.TypeWaitingListUpdate)
	entries := update.WaitingEntries
	if len(entries) != 2 {
		t.Fatalf("snapshot has %d entries, want 2", len(entries))
	}
	if entries[0].UserID != "R1" || entries[0].Position != 1 {
		t.Fatalf("entries[0] = %+v, want R1 pos 1", entries[0])
	}
	if entries[1].UserID != "R2" || entries[1].Position != 2 {
		t.Fatalf("entries[1] = %+v, want R2 pos 2", entries[1])
	}
	if !entries[0].JoinedAt.Equal(epoch) {
		t.Fatalf("R1 joinedAt = %v, want %v", entries[0].JoinedAt, epoch)
	}
	if !entries[1].JoinedAt.Equal(epoch.Add(time.Second)) {
		t.Fatalf("R2 joinedAt = %v, want %v", entries[1].JoinedAt, epoch.Add(time.Second))
	}
}

func TestWaitingQueueFansOutToEveryResponder(t *testing.T) {
	f := newFixture()
	_, conn1 := f.responder("V1")
	_, conn2 := f.responder("V2")
	conn1.drain()
	conn2.drain()

	participant := &Participant{ID: "R1", Role: protocol.RoleRequester}
	f.registry.Register(newFakeConn("conn-R1"), participant)
	f.queue.AddRequester(participant, json.RawMessage(`{"reason":"limping"}`))

	for _, conn := range []*fakeConn{conn1, conn2} {
		update := only[protocol.WaitingListUpdate](t, conn, protocol.TypeWaitingListUpdate)
		if len(update.WaitingEntries) != 1 {
			t.Fatalf("%s snapshot has %d entries, want 1", conn.id, len(update.WaitingEntries))
		}
		if got := string(update.WaitingEntries[0].Context); got != `{"reason":"limping"}` {
			t.Fatalf("%s context = %s", conn.id, got)
		}
	}
}

func TestWaitingQueueEstimatedWait(t *testing.T) {
	f := newFixture()

	if got := f.queue.EstimatedWait(3); got != 45 {
		t.Fatalf("EstimatedWait(3) with no responders = %d, want 45", got)
	}

	f.responder("V1")
	f.responder("V2")
	// 3*15/2 = 22.5, rounded up.
	if got := f.queue.EstimatedWait(3); got != 23 {
		t.Fatalf("EstimatedWait(3) with two responders = %d, want 23", got)
	}
}

func TestWaitingQueueResponderChangeRefreshesEstimates(t *testing.T) {
	f := newFixture()
	_, conn := f.requester("R1")
	joined := only[protocol.WaitingRoomJoined](t, conn, protocol.TypeWaitingRoomJoined)
	if joined.EstimatedWaitMinutes != 15 {
		t.Fatalf("estimate = %d, want 15", joined.EstimatedWaitMinutes)
	}

	f.responder("V1")
	f.responder("V2")
	joined = latest[protocol.WaitingRoomJoined](t, conn, protocol.TypeWaitingRoomJoined)
	if joined.Position != 1 || joined.EstimatedWaitMinutes != 8 {
		t.Fatalf("after two responders = %+v, want position 1, 8 minutes", joined)
	}

	f.queue.RemoveResponder("V2")
	joined = latest[protocol.WaitingRoomJoined](t, conn, protocol.TypeWaitingRoomJoined)
	if joined.EstimatedWaitMinutes != 15 {
		t.Fatalf("after responder left estimate = %d, want 15", joined.EstimatedWaitMinutes)
	}
}

func TestWaitingQueueReRegistrationKeepsPosition(t *testing.T) {
	f := newFixture()
	f.requester("R1")
	f.clock.Advance(time.Minute)
	f.requester("R2")

	newConn := newFakeConn("R1-second")
	replacement := &Participant{ID: "R1", Role: protocol.RoleRequester}
	f.registry.Register(newConn, replacement)
	if !f.queue.AddRequester(replacement, json.RawMessage(`"updated"`)) {
		t.Fatal("AddRequester for queued id reported a fresh entry")
	}

	joined := only[protocol.WaitingRoomJoined](t, newConn, protocol.TypeWaitingRoomJoined)
	if joined.Position != 1 {
		t.Fatalf("re-registered position = %d, want 1", joined.Position)
	}
	entry, ok := f.queue.Get("R1")
	if !ok || entry.Participant != replacement {
		t.Fatal("entry does not point at the replacement participant")
	}
	if !entry.JoinedAt.Equal(epoch) {
		t.Fatalf("JoinedAt = %v, want original %v", entry.JoinedAt, epoch)
	}
	if string(entry.Context) != `"updated"` {
		t.Fatalf("Context = %s, want the new context", entry.Context)
	}
	if f.queue.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", f.queue.Len())
	}
}

func TestWaitingQueueResponderReplacedInPlace(t *testing.T) {
	f := newFixture()
	f.responder("V1")

	newConn := newFakeConn("V1-second")
	replacement := &Participant{ID: "V1", Role: protocol.RoleResponder}
	f.registry.Register(newConn, replacement)
	f.queue.AddResponder(replacement)

	if f.queue.ResponderCount() != 1 {
		t.Fatalf("ResponderCount() = %d, want 1", f.queue.ResponderCount())
	}
	if got, _ := f.queue.Responder("V1"); got != replacement {
		t.Fatal("subscription not moved to the replacement")
	}
	only[protocol.WaitingListUpdate](t, newConn, protocol.TypeWaitingListUpdate)
}
