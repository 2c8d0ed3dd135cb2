// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package switchboard

import (
	"testing"

	"github.com/bureau-foundation/consult/lib/protocol"
)

func TestRegistryRegisterLookup(t *testing.T) {
	registry := NewConnectionRegistry()
	conn := newFakeConn("c1")

	if _, ok := registry.Lookup(conn); ok {
		t.Fatal("Lookup on empty registry succeeded")
	}

	participant := &Participant{ID: "alice", Role: protocol.RoleRequester}
	registry.Register(conn, participant)

	got, ok := registry.Lookup(conn)
	if !ok || got != participant {
		t.Fatalf("Lookup = %v, %v; want the registered participant", got, ok)
	}
	if participant.Conn != conn {
		t.Fatal("Register did not bind the participant to its connection")
	}
	if byUser, ok := registry.LookupUser("alice"); !ok || byUser != participant {
		t.Fatalf("LookupUser = %v, %v", byUser, ok)
	}
}

func TestRegistryRegisterOverwritesConnection(t *testing.T) {
	registry := NewConnectionRegistry()
	conn := newFakeConn("c1")

	registry.Register(conn, &Participant{ID: "alice", Role: protocol.RoleRequester})
	registry.Register(conn, &Participant{ID: "bob", Role: protocol.RoleRequester})

	got, _ := registry.Lookup(conn)
	if got.ID != "bob" {
		t.Fatalf("Lookup().ID = %q, want bob", got.ID)
	}
	if _, ok := registry.LookupUser("alice"); ok {
		t.Fatal("overwritten participant still reachable by id")
	}
	if registry.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", registry.Len())
	}
}

func TestRegistryUnregisterKeepsNewerBinding(t *testing.T) {
	registry := NewConnectionRegistry()
	oldConn := newFakeConn("old")
	newConn := newFakeConn("new")

	registry.Register(oldConn, &Participant{ID: "alice", Role: protocol.RoleRequester})
	replacement := &Participant{ID: "alice", Role: protocol.RoleRequester}
	registry.Register(newConn, replacement)

	registry.Unregister(oldConn)

	if got, ok := registry.LookupUser("alice"); !ok || got != replacement {
		t.Fatalf("LookupUser after stale unregister = %v, %v; want replacement", got, ok)
	}
	if _, ok := registry.Lookup(oldConn); ok {
		t.Fatal("old connection still bound")
	}

	// Unregistering an unknown connection is a no-op.
	registry.Unregister(newFakeConn("never-registered"))
	if registry.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", registry.Len())
	}
}

func TestRegistryCount(t *testing.T) {
	registry := NewConnectionRegistry()
	registry.Register(newFakeConn("a"), &Participant{ID: "r1", Role: protocol.RoleRequester})
	registry.Register(newFakeConn("b"), &Participant{ID: "r2", Role: protocol.RoleRequester})
	registry.Register(newFakeConn("c"), &Participant{ID: "v1", Role: protocol.RoleResponder})

	if got := registry.Count(protocol.RoleRequester); got != 2 {
		t.Fatalf("Count(requester) = %d, want 2", got)
	}
	if got := registry.Count(protocol.RoleResponder); got != 1 {
		t.Fatalf("Count(responder) = %d, want 1", got)
	}
}
