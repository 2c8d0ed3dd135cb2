// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package switchboard

import "github.com/bureau-foundation/consult/lib/protocol"

// ConnectionRegistry maps live connections to the participants bound to
// them, with a reverse index by participant id. Owned by the server
// loop; not safe for concurrent use.
type ConnectionRegistry struct {
	byConn map[Conn]*Participant
	byUser map[string]*Participant
}

// NewConnectionRegistry returns an empty registry.
func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{
		byConn: make(map[Conn]*Participant),
		byUser: make(map[string]*Participant),
	}
}

// Register binds participant to conn, replacing any earlier binding for
// that connection.
func (r *ConnectionRegistry) Register(conn Conn, participant *Participant) {
	if previous, ok := r.byConn[conn]; ok && r.byUser[previous.ID] == previous {
		delete(r.byUser, previous.ID)
	}
	participant.Conn = conn
	r.byConn[conn] = participant
	r.byUser[participant.ID] = participant
}

// Unregister removes conn's binding. The user index entry is removed
// only if it still points at this connection's participant, so a user
// that re-registered elsewhere keeps its newer binding.
func (r *ConnectionRegistry) Unregister(conn Conn) {
	participant, ok := r.byConn[conn]
	if !ok {
		return
	}
	delete(r.byConn, conn)
	if r.byUser[participant.ID] == participant {
		delete(r.byUser, participant.ID)
	}
}

// Lookup returns the participant bound to conn.
func (r *ConnectionRegistry) Lookup(conn Conn) (*Participant, bool) {
	participant, ok := r.byConn[conn]
	return participant, ok
}

// LookupUser returns the participant currently registered under id.
func (r *ConnectionRegistry) LookupUser(id string) (*Participant, bool) {
	participant, ok := r.byUser[id]
	return participant, ok
}

// Len returns the number of bound connections.
func (r *ConnectionRegistry) Len() int {
	return len(r.byConn)
}

// Count returns the number of registered participants with role.
func (r *ConnectionRegistry) Count(role protocol.Role) int {
	count := 0
	for _, participant := range r.byUser {
		if participant.Role == role {
			count++
		}
	}
	return count
}
