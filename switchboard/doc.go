// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package switchboard matches waiting requesters with responders and
// relays the signaling that lets the two set up a direct peer link.
//
// The moving parts, leaf first:
//
//   - [ConnectionRegistry] binds each live connection to the
//     [Participant] that registered on it.
//   - [WaitingQueue] owns the ordered list of waiting requesters and the
//     set of responders subscribed to it, and pushes position updates
//     and full snapshots whenever either changes.
//   - [MatchCoordinator] pairs a responder with a requester, owns the
//     resulting [Session], and tears it down exactly once.
//   - [SignalingRelay] forwards offer/answer/candidate frames verbatim
//     between the two participants of a session, and nowhere else.
//   - [Server] is the dispatch loop that routes inbound frames to the
//     above.
//
// # Concurrency
//
// Everything above is owned by the single goroutine running
// [Server.Run]. Connection goroutines never touch that state: they hand
// events (a frame, a disconnect, a status request) to the loop over a
// channel, and the loop handles each event to completion, including
// every notification it fans out, before taking the next. No client can
// observe a half-updated queue, and none of the core types need locks.
//
// Notifications are pushed with [Conn.Notify], which must not block; the
// WebSocket implementation enqueues onto a bounded per-connection buffer
// and drops the connection if the buffer is full, so one slow client
// never stalls the loop.
//
// # Errors
//
// Per-message failures are classified with [ErrProtocol],
// [ErrUnknownType], [ErrStateViolation] and [ErrRaceLost]. The loop logs
// them, counts them, and moves on; none closes the connection or
// touches another connection's state.
package switchboard
