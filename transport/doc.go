// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport connects a consult client to the switchboard and to
// its consultation partner.
//
// [WebSocketSignaler] is the client's connection to the switchboard
// (gorilla/websocket). It sends register, accept, join and end frames,
// implements [negotiation.Signaler] for offers, answers and candidates,
// and delivers every inbound frame on a channel in arrival order. Sends
// are queued for a writer goroutine so the negotiation engine never
// blocks on the network while holding its lock.
//
// [PionLink] implements [negotiation.PeerLink] over a pion/webrtc
// PeerConnection with trickle ICE: local candidates are reported as they
// are gathered rather than folded into the SDP. Pion raises callbacks on
// its own goroutines; PionLink queues them and delivers them to the
// engine from one goroutine, in order, and never from inside one of its
// own methods. Each link carries a pre-negotiated "consult" data channel
// for text chat, wrapped as a [DataChannelConn] so it can be used as a
// net.Conn.
//
// [ICEConfig] lists STUN and TURN servers, loaded from a JSONC file by
// [LoadICEConfig]. The zero value gathers host candidates only.
//
// [MemorySignaler] pairs two engines in-process for tests, attaching
// senderId the way the switchboard relay does.
package transport
