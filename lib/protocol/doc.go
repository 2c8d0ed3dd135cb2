// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package protocol defines the JSON messages exchanged between consult
// clients and the switchboard over a WebSocket.
//
// Every frame is one flat JSON object discriminated by its "type"
// field. Session-scoped messages also carry "sessionId" at the top
// level; the rest of the object is the type's payload:
//
//	{"type":"send_offer","sessionId":"7f3c...","id":"a1b2...","epoch":1,
//	 "offer":{"type":"offer","sdp":"v=0..."}}
//
// [Decode] reads only the discriminator and session id and keeps the
// original bytes, so the switchboard can relay signaling messages
// verbatim without knowing their schema. [Envelope.Payload] decodes the
// full typed payload when the receiver needs it. [Encode] produces a
// frame from a typed payload, and [WithSender] stamps the relaying
// participant's id onto an existing frame.
//
// Inbound (client to server): [TypeRegister], [TypeAcceptConsultation],
// [TypeJoin], [TypeSendOffer], [TypeSendAnswer], [TypeICECandidate],
// [TypeEndConsultation].
//
// Outbound (server to client): [TypeWaitingRoomJoined],
// [TypeWaitingListUpdate], [TypeConsultationStarting],
// [TypePeerDisconnected], [TypePeerJoined], and the relayed signaling
// types with "senderId" attached.
package protocol
