// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"encoding/json"
	"time"
)

// Role is the participant's side of a consultation.
type Role string

const (
	// RoleRequester waits in the queue for a consultation.
	RoleRequester Role = "requester"
	// RoleResponder picks requesters off the queue.
	RoleResponder Role = "responder"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleRequester || r == RoleResponder
}

// Register binds the sending connection to a participant. Context is
// an opaque domain payload (for example the reason for the visit)
// shown to responders in the waiting list.
type Register struct {
	UserID  string          `json:"userId"`
	Role    Role            `json:"role"`
	Context json.RawMessage `json:"context,omitempty"`
}

// AcceptConsultation asks the switchboard to pair a responder with a
// queued requester.
type AcceptConsultation struct {
	ResponderID string `json:"responderId"`
	RequesterID string `json:"requesterId"`
}

// Join confirms that a matched participant has entered its session.
type Join struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
}

// EndConsultation ends the sender's session explicitly.
type EndConsultation struct {
	SessionID string `json:"sessionId"`
}

// SessionDescription is an SDP blob in the shape browsers and pion both
// serialize: {"type":"offer","sdp":"v=0..."}.
type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// ICECandidate mirrors RTCIceCandidateInit.
type ICECandidate struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

// Offer is a send_offer frame. ID is unique per message; Epoch counts
// the sender's peer-link rebuilds; Restart asks for fresh ICE
// candidates on the existing link.
type Offer struct {
	SessionID string             `json:"sessionId"`
	Offer     SessionDescription `json:"offer"`
	ID        string             `json:"id"`
	Epoch     uint64             `json:"epoch,omitempty"`
	Restart   bool               `json:"restart,omitempty"`
	SenderID  string             `json:"senderId,omitempty"`
}

// Answer is a send_answer frame. OfferID names the offer it answers.
type Answer struct {
	SessionID string             `json:"sessionId"`
	Answer    SessionDescription `json:"answer"`
	ID        string             `json:"id"`
	OfferID   string             `json:"offerId,omitempty"`
	Epoch     uint64             `json:"epoch,omitempty"`
	SenderID  string             `json:"senderId,omitempty"`
}

// Candidate is an ice_candidate frame.
type Candidate struct {
	SessionID string       `json:"sessionId"`
	Candidate ICECandidate `json:"candidate"`
	ID        string       `json:"id,omitempty"`
	Epoch     uint64       `json:"epoch,omitempty"`
	SenderID  string       `json:"senderId,omitempty"`
}

// WaitingRoomJoined tells a requester where it stands. Sent on join and
// again whenever its position changes.
type WaitingRoomJoined struct {
	Position             int `json:"position"`
	EstimatedWaitMinutes int `json:"estimatedWaitMinutes"`
}

// WaitingEntry is one row of the responder snapshot.
type WaitingEntry struct {
	UserID   string          `json:"userId"`
	Position int             `json:"position"`
	JoinedAt time.Time       `json:"joinedAt"`
	Context  json.RawMessage `json:"context,omitempty"`
}

// WaitingListUpdate is the full ordered snapshot pushed to responders.
type WaitingListUpdate struct {
	WaitingEntries []WaitingEntry `json:"waitingEntries"`
}

// ConsultationStarting is sent to both participants when a match is
// made.
type ConsultationStarting struct {
	SessionID string `json:"sessionId"`
	PartnerID string `json:"partnerId"`
}

// PeerDisconnected tells the remaining participant its partner left.
type PeerDisconnected struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
}

// PeerJoined tells a participant its partner has entered the session.
type PeerJoined struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
}
