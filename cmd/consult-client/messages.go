// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"github.com/bureau-foundation/consult/lib/protocol"
	"github.com/bureau-foundation/consult/negotiation"
)

// Messages delivered to the Model. The client emits them in the order
// the underlying events happened.

// waitingMsg is the requester's place in the waiting room.
type waitingMsg protocol.WaitingRoomJoined

// waitingListMsg is the responder's snapshot of the waiting room.
type waitingListMsg protocol.WaitingListUpdate

// sessionStartedMsg follows consultation_starting once the client has
// built the session's negotiation engine and joined.
type sessionStartedMsg struct {
	SessionID string
	PartnerID string
}

// partnerJoinedMsg reports that the partner entered the session.
type partnerJoinedMsg struct {
	SessionID string
}

// sessionEndedMsg reports that the session is over and its engine
// closed. Reason is shown to the user.
type sessionEndedMsg struct {
	SessionID string
	Reason    string
}

// negotiationMsg carries an engine state transition.
type negotiationMsg struct {
	SessionID string
	State     negotiation.State
}

// promptMsg shows or hides the end/retry choice.
type promptMsg struct {
	SessionID string
	Show      bool
}

// chatReadyMsg reports that the chat channel is open.
type chatReadyMsg struct {
	SessionID string
}

// chatLineMsg is one line of text from the partner.
type chatLineMsg struct {
	SessionID string
	Text      string
}

// offlineMsg reports that the switchboard connection ended. Err is nil
// after a clean close.
type offlineMsg struct {
	Err error
}

// errorMsg reports a failed user action.
type errorMsg struct {
	Err error
}
