// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package switchboard

import "errors"

var (
	// ErrProtocol marks a frame that could not be parsed or is missing
	// required fields.
	ErrProtocol = errors.New("protocol error")

	// ErrUnknownType marks a well-formed frame with an unrecognized type.
	ErrUnknownType = errors.New("unknown message type")

	// ErrStateViolation marks a frame that does not fit the sender's
	// current state, such as signaling for a session it is not bound to.
	ErrStateViolation = errors.New("state violation")

	// ErrRaceLost marks a match attempt whose requester was already
	// taken or whose responder is no longer available.
	ErrRaceLost = errors.New("match race lost")
)

// errorClass names the class of err for logs and metrics.
func errorClass(err error) string {
	switch {
	case errors.Is(err, ErrProtocol):
		return "protocol"
	case errors.Is(err, ErrUnknownType):
		return "unknown_type"
	case errors.Is(err, ErrStateViolation):
		return "state_violation"
	case errors.Is(err, ErrRaceLost):
		return "race_lost"
	default:
		return "internal"
	}
}
