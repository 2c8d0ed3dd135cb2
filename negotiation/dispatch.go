// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package negotiation

import (
	"context"
	"fmt"

	"github.com/bureau-foundation/consult/lib/protocol"
)

// Handle decodes a relayed signaling frame and applies it. Frames
// that are not signaling are a state violation; callers route them
// elsewhere first.
func (e *Engine) Handle(ctx context.Context, envelope protocol.Envelope) error {
	switch envelope.Type {
	case protocol.TypeSendOffer:
		var offer protocol.Offer
		if err := envelope.Payload(&offer); err != nil {
			return err
		}
		return e.HandleOffer(ctx, offer)
	case protocol.TypeSendAnswer:
		var answer protocol.Answer
		if err := envelope.Payload(&answer); err != nil {
			return err
		}
		return e.HandleAnswer(ctx, answer)
	case protocol.TypeICECandidate:
		var candidate protocol.Candidate
		if err := envelope.Payload(&candidate); err != nil {
			return err
		}
		return e.HandleCandidate(ctx, candidate)
	}
	return fmt.Errorf("%w: %s is not a signaling message", ErrStateViolation, envelope.Type)
}
