// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package negotiation drives the client side of a consultation's peer
// link: offer/answer exchange, candidate trickling, conflict resolution
// when both sides offer at once, and recovery when the link drops.
//
// An [Engine] is one session's state machine:
//
//	new ─┬─> have-local-offer ──┬─> stable ──> connected ──> failed
//	     └─> have-remote-offer ─┘                 │  ^          │
//	                                              │  └──────────┘
//	                                              └─> have-local-offer (renegotiation)
//
// and closed from anywhere. The engine owns no goroutines. Every input
// (a relayed offer, answer or candidate, a link event, a recovery timer,
// a prompt choice) takes the engine's lock and runs to completion, so
// the collision rules below are plain sequential code.
//
// # Collisions
//
// The participant whose id sorts lower is the canonical offerer; the
// other is "polite". When an offer arrives while this side has its own
// offer outstanding, the polite side rolls its offer back and answers,
// and the impolite side ignores the remote offer and waits for its own
// answer. Exactly one offer survives whatever the arrival order.
//
// # Idempotence
//
// Every outbound message carries a fresh id. Inbound ids are remembered
// in a bounded FIFO set; a repeat is rejected with [ErrDuplicate] and
// changes nothing. Answers name the offer they answer, and an answer for
// anything but the outstanding offer is dropped.
//
// # Recovery
//
// When the link reports failed or disconnected, the engine waits
// [DefaultRecoveryDelay] on its [clock.Clock]. If the link is still down,
// the initiator sends an ICE-restart offer (up to MaxRestarts times) and
// the other side asks its [Prompter] to show an end/retry choice. A
// side that saw a restart offer during the wait gives it one more delay
// before prompting. Recovery before the delay expires cancels all of
// it. [Engine.Retry] tears the link down, builds a fresh one under a new
// epoch, and offers again; a peer that receives an offer from a newer
// epoch rebuilds its own link to match.
package negotiation
