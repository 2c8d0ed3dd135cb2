// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package negotiation

import "errors"

var (
	// ErrStateViolation marks an input that does not fit the engine's
	// current state: a message for another session, a stale answer, an
	// offer request mid-exchange.
	ErrStateViolation = errors.New("negotiation state violation")

	// ErrDuplicate marks a message whose id was already processed.
	ErrDuplicate = errors.New("duplicate negotiation message")

	// ErrClosed is returned by every method after Close or End.
	ErrClosed = errors.New("negotiation engine closed")
)
