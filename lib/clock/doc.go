// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock is the time source for every timer in consult.
//
// The negotiation engine's recovery delay and the WebSocket keepalive
// both schedule work in the future. They take a [Clock] instead of
// calling the time package so that tests can drive them
// deterministically: [Real] wraps the standard library, [Fake] returns
// a [FakeClock] whose time only moves when [FakeClock.Advance] is
// called.
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	engine := negotiation.New(negotiation.Config{Clock: fake, ...})
//	// ... drive the link into failed ...
//	fake.Advance(5 * time.Second) // recovery timer fires here
//
// AfterFunc callbacks on a FakeClock run synchronously inside Advance,
// in deadline order, on the goroutine that called Advance.
package clock
