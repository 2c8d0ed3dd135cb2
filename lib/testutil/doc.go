// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil holds helpers shared by consult's tests.
//
// [RequireReceive] and [RequireNoReceive] wrap the select-with-timeout
// pattern used when a test waits on a channel fed by another goroutine
// (a WebSocket reader, the server loop). They are the only place tests
// touch the wall clock; timer-driven behavior is tested with
// clock.Fake instead.
//
// [UniqueID] hands out distinct participant ids so tests sharing a
// server never collide.
package testutil
