// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// consult-server runs the switchboard: the waiting room, matching and
// the signaling relay between matched participants.
//
// Clients connect over WebSocket (default /ws). The server also serves
// an operational status endpoint (default /status) returning waiting,
// subscribed and connected responder, active session and connection
// counts, and Prometheus metrics (default /metrics).
//
// Configuration is a YAML file named by --config or CONSULT_CONFIG; with
// neither, development defaults are used. When journal.path is set,
// every session start and end is appended to a journal file in that
// directory, optionally compressed and encrypted to age recipients.
//
// Usage:
//
//	consult-server --config /etc/consult/consult.yaml
//	consult-server --listen 127.0.0.1:9090 --log-level debug
package main
