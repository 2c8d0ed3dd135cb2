// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// consult-client is a terminal client for consult-server.
//
// A requester waits in the waiting room and sees its position and
// estimated wait. A responder sees the waiting list and accepts the
// next requester. Once matched, both sides negotiate a direct WebRTC
// connection through the switchboard and chat over it. When the
// connection drops and does not recover, the client asks whether to
// retry with a fresh connection or end the consultation.
//
// Usage:
//
//	consult-client --user owner-17 --reason "limping since Tuesday"
//	consult-client --user vet-3 --role responder --ice ice.jsonc
//
// The --ice file lists STUN and TURN servers in JSONC:
//
//	{
//	  "servers": [
//	    {"urls": ["stun:stun.example.org:3478"]},
//	    {"urls": ["turn:turn.example.org:3478"], "username": "u", "credential": "p"},
//	  ],
//	}
//
// The terminal belongs to the UI, so logs go to --log-file or nowhere.
package main
