// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil classifies connection errors. IsExpectedCloseError
// separates normal teardown (the peer hung up) from failures worth
// logging.
package netutil
