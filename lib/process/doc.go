// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process holds the entrypoint helpers consult binaries share:
// reporting a fatal error before (or after) the structured logger
// exists, and choosing the exit code.
package process
