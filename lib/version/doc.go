// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports build information for the consult binaries.
//
// [GitCommit], [GitDirty], [BuildTime] and [Version] are injected with
// -ldflags -X at build time and fall back to "unknown" / "0.1.0-dev"
// in development builds. [Info] formats them for --version output;
// [Print] writes that line prefixed with the binary name.
package version
