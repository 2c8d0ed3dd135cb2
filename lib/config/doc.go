// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the consult server's YAML configuration.
//
// The file is named either by the CONSULT_CONFIG environment variable
// ([Load]) or by the --config flag ([LoadFile]). There is no search
// path and no per-field environment override: the file is the single
// source of truth. The only expansion performed is ${VAR} and
// ${VAR:-default} in path-like fields (the journal path), so the same
// file works across machines.
//
// A file may carry development, staging and production sections. The
// section matching [Config].Environment is merged over the base values
// after loading. Production without an explicit section gets stricter
// defaults: origin checking on, and a smaller per-connection burst.
//
// Key exports:
//
//   - [Config] -- Server, Log, Matching, Connection, Journal sections
//   - [Default] -- development defaults, the base every file merges onto
//   - [Load] and [LoadFile] -- the two entry points
//   - [Config.Validate] -- rejects unusable values before the server starts
package config
