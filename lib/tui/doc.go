// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package tui holds the look shared by consult's terminal screens: the
// color theme and ANSI-aware helpers for drawing a modal box over an
// already rendered view.
//
// Screens own their layout and state; this package only renders.
package tui
