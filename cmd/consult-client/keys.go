// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import "github.com/charmbracelet/bubbles/key"

// KeyMap holds the client's key bindings. While a consultation is open
// printable keys go to the message input, so session bindings use
// control chords.
type KeyMap struct {
	// Waiting list (responders).
	Up     key.Binding
	Down   key.Binding
	Accept key.Binding

	// Consultation.
	Send key.Binding
	Hang key.Binding

	// Reconnect prompt.
	Retry key.Binding
	End   key.Binding

	// After a consultation.
	WaitAgain key.Binding

	Quit      key.Binding
	ForceQuit key.Binding
}

// DefaultKeyMap is the built-in binding set.
var DefaultKeyMap = KeyMap{
	Up: key.NewBinding(
		key.WithKeys("k", "up"),
		key.WithHelp("k/↑", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("j", "down"),
		key.WithHelp("j/↓", "down"),
	),
	Accept: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "accept"),
	),
	Send: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "send"),
	),
	Hang: key.NewBinding(
		key.WithKeys("ctrl+e"),
		key.WithHelp("ctrl+e", "end consultation"),
	),
	Retry: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "retry"),
	),
	End: key.NewBinding(
		key.WithKeys("e"),
		key.WithHelp("e", "end"),
	),
	WaitAgain: key.NewBinding(
		key.WithKeys("n"),
		key.WithHelp("n", "wait again"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q"),
		key.WithHelp("q", "quit"),
	),
	ForceQuit: key.NewBinding(
		key.WithKeys("ctrl+c"),
		key.WithHelp("ctrl+c", "quit"),
	),
}
