// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tui

import "github.com/charmbracelet/lipgloss"

// Theme is the color palette for consult's terminal UI. All colors are
// ANSI 256-color codes for broad terminal compatibility.
type Theme struct {
	NormalText lipgloss.Color
	FaintText  lipgloss.Color

	SelectedBackground lipgloss.Color
	SelectedForeground lipgloss.Color

	HeaderForeground lipgloss.Color
	BorderColor      lipgloss.Color
	HelpText         lipgloss.Color

	// Connection health, from not yet connected through to lost.
	Pending  lipgloss.Color
	Healthy  lipgloss.Color
	Degraded lipgloss.Color
	Failed   lipgloss.Color
	Finished lipgloss.Color

	// Chat lines.
	LocalSpeaker  lipgloss.Color
	RemoteSpeaker lipgloss.Color
	SystemNotice  lipgloss.Color

	// Modal boxes.
	ModalForeground lipgloss.Color
	ModalBackground lipgloss.Color
	ModalBorder     lipgloss.Color
}

// Health names a connection condition for HealthColor.
type Health int

const (
	HealthPending Health = iota
	HealthHealthy
	HealthDegraded
	HealthFailed
	HealthFinished
)

// HealthColor returns the color for h. Unknown values return
// FaintText.
func (theme Theme) HealthColor(h Health) lipgloss.Color {
	switch h {
	case HealthPending:
		return theme.Pending
	case HealthHealthy:
		return theme.Healthy
	case HealthDegraded:
		return theme.Degraded
	case HealthFailed:
		return theme.Failed
	case HealthFinished:
		return theme.Finished
	}
	return theme.FaintText
}

// DefaultTheme is the built-in dark-terminal color scheme.
var DefaultTheme = Theme{
	NormalText: lipgloss.Color("252"),
	FaintText:  lipgloss.Color("245"),

	SelectedBackground: lipgloss.Color("236"),
	SelectedForeground: lipgloss.Color("255"),

	HeaderForeground: lipgloss.Color("255"),
	BorderColor:      lipgloss.Color("240"),
	HelpText:         lipgloss.Color("241"),

	Pending:  lipgloss.Color("220"), // amber
	Healthy:  lipgloss.Color("114"), // green
	Degraded: lipgloss.Color("208"), // orange
	Failed:   lipgloss.Color("196"), // red
	Finished: lipgloss.Color("245"), // gray

	LocalSpeaker:  lipgloss.Color("75"),  // blue
	RemoteSpeaker: lipgloss.Color("141"), // light purple
	SystemNotice:  lipgloss.Color("241"),

	ModalForeground: lipgloss.Color("252"),
	ModalBackground: lipgloss.Color("237"),
	ModalBorder:     lipgloss.Color("208"),
}
