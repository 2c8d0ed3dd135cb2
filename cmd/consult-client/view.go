// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/bureau-foundation/consult/lib/protocol"
	"github.com/bureau-foundation/consult/lib/tui"
	"github.com/bureau-foundation/consult/negotiation"
)

// defaultWidth and defaultHeight are used until the first
// WindowSizeMsg arrives.
const (
	defaultWidth  = 80
	defaultHeight = 24
)

func (model Model) View() string {
	width, height := model.size()

	header := model.renderHeader(width)
	footer := model.renderFooter(width)
	// Header, blank line, body, blank line, footer.
	bodyHeight := max(1, height-lipgloss.Height(header)-lipgloss.Height(footer)-2)

	var body []string
	switch model.screen {
	case screenConnecting:
		body = []string{model.spinner.View() + " connecting to the switchboard…"}
	case screenWaiting:
		body = model.renderWaiting()
	case screenWaitingList:
		body = model.renderWaitingList(width)
	case screenSession:
		body = model.renderSession(width, bodyHeight)
	case screenEnded:
		body = model.renderEnded()
	case screenOffline:
		body = model.renderOffline()
	}
	for index, line := range body {
		body[index] = ansi.Truncate(line, width, "…")
	}
	for len(body) < bodyHeight {
		body = append(body, "")
	}
	if len(body) > bodyHeight {
		body = body[len(body)-bodyHeight:]
	}

	view := strings.Join(append(append([]string{header, ""}, body...), "", footer), "\n")
	if model.screen == screenSession && model.prompting {
		modal := tui.Modal(model.theme, "Connection to "+model.partnerID+" lost", []string{
			"The direct link did not recover.",
			"",
			"[r] retry with a fresh connection",
			"[e] end the consultation",
		}, width-4)
		view = tui.CenterOverlay(view, modal, width, height)
	}
	return view
}

func (model Model) size() (int, int) {
	width, height := model.width, model.height
	if width <= 0 {
		width = defaultWidth
	}
	if height <= 0 {
		height = defaultHeight
	}
	return width, height
}

func (model Model) renderHeader(width int) string {
	title := lipgloss.NewStyle().Bold(true).Foreground(model.theme.HeaderForeground).
		Render("consult")
	identity := lipgloss.NewStyle().Foreground(model.theme.FaintText).
		Render(fmt.Sprintf(" %s · %s", model.userID, model.role))
	line := title + identity

	if model.screen == screenSession {
		health, label := model.health()
		badge := lipgloss.NewStyle().Foreground(model.theme.HealthColor(health)).Render("● " + label)
		gap := width - ansi.StringWidth(line) - ansi.StringWidth(badge)
		if gap > 0 {
			line += strings.Repeat(" ", gap) + badge
		}
	}
	return ansi.Truncate(line, width, "…")
}

// health summarizes the session's connection for the header badge.
func (model Model) health() (tui.Health, string) {
	if model.prompting {
		return tui.HealthDegraded, "connection lost"
	}
	switch model.state {
	case negotiation.StateConnected:
		return tui.HealthHealthy, "connected"
	case negotiation.StateFailed:
		return tui.HealthFailed, "failed"
	case negotiation.StateClosed:
		return tui.HealthFinished, "closed"
	}
	if !model.partnerJoined {
		return tui.HealthPending, "waiting for " + model.partnerID
	}
	return tui.HealthPending, "connecting"
}

func (model Model) renderFooter(width int) string {
	var bindings []key.Binding
	switch model.screen {
	case screenWaitingList:
		bindings = []key.Binding{model.keys.Up, model.keys.Down, model.keys.Accept, model.keys.Quit}
	case screenSession:
		if model.prompting {
			bindings = []key.Binding{model.keys.Retry, model.keys.End, model.keys.ForceQuit}
		} else {
			bindings = []key.Binding{model.keys.Send, model.keys.Hang, model.keys.ForceQuit}
		}
	case screenEnded:
		bindings = []key.Binding{model.keys.WaitAgain, model.keys.Quit}
	default:
		bindings = []key.Binding{model.keys.Quit}
	}

	parts := make([]string, 0, len(bindings))
	for _, binding := range bindings {
		help := binding.Help()
		parts = append(parts, help.Key+" "+help.Desc)
	}
	helpStyle := lipgloss.NewStyle().Foreground(model.theme.HelpText)
	footer := helpStyle.Render(strings.Join(parts, " · "))
	if model.status != "" {
		statusStyle := lipgloss.NewStyle().Foreground(model.theme.Degraded)
		footer = statusStyle.Render(model.status) + "\n" + footer
	}
	lines := strings.Split(footer, "\n")
	for index, line := range lines {
		lines[index] = ansi.Truncate(line, width, "…")
	}
	return strings.Join(lines, "\n")
}

func (model Model) renderWaiting() []string {
	faint := lipgloss.NewStyle().Foreground(model.theme.FaintText)
	lines := []string{
		model.spinner.View() + " in the waiting room",
		"",
		fmt.Sprintf("position %d", model.position),
	}
	if model.estimateMinutes > 0 {
		lines = append(lines, faint.Render(fmt.Sprintf("estimated wait about %d min", model.estimateMinutes)))
	} else {
		lines = append(lines, faint.Render("you are next"))
	}
	return lines
}

func (model Model) renderWaitingList(width int) []string {
	if len(model.entries) == 0 {
		return []string{
			model.spinner.View() + " nobody is waiting",
		}
	}
	faint := lipgloss.NewStyle().Foreground(model.theme.FaintText)
	selected := lipgloss.NewStyle().
		Foreground(model.theme.SelectedForeground).
		Background(model.theme.SelectedBackground)

	lines := []string{fmt.Sprintf("%d waiting", len(model.entries)), ""}
	for index, entry := range model.entries {
		row := fmt.Sprintf("%2d. %-16s since %s", entry.Position, entry.UserID, entry.JoinedAt.Local().Format("15:04"))
		if summary := contextSummary(entry.Context); summary != "" {
			row += "  " + faint.Render(summary)
		}
		if index == model.cursor {
			row = selected.Render(ansi.Truncate("▸ "+ansi.Strip(row), width, "…"))
		} else {
			row = "  " + row
		}
		lines = append(lines, row)
	}
	return lines
}

// contextSummary renders a requester's waiting-room context for the
// list: a "reason" string when present, otherwise the raw JSON.
func contextSummary(context json.RawMessage) string {
	if len(context) == 0 || string(context) == "null" {
		return ""
	}
	var fields struct {
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal(context, &fields); err == nil && fields.Reason != "" {
		return fields.Reason
	}
	return string(context)
}

func (model Model) renderSession(width, height int) []string {
	local := lipgloss.NewStyle().Bold(true).Foreground(model.theme.LocalSpeaker)
	remote := lipgloss.NewStyle().Bold(true).Foreground(model.theme.RemoteSpeaker)
	notice := lipgloss.NewStyle().Italic(true).Foreground(model.theme.SystemNotice)
	text := lipgloss.NewStyle().Foreground(model.theme.NormalText)

	// The input takes the last line.
	visible := max(0, height-2)
	transcript := model.transcript
	if len(transcript) > visible {
		transcript = transcript[len(transcript)-visible:]
	}

	lines := make([]string, 0, height)
	for _, line := range transcript {
		switch {
		case line.notice:
			lines = append(lines, notice.Render("· "+line.text))
		case line.local:
			lines = append(lines, local.Render(line.speaker+":")+" "+text.Render(line.text))
		default:
			lines = append(lines, remote.Render(line.speaker+":")+" "+text.Render(line.text))
		}
	}
	for len(lines) < visible {
		lines = append([]string{""}, lines...)
	}

	if model.chatReady {
		lines = append(lines, "", model.input.View())
	} else {
		lines = append(lines, "", model.spinner.View()+" setting up the direct connection…")
	}
	return lines
}

func (model Model) renderEnded() []string {
	faint := lipgloss.NewStyle().Foreground(model.theme.FaintText)
	next := "press n to join the waiting room again"
	if model.role == protocol.RoleResponder {
		next = "press n to return to the waiting list"
	}
	return []string{
		"consultation with " + model.partnerID + " ended",
		faint.Render(model.endReason),
		"",
		next,
	}
}

func (model Model) renderOffline() []string {
	failed := lipgloss.NewStyle().Foreground(model.theme.Failed)
	lines := []string{failed.Render("disconnected from the switchboard")}
	if model.offlineErr != nil {
		lines = append(lines, lipgloss.NewStyle().Foreground(model.theme.FaintText).Render(model.offlineErr.Error()))
	}
	return lines
}
