// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

// SpliceOverlay replaces a rectangular region of a rendered view with
// overlay content. The overlay lines are placed starting at (anchorX,
// anchorY) in screen coordinates. Truncation is ANSI-aware so escape
// sequences in the original view survive on both sides of the overlay.
func SpliceOverlay(view string, overlayLines []string, anchorX, anchorY int) string {
	if len(overlayLines) == 0 {
		return view
	}

	viewLines := strings.Split(view, "\n")
	overlayWidth := ansi.StringWidth(overlayLines[0])

	for index, overlayLine := range overlayLines {
		viewLineIndex := anchorY + index
		if viewLineIndex < 0 || viewLineIndex >= len(viewLines) {
			continue
		}

		viewLine := viewLines[viewLineIndex]
		viewLineWidth := ansi.StringWidth(viewLine)

		var result strings.Builder
		if anchorX > 0 {
			prefix := ansi.Truncate(viewLine, anchorX, "")
			result.WriteString(prefix)
			// A short line leaves the overlay floating left of its
			// anchor unless padded out.
			if gap := anchorX - ansi.StringWidth(prefix); gap > 0 {
				result.WriteString(strings.Repeat(" ", gap))
			}
		}
		result.WriteString("\x1b[0m")
		result.WriteString(overlayLine)
		result.WriteString("\x1b[0m")

		suffixStart := anchorX + overlayWidth
		if suffixStart < viewLineWidth {
			result.WriteString(ansi.TruncateLeft(viewLine, suffixStart, ""))
		}

		viewLines[viewLineIndex] = result.String()
	}

	return strings.Join(viewLines, "\n")
}

// PadOverlayLine pads styled content for the inner area out to the
// full width with background-colored spaces: " content  ".
func PadOverlayLine(styledContent string, innerWidth int, backgroundStyle lipgloss.Style) string {
	contentWidth := ansi.StringWidth(styledContent)
	rightPad := innerWidth - contentWidth
	if rightPad < 0 {
		rightPad = 0
	}
	return backgroundStyle.Render(" ") +
		styledContent +
		backgroundStyle.Render(strings.Repeat(" ", rightPad+1))
}

// Modal renders a bordered box holding title and body lines, sized to
// its widest line but never wider than maxWidth. Longer lines are
// truncated with an ellipsis.
func Modal(theme Theme, title string, body []string, maxWidth int) []string {
	background := lipgloss.NewStyle().Background(theme.ModalBackground)
	text := background.Foreground(theme.ModalForeground)
	heading := text.Bold(true)
	border := lipgloss.NewStyle().Foreground(theme.ModalBorder).Background(theme.ModalBackground)

	// Two border columns plus one padding column each side.
	innerLimit := maxWidth - 4
	if innerLimit < 1 {
		innerLimit = 1
	}
	lines := append([]string{title, ""}, body...)
	innerWidth := 0
	for index, line := range lines {
		if ansi.StringWidth(line) > innerLimit {
			line = ansi.Truncate(line, innerLimit, "…")
			lines[index] = line
		}
		innerWidth = max(innerWidth, ansi.StringWidth(line))
	}

	horizontal := strings.Repeat("─", innerWidth+2)
	result := []string{border.Render("╭" + horizontal + "╮")}
	for index, line := range lines {
		style := text
		if index == 0 {
			style = heading
		}
		result = append(result,
			border.Render("│")+PadOverlayLine(style.Render(line), innerWidth, background)+border.Render("│"))
	}
	result = append(result, border.Render("╰"+horizontal+"╯"))
	return result
}

// CenterOverlay splices overlayLines into the middle of a view that is
// width columns by height rows.
func CenterOverlay(view string, overlayLines []string, width, height int) string {
	if len(overlayLines) == 0 {
		return view
	}
	overlayWidth := ansi.StringWidth(overlayLines[0])
	anchorX := max(0, (width-overlayWidth)/2)
	anchorY := max(0, (height-len(overlayLines))/2)
	return SpliceOverlay(view, overlayLines, anchorX, anchorY)
}
