// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/bureau-foundation/consult/lib/protocol"
	"github.com/bureau-foundation/consult/lib/tui"
	"github.com/bureau-foundation/consult/negotiation"
)

// Actions are the user intents the Model issues. *client implements
// them; each runs inside a tea.Cmd, off the UI goroutine.
type Actions interface {
	Register() error
	Accept(requesterID string) error
	Say(text string) error
	Retry() error
	End() error
}

type screen int

const (
	screenConnecting screen = iota
	// screenWaiting: a requester in the waiting room.
	screenWaiting
	// screenWaitingList: a responder choosing whom to see.
	screenWaitingList
	screenSession
	screenEnded
	screenOffline
)

// maxTranscript bounds the chat lines kept for display.
const maxTranscript = 500

type chatLine struct {
	speaker string
	text    string
	local   bool
	notice  bool
}

// Model is the client's bubbletea model. It renders what the client
// reports and turns keys into Actions; it holds no connection state of
// its own.
type Model struct {
	actions Actions
	userID  string
	role    protocol.Role
	theme   tui.Theme
	keys    KeyMap

	screen  screen
	width   int
	height  int
	spinner spinner.Model
	input   textinput.Model
	status  string

	// Waiting room.
	position        int
	estimateMinutes int
	entries         []protocol.WaitingEntry
	cursor          int

	// Consultation.
	sessionID     string
	partnerID     string
	partnerJoined bool
	state         negotiation.State
	chatReady     bool
	prompting     bool
	transcript    []chatLine

	endReason  string
	offlineErr error
}

// NewModel returns a Model on the connecting screen.
func NewModel(actions Actions, userID string, role protocol.Role) Model {
	theme := tui.DefaultTheme

	indicator := spinner.New()
	indicator.Spinner = spinner.Dot
	indicator.Style = lipgloss.NewStyle().Foreground(theme.Pending)

	input := textinput.New()
	input.Placeholder = "type a message"
	input.Prompt = "> "
	input.CharLimit = maxChatMessage

	return Model{
		actions: actions,
		userID:  userID,
		role:    role,
		theme:   theme,
		keys:    DefaultKeyMap,
		spinner: indicator,
		input:   input,
	}
}

func (model Model) Init() tea.Cmd {
	return model.spinner.Tick
}

// perform runs action as a command, reporting failure as an errorMsg.
func perform(action func() error) tea.Cmd {
	return func() tea.Msg {
		if err := action(); err != nil {
			return errorMsg{Err: err}
		}
		return nil
	}
}

func (model Model) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch message := message.(type) {
	case tea.KeyMsg:
		return model.handleKey(message)

	case tea.WindowSizeMsg:
		model.width = message.Width
		model.height = message.Height
		model.input.Width = max(10, message.Width-4)
		return model, nil

	case spinner.TickMsg:
		var command tea.Cmd
		model.spinner, command = model.spinner.Update(message)
		return model, command

	case waitingMsg:
		if model.screen != screenSession {
			model.screen = screenWaiting
			model.position = message.Position
			model.estimateMinutes = message.EstimatedWaitMinutes
		}
		return model, nil

	case waitingListMsg:
		model.entries = message.WaitingEntries
		model.cursor = min(model.cursor, max(0, len(model.entries)-1))
		if model.screen == screenConnecting {
			model.screen = screenWaitingList
		}
		return model, nil

	case sessionStartedMsg:
		model.screen = screenSession
		model.sessionID = message.SessionID
		model.partnerID = message.PartnerID
		model.partnerJoined = false
		model.state = negotiation.StateNew
		model.chatReady = false
		model.prompting = false
		model.transcript = nil
		model.status = ""
		model.input.Reset()
		model.notice("matched with " + message.PartnerID)
		command := model.input.Focus()
		return model, command

	case partnerJoinedMsg:
		if model.inSession(message.SessionID) {
			model.partnerJoined = true
			model.notice(model.partnerID + " joined")
		}
		return model, nil

	case negotiationMsg:
		if model.inSession(message.SessionID) {
			model.state = message.State
		}
		return model, nil

	case promptMsg:
		if !model.inSession(message.SessionID) {
			return model, nil
		}
		model.prompting = message.Show
		if message.Show {
			model.input.Blur()
			return model, nil
		}
		command := model.input.Focus()
		return model, command

	case chatReadyMsg:
		if model.inSession(message.SessionID) {
			model.chatReady = true
			model.notice("connected directly to " + model.partnerID)
		}
		return model, nil

	case chatLineMsg:
		if model.inSession(message.SessionID) {
			model.appendLine(chatLine{speaker: model.partnerID, text: message.Text})
		}
		return model, nil

	case sessionEndedMsg:
		if model.inSession(message.SessionID) {
			model.screen = screenEnded
			model.endReason = message.Reason
			model.prompting = false
			model.input.Blur()
		}
		return model, nil

	case offlineMsg:
		model.screen = screenOffline
		model.offlineErr = message.Err
		model.prompting = false
		model.input.Blur()
		return model, nil

	case errorMsg:
		model.status = message.Err.Error()
		return model, nil
	}
	return model, nil
}

func (model Model) inSession(sessionID string) bool {
	return model.screen == screenSession && sessionID == model.sessionID
}

func (model *Model) notice(text string) {
	model.appendLine(chatLine{text: text, notice: true})
}

func (model *Model) appendLine(line chatLine) {
	model.transcript = append(model.transcript, line)
	if excess := len(model.transcript) - maxTranscript; excess > 0 {
		model.transcript = model.transcript[excess:]
	}
}

func (model Model) handleKey(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(message, model.keys.ForceQuit) {
		return model, tea.Quit
	}

	switch model.screen {
	case screenSession:
		return model.handleSessionKeys(message)

	case screenWaitingList:
		switch {
		case key.Matches(message, model.keys.Up):
			if model.cursor > 0 {
				model.cursor--
			}
		case key.Matches(message, model.keys.Down):
			if model.cursor < len(model.entries)-1 {
				model.cursor++
			}
		case key.Matches(message, model.keys.Accept):
			if len(model.entries) == 0 {
				return model, nil
			}
			requesterID := model.entries[model.cursor].UserID
			model.status = "accepting " + requesterID + "…"
			return model, perform(func() error { return model.actions.Accept(requesterID) })
		case key.Matches(message, model.keys.Quit):
			return model, tea.Quit
		}
		return model, nil

	case screenEnded:
		switch {
		case key.Matches(message, model.keys.WaitAgain):
			model.status = ""
			if model.role == protocol.RoleResponder {
				// The switchboard puts a connected responder back on
				// the waiting list by itself.
				model.screen = screenWaitingList
				return model, nil
			}
			model.screen = screenConnecting
			return model, perform(model.actions.Register)
		case key.Matches(message, model.keys.Quit):
			return model, tea.Quit
		}
		return model, nil
	}

	if key.Matches(message, model.keys.Quit) {
		return model, tea.Quit
	}
	return model, nil
}

func (model Model) handleSessionKeys(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	if model.prompting {
		switch {
		case key.Matches(message, model.keys.Retry):
			model.status = "retrying…"
			return model, perform(model.actions.Retry)
		case key.Matches(message, model.keys.End):
			return model, perform(model.actions.End)
		}
		return model, nil
	}

	switch {
	case key.Matches(message, model.keys.Hang):
		return model, perform(model.actions.End)
	case key.Matches(message, model.keys.Send):
		text := strings.TrimSpace(model.input.Value())
		if text == "" {
			return model, nil
		}
		model.input.Reset()
		model.status = ""
		model.appendLine(chatLine{speaker: model.userID, text: text, local: true})
		return model, perform(func() error { return model.actions.Say(text) })
	}

	var command tea.Cmd
	model.input, command = model.input.Update(message)
	return model, command
}
