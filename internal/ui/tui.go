// ABOUTME: TUI initialization and control
// ABOUTME: Wraps the bubbletea program and forwards key actions to the room session
package ui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// Action is a room operation requested from the keyboard
type Action int

const (
	ActionSendEvent Action = iota
	ActionBumpGold
	ActionToggleOpen
	ActionTakeMaster
	ActionLeave
)

func (a Action) String() string {
	switch a {
	case ActionSendEvent:
		return "send event"
	case ActionBumpGold:
		return "bump gold"
	case ActionToggleOpen:
		return "toggle open"
	case ActionTakeMaster:
		return "take master"
	case ActionLeave:
		return "leave"
	default:
		return "unknown"
	}
}

// Controls carries key actions out of the TUI
type Controls struct {
	Actions chan Action
	Quit    chan struct{}
}

// NewControls creates the channels used by a running TUI
func NewControls() *Controls {
	return &Controls{
		Actions: make(chan Action, 10),
		Quit:    make(chan struct{}, 1),
	}
}

// send drops the action when the session is not keeping up
func (c *Controls) send(a Action) {
	if c == nil {
		return
	}
	select {
	case c.Actions <- a:
	default:
	}
}

func (c *Controls) quit() {
	if c == nil {
		return
	}
	select {
	case c.Quit <- struct{}{}:
	default:
	}
}

// NewModel creates a new TUI model
func NewModel(controls *Controls) Model {
	return Model{
		controls: controls,
	}
}

// Run creates the TUI program. The caller starts it.
func Run(controls *Controls) (*tea.Program, error) {
	p := tea.NewProgram(NewModel(controls), tea.WithAltScreen())
	return p, nil
}
