// ABOUTME: Bubbletea model for the play-cli room view
// ABOUTME: Shows connection, room, players, properties and a short event log
package ui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

const maxEvents = 8

// Model represents the TUI state
type Model struct {
	// Connection
	connected  bool
	serverName string
	userID     string

	// Room
	inRoom bool
	room   RoomInfo

	// Event log, oldest first
	events []string

	controls *Controls

	// Dimensions
	width  int
	height int
}

// PlayerInfo is one row of the player list
type PlayerInfo struct {
	ActorID int
	UserID  string
	Active  bool
	Master  bool
	Local   bool
}

// RoomInfo is a snapshot of the current room
type RoomInfo struct {
	Name       string
	State      string
	Open       bool
	Visible    bool
	MaxPlayers int
	Players    []PlayerInfo
	// Properties are rendered "key=value", already sorted
	Properties []string
}

// StatusMsg updates TUI state
type StatusMsg struct {
	Connected  *bool
	ServerName string
	UserID     string

	// Room replaces the room snapshot; LeftRoom clears it
	Room     *RoomInfo
	LeftRoom bool
}

// EventMsg appends a line to the event log
type EventMsg struct {
	Text string
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case StatusMsg:
		m.applyStatus(msg)
	case EventMsg:
		m.appendEvent(msg.Text)
	}

	return m, nil
}

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString(m.renderRoom())
	b.WriteString(m.renderEvents())
	b.WriteString(m.renderHelp())
	return b.String()
}

func (m Model) renderHeader() string {
	status := "Disconnected"
	if m.connected {
		status = fmt.Sprintf("Connected to %s", m.serverName)
	}

	return fmt.Sprintf(`┌─ Play Room ──────────────────────────────────────────┐
│ Status: %-44s │
│ User:   %-44s │
├──────────────────────────────────────────────────────┤
`, truncate(status, 44), truncate(m.userID, 44))
}

func (m Model) renderRoom() string {
	if !m.inRoom {
		return "│ Not in a room                                        │\n"
	}

	open := "closed"
	if m.room.Open {
		open = "open"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "│ Room:   %-44s │\n", truncate(m.room.Name, 44))
	fmt.Fprintf(&b, "│ State:  %-44s │\n", truncate(fmt.Sprintf("%s, %s, %d/%d players",
		m.room.State, open, len(m.room.Players), m.room.MaxPlayers), 44))

	b.WriteString("│ Players:                                             │\n")
	for _, p := range m.room.Players {
		fmt.Fprintf(&b, "│   %-50s │\n", truncate(playerLine(p), 50))
	}

	if len(m.room.Properties) > 0 {
		b.WriteString("│ Properties:                                          │\n")
		for _, prop := range m.room.Properties {
			fmt.Fprintf(&b, "│   %-50s │\n", truncate(prop, 50))
		}
	}
	return b.String()
}

func (m Model) renderEvents() string {
	var b strings.Builder
	b.WriteString("├──────────────────────────────────────────────────────┤\n")
	if len(m.events) == 0 {
		b.WriteString("│ No events                                            │\n")
	}
	for _, e := range m.events {
		fmt.Fprintf(&b, "│ %-52s │\n", truncate(e, 52))
	}
	return b.String()
}

func (m Model) renderHelp() string {
	return `│ e:Event  g:Gold  o:Open  m:Master  l:Leave  q:Quit   │
└──────────────────────────────────────────────────────┘
`
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.controls.quit()
		return m, tea.Quit
	case "e":
		m.controls.send(ActionSendEvent)
	case "g":
		m.controls.send(ActionBumpGold)
	case "o":
		m.controls.send(ActionToggleOpen)
	case "m":
		m.controls.send(ActionTakeMaster)
	case "l":
		m.controls.send(ActionLeave)
	}

	return m, nil
}

// applyStatus updates model from status message
func (m *Model) applyStatus(msg StatusMsg) {
	if msg.Connected != nil {
		m.connected = *msg.Connected
	}
	if msg.ServerName != "" {
		m.serverName = msg.ServerName
	}
	if msg.UserID != "" {
		m.userID = msg.UserID
	}
	if msg.Room != nil {
		m.inRoom = true
		m.room = *msg.Room
	}
	if msg.LeftRoom {
		m.inRoom = false
		m.room = RoomInfo{}
	}
}

func (m *Model) appendEvent(text string) {
	m.events = append(m.events, text)
	if len(m.events) > maxEvents {
		m.events = m.events[len(m.events)-maxEvents:]
	}
}

func playerLine(p PlayerInfo) string {
	line := fmt.Sprintf("#%d %s", p.ActorID, p.UserID)
	if p.Master {
		line += " [master]"
	}
	if p.Local {
		line += " (you)"
	}
	if !p.Active {
		line += " offline"
	}
	return line
}

func truncate(s string, length int) string {
	if len(s) <= length {
		return s
	}
	return s[:length-3] + "..."
}
