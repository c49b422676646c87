// ABOUTME: Tests for TUI model and state management
// ABOUTME: Tests status updates, the event log, key actions and rendering
package ui

import (
	"fmt"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

func sampleRoom() *RoomInfo {
	return &RoomInfo{
		Name:       "arena",
		State:      "game",
		Open:       true,
		MaxPlayers: 4,
		Players: []PlayerInfo{
			{ActorID: 1, UserID: "alice", Active: true, Master: true, Local: true},
			{ActorID: 2, UserID: "bob"},
		},
		Properties: []string{"gold=100"},
	}
}

func TestNewModel(t *testing.T) {
	model := NewModel(nil)

	if model.connected {
		t.Error("expected connected to be false initially")
	}
	if model.inRoom {
		t.Error("expected no room initially")
	}
	if len(model.events) != 0 {
		t.Error("expected empty event log")
	}
}

func TestStatusMsgConnected(t *testing.T) {
	model := NewModel(nil)

	connected := true
	model.applyStatus(StatusMsg{Connected: &connected, ServerName: "test-server", UserID: "alice"})

	if !model.connected {
		t.Error("expected connected to be true after status update")
	}
	if model.serverName != "test-server" || model.userID != "alice" {
		t.Errorf("unexpected server %q user %q", model.serverName, model.userID)
	}

	disconnected := false
	model.applyStatus(StatusMsg{Connected: &disconnected})
	if model.connected {
		t.Error("expected connected to be false after disconnect")
	}
	if model.serverName != "test-server" {
		t.Error("empty fields must not clear existing values")
	}
}

func TestStatusMsgRoom(t *testing.T) {
	model := NewModel(nil)

	model.applyStatus(StatusMsg{Room: sampleRoom()})
	if !model.inRoom || model.room.Name != "arena" || len(model.room.Players) != 2 {
		t.Errorf("unexpected room state %+v", model.room)
	}

	model.applyStatus(StatusMsg{LeftRoom: true})
	if model.inRoom || model.room.Name != "" {
		t.Error("expected room to be cleared")
	}
}

func TestEventLogKeepsNewest(t *testing.T) {
	model := NewModel(nil)

	for i := 0; i < maxEvents+3; i++ {
		updated, _ := model.Update(EventMsg{Text: fmt.Sprintf("event %d", i)})
		model = updated.(Model)
	}

	if len(model.events) != maxEvents {
		t.Fatalf("expected %d events, got %d", maxEvents, len(model.events))
	}
	if model.events[0] != "event 3" || model.events[maxEvents-1] != fmt.Sprintf("event %d", maxEvents+2) {
		t.Errorf("unexpected event window %v", model.events)
	}
}

func TestKeyActions(t *testing.T) {
	tests := []struct {
		key  rune
		want Action
	}{
		{'e', ActionSendEvent},
		{'g', ActionBumpGold},
		{'o', ActionToggleOpen},
		{'m', ActionTakeMaster},
		{'l', ActionLeave},
	}

	for _, tt := range tests {
		t.Run(tt.want.String(), func(t *testing.T) {
			controls := NewControls()
			model := NewModel(controls)

			_, cmd := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{tt.key}})
			if cmd != nil {
				t.Error("action keys should not return a command")
			}
			select {
			case got := <-controls.Actions:
				if got != tt.want {
					t.Errorf("expected %s, got %s", tt.want, got)
				}
			default:
				t.Fatal("no action sent")
			}
		})
	}
}

func TestQuitKey(t *testing.T) {
	controls := NewControls()
	model := NewModel(controls)

	_, cmd := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	select {
	case <-controls.Quit:
	default:
		t.Error("expected quit signal")
	}
}

func TestKeysWithoutControls(t *testing.T) {
	model := NewModel(nil)
	// must not panic
	model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'e'}})
	model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
}

func TestView(t *testing.T) {
	model := NewModel(nil)
	if model.View() != "Loading..." {
		t.Error("expected loading view before the first window size")
	}

	updated, _ := model.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	model = updated.(Model)
	if !strings.Contains(model.View(), "Not in a room") {
		t.Error("expected empty room view")
	}

	model.applyStatus(StatusMsg{Room: sampleRoom()})
	model.appendEvent("bob joined")
	view := model.View()
	for _, want := range []string{"arena", "#1 alice [master] (you)", "#2 bob offline", "gold=100", "bob joined"} {
		if !strings.Contains(view, want) {
			t.Errorf("expected view to contain %q", want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("expected short unchanged, got %q", got)
	}
	if got := truncate("a very long room name", 10); got != "a very ..." {
		t.Errorf("expected truncated text, got %q", got)
	}
}
