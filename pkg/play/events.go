// ABOUTME: Typed event subscriptions exposed by the Client
// ABOUTME: Each event kind keeps its own subscriber list, cleared when the client closes
package play

import (
	"sort"
	"sync"

	"github.com/Resonate-Protocol/play-go/pkg/codec"
)

// PlayerPropertiesEvent reports a merged change of a player's custom properties
type PlayerPropertiesEvent struct {
	Player  *Player
	Changed codec.Object
}

// CustomEvent is an event sent by another room member with SendEvent
type CustomEvent struct {
	EventID  uint8
	Data     codec.Object
	SenderID int
}

// KickedEvent tells the local player it was removed from the room.
// Code is nil when the kicker attached no app info.
type KickedEvent struct {
	Code   *int
	Reason string
}

// ErrorEvent is an error pushed by the server outside any request
type ErrorEvent struct {
	Code   int
	Detail string
}

type listeners[T any] struct {
	mu   sync.RWMutex
	next int
	fns  map[int]func(T)
}

func (l *listeners[T]) add(fn func(T)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.fns == nil {
		l.fns = make(map[int]func(T))
	}
	id := l.next
	l.next++
	l.fns[id] = fn

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.fns, id)
	}
}

// emit calls subscribers in subscription order without holding the lock
func (l *listeners[T]) emit(v T) {
	l.mu.RLock()
	ids := make([]int, 0, len(l.fns))
	for id := range l.fns {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(T), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, l.fns[id])
	}
	l.mu.RUnlock()

	for _, fn := range fns {
		fn(v)
	}
}

func (l *listeners[T]) clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fns = nil
}

type events struct {
	lobbyRoomListUpdated          listeners[[]LobbyRoom]
	playerJoined                  listeners[*Player]
	playerLeft                    listeners[*Player]
	masterSwitched                listeners[*Player]
	roomCustomPropertiesChanged   listeners[codec.Object]
	roomSystemPropertiesChanged   listeners[codec.Object]
	playerCustomPropertiesChanged listeners[PlayerPropertiesEvent]
	playerActivityChanged         listeners[*Player]
	customEvent                   listeners[CustomEvent]
	roomKicked                    listeners[KickedEvent]
	disconnected                  listeners[struct{}]
	err                           listeners[ErrorEvent]
}

func (e *events) clear() {
	e.lobbyRoomListUpdated.clear()
	e.playerJoined.clear()
	e.playerLeft.clear()
	e.masterSwitched.clear()
	e.roomCustomPropertiesChanged.clear()
	e.roomSystemPropertiesChanged.clear()
	e.playerCustomPropertiesChanged.clear()
	e.playerActivityChanged.clear()
	e.customEvent.clear()
	e.roomKicked.clear()
	e.disconnected.clear()
	e.err.clear()
}

// OnLobbyRoomListUpdated is called with the full room list after every lobby update.
// Each On* method returns a function that removes the subscription.
func (c *Client) OnLobbyRoomListUpdated(fn func([]LobbyRoom)) func() {
	return c.events.lobbyRoomListUpdated.add(fn)
}

func (c *Client) OnPlayerJoined(fn func(*Player)) func() {
	return c.events.playerJoined.add(fn)
}

func (c *Client) OnPlayerLeft(fn func(*Player)) func() {
	return c.events.playerLeft.add(fn)
}

// OnMasterSwitched receives the new master, or nil when the room has none.
func (c *Client) OnMasterSwitched(fn func(*Player)) func() {
	return c.events.masterSwitched.add(fn)
}

func (c *Client) OnRoomCustomPropertiesChanged(fn func(codec.Object)) func() {
	return c.events.roomCustomPropertiesChanged.add(fn)
}

// OnRoomSystemPropertiesChanged receives the changed subset of
// open, visible, maxPlayerCount and expectedUserIds.
func (c *Client) OnRoomSystemPropertiesChanged(fn func(codec.Object)) func() {
	return c.events.roomSystemPropertiesChanged.add(fn)
}

func (c *Client) OnPlayerCustomPropertiesChanged(fn func(PlayerPropertiesEvent)) func() {
	return c.events.playerCustomPropertiesChanged.add(fn)
}

func (c *Client) OnPlayerActivityChanged(fn func(*Player)) func() {
	return c.events.playerActivityChanged.add(fn)
}

func (c *Client) OnCustomEvent(fn func(CustomEvent)) func() {
	return c.events.customEvent.add(fn)
}

func (c *Client) OnRoomKicked(fn func(KickedEvent)) func() {
	return c.events.roomKicked.add(fn)
}

func (c *Client) OnDisconnected(fn func()) func() {
	return c.events.disconnected.add(func(struct{}) { fn() })
}

func (c *Client) OnError(fn func(ErrorEvent)) func() {
	return c.events.err.add(fn)
}
