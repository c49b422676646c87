// ABOUTME: Player is one member of a room
// ABOUTME: Holds identity, activity and custom properties under its own lock
package play

import (
	"context"
	"sync"

	"github.com/Resonate-Protocol/play-go/pkg/codec"
	"github.com/Resonate-Protocol/play-go/pkg/protocol"
)

// Player is a room member. ActorID is -1 until the player is bound to a room.
type Player struct {
	room    *Room
	userID  string
	actorID int

	mu     sync.RWMutex
	active bool
	props  codec.Object
}

func newPlayer(room *Room, member *protocol.RoomMember, props codec.Object) *Player {
	if props == nil {
		props = codec.Object{}
	}
	return &Player{
		room:    room,
		userID:  member.Pid,
		actorID: int(member.ActorID),
		active:  !member.Inactive,
		props:   props,
	}
}

// UserID returns the player's user id
func (p *Player) UserID() string {
	return p.userID
}

// ActorID returns the player's id within the room
func (p *Player) ActorID() int {
	return p.actorID
}

// IsActive reports whether the player is connected. Inactive players keep their seat until PlayerTTL runs out.
func (p *Player) IsActive() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.active
}

// CustomProperties returns a copy of the player's properties
func (p *Player) CustomProperties() codec.Object {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.props.Clone()
}

// IsLocal reports whether this is the player of the current client
func (p *Player) IsLocal() bool {
	if p.room == nil {
		return false
	}
	local := p.room.Player()
	return local != nil && local.actorID == p.actorID
}

// IsMaster reports whether this player is the room master
func (p *Player) IsMaster() bool {
	return p.room != nil && p.actorID != -1 && p.room.MasterActorID() == p.actorID
}

// SetCustomProperties writes properties of this player. See Room.SetCustomProperties for expected.
func (p *Player) SetCustomProperties(ctx context.Context, props, expected codec.Object) error {
	if p.room == nil {
		return &StateError{Op: "set player properties", State: "player has no room"}
	}
	return p.room.SetPlayerCustomProperties(ctx, p.actorID, props, expected)
}

func (p *Player) merge(changed codec.Object) {
	if len(changed) == 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for k, v := range changed {
		p.props[k] = v
	}
}

func (p *Player) setActive(active bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.active = active
}
