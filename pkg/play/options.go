// ABOUTME: Options for creating rooms and sending custom events
// ABOUTME: Converts caller options into their wire form
package play

import (
	"fmt"
	"time"

	"github.com/Resonate-Protocol/play-go/pkg/codec"
	"github.com/Resonate-Protocol/play-go/pkg/protocol"
)

// CreateRoomFlag alters master behaviour of a new room
type CreateRoomFlag int32

const (
	// FlagFixedMaster keeps the master slot empty when the master leaves
	FlagFixedMaster CreateRoomFlag = 1
	// FlagMasterUpdateRoomProperties restricts room property writes to the master
	FlagMasterUpdateRoomProperties CreateRoomFlag = 2
)

// RoomOptions configures a room at creation time
type RoomOptions struct {
	Open    bool
	Visible bool

	// EmptyRoomTTL keeps an empty room alive, whole seconds on the wire
	EmptyRoomTTL time.Duration

	// PlayerTTL keeps a disconnected player's seat, whole seconds on the wire
	PlayerTTL time.Duration

	MaxPlayerCount int

	CustomRoomProperties codec.Object

	// CustomRoomPropertyKeysForLobby lists the properties shown in lobby listings and used for matching
	CustomRoomPropertyKeysForLobby []string

	Flag       CreateRoomFlag
	PluginName string
}

// NewRoomOptions returns the default options: open, visible, ten players.
func NewRoomOptions() *RoomOptions {
	return &RoomOptions{
		Open:           true,
		Visible:        true,
		MaxPlayerCount: 10,
	}
}

func (o *RoomOptions) toProtocol(reg *codec.Registry, name string, expected []string) (*protocol.RoomOptions, error) {
	if o == nil {
		o = NewRoomOptions()
	}

	open, visible := o.Open, o.Visible
	opts := &protocol.RoomOptions{
		Cid:           name,
		Open:          &open,
		Visible:       &visible,
		EmptyRoomTTL:  int32(o.EmptyRoomTTL / time.Second),
		PlayerTTL:     int32(o.PlayerTTL / time.Second),
		MaxMembers:    int32(o.MaxPlayerCount),
		ExpectMembers: expected,
		LobbyAttrKeys: o.CustomRoomPropertyKeysForLobby,
		Flag:          int32(o.Flag),
		PluginName:    o.PluginName,
	}

	if len(o.CustomRoomProperties) > 0 {
		attr, err := reg.MarshalObject(o.CustomRoomProperties)
		if err != nil {
			return nil, fmt.Errorf("encode room properties: %w", err)
		}
		opts.Attr = attr
	}
	return opts, nil
}

// ReceiverGroup selects who receives a custom event
type ReceiverGroup int32

const (
	ReceiverOthers       ReceiverGroup = ReceiverGroup(protocol.ReceiverOthers)
	ReceiverAll          ReceiverGroup = ReceiverGroup(protocol.ReceiverAll)
	ReceiverMasterClient ReceiverGroup = ReceiverGroup(protocol.ReceiverMasterClient)
)

// SendEventOptions chooses event recipients. TargetActorIDs wins over ReceiverGroup when set.
type SendEventOptions struct {
	ReceiverGroup  ReceiverGroup
	TargetActorIDs []int
}

func (o *SendEventOptions) toDirect(eventID uint8, msg []byte) *protocol.DirectCommand {
	if o == nil {
		o = &SendEventOptions{ReceiverGroup: ReceiverAll}
	}

	direct := &protocol.DirectCommand{
		EventID:       int32(eventID),
		Msg:           msg,
		ReceiverGroup: protocol.ReceiverGroup(o.ReceiverGroup),
	}
	for _, id := range o.TargetActorIDs {
		direct.ToActorIDs = append(direct.ToActorIDs, int32(id))
	}
	return direct
}
