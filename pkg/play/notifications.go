// ABOUTME: Handlers for notifications pushed to a room connection
// ABOUTME: Applies membership, master and property changes then publishes client events
package play

import (
	"github.com/Resonate-Protocol/play-go/pkg/protocol"
	"go.uber.org/zap"
)

func (r *Room) handleNotification(cmd *protocol.Command) {
	if cmd.Body == nil {
		r.log.Warn("notification without body", zap.String("cmd", string(cmd.Cmd)), zap.String("op", string(cmd.Op)))
		return
	}

	switch cmd.Cmd {
	case protocol.CmdConv:
		r.handleRoomNotification(cmd.Op, cmd.Body.RoomNotification)
	case protocol.CmdDirect:
		r.handleDirect(cmd.Body.Direct)
	case protocol.CmdError:
		if cmd.Body.Error != nil && cmd.Body.Error.ErrorInfo != nil {
			info := cmd.Body.Error.ErrorInfo
			r.log.Error("server error", zap.Int32("code", info.ReasonCode), zap.String("detail", info.Detail))
			r.client.events.err.emit(ErrorEvent{Code: int(info.ReasonCode), Detail: info.Detail})
		}
	default:
		r.log.Warn("unknown notification", zap.String("cmd", string(cmd.Cmd)), zap.String("op", string(cmd.Op)))
	}
}

func (r *Room) handleRoomNotification(op protocol.OpType, n *protocol.RoomNotification) {
	if n == nil {
		r.log.Warn("room notification without payload", zap.String("op", string(op)))
		return
	}

	switch op {
	case protocol.OpMembersJoined:
		r.handleJoined(n.JoinRoom)
	case protocol.OpMembersLeft:
		if n.LeftRoom != nil {
			r.handleLeft(int(n.LeftRoom.ActorID))
		}
	case protocol.OpMasterClientChanged:
		if n.UpdateMasterClient != nil {
			r.handleMasterChanged(int(n.UpdateMasterClient.MasterActorID))
		}
	case protocol.OpSystemPropertyUpdatedNotify:
		if n.UpdateSysProperty != nil {
			changed := r.mergeSystem(n.UpdateSysProperty.SysAttr)
			r.client.events.roomSystemPropertiesChanged.emit(changed)
		}
	case protocol.OpUpdatedNotify:
		r.handleRoomProps(n.UpdateProperty)
	case protocol.OpPlayerProps:
		r.handlePlayerProps(n.UpdateProperty)
	case protocol.OpMembersOffline:
		r.handleActivity(int(n.InitByActor), false)
	case protocol.OpMembersOnline:
		if n.JoinRoom != nil && n.JoinRoom.Member != nil {
			r.handleActivity(int(n.JoinRoom.Member.ActorID), true)
		}
	case protocol.OpKickedNotice:
		r.handleKicked(n.AppInfo)
	default:
		r.log.Warn("unknown room notification", zap.String("op", string(op)))
	}
}

func (r *Room) handleJoined(n *protocol.JoinRoomNotification) {
	if n == nil || n.Member == nil {
		return
	}

	props, err := r.client.registry.UnmarshalObject(n.Member.Attr)
	if err != nil {
		r.log.Warn("failed to decode joined player properties", zap.Error(err))
		return
	}
	p := newPlayer(r, n.Member, props)

	r.mu.Lock()
	r.players[p.actorID] = p
	r.mu.Unlock()

	r.log.Debug("player joined", zap.String("user", p.userID), zap.Int("actor", p.actorID))
	r.client.events.playerJoined.emit(p)
}

func (r *Room) handleLeft(actorID int) {
	p := r.removePlayer(actorID)
	if p == nil {
		r.log.Debug("left notification for unknown actor", zap.Int("actor", actorID))
		return
	}

	r.log.Debug("player left", zap.String("user", p.userID), zap.Int("actor", actorID))
	r.client.events.playerLeft.emit(p)
}

func (r *Room) handleMasterChanged(actorID int) {
	r.mu.Lock()
	r.masterActorID = actorID
	var master *Player
	if actorID != 0 {
		master = r.players[actorID]
	}
	r.mu.Unlock()

	r.client.events.masterSwitched.emit(master)
}

func (r *Room) handleRoomProps(n *protocol.UpdatePropertyNotification) {
	if n == nil {
		return
	}
	changed, err := r.client.registry.UnmarshalObject(n.Attr)
	if err != nil {
		r.log.Warn("failed to decode room properties", zap.Error(err))
		return
	}

	r.mergeProps(changed)
	r.client.events.roomCustomPropertiesChanged.emit(changed)
}

func (r *Room) handlePlayerProps(n *protocol.UpdatePropertyNotification) {
	if n == nil {
		return
	}
	p := r.player(int(n.ActorID))
	if p == nil {
		r.log.Warn("properties for unknown actor", zap.Int32("actor", n.ActorID))
		return
	}
	changed, err := r.client.registry.UnmarshalObject(n.Attr)
	if err != nil {
		r.log.Warn("failed to decode player properties", zap.Error(err))
		return
	}

	p.merge(changed)
	r.client.events.playerCustomPropertiesChanged.emit(PlayerPropertiesEvent{Player: p, Changed: changed})
}

func (r *Room) handleActivity(actorID int, active bool) {
	p := r.player(actorID)
	if p == nil {
		r.log.Warn("activity change for unknown actor", zap.Int("actor", actorID))
		return
	}

	p.setActive(active)
	r.client.events.playerActivityChanged.emit(p)
}

func (r *Room) handleDirect(d *protocol.DirectCommand) {
	if d == nil {
		return
	}
	data, err := r.client.registry.UnmarshalObject(d.Msg)
	if err != nil {
		r.log.Warn("failed to decode event data", zap.Int32("event", d.EventID), zap.Error(err))
		return
	}

	r.client.events.customEvent.emit(CustomEvent{
		EventID:  uint8(d.EventID),
		Data:     data,
		SenderID: int(d.FromActorID),
	})
}

// handleKicked ends membership. The room is closed and detached before subscribers run.
func (r *Room) handleKicked(info *protocol.AppInfo) {
	r.log.Info("kicked from room", zap.String("room", r.Name()))

	r.close()
	r.client.detachRoom(r)

	ev := KickedEvent{}
	if info != nil {
		code := int(info.AppCode)
		ev.Code = &code
		ev.Reason = info.AppMsg
	}
	r.client.events.roomKicked.emit(ev)
}

func (r *Room) handleDisconnect() {
	r.mu.Lock()
	if r.state != RoomGame {
		r.mu.Unlock()
		return
	}
	r.state = RoomDisconnected
	conn := r.conn
	r.mu.Unlock()

	r.log.Warn("room connection lost", zap.String("room", r.Name()))
	conn.Close()
	r.client.events.disconnected.emit(struct{}{})
}
