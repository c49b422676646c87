// ABOUTME: Game socket command handling of the development backend
// ABOUTME: Answers the requester first, then notifies the other room members
package devserver

import (
	"net/http"
	"time"

	"github.com/Resonate-Protocol/play-go/pkg/codec"
	"github.com/Resonate-Protocol/play-go/pkg/protocol"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

func (s *Server) handleGameSocket(w http.ResponseWriter, r *http.Request) {
	s.serveSocket(w, r, "game", s.handleGameCommand, s.dropGameSession)
}

func (s *Server) handleGameCommand(sess *session, cmd *protocol.Command) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cmd.Cmd == protocol.CmdDirect {
		s.handleDirect(sess, cmd.Body.Direct)
		return
	}
	if cmd.Body.Request == nil {
		sess.log.Debug("ignoring command without request", zap.String("cmd", string(cmd.Cmd)), zap.String("op", string(cmd.Op)))
		return
	}
	if cmd.Cmd != protocol.CmdConv {
		sess.fail(cmd, protocol.CodeInvalidRequest, "unsupported command "+string(cmd.Cmd))
		return
	}

	switch cmd.Op {
	case protocol.OpStart:
		s.handleStart(sess, cmd)
	case protocol.OpAdd:
		s.handleAdd(sess, cmd)
	default:
		if sess.room == nil {
			sess.fail(cmd, protocol.CodeInvalidRequest, "not in a room")
			return
		}
		switch cmd.Op {
		case protocol.OpRemove:
			s.handleRemove(sess, cmd)
		case protocol.OpUpdate:
			s.handleUpdate(sess, cmd)
		case protocol.OpUpdateSystemProperty:
			s.handleUpdateSystem(sess, cmd)
		case protocol.OpUpdateMasterClient:
			s.handleSetMaster(sess, cmd)
		case protocol.OpKick:
			s.handleKick(sess, cmd)
		default:
			sess.fail(cmd, protocol.CodeInvalidRequest, "unsupported op "+string(cmd.Op))
		}
	}
}

func (s *Server) handleStart(sess *session, cmd *protocol.Command) {
	req := cmd.Body.Request.CreateRoom
	if req == nil || req.RoomOptions == nil {
		sess.fail(cmd, protocol.CodeInvalidRequest, "missing room options")
		return
	}
	if sess.room != nil {
		sess.fail(cmd, protocol.CodeAlreadyInRoom, "already in room "+sess.room.name)
		return
	}
	if req.RoomOptions.Cid == "" {
		req.RoomOptions.Cid = uuid.NewString()
	}
	if _, exists := s.rooms[req.RoomOptions.Cid]; exists {
		sess.fail(cmd, protocol.CodeInvalidRequest, "room "+req.RoomOptions.Cid+" already exists")
		return
	}

	rm, err := newRoom(req.RoomOptions)
	if err != nil {
		sess.fail(cmd, protocol.CodeInvalidRequest, err.Error())
		return
	}
	m := rm.addMember(sess)
	rm.master = m.actorID
	s.rooms[rm.name] = rm
	sess.room, sess.actorID = rm, m.actorID

	sess.log.Info("room created", zap.String("room", rm.name))
	sess.reply(cmd, protocol.OpStarted, &protocol.Response{CreateRoom: &protocol.CreateRoomResponse{RoomOptions: rm.options()}})
	s.broadcastRoomList()
}

func (s *Server) handleAdd(sess *session, cmd *protocol.Command) {
	req := cmd.Body.Request.JoinRoom
	if req == nil || req.RoomOptions == nil {
		sess.fail(cmd, protocol.CodeInvalidRequest, "missing room options")
		return
	}
	if sess.room != nil {
		sess.fail(cmd, protocol.CodeAlreadyInRoom, "already in room "+sess.room.name)
		return
	}
	rm := s.rooms[req.RoomOptions.Cid]
	if rm == nil {
		sess.fail(cmd, protocol.CodeRoomNotFound, "room "+req.RoomOptions.Cid+" not found")
		return
	}

	if m := rm.memberByUser(sess.userID); m != nil {
		if m.active && !req.Rejoin {
			sess.fail(cmd, protocol.CodeAlreadyInRoom, "already in room "+rm.name)
			return
		}
		s.reattach(sess, rm, m, cmd)
		return
	}

	if code := rm.admit(sess.userID); code != 0 {
		sess.fail(cmd, code, "cannot join room "+rm.name)
		return
	}

	m := rm.addMember(sess)
	for _, id := range req.RoomOptions.ExpectMembers {
		if !contains(rm.expected, id) && rm.memberByUser(id) == nil {
			rm.expected = append(rm.expected, id)
		}
	}
	if rm.master == 0 && rm.flag&flagFixedMaster == 0 {
		rm.master = m.actorID
	}
	sess.room, sess.actorID = rm, m.actorID

	sess.log.Info("joined room", zap.String("room", rm.name), zap.Int32("actor", m.actorID))
	sess.reply(cmd, protocol.OpAdded, &protocol.Response{JoinRoom: &protocol.JoinRoomResponse{RoomOptions: rm.options()}})
	s.notifyRoom(rm, m.actorID, protocol.OpMembersJoined, &protocol.RoomNotification{
		JoinRoom: &protocol.JoinRoomNotification{Member: m.proto()},
	})
	s.broadcastRoomList()
}

// reattach moves an existing membership to a new socket
func (s *Server) reattach(sess *session, rm *room, m *member, cmd *protocol.Command) {
	if m.sess != nil {
		m.sess.room = nil
	}
	if m.expiry != nil {
		m.expiry.Stop()
		m.expiry = nil
	}
	wasActive := m.active
	m.sess, m.active = sess, true
	sess.room, sess.actorID = rm, m.actorID

	sess.log.Info("rejoined room", zap.String("room", rm.name), zap.Int32("actor", m.actorID))
	sess.reply(cmd, protocol.OpAdded, &protocol.Response{JoinRoom: &protocol.JoinRoomResponse{RoomOptions: rm.options()}})
	if !wasActive {
		s.notifyRoom(rm, m.actorID, protocol.OpMembersOnline, &protocol.RoomNotification{
			JoinRoom: &protocol.JoinRoomNotification{Member: m.proto()},
		})
	}
}

func (s *Server) handleRemove(sess *session, cmd *protocol.Command) {
	rm, actor := sess.room, sess.actorID
	sess.room = nil
	sess.reply(cmd, protocol.OpRemoved, &protocol.Response{})
	s.removeMember(rm, actor, 0)
}

// removeMember drops actor from rm and tells everyone left except skip.
func (s *Server) removeMember(rm *room, actor, skip int32) {
	m, ok := rm.members[actor]
	if !ok {
		return
	}
	if m.expiry != nil {
		m.expiry.Stop()
	}
	delete(rm.members, actor)

	for _, other := range rm.sortedMembers() {
		if other.actorID != skip {
			s.notifyMember(other, protocol.CmdConv, protocol.OpMembersLeft, &protocol.Body{RoomNotification: &protocol.RoomNotification{
				LeftRoom: &protocol.LeftRoomNotification{ActorID: actor},
			}})
		}
	}

	if rm.master == actor {
		rm.master = rm.electMaster()
		s.notifyRoom(rm, 0, protocol.OpMasterClientChanged, &protocol.RoomNotification{
			UpdateMasterClient: &protocol.UpdateMasterClientNotification{MasterActorID: rm.master},
		})
	}

	if len(rm.members) == 0 {
		s.retireRoom(rm)
	}
	s.broadcastRoomList()
}

// retireRoom deletes an empty room now or after its EmptyRoomTTL
func (s *Server) retireRoom(rm *room) {
	if rm.emptyTTL <= 0 {
		delete(s.rooms, rm.name)
		return
	}
	rm.expiry = time.AfterFunc(time.Duration(rm.emptyTTL)*time.Second, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if len(rm.members) == 0 && s.rooms[rm.name] == rm {
			delete(s.rooms, rm.name)
			s.broadcastRoomList()
		}
	})
}

func (s *Server) handleUpdate(sess *session, cmd *protocol.Command) {
	req := cmd.Body.Request.UpdateProperty
	if req == nil {
		sess.fail(cmd, protocol.CodeInvalidRequest, "missing properties")
		return
	}
	rm := sess.room

	target := rm.attr
	if req.TargetActorID != 0 {
		m, ok := rm.members[req.TargetActorID]
		if !ok {
			sess.fail(cmd, protocol.CodeActorNotFound, "actor not found")
			return
		}
		target = m.attr
	} else if rm.flag&flagMasterUpdateRoomAttr != 0 && rm.master != sess.actorID {
		sess.fail(cmd, protocol.CodeNotMaster, "only the master may change room properties")
		return
	}

	props, err := codec.UnmarshalRawObject(req.Attr)
	if err != nil {
		sess.fail(cmd, protocol.CodeInvalidRequest, err.Error())
		return
	}
	expect, err := codec.UnmarshalRawObject(req.ExpectAttr)
	if err != nil {
		sess.fail(cmd, protocol.CodeInvalidRequest, err.Error())
		return
	}

	changed := applyProps(target, props, expect)
	resp := &protocol.UpdatePropertyResponse{ActorID: req.TargetActorID}
	if len(changed) > 0 {
		resp.Attr = changed.Marshal()
	}
	sess.reply(cmd, protocol.OpUpdated, &protocol.Response{UpdateProperty: resp})

	if len(changed) == 0 {
		return
	}
	op := protocol.OpUpdatedNotify
	if req.TargetActorID != 0 {
		op = protocol.OpPlayerProps
	}
	s.notifyRoom(rm, sess.actorID, op, &protocol.RoomNotification{
		UpdateProperty: &protocol.UpdatePropertyNotification{ActorID: req.TargetActorID, Attr: resp.Attr},
	})
	if req.TargetActorID == 0 {
		s.broadcastRoomList()
	}
}

func (s *Server) handleUpdateSystem(sess *session, cmd *protocol.Command) {
	req := cmd.Body.Request.UpdateSysProperty
	if req == nil || req.SysAttr == nil {
		sess.fail(cmd, protocol.CodeInvalidRequest, "missing system properties")
		return
	}
	rm, sys := sess.room, req.SysAttr

	var members *protocol.MembersOp
	if sys.ExpectMembers != "" {
		op, err := protocol.ParseMembersOp(sys.ExpectMembers)
		if err != nil {
			sess.fail(cmd, protocol.CodeInvalidRequest, err.Error())
			return
		}
		members = &op
	}

	changed := &protocol.RoomSystemProperty{}
	if sys.Open != nil && *sys.Open != rm.open {
		rm.open = *sys.Open
		changed.Open = &rm.open
	}
	if sys.Visible != nil && *sys.Visible != rm.visible {
		rm.visible = *sys.Visible
		changed.Visible = &rm.visible
	}
	if sys.MaxMembers > 0 && sys.MaxMembers != rm.maxMembers {
		rm.maxMembers = sys.MaxMembers
		changed.MaxMembers = sys.MaxMembers
	}
	if members != nil {
		rm.applyMembers(*members)
		changed.ExpectMembers = protocol.EncodeMembers(rm.expected)
	}

	sess.reply(cmd, protocol.OpSystemPropertyUpdated, &protocol.Response{
		UpdateSysProperty: &protocol.UpdateSysPropertyResponse{SysAttr: copySys(changed)},
	})
	s.notifyRoom(rm, sess.actorID, protocol.OpSystemPropertyUpdatedNotify, &protocol.RoomNotification{
		UpdateSysProperty: &protocol.UpdateSysPropertyNotification{SysAttr: copySys(changed)},
	})
	s.broadcastRoomList()
}

func copySys(sys *protocol.RoomSystemProperty) *protocol.RoomSystemProperty {
	out := *sys
	if sys.Open != nil {
		v := *sys.Open
		out.Open = &v
	}
	if sys.Visible != nil {
		v := *sys.Visible
		out.Visible = &v
	}
	return &out
}

func (s *Server) handleSetMaster(sess *session, cmd *protocol.Command) {
	req := cmd.Body.Request.UpdateMasterClient
	if req == nil {
		sess.fail(cmd, protocol.CodeInvalidRequest, "missing master")
		return
	}
	rm := sess.room
	if rm.master != 0 && rm.master != sess.actorID {
		sess.fail(cmd, protocol.CodeNotMaster, "only the master may hand over the role")
		return
	}

	m, ok := rm.members[req.MasterActorID]
	changed := ok && m.active && m.actorID != rm.master
	if changed {
		rm.master = m.actorID
	}

	sess.reply(cmd, protocol.OpMasterClientUpdated, &protocol.Response{
		UpdateMasterClient: &protocol.UpdateMasterClientResponse{MasterActorID: rm.master},
	})
	if changed {
		s.notifyRoom(rm, sess.actorID, protocol.OpMasterClientChanged, &protocol.RoomNotification{
			UpdateMasterClient: &protocol.UpdateMasterClientNotification{MasterActorID: rm.master},
		})
	}
}

func (s *Server) handleKick(sess *session, cmd *protocol.Command) {
	req := cmd.Body.Request.KickMember
	if req == nil {
		sess.fail(cmd, protocol.CodeInvalidRequest, "missing kick target")
		return
	}
	rm := sess.room
	if rm.master != sess.actorID {
		sess.fail(cmd, protocol.CodeNotMaster, "only the master may kick")
		return
	}
	target, ok := rm.members[req.TargetActorID]
	if !ok || target.actorID == sess.actorID {
		sess.fail(cmd, protocol.CodeActorNotFound, "actor not found")
		return
	}

	sess.reply(cmd, protocol.OpKicked, &protocol.Response{KickMember: &protocol.KickMemberResponse{TargetActorID: target.actorID}})

	if target.sess != nil {
		target.sess.room = nil
		target.sess.send(&protocol.Command{Cmd: protocol.CmdConv, Op: protocol.OpKickedNotice, Body: &protocol.Body{
			RoomNotification: &protocol.RoomNotification{InitByActor: sess.actorID, AppInfo: req.AppInfo},
		}})
	}
	sess.log.Info("kicked", zap.String("room", rm.name), zap.Int32("actor", target.actorID))
	s.removeMember(rm, target.actorID, sess.actorID)
}

func (s *Server) handleDirect(sess *session, d *protocol.DirectCommand) {
	rm := sess.room
	if rm == nil || d == nil {
		return
	}

	event := &protocol.DirectCommand{EventID: d.EventID, Msg: d.Msg, FromActorID: sess.actorID}
	var targets []*member
	switch {
	case len(d.ToActorIDs) > 0:
		for _, id := range d.ToActorIDs {
			if m, ok := rm.members[id]; ok {
				targets = append(targets, m)
			}
		}
	case d.ReceiverGroup == protocol.ReceiverMasterClient:
		if m, ok := rm.members[rm.master]; ok {
			targets = append(targets, m)
		}
	default:
		for _, m := range rm.sortedMembers() {
			if d.ReceiverGroup == protocol.ReceiverAll || m.actorID != sess.actorID {
				targets = append(targets, m)
			}
		}
	}

	for _, m := range targets {
		s.notifyMember(m, protocol.CmdDirect, "", &protocol.Body{Direct: event})
	}
}

// dropGameSession handles a socket that went away while in a room. With a player
// TTL the seat is kept for a rejoin, otherwise the member leaves.
func (s *Server) dropGameSession(sess *session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rm := sess.room
	if rm == nil {
		return
	}
	sess.room = nil
	m, ok := rm.members[sess.actorID]
	if !ok || m.sess != sess {
		return
	}

	if rm.playerTTL <= 0 {
		s.removeMember(rm, m.actorID, 0)
		return
	}

	m.active, m.sess = false, nil
	s.notifyRoom(rm, m.actorID, protocol.OpMembersOffline, &protocol.RoomNotification{InitByActor: m.actorID})
	m.expiry = time.AfterFunc(time.Duration(rm.playerTTL)*time.Second, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if current, ok := rm.members[m.actorID]; ok && current == m && !m.active {
			s.removeMember(rm, m.actorID, 0)
		}
	})
}

// notifyRoom sends a room notification to every connected member except skip
func (s *Server) notifyRoom(rm *room, skip int32, op protocol.OpType, n *protocol.RoomNotification) {
	for _, m := range rm.sortedMembers() {
		if m.actorID != skip {
			s.notifyMember(m, protocol.CmdConv, op, &protocol.Body{RoomNotification: n})
		}
	}
}

func (s *Server) notifyMember(m *member, cmd protocol.CommandType, op protocol.OpType, body *protocol.Body) {
	if m.sess == nil {
		return
	}
	m.sess.send(&protocol.Command{Cmd: cmd, Op: op, Body: body})
}
