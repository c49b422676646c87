// ABOUTME: Lobby socket of the development backend
// ABOUTME: Pushes the full visible room list to lobby members whenever a room changes
package devserver

import (
	"net/http"
	"sort"

	"github.com/Resonate-Protocol/play-go/pkg/protocol"
)

func (s *Server) handleLobbySocket(w http.ResponseWriter, r *http.Request) {
	s.serveSocket(w, r, "lobby", s.handleLobbyCommand, s.dropLobbySession)
}

func (s *Server) handleLobbyCommand(sess *session, cmd *protocol.Command) {
	if cmd.Body.Request == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case cmd.Cmd == protocol.CmdLobby && cmd.Op == protocol.OpAdd:
		s.lobby[sess] = struct{}{}
		sess.reply(cmd, protocol.OpAdded, &protocol.Response{})
		sess.send(s.roomList())
	case cmd.Cmd == protocol.CmdLobby && cmd.Op == protocol.OpRemove:
		delete(s.lobby, sess)
		sess.reply(cmd, protocol.OpRemoved, &protocol.Response{})
	default:
		sess.fail(cmd, protocol.CodeInvalidRequest, "unsupported lobby command")
	}
}

func (s *Server) dropLobbySession(sess *session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.lobby, sess)
}

// roomList requires s.mu held
func (s *Server) roomList() *protocol.Command {
	names := make([]string, 0, len(s.rooms))
	for name, rm := range s.rooms {
		if rm.visible {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	list := &protocol.RoomListCommand{List: make([]*protocol.RoomOptions, 0, len(names))}
	for _, name := range names {
		list.List = append(list.List, s.rooms[name].listing())
	}
	return &protocol.Command{Cmd: protocol.CmdLobby, Op: protocol.OpRoomList, Body: &protocol.Body{RoomList: list}}
}

// broadcastRoomList requires s.mu held
func (s *Server) broadcastRoomList() {
	if len(s.lobby) == 0 {
		return
	}
	cmd := s.roomList()
	for sess := range s.lobby {
		sess.send(cmd)
	}
}
