// ABOUTME: Websocket sessions of the development backend
// ABOUTME: Handshake, ordered outbound queue and the read loop shared by lobby and game sockets
package devserver

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/Resonate-Protocol/play-go/pkg/protocol"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const sendBuffer = 256

// session is one websocket. Outbound commands are written in the order they were queued.
type session struct {
	userID string
	conn   *websocket.Conn
	out    chan *protocol.Command
	done   chan struct{}
	log    *zap.Logger

	// game sockets only, guarded by Server.mu
	room    *room
	actorID int32
}

func (sess *session) send(cmd *protocol.Command) {
	select {
	case sess.out <- cmd:
	case <-sess.done:
	default:
		sess.log.Warn("send buffer full, dropping command", zap.String("cmd", string(cmd.Cmd)), zap.String("op", string(cmd.Op)))
	}
}

func (sess *session) reply(cmd *protocol.Command, op protocol.OpType, resp *protocol.Response) {
	resp.I = cmd.Body.Request.I
	sess.send(&protocol.Command{Cmd: cmd.Cmd, Op: op, Body: &protocol.Body{Response: resp}})
}

func (sess *session) fail(cmd *protocol.Command, code int, detail string) {
	sess.reply(cmd, cmd.Op, &protocol.Response{ErrorInfo: &protocol.ErrorInfo{ReasonCode: int32(code), Detail: detail}})
}

func (sess *session) writer() {
	for {
		select {
		case <-sess.done:
			return
		case cmd := <-sess.out:
			data, err := json.Marshal(cmd)
			if err != nil {
				sess.log.Warn("failed to marshal command", zap.Error(err))
				continue
			}
			sess.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := sess.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				sess.log.Debug("write failed", zap.Error(err))
				return
			}
		}
	}
}

// serveSocket upgrades the request, runs the session handshake and feeds
// commands to handle until the socket closes, then calls drop.
func (s *Server) serveSocket(w http.ResponseWriter, r *http.Request, kind string, handle func(*session, *protocol.Command), drop func(*session)) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	sess := &session{
		conn: conn,
		out:  make(chan *protocol.Command, sendBuffer),
		done: make(chan struct{}),
		log:  s.log.With(zap.String("socket", kind)),
	}

	s.mu.Lock()
	s.sessions[sess] = struct{}{}
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		sess.writer()
	}()

	defer func() {
		drop(sess)
		s.mu.Lock()
		delete(s.sessions, sess)
		s.mu.Unlock()
		close(sess.done)
	}()

	if !s.handshake(sess) {
		// let the writer flush the rejection
		time.Sleep(50 * time.Millisecond)
		return
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				sess.log.Debug("socket closed", zap.Error(err))
			}
			return
		}

		var cmd protocol.Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			sess.log.Warn("bad command", zap.Error(err))
			continue
		}
		if cmd.Body == nil {
			cmd.Body = &protocol.Body{}
		}
		handle(sess, &cmd)
	}
}

// handshake expects session/open with a token issued to the same user
func (s *Server) handshake(sess *session) bool {
	var cmd protocol.Command
	if err := sess.conn.ReadJSON(&cmd); err != nil {
		return false
	}
	if cmd.Cmd != protocol.CmdSession || cmd.Op != protocol.OpOpen || cmd.Body == nil ||
		cmd.Body.Request == nil || cmd.Body.Request.SessionOpen == nil {
		sess.log.Warn("expected session/open", zap.String("cmd", string(cmd.Cmd)), zap.String("op", string(cmd.Op)))
		return false
	}

	open := cmd.Body.Request.SessionOpen
	if !s.versionAccepted(open.GameVersion) {
		sess.fail(&cmd, protocol.CodeVersionMismatch, "game version mismatch")
		return false
	}

	s.mu.Lock()
	owner, ok := s.tokens[open.SessionToken]
	s.mu.Unlock()
	if !ok || owner != open.PeerID {
		sess.fail(&cmd, protocol.CodeUnauthorized, "invalid session token")
		return false
	}

	sess.userID = open.PeerID
	sess.log = sess.log.With(zap.String("user", open.PeerID))
	sess.reply(&cmd, protocol.OpOpened, &protocol.Response{})
	return true
}

func (s *Server) versionAccepted(v string) bool {
	return s.config.GameVersion == "" || v == s.config.GameVersion
}
