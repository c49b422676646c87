// ABOUTME: Lobby connection listing the rooms that can be joined
// ABOUTME: Every room-list notification replaces the whole list
package play

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Resonate-Protocol/play-go/pkg/codec"
	"github.com/Resonate-Protocol/play-go/pkg/protocol"
	"github.com/Resonate-Protocol/play-go/pkg/router"
	"go.uber.org/zap"
)

// LobbyState is the lifecycle state of a Lobby
type LobbyState int

const (
	LobbyInit LobbyState = iota
	LobbyJoining
	LobbyJoined
	LobbyLeaving
	LobbyClosed
)

func (s LobbyState) String() string {
	switch s {
	case LobbyInit:
		return "init"
	case LobbyJoining:
		return "joining"
	case LobbyJoined:
		return "joined"
	case LobbyLeaving:
		return "leaving"
	case LobbyClosed:
		return "closed"
	default:
		return fmt.Sprintf("LobbyState(%d)", int(s))
	}
}

// LobbyRoom is a room as listed in the lobby
type LobbyRoom struct {
	RoomName        string
	Open            bool
	Visible         bool
	MaxPlayerCount  int
	PlayerCount     int
	EmptyRoomTTL    time.Duration
	PlayerTTL       time.Duration
	ExpectedUserIDs []string

	// CustomRoomProperties holds only the keys the room exposes to lobbies
	CustomRoomProperties codec.Object
}

func newLobbyRoom(reg *codec.Registry, opts *protocol.RoomOptions) (LobbyRoom, error) {
	props, err := reg.UnmarshalObject(opts.Attr)
	if err != nil {
		return LobbyRoom{}, fmt.Errorf("decode properties of room %q: %w", opts.Cid, err)
	}
	return LobbyRoom{
		RoomName:             opts.Cid,
		Open:                 opts.Open == nil || *opts.Open,
		Visible:              opts.Visible == nil || *opts.Visible,
		MaxPlayerCount:       int(opts.MaxMembers),
		PlayerCount:          int(opts.MemberCount),
		EmptyRoomTTL:         time.Duration(opts.EmptyRoomTTL) * time.Second,
		PlayerTTL:            time.Duration(opts.PlayerTTL) * time.Second,
		ExpectedUserIDs:      append([]string{}, opts.ExpectMembers...),
		CustomRoomProperties: props,
	}, nil
}

// Lobby is a connection to the lobby server
type Lobby struct {
	client *Client
	router *router.Service
	log    *zap.Logger

	mu    sync.RWMutex
	state LobbyState
	conn  *protocol.Conn
	rooms []LobbyRoom
}

func newLobby(c *Client, svc *router.Service) *Lobby {
	return &Lobby{
		client: c,
		router: svc,
		log:    c.log.With(zap.String("component", "lobby")),
	}
}

func (l *Lobby) join(ctx context.Context) error {
	l.mu.Lock()
	l.state = LobbyJoining
	l.mu.Unlock()

	if err := l.connect(ctx); err != nil {
		l.close()
		return err
	}

	l.mu.Lock()
	state := l.state
	if state == LobbyJoining {
		l.state = LobbyJoined
	}
	l.mu.Unlock()

	if state != LobbyJoining {
		l.close()
		return &StateError{Op: "join lobby", State: "lobby is " + state.String()}
	}

	l.log.Info("joined lobby")
	return nil
}

func (l *Lobby) connect(ctx context.Context) error {
	info, err := l.router.Authorize(ctx)
	if err != nil {
		return err
	}
	url, err := router.LobbyURL(info)
	if err != nil {
		return err
	}

	cfg := l.client.config
	conn := protocol.NewConn(protocol.Config{
		URL:          url,
		AppID:        cfg.AppID,
		UserID:       cfg.UserID,
		GameVersion:  cfg.GameVersion,
		SessionToken: info.SessionToken,
		KeepAlive:    protocol.LobbyKeepAlive,
		Dialer:       cfg.Dialer,
		Logger:       l.log,
	})

	l.mu.Lock()
	l.conn = conn
	l.mu.Unlock()

	if err := conn.Connect(ctx); err != nil {
		return fmt.Errorf("connect to lobby: %w", err)
	}
	conn.OnNotification(l.handleNotification)

	if _, err := conn.Request(ctx, protocol.CmdLobby, protocol.OpAdd, nil); err != nil {
		return fmt.Errorf("join lobby: %w", err)
	}
	return nil
}

// leave sends the leave request and always closes the connection
func (l *Lobby) leave(ctx context.Context) error {
	l.mu.Lock()
	conn, state := l.conn, l.state
	l.state = LobbyLeaving
	l.mu.Unlock()

	defer l.close()

	if state != LobbyJoined || conn == nil {
		return nil
	}
	if _, err := conn.Request(ctx, protocol.CmdLobby, protocol.OpRemove, nil); err != nil {
		return fmt.Errorf("leave lobby: %w", err)
	}
	return nil
}

func (l *Lobby) close() {
	l.mu.Lock()
	l.state = LobbyClosed
	conn := l.conn
	l.mu.Unlock()

	if conn != nil {
		if err := conn.Close(); err != nil {
			l.log.Debug("error closing lobby connection", zap.Error(err))
		}
	}
}

// State returns the lobby's lifecycle state
func (l *Lobby) State() LobbyState {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// RoomList returns the last room list received
func (l *Lobby) RoomList() []LobbyRoom {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]LobbyRoom(nil), l.rooms...)
}

func (l *Lobby) handleNotification(cmd *protocol.Command) {
	if cmd.Body == nil {
		return
	}

	switch {
	case cmd.Cmd == protocol.CmdLobby && cmd.Op == protocol.OpRoomList:
		l.handleRoomList(cmd.Body.RoomList)
	case cmd.Cmd == protocol.CmdError && cmd.Body.Error != nil && cmd.Body.Error.ErrorInfo != nil:
		info := cmd.Body.Error.ErrorInfo
		l.log.Error("lobby error", zap.Int32("code", info.ReasonCode), zap.String("detail", info.Detail))
		l.client.events.err.emit(ErrorEvent{Code: int(info.ReasonCode), Detail: info.Detail})
	default:
		l.log.Warn("unknown lobby notification", zap.String("cmd", string(cmd.Cmd)), zap.String("op", string(cmd.Op)))
	}
}

func (l *Lobby) handleRoomList(list *protocol.RoomListCommand) {
	rooms := []LobbyRoom{}
	if list != nil {
		for _, opts := range list.List {
			if opts == nil {
				continue
			}
			room, err := newLobbyRoom(l.client.registry, opts)
			if err != nil {
				l.log.Warn("skipping lobby room", zap.Error(err))
				continue
			}
			rooms = append(rooms, room)
		}
	}

	l.mu.Lock()
	l.rooms = rooms
	l.mu.Unlock()

	l.client.events.lobbyRoomListUpdated.emit(append([]LobbyRoom(nil), rooms...))
}
