// ABOUTME: Client is the entry point of the Play SDK
// ABOUTME: Owns the directory session, at most one lobby and at most one room
package play

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Resonate-Protocol/play-go/internal/discovery"
	"github.com/Resonate-Protocol/play-go/pkg/codec"
	"github.com/Resonate-Protocol/play-go/pkg/router"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	DefaultGameVersion      = "0.0.1"
	DefaultDiscoveryTimeout = 5 * time.Second
)

var validate = validator.New()

// Config holds client configuration
type Config struct {
	AppID  string `validate:"required"`
	AppKey string
	UserID string `validate:"required,max=128"`

	// Insecure talks plain http/ws to the router and game servers
	Insecure    bool
	GameVersion string `validate:"omitempty,max=64"`

	// PlayServer is the router address. When empty, Connect looks for a router with mDNS.
	PlayServer       string
	DiscoveryTimeout time.Duration

	// Registry decodes custom property types. Defaults to codec.Default.
	Registry   *codec.Registry
	Logger     *zap.Logger
	HTTPClient *http.Client
	Dialer     *websocket.Dialer
}

// Client is one user's session with a Play backend. A closed Client cannot be reused.
type Client struct {
	config   Config
	registry *codec.Registry
	log      *zap.Logger
	events   events

	mu     sync.Mutex
	router *router.Service
	lobby  *Lobby
	room   *Room
	closed bool
}

// NewClient validates config and creates a client
func NewClient(config Config) (*Client, error) {
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	if config.GameVersion == "" {
		config.GameVersion = DefaultGameVersion
	}
	if config.DiscoveryTimeout == 0 {
		config.DiscoveryTimeout = DefaultDiscoveryTimeout
	}
	if config.Registry == nil {
		config.Registry = codec.Default
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	return &Client{
		config:   config,
		registry: config.Registry,
		log:      config.Logger.With(zap.String("user", config.UserID)),
	}, nil
}

// UserID returns the configured user id
func (c *Client) UserID() string {
	return c.config.UserID
}

// Connect authorizes with the router. It may be called again to refresh the session.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.checkOpen("connect"); err != nil {
		return err
	}

	server := c.config.PlayServer
	if server == "" {
		lookupCtx, cancel := context.WithTimeout(ctx, c.config.DiscoveryTimeout)
		info, err := discovery.Lookup(lookupCtx, c.config.AppID, c.log)
		cancel()
		if err != nil {
			return fmt.Errorf("connect: %w", err)
		}
		server = info.URL()
		c.log.Info("discovered play server", zap.String("server", server))
	}

	svc := router.NewService(router.Config{
		Server:      server,
		AppID:       c.config.AppID,
		AppKey:      c.config.AppKey,
		UserID:      c.config.UserID,
		GameVersion: c.config.GameVersion,
		Insecure:    c.config.Insecure,
		HTTPClient:  c.config.HTTPClient,
		Logger:      c.log,
	})
	if _, err := svc.Authorize(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	c.mu.Lock()
	c.router = svc
	c.mu.Unlock()

	c.log.Info("connected", zap.String("server", server))
	return nil
}

// JoinLobby starts receiving the lobby room list
func (c *Client) JoinLobby(ctx context.Context) error {
	c.mu.Lock()
	if err := c.checkSession("join lobby"); err != nil {
		c.mu.Unlock()
		return err
	}
	if c.lobby != nil {
		c.mu.Unlock()
		return &StateError{Op: "join lobby", State: "lobby is " + c.lobby.State().String()}
	}
	lobby := newLobby(c, c.router)
	c.lobby = lobby
	c.mu.Unlock()

	if err := lobby.join(ctx); err != nil {
		c.mu.Lock()
		if c.lobby == lobby {
			c.lobby = nil
		}
		c.mu.Unlock()
		return err
	}
	return nil
}

// LeaveLobby stops receiving the lobby room list
func (c *Client) LeaveLobby(ctx context.Context) error {
	c.mu.Lock()
	lobby := c.lobby
	c.lobby = nil
	c.mu.Unlock()

	if lobby == nil {
		return &StateError{Op: "leave lobby", State: "not in lobby"}
	}
	return lobby.leave(ctx)
}

// LobbyRoomList returns the rooms last listed by the lobby, or nil outside a lobby
func (c *Client) LobbyRoomList() []LobbyRoom {
	c.mu.Lock()
	lobby := c.lobby
	c.mu.Unlock()

	if lobby == nil {
		return nil
	}
	return lobby.RoomList()
}

// CreateRoom creates and enters a room. An empty name lets the server choose one;
// nil opts uses NewRoomOptions.
func (c *Client) CreateRoom(ctx context.Context, name string, opts *RoomOptions, expectedUserIDs []string) (*Room, error) {
	return c.acquireRoom(ctx, "create room", func(r *Room) error {
		return r.create(ctx, name, opts, expectedUserIDs)
	})
}

// JoinRoom enters an existing room by name
func (c *Client) JoinRoom(ctx context.Context, name string, expectedUserIDs []string) (*Room, error) {
	return c.acquireRoom(ctx, "join room", func(r *Room) error {
		return r.join(ctx, name, expectedUserIDs)
	})
}

// RejoinRoom restores the local player's seat in a room it dropped out of
func (c *Client) RejoinRoom(ctx context.Context, name string) (*Room, error) {
	return c.acquireRoom(ctx, "rejoin room", func(r *Room) error {
		return r.rejoin(ctx, name)
	})
}

// JoinOrCreateRoom joins name, creating it with opts when it does not exist
func (c *Client) JoinOrCreateRoom(ctx context.Context, name string, opts *RoomOptions, expectedUserIDs []string) (*Room, error) {
	return c.acquireRoom(ctx, "join or create room", func(r *Room) error {
		return r.joinOrCreate(ctx, name, opts, expectedUserIDs)
	})
}

// JoinRandomRoom enters an open room whose lobby properties match matchProps
func (c *Client) JoinRandomRoom(ctx context.Context, matchProps codec.Object, expectedUserIDs []string) (*Room, error) {
	return c.acquireRoom(ctx, "join random room", func(r *Room) error {
		return r.joinRandom(ctx, matchProps, expectedUserIDs)
	})
}

// ReconnectAndRejoin refreshes the session and rejoins the last room
func (c *Client) ReconnectAndRejoin(ctx context.Context) (*Room, error) {
	c.mu.Lock()
	room := c.room
	c.mu.Unlock()

	if room == nil || room.Name() == "" {
		return nil, &StateError{Op: "reconnect and rejoin", State: "no room to rejoin"}
	}
	name := room.Name()

	if err := c.Connect(ctx); err != nil {
		return nil, err
	}
	return c.RejoinRoom(ctx, name)
}

// MatchRandom reserves a seat for piggybackUserID in a matching room and returns
// the room name without joining it.
func (c *Client) MatchRandom(ctx context.Context, piggybackUserID string, matchProps codec.Object, expectedUserIDs []string) (string, error) {
	svc, err := c.session("match random")
	if err != nil {
		return "", err
	}
	route, err := svc.MatchRandom(ctx, piggybackUserID, matchProps, expectedUserIDs)
	if err != nil {
		return "", err
	}
	return route.RoomID, nil
}

// FetchMyRoom returns the name of the room the user currently belongs to on the server
func (c *Client) FetchMyRoom(ctx context.Context) (string, error) {
	svc, err := c.session("fetch my room")
	if err != nil {
		return "", err
	}
	route, err := svc.FetchMyRoom(ctx)
	if err != nil {
		return "", err
	}
	return route.RoomID, nil
}

// LeaveRoom leaves the current room. The room is closed even when the server call fails.
func (c *Client) LeaveRoom(ctx context.Context) error {
	c.mu.Lock()
	room := c.room
	c.room = nil
	c.mu.Unlock()

	if room == nil {
		return &StateError{Op: "leave room", State: "not in a room"}
	}
	return room.leave(ctx)
}

// Room returns the current room, or nil
func (c *Client) Room() *Room {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room
}

// Player returns the local player, or nil outside a room
func (c *Client) Player() *Player {
	room := c.Room()
	if room == nil {
		return nil
	}
	return room.Player()
}

// Close leaves the lobby and room best effort and drops every subscription.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	lobby, room := c.lobby, c.room
	c.lobby, c.room = nil, nil
	if c.router != nil {
		c.router.Reset()
	}
	c.router = nil
	c.mu.Unlock()

	if lobby != nil {
		if err := lobby.leave(ctx); err != nil {
			c.log.Debug("leave lobby on close failed", zap.Error(err))
		}
	}
	if room != nil {
		if err := room.leave(ctx); err != nil {
			c.log.Debug("leave room on close failed", zap.Error(err))
		}
	}

	c.events.clear()
	c.log.Info("client closed")
	return nil
}

// acquireRoom runs a join flow on a fresh Room. An open lobby is left first and
// a failed flow leaves the client without a room.
func (c *Client) acquireRoom(ctx context.Context, op string, enter func(*Room) error) (*Room, error) {
	c.mu.Lock()
	if err := c.checkSession(op); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	if c.room != nil && c.room.State() == RoomGame {
		c.mu.Unlock()
		return nil, &StateError{Op: op, State: "already in room " + c.room.Name()}
	}
	stale, lobby := c.room, c.lobby
	c.lobby = nil
	room := newRoom(c, c.router)
	c.room = room
	c.mu.Unlock()

	if stale != nil {
		stale.close()
	}
	if lobby != nil {
		if err := lobby.leave(ctx); err != nil {
			c.log.Debug("leave lobby before room failed", zap.Error(err))
		}
	}

	if err := enter(room); err != nil {
		c.detachRoom(room)
		return nil, err
	}

	c.mu.Lock()
	current := c.room == room
	c.mu.Unlock()
	if !current {
		if err := room.leave(ctx); err != nil {
			c.log.Debug("leave superseded room failed", zap.Error(err))
		}
		return nil, &StateError{Op: op, State: "client closed during join"}
	}
	return room, nil
}

func (c *Client) detachRoom(r *Room) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.room == r {
		c.room = nil
	}
}

func (c *Client) session(op string) (*router.Service, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkSession(op); err != nil {
		return nil, err
	}
	return c.router, nil
}

// checkSession requires c.mu held
func (c *Client) checkSession(op string) error {
	if c.closed {
		return &StateError{Op: op, State: "client is closed"}
	}
	if c.router == nil {
		return &StateError{Op: op, State: "client is not connected"}
	}
	return nil
}

func (c *Client) checkOpen(op string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return &StateError{Op: op, State: "client is closed"}
	}
	return nil
}

func (c *Client) currentRoom(op string) (*Room, error) {
	room := c.Room()
	if room == nil {
		return nil, &StateError{Op: op, State: "not in a room"}
	}
	return room, nil
}

func (c *Client) SetRoomCustomProperties(ctx context.Context, props, expected codec.Object) error {
	room, err := c.currentRoom("set room properties")
	if err != nil {
		return err
	}
	return room.SetCustomProperties(ctx, props, expected)
}

func (c *Client) SetPlayerCustomProperties(ctx context.Context, actorID int, props, expected codec.Object) error {
	room, err := c.currentRoom("set player properties")
	if err != nil {
		return err
	}
	return room.SetPlayerCustomProperties(ctx, actorID, props, expected)
}

func (c *Client) SetRoomOpen(ctx context.Context, open bool) (bool, error) {
	room, err := c.currentRoom("set open")
	if err != nil {
		return false, err
	}
	return room.SetOpen(ctx, open)
}

func (c *Client) SetRoomVisible(ctx context.Context, visible bool) (bool, error) {
	room, err := c.currentRoom("set visible")
	if err != nil {
		return false, err
	}
	return room.SetVisible(ctx, visible)
}

func (c *Client) SetRoomMaxPlayerCount(ctx context.Context, count int) (int, error) {
	room, err := c.currentRoom("set max player count")
	if err != nil {
		return 0, err
	}
	return room.SetMaxPlayerCount(ctx, count)
}

func (c *Client) SetRoomExpectedUserIDs(ctx context.Context, userIDs []string) ([]string, error) {
	room, err := c.currentRoom("set expected users")
	if err != nil {
		return nil, err
	}
	return room.SetExpectedUserIDs(ctx, userIDs)
}

func (c *Client) ClearRoomExpectedUserIDs(ctx context.Context) error {
	room, err := c.currentRoom("clear expected users")
	if err != nil {
		return err
	}
	return room.ClearExpectedUserIDs(ctx)
}

func (c *Client) AddRoomExpectedUserIDs(ctx context.Context, userIDs []string) ([]string, error) {
	room, err := c.currentRoom("add expected users")
	if err != nil {
		return nil, err
	}
	return room.AddExpectedUserIDs(ctx, userIDs)
}

func (c *Client) RemoveRoomExpectedUserIDs(ctx context.Context, userIDs []string) ([]string, error) {
	room, err := c.currentRoom("remove expected users")
	if err != nil {
		return nil, err
	}
	return room.RemoveExpectedUserIDs(ctx, userIDs)
}

func (c *Client) SetMaster(ctx context.Context, actorID int) (*Player, error) {
	room, err := c.currentRoom("set master")
	if err != nil {
		return nil, err
	}
	return room.SetMaster(ctx, actorID)
}

func (c *Client) KickPlayer(ctx context.Context, actorID, code int, reason string) error {
	room, err := c.currentRoom("kick player")
	if err != nil {
		return err
	}
	return room.KickPlayer(ctx, actorID, code, reason)
}

func (c *Client) SendEvent(eventID uint8, data codec.Object, opts *SendEventOptions) error {
	room, err := c.currentRoom("send event")
	if err != nil {
		return err
	}
	return room.SendEvent(eventID, data, opts)
}

func (c *Client) PauseMessageQueue() error {
	room, err := c.currentRoom("pause message queue")
	if err != nil {
		return err
	}
	return room.PauseMessageQueue()
}

func (c *Client) ResumeMessageQueue() error {
	room, err := c.currentRoom("resume message queue")
	if err != nil {
		return err
	}
	return room.ResumeMessageQueue()
}
