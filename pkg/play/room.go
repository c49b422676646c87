// ABOUTME: Room is the client side of a server hosted multiplayer session
// ABOUTME: Runs the join flows and every request that mutates room or player state
package play

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/Resonate-Protocol/play-go/pkg/codec"
	"github.com/Resonate-Protocol/play-go/pkg/protocol"
	"github.com/Resonate-Protocol/play-go/pkg/router"
	"go.uber.org/zap"
)

// RoomState is the lifecycle state of a Room
type RoomState int

const (
	RoomInit RoomState = iota
	RoomJoining
	RoomGame
	RoomLeaving
	RoomDisconnected
	RoomClosed
)

func (s RoomState) String() string {
	switch s {
	case RoomInit:
		return "init"
	case RoomJoining:
		return "joining"
	case RoomGame:
		return "game"
	case RoomLeaving:
		return "leaving"
	case RoomDisconnected:
		return "disconnected"
	case RoomClosed:
		return "closed"
	default:
		return fmt.Sprintf("RoomState(%d)", int(s))
	}
}

// Room mirrors the server's view of a room. Every mutation of its state is
// applied from a server response or notification, never optimistically.
type Room struct {
	client *Client
	router *router.Service
	log    *zap.Logger

	mu              sync.RWMutex
	state           RoomState
	conn            *protocol.Conn
	name            string
	open            bool
	visible         bool
	maxPlayerCount  int
	masterActorID   int
	expectedUserIDs []string
	props           codec.Object
	players         map[int]*Player
	local           *Player
}

func newRoom(c *Client, svc *router.Service) *Room {
	return &Room{
		client:  c,
		router:  svc,
		log:     c.log.With(zap.String("component", "room")),
		props:   codec.Object{},
		players: make(map[int]*Player),
	}
}

type resolveFunc func(ctx context.Context) (*router.RoomRoute, error)

type joinFunc func(ctx context.Context, conn *protocol.Conn, route *router.RoomRoute) (*protocol.RoomOptions, error)

func (r *Room) create(ctx context.Context, name string, opts *RoomOptions, expected []string) error {
	return r.enter(ctx, func(ctx context.Context) (*router.RoomRoute, error) {
		return r.router.CreateRoom(ctx, name)
	}, r.startCommand(opts, expected))
}

func (r *Room) join(ctx context.Context, name string, expected []string) error {
	return r.enter(ctx, func(ctx context.Context) (*router.RoomRoute, error) {
		return r.router.JoinRoom(ctx, router.JoinRoomParams{Name: name, ExpectedUserIDs: expected})
	}, r.addCommand(expected, false))
}

func (r *Room) rejoin(ctx context.Context, name string) error {
	return r.enter(ctx, func(ctx context.Context) (*router.RoomRoute, error) {
		return r.router.JoinRoom(ctx, router.JoinRoomParams{Name: name, Rejoin: true})
	}, r.addCommand(nil, true))
}

func (r *Room) joinOrCreate(ctx context.Context, name string, opts *RoomOptions, expected []string) error {
	start := r.startCommand(opts, expected)
	add := r.addCommand(nil, false)

	return r.enter(ctx, func(ctx context.Context) (*router.RoomRoute, error) {
		return r.router.JoinRoom(ctx, router.JoinRoomParams{Name: name, CreateOnNotFound: true})
	}, func(ctx context.Context, conn *protocol.Conn, route *router.RoomRoute) (*protocol.RoomOptions, error) {
		if route.Created {
			return start(ctx, conn, route)
		}
		return add(ctx, conn, route)
	})
}

func (r *Room) joinRandom(ctx context.Context, matchProps codec.Object, expected []string) error {
	return r.enter(ctx, func(ctx context.Context) (*router.RoomRoute, error) {
		return r.router.JoinRandomRoom(ctx, matchProps, expected)
	}, r.addCommand(expected, false))
}

// enter runs a join flow. On failure the room ends up closed with its connection released.
func (r *Room) enter(ctx context.Context, resolve resolveFunc, join joinFunc) error {
	r.mu.Lock()
	r.state = RoomJoining
	r.mu.Unlock()

	if err := r.connect(ctx, resolve, join); err != nil {
		r.log.Warn("failed to enter room", zap.Error(err))
		r.close()
		return err
	}

	r.log.Info("entered room", zap.String("room", r.Name()), zap.Int("actor", r.Player().ActorID()))
	return nil
}

func (r *Room) connect(ctx context.Context, resolve resolveFunc, join joinFunc) error {
	route, err := resolve(ctx)
	if err != nil {
		return err
	}
	info, err := r.router.Authorize(ctx)
	if err != nil {
		return err
	}

	cfg := r.client.config
	conn := protocol.NewConn(protocol.Config{
		URL:          route.URL,
		AppID:        cfg.AppID,
		UserID:       cfg.UserID,
		GameVersion:  cfg.GameVersion,
		SessionToken: info.SessionToken,
		KeepAlive:    protocol.GameKeepAlive,
		Dialer:       cfg.Dialer,
		Logger:       r.log,
	})

	r.mu.Lock()
	r.conn = conn
	r.mu.Unlock()

	if err := conn.Connect(ctx); err != nil {
		return fmt.Errorf("connect to game server: %w", err)
	}

	// hold notifications until the snapshot is in place
	conn.Pause()
	conn.OnNotification(r.handleNotification)
	conn.OnDisconnect(r.handleDisconnect)

	opts, err := join(ctx, conn, route)
	if err != nil {
		return err
	}
	if err := r.init(opts); err != nil {
		return err
	}

	conn.Resume()
	return nil
}

func (r *Room) startCommand(opts *RoomOptions, expected []string) joinFunc {
	return func(ctx context.Context, conn *protocol.Conn, route *router.RoomRoute) (*protocol.RoomOptions, error) {
		options, err := opts.toProtocol(r.client.registry, route.RoomID, expected)
		if err != nil {
			return nil, err
		}

		resp, err := conn.Request(ctx, protocol.CmdConv, protocol.OpStart, &protocol.Request{
			CreateRoom: &protocol.CreateRoomRequest{RoomOptions: options},
		})
		if err != nil {
			return nil, fmt.Errorf("create room: %w", err)
		}
		if resp.CreateRoom == nil || resp.CreateRoom.RoomOptions == nil {
			return nil, fmt.Errorf("create room: %w", protocol.ErrUnexpectedMessage)
		}
		return resp.CreateRoom.RoomOptions, nil
	}
}

func (r *Room) addCommand(expected []string, rejoin bool) joinFunc {
	return func(ctx context.Context, conn *protocol.Conn, route *router.RoomRoute) (*protocol.RoomOptions, error) {
		resp, err := conn.Request(ctx, protocol.CmdConv, protocol.OpAdd, &protocol.Request{
			JoinRoom: &protocol.JoinRoomRequest{
				Rejoin:      rejoin,
				RoomOptions: &protocol.RoomOptions{Cid: route.RoomID, ExpectMembers: expected},
			},
		})
		if err != nil {
			return nil, fmt.Errorf("join room: %w", err)
		}
		if resp.JoinRoom == nil || resp.JoinRoom.RoomOptions == nil {
			return nil, fmt.Errorf("join room: %w", protocol.ErrUnexpectedMessage)
		}
		return resp.JoinRoom.RoomOptions, nil
	}
}

// init replaces local state with the snapshot returned by a join and moves to RoomGame
func (r *Room) init(opts *protocol.RoomOptions) error {
	reg := r.client.registry

	props, err := reg.UnmarshalObject(opts.Attr)
	if err != nil {
		return fmt.Errorf("decode room properties: %w", err)
	}

	players := make(map[int]*Player, len(opts.Members))
	var local *Player
	for i := range opts.Members {
		member := &opts.Members[i]
		attr, err := reg.UnmarshalObject(member.Attr)
		if err != nil {
			return fmt.Errorf("decode properties of actor %d: %w", member.ActorID, err)
		}
		p := newPlayer(r, member, attr)
		players[p.actorID] = p
		if p.userID == r.client.config.UserID {
			local = p
		}
	}
	if local == nil {
		return fmt.Errorf("room snapshot has no member %q: %w", r.client.config.UserID, protocol.ErrUnexpectedMessage)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// closed by the client while the join was in flight
	if r.state != RoomJoining {
		return &StateError{Op: "enter room", State: "room is " + r.state.String()}
	}

	r.name = opts.Cid
	r.open = opts.Open == nil || *opts.Open
	r.visible = opts.Visible == nil || *opts.Visible
	r.maxPlayerCount = int(opts.MaxMembers)
	r.masterActorID = int(opts.MasterActorID)
	r.expectedUserIDs = append([]string{}, opts.ExpectMembers...)
	r.props = props
	r.players = players
	r.local = local
	r.state = RoomGame
	return nil
}

// requireGame returns the room connection, or a *StateError outside RoomGame
func (r *Room) requireGame(op string) (*protocol.Conn, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.state != RoomGame {
		return nil, &StateError{Op: op, State: "room is " + r.state.String()}
	}
	return r.conn, nil
}

// SetCustomProperties writes room properties. When expected is non-nil the server
// applies props only if the room currently holds those values. Only the properties
// the server confirms are merged locally, so a mismatch is not an error.
func (r *Room) SetCustomProperties(ctx context.Context, props, expected codec.Object) error {
	conn, err := r.requireGame("set room properties")
	if err != nil {
		return err
	}

	req, err := r.propertyRequest(0, props, expected)
	if err != nil {
		return err
	}
	resp, err := conn.Request(ctx, protocol.CmdConv, protocol.OpUpdate, &protocol.Request{UpdateProperty: req})
	if err != nil {
		return fmt.Errorf("set room properties: %w", err)
	}

	changed, err := r.confirmed(resp)
	if err != nil {
		return err
	}
	r.mergeProps(changed)
	return nil
}

// SetPlayerCustomProperties writes properties of the player with actorID
func (r *Room) SetPlayerCustomProperties(ctx context.Context, actorID int, props, expected codec.Object) error {
	conn, err := r.requireGame("set player properties")
	if err != nil {
		return err
	}
	if r.player(actorID) == nil {
		return fmt.Errorf("actor %d: %w", actorID, ErrPlayerNotFound)
	}

	req, err := r.propertyRequest(actorID, props, expected)
	if err != nil {
		return err
	}
	resp, err := conn.Request(ctx, protocol.CmdConv, protocol.OpUpdate, &protocol.Request{UpdateProperty: req})
	if err != nil {
		return fmt.Errorf("set player properties: %w", err)
	}

	changed, err := r.confirmed(resp)
	if err != nil {
		return err
	}
	if len(changed) == 0 {
		return nil
	}
	if p := r.player(int(resp.UpdateProperty.ActorID)); p != nil {
		p.merge(changed)
	}
	return nil
}

func (r *Room) propertyRequest(actorID int, props, expected codec.Object) (*protocol.UpdatePropertyRequest, error) {
	reg := r.client.registry

	attr, err := reg.MarshalObject(props)
	if err != nil {
		return nil, fmt.Errorf("encode properties: %w", err)
	}
	req := &protocol.UpdatePropertyRequest{TargetActorID: int32(actorID), Attr: attr}

	if expected != nil {
		req.ExpectAttr, err = reg.MarshalObject(expected)
		if err != nil {
			return nil, fmt.Errorf("encode expected properties: %w", err)
		}
	}
	return req, nil
}

func (r *Room) confirmed(resp *protocol.Response) (codec.Object, error) {
	if resp.UpdateProperty == nil {
		return codec.Object{}, nil
	}
	changed, err := r.client.registry.UnmarshalObject(resp.UpdateProperty.Attr)
	if err != nil {
		return nil, fmt.Errorf("decode confirmed properties: %w", err)
	}
	return changed, nil
}

// SetOpen opens or closes the room for new players and returns the resulting flag
func (r *Room) SetOpen(ctx context.Context, open bool) (bool, error) {
	err := r.updateSystem(ctx, "set open", &protocol.RoomSystemProperty{Open: &open})
	return r.Open(), err
}

// SetVisible shows or hides the room in lobby listings and returns the resulting flag
func (r *Room) SetVisible(ctx context.Context, visible bool) (bool, error) {
	err := r.updateSystem(ctx, "set visible", &protocol.RoomSystemProperty{Visible: &visible})
	return r.Visible(), err
}

func (r *Room) SetMaxPlayerCount(ctx context.Context, count int) (int, error) {
	if _, err := r.requireGame("set max player count"); err != nil {
		return r.MaxPlayerCount(), err
	}
	if count <= 0 {
		return r.MaxPlayerCount(), fmt.Errorf("max player count must be positive, got %d", count)
	}
	err := r.updateSystem(ctx, "set max player count", &protocol.RoomSystemProperty{MaxMembers: int32(count)})
	return r.MaxPlayerCount(), err
}

// SetExpectedUserIDs replaces the list of users holding a reserved seat
func (r *Room) SetExpectedUserIDs(ctx context.Context, userIDs []string) ([]string, error) {
	err := r.updateMembers(ctx, "set expected users", protocol.MembersOp{Op: protocol.MembersSet, IDs: userIDs})
	return r.ExpectedUserIDs(), err
}

func (r *Room) ClearExpectedUserIDs(ctx context.Context) error {
	return r.updateMembers(ctx, "clear expected users", protocol.MembersOp{Op: protocol.MembersDrop})
}

func (r *Room) AddExpectedUserIDs(ctx context.Context, userIDs []string) ([]string, error) {
	err := r.updateMembers(ctx, "add expected users", protocol.MembersOp{Op: protocol.MembersAdd, IDs: userIDs})
	return r.ExpectedUserIDs(), err
}

func (r *Room) RemoveExpectedUserIDs(ctx context.Context, userIDs []string) ([]string, error) {
	err := r.updateMembers(ctx, "remove expected users", protocol.MembersOp{Op: protocol.MembersRemove, IDs: userIDs})
	return r.ExpectedUserIDs(), err
}

func (r *Room) updateMembers(ctx context.Context, op string, members protocol.MembersOp) error {
	if _, err := r.requireGame(op); err != nil {
		return err
	}
	encoded, err := members.Encode()
	if err != nil {
		return err
	}
	return r.updateSystem(ctx, op, &protocol.RoomSystemProperty{ExpectMembers: encoded})
}

func (r *Room) updateSystem(ctx context.Context, op string, sys *protocol.RoomSystemProperty) error {
	conn, err := r.requireGame(op)
	if err != nil {
		return err
	}

	resp, err := conn.Request(ctx, protocol.CmdConv, protocol.OpUpdateSystemProperty, &protocol.Request{
		UpdateSysProperty: &protocol.UpdateSysPropertyRequest{SysAttr: sys},
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if resp.UpdateSysProperty != nil {
		r.mergeSystem(resp.UpdateSysProperty.SysAttr)
	}
	return nil
}

// SetMaster asks the server to hand the master role to actorID and returns the
// master the server settled on, which is unchanged when the request was refused.
func (r *Room) SetMaster(ctx context.Context, actorID int) (*Player, error) {
	conn, err := r.requireGame("set master")
	if err != nil {
		return nil, err
	}

	resp, err := conn.Request(ctx, protocol.CmdConv, protocol.OpUpdateMasterClient, &protocol.Request{
		UpdateMasterClient: &protocol.UpdateMasterClientRequest{MasterActorID: int32(actorID)},
	})
	if err != nil {
		return nil, fmt.Errorf("set master: %w", err)
	}
	if resp.UpdateMasterClient != nil {
		r.mu.Lock()
		r.masterActorID = int(resp.UpdateMasterClient.MasterActorID)
		r.mu.Unlock()
	}
	return r.Master(), nil
}

// KickPlayer removes actorID from the room. A zero code with an empty reason sends no app info.
func (r *Room) KickPlayer(ctx context.Context, actorID, code int, reason string) error {
	conn, err := r.requireGame("kick player")
	if err != nil {
		return err
	}

	req := &protocol.KickMemberRequest{TargetActorID: int32(actorID)}
	if code != 0 || reason != "" {
		req.AppInfo = &protocol.AppInfo{AppCode: int32(code), AppMsg: reason}
	}
	resp, err := conn.Request(ctx, protocol.CmdConv, protocol.OpKick, &protocol.Request{KickMember: req})
	if err != nil {
		return fmt.Errorf("kick player: %w", err)
	}

	kicked := actorID
	if resp.KickMember != nil {
		kicked = int(resp.KickMember.TargetActorID)
	}
	r.removePlayer(kicked)
	return nil
}

// SendEvent sends a custom event without waiting for delivery. nil opts sends to everyone.
func (r *Room) SendEvent(eventID uint8, data codec.Object, opts *SendEventOptions) error {
	conn, err := r.requireGame("send event")
	if err != nil {
		return err
	}

	var msg []byte
	if data != nil {
		msg, err = r.client.registry.MarshalObject(data)
		if err != nil {
			return fmt.Errorf("encode event data: %w", err)
		}
	}
	return conn.Send(protocol.CmdDirect, "", &protocol.Body{Direct: opts.toDirect(eventID, msg)})
}

// PauseMessageQueue holds back notifications until ResumeMessageQueue
func (r *Room) PauseMessageQueue() error {
	conn, err := r.requireGame("pause message queue")
	if err != nil {
		return err
	}
	conn.Pause()
	return nil
}

// ResumeMessageQueue delivers held notifications in the order they arrived
func (r *Room) ResumeMessageQueue() error {
	conn, err := r.requireGame("resume message queue")
	if err != nil {
		return err
	}
	conn.Resume()
	return nil
}

// GetPlayer returns the member with actorID
func (r *Room) GetPlayer(actorID int) (*Player, error) {
	if _, err := r.requireGame("get player"); err != nil {
		return nil, err
	}
	p := r.player(actorID)
	if p == nil {
		return nil, fmt.Errorf("actor %d: %w", actorID, ErrPlayerNotFound)
	}
	return p, nil
}

func (r *Room) Name() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.name
}

func (r *Room) Open() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.open
}

func (r *Room) Visible() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.visible
}

func (r *Room) MaxPlayerCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.maxPlayerCount
}

// MasterActorID returns 0 when the room has no master
func (r *Room) MasterActorID() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.masterActorID
}

// Master returns the master player, or nil when there is none
func (r *Room) Master() *Player {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.masterActorID == 0 {
		return nil
	}
	return r.players[r.masterActorID]
}

func (r *Room) ExpectedUserIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string{}, r.expectedUserIDs...)
}

// CustomProperties returns a copy of the room properties
func (r *Room) CustomProperties() codec.Object {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.props.Clone()
}

// PlayerList returns the members ordered by actor id
func (r *Room) PlayerList() []*Player {
	r.mu.RLock()
	list := make([]*Player, 0, len(r.players))
	for _, p := range r.players {
		list = append(list, p)
	}
	r.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool { return list[i].actorID < list[j].actorID })
	return list
}

// Player returns the local player
func (r *Room) Player() *Player {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.local
}

func (r *Room) State() RoomState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

func (r *Room) player(actorID int) *Player {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.players[actorID]
}

func (r *Room) removePlayer(actorID int) *Player {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.players[actorID]
	if !ok {
		return nil
	}
	delete(r.players, actorID)
	return p
}

func (r *Room) mergeProps(changed codec.Object) {
	if len(changed) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, v := range changed {
		r.props[k] = v
	}
}

// mergeSystem applies the fields present in sys and reports them under their public names
func (r *Room) mergeSystem(sys *protocol.RoomSystemProperty) codec.Object {
	changed := codec.Object{}
	if sys == nil {
		return changed
	}

	var expected []string
	if sys.ExpectMembers != "" {
		ids, err := protocol.ParseMembers(sys.ExpectMembers)
		if err != nil {
			r.log.Warn("ignoring malformed expected members", zap.Error(err))
		} else {
			expected = ids
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if sys.Open != nil {
		r.open = *sys.Open
		changed["open"] = r.open
	}
	if sys.Visible != nil {
		r.visible = *sys.Visible
		changed["visible"] = r.visible
	}
	if sys.MaxMembers != 0 {
		r.maxPlayerCount = int(sys.MaxMembers)
		changed["maxPlayerCount"] = sys.MaxMembers
	}
	if expected != nil {
		r.expectedUserIDs = expected
		changed["expectedUserIds"] = append([]string{}, expected...)
	}
	return changed
}

// leave tells the server the local player is going and closes the room either way
func (r *Room) leave(ctx context.Context) error {
	r.mu.Lock()
	conn, state := r.conn, r.state
	r.state = RoomLeaving
	r.mu.Unlock()

	defer r.close()

	if state != RoomGame || conn == nil {
		return nil
	}
	if _, err := conn.Request(ctx, protocol.CmdConv, protocol.OpRemove, nil); err != nil {
		return fmt.Errorf("leave room: %w", err)
	}
	return nil
}

func (r *Room) close() {
	r.mu.Lock()
	r.state = RoomClosed
	conn := r.conn
	r.mu.Unlock()

	if conn != nil {
		if err := conn.Close(); err != nil {
			r.log.Debug("error closing room connection", zap.Error(err))
		}
	}
}

// disconnect drops the room connection as a network failure would
func (r *Room) disconnect() {
	r.mu.RLock()
	conn := r.conn
	r.mu.RUnlock()

	if conn != nil {
		conn.Disconnect()
	}
}
