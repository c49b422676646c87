// ABOUTME: End-to-end tests of clients, lobbies and rooms
// ABOUTME: Runs several clients against the in-memory development backend
package play

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/Resonate-Protocol/play-go/internal/devserver"
	"github.com/Resonate-Protocol/play-go/pkg/codec"
	"github.com/Resonate-Protocol/play-go/pkg/protocol"
)

const waitTimeout = 2 * time.Second

func startBackend(t *testing.T) string {
	t.Helper()
	s := devserver.New(devserver.Config{})
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		s.Close()
		srv.Close()
	})
	return srv.URL
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func connectClient(t *testing.T, url, user string) *Client {
	t.Helper()
	c, err := NewClient(Config{AppID: "app", UserID: user, PlayServer: url, Insecure: true})
	if err != nil {
		t.Fatalf("new client failed: %v", err)
	}
	if err := c.Connect(testContext(t)); err != nil {
		t.Fatalf("connect %s failed: %v", user, err)
	}
	t.Cleanup(func() { c.Close(context.Background()) })
	return c
}

func subscribe[T any](on func(func(T)) func()) chan T {
	ch := make(chan T, 32)
	on(func(v T) { ch <- v })
	return ch
}

func receive[T any](t *testing.T, ch chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(waitTimeout):
		t.Fatalf("timed out waiting for %s", what)
		var zero T
		return zero
	}
}

// startRoom has alice create name and bob join it
func startRoom(t *testing.T, url, name string, opts *RoomOptions) (*Client, *Client) {
	t.Helper()
	ctx := testContext(t)
	alice := connectClient(t, url, "alice")
	bob := connectClient(t, url, "bob")

	if _, err := alice.CreateRoom(ctx, name, opts, nil); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	joined := subscribe(alice.OnPlayerJoined)
	if _, err := bob.JoinRoom(ctx, name, nil); err != nil {
		t.Fatalf("join failed: %v", err)
	}
	receive(t, joined, "bob to join")
	return alice, bob
}

func TestCreateJoinAndKick(t *testing.T) {
	url := startBackend(t)
	ctx := testContext(t)
	alice := connectClient(t, url, "alice")
	bob := connectClient(t, url, "bob")

	opts := NewRoomOptions()
	opts.MaxPlayerCount = 4
	opts.CustomRoomProperties = codec.Object{"id": int32(1)}

	room, err := alice.CreateRoom(ctx, "R", opts, nil)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if room.Name() != "R" || room.State() != RoomGame || room.MaxPlayerCount() != 4 {
		t.Errorf("unexpected room: name=%s state=%s max=%d", room.Name(), room.State(), room.MaxPlayerCount())
	}
	if !room.Player().IsMaster() || !room.Player().IsLocal() {
		t.Error("creator should be the local master")
	}
	if id, ok := room.CustomProperties().Int("id"); !ok || id != 1 {
		t.Errorf("expected id 1, got %v", room.CustomProperties())
	}

	joined := subscribe(alice.OnPlayerJoined)
	bobRoom, err := bob.JoinRoom(ctx, "R", nil)
	if err != nil {
		t.Fatalf("join failed: %v", err)
	}
	p := receive(t, joined, "player joined")
	if p.UserID() != "bob" || p.ActorID() != 2 || p.IsLocal() {
		t.Errorf("unexpected joined player %s/%d", p.UserID(), p.ActorID())
	}
	if len(bobRoom.PlayerList()) != 2 || bobRoom.Master().UserID() != "alice" {
		t.Errorf("joiner should see both players with alice as master")
	}

	changed := subscribe(bob.OnRoomCustomPropertiesChanged)
	if err := alice.SetRoomCustomProperties(ctx, codec.Object{"gold": int32(100)}, nil); err != nil {
		t.Fatalf("set properties failed: %v", err)
	}
	got := receive(t, changed, "room properties")
	if gold, ok := got.Int("gold"); !ok || gold != 100 {
		t.Errorf("expected changed gold 100, got %v", got)
	}
	if gold, ok := bobRoom.CustomProperties().Int("gold"); !ok || gold != 100 {
		t.Errorf("expected bob's room gold 100, got %v", bobRoom.CustomProperties())
	}
	if gold, ok := room.CustomProperties().Int("gold"); !ok || gold != 100 {
		t.Errorf("expected alice's room gold 100, got %v", room.CustomProperties())
	}

	kicked := subscribe(bob.OnRoomKicked)
	if err := alice.KickPlayer(ctx, 2, 7, "cheater"); err != nil {
		t.Fatalf("kick failed: %v", err)
	}
	ev := receive(t, kicked, "kick notice")
	if ev.Code == nil || *ev.Code != 7 || ev.Reason != "cheater" {
		t.Errorf("unexpected kick event %+v", ev)
	}
	if bob.Room() != nil {
		t.Error("kicked client should have no room")
	}
	if bobRoom.State() != RoomClosed {
		t.Errorf("expected kicked room closed, got %s", bobRoom.State())
	}
	if len(room.PlayerList()) != 1 {
		t.Errorf("expected one player left, got %d", len(room.PlayerList()))
	}
}

func TestKickSeenAsLeaveByOthers(t *testing.T) {
	url := startBackend(t)
	ctx := testContext(t)
	alice, _ := startRoom(t, url, "K", nil)
	carol := connectClient(t, url, "carol")

	joined := subscribe(alice.OnPlayerJoined)
	carolRoom, err := carol.JoinRoom(ctx, "K", nil)
	if err != nil {
		t.Fatalf("carol join failed: %v", err)
	}
	receive(t, joined, "carol to join")

	left := subscribe(carol.OnPlayerLeft)
	kicked := subscribe(carol.OnRoomKicked)
	if err := alice.KickPlayer(ctx, 2, 0, ""); err != nil {
		t.Fatalf("kick failed: %v", err)
	}

	p := receive(t, left, "bob to leave")
	if p.UserID() != "bob" || p.ActorID() != 2 {
		t.Errorf("expected bob/2 to leave, got %s/%d", p.UserID(), p.ActorID())
	}
	if len(kicked) != 0 {
		t.Errorf("bystander got %d kicked events", len(kicked))
	}
	if carol.Room() != carolRoom || carolRoom.State() != RoomGame {
		t.Errorf("bystander should stay in the room, state %s", carolRoom.State())
	}
	if n := len(carolRoom.PlayerList()); n != 2 {
		t.Errorf("expected 2 players after kick, got %d", n)
	}
}

func TestCompareAndSetRoomProperties(t *testing.T) {
	url := startBackend(t)
	ctx := testContext(t)
	alice := connectClient(t, url, "alice")

	room, err := alice.CreateRoom(ctx, "cas", &RoomOptions{
		Open: true, Visible: true, MaxPlayerCount: 2,
		CustomRoomProperties: codec.Object{"id": int32(1)},
	}, nil)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if err := room.SetCustomProperties(ctx, codec.Object{"gold": int32(200)}, codec.Object{"id": int32(2)}); err != nil {
		t.Fatalf("mismatched write should not fail: %v", err)
	}
	if room.CustomProperties().Has("gold") {
		t.Error("mismatched expectation must not apply")
	}

	if err := room.SetCustomProperties(ctx, codec.Object{"gold": int32(200)}, codec.Object{"id": int32(1)}); err != nil {
		t.Fatalf("matching write failed: %v", err)
	}
	if gold, ok := room.CustomProperties().Int("gold"); !ok || gold != 200 {
		t.Errorf("expected gold 200, got %v", room.CustomProperties())
	}
}

func TestPlayerPropertiesAndEvents(t *testing.T) {
	url := startBackend(t)
	ctx := testContext(t)
	alice, bob := startRoom(t, url, "P", nil)

	changed := subscribe(bob.OnPlayerCustomPropertiesChanged)
	if err := alice.Player().SetCustomProperties(ctx, codec.Object{"ready": true}, nil); err != nil {
		t.Fatalf("set player properties failed: %v", err)
	}
	ev := receive(t, changed, "player properties")
	if ev.Player.ActorID() != 1 {
		t.Errorf("expected actor 1, got %d", ev.Player.ActorID())
	}
	if ready, ok := ev.Changed.Bool("ready"); !ok || !ready {
		t.Errorf("expected ready=true, got %v", ev.Changed)
	}
	if ready, _ := alice.Player().CustomProperties().Bool("ready"); !ready {
		t.Error("local player properties not merged")
	}

	if err := alice.SetPlayerCustomProperties(ctx, 9, codec.Object{"ready": false}, nil); !errors.Is(err, ErrPlayerNotFound) {
		t.Errorf("expected ErrPlayerNotFound, got %v", err)
	}
	if _, err := alice.Room().GetPlayer(9); !errors.Is(err, ErrPlayerNotFound) {
		t.Errorf("expected ErrPlayerNotFound, got %v", err)
	}

	events := subscribe(bob.OnCustomEvent)
	if err := alice.SendEvent(5, codec.Object{"hp": int32(10)}, &SendEventOptions{TargetActorIDs: []int{2}}); err != nil {
		t.Fatalf("send event failed: %v", err)
	}
	got := receive(t, events, "custom event")
	if got.EventID != 5 || got.SenderID != 1 {
		t.Errorf("unexpected event %+v", got)
	}
	if hp, ok := got.Data.Int("hp"); !ok || hp != 10 {
		t.Errorf("expected hp 10, got %v", got.Data)
	}
}

func TestPauseResumeMessageQueue(t *testing.T) {
	url := startBackend(t)
	alice, bob := startRoom(t, url, "Q", nil)

	events := subscribe(bob.OnCustomEvent)
	if err := bob.PauseMessageQueue(); err != nil {
		t.Fatalf("pause failed: %v", err)
	}

	for id := uint8(1); id <= 3; id++ {
		if err := alice.SendEvent(id, nil, &SendEventOptions{ReceiverGroup: ReceiverOthers}); err != nil {
			t.Fatalf("send event %d failed: %v", id, err)
		}
	}

	select {
	case ev := <-events:
		t.Fatalf("event %d delivered while paused", ev.EventID)
	case <-time.After(200 * time.Millisecond):
	}

	if err := bob.ResumeMessageQueue(); err != nil {
		t.Fatalf("resume failed: %v", err)
	}
	for want := uint8(1); want <= 3; want++ {
		if got := receive(t, events, "custom event"); got.EventID != want {
			t.Errorf("expected event %d, got %d", want, got.EventID)
		}
	}
}

func TestMasterAndSystemProperties(t *testing.T) {
	url := startBackend(t)
	ctx := testContext(t)
	opts := NewRoomOptions()
	opts.MaxPlayerCount = 4
	alice, bob := startRoom(t, url, "S", opts)

	switched := subscribe(bob.OnMasterSwitched)
	master, err := alice.SetMaster(ctx, 2)
	if err != nil {
		t.Fatalf("set master failed: %v", err)
	}
	if master == nil || master.UserID() != "bob" {
		t.Fatalf("expected bob as master, got %v", master)
	}
	if p := receive(t, switched, "master switch"); p == nil || p.UserID() != "bob" {
		t.Errorf("expected switch to bob, got %v", p)
	}
	if !bob.Player().IsMaster() {
		t.Error("bob should see himself as master")
	}

	sys := subscribe(bob.OnRoomSystemPropertiesChanged)
	open, err := alice.SetRoomOpen(ctx, false)
	if err != nil || open {
		t.Fatalf("set open: got %v, %v", open, err)
	}
	got := receive(t, sys, "system properties")
	if v, ok := got.Bool("open"); !ok || v {
		t.Errorf("expected open=false, got %v", got)
	}
	if bob.Room().Open() {
		t.Error("bob's room should be closed")
	}

	if count, err := alice.SetRoomMaxPlayerCount(ctx, 0); err == nil || count != 4 {
		t.Errorf("expected rejection keeping 4, got %d, %v", count, err)
	}
	if count, err := alice.SetRoomMaxPlayerCount(ctx, 3); err != nil || count != 3 {
		t.Errorf("expected max 3, got %d, %v", count, err)
	}

	ids, err := alice.SetRoomExpectedUserIDs(ctx, []string{"carol", "dave"})
	if err != nil || len(ids) != 2 {
		t.Fatalf("set expected: got %v, %v", ids, err)
	}
	ids, err = alice.RemoveRoomExpectedUserIDs(ctx, []string{"carol"})
	if err != nil || len(ids) != 1 || ids[0] != "dave" {
		t.Errorf("remove expected: got %v, %v", ids, err)
	}
	if err := alice.ClearRoomExpectedUserIDs(ctx); err != nil {
		t.Fatalf("clear expected failed: %v", err)
	}
	if ids := alice.Room().ExpectedUserIDs(); len(ids) != 0 {
		t.Errorf("expected no reserved users, got %v", ids)
	}
	ids, err = alice.AddRoomExpectedUserIDs(ctx, []string{"erin"})
	if err != nil || len(ids) != 1 || ids[0] != "erin" {
		t.Errorf("add expected: got %v, %v", ids, err)
	}
}

func TestLeaveMovesMaster(t *testing.T) {
	url := startBackend(t)
	ctx := testContext(t)
	alice, bob := startRoom(t, url, "L", nil)

	left := subscribe(bob.OnPlayerLeft)
	switched := subscribe(bob.OnMasterSwitched)

	if err := alice.LeaveRoom(ctx); err != nil {
		t.Fatalf("leave failed: %v", err)
	}
	if alice.Room() != nil {
		t.Error("client should have no room after leaving")
	}
	if p := receive(t, left, "player left"); p.UserID() != "alice" {
		t.Errorf("expected alice to leave, got %s", p.UserID())
	}
	if p := receive(t, switched, "master switch"); p == nil || p.UserID() != "bob" {
		t.Errorf("expected bob to become master, got %v", p)
	}
	if len(bob.Room().PlayerList()) != 1 {
		t.Errorf("expected one remaining player")
	}

	if err := alice.LeaveRoom(ctx); !errors.Is(err, ErrState) {
		t.Errorf("expected ErrState leaving twice, got %v", err)
	}
}

func TestLobbyListsRooms(t *testing.T) {
	url := startBackend(t)
	ctx := testContext(t)
	alice := connectClient(t, url, "alice")
	carol := connectClient(t, url, "carol")

	lists := subscribe(carol.OnLobbyRoomListUpdated)
	if err := carol.JoinLobby(ctx); err != nil {
		t.Fatalf("join lobby failed: %v", err)
	}
	if err := carol.JoinLobby(ctx); !errors.Is(err, ErrState) {
		t.Errorf("expected ErrState joining twice, got %v", err)
	}

	opts := NewRoomOptions()
	opts.MaxPlayerCount = 4
	opts.CustomRoomProperties = codec.Object{"level": int32(3), "secret": "x"}
	opts.CustomRoomPropertyKeysForLobby = []string{"level"}
	if _, err := alice.CreateRoom(ctx, "arena", opts, nil); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	var listed *LobbyRoom
	deadline := time.After(waitTimeout)
	for listed == nil {
		select {
		case list := <-lists:
			for i := range list {
				if list[i].RoomName == "arena" {
					listed = &list[i]
				}
			}
		case <-deadline:
			t.Fatal("room never listed in lobby")
		}
	}
	if listed.PlayerCount != 1 || listed.MaxPlayerCount != 4 || !listed.Open {
		t.Errorf("unexpected listing %+v", listed)
	}
	if level, ok := listed.CustomRoomProperties.Int("level"); !ok || level != 3 {
		t.Errorf("expected level 3 in listing, got %v", listed.CustomRoomProperties)
	}
	if listed.CustomRoomProperties.Has("secret") {
		t.Error("listing must only expose lobby keys")
	}
	if len(carol.LobbyRoomList()) == 0 {
		t.Error("expected cached lobby list")
	}

	room, err := carol.JoinRandomRoom(ctx, codec.Object{"level": int32(3)}, nil)
	if err != nil {
		t.Fatalf("join random failed: %v", err)
	}
	if room.Name() != "arena" {
		t.Errorf("expected arena, got %s", room.Name())
	}
	if carol.LobbyRoomList() != nil {
		t.Error("entering a room should leave the lobby")
	}
}

func TestJoinFailureLeavesNoRoom(t *testing.T) {
	url := startBackend(t)
	ctx := testContext(t)
	alice := connectClient(t, url, "alice")

	_, err := alice.JoinRoom(ctx, "missing", nil)
	if !protocol.IsCode(err, protocol.CodeRoomNotFound) {
		t.Fatalf("expected room not found, got %v", err)
	}
	var remote *RemoteError
	if !errors.As(err, &remote) {
		t.Errorf("expected *RemoteError, got %T", err)
	}
	if alice.Room() != nil {
		t.Error("failed join must not leave a room behind")
	}

	if _, err := alice.CreateRoom(ctx, "", nil, nil); err != nil {
		t.Fatalf("create after failed join: %v", err)
	}
	if alice.Room().Name() == "" {
		t.Error("server should name an unnamed room")
	}
	if _, err := alice.CreateRoom(ctx, "other", nil, nil); !errors.Is(err, ErrState) {
		t.Errorf("expected ErrState while in a room, got %v", err)
	}
}

func TestJoinOrCreateRoom(t *testing.T) {
	url := startBackend(t)
	ctx := testContext(t)
	alice := connectClient(t, url, "alice")
	bob := connectClient(t, url, "bob")

	room, err := alice.JoinOrCreateRoom(ctx, "J", nil, nil)
	if err != nil {
		t.Fatalf("join or create failed: %v", err)
	}
	if !room.Player().IsMaster() || len(room.PlayerList()) != 1 {
		t.Error("first caller should create the room")
	}

	room, err = bob.JoinOrCreateRoom(ctx, "J", nil, nil)
	if err != nil {
		t.Fatalf("second join or create failed: %v", err)
	}
	if len(room.PlayerList()) != 2 || room.Master().UserID() != "alice" {
		t.Error("second caller should join the existing room")
	}
}

func TestMatchRandomAndFetchMyRoom(t *testing.T) {
	url := startBackend(t)
	ctx := testContext(t)
	alice := connectClient(t, url, "alice")
	bob := connectClient(t, url, "bob")

	opts := NewRoomOptions()
	opts.CustomRoomProperties = codec.Object{"level": int32(3)}
	opts.CustomRoomPropertyKeysForLobby = []string{"level"}
	if _, err := alice.CreateRoom(ctx, "M", opts, nil); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	name, err := bob.MatchRandom(ctx, "carol", codec.Object{"level": int32(3)}, nil)
	if err != nil {
		t.Fatalf("match failed: %v", err)
	}
	if name != "M" {
		t.Errorf("expected M, got %s", name)
	}
	if bob.Room() != nil {
		t.Error("matching must not join")
	}

	if _, err := bob.MatchRandom(ctx, "", codec.Object{"level": int32(4)}, nil); !protocol.IsCode(err, protocol.CodeRoomNotFound) {
		t.Errorf("expected no match, got %v", err)
	}

	if name, err := alice.FetchMyRoom(ctx); err != nil || name != "M" {
		t.Errorf("expected alice in M, got %q, %v", name, err)
	}
	if _, err := bob.FetchMyRoom(ctx); !protocol.IsCode(err, protocol.CodeRoomNotFound) {
		t.Errorf("expected bob in no room, got %v", err)
	}
}

func TestDisconnectAndRejoin(t *testing.T) {
	url := startBackend(t)
	ctx := testContext(t)
	opts := NewRoomOptions()
	opts.PlayerTTL = time.Minute
	alice, bob := startRoom(t, url, "D", opts)

	disconnected := make(chan struct{}, 1)
	bob.OnDisconnected(func() { disconnected <- struct{}{} })
	activity := subscribe(alice.OnPlayerActivityChanged)

	bobRoom := bob.Room()
	bobRoom.disconnect()

	receive(t, disconnected, "disconnect")
	if bobRoom.State() != RoomDisconnected {
		t.Errorf("expected disconnected, got %s", bobRoom.State())
	}
	if bob.Room() != bobRoom {
		t.Error("a dropped room should stay attached for rejoin")
	}
	if _, err := bob.SetRoomOpen(ctx, false); !errors.Is(err, ErrState) {
		t.Errorf("expected ErrState while disconnected, got %v", err)
	}

	p := receive(t, activity, "offline")
	if p.UserID() != "bob" || p.IsActive() {
		t.Errorf("expected bob offline, got %s active=%v", p.UserID(), p.IsActive())
	}

	room, err := bob.ReconnectAndRejoin(ctx)
	if err != nil {
		t.Fatalf("rejoin failed: %v", err)
	}
	if room.Name() != "D" || room.State() != RoomGame || room.Player().ActorID() != 2 {
		t.Errorf("unexpected rejoined room %s/%s actor %d", room.Name(), room.State(), room.Player().ActorID())
	}

	p = receive(t, activity, "online")
	if p.UserID() != "bob" || !p.IsActive() {
		t.Errorf("expected bob online, got %s active=%v", p.UserID(), p.IsActive())
	}
}

func TestCloseLeavesRoom(t *testing.T) {
	url := startBackend(t)
	ctx := testContext(t)
	alice, bob := startRoom(t, url, "C", nil)

	left := subscribe(alice.OnPlayerLeft)
	if err := bob.Close(ctx); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if p := receive(t, left, "player left"); p.UserID() != "bob" {
		t.Errorf("expected bob to leave, got %s", p.UserID())
	}
	if _, err := bob.CreateRoom(ctx, "again", nil, nil); !errors.Is(err, ErrState) {
		t.Errorf("expected ErrState after close, got %v", err)
	}
}

// gatedTransport holds requests to path until release is closed
type gatedTransport struct {
	path    string
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (g *gatedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Path == g.path {
		g.once.Do(func() { close(g.entered) })
		<-g.release
	}
	return http.DefaultTransport.RoundTrip(req)
}

func TestCloseDuringJoin(t *testing.T) {
	url := startBackend(t)
	ctx := testContext(t)
	gate := &gatedTransport{
		path:    "/1/multiplayer/lobby/room",
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}

	c, err := NewClient(Config{
		AppID:      "app",
		UserID:     "alice",
		PlayServer: url,
		Insecure:   true,
		HTTPClient: &http.Client{Transport: gate},
	})
	if err != nil {
		t.Fatalf("new client failed: %v", err)
	}
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("connect failed: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- fmt.Errorf("create room panicked: %v", p)
			}
		}()
		_, err := c.CreateRoom(ctx, "R", nil, nil)
		done <- err
	}()

	receive(t, gate.entered, "create request to reach the directory")
	if err := c.Close(ctx); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	close(gate.release)

	err = receive(t, done, "create room to return")
	if !errors.Is(err, ErrState) {
		t.Errorf("expected ErrState, got %v", err)
	}
	if c.Room() != nil {
		t.Error("closed client should have no room")
	}
}
