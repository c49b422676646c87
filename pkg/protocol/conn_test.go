// ABOUTME: Tests for the Play WebSocket connection
// ABOUTME: Uses an httptest websocket peer to exercise requests, notifications and shutdown
package protocol

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var testUpgrader = websocket.Upgrader{}

// startPeer runs handle for each accepted websocket after answering session/open.
func startPeer(t *testing.T, handle func(ws *websocket.Conn)) string {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer ws.Close()

		var open Command
		if err := ws.ReadJSON(&open); err != nil {
			return
		}
		if open.Cmd != CmdSession || open.Op != OpOpen || open.Body.Request.SessionOpen == nil {
			t.Errorf("expected session/open first, got %s/%s", open.Cmd, open.Op)
			return
		}
		reply := Command{Cmd: CmdSession, Op: OpOpened, Body: &Body{Response: &Response{I: open.Body.Request.I}}}
		if err := ws.WriteJSON(reply); err != nil {
			return
		}

		handle(ws)
	}))
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *Conn {
	t.Helper()
	c := NewConn(Config{URL: url, AppID: "app", UserID: "alice", SessionToken: "token"})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestConnRequestResponse(t *testing.T) {
	url := startPeer(t, func(ws *websocket.Conn) {
		for {
			var cmd Command
			if err := ws.ReadJSON(&cmd); err != nil {
				return
			}
			req := cmd.Body.Request
			ws.WriteJSON(Command{Cmd: cmd.Cmd, Op: OpMasterClientUpdated, Body: &Body{Response: &Response{
				I:                  req.I,
				UpdateMasterClient: &UpdateMasterClientResponse{MasterActorID: req.UpdateMasterClient.MasterActorID},
			}}})
		}
	})

	c := dial(t, url)

	for _, actor := range []int32{2, 5} {
		resp, err := c.Request(context.Background(), CmdConv, OpUpdateMasterClient, &Request{
			UpdateMasterClient: &UpdateMasterClientRequest{MasterActorID: actor},
		})
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		if resp.UpdateMasterClient.MasterActorID != actor {
			t.Errorf("expected master %d, got %d", actor, resp.UpdateMasterClient.MasterActorID)
		}
	}
}

func TestConnErrorInfo(t *testing.T) {
	url := startPeer(t, func(ws *websocket.Conn) {
		var cmd Command
		if err := ws.ReadJSON(&cmd); err != nil {
			return
		}
		ws.WriteJSON(Command{Cmd: CmdConv, Op: OpAdded, Body: &Body{Response: &Response{
			I:         cmd.Body.Request.I,
			ErrorInfo: &ErrorInfo{ReasonCode: CodeRoomFull, Detail: "room is full"},
		}}})
		ws.ReadMessage()
	})

	c := dial(t, url)

	_, err := c.Request(context.Background(), CmdConv, OpAdd, &Request{JoinRoom: &JoinRoomRequest{}})
	var perr *Error
	if !errors.As(err, &perr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if perr.Code != CodeRoomFull || perr.Detail != "room is full" {
		t.Errorf("unexpected error contents: %+v", perr)
	}
	if !IsCode(err, CodeRoomFull) {
		t.Error("IsCode should match the rejection code")
	}
}

func TestConnPauseResumeKeepsOrder(t *testing.T) {
	url := startPeer(t, func(ws *websocket.Conn) {
		var cmd Command
		if err := ws.ReadJSON(&cmd); err != nil {
			return
		}
		for i := int32(1); i <= 3; i++ {
			ws.WriteJSON(Command{Cmd: CmdDirect, Body: &Body{Direct: &DirectCommand{EventID: i}}})
		}
		ws.WriteJSON(Command{Cmd: CmdConv, Op: OpUpdated, Body: &Body{Response: &Response{I: cmd.Body.Request.I}}})
		ws.ReadMessage()
	})

	c := dial(t, url)

	events := make(chan int32, 10)
	c.OnNotification(func(cmd *Command) {
		events <- cmd.Body.Direct.EventID
	})

	c.Pause()
	if _, err := c.Request(context.Background(), CmdConv, OpUpdate, nil); err != nil {
		t.Fatalf("request while paused failed: %v", err)
	}

	select {
	case id := <-events:
		t.Fatalf("notification %d delivered while paused", id)
	case <-time.After(100 * time.Millisecond):
	}

	c.Resume()
	for want := int32(1); want <= 3; want++ {
		select {
		case got := <-events:
			if got != want {
				t.Errorf("expected event %d, got %d", want, got)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event %d", want)
		}
	}

	select {
	case id := <-events:
		t.Errorf("unexpected extra event %d", id)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestConnDisconnectHandler(t *testing.T) {
	release := make(chan struct{})
	url := startPeer(t, func(ws *websocket.Conn) {
		<-release
	})

	c := dial(t, url)

	disconnected := make(chan struct{})
	var once sync.Once
	c.OnDisconnect(func() {
		once.Do(func() { close(disconnected) })
	})

	c.Disconnect()
	close(release)

	select {
	case <-disconnected:
	case <-time.After(time.Second):
		t.Fatal("disconnect handler was not called")
	}

	if c.IsConnected() {
		t.Error("expected connection to report disconnected")
	}
	if _, err := c.Request(context.Background(), CmdConv, OpUpdate, nil); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected after disconnect, got %v", err)
	}
}

func TestConnCloseSkipsDisconnectHandler(t *testing.T) {
	url := startPeer(t, func(ws *websocket.Conn) {
		ws.ReadMessage()
	})

	c := dial(t, url)

	called := make(chan struct{}, 1)
	c.OnDisconnect(func() { called <- struct{}{} })

	if err := c.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	select {
	case <-called:
		t.Error("disconnect handler should not fire after Close")
	case <-time.After(100 * time.Millisecond):
	}

	// closing twice is harmless
	if err := c.Close(); err != nil {
		t.Errorf("second close failed: %v", err)
	}
}

func TestConnPendingRequestFailsOnServerClose(t *testing.T) {
	url := startPeer(t, func(ws *websocket.Conn) {
		var cmd Command
		ws.ReadJSON(&cmd)
	})

	c := dial(t, url)

	_, err := c.Request(context.Background(), CmdConv, OpUpdate, nil)
	if !errors.Is(err, ErrConnectionClosed) && !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected connection failure, got %v", err)
	}
}

func TestConnDialFailureReleasesContext(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	srv.Close()

	c := NewConn(Config{URL: url, AppID: "app", UserID: "alice"})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := c.Connect(ctx); err == nil {
		t.Fatal("expected dial to a closed server to fail")
	}
	select {
	case <-c.ctx.Done():
	default:
		t.Error("connection context still live after dial failure")
	}
	if c.IsConnected() {
		t.Error("failed dial must not report connected")
	}
}
