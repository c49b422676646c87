// ABOUTME: Tests for client event subscriptions
// ABOUTME: Covers delivery order, unsubscribe and clearing on close
package play

import (
	"context"
	"testing"
)

func TestListenersOrderAndUnsubscribe(t *testing.T) {
	var l listeners[int]
	var got []string

	l.add(func(v int) { got = append(got, "first") })
	remove := l.add(func(v int) { got = append(got, "second") })
	l.add(func(v int) { got = append(got, "third") })

	l.emit(1)
	if len(got) != 3 || got[0] != "first" || got[1] != "second" || got[2] != "third" {
		t.Fatalf("unexpected delivery order %v", got)
	}

	remove()
	got = nil
	l.emit(2)
	if len(got) != 2 || got[1] != "third" {
		t.Errorf("expected second to be unsubscribed, got %v", got)
	}

	l.clear()
	got = nil
	l.emit(3)
	if len(got) != 0 {
		t.Errorf("expected no delivery after clear, got %v", got)
	}
}

func TestListenersSubscribeDuringEmit(t *testing.T) {
	var l listeners[int]
	calls := 0
	l.add(func(int) {
		calls++
		l.add(func(int) { calls++ })
	})

	l.emit(1)
	if calls != 1 {
		t.Errorf("subscriber added during emit should wait for the next event, got %d calls", calls)
	}
}

func TestClientEventsClearedOnClose(t *testing.T) {
	c, err := NewClient(Config{AppID: "app", UserID: "alice", PlayServer: "localhost:1", Insecure: true})
	if err != nil {
		t.Fatalf("new client failed: %v", err)
	}

	called := false
	c.OnDisconnected(func() { called = true })
	c.Close(context.Background())

	c.events.disconnected.emit(struct{}{})
	if called {
		t.Error("subscriptions should be dropped on close")
	}
}
