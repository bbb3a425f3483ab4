package handler

import (
	"encoding/json"
	"sync"
	"testing"
	"time"
)

func newTestConn(client string) *WSConn {
	return &WSConn{
		conn:   nil, // no real connection for hub tests
		client: client,
		send:   make(chan []byte, 256),
	}
}

func receive(t *testing.T, c *WSConn) WSEvent {
	t.Helper()
	select {
	case msg := <-c.send:
		var event WSEvent
		if err := json.Unmarshal(msg, &event); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return event
	case <-time.After(100 * time.Millisecond):
		t.Fatalf("%s: expected message", c.client)
	}
	return WSEvent{}
}

func expectNothing(t *testing.T, c *WSConn) {
	t.Helper()
	select {
	case msg := <-c.send:
		t.Errorf("%s: unexpected message %s", c.client, msg)
	default:
	}
}

func TestHubRegisterUnregister(t *testing.T) {
	hub := NewHub()
	c := newTestConn("cli-1")

	hub.Register(c)
	if hub.ConnectionCount() != 1 {
		t.Errorf("expected 1 connection, got %d", hub.ConnectionCount())
	}

	hub.Unregister(c)
	if hub.ConnectionCount() != 0 {
		t.Errorf("expected 0 connections, got %d", hub.ConnectionCount())
	}
}

func TestHubUnregisterTwice(t *testing.T) {
	hub := NewHub()
	c := newTestConn("cli-1")
	hub.Register(c)
	hub.Unregister(c)
	hub.Unregister(c) // must not close the send channel again
}

func TestHubSubscribeUnsubscribe(t *testing.T) {
	hub := NewHub()
	c := newTestConn("cli-1")
	hub.Register(c)
	defer hub.Unregister(c)

	hub.Subscribe(c, "run-1")
	if hub.RunSubscriberCount("run-1") != 1 {
		t.Errorf("expected 1 subscriber, got %d", hub.RunSubscriberCount("run-1"))
	}

	hub.Unsubscribe(c, "run-1")
	if hub.RunSubscriberCount("run-1") != 0 {
		t.Errorf("expected 0 subscribers, got %d", hub.RunSubscriberCount("run-1"))
	}
}

func TestHubBroadcastToRun(t *testing.T) {
	hub := NewHub()
	c1 := newTestConn("cli-1")
	c2 := newTestConn("cli-2")
	c3 := newTestConn("cli-3") // not subscribed

	for _, c := range []*WSConn{c1, c2, c3} {
		hub.Register(c)
		defer hub.Unregister(c)
	}
	hub.Subscribe(c1, "run-1")
	hub.Subscribe(c2, "run-1")

	hub.BroadcastToRun("run-1", WSEvent{Type: "trial", RunID: "run-1", Data: map[string]int{"trial": 3}})

	for _, c := range []*WSConn{c1, c2} {
		event := receive(t, c)
		if event.Type != "trial" || event.RunID != "run-1" {
			t.Errorf("%s: unexpected event %+v", c.client, event)
		}
	}
	expectNothing(t, c3)
}

func TestHubAllRunsReceivesOnce(t *testing.T) {
	hub := NewHub()
	watcher := newTestConn("watcher")
	hub.Register(watcher)
	defer hub.Unregister(watcher)

	hub.Subscribe(watcher, AllRuns)
	hub.Subscribe(watcher, "run-9")

	hub.BroadcastToRun("run-9", WSEvent{Type: "run_completed", RunID: "run-9"})
	receive(t, watcher)
	expectNothing(t, watcher)

	hub.BroadcastToRun("run-10", WSEvent{Type: "run_started", RunID: "run-10"})
	if event := receive(t, watcher); event.RunID != "run-10" {
		t.Errorf("expected run-10, got %q", event.RunID)
	}
}

func TestHubBroadcastRunEvent(t *testing.T) {
	hub := NewHub()
	c := newTestConn("cli-1")
	hub.Register(c)
	defer hub.Unregister(c)
	hub.Subscribe(c, "run-1")

	hub.BroadcastRunEvent("run-1", "replication_finished", map[string]any{"replication": 2})

	event := receive(t, c)
	if event.Type != "replication_finished" {
		t.Errorf("expected replication_finished, got %s", event.Type)
	}
	if event.RunID != "run-1" {
		t.Errorf("expected run_id=run-1, got %s", event.RunID)
	}
	data, ok := event.Data.(map[string]any)
	if !ok || data["replication"] != float64(2) {
		t.Errorf("unexpected data: %v", event.Data)
	}
}

func TestHubUnregisterCleansSubscriptions(t *testing.T) {
	hub := NewHub()
	c := newTestConn("cli-1")
	hub.Register(c)
	hub.Subscribe(c, "run-1")
	hub.Subscribe(c, "run-2")

	hub.Unregister(c)

	if hub.RunSubscriberCount("run-1") != 0 || hub.RunSubscriberCount("run-2") != 0 {
		t.Error("subscriptions should be removed on unregister")
	}
	if _, ok := <-c.send; ok {
		t.Error("send channel should be closed")
	}
}

func TestHubFullBufferDropsMessage(t *testing.T) {
	hub := NewHub()
	c := &WSConn{client: "slow", send: make(chan []byte, 1)}
	hub.Register(c)
	defer hub.Unregister(c)
	hub.Subscribe(c, "run-1")

	hub.BroadcastRunEvent("run-1", "trial", nil)
	hub.BroadcastRunEvent("run-1", "trial", nil)

	if len(c.send) != 1 {
		t.Errorf("expected 1 buffered message, got %d", len(c.send))
	}
}

func TestHubConcurrentAccess(t *testing.T) {
	hub := NewHub()
	var wg sync.WaitGroup

	for i := range 50 {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			c := newTestConn("cli")
			hub.Register(c)
			hub.Subscribe(c, "run-1")
			hub.BroadcastRunEvent("run-1", "trial", n)
			hub.Unsubscribe(c, "run-1")
			hub.Unregister(c)
		}(i)
	}
	wg.Wait()

	if hub.ConnectionCount() != 0 {
		t.Errorf("expected 0 connections, got %d", hub.ConnectionCount())
	}
	if hub.RunSubscriberCount("run-1") != 0 {
		t.Errorf("expected 0 subscribers, got %d", hub.RunSubscriberCount("run-1"))
	}
}

func TestClientMessageSerialization(t *testing.T) {
	var msg ClientMessage
	if err := json.Unmarshal([]byte(`{"action":"subscribe","run_id":"run-7"}`), &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.Action != "subscribe" || msg.RunID != "run-7" {
		t.Errorf("unexpected message: %+v", msg)
	}
}
