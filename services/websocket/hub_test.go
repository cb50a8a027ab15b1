package websocket

import (
	"encoding/json"
	"testing"
	"time"
)

func TestBroadcastReachesRegisteredClients(t *testing.T) {
	h := NewHub()
	go h.Run()
	defer h.Stop()

	a := &Client{send: make(chan []byte, 1), username: "a"}
	b := &Client{send: make(chan []byte, 1), username: "b"}
	h.register <- a
	h.register <- b

	h.Broadcast(map[string]string{"type": "submission"})
	for _, c := range []*Client{a, b} {
		select {
		case msg := <-c.send:
			var got map[string]string
			if err := json.Unmarshal(msg, &got); err != nil || got["type"] != "submission" {
				t.Fatalf("unexpected message %s (%v)", msg, err)
			}
		case <-time.After(time.Second):
			t.Fatalf("client %s got nothing", c.username)
		}
	}
	if n := h.GetClientCount(); n != 2 {
		t.Fatalf("expected 2 clients, got %d", n)
	}
}

func TestSlowClientIsDropped(t *testing.T) {
	h := NewHub()
	go h.Run()
	defer h.Stop()

	slow := &Client{send: make(chan []byte), username: "slow"}
	h.register <- slow
	h.Broadcast("x")

	deadline := time.Now().Add(time.Second)
	for h.GetClientCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("slow client was not dropped")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if _, ok := <-slow.send; ok {
		t.Fatalf("send channel should be closed")
	}
}

func TestUnregister(t *testing.T) {
	h := NewHub()
	go h.Run()
	defer h.Stop()

	c := &Client{send: make(chan []byte, 1), username: "c"}
	h.register <- c
	h.unregister <- c
	h.unregister <- c // second unregister is a no-op
	if n := h.GetClientCount(); n != 0 {
		t.Fatalf("expected no clients, got %d", n)
	}
}

func TestJoinAfterStop(t *testing.T) {
	h := NewHub()
	// Run is not started, so nothing is left to receive the registration
	h.Stop()

	joined := make(chan bool, 1)
	go func() { joined <- h.join(&Client{send: make(chan []byte, 1), username: "late"}) }()
	select {
	case ok := <-joined:
		if ok {
			t.Fatalf("join succeeded on a stopped hub")
		}
	case <-time.After(time.Second):
		t.Fatalf("join blocked after Stop")
	}
}
