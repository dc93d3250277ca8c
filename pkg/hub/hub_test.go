package hub

import (
	"testing"
	"time"
)

func testClient(h *Hub, initial ...Message) *Client {
	return newClient(h, nil, initial)
}

func text(s string) Message { return NewJSONMessage([]byte(s)) }

func drain(c *Client) []string {
	var got []string
	for {
		select {
		case m, ok := <-c.send:
			if !ok {
				return got
			}
			got = append(got, string(m.Data))
		default:
			return got
		}
	}
}

func TestOffer_Latest(t *testing.T) {
	h := New("camera", nil, WithPolicy(Latest))
	c := testClient(h)

	for _, s := range []string{"1", "2", "3"} {
		if !c.offer(text(s), Latest) {
			t.Fatalf("Latest policy should never reject")
		}
	}

	got := drain(c)
	if len(got) != 1 || got[0] != "3" {
		t.Errorf("Expected only the newest message, got %v", got)
	}
	if c.Skipped() != 2 {
		t.Errorf("Expected 2 skipped, got %d", c.Skipped())
	}
}

func TestOffer_QueueRejectsWhenFull(t *testing.T) {
	h := New("events", nil, WithBuffer(2))
	c := testClient(h)

	if !c.offer(text("a"), Queue) || !c.offer(text("b"), Queue) {
		t.Fatal("Expected buffered messages to be accepted")
	}
	if c.offer(text("c"), Queue) {
		t.Error("Expected full queue to reject")
	}
	if got := drain(c); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("Expected order preserved, got %v", got)
	}
}

func TestNewClient_InitialMessagesFit(t *testing.T) {
	h := New("status", nil, WithPolicy(Latest))
	c := testClient(h, text("hello"), text("world"))

	if cap(c.send) != 2 {
		t.Errorf("Expected buffer grown to hold initial messages, got %d", cap(c.send))
	}
	if got := drain(c); len(got) != 2 || got[0] != "hello" {
		t.Errorf("Expected initial messages first, got %v", got)
	}
	if c.ID() == "" {
		t.Error("Expected client id")
	}
}

func TestHub_DeliverEvictsSlowClients(t *testing.T) {
	h := New("events", nil, WithBuffer(1))
	go h.Run()
	defer h.Stop()

	fast := testClient(h)
	slow := testClient(h)
	h.register <- fast
	h.register <- slow

	waitFor(t, func() bool { return h.ClientCount() == 2 })

	h.Broadcast(text("1"))
	waitFor(t, func() bool { return len(fast.send) == 1 && len(slow.send) == 1 })

	// Free the fast client only; the slow one overflows on the next message.
	<-fast.send
	h.Broadcast(text("2"))

	waitFor(t, func() bool { return h.ClientCount() == 1 })
	if h.Evicted() != 1 {
		t.Errorf("Expected 1 eviction, got %d", h.Evicted())
	}
	if m := <-fast.send; string(m.Data) != "2" {
		t.Errorf("Expected fast client to get message 2, got %s", m.Data)
	}

	// The evicted client's channel is closed after its pending message.
	<-slow.send
	if _, ok := <-slow.send; ok {
		t.Error("Expected slow client channel closed")
	}
}

func TestHub_StopClosesClients(t *testing.T) {
	h := New("camera", nil, WithPolicy(Latest))
	go h.Run()

	c := testClient(h)
	h.register <- c
	waitFor(t, h.IsRunning)

	h.Stop()
	h.Stop()

	select {
	case _, ok := <-c.send:
		if ok {
			t.Error("Expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("client not closed on Stop")
	}
	waitFor(t, func() bool { return !h.IsRunning() })
}

func TestBroadcast_NeverBlocks(t *testing.T) {
	h := New("camera", nil)

	// Run is not started, so the hub queue fills and overflows.
	for i := 0; i < cap(h.broadcast)+10; i++ {
		h.BroadcastBinary([]byte{byte(i)})
	}
	if h.Dropped() != 10 {
		t.Errorf("Expected 10 dropped, got %d", h.Dropped())
	}
}

func TestNewEnvelope(t *testing.T) {
	m, err := NewEnvelope("state", map[string]int{"cycle": 3})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if m.Type != JSONMessage {
		t.Error("Expected JSON message")
	}
	if _, err := NewEnvelope("bad", func() {}); err == nil {
		t.Error("Expected error for unencodable data")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met")
}
