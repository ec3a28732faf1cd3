package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dukerupert/burrow/internal/duty"
)

// mockClient creates a Client with a send channel but no real connection.
func mockClient(hub *Hub) *Client {
	return &Client{
		hub:  hub,
		conn: nil,
		send: make(chan []byte, sendBufferSize),
	}
}

func createdMsg(instanceID int64) Message {
	return EventMessage(duty.CreatedEvent(duty.Instance{ID: instanceID, WardID: 1, Title: "Feed the fish"}))
}

func TestRegisterUnregister(t *testing.T) {
	hub := NewHub(slog.Default())

	c1 := mockClient(hub)
	c2 := mockClient(hub)

	hub.Register(c1)
	hub.Register(c2)

	if got := hub.ClientCount(); got != 2 {
		t.Fatalf("expected 2 clients, got %d", got)
	}

	hub.Unregister(c1)

	if got := hub.ClientCount(); got != 1 {
		t.Fatalf("expected 1 client after unregister, got %d", got)
	}

	hub.Unregister(c2)

	if got := hub.ClientCount(); got != 0 {
		t.Fatalf("expected 0 clients, got %d", got)
	}
}

func TestDoubleUnregister(t *testing.T) {
	hub := NewHub(slog.Default())
	c := mockClient(hub)
	hub.Register(c)
	hub.Unregister(c)
	// Should not panic
	hub.Unregister(c)

	if got := hub.ClientCount(); got != 0 {
		t.Fatalf("expected 0 clients, got %d", got)
	}
}

func TestBroadcastEvent(t *testing.T) {
	hub := NewHub(slog.Default())

	c1 := mockClient(hub)
	c2 := mockClient(hub)
	hub.Register(c1)
	hub.Register(c2)

	hub.Broadcast(createdMsg(42))

	// Check both clients received the message
	for _, c := range []*Client{c1, c2} {
		select {
		case data := <-c.send:
			var got Message
			if err := json.Unmarshal(data, &got); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if got.Type != string(duty.EventInstanceCreated) {
				t.Errorf("expected type %s, got %s", duty.EventInstanceCreated, got.Type)
			}
			if got.InstanceID != 42 {
				t.Errorf("expected instance id 42, got %d", got.InstanceID)
			}
			if got.WardID != 1 {
				t.Errorf("expected ward id 1, got %d", got.WardID)
			}
		case <-time.After(100 * time.Millisecond):
			t.Fatal("timeout waiting for message")
		}
	}

	hub.Unregister(c1)
	hub.Unregister(c2)
}

func TestBroadcastEmptyHub(t *testing.T) {
	hub := NewHub(slog.Default())
	// Should not panic
	hub.Broadcast(ScoreMessage(1, 85))
}

func TestBroadcastFullBuffer(t *testing.T) {
	hub := NewHub(slog.Default())

	c := mockClient(hub)
	hub.Register(c)

	// Fill the send buffer
	for i := 0; i < sendBufferSize; i++ {
		hub.Broadcast(createdMsg(int64(i)))
	}

	// This should drop the message, not panic or block
	hub.Broadcast(createdMsg(999))

	// Drain to verify buffer was full
	count := 0
	for {
		select {
		case <-c.send:
			count++
		default:
			goto done
		}
	}
done:
	if count != sendBufferSize {
		t.Errorf("expected %d messages, got %d", sendBufferSize, count)
	}

	hub.Unregister(c)
}

func TestScoreMessage(t *testing.T) {
	msg := ScoreMessage(5, 73)
	if msg.Type != "wellbeing_updated" {
		t.Errorf("expected type wellbeing_updated, got %s", msg.Type)
	}
	if msg.WardID != 5 {
		t.Errorf("expected ward id 5, got %d", msg.WardID)
	}
	if msg.Score == nil || *msg.Score != 73 {
		t.Errorf("expected score 73, got %v", msg.Score)
	}
}

func TestConcurrentAccess(t *testing.T) {
	hub := NewHub(slog.Default())
	var wg sync.WaitGroup

	// Spawn goroutines that register, broadcast, and unregister concurrently
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			c := mockClient(hub)
			hub.Register(c)
			hub.Broadcast(createdMsg(int64(n)))
			hub.Unregister(c)
		}(i)
	}

	wg.Wait()

	if got := hub.ClientCount(); got != 0 {
		t.Fatalf("expected 0 clients after concurrent churn, got %d", got)
	}
}
