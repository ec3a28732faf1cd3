package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/dukerupert/burrow/internal/duty"
)

// Message is a real-time notification broadcast to all clients. Kiosk
// displays and chat bridges subscribe here; the engine itself only hands
// over facts, it never formats user-facing text.
type Message struct {
	Type       string `json:"type"`
	InstanceID int64  `json:"instance_id,omitempty"`
	TemplateID *int64 `json:"template_id,omitempty"`
	WardID     int64  `json:"ward_id,omitempty"`
	Title      string `json:"title,omitempty"`
	Score      *int   `json:"score,omitempty"`
}

// EventMessage converts an engine event into its broadcast form.
func EventMessage(ev duty.Event) Message {
	return Message{
		Type:       string(ev.Type),
		InstanceID: ev.Instance.ID,
		TemplateID: ev.Instance.TemplateID,
		WardID:     ev.Instance.WardID,
		Title:      ev.Instance.Title,
	}
}

// ScoreMessage announces a recomputed wellbeing score.
func ScoreMessage(wardID int64, score int) Message {
	return Message{Type: "wellbeing_updated", WardID: wardID, Score: &score}
}

// Hub maintains the set of active WebSocket clients and broadcasts messages.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	logger  *slog.Logger
}

// NewHub creates a new Hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logger,
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

// Unregister removes a client from the hub and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// Broadcast sends a message to all connected clients.
func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			// Client buffer full — drop message to avoid blocking
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
