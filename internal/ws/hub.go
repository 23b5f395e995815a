package ws

import (
	"context"
	"encoding/json"
	"sync"

	"momopay/internal/domain"
)

// Client represents a single WebSocket connection of an API client.
type Client struct {
	ClientID string
	Send     chan []byte
	Hub      *Hub // set so Close() can unregister
	mu       sync.Mutex
	closed   bool
}

func NewClient(clientID string) *Client {
	return &Client{ClientID: clientID, Send: make(chan []byte, 256)}
}

func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.Send)
	c.mu.Unlock()
	if c.Hub != nil {
		c.Hub.unregister(c)
	}
}

// trySend queues data unless the connection is closed or its buffer is full.
func (c *Client) trySend(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

// Hub maintains the set of active connections and routes payment events to
// the connections of the client that owns the transaction.
type Hub struct {
	mu sync.RWMutex
	// clientID -> connections (one client can hold several)
	byClient map[string]map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{byClient: make(map[string]map[*Client]struct{})}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c.Hub = h
	if h.byClient[c.ClientID] == nil {
		h.byClient[c.ClientID] = make(map[*Client]struct{})
	}
	h.byClient[c.ClientID][c] = struct{}{}
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if m := h.byClient[c.ClientID]; m != nil {
		delete(m, c)
		if len(m) == 0 {
			delete(h.byClient, c.ClientID)
		}
	}
}

// BroadcastToClient returns how many connections accepted the payload.
func (h *Hub) BroadcastToClient(clientID string, payload interface{}) int {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0
	}
	h.mu.RLock()
	m := h.byClient[clientID]
	clients := make([]*Client, 0, len(m))
	for c := range m {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	sent := 0
	for _, c := range clients {
		if c.trySend(data) {
			sent++
		}
	}
	return sent
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, m := range h.byClient {
		n += len(m)
	}
	return n
}

func (h *Hub) Name() string { return "websocket" }

// Deliver pushes ev to every live connection of its owning client.
func (h *Hub) Deliver(_ context.Context, ev domain.Event) error {
	h.BroadcastToClient(ev.ClientID, map[string]interface{}{"type": "payment.update", "event": ev})
	return nil
}
