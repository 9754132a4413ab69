// Package websocket pushes sync and assignment events to connected dashboards.
package websocket

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Hub maintains the set of active WebSocket clients and broadcasts messages.
type Hub struct {
	logger *zap.Logger

	clients map[*Client]struct{}
	mu      sync.RWMutex

	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
}

// NewHub creates a new WebSocket hub.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		logger:     logger,
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run is the hub's event loop. It returns when ctx is done, closing every client.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("websocket client connected", zap.Int("clients", total))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("websocket client disconnected", zap.Int("clients", total))

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Slow consumer.
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast queues a message for all connected clients. Messages are dropped
// when the queue is full.
func (h *Hub) Broadcast(message []byte) {
	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("broadcast queue full, dropping message")
	}
}

// Register adds a client to the hub.
// After Run has returned the client's channel is closed immediately.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		close(client.send)
	}
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Client is one connected WebSocket peer.
type Client struct {
	hub  *Hub
	send chan []byte
}

// NewClient creates a new WebSocket client.
func NewClient(hub *Hub) *Client {
	return &Client{
		hub:  hub,
		send: make(chan []byte, 256),
	}
}

// Send returns the client's outbound channel. It is closed when the hub drops the client.
func (c *Client) Send() <-chan []byte {
	return c.send
}
