// Package stream pushes controller snapshots and alerts to websocket
// clients.
package stream

import (
	"context"
	"sync"

	"trendmaker/internal/pkg/logger"
	"trendmaker/internal/render"
)

const (
	TypeSnapshot     = "snapshot"
	TypeNotification = "notification"
)

// Message is one frame sent to clients.
type Message struct {
	Type         string               `json:"type"`
	Snapshot     *render.Snapshot     `json:"snapshot,omitempty"`
	Notification *render.Notification `json:"notification,omitempty"`
}

// Hub maintains the set of active clients and broadcasts messages to them.
// It is both a render.Observer and a render.Notifier.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan Message
	done       chan struct{}

	log *logger.Logger

	mu      sync.RWMutex
	count   int
	dropped int
}

func NewHub(log *logger.Logger) *Hub {
	if log == nil {
		log = logger.NewDefault()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan Message, 64),
		done:       make(chan struct{}),
		log:        log.WithComponent("stream"),
	}
}

// Run starts the hub's main loop. Every client is closed when ctx ends.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.remove(c)
			}
			return

		case c := <-h.register:
			h.clients[c] = true
			h.setCount()
			h.log.Debug("stream client connected", "clients", len(h.clients))

		case c := <-h.unregister:
			if h.clients[c] {
				h.remove(c)
				h.log.Debug("stream client disconnected", "clients", len(h.clients))
			}

		case m := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- m:
				default:
					// Client's buffer is full, close the connection
					h.remove(c)
				}
			}
		}
	}
}

// Register adds c. It reports false once the hub has stopped.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Observe queues a snapshot for every client without blocking.
func (h *Hub) Observe(s render.Snapshot) {
	h.publish(Message{Type: TypeSnapshot, Snapshot: &s})
}

// Notify queues an alert for every client without blocking.
func (h *Hub) Notify(_ context.Context, n render.Notification) {
	h.publish(Message{Type: TypeNotification, Notification: &n})
}

// TotalClients returns the number of connected clients.
func (h *Hub) TotalClients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// Dropped reports messages lost because the hub was saturated.
func (h *Hub) Dropped() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dropped
}

func (h *Hub) publish(m Message) {
	select {
	case h.broadcast <- m:
	default:
		h.mu.Lock()
		h.dropped++
		h.mu.Unlock()
	}
}

func (h *Hub) remove(c *Client) {
	delete(h.clients, c)
	close(c.send)
	h.setCount()
}

func (h *Hub) setCount() {
	h.mu.Lock()
	h.count = len(h.clients)
	h.mu.Unlock()
}
