package stream

import (
	"net/http"
	"slices"

	"github.com/gorilla/websocket"

	"trendmaker/internal/render"
)

// Handler upgrades /renders/events requests and attaches them to the hub.
type Handler struct {
	hub      *Hub
	current  func() render.Snapshot
	upgrader websocket.Upgrader
}

// NewHandler accepts connections from allowedOrigins; an empty list or
// "*" accepts any origin. current provides the snapshot sent on connect.
func NewHandler(hub *Hub, current func() render.Snapshot, allowedOrigins []string) *Handler {
	anyOrigin := len(allowedOrigins) == 0 || slices.Contains(allowedOrigins, "*")
	return &Handler{
		hub:     hub,
		current: current,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return anyOrigin || origin == "" || slices.Contains(allowedOrigins, origin)
			},
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.hub.log.Warn("websocket upgrade failed", "error", err.Error())
		return
	}

	c := NewClient(h.hub, conn)
	if h.current != nil {
		s := h.current()
		c.send <- Message{Type: TypeSnapshot, Snapshot: &s}
	}
	if !h.hub.Register(c) {
		conn.Close()
		return
	}

	go c.WritePump()
	go c.ReadPump()
}
