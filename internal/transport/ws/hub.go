package ws

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/restboard/restboard/internal/push"
	"github.com/restboard/restboard/internal/service/models/order"
)

const (
	writeTimeout = 10 * time.Second

	// sendBuffer bounds the per-client queue; a client that cannot keep
	// up is dropped rather than blocking the broadcast.
	sendBuffer = 32
)

// Hub is a broadcast-only push channel. Every connected dashboard receives
// every order event; clients never send anything meaningful upstream.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

type client struct {
	conn *websocket.Conn
	send chan push.Event
}

func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Browser dashboards connect from other origins; access
			// control lives at the HTTP layer.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

// ServeHTTP upgrades the connection and registers the client for
// broadcasts until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Error upgrading websocket connection", "error", err)

		return
	}

	c := &client{
		conn: conn,
		send: make(chan push.Event, sendBuffer),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	clientCount := len(h.clients)
	h.mu.Unlock()

	slog.Info("Dashboard client connected", "clients", clientCount)

	go h.writeLoop(c)
	h.readLoop(c)
}

// writeLoop pumps broadcast events to one client.
func (h *Hub) writeLoop(c *client) {
	for event := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteJSON(event); err != nil {
			h.drop(c)

			return
		}
	}
	_ = c.conn.Close()
}

// readLoop discards inbound frames and detects disconnects.
func (h *Hub) readLoop(c *client) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			h.drop(c)

			return
		}
	}
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	_ = c.conn.Close()
}

// broadcast fans the event out to every connected client. Clients with a
// full queue are dropped; they will reconnect and resync via polling.
func (h *Hub) broadcast(event push.Event) {
	h.mu.Lock()
	var stale []*client
	for c := range h.clients {
		select {
		case c.send <- event:
		default:
			stale = append(stale, c)
		}
	}
	for _, c := range stale {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()

	for _, c := range stale {
		_ = c.conn.Close()
		slog.Warn("Dropped slow dashboard client")
	}
}

// BroadcastNewOrder pushes a NEW_ORDER event to all clients.
func (h *Hub) BroadcastNewOrder(o order.Order) {
	h.broadcast(push.Event{Type: push.EventNewOrder, Order: o})
}

// BroadcastOrderUpdated pushes an ORDER_UPDATED event to all clients.
func (h *Hub) BroadcastOrderUpdated(o order.Order) {
	h.broadcast(push.Event{Type: push.EventOrderUpdated, Order: o})
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Stop disconnects all clients and refuses new ones.
func (h *Hub) Stop() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()

	for _, c := range clients {
		_ = c.conn.Close()
	}
}
