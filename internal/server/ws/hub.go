// Package ws streams result events to dashboard clients over websockets.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/tradesim/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 256
)

// Message types a client can subscribe to.
const (
	TypeEstimate = "estimate"
	TypeStatus   = "session_status"
)

// upgrader accepts any origin; the Auth middleware guards the endpoint.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// StatusFunc reports the session status sent to clients on connect.
type StatusFunc func() any

// envelope is the frame every client receives.
type envelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// client is one websocket connection. subs holds the message types it
// currently receives; every client starts subscribed to all of them.
type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	mu   sync.RWMutex
	subs map[string]bool
}

// subscribeMsg lets a client narrow or widen what it receives:
// {"action":"unsubscribe","types":["estimate"]}.
type subscribeMsg struct {
	Action string   `json:"action"`
	Types  []string `json:"types"`
}

// broadcastMsg is a pre-encoded frame waiting to be fanned out to the
// clients subscribed to typ.
type broadcastMsg struct {
	typ  string
	data []byte
}

// Hub tracks connected clients and fans messages out to them. It also acts
// as a result sink.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan broadcastMsg
	register   chan *client
	unregister chan *client
	status     StatusFunc
	done       chan struct{}
	mu         sync.RWMutex
	logger     *slog.Logger
}

// NewHub creates a hub. status may be nil.
func NewHub(status StatusFunc, logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan broadcastMsg, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		status:     status,
		done:       make(chan struct{}),
		logger:     logger.With(slog.String("component", "ws_hub")),
	}
}

// Name implements sink.Sink.
func (h *Hub) Name() string { return "ws" }

// Emit implements sink.Sink by broadcasting ev to estimate subscribers.
func (h *Hub) Emit(ctx context.Context, ev domain.EstimateEvent) error {
	return h.Publish(ctx, TypeEstimate, ev)
}

// Publish queues payload for every client subscribed to typ.
func (h *Hub) Publish(ctx context.Context, typ string, payload any) error {
	data, err := json.Marshal(envelope{Type: typ, Payload: payload})
	if err != nil {
		return fmt.Errorf("ws: marshal %s: %w", typ, err)
	}
	select {
	case h.broadcast <- broadcastMsg{typ: typ, data: data}:
		return nil
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run services registrations and broadcasts until ctx is cancelled. It must
// be called once.
func (h *Hub) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return nil

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client connected", slog.Int("total_clients", n))

		case c := <-h.unregister:
			h.mu.Lock()
			if h.clients[c] {
				delete(h.clients, c)
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client disconnected", slog.Int("total_clients", n))

		case msg := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				if !c.isSubscribed(msg.typ) {
					continue
				}
				select {
				case c.send <- msg.data:
				default:
					h.logger.Warn("dropping message for slow client", slog.String("type", msg.typ))
				}
			}
			h.mu.RUnlock()
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWS upgrades the request and registers the client.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		subs: map[string]bool{TypeEstimate: true, TypeStatus: true},
	}
	c.sendStatus()

	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close()
		return
	case <-r.Context().Done():
		_ = conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// sendStatus queues the current session status so a fresh client has
// something to show before the next estimate.
func (c *client) sendStatus() {
	if c.hub.status == nil {
		return
	}
	data, err := json.Marshal(envelope{Type: TypeStatus, Payload: c.hub.status()})
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// isSubscribed reports whether the client wants messages of type typ.
func (c *client) isSubscribed(typ string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subs[typ]
}

// readPump reads subscription changes from the client until the connection
// fails, then unregisters it. Malformed messages are ignored. The pong
// handler keeps extending the read deadline while the client is alive.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("unexpected close", slog.String("error", err.Error()))
			}
			return
		}

		var sub subscribeMsg
		if err := json.Unmarshal(message, &sub); err != nil {
			continue
		}
		c.mu.Lock()
		for _, typ := range sub.Types {
			switch sub.Action {
			case "subscribe":
				c.subs[typ] = true
			case "unsubscribe":
				delete(c.subs, typ)
			}
		}
		c.mu.Unlock()
	}
}

// writePump drains the send channel to the socket and pings the client every
// pingPeriod. A closed send channel means the hub dropped the client, and a
// close frame is sent before returning.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// BroadcastStatus pushes a session status change to subscribed clients.
func (h *Hub) BroadcastStatus(ctx context.Context, status any) error {
	return h.Publish(ctx, TypeStatus, status)
}
