// Package relay is the room-multiplexed signaling bus. Each session id names
// a room of at most two connections; negotiation messages are forwarded
// verbatim to the other member, never echoed, in per-sender order. The relay
// keeps no durable state: membership lives only as long as the sockets.
package relay

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/wartelsys/wartel/internal/metrics"
)

const wsWriteWait = 1 * time.Second

// roomCapacity is the hard member limit. A peer-video call has exactly a
// caller and a callee; a third join is rejected rather than silently fanned
// out.
const roomCapacity = 2

// Terminator is the lifecycle hook behind the terminate message, which is
// both a signaling event and a session state transition.
type Terminator interface {
	TerminateFromRelay(ctx context.Context, sessionID string)
}

// Config bounds each relay connection.
type Config struct {
	MaxMessageBytes   int64
	MessagesPerSecond int
	SendQueueDepth    int
}

// WithDefaults fills zero fields with production defaults.
func (c Config) WithDefaults() Config {
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = 64 * 1024
	}
	if c.MessagesPerSecond <= 0 {
		c.MessagesPerSecond = 50
	}
	if c.SendQueueDepth <= 0 {
		c.SendQueueDepth = 32
	}
	return c
}

// Hub owns the rooms and upgrades signaling connections.
type Hub struct {
	cfg       Config
	lifecycle Terminator
	upgrader  websocket.Upgrader

	mu    sync.Mutex
	rooms map[string]map[*client]struct{}
}

// NewHub constructs a Hub. lifecycle may be nil in tests that only exercise
// forwarding.
func NewHub(cfg Config, lifecycle Terminator) *Hub {
	return &Hub{
		cfg:       cfg.WithDefaults(),
		lifecycle: lifecycle,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		rooms: make(map[string]map[*client]struct{}),
	}
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	room string

	closeOnce sync.Once
}

func (c *client) writeLoop() {
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			_ = c.conn.Close()
			return
		}
	}
}

func (c *client) shutdown() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}

// ServeHTTP upgrades the connection and runs its read loop. The session id
// inside each message is the only capability required; the relay performs no
// further authentication.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, errUpgrade := h.upgrader.Upgrade(w, r, nil)
	if errUpgrade != nil {
		return
	}
	defer conn.Close()

	conn.SetReadLimit(h.cfg.MaxMessageBytes)

	c := &client{
		conn: conn,
		send: make(chan []byte, h.cfg.SendQueueDepth),
	}
	go c.writeLoop()
	defer func() {
		h.leave(c)
		c.shutdown()
	}()

	limiter := newRateLimiter(h.cfg.MessagesPerSecond)

	for {
		if !limiter.Allow(time.Now()) {
			writeClose(conn, websocket.ClosePolicyViolation, "rate limit exceeded")
			return
		}

		msgType, data, errRead := conn.ReadMessage()
		if errRead != nil {
			return
		}
		if msgType != websocket.TextMessage {
			writeClose(conn, websocket.CloseUnsupportedData, "expected text message")
			return
		}

		msg, errParse := parseSignalMessage(data)
		if errParse != nil {
			writeClose(conn, websocket.CloseUnsupportedData, "invalid message")
			return
		}

		metrics.SignalingMessages.WithLabelValues(string(msg.Type)).Inc()

		switch msg.Type {
		case messageTypeJoin:
			if !h.join(c, msg.SessionID) {
				writeClose(conn, websocket.ClosePolicyViolation, "room full")
				return
			}
		case messageTypeTerminate:
			h.forward(c, msg.SessionID, data)
			if h.lifecycle != nil {
				h.lifecycle.TerminateFromRelay(r.Context(), msg.SessionID)
			}
		default:
			// offer, answer, ice-candidate: forwarded verbatim. A missing
			// room is a normal transient (peer not yet joined), not an
			// error.
			h.forward(c, msg.SessionID, data)
		}
	}
}

// BroadcastTerminate pushes a terminate notice into the session's room. Used
// by the orchestrator when staff or expiry end a session without a relay
// message.
func (h *Hub) BroadcastTerminate(sessionID string) {
	notice := []byte(`{"type":"terminate","session_id":"` + sessionID + `"}`)
	h.forward(nil, sessionID, notice)
}

// join adds the connection to the room, reporting false when the room is at
// capacity. A connection may only occupy one room.
func (h *Hub) join(c *client, sessionID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if c.room != "" {
		h.removeLocked(c)
	}
	members, ok := h.rooms[sessionID]
	if !ok {
		members = make(map[*client]struct{}, roomCapacity)
		h.rooms[sessionID] = members
	}
	if len(members) >= roomCapacity {
		return false
	}
	members[c] = struct{}{}
	c.room = sessionID
	metrics.SignalingRooms.Set(float64(len(h.rooms)))
	return true
}

// forward delivers data to every room member except the sender. Slow
// consumers lose the message rather than stalling the sender's read loop.
func (h *Hub) forward(sender *client, sessionID string, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[sessionID]
	if !ok {
		return
	}
	for member := range members {
		if member == sender {
			continue
		}
		select {
		case member.send <- data:
		default:
			log.Warnf("relay: dropping message for slow member of room %s", sessionID)
		}
	}
}

// leave removes the connection from its room. An empty room is dropped.
func (h *Hub) leave(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *client) {
	if c.room == "" {
		return
	}
	if members, ok := h.rooms[c.room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, c.room)
		}
	}
	c.room = ""
	metrics.SignalingRooms.Set(float64(len(h.rooms)))
}

func writeClose(conn *websocket.Conn, code int, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(wsWriteWait))
}
