package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/StefanPetk0vic/Locus/internal/auth"
	"github.com/StefanPetk0vic/Locus/internal/domain"
	"github.com/StefanPetk0vic/Locus/internal/redis"
	"github.com/StefanPetk0vic/Locus/internal/service"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = 30 * time.Second
	maxMessageSize = 8192
	sendBuffer     = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Envelope is the frame format in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// TokenParser verifies the bearer token presented on connect.
type TokenParser interface {
	Parse(raw string) (*auth.Claims, error)
}

// MessageHandler handles a frame sent by a connected user.
type MessageHandler func(ctx context.Context, userID string, role domain.Role, event string, data json.RawMessage) error

// Ensure Hub implements service.Notifier.
var _ service.Notifier = (*Hub)(nil)

// Hub keeps one socket per user and joins each user to the room of its role.
// Connections are local to this process; presence is mirrored to Redis.
type Hub struct {
	tokens   TokenParser
	presence redis.PresenceStoreInterface
	log      *slog.Logger

	mu      sync.RWMutex
	clients map[string]*client
	handler MessageHandler
}

type client struct {
	userID string
	role   domain.Role
	room   string
	conn   *websocket.Conn
	send   chan []byte
}

// NewHub creates a new Hub. presence may be nil.
func NewHub(tokens TokenParser, presence redis.PresenceStoreInterface, log *slog.Logger) *Hub {
	return &Hub{
		tokens:   tokens,
		presence: presence,
		log:      log,
		clients:  make(map[string]*client),
	}
}

// SetMessageHandler installs the handler for inbound frames.
func (h *Hub) SetMessageHandler(handler MessageHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handler = handler
}

// RoomOf returns the room a role joins.
func RoomOf(role domain.Role) string {
	if role == domain.RoleDriver {
		return service.RoomDrivers
	}
	return service.RoomRiders
}

// ServeHTTP authenticates the caller by the "token" query parameter or the
// Authorization header and upgrades the connection.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("token")
	if raw == "" {
		raw, _ = auth.BearerToken(r.Header.Get("Authorization"))
	}

	claims, err := h.tokens.Parse(raw)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws_upgrade_failed",
			"action", "ws_connect",
			"user_id", claims.UserID,
			"error", err,
		)
		return
	}

	c := &client{
		userID: claims.UserID,
		role:   claims.Role,
		room:   RoomOf(claims.Role),
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
	}
	h.register(c)

	go h.writePump(c)
	go h.readPump(c)
}

// SendToUser queues a frame for userID. Returns false if the user has no
// socket on this instance or its buffer is full.
func (h *Hub) SendToUser(userID, event string, payload any) bool {
	frame, ok := h.encode(event, payload)
	if !ok {
		return false
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	c, found := h.clients[userID]
	if !found {
		return false
	}
	return h.enqueue(c, frame)
}

// BroadcastToRoom queues a frame for every member of room.
func (h *Hub) BroadcastToRoom(room, event string, payload any) {
	frame, ok := h.encode(event, payload)
	if !ok {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if c.room == room {
			h.enqueue(c, frame)
		}
	}
}

// IsConnected reports whether userID has a socket on this instance.
func (h *Hub) IsConnected(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[userID]
	return ok
}

// Connected returns the number of open sockets.
func (h *Hub) Connected() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		close(c.send)
		delete(h.clients, id)
	}
}

func (h *Hub) encode(event string, payload any) ([]byte, bool) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.log.Error("ws_encode_failed",
			"action", "ws_send",
			"event", event,
			"error", err,
		)
		return nil, false
	}
	frame, err := json.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		return nil, false
	}
	return frame, true
}

// enqueue must be called with h.mu held.
func (h *Hub) enqueue(c *client, frame []byte) bool {
	select {
	case c.send <- frame:
		return true
	default:
		h.log.Warn("ws_send_buffer_full",
			"action", "ws_send",
			"user_id", c.userID,
		)
		return false
	}
}

// register replaces any previous socket of the same user.
func (h *Hub) register(c *client) {
	h.mu.Lock()
	if old, ok := h.clients[c.userID]; ok {
		close(old.send)
	}
	h.clients[c.userID] = c
	h.mu.Unlock()

	h.markOnline(c)
	h.log.Info("ws_connected",
		"action", "ws_connect",
		"user_id", c.userID,
		"room", c.room,
	)
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	current, ok := h.clients[c.userID]
	if !ok || current != c {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.userID)
	close(c.send)
	h.mu.Unlock()

	if h.presence != nil {
		if err := h.presence.MarkOffline(context.Background(), c.userID); err != nil {
			h.log.Warn("presence_update_failed",
				"action", "ws_disconnect",
				"user_id", c.userID,
				"error", err,
			)
		}
	}
	h.log.Info("ws_disconnected",
		"action", "ws_disconnect",
		"user_id", c.userID,
	)
}

func (h *Hub) markOnline(c *client) {
	if h.presence == nil {
		return
	}
	if err := h.presence.MarkOnline(context.Background(), c.userID, c.room); err != nil {
		h.log.Warn("presence_update_failed",
			"action", "ws_connect",
			"user_id", c.userID,
			"error", err,
		)
	}
}

func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		h.markOnline(c)
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn("ws_read_failed",
					"action", "ws_read",
					"user_id", c.userID,
					"error", err,
				)
			}
			return
		}

		var in Envelope
		if err := json.Unmarshal(message, &in); err != nil || in.Event == "" {
			h.log.Debug("ws_bad_frame",
				"action", "ws_read",
				"user_id", c.userID,
			)
			continue
		}

		h.mu.RLock()
		handler := h.handler
		h.mu.RUnlock()
		if handler == nil {
			continue
		}

		if err := handler(context.Background(), c.userID, c.role, in.Event, in.Data); err != nil {
			h.log.Warn("ws_message_failed",
				"action", "ws_read",
				"user_id", c.userID,
				"event", in.Event,
				"error", err,
			)
			h.SendToUser(c.userID, "error", map[string]string{"event": in.Event, "error": err.Error()})
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
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
