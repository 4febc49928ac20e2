package devserver

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// client is one WebSocket connection. A user may hold several (one per tab).
type client struct {
	id     string // connection id, for logs
	userID int
	conn   *websocket.Conn
	send   chan []byte
}

func newClient(conn *websocket.Conn) *client {
	return &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, 16),
	}
}

// writePump drains the send channel onto the socket.
func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// hub tracks live connections by user id and routes frames to them.
type hub struct {
	log *zap.Logger

	mu      sync.Mutex
	clients map[int][]*client
}

func newHub(log *zap.Logger) *hub {
	return &hub{log: log, clients: make(map[int][]*client)}
}

// register binds a client to a user id once the user-online intent arrives.
// It reports whether this is the user's first live connection.
func (h *hub) register(c *client, userID int) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	c.userID = userID
	first := len(h.clients[userID]) == 0
	h.clients[userID] = append(h.clients[userID], c)
	return first
}

// unregister drops a client and reports whether the user went fully offline.
func (h *hub) unregister(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	close(c.send)
	if c.userID == 0 {
		return false
	}
	conns := h.clients[c.userID]
	for i, other := range conns {
		if other == c {
			conns = append(conns[:i], conns[i+1:]...)
			break
		}
	}
	if len(conns) == 0 {
		delete(h.clients, c.userID)
		return true
	}
	h.clients[c.userID] = conns
	return false
}

// sendTo delivers one frame to every connection of a user. A slow client is
// dropped rather than allowed to block the hub.
func (h *hub) sendTo(userID int, frame any) {
	data, err := json.Marshal(frame)
	if err != nil {
		h.log.Warn("encode frame", zap.Error(err))
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.clients[userID] {
		select {
		case c.send <- data:
		default:
			h.log.Warn("dropping slow client", zap.String("conn", c.id))
		}
	}
}

// sendToOthers delivers one frame to every connection of a user except the
// given one, so a multi-tab user sees activity that originated in another tab.
func (h *hub) sendToOthers(userID int, except *client, frame any) {
	data, err := json.Marshal(frame)
	if err != nil {
		h.log.Warn("encode frame", zap.Error(err))
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.clients[userID] {
		if c == except {
			continue
		}
		select {
		case c.send <- data:
		default:
			h.log.Warn("dropping slow client", zap.String("conn", c.id))
		}
	}
}

// broadcast delivers one frame to every connected user except the given one.
func (h *hub) broadcast(except int, frame any) {
	data, err := json.Marshal(frame)
	if err != nil {
		h.log.Warn("encode frame", zap.Error(err))
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for userID, conns := range h.clients {
		if userID == except {
			continue
		}
		for _, c := range conns {
			select {
			case c.send <- data:
			default:
				h.log.Warn("dropping slow client", zap.String("conn", c.id))
			}
		}
	}
}

// online reports whether a user has at least one live connection.
func (h *hub) online(userID int) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients[userID]) > 0
}
