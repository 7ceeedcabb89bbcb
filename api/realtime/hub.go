package realtime

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	sendBuffer = 32
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// Frame is the JSON envelope written to websocket clients
type Frame struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// command is what a client sends to manage its rooms
type command struct {
	Action string `json:"action"`
	Room   string `json:"room"`
}

type client struct {
	conn  *websocket.Conn
	send  chan []byte
	rooms map[string]bool
}

// Hub is the websocket side of the relay. Every client gets its own buffered
// queue and writer goroutine, clients whose queue is full are dropped.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]bool
	rooms   map[string]map[*client]bool
}

// NewHub returns a Hub accepting connections from the given origins. An empty
// list accepts any origin.
func NewHub(origins []string) *Hub {
	h := &Hub{
		clients: make(map[*client]bool),
		rooms:   make(map[string]map[*client]bool),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     checkOrigin(origins),
	}
	return h
}

func checkOrigin(origins []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if len(origins) == 0 || origin == "" {
			return true
		}
		for _, o := range origins {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}

// ServeHTTP upgrades the request and serves the client until it disconnects
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		zap.S().Warnw("websocket upgrade failed", "error", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer), rooms: make(map[string]bool)}
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
	zap.S().Debugw("websocket client connected", "remote", r.RemoteAddr)

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) readPump(c *client) {
	defer h.remove(c)

	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var cmd command
		if err := json.Unmarshal(data, &cmd); err != nil || cmd.Room == "" {
			continue
		}
		switch cmd.Action {
		case "join":
			h.join(c, cmd.Room)
		case "leave":
			h.leave(c, cmd.Room)
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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

func (h *Hub) join(c *client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.clients[c] {
		return
	}
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*client]bool)
	}
	h.rooms[room][c] = true
	c.rooms[room] = true
}

func (h *Hub) leave(c *client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c, room)
}

func (h *Hub) leaveLocked(c *client, room string) {
	delete(c.rooms, room)
	if members, ok := h.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *client) {
	if !h.clients[c] {
		return
	}
	for room := range c.rooms {
		h.leaveLocked(c, room)
	}
	delete(h.clients, c)
	close(c.send)
}

// Publish implements Broadcaster
func (h *Hub) Publish(event string, payload interface{}) {
	msg, ok := encodeFrame(event, payload)
	if !ok {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.deliverLocked(c, msg)
	}
}

// PublishTo implements Broadcaster
func (h *Hub) PublishTo(room, event string, payload interface{}) {
	msg, ok := encodeFrame(event, payload)
	if !ok {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.rooms[room] {
		h.deliverLocked(c, msg)
	}
}

func (h *Hub) deliverLocked(c *client, msg []byte) {
	select {
	case c.send <- msg:
	default:
		zap.S().Warn("dropping slow websocket client")
		h.removeLocked(c)
	}
}

func encodeFrame(event string, payload interface{}) ([]byte, bool) {
	msg, err := json.Marshal(Frame{Event: event, Data: payload})
	if err != nil {
		zap.S().Errorw("failed to encode realtime frame", "event", event, "error", err)
		return nil, false
	}
	return msg, true
}

// ClientCount is the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// RoomSize is the number of clients that joined room
func (h *Hub) RoomSize(room string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[room])
}

// Close disconnects every client
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.removeLocked(c)
	}
}
