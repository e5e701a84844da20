// pkg/websocket/hub.go
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"quiz-battle/internal/models"
	"quiz-battle/pkg/logger"
)

// Message represents the standard message format exchanged over WebSocket.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are enforced by the CORS layer for the REST API; the socket
	// only carries public room snapshots.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// RoomFeed is where the hub reads rooms and their committed changes.
type RoomFeed interface {
	Get(ctx context.Context, id string) (*models.Room, error)
	Subscribe(ctx context.Context, id string) (<-chan *models.Room, error)
}

// Hub keeps one feed subscription per watched room and fans every snapshot
// out to the sockets watching it.
type Hub struct {
	feed RoomFeed

	mu      sync.RWMutex
	rooms   map[string]map[*Client]bool
	cancels map[string]context.CancelFunc

	register   chan *Client
	unregister chan *Client
	done       chan struct{}
}

func NewHub(feed RoomFeed) *Hub {
	return &Hub{
		feed:       feed,
		rooms:      make(map[string]map[*Client]bool),
		cancels:    make(map[string]context.CancelFunc),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	roomID string

	// mu guards version, the newest room version queued on send.
	mu      sync.Mutex
	version int
}

func NewClient(hub *Hub, conn *websocket.Conn, roomID string) *Client {
	return &Client{
		hub:     hub,
		conn:    conn,
		send:    make(chan []byte, 256),
		roomID:  roomID,
		version: -1,
	}
}

// Run owns room membership until ctx is cancelled, then drops every client.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for roomID, clients := range h.rooms {
				for client := range clients {
					close(client.send)
				}
				if cancel, ok := h.cancels[roomID]; ok {
					cancel()
				}
			}
			h.rooms = make(map[string]map[*Client]bool)
			h.cancels = make(map[string]context.CancelFunc)
			h.mu.Unlock()
			return nil

		case client := <-h.register:
			h.addClient(ctx, client)

		case client := <-h.unregister:
			h.removeClient(client)
		}
	}
}

func (h *Hub) addClient(ctx context.Context, client *Client) {
	h.mu.Lock()
	clients, watched := h.rooms[client.roomID]
	if !watched {
		clients = make(map[*Client]bool)
		h.rooms[client.roomID] = clients
	}
	clients[client] = true
	count := len(clients)
	h.mu.Unlock()

	logger.Debug("socket joined room", zap.String("room_id", client.roomID), zap.Int("watchers", count))

	if !watched {
		h.watch(ctx, client.roomID)
	}
	go h.sendSnapshot(ctx, client)
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.rooms[client.roomID]
	if !ok || !clients[client] {
		return
	}
	delete(clients, client)
	close(client.send)

	if len(clients) == 0 {
		delete(h.rooms, client.roomID)
		if cancel, ok := h.cancels[client.roomID]; ok {
			cancel()
			delete(h.cancels, client.roomID)
		}
		logger.Debug("no watchers left, room feed closed", zap.String("room_id", client.roomID))
	}
}

// watch subscribes to roomID's feed and broadcasts until the last watcher
// leaves.
func (h *Hub) watch(ctx context.Context, roomID string) {
	ctx, cancel := context.WithCancel(ctx)
	h.mu.Lock()
	h.cancels[roomID] = cancel
	h.mu.Unlock()

	updates, err := h.feed.Subscribe(ctx, roomID)
	if err != nil {
		logger.Error("subscribe to room feed", zap.String("room_id", roomID), zap.Error(err))
		return
	}

	go func() {
		for room := range updates {
			h.broadcastRoom(room)
		}
	}()
}

func (h *Hub) sendSnapshot(ctx context.Context, client *Client) {
	room, err := h.feed.Get(ctx, client.roomID)
	if err != nil {
		logger.Warn("initial room snapshot", zap.String("room_id", client.roomID), zap.Error(err))
		h.sendTo(client, "error", map[string]string{"message": "Room not found."})
		return
	}
	h.sendRoom(client, room)
}

// broadcastRoom queues a room_update for every socket watching room.
func (h *Hub) broadcastRoom(room *models.Room) {
	payload, err := json.Marshal(Message{Type: "room_update", Data: room.ToDTO()})
	if err != nil {
		logger.Error("marshal room update", zap.String("room_id", room.ID), zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.rooms[room.ID] {
		h.queueRoom(client, room.Version, payload)
	}
}

func (h *Hub) sendRoom(client *Client, room *models.Room) {
	payload, err := json.Marshal(Message{Type: "room_update", Data: room.ToDTO()})
	if err != nil {
		logger.Error("marshal room update", zap.String("room_id", room.ID), zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.rooms[client.roomID][client] {
		h.queueRoom(client, room.Version, payload)
	}
}

// queueRoom queues a snapshot only if it is newer than the last one the
// client was sent. The initial read and the feed race, so either may arrive
// second. Must be called with h.mu held.
func (h *Hub) queueRoom(client *Client, version int, payload []byte) {
	client.mu.Lock()
	defer client.mu.Unlock()
	if version <= client.version {
		return
	}
	client.version = version
	h.queue(client, payload)
}

func (h *Hub) sendTo(client *Client, messageType string, data interface{}) {
	payload, err := json.Marshal(Message{Type: messageType, Data: data})
	if err != nil {
		logger.Error("marshal socket message", zap.String("type", messageType), zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.rooms[client.roomID][client] {
		h.queue(client, payload)
	}
}

// queue must be called with h.mu held. Slow clients are dropped.
func (h *Hub) queue(client *Client, payload []byte) {
	select {
	case client.send <- payload:
	default:
		logger.Warn("send buffer full, dropping socket", zap.String("room_id", client.roomID))
		go h.leave(client)
	}
}

func (h *Hub) join(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Watchers returns how many sockets currently watch roomID.
func (h *Hub) Watchers(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

// HandleWebSocket upgrades the HTTP connection to a WebSocket and registers the client.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomId"]
	if roomID == "" {
		http.Error(w, "Missing room id", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade", zap.Error(err))
		return
	}

	client := NewClient(h, conn, roomID)
	if !h.join(client) {
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// readPump only serves to detect disconnects and answer pings.
func (c *Client) readPump() {
	defer func() {
		c.hub.leave(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Debug("unexpected socket close", zap.String("room_id", c.roomID), zap.Error(err))
			}
			return
		}
		c.handleMessage(message)
	}
}

func (c *Client) handleMessage(message []byte) {
	var msg Message
	if err := json.Unmarshal(message, &msg); err != nil {
		return
	}
	if msg.Type == "ping" {
		c.hub.sendTo(c, "pong", nil)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
