// Package live pushes newly stored readings to websocket subscribers.
package live

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tombeihofer23/Projekt/services/internal/logging"
	"github.com/tombeihofer23/Projekt/services/internal/models"
)

// Message types sent to subscribers.
const (
	TypeHello    = "hello"
	TypeReadings = "readings"
	TypePoll     = "poll"
)

const (
	sendBuffer = 64
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// Envelope wraps every message with a type discriminator.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope marshals payload under msgType.
func NewEnvelope(msgType string, payload any) ([]byte, error) {
	env := Envelope{Type: msgType}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		env.Payload = raw
	}
	return json.Marshal(env)
}

// HelloPayload greets a new subscriber.
type HelloPayload struct {
	BoxID string `json:"box_id"`
}

// PollPayload reports the outcome of one live poll.
type PollPayload struct {
	Fetched    int       `json:"fetched"`
	Inserted   int       `json:"inserted"`
	Duplicates int       `json:"duplicates"`
	Invalid    int       `json:"invalid"`
	At         time.Time `json:"at"`
}

// Client is one websocket subscriber.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub tracks subscribers and fans messages out to them.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	logger  *zap.SugaredLogger
}

// NewHub returns an empty hub.
func NewHub(logger *zap.SugaredLogger) *Hub {
	return &Hub{
		clients: make(map[*Client]bool),
		logger:  logging.OrNop(logger),
	}
}

// Register adds c to the broadcast set.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = true
}

// Unregister removes c and closes its send channel. Unknown clients are ignored.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// Broadcast queues msg for every subscriber. Slow subscribers miss messages.
func (h *Hub) Broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.logger.Warn("subscriber buffer full, dropping message")
		}
	}
}

// Publish wraps payload in an envelope and broadcasts it.
func (h *Hub) Publish(msgType string, payload any) {
	msg, err := NewEnvelope(msgType, payload)
	if err != nil {
		h.logger.Errorw("marshal live message", "type", msgType, "error", err)
		return
	}
	h.Broadcast(msg)
}

// PublishReadings implements the ingest broadcaster.
func (h *Hub) PublishReadings(readings []models.SensorReading) {
	if len(readings) == 0 {
		return
	}
	h.Publish(TypeReadings, readings)
}

// ClientCount returns the number of subscribers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler upgrades HTTP requests to websocket subscriptions.
type Handler struct {
	hub   *Hub
	boxID string
}

// NewHandler returns a handler subscribing clients to hub.
func NewHandler(hub *Hub, boxID string) *Handler {
	return &Handler{hub: hub, boxID: boxID}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.hub.logger.Warnw("websocket upgrade failed", "error", err)
		return
	}

	client := &Client{
		hub:  h.hub,
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
	h.hub.Register(client)
	go client.writePump()

	if hello, err := NewEnvelope(TypeHello, HelloPayload{BoxID: h.boxID}); err == nil {
		client.send <- hello
	}

	client.readPump()
}

// readPump drains client frames until the connection closes.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debugw("websocket read error", "error", err)
			}
			return
		}
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
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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
