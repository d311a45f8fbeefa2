// Package websocket pushes triage events to connected doctor dashboards.
// Clients subscribe to queue names and receive every event published to them.
package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const sendBuffer = 256

// Event is one message delivered to dashboard clients.
type Event struct {
	Type      string          `json:"type"`
	Topic     string          `json:"topic"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// ClientMessage is an inbound subscribe or unsubscribe request.
type ClientMessage struct {
	Action string   `json:"action"`
	Topics []string `json:"topics"`
}

type Client struct {
	ID     string
	Topics []string
	Send   chan []byte
}

// Hub tracks dashboard clients and their topic subscriptions.
type Hub struct {
	mu      sync.RWMutex
	topics  map[string]map[*Client]struct{}
	all     map[*Client]struct{}
	dropped atomic.Int64
	logger  zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		topics: make(map[string]map[*Client]struct{}),
		all:    make(map[*Client]struct{}),
		logger: logger.With().Str("component", "ws-hub").Logger(),
	}
}

// NewClient returns an unregistered client subscribed to topics.
func NewClient(topics ...string) *Client {
	return &Client{
		ID:     uuid.NewString(),
		Topics: append([]string(nil), topics...),
		Send:   make(chan []byte, sendBuffer),
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.all[c] = struct{}{}
	h.subscribeLocked(c, c.Topics)
}

// Unregister drops c from every topic and closes its Send channel. Calling it
// twice is a no-op.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[c]; !ok {
		return
	}
	for _, topic := range c.Topics {
		h.removeLocked(c, topic)
	}
	delete(h.all, c)
	close(c.Send)
}

func (h *Hub) Subscribe(c *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var added []string
	for _, t := range topics {
		if _, already := h.topics[t][c]; !already {
			added = append(added, t)
		}
	}
	h.subscribeLocked(c, added)
	c.Topics = append(c.Topics, added...)
}

func (h *Hub) Unsubscribe(c *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	drop := make(map[string]bool, len(topics))
	for _, t := range topics {
		drop[t] = true
		h.removeLocked(c, t)
	}
	kept := c.Topics[:0]
	for _, t := range c.Topics {
		if !drop[t] {
			kept = append(kept, t)
		}
	}
	c.Topics = kept
}

func (h *Hub) subscribeLocked(c *Client, topics []string) {
	for _, t := range topics {
		if h.topics[t] == nil {
			h.topics[t] = make(map[*Client]struct{})
		}
		h.topics[t][c] = struct{}{}
	}
}

func (h *Hub) removeLocked(c *Client, topic string) {
	subs, ok := h.topics[topic]
	if !ok {
		return
	}
	delete(subs, c)
	if len(subs) == 0 {
		delete(h.topics, topic)
	}
}

// ProcessMessage applies a client request.
func (h *Hub) ProcessMessage(c *Client, msg ClientMessage) {
	switch msg.Action {
	case "subscribe":
		h.Subscribe(c, msg.Topics)
	case "unsubscribe":
		h.Unsubscribe(c, msg.Topics)
	}
}

// Broadcast delivers event to the subscribers of topic and returns how many
// clients received it. Clients with a full buffer are skipped.
func (h *Hub) Broadcast(topic string, event Event) int {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Str("topic", topic).Msg("failed to marshal event")
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for c := range h.topics[topic] {
		select {
		case c.Send <- data:
			delivered++
		default:
			h.dropped.Add(1)
			h.logger.Warn().Str("client_id", c.ID).Str("topic", topic).Msg("client buffer full, event dropped")
		}
	}
	return delivered
}

// Dropped reports how many events were skipped for slow clients since start.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

func (h *Hub) TopicCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// -- HTTP --

var upgrader = gorillawebsocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type Handler struct {
	hub           *Hub
	defaultTopics []string
}

// NewHandler upgrades dashboard connections. Each new client starts out
// subscribed to defaultTopics.
func NewHandler(hub *Hub, defaultTopics ...string) *Handler {
	return &Handler{hub: hub, defaultTopics: defaultTopics}
}

// RegisterRoutes mounts GET /ws. m runs before the upgrade, typically auth.
func (h *Handler) RegisterRoutes(e *echo.Echo, m ...echo.MiddlewareFunc) {
	e.GET("/ws", h.Connect, m...)
}

func (h *Handler) Connect(c echo.Context) error {
	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	client := NewClient(h.defaultTopics...)
	h.hub.Register(client)

	go h.writePump(client, ws)
	go h.readPump(client, ws)
	return nil
}

func (h *Handler) readPump(client *Client, ws *gorillawebsocket.Conn) {
	defer func() {
		h.hub.Unregister(client)
		ws.Close()
	}()

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		h.hub.ProcessMessage(client, msg)
	}
}

func (h *Handler) writePump(client *Client, ws *gorillawebsocket.Conn) {
	defer ws.Close()

	for msg := range client.Send {
		if err := ws.WriteMessage(gorillawebsocket.TextMessage, msg); err != nil {
			return
		}
	}
}
