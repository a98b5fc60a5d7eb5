package ws

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	gws "github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

// Event is the payload pushed to clients subscribed to an intake session.
type Event struct {
	Type      string    `json:"type"`
	SessionID string    `json:"session_id"`
	Payload   any       `json:"payload,omitempty"`
	At        time.Time `json:"at"`
}

// client wraps a connection with a mutex so broadcasts and the ping loop
// never interleave writes.
type client struct {
	conn *gws.Conn
	mu   sync.Mutex
}

func (c *client) write(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(messageType, data)
}

// Hub fans session events out to WebSocket subscribers. Subscriptions are
// keyed by session ID, so a client only sees events for the session it
// asked about.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[*client]struct{}
	logger *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		topics: make(map[string]map[*client]struct{}),
		logger: logger,
	}
}

func (h *Hub) subscribe(sessionID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.topics[sessionID]
	if !ok {
		subs = make(map[*client]struct{})
		h.topics[sessionID] = subs
	}
	subs[c] = struct{}{}
}

func (h *Hub) unsubscribe(sessionID string, c *client) {
	h.mu.Lock()
	if subs, ok := h.topics[sessionID]; ok {
		delete(subs, c)
		if len(subs) == 0 {
			delete(h.topics, sessionID)
		}
	}
	h.mu.Unlock()
	_ = c.conn.Close()
}

// SubscriberCount reports how many clients are watching a session.
func (h *Hub) SubscriberCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[sessionID])
}

// PublishSessionEvent sends an event to every subscriber of the session.
// Dead connections are dropped on write failure.
func (h *Hub) PublishSessionEvent(sessionID, eventType string, payload any) {
	evt := Event{
		Type:      eventType,
		SessionID: sessionID,
		Payload:   payload,
		At:        time.Now().UTC(),
	}
	data, err := json.Marshal(evt)
	if err != nil {
		h.logger.Warn("marshal session event", zap.String("type", eventType), zap.Error(err))
		return
	}

	h.mu.RLock()
	subs := make([]*client, 0, len(h.topics[sessionID]))
	for c := range h.topics[sessionID] {
		subs = append(subs, c)
	}
	h.mu.RUnlock()

	for _, c := range subs {
		if err := c.write(gws.TextMessage, data); err != nil {
			h.unsubscribe(sessionID, c)
		}
	}
}

var upgrader = gws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Serve upgrades the request and blocks until the client disconnects.
// Incoming frames are discarded; the stream is push-only.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, sessionID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.String("session_id", sessionID), zap.Error(err))
		return
	}

	c := &client{conn: conn}
	h.subscribe(sessionID, c)
	h.logger.Debug("websocket subscribed",
		zap.String("session_id", sessionID),
		zap.Int("subscribers", h.SubscriberCount(sessionID)),
	)

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := c.write(gws.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	close(done)
	h.unsubscribe(sessionID, c)
	h.logger.Debug("websocket disconnected", zap.String("session_id", sessionID))
}
