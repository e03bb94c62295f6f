// Package realtime streams live attendance session events to websocket
// clients.
package realtime

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/noah-isme/tuition-center-api/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 32
)

type client struct {
	conn      *websocket.Conn
	sessionID string
	send      chan models.SessionEvent
	closeOnce sync.Once
}

func (c *client) close() {
	c.closeOnce.Do(func() { close(c.send) })
}

// Hub fans session events out to the websocket clients watching a session.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *zap.Logger

	mu   sync.RWMutex
	subs map[string]map[*client]struct{}
}

// NewHub builds a hub. checkOrigin guards the websocket handshake; nil
// accepts same-origin requests only.
func NewHub(checkOrigin func(*http.Request) bool, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		logger: logger,
		subs:   make(map[string]map[*client]struct{}),
	}
}

// Publish delivers event to every client of sessionID. Slow clients are
// disconnected instead of blocking the caller. A session_ended event closes
// the stream after delivery.
func (h *Hub) Publish(sessionID string, event models.SessionEvent) {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	ended := event.Type == models.EventSessionEnded

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.subs[sessionID] {
		select {
		case c.send <- event:
		default:
			h.logger.Warn("dropping slow websocket client", zap.String("session_id", sessionID))
			delete(h.subs[sessionID], c)
			c.close()
			continue
		}
		if ended {
			c.close()
		}
	}
	if ended || len(h.subs[sessionID]) == 0 {
		delete(h.subs, sessionID)
	}
}

// Subscribers returns how many clients watch sessionID.
func (h *Hub) Subscribers(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[sessionID])
}

// Serve upgrades the request and streams events for sessionID until the
// client leaves or the session ends.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, sessionID string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	c := &client{conn: conn, sessionID: sessionID, send: make(chan models.SessionEvent, sendBuffer)}
	h.register(c)
	h.logger.Debug("websocket client connected", zap.String("session_id", sessionID))

	go h.writePump(c)
	h.readPump(c)
	return nil
}

// Shutdown disconnects every client.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, clients := range h.subs {
		for c := range clients {
			c.close()
		}
		delete(h.subs, id)
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[c.sessionID] == nil {
		h.subs[c.sessionID] = make(map[*client]struct{})
	}
	h.subs[c.sessionID][c] = struct{}{}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if clients, ok := h.subs[c.sessionID]; ok {
		if _, ok := clients[c]; ok {
			delete(clients, c)
			c.close()
		}
		if len(clients) == 0 {
			delete(h.subs, c.sessionID)
		}
	}
}

// readPump only consumes control frames; clients never send events.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister(c)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read error", zap.Error(err))
			}
			return
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
		case event, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"))
				return
			}
			if err := c.conn.WriteJSON(event); err != nil {
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
