package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/terra-clan/bracket-engine/internal/models"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Hub fans events out to websocket subscribers. A subscriber may restrict
// its stream to one category with the "category" query parameter.
type Hub struct {
	mu      sync.RWMutex
	clients map[*subscriber]struct{}
}

type subscriber struct {
	conn     *websocket.Conn
	category string
	send     chan []byte
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{clients: make(map[*subscriber]struct{})}
}

// Publish encodes ev and delivers it to local subscribers
func (h *Hub) Publish(_ context.Context, ev models.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	h.broadcast(ev.CategoryID, data)
	return nil
}

// Relay delivers an already encoded event, as received from a bus
func (h *Hub) Relay(data []byte) error {
	var env struct {
		CategoryID string `json:"category_id"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("failed to decode event: %w", err)
	}
	h.broadcast(env.CategoryID, data)
	return nil
}

func (h *Hub) broadcast(categoryID string, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		if c.category != "" && c.category != categoryID {
			continue
		}
		select {
		case c.send <- data:
		default:
			slog.Warn("dropping event for slow subscriber", "category_id", categoryID)
		}
	}
}

// Clients returns the number of connected subscribers
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and streams events until the peer leaves
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("failed to upgrade to websocket", "error", err)
		return
	}

	c := &subscriber{
		conn:     conn,
		category: r.URL.Query().Get("category"),
		send:     make(chan []byte, sendBuffer),
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	slog.Info("event subscriber connected", "category_id", c.category, "remote", r.RemoteAddr)

	done := make(chan struct{})
	go h.readLoop(c, done)
	h.writeLoop(c, done)

	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	conn.Close()

	slog.Info("event subscriber disconnected", "category_id", c.category)
}

// readLoop consumes control frames so pongs and close are processed
func (h *Hub) readLoop(c *subscriber, done chan<- struct{}) {
	defer close(done)

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("subscriber read error", "error", err)
			}
			return
		}
	}
}

func (h *Hub) writeLoop(c *subscriber, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				slog.Debug("subscriber write error", "error", err)
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
