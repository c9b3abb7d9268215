// Copyright (C) 2025, Tavari Media Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tavari-hq/admix/pkg/ads"
	"github.com/tavari-hq/admix/pkg/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	clientSendSlop = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The feed is read-only telemetry for dashboards; origin checks
	// belong to the deployment's proxy layer.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub fans played-ad events out to websocket subscribers. A subscriber
// may filter to one business with the business query parameter.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
	log     log.Logger
}

type client struct {
	conn     *websocket.Conn
	send     chan ads.PlayEvent
	business string // empty subscribes to every business
}

// NewHub creates an event hub.
func NewHub(logger log.Logger) *Hub {
	if logger == nil {
		logger = log.NoLog
	}
	return &Hub{
		clients: make(map[*client]struct{}),
		log:     logger,
	}
}

// Publish delivers the event to every matching subscriber without
// blocking: a subscriber that cannot keep up is dropped.
func (h *Hub) Publish(event ads.PlayEvent) {
	h.mu.RLock()
	var stale []*client
	for c := range h.clients {
		if c.business != "" && c.business != event.BusinessID {
			continue
		}
		select {
		case c.send <- event:
		default:
			stale = append(stale, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range stale {
		h.log.Warn("dropping slow event subscriber", "business", c.business)
		h.remove(c)
	}
}

// Serve upgrades the request and streams events until the peer goes
// away.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &client{
		conn:     conn,
		send:     make(chan ads.PlayEvent, clientSendSlop),
		business: r.URL.Query().Get("business"),
	}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go h.writeLoop(c)
	h.readLoop(c)
}

// Close disconnects every subscriber, for shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()

	for _, c := range clients {
		close(c.send)
	}
}

// Subscribers reports the current subscriber count.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if ok {
		close(c.send)
	}
}

// readLoop drains control frames; the feed carries no client data.
func (h *Hub) readLoop(c *client) {
	defer func() {
		h.remove(c)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(c *client) {
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
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
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
