// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/AleutianAI/AcademicAgent/services/orchestrator/observability"
	"github.com/AleutianAI/AcademicAgent/services/reasoning"
)

const (
	clientBuffer = 64
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  1024,
	WriteBufferSize: 16 * 1024,
}

// Hub fans workflow events out to websocket clients.
//
// # Description
//
// Publish never blocks the workflow: each client has a bounded buffer and
// an event for a client whose buffer is full is dropped and counted.
//
// # Thread Safety
//
// Safe for concurrent use.
type Hub struct {
	mu      sync.RWMutex
	clients map[*streamClient]struct{}
	logger  *slog.Logger
}

type streamClient struct {
	thread string
	send   chan reasoning.Event
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{clients: make(map[*streamClient]struct{}), logger: logger}
}

// Publish delivers e to every client subscribed to its thread or to all
// threads. It matches reasoning.Observer.
func (h *Hub) Publish(e reasoning.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.thread != "" && c.thread != e.ThreadID {
			continue
		}
		select {
		case c.send <- e:
		default:
			observability.StreamDropped.Inc()
		}
	}
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) subscribe(thread string) *streamClient {
	c := &streamClient{thread: thread, send: make(chan reasoning.Event, clientBuffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	observability.StreamClients.Inc()
	return c
}

func (h *Hub) unsubscribe(c *streamClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	observability.StreamClients.Dec()
}

// Stream handles GET /v1/reasoning/stream[?thread=<id>].
//
// # Description
//
// Upgrades to a websocket and writes one JSON reasoning.Event per completed
// workflow node until the client disconnects. Messages sent by the client
// are ignored.
func (h *Handlers) Stream(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger().Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer ws.Close()

	client := h.Hub.subscribe(c.Query("thread"))
	defer h.Hub.unsubscribe(client)
	h.logger().Info("stream client connected", slog.String("thread", client.thread))

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		ws.SetReadLimit(4096)
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-closed:
			h.logger().Info("stream client disconnected", slog.String("thread", client.thread))
			return
		case <-c.Request.Context().Done():
			return
		case e := <-client.send:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteJSON(e); err != nil {
				h.logger().Warn("stream write failed", slog.String("error", err.Error()))
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
