// Package ws implements the WebSocket broadcast gateway.
package ws

import (
	"context"
	"sync"

	zlog "github.com/rs/zerolog/log"
)

const (
	clientSendBuf = 32
	broadcastBuf  = 128
)

// Hub tracks connected clients and fans out pre-serialized frames.
// Frames are delivered per client in the order they were produced.
type Hub struct {
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	mu      sync.Mutex
	clients map[*Client]struct{}
}

// NewHub constructs a hub. Call Run(ctx) to start it.
func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan []byte, broadcastBuf),
		register:   make(chan *Client, 16),
		unregister: make(chan *Client, 16),
		clients:    make(map[*Client]struct{}),
	}
}

// Run processes hub events until ctx is canceled, then disconnects all
// clients.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			zlog.Info().Str("client", c.id).Str("remote_addr", c.remoteAddr).Int("clients", n).
				Msg("ws: client connected")

		case c := <-h.unregister:
			h.remove(c, "disconnect")

		case msg := <-h.broadcast:
			// Collect slow clients first, drop them after unlocking.
			var slow []*Client
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					slow = append(slow, c)
				}
			}
			h.mu.Unlock()

			for _, c := range slow {
				h.remove(c, "slow_client")
			}
		}
	}
}

// BroadcastBytes enqueues a frame for fan-out. It never blocks; when the
// hub queue is full the frame is dropped.
func (h *Hub) BroadcastBytes(msg []byte) {
	select {
	case h.broadcast <- msg:
	default:
		zlog.Warn().Int("bytes", len(msg)).Msg("ws: broadcast queue full, dropping frame")
	}
}

func (h *Hub) remove(c *Client, reason string) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
	}
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		c.close()
		zlog.Info().Str("client", c.id).Str("reason", reason).Int("clients", n).
			Msg("ws: client disconnected")
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.close()
		delete(h.clients, c)
	}
}
