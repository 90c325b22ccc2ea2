package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	zlog "github.com/rs/zerolog/log"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = 20 * time.Second
)

// Client is one connected WebSocket subscriber.
type Client struct {
	id         string
	remoteAddr string
	conn       *websocket.Conn
	onCommand  func(c *Client, frame []byte)

	// mu serializes enqueue against close: the hub evicts clients while
	// other goroutines may still be handing them frames, and a send on
	// the closed queue would panic the process.
	mu     sync.Mutex
	send   chan []byte
	closed bool
}

func newClient(id, remoteAddr string, conn *websocket.Conn, onCommand func(*Client, []byte)) *Client {
	return &Client{
		id:         id,
		remoteAddr: remoteAddr,
		conn:       conn,
		send:       make(chan []byte, clientSendBuf),
		onCommand:  onCommand,
	}
}

// close releases the connection and send queue exactly once. Safe to
// call concurrently with enqueue.
func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	_ = c.conn.Close()
	close(c.send)
}

// enqueue queues a frame for this client only. Frames are dropped when
// the client cannot keep up (the hub will disconnect it on the next
// broadcast anyway) or when the client has already been evicted.
func (c *Client) enqueue(msg []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

// writePump writes queued frames and keepalive pings to the connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

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

// readPump reads inbound frames, routing command frames and refreshing
// the read deadline on pongs. It unregisters the client on any error.
func (c *Client) readPump(hub *Hub) {
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			hub.unregister <- c
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		if c.onCommand != nil && len(frame) > 0 {
			c.onCommand(c, frame)
		}
	}
}

func (c *Client) logWarn(err error, msg string) {
	zlog.Warn().Err(err).Str("client", c.id).Msg(msg)
}
