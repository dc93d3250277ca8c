package hub

import (
	"sync/atomic"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10 // must be less than pongWait

	// Viewers only send control frames.
	maxMessageSize = 4 * 1024
)

// Client is one websocket viewer. Only the hub goroutine sends to it and
// only its write pump writes to the connection.
type Client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan Message

	// Messages replaced before delivery under the Latest policy.
	skipped atomic.Uint64
}

func newClient(h *Hub, conn *websocket.Conn, initial []Message) *Client {
	size := h.buffer
	if size < len(initial) {
		size = len(initial)
	}
	c := &Client{
		id:   uuid.NewString()[:8],
		hub:  h,
		conn: conn,
		send: make(chan Message, size),
	}
	for _, m := range initial {
		c.send <- m
	}
	return c
}

// NewClient registers conn with the hub. initial messages are delivered
// ahead of any broadcast, e.g. the current status for a fresh viewer.
func NewClient(h *Hub, conn *websocket.Conn, initial ...Message) *Client {
	c := newClient(h, conn, initial)
	select {
	case h.register <- c:
	case <-h.quit:
		close(c.send)
	}
	return c
}

// ID identifies the client in logs.
func (c *Client) ID() string {
	return c.id
}

// Skipped returns how many messages were superseded before this client
// could take them.
func (c *Client) Skipped() uint64 {
	return c.skipped.Load()
}

// offer hands m to the client without blocking. It reports false when the
// client cannot keep up and must be dropped.
func (c *Client) offer(m Message, p Policy) bool {
	select {
	case c.send <- m:
		return true
	default:
	}
	if p != Latest {
		return false
	}

	// Replace the oldest pending message. The write pump may take it
	// concurrently, in which case the slot is simply free.
	select {
	case <-c.send:
		c.skipped.Add(1)
	default:
	}
	select {
	case c.send <- m:
	default:
		c.skipped.Add(1)
	}
	return true
}

// Run serves the connection until the viewer goes away or the hub stops.
// Call it from the websocket handler.
func (c *Client) Run() {
	go c.writePump()
	c.readPump()
}

// readPump drains inbound frames so pongs and disconnects are noticed.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.quit:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
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
		case m, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(m.wsType(), m.Data); err != nil {
				c.hub.logger.Debug("write failed", "client", c.id, "error", err)
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
