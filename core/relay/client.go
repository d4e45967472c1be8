package relay

import (
	"context"
	"sync"
	"time"

	"Tunehub/logger"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192

	defaultSendBuffer = 256
)

// Client is one live relay connection. It is the handle stored in the
// presence registry.
type Client struct {
	conn       *websocket.Conn
	send       chan []byte
	externalID string

	done      chan struct{}
	closeOnce sync.Once
}

func newClient(conn *websocket.Conn, externalID string, buffer int) *Client {
	if buffer <= 0 {
		buffer = defaultSendBuffer
	}
	return &Client{
		conn:       conn,
		send:       make(chan []byte, buffer),
		externalID: externalID,
		done:       make(chan struct{}),
	}
}

// ExternalID returns the identity this connection registered under.
func (c *Client) ExternalID() string {
	return c.externalID
}

// enqueue hands one frame to the write pump without blocking. Frames for a
// closed connection or a full buffer are dropped.
func (c *Client) enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- frame:
		return true
	default:
		logger.Warn("relay send buffer full, dropping frame",
			logger.String("user", c.externalID))
		return false
	}
}

// emit encodes and enqueues a single event.
func (c *Client) emit(event Event, payload interface{}) {
	frame, err := Encode(event, payload)
	if err != nil {
		logger.Error("failed to encode relay event",
			logger.ErrorField(err),
			logger.String("event", string(event)))
		return
	}
	c.enqueue(frame)
}

// Close stops the write pump, which sends a close frame and drops the socket.
// It is safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// readPump delivers every inbound frame to handle until the socket fails or
// ctx is cancelled. Frames are handled one at a time, in arrival order.
func (c *Client) readPump(ctx context.Context, handle func(ctx context.Context, c *Client, raw []byte)) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if ctx.Err() != nil {
			return
		}
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logger.Warn("relay read error",
					logger.ErrorField(err),
					logger.String("user", c.externalID))
			}
			return
		}
		handle(ctx, c, message)
	}
}

// writePump owns all writes to the socket. Each queued frame goes out as its
// own text message.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.Close()
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}

		case <-c.done:
			c.flush()
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

// flush writes whatever was queued before Close so that a final error event
// reaches the peer.
func (c *Client) flush() {
	for {
		select {
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		default:
			return
		}
	}
}
