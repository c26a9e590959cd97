// ABOUTME: WebSocket implementation of the session Transport interface.
// ABOUTME: One text frame per payload, write-serialized, deadlines taken from the context.

package transport

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// maxMessageSize bounds a single payload frame from either peer.
const maxMessageSize = 1 << 20

// Conn adapts a gorilla websocket connection to the session.Transport
// interface. Writes are serialized with a mutex; reads are owned by the one
// handler goroutine driving the session.
//
// Context deadlines map onto websocket read/write deadlines. A context
// without a deadline leaves the operation unbounded, which is the base
// contract — a stalled peer blocks until the connection is closed.
type Conn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// NewConn wraps an established websocket connection.
func NewConn(ws *websocket.Conn) *Conn {
	ws.SetReadLimit(maxMessageSize)
	return &Conn{conn: ws}
}

// Send writes one text frame carrying the payload.
func (c *Conn) Send(ctx context.Context, payload string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(deadlineFrom(ctx)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, []byte(payload))
}

// Receive blocks until the next text frame arrives and returns its payload.
// Control frames are handled by the websocket library; binary frames are
// skipped since the protocol is text-only.
func (c *Conn) Receive(ctx context.Context) (string, error) {
	if err := c.conn.SetReadDeadline(deadlineFrom(ctx)); err != nil {
		return "", err
	}
	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			return "", err
		}
		if messageType != websocket.TextMessage {
			continue
		}
		return string(data), nil
	}
}

// Close tears down the underlying connection, unblocking any pending Receive.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// deadlineFrom converts a context deadline into a websocket deadline.
// The zero time clears any previously set deadline.
func deadlineFrom(ctx context.Context) time.Time {
	if deadline, ok := ctx.Deadline(); ok {
		return deadline
	}
	return time.Time{}
}
