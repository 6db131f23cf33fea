package loadtest

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
)

// connEvents receives connection lifecycle callbacks. The sender
// worker implements it; its state (pending map, counters) is carried
// by the worker itself rather than captured in per-connection
// closures.
type connEvents interface {
	onOpen()
	onMessage(data []byte)
	onClose(err error)
	onError(err error)
}

// wsConn is one client-side WebSocket connection with a dedicated
// read loop driving the event interface.
type wsConn struct {
	conn    *websocket.Conn
	events  connEvents
	open    atomic.Bool
	writeMu sync.Mutex
}

// dialConn opens a connection with a bounded handshake timeout and
// starts its read loop.
func dialConn(ctx context.Context, url string, dialer *websocket.Dialer, events connEvents) (*wsConn, error) {
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}

	c := &wsConn{
		conn:   conn,
		events: events,
	}
	c.open.Store(true)

	events.onOpen()
	go c.readLoop()

	return c, nil
}

func (c *wsConn) readLoop() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.open.Store(false)
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.events.onError(err)
			}
			c.events.onClose(err)
			return
		}
		c.events.onMessage(data)
	}
}

func (c *wsConn) isOpen() bool {
	return c.open.Load()
}

func (c *wsConn) send(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.open.Store(false)
		return err
	}
	return nil
}

func (c *wsConn) close() {
	if c.open.Swap(false) {
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}
	c.conn.Close()
}
