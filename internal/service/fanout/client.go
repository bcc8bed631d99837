package fanout

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	applogger "SignalGrid/pkg/logger"
)

// Conn is the part of *websocket.Conn the hub relies on.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	ReadMessage() (messageType int, p []byte, err error)
	SetReadLimit(limit int64)
	SetPongHandler(h func(appData string) error)
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Client is one viewer connection. Writes go through the send mailbox and are
// performed only by the write pump.
type Client struct {
	id   string
	conn Conn
	hub  *Hub
	send chan []byte

	alive      atomic.Bool // cleared by a sweep, set again by the pong
	broken     atomic.Bool // a write failed; no more broadcasts
	missedGrid atomic.Bool // a grid broadcast was skipped while awaiting the pong
	missedNews atomic.Bool
	closeOnce  sync.Once
}

// ID returns the connection id used in logs.
func (c *Client) ID() string { return c.id }

// enqueue hands a payload to the write pump without blocking. Caller holds the hub lock.
func (c *Client) enqueue(msg []byte) bool {
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *Client) markMissed(kind string) {
	switch kind {
	case kindGrid:
		c.missedGrid.Store(true)
	case kindNews:
		c.missedNews.Store(true)
	}
}

// closeSend closes the mailbox once. Caller holds the hub lock.
func (c *Client) closeSend() {
	c.closeOnce.Do(func() { close(c.send) })
}

func (c *Client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.hub.writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			// The next sweep closes it.
			c.broken.Store(true)
			c.hub.log.Warn("viewer write failed",
				applogger.String("client", c.id),
				applogger.Error(err),
			)
		}
	}
}

func (c *Client) readPump() {
	defer c.hub.disconnect(c)
	for {
		// Viewers never send application data; reading keeps control frames flowing.
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.hub.log.Debug("viewer read error", applogger.String("client", c.id), applogger.Error(err))
			}
			return
		}
	}
}
