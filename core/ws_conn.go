package core

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is a websocket connection of one principal.
// Outbound events are queued on send and written by a single goroutine,
// so they reach the peer in the order they were queued.
type Conn struct {
	conn      *websocket.Conn
	id        string
	principal Principal
	send      chan *Event
	done      chan struct{}
	once      sync.Once
	logger    *slog.Logger
}

func newConn(conn *websocket.Conn, id string, principal Principal, bufSize int, logger *slog.Logger) *Conn {
	return &Conn{
		conn:      conn,
		id:        id,
		principal: principal,
		send:      make(chan *Event, bufSize),
		done:      make(chan struct{}),
		logger:    logger,
	}
}

func (c *Conn) ID() string {
	return c.id
}

func (c *Conn) Principal() Principal {
	return c.principal
}

func (c *Conn) Send(e *Event) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- e:
		return true
	default:
		return false
	}
}

// Close signals the write loop to send a close frame and stop.
// It is safe to call more than once.
func (c *Conn) Close() {
	c.once.Do(func() {
		close(c.done)
	})
}

// readLoop decodes inbound events and hands them to dispatch one at a time.
func (c *Conn) readLoop(ctx context.Context, dispatch func(context.Context, *Event)) {
	c.logger.Debug("read loop started")
	defer c.logger.Debug("read loop stopped")

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		format, r, err := c.conn.NextReader()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug(fmt.Sprintf("expected close: %v", err))
				return
			}
			if websocket.IsUnexpectedCloseError(err) {
				c.logger.Error(fmt.Sprintf("unexpected close: %v", err))
				return
			}
			c.logger.Debug(fmt.Sprintf("NextReader: %v", err))
			return
		}

		if format != websocket.TextMessage {
			c.logger.Error(fmt.Sprintf("unexpected message format: %v", format))
			continue
		}

		var event Event
		if err := DecodeEvent(r, &event); err != nil {
			c.logger.Error(err.Error())
			if errEvent, err := NewEvent(ErrorEvent, ErrorEventPayload{Error: "malformed event"}); err == nil {
				c.Send(errEvent)
			}
			continue
		}

		c.logger.Debug(event.String())
		dispatch(ctx, &event)
	}
}

func (c *Conn) writeLoop(ctx context.Context) {
	c.logger.Debug("write loop started")
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.logger.Debug("write loop stopped")
	}()

	for {
		select {
		case e := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				c.logger.Error(fmt.Sprintf("getting next writer: %v", err))
				return
			}
			if err := EncodeEvent(w, e); err != nil {
				c.logger.Error(err.Error())
			}
			if err := w.Close(); err != nil {
				c.logger.Error(fmt.Sprintf("closing writer: %v", err))
				return
			}
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case <-ctx.Done():
			c.logger.Debug("context done")
			return
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Error(fmt.Sprintf("writing ping: %v", err))
				return
			}
		}
	}
}
