package ws

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"devsync/internal/coordinator"
	"devsync/internal/protocol"
)

// Client is one participant's WebSocket. It implements coordinator.Peer.
type Client struct {
	id   string
	conn *websocket.Conn
	send chan protocol.ServerEvent
	log  *zap.Logger
	opts Options

	closeOnce sync.Once
	closed    chan struct{}
}

func newClient(id string, conn *websocket.Conn, opts Options, log *zap.Logger) *Client {
	return &Client{
		id:     id,
		conn:   conn,
		send:   make(chan protocol.ServerEvent, opts.SendBuffer),
		log:    log.With(zap.String("conn", id)),
		opts:   opts,
		closed: make(chan struct{}),
	}
}

func (c *Client) ID() string { return c.id }

// Send enqueues ev for the write pump. Once the client is closing, events are
// discarded and reported as accepted.
func (c *Client) Send(ev protocol.ServerEvent) bool {
	select {
	case <-c.closed:
		return true
	default:
	}
	select {
	case c.send <- ev:
		return true
	default:
		return false
	}
}

// Close asks the write pump to send a close frame and release the socket.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.closed) })
}

// readPump feeds inbound frames to the hub in arrival order. It owns the
// disconnect notification for this connection.
func (c *Client) readPump(h *Handler) {
	reason := "transport close"
	defer func() {
		h.hub.Disconnect(c.id, reason)
		c.Close()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.opts.MaxMessageBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			reason = disconnectReason(err)
			c.log.Debug("read pump stopped", zap.String("reason", reason), zap.Error(err))
			return
		}
		ev, err := protocol.DecodeClientEvent(frame)
		if err != nil {
			c.log.Debug("dropping frame", zap.Error(err))
			continue
		}
		// Any inbound frame proves the channel is alive.
		_ = c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))

		if join, ok := ev.(protocol.JoinRoom); ok {
			h.join(c, join)
			continue
		}
		if err := h.hub.Dispatch(context.Background(), c.id, ev); err != nil {
			reason = "server shutting down"
			return
		}
	}
}

// writePump is the only goroutine writing to the socket.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case ev := <-c.send:
			frame, err := protocol.EncodeServerEvent(ev)
			if err != nil {
				c.log.Error("encode event", zap.String("event", ev.EventName()), zap.Error(err))
				continue
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.log.Debug("write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.log.Debug("ping failed", zap.Error(err))
				return
			}
		case <-c.closed:
			c.drain()
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(c.opts.WriteWait))
			return
		}
	}
}

// drain flushes events queued before Close so a final user-left or join-ack still
// reaches the client.
func (c *Client) drain() {
	for {
		select {
		case ev := <-c.send:
			frame, err := protocol.EncodeServerEvent(ev)
			if err != nil {
				continue
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if c.conn.WriteMessage(websocket.TextMessage, frame) != nil {
				return
			}
		default:
			return
		}
	}
}

func disconnectReason(err error) string {
	var ce *websocket.CloseError
	switch {
	case errors.As(err, &ce) && (ce.Code == websocket.CloseNormalClosure || ce.Code == websocket.CloseGoingAway):
		return "client namespace disconnect"
	case errors.As(err, &ce):
		return "transport close"
	case errors.Is(err, websocket.ErrReadLimit):
		return "message too large"
	default:
		var ne interface{ Timeout() bool }
		if errors.As(err, &ne) && ne.Timeout() {
			return "ping timeout"
		}
		return "transport error"
	}
}

var _ coordinator.Peer = (*Client)(nil)
