// Package client is a Go participant for the coordinator protocol, used by the
// load and smoke tooling and by tests. Joins are request/response: Join waits for
// the coordinator's join-ack and reports TimedOut when none arrives in time.
// Retrying is left to the caller; JoinWithRetry is one such policy.
package client

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/gorilla/websocket"

	"devsync/internal/coordinator"
	"devsync/internal/protocol"
)

var ErrClosed = errors.New("client: connection closed")

type Client struct {
	conn   *websocket.Conn
	events chan protocol.ServerEvent

	writeMu sync.Mutex

	mu      sync.Mutex
	waiters map[string]chan protocol.ServerEvent

	seq     atomic.Uint64
	dropped atomic.Uint64

	done    chan struct{}
	readErr error
}

// Dial connects to a coordinator WebSocket endpoint such as ws://host:5000/ws.
func Dial(ctx context.Context, url string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	c := &Client{
		conn:    conn,
		events:  make(chan protocol.ServerEvent, 256),
		waiters: make(map[string]chan protocol.ServerEvent),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Events delivers every server event except join-acks and pongs, which are
// routed to the call waiting for them. The channel is closed when the connection
// ends. Events are dropped if the channel is not drained.
func (c *Client) Events() <-chan protocol.ServerEvent {
	return c.events
}

// Dropped counts events discarded because Events was not drained.
func (c *Client) Dropped() uint64 {
	return c.dropped.Load()
}

func (c *Client) readLoop() {
	defer func() {
		close(c.events)
		close(c.done)
	}()
	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			c.readErr = err
			return
		}
		ev, err := protocol.DecodeServerEvent(frame)
		if err != nil {
			continue
		}
		var ack string
		switch e := ev.(type) {
		case protocol.JoinAck:
			ack = e.Ack
		case protocol.Pong:
			ack = e.Ack
		}
		if ack != "" && c.deliver(ack, ev) {
			continue
		}
		select {
		case c.events <- ev:
		default:
			c.dropped.Add(1)
		}
	}
}

func (c *Client) deliver(ack string, ev protocol.ServerEvent) bool {
	c.mu.Lock()
	w, ok := c.waiters[ack]
	delete(c.waiters, ack)
	c.mu.Unlock()
	if ok {
		w <- ev
	}
	return ok
}

func (c *Client) await(ack string) chan protocol.ServerEvent {
	ch := make(chan protocol.ServerEvent, 1)
	c.mu.Lock()
	c.waiters[ack] = ch
	c.mu.Unlock()
	return ch
}

func (c *Client) forget(ack string) {
	c.mu.Lock()
	delete(c.waiters, ack)
	c.mu.Unlock()
}

func (c *Client) nextAck(kind string) string {
	return kind + "-" + strconv.FormatUint(c.seq.Add(1), 10)
}

// Send writes one event.
func (c *Client) Send(ev protocol.ClientEvent) error {
	frame, err := protocol.EncodeClientEvent(ev)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("write %s: %w", ev.EventName(), err)
	}
	return nil
}

// Join asks to enter roomID and waits for the acknowledgement.
func (c *Client) Join(ctx context.Context, roomID, name, initialCode string) (coordinator.JoinResult, error) {
	ack := c.nextAck("join")
	reply := c.await(ack)
	defer c.forget(ack)

	err := c.Send(protocol.JoinRoom{RoomID: roomID, User: protocol.User{Name: name}, InitialCode: initialCode, Ack: ack})
	if err != nil {
		return coordinator.JoinResult{}, err
	}
	select {
	case ev := <-reply:
		ja := ev.(protocol.JoinAck)
		if ja.Status == protocol.AckJoined {
			return coordinator.JoinResult{Status: coordinator.Joined}, nil
		}
		return coordinator.JoinResult{Status: coordinator.Rejected, Reason: ja.Reason}, nil
	case <-ctx.Done():
		return coordinator.JoinResult{Status: coordinator.TimedOut}, nil
	case <-c.done:
		return coordinator.JoinResult{}, ErrClosed
	}
}

// Ping measures the application-level round trip to the coordinator.
func (c *Client) Ping(ctx context.Context) (time.Duration, error) {
	ack := c.nextAck("ping")
	reply := c.await(ack)
	defer c.forget(ack)

	start := time.Now()
	if err := c.Send(protocol.Ping{Ack: ack}); err != nil {
		return 0, err
	}
	select {
	case <-reply:
		return time.Since(start), nil
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-c.done:
		return 0, ErrClosed
	}
}

// Leave announces a graceful departure and closes the connection.
func (c *Client) Leave(reason string) error {
	if err := c.Send(protocol.Disconnecting{Reason: reason}); err != nil && !errors.Is(err, ErrClosed) {
		c.conn.Close()
		return err
	}
	return c.Close()
}

// Close sends a close frame and waits briefly for the server to end the session.
func (c *Client) Close() error {
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.writeMu.Unlock()

	select {
	case <-c.done:
	case <-time.After(2 * time.Second):
	}
	return c.conn.Close()
}

// Done is closed when the connection ends.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err reports why the read loop stopped, once Done is closed.
func (c *Client) Err() error {
	<-c.done
	return c.readErr
}

// JoinWithRetry dials and joins, retrying dial failures and timed-out joins with
// b. A rejection is final. Each attempt gets attemptTimeout to be acknowledged.
func JoinWithRetry(ctx context.Context, url, roomID, name, initialCode string, attemptTimeout time.Duration, b backoff.BackOff) (*Client, coordinator.JoinResult, error) {
	var (
		cl  *Client
		res coordinator.JoinResult
	)
	op := func() error {
		c, err := Dial(ctx, url)
		if err != nil {
			return err
		}
		actx, cancel := context.WithTimeout(ctx, attemptTimeout)
		r, err := c.Join(actx, roomID, name, initialCode)
		cancel()
		switch {
		case err != nil:
			c.conn.Close()
			return err
		case r.Status == coordinator.TimedOut:
			c.conn.Close()
			res = r
			return errors.New("join timed out")
		case r.Status == coordinator.Rejected:
			c.conn.Close()
			res = r
			return backoff.Permanent(fmt.Errorf("join rejected: %s", r.Reason))
		}
		cl, res = c, r
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		return nil, res, err
	}
	return cl, res, nil
}
