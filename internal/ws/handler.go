// Package ws carries the participant protocol over WebSockets: it upgrades HTTP
// requests, runs one read pump and one write pump per connection, and hands
// decoded events to the coordinator hub.
package ws

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"devsync/internal/auth"
	"devsync/internal/coordinator"
	"devsync/internal/protocol"
)

type Options struct {
	WriteWait       time.Duration
	PongWait        time.Duration
	PingPeriod      time.Duration
	MaxMessageBytes int64
	SendBuffer      int
	JoinTimeout     time.Duration
	// AllowedOrigins restricts browser origins; empty allows any origin.
	AllowedOrigins []string
}

func DefaultOptions() Options {
	return Options{
		WriteWait:       10 * time.Second,
		PongWait:        20 * time.Second,
		PingPeriod:      10 * time.Second,
		MaxMessageBytes: 1 << 20,
		SendBuffer:      256,
		JoinTimeout:     5 * time.Second,
	}
}

// RoomChecker reports whether a room key is known to the room directory.
type RoomChecker interface {
	Exists(ctx context.Context, roomID string) (bool, error)
}

// Handler upgrades participant connections.
type Handler struct {
	hub      *coordinator.Hub
	opts     Options
	log      *zap.Logger
	rooms    RoomChecker
	verifier *auth.Verifier
	upgrader websocket.Upgrader

	// mu orders pump accounting against Wait; closing refuses new upgrades.
	mu      sync.Mutex
	closing bool
	wg      sync.WaitGroup
}

type HandlerOption func(*Handler)

// WithRoomChecker rejects joins to rooms the directory does not know.
func WithRoomChecker(rc RoomChecker) HandlerOption {
	return func(h *Handler) { h.rooms = rc }
}

// WithVerifier requires a valid token on the upgrade request.
func WithVerifier(v *auth.Verifier) HandlerOption {
	return func(h *Handler) { h.verifier = v }
}

func NewHandler(hub *coordinator.Hub, opts Options, log *zap.Logger, hopts ...HandlerOption) *Handler {
	h := &Handler{hub: hub, opts: opts, log: log}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     checkOrigin(opts.AllowedOrigins),
	}
	for _, o := range hopts {
		o(h)
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.verifier != nil {
		if _, err := h.verifier.Verify(auth.FromRequest(r)); err != nil {
			h.log.Debug("rejecting websocket upgrade", zap.Error(err))
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}

	if !h.track() {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	started := false
	defer func() {
		if !started {
			h.wg.Add(-2)
		}
	}()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error response.
		h.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	client := newClient(uuid.NewString(), conn, h.opts, h.log)
	ctx, cancel := context.WithTimeout(context.Background(), h.opts.JoinTimeout)
	err = h.hub.Register(ctx, client)
	cancel()
	if err != nil {
		h.log.Warn("could not register connection", zap.Error(err))
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "coordinator unavailable"),
			time.Now().Add(h.opts.WriteWait))
		conn.Close()
		return
	}
	h.log.Debug("socket connected", zap.String("conn", client.id), zap.String("remote", r.RemoteAddr))

	started = true
	go func() {
		defer h.wg.Done()
		client.writePump()
	}()
	go func() {
		defer h.wg.Done()
		client.readPump(h)
	}()
}

// join checks the room directory, then waits for the hub's verdict. The hub sends
// the join-ack itself; only directory rejections are acknowledged here.
func (h *Handler) join(c *Client, req protocol.JoinRoom) {
	ctx, cancel := context.WithTimeout(context.Background(), h.opts.JoinTimeout)
	defer cancel()

	if h.rooms != nil && req.RoomID != "" {
		ok, err := h.rooms.Exists(ctx, req.RoomID)
		if err != nil {
			c.log.Warn("room lookup failed", zap.String("room", req.RoomID), zap.Error(err))
		}
		if !ok {
			if req.Ack != "" {
				c.Send(protocol.JoinAck{Ack: req.Ack, Status: protocol.AckRejected, Reason: coordinator.ReasonUnknownRoom})
			}
			return
		}
	}

	res := h.hub.Join(ctx, c.id, req)
	switch res.Status {
	case coordinator.TimedOut:
		c.log.Warn("join timed out", zap.String("room", req.RoomID), zap.Duration("timeout", h.opts.JoinTimeout))
	case coordinator.Rejected:
		c.log.Debug("join rejected", zap.String("room", req.RoomID), zap.String("reason", res.Reason))
	}
}

// track reserves the two pump slots of a new connection, unless Wait has begun.
func (h *Handler) track() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closing {
		return false
	}
	h.wg.Add(2)
	return true
}

// Wait refuses further upgrades and blocks until every pump started by the
// handler has returned.
func (h *Handler) Wait() {
	h.mu.Lock()
	h.closing = true
	h.mu.Unlock()
	h.wg.Wait()
}

func checkOrigin(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(allowed, origin)
	}
}
