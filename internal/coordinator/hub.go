package coordinator

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"devsync/internal/protocol"
)

// ErrStopped is returned for requests submitted after Run has returned.
var ErrStopped = errors.New("coordinator: hub stopped")

type inbound struct {
	connID string
	ev     protocol.ClientEvent
}

type leave struct {
	connID string
	reason string
}

type joinRequest struct {
	ctx    context.Context
	connID string
	req    protocol.JoinRoom
	reply  chan JoinResult
}

type query struct {
	fn   func(*Coordinator)
	done chan struct{}
}

// Hub serializes every request onto the goroutine running Run, which is the only
// goroutine that touches the Coordinator.
type Hub struct {
	log   *zap.Logger
	coord *Coordinator

	register   chan Peer
	unregister chan leave
	events     chan inbound
	joins      chan joinRequest
	queries    chan query
	done       chan struct{}
}

func NewHub(coord *Coordinator, log *zap.Logger) *Hub {
	return &Hub{
		log:        log,
		coord:      coord,
		register:   make(chan Peer),
		unregister: make(chan leave),
		events:     make(chan inbound),
		joins:      make(chan joinRequest),
		queries:    make(chan query),
		done:       make(chan struct{}),
	}
}

// Run processes requests until ctx is cancelled, then closes every peer.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	h.log.Info("hub started")
	for {
		select {
		case <-ctx.Done():
			stats := h.coord.Stats()
			h.coord.Shutdown()
			h.log.Info("hub stopped", zap.Int("connections", stats.Connections), zap.Int("rooms", stats.Rooms), zap.Int("documents", stats.Documents))
			return nil
		case peer := <-h.register:
			h.coord.Connect(peer)
		case l := <-h.unregister:
			h.coord.Disconnect(l.connID, l.reason)
		case in := <-h.events:
			h.coord.Handle(in.connID, in.ev)
		case j := <-h.joins:
			if j.ctx.Err() != nil {
				j.reply <- JoinResult{Status: TimedOut}
				continue
			}
			j.reply <- h.coord.Join(j.connID, j.req)
		case q := <-h.queries:
			q.fn(h.coord)
			close(q.done)
		}
	}
}

// Register hands a new connection to the hub.
func (h *Hub) Register(ctx context.Context, peer Peer) error {
	select {
	case h.register <- peer:
		return nil
	case <-h.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dispatch submits one inbound event. Join requests sent this way get no result;
// use Join to wait for the outcome.
func (h *Hub) Dispatch(ctx context.Context, connID string, ev protocol.ClientEvent) error {
	select {
	case h.events <- inbound{connID: connID, ev: ev}:
		return nil
	case <-h.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Join submits a join and waits for its outcome. If ctx expires first the result
// is TimedOut; a join that times out after the hub accepted it may still have been
// applied, and joining the same room again is safe.
func (h *Hub) Join(ctx context.Context, connID string, req protocol.JoinRoom) JoinResult {
	j := joinRequest{ctx: ctx, connID: connID, req: req, reply: make(chan JoinResult, 1)}
	select {
	case h.joins <- j:
	case <-h.done:
		return rejected(ReasonCoordinatorDown)
	case <-ctx.Done():
		return JoinResult{Status: TimedOut}
	}
	select {
	case res := <-j.reply:
		return res
	case <-ctx.Done():
		return JoinResult{Status: TimedOut}
	}
}

// Disconnect reports the loss of a connection's transport. It never blocks once
// the hub has stopped.
func (h *Hub) Disconnect(connID, reason string) {
	select {
	case h.unregister <- leave{connID: connID, reason: reason}:
	case <-h.done:
	}
}

// Inspect runs fn on the hub goroutine and waits for it to finish.
func (h *Hub) Inspect(ctx context.Context, fn func(*Coordinator)) error {
	q := query{fn: fn, done: make(chan struct{})}
	select {
	case h.queries <- q:
	case <-h.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	<-q.done
	return nil
}

// Stats reads the coordinator summary through the hub.
func (h *Hub) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	err := h.Inspect(ctx, func(c *Coordinator) { s = c.Stats() })
	return s, err
}

// Done is closed when Run returns.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}
