package coordinator

import (
	"time"

	"go.uber.org/zap"

	"devsync/internal/protocol"
	"devsync/internal/registry"
	"devsync/internal/roomstate"
)

// Peer is one participant's transport session as seen by the coordinator.
type Peer interface {
	ID() string
	// Send enqueues ev without blocking and reports whether it was accepted.
	Send(ev protocol.ServerEvent) bool
	// Close releases the transport. It must be safe to call more than once.
	Close()
}

// Sink receives a copy of every room-wide event. It must not block.
type Sink interface {
	Publish(roomID string, ev protocol.ServerEvent)
}

type State int

const (
	StateConnecting State = iota
	StateJoined
	StateDisconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateJoined:
		return "joined"
	case StateDisconnecting:
		return "disconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

type conn struct {
	peer  Peer
	state State
	room  string
	name  string

	cursor   protocol.Position
	cursorAt time.Time
	typedAt  time.Time
}

func (c *conn) id() string { return c.peer.ID() }

// Coordinator applies participant events to the registry and store and fans the
// results out to peers. It is not safe for concurrent use; see Hub.
type Coordinator struct {
	log      *zap.Logger
	registry *registry.Registry
	store    *roomstate.Store
	sink     Sink
	now      func() time.Time

	conns map[string]*conn
	// dropped holds peers whose send buffer overflowed during the current event.
	dropped []string
}

type Option func(*Coordinator)

// WithSink mirrors room-wide events to s.
func WithSink(s Sink) Option {
	return func(c *Coordinator) { c.sink = s }
}

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

func New(log *zap.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		log:      log,
		registry: registry.New(),
		store:    roomstate.New(),
		now:      time.Now,
		conns:    make(map[string]*conn),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect starts tracking peer in the Connecting state.
func (c *Coordinator) Connect(peer Peer) {
	if _, ok := c.conns[peer.ID()]; ok {
		c.log.Warn("duplicate connection id", zap.String("conn", peer.ID()))
		return
	}
	c.conns[peer.ID()] = &conn{peer: peer, state: StateConnecting}
	c.log.Debug("connection registered", zap.String("conn", peer.ID()), zap.Int("connections", len(c.conns)))
}

// Participants returns the current registry contents for roomID.
func (c *Coordinator) Participants(roomID string) []protocol.Participant {
	return c.registry.List(roomID)
}

// FindByName returns the most recently joined connection using name in roomID.
func (c *Coordinator) FindByName(roomID, name string) (string, bool) {
	return c.registry.FindByName(roomID, name)
}

func (c *Coordinator) Code(roomID string) string {
	return c.store.Code(roomID)
}

func (c *Coordinator) Language(roomID string) string {
	return c.store.Language(roomID)
}

// State reports the lifecycle state of a connection; unknown ids are Closed.
func (c *Coordinator) State(connID string) State {
	if cn, ok := c.conns[connID]; ok {
		return cn.state
	}
	return StateClosed
}

// Cursor returns the last cursor position reported by a joined connection.
func (c *Coordinator) Cursor(connID string) (protocol.Position, time.Time, bool) {
	cn, ok := c.conns[connID]
	if !ok || cn.cursorAt.IsZero() {
		return protocol.Position{}, time.Time{}, false
	}
	return cn.cursor, cn.cursorAt, true
}

// Stats is a point-in-time summary used for logging and health reporting.
type Stats struct {
	Connections int `json:"connections"`
	Rooms       int `json:"rooms"`

	// Documents counts rooms the store holds, including rooms nobody is in.
	Documents int `json:"documents"`
}

func (c *Coordinator) Stats() Stats {
	return Stats{
		Connections: len(c.conns),
		Rooms:       len(c.registry.Rooms()),
		Documents:   c.store.Len(),
	}
}

// Shutdown closes every peer without broadcasting and discards all room state.
func (c *Coordinator) Shutdown() {
	for id, cn := range c.conns {
		cn.state = StateClosed
		cn.peer.Close()
		delete(c.conns, id)
	}
	c.dropped = nil
	c.registry = registry.New()
	c.store = roomstate.New()
}

func (c *Coordinator) send(connID string, ev protocol.ServerEvent) {
	cn, ok := c.conns[connID]
	if !ok || cn.state == StateClosed {
		return
	}
	if !cn.peer.Send(ev) {
		c.log.Warn("send buffer full, dropping connection",
			zap.String("conn", connID), zap.String("event", ev.EventName()))
		c.dropped = append(c.dropped, connID)
	}
}

// broadcast delivers ev to every participant of roomID.
func (c *Coordinator) broadcast(roomID string, ev protocol.ServerEvent) {
	for _, id := range c.registry.IDs(roomID) {
		c.send(id, ev)
	}
	c.mirror(roomID, ev)
}

// relay delivers ev to every participant of roomID except sender.
func (c *Coordinator) relay(roomID, sender string, ev protocol.ServerEvent) {
	for _, id := range c.registry.IDs(roomID) {
		if id == sender {
			continue
		}
		c.send(id, ev)
	}
	c.mirror(roomID, ev)
}

func (c *Coordinator) mirror(roomID string, ev protocol.ServerEvent) {
	if c.sink != nil {
		c.sink.Publish(roomID, ev)
	}
}

// flush tears down peers that overflowed. Teardown broadcasts can overflow further
// peers, so it runs until no drops remain.
func (c *Coordinator) flush() {
	for len(c.dropped) > 0 {
		id := c.dropped[0]
		c.dropped = c.dropped[1:]
		c.disconnect(id, "slow consumer")
	}
}
