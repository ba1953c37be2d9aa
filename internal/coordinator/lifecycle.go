package coordinator

import (
	"time"

	"go.uber.org/zap"

	"devsync/internal/protocol"
)

type JoinStatus int

const (
	Joined JoinStatus = iota + 1
	Rejected
	TimedOut
)

func (s JoinStatus) String() string {
	switch s {
	case Joined:
		return "joined"
	case Rejected:
		return "rejected"
	case TimedOut:
		return "timed out"
	default:
		return "unknown"
	}
}

// JoinResult is the outcome of a join request.
type JoinResult struct {
	Status JoinStatus
	Reason string
}

// Rejection reasons.
const (
	ReasonMissingRoom     = "missing room id"
	ReasonMissingName     = "missing display name"
	ReasonNotConnected    = "connection not active"
	ReasonUnknownRoom     = "room not found"
	ReasonCoordinatorDown = "coordinator stopped"
)

func rejected(reason string) JoinResult {
	return JoinResult{Status: Rejected, Reason: reason}
}

// Join places a connection in req.RoomID. The first joiner of an empty room seeds
// its code from req.InitialCode; later joiners receive the stored code instead of
// their own. A connection already joined elsewhere leaves that room first.
func (c *Coordinator) Join(connID string, req protocol.JoinRoom) JoinResult {
	defer c.flush()
	res := c.join(connID, req)
	if req.Ack != "" {
		ack := protocol.JoinAck{Ack: req.Ack, Status: protocol.AckJoined}
		if res.Status != Joined {
			ack.Status, ack.Reason = protocol.AckRejected, res.Reason
		}
		c.send(connID, ack)
	}
	return res
}

func (c *Coordinator) join(connID string, req protocol.JoinRoom) JoinResult {
	cn, ok := c.conns[connID]
	if !ok || cn.state == StateDisconnecting || cn.state == StateClosed {
		return rejected(ReasonNotConnected)
	}
	if req.RoomID == "" {
		c.log.Debug("join without room id ignored", zap.String("conn", connID))
		return rejected(ReasonMissingRoom)
	}
	if req.User.Name == "" {
		c.log.Debug("join without display name ignored", zap.String("conn", connID), zap.String("room", req.RoomID))
		return rejected(ReasonMissingName)
	}

	if cn.state == StateJoined && cn.room != req.RoomID {
		c.teardown(cn, "switched room")
	}

	if c.store.Seed(req.RoomID, req.InitialCode) {
		c.log.Debug("room seeded", zap.String("room", req.RoomID), zap.String("conn", connID))
	}
	c.registry.Register(req.RoomID, connID, req.User.Name)
	cn.state = StateJoined
	cn.room = req.RoomID
	cn.name = req.User.Name

	c.announceJoin(req.RoomID, req.User.Name)

	if code := c.store.Code(req.RoomID); code != "" {
		c.send(connID, protocol.CodeUpdate{Code: code})
	}
	if lang := c.store.Language(req.RoomID); lang != "" {
		c.send(connID, protocol.LanguageUpdate{Language: lang})
	}
	return JoinResult{Status: Joined}
}

// Handle applies one inbound event. Events from connections that are disconnecting
// or unknown are discarded.
func (c *Coordinator) Handle(connID string, ev protocol.ClientEvent) {
	cn, ok := c.conns[connID]
	if !ok || cn.state == StateDisconnecting || cn.state == StateClosed {
		c.log.Debug("rejecting event from disconnected connection",
			zap.String("conn", connID), zap.String("event", ev.EventName()))
		return
	}
	defer c.flush()

	switch e := ev.(type) {
	case protocol.JoinRoom:
		c.Join(connID, e)
	case protocol.CodeChange:
		c.codeChange(connID, e)
	case protocol.CodeSync:
		c.codeSync(connID, e)
	case protocol.Typing:
		c.typing(connID, e)
	case protocol.CursorMove:
		c.cursorMove(connID, e)
	case protocol.LanguageChange:
		c.languageChange(connID, e)
	case protocol.Disconnecting:
		c.disconnecting(cn, e.Reason)
	case protocol.Ping:
		c.send(connID, protocol.Pong{Ack: e.Ack})
	default:
		c.log.Warn("unhandled event", zap.String("conn", connID), zap.String("event", ev.EventName()))
	}
}

// Disconnecting handles a graceful leave announced by the client.
func (c *Coordinator) Disconnecting(connID, reason string) {
	cn, ok := c.conns[connID]
	if !ok || cn.state == StateClosed {
		return
	}
	defer c.flush()
	c.disconnecting(cn, reason)
}

func (c *Coordinator) disconnecting(cn *conn, reason string) {
	c.log.Info("connection disconnecting", zap.String("conn", cn.id()), zap.String("reason", reason))
	c.teardown(cn, reason)
	cn.state = StateDisconnecting
}

// Disconnect handles loss of the transport and forgets the connection.
func (c *Coordinator) Disconnect(connID, reason string) {
	defer c.flush()
	c.disconnect(connID, reason)
}

func (c *Coordinator) disconnect(connID, reason string) {
	cn, ok := c.conns[connID]
	if !ok {
		return
	}
	c.log.Info("connection disconnected", zap.String("conn", connID), zap.String("reason", reason))
	cn.state = StateClosed
	delete(c.conns, connID)
	c.teardown(cn, reason)
	cn.peer.Close()
}

// teardown removes the connection from its room and announces the departure. It
// only acts when the registry still holds the connection, so repeated calls are
// harmless.
func (c *Coordinator) teardown(cn *conn, reason string) {
	roomID := cn.room
	cn.room = ""
	cn.cursor, cn.cursorAt, cn.typedAt = protocol.Position{}, time.Time{}, time.Time{}
	if roomID == "" {
		return
	}
	name, ok := c.registry.Unregister(roomID, cn.id())
	if !ok {
		return
	}
	c.log.Debug("teardown", zap.String("conn", cn.id()), zap.String("room", roomID), zap.String("reason", reason))
	c.announceLeave(roomID, name)
}
