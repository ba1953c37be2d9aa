package coordinator

import (
	"go.uber.org/zap"

	"devsync/internal/protocol"
)

// announceJoin sends the full participant list to the whole room, joiner included.
func (c *Coordinator) announceJoin(roomID, name string) {
	users := c.registry.List(roomID)
	c.broadcast(roomID, protocol.UserJoined{ConnectedUsers: users, NewUser: name})
	c.log.Info("user joined",
		zap.String("room", roomID), zap.String("user", name), zap.Int("participants", len(users)))
}

// announceLeave sends the full participant list to the members that remain.
func (c *Coordinator) announceLeave(roomID, name string) {
	users := c.registry.List(roomID)
	c.broadcast(roomID, protocol.UserLeft{UserName: name, ConnectedUsers: users})
	c.log.Info("user left",
		zap.String("room", roomID), zap.String("user", name), zap.Int("participants", len(users)))
}
