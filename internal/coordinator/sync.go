package coordinator

import (
	"unicode/utf8"

	"go.uber.org/zap"

	"devsync/internal/protocol"
)

// member returns the sender's record if it is joined to roomID.
func (c *Coordinator) member(connID, roomID string) (*conn, bool) {
	cn, ok := c.conns[connID]
	room, registered := c.registry.RoomOf(connID)
	if !ok || !registered || cn.state != StateJoined || room != roomID {
		c.log.Debug("dropping event for room the connection is not in",
			zap.String("conn", connID), zap.String("room", roomID))
		return nil, false
	}
	return cn, true
}

func (c *Coordinator) codeChange(connID string, ev protocol.CodeChange) {
	if _, ok := c.member(connID, ev.RoomID); !ok {
		return
	}
	c.store.SetCode(ev.RoomID, ev.Code)
	c.relay(ev.RoomID, connID, protocol.CodeUpdate{Code: ev.Code})

	if ev.Language != nil && *ev.Language != c.store.Language(ev.RoomID) {
		c.store.SetLanguage(ev.RoomID, *ev.Language)
		c.relay(ev.RoomID, connID, protocol.LanguageUpdate{Language: *ev.Language})
	}
}

func (c *Coordinator) codeSync(connID string, ev protocol.CodeSync) {
	if _, ok := c.member(connID, ev.RoomID); !ok {
		return
	}
	if !c.store.Sync(ev.RoomID, ev.Code) {
		c.log.Debug("code-sync kept stored code",
			zap.String("room", ev.RoomID), zap.Int("incoming", utf8.RuneCountInString(ev.Code)))
		return
	}
	c.log.Debug("code-sync replaced stored code",
		zap.String("room", ev.RoomID), zap.String("conn", connID), zap.Int("length", utf8.RuneCountInString(ev.Code)))
	c.relay(ev.RoomID, connID, protocol.CodeUpdate{Code: ev.Code})
}

func (c *Coordinator) typing(connID string, ev protocol.Typing) {
	cn, ok := c.member(connID, ev.RoomID)
	if !ok {
		return
	}
	cn.typedAt = c.now()
	c.relay(ev.RoomID, connID, protocol.UserTyping{UserID: ev.UserID, Name: ev.Name})
}

func (c *Coordinator) cursorMove(connID string, ev protocol.CursorMove) {
	cn, ok := c.member(connID, ev.RoomID)
	if !ok {
		return
	}
	cn.cursor = ev.Position
	cn.cursorAt = c.now()
	c.relay(ev.RoomID, connID, protocol.RemoteCursor{UserID: ev.UserID, Name: ev.Name, Position: ev.Position})
}

func (c *Coordinator) languageChange(connID string, ev protocol.LanguageChange) {
	if _, ok := c.member(connID, ev.RoomID); !ok {
		return
	}
	c.store.SetLanguage(ev.RoomID, ev.Language)
	c.relay(ev.RoomID, connID, protocol.LanguageUpdate{Language: ev.Language})
}
