// Package protocol defines the messages exchanged between participants and the
// coordinator. Each direction is a closed set of event types: a client event is one
// of the types implementing ClientEvent, a server event one of the types
// implementing ServerEvent. Frames travel as JSON text envelopes:
//
//	{"event": "code-change", "data": {"roomId": "r1", "code": "x=1"}, "ack": ""}
package protocol

import (
	"encoding/json"
	"errors"
)

// Client to server event names.
const (
	EventJoinRoom       = "join-room"
	EventCodeChange     = "code-change"
	EventCodeSync       = "code-sync"
	EventTyping         = "typing"
	EventCursorMove     = "cursor-move"
	EventLanguageChange = "language-change"
	EventDisconnecting  = "disconnecting"
	EventPing           = "ping"
)

// Server to client event names.
const (
	EventUserJoined     = "user-joined"
	EventUserLeft       = "user-left"
	EventCodeUpdate     = "code-update"
	EventUserTyping     = "user-typing"
	EventRemoteCursor   = "remote-cursor"
	EventLanguageUpdate = "language-update"
	EventJoinAck        = "join-ack"
	EventPong           = "pong"
)

var (
	ErrUnknownEvent = errors.New("unknown event")
	ErrMalformed    = errors.New("malformed frame")
)

// Envelope is the JSON frame carrying every event.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	Ack   string          `json:"ack,omitempty"`
}

// Position is a zero-based line/column pair in the editor.
type Position struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// User is the identity a client claims when joining.
type User struct {
	Name string `json:"name"`
}

// Participant is one entry of a room's connected user list.
type Participant struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ClientEvent is an event sent by a participant.
type ClientEvent interface {
	EventName() string
	clientEvent()
}

// ServerEvent is an event sent by the coordinator.
type ServerEvent interface {
	EventName() string
	serverEvent()
}

type JoinRoom struct {
	RoomID      string `json:"roomId"`
	User        User   `json:"user"`
	InitialCode string `json:"initialCode,omitempty"`
	// Ack is copied from the envelope; a non-empty value asks for a join-ack reply.
	Ack string `json:"-"`
}

type CodeChange struct {
	RoomID   string  `json:"roomId"`
	Code     string  `json:"code"`
	Language *string `json:"language,omitempty"`
}

type CodeSync struct {
	RoomID string `json:"roomId"`
	Code   string `json:"code"`
}

type Typing struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
	Name   string `json:"name"`
}

type CursorMove struct {
	RoomID   string   `json:"roomId"`
	UserID   string   `json:"userId"`
	Name     string   `json:"name"`
	Position Position `json:"position"`
}

type LanguageChange struct {
	RoomID   string `json:"roomId"`
	Language string `json:"language"`
}

// Disconnecting announces a graceful leave before the client closes its channel.
type Disconnecting struct {
	Reason string `json:"reason,omitempty"`
}

type Ping struct {
	Ack string `json:"-"`
}

func (JoinRoom) EventName() string       { return EventJoinRoom }
func (CodeChange) EventName() string     { return EventCodeChange }
func (CodeSync) EventName() string       { return EventCodeSync }
func (Typing) EventName() string         { return EventTyping }
func (CursorMove) EventName() string     { return EventCursorMove }
func (LanguageChange) EventName() string { return EventLanguageChange }
func (Disconnecting) EventName() string  { return EventDisconnecting }
func (Ping) EventName() string           { return EventPing }

func (JoinRoom) clientEvent()       {}
func (CodeChange) clientEvent()     {}
func (CodeSync) clientEvent()       {}
func (Typing) clientEvent()         {}
func (CursorMove) clientEvent()     {}
func (LanguageChange) clientEvent() {}
func (Disconnecting) clientEvent()  {}
func (Ping) clientEvent()           {}

type UserJoined struct {
	ConnectedUsers []Participant `json:"connectedUsers"`
	NewUser        string        `json:"newUser"`
}

type UserLeft struct {
	UserName       string        `json:"userName"`
	ConnectedUsers []Participant `json:"connectedUsers"`
}

type CodeUpdate struct {
	Code string `json:"code"`
}

type UserTyping struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
}

type RemoteCursor struct {
	UserID   string   `json:"userId"`
	Name     string   `json:"name"`
	Position Position `json:"position"`
}

type LanguageUpdate struct {
	Language string `json:"language"`
}

// Join acknowledgement statuses.
const (
	AckJoined   = "joined"
	AckRejected = "rejected"
)

type JoinAck struct {
	Ack    string `json:"ack"`
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

type Pong struct {
	Ack string `json:"ack,omitempty"`
}

func (UserJoined) EventName() string     { return EventUserJoined }
func (UserLeft) EventName() string       { return EventUserLeft }
func (CodeUpdate) EventName() string     { return EventCodeUpdate }
func (UserTyping) EventName() string     { return EventUserTyping }
func (RemoteCursor) EventName() string   { return EventRemoteCursor }
func (LanguageUpdate) EventName() string { return EventLanguageUpdate }
func (JoinAck) EventName() string        { return EventJoinAck }
func (Pong) EventName() string           { return EventPong }

func (UserJoined) serverEvent()     {}
func (UserLeft) serverEvent()       {}
func (CodeUpdate) serverEvent()     {}
func (UserTyping) serverEvent()     {}
func (RemoteCursor) serverEvent()   {}
func (LanguageUpdate) serverEvent() {}
func (JoinAck) serverEvent()        {}
func (Pong) serverEvent()           {}
