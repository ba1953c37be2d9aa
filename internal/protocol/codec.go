package protocol

import (
	"encoding/json"
	"fmt"
)

// DecodeClientEvent parses one inbound frame.
func DecodeClientEvent(frame []byte) (ClientEvent, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var ev ClientEvent
	var err error
	switch env.Event {
	case EventJoinRoom:
		var e JoinRoom
		err = decodeData(env.Data, &e)
		e.Ack = env.Ack
		ev = e
	case EventCodeChange:
		var e CodeChange
		err = decodeData(env.Data, &e)
		ev = e
	case EventCodeSync:
		var e CodeSync
		err = decodeData(env.Data, &e)
		ev = e
	case EventTyping:
		var e Typing
		err = decodeData(env.Data, &e)
		ev = e
	case EventCursorMove:
		var e CursorMove
		err = decodeData(env.Data, &e)
		ev = e
	case EventLanguageChange:
		var e LanguageChange
		err = decodeData(env.Data, &e)
		ev = e
	case EventDisconnecting:
		var e Disconnecting
		err = decodeData(env.Data, &e)
		ev = e
	case EventPing:
		ev = Ping{Ack: env.Ack}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, env.Event, err)
	}
	return ev, nil
}

// EncodeServerEvent renders an outbound frame.
func EncodeServerEvent(ev ServerEvent) ([]byte, error) {
	return encode(ev.EventName(), ev, "")
}

// EncodeClientEvent renders a frame as a participant would send it.
func EncodeClientEvent(ev ClientEvent) ([]byte, error) {
	var ack string
	switch e := ev.(type) {
	case JoinRoom:
		ack = e.Ack
	case Ping:
		ack = e.Ack
		return encode(ev.EventName(), nil, ack)
	}
	return encode(ev.EventName(), ev, ack)
}

// DecodeServerEvent parses a frame sent by the coordinator.
func DecodeServerEvent(frame []byte) (ServerEvent, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var ev ServerEvent
	var err error
	switch env.Event {
	case EventUserJoined:
		var e UserJoined
		err = decodeData(env.Data, &e)
		ev = e
	case EventUserLeft:
		var e UserLeft
		err = decodeData(env.Data, &e)
		ev = e
	case EventCodeUpdate:
		var e CodeUpdate
		err = decodeData(env.Data, &e)
		ev = e
	case EventUserTyping:
		var e UserTyping
		err = decodeData(env.Data, &e)
		ev = e
	case EventRemoteCursor:
		var e RemoteCursor
		err = decodeData(env.Data, &e)
		ev = e
	case EventLanguageUpdate:
		var e LanguageUpdate
		err = decodeData(env.Data, &e)
		ev = e
	case EventJoinAck:
		var e JoinAck
		err = decodeData(env.Data, &e)
		ev = e
	case EventPong:
		var e Pong
		err = decodeData(env.Data, &e)
		ev = e
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, env.Event, err)
	}
	return ev, nil
}

func encode(name string, data any, ack string) ([]byte, error) {
	env := Envelope{Event: name, Ack: ack}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", name, err)
		}
		env.Data = raw
	}
	return json.Marshal(env)
}

// decodeData tolerates an absent payload so that events like
// {"event":"disconnecting"} decode to their zero value.
func decodeData(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, v)
}
