// Package registry tracks which connections are present in which room.
//
// A Registry is not safe for concurrent use. The coordinator owns it from a single
// goroutine, which makes every mutation atomic with respect to the others.
package registry

import "devsync/internal/protocol"

type entry struct {
	connID string
	name   string
	// seq orders registrations; the most recent registration wins name lookups.
	seq uint64
}

// Registry is the room membership table.
type Registry struct {
	rooms  map[string][]*entry
	byConn map[string]string
	seq    uint64
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		rooms:  make(map[string][]*entry),
		byConn: make(map[string]string),
	}
}

// Register records connID as present in roomID under name. A connection already in
// the room keeps its position and takes the new name. A connection registered in a
// different room is moved out of it first.
func (r *Registry) Register(roomID, connID, name string) {
	if prev, ok := r.byConn[connID]; ok && prev != roomID {
		r.Unregister(prev, connID)
	}
	r.seq++
	for _, e := range r.rooms[roomID] {
		if e.connID == connID {
			e.name = name
			e.seq = r.seq
			return
		}
	}
	r.rooms[roomID] = append(r.rooms[roomID], &entry{connID: connID, name: name, seq: r.seq})
	r.byConn[connID] = roomID
}

// Unregister removes connID from roomID and returns the name it was registered
// under. Unknown rooms or connections are a no-op.
func (r *Registry) Unregister(roomID, connID string) (string, bool) {
	entries := r.rooms[roomID]
	for i, e := range entries {
		if e.connID != connID {
			continue
		}
		entries = append(entries[:i], entries[i+1:]...)
		if len(entries) == 0 {
			delete(r.rooms, roomID)
		} else {
			r.rooms[roomID] = entries
		}
		delete(r.byConn, connID)
		return e.name, true
	}
	return "", false
}

// List returns the participants of roomID in registration order.
func (r *Registry) List(roomID string) []protocol.Participant {
	entries := r.rooms[roomID]
	out := make([]protocol.Participant, 0, len(entries))
	for _, e := range entries {
		out = append(out, protocol.Participant{ID: e.connID, Name: e.name})
	}
	return out
}

// IDs returns the connection ids present in roomID in registration order.
func (r *Registry) IDs(roomID string) []string {
	entries := r.rooms[roomID]
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.connID)
	}
	return out
}

// FindByName returns the connection most recently registered under name.
func (r *Registry) FindByName(roomID, name string) (string, bool) {
	var found *entry
	for _, e := range r.rooms[roomID] {
		if e.name == name && (found == nil || e.seq > found.seq) {
			found = e
		}
	}
	if found == nil {
		return "", false
	}
	return found.connID, true
}

// RoomOf reports the room connID is registered in.
func (r *Registry) RoomOf(connID string) (string, bool) {
	room, ok := r.byConn[connID]
	return room, ok
}

// Rooms returns the ids of rooms with at least one participant.
func (r *Registry) Rooms() []string {
	out := make([]string, 0, len(r.rooms))
	for id := range r.rooms {
		out = append(out, id)
	}
	return out
}
