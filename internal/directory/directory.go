// Package directory stores room ownership metadata: who created a room and which
// users have opened it. Live room state (code, presence) never lands here.
package directory

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("directory: room not found")

// DefaultLanguage is the language tag of newly created rooms.
const DefaultLanguage = "javascript"

type Room struct {
	ID           string    `json:"roomId"`
	Owner        string    `json:"owner"`
	Participants []string  `json:"participants"`
	Language     string    `json:"language"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Directory is the room ownership store.
type Directory interface {
	// Create makes a new room owned by owner, who is also its first participant.
	Create(ctx context.Context, owner string) (Room, error)
	Get(ctx context.Context, roomID string) (Room, error)
	// AddParticipant records userID on the room if it is not there yet.
	AddParticipant(ctx context.Context, roomID, userID string) (Room, error)
	Exists(ctx context.Context, roomID string) (bool, error)
}

// NewRoomID returns a short URL-friendly room key.
func NewRoomID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// Memory is an in-process Directory for tests and single-node deployments
// without a database.
type Memory struct {
	mu    sync.RWMutex
	rooms map[string]Room
	now   func() time.Time
}

func NewMemory() *Memory {
	return &Memory{rooms: make(map[string]Room), now: time.Now}
}

func (m *Memory) Create(_ context.Context, owner string) (Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now().UTC()
	r := Room{
		ID:           NewRoomID(),
		Owner:        owner,
		Participants: []string{owner},
		Language:     DefaultLanguage,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	m.rooms[r.ID] = r
	return clone(r), nil
}

func (m *Memory) Get(_ context.Context, roomID string) (Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[roomID]
	if !ok {
		return Room{}, ErrNotFound
	}
	return clone(r), nil
}

func (m *Memory) AddParticipant(_ context.Context, roomID, userID string) (Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[roomID]
	if !ok {
		return Room{}, ErrNotFound
	}
	if !slices.Contains(r.Participants, userID) {
		r.Participants = append(slices.Clone(r.Participants), userID)
		r.UpdatedAt = m.now().UTC()
		m.rooms[roomID] = r
	}
	return clone(r), nil
}

func (m *Memory) Exists(_ context.Context, roomID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.rooms[roomID]
	return ok, nil
}

func clone(r Room) Room {
	r.Participants = slices.Clone(r.Participants)
	return r
}
