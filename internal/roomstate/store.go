// Package roomstate holds the latest document text and language of every live room.
// Nothing here is persisted; a coordinator restart starts from empty rooms.
//
// A Store is not safe for concurrent use; it is owned by the coordinator goroutine.
package roomstate

import "unicode/utf8"

type room struct {
	code     string
	language string
}

// Store maps room ids to their code and language. Records are created on first
// use and kept for the life of the process.
type Store struct {
	rooms map[string]*room
}

// New returns an empty Store.
func New() *Store {
	return &Store{rooms: make(map[string]*room)}
}

func (s *Store) get(roomID string) *room {
	r, ok := s.rooms[roomID]
	if !ok {
		r = &room{}
		s.rooms[roomID] = r
	}
	return r
}

// Code returns the stored document text, or "" when none is stored.
func (s *Store) Code(roomID string) string {
	if r, ok := s.rooms[roomID]; ok {
		return r.code
	}
	return ""
}

// SetCode overwrites the stored code unconditionally.
func (s *Store) SetCode(roomID, code string) {
	s.get(roomID).code = code
}

func (s *Store) Language(roomID string) string {
	if r, ok := s.rooms[roomID]; ok {
		return r.language
	}
	return ""
}

func (s *Store) SetLanguage(roomID, language string) {
	s.get(roomID).language = language
}

// Seed creates the record for roomID with initial as its code. It reports false
// and changes nothing when the room already has a record, even one holding "",
// so only the first joiner of a room ever seeds it.
func (s *Store) Seed(roomID, initial string) bool {
	if _, ok := s.rooms[roomID]; ok {
		return false
	}
	s.rooms[roomID] = &room{code: initial}
	return true
}

// Sync replaces the stored code only when nothing is stored or code is strictly
// longer, counted in code points. Two divergent texts of equal length never
// converge under this rule.
func (s *Store) Sync(roomID, code string) bool {
	r := s.get(roomID)
	if r.code != "" && utf8.RuneCountInString(code) <= utf8.RuneCountInString(r.code) {
		return false
	}
	r.code = code
	return true
}

// Len reports how many rooms have a record.
func (s *Store) Len() int {
	return len(s.rooms)
}
