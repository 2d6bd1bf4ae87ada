// Package collab holds the ephemeral editor state of live rooms.
package collab

import (
	"codepair/internal/model"
	"sync"
)

// Store caches the latest code, language and run output per room so late
// joiners can catch up. Rooms are independent: an update to one never waits
// on another. An evicted room stays closed; later updates to it are dropped.
type Store struct {
	mu     sync.Mutex
	rooms  map[string]*roomState
	closed map[string]struct{}
}

type roomState struct {
	mu    sync.Mutex
	state model.RoomState
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		rooms:  make(map[string]*roomState),
		closed: make(map[string]struct{}),
	}
}

// room returns the entry for roomID, creating it when create is set and the
// room is not closed.
func (s *Store) room(roomID string, create bool) *roomState {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[roomID]
	if _, closed := s.closed[roomID]; !ok && create && !closed {
		r = &roomState{}
		s.rooms[roomID] = r
	}
	return r
}

// Snapshot returns a copy of the room's state and whether any exists.
func (s *Store) Snapshot(roomID string) (model.RoomState, bool) {
	r := s.room(roomID, false)
	if r == nil {
		return model.RoomState{}, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return copyState(r.state), true
}

// MergeCode records the room's latest code and language.
func (s *Store) MergeCode(roomID string, change model.CodeChange) {
	r := s.room(roomID, true)
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.Code = change.Code
	if change.Language != "" {
		r.state.Language = change.Language
	}
}

// MergeOutput records the room's latest run output.
func (s *Store) MergeOutput(roomID string, output *model.RunOutput) {
	r := s.room(roomID, true)
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.Output = copyOutput(output)
}

// ResetEditor clears code and output, keeping the language, and returns
// the resulting state.
func (s *Store) ResetEditor(roomID string) model.RoomState {
	r := s.room(roomID, true)
	if r == nil {
		return model.RoomState{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.Code = ""
	r.state.Output = nil
	return copyState(r.state)
}

// Evict forgets the room and closes it for good. Room ids are never reused,
// so the closed set only grows by one id per ended session.
func (s *Store) Evict(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, roomID)
	s.closed[roomID] = struct{}{}
}

// Closed reports whether the room has been evicted.
func (s *Store) Closed(roomID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.closed[roomID]
	return ok
}

// Len returns the number of rooms with cached state.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms)
}

func copyState(st model.RoomState) model.RoomState {
	st.Output = copyOutput(st.Output)
	return st
}

func copyOutput(o *model.RunOutput) *model.RunOutput {
	if o == nil {
		return nil
	}
	c := *o
	return &c
}
