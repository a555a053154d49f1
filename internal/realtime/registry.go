package realtime

import (
	"sync"

	"github.com/enpointe/notes/internal/notes"
)

// Registry tracks which sessions joined which note rooms.
type Registry struct {
	mu          sync.RWMutex
	rooms       map[notes.NoteID]map[string]*Session
	memberships map[string]map[notes.NoteID]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		rooms:       make(map[notes.NoteID]map[string]*Session),
		memberships: make(map[string]map[notes.NoteID]struct{}),
	}
}

// Join adds the session to the note room. Joining twice is a no-op.
func (r *Registry) Join(session *Session, noteID notes.NoteID) {
	if session == nil || noteID == "" || session.Closed() {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[noteID]
	if !ok {
		room = make(map[string]*Session)
		r.rooms[noteID] = room
	}
	room[session.ID()] = session
	joined, ok := r.memberships[session.ID()]
	if !ok {
		joined = make(map[notes.NoteID]struct{})
		r.memberships[session.ID()] = joined
	}
	joined[noteID] = struct{}{}
}

// Broadcast queues event for every session in the room, the sender included, and returns how
// many sessions accepted it.
func (r *Registry) Broadcast(noteID notes.NoteID, event Outbound) int {
	r.mu.RLock()
	room := r.rooms[noteID]
	if len(room) == 0 {
		r.mu.RUnlock()
		return 0
	}
	recipients := make([]*Session, 0, len(room))
	for _, session := range room {
		recipients = append(recipients, session)
	}
	r.mu.RUnlock()

	delivered := 0
	for _, session := range recipients {
		if session.Send(event) {
			delivered++
		}
	}
	return delivered
}

// LeaveAll removes the session from every room it joined.
func (r *Registry) LeaveAll(session *Session) {
	if session == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for noteID := range r.memberships[session.ID()] {
		room := r.rooms[noteID]
		delete(room, session.ID())
		if len(room) == 0 {
			delete(r.rooms, noteID)
		}
	}
	delete(r.memberships, session.ID())
}

// Members returns the number of sessions in the room.
func (r *Registry) Members(noteID notes.NoteID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[noteID])
}

// IsMember reports whether the session has joined the room.
func (r *Registry) IsMember(session *Session, noteID notes.NoteID) bool {
	if session == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.memberships[session.ID()][noteID]
	return ok
}
