// Package registry tracks the live rooms and serializes access to each one.
// Room state is never handed out directly; every read or mutation runs
// inside WithRoom under that room's own lock, so two rooms never contend
// with each other and no caller can touch a room unlocked.
package registry

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/cory-johannsen/sketch/internal/game/room"
)

// ErrRoomNotFound is returned when the requested room does not exist.
var ErrRoomNotFound = errors.New("room not found")

// WordFactory builds the word source for a newly created room.
type WordFactory func() room.WordSource

type entry struct {
	mu   sync.Mutex
	room *room.Room
}

// Registry is the set of live rooms. All methods are safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	rooms    map[string]*entry
	opts     room.Options
	newWords WordFactory
}

// New creates an empty Registry. Rooms created through it inherit opts and
// draw words from a fresh source built by newWords.
//
// Precondition: newWords must be non-nil.
func New(opts room.Options, newWords WordFactory) *Registry {
	return &Registry{
		rooms:    make(map[string]*entry),
		opts:     opts,
		newWords: newWords,
	}
}

// GetOrCreate resolves a room for a joining player. A non-empty ID returns
// the existing room with that ID, creating it if absent. An empty ID is a
// matchmaking request: the first waiting room with a free slot is reused,
// otherwise a new room with a generated ID is created.
//
// Postcondition: the returned ID names a room present in the registry, and
// created reports whether this call brought it into existence.
func (g *Registry) GetOrCreate(id string) (roomID string, created bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if id != "" {
		if _, ok := g.rooms[id]; ok {
			return id, false
		}
		g.createLocked(id)
		return id, true
	}

	maxPlayers := g.opts.MaxPlayers
	if maxPlayers <= 0 {
		maxPlayers = room.DefaultMaxPlayers
	}
	for rid, e := range g.rooms {
		e.mu.Lock()
		open := e.room.Status() == room.StatusWaiting && e.room.PlayerCount() < maxPlayers
		e.mu.Unlock()
		if open {
			return rid, false
		}
	}

	rid := uuid.NewString()
	g.createLocked(rid)
	return rid, true
}

// Create makes a fresh room with a generated ID, bypassing matchmaking.
func (g *Registry) Create() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := uuid.NewString()
	g.createLocked(id)
	return id
}

func (g *Registry) createLocked(id string) {
	opts := g.opts
	opts.Seed = 0 // each room seeds its own rng
	g.rooms[id] = &entry{room: room.New(id, g.newWords(), opts)}
}

// WithRoom runs fn with exclusive access to the named room. The room must
// not escape fn.
func (g *Registry) WithRoom(id string, fn func(r *room.Room) error) error {
	g.mu.RLock()
	e, ok := g.rooms[id]
	g.mu.RUnlock()
	if !ok {
		return ErrRoomNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e.room)
}

// RemoveIfEmpty drops the room when its last player has left. Returns true
// if the room was removed.
func (g *Registry) RemoveIfEmpty(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	e, ok := g.rooms[id]
	if !ok {
		return false
	}
	e.mu.Lock()
	empty := e.room.PlayerCount() == 0
	e.mu.Unlock()
	if !empty {
		return false
	}
	delete(g.rooms, id)
	return true
}

// RoomCount returns the number of live rooms.
func (g *Registry) RoomCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.rooms)
}

// Snapshot returns an outward-facing view of every room, projected with no
// recipient so no secret word can appear. Ordering is unspecified.
func (g *Registry) Snapshot() []room.View {
	g.mu.RLock()
	entries := make([]*entry, 0, len(g.rooms))
	for _, e := range g.rooms {
		entries = append(entries, e)
	}
	g.mu.RUnlock()

	views := make([]room.View, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		views = append(views, e.room.View(""))
		e.mu.Unlock()
	}
	return views
}
