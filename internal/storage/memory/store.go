// Package memory provides an in-memory settlement store used by default
// and in tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/R3E-Network/lottery_engine/internal/settlement"
)

// Store keeps the registry and rooms in process memory. Records are copied
// on the way in and out so callers never share state with the store.
type Store struct {
	mu       sync.RWMutex
	registry *settlement.Registry
	rooms    map[settlement.RoomID]settlement.Room
}

var _ settlement.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{rooms: make(map[settlement.RoomID]settlement.Room)}
}

func (s *Store) LoadRegistry(ctx context.Context) (settlement.Registry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.registry == nil {
		return settlement.Registry{}, settlement.ErrConfigNotInitialized
	}
	return s.registry.Clone(), nil
}

func (s *Store) LoadRoom(ctx context.Context, id settlement.RoomID) (settlement.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	room, ok := s.rooms[id]
	if !ok {
		return settlement.Room{}, settlement.ErrRoomNotFound
	}
	return room.Clone(), nil
}

// ListRooms returns rooms newest first. A non-positive limit returns all.
func (s *Store) ListRooms(ctx context.Context, limit int) ([]settlement.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]settlement.Room, 0, len(s.rooms))
	for _, room := range s.rooms {
		out = append(out, room.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Commit applies both records under one lock.
func (s *Store) Commit(ctx context.Context, changes settlement.Changes) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if changes.Registry != nil {
		reg := changes.Registry.Clone()
		s.registry = &reg
	}
	if changes.Room != nil {
		s.rooms[changes.Room.ID] = changes.Room.Clone()
	}
	return nil
}
