// Package redis keeps lottery records in Redis and provides a lock that
// serializes engine operations across processes.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/go-redis/redis/v8"

	"github.com/R3E-Network/lottery_engine/internal/settlement"
)

// DefaultPrefix namespaces every key the store writes.
const DefaultPrefix = "lottery:"

// Store implements settlement.Store on a Redis client.
type Store struct {
	client redis.UniversalClient
	prefix string
}

var _ settlement.Store = (*Store)(nil)

// New creates a Store. An empty prefix uses DefaultPrefix.
func New(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{client: client, prefix: prefix}
}

func (s *Store) registryKey() string { return s.prefix + "registry" }
func (s *Store) indexKey() string    { return s.prefix + "rooms" }

func (s *Store) roomKey(id settlement.RoomID) string {
	return s.prefix + "room:" + id.String()
}

func (s *Store) LoadRegistry(ctx context.Context) (settlement.Registry, error) {
	data, err := s.client.Get(ctx, s.registryKey()).Bytes()
	if errors.Is(err, redis.Nil) {
		return settlement.Registry{}, settlement.ErrConfigNotInitialized
	}
	if err != nil {
		return settlement.Registry{}, fmt.Errorf("load registry: %w", err)
	}
	var reg settlement.Registry
	if err := json.Unmarshal(data, &reg); err != nil {
		return settlement.Registry{}, fmt.Errorf("decode registry: %w", err)
	}
	return reg, nil
}

func (s *Store) LoadRoom(ctx context.Context, id settlement.RoomID) (settlement.Room, error) {
	data, err := s.client.Get(ctx, s.roomKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return settlement.Room{}, settlement.ErrRoomNotFound
	}
	if err != nil {
		return settlement.Room{}, fmt.Errorf("load room %d: %w", id, err)
	}
	return decodeRoom(data)
}

// ListRooms returns rooms newest first. A non-positive limit returns all.
func (s *Store) ListRooms(ctx context.Context, limit int) ([]settlement.Room, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	ids, err := s.client.ZRevRange(ctx, s.indexKey(), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, 0, len(ids))
	for _, raw := range ids {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("room index entry %q: %w", raw, err)
		}
		keys = append(keys, s.roomKey(settlement.RoomID(id)))
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load rooms: %w", err)
	}

	out := make([]settlement.Room, 0, len(values))
	for _, v := range values {
		str, ok := v.(string)
		if !ok {
			continue
		}
		room, err := decodeRoom([]byte(str))
		if err != nil {
			return nil, err
		}
		out = append(out, room)
	}
	return out, nil
}

// Commit writes the changed records in one MULTI/EXEC block.
func (s *Store) Commit(ctx context.Context, changes settlement.Changes) error {
	if changes.Registry == nil && changes.Room == nil {
		return nil
	}

	var regData, roomData []byte
	var err error
	if changes.Registry != nil {
		if regData, err = json.Marshal(changes.Registry); err != nil {
			return fmt.Errorf("encode registry: %w", err)
		}
	}
	if changes.Room != nil {
		if roomData, err = json.Marshal(changes.Room); err != nil {
			return fmt.Errorf("encode room %d: %w", changes.Room.ID, err)
		}
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if regData != nil {
			pipe.Set(ctx, s.registryKey(), regData, 0)
		}
		if room := changes.Room; room != nil {
			pipe.Set(ctx, s.roomKey(room.ID), roomData, 0)
			// Exact as a score: ids stay below settlement.MaxRoomID.
			pipe.ZAdd(ctx, s.indexKey(), &redis.Z{Score: float64(room.ID), Member: room.ID.String()})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func decodeRoom(data []byte) (settlement.Room, error) {
	var room settlement.Room
	if err := json.Unmarshal(data, &room); err != nil {
		return settlement.Room{}, fmt.Errorf("decode room: %w", err)
	}
	return room, nil
}
