package redis

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/lottery_engine/internal/settlement"
)

func TestKeys(t *testing.T) {
	s := New(nil, "")
	assert.Equal(t, "lottery:registry", s.registryKey())
	assert.Equal(t, "lottery:rooms", s.indexKey())
	assert.Equal(t, "lottery:room:42", s.roomKey(42))

	s = New(nil, "test:")
	assert.Equal(t, "test:room:1", s.roomKey(1))
}

func TestNewLockerDefaults(t *testing.T) {
	l := NewLocker(nil, "", 0, 0)
	assert.Equal(t, DefaultPrefix, l.prefix)
	assert.Equal(t, DefaultLockTTL, l.ttl)
	assert.Equal(t, DefaultLockRetry, l.retry)
}

// testClient connects to TEST_REDIS_ADDR and returns a per-test key prefix.
func testClient(t *testing.T) (*redis.Client, string) {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { client.Close() })
	require.NoError(t, client.Ping(context.Background()).Err())
	return client, "test:" + uuid.NewString() + ":"
}

func TestStoreRoundTrip(t *testing.T) {
	client, prefix := testClient(t)
	store := New(client, prefix)
	ctx := context.Background()

	_, err := store.LoadRegistry(ctx)
	assert.ErrorIs(t, err, settlement.ErrConfigNotInitialized)
	_, err = store.LoadRoom(ctx, 1)
	assert.ErrorIs(t, err, settlement.ErrRoomNotFound)

	now := time.Now().UTC()
	var reg settlement.Registry
	require.NoError(t, reg.Initialize([]settlement.Identity{"admin"}, 5, now))
	for id := settlement.RoomID(1); id <= 3; id++ {
		room := settlement.NewRoom(id, "admin", now)
		require.NoError(t, room.Start(1, 10, now))
		require.NoError(t, store.Commit(ctx, settlement.Changes{Registry: &reg, Room: &room}))
	}

	got, err := store.LoadRegistry(ctx)
	require.NoError(t, err)
	assert.Equal(t, reg.Administrators, got.Administrators)

	rooms, err := store.ListRooms(ctx, 2)
	require.NoError(t, err)
	require.Len(t, rooms, 2)
	assert.Equal(t, settlement.RoomID(3), rooms[0].ID)
	assert.Equal(t, settlement.RoomID(2), rooms[1].ID)

	all, err := store.ListRooms(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestLockerExcludes(t *testing.T) {
	client, prefix := testClient(t)
	l := NewLocker(client, prefix, time.Second, 10*time.Millisecond)

	unlock, err := l.Lock(context.Background(), "engine")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "engine")
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "err = %v", err)

	unlock()
	again, err := l.Lock(context.Background(), "engine")
	require.NoError(t, err)
	again()
}
