package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/R3E-Network/lottery_engine/internal/settlement"
)

func TestStore_LoadMissing(t *testing.T) {
	s := New()
	ctx := context.Background()

	if _, err := s.LoadRegistry(ctx); !errors.Is(err, settlement.ErrConfigNotInitialized) {
		t.Fatalf("LoadRegistry error = %v, want ErrConfigNotInitialized", err)
	}
	if _, err := s.LoadRoom(ctx, 1); !errors.Is(err, settlement.ErrRoomNotFound) {
		t.Fatalf("LoadRoom error = %v, want ErrRoomNotFound", err)
	}
}

func TestStore_CommitAndLoad(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now().UTC()

	var reg settlement.Registry
	if err := reg.Initialize([]settlement.Identity{"admin"}, 5, now); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	room := settlement.NewRoom(1, "admin", now)
	if err := room.Start(1, 100, now); err != nil {
		t.Fatalf("start: %v", err)
	}

	if err := s.Commit(ctx, settlement.Changes{Registry: &reg, Room: &room}); err != nil {
		t.Fatalf("commit: %v", err)
	}

	// Mutating the caller's copy must not leak into the store.
	room.Entries = append(room.Entries, settlement.Entry{Participant: "a", WeightedValue: 1})
	reg.Administrators[0] = "mallory"

	gotReg, err := s.LoadRegistry(ctx)
	if err != nil {
		t.Fatalf("load registry: %v", err)
	}
	if gotReg.Administrators[0] != "admin" {
		t.Errorf("administrator = %q, want admin", gotReg.Administrators[0])
	}

	gotRoom, err := s.LoadRoom(ctx, 1)
	if err != nil {
		t.Fatalf("load room: %v", err)
	}
	if len(gotRoom.Entries) != 0 {
		t.Errorf("entries = %d, want 0", len(gotRoom.Entries))
	}
	if gotRoom.Status != settlement.StatusInProgress {
		t.Errorf("status = %v, want in_progress", gotRoom.Status)
	}
}

func TestStore_ListRooms(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now().UTC()

	for id := settlement.RoomID(1); id <= 3; id++ {
		room := settlement.NewRoom(id, "admin", now)
		if err := s.Commit(ctx, settlement.Changes{Room: &room}); err != nil {
			t.Fatalf("commit: %v", err)
		}
	}

	rooms, err := s.ListRooms(ctx, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rooms) != 2 {
		t.Fatalf("len = %d, want 2", len(rooms))
	}
	if rooms[0].ID != 3 || rooms[1].ID != 2 {
		t.Errorf("order = [%d %d], want [3 2]", rooms[0].ID, rooms[1].ID)
	}

	all, _ := s.ListRooms(ctx, 0)
	if len(all) != 3 {
		t.Errorf("len = %d, want 3", len(all))
	}
}

func TestStore_CommitCancelled(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	room := settlement.NewRoom(1, "admin", time.Now())
	if err := s.Commit(ctx, settlement.Changes{Room: &room}); err == nil {
		t.Fatal("expected error for cancelled context")
	}
	if _, err := s.LoadRoom(context.Background(), 1); !errors.Is(err, settlement.ErrRoomNotFound) {
		t.Errorf("room should not be stored, err = %v", err)
	}
}
