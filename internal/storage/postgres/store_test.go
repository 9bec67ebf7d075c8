package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"

	"github.com/R3E-Network/lottery_engine/internal/settlement"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(sqlx.NewDb(db, "postgres")), mock
}

func testRoom(t *testing.T) settlement.Room {
	t.Helper()
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	room := settlement.NewRoom(7, "admin", now)
	if err := room.Start(1, 100, now); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := room.Append(settlement.Entry{Participant: "alice", WeightedValue: 10, RawAmount: 10, PriceFactor: 1, CreatedAt: now}); err != nil {
		t.Fatalf("append: %v", err)
	}
	return room
}

func TestLoadRegistryNotInitialized(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT record FROM lottery_registry").
		WillReturnRows(sqlmock.NewRows([]string{"record"}))

	_, err := store.LoadRegistry(context.Background())
	if !errors.Is(err, settlement.ErrConfigNotInitialized) {
		t.Fatalf("LoadRegistry error = %v, want ErrConfigNotInitialized", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestLoadRegistry(t *testing.T) {
	store, mock := newMockStore(t)

	var reg settlement.Registry
	if err := reg.Initialize([]settlement.Identity{"admin"}, 5, time.Now().UTC()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	record, _ := json.Marshal(reg)
	mock.ExpectQuery("SELECT record FROM lottery_registry").
		WillReturnRows(sqlmock.NewRows([]string{"record"}).AddRow(record))

	got, err := store.LoadRegistry(context.Background())
	if err != nil {
		t.Fatalf("LoadRegistry: %v", err)
	}
	if !got.Initialized || got.CommissionRate != 5 || got.RoomCount != 1 {
		t.Fatalf("registry = %+v", got)
	}
}

func TestLoadRoom(t *testing.T) {
	store, mock := newMockStore(t)
	room := testRoom(t)
	record, _ := json.Marshal(room)

	mock.ExpectQuery("SELECT record FROM lottery_rooms WHERE id").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"record"}).AddRow(record))
	mock.ExpectQuery("SELECT record FROM lottery_rooms WHERE id").
		WithArgs(int64(8)).
		WillReturnRows(sqlmock.NewRows([]string{"record"}))

	got, err := store.LoadRoom(context.Background(), 7)
	if err != nil {
		t.Fatalf("LoadRoom: %v", err)
	}
	if got.Status != settlement.StatusInProgress || got.Total != 10 || len(got.Entries) != 1 {
		t.Fatalf("room = %+v", got)
	}

	if _, err := store.LoadRoom(context.Background(), 8); !errors.Is(err, settlement.ErrRoomNotFound) {
		t.Fatalf("LoadRoom(8) error = %v, want ErrRoomNotFound", err)
	}
}

func TestListRooms(t *testing.T) {
	store, mock := newMockStore(t)
	room := testRoom(t)
	record, _ := json.Marshal(room)

	cols := []string{"id", "status", "winner", "settled", "record", "created_at", "updated_at"}
	mock.ExpectQuery("FROM lottery_rooms").
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(int64(7), "in_progress", "", false, record, room.CreatedAt, room.UpdatedAt))

	rooms, err := store.ListRooms(context.Background(), 5)
	if err != nil {
		t.Fatalf("ListRooms: %v", err)
	}
	if len(rooms) != 1 || rooms[0].ID != 7 {
		t.Fatalf("rooms = %+v", rooms)
	}
}

func TestCommitWritesBothRecords(t *testing.T) {
	store, mock := newMockStore(t)
	room := testRoom(t)
	var reg settlement.Registry
	if err := reg.Initialize([]settlement.Identity{"admin"}, 5, time.Now().UTC()); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO lottery_registry").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO lottery_rooms").
		WithArgs(int64(7), "in_progress", "", false, sqlmock.AnyArg(), room.CreatedAt, room.UpdatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := store.Commit(context.Background(), settlement.Changes{Registry: &reg, Room: &room}); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCommitRollsBackOnFailure(t *testing.T) {
	store, mock := newMockStore(t)
	room := testRoom(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO lottery_rooms").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	if err := store.Commit(context.Background(), settlement.Changes{Room: &room}); err == nil {
		t.Fatal("expected commit error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCommitEmptyChanges(t *testing.T) {
	store, mock := newMockStore(t)
	if err := store.Commit(context.Background(), settlement.Changes{}); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		t.Fatalf("iofs: %v", err)
	}
	defer src.Close()

	version, err := src.First()
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	if version != 1 {
		t.Fatalf("first version = %d, want 1", version)
	}
	if _, _, err := src.ReadUp(version); err != nil {
		t.Fatalf("read up: %v", err)
	}
	if _, _, err := src.ReadDown(version); err != nil {
		t.Fatalf("read down: %v", err)
	}
}

func TestPostgresIntegration(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()

	if err := Migrate(dsn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	store, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	if _, err := store.db.ExecContext(ctx, `TRUNCATE lottery_rooms, lottery_registry`); err != nil {
		t.Fatalf("truncate: %v", err)
	}

	room := testRoom(t)
	if err := store.Commit(ctx, settlement.Changes{Room: &room}); err != nil {
		t.Fatalf("commit: %v", err)
	}
	room.Settled = true
	if err := store.Commit(ctx, settlement.Changes{Room: &room}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := store.LoadRoom(ctx, room.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !got.Settled || got.Total != room.Total {
		t.Fatalf("room = %+v", got)
	}
}
