// Package postgres persists lottery records in PostgreSQL. Each record is
// kept as a JSONB document next to the columns used for lookups.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/R3E-Network/lottery_engine/internal/settlement"
)

// Store implements settlement.Store backed by PostgreSQL.
type Store struct {
	db *sqlx.DB
}

var _ settlement.Store = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Open connects to dsn with the lib/pq driver.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return New(db), nil
}

// Close releases the underlying pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type roomRow struct {
	ID        int64     `db:"id"`
	Status    string    `db:"status"`
	Winner    string    `db:"winner"`
	Settled   bool      `db:"settled"`
	Record    []byte    `db:"record"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (s *Store) LoadRegistry(ctx context.Context) (settlement.Registry, error) {
	var record []byte
	err := s.db.GetContext(ctx, &record, `SELECT record FROM lottery_registry WHERE id = 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return settlement.Registry{}, settlement.ErrConfigNotInitialized
	}
	if err != nil {
		return settlement.Registry{}, fmt.Errorf("load registry: %w", err)
	}

	var reg settlement.Registry
	if err := json.Unmarshal(record, &reg); err != nil {
		return settlement.Registry{}, fmt.Errorf("decode registry: %w", err)
	}
	return reg, nil
}

func (s *Store) LoadRoom(ctx context.Context, id settlement.RoomID) (settlement.Room, error) {
	var record []byte
	err := s.db.GetContext(ctx, &record, `SELECT record FROM lottery_rooms WHERE id = $1`, int64(id))
	if errors.Is(err, sql.ErrNoRows) {
		return settlement.Room{}, settlement.ErrRoomNotFound
	}
	if err != nil {
		return settlement.Room{}, fmt.Errorf("load room %d: %w", id, err)
	}
	return decodeRoom(record)
}

// ListRooms returns rooms newest first. A non-positive limit returns all.
func (s *Store) ListRooms(ctx context.Context, limit int) ([]settlement.Room, error) {
	var rows []roomRow
	var err error
	if limit > 0 {
		err = s.db.SelectContext(ctx, &rows, `
			SELECT id, status, winner, settled, record, created_at, updated_at
			FROM lottery_rooms
			ORDER BY id DESC
			LIMIT $1
		`, limit)
	} else {
		err = s.db.SelectContext(ctx, &rows, `
			SELECT id, status, winner, settled, record, created_at, updated_at
			FROM lottery_rooms
			ORDER BY id DESC
		`)
	}
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}

	out := make([]settlement.Room, 0, len(rows))
	for _, row := range rows {
		room, err := decodeRoom(row.Record)
		if err != nil {
			return nil, err
		}
		out = append(out, room)
	}
	return out, nil
}

// Commit writes the changed records in one database transaction.
func (s *Store) Commit(ctx context.Context, changes settlement.Changes) (err error) {
	if changes.Registry == nil && changes.Room == nil {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if reg := changes.Registry; reg != nil {
		record, err := json.Marshal(reg)
		if err != nil {
			return fmt.Errorf("encode registry: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO lottery_registry (id, record, updated_at)
			VALUES (1, $1, $2)
			ON CONFLICT (id) DO UPDATE SET record = EXCLUDED.record, updated_at = EXCLUDED.updated_at
		`, record, reg.UpdatedAt); err != nil {
			return fmt.Errorf("save registry: %w", err)
		}
	}

	if room := changes.Room; room != nil {
		record, err := json.Marshal(room)
		if err != nil {
			return fmt.Errorf("encode room %d: %w", room.ID, err)
		}
		row := roomRow{
			ID:        int64(room.ID), // below settlement.MaxRoomID
			Status:    room.Status.String(),
			Winner:    room.Winner.String(),
			Settled:   room.Settled,
			Record:    record,
			CreatedAt: room.CreatedAt,
			UpdatedAt: room.UpdatedAt,
		}
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO lottery_rooms (id, status, winner, settled, record, created_at, updated_at)
			VALUES (:id, :status, :winner, :settled, :record, :created_at, :updated_at)
			ON CONFLICT (id) DO UPDATE SET
				status = EXCLUDED.status,
				winner = EXCLUDED.winner,
				settled = EXCLUDED.settled,
				record = EXCLUDED.record,
				updated_at = EXCLUDED.updated_at
		`, row); err != nil {
			return fmt.Errorf("save room %d: %w", room.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func decodeRoom(record []byte) (settlement.Room, error) {
	var room settlement.Room
	if err := json.Unmarshal(record, &room); err != nil {
		return settlement.Room{}, fmt.Errorf("decode room: %w", err)
	}
	return room, nil
}
