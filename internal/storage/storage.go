// Package storage provides a SQLite-backed store for bridge opening events.
// Events are keyed by bridge and open time so re-fetching an overlapping feed
// window updates rows in place instead of duplicating them, and the table is
// rotated to keep only the most recent events.
//
// The pure-Go modernc.org/sqlite driver is used, so the binary stays cgo-free.
// Passing ":memory:" as the path gives an ephemeral store, which the tests use.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/rewired-gh/bridgecast/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id               TEXT    NOT NULL,
	bridge_id        INTEGER NOT NULL,
	bridge_name      TEXT    NOT NULL,
	open_time        INTEGER NOT NULL,
	close_time       INTEGER,
	duration_minutes REAL    NOT NULL DEFAULT 0,
	latitude         REAL    NOT NULL DEFAULT 0,
	longitude        REAL    NOT NULL DEFAULT 0,
	updated_at       INTEGER NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_events_bridge_open ON events(bridge_id, open_time);
CREATE INDEX IF NOT EXISTS idx_events_open ON events(open_time);
`

const selectColumns = `id, bridge_id, bridge_name, open_time, close_time, duration_minutes, latitude, longitude`

// Storage persists opening events in SQLite
type Storage struct {
	db        *sql.DB
	maxEvents int
}

// New opens (or creates) the database at path and applies the schema.
// maxEvents bounds the table size enforced by Rotate.
func New(maxEvents int, path string) (*Storage, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection serialises writers and keeps ":memory:" databases alive.
	db.SetMaxOpenConns(1)

	pragmas := []string{`PRAGMA busy_timeout = 5000`}
	if path != ":memory:" {
		pragmas = append(pragmas, `PRAGMA journal_mode = WAL`)
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to configure database: %w", err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Storage{db: db, maxEvents: maxEvents}, nil
}

// Close releases the database handle
func (s *Storage) Close() error {
	return s.db.Close()
}

// AddEvents upserts events in a single transaction and returns how many rows
// were written. Events without an ID are assigned one. An invalid event aborts
// the whole batch.
func (s *Storage) AddEvents(events []models.Event) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}
	for i := range events {
		if err := events[i].Validate(); err != nil {
			return 0, fmt.Errorf("invalid event %d for bridge %d: %w", i, events[i].BridgeID, err)
		}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
		INSERT INTO events (id, bridge_id, bridge_name, open_time, close_time, duration_minutes, latitude, longitude, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(bridge_id, open_time) DO UPDATE SET
			bridge_name = excluded.bridge_name,
			close_time = excluded.close_time,
			duration_minutes = excluded.duration_minutes,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			updated_at = excluded.updated_at`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UnixNano()
	written := 0
	for i := range events {
		e := &events[i]
		id := e.ID
		if id == "" {
			id = uuid.New().String()
		}
		var closeTime sql.NullInt64
		if e.CloseTime != nil {
			closeTime = sql.NullInt64{Int64: e.CloseTime.UnixNano(), Valid: true}
		}
		if _, err := stmt.Exec(id, e.BridgeID, e.BridgeName, e.OpenTime.UnixNano(), closeTime,
			e.DurationMinutes, e.Latitude, e.Longitude, now); err != nil {
			return 0, fmt.Errorf("failed to upsert event for bridge %d: %w", e.BridgeID, err)
		}
		written++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit events: %w", err)
	}
	return written, nil
}

// RecentEvents returns up to limit of the most recent events, oldest first.
// A non-positive limit returns every stored event.
func (s *Storage) RecentEvents(limit int) ([]models.Event, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(`
		SELECT `+selectColumns+` FROM (
			SELECT `+selectColumns+` FROM events ORDER BY open_time DESC, bridge_id DESC LIMIT ?
		) ORDER BY open_time ASC, bridge_id ASC`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent events: %w", err)
	}
	return scanEvents(rows)
}

// EventsForBridge returns one bridge's events opened at or after since, oldest first
func (s *Storage) EventsForBridge(bridgeID int, since time.Time) ([]models.Event, error) {
	rows, err := s.db.Query(`SELECT `+selectColumns+` FROM events
		WHERE bridge_id = ? AND open_time >= ? ORDER BY open_time ASC`, bridgeID, since.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("failed to query events for bridge %d: %w", bridgeID, err)
	}
	return scanEvents(rows)
}

// LatestOpenTime returns the newest stored open time. The boolean is false when
// the store is empty.
func (s *Storage) LatestOpenTime() (time.Time, bool, error) {
	var latest sql.NullInt64
	if err := s.db.QueryRow(`SELECT MAX(open_time) FROM events`).Scan(&latest); err != nil {
		return time.Time{}, false, fmt.Errorf("failed to query latest open time: %w", err)
	}
	if !latest.Valid {
		return time.Time{}, false, nil
	}
	return time.Unix(0, latest.Int64).UTC(), true, nil
}

// Count returns the number of stored events
func (s *Storage) Count() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return n, nil
}

// Rotate removes the oldest events beyond maxEvents and returns how many were removed
func (s *Storage) Rotate() (int, error) {
	if s.maxEvents <= 0 {
		return 0, nil
	}
	res, err := s.db.Exec(`DELETE FROM events WHERE rowid NOT IN (
		SELECT rowid FROM events ORDER BY open_time DESC, bridge_id DESC LIMIT ?)`, s.maxEvents)
	if err != nil {
		return 0, fmt.Errorf("failed to rotate events: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rotated row count: %w", err)
	}
	return int(removed), nil
}

func scanEvents(rows *sql.Rows) ([]models.Event, error) {
	defer rows.Close()

	events := make([]models.Event, 0)
	for rows.Next() {
		var (
			e         models.Event
			openTime  int64
			closeTime sql.NullInt64
		)
		if err := rows.Scan(&e.ID, &e.BridgeID, &e.BridgeName, &openTime, &closeTime,
			&e.DurationMinutes, &e.Latitude, &e.Longitude); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.OpenTime = time.Unix(0, openTime).UTC()
		if closeTime.Valid {
			ct := time.Unix(0, closeTime.Int64).UTC()
			e.CloseTime = &ct
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}
	return events, nil
}
