package prefs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `CREATE TABLE IF NOT EXISTS preferences (
	area       TEXT NOT NULL,
	key        TEXT NOT NULL,
	value      TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	PRIMARY KEY (area, key)
)`

// SQLite persists preferences in a SQLite file so they survive restarts.
// Change notifications reach subscribers of the same process only.
// Revisions restart from zero on every open.
type SQLite struct {
	db     *sql.DB
	hub    *hub
	logger *slog.Logger

	// writeMu spans a write transaction and its notification.
	writeMu sync.Mutex
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(ctx context.Context, path string, logger *slog.Logger) (*SQLite, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("prefs: open %s: %w", path, err)
	}
	// One writer keeps SQLite from returning SQLITE_BUSY under concurrent sets.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("prefs: ping %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("prefs: create table: %w", err)
	}
	logger.Debug("preference store opened", "path", path)
	return &SQLite{db: db, hub: newHub(logger), logger: logger}, nil
}

func (s *SQLite) Get(ctx context.Context, area, key string) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM preferences WHERE area = ? AND key = ?`, area, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("prefs: get %s/%s: %w", area, key, err)
	}
	return v, true, nil
}

func (s *SQLite) Set(ctx context.Context, area, key, value string) (uint64, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("prefs: begin: %w", err)
	}
	defer tx.Rollback()

	var old string
	err = tx.QueryRowContext(ctx,
		`SELECT value FROM preferences WHERE area = ? AND key = ?`, area, key).Scan(&old)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return 0, fmt.Errorf("prefs: read %s/%s: %w", area, key, err)
	case old == value:
		return s.hub.revision(area), nil
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO preferences (area, key, value, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (area, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		area, key, value, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("prefs: write %s/%s: %w", area, key, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("prefs: commit: %w", err)
	}
	return s.hub.publish(Change{Area: area, Key: key, OldValue: old, NewValue: value}), nil
}

func (s *SQLite) Subscribe(area string) (<-chan Change, uint64, func()) {
	return s.hub.subscribe(area)
}

// Close ends all subscriptions and closes the database.
func (s *SQLite) Close() error {
	s.hub.closeAll()
	return s.db.Close()
}
