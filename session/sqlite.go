package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sgrlabs/sgragent/core"
	_ "modernc.org/sqlite"
)

// SQLiteStore is a durable SessionStore keeping each session as a JSON
// snapshot row. The state column is duplicated out of the snapshot so
// operational queries (listing stuck sessions, cleanup) do not need to parse
// JSON.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database file and initializes the
// schema. WAL mode keeps concurrent readers off the writer's lock.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// A single writer plus WAL readers avoids SQLITE_BUSY under load.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS sessions (
		id            TEXT PRIMARY KEY,
		state         TEXT NOT NULL,
		snapshot_json TEXT NOT NULL,
		created_at    INTEGER NOT NULL,
		updated_at    INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Create inserts a new session row. It fails when the id is already taken.
func (s *SQLiteStore) Create(ctx context.Context, session *core.Session) error {
	snapshot, err := marshalSession(session)
	if err != nil {
		return err
	}

	now := time.Now().Unix()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, state, snapshot_json, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		session.ID, string(session.CurrentState()), snapshot, now, now,
	)
	if err != nil {
		return fmt.Errorf("insert session %s: %w", session.ID, err)
	}
	return nil
}

// Get loads a session snapshot, or core.ErrSessionNotFound.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*core.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT snapshot_json FROM sessions WHERE id = ?`, id)

	var snapshot string
	if err := row.Scan(&snapshot); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrSessionNotFound
		}
		return nil, fmt.Errorf("scan session %s: %w", id, err)
	}

	var session core.Session
	if err := json.Unmarshal([]byte(snapshot), &session); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return &session, nil
}

// Update replaces the snapshot for an existing session.
func (s *SQLiteStore) Update(ctx context.Context, session *core.Session) error {
	snapshot, err := marshalSession(session)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET state = ?, snapshot_json = ?, updated_at = ? WHERE id = ?`,
		string(session.CurrentState()), snapshot, time.Now().Unix(), session.ID,
	)
	if err != nil {
		return fmt.Errorf("update session %s: %w", session.ID, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return core.ErrSessionNotFound
	}
	return nil
}

// Delete removes a session row. Deleting an unknown id is not an error.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	return nil
}

// CleanupOlderThan removes sessions whose last update is beyond the TTL and
// reports how many were removed.
func (s *SQLiteStore) CleanupOlderThan(ctx context.Context, ttl time.Duration) (int64, error) {
	threshold := time.Now().Add(-ttl).Unix()
	result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE updated_at < ?`, threshold)
	if err != nil {
		return 0, fmt.Errorf("cleanup sessions: %w", err)
	}
	return result.RowsAffected()
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

func marshalSession(session *core.Session) (string, error) {
	snapshot, err := json.Marshal(session.Clone())
	if err != nil {
		return "", fmt.Errorf("encode session %s: %w", session.ID, err)
	}
	return string(snapshot), nil
}
