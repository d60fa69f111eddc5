// Package sqlite stores training sets in a single SQLite database, one row
// per key holding the binary-encoded set. Saves are one upsert inside a
// transaction. The same database carries an append-only journal of
// classified events.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver registration

	"github.com/MrWong99/earsense/pkg/classify"
	"github.com/MrWong99/earsense/pkg/trainstore"
)

const schema = `
CREATE TABLE IF NOT EXISTS training_sets (
    profile    TEXT     NOT NULL,
    dataset    TEXT     NOT NULL,
    k          INTEGER  NOT NULL DEFAULT 0,
    exemplars  INTEGER  NOT NULL DEFAULT 0,
    payload    BLOB     NOT NULL,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (profile, dataset)
);

CREATE TABLE IF NOT EXISTS events (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id   TEXT     NOT NULL,
    profile      TEXT     NOT NULL DEFAULT '',
    detector     TEXT     NOT NULL,
    label        INTEGER  NOT NULL,
    name         TEXT     NOT NULL DEFAULT '',
    sample_index INTEGER  NOT NULL DEFAULT 0,
    count        INTEGER  NOT NULL DEFAULT 0,
    votes        TEXT     NOT NULL DEFAULT '',
    occurred_at  DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id);
CREATE INDEX IF NOT EXISTS idx_events_occurred ON events(occurred_at);
`

// Store is a SQLite-backed [trainstore.Store] and event journal.
type Store struct {
	db *sql.DB
}

var _ trainstore.Store = (*Store)(nil)

// New opens (creating if needed) the database at dsn, which is a file path
// optionally followed by go-sqlite3 query parameters, and ensures the schema.
func New(ctx context.Context, dsn string) (*Store, error) {
	path := dsn
	if idx := strings.Index(dsn, "?"); idx != -1 {
		path = dsn[:idx]
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" && !strings.HasPrefix(path, ":memory:") {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite store: create directory: %w", err)
		}
	}
	if !strings.Contains(dsn, "_busy_timeout") {
		if strings.Contains(dsn, "?") {
			dsn += "&_busy_timeout=5000"
		} else {
			dsn += "?_busy_timeout=5000"
		}
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite store: ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite store: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Ping checks that the database file is still usable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Load implements [trainstore.Store].
func (s *Store) Load(ctx context.Context, key trainstore.Key) (classify.TrainingSet, error) {
	if err := key.Validate(); err != nil {
		return classify.TrainingSet{}, err
	}
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM training_sets WHERE profile = ? AND dataset = ?`,
		key.Profile, key.Dataset,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return classify.TrainingSet{}, nil
	}
	if err != nil {
		return classify.TrainingSet{}, fmt.Errorf("sqlite store: load %s: %w", key, err)
	}
	ts, err := trainstore.Unmarshal(payload)
	if err != nil {
		return classify.TrainingSet{}, trainstore.WithKey(err, key)
	}
	return ts, nil
}

// Save implements [trainstore.Store].
func (s *Store) Save(ctx context.Context, key trainstore.Key, ts classify.TrainingSet) error {
	if err := key.Validate(); err != nil {
		return err
	}
	payload, err := trainstore.Marshal(ts)
	if err != nil {
		return fmt.Errorf("sqlite store: save %s: %w", key, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite store: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO training_sets (profile, dataset, k, exemplars, payload, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (profile, dataset) DO UPDATE SET
		    k          = excluded.k,
		    exemplars  = excluded.exemplars,
		    payload    = excluded.payload,
		    updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("sqlite store: prepare: %w", err)
	}
	defer stmt.Close()

	if _, err := stmt.ExecContext(ctx, key.Profile, key.Dataset, ts.K, ts.Len(), payload, time.Now().UTC()); err != nil {
		return fmt.Errorf("sqlite store: save %s: %w", key, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite store: commit: %w", err)
	}
	return nil
}

// Datasets implements [trainstore.Store].
func (s *Store) Datasets(ctx context.Context, profile string) ([]string, error) {
	if err := trainstore.ValidateName(profile); err != nil {
		return nil, fmt.Errorf("%w: profile: %v", trainstore.ErrInvalidKey, err)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT dataset FROM training_sets WHERE profile = ? ORDER BY dataset`, profile)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: list %s: %w", profile, err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("sqlite store: scan: %w", err)
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// Close implements [trainstore.Store].
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
