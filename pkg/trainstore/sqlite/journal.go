package sqlite

import (
	"context"
	"fmt"
	"time"
)

// Entry is one journaled classification event.
type Entry struct {
	SessionID   string
	Profile     string
	Detector    string
	Label       int
	Name        string
	SampleIndex int64
	Count       int

	// Votes is a compact rendering of the vote tally, e.g. "0:3 2:2".
	Votes string

	OccurredAt time.Time
}

// Append writes entries to the journal in one transaction.
func (s *Store) Append(ctx context.Context, entries ...Entry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite journal: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO events
		    (session_id, profile, detector, label, name, sample_index, count, votes, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("sqlite journal: prepare: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx,
			e.SessionID, e.Profile, e.Detector, e.Label, e.Name,
			e.SampleIndex, e.Count, e.Votes, e.OccurredAt.UTC(),
		); err != nil {
			return fmt.Errorf("sqlite journal: insert: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite journal: commit: %w", err)
	}
	return nil
}

// Recent returns up to limit journal entries of sessionID, newest first. An
// empty sessionID matches every session.
func (s *Store) Recent(ctx context.Context, sessionID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	q := `SELECT session_id, profile, detector, label, name, sample_index, count, votes, occurred_at
	      FROM events`
	args := []any{}
	if sessionID != "" {
		q += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}
	q += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite journal: query: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.SessionID, &e.Profile, &e.Detector, &e.Label, &e.Name,
			&e.SampleIndex, &e.Count, &e.Votes, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("sqlite journal: scan: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
