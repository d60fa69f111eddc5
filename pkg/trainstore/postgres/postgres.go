// Package postgres stores training sets in PostgreSQL, one row per exemplar,
// with the feature vector kept both as a double precision[] (exact) and as a
// pgvector embedding for nearest-neighbour search.
//
// The pgvector extension must be available; [Migrate] installs it via CREATE
// EXTENSION IF NOT EXISTS.
//
// Usage:
//
//	store, err := postgres.New(ctx, dsn)
//	if err != nil { … }
//	_ = store.Save(ctx, key, ts)
//	c := classify.NewSearchKNN(store.Searcher(key), 3)
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/MrWong99/earsense/pkg/classify"
	"github.com/MrWong99/earsense/pkg/trainstore"
)

// DB is the subset of [pgxpool.Pool] used by the store.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// ErrEmptyVector is returned by [Store.Save] for an exemplar without
// features; pgvector columns need at least one dimension.
var ErrEmptyVector = errors.New("postgres store: exemplar has no features")

// Store is a PostgreSQL-backed [trainstore.Store]. All methods are safe for
// concurrent use.
type Store struct {
	db   DB
	pool *pgxpool.Pool
}

var _ trainstore.Store = (*Store)(nil)

// New connects to dsn, registers pgvector types on every connection and runs
// [Migrate].
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}
	return &Store{db: pool, pool: pool}, nil
}

// NewWithDB wraps an existing connection. The caller keeps ownership of db;
// Close is then a no-op.
func NewWithDB(db DB) *Store { return &Store{db: db} }

// Ping checks database connectivity. It satisfies the health checker
// signature.
func (s *Store) Ping(ctx context.Context) error {
	if s.pool == nil {
		return nil
	}
	return s.pool.Ping(ctx)
}

// Load implements [trainstore.Store].
func (s *Store) Load(ctx context.Context, key trainstore.Key) (classify.TrainingSet, error) {
	if err := key.Validate(); err != nil {
		return classify.TrainingSet{}, err
	}
	var k, want int
	err := s.db.QueryRow(ctx,
		`SELECT k, exemplars FROM training_sets WHERE profile = $1 AND dataset = $2`,
		key.Profile, key.Dataset,
	).Scan(&k, &want)
	if errors.Is(err, pgx.ErrNoRows) {
		return classify.TrainingSet{}, nil
	}
	if err != nil {
		return classify.TrainingSet{}, fmt.Errorf("postgres store: load %s: %w", key, err)
	}

	ts := classify.TrainingSet{K: k, Features: [][]float64{}, Labels: []int{}}
	rows, err := s.db.Query(ctx, `
		SELECT label, features
		FROM   training_vectors
		WHERE  profile = $1 AND dataset = $2
		ORDER  BY position`, key.Profile, key.Dataset)
	if err != nil {
		return classify.TrainingSet{}, fmt.Errorf("postgres store: load %s: %w", key, err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			label    int
			features []float64
		)
		if err := rows.Scan(&label, &features); err != nil {
			return classify.TrainingSet{}, fmt.Errorf("postgres store: scan %s: %w", key, err)
		}
		ts.Append(features, label)
	}
	if err := rows.Err(); err != nil {
		return classify.TrainingSet{}, fmt.Errorf("postgres store: load %s: %w", key, err)
	}
	if ts.Len() != want {
		return classify.TrainingSet{}, &trainstore.CorruptModelError{
			Key:    key,
			Reason: fmt.Sprintf("header lists %d exemplars, found %d", want, ts.Len()),
		}
	}
	return ts, nil
}

// Save implements [trainstore.Store]. The old set is deleted and the new one
// inserted in a single transaction.
func (s *Store) Save(ctx context.Context, key trainstore.Key, ts classify.TrainingSet) error {
	if err := key.Validate(); err != nil {
		return err
	}
	if err := ts.Validate(); err != nil {
		return fmt.Errorf("postgres store: save %s: %w", key, err)
	}
	for i, f := range ts.Features {
		if len(f) == 0 {
			return fmt.Errorf("%w: save %s: exemplar %d", ErrEmptyVector, key, i)
		}
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres store: begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if _, err := tx.Exec(ctx, `
		INSERT INTO training_sets (profile, dataset, k, exemplars, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (profile, dataset) DO UPDATE SET
		    k          = EXCLUDED.k,
		    exemplars  = EXCLUDED.exemplars,
		    updated_at = EXCLUDED.updated_at`,
		key.Profile, key.Dataset, ts.K, ts.Len(),
	); err != nil {
		return fmt.Errorf("postgres store: save %s: upsert: %w", key, err)
	}
	if _, err := tx.Exec(ctx,
		`DELETE FROM training_vectors WHERE profile = $1 AND dataset = $2`,
		key.Profile, key.Dataset,
	); err != nil {
		return fmt.Errorf("postgres store: save %s: clear: %w", key, err)
	}

	rows := make([][]any, ts.Len())
	for i, f := range ts.Features {
		rows[i] = []any{key.Profile, key.Dataset, i, ts.Labels[i], f, pgvector.NewVector(toFloat32(f))}
	}
	if _, err := tx.CopyFrom(ctx,
		pgx.Identifier{"training_vectors"},
		[]string{"profile", "dataset", "position", "label", "features", "embedding"},
		pgx.CopyFromRows(rows),
	); err != nil {
		return fmt.Errorf("postgres store: save %s: copy: %w", key, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres store: commit: %w", err)
	}
	return nil
}

// Datasets implements [trainstore.Store].
func (s *Store) Datasets(ctx context.Context, profile string) ([]string, error) {
	if err := trainstore.ValidateName(profile); err != nil {
		return nil, fmt.Errorf("%w: profile: %v", trainstore.ErrInvalidKey, err)
	}
	rows, err := s.db.Query(ctx,
		`SELECT dataset FROM training_sets WHERE profile = $1 ORDER BY dataset`, profile)
	if err != nil {
		return nil, fmt.Errorf("postgres store: list %s: %w", profile, err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("postgres store: list %s: %w", profile, err)
	}
	if names == nil {
		names = []string{}
	}
	return names, nil
}

// Close implements [trainstore.Store]. It releases the pool when the store
// created it.
func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func toFloat32(f []float64) []float32 {
	out := make([]float32, len(f))
	for i, v := range f {
		out[i] = float32(v)
	}
	return out
}
