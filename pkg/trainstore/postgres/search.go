package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/MrWong99/earsense/pkg/classify"
	"github.com/MrWong99/earsense/pkg/trainstore"
)

// Searcher runs nearest-neighbour queries against one stored set using the
// pgvector L2 distance operator. Only exemplars with the query's dimension
// are considered.
type Searcher struct {
	db  DB
	key trainstore.Key
}

var _ classify.Searcher = (*Searcher)(nil)

// Searcher returns a [classify.Searcher] over the set stored under key.
func (s *Store) Searcher(key trainstore.Key) *Searcher {
	return &Searcher{db: s.db, key: key}
}

// Nearest implements [classify.Searcher].
func (s *Searcher) Nearest(ctx context.Context, query []float64, k int) ([]classify.Neighbor, error) {
	if len(query) == 0 {
		return nil, nil
	}
	rows, err := s.db.Query(ctx, `
		SELECT label, embedding <-> $3 AS distance
		FROM   training_vectors
		WHERE  profile = $1 AND dataset = $2 AND vector_dims(embedding) = $4
		ORDER  BY distance, position
		LIMIT  $5`,
		s.key.Profile, s.key.Dataset, pgvector.NewVector(toFloat32(query)), len(query), max(k, 1),
	)
	if err != nil {
		return nil, fmt.Errorf("postgres search %s: %w", s.key, err)
	}
	nn, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (classify.Neighbor, error) {
		var n classify.Neighbor
		err := row.Scan(&n.Label, &n.Distance)
		return n, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres search %s: scan: %w", s.key, err)
	}
	return nn, nil
}
