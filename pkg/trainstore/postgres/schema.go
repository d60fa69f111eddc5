package postgres

import (
	"context"
	"fmt"
)

const ddl = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS training_sets (
    profile     TEXT         NOT NULL,
    dataset     TEXT         NOT NULL,
    k           INTEGER      NOT NULL DEFAULT 0,
    exemplars   INTEGER      NOT NULL DEFAULT 0,
    updated_at  TIMESTAMPTZ  NOT NULL DEFAULT now(),
    PRIMARY KEY (profile, dataset)
);

CREATE TABLE IF NOT EXISTS training_vectors (
    profile     TEXT              NOT NULL,
    dataset     TEXT              NOT NULL,
    position    INTEGER           NOT NULL,
    label       INTEGER           NOT NULL,
    features    DOUBLE PRECISION[] NOT NULL,
    embedding   vector            NOT NULL,
    PRIMARY KEY (profile, dataset, position),
    FOREIGN KEY (profile, dataset)
        REFERENCES training_sets (profile, dataset) ON DELETE CASCADE
);
`

// Migrate creates the tables and the vector extension if they do not exist.
// It is idempotent and safe to call on every start.
func Migrate(ctx context.Context, db DB) error {
	if _, err := db.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("postgres migrate: %w", err)
	}
	return nil
}
