package gapfill

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PGTracker records ingested articles in the ingested_papers table.
type PGTracker struct {
	pool *pgxpool.Pool
}

// NewPGTracker creates a tracker over an existing pool.
func NewPGTracker(pool *pgxpool.Pool) *PGTracker {
	return &PGTracker{pool: pool}
}

func (t *PGTracker) IsIngested(ctx context.Context, pmcid string) (bool, error) {
	var exists bool
	err := t.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM ingested_papers WHERE pmcid = $1)`, pmcid,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check ingested paper: %w", err)
	}
	return exists, nil
}

// MarkIngested is idempotent; re-marking a known article is a no-op.
func (t *PGTracker) MarkIngested(ctx context.Context, pmcid, title, gapQuery string) error {
	_, err := t.pool.Exec(ctx,
		`INSERT INTO ingested_papers (pmcid, title, gap_query)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (pmcid) DO NOTHING`, pmcid, title, gapQuery)
	if err != nil {
		return fmt.Errorf("mark paper ingested: %w", err)
	}
	return nil
}
