package evidence

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// PGQuerier implements Querier against a pgx connection pool.
type PGQuerier struct {
	pool *pgxpool.Pool
}

// NewPGQuerier wraps a pgx pool as a Querier.
func NewPGQuerier(pool *pgxpool.Pool) *PGQuerier {
	return &PGQuerier{pool: pool}
}

// UpsertChunk inserts or updates one chunk row.
func (q *PGQuerier) UpsertChunk(ctx context.Context, arg UpsertChunkParams) error {
	_, err := q.pool.Exec(ctx, `
		INSERT INTO evidence_chunks (id, content, source, metadata, embedding)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			source = EXCLUDED.source,
			metadata = EXCLUDED.metadata,
			embedding = EXCLUDED.embedding`,
		arg.ID, arg.Content, arg.Source, arg.Metadata, arg.Embedding,
	)
	return err
}

// SearchChunks runs cosine similarity search, nearest first.
func (q *PGQuerier) SearchChunks(ctx context.Context, embedding pgvector.Vector, topK int) ([]ChunkRow, error) {
	rows, err := q.pool.Query(ctx, `
		SELECT id, content, source, metadata,
		       1 - (embedding <=> $1) AS similarity
		FROM evidence_chunks
		ORDER BY embedding <=> $1
		LIMIT $2`,
		embedding, topK,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (ChunkRow, error) {
		var r ChunkRow
		err := row.Scan(&r.ID, &r.Content, &r.Source, &r.Metadata, &r.Similarity)
		return r, err
	})
}

// CountChunks returns the total number of chunks.
func (q *PGQuerier) CountChunks(ctx context.Context) (int64, error) {
	var count int64
	err := q.pool.QueryRow(ctx, `SELECT COUNT(*) FROM evidence_chunks`).Scan(&count)
	return count, err
}
