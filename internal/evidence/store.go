// Package evidence provides semantic search over a corpus of research
// paper fragments using PostgreSQL + pgvector.
//
// Store embeds query text with the configured AI embedder and runs
// cosine similarity search against the evidence_chunks table. The
// corpus is append-mostly: gap filling upserts new chunks between
// evaluation batches, never concurrently with an in-flight search.
package evidence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/firebase/genkit/go/ai"
	"github.com/pgvector/pgvector-go"
)

// Querier defines the database operations the store needs. Defined on
// the consumer side so tests can substitute a mock.
type Querier interface {
	// UpsertChunk inserts or updates a chunk by ID.
	UpsertChunk(ctx context.Context, arg UpsertChunkParams) error

	// SearchChunks returns the topK nearest chunks by cosine distance.
	SearchChunks(ctx context.Context, embedding pgvector.Vector, topK int) ([]ChunkRow, error)

	// CountChunks returns the corpus size.
	CountChunks(ctx context.Context) (int64, error)
}

// UpsertChunkParams carries one chunk row for insertion.
type UpsertChunkParams struct {
	ID        string
	Content   string
	Source    string
	Metadata  []byte
	Embedding pgvector.Vector
}

// ChunkRow is one search result row.
type ChunkRow struct {
	ID         string
	Content    string
	Source     string
	Metadata   []byte
	Similarity float32
}

// chunkMetadata is the JSONB payload stored alongside each chunk.
type chunkMetadata struct {
	Title   string `json:"title,omitempty"`
	Journal string `json:"journal,omitempty"`
	Year    string `json:"year,omitempty"`
	Section string `json:"section,omitempty"`
}

// Store manages evidence chunks with vector search capabilities.
// It handles embedding generation and similarity search.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	queries  Querier
	embedder ai.Embedder
	logger   *slog.Logger
}

// New creates a Store.
// A nil logger falls back to slog.Default().
func New(querier Querier, embedder ai.Embedder, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		queries:  querier,
		embedder: embedder,
		logger:   logger,
	}
}

// Add embeds and upserts documents into the corpus. Existing IDs are
// overwritten, so re-ingesting a paper is idempotent.
func (s *Store) Add(ctx context.Context, docs []Document) error {
	for _, doc := range docs {
		embedding, err := s.embed(ctx, doc.Content)
		if err != nil {
			return fmt.Errorf("embedding document %q: %w", doc.ID, err)
		}

		metadata, err := json.Marshal(chunkMetadata{
			Title:   doc.Title,
			Journal: doc.Journal,
			Year:    doc.Year,
			Section: doc.Section,
		})
		if err != nil {
			return fmt.Errorf("marshaling metadata for %q: %w", doc.ID, err)
		}

		err = s.queries.UpsertChunk(ctx, UpsertChunkParams{
			ID:        doc.ID,
			Content:   doc.Content,
			Source:    doc.SourceID,
			Metadata:  metadata,
			Embedding: embedding,
		})
		if err != nil {
			return fmt.Errorf("upserting chunk %q: %w", doc.ID, err)
		}

		s.logger.Debug("added evidence chunk", "id", doc.ID, "content_length", len(doc.Content))
	}
	return nil
}

// Search returns the most similar excerpts to the query, ordered by
// similarity. A per-search timeout covers the embedding call and the
// vector query.
//
// Example:
//
//	excerpts, err := store.Search(ctx, "magnesium glycinate sleep onset",
//	    evidence.WithTopK(3))
func (s *Store) Search(ctx context.Context, query string, opts ...SearchOption) ([]Excerpt, error) {
	cfg := buildSearchConfig(opts)

	queryCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	embedding, err := s.embed(queryCtx, query)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("embedding generation timeout: %w", err)
		}
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	rows, err := s.queries.SearchChunks(queryCtx, embedding, cfg.topK)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("search query timeout: %w", err)
		}
		return nil, fmt.Errorf("search failed: %w", err)
	}

	excerpts := make([]Excerpt, 0, len(rows))
	for _, row := range rows {
		var meta chunkMetadata
		if len(row.Metadata) > 0 {
			if err := json.Unmarshal(row.Metadata, &meta); err != nil {
				s.logger.Warn("skipping chunk with malformed metadata", "id", row.ID, "error", err)
				continue
			}
		}
		excerpts = append(excerpts, Excerpt{
			Document: Document{
				ID:       row.ID,
				Content:  row.Content,
				SourceID: row.Source,
				Title:    meta.Title,
				Journal:  meta.Journal,
				Year:     meta.Year,
				Section:  meta.Section,
			},
			Relevance: row.Similarity,
		})
	}
	return excerpts, nil
}

// Count returns the number of chunks in the corpus.
func (s *Store) Count(ctx context.Context) (int, error) {
	count, err := s.queries.CountChunks(ctx)
	if err != nil {
		return 0, fmt.Errorf("count failed: %w", err)
	}
	// Overflow protection for 32-bit systems.
	if count > math.MaxInt {
		return 0, fmt.Errorf("chunk count %d exceeds platform int capacity", count)
	}
	return int(count), nil
}

// embed generates the embedding vector for text.
func (s *Store) embed(ctx context.Context, text string) (pgvector.Vector, error) {
	resp, err := s.embedder.Embed(ctx, &ai.EmbedRequest{
		Input: []*ai.Document{
			{
				Content: []*ai.Part{ai.NewTextPart(text)},
			},
		},
	})
	if err != nil {
		return pgvector.Vector{}, err
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return pgvector.Vector{}, errors.New("empty embedding returned")
	}
	return pgvector.NewVector(resp.Embeddings[0].Embedding), nil
}
