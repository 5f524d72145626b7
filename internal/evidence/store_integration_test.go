package evidence

import (
	"context"
	"hash/fnv"
	"testing"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"

	"github.com/bestmove/formulary/internal/testutil"
)

// hashEmbedder produces deterministic 768-dimensional unit vectors so
// identical text always embeds identically. Lets the integration test
// exercise real pgvector search without a live embedding API.
type hashEmbedder struct{}

func (hashEmbedder) Name() string            { return "hash-embedder" }
func (hashEmbedder) Register(_ api.Registry) {}

func (hashEmbedder) Embed(_ context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	embeddings := make([]*ai.Embedding, 0, len(req.Input))
	for _, doc := range req.Input {
		text := ""
		if len(doc.Content) > 0 {
			text = doc.Content[0].Text
		}
		h := fnv.New32a()
		_, _ = h.Write([]byte(text))
		vec := make([]float32, VectorDimension)
		vec[h.Sum32()%VectorDimension] = 1
		embeddings = append(embeddings, &ai.Embedding{Embedding: vec})
	}
	return &ai.EmbedResponse{Embeddings: embeddings}, nil
}

func TestStore_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := New(NewPGQuerier(db.Pool), hashEmbedder{}, nil)

	docs := []Document{
		{ID: "PMC1:abstract:0", Content: "magnesium sleep onset", SourceID: "PMC1", Title: "Mg study"},
		{ID: "PMC2:abstract:0", Content: "potassium sodium balance", SourceID: "PMC2", Title: "K/Na study"},
	}
	if err := store.Add(ctx, docs); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}

	count, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("Count() failed: %v", err)
	}
	if count != 2 {
		t.Errorf("Count() = %d, want 2", count)
	}

	// Exact-text query embeds to the same vector; its chunk must rank
	// first with similarity 1.
	excerpts, err := store.Search(ctx, "magnesium sleep onset", WithTopK(2))
	if err != nil {
		t.Fatalf("Search() failed: %v", err)
	}
	if len(excerpts) != 2 {
		t.Fatalf("expected 2 excerpts, got %d", len(excerpts))
	}
	if excerpts[0].ID != "PMC1:abstract:0" {
		t.Errorf("nearest excerpt = %q, want PMC1:abstract:0", excerpts[0].ID)
	}
	if excerpts[0].Relevance < 0.99 {
		t.Errorf("exact-match similarity = %.3f, want ~1.0", excerpts[0].Relevance)
	}
	if excerpts[0].Title != "Mg study" {
		t.Errorf("metadata title = %q, want Mg study", excerpts[0].Title)
	}

	// Re-adding the same ID upserts, not duplicates.
	docs[0].Content = "magnesium glycinate sleep onset latency"
	if err := store.Add(ctx, docs[:1]); err != nil {
		t.Fatalf("re-Add() failed: %v", err)
	}
	count, err = store.Count(ctx)
	if err != nil {
		t.Fatalf("Count() failed: %v", err)
	}
	if count != 2 {
		t.Errorf("Count() after upsert = %d, want 2", count)
	}
}
