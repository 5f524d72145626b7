package evidence

import "time"

// VectorDimension is the embedding width of the evidence_chunks schema.
// The Gemini embedder must be configured to truncate its output to
// this dimension.
const VectorDimension = 768

// Document is one research-paper fragment stored in the corpus.
// ID must be a stable content identifier (e.g. "PMC1234567:results:2")
// so re-ingesting the same paper upserts instead of duplicating.
type Document struct {
	ID       string
	Content  string
	Title    string
	SourceID string // paper identifier, e.g. PMC ID
	Journal  string
	Year     string
	Section  string
	CreateAt time.Time
}

// Excerpt is a search hit: a document plus its cosine similarity to
// the query.
type Excerpt struct {
	Document
	Relevance float32 // cosine similarity (0-1)
}

// SearchOption configures search behavior using the functional options
// pattern.
type SearchOption func(*searchConfig)

type searchConfig struct {
	topK    int
	timeout time.Duration
}

const (
	defaultTopK          = 3
	maxTopK              = 10
	defaultSearchTimeout = 10 * time.Second
)

// WithTopK sets the maximum number of excerpts to return.
// Values are clamped to [1, 10]; default is 3.
func WithTopK(k int) SearchOption {
	return func(c *searchConfig) {
		c.topK = k
	}
}

// WithTimeout overrides the per-search timeout covering both the
// embedding call and the vector query.
func WithTimeout(d time.Duration) SearchOption {
	return func(c *searchConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func buildSearchConfig(opts []SearchOption) *searchConfig {
	cfg := &searchConfig{
		topK:    defaultTopK,
		timeout: defaultSearchTimeout,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.topK < 1 {
		cfg.topK = 1
	}
	if cfg.topK > maxTopK {
		cfg.topK = maxTopK
	}
	return cfg
}
