package keywordindex

import "context"

// Document is a single chunk submitted for keyword indexing.
type Document struct {
	ID        string // chunk id: "{project}:{path}:{ordinal}"
	Path      string // file path, used for bulk deleteByFile
	Content   string
	StartLine int // 1-indexed, inclusive
	EndLine   int // 1-indexed, inclusive
}

// Result is a single BM25 match.
type Result struct {
	ChunkID      string
	Score        float64
	MatchedTerms []string
}

// Stats reports index-level counters.
type Stats struct {
	DocumentCount int
}

// Config configures BM25 scoring. K1/B match the spec's fixed values;
// they're still exposed as config because bleve's similarity model takes
// them as constructor parameters, not because the spec wants them tunable.
type Config struct {
	K1 float64
	B  float64
}

// DefaultConfig returns the spec-mandated BM25 parameters: k1=1.2, b=0.75,
// no stopwords.
func DefaultConfig() Config {
	return Config{K1: 1.2, B: 0.75}
}

// Index is the keyword (BM25) half of hybrid retrieval.
type Index interface {
	Index(ctx context.Context, docs []Document) error
	Search(ctx context.Context, query string, limit int) ([]Result, error)
	// Get fetches the stored documents for chunkIDs, in no particular
	// order; ids with no stored document are silently omitted. Used by
	// internal/rerank to recover chunk text/line-range for a candidate
	// list that retrieval only carries by id and score.
	Get(ctx context.Context, chunkIDs []string) ([]Document, error)
	Delete(ctx context.Context, chunkIDs []string) error
	DeleteByPath(ctx context.Context, path string) error
	AllIDs() ([]string, error)
	Stats() Stats
	Save(path string) error
	Load(path string) error
	Close() error
}
