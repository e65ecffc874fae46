package vectorindex

import "context"

// Result is a single nearest-neighbor match. Score is cosine similarity
// in [0,1] since stored vectors are unit-L2-normalized (inner product
// equals cosine similarity on unit vectors).
type Result struct {
	ChunkID string
	Score   float32
}

// Config configures the HNSW graph.
type Config struct {
	Dimensions     int
	M              int
	EfConstruction int
	EfSearch       int
}

// DefaultConfig returns sensible HNSW defaults for the given frozen
// dimension.
func DefaultConfig(dimensions int) Config {
	return Config{
		Dimensions:     dimensions,
		M:              16,
		EfConstruction: 128,
		EfSearch:       64,
	}
}

// Stats reports counters used to decide whether compaction is due.
type Stats struct {
	ValidIDs   int
	GraphNodes int
	Orphans    int
}

// compactionThreshold is the tombstone ratio (orphans / graph nodes) past
// which the index should be rebuilt.
const compactionThreshold = 0.25

// ShouldCompact reports whether tombstoned (lazily-deleted) nodes exceed
// 25% of the live vector count.
func (s Stats) ShouldCompact() bool {
	if s.GraphNodes == 0 {
		return false
	}
	return float64(s.Orphans)/float64(s.GraphNodes) > compactionThreshold
}

// Index is the vector (semantic) half of hybrid retrieval.
type Index interface {
	Add(ctx context.Context, ids []string, vectors [][]float32) error
	Search(ctx context.Context, query []float32, k int) ([]Result, error)
	Delete(ctx context.Context, ids []string) error
	AllIDs() []string
	Contains(id string) bool
	Count() int
	Stats() Stats
	Compact(ctx context.Context) error
	Save(path string) error
	Load(path string) error
	Close() error
}
