package querycache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEmbedder returns deterministic unit vectors: similar queries
// (sharing a prefix) map to similar vectors so semantic-tier tests are
// meaningful without a real embedding model.
type fakeEmbedder struct{}

func (fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if len(text) > 0 && text[0] == 'A' {
		return []float32{1, 0}, nil
	}
	return []float32{0, 1}, nil
}
func (fakeEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) { return nil, nil }
func (fakeEmbedder) Dimensions() int                                          { return 2 }
func (fakeEmbedder) ModelName() string                                        { return "fake" }
func (fakeEmbedder) Close() error                                             { return nil }

func TestCache_ExactHit(t *testing.T) {
	c := New[string](DefaultConfig(), nil)
	ctx := context.Background()

	_, ok := c.Get(ctx, "proj1", "find the login handler", 5)
	assert.False(t, ok)

	c.Put(ctx, "proj1", "find the login handler", 5, "result-A")
	val, ok := c.Get(ctx, "proj1", "find the login handler", 5)
	require.True(t, ok)
	assert.Equal(t, "result-A", val)
}

func TestCache_ExactKeyIsCaseAndWhitespaceInsensitive(t *testing.T) {
	c := New[string](DefaultConfig(), nil)
	ctx := context.Background()

	c.Put(ctx, "proj1", "  Find The Login Handler  ", 5, "result-A")
	val, ok := c.Get(ctx, "proj1", "find the login handler", 5)
	require.True(t, ok)
	assert.Equal(t, "result-A", val)
}

func TestCache_DifferentKIsADifferentEntry(t *testing.T) {
	c := New[string](DefaultConfig(), nil)
	ctx := context.Background()

	c.Put(ctx, "proj1", "query", 5, "k5")
	_, ok := c.Get(ctx, "proj1", "query", 10)
	assert.False(t, ok)
}

func TestCache_ProjectsAreIsolated(t *testing.T) {
	c := New[string](DefaultConfig(), nil)
	ctx := context.Background()

	c.Put(ctx, "proj1", "query", 5, "value")
	_, ok := c.Get(ctx, "proj2", "query", 5)
	assert.False(t, ok)
}

func TestCache_TTLExpiry(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TTL = time.Millisecond
	c := New[string](cfg, nil)
	ctx := context.Background()

	c.Put(ctx, "proj1", "query", 5, "value")
	time.Sleep(5 * time.Millisecond)
	_, ok := c.Get(ctx, "proj1", "query", 5)
	assert.False(t, ok)
}

func TestCache_SemanticHitWriteThroughToExactTier(t *testing.T) {
	c := New[string](DefaultConfig(), fakeEmbedder{})
	ctx := context.Background()

	c.Put(ctx, "proj1", "Alpha query one", 5, "alpha-result")

	// Different exact key, same embedding direction ("A..." prefix) -> semantic hit.
	val, ok := c.Get(ctx, "proj1", "Another alpha phrasing", 5)
	require.True(t, ok)
	assert.Equal(t, "alpha-result", val)

	// Write-through means the new phrasing now also hits the exact tier.
	val2, ok := c.Get(ctx, "proj1", "Another alpha phrasing", 5)
	require.True(t, ok)
	assert.Equal(t, "alpha-result", val2)
}

func TestCache_SemanticMissBelowTau(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Tau = 0.999
	c := New[string](cfg, fakeEmbedder{})
	ctx := context.Background()

	c.Put(ctx, "proj1", "Alpha query", 5, "alpha-result")
	_, ok := c.Get(ctx, "proj1", "Bravo query", 5)
	assert.False(t, ok)
}

func TestCache_NilEmbedderDisablesSemanticTier(t *testing.T) {
	c := New[string](DefaultConfig(), nil)
	ctx := context.Background()

	c.Put(ctx, "proj1", "Alpha query", 5, "alpha-result")
	_, ok := c.Get(ctx, "proj1", "Alpha query variant", 5)
	assert.False(t, ok)
}

func TestCache_ClearThisProject(t *testing.T) {
	c := New[string](DefaultConfig(), nil)
	ctx := context.Background()

	c.Put(ctx, "proj1", "query", 5, "value")
	c.Clear(ClearThisProject, "proj1")
	_, ok := c.Get(ctx, "proj1", "query", 5)
	assert.False(t, ok)
}

func TestCache_ClearAll(t *testing.T) {
	c := New[string](DefaultConfig(), nil)
	ctx := context.Background()

	c.Put(ctx, "proj1", "query", 5, "value1")
	c.Put(ctx, "proj2", "query", 5, "value2")
	c.Clear(ClearAll, "")

	_, ok1 := c.Get(ctx, "proj1", "query", 5)
	_, ok2 := c.Get(ctx, "proj2", "query", 5)
	assert.False(t, ok1)
	assert.False(t, ok2)
}

func TestCache_ClearExpiredOnlyKeepsFreshEntries(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TTL = 5 * time.Millisecond
	c := New[string](cfg, nil)
	ctx := context.Background()

	c.Put(ctx, "proj1", "old-query", 5, "old-value")
	time.Sleep(10 * time.Millisecond)
	c.Put(ctx, "proj1", "fresh-query", 5, "fresh-value")

	c.Clear(ClearExpiredOnly, "")

	_, oldOK := c.Get(ctx, "proj1", "old-query", 5)
	freshVal, freshOK := c.Get(ctx, "proj1", "fresh-query", 5)
	assert.False(t, oldOK)
	require.True(t, freshOK)
	assert.Equal(t, "fresh-value", freshVal)
}

func TestCache_LRUEvictionBoundsEntriesPerProject(t *testing.T) {
	cfg := Config{MaxEntriesPerProject: 2, TTL: time.Hour, Tau: 0.97}
	c := New[string](cfg, nil)
	ctx := context.Background()

	c.Put(ctx, "proj1", "q1", 5, "v1")
	c.Put(ctx, "proj1", "q2", 5, "v2")
	c.Put(ctx, "proj1", "q3", 5, "v3")

	_, ok := c.Get(ctx, "proj1", "q1", 5)
	assert.False(t, ok, "oldest entry should have been evicted")

	_, ok = c.Get(ctx, "proj1", "q3", 5)
	assert.True(t, ok)
}
