package vectorindex

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHNSWIndex_AddAndSearch(t *testing.T) {
	idx := New(DefaultConfig(3))
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx, []string{"a", "b"}, [][]float32{
		{1, 0, 0},
		{0, 1, 0},
	}))

	results, err := idx.Search(ctx, []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "a", results[0].ChunkID)
}

func TestHNSWIndex_AddRejectsDimensionMismatch(t *testing.T) {
	idx := New(DefaultConfig(3))
	err := idx.Add(context.Background(), []string{"a"}, [][]float32{{1, 0}})
	assert.Error(t, err)
}

func TestHNSWIndex_DeleteIsLazyAndTracksOrphans(t *testing.T) {
	idx := New(DefaultConfig(3))
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx, []string{"a", "b"}, [][]float32{{1, 0, 0}, {0, 1, 0}}))
	require.NoError(t, idx.Delete(ctx, []string{"a"}))

	assert.Equal(t, 1, idx.Count())
	stats := idx.Stats()
	assert.Equal(t, 1, stats.ValidIDs)
	assert.Equal(t, 2, stats.GraphNodes)
	assert.Equal(t, 1, stats.Orphans)
}

func TestStats_ShouldCompact_CrossesQuarterThreshold(t *testing.T) {
	assert.False(t, Stats{ValidIDs: 8, GraphNodes: 10, Orphans: 2}.ShouldCompact())
	assert.True(t, Stats{ValidIDs: 7, GraphNodes: 10, Orphans: 3}.ShouldCompact())
}

func TestHNSWIndex_CompactDropsTombstonesAndPreservesLiveVectors(t *testing.T) {
	idx := New(DefaultConfig(3))
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx, []string{"a", "b", "c"}, [][]float32{
		{1, 0, 0}, {0, 1, 0}, {0, 0, 1},
	}))
	require.NoError(t, idx.Delete(ctx, []string{"b"}))
	require.NoError(t, idx.Compact(ctx))

	stats := idx.Stats()
	assert.Equal(t, 0, stats.Orphans)
	assert.Equal(t, 2, stats.ValidIDs)
	assert.True(t, idx.Contains("a"))
	assert.True(t, idx.Contains("c"))
	assert.False(t, idx.Contains("b"))
}
