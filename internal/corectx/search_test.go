package corectx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupIndexedProject(t *testing.T) (*Context, string) {
	t.Helper()
	c := newTestContext(t)
	root := t.TempDir()
	writeFile(t, root, "widget.go", "package main\n\nfunc computeWidgetTotal() int {\n\treturn 42\n}\n")
	writeFile(t, root, "gadget.go", "package main\n\nfunc computeGadgetTotal() int {\n\treturn 7\n}\n")

	proj, err := c.AddProject("demo", root)
	require.NoError(t, err)
	_, err = c.CatchUp(context.Background(), proj.ID)
	require.NoError(t, err)
	return c, proj.ID
}

func TestRagSearch_EmptyQueryShortCircuits(t *testing.T) {
	c, projID := setupIndexedProject(t)
	res, err := c.RagSearch(context.Background(), SearchRequest{Selector: projID, Query: ""})
	require.NoError(t, err)
	assert.Empty(t, res.Candidates)
}

func TestRagSearch_ReturnsEnrichedCandidates(t *testing.T) {
	c, projID := setupIndexedProject(t)
	res, err := c.RagSearch(context.Background(), SearchRequest{Selector: projID, Query: "computeWidgetTotal", K: 5})
	require.NoError(t, err)
	require.NotEmpty(t, res.Candidates)
	for _, cand := range res.Candidates {
		assert.NotEmpty(t, cand.Text)
		assert.NotEmpty(t, cand.Path)
	}
}

func TestRagSearch_SecondCallHitsCache(t *testing.T) {
	c, projID := setupIndexedProject(t)
	ctx := context.Background()

	_, err := c.RagSearch(ctx, SearchRequest{Selector: projID, Query: "computeWidgetTotal", K: 5})
	require.NoError(t, err)

	second, err := c.RagSearch(ctx, SearchRequest{Selector: projID, Query: "computeWidgetTotal", K: 5})
	require.NoError(t, err)
	assert.True(t, second.FromCache)
}

func TestAnswerGenerate_WithoutRerankPassesThroughSearch(t *testing.T) {
	c, projID := setupIndexedProject(t)
	res, err := c.AnswerGenerate(context.Background(), AnswerRequest{
		SearchRequest: SearchRequest{Selector: projID, Query: "computeGadgetTotal", K: 5},
		Rerank:        false,
	})
	require.NoError(t, err)
	assert.False(t, res.Reranked)
	assert.NotEmpty(t, res.Candidates)
}

func TestAnswerGenerate_RerankDisabledFailsOpen(t *testing.T) {
	c, projID := setupIndexedProject(t)
	res, err := c.AnswerGenerate(context.Background(), AnswerRequest{
		SearchRequest: SearchRequest{Selector: projID, Query: "computeGadgetTotal", K: 5},
		Rerank:        true,
	})
	require.NoError(t, err)
	assert.False(t, res.Reranked)
	assert.Contains(t, res.DegradedReasons, ReasonRerankUnavailable)
	assert.NotEmpty(t, res.Candidates)
}

func TestIndexRebuild_ReindexesFromEmpty(t *testing.T) {
	c, projID := setupIndexedProject(t)
	ctx := context.Background()

	before, err := c.IndexStatus(ctx, projID)
	require.NoError(t, err)
	require.Greater(t, before.VectorsIndexed, 0)

	result, err := c.IndexRebuild(ctx, projID, true)
	require.NoError(t, err)
	assert.Equal(t, 2, result.FilesAdded)

	after, err := c.IndexStatus(ctx, projID)
	require.NoError(t, err)
	assert.Equal(t, before.VectorsIndexed, after.VectorsIndexed)
}

func TestCodeSymbols_ReturnsExtractedDefinitions(t *testing.T) {
	c, projID := setupIndexedProject(t)
	syms, err := c.CodeSymbols(context.Background(), projID, "widget.go")
	require.NoError(t, err)
	var found bool
	for _, s := range syms {
		if s.Name == "computeWidgetTotal" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestCacheClear_RemovesCachedEntry(t *testing.T) {
	c, projID := setupIndexedProject(t)
	ctx := context.Background()

	_, err := c.RagSearch(ctx, SearchRequest{Selector: projID, Query: "computeWidgetTotal", K: 5})
	require.NoError(t, err)

	status, err := c.CacheStatus(ctx, projID)
	require.NoError(t, err)
	assert.Greater(t, status.ExactEntries, 0)

	require.NoError(t, c.CacheClear(ctx, projID))

	status, err = c.CacheStatus(ctx, projID)
	require.NoError(t, err)
	assert.Equal(t, 0, status.ExactEntries)
}

func TestProjectByID_UnknownIDIsNotFound(t *testing.T) {
	c := newTestContext(t)
	_, err := c.IndexStatus(context.Background(), "doesnotexist")
	assert.Error(t, err)
}

