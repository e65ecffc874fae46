package retrieve

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragline/ragline/internal/keywordindex"
	"github.com/ragline/ragline/internal/vectorindex"
)

type fakeKeyword struct {
	results []keywordindex.Result
	err     error
}

func (f *fakeKeyword) Index(context.Context, []keywordindex.Document) error { return nil }
func (f *fakeKeyword) Search(context.Context, string, int) ([]keywordindex.Result, error) {
	return f.results, f.err
}
func (f *fakeKeyword) Get(context.Context, []string) ([]keywordindex.Document, error) {
	return nil, nil
}
func (f *fakeKeyword) Delete(context.Context, []string) error    { return nil }
func (f *fakeKeyword) DeleteByPath(context.Context, string) error { return nil }
func (f *fakeKeyword) AllIDs() ([]string, error)                 { return nil, nil }
func (f *fakeKeyword) Stats() keywordindex.Stats                 { return keywordindex.Stats{} }
func (f *fakeKeyword) Save(string) error                         { return nil }
func (f *fakeKeyword) Load(string) error                         { return nil }
func (f *fakeKeyword) Close() error                              { return nil }

type fakeVector struct {
	results []vectorindex.Result
	err     error
}

func (f *fakeVector) Add(context.Context, []string, [][]float32) error { return nil }
func (f *fakeVector) Search(context.Context, []float32, int) ([]vectorindex.Result, error) {
	return f.results, f.err
}
func (f *fakeVector) Delete(context.Context, []string) error { return nil }
func (f *fakeVector) AllIDs() []string                       { return nil }
func (f *fakeVector) Contains(string) bool                   { return false }
func (f *fakeVector) Count() int                             { return 0 }
func (f *fakeVector) Stats() vectorindex.Stats                { return vectorindex.Stats{} }
func (f *fakeVector) Compact(context.Context) error          { return nil }
func (f *fakeVector) Save(string) error                      { return nil }
func (f *fakeVector) Load(string) error                      { return nil }
func (f *fakeVector) Close() error                           { return nil }

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(context.Context, string) ([]float32, error) { return []float32{1, 0}, nil }
func (fakeEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, nil
}
func (fakeEmbedder) Dimensions() int   { return 2 }
func (fakeEmbedder) ModelName() string { return "fake" }
func (fakeEmbedder) Close() error      { return nil }

func TestRetrieve_FusesWeightedScores(t *testing.T) {
	kw := &fakeKeyword{results: []keywordindex.Result{
		{ChunkID: "p:a.go:0", Score: 10},
		{ChunkID: "p:b.go:0", Score: 5},
	}}
	vec := &fakeVector{results: []vectorindex.Result{
		{ChunkID: "p:a.go:0", Score: 0.9},
		{ChunkID: "p:c.go:0", Score: 0.8},
	}}
	h := New(Deps{Keyword: kw, Vector: vec, Embedder: fakeEmbedder{}})

	result, err := h.Retrieve(context.Background(), "query", 10, DefaultWeights())
	require.NoError(t, err)
	require.False(t, result.VectorDegraded)
	require.Len(t, result.Candidates, 3)

	// p:a.go:0 is in both lists: normKw=1.0, vec=0.9 -> fused = 0.5*1 + 0.5*0.9 = 0.95
	assert.Equal(t, "p:a.go:0", result.Candidates[0].ChunkID)
	assert.InDelta(t, 0.95, result.Candidates[0].FusedScore, 1e-9)
	assert.True(t, result.Candidates[0].InBoth)
}

func TestRetrieve_DegradesToKeywordOnlyWithoutVector(t *testing.T) {
	kw := &fakeKeyword{results: []keywordindex.Result{
		{ChunkID: "p:a.go:0", Score: 10},
	}}
	h := New(Deps{Keyword: kw})

	result, err := h.Retrieve(context.Background(), "query", 10, DefaultWeights())
	require.NoError(t, err)
	assert.True(t, result.VectorDegraded)
	require.Len(t, result.Candidates, 1)
	assert.Equal(t, 0.5, result.Candidates[0].FusedScore)
}

func TestRetrieve_DegradesWhenVectorSearchErrors(t *testing.T) {
	kw := &fakeKeyword{results: []keywordindex.Result{{ChunkID: "p:a.go:0", Score: 10}}}
	vec := &fakeVector{err: assert.AnError}
	h := New(Deps{Keyword: kw, Vector: vec, Embedder: fakeEmbedder{}})

	result, err := h.Retrieve(context.Background(), "query", 10, DefaultWeights())
	require.NoError(t, err)
	assert.True(t, result.VectorDegraded)
	require.Len(t, result.Candidates, 1)
}

func TestRetrieve_FailsWhenBothSearchesError(t *testing.T) {
	kw := &fakeKeyword{err: assert.AnError}
	vec := &fakeVector{err: assert.AnError}
	h := New(Deps{Keyword: kw, Vector: vec, Embedder: fakeEmbedder{}})

	_, err := h.Retrieve(context.Background(), "query", 10, DefaultWeights())
	assert.Error(t, err)
}

func TestRetrieve_DedupCapsChunksPerFile(t *testing.T) {
	kw := &fakeKeyword{results: []keywordindex.Result{
		{ChunkID: "p:a.go:0", Score: 10},
		{ChunkID: "p:a.go:1", Score: 9},
		{ChunkID: "p:a.go:2", Score: 8},
	}}
	h := New(Deps{Keyword: kw})

	result, err := h.Retrieve(context.Background(), "query", 10, DefaultWeights())
	require.NoError(t, err)
	require.Len(t, result.Candidates, MaxChunksPerFile)
	for _, c := range result.Candidates {
		assert.Equal(t, "a.go", c.Path)
	}
}

func TestRetrieve_TruncatesToK(t *testing.T) {
	kw := &fakeKeyword{results: []keywordindex.Result{
		{ChunkID: "p:a.go:0", Score: 10},
		{ChunkID: "p:b.go:0", Score: 9},
		{ChunkID: "p:c.go:0", Score: 8},
	}}
	h := New(Deps{Keyword: kw})

	result, err := h.Retrieve(context.Background(), "query", 2, DefaultWeights())
	require.NoError(t, err)
	assert.Len(t, result.Candidates, 2)
}

func TestPathOf(t *testing.T) {
	assert.Equal(t, "src/a.go", pathOf("proj1:src/a.go:3"))
}
