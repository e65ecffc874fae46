package corectx

import (
	"context"

	ragerrors "github.com/ragline/ragline/internal/errors"
	"github.com/ragline/ragline/internal/keywordindex"
	"github.com/ragline/ragline/internal/rerank"
	"github.com/ragline/ragline/internal/retrieve"
)

// defaultK is used when a request leaves K unset, matching the
// retrieval contract's own default top-K.
const defaultK = 10

func weightsOf(w *Weights) retrieve.Weights {
	if w == nil {
		return retrieve.DefaultWeights()
	}
	return retrieve.Weights{Alpha: w.Alpha, Beta: w.Beta}
}

// RagSearch implements rag.search: resolve the project, optionally catch
// it up, and return a fused, cache-checked candidate list. An empty
// query short-circuits before any embedder or cache call, per the
// retrieval contract's "empty query never reaches the embedder" rule.
func (c *Context) RagSearch(ctx context.Context, req SearchRequest) (SearchResult, error) {
	if req.Query == "" {
		return SearchResult{}, nil
	}
	k := req.K
	if k <= 0 {
		k = defaultK
	}

	proj, err := c.resolve(req.Selector, req.WorkingDir)
	if err != nil {
		return SearchResult{}, err
	}
	ps, err := c.project(ctx, proj)
	if err != nil {
		return SearchResult{}, err
	}

	var degraded []string
	if req.AutoIndex {
		if _, catchErr := c.CatchUp(ctx, proj.ID); catchErr != nil {
			degraded = append(degraded, ReasonVectorUnavailable)
		}
	}

	ps.mu.RLock()
	defer ps.mu.RUnlock()

	if cached, ok := ps.cache.Get(ctx, ps.ref.id, req.Query, k); ok {
		cached.FromCache = true
		return cached, nil
	}

	candidates, fetchDegraded, err := ps.fetchCandidates(ctx, req.Query, k, weightsOf(req.Weights))
	if err != nil {
		return SearchResult{}, err
	}
	degraded = append(degraded, fetchDegraded...)

	out := SearchResult{Candidates: candidates, DegradedReasons: dedupReasons(degraded)}
	ps.cache.Put(ctx, ps.ref.id, req.Query, k, out)
	return out, nil
}

// AnswerGenerate implements answer.generate: a rag.search followed by an
// optional LLM rerank pass. Rerank failures degrade to fused-score order
// rather than failing the call (spec §7 E5).
func (c *Context) AnswerGenerate(ctx context.Context, req AnswerRequest) (AnswerResult, error) {
	search, err := c.RagSearch(ctx, req.SearchRequest)
	if err != nil {
		return AnswerResult{}, err
	}
	if !req.Rerank || len(search.Candidates) == 0 {
		return AnswerResult{SearchResult: search}, nil
	}

	rcands := make([]rerank.Candidate, len(search.Candidates))
	for i, cand := range search.Candidates {
		rcands[i] = rerank.Candidate{
			ChunkID: cand.ChunkID, Path: cand.Path,
			StartLine: cand.StartLine, EndLine: cand.EndLine,
			Text: cand.Text, FusedScore: cand.FusedScore,
		}
	}

	k := req.K
	if k <= 0 {
		k = defaultK
	}
	rr, err := c.rerank.Rerank(ctx, req.Query, rcands, k)
	if err != nil {
		return AnswerResult{}, err
	}

	out := AnswerResult{SearchResult: search, Reranked: !rr.FailedOpen}
	if rr.FailedOpen {
		out.DegradedReasons = dedupReasons(append(out.DegradedReasons, ReasonRerankUnavailable))
	}
	out.Candidates = make([]Candidate, len(rr.Candidates))
	for i, rc := range rr.Candidates {
		out.Candidates[i] = Candidate{
			ChunkID: rc.ChunkID, Path: rc.Path,
			StartLine: rc.StartLine, EndLine: rc.EndLine,
			Text: rc.Text, FusedScore: rc.FusedScore,
		}
	}
	return out, nil
}

// fetchCandidates runs hybrid retrieval and enriches the bare
// retrieve.Candidate list (id + scores only) with the text and line
// range the keyword index's document store still has on file. Caller
// must hold ps.mu for reading.
func (ps *projectState) fetchCandidates(ctx context.Context, query string, k int, weights retrieve.Weights) ([]Candidate, []string, error) {
	result, err := ps.retriever.Retrieve(ctx, query, k, weights)
	if err != nil {
		return nil, nil, err
	}

	var degraded []string
	if result.VectorDegraded {
		degraded = append(degraded, ReasonVectorUnavailable)
	}

	ids := make([]string, len(result.Candidates))
	for i, cand := range result.Candidates {
		ids[i] = cand.ChunkID
	}
	docs, err := ps.keyword.Get(ctx, ids)
	if err != nil {
		return nil, nil, err
	}
	byID := make(map[string]keywordindex.Document, len(docs))
	for _, d := range docs {
		byID[d.ID] = d
	}

	out := make([]Candidate, 0, len(result.Candidates))
	for _, cand := range result.Candidates {
		doc, ok := byID[cand.ChunkID]
		if !ok {
			// The chunk was deleted between retrieval and enrichment
			// (a concurrent catch-up removed the file); drop it rather
			// than surface a candidate with no text.
			continue
		}
		out = append(out, Candidate{
			ChunkID: cand.ChunkID, Path: doc.Path,
			StartLine: doc.StartLine, EndLine: doc.EndLine,
			Text: doc.Content, KeywordScore: cand.KeywordScore,
			VectorScore: float64(cand.VectorScore),
			FusedScore:  cand.FusedScore, InBoth: cand.InBoth,
		})
	}
	return out, degraded, nil
}

func dedupReasons(reasons []string) []string {
	if len(reasons) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(reasons))
	out := make([]string, 0, len(reasons))
	for _, r := range reasons {
		if seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
	}
	return out
}

// projectByID is a convenience used by operations addressed by project
// id rather than by selector (index.status, cache.clear, code.*).
func (c *Context) projectByID(ctx context.Context, projectID string) (*projectState, error) {
	c.mu.Lock()
	if ps, ok := c.projects[projectID]; ok {
		c.mu.Unlock()
		return ps, nil
	}
	c.mu.Unlock()

	for _, p := range c.registry.List() {
		if p.ID == projectID {
			return c.project(ctx, p)
		}
	}
	return nil, ragerrors.NotFound("no project registered with id "+projectID, nil)
}
