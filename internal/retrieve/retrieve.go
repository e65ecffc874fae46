package retrieve

import (
	"context"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/ragline/ragline/internal/embedder"
	"github.com/ragline/ragline/internal/keywordindex"
	"github.com/ragline/ragline/internal/vectorindex"
)

// Deps wires the two half-indexes and the embedder used to turn a
// query into a vector. Vector and Embedder may both be nil, in which
// case Retrieve degrades to keyword-only search.
type Deps struct {
	Keyword  keywordindex.Index
	Vector   vectorindex.Index
	Embedder embedder.Embedder
}

// Hybrid runs the keyword and vector indexes in parallel and fuses
// their results into a single ranked, deduplicated candidate list.
type Hybrid struct {
	deps Deps
}

// New constructs a Hybrid retriever over the given dependencies.
func New(deps Deps) *Hybrid {
	return &Hybrid{deps: deps}
}

// Retrieve returns up to k fused candidates for query. Keyword and
// vector search each fetch FanoutMultiplier*k results before fusion so
// the merge has enough overlap to rank accurately.
func (h *Hybrid) Retrieve(ctx context.Context, query string, k int, weights Weights) (Result, error) {
	if k <= 0 {
		return Result{}, nil
	}
	fanout := k * FanoutMultiplier

	var (
		kwResults  []keywordindex.Result
		vecResults []vectorindex.Result
		kwErr      error
		vecErr     error
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		kwResults, err = h.deps.Keyword.Search(gctx, query, fanout)
		if err != nil {
			kwErr = err
		}
		return nil
	})

	vectorAvailable := h.deps.Vector != nil && h.deps.Embedder != nil
	if vectorAvailable {
		g.Go(func() error {
			qv, err := h.deps.Embedder.Embed(gctx, query)
			if err != nil {
				vecErr = err
				return nil
			}
			vecResults, err = h.deps.Vector.Search(gctx, qv, fanout)
			if err != nil {
				vecErr = err
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	if kwErr != nil && (!vectorAvailable || vecErr != nil) {
		return Result{}, kwErr
	}

	degraded := !vectorAvailable || vecErr != nil

	fused := fuse(kwResults, vecResults, weights)
	fused = dedupPerFile(fused)

	if len(fused) > k {
		fused = fused[:k]
	}

	return Result{Candidates: fused, VectorDegraded: degraded}, nil
}

// fuse merges keyword and vector results by chunk-id. For each chunk,
// fused-score = alpha*normalizedKeywordScore + beta*vectorScore, where
// normalizedKeywordScore divides the raw BM25 score by the maximum
// BM25 score in kwResults (0 if that maximum is 0) and a chunk absent
// from either list contributes 0 for that list's term.
func fuse(kwResults []keywordindex.Result, vecResults []vectorindex.Result, weights Weights) []Candidate {
	maxKw := 0.0
	for _, r := range kwResults {
		if r.Score > maxKw {
			maxKw = r.Score
		}
	}

	byID := make(map[string]*Candidate, len(kwResults)+len(vecResults))
	order := make([]string, 0, len(kwResults)+len(vecResults))
	inKw := make(map[string]bool, len(kwResults))
	inVec := make(map[string]bool, len(vecResults))

	getOrCreate := func(id string) *Candidate {
		if c, ok := byID[id]; ok {
			return c
		}
		c := &Candidate{ChunkID: id, Path: pathOf(id)}
		byID[id] = c
		order = append(order, id)
		return c
	}

	for _, r := range kwResults {
		c := getOrCreate(r.ChunkID)
		c.KeywordScore = r.Score
		c.MatchedTerms = r.MatchedTerms
		inKw[r.ChunkID] = true
	}
	for _, r := range vecResults {
		c := getOrCreate(r.ChunkID)
		c.VectorScore = float64(r.Score)
		inVec[r.ChunkID] = true
	}

	out := make([]Candidate, 0, len(order))
	for _, id := range order {
		c := byID[id]
		c.InBoth = inKw[id] && inVec[id]

		normKw := 0.0
		if maxKw > 0 {
			normKw = c.KeywordScore / maxKw
		}
		c.FusedScore = weights.Alpha*normKw + weights.Beta*c.VectorScore
		out = append(out, *c)
	}

	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

// less reports whether a should rank before b: higher fused score
// first, then chunks present in both lists, then higher raw keyword
// score, then lexicographically by chunk-id for determinism.
func less(a, b Candidate) bool {
	if a.FusedScore != b.FusedScore {
		return a.FusedScore > b.FusedScore
	}
	if a.InBoth != b.InBoth {
		return a.InBoth
	}
	if a.KeywordScore != b.KeywordScore {
		return a.KeywordScore > b.KeywordScore
	}
	return a.ChunkID < b.ChunkID
}

// dedupPerFile walks the already-sorted candidate list and drops any
// chunk beyond MaxChunksPerFile for its file, preserving relative
// order (and therefore rank) among the survivors.
func dedupPerFile(sorted []Candidate) []Candidate {
	counts := make(map[string]int, len(sorted))
	out := make([]Candidate, 0, len(sorted))
	for _, c := range sorted {
		if counts[c.Path] >= MaxChunksPerFile {
			continue
		}
		counts[c.Path]++
		out = append(out, c)
	}
	return out
}

// pathOf extracts the file path from a "{project}:{path}:{ordinal}"
// chunk-id. Paths themselves never contain a colon (forward-slash
// normalized), so the first and last colons unambiguously bracket it.
func pathOf(chunkID string) string {
	first := strings.IndexByte(chunkID, ':')
	last := strings.LastIndexByte(chunkID, ':')
	if first < 0 || last <= first {
		return chunkID
	}
	return chunkID[first+1 : last]
}
