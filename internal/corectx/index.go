package corectx

import (
	"context"
	"time"

	"github.com/ragline/ragline/internal/indexer"
	"github.com/ragline/ragline/internal/indexstate"
	"github.com/ragline/ragline/internal/retrieve"
	"github.com/ragline/ragline/internal/vectorindex"
)

// CatchUp brings projectID's indexes up to date with the filesystem.
// Concurrent callers for the same project coalesce onto one run via the
// project's own singleflight group, and each run holds the project's
// in-process write lock for its full duration — the store swaps (index
// state, keyword byPath table, vector graph, symbol table) commit
// together, so a reader never observes a half-applied catch-up.
func (c *Context) CatchUp(ctx context.Context, projectID string) (indexer.Result, error) {
	ps, err := c.projectByID(ctx, projectID)
	if err != nil {
		return indexer.Result{}, err
	}
	timeout := c.env.CatchUpTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return ps.catchUp(ctx)
}

func (ps *projectState) catchUp(ctx context.Context) (indexer.Result, error) {
	v, err, _ := ps.catchGroup.Do("catchup", func() (interface{}, error) {
		ps.mu.Lock()
		defer ps.mu.Unlock()

		result, err := ps.idx.CatchUp(ctx)
		if err != nil {
			return result, err
		}
		if perr := ps.persist(); perr != nil {
			return result, perr
		}
		ps.lastCatchUp = time.Now()
		ps.needsRebuild = false
		return result, nil
	})
	if v == nil {
		return indexer.Result{}, err
	}
	return v.(indexer.Result), err
}

// IndexStatus implements index.status: point-in-time counters for a
// project's indexes, with no catch-up side effect.
func (c *Context) IndexStatus(ctx context.Context, projectID string) (StatusResult, error) {
	ps, err := c.projectByID(ctx, projectID)
	if err != nil {
		return StatusResult{}, err
	}

	ps.mu.RLock()
	defer ps.mu.RUnlock()

	kwStats := ps.keyword.Stats()
	vecStats := ps.vector.Stats()
	return StatusResult{
		FilesIndexed:   len(ps.state.Files),
		ChunksIndexed:  kwStats.DocumentCount,
		VectorsIndexed: vecStats.ValidIDs,
		LastCatchUp:    ps.lastCatchUp,
		EmbedderKind:   string(ps.embKind),
		NeedsRebuild:   ps.needsRebuild || vecStats.ShouldCompact(),
	}, nil
}

// IndexRebuild implements index.rebuild: drop the vector index and the
// stored state (and, if requested, the keyword index too) and run a full
// catch-up against an empty baseline. Symbols are always rebuilt, since
// they're cheap to re-extract and have no separate "keep" knob in the
// request.
func (c *Context) IndexRebuild(ctx context.Context, projectID string, dropKeyword bool) (indexer.Result, error) {
	ps, err := c.projectByID(ctx, projectID)
	if err != nil {
		return indexer.Result{}, err
	}

	ps.mu.Lock()
	ps.vector = vectorindex.New(vectorindex.DefaultConfig(ps.emb.Dimensions()))
	if dropKeyword {
		ids, _ := ps.keyword.AllIDs()
		_ = ps.keyword.Delete(ctx, ids)
	}
	ps.state = indexstate.New()
	ps.needsRebuild = false

	deps := ps.depsTemplate
	deps.Keyword = ps.keyword
	deps.Vector = ps.vector
	deps.Symbols = ps.symbolsIdx
	ps.depsTemplate = deps
	ps.idx = indexer.New(deps, ps.state)
	ps.retriever = retrieve.New(retrieve.Deps{Keyword: ps.keyword, Vector: ps.vector, Embedder: ps.emb})
	ps.mu.Unlock()

	return ps.catchUp(ctx)
}
