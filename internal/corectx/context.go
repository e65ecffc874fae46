package corectx

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ragline/ragline/internal/embedder"
	ragerrors "github.com/ragline/ragline/internal/errors"
	"github.com/ragline/ragline/internal/indexer"
	"github.com/ragline/ragline/internal/indexstate"
	"github.com/ragline/ragline/internal/keywordindex"
	"github.com/ragline/ragline/internal/querycache"
	"github.com/ragline/ragline/internal/registry"
	"github.com/ragline/ragline/internal/rerank"
	"github.com/ragline/ragline/internal/retrieve"
	"github.com/ragline/ragline/internal/scanner"
	"github.com/ragline/ragline/internal/symbols"
	"github.com/ragline/ragline/internal/vectorindex"
)

const (
	stateFileName    = "state.jsonl"
	keywordFileName  = "keyword.db"
	vectorFileName   = "vector.idx"
	symbolsFileName  = "symbols.db"
	embedderMarkerFn = "embedder.json"
)

// embedderMarker records which embedder kind and dimension a project was
// first indexed with, so a server restart (or a second server process
// sharing the same data directory) reopens it with the same frozen D
// instead of silently drifting to whatever mode happens to construct
// successfully that time (spec §3: "D is fixed at project-index creation
// and immutable thereafter").
type embedderMarker struct {
	Kind embedder.Kind `json:"kind"`
	Dims int           `json:"dimensions"`
}

// projectState is everything kept open for one loaded project: its
// stores, its indexer/retriever/cache, and the in-process lock that
// implements spec §5's project-write/project-read discipline local to
// this process (the cross-process half is registry.AcquireWriteLock,
// plugged into the indexer as Deps.Locker).
type projectState struct {
	ref projectRef
	dir string

	mu sync.RWMutex

	state   *indexstate.State
	keyword keywordindex.Index
	vector  vectorindex.Index
	emb     embedder.Embedder
	embKind embedder.Kind

	// depsTemplate carries the fields of indexer.Deps that never change
	// across a rebuild (everything but Keyword/Vector/Symbols, which get
	// swapped for fresh stores). index.rebuild reuses it to reconstruct
	// idx and retriever around the new stores.
	depsTemplate indexer.Deps

	idx        *indexer.Incremental
	retriever  *retrieve.Hybrid
	cache      *querycache.Cache[SearchResult]
	symbolsIdx *symbols.Index

	catchGroup   singleflight.Group
	lastCatchUp  time.Time
	needsRebuild bool
}

// Context is the process-wide CoreContext: one ProjectRegistry, one
// optional LLM reranker client, and a lazily-populated map of loaded
// per-project state. No package-level mutable state exists anywhere in
// the retrieval core; everything reachable from a tool-protocol call
// hangs off a Context value constructed once at startup.
type Context struct {
	env      EnvConfig
	registry *registry.Registry
	scanner  *scanner.Scanner
	rerank   *rerank.Reranker

	mu       sync.Mutex
	projects map[string]*projectState
}

// Open constructs a Context from env, opening (or creating) the project
// registry at env.DataDir. The remote LLM client, if configured, is
// constructed eagerly; the remote/local embedder choice is deferred to
// each project's first load, since it depends on that project's frozen
// embedder kind.
func Open(env EnvConfig) (*Context, error) {
	if env.DataDir == "" {
		return nil, ragerrors.Fatal("corectx: DataDir is required", nil)
	}
	reg, err := registry.Open(env.DataDir)
	if err != nil {
		return nil, err
	}
	sc, err := scanner.New()
	if err != nil {
		return nil, ragerrors.Wrap(ragerrors.KindFatal, err)
	}

	var reranker *rerank.Reranker
	if env.LLMEndpoint != "" {
		client, cerr := rerank.NewHTTPClient(rerank.HTTPClientConfig{
			BaseURL: env.LLMEndpoint,
			APIKey:  env.LLMAPIKey,
			Model:   env.LLMModel,
			Timeout: env.LLMTimeout,
		})
		if cerr == nil {
			reranker = rerank.New(client, rerank.DefaultConfig())
		}
	}
	if reranker == nil {
		// A nil LLMClient is a valid "rerank disabled" configuration:
		// every Rerank call fails open to fused-score order.
		reranker = rerank.New(nil, rerank.DefaultConfig())
	}

	return &Context{
		env:      env,
		registry: reg,
		scanner:  sc,
		rerank:   reranker,
		projects: make(map[string]*projectState),
	}, nil
}

// Close releases every loaded project's stores and the symbol parser
// pool they hold.
func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var first error
	for _, ps := range c.projects {
		if err := ps.keyword.Close(); err != nil && first == nil {
			first = err
		}
		if err := ps.vector.Close(); err != nil && first == nil {
			first = err
		}
		if err := ps.symbolsIdx.Close(); err != nil && first == nil {
			first = err
		}
		if err := ps.emb.Close(); err != nil && first == nil {
			first = err
		}
	}
	c.projects = make(map[string]*projectState)
	return first
}

// resolve resolves a selector to a registry.Project. Every operation
// below calls this first, per spec §4.11: "Every query-path entry point
// MUST call resolve first."
func (c *Context) resolve(selector, workingDir string) (*registry.Project, error) {
	return c.registry.Resolve(selector, workingDir)
}

// project returns the loaded projectState for id, loading it from disk
// on first access.
func (c *Context) project(ctx context.Context, proj *registry.Project) (*projectState, error) {
	c.mu.Lock()
	if ps, ok := c.projects[proj.ID]; ok {
		c.mu.Unlock()
		return ps, nil
	}
	c.mu.Unlock()

	ps, err := c.loadProject(ctx, proj)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.projects[proj.ID]; ok {
		// Lost a race with a concurrent first-load; keep the winner and
		// let ps's stores be garbage collected unused.
		return existing, nil
	}
	c.projects[proj.ID] = ps
	return ps, nil
}

func (c *Context) projectDir(projectID string) string {
	return c.registry.ProjectDir(projectID)
}

func (c *Context) loadProject(ctx context.Context, proj *registry.Project) (*projectState, error) {
	dir := c.projectDir(proj.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, ragerrors.Wrap(ragerrors.KindFatal, err)
	}

	marker, _ := loadEmbedderMarker(filepath.Join(dir, embedderMarkerFn))

	emb, kind, err := embedder.New(ctx, c.env.RemoteEmbedConfig(), marker.Kind)
	if err != nil {
		return nil, err
	}
	dims := emb.Dimensions()
	if marker.Dims != 0 && marker.Dims != dims {
		_ = emb.Close()
		return nil, ragerrors.DimensionMismatch(
			"embedder dimension changed for an existing project", nil)
	}
	if marker.Dims == 0 {
		if werr := saveEmbedderMarker(filepath.Join(dir, embedderMarkerFn), embedderMarker{Kind: kind, Dims: dims}); werr != nil {
			_ = emb.Close()
			return nil, werr
		}
	}

	kw, err := keywordindex.New(filepath.Join(dir, keywordFileName))
	if err != nil {
		_ = emb.Close()
		return nil, err
	}

	vec := vectorindex.New(vectorindex.DefaultConfig(dims))
	vectorPath := filepath.Join(dir, vectorFileName)
	needsRebuild := false
	if _, statErr := os.Stat(vectorPath); statErr == nil {
		if lerr := vec.Load(vectorPath); lerr != nil {
			// A half-written or corrupt vector index does not fail
			// startup (spec §6: "flagged for rebuild, not a fatal error
			// for the process"); it starts empty and index.rebuild
			// repopulates it.
			needsRebuild = true
		}
	}

	state, err := indexstate.Load(filepath.Join(dir, stateFileName))
	if err != nil {
		if ragerrors.GetKind(err) == "" {
			_ = kw.Close()
			_ = vec.Close()
			_ = emb.Close()
			return nil, err
		}
		needsRebuild = true
		state = indexstate.New()
	}

	symbolsIdx := symbols.New()
	_ = symbolsIdx.Load(filepath.Join(dir, symbolsFileName))

	deps := indexer.Deps{
		ProjectID: proj.ID,
		Root:      proj.Path,
		Scanner:   c.scanner,
		Keyword:   kw,
		Vector:    vec,
		Embedder:  emb,
		Symbols:   symbolsIdx,
		Locker:    c.registry.AcquireWriteLock,
	}

	ps := &projectState{
		ref:          refOf(proj),
		dir:          dir,
		state:        state,
		keyword:      kw,
		vector:       vec,
		emb:          emb,
		embKind:      kind,
		depsTemplate: deps,
		idx:          indexer.New(deps, state),
		retriever:    retrieve.New(retrieve.Deps{Keyword: kw, Vector: vec, Embedder: emb}),
		cache:        querycache.New[SearchResult](querycache.DefaultConfig(), emb),
		symbolsIdx:   symbolsIdx,
		needsRebuild: needsRebuild,
	}
	return ps, nil
}

// persist flushes every mutated store to disk. Caller must hold ps.mu
// for writing.
func (ps *projectState) persist() error {
	if err := indexstate.Save(filepath.Join(ps.dir, stateFileName), ps.state); err != nil {
		return err
	}
	if err := ps.keyword.Save(filepath.Join(ps.dir, keywordFileName)); err != nil {
		return err
	}
	if err := ps.vector.Save(filepath.Join(ps.dir, vectorFileName)); err != nil {
		return err
	}
	if err := ps.symbolsIdx.Save(filepath.Join(ps.dir, symbolsFileName)); err != nil {
		return err
	}
	return nil
}

// dropProject evicts a loaded project (used by project.remove, so a
// re-add of the same path starts clean rather than reusing stale
// in-memory stores pointed at a now-deleted directory).
func (c *Context) dropProject(projectID string) {
	c.mu.Lock()
	ps, ok := c.projects[projectID]
	delete(c.projects, projectID)
	c.mu.Unlock()
	if !ok {
		return
	}
	_ = ps.keyword.Close()
	_ = ps.vector.Close()
	_ = ps.symbolsIdx.Close()
	_ = ps.emb.Close()
}

func loadEmbedderMarker(path string) (embedderMarker, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return embedderMarker{}, nil
	}
	if err != nil {
		return embedderMarker{}, ragerrors.Wrap(ragerrors.KindTransient, err)
	}
	var m embedderMarker
	if err := json.Unmarshal(data, &m); err != nil {
		return embedderMarker{}, ragerrors.Corrupt("embedder.json failed to parse", err)
	}
	return m, nil
}

func saveEmbedderMarker(path string, m embedderMarker) error {
	data, err := json.Marshal(m)
	if err != nil {
		return ragerrors.Wrap(ragerrors.KindFatal, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return ragerrors.Wrap(ragerrors.KindFatal, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return ragerrors.Wrap(ragerrors.KindFatal, err)
	}
	return nil
}
