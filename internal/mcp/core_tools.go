package mcp

import (
	"context"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ragline/ragline/internal/corectx"
	"github.com/ragline/ragline/internal/indexer"
	"github.com/ragline/ragline/internal/registry"
	"github.com/ragline/ragline/internal/symbols"
)

// corePort is the subset of *corectx.Context the core tool handlers call.
// Kept as an interface so handlers depend on a collaborator rather than
// a concrete type.
type corePort interface {
	RagSearch(ctx context.Context, req corectx.SearchRequest) (corectx.SearchResult, error)
	AnswerGenerate(ctx context.Context, req corectx.AnswerRequest) (corectx.AnswerResult, error)
	IndexStatus(ctx context.Context, projectID string) (corectx.StatusResult, error)
	IndexRebuild(ctx context.Context, projectID string, dropKeyword bool) (indexer.Result, error)
	AddProject(name, path string) (*registry.Project, error)
	ActivateProject(selector string) (*registry.Project, error)
	RemoveProject(selector string) error
	ListProjects() []*registry.Project
	CacheClear(ctx context.Context, projectID string) error
	CacheStatus(ctx context.Context, projectID string) (corectx.CacheStatusResult, error)
	CodeSymbols(ctx context.Context, projectID, path string) ([]symbols.Symbol, error)
	CodeFindSymbol(ctx context.Context, projectID, name string, kind symbols.Kind) ([]symbols.Location, error)
	CodeReferences(ctx context.Context, projectID, name string) ([]symbols.Location, error)
}

// RegisterCoreTools registers the CoreContext tool set (rag.search,
// answer.generate, index.status, index.rebuild, project.*, cache.*,
// code.*) alongside the "search" tool already registered by NewServer.
// AI clients reach all of them through the SDK's own dispatch once
// registered via mcp.AddTool.
func (s *Server) RegisterCoreTools(core corePort) {
	s.mu.Lock()
	s.core = core
	s.mu.Unlock()

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "rag_search",
		Description: "Hybrid keyword+semantic search over a registered project's index, returning fused and enriched candidates.",
	}, s.coreRagSearchHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "answer_generate",
		Description: "Runs rag_search and optionally reranks the result with an LLM reranker, falling back to fused order if reranking is unavailable.",
	}, s.coreAnswerGenerateHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "index_status_v2",
		Description: "Reports file/chunk/vector counts and rebuild-needed state for a registered project's index.",
	}, s.coreIndexStatusHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "index_rebuild",
		Description: "Rebuilds a registered project's vector index from scratch, optionally dropping the keyword index too.",
	}, s.coreIndexRebuildHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "project_add",
		Description: "Registers a directory as a project the core tool set can index and search.",
	}, s.coreProjectAddHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "project_activate",
		Description: "Marks a registered project as the active default for selector-less requests.",
	}, s.coreProjectActivateHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "project_remove",
		Description: "Unregisters a project and drops its in-memory index state.",
	}, s.coreProjectRemoveHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "project_list",
		Description: "Lists every registered project.",
	}, s.coreProjectListHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "cache_clear",
		Description: "Clears the query cache for a registered project.",
	}, s.coreCacheClearHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "cache_status",
		Description: "Reports the query cache's current exact-tier entry count for a registered project.",
	}, s.coreCacheStatusHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "code_symbols",
		Description: "Lists every named definition the symbol index extracted from a file.",
	}, s.coreCodeSymbolsHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "code_find_symbol",
		Description: "Finds definition sites for a symbol name, optionally restricted to a kind (function, type, ...).",
	}, s.coreCodeFindSymbolHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "code_references",
		Description: "Finds reference sites for an identifier across a project's parsed files.",
	}, s.coreCodeReferencesHandler)

	s.logger.Info("core tools registered", slog.Int("count", 13))
}

// CoreWeightsInput overrides rag.search's fusion weights for one call.
type CoreWeightsInput struct {
	Alpha float64 `json:"alpha,omitempty" jsonschema:"keyword-score fusion weight"`
	Beta  float64 `json:"beta,omitempty" jsonschema:"vector-score fusion weight"`
}

// CoreSearchInput defines the input schema for rag_search.
type CoreSearchInput struct {
	Project   string            `json:"project,omitempty" jsonschema:"project name, id, or path; empty selects the active project"`
	Query     string            `json:"query" jsonschema:"the search query to execute"`
	K         int               `json:"k,omitempty" jsonschema:"maximum number of candidates, default 10"`
	AutoIndex bool              `json:"auto_index,omitempty" jsonschema:"catch the index up before searching"`
	Weights   *CoreWeightsInput `json:"weights,omitempty" jsonschema:"override fusion weights for this call"`
}

// CoreCandidateOutput mirrors corectx.Candidate for the wire.
type CoreCandidateOutput struct {
	ChunkID      string  `json:"chunk_id"`
	Path         string  `json:"path"`
	StartLine    int     `json:"start_line"`
	EndLine      int     `json:"end_line"`
	Text         string  `json:"text"`
	KeywordScore float64 `json:"keyword_score,omitempty"`
	VectorScore  float64 `json:"vector_score,omitempty"`
	FusedScore   float64 `json:"fused_score"`
	InBoth       bool    `json:"in_both_lists,omitempty"`
}

// CoreSearchOutput defines the output schema for rag_search.
type CoreSearchOutput struct {
	Candidates      []CoreCandidateOutput `json:"candidates"`
	DegradedReasons []string              `json:"degraded_reasons,omitempty"`
	FromCache       bool                  `json:"from_cache,omitempty"`
}

func toCoreCandidateOutputs(cands []corectx.Candidate) []CoreCandidateOutput {
	out := make([]CoreCandidateOutput, len(cands))
	for i, c := range cands {
		out[i] = CoreCandidateOutput{
			ChunkID: c.ChunkID, Path: c.Path, StartLine: c.StartLine, EndLine: c.EndLine,
			Text: c.Text, KeywordScore: c.KeywordScore, VectorScore: c.VectorScore,
			FusedScore: c.FusedScore, InBoth: c.InBoth,
		}
	}
	return out
}

func weightsFromInput(w *CoreWeightsInput) *corectx.Weights {
	if w == nil {
		return nil
	}
	return &corectx.Weights{Alpha: w.Alpha, Beta: w.Beta}
}

func (s *Server) coreRagSearchHandler(ctx context.Context, _ *mcp.CallToolRequest, input CoreSearchInput) (
	*mcp.CallToolResult, CoreSearchOutput, error,
) {
	if input.Query == "" {
		return nil, CoreSearchOutput{}, NewInvalidParamsError("query parameter is required")
	}
	res, err := s.core.RagSearch(ctx, corectx.SearchRequest{
		Selector: input.Project, Query: input.Query, K: input.K,
		AutoIndex: input.AutoIndex, Weights: weightsFromInput(input.Weights),
	})
	if err != nil {
		return nil, CoreSearchOutput{}, MapError(err)
	}
	return nil, CoreSearchOutput{
		Candidates:      toCoreCandidateOutputs(res.Candidates),
		DegradedReasons: res.DegradedReasons,
		FromCache:       res.FromCache,
	}, nil
}

// CoreAnswerInput defines the input schema for answer_generate.
type CoreAnswerInput struct {
	CoreSearchInput
	Rerank bool `json:"rerank,omitempty" jsonschema:"pass candidates through the LLM reranker"`
}

// CoreAnswerOutput defines the output schema for answer_generate.
type CoreAnswerOutput struct {
	CoreSearchOutput
	Reranked bool `json:"reranked"`
}

func (s *Server) coreAnswerGenerateHandler(ctx context.Context, _ *mcp.CallToolRequest, input CoreAnswerInput) (
	*mcp.CallToolResult, CoreAnswerOutput, error,
) {
	if input.Query == "" {
		return nil, CoreAnswerOutput{}, NewInvalidParamsError("query parameter is required")
	}
	res, err := s.core.AnswerGenerate(ctx, corectx.AnswerRequest{
		SearchRequest: corectx.SearchRequest{
			Selector: input.Project, Query: input.Query, K: input.K,
			AutoIndex: input.AutoIndex, Weights: weightsFromInput(input.Weights),
		},
		Rerank: input.Rerank,
	})
	if err != nil {
		return nil, CoreAnswerOutput{}, MapError(err)
	}
	return nil, CoreAnswerOutput{
		CoreSearchOutput: CoreSearchOutput{
			Candidates:      toCoreCandidateOutputs(res.Candidates),
			DegradedReasons: res.DegradedReasons,
			FromCache:       res.FromCache,
		},
		Reranked: res.Reranked,
	}, nil
}

// CoreProjectIDInput addresses an operation by registered project id.
type CoreProjectIDInput struct {
	ProjectID string `json:"project_id" jsonschema:"the registered project's id"`
}

// CoreIndexStatusOutput defines the output schema for index_status_v2.
type CoreIndexStatusOutput struct {
	FilesIndexed   int    `json:"files_indexed"`
	ChunksIndexed  int    `json:"chunks_indexed"`
	VectorsIndexed int    `json:"vectors_indexed"`
	EmbedderKind   string `json:"embedder_kind,omitempty"`
	NeedsRebuild   bool   `json:"needs_rebuild,omitempty"`
}

func (s *Server) coreIndexStatusHandler(ctx context.Context, _ *mcp.CallToolRequest, input CoreProjectIDInput) (
	*mcp.CallToolResult, CoreIndexStatusOutput, error,
) {
	if input.ProjectID == "" {
		return nil, CoreIndexStatusOutput{}, NewInvalidParamsError("project_id parameter is required")
	}
	res, err := s.core.IndexStatus(ctx, input.ProjectID)
	if err != nil {
		return nil, CoreIndexStatusOutput{}, MapError(err)
	}
	return nil, CoreIndexStatusOutput{
		FilesIndexed: res.FilesIndexed, ChunksIndexed: res.ChunksIndexed,
		VectorsIndexed: res.VectorsIndexed, EmbedderKind: res.EmbedderKind,
		NeedsRebuild: res.NeedsRebuild,
	}, nil
}

// CoreIndexRebuildInput defines the input schema for index_rebuild.
type CoreIndexRebuildInput struct {
	ProjectID   string `json:"project_id" jsonschema:"the registered project's id"`
	DropKeyword bool   `json:"drop_keyword,omitempty" jsonschema:"also drop and rebuild the keyword index"`
}

// CoreIndexRebuildOutput defines the output schema for index_rebuild.
type CoreIndexRebuildOutput struct {
	FilesAdded   int `json:"files_added"`
	FilesUpdated int `json:"files_updated"`
	FilesDeleted int `json:"files_deleted"`
}

func (s *Server) coreIndexRebuildHandler(ctx context.Context, _ *mcp.CallToolRequest, input CoreIndexRebuildInput) (
	*mcp.CallToolResult, CoreIndexRebuildOutput, error,
) {
	if input.ProjectID == "" {
		return nil, CoreIndexRebuildOutput{}, NewInvalidParamsError("project_id parameter is required")
	}
	res, err := s.core.IndexRebuild(ctx, input.ProjectID, input.DropKeyword)
	if err != nil {
		return nil, CoreIndexRebuildOutput{}, MapError(err)
	}
	return nil, CoreIndexRebuildOutput{
		FilesAdded: res.FilesAdded, FilesUpdated: res.FilesModified, FilesDeleted: res.FilesDeleted,
	}, nil
}

// CoreProjectAddInput defines the input schema for project_add.
type CoreProjectAddInput struct {
	Name string `json:"name,omitempty" jsonschema:"display name; derived from the path if omitted"`
	Path string `json:"path" jsonschema:"absolute or relative path to the project root"`
}

// CoreProjectOutput describes one registered project.
type CoreProjectOutput struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Path     string `json:"path"`
	IsActive bool   `json:"is_active,omitempty"`
}

func toCoreProjectOutput(p *registry.Project) CoreProjectOutput {
	return CoreProjectOutput{ID: p.ID, Name: p.Name, Path: p.Path, IsActive: p.Active}
}

func (s *Server) coreProjectAddHandler(_ context.Context, _ *mcp.CallToolRequest, input CoreProjectAddInput) (
	*mcp.CallToolResult, CoreProjectOutput, error,
) {
	if input.Path == "" {
		return nil, CoreProjectOutput{}, NewInvalidParamsError("path parameter is required")
	}
	proj, err := s.core.AddProject(input.Name, input.Path)
	if err != nil {
		return nil, CoreProjectOutput{}, MapError(err)
	}
	return nil, toCoreProjectOutput(proj), nil
}

// CoreSelectorInput addresses an operation by name, id, or path selector.
type CoreSelectorInput struct {
	Selector string `json:"selector" jsonschema:"project name, id, or path"`
}

func (s *Server) coreProjectActivateHandler(_ context.Context, _ *mcp.CallToolRequest, input CoreSelectorInput) (
	*mcp.CallToolResult, CoreProjectOutput, error,
) {
	if input.Selector == "" {
		return nil, CoreProjectOutput{}, NewInvalidParamsError("selector parameter is required")
	}
	proj, err := s.core.ActivateProject(input.Selector)
	if err != nil {
		return nil, CoreProjectOutput{}, MapError(err)
	}
	return nil, toCoreProjectOutput(proj), nil
}

// CoreProjectRemoveOutput defines the output schema for project_remove.
type CoreProjectRemoveOutput struct {
	Removed bool `json:"removed"`
}

func (s *Server) coreProjectRemoveHandler(_ context.Context, _ *mcp.CallToolRequest, input CoreSelectorInput) (
	*mcp.CallToolResult, CoreProjectRemoveOutput, error,
) {
	if input.Selector == "" {
		return nil, CoreProjectRemoveOutput{}, NewInvalidParamsError("selector parameter is required")
	}
	if err := s.core.RemoveProject(input.Selector); err != nil {
		return nil, CoreProjectRemoveOutput{}, MapError(err)
	}
	return nil, CoreProjectRemoveOutput{Removed: true}, nil
}

// CoreProjectListInput takes no parameters; the SDK still requires a type.
type CoreProjectListInput struct{}

// CoreProjectListOutput defines the output schema for project_list.
type CoreProjectListOutput struct {
	Projects []CoreProjectOutput `json:"projects"`
}

func (s *Server) coreProjectListHandler(_ context.Context, _ *mcp.CallToolRequest, _ CoreProjectListInput) (
	*mcp.CallToolResult, CoreProjectListOutput, error,
) {
	projects := s.core.ListProjects()
	out := make([]CoreProjectOutput, len(projects))
	for i, p := range projects {
		out[i] = toCoreProjectOutput(p)
	}
	return nil, CoreProjectListOutput{Projects: out}, nil
}

// CoreCacheClearOutput defines the output schema for cache_clear.
type CoreCacheClearOutput struct {
	Cleared bool `json:"cleared"`
}

func (s *Server) coreCacheClearHandler(ctx context.Context, _ *mcp.CallToolRequest, input CoreProjectIDInput) (
	*mcp.CallToolResult, CoreCacheClearOutput, error,
) {
	if input.ProjectID == "" {
		return nil, CoreCacheClearOutput{}, NewInvalidParamsError("project_id parameter is required")
	}
	if err := s.core.CacheClear(ctx, input.ProjectID); err != nil {
		return nil, CoreCacheClearOutput{}, MapError(err)
	}
	return nil, CoreCacheClearOutput{Cleared: true}, nil
}

// CoreCacheStatusOutput defines the output schema for cache_status.
type CoreCacheStatusOutput struct {
	ExactEntries int `json:"exact_entries"`
}

func (s *Server) coreCacheStatusHandler(ctx context.Context, _ *mcp.CallToolRequest, input CoreProjectIDInput) (
	*mcp.CallToolResult, CoreCacheStatusOutput, error,
) {
	if input.ProjectID == "" {
		return nil, CoreCacheStatusOutput{}, NewInvalidParamsError("project_id parameter is required")
	}
	res, err := s.core.CacheStatus(ctx, input.ProjectID)
	if err != nil {
		return nil, CoreCacheStatusOutput{}, MapError(err)
	}
	return nil, CoreCacheStatusOutput{ExactEntries: res.ExactEntries}, nil
}

// CoreCodeSymbolsInput defines the input schema for code_symbols.
type CoreCodeSymbolsInput struct {
	ProjectID string `json:"project_id" jsonschema:"the registered project's id"`
	Path      string `json:"path" jsonschema:"file path relative to the project root"`
}

// CoreSymbolOutput mirrors symbols.Symbol for the wire.
type CoreSymbolOutput struct {
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
	Signature string `json:"signature,omitempty"`
}

// CoreCodeSymbolsOutput defines the output schema for code_symbols.
type CoreCodeSymbolsOutput struct {
	Symbols []CoreSymbolOutput `json:"symbols"`
}

func (s *Server) coreCodeSymbolsHandler(ctx context.Context, _ *mcp.CallToolRequest, input CoreCodeSymbolsInput) (
	*mcp.CallToolResult, CoreCodeSymbolsOutput, error,
) {
	if input.ProjectID == "" || input.Path == "" {
		return nil, CoreCodeSymbolsOutput{}, NewInvalidParamsError("project_id and path parameters are required")
	}
	syms, err := s.core.CodeSymbols(ctx, input.ProjectID, input.Path)
	if err != nil {
		return nil, CoreCodeSymbolsOutput{}, MapError(err)
	}
	out := make([]CoreSymbolOutput, len(syms))
	for i, sym := range syms {
		out[i] = CoreSymbolOutput{
			Name: sym.Name, Kind: string(sym.Kind),
			StartLine: sym.StartLine, EndLine: sym.EndLine, Signature: sym.Signature,
		}
	}
	return nil, CoreCodeSymbolsOutput{Symbols: out}, nil
}

// CoreLocationOutput mirrors symbols.Location for the wire.
type CoreLocationOutput struct {
	Path      string `json:"path"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
}

func toCoreLocationOutputs(locs []symbols.Location) []CoreLocationOutput {
	out := make([]CoreLocationOutput, len(locs))
	for i, l := range locs {
		out[i] = CoreLocationOutput{Path: l.Path, StartLine: l.StartLine, EndLine: l.EndLine}
	}
	return out
}

// CoreFindSymbolInput defines the input schema for code_find_symbol.
type CoreFindSymbolInput struct {
	ProjectID string `json:"project_id" jsonschema:"the registered project's id"`
	Name      string `json:"name" jsonschema:"the symbol name to find"`
	Kind      string `json:"kind,omitempty" jsonschema:"restrict to a symbol kind; empty matches any"`
}

// CoreLocationsOutput defines the output schema for code_find_symbol and code_references.
type CoreLocationsOutput struct {
	Locations []CoreLocationOutput `json:"locations"`
}

func (s *Server) coreCodeFindSymbolHandler(ctx context.Context, _ *mcp.CallToolRequest, input CoreFindSymbolInput) (
	*mcp.CallToolResult, CoreLocationsOutput, error,
) {
	if input.ProjectID == "" || input.Name == "" {
		return nil, CoreLocationsOutput{}, NewInvalidParamsError("project_id and name parameters are required")
	}
	locs, err := s.core.CodeFindSymbol(ctx, input.ProjectID, input.Name, symbols.Kind(input.Kind))
	if err != nil {
		return nil, CoreLocationsOutput{}, MapError(err)
	}
	return nil, CoreLocationsOutput{Locations: toCoreLocationOutputs(locs)}, nil
}

// CoreReferencesInput defines the input schema for code_references.
type CoreReferencesInput struct {
	ProjectID string `json:"project_id" jsonschema:"the registered project's id"`
	Name      string `json:"name" jsonschema:"the identifier to find references for"`
}

func (s *Server) coreCodeReferencesHandler(ctx context.Context, _ *mcp.CallToolRequest, input CoreReferencesInput) (
	*mcp.CallToolResult, CoreLocationsOutput, error,
) {
	if input.ProjectID == "" || input.Name == "" {
		return nil, CoreLocationsOutput{}, NewInvalidParamsError("project_id and name parameters are required")
	}
	locs, err := s.core.CodeReferences(ctx, input.ProjectID, input.Name)
	if err != nil {
		return nil, CoreLocationsOutput{}, MapError(err)
	}
	return nil, CoreLocationsOutput{Locations: toCoreLocationOutputs(locs)}, nil
}
