// Package corectx wires every retrieval-core component (chunker, scanner,
// indexstate, keywordindex, vectorindex, embedder, indexer, retrieve,
// rerank, querycache, registry, symbols) into the long-lived object the
// design notes call a CoreContext: constructed once at startup, holding no
// global mutable state, and passed into every tool-protocol operation.
//
// Every exported method here corresponds to one row of the spec's tool
// protocol table (rag.search, answer.generate, index.status, ...). The
// transport that turns those calls into wire requests is a collaborator
// outside this package.
package corectx

import (
	"time"

	"github.com/ragline/ragline/internal/embedder"
	"github.com/ragline/ragline/internal/registry"
)

// Candidate is a retrieval-time result enriched with the text and line
// range a bare retrieve.Candidate doesn't carry (those live in the
// keyword index's document store, fetched on demand).
type Candidate struct {
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

// Degraded reason strings, per spec §7's degraded-reasons list.
const (
	ReasonVectorUnavailable = "vector-unavailable"
	ReasonRerankUnavailable = "rerank-unavailable"
	ReasonRerankTimeout     = "rerank-timeout"
)

// SearchResult is the rag.search response shape.
type SearchResult struct {
	Candidates      []Candidate `json:"candidates"`
	DegradedReasons []string    `json:"degraded_reasons,omitempty"`
	FromCache       bool        `json:"from_cache,omitempty"`
}

// Degraded reports whether any subsystem fell back during this call.
func (r SearchResult) Degraded() bool { return len(r.DegradedReasons) > 0 }

// AnswerResult is the answer.generate response shape: a SearchResult
// whose candidates have (optionally) been passed through Rerank.
type AnswerResult struct {
	SearchResult
	Reranked bool `json:"reranked"`
}

// StatusResult is the index.status response shape.
type StatusResult struct {
	FilesIndexed   int       `json:"files_indexed"`
	ChunksIndexed  int       `json:"chunks_indexed"`
	VectorsIndexed int       `json:"vectors_indexed"`
	LastCatchUp    time.Time `json:"last_catchup"`
	EmbedderKind   string    `json:"embedder_kind,omitempty"`
	NeedsRebuild   bool      `json:"needs_rebuild,omitempty"`
}

// CacheStatusResult is the cache.status response shape.
type CacheStatusResult struct {
	ExactEntries int `json:"exact_entries"`
}

// SearchRequest bundles the parameters common to rag.search and the
// retrieval half of answer.generate.
type SearchRequest struct {
	Selector   string
	WorkingDir string
	Query      string
	K          int
	UseVector  bool // not read by RagSearch: vector retrieval runs whenever the project has a vector index
	AutoIndex  bool
	Weights    *Weights
}

// Weights overrides the retrieval fusion weights for a single query.
type Weights struct {
	Alpha float64
	Beta  float64
}

// AnswerRequest extends SearchRequest with answer.generate's own knobs.
type AnswerRequest struct {
	SearchRequest
	Rerank     bool
	Accumulate bool
}

// EnvConfig is the core's own environment-driven configuration surface
// (spec §6: "Environment variables that parameterize the core"). It is
// deliberately independent of internal/config, which configures the CLI
// and dashboard layer kept for backward compatibility outside this
// package's scope.
type EnvConfig struct {
	DataDir string

	EmbedEndpoint string
	EmbedModel    string
	EmbedAPIKey   string
	EmbedTimeout  time.Duration

	LLMEndpoint string
	LLMModel    string
	LLMAPIKey   string
	LLMTimeout  time.Duration

	CatchUpTimeout time.Duration
}

// RemoteEmbedConfig converts the loaded environment into an
// embedder.RemoteConfig, or nil if no remote endpoint was configured.
func (c EnvConfig) RemoteEmbedConfig() *embedder.RemoteConfig {
	if c.EmbedEndpoint == "" {
		return nil
	}
	cfg := embedder.DefaultRemoteConfig()
	cfg.BaseURL = c.EmbedEndpoint
	cfg.Model = c.EmbedModel
	cfg.APIKey = c.EmbedAPIKey
	if c.EmbedTimeout > 0 {
		cfg.Timeout = c.EmbedTimeout
	}
	return &cfg
}

// projectRef is the subset of registry.Project a loaded projectState
// needs repeated access to, copied in rather than held by pointer so a
// concurrent registry mutation (rename is not supported, but Remove is)
// never races a loaded project's fields.
type projectRef struct {
	id   string
	path string
}

func refOf(p *registry.Project) projectRef {
	return projectRef{id: p.ID, path: p.Path}
}
