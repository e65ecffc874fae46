// Package rerank implements the LLM re-rank stage: it sends the query
// and a candidate list to a remote LLM, asks for a JSON ordering, and
// falls back to the incoming fused-score order on any failure.
package rerank

import "context"

// Candidate is one chunk offered to the reranker. Text is provided
// already truncated to the per-chunk byte budget by the caller is not
// required; Rerank performs the truncation itself so every caller gets
// the same budget enforcement.
type Candidate struct {
	ChunkID    string
	Path       string
	StartLine  int
	EndLine    int
	Text       string
	FusedScore float64
}

// LLMClient is the minimal surface Rerank needs from a remote LLM. The
// concrete HTTP client is a collaborator outside the retrieval core
// (spec's "LLM/embedding HTTP clients themselves" are out of scope),
// but a default implementation is still provided so the component is
// independently runnable.
type LLMClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Config tunes prompt construction and failure handling.
type Config struct {
	// ByteBudgetPerChunk hard-truncates each candidate's text before it
	// is embedded in the prompt, so the total prompt fits the
	// provider's input window regardless of candidate count.
	ByteBudgetPerChunk int
	// MaxRetries is how many additional attempts are made after the
	// first failed LLM call (spec: "after 2 retries with backoff").
	MaxRetries int
}

// DefaultConfig returns the spec-mandated defaults.
func DefaultConfig() Config {
	return Config{ByteBudgetPerChunk: 2000, MaxRetries: 2}
}

// Result is the outcome of one Rerank call.
type Result struct {
	Candidates []Candidate
	FailedOpen bool // true if the LLM result was discarded in favor of fused-score order
}
