package rerank

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"time"

	ragerrors "github.com/ragline/ragline/internal/errors"
)

// HardTimeout bounds the entire Rerank call, including retries.
const HardTimeout = 30 * time.Second

// Reranker calls an LLMClient to reorder a candidate list, filtering
// hallucinated ids and failing open to the incoming fused-score order
// on any parse or network failure.
type Reranker struct {
	client LLMClient
	cfg    Config
}

// New constructs a Reranker. A nil client makes every call fail open
// immediately, which is a valid "rerank disabled" configuration.
func New(client LLMClient, cfg Config) *Reranker {
	if cfg.ByteBudgetPerChunk <= 0 {
		cfg = DefaultConfig()
	}
	return &Reranker{client: client, cfg: cfg}
}

// Rerank asks the LLM to reorder candidates by relevance to query and
// returns the first finalK of its response, preserving LLM order. On
// any parse/network failure (after MaxRetries retries) it fails open:
// the first finalK candidates in their incoming (fused-score) order
// are returned instead, with Result.FailedOpen set.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []Candidate, finalK int) (Result, error) {
	if len(candidates) == 0 || finalK <= 0 {
		return Result{}, nil
	}

	truncated := make([]Candidate, len(candidates))
	for i, c := range candidates {
		truncated[i] = c
		truncated[i].Text = truncateBytes(c.Text, r.cfg.ByteBudgetPerChunk)
	}

	if r.client == nil {
		return r.failOpen(truncated, finalK), nil
	}

	ctx, cancel := context.WithTimeout(ctx, HardTimeout)
	defer cancel()

	prompt := buildPrompt(query, truncated)

	var raw string
	err := retryWithBackoff(ctx, r.cfg.MaxRetries, func() error {
		out, callErr := r.client.Complete(ctx, prompt)
		if callErr != nil {
			return callErr
		}
		raw = out
		return nil
	})
	if err != nil {
		return r.failOpen(truncated, finalK), nil
	}

	ordered, parseErr := parseOrdering(raw)
	if parseErr != nil {
		return r.failOpen(truncated, finalK), nil
	}

	byID := make(map[string]Candidate, len(truncated))
	for _, c := range truncated {
		byID[c.ChunkID] = c
	}

	out := make([]Candidate, 0, finalK)
	for _, id := range ordered {
		c, ok := byID[id]
		if !ok {
			// hallucinated id: not one of the offered candidates, skip it.
			continue
		}
		out = append(out, c)
		if len(out) == finalK {
			break
		}
	}

	if len(out) == 0 {
		return r.failOpen(truncated, finalK), nil
	}

	return Result{Candidates: out}, nil
}

func (r *Reranker) failOpen(candidates []Candidate, finalK int) Result {
	if finalK > len(candidates) {
		finalK = len(candidates)
	}
	return Result{Candidates: candidates[:finalK], FailedOpen: true}
}

// truncateBytes hard-truncates s to at most n bytes. It does not care
// about splitting a multi-byte rune; the reranker treats this as a
// plain byte budget, matching the spec's literal "byte budget" wording.
func truncateBytes(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n]
}

func buildPrompt(query string, candidates []Candidate) string {
	var b strings.Builder
	b.WriteString("You are ranking code search candidates by relevance to a query.\n")
	b.WriteString("Query: ")
	b.WriteString(query)
	b.WriteString("\n\nCandidates:\n")
	for _, c := range candidates {
		fmt.Fprintf(&b, "- id: %s\n  path: %s:%d-%d\n  text: %s\n", c.ChunkID, c.Path, c.StartLine, c.EndLine, c.Text)
	}
	b.WriteString("\nRespond with a JSON array ordered from most to least relevant, each element shaped like " +
		`{"chunk_id": "...", "reason": "..."}` + ". Only include chunk-ids from the candidates above.\n")
	return b.String()
}

type orderingEntry struct {
	ChunkID string `json:"chunk_id"`
	Reason  string `json:"reason"`
}

// parseOrdering extracts the JSON array of ordered chunk-ids from an
// LLM response, tolerating surrounding prose by locating the
// outermost [...] span.
func parseOrdering(raw string) ([]string, error) {
	start := strings.IndexByte(raw, '[')
	end := strings.LastIndexByte(raw, ']')
	if start < 0 || end <= start {
		return nil, ragerrors.Fatal("rerank response contained no JSON array", nil)
	}

	var entries []orderingEntry
	if err := json.Unmarshal([]byte(raw[start:end+1]), &entries); err != nil {
		return nil, ragerrors.Wrap(ragerrors.KindFatal, err)
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.ChunkID != "" {
			ids = append(ids, e.ChunkID)
		}
	}
	return ids, nil
}

// retryWithBackoff retries fn up to maxRetries additional times (so
// maxRetries+1 attempts total) with jittered exponential backoff,
// matching internal/embedder's retry shape but scoped to this
// package's own call sites.
func retryWithBackoff(ctx context.Context, maxRetries int, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(attempt - 1)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
		if err := fn(); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return lastErr
}

func backoffDelay(attempt int) time.Duration {
	const (
		base   = 500 * time.Millisecond
		factor = 2.0
		jitter = 0.2
	)
	d := float64(base) * pow(factor, attempt)
	delta := d * jitter
	d += delta * (rand.Float64()*2 - 1)
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

func pow(base float64, exp int) float64 {
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}
