package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	ragerrors "github.com/ragline/ragline/internal/errors"
)

// RemoteConfig configures an OpenAI-compatible embeddings endpoint, e.g.
// OpenAI itself, or any self-hosted server implementing the same
// POST /embeddings contract (llama.cpp server, vLLM, LiteLLM, ...).
type RemoteConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	Dimensions int // frozen D for this project; 0 means "trust the first response"
	Timeout    time.Duration
	HTTPClient *http.Client
	Retry      RetryPolicy
}

// DefaultRemoteConfig fills in sane defaults; BaseURL/APIKey/Model are
// left for the caller to set.
func DefaultRemoteConfig() RemoteConfig {
	return RemoteConfig{
		BaseURL: "https://api.openai.com/v1",
		Timeout: 60 * time.Second,
		Retry:   DefaultRetryPolicy(),
	}
}

// RemoteEmbedder calls an OpenAI-compatible /embeddings endpoint in
// batches of at most MaxBatchSize texts, retrying transient failures
// with exponential backoff.
type RemoteEmbedder struct {
	cfg    RemoteConfig
	client *http.Client

	mu     sync.RWMutex
	dims   int
	closed bool
}

var _ Embedder = (*RemoteEmbedder)(nil)

type embeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingsResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// NewRemoteEmbedder validates cfg and constructs a RemoteEmbedder. It
// does not make a network call; dimension is learned (and frozen) from
// the first successful batch if cfg.Dimensions is 0.
func NewRemoteEmbedder(cfg RemoteConfig) (*RemoteEmbedder, error) {
	if cfg.BaseURL == "" {
		return nil, ragerrors.Fatal("remote embedder requires a base URL", nil)
	}
	if cfg.Model == "" {
		return nil, ragerrors.Fatal("remote embedder requires a model name", nil)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryPolicy()
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	return &RemoteEmbedder{cfg: cfg, client: client, dims: cfg.Dimensions}, nil
}

func (e *RemoteEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (e *RemoteEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, ragerrors.Fatal("embedder is closed", nil)
	}
	e.mu.RUnlock()

	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, len(texts))
	for start := 0; start < len(texts); start += MaxBatchSize {
		end := start + MaxBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]

		vecs, err := e.embedBatchWithRetry(ctx, batch)
		if err != nil {
			return nil, err
		}
		copy(results[start:end], vecs)
	}

	return results, nil
}

func (e *RemoteEmbedder) embedBatchWithRetry(ctx context.Context, batch []string) ([][]float32, error) {
	var out [][]float32
	err := retryWithBackoff(ctx, e.cfg.Retry, ragerrors.IsRetryable, func() error {
		vecs, err := e.doRequest(ctx, batch)
		if err != nil {
			return err
		}
		out = vecs
		return nil
	})
	return out, err
}

func (e *RemoteEmbedder) doRequest(ctx context.Context, batch []string) ([][]float32, error) {
	body, err := json.Marshal(embeddingsRequest{Model: e.cfg.Model, Input: batch})
	if err != nil {
		return nil, ragerrors.Fatal("failed to encode embeddings request", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	url := strings.TrimSuffix(e.cfg.BaseURL, "/") + "/embeddings"
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, ragerrors.Fatal("failed to build embeddings request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)
	}

	type result struct {
		resp *http.Response
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		resp, err := e.client.Do(req)
		ch <- result{resp, err}
	}()

	var resp *http.Response
	select {
	case <-reqCtx.Done():
		return nil, ragerrors.Transient("embeddings request timed out", reqCtx.Err())
	case r := <-ch:
		if r.err != nil {
			return nil, ragerrors.Transient("embeddings request failed", r.err)
		}
		resp = r.resp
	}
	defer func() { _ = resp.Body.Close() }()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ragerrors.Transient("failed to read embeddings response", err)
	}

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return nil, ragerrors.Transient(fmt.Sprintf("embeddings endpoint returned %d", resp.StatusCode), nil).
			WithDetail("body", string(payload))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, ragerrors.Fatal(fmt.Sprintf("embeddings endpoint returned %d", resp.StatusCode), nil).
			WithDetail("body", string(payload))
	}

	var parsed embeddingsResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil, ragerrors.Transient("failed to decode embeddings response", err)
	}
	if parsed.Error != nil {
		return nil, ragerrors.Fatal("embeddings endpoint reported an error", nil).
			WithDetail("message", parsed.Error.Message)
	}
	if len(parsed.Data) == 0 {
		return nil, ragerrors.Transient("embeddings endpoint returned no vectors", nil)
	}

	out := make([][]float32, len(parsed.Data))
	for _, d := range parsed.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, ragerrors.Fatal("embeddings response index out of range", nil)
		}
		out[d.Index] = d.Embedding
	}

	e.mu.Lock()
	for i, v := range out {
		if v == nil {
			e.mu.Unlock()
			return nil, ragerrors.Fatal("embeddings response missing a vector", nil).
				WithDetail("index", strconv.Itoa(i))
		}
		if e.dims == 0 {
			e.dims = len(v)
		} else if len(v) != e.dims {
			e.mu.Unlock()
			return nil, ragerrors.DimensionMismatch(
				"remote embedder returned a vector of unexpected dimension", nil).
				WithDetail("expected", strconv.Itoa(e.dims)).
				WithDetail("got", strconv.Itoa(len(v)))
		}
		out[i] = normalize(v)
	}
	e.mu.Unlock()

	return out, nil
}

func (e *RemoteEmbedder) Dimensions() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dims
}

func (e *RemoteEmbedder) ModelName() string {
	return e.cfg.Model
}

func (e *RemoteEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}
