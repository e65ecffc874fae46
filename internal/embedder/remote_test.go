package embedder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRemoteEmbedder_EmbedBatchReturnsNormalizedVectors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embeddingsRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		resp := embeddingsResponse{}
		for i := range req.Input {
			resp.Data = append(resp.Data, struct {
				Embedding []float32 `json:"embedding"`
				Index     int       `json:"index"`
			}{Embedding: []float32{3, 4}, Index: i})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	e, err := NewRemoteEmbedder(RemoteConfig{BaseURL: srv.URL, Model: "test-model"})
	require.NoError(t, err)

	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.InDelta(t, 0.6, vecs[0][0], 1e-6)
	assert.InDelta(t, 0.8, vecs[0][1], 1e-6)
	assert.Equal(t, 2, e.Dimensions())
}

func TestRemoteEmbedder_DimensionMismatchAcrossCallsIsFatal(t *testing.T) {
	first := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dims := 2
		if !first {
			dims = 3
		}
		first = false
		vec := make([]float32, dims)
		_ = json.NewEncoder(w).Encode(embeddingsResponse{Data: []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}{{Embedding: vec, Index: 0}}})
	}))
	defer srv.Close()

	e, err := NewRemoteEmbedder(RemoteConfig{BaseURL: srv.URL, Model: "test-model"})
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), "a")
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), "b")
	assert.Error(t, err)
}

func TestRemoteEmbedder_RetriesOn5xxThenSucceeds(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(embeddingsResponse{Data: []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}{{Embedding: []float32{1, 0}, Index: 0}}})
	}))
	defer srv.Close()

	e, err := NewRemoteEmbedder(RemoteConfig{
		BaseURL: srv.URL,
		Model:   "test-model",
		Retry:   RetryPolicy{MaxAttempts: 3, BaseDelayMS: 1, Factor: 2, Jitter: 0},
	})
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&attempts))
}

func TestRemoteEmbedder_NonRetryable4xxFailsImmediately(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	e, err := NewRemoteEmbedder(RemoteConfig{
		BaseURL: srv.URL,
		Model:   "test-model",
		Retry:   RetryPolicy{MaxAttempts: 3, BaseDelayMS: 1, Factor: 2, Jitter: 0},
	})
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), "a")
	assert.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))
}

func TestRemoteEmbedder_EmbedBatchSplitsOverMaxBatchSize(t *testing.T) {
	var maxBatch int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embeddingsRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if len(req.Input) > maxBatch {
			maxBatch = len(req.Input)
		}
		resp := embeddingsResponse{}
		for i := range req.Input {
			resp.Data = append(resp.Data, struct {
				Embedding []float32 `json:"embedding"`
				Index     int       `json:"index"`
			}{Embedding: []float32{1, 0}, Index: i})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	e, err := NewRemoteEmbedder(RemoteConfig{BaseURL: srv.URL, Model: "test-model"})
	require.NoError(t, err)

	texts := make([]string, MaxBatchSize+10)
	for i := range texts {
		texts[i] = "x"
	}

	vecs, err := e.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	assert.Len(t, vecs, len(texts))
	assert.LessOrEqual(t, maxBatch, MaxBatchSize)
}

func TestRetryWithBackoff_RespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := retryWithBackoff(ctx, RetryPolicy{MaxAttempts: 3, BaseDelayMS: 500, Factor: 2},
		func(error) bool { return true },
		func() error { return assert.AnError })

	assert.Error(t, err)
}

func TestBackoffDelay_GrowsExponentially(t *testing.T) {
	cfg := RetryPolicy{MaxAttempts: 3, BaseDelayMS: 500, Factor: 2, Jitter: 0}
	assert.Equal(t, 500*time.Millisecond, backoffDelay(cfg, 0))
	assert.Equal(t, 1000*time.Millisecond, backoffDelay(cfg, 1))
	assert.Equal(t, 2000*time.Millisecond, backoffDelay(cfg, 2))
}
