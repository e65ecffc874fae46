package rerank

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPClient_CompleteReturnsMessageContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		_ = json.NewEncoder(w).Encode(chatResponse{
			Choices: []struct {
				Message chatMessage `json:"message"`
			}{{Message: chatMessage{Role: "assistant", Content: `[{"chunk_id":"x"}]`}}},
		})
	}))
	defer srv.Close()

	client, err := NewHTTPClient(HTTPClientConfig{BaseURL: srv.URL, Model: "test-model"})
	require.NoError(t, err)

	out, err := client.Complete(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, `[{"chunk_id":"x"}]`, out)
}

func TestHTTPClient_ServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client, err := NewHTTPClient(HTTPClientConfig{BaseURL: srv.URL, Model: "test-model"})
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), "prompt")
	require.Error(t, err)
}

func TestNewHTTPClient_RequiresBaseURLAndModel(t *testing.T) {
	_, err := NewHTTPClient(HTTPClientConfig{Model: "m"})
	assert.Error(t, err)

	_, err = NewHTTPClient(HTTPClientConfig{BaseURL: "http://x"})
	assert.Error(t, err)
}
