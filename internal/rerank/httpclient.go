package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	ragerrors "github.com/ragline/ragline/internal/errors"
)

// HTTPClientConfig configures HTTPClient, an OpenAI-compatible
// chat-completion client used as the default LLMClient.
type HTTPClientConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// DefaultHTTPClientConfig mirrors the teacher's MLX reranker defaults
// (same connection-pooled transport shape, no model-specific tuning).
func DefaultHTTPClientConfig() HTTPClientConfig {
	return HTTPClientConfig{
		Timeout: HardTimeout,
		HTTPClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     30 * time.Second,
			},
		},
	}
}

// HTTPClient is the default LLMClient: a single chat-completion call
// against an OpenAI-compatible endpoint, asking for exactly the JSON
// ordering Rerank parses.
type HTTPClient struct {
	cfg HTTPClientConfig
}

var _ LLMClient = (*HTTPClient)(nil)

// NewHTTPClient validates cfg and returns a ready HTTPClient.
func NewHTTPClient(cfg HTTPClientConfig) (*HTTPClient, error) {
	if cfg.BaseURL == "" {
		return nil, ragerrors.Fatal("rerank: BaseURL is required", nil)
	}
	if cfg.Model == "" {
		return nil, ragerrors.Fatal("rerank: Model is required", nil)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = HardTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = DefaultHTTPClientConfig().HTTPClient
	}
	return &HTTPClient{cfg: cfg}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends prompt as a single user message and returns the
// model's raw text response.
func (c *HTTPClient) Complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:    c.cfg.Model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", ragerrors.Wrap(ragerrors.KindFatal, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", ragerrors.Wrap(ragerrors.KindFatal, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return "", ragerrors.Transient("rerank LLM request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", ragerrors.Transient("rerank LLM response read failed", err)
	}

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return "", ragerrors.Transient(fmt.Sprintf("rerank LLM returned status %d", resp.StatusCode), nil)
		}
		return "", ragerrors.Fatal(fmt.Sprintf("rerank LLM returned status %d: %s", resp.StatusCode, string(respBody)), nil)
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", ragerrors.Wrap(ragerrors.KindFatal, err)
	}
	if parsed.Error != nil {
		return "", ragerrors.Fatal(parsed.Error.Message, nil)
	}
	if len(parsed.Choices) == 0 {
		return "", ragerrors.Fatal("rerank LLM returned no choices", nil)
	}
	return parsed.Choices[0].Message.Content, nil
}
