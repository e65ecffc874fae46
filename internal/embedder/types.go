package embedder

import "context"

// Embedder turns chunk (or query) text into unit-L2-normalized vectors of
// a fixed dimension. The dimension is frozen at project creation: once a
// project has been embedded with dimension D, every later embed call for
// that project must return vectors of the same D.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	ModelName() string
	Close() error
}

const (
	// MaxBatchSize is the largest batch the remote embedder will send in a
	// single HTTP request.
	MaxBatchSize = 64

	// DefaultRemoteDimensions is used only for documentation purposes; the
	// remote embedder always trusts what the server returns.
	DefaultRemoteDimensions = 1536

	// LocalDimensions is the fixed output width of the local fallback
	// embedder.
	LocalDimensions = 256
)

// RetryPolicy configures the exponential backoff used by the remote
// embedder when a batch request fails with a transient error.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelayMS int
	Factor      float64
	Jitter      float64
}

// DefaultRetryPolicy returns the policy named by the retrieval engine's
// embedding contract: 3 attempts, 500ms base, factor 2, jitter 0.2.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelayMS: 500,
		Factor:      2,
		Jitter:      0.2,
	}
}
