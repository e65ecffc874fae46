package embedder

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// retryWithBackoff runs fn up to cfg.MaxAttempts times, sleeping between
// attempts for base * factor^attempt milliseconds, jittered by +/-
// cfg.Jitter (a fraction of the delay). Only errors for which
// isRetryable returns true are retried; anything else returns
// immediately.
func retryWithBackoff(ctx context.Context, cfg RetryPolicy, isRetryable func(error) bool, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) || attempt == cfg.MaxAttempts-1 {
			return lastErr
		}

		delay := backoffDelay(cfg, attempt)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return lastErr
}

func backoffDelay(cfg RetryPolicy, attempt int) time.Duration {
	base := float64(cfg.BaseDelayMS) * math.Pow(cfg.Factor, float64(attempt))
	if cfg.Jitter > 0 {
		// Uniform in [base*(1-jitter), base*(1+jitter)].
		spread := base * cfg.Jitter
		base += (rand.Float64()*2 - 1) * spread
		if base < 0 {
			base = 0
		}
	}
	return time.Duration(base * float64(time.Millisecond))
}
