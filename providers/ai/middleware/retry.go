package middleware

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/leofalp/chatflow/internal/utils"
	"github.com/leofalp/chatflow/providers/ai"
)

// RetryConfig tunes [Retry]. Zero fields take the defaults noted per field.
type RetryConfig struct {
	// MaxRetries counts attempts after the first one. Default: 3.
	MaxRetries int

	// InitialBackoff is the wait before the first retry. Default: 1s.
	InitialBackoff time.Duration

	// MaxBackoff caps the computed wait. Default: 30s.
	MaxBackoff time.Duration

	// BackoffFactor grows the wait per retry. Default: 2.
	BackoffFactor float64

	// JitterFraction adds up to this fraction of the wait at random. Default: 0.1.
	JitterFraction float64

	// Retryable reports whether err deserves another attempt. The default
	// retries a *utils.StatusError carrying 429, 500, 502, 503 or 529.
	Retryable func(error) bool

	// Sleep waits between attempts; tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error
}

var transientStatuses = map[int]bool{429: true, 500: true, 502: true, 503: true, 529: true}

func isTransient(err error) bool {
	var statusErr *utils.StatusError
	return errors.As(err, &statusErr) && transientStatuses[statusErr.StatusCode]
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (config *RetryConfig) applyDefaults() {
	if config.MaxRetries == 0 {
		config.MaxRetries = 3
	}
	if config.InitialBackoff == 0 {
		config.InitialBackoff = time.Second
	}
	if config.MaxBackoff == 0 {
		config.MaxBackoff = 30 * time.Second
	}
	if config.BackoffFactor == 0 {
		config.BackoffFactor = 2
	}
	if config.JitterFraction == 0 {
		config.JitterFraction = 0.1
	}
	if config.Retryable == nil {
		config.Retryable = isTransient
	}
	if config.Sleep == nil {
		config.Sleep = sleepContext
	}
}

// backoff returns min(InitialBackoff * BackoffFactor^attempt, MaxBackoff)
// plus jitter, attempt being zero-based.
func (config RetryConfig) backoff(attempt int) time.Duration {
	base := float64(config.InitialBackoff) * math.Pow(config.BackoffFactor, float64(attempt))
	base = min(base, float64(config.MaxBackoff))
	jitter := base * config.JitterFraction * rand.Float64() //nolint:gosec // jitter needs no crypto
	return time.Duration(base + jitter)
}

// Retry re-sends a request that failed with a retryable error. A
// non-retryable error is returned as is; cancellation of ctx between
// attempts returns ctx.Err().
func Retry(config RetryConfig) Middleware {
	config.applyDefaults()
	return func(next SendFunc) SendFunc {
		return func(ctx context.Context, request ai.ChatRequest) (*ai.ChatResponse, error) {
			var lastErr error
			for attempt := 0; attempt <= config.MaxRetries; attempt++ {
				if attempt > 0 {
					if err := config.Sleep(ctx, config.backoff(attempt-1)); err != nil {
						return nil, err
					}
				}
				response, err := next(ctx, request)
				if err == nil {
					return response, nil
				}
				if !config.Retryable(err) {
					return nil, err
				}
				lastErr = err
			}
			return nil, fmt.Errorf("%w after %d retries: %w", ErrRetryExhausted, config.MaxRetries, lastErr)
		}
	}
}
