package middleware

import (
	"context"
	"time"

	"github.com/leofalp/chatflow/providers/ai"
)

// Timeout bounds each call with a deadline. A shorter deadline already on
// ctx wins. A non-positive timeout leaves calls unbounded.
func Timeout(timeout time.Duration) Middleware {
	return func(next SendFunc) SendFunc {
		if timeout <= 0 {
			return next
		}
		return func(ctx context.Context, request ai.ChatRequest) (*ai.ChatResponse, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			return next(ctx, request)
		}
	}
}
