package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/leofalp/chatflow/providers/ai"
)

// ErrRetryExhausted is returned by [Retry] once every attempt failed with a
// retryable error. The last provider error is wrapped alongside it.
var ErrRetryExhausted = errors.New("chatflow: all retry attempts exhausted")

// SendFunc is the signature a middleware decorates.
type SendFunc func(ctx context.Context, request ai.ChatRequest) (*ai.ChatResponse, error)

// Middleware decorates a SendFunc.
type Middleware func(next SendFunc) SendFunc

// Provider is an ai.Provider whose SendMessage runs through a middleware
// chain. The With* setters reconfigure the wrapped provider and keep the
// chain.
type Provider struct {
	base        ai.Provider
	middlewares []Middleware
	send        SendFunc
}

var _ ai.Provider = (*Provider)(nil)

// Wrap returns base decorated with middlewares, first one outermost.
func Wrap(base ai.Provider, middlewares ...Middleware) *Provider {
	send := SendFunc(base.SendMessage)
	for i := len(middlewares) - 1; i >= 0; i-- {
		if middlewares[i] != nil {
			send = middlewares[i](send)
		}
	}
	return &Provider{base: base, middlewares: middlewares, send: send}
}

func (provider *Provider) SendMessage(ctx context.Context, request ai.ChatRequest) (*ai.ChatResponse, error) {
	return provider.send(ctx, request)
}

func (provider *Provider) WithAPIKey(apiKey string) ai.Provider {
	return Wrap(provider.base.WithAPIKey(apiKey), provider.middlewares...)
}

func (provider *Provider) WithBaseURL(baseURL string) ai.Provider {
	return Wrap(provider.base.WithBaseURL(baseURL), provider.middlewares...)
}

func (provider *Provider) WithHttpClient(httpClient *http.Client) ai.Provider {
	return Wrap(provider.base.WithHttpClient(httpClient), provider.middlewares...)
}

// Unwrap returns the undecorated provider.
func (provider *Provider) Unwrap() ai.Provider {
	return provider.base
}
