package ai

import (
	"context"
	"net/http"
)

// Provider is the core interface that every LLM provider implementation must
// satisfy. It covers authentication, endpoint configuration and message
// dispatch for a single chat completion.
type Provider interface {
	// SendMessage sends a chat request to the provider and returns the
	// completed response. A transport or API failure is returned as an
	// error; a successful call without any choice returns ErrEmptyCompletion.
	SendMessage(ctx context.Context, request ChatRequest) (*ChatResponse, error)

	// WithAPIKey sets the API key used for authenticating requests.
	WithAPIKey(apiKey string) Provider

	// WithBaseURL overrides the default base URL for API requests.
	WithBaseURL(baseURL string) Provider

	// WithHttpClient sets the HTTP client used for outbound requests.
	WithHttpClient(httpClient *http.Client) Provider
}

// ProviderFunc adapts a plain function to the SendMessage half of Provider.
// The With* setters are no-ops, which makes it convenient for scripted
// providers in tests and for wrapping another provider.
type ProviderFunc func(ctx context.Context, request ChatRequest) (*ChatResponse, error)

// SendMessage calls the underlying function.
func (providerFunc ProviderFunc) SendMessage(ctx context.Context, request ChatRequest) (*ChatResponse, error) {
	return providerFunc(ctx, request)
}

func (providerFunc ProviderFunc) WithAPIKey(string) Provider          { return providerFunc }
func (providerFunc ProviderFunc) WithBaseURL(string) Provider         { return providerFunc }
func (providerFunc ProviderFunc) WithHttpClient(*http.Client) Provider { return providerFunc }
