package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/leofalp/chatflow/internal/utils"
	"github.com/leofalp/chatflow/providers/ai"
	"github.com/leofalp/chatflow/providers/observability"
)

const (
	defaultBaseURL          = "https://api.openai.com/v1"
	chatCompletionsEndpoint = "/chat/completions"
	defaultHTTPTimeout      = 2 * time.Minute
)

var (
	// ErrMissingAPIKey is returned by SendMessage when no key was configured.
	ErrMissingAPIKey = errors.New("openai: API key is not set")

	// ErrUnauthorized wraps a 401 or 403 answer. Retrying will not help.
	ErrUnauthorized = errors.New("openai: request rejected by the API")
)

// Provider talks to a Chat Completions endpoint. The setters mutate the
// receiver and return it, so a Provider is configured once at start-up and
// then shared.
type Provider struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

var _ ai.Provider = (*Provider)(nil)

// New returns a Provider configured from OPENAI_API_KEY and
// OPENAI_API_BASE_URL.
func New() *Provider {
	provider := &Provider{
		apiKey:  os.Getenv("OPENAI_API_KEY"),
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: defaultHTTPTimeout},
	}
	if baseURL := os.Getenv("OPENAI_API_BASE_URL"); baseURL != "" {
		provider.WithBaseURL(baseURL)
	}
	return provider
}

func (p *Provider) WithAPIKey(apiKey string) ai.Provider {
	p.apiKey = apiKey
	return p
}

// WithBaseURL points the provider at a compatible gateway. A trailing slash
// is ignored.
func (p *Provider) WithBaseURL(baseURL string) ai.Provider {
	p.baseURL = strings.TrimRight(baseURL, "/")
	return p
}

func (p *Provider) WithHttpClient(httpClient *http.Client) ai.Provider {
	p.client = httpClient
	return p
}

// SendMessage posts one chat completion. The first choice of the answer
// must exist; a reply without choices is ai.ErrEmptyCompletion.
func (p *Provider) SendMessage(ctx context.Context, request ai.ChatRequest) (*ai.ChatResponse, error) {
	if p.apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	span := observability.SpanFromContext(ctx)
	if span != nil {
		span.SetAttributes(
			observability.String(observability.AttrLLMProvider, "openai"),
			observability.String(observability.AttrLLMModel, request.Model),
		)
	}

	httpResponse, reply, err := utils.DoPostSync[chatCompletionResponse](ctx, p.client, p.baseURL+chatCompletionsEndpoint, p.apiKey, requestToChatCompletion(request))
	if err != nil {
		var statusErr *utils.StatusError
		if errors.As(err, &statusErr) && (statusErr.StatusCode == http.StatusUnauthorized || statusErr.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("%w: %w", ErrUnauthorized, err)
		}
		return nil, fmt.Errorf("openai chat completion: %w", err)
	}
	if reply == nil {
		return nil, fmt.Errorf("openai chat completion (%s): %w", httpResponse.Status, ai.ErrEmptyCompletion)
	}
	if len(reply.Choices) == 0 {
		return nil, ai.ErrEmptyCompletion
	}

	response := chatCompletionToGeneric(*reply)
	if span != nil {
		span.SetAttributes(
			observability.String(observability.AttrLLMResponseID, response.Id),
			observability.String(observability.AttrLLMFinishReason, response.Choices[0].FinishReason),
		)
		if response.Usage != nil {
			span.SetAttributes(observability.Int(observability.AttrLLMTokensTotal, response.Usage.TotalTokens))
		}
	}
	return response, nil
}
