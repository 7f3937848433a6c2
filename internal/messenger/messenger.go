// Package messenger sends outbound messages through the chat gateway's HTTP
// API.
package messenger

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/leofalp/chatflow/internal/utils"
	"github.com/leofalp/chatflow/providers/observability"
)

// ErrNotConfigured is returned when the gateway URL is empty.
var ErrNotConfigured = errors.New("messenger: gateway URL is not configured")

// Client posts to "<BaseURL>/api/send-message" and "<BaseURL>/api/send-image".
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

func WithAPIKey(apiKey string) Option {
	return func(c *Client) { c.apiKey = apiKey }
}

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) { c.httpClient = client }
}

// New returns a Client for the gateway at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{baseURL: strings.TrimRight(baseURL, "/")}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type textRequest struct {
	Body   string `json:"body"`
	ChatID string `json:"chatId"`
}

type imageRequest struct {
	URL    string `json:"url"`
	ChatID string `json:"chatId"`
}

// SendText delivers body to chatID.
func (c *Client) SendText(ctx context.Context, chatID, body string) error {
	return c.post(ctx, "/api/send-message", chatID, textRequest{Body: body, ChatID: chatID})
}

// SendImage delivers the image at url to chatID.
func (c *Client) SendImage(ctx context.Context, chatID, url string) error {
	return c.post(ctx, "/api/send-image", chatID, imageRequest{URL: url, ChatID: chatID})
}

// Notify implements the redirect tool's notifier by sending body as text.
func (c *Client) Notify(ctx context.Context, chatID, body string) error {
	return c.SendText(ctx, chatID, body)
}

func (c *Client) post(ctx context.Context, path, chatID string, payload any) error {
	if c.baseURL == "" {
		return ErrNotConfigured
	}
	ctx, span := startSpan(ctx, "messenger.send", chatID, path)
	if span != nil {
		defer span.End()
	}

	if _, _, err := utils.DoPostSync[struct{}](ctx, c.httpClient, c.baseURL+path, c.apiKey, payload); err != nil {
		if span != nil {
			span.RecordError(err)
			span.SetStatus(observability.StatusError, err.Error())
		}
		return fmt.Errorf("messenger %s: %w", path, err)
	}
	return nil
}

func startSpan(ctx context.Context, name, chatID, path string) (context.Context, observability.Span) {
	observer := observability.ObserverFromContext(ctx)
	if observer == nil {
		return ctx, nil
	}
	return observer.StartSpan(ctx, name,
		observability.String(observability.AttrGraphThreadID, chatID),
		observability.String(observability.AttrHTTPURL, path),
	)
}
