// Package webhook posts a JSON payload to an external endpoint. Webhook nodes
// use it to push the current run state to integrations (CRMs, dashboards)
// without changing the transcript.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/leofalp/chatflow/internal/utils"
)

// ErrNoURL is returned by Post when the hook has no target.
var ErrNoURL = errors.New("webhook: URL is not configured")

// Hook is one outbound webhook target.
type Hook struct {
	URL    string
	APIKey string
	Client *http.Client
}

// New returns a Hook posting to url with a bounded HTTP client.
func New(url, apiKey string) *Hook {
	return &Hook{URL: url, APIKey: apiKey, Client: &http.Client{Timeout: 15 * time.Second}}
}

// Post sends payload as JSON. Any non-2xx answer is an error.
func (h *Hook) Post(ctx context.Context, payload any) error {
	if h == nil || h.URL == "" {
		return ErrNoURL
	}
	if _, _, err := utils.DoPostSync[map[string]any](ctx, h.Client, h.URL, h.APIKey, payload); err != nil {
		return fmt.Errorf("webhook %s: %w", h.URL, err)
	}
	return nil
}
