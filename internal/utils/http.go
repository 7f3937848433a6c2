package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/leofalp/chatflow/providers/observability"
)

// errorBodyLimit bounds how much of a failed response ends up in an error.
const errorBodyLimit = 500

// StatusError is returned by DoPostSync when the server answers outside 2xx.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("non-2xx status %d: %s", e.StatusCode, e.Body)
}

// DoPostSync POSTs body as JSON to url and decodes a JSON reply into
// OutputStruct. apiKey, when set, is sent as a bearer token. A 2xx reply
// with an empty body yields a nil result and no error; any other status is
// a *StatusError. Progress is recorded as events on the span in ctx.
func DoPostSync[OutputStruct any](ctx context.Context, client *http.Client, url string, apiKey string, body any) (*http.Response, *OutputStruct, error) {
	if client == nil {
		client = http.DefaultClient
	}
	span := observability.SpanFromContext(ctx)

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, nil, fmt.Errorf("encode request: %w", err)
	}
	spanEvent(span, "http.request.prepared",
		observability.String(observability.AttrHTTPMethod, http.MethodPost),
		observability.String(observability.AttrHTTPURL, url),
		observability.Int(observability.AttrHTTPRequestBodySize, len(payload)),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	started := time.Now()
	res, err := client.Do(req)
	if err != nil {
		spanEvent(span, "http.request.error",
			observability.Error(err),
			observability.Duration(observability.AttrDuration, time.Since(started)),
		)
		return res, nil, fmt.Errorf("send request: %w", err)
	}
	defer CloseWithLog(res.Body)

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return res, nil, fmt.Errorf("read response: %w", err)
	}
	spanEvent(span, "http.response.received",
		observability.Int(observability.AttrHTTPStatusCode, res.StatusCode),
		observability.Int(observability.AttrHTTPResponseBodySize, len(raw)),
		observability.Duration(observability.AttrDuration, time.Since(started)),
	)

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return res, nil, &StatusError{StatusCode: res.StatusCode, Body: TruncateString(string(raw), errorBodyLimit)}
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return res, nil, nil
	}

	out := new(OutputStruct)
	if err := json.Unmarshal(raw, out); err != nil {
		return res, nil, fmt.Errorf("unmarshal response (status %d): %w; body: %s", res.StatusCode, err, TruncateString(string(raw), errorBodyLimit))
	}
	return res, out, nil
}

func spanEvent(span observability.Span, name string, attrs ...observability.Attribute) {
	if span != nil {
		span.AddEvent(name, attrs...)
	}
}

// CloseWithLog closes c, logging instead of returning a failure. Use it in
// defers where the close error is not actionable.
func CloseWithLog(c io.Closer) {
	if c == nil {
		return
	}
	if err := c.Close(); err != nil {
		slog.Warn("close failed", "error", err)
	}
}
