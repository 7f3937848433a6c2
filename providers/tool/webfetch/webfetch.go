package webfetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"

	"github.com/leofalp/chatflow/internal/utils"
	"github.com/leofalp/chatflow/providers/tool"
)

// Name is the tool name advertised to the model and the id of the matching tool node.
const Name = "webfetch"

const (
	DefaultTimeout   = 30 * time.Second
	DefaultUserAgent = "chatflow-webfetch/1.0"

	// MaxBodySize caps the downloaded page (5MB)
	MaxBodySize  = 5 * 1024 * 1024
	maxRedirects = 10
)

// ErrEmptyURL is returned when the model calls the tool without a URL.
var ErrEmptyURL = errors.New("webfetch: URL cannot be empty")

// Input holds the arguments the model passes to the tool.
type Input struct {
	URL            string `json:"url" jsonschema:"description=Page to read. Partial URLs like 'example.com' get an https:// prefix,required"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty" jsonschema:"description=Request timeout in seconds (default 30)"`
}

// Output is what the model receives back.
type Output struct {
	URL      string `json:"url" jsonschema:"description=Final URL after redirects"`
	Markdown string `json:"markdown" jsonschema:"description=Page content converted to Markdown"`
}

// New returns the webfetch tool. A flow enables it with a "tool" node whose
// id is Name, reached from a tool-call completion listing Name in its tools.
func New() *tool.Func[Input, Output] {
	return tool.New(Name, Fetch,
		tool.WithDescription("Reads a public web page and returns its content as Markdown. Use it when the customer shares a link or asks about content hosted on a web page."),
	)
}

var client = &http.Client{
	Transport: &http.Transport{
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConnsPerHost:   10,
		ForceAttemptHTTP2:     true,
	},
	CheckRedirect: func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return fmt.Errorf("too many redirects (>%d)", maxRedirects)
		}
		return nil
	},
}

// Fetch downloads the page at in.URL and converts it to Markdown.
// Non-200 answers, bodies larger than MaxBodySize and conversion failures
// are errors.
func Fetch(ctx context.Context, in Input) (Output, error) {
	url := strings.TrimSpace(in.URL)
	if url == "" {
		return Output{}, ErrEmptyURL
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "https://" + url
	}

	timeout := DefaultTimeout
	if in.TimeoutSeconds > 0 {
		timeout = time.Duration(in.TimeoutSeconds) * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Output{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", DefaultUserAgent)

	resp, err := client.Do(req)
	if err != nil {
		return Output{}, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer utils.CloseWithLog(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return Output{}, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodySize+1))
	if err != nil {
		return Output{}, fmt.Errorf("failed to read response body: %w", err)
	}
	if len(body) > MaxBodySize {
		return Output{}, fmt.Errorf("response body exceeds maximum size of %d bytes", MaxBodySize)
	}

	markdown, err := htmltomarkdown.ConvertString(string(body))
	if err != nil {
		return Output{}, fmt.Errorf("failed to convert HTML to Markdown: %w", err)
	}

	return Output{URL: resp.Request.URL.String(), Markdown: markdown}, nil
}
