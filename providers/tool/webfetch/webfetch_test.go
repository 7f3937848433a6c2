package webfetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/leofalp/chatflow/providers/ai"
)

func newPageServer(status int, body string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
}

func TestFetch_Success(t *testing.T) {
	server := newPageServer(http.StatusOK, `<html><body><h1>Welcome</h1><p>This is a <strong>test</strong>.</p></body></html>`)
	defer server.Close()

	output, err := Fetch(context.Background(), Input{URL: server.URL})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if output.URL != server.URL {
		t.Errorf("URL = %s, want %s", output.URL, server.URL)
	}
	if !strings.Contains(output.Markdown, "# Welcome") {
		t.Errorf("expected markdown heading, got %q", output.Markdown)
	}
	if !strings.Contains(output.Markdown, "**test**") {
		t.Errorf("expected bold text, got %q", output.Markdown)
	}
}

func TestFetch_FollowsRedirect(t *testing.T) {
	target := newPageServer(http.StatusOK, `<p>landed</p>`)
	defer target.Close()
	redirector := httptest.NewServer(http.RedirectHandler(target.URL, http.StatusFound))
	defer redirector.Close()

	output, err := Fetch(context.Background(), Input{URL: redirector.URL})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if output.URL != target.URL {
		t.Errorf("URL = %s, want final URL %s", output.URL, target.URL)
	}
}

func TestFetch_Errors(t *testing.T) {
	if _, err := Fetch(context.Background(), Input{URL: "   "}); !errors.Is(err, ErrEmptyURL) {
		t.Errorf("blank URL err = %v, want ErrEmptyURL", err)
	}

	server := newPageServer(http.StatusNotFound, "missing")
	defer server.Close()
	if _, err := Fetch(context.Background(), Input{URL: server.URL}); err == nil || !strings.Contains(err.Error(), "404") {
		t.Errorf("expected 404 error, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Fetch(ctx, Input{URL: server.URL}); err == nil {
		t.Error("expected error for canceled context")
	}
}

func TestNew_InvokeAnswersToolCall(t *testing.T) {
	server := newPageServer(http.StatusOK, `<h2>Precios</h2>`)
	defer server.Close()

	fetcher := New()
	if fetcher.Info().Name != Name {
		t.Fatalf("tool name = %q, want %q", fetcher.Info().Name, Name)
	}

	arguments, _ := json.Marshal(Input{URL: server.URL})
	message, err := fetcher.Invoke(context.Background(), ai.ToolCall{
		ID:       "call_9",
		Function: ai.ToolCallFunction{Name: Name, Arguments: string(arguments)},
	})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if message.ToolCallID != "call_9" || !strings.Contains(message.Content, "Precios") {
		t.Errorf("unexpected tool message %+v", message)
	}
}
