package messenger

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

type gateway struct {
	mu       sync.Mutex
	requests map[string]map[string]string
	auth     string
}

func newGateway(t *testing.T, status int) (*gateway, *httptest.Server) {
	t.Helper()
	g := &gateway{requests: make(map[string]map[string]string)}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		g.mu.Lock()
		g.requests[r.URL.Path] = body
		g.auth = r.Header.Get("Authorization")
		g.mu.Unlock()
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"status":"Completed"}`))
	}))
	t.Cleanup(server.Close)
	return g, server
}

func TestClient_SendText(t *testing.T) {
	g, server := newGateway(t, http.StatusOK)
	client := New(server.URL+"/", WithAPIKey("secret"), WithHTTPClient(server.Client()))

	if err := client.SendText(context.Background(), "56911111111@c.us", "hola"); err != nil {
		t.Fatalf("SendText() error = %v", err)
	}
	got := g.requests["/api/send-message"]
	if got["body"] != "hola" || got["chatId"] != "56911111111@c.us" {
		t.Errorf("unexpected payload %v", got)
	}
	if g.auth != "Bearer secret" {
		t.Errorf("expected bearer auth, got %q", g.auth)
	}
}

func TestClient_SendImage(t *testing.T) {
	g, server := newGateway(t, http.StatusOK)
	client := New(server.URL)

	if err := client.SendImage(context.Background(), "chat", "https://example.com/a.png"); err != nil {
		t.Fatal(err)
	}
	if got := g.requests["/api/send-image"]; got["url"] != "https://example.com/a.png" || got["chatId"] != "chat" {
		t.Errorf("unexpected payload %v", got)
	}
}

func TestClient_Errors(t *testing.T) {
	if err := New("").SendText(context.Background(), "chat", "x"); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}

	_, server := newGateway(t, http.StatusBadGateway)
	if err := New(server.URL).Notify(context.Background(), "chat", "x"); err == nil {
		t.Error("expected an error for a non-2xx reply")
	}
}
