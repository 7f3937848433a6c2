package redirect

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/leofalp/chatflow/providers/ai"
	"github.com/leofalp/chatflow/providers/tool"
)

type recordingNotifier struct {
	chatID string
	body   string
	err    error
}

func (n *recordingNotifier) Notify(_ context.Context, chatID, body string) error {
	n.chatID, n.body = chatID, body
	return n.err
}

type recordingMarker struct {
	marked []string
}

func (m *recordingMarker) MarkAllSent(_ context.Context, chatID string) error {
	m.marked = append(m.marked, chatID)
	return nil
}

func redirectCall() ai.ToolCall {
	return ai.ToolCall{
		ID:   "call_r",
		Type: "function",
		Function: ai.ToolCallFunction{
			Name:      Name,
			Arguments: `{"clientName":"Ana Pérez","clientEmail":"ana@example.com","clientRut":"11.111.111-1","reason":"cotización"}`,
		},
	}
}

func TestInvoke_NotifiesAndCloses(t *testing.T) {
	notifier := &recordingNotifier{}
	marker := &recordingMarker{}
	santiago, _ := time.LoadLocation("America/Santiago")
	redirectTool := New(Config{
		PublicName: "Chiledeck",
		Location:   santiago,
		Notifier:   notifier,
		FollowUps:  marker,
		Now:        func() time.Time { return time.Date(2024, 5, 1, 15, 0, 0, 0, time.UTC) },
	})

	ctx := tool.ContextWithThread(context.Background(), "56911112222@s.whatsapp.net")
	message, err := redirectTool.Invoke(ctx, redirectCall())
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}

	if message.Role != ai.RoleTool || message.ToolCallID != "call_r" {
		t.Errorf("unexpected envelope %+v", message)
	}
	if !strings.Contains(message.Content, "*Chiledeck*") {
		t.Errorf("closing message should name the business, got %q", message.Content)
	}
	if notifier.chatID != "56911112222@s.whatsapp.net" {
		t.Errorf("notified chat = %q", notifier.chatID)
	}
	for _, want := range []string{"Ana Pérez", "ana@example.com", "11.111.111-1", "cotización", "https://wa.me/56911112222"} {
		if !strings.Contains(notifier.body, want) {
			t.Errorf("notification missing %q:\n%s", want, notifier.body)
		}
	}
	if len(marker.marked) != 1 {
		t.Errorf("expected follow-ups to be stopped once, got %v", marker.marked)
	}
}

func TestInvoke_Errors(t *testing.T) {
	redirectTool := New(Config{Notifier: &recordingNotifier{err: errors.New("gateway down")}})

	if _, err := redirectTool.Invoke(context.Background(), redirectCall()); !errors.Is(err, ErrNoThread) {
		t.Errorf("err = %v, want ErrNoThread", err)
	}

	ctx := tool.ContextWithThread(context.Background(), "chat-1")
	if _, err := redirectTool.Invoke(ctx, redirectCall()); err == nil {
		t.Error("expected notifier failure to surface")
	}

	bad := redirectCall()
	bad.Function.Arguments = `not json at all [`
	message, err := redirectTool.Invoke(ctx, bad)
	if err != nil {
		t.Fatalf("malformed arguments should not fail the call: %v", err)
	}
	if !strings.Contains(message.Content, "invalid_arguments") {
		t.Errorf("expected invalid_arguments result, got %q", message.Content)
	}
}

func TestHTTPNotifier(t *testing.T) {
	var payload map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&payload)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier := HTTPNotifier{URL: server.URL, Client: server.Client()}
	if err := notifier.Notify(context.Background(), "chat-1", "hola"); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	if payload["chatId"] != "chat-1" || payload["body"] != "hola" {
		t.Errorf("unexpected payload %v", payload)
	}

	if err := (HTTPNotifier{}).Notify(context.Background(), "chat-1", "hola"); err == nil {
		t.Error("expected error without URL")
	}
}

func TestParameters_AreClosedAndRequired(t *testing.T) {
	schema := New(Config{}).Info().Parameters
	if schema.AdditionalProperties != false {
		t.Errorf("schema should be closed, got %v", schema.AdditionalProperties)
	}
	if len(schema.Required) != 4 {
		t.Errorf("Required = %v, want 4 fields", schema.Required)
	}
}
