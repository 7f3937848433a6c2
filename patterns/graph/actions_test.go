package graph

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/leofalp/chatflow/providers/ai"
	"github.com/leofalp/chatflow/providers/tool"
)

type recordingPoster struct {
	payloads []any
	err      error
}

func (poster *recordingPoster) Post(_ context.Context, payload any) error {
	poster.payloads = append(poster.payloads, payload)
	return poster.err
}

func TestCompletionAction(t *testing.T) {
	provider := &scriptedProvider{responses: []*ai.ChatResponse{reply("hola")}}
	node := &Node{
		ID:           "agent",
		Model:        "gpt-4o",
		Instructions: []ai.Message{ai.SystemMessage("Eres un asistente de ventas.")},
		Metadata:     map[string]any{"temperature": "0.7", "max_tokens": 200, "unrelated": true},
	}
	state := &State{Messages: []ai.Message{ai.UserMessage("precio?")}}

	result, err := CompletionAction(provider)(context.Background(), state, node)
	if err != nil {
		t.Fatal(err)
	}
	if result.Response.Content() != "hola" {
		t.Errorf("unexpected response %+v", result.Response)
	}

	request := provider.calls()[0]
	if request.Model != "gpt-4o" {
		t.Errorf("Model = %q", request.Model)
	}
	if len(request.Messages) != 2 || request.Messages[0].Role != ai.RoleSystem || request.Messages[1].Content != "precio?" {
		t.Errorf("unexpected prompt %+v", request.Messages)
	}
	if request.GenerationConfig.Temperature != 0.7 || request.GenerationConfig.MaxTokens != 200 {
		t.Errorf("metadata settings not applied: %+v", request.GenerationConfig)
	}
	if request.Tools != nil || request.ResponseFormat != nil {
		t.Error("plain completions advertise no tools and no format")
	}
}

func TestCompletionAction_Errors(t *testing.T) {
	if _, err := CompletionAction(nil)(context.Background(), &State{}, &Node{}); !errors.Is(err, ErrNoProvider) {
		t.Errorf("expected ErrNoProvider, got %v", err)
	}

	provider := &scriptedProvider{err: ai.ErrEmptyCompletion}
	if _, err := CompletionAction(provider)(context.Background(), &State{}, &Node{}); !errors.Is(err, ai.ErrEmptyCompletion) {
		t.Errorf("expected provider error, got %v", err)
	}

	bad := &Node{Metadata: map[string]any{"max_tokens": "many"}}
	if _, err := CompletionAction(&scriptedProvider{})(context.Background(), &State{}, bad); err == nil {
		t.Error("undecodable settings should fail the node")
	}
}

func TestToolCallCompletionAction(t *testing.T) {
	provider := &scriptedProvider{responses: []*ai.ChatResponse{toolCallReply("redirect", `{}`)}}
	registry := NewRegistry(provider).RegisterTool(tool.New("redirect", func(context.Context, struct{}) (string, error) {
		return "", nil
	}, tool.WithDescription("Hand the chat to a human.")))

	node := &Node{ID: "assistant", Type: "completion.tool_call.redirect"}
	state := &State{Messages: []ai.Message{ai.UserMessage("quiero hablar con alguien")}, Metadata: map[string]any{"date": "lunes 3 de marzo, 10:00"}}

	if _, err := ToolCallCompletionAction(provider, registry)(context.Background(), state, node); err != nil {
		t.Fatal(err)
	}

	request := provider.calls()[0]
	if request.ToolChoice != "auto" {
		t.Errorf("ToolChoice = %q, want auto", request.ToolChoice)
	}
	if request.ParallelToolCalls == nil || *request.ParallelToolCalls {
		t.Error("parallel tool calls should be disabled")
	}
	if request.GenerationConfig.Temperature != 0.2 {
		t.Errorf("Temperature = %v, want 0.2", request.GenerationConfig.Temperature)
	}
	if len(request.Tools) != 1 || request.Tools[0].Name != "redirect" {
		t.Errorf("unexpected tools %+v", request.Tools)
	}
	found := false
	for _, message := range request.Messages {
		if message.Role == ai.RoleSystem && strings.Contains(message.Content, "lunes 3 de marzo") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a date system message, got %+v", request.Messages)
	}
}

func TestToolCallCompletionAction_ExplicitTools(t *testing.T) {
	provider := &scriptedProvider{responses: []*ai.ChatResponse{reply("ok")}}
	registry := NewRegistry(provider).
		RegisterTool(tool.New("a", func(context.Context, struct{}) (string, error) { return "", nil })).
		RegisterTool(tool.New("b", func(context.Context, struct{}) (string, error) { return "", nil }))

	node := &Node{Type: "completion.tool_call", Tools: []string{"b", "missing"}, Metadata: map[string]any{"tool_choice": "required"}}
	if _, err := ToolCallCompletionAction(provider, registry)(context.Background(), &State{}, node); err != nil {
		t.Fatal(err)
	}

	request := provider.calls()[0]
	if len(request.Tools) != 1 || request.Tools[0].Name != "b" {
		t.Errorf("unexpected tools %+v", request.Tools)
	}
	if request.ToolChoice != "required" {
		t.Errorf("ToolChoice = %q, want metadata override", request.ToolChoice)
	}
	if names := registry.ToolNames(); strings.Join(names, ",") != "a,b" {
		t.Errorf("ToolNames() = %v", names)
	}
}

func TestToolAction(t *testing.T) {
	var seenThread string
	echo := tool.New("echo", func(ctx context.Context, in struct {
		Text string `json:"text"`
	}) (string, error) {
		seenThread = tool.ThreadFromContext(ctx)
		return in.Text, nil
	})

	pending := toolCallReply("echo", `{"text":"hi"}`).Choices[0].Message
	state := &State{ThreadID: "chat-1", Messages: []ai.Message{pending}}

	result, err := ToolAction(echo)(context.Background(), state, &Node{ID: "echo"})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Messages) != 1 || result.Messages[0].ToolCallID != "call_1" {
		t.Fatalf("unexpected messages %+v", result.Messages)
	}
	var decoded ai.ToolResult
	if err := json.Unmarshal([]byte(result.Messages[0].Content), &decoded); err != nil || !decoded.Success || decoded.Data != "hi" {
		t.Errorf("unexpected tool result %+v (%v)", decoded, err)
	}
	if seenThread != "chat-1" {
		t.Errorf("thread id = %q, want chat-1", seenThread)
	}

	// nothing pending for this tool
	result, err = ToolAction(echo)(context.Background(), &State{Messages: []ai.Message{ai.AssistantMessage("hola")}}, &Node{})
	if err != nil || len(result.Messages) != 0 {
		t.Errorf("expected no messages, got %+v, %v", result, err)
	}
}

func TestWebhookAction(t *testing.T) {
	poster := &recordingPoster{}
	state := &State{ThreadID: "chat-1", Messages: []ai.Message{ai.UserMessage("hola")}}

	result, err := WebhookAction(poster)(context.Background(), state, &Node{ID: "crm"})
	if err != nil {
		t.Fatal(err)
	}
	if result.Response != nil || result.Messages != nil {
		t.Error("webhooks must not produce transcript output")
	}
	payload, ok := poster.payloads[0].(webhookPayload)
	if !ok || payload.NodeID != "crm" || payload.ThreadID != "chat-1" || len(payload.Messages) != 1 {
		t.Errorf("unexpected payload %+v", poster.payloads[0])
	}

	poster.err = errors.New("down")
	if _, err := WebhookAction(poster)(context.Background(), state, &Node{}); err == nil {
		t.Error("delivery failures should fail the node")
	}
}

func TestRegistry_WebhookNode(t *testing.T) {
	poster := &recordingPoster{}
	registry := NewRegistry(nil).RegisterWebhook("crm", poster)
	graph := New(registry)
	graph.AddNode(Node{ID: "crm", Type: "webhook"})
	if err := chain(graph, "crm"); err != nil {
		t.Fatal(err)
	}

	result, err := graph.Run(context.Background(), RunInput{})
	if err != nil {
		t.Fatal(err)
	}
	if len(poster.payloads) != 1 || result.Termination != TerminationEnd {
		t.Errorf("expected one delivery, got %d (%+v)", len(poster.payloads), result)
	}
}

func TestRegistry_WebhookFromMetadata(t *testing.T) {
	ctx := context.Background()
	posters := map[string]*recordingPoster{}
	registry := NewRegistry(nil).WithPosterFactory(func(url, apiKey string) Poster {
		poster := &recordingPoster{}
		posters[url+"|"+apiKey] = poster
		return poster
	})

	store := NewInMemorySnapshotStore()
	if err := store.SaveAgent(ctx, Document{
		ID: "sales",
		Nodes: []NodeDocument{
			{ID: StartID, Type: "start", Edges: []EdgeDocument{{To: "crm"}}},
			{ID: "crm", Type: "webhook", Metadata: map[string]any{"url": "https://crm.example/hook", "api_key": "k"}, Edges: []EdgeDocument{{To: "unbound"}}},
			{ID: "unbound", Type: "webhook", Edges: []EdgeDocument{{To: EndID}}},
		},
	}); err != nil {
		t.Fatal(err)
	}

	graph := New(registry)
	if err := graph.LoadAgent(ctx, store, "sales"); err != nil {
		t.Fatal(err)
	}
	result, err := graph.Run(ctx, RunInput{ThreadID: "chat-1"})
	if err != nil {
		t.Fatal(err)
	}
	if result.Termination != TerminationEnd {
		t.Errorf("Termination = %s, want end", result.Termination)
	}

	poster, ok := posters["https://crm.example/hook|k"]
	if len(posters) != 1 || !ok {
		t.Fatalf("expected one poster for the crm url, got %v", posters)
	}
	if len(poster.payloads) != 1 {
		t.Fatalf("expected one delivery, got %d", len(poster.payloads))
	}
	payload, ok := poster.payloads[0].(webhookPayload)
	if !ok || payload.NodeID != "crm" || payload.ThreadID != "chat-1" {
		t.Errorf("unexpected payload %+v", poster.payloads)
	}
}
