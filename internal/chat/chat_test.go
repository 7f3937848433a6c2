package chat

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/leofalp/chatflow/internal/followup"
	"github.com/leofalp/chatflow/patterns/graph"
	"github.com/leofalp/chatflow/providers/ai"
	"github.com/leofalp/chatflow/providers/memory/inmemory"
)

type echoProvider struct {
	mu       sync.Mutex
	requests []ai.ChatRequest
	err      error
}

func (p *echoProvider) SendMessage(_ context.Context, request ai.ChatRequest) (*ai.ChatResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, request)
	if p.err != nil {
		return nil, p.err
	}
	last := request.Messages[len(request.Messages)-1]
	return &ai.ChatResponse{Choices: []ai.Choice{{Message: ai.AssistantMessage("eco: " + last.Content)}}}, nil
}

func (p *echoProvider) WithAPIKey(string) ai.Provider          { return p }
func (p *echoProvider) WithBaseURL(string) ai.Provider         { return p }
func (p *echoProvider) WithHttpClient(*http.Client) ai.Provider { return p }

type recordingSender struct {
	sent []string
	err  error
}

func (s *recordingSender) SendText(_ context.Context, chatID, body string) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, chatID+": "+body)
	return nil
}

var fixedNow = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

func newService(t *testing.T, provider ai.Provider, mutate func(*Config)) (*Service, *inmemory.Store) {
	t.Helper()
	store := inmemory.NewStore()
	config := Config{
		Registry: graph.NewRegistry(provider),
		Memory:   store,
		Now:      func() time.Time { return fixedNow },
	}
	if mutate != nil {
		mutate(&config)
	}
	service, err := New(config)
	if err != nil {
		t.Fatal(err)
	}
	return service, store
}

func TestService_Reply_DefaultGraph(t *testing.T) {
	provider := &echoProvider{}
	service, store := newService(t, provider, nil)
	ctx := context.Background()

	reply, err := service.Reply(ctx, "chat-1", "hola")
	if err != nil {
		t.Fatalf("Reply() error = %v", err)
	}
	if reply.Text != "eco: hola" {
		t.Errorf("Text = %q", reply.Text)
	}
	if reply.Result.Termination != graph.TerminationEnd {
		t.Errorf("Termination = %s", reply.Result.Termination)
	}

	messages, _ := store.Session("chat-1").AllMessages(ctx)
	if len(messages) != 2 || messages[0].Role != ai.RoleUser || messages[1].Content != "eco: hola" {
		t.Errorf("transcript not recorded: %+v", messages)
	}
}

func TestService_Reply_NewThread(t *testing.T) {
	service, _ := newService(t, &echoProvider{}, nil)
	reply, err := service.Reply(context.Background(), "", "hola")
	if err != nil {
		t.Fatal(err)
	}
	if len(reply.ThreadID) != 36 {
		t.Errorf("expected a generated uuid thread, got %q", reply.ThreadID)
	}
}

func TestService_Reply_TrimsHistoryAndSetsDate(t *testing.T) {
	provider := &echoProvider{}
	service, store := newService(t, provider, func(c *Config) { c.HistoryLimit = 3 })
	ctx := context.Background()

	transcript := store.Session("chat-1")
	for i := 0; i < 10; i++ {
		message := ai.UserMessage("viejo")
		_ = transcript.AppendMessage(ctx, &message)
	}

	if _, err := service.Reply(ctx, "chat-1", "nuevo"); err != nil {
		t.Fatal(err)
	}
	request := provider.requests[0]
	// one system instruction plus the trimmed history
	if len(request.Messages) != 4 {
		t.Fatalf("expected 4 messages sent to the model, got %d", len(request.Messages))
	}
	if request.Messages[3].Content != "nuevo" {
		t.Errorf("newest message should be last, got %q", request.Messages[3].Content)
	}
}

func TestService_Reply_StoredAgent(t *testing.T) {
	ctx := context.Background()
	snapshots := graph.NewInMemorySnapshotStore()
	_ = snapshots.SaveAgent(ctx, graph.Document{
		ID:       "sales",
		Metadata: map[string]any{"channel": "whatsapp"},
		Nodes: []graph.NodeDocument{
			{ID: graph.StartID, Edges: []graph.EdgeDocument{{To: "ventas"}}},
			{ID: "ventas", Type: "completion.model", Instructions: []ai.Message{ai.SystemMessage("Vende.")}, Edges: []graph.EdgeDocument{{To: graph.EndID}}},
			{ID: graph.EndID},
		},
	})

	provider := &echoProvider{}
	service, _ := newService(t, provider, func(c *Config) {
		c.Snapshots = snapshots
		c.AgentID = "sales"
	})

	var visitedNodes []string
	reply, err := service.Stream(ctx, "chat-1", "precio", func(snapshot graph.Snapshot) {
		for _, node := range snapshot.Nodes {
			if node.IsActive {
				visitedNodes = append(visitedNodes, node.ID)
			}
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	if reply.Text != "eco: precio" {
		t.Errorf("Text = %q", reply.Text)
	}
	if provider.requests[0].Messages[0].Content != "Vende." {
		t.Errorf("stored agent instructions not used: %+v", provider.requests[0].Messages[0])
	}
	if !strings.Contains(strings.Join(visitedNodes, ","), "ventas") {
		t.Errorf("stream listener did not see the agent node: %v", visitedNodes)
	}
}

func TestService_MissingAgentFallsBack(t *testing.T) {
	flow := graph.Document{
		ID: "fallback",
		Nodes: []graph.NodeDocument{
			{ID: graph.StartID, Edges: []graph.EdgeDocument{{To: graph.EndID}}},
		},
	}
	service, _ := newService(t, &echoProvider{}, func(c *Config) {
		c.Snapshots = graph.NewInMemorySnapshotStore()
		c.AgentID = "missing"
		c.Flow = &flow
	})

	g, err := service.Graph(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if g.HasNode("agent") {
		t.Error("the configured flow should win over the default graph")
	}
}

func TestService_Handle(t *testing.T) {
	sender := &recordingSender{}
	followUps := followup.NewMemoryStore()
	service, _ := newService(t, &echoProvider{}, func(c *Config) {
		c.Sender = sender
		c.FollowUps = followUps
	})

	if _, err := service.Handle(context.Background(), "569@c.us", "hola"); err != nil {
		t.Fatal(err)
	}
	if len(sender.sent) != 1 || sender.sent[0] != "569@c.us: eco: hola" {
		t.Errorf("reply not delivered: %v", sender.sent)
	}
	chats, _ := followUps.Chats(context.Background())
	if len(chats) != 1 || !chats[0].LastUserMessageAt.Equal(fixedNow) {
		t.Errorf("follow-up activity not recorded: %+v", chats)
	}

	sender.err = errors.New("gateway down")
	if _, err := service.Handle(context.Background(), "569@c.us", "otra"); err == nil {
		t.Error("expected the delivery error")
	}
}

func TestService_ProviderFailureLeavesNoReply(t *testing.T) {
	provider := &echoProvider{err: errors.New("rate limited")}
	sender := &recordingSender{}
	service, store := newService(t, provider, func(c *Config) { c.Sender = sender })

	reply, err := service.Handle(context.Background(), "chat-1", "hola")
	if err != nil {
		t.Fatalf("a failing node continues by default, got %v", err)
	}
	if reply.Text != "" || len(sender.sent) != 0 {
		t.Errorf("nothing should be sent: %q %v", reply.Text, sender.sent)
	}
	if n, _ := store.Session("chat-1").Count(context.Background()); n != 1 {
		t.Errorf("only the user message should be stored, got %d", n)
	}
}

func TestNew_RequiresDependencies(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("expected an error without registry and memory")
	}
}
