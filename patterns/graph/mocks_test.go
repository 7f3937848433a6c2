package graph

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/leofalp/chatflow/providers/ai"
	"github.com/leofalp/chatflow/providers/observability"
)

// --- Mock Types ---

// scriptedProvider answers SendMessage with its responses in order and
// records every request.
type scriptedProvider struct {
	mu        sync.Mutex
	responses []*ai.ChatResponse
	err       error
	requests  []ai.ChatRequest
}

var _ ai.Provider = (*scriptedProvider)(nil)

func (provider *scriptedProvider) SendMessage(_ context.Context, request ai.ChatRequest) (*ai.ChatResponse, error) {
	provider.mu.Lock()
	defer provider.mu.Unlock()
	provider.requests = append(provider.requests, request)
	if provider.err != nil {
		return nil, provider.err
	}
	if len(provider.responses) == 0 {
		return nil, errors.New("no more mock responses")
	}
	response := provider.responses[0]
	provider.responses = provider.responses[1:]
	return response, nil
}

func (provider *scriptedProvider) WithAPIKey(_ string) ai.Provider  { return provider }
func (provider *scriptedProvider) WithBaseURL(_ string) ai.Provider { return provider }
func (provider *scriptedProvider) WithHttpClient(_ *http.Client) ai.Provider {
	return provider
}

func (provider *scriptedProvider) calls() []ai.ChatRequest {
	provider.mu.Lock()
	defer provider.mu.Unlock()
	return append([]ai.ChatRequest(nil), provider.requests...)
}

func reply(content string) *ai.ChatResponse {
	return &ai.ChatResponse{Choices: []ai.Choice{{Message: ai.AssistantMessage(content)}}}
}

func toolCallReply(name, arguments string) *ai.ChatResponse {
	return &ai.ChatResponse{Choices: []ai.Choice{{Message: ai.Message{
		Role: ai.RoleAssistant,
		ToolCalls: []ai.ToolCall{{
			ID:       "call_1",
			Type:     "function",
			Function: ai.ToolCallFunction{Name: name, Arguments: arguments},
		}},
	}}}}
}

// testObserver implements observability.Provider and records what the
// graph reports.
type testObserver struct {
	mu      sync.Mutex
	spans   []string
	logs    []string
	metrics map[string]float64
}

var _ observability.Provider = (*testObserver)(nil)

func newTestObserver() *testObserver {
	return &testObserver{metrics: make(map[string]float64)}
}

func (observer *testObserver) StartSpan(ctx context.Context, name string, _ ...observability.Attribute) (context.Context, observability.Span) {
	observer.mu.Lock()
	defer observer.mu.Unlock()
	observer.spans = append(observer.spans, name)
	return ctx, &testSpan{}
}

func (observer *testObserver) log(msg string) {
	observer.mu.Lock()
	defer observer.mu.Unlock()
	observer.logs = append(observer.logs, msg)
}

func (observer *testObserver) Trace(_ context.Context, msg string, _ ...observability.Attribute) {
	observer.log(msg)
}

func (observer *testObserver) Debug(_ context.Context, msg string, _ ...observability.Attribute) {
	observer.log(msg)
}

func (observer *testObserver) Info(_ context.Context, msg string, _ ...observability.Attribute) {
	observer.log(msg)
}

func (observer *testObserver) Warn(_ context.Context, msg string, _ ...observability.Attribute) {
	observer.log(msg)
}

func (observer *testObserver) Error(_ context.Context, msg string, _ ...observability.Attribute) {
	observer.log(msg)
}

func (observer *testObserver) Counter(name string) observability.Counter {
	return &testCounter{name: name, observer: observer}
}

func (observer *testObserver) Histogram(name string) observability.Histogram {
	return &testHistogram{name: name, observer: observer}
}

func (observer *testObserver) hasLog(msg string) bool {
	observer.mu.Lock()
	defer observer.mu.Unlock()
	for _, logged := range observer.logs {
		if logged == msg {
			return true
		}
	}
	return false
}

func (observer *testObserver) metric(name string) float64 {
	observer.mu.Lock()
	defer observer.mu.Unlock()
	return observer.metrics[name]
}

type testSpan struct{}

func (span *testSpan) End()                                            {}
func (span *testSpan) SetAttributes(_ ...observability.Attribute)      {}
func (span *testSpan) SetStatus(_ observability.StatusCode, _ string)  {}
func (span *testSpan) RecordError(_ error)                             {}
func (span *testSpan) AddEvent(_ string, _ ...observability.Attribute) {}

type testCounter struct {
	name     string
	observer *testObserver
}

func (counter *testCounter) Add(_ context.Context, value int64, _ ...observability.Attribute) {
	counter.observer.mu.Lock()
	defer counter.observer.mu.Unlock()
	counter.observer.metrics[counter.name] += float64(value)
}

type testHistogram struct {
	name     string
	observer *testObserver
}

func (histogram *testHistogram) Record(_ context.Context, value float64, _ ...observability.Attribute) {
	histogram.observer.mu.Lock()
	defer histogram.observer.mu.Unlock()
	histogram.observer.metrics[histogram.name] = value
}

// --- Helpers ---

// chain builds START -> ids... -> END with unconditional edges.
func chain(graph *Graph, ids ...string) error {
	previous := StartID
	for _, id := range append(ids, EndID) {
		if err := graph.AddEdge(previous, id); err != nil {
			return err
		}
		previous = id
	}
	return nil
}

// failingAction always returns err.
func failingAction(err error) Action {
	return func(context.Context, *State, *Node) (Result, error) {
		return Result{}, err
	}
}

func visited(snapshot Snapshot) map[string]bool {
	seen := make(map[string]bool, len(snapshot.Nodes))
	for _, node := range snapshot.Nodes {
		if node.Visited {
			seen[node.ID] = true
		}
	}
	return seen
}
