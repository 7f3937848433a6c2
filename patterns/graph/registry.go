package graph

import (
	"context"
	"sort"
	"sync"

	"github.com/leofalp/chatflow/providers/ai"
	"github.com/leofalp/chatflow/providers/tool"
)

// ToolResolver returns the side-effecting action registered for a node id.
type ToolResolver interface {
	Tool(nodeID string) (Action, bool)
}

// Poster is the webhook capability: deliver a JSON payload somewhere.
type Poster interface {
	Post(ctx context.Context, payload any) error
}

// Registry binds behaviors to nodes. It owns the model provider used by
// completion and router nodes, the tools advertised to tool-call
// completions, and the actions run by tool and webhook nodes.
type Registry struct {
	provider ai.Provider

	mu      sync.RWMutex
	tools   map[string]tool.Tool
	actions map[string]Action
	posters PosterFactory
}

// PosterFactory builds the poster of a webhook node from the "url" and
// "api_key" entries of its metadata.
type PosterFactory func(url, apiKey string) Poster

var _ ToolResolver = (*Registry)(nil)

// NewRegistry returns a registry whose model nodes call provider.
func NewRegistry(provider ai.Provider) *Registry {
	return &Registry{
		provider: provider,
		tools:    make(map[string]tool.Tool),
		actions:  make(map[string]Action),
	}
}

// Provider returns the model provider, which may be nil.
func (r *Registry) Provider() ai.Provider {
	return r.provider
}

// RegisterTool makes t available to tool-call completions and binds a tool
// node with the same id as the tool name to it.
func (r *Registry) RegisterTool(t tool.Tool) *Registry {
	name := t.Info().Name
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[name] = t
	r.actions[name] = ToolAction(t)
	return r
}

// RegisterAction binds an arbitrary action to the tool or webhook node nodeID.
func (r *Registry) RegisterAction(nodeID string, action Action) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions[nodeID] = action
	return r
}

// RegisterWebhook binds the webhook node nodeID to poster.
func (r *Registry) RegisterWebhook(nodeID string, poster Poster) *Registry {
	return r.RegisterAction(nodeID, WebhookAction(poster))
}

// WithPosterFactory lets webhook nodes that have no registered action post
// to the url named in their metadata. Nodes without a url stay unbound.
func (r *Registry) WithPosterFactory(factory PosterFactory) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.posters = factory
	return r
}

// webhook returns the action of the webhook node nodeID.
func (r *Registry) webhook(nodeID string, metadata map[string]any) (Action, bool) {
	r.mu.RLock()
	action, ok := r.actions[nodeID]
	factory := r.posters
	r.mu.RUnlock()
	if ok {
		return action, true
	}

	url, _ := metadata["url"].(string)
	if factory == nil || url == "" {
		return nil, false
	}
	apiKey, _ := metadata["api_key"].(string)
	return WebhookAction(factory(url, apiKey)), true
}

// Tool implements ToolResolver.
func (r *Registry) Tool(nodeID string) (Action, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	action, ok := r.actions[nodeID]
	return action, ok
}

// ToolNames lists registered tools in name order.
func (r *Registry) ToolNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Describe returns the descriptions of the named tools, skipping unknown names.
func (r *Registry) Describe(names []string) []ai.ToolDescription {
	r.mu.RLock()
	defer r.mu.RUnlock()
	descriptions := make([]ai.ToolDescription, 0, len(names))
	for _, name := range names {
		if t, ok := r.tools[name]; ok {
			descriptions = append(descriptions, t.Info())
		}
	}
	return descriptions
}

func (r *Registry) completion() Action {
	return CompletionAction(r.provider)
}

func (r *Registry) toolCallCompletion() Action {
	return ToolCallCompletionAction(r.provider, r)
}

func (r *Registry) router() Condition {
	return RouterCondition(r.provider)
}
