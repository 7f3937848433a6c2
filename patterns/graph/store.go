package graph

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
)

// SnapshotStore persists graph documents in three collections: graphs
// (a graph with its conversation), agents (the flow an agent answers with)
// and templates (reusable flows). Implementations return an error matching
// ErrNotFound for missing ids.
type SnapshotStore interface {
	LoadGraph(ctx context.Context, id string) (Document, error)
	SaveGraph(ctx context.Context, doc Document) error
	LoadAgent(ctx context.Context, id string) (Document, error)
	SaveAgent(ctx context.Context, doc Document) error
	LoadTemplate(ctx context.Context, name string) (Document, error)
	SaveTemplate(ctx context.Context, doc Document) error
}

// LoadGraph replaces the graph with the stored graph id, conversation included.
func (graph *Graph) LoadGraph(ctx context.Context, store SnapshotStore, id string) error {
	doc, err := store.LoadGraph(ctx, id)
	if err != nil {
		return fmt.Errorf("load graph %q: %w", id, err)
	}
	return graph.Load(doc)
}

// LoadAgent replaces the graph with the flow of agentID. The conversation
// starts empty; the agent metadata becomes the run metadata.
func (graph *Graph) LoadAgent(ctx context.Context, store SnapshotStore, agentID string) error {
	doc, err := store.LoadAgent(ctx, agentID)
	if err != nil {
		return fmt.Errorf("load agent %q: %w", agentID, err)
	}
	doc.Messages = nil
	doc.ThreadID = ""
	return graph.Load(doc)
}

// SaveGraph stores the graph and its conversation under id.
func (graph *Graph) SaveGraph(ctx context.Context, store SnapshotStore, id string) error {
	if err := store.SaveGraph(ctx, graph.Document(id)); err != nil {
		return fmt.Errorf("save graph %q: %w", id, err)
	}
	return nil
}

// SaveAgent stores the flow, without the conversation, as agentID.
func (graph *Graph) SaveAgent(ctx context.Context, store SnapshotStore, agentID string) error {
	if err := store.SaveAgent(ctx, graph.flowDocument(agentID)); err != nil {
		return fmt.Errorf("save agent %q: %w", agentID, err)
	}
	return nil
}

// SaveTemplate stores the flow, without the conversation, as template name.
func (graph *Graph) SaveTemplate(ctx context.Context, store SnapshotStore, name string) error {
	if err := store.SaveTemplate(ctx, graph.flowDocument(name)); err != nil {
		return fmt.Errorf("save template %q: %w", name, err)
	}
	return nil
}

// flowDocument is Document without the run: no transcript, no thread, no
// visit flags.
func (graph *Graph) flowDocument(id string) Document {
	doc := graph.Document(id)
	doc.Messages = nil
	doc.ThreadID = ""
	for i := range doc.Nodes {
		doc.Nodes[i].Visited = false
		doc.Nodes[i].IsActive = false
	}
	return doc
}

// InMemorySnapshotStore is a SnapshotStore backed by maps. Documents are
// copied on the way in and out.
type InMemorySnapshotStore struct {
	mu        sync.RWMutex
	graphs    map[string]Document
	agents    map[string]Document
	templates map[string]Document
}

var _ SnapshotStore = (*InMemorySnapshotStore)(nil)

// NewInMemorySnapshotStore returns an empty store.
func NewInMemorySnapshotStore() *InMemorySnapshotStore {
	return &InMemorySnapshotStore{
		graphs:    make(map[string]Document),
		agents:    make(map[string]Document),
		templates: make(map[string]Document),
	}
}

func (store *InMemorySnapshotStore) LoadGraph(_ context.Context, id string) (Document, error) {
	return store.load(store.graphs, id)
}

func (store *InMemorySnapshotStore) SaveGraph(_ context.Context, doc Document) error {
	return store.save(store.graphs, doc)
}

func (store *InMemorySnapshotStore) LoadAgent(_ context.Context, id string) (Document, error) {
	return store.load(store.agents, id)
}

func (store *InMemorySnapshotStore) SaveAgent(_ context.Context, doc Document) error {
	return store.save(store.agents, doc)
}

func (store *InMemorySnapshotStore) LoadTemplate(_ context.Context, name string) (Document, error) {
	return store.load(store.templates, name)
}

func (store *InMemorySnapshotStore) SaveTemplate(_ context.Context, doc Document) error {
	return store.save(store.templates, doc)
}

func (store *InMemorySnapshotStore) load(collection map[string]Document, id string) (Document, error) {
	store.mu.RLock()
	defer store.mu.RUnlock()
	doc, ok := collection[id]
	if !ok {
		return Document{}, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return CloneDocument(doc), nil
}

func (store *InMemorySnapshotStore) save(collection map[string]Document, doc Document) error {
	if doc.ID == "" {
		return fmt.Errorf("save document: empty id")
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	collection[doc.ID] = CloneDocument(doc)
	return nil
}

// CloneDocument returns a copy of doc that shares no slices or maps with it.
// Nested metadata values are copied shallowly.
func CloneDocument(doc Document) Document {
	copied := doc
	copied.Messages = slices.Clone(doc.Messages)
	copied.Metadata = maps.Clone(doc.Metadata)
	copied.Nodes = make([]NodeDocument, len(doc.Nodes))
	for i, node := range doc.Nodes {
		node.Instructions = slices.Clone(node.Instructions)
		node.Tools = slices.Clone(node.Tools)
		node.Metadata = maps.Clone(node.Metadata)
		node.Edges = slices.Clone(node.Edges)
		conditional := make([]ConditionalEdgeDocument, len(node.ConditionalEdges))
		for j, edge := range node.ConditionalEdges {
			edge.To = slices.Clone(edge.To)
			conditional[j] = edge
		}
		node.ConditionalEdges = conditional
		copied.Nodes[i] = node
	}
	return copied
}
