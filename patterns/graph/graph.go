package graph

import (
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/leofalp/chatflow/providers/ai"
)

// Graph is a directed, possibly cyclic workflow over a shared conversation
// state. Nodes live in an ordered arena indexed by id; edges reference nodes
// by id only.
//
// A Graph is safe for concurrent use. Runs on the same Graph serialize, and
// structural changes made while a run is in progress are visible from the
// next step.
//
// Example:
//
//	g := graph.New(graph.NewRegistry(provider))
//	g.AddNode(graph.Node{ID: "agent", Kind: graph.KindCompletion})
//	_ = g.AddEdge(graph.StartID, "agent")
//	_ = g.AddEdge("agent", graph.EndID)
//	if _, err := g.Compile(); err != nil {
//	    return err
//	}
//	result, err := g.Run(ctx, graph.RunInput{Prompt: &prompt})
type Graph struct {
	registry *Registry
	config   graphConfig
	emitter  *Emitter

	// runMu serializes Run and StreamEvents.
	runMu sync.Mutex

	mu    sync.RWMutex
	nodes []*Node
	index map[string]int
	state State
	// metadata is the document metadata of the last Load. Every run starts
	// from it.
	metadata map[string]any
}

// New returns a graph holding only START and END. A nil registry yields a
// registry without a model provider.
func New(registry *Registry, opts ...Option) *Graph {
	if registry == nil {
		registry = NewRegistry(nil)
	}
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	emitter := config.emitter
	if emitter == nil {
		emitter = NewEmitter()
	}

	graph := &Graph{
		registry: registry,
		config:   config,
		emitter:  emitter,
		index:    make(map[string]int),
		state:    State{Messages: []ai.Message{}, Metadata: map[string]any{}},
	}
	graph.ensureTerminals()
	return graph
}

// Registry returns the behavior registry nodes are bound from.
func (graph *Graph) Registry() *Registry {
	return graph.registry
}

// Emitter returns the emitter state updates are published on.
func (graph *Graph) Emitter() *Emitter {
	return graph.emitter
}

// OnStateChange subscribes listener to EventStateUpdated. The payload is a
// Snapshot.
func (graph *Graph) OnStateChange(listener func(Snapshot)) Subscription {
	return graph.emitter.On(EventStateUpdated, func(payload any) {
		if snapshot, ok := payload.(Snapshot); ok {
			listener(snapshot)
		}
	})
}

// OffStateChange removes a listener added with OnStateChange.
func (graph *Graph) OffStateChange(subscription Subscription) {
	graph.emitter.Off(EventStateUpdated, subscription)
}

func (graph *Graph) ensureTerminals() {
	graph.AddNode(Node{ID: StartID, Kind: KindStart})
	graph.AddNode(Node{ID: EndID, Kind: KindEnd})
}

// AddNode inserts node and binds its behavior from its kind. It reports
// whether the node was inserted: an empty or already used id is ignored.
func (graph *Graph) AddNode(node Node) bool {
	if node.ID == "" {
		return false
	}
	resolved := graph.resolve(node)

	graph.mu.Lock()
	defer graph.mu.Unlock()
	if _, exists := graph.index[resolved.ID]; exists {
		return false
	}
	graph.index[resolved.ID] = len(graph.nodes)
	graph.nodes = append(graph.nodes, resolved)
	return true
}

// resolve applies defaults and binds action and conditions by kind.
func (graph *Graph) resolve(node Node) *Node {
	n := node.clone()
	if n.Kind == KindUnset {
		n.Kind = ParseKind(n.Type)
	}
	if n.Type == "" {
		n.Type = n.Kind.String()
	}
	if n.Model == "" {
		n.Model = DefaultModel
	}
	if len(n.Instructions) == 0 {
		n.Instructions = []ai.Message{ai.SystemMessage(DefaultInstruction)}
	}
	if n.Edges == nil {
		n.Edges = []Edge{}
	}
	if n.Metadata == nil {
		n.Metadata = map[string]any{}
	}
	n.IsActive = false
	for i := range n.Edges {
		n.Edges[i].From = n.ID
	}
	for i := range n.ConditionalEdges {
		n.ConditionalEdges[i].From = n.ID
	}

	switch n.Kind {
	case KindTool:
		if action, ok := graph.registry.Tool(n.ID); ok {
			n.Action = action
		}
	case KindWebhook:
		if action, ok := graph.registry.webhook(n.ID, n.Metadata); ok {
			n.Action = action
		}
	case KindCompletion:
		n.Action = graph.registry.completion()
	case KindRouter:
		n.Action = Passthrough
		route := ConditionalEdge{From: n.ID, To: []string{}}
		if len(n.ConditionalEdges) > 0 {
			first := n.ConditionalEdges[0]
			route.To = slices.Clone(first.To)
			route.Label = first.Label
			route.Metadata = maps.Clone(first.Metadata)
		}
		route.Condition = graph.registry.router()
		n.ConditionalEdges = []ConditionalEdge{route}
	case KindToolCallCompletion:
		n.Action = graph.registry.toolCallCompletion()
		if len(n.ConditionalEdges) > 0 {
			n.ConditionalEdges[0].Condition = ToolCallCondition
		}
	default:
		if n.Action == nil {
			n.Action = Passthrough
		}
	}

	if n.ConditionalEdges == nil {
		n.ConditionalEdges = []ConditionalEdge{}
	}
	for i, edge := range n.ConditionalEdges {
		if edge.Condition != nil || edge.Expression == "" {
			continue
		}
		// an invalid expression leaves the edge inert; Compile reports it
		if condition, err := ExprCondition(edge.Expression, edge.To); err == nil {
			n.ConditionalEdges[i].Condition = condition
		}
	}
	return n
}

// lookup returns the arena entry for id. The caller holds mu.
func (graph *Graph) lookup(id string) (*Node, bool) {
	i, ok := graph.index[id]
	if !ok {
		return nil, false
	}
	return graph.nodes[i], true
}

// HasNode reports whether id is in the graph.
func (graph *Graph) HasNode(id string) bool {
	graph.mu.RLock()
	defer graph.mu.RUnlock()
	_, ok := graph.index[id]
	return ok
}

// AddEdge adds an unconditional transition. Both endpoints must exist.
// Adding an edge that is already present is a no-op.
func (graph *Graph) AddEdge(from, to string) error {
	graph.mu.Lock()
	defer graph.mu.Unlock()

	node, ok := graph.lookup(from)
	if !ok {
		return &GraphStructureError{Op: "add edge", Ref: from}
	}
	if _, ok := graph.lookup(to); !ok {
		return &GraphStructureError{Op: "add edge", From: from, Ref: to}
	}
	for _, edge := range node.Edges {
		if edge.To == to {
			return nil
		}
	}
	node.Edges = append(node.Edges, Edge{From: from, To: to})
	return nil
}

// RemoveEdge deletes the unconditional transitions from -> to, if any.
func (graph *Graph) RemoveEdge(from, to string) {
	graph.mu.Lock()
	defer graph.mu.Unlock()

	node, ok := graph.lookup(from)
	if !ok {
		return
	}
	node.Edges = slices.DeleteFunc(node.Edges, func(edge Edge) bool {
		return edge.To == to
	})
}

// AddConditionalEdge appends a routing rule to from. The source and every
// target must exist. When condition is nil and WithExpression is given, the
// expression is compiled into the condition.
func (graph *Graph) AddConditionalEdge(from string, to []string, condition Condition, opts ...EdgeOption) error {
	edge := ConditionalEdge{From: from, To: slices.Clone(to), Condition: condition}
	for _, opt := range opts {
		opt(&edge)
	}
	if err := bindExpression(&edge); err != nil {
		return err
	}

	graph.mu.Lock()
	defer graph.mu.Unlock()

	node, err := graph.checkConditionalTargets("add conditional edge", from, to)
	if err != nil {
		return err
	}
	node.ConditionalEdges = append(node.ConditionalEdges, edge)
	return nil
}

// UpdateConditionalEdge replaces the targets and condition of the index-th
// rule of from. A nil condition keeps the current one, recompiling its
// expression against the new targets when it has one.
func (graph *Graph) UpdateConditionalEdge(from string, index int, to []string, condition Condition) error {
	graph.mu.Lock()
	defer graph.mu.Unlock()

	node, err := graph.checkConditionalTargets("update conditional edge", from, to)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(node.ConditionalEdges) {
		return fmt.Errorf("%w: node %q has no conditional edge %d", ErrGraphStructure, from, index)
	}

	edge := node.ConditionalEdges[index]
	edge.To = slices.Clone(to)
	switch {
	case condition != nil:
		edge.Condition = condition
		edge.Expression = ""
	case edge.Expression != "":
		edge.Condition = nil
		if err := bindExpression(&edge); err != nil {
			return err
		}
	}
	node.ConditionalEdges[index] = edge
	return nil
}

// checkConditionalTargets validates a rule's endpoints. The caller holds mu.
func (graph *Graph) checkConditionalTargets(op, from string, to []string) (*Node, error) {
	node, ok := graph.lookup(from)
	if !ok {
		return nil, &GraphStructureError{Op: op, Ref: from}
	}
	for _, target := range to {
		if _, ok := graph.lookup(target); !ok {
			return nil, &GraphStructureError{Op: op, From: from, Ref: target}
		}
	}
	return node, nil
}

func bindExpression(edge *ConditionalEdge) error {
	if edge.Condition != nil || edge.Expression == "" {
		return nil
	}
	condition, err := ExprCondition(edge.Expression, edge.To)
	if err != nil {
		return err
	}
	edge.Condition = condition
	return nil
}

// Compile validates the graph and moves END to the end of the iteration
// order. It returns the graph itself so construction can be chained.
func (graph *Graph) Compile() (*Graph, error) {
	graph.mu.Lock()
	defer graph.mu.Unlock()

	if err := graph.validateNodes(); err != nil {
		return nil, err
	}
	graph.reorderEndNode()
	return graph, nil
}

// validateNodes checks terminals, edge targets and edge expressions. The
// caller holds mu.
func (graph *Graph) validateNodes() error {
	for _, id := range []string{StartID, EndID} {
		if _, ok := graph.lookup(id); !ok {
			return &GraphStructureError{Op: "compile", Ref: id}
		}
	}

	for _, node := range graph.nodes {
		for _, edge := range node.Edges {
			if _, ok := graph.lookup(edge.To); !ok {
				return &GraphStructureError{Op: "compile", From: node.ID, Ref: edge.To}
			}
		}
		for _, edge := range node.ConditionalEdges {
			for _, target := range edge.To {
				if _, ok := graph.lookup(target); !ok {
					return &GraphStructureError{Op: "compile", From: node.ID, Ref: target}
				}
			}
			if edge.Condition == nil && edge.Expression != "" {
				if _, err := ExprCondition(edge.Expression, edge.To); err != nil {
					return fmt.Errorf("node %q: %w", node.ID, err)
				}
			}
		}
	}
	return nil
}

// reorderEndNode moves END last. The caller holds mu.
func (graph *Graph) reorderEndNode() {
	i, ok := graph.index[EndID]
	if !ok || i == len(graph.nodes)-1 {
		return
	}
	end := graph.nodes[i]
	graph.nodes = append(slices.Delete(graph.nodes, i, i+1), end)
	graph.reindex()
}

func (graph *Graph) reindex() {
	graph.index = make(map[string]int, len(graph.nodes))
	for i, node := range graph.nodes {
		graph.index[node.ID] = i
	}
}

// Nodes returns the node set in iteration order, without behavior.
func (graph *Graph) Nodes() []NodeDocument {
	graph.mu.RLock()
	defer graph.mu.RUnlock()
	return graph.nodeDocuments()
}

func (graph *Graph) nodeDocuments() []NodeDocument {
	docs := make([]NodeDocument, 0, len(graph.nodes))
	for _, node := range graph.nodes {
		docs = append(docs, documentFromNode(node))
	}
	return docs
}

// State returns a deep copy of the current state.
func (graph *Graph) State() Snapshot {
	graph.mu.RLock()
	defer graph.mu.RUnlock()
	return graph.snapshot()
}

// snapshot builds the event payload. The caller holds mu.
func (graph *Graph) snapshot() Snapshot {
	return Snapshot{
		Messages:      slices.Clone(graph.state.Messages),
		Nodes:         graph.nodeDocuments(),
		Active:        graph.state.Active,
		CurrentNodeID: graph.state.CurrentNodeID,
		ThreadID:      graph.state.ThreadID,
		Metadata:      maps.Clone(graph.state.Metadata),
	}
}

// Document returns the graph and its conversation as a storable document.
func (graph *Graph) Document(id string) Document {
	graph.mu.RLock()
	defer graph.mu.RUnlock()
	return Document{
		ID:       id,
		ThreadID: graph.state.ThreadID,
		Nodes:    graph.nodeDocuments(),
		Messages: slices.Clone(graph.state.Messages),
		Metadata: maps.Clone(graph.state.Metadata),
	}
}

// Load replaces the graph with doc. Behaviors are re-bound by kind and edge
// expression, START and END are added when doc lacks them, and the
// conversation (messages, thread id, metadata) is restored. The loaded graph
// is validated; on error it is still installed so it can be inspected.
//
// Load waits for an in-progress run to finish.
func (graph *Graph) Load(doc Document) error {
	graph.runMu.Lock()
	defer graph.runMu.Unlock()

	graph.mu.Lock()
	graph.nodes = nil
	graph.index = make(map[string]int)
	graph.state = State{
		Messages: slices.Clone(doc.Messages),
		ThreadID: doc.ThreadID,
		Metadata: maps.Clone(doc.Metadata),
	}
	graph.metadata = maps.Clone(doc.Metadata)
	if graph.state.Messages == nil {
		graph.state.Messages = []ai.Message{}
	}
	if graph.state.Metadata == nil {
		graph.state.Metadata = map[string]any{}
	}
	graph.mu.Unlock()

	for _, nodeDoc := range doc.Nodes {
		graph.AddNode(NodeFromDocument(nodeDoc))
	}
	graph.ensureTerminals()

	_, err := graph.Compile()
	return err
}

// Default resets the graph to START -> agent -> END, where agent is a
// completion node with the default model and instructions.
func (graph *Graph) Default() error {
	return graph.Load(Document{
		ID: "default",
		Nodes: []NodeDocument{
			{ID: StartID, Type: KindStart.String(), Edges: []EdgeDocument{{To: "agent"}}},
			{ID: "agent", Type: KindCompletion.String(), Edges: []EdgeDocument{{To: EndID}}},
			{ID: EndID, Type: KindEnd.String()},
		},
	})
}
