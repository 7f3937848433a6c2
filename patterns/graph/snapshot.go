package graph

import (
	"maps"
	"slices"

	"github.com/leofalp/chatflow/providers/ai"
)

// EdgeDocument is the stored form of an Edge.
type EdgeDocument struct {
	From     string         `json:"from" bson:"from" yaml:"from,omitempty" mapstructure:"from"`
	To       string         `json:"to" bson:"to" yaml:"to" mapstructure:"to"`
	Label    string         `json:"label,omitempty" bson:"label,omitempty" yaml:"label,omitempty" mapstructure:"label"`
	Metadata map[string]any `json:"metadata,omitempty" bson:"metadata,omitempty" yaml:"metadata,omitempty" mapstructure:"metadata"`
}

// ConditionalEdgeDocument is the stored form of a ConditionalEdge. The
// condition function is not stored; it is re-bound from the node kind or
// from Expression when the document is loaded.
type ConditionalEdgeDocument struct {
	From       string         `json:"from" bson:"from" yaml:"from,omitempty" mapstructure:"from"`
	To         []string       `json:"to" bson:"to" yaml:"to" mapstructure:"to"`
	Label      string         `json:"label,omitempty" bson:"label,omitempty" yaml:"label,omitempty" mapstructure:"label"`
	Expression string         `json:"expression,omitempty" bson:"expression,omitempty" yaml:"expression,omitempty" mapstructure:"expression"`
	Metadata   map[string]any `json:"metadata,omitempty" bson:"metadata,omitempty" yaml:"metadata,omitempty" mapstructure:"metadata"`
}

// NodeDocument is the serializable form of a Node.
type NodeDocument struct {
	ID               string                    `json:"id" bson:"id" yaml:"id" mapstructure:"id"`
	Type             string                    `json:"type" bson:"type" yaml:"type" mapstructure:"type"`
	Description      string                    `json:"description,omitempty" bson:"description,omitempty" yaml:"description,omitempty" mapstructure:"description"`
	Edges            []EdgeDocument            `json:"edges" bson:"edges" yaml:"edges,omitempty" mapstructure:"edges"`
	ConditionalEdges []ConditionalEdgeDocument `json:"conditionalEdges" bson:"conditionalEdges" yaml:"conditional_edges,omitempty" mapstructure:"conditional_edges"`
	Instructions     []ai.Message              `json:"instructions,omitempty" bson:"instructions,omitempty" yaml:"instructions,omitempty" mapstructure:"instructions"`
	Model            string                    `json:"model,omitempty" bson:"model,omitempty" yaml:"model,omitempty" mapstructure:"model"`
	Role             string                    `json:"role,omitempty" bson:"role,omitempty" yaml:"role,omitempty" mapstructure:"role"`
	Tools            []string                  `json:"tools,omitempty" bson:"tools,omitempty" yaml:"tools,omitempty" mapstructure:"tools"`
	Metadata         map[string]any            `json:"metadata,omitempty" bson:"metadata,omitempty" yaml:"metadata,omitempty" mapstructure:"metadata"`
	Visited          bool                      `json:"visited" bson:"visited" yaml:"-" mapstructure:"-"`
	IsActive         bool                      `json:"isActive" bson:"isActive" yaml:"-" mapstructure:"-"`
}

// Document is a persisted graph: its nodes plus the conversation context
// they ran with.
type Document struct {
	ID       string         `json:"id" bson:"_id" yaml:"id" mapstructure:"id"`
	ThreadID string         `json:"thread_id,omitempty" bson:"thread_id,omitempty" yaml:"-" mapstructure:"-"`
	Nodes    []NodeDocument `json:"nodes" bson:"nodes" yaml:"nodes" mapstructure:"nodes"`
	Messages []ai.Message   `json:"messages,omitempty" bson:"messages,omitempty" yaml:"-" mapstructure:"-"`
	Metadata map[string]any `json:"metadata,omitempty" bson:"metadata,omitempty" yaml:"metadata,omitempty" mapstructure:"metadata"`
}

// Snapshot is the payload of EventStateUpdated: a deep copy of the state
// with the node set flattened to a list.
type Snapshot struct {
	Messages      []ai.Message   `json:"messages"`
	Nodes         []NodeDocument `json:"nodes"`
	Active        bool           `json:"active"`
	CurrentNodeID string         `json:"current_node_id,omitempty"`
	ThreadID      string         `json:"thread_id,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

func documentFromNode(node *Node) NodeDocument {
	doc := NodeDocument{
		ID:               node.ID,
		Type:             node.Type,
		Description:      node.Description,
		Edges:            make([]EdgeDocument, 0, len(node.Edges)),
		ConditionalEdges: make([]ConditionalEdgeDocument, 0, len(node.ConditionalEdges)),
		Instructions:     slices.Clone(node.Instructions),
		Model:            node.Model,
		Role:             node.Role,
		Tools:            slices.Clone(node.Tools),
		Metadata:         maps.Clone(node.Metadata),
		Visited:          node.Visited,
		IsActive:         node.IsActive,
	}
	for _, edge := range node.Edges {
		doc.Edges = append(doc.Edges, EdgeDocument{
			From:     edge.From,
			To:       edge.To,
			Label:    edge.Label,
			Metadata: maps.Clone(edge.Metadata),
		})
	}
	for _, edge := range node.ConditionalEdges {
		doc.ConditionalEdges = append(doc.ConditionalEdges, ConditionalEdgeDocument{
			From:       edge.From,
			To:         slices.Clone(edge.To),
			Label:      edge.Label,
			Expression: edge.Expression,
			Metadata:   maps.Clone(edge.Metadata),
		})
	}
	return doc
}

// NodeFromDocument rebuilds a Node without behavior. AddNode binds the
// action and conditions from the node kind and edge expressions.
func NodeFromDocument(doc NodeDocument) Node {
	node := Node{
		ID:           doc.ID,
		Type:         doc.Type,
		Description:  doc.Description,
		Instructions: slices.Clone(doc.Instructions),
		Model:        doc.Model,
		Role:         doc.Role,
		Tools:        slices.Clone(doc.Tools),
		Metadata:     maps.Clone(doc.Metadata),
		Visited:      doc.Visited,
	}
	for _, edge := range doc.Edges {
		node.Edges = append(node.Edges, Edge{
			From:     doc.ID,
			To:       edge.To,
			Label:    edge.Label,
			Metadata: maps.Clone(edge.Metadata),
		})
	}
	for _, edge := range doc.ConditionalEdges {
		node.ConditionalEdges = append(node.ConditionalEdges, ConditionalEdge{
			From:       doc.ID,
			To:         slices.Clone(edge.To),
			Label:      edge.Label,
			Expression: edge.Expression,
			Metadata:   maps.Clone(edge.Metadata),
		})
	}
	return node
}
