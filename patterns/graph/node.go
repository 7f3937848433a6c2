package graph

import (
	"context"
	"maps"
	"slices"
	"strings"

	"github.com/leofalp/chatflow/providers/ai"
)

const (
	// StartID is the reserved entry node. Every run begins here.
	StartID = "START"

	// EndID is the reserved exit node. Visiting it ends the run normally.
	EndID = "END"

	// Terminate is what condition evaluators return when they have no valid
	// target. It names END, so a terminated route still finishes the run
	// cleanly whenever END exists.
	Terminate = EndID

	// DefaultModel is used by completion nodes that do not name a model.
	DefaultModel = "gpt-4o-mini"

	// DefaultInstruction is the system prompt given to nodes without instructions.
	DefaultInstruction = "You are a helpful assistant."
)

// Kind is the behavior category of a node. It decides which action the node
// is bound to, how its routing is set up and how its output is folded into
// the transcript.
type Kind int

const (
	// KindUnset means the kind is derived from Node.Type when the node is added.
	KindUnset Kind = iota
	KindStart
	KindEnd
	// KindCompletion calls the model and appends its first choice.
	KindCompletion
	// KindRouter asks the model to pick one of its conditional targets.
	KindRouter
	// KindTool answers pending tool calls with tool messages.
	KindTool
	// KindWebhook triggers a side effect without touching the transcript.
	KindWebhook
	// KindToolCallCompletion calls the model with tools and routes to the
	// tool it asks for.
	KindToolCallCompletion
	// KindPassthrough runs the caller's action, if any, and folds nothing.
	KindPassthrough
)

const toolCallTypePrefix = "completion.tool_call."

// ParseKind maps a node type tag to its Kind. Unknown tags are passthrough.
func ParseKind(nodeType string) Kind {
	switch nodeType {
	case "start":
		return KindStart
	case "end":
		return KindEnd
	case "completion.model":
		return KindCompletion
	case "supervisor.router":
		return KindRouter
	case "tool":
		return KindTool
	case "webhook":
		return KindWebhook
	}
	if strings.HasPrefix(nodeType, toolCallTypePrefix) || nodeType == "completion.tool_call" {
		return KindToolCallCompletion
	}
	return KindPassthrough
}

// String returns the canonical type tag of the kind.
func (k Kind) String() string {
	switch k {
	case KindStart:
		return "start"
	case KindEnd:
		return "end"
	case KindCompletion:
		return "completion.model"
	case KindRouter:
		return "supervisor.router"
	case KindTool:
		return "tool"
	case KindWebhook:
		return "webhook"
	case KindToolCallCompletion:
		return "completion.tool_call"
	case KindPassthrough:
		return "passthrough"
	default:
		return "unset"
	}
}

// Result is what a node action hands back to the executor. Completion kinds
// fill Response, tool kinds fill Messages; other kinds usually return the
// zero value.
type Result struct {
	Response *ai.ChatResponse
	Messages []ai.Message
}

// Action is the behavior bound to a node. The state is a copy taken before
// the visit; actions report output through Result and never mutate the graph.
type Action func(ctx context.Context, state *State, node *Node) (Result, error)

// Condition picks the next node id after a visit. It returns Terminate when
// it has no valid target. An empty string means "no opinion" and lets the
// next rule decide.
type Condition func(ctx context.Context, state *State, node *Node) (string, error)

// Node is one workflow step.
type Node struct {
	ID string
	// Kind selects behavior. When zero it is parsed from Type.
	Kind Kind
	// Type is the free-form tag stored in documents, e.g. "completion.tool_call.redirect".
	Type        string
	Description string

	Edges            []Edge
	ConditionalEdges []ConditionalEdge
	Action           Action

	// Instructions are prepended to the transcript when the node calls a model.
	Instructions []ai.Message
	Model        string
	Role         string
	// Tools lists tool names advertised by tool-call completions.
	Tools    []string
	Metadata map[string]any

	Visited  bool
	IsActive bool
}

// Edge is an unconditional transition.
type Edge struct {
	From     string
	To       string
	Label    string
	Metadata map[string]any
}

// ConditionalEdge is a state-dependent transition. Condition chooses among
// To; Expression, when set, is an expr-lang program compiled into Condition.
type ConditionalEdge struct {
	From       string
	To         []string
	Condition  Condition
	Label      string
	Metadata   map[string]any
	Expression string
}

// clone copies the node deeply enough that the executor can hand it to an
// action while the arena keeps changing.
func (n *Node) clone() *Node {
	copied := *n
	copied.Edges = slices.Clone(n.Edges)
	copied.ConditionalEdges = make([]ConditionalEdge, len(n.ConditionalEdges))
	for i, edge := range n.ConditionalEdges {
		edge.To = slices.Clone(edge.To)
		copied.ConditionalEdges[i] = edge
	}
	copied.Instructions = slices.Clone(n.Instructions)
	copied.Tools = slices.Clone(n.Tools)
	copied.Metadata = maps.Clone(n.Metadata)
	return &copied
}
