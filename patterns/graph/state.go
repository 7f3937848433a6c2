package graph

import (
	"maps"
	"slices"

	"github.com/leofalp/chatflow/providers/ai"
)

// State is the execution context of one graph. The executor is its only
// writer; actions and conditions receive copies.
type State struct {
	// Messages is the transcript. It only grows during a run.
	Messages []ai.Message `json:"messages"`
	// Active is true while a run is in progress.
	Active bool `json:"active"`
	// CurrentNodeID is the node being visited. Empty means the run stopped.
	CurrentNodeID string         `json:"current_node_id,omitempty"`
	ThreadID      string         `json:"thread_id,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	Prompt        *ai.Message    `json:"prompt,omitempty"`
}

// LastMessage returns the newest transcript entry.
func (s *State) LastMessage() (ai.Message, bool) {
	if s == nil || len(s.Messages) == 0 {
		return ai.Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

func (s *State) clone() *State {
	copied := *s
	copied.Messages = slices.Clone(s.Messages)
	copied.Metadata = maps.Clone(s.Metadata)
	if s.Prompt != nil {
		prompt := *s.Prompt
		copied.Prompt = &prompt
	}
	return &copied
}

// Termination tells how a run ended.
type Termination string

const (
	// TerminationEnd means END was visited.
	TerminationEnd Termination = "end"

	// TerminationBudgetExhausted means the iteration cap stopped the run.
	TerminationBudgetExhausted Termination = "budget_exhausted"

	// TerminationDeadEnd means no edge produced an existing target.
	TerminationDeadEnd Termination = "dead_end"

	// TerminationHalted means a node failed under FailureHalt.
	TerminationHalted Termination = "halted"

	// TerminationCanceled means the caller's context ended the run between steps.
	TerminationCanceled Termination = "canceled"
)

// RunInput holds the caller-supplied parameters of one run.
type RunInput struct {
	// Messages, when non-nil, replaces the transcript.
	Messages []ai.Message
	// Prompt, when set, is appended to the transcript and becomes
	// State.Prompt. A nil Prompt clears the previous one.
	Prompt *ai.Message
	// Metadata is layered over the metadata of the loaded document.
	Metadata map[string]any
	// ThreadID replaces the thread of the previous run, even when empty.
	ThreadID string
	// MaxIterations overrides the graph default (6) when positive.
	MaxIterations int
}

// RunResult describes a finished run.
type RunResult struct {
	// Output is the content of the last message when it came from the assistant.
	Output      string
	Termination Termination
	// Iterations counts node visits, START and END included.
	Iterations int
	Messages   []ai.Message
}
