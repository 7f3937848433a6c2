package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/leofalp/chatflow/providers/ai"
	"github.com/leofalp/chatflow/providers/tool"
)

// ErrNoProvider is returned by model-backed actions built without a provider.
var ErrNoProvider = errors.New("graph: no model provider configured")

const (
	completionTemperature = 0.1
	toolCallTemperature   = 0.2
)

// Passthrough is the identity action.
func Passthrough(context.Context, *State, *Node) (Result, error) {
	return Result{}, nil
}

// nodeSettings are the generation knobs a node may carry in its metadata.
type nodeSettings struct {
	Temperature       *float32 `mapstructure:"temperature"`
	TopP              float32  `mapstructure:"top_p"`
	MaxTokens         int      `mapstructure:"max_tokens"`
	ToolChoice        string   `mapstructure:"tool_choice"`
	ParallelToolCalls *bool    `mapstructure:"parallel_tool_calls"`
}

// decodeSettings reads nodeSettings from metadata. Unrelated keys are
// ignored and numbers given as strings are accepted.
func decodeSettings(metadata map[string]any) (nodeSettings, error) {
	var settings nodeSettings
	if len(metadata) == 0 {
		return settings, nil
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &settings,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return settings, err
	}
	if err := decoder.Decode(metadata); err != nil {
		return settings, fmt.Errorf("decode node settings: %w", err)
	}
	return settings, nil
}

func (s nodeSettings) generationConfig(defaultTemperature float32) *ai.GenerationConfig {
	temperature := defaultTemperature
	if s.Temperature != nil {
		temperature = *s.Temperature
	}
	return &ai.GenerationConfig{
		Temperature: temperature,
		TopP:        s.TopP,
		MaxTokens:   s.MaxTokens,
	}
}

// promptFor prepends the node instructions to the transcript.
func promptFor(state *State, node *Node, extra ...ai.Message) []ai.Message {
	messages := make([]ai.Message, 0, len(node.Instructions)+len(extra)+len(state.Messages))
	messages = append(messages, node.Instructions...)
	messages = append(messages, extra...)
	return append(messages, state.Messages...)
}

func modelFor(node *Node) string {
	if node.Model == "" {
		return DefaultModel
	}
	return node.Model
}

// CompletionAction calls provider with the node instructions followed by the
// transcript. The response is folded by the executor, which appends the
// first choice.
func CompletionAction(provider ai.Provider) Action {
	return func(ctx context.Context, state *State, node *Node) (Result, error) {
		if provider == nil {
			return Result{}, ErrNoProvider
		}
		settings, err := decodeSettings(node.Metadata)
		if err != nil {
			return Result{}, err
		}

		response, err := provider.SendMessage(ctx, ai.ChatRequest{
			Model:            modelFor(node),
			Messages:         promptFor(state, node),
			GenerationConfig: settings.generationConfig(completionTemperature),
		})
		if err != nil {
			return Result{}, err
		}
		return Result{Response: response}, nil
	}
}

// ToolCallCompletionAction calls provider with the node's tools advertised.
// Tool names come from Node.Tools, or from the type suffix of
// "completion.tool_call.<tool>" nodes. The request lets the model choose
// freely between answering and calling exactly one tool, and carries the
// current date so the model can reason about schedules.
func ToolCallCompletionAction(provider ai.Provider, registry *Registry) Action {
	return func(ctx context.Context, state *State, node *Node) (Result, error) {
		if provider == nil {
			return Result{}, ErrNoProvider
		}
		settings, err := decodeSettings(node.Metadata)
		if err != nil {
			return Result{}, err
		}

		request := ai.ChatRequest{
			Model:            modelFor(node),
			Messages:         promptFor(state, node, ai.SystemMessage("Current date and time: "+currentDate(state))),
			GenerationConfig: settings.generationConfig(toolCallTemperature),
			ToolChoice:       "auto",
		}
		if settings.ToolChoice != "" {
			request.ToolChoice = settings.ToolChoice
		}
		parallel := false
		if settings.ParallelToolCalls != nil {
			parallel = *settings.ParallelToolCalls
		}
		request.ParallelToolCalls = &parallel
		if registry != nil {
			request.Tools = registry.Describe(toolNames(node))
		}

		response, err := provider.SendMessage(ctx, request)
		if err != nil {
			return Result{}, err
		}
		return Result{Response: response}, nil
	}
}

func toolNames(node *Node) []string {
	if len(node.Tools) > 0 {
		return node.Tools
	}
	if name, ok := strings.CutPrefix(node.Type, toolCallTypePrefix); ok && name != "" {
		return []string{name}
	}
	return nil
}

// currentDate prefers the "date" metadata supplied by the caller, which is
// already localized, over the server clock.
func currentDate(state *State) string {
	if date, ok := state.Metadata["date"].(string); ok && date != "" {
		return date
	}
	return time.Now().Format(time.RFC1123)
}

// ToolAction answers every pending call to t in the last transcript message.
// The thread id travels in the context for tools that act on the chat.
func ToolAction(t tool.Tool) Action {
	name := t.Info().Name
	return func(ctx context.Context, state *State, node *Node) (Result, error) {
		calls := tool.PendingCalls(state.Messages, name)
		if len(calls) == 0 {
			return Result{}, nil
		}

		ctx = tool.ContextWithThread(ctx, state.ThreadID)
		messages := make([]ai.Message, 0, len(calls))
		for _, call := range calls {
			message, err := t.Invoke(ctx, call)
			if err != nil {
				return Result{Messages: messages}, err
			}
			messages = append(messages, message)
		}
		return Result{Messages: messages}, nil
	}
}

// webhookPayload is what webhook nodes post.
type webhookPayload struct {
	NodeID   string         `json:"node_id"`
	ThreadID string         `json:"thread_id,omitempty"`
	Messages []ai.Message   `json:"messages"`
	Metadata map[string]any `json:"metadata,omitempty"`
	SentAt   time.Time      `json:"sent_at"`
}

// WebhookAction posts the current conversation to poster. It never changes
// the transcript.
func WebhookAction(poster Poster) Action {
	return func(ctx context.Context, state *State, node *Node) (Result, error) {
		err := poster.Post(ctx, webhookPayload{
			NodeID:   node.ID,
			ThreadID: state.ThreadID,
			Messages: state.Messages,
			Metadata: state.Metadata,
			SentAt:   time.Now().UTC(),
		})
		return Result{}, err
	}
}
