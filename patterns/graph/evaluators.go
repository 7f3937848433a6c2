package graph

import (
	"context"
	"fmt"
	"slices"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/leofalp/chatflow/core/parse"
	"github.com/leofalp/chatflow/internal/jsonschema"
	"github.com/leofalp/chatflow/providers/ai"
	"github.com/leofalp/chatflow/providers/observability"
)

// routerDecision is the structured answer of a router completion.
type routerDecision struct {
	Next string `json:"next"`
}

// RouterSchema constrains a router completion to {"next": one of candidates}.
func RouterSchema(candidates []string) *jsonschema.Schema {
	return jsonschema.Object(map[string]*jsonschema.Schema{
		"next": jsonschema.StringEnum("Id of the next node to visit", candidates...),
	}, "next")
}

// RouterCondition asks provider to choose among the targets of the node's
// first conditional edge. Any failure (call error, empty answer, unparsable
// answer, answer outside the candidates) yields Terminate and is logged, never
// returned.
func RouterCondition(provider ai.Provider) Condition {
	return func(ctx context.Context, state *State, node *Node) (string, error) {
		if provider == nil || len(node.ConditionalEdges) == 0 || len(node.ConditionalEdges[0].To) == 0 {
			return Terminate, nil
		}
		candidates := node.ConditionalEdges[0].To

		response, err := provider.SendMessage(ctx, ai.ChatRequest{
			Model:    modelFor(node),
			Messages: promptFor(state, node),
			ResponseFormat: &ai.ResponseFormat{
				Name:         "router",
				Type:         "json_schema",
				OutputSchema: RouterSchema(candidates),
				Strict:       true,
			},
		})
		if err != nil {
			logRouter(ctx, node, "router completion failed", observability.Error(err))
			return Terminate, nil
		}

		content := response.Content()
		if content == "" {
			logRouter(ctx, node, "router completion returned no content")
			return Terminate, nil
		}

		decision, err := parse.ParseStringAs[routerDecision](content)
		if err != nil {
			logRouter(ctx, node, "router answer could not be parsed", observability.Error(err))
			return Terminate, nil
		}
		if !slices.Contains(candidates, decision.Next) {
			logRouter(ctx, node, "router answer outside candidates", observability.String("graph.router.answer", decision.Next))
			return Terminate, nil
		}
		return decision.Next, nil
	}
}

func logRouter(ctx context.Context, node *Node, msg string, attrs ...observability.Attribute) {
	observer := observability.ObserverFromContext(ctx)
	if observer == nil {
		return
	}
	observer.Warn(ctx, msg, append(attrs, observability.String(observability.AttrGraphNodeID, node.ID))...)
}

// ToolCallCondition routes to the tool named by the first pending tool call
// of the last message, or Terminate when the model answered without tools.
func ToolCallCondition(_ context.Context, state *State, _ *Node) (string, error) {
	last, ok := state.LastMessage()
	if !ok || !last.HasPendingToolCall() {
		return Terminate, nil
	}
	return last.ToolCalls[0].Function.Name, nil
}

// ExprCondition compiles an expr-lang expression evaluated after each visit.
// The expression sees:
//
//	messages   []map with role, content, name, tool_calls
//	last       the newest message (same shape), empty fields when there is none
//	metadata   the run metadata
//	thread_id  the conversation thread
//	node       the id of the node just visited
//	targets    the candidate ids of the edge
//
// It must evaluate to a string node id; "" defers to the next rule.
//
// Example:
//
//	last.content contains "precio" ? "sales" : "support"
func ExprCondition(expression string, targets []string) (Condition, error) {
	program, err := expr.Compile(expression,
		expr.Env(exprEnv(&State{}, &Node{}, targets)),
		expr.AllowUndefinedVariables(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidExpression, expression, err)
	}
	return exprCondition(program, expression, targets), nil
}

func exprCondition(program *vm.Program, expression string, targets []string) Condition {
	return func(_ context.Context, state *State, node *Node) (string, error) {
		out, err := vm.Run(program, exprEnv(state, node, targets))
		if err != nil {
			return "", fmt.Errorf("evaluate %q: %w", expression, err)
		}
		switch value := out.(type) {
		case string:
			return value, nil
		case nil:
			return "", nil
		default:
			return "", fmt.Errorf("expression %q returned %T, want string", expression, out)
		}
	}
}

func exprEnv(state *State, node *Node, targets []string) map[string]any {
	messages := make([]any, 0, len(state.Messages))
	for _, message := range state.Messages {
		messages = append(messages, messageEnv(message))
	}
	last, _ := state.LastMessage()
	metadata := state.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	return map[string]any{
		"messages":  messages,
		"last":      messageEnv(last),
		"metadata":  metadata,
		"thread_id": state.ThreadID,
		"node":      node.ID,
		"targets":   targets,
	}
}

func messageEnv(message ai.Message) map[string]any {
	calls := make([]any, 0, len(message.ToolCalls))
	for _, call := range message.ToolCalls {
		calls = append(calls, map[string]any{
			"id":        call.ID,
			"name":      call.Function.Name,
			"arguments": call.Function.Arguments,
		})
	}
	return map[string]any{
		"role":       string(message.Role),
		"content":    message.Content,
		"name":       message.Name,
		"tool_calls": calls,
	}
}
