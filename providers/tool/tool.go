package tool

import (
	"context"
	"fmt"
	"time"

	"github.com/leofalp/chatflow/core/parse"
	"github.com/leofalp/chatflow/internal/jsonschema"
	"github.com/leofalp/chatflow/providers/ai"
	"github.com/leofalp/chatflow/providers/observability"
)

// Tool is anything a model can call. Info advertises it in a completion
// request; Invoke answers one tool call with a "tool" role message carrying
// the call id.
type Tool interface {
	Info() ai.ToolDescription
	Invoke(ctx context.Context, call ai.ToolCall) (ai.Message, error)
}

// Func is a typed tool backed by a Go function. Arguments are decoded into I
// with parse.ParseStringAs and the output O is returned to the model wrapped
// in an ai.ToolResult.
type Func[I, O any] struct {
	Name        string
	Description string
	Parameters  *jsonschema.Schema
	Function    func(ctx context.Context, input I) (O, error)
}

var _ Tool = (*Func[struct{}, struct{}])(nil)

// Option configures a Func built by New.
type Option func(*funcOptions)

type funcOptions struct {
	description string
	parameters  *jsonschema.Schema
}

// WithDescription sets a human-readable description for the tool.
// Providers surface this description to the language model to help it decide
// when and how to invoke the tool.
func WithDescription(description string) Option {
	return func(options *funcOptions) {
		options.description = description
	}
}

// WithParameters replaces the schema derived from I, for tools whose
// arguments need a hand-written closed schema.
func WithParameters(schema *jsonschema.Schema) Option {
	return func(options *funcOptions) {
		options.parameters = schema
	}
}

// New constructs a Func with the given name and handler. The parameter schema
// is derived from I unless WithParameters overrides it.
//
// Example:
//
//	lookup := tool.New("lookup_order", func(ctx context.Context, in OrderQuery) (Order, error) {
//	    return orders.Find(ctx, in.ID)
//	}, tool.WithDescription("Finds an order by id."))
func New[I, O any](name string, function func(ctx context.Context, input I) (O, error), options ...Option) *Func[I, O] {
	config := &funcOptions{}
	for _, option := range options {
		option(config)
	}

	parameters := config.parameters
	if parameters == nil {
		parameters = jsonschema.GenerateJSONSchema[I]()
	}

	return &Func[I, O]{
		Name:        name,
		Description: config.description,
		Parameters:  parameters,
		Function:    function,
	}
}

// Info returns the description used to advertise this tool to a provider.
func (t *Func[I, O]) Info() ai.ToolDescription {
	return ai.ToolDescription{
		Name:        t.Name,
		Description: t.Description,
		Parameters:  t.Parameters,
	}
}

// Invoke runs the tool for one call.
//
// Malformed arguments are the model's mistake: they produce a tool message
// holding an "invalid_arguments" result and no error, so the model can retry.
// A failing Function returns the error, and the message still carries an
// "execution_failed" result for callers that want to keep the transcript whole.
func (t *Func[I, O]) Invoke(ctx context.Context, call ai.ToolCall) (ai.Message, error) {
	span := observability.SpanFromContext(ctx)
	if span != nil {
		span.AddEvent("tool.execution.start",
			observability.String(observability.AttrToolName, t.Name),
			observability.String(observability.AttrToolCallID, call.ID),
		)
	}

	start := time.Now()
	input, err := parse.ParseStringAs[I](call.Function.Arguments)
	if err != nil {
		if span != nil {
			span.RecordError(err)
		}
		return resultMessage(call, t.Name, ai.NewToolResultError("invalid_arguments", err.Error())), nil
	}

	output, err := t.Function(ctx, input)
	if span != nil {
		span.AddEvent("tool.execution.end",
			observability.String(observability.AttrToolName, t.Name),
			observability.Duration("tool.duration", time.Since(start)),
			observability.Bool("tool.failed", err != nil),
		)
	}
	if err != nil {
		return resultMessage(call, t.Name, ai.NewToolResultError("execution_failed", err.Error())),
			fmt.Errorf("tool %s: %w", t.Name, err)
	}

	return resultMessage(call, t.Name, ai.NewToolResultSuccess(output)), nil
}

// ResultMessage builds the "tool" role message answering call.
func ResultMessage(call ai.ToolCall, name string, result ai.ToolResult) ai.Message {
	return resultMessage(call, name, result)
}

func resultMessage(call ai.ToolCall, name string, result ai.ToolResult) ai.Message {
	content, err := result.ToJSON()
	if err != nil {
		content = fmt.Sprintf(`{"success":false,"error":"encoding_failed","message":%q}`, err.Error())
	}
	return ai.Message{
		Role:       ai.RoleTool,
		Content:    content,
		ToolCallID: call.ID,
		Name:       name,
	}
}

// PendingCalls returns the tool calls of the last message in transcript that
// target name. An empty name matches every call.
func PendingCalls(transcript []ai.Message, name string) []ai.ToolCall {
	if len(transcript) == 0 {
		return nil
	}
	last := transcript[len(transcript)-1]
	if !last.HasPendingToolCall() {
		return nil
	}

	var calls []ai.ToolCall
	for _, call := range last.ToolCalls {
		if name == "" || call.Function.Name == name {
			calls = append(calls, call)
		}
	}
	return calls
}

type threadContextKey struct{}

// ContextWithThread attaches the conversation thread id to ctx so tools that
// notify people or update records know which chat they act on.
func ContextWithThread(ctx context.Context, threadID string) context.Context {
	return context.WithValue(ctx, threadContextKey{}, threadID)
}

// ThreadFromContext returns the thread id set by ContextWithThread, or "".
func ThreadFromContext(ctx context.Context) string {
	threadID, _ := ctx.Value(threadContextKey{}).(string)
	return threadID
}
