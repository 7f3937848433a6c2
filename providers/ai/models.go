package ai

import (
	"encoding/json"
	"errors"

	"github.com/leofalp/chatflow/internal/jsonschema"
)

// ErrEmptyCompletion is returned by providers when the remote call succeeded
// but the response carried no usable choice. It lets callers tell a failed
// call apart from a successful call with nothing to say.
var ErrEmptyCompletion = errors.New("completion returned no usable choice")

/*
	##### PROVIDER INPUT #####
*/

// ChatRequest represents a request to send a chat message
type ChatRequest struct {
	Model             string            `json:"model,omitempty"`               // Model name or identifier
	Messages          []Message         `json:"messages"`                      // Full transcript, instructions included
	Tools             []ToolDescription `json:"tools,omitempty"`               // Contains tool definitions if any
	ToolChoice        string            `json:"tool_choice,omitempty"`         // "auto", "none", "required" or a tool name
	ParallelToolCalls *bool             `json:"parallel_tool_calls,omitempty"` // Nil leaves the provider default
	ResponseFormat    *ResponseFormat   `json:"response_format,omitempty"`     // Optional response format
	GenerationConfig  *GenerationConfig `json:"generation_config,omitempty"`   // Optional generation configuration
}

type ToolDescription struct {
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	Parameters  *jsonschema.Schema `json:"parameters,omitempty"`
}

// Message represents a single message in a conversation
type Message struct {
	Role    MessageRole `json:"role" bson:"role" yaml:"role"`
	Content string      `json:"content,omitempty" bson:"content,omitempty" yaml:"content,omitempty"`

	// Tool calling fields
	ToolCalls  []ToolCall `json:"tool_calls,omitempty" bson:"tool_calls,omitempty" yaml:"-" mapstructure:"-"`                                       // For role=assistant requesting tools
	ToolCallID string     `json:"tool_call_id,omitempty" bson:"tool_call_id,omitempty" yaml:"tool_call_id,omitempty" mapstructure:"tool_call_id"` // For role=tool, links to the tool call being responded to
	Name       string     `json:"name,omitempty" bson:"name,omitempty" yaml:"name,omitempty"`                                                       // For role=tool, name of the tool that generated this response
}

// HasPendingToolCall reports whether the message asks for at least one tool invocation.
func (m Message) HasPendingToolCall() bool {
	return len(m.ToolCalls) > 0
}

type GenerationConfig struct {
	MaxTokens   int     `json:"max_tokens,omitempty"`  // Optional max tokens for the response
	Temperature float32 `json:"temperature,omitempty"` // Sampling temperature [0..2]. Higher => more random; lower => more deterministic.
	TopP        float32 `json:"top_p,omitempty"`       // Nucleus (top-p) sampling [0..1]. Alternative to temperature.
}

type ResponseFormat struct {
	Name         string             `json:"name,omitempty"`          // Schema name advertised to the provider
	OutputSchema *jsonschema.Schema `json:"output_schema,omitempty"` // Optional schema for structured response
	Strict       bool               `json:"strict,omitempty"`        // If true, the model must strictly adhere to the output schema
	Type         string             `json:"type,omitempty"`          // "text|json_object|json_schema"
}

/*
	##### PROVIDER OUTPUT #####
*/

type Usage struct {
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`
}

// Choice is one candidate completion returned by the model.
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason,omitempty"`
}

// ChatResponse represents the response from a chat completion
type ChatResponse struct {
	Id      string   `json:"id"`
	Model   string   `json:"model"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Choices []Choice `json:"choices"`
	Usage   *Usage   `json:"usage,omitempty"`
}

// FirstMessage returns the message of the first choice. The boolean is false
// when the response is nil or carries no choices.
func (r *ChatResponse) FirstMessage() (Message, bool) {
	if r == nil || len(r.Choices) == 0 {
		return Message{}, false
	}
	return r.Choices[0].Message, true
}

// Content returns the text of the first choice, or "" when there is none.
func (r *ChatResponse) Content() string {
	message, ok := r.FirstMessage()
	if !ok {
		return ""
	}
	return message.Content
}

/*
	##### ENUMS #####
*/

// ToolCall represents a function/tool call request from the LLM
type ToolCall struct {
	ID       string           `json:"id,omitempty" bson:"id,omitempty"` // Unique identifier for this tool call
	Type     string           `json:"type" bson:"type"`                 // "function"
	Function ToolCallFunction `json:"function" bson:"function"`
}

type ToolCallFunction struct {
	Name      string `json:"name" bson:"name"`
	Arguments string `json:"arguments" bson:"arguments"` // JSON string
}

// ToolResult represents a standardized tool execution result.
// Tools serialize it into the content of the "tool" message they return so
// the model can tell success from failure on the next completion.
type ToolResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// NewToolResultSuccess creates a successful tool result.
func NewToolResultSuccess(data any) ToolResult {
	return ToolResult{
		Success: true,
		Data:    data,
	}
}

// NewToolResultError creates a failed tool result with error details.
// errorType should be a machine-readable code such as "invalid_arguments".
func NewToolResultError(errorType, message string) ToolResult {
	return ToolResult{
		Success: false,
		Error:   errorType,
		Message: message,
	}
}

// ToJSON converts the ToolResult to a JSON string.
func (tr ToolResult) ToJSON() (string, error) {
	bytes, err := json.Marshal(tr)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

// MessageRole represents the role of a message; compatible with string
type MessageRole string

const (
	RoleSystem    MessageRole = "system"    // System instructions/configuration
	RoleUser      MessageRole = "user"      // End-user message
	RoleAssistant MessageRole = "assistant" // LLM response
	RoleTool      MessageRole = "tool"      // Tool/function output
)

// SystemMessage is a shorthand for a system-role message.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// UserMessage is a shorthand for a user-role message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage is a shorthand for an assistant-role message.
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}
