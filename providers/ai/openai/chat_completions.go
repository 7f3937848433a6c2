package openai

import (
	"github.com/leofalp/chatflow/internal/jsonschema"
	"github.com/leofalp/chatflow/providers/ai"
)

/*
	CHAT COMPLETIONS API - INPUT
*/

// chatCompletionRequest represents the /v1/chat/completions request format
type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float32      `json:"temperature,omitempty"`
	TopP        *float32      `json:"top_p,omitempty"`
	MaxTokens   *int          `json:"max_completion_tokens,omitempty"`

	Tools             []chatTool `json:"tools,omitempty"`
	ToolChoice        string     `json:"tool_choice,omitempty"` // "auto", "none", "required"
	ParallelToolCalls *bool      `json:"parallel_tool_calls,omitempty"`

	ResponseFormat *chatResponseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role       string         `json:"role"`
	Content    *string        `json:"content"`
	Name       string         `json:"name,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	ToolCalls  []chatToolCall `json:"tool_calls,omitempty"`
}

type chatTool struct {
	Type     string       `json:"type"` // "function"
	Function chatFunction `json:"function"`
}

type chatFunction struct {
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	Parameters  *jsonschema.Schema `json:"parameters,omitempty"`
}

type chatToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function chatToolFunction `json:"function"`
}

type chatToolFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type chatResponseFormat struct {
	Type       string              `json:"type"` // "text", "json_object", "json_schema"
	JSONSchema *chatJSONSchemaSpec `json:"json_schema,omitempty"`
}

type chatJSONSchemaSpec struct {
	Name   string             `json:"name"`
	Schema *jsonschema.Schema `json:"schema"`
	Strict bool               `json:"strict,omitempty"`
}

/*
	CHAT COMPLETIONS API - OUTPUT
*/

type chatCompletionResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   *chatUsage   `json:"usage,omitempty"`
}

type chatChoice struct {
	Index        int                 `json:"index"`
	Message      chatResponseMessage `json:"message"`
	FinishReason string              `json:"finish_reason"` // "stop", "length", "tool_calls", "content_filter"
}

type chatResponseMessage struct {
	Role      string         `json:"role"`
	Content   string         `json:"content,omitempty"`
	ToolCalls []chatToolCall `json:"tool_calls,omitempty"`
	Refusal   string         `json:"refusal,omitempty"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

/*
	CONVERSION FUNCTIONS
*/

// requestToChatCompletion converts ai.ChatRequest to chat completions format
func requestToChatCompletion(request ai.ChatRequest) chatCompletionRequest {
	req := chatCompletionRequest{
		Model:             request.Model,
		ToolChoice:        request.ToolChoice,
		ParallelToolCalls: request.ParallelToolCalls,
		Messages:          make([]chatMessage, 0, len(request.Messages)),
	}

	for _, message := range request.Messages {
		req.Messages = append(req.Messages, messageToChat(message))
	}

	for _, tool := range request.Tools {
		req.Tools = append(req.Tools, chatTool{
			Type: "function",
			Function: chatFunction{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.Parameters,
			},
		})
	}
	// tool_choice and parallel_tool_calls are rejected without tools
	if len(req.Tools) == 0 {
		req.ToolChoice = ""
		req.ParallelToolCalls = nil
	}

	if config := request.GenerationConfig; config != nil {
		if config.Temperature != 0 {
			temperature := config.Temperature
			req.Temperature = &temperature
		}
		if config.TopP != 0 {
			topP := config.TopP
			req.TopP = &topP
		}
		if config.MaxTokens > 0 {
			maxTokens := config.MaxTokens
			req.MaxTokens = &maxTokens
		}
	}

	if format := request.ResponseFormat; format != nil {
		req.ResponseFormat = &chatResponseFormat{Type: format.Type}
		if format.OutputSchema != nil {
			name := format.Name
			if name == "" {
				name = "response"
			}
			req.ResponseFormat.Type = "json_schema"
			req.ResponseFormat.JSONSchema = &chatJSONSchemaSpec{
				Name:   name,
				Schema: format.OutputSchema,
				Strict: format.Strict,
			}
		}
		if req.ResponseFormat.Type == "" {
			req.ResponseFormat = nil
		}
	}

	return req
}

func messageToChat(message ai.Message) chatMessage {
	converted := chatMessage{
		Role:       string(message.Role),
		Name:       message.Name,
		ToolCallID: message.ToolCallID,
	}
	// assistant messages carrying only tool calls send a null content
	if message.Content != "" || len(message.ToolCalls) == 0 {
		content := message.Content
		converted.Content = &content
	}
	for _, call := range message.ToolCalls {
		callType := call.Type
		if callType == "" {
			callType = "function"
		}
		converted.ToolCalls = append(converted.ToolCalls, chatToolCall{
			ID:       call.ID,
			Type:     callType,
			Function: chatToolFunction{Name: call.Function.Name, Arguments: call.Function.Arguments},
		})
	}
	return converted
}

// chatCompletionToGeneric converts a chat completions response to the generic format
func chatCompletionToGeneric(resp chatCompletionResponse) *ai.ChatResponse {
	generic := &ai.ChatResponse{
		Id:      resp.ID,
		Model:   resp.Model,
		Object:  resp.Object,
		Created: resp.Created,
		Choices: make([]ai.Choice, 0, len(resp.Choices)),
	}

	for _, choice := range resp.Choices {
		message := ai.Message{
			Role:    ai.MessageRole(choice.Message.Role),
			Content: choice.Message.Content,
		}
		if message.Role == "" {
			message.Role = ai.RoleAssistant
		}
		if message.Content == "" && choice.Message.Refusal != "" {
			message.Content = choice.Message.Refusal
		}
		for _, call := range choice.Message.ToolCalls {
			message.ToolCalls = append(message.ToolCalls, ai.ToolCall{
				ID:       call.ID,
				Type:     call.Type,
				Function: ai.ToolCallFunction{Name: call.Function.Name, Arguments: call.Function.Arguments},
			})
		}
		generic.Choices = append(generic.Choices, ai.Choice{
			Index:        choice.Index,
			Message:      message,
			FinishReason: choice.FinishReason,
		})
	}

	if resp.Usage != nil {
		generic.Usage = &ai.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}
	return generic
}
