package ai

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func TestChatResponse_FirstMessage(t *testing.T) {
	tests := []struct {
		name        string
		response    *ChatResponse
		wantOK      bool
		wantContent string
	}{
		{name: "nil response", response: nil, wantOK: false},
		{name: "no choices", response: &ChatResponse{}, wantOK: false},
		{
			name: "first choice wins",
			response: &ChatResponse{Choices: []Choice{
				{Index: 0, Message: AssistantMessage("first")},
				{Index: 1, Message: AssistantMessage("second")},
			}},
			wantOK:      true,
			wantContent: "first",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			message, ok := tt.response.FirstMessage()
			if ok != tt.wantOK {
				t.Fatalf("FirstMessage() ok = %v, want %v", ok, tt.wantOK)
			}
			if message.Content != tt.wantContent {
				t.Errorf("FirstMessage() content = %q, want %q", message.Content, tt.wantContent)
			}
			if got := tt.response.Content(); got != tt.wantContent {
				t.Errorf("Content() = %q, want %q", got, tt.wantContent)
			}
		})
	}
}

func TestMessage_HasPendingToolCall(t *testing.T) {
	plain := AssistantMessage("hello")
	if plain.HasPendingToolCall() {
		t.Error("plain message should not report a pending tool call")
	}

	withCall := Message{
		Role: RoleAssistant,
		ToolCalls: []ToolCall{{
			ID:       "call_1",
			Type:     "function",
			Function: ToolCallFunction{Name: "redirect", Arguments: `{}`},
		}},
	}
	if !withCall.HasPendingToolCall() {
		t.Error("message with tool calls should report a pending tool call")
	}
}

func TestToolResult_ToJSON(t *testing.T) {
	encoded, err := NewToolResultError("invalid_arguments", "missing reason").ToJSON()
	if err != nil {
		t.Fatalf("ToJSON() error = %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal([]byte(encoded), &decoded); err != nil {
		t.Fatalf("ToJSON() produced invalid JSON: %v", err)
	}
	if decoded["success"] != false {
		t.Errorf("success = %v, want false", decoded["success"])
	}
	if decoded["error"] != "invalid_arguments" {
		t.Errorf("error = %v, want invalid_arguments", decoded["error"])
	}

	encoded, err = NewToolResultSuccess(map[string]int{"count": 2}).ToJSON()
	if err != nil {
		t.Fatalf("ToJSON() error = %v", err)
	}
	if encoded != `{"success":true,"data":{"count":2}}` {
		t.Errorf("ToJSON() = %s", encoded)
	}
}

func TestProviderFunc(t *testing.T) {
	called := false
	var provider Provider = ProviderFunc(func(ctx context.Context, request ChatRequest) (*ChatResponse, error) {
		called = true
		if request.Model != "gpt-4o-mini" {
			t.Errorf("model = %q, want gpt-4o-mini", request.Model)
		}
		return nil, ErrEmptyCompletion
	})

	provider = provider.WithAPIKey("key").WithBaseURL("http://localhost").WithHttpClient(nil)
	_, err := provider.SendMessage(context.Background(), ChatRequest{Model: "gpt-4o-mini"})
	if !called {
		t.Fatal("underlying function was not called")
	}
	if !errors.Is(err, ErrEmptyCompletion) {
		t.Errorf("err = %v, want ErrEmptyCompletion", err)
	}
}
