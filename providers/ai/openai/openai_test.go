package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/leofalp/chatflow/internal/jsonschema"
	"github.com/leofalp/chatflow/internal/utils"
	"github.com/leofalp/chatflow/providers/ai"
)

func TestNew_Env(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "env-key")
	t.Setenv("OPENAI_API_BASE_URL", "")

	p := New()
	if p.apiKey != "env-key" {
		t.Errorf("apiKey = %q, want env-key", p.apiKey)
	}
	if p.baseURL != defaultBaseURL {
		t.Errorf("baseURL = %q, want %q", p.baseURL, defaultBaseURL)
	}
}

func TestSendMessage_MissingAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, err := New().SendMessage(context.Background(), ai.ChatRequest{Model: "gpt-4o-mini"})
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("err = %v, want ErrMissingAPIKey", err)
	}
}

func TestSendMessage_RoundTrip(t *testing.T) {
	var captured chatCompletionRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != chatCompletionsEndpoint {
			t.Errorf("path = %s, want %s", r.URL.Path, chatCompletionsEndpoint)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("unexpected Authorization header %q", r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1700000000,
			"model": "gpt-4o-mini",
			"choices": [{
				"index": 0,
				"message": {
					"role": "assistant",
					"tool_calls": [{"id": "call_1", "type": "function", "function": {"name": "redirect", "arguments": "{\"reason\":\"ventas\"}"}}]
				},
				"finish_reason": "tool_calls"
			}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
		}`)
	}))
	defer server.Close()

	parallel := false
	provider := New().WithAPIKey("test-key").WithBaseURL(server.URL + "/").WithHttpClient(server.Client())
	resp, err := provider.SendMessage(context.Background(), ai.ChatRequest{
		Model: "gpt-4o-mini",
		Messages: []ai.Message{
			ai.SystemMessage("You are a helpful assistant."),
			ai.UserMessage("quiero hablar con ventas"),
		},
		Tools: []ai.ToolDescription{{
			Name:       "redirect",
			Parameters: jsonschema.Object(map[string]*jsonschema.Schema{"reason": {Type: "string"}}, "reason"),
		}},
		ToolChoice:        "auto",
		ParallelToolCalls: &parallel,
		GenerationConfig:  &ai.GenerationConfig{Temperature: 0.2},
	})
	if err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}

	if len(captured.Messages) != 2 || captured.Messages[0].Role != "system" {
		t.Errorf("unexpected forwarded messages: %+v", captured.Messages)
	}
	if len(captured.Tools) != 1 || captured.Tools[0].Function.Name != "redirect" {
		t.Errorf("unexpected forwarded tools: %+v", captured.Tools)
	}
	if captured.ToolChoice != "auto" || captured.ParallelToolCalls == nil || *captured.ParallelToolCalls {
		t.Errorf("tool choice settings not forwarded: %+v", captured)
	}
	if captured.Temperature == nil || *captured.Temperature != 0.2 {
		t.Errorf("temperature not forwarded: %v", captured.Temperature)
	}

	message, ok := resp.FirstMessage()
	if !ok || !message.HasPendingToolCall() {
		t.Fatalf("expected a tool call in the first choice, got %+v", resp)
	}
	if message.ToolCalls[0].Function.Name != "redirect" || message.ToolCalls[0].ID != "call_1" {
		t.Errorf("unexpected tool call %+v", message.ToolCalls[0])
	}
	if resp.Usage == nil || resp.Usage.TotalTokens != 15 {
		t.Errorf("usage not converted: %+v", resp.Usage)
	}
}

func TestSendMessage_EmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":"chatcmpl-2","choices":[]}`)
	}))
	defer server.Close()

	provider := New().WithAPIKey("k").WithBaseURL(server.URL)
	_, err := provider.SendMessage(context.Background(), ai.ChatRequest{Model: "gpt-4o-mini"})
	if !errors.Is(err, ai.ErrEmptyCompletion) {
		t.Fatalf("err = %v, want ErrEmptyCompletion", err)
	}
}

func TestSendMessage_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"rate limited"}}`, http.StatusTooManyRequests)
	}))
	defer server.Close()

	provider := New().WithAPIKey("k").WithBaseURL(server.URL)
	_, err := provider.SendMessage(context.Background(), ai.ChatRequest{Model: "gpt-4o-mini"})
	var statusErr *utils.StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("err = %v, want a wrapped 429 StatusError", err)
	}
	if errors.Is(err, ErrUnauthorized) {
		t.Error("a 429 is not an authorization failure")
	}
}

func TestSendMessage_Unauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"invalid key"}}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	_, err := New().WithAPIKey("bad").WithBaseURL(server.URL).SendMessage(context.Background(), ai.ChatRequest{})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
}

func TestRequestToChatCompletion(t *testing.T) {
	t.Run("drops tool settings without tools", func(t *testing.T) {
		parallel := false
		req := requestToChatCompletion(ai.ChatRequest{ToolChoice: "auto", ParallelToolCalls: &parallel})
		if req.ToolChoice != "" || req.ParallelToolCalls != nil {
			t.Errorf("tool settings should be cleared: %+v", req)
		}
	})

	t.Run("assistant tool call has null content", func(t *testing.T) {
		req := requestToChatCompletion(ai.ChatRequest{Messages: []ai.Message{{
			Role:      ai.RoleAssistant,
			ToolCalls: []ai.ToolCall{{ID: "c1", Function: ai.ToolCallFunction{Name: "redirect"}}},
		}}})
		encoded, _ := json.Marshal(req.Messages[0])
		var decoded map[string]any
		_ = json.Unmarshal(encoded, &decoded)
		if v, ok := decoded["content"]; !ok || v != nil {
			t.Errorf("content = %v, want explicit null", v)
		}
		if req.Messages[0].ToolCalls[0].Type != "function" {
			t.Errorf("tool call type should default to function")
		}
	})

	t.Run("schema response format", func(t *testing.T) {
		req := requestToChatCompletion(ai.ChatRequest{ResponseFormat: &ai.ResponseFormat{
			OutputSchema: jsonschema.StringEnum("next node", "a", "b"),
			Strict:       true,
		}})
		if req.ResponseFormat == nil || req.ResponseFormat.Type != "json_schema" {
			t.Fatalf("unexpected response format %+v", req.ResponseFormat)
		}
		if req.ResponseFormat.JSONSchema.Name != "response" || !req.ResponseFormat.JSONSchema.Strict {
			t.Errorf("unexpected schema spec %+v", req.ResponseFormat.JSONSchema)
		}
	})
}
