package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func openAITestProvider(url string) *OpenAIProvider {
	p := NewOpenAIProvider("openai", "test-key", url, "gpt-4o")
	p.retryConfig = fastRetryConfig()
	return p
}

func TestOpenAIBuildRequestBody(t *testing.T) {
	p := NewOpenAIProvider("openai", "k", "", "gpt-4o")
	req := ChatRequest{
		Messages: []Message{
			{Role: "system", Content: "be brief"},
			{Role: "assistant", ToolCalls: []ToolCall{
				{ID: "call_1", Name: "list_files", Arguments: map[string]interface{}{"path": "."}},
			}},
			{Role: "tool", ToolCallID: "call_1", Content: "a.txt"},
			{Role: "user", Content: "thanks", Images: []ImageContent{{MimeType: "image/png", Data: "Zm9v"}}},
		},
		Tools: []ToolDefinition{{
			Type:     "function",
			Function: ToolFunctionSchema{Name: "list_files", Description: "List files", Parameters: map[string]interface{}{"type": "object"}},
		}},
		Options: map[string]interface{}{OptTemperature: 0.2},
	}

	body := p.buildRequestBody("gpt-4o", req, true)

	msgs := body["messages"].([]map[string]interface{})
	if len(msgs) != 4 {
		t.Fatalf("got %d messages, want 4", len(msgs))
	}

	assistant := msgs[1]
	if _, hasContent := assistant["content"]; hasContent {
		t.Error("assistant message with only tool_calls should omit content")
	}
	toolCalls := assistant["tool_calls"].([]map[string]interface{})
	fn := toolCalls[0]["function"].(map[string]interface{})
	if fn["arguments"] != `{"path":"."}` {
		t.Errorf("arguments = %v, want JSON string", fn["arguments"])
	}

	toolMsg := msgs[2]
	if toolMsg["tool_call_id"] != "call_1" {
		t.Errorf("tool_call_id = %v", toolMsg["tool_call_id"])
	}

	userParts := msgs[3]["content"].([]map[string]interface{})
	imageURL := userParts[0]["image_url"].(map[string]interface{})
	if imageURL["url"] != "data:image/png;base64,Zm9v" {
		t.Errorf("image url = %v", imageURL["url"])
	}
	if userParts[1]["text"] != "thanks" {
		t.Errorf("text part = %v", userParts[1])
	}

	if body["tool_choice"] != "auto" {
		t.Errorf("tool_choice = %v", body["tool_choice"])
	}
	if _, ok := body["stream_options"]; !ok {
		t.Error("streaming request should ask for usage in stream_options")
	}
	if body["temperature"] != 0.2 {
		t.Errorf("temperature = %v", body["temperature"])
	}
}

func TestOpenAIChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("authorization = %q", r.Header.Get("Authorization"))
		}
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}

		fmt.Fprint(w, `{
			"choices": [{
				"message": {
					"content": "",
					"tool_calls": [{"id": "call_7", "function": {"name": "web_search", "arguments": "{\"query\":\"news\"}"}}]
				},
				"finish_reason": "tool_calls"
			}],
			"usage": {"prompt_tokens": 9, "completion_tokens": 4, "total_tokens": 13, "prompt_tokens_details": {"cached_tokens": 2}}
		}`)
	}))
	defer srv.Close()

	p := openAITestProvider(srv.URL)
	resp, err := p.Chat(context.Background(), ChatRequest{Messages: []Message{{Role: "user", Content: "news?"}}})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].ID != "call_7" {
		t.Fatalf("tool calls = %+v", resp.ToolCalls)
	}
	if resp.ToolCalls[0].Arguments["query"] != "news" {
		t.Errorf("args = %v", resp.ToolCalls[0].Arguments)
	}
	if resp.FinishReason != "tool_calls" {
		t.Errorf("finish reason = %q", resp.FinishReason)
	}
	if resp.Usage == nil || resp.Usage.CacheReadTokens != 2 {
		t.Errorf("usage = %+v", resp.Usage)
	}
}

func TestOpenAIChat_RateLimitRetriesThenSucceeds(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprint(w, `{"error":{"message":"rate limited"}}`)
			return
		}
		fmt.Fprint(w, `{"choices":[{"message":{"content":"ok"},"finish_reason":"stop"}]}`)
	}))
	defer srv.Close()

	p := openAITestProvider(srv.URL)
	resp, err := p.Chat(context.Background(), ChatRequest{Messages: []Message{{Role: "user", Content: "hi"}}})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Content != "ok" || calls != 2 {
		t.Fatalf("content=%q after %d calls, want recovery on second attempt", resp.Content, calls)
	}
}

func TestOpenAIChatStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, `data: {"choices":[{"delta":{"content":"Hi"}}]}`+"\n\n")
		io.WriteString(w, `data: {"choices":[{"delta":{"content":" there"}}]}`+"\n\n")
		io.WriteString(w, `data: {"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_1","function":{"name":"read_file","arguments":"{\"path\":"}}]}}]}`+"\n\n")
		io.WriteString(w, `data: {"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"b.txt\"}"}}]}}]}`+"\n\n")
		io.WriteString(w, `data: {"choices":[{"delta":{},"finish_reason":"tool_calls"}]}`+"\n\n")
		io.WriteString(w, `data: {"choices":[],"usage":{"prompt_tokens":6,"completion_tokens":8,"total_tokens":14}}`+"\n\n")
		io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	p := openAITestProvider(srv.URL)

	var chunks []StreamChunk
	resp, err := p.ChatStream(context.Background(), ChatRequest{
		Messages: []Message{{Role: "user", Content: "read b.txt"}},
	}, func(c StreamChunk) { chunks = append(chunks, c) })
	if err != nil {
		t.Fatalf("ChatStream: %v", err)
	}

	if resp.Content != "Hi there" {
		t.Errorf("content = %q", resp.Content)
	}
	if len(resp.ToolCalls) != 1 {
		t.Fatalf("tool calls = %+v", resp.ToolCalls)
	}
	if resp.ToolCalls[0].Name != "read_file" || resp.ToolCalls[0].Arguments["path"] != "b.txt" {
		t.Errorf("tool call = %+v", resp.ToolCalls[0])
	}
	if resp.Usage == nil || resp.Usage.TotalTokens != 14 {
		t.Errorf("usage = %+v", resp.Usage)
	}
	if len(chunks) == 0 || !chunks[len(chunks)-1].Done {
		t.Error("expected a final Done chunk")
	}
}

func TestOpenAIDoRequest_ClassifiesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "3")
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, `{"error":{"message":"upstream busy"}}`)
	}))
	defer srv.Close()

	p := openAITestProvider(srv.URL)
	_, err := p.doRequest(context.Background(), map[string]interface{}{"model": "gpt-4o"})
	if err == nil {
		t.Fatal("expected error")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T", err)
	}
	if apiErr.Kind != KindServer || !apiErr.Retryable() {
		t.Errorf("kind=%q retryable=%v, want retryable server error", apiErr.Kind, apiErr.Retryable())
	}
	if apiErr.RetryAfter != 3*time.Second {
		t.Errorf("retryAfter = %v, want 3s", apiErr.RetryAfter)
	}
	if apiErr.Message != "upstream busy" {
		t.Errorf("message = %q", apiErr.Message)
	}
}

func TestOpenAIChat_ConnectionErrorWrapped(t *testing.T) {
	// Point at a closed server so client.Do fails at dial time.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	p := openAITestProvider(url)
	p.retryConfig = RetryConfig{MaxAttempts: 1, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}

	_, err := p.Chat(context.Background(), ChatRequest{Messages: []Message{{Role: "user", Content: "hi"}}})
	if err == nil {
		t.Fatal("expected connection error")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Kind != KindConnection {
		t.Fatalf("expected connection-kind APIError, got: %v", err)
	}
}

func TestJSONDecodeErrorNotRetried(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		fmt.Fprint(w, "not json")
	}))
	defer srv.Close()

	p := openAITestProvider(srv.URL)
	_, err := p.Chat(context.Background(), ChatRequest{Messages: []Message{{Role: "user", Content: "hi"}}})
	if err == nil {
		t.Fatal("expected decode error")
	}
	if calls != 1 {
		t.Fatalf("decode failure hit the server %d times, want 1", calls)
	}
}

func TestOpenAIWithChatPath(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		fmt.Fprint(w, `{"choices":[{"message":{"content":"ok"},"finish_reason":"stop"}]}`)
	}))
	defer srv.Close()

	p := NewOpenAIProvider("custom", "k", srv.URL, "m").WithChatPath("/text/chatcompletion_v2")
	p.retryConfig = fastRetryConfig()
	if _, err := p.Chat(context.Background(), ChatRequest{Messages: []Message{{Role: "user", Content: "hi"}}}); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if gotPath != "/text/chatcompletion_v2" {
		t.Errorf("path = %q, want custom chat path", gotPath)
	}
}
