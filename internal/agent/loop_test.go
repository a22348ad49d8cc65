package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/goaide/internal/providers"
	"github.com/nextlevelbuilder/goaide/internal/store"
	"github.com/nextlevelbuilder/goaide/internal/store/mem"
	"github.com/nextlevelbuilder/goaide/internal/tools"
)

// scriptedChat replays a fixed sequence of model responses and records
// every request it saw.
type scriptedChat struct {
	mu    sync.Mutex
	queue []*providers.ChatResponse
	seen  []providers.ChatRequest
}

func (p *scriptedChat) Chat(_ context.Context, req providers.ChatRequest) (*providers.ChatResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seen = append(p.seen, req)
	if len(p.queue) == 0 {
		return nil, errors.New("script exhausted")
	}
	resp := p.queue[0]
	p.queue = p.queue[1:]
	return resp, nil
}

func (p *scriptedChat) ChatStream(ctx context.Context, req providers.ChatRequest, onChunk func(providers.StreamChunk)) (*providers.ChatResponse, error) {
	resp, err := p.Chat(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.Content != "" {
		onChunk(providers.StreamChunk{Content: resp.Content})
	}
	onChunk(providers.StreamChunk{Done: true})
	return resp, nil
}

func (p *scriptedChat) DefaultModel() string { return "scripted-1" }
func (p *scriptedChat) Name() string         { return "scripted" }

func (p *scriptedChat) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.seen)
}

func (p *scriptedChat) request(i int) providers.ChatRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.seen[i]
}

func toolCallResponse(id string, args map[string]interface{}) *providers.ChatResponse {
	return &providers.ChatResponse{
		ToolCalls:    []providers.ToolCall{{ID: id, Name: "lookup", Arguments: args}},
		FinishReason: "tool_calls",
	}
}

func textResponse(content string) *providers.ChatResponse {
	return &providers.ChatResponse{Content: content, FinishReason: "stop"}
}

// lookupTool records every invocation and answers with a fixed reply.
type lookupTool struct {
	mu    sync.Mutex
	args  []map[string]interface{}
	reply string
}

func (l *lookupTool) Name() string        { return "lookup" }
func (l *lookupTool) Description() string { return "look something up" }
func (l *lookupTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"q": map[string]interface{}{"type": "string"},
		},
	}
}

func (l *lookupTool) Execute(_ context.Context, args map[string]interface{}) *tools.Result {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.args = append(l.args, args)
	return tools.NewResult(l.reply)
}

func (l *lookupTool) invocations() []map[string]interface{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]map[string]interface{}(nil), l.args...)
}

func newTestLoop(provider providers.Provider, tool tools.Tool, cps store.CheckpointStore, maxIterations int) *Loop {
	reg := tools.NewRegistry()
	if tool != nil {
		reg.Register(tool)
	}
	return NewLoop(LoopConfig{
		Provider:        provider,
		Model:           "scripted-1",
		MaxIterations:   maxIterations,
		Dispatcher:      tools.NewDispatcher(reg),
		Checkpoints:     cps,
		InjectionAction: "off",
	})
}

func TestRunToolRoundTrip(t *testing.T) {
	provider := &scriptedChat{queue: []*providers.ChatResponse{
		toolCallResponse("c1", map[string]interface{}{"q": "tides"}),
		textResponse("High tide at noon."),
	}}
	tool := &lookupTool{reply: "tide table"}
	loop := newTestLoop(provider, tool, mem.NewMemCheckpointStore(), 0)

	result, err := loop.Run(context.Background(), RunRequest{
		ThreadID: "telegram:1", Content: "when is high tide?", MessageID: "m1",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Content != "High tide at noon." {
		t.Errorf("content = %q", result.Content)
	}
	if result.Iterations != 2 {
		t.Errorf("iterations = %d, want 2", result.Iterations)
	}

	inv := tool.invocations()
	if len(inv) != 1 || inv[0]["q"] != "tides" {
		t.Errorf("tool invocations = %v", inv)
	}

	// The second model call carries exactly one tool message, paired
	// with the call id from the first response.
	if provider.calls() != 2 {
		t.Fatalf("model called %d times, want 2", provider.calls())
	}
	var toolMsgs []providers.Message
	for _, m := range provider.request(1).Messages {
		if m.Role == "tool" {
			toolMsgs = append(toolMsgs, m)
		}
	}
	if len(toolMsgs) != 1 {
		t.Fatalf("got %d tool messages, want 1", len(toolMsgs))
	}
	if toolMsgs[0].ToolCallID != "c1" || toolMsgs[0].Content != "tide table" {
		t.Errorf("tool message = %+v", toolMsgs[0])
	}
}

func TestRunStopsAtIterationCap(t *testing.T) {
	provider := &scriptedChat{queue: []*providers.ChatResponse{
		toolCallResponse("c1", map[string]interface{}{"q": "one"}),
		toolCallResponse("c2", map[string]interface{}{"q": "two"}),
		toolCallResponse("c3", map[string]interface{}{"q": "three"}),
		toolCallResponse("c4", map[string]interface{}{"q": "four"}),
	}}
	tool := &lookupTool{reply: "more"}
	loop := newTestLoop(provider, tool, mem.NewMemCheckpointStore(), 3)

	result, err := loop.Run(context.Background(), RunRequest{
		ThreadID: "telegram:2", Content: "dig forever", MessageID: "m1",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(result.Content, "iteration limit") {
		t.Errorf("content = %q, want the forced closing message", result.Content)
	}
	if result.Iterations != 3 {
		t.Errorf("iterations = %d, want 3", result.Iterations)
	}
	if provider.calls() != 3 {
		t.Errorf("model called %d times, want exactly the cap", provider.calls())
	}
	if len(tool.invocations()) != 3 {
		t.Errorf("tool ran %d times, want 3", len(tool.invocations()))
	}
}

func TestRunParsesEmbeddedToolCallBlock(t *testing.T) {
	block := "<function_calls>\n" +
		"<invoke name=\"lookup\">\n" +
		"<parameter name=\"q\" string=\"true\">gophers</parameter>\n" +
		"</invoke>\n" +
		"</function_calls>"
	provider := &scriptedChat{queue: []*providers.ChatResponse{
		textResponse(block),
		textResponse("Found it."),
	}}
	tool := &lookupTool{reply: "a burrow"}
	loop := newTestLoop(provider, tool, mem.NewMemCheckpointStore(), 0)

	result, err := loop.Run(context.Background(), RunRequest{
		ThreadID: "telegram:3", Content: "find gophers", MessageID: "m1",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Content != "Found it." {
		t.Errorf("content = %q", result.Content)
	}
	inv := tool.invocations()
	if len(inv) != 1 || inv[0]["q"] != "gophers" {
		t.Errorf("tool invocations = %v", inv)
	}
}

func TestRunResumesInterruptedTurn(t *testing.T) {
	ctx := context.Background()

	// A previous turn died mid-machine: the assistant asked for a tool
	// call that never ran, checkpointed at the tools node.
	st := &State{Iterations: 1}
	st.append(StateMessage{ID: "u1", Message: providers.Message{Role: "user", Content: "look this up"}})
	st.append(StateMessage{ID: "a1", Message: providers.Message{
		Role:      "assistant",
		ToolCalls: []providers.ToolCall{{ID: "c9", Name: "lookup", Arguments: map[string]interface{}{"q": "orphaned"}}},
	}})
	raw, err := encodeSnapshot(nodeTools, st)
	if err != nil {
		t.Fatalf("encodeSnapshot: %v", err)
	}
	cps := mem.NewMemCheckpointStore()
	if err := cps.Put(ctx, &store.Checkpoint{
		ID: uuid.New(), ThreadID: "telegram:9", State: raw, CreatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	provider := &scriptedChat{queue: []*providers.ChatResponse{
		textResponse("Recovered."),
		textResponse("Fresh reply."),
	}}
	tool := &lookupTool{reply: "late result"}
	loop := newTestLoop(provider, tool, cps, 0)

	result, err := loop.Run(ctx, RunRequest{
		ThreadID: "telegram:9", Content: "and now?", MessageID: "m2",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Content != "Fresh reply." {
		t.Errorf("content = %q", result.Content)
	}

	// The orphaned call ran exactly once during recovery.
	if len(tool.invocations()) != 1 {
		t.Fatalf("tool ran %d times, want 1", len(tool.invocations()))
	}

	// The recovery model call saw the late tool result under its call id.
	if provider.calls() != 2 {
		t.Fatalf("model called %d times, want 2", provider.calls())
	}
	var recovered bool
	for _, m := range provider.request(0).Messages {
		if m.Role == "tool" && m.ToolCallID == "c9" && m.Content == "late result" {
			recovered = true
		}
	}
	if !recovered {
		t.Errorf("recovery request missing the tool result: %+v", provider.request(0).Messages)
	}
}

func TestRunSurfacesProviderFailure(t *testing.T) {
	provider := &scriptedChat{}
	loop := newTestLoop(provider, nil, mem.NewMemCheckpointStore(), 0)

	_, err := loop.Run(context.Background(), RunRequest{
		ThreadID: "telegram:4", Content: "hi", MessageID: "m1",
	})
	if err == nil || !strings.Contains(err.Error(), "model call failed") {
		t.Errorf("err = %v, want a model call failure", err)
	}
}
