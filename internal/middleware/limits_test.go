package middleware

import (
	"context"
	"testing"

	"github.com/nextlevelbuilder/goaide/internal/providers"
	"github.com/nextlevelbuilder/goaide/internal/tools"
)

func TestModelCallLimitStopsAtCap(t *testing.T) {
	chain := NewChain(NewModelCallLimit(2))
	run := NewRun("thread")
	calls := 0
	caller := func(ctx context.Context, req *Request) (*providers.ChatResponse, error) {
		calls++
		return &providers.ChatResponse{Content: "ok", FinishReason: "stop"}, nil
	}

	for i := 0; i < 2; i++ {
		resp, err := chain.CallModel(context.Background(), run, &Request{}, caller)
		if err != nil {
			t.Fatalf("call %d: %v", i+1, err)
		}
		if resp.Content != "ok" {
			t.Fatalf("call %d blocked early: %q", i+1, resp.Content)
		}
	}

	resp, err := chain.CallModel(context.Background(), run, &Request{}, caller)
	if err != nil {
		t.Fatalf("capped call: %v", err)
	}
	if resp.Content != modelLimitMessage {
		t.Errorf("capped content = %q, want the limit message", resp.Content)
	}
	if len(resp.ToolCalls) != 0 || resp.FinishReason != "stop" {
		t.Errorf("capped response must end the turn: %+v", resp)
	}
	if calls != 2 {
		t.Errorf("provider called %d times, want 2", calls)
	}
	msg, stopped := run.Stopped()
	if !stopped || msg != modelLimitMessage {
		t.Errorf("Stopped() = %q, %v", msg, stopped)
	}
}

func TestToolCallLimitFillsPending(t *testing.T) {
	chain := NewChain(NewToolCallLimit(2))
	run := NewRun("thread")
	invoke := func(ctx context.Context, call providers.ToolCall) *tools.Result {
		return tools.NewResult("done")
	}

	// Two calls fit the budget untouched.
	first, err := chain.BeginTools(context.Background(), run,
		[]providers.ToolCall{{ID: "1", Name: "a"}, {ID: "2", Name: "b"}}, invoke)
	if err != nil {
		t.Fatalf("BeginTools: %v", err)
	}
	if got := len(first.Pending()); got != 2 {
		t.Fatalf("pending = %d, want 2", got)
	}
	for _, i := range first.Pending() {
		first.Invoke(context.Background(), i)
	}

	// The budget is spent; the next batch is refused wholesale.
	second, err := chain.BeginTools(context.Background(), run,
		[]providers.ToolCall{{ID: "3", Name: "c"}}, invoke)
	if err != nil {
		t.Fatalf("BeginTools: %v", err)
	}
	if len(second.Pending()) != 0 {
		t.Fatalf("capped batch still pending: %v", second.Pending())
	}
	result := second.Results[0]
	if result == nil || !result.IsError || !result.Silent {
		t.Fatalf("capped result = %+v, want a silent error", result)
	}
	if result.ForLLM == "" {
		t.Error("capped result carries no guidance for the model")
	}
	if run.ToolCalls() != 2 {
		t.Errorf("tool calls = %d, want 2 (refused calls must not count)", run.ToolCalls())
	}
	if msg, stopped := run.Stopped(); !stopped || msg != toolLimitMessage {
		t.Errorf("Stopped() = %q, %v", msg, stopped)
	}
}

func TestLimitDefaults(t *testing.T) {
	if m := NewModelCallLimit(0); m.limit != 25 {
		t.Errorf("model limit default = %d, want 25", m.limit)
	}
	if m := NewToolCallLimit(-1); m.limit != 50 {
		t.Errorf("tool limit default = %d, want 50", m.limit)
	}
}
