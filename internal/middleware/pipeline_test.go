package middleware

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/nextlevelbuilder/goaide/internal/providers"
	"github.com/nextlevelbuilder/goaide/internal/tools"
)

// hookRecorder implements every hook and appends to a shared log so the
// tests can assert ordering.
type hookRecorder struct {
	name         string
	log          *[]string
	shortCircuit *providers.ChatResponse
}

func (h *hookRecorder) Name() string { return h.name }

func (h *hookRecorder) BeforeModel(ctx context.Context, run *Run, req *Request) (*providers.ChatResponse, error) {
	*h.log = append(*h.log, h.name+".before_model")
	return h.shortCircuit, nil
}

func (h *hookRecorder) WrapModelCall(ctx context.Context, run *Run, req *Request, next ModelCaller) (*providers.ChatResponse, error) {
	*h.log = append(*h.log, h.name+".wrap_enter")
	resp, err := next(ctx, req)
	*h.log = append(*h.log, h.name+".wrap_exit")
	return resp, err
}

func (h *hookRecorder) AfterModel(ctx context.Context, run *Run, req *Request, resp *providers.ChatResponse) error {
	*h.log = append(*h.log, h.name+".after_model")
	return nil
}

func (h *hookRecorder) BeforeTools(ctx context.Context, run *Run, batch *ToolBatch) error {
	*h.log = append(*h.log, h.name+".before_tools")
	return nil
}

func (h *hookRecorder) AfterTools(ctx context.Context, run *Run, batch *ToolBatch) error {
	*h.log = append(*h.log, h.name+".after_tools")
	return nil
}

func (h *hookRecorder) AfterAgent(ctx context.Context, run *Run, msgs []providers.Message) error {
	*h.log = append(*h.log, h.name+".after_agent")
	return nil
}

func TestChainHookOrder(t *testing.T) {
	var log []string
	a := &hookRecorder{name: "a", log: &log}
	b := &hookRecorder{name: "b", log: &log}
	chain := NewChain(a, b)
	run := NewRun("thread")

	resp, err := chain.CallModel(context.Background(), run, &Request{}, func(ctx context.Context, req *Request) (*providers.ChatResponse, error) {
		log = append(log, "model_call")
		return &providers.ChatResponse{Content: "hi"}, nil
	})
	if err != nil {
		t.Fatalf("CallModel: %v", err)
	}
	if resp.Content != "hi" {
		t.Errorf("content = %q, want \"hi\"", resp.Content)
	}

	want := []string{
		"a.before_model", "b.before_model",
		"a.wrap_enter", "b.wrap_enter",
		"model_call",
		"b.wrap_exit", "a.wrap_exit",
		"a.after_model", "b.after_model",
	}
	if !reflect.DeepEqual(log, want) {
		t.Errorf("hook order = %v, want %v", log, want)
	}
	if run.ModelCalls() != 1 {
		t.Errorf("model calls = %d, want 1", run.ModelCalls())
	}
}

func TestBeforeModelShortCircuit(t *testing.T) {
	var log []string
	a := &hookRecorder{name: "a", log: &log, shortCircuit: &providers.ChatResponse{Content: "cached"}}
	b := &hookRecorder{name: "b", log: &log}
	chain := NewChain(a, b)
	run := NewRun("thread")

	called := false
	resp, err := chain.CallModel(context.Background(), run, &Request{}, func(ctx context.Context, req *Request) (*providers.ChatResponse, error) {
		called = true
		return &providers.ChatResponse{Content: "real"}, nil
	})
	if err != nil {
		t.Fatalf("CallModel: %v", err)
	}
	if resp.Content != "cached" {
		t.Errorf("content = %q, want the short-circuit response", resp.Content)
	}
	if called {
		t.Error("model caller ran despite short circuit")
	}
	want := []string{"a.before_model"}
	if !reflect.DeepEqual(log, want) {
		t.Errorf("hooks after short circuit = %v, want %v", log, want)
	}
	if run.ModelCalls() != 0 {
		t.Errorf("short-circuited call counted: %d", run.ModelCalls())
	}
}

func TestCallModelPropagatesErrors(t *testing.T) {
	var log []string
	chain := NewChain(&hookRecorder{name: "a", log: &log})
	run := NewRun("thread")

	boom := errors.New("provider down")
	_, err := chain.CallModel(context.Background(), run, &Request{}, func(ctx context.Context, req *Request) (*providers.ChatResponse, error) {
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("error = %v, want the caller's", err)
	}
	if run.ModelCalls() != 0 {
		t.Errorf("failed call counted: %d", run.ModelCalls())
	}
	for _, entry := range log {
		if entry == "a.after_model" {
			t.Error("AfterModel ran after a failed call")
		}
	}
}

func TestToolBatchSuppressAndInvoke(t *testing.T) {
	var log []string
	suppressor := &hookRecorder{name: "s", log: &log}
	chain := NewChain(suppressor)
	run := NewRun("thread")

	calls := []providers.ToolCall{
		{ID: "1", Name: "read_file"},
		{ID: "2", Name: "write_file"},
	}
	executed := 0
	batch, err := chain.BeginTools(context.Background(), run, calls, func(ctx context.Context, call providers.ToolCall) *tools.Result {
		executed++
		return tools.NewResult("ran " + call.Name)
	})
	if err != nil {
		t.Fatalf("BeginTools: %v", err)
	}
	// Simulate a hook having filled the first slot.
	batch.Results[0] = &tools.Result{ForLLM: "suppressed", IsError: true}

	pending := batch.Pending()
	if !reflect.DeepEqual(pending, []int{1}) {
		t.Fatalf("pending = %v, want [1]", pending)
	}
	result := batch.Invoke(context.Background(), 1)
	if result.ForLLM != "ran write_file" {
		t.Errorf("invoked result = %q", result.ForLLM)
	}
	if executed != 1 {
		t.Errorf("executor ran %d times, want 1", executed)
	}
	if run.ToolCalls() != 1 {
		t.Errorf("tool calls = %d, want 1 (suppressed call must not count)", run.ToolCalls())
	}
	if len(batch.Pending()) != 0 {
		t.Errorf("pending after invoke = %v", batch.Pending())
	}

	if err := chain.FinishTools(context.Background(), run, batch); err != nil {
		t.Fatalf("FinishTools: %v", err)
	}
	if err := chain.FinishRun(context.Background(), run, nil); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}
	want := []string{"s.before_tools", "s.after_tools", "s.after_agent"}
	if !reflect.DeepEqual(log, want) {
		t.Errorf("tool hooks = %v, want %v", log, want)
	}
}

func TestNewChainSkipsNil(t *testing.T) {
	var log []string
	a := &hookRecorder{name: "a", log: &log}
	chain := NewChain(nil, a, nil)
	if got := chain.Names(); !reflect.DeepEqual(got, []string{"a"}) {
		t.Errorf("names = %v, want [a]", got)
	}
}

func TestComposeSystem(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		want string
	}{
		{
			name: "all parts",
			req:  Request{System: " base ", Inserts: []string{"## Memory", ""}, Appendix: "channel rules"},
			want: "base\n\n## Memory\n\nchannel rules",
		},
		{
			name: "base only",
			req:  Request{System: "base"},
			want: "base",
		},
		{
			name: "empty",
			req:  Request{Inserts: []string{"  ", ""}},
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.req.ComposeSystem(); got != tt.want {
				t.Errorf("ComposeSystem() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLastUserMessage(t *testing.T) {
	req := &Request{Messages: []providers.Message{
		{Role: "user", Content: "first"},
		{Role: "assistant", Content: "reply"},
		{Role: "user", Content: "second"},
		{Role: "tool", Content: "result"},
	}}
	if got := req.LastUserMessage(); got != "second" {
		t.Errorf("LastUserMessage() = %q, want \"second\"", got)
	}
	if got := (&Request{}).LastUserMessage(); got != "" {
		t.Errorf("empty request returned %q", got)
	}
}

func TestRunStopFirstWins(t *testing.T) {
	run := NewRun("thread")
	if _, ok := run.Stopped(); ok {
		t.Fatal("fresh run reports stopped")
	}
	run.Stop("first")
	run.Stop("second")
	msg, ok := run.Stopped()
	if !ok || msg != "first" {
		t.Errorf("Stopped() = %q, %v; want \"first\", true", msg, ok)
	}
}

func TestRunOnce(t *testing.T) {
	run := NewRun("thread")
	if !run.Once("observe") {
		t.Error("first Once returned false")
	}
	if run.Once("observe") {
		t.Error("second Once returned true")
	}
	if !run.Once("other") {
		t.Error("distinct key returned false")
	}
}
