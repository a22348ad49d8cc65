package middleware

import (
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/nextlevelbuilder/goaide/internal/providers"
	"github.com/nextlevelbuilder/goaide/internal/store"
	"github.com/nextlevelbuilder/goaide/internal/tools"
)

func TestLoopBreakerRefusesRepeatedCall(t *testing.T) {
	m := NewToolLoopBreaker(3, 0.7, time.Minute)
	chain := NewChain(m)
	run := NewRun("telegram:42")
	ctx := store.WithThreadID(context.Background(), run.ThreadKey)
	call := providers.ToolCall{ID: "1", Name: "search_web", Arguments: map[string]interface{}{"query": "golang generics"}}

	// Stands in for the dispatcher, which records every call it executes.
	invoke := func(ctx context.Context, call providers.ToolCall) *tools.Result {
		m.Record(ctx, call.Name, call.Arguments)
		return tools.NewResult("ok")
	}

	for i := 0; i < 3; i++ {
		batch, err := chain.BeginTools(ctx, run, []providers.ToolCall{call}, invoke)
		if err != nil {
			t.Fatalf("BeginTools %d: %v", i+1, err)
		}
		if batch.Results[0] != nil {
			t.Fatalf("call %d refused early: %+v", i+1, batch.Results[0])
		}
		batch.Invoke(ctx, 0)
	}

	batch, err := chain.BeginTools(ctx, run, []providers.ToolCall{call}, invoke)
	if err != nil {
		t.Fatalf("BeginTools: %v", err)
	}
	refused := batch.Results[0]
	if refused == nil {
		t.Fatal("fourth identical call executed")
	}
	if !refused.IsError || !refused.Silent {
		t.Errorf("refusal = %+v, want a silent error", refused)
	}
	if !strings.Contains(refused.ForLLM, "LOOP DETECTED") {
		t.Errorf("guidance = %q", refused.ForLLM)
	}
	if !strings.Contains(refused.ForLLM, "search") || !strings.Contains(refused.ForLLM, "different search terms") {
		t.Errorf("guidance not specialized for search tools: %q", refused.ForLLM)
	}
}

func TestLoopBreakerBlocksUntilArgsChange(t *testing.T) {
	m := NewToolLoopBreaker(2, 0.7, time.Minute)
	now := time.Now()
	threadKey := "discord:7"
	same := providers.ToolCall{Name: "write_file", Arguments: map[string]interface{}{"path": "a.txt", "content": "x"}}

	for i := 0; i < 2; i++ {
		if g := m.check(threadKey, same, now); g != "" {
			t.Fatalf("call %d blocked early: %q", i+1, g)
		}
		m.record(threadKey, same.Name, same.Arguments, now)
	}
	if g := m.check(threadKey, same, now); g == "" {
		t.Fatal("third identical call allowed")
	}
	// Still blocked while the arguments stay the same.
	if g := m.check(threadKey, same, now.Add(time.Second)); g == "" {
		t.Fatal("blocked call allowed without an argument change")
	}

	changed := providers.ToolCall{Name: "write_file", Arguments: map[string]interface{}{"path": "b.txt", "content": "different body"}}
	if g := m.check(threadKey, changed, now.Add(2*time.Second)); g != "" {
		t.Fatalf("changed arguments still blocked: %q", g)
	}
}

func TestLoopBreakerThreadsIndependent(t *testing.T) {
	m := NewToolLoopBreaker(2, 0.7, time.Minute)
	now := time.Now()
	call := providers.ToolCall{Name: "search_web", Arguments: map[string]interface{}{"query": "same"}}

	m.record("thread-a", call.Name, call.Arguments, now)
	m.record("thread-a", call.Name, call.Arguments, now)
	if g := m.check("thread-a", call, now); g == "" {
		t.Fatal("thread-a not blocked")
	}
	if g := m.check("thread-b", call, now); g != "" {
		t.Fatalf("thread-b blocked by thread-a's history: %q", g)
	}
}

func TestLoopBreakerWindowExpiry(t *testing.T) {
	m := NewToolLoopBreaker(2, 0.7, 50*time.Millisecond)
	call := providers.ToolCall{Name: "search_web", Arguments: map[string]interface{}{"query": "same"}}
	start := time.Now()

	m.record("t", call.Name, call.Arguments, start)
	m.record("t", call.Name, call.Arguments, start)
	// Past the window the old calls no longer count.
	if g := m.check("t", call, start.Add(60*time.Millisecond)); g != "" {
		t.Fatalf("expired history still trips the breaker: %q", g)
	}
}

func TestArgsSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b map[string]interface{}
		want float64
	}{
		{"both empty", nil, map[string]interface{}{}, 1.0},
		{"one empty", map[string]interface{}{"q": "x"}, nil, 0.0},
		{
			"identical",
			map[string]interface{}{"q": "golang", "n": 5},
			map[string]interface{}{"q": "golang", "n": 5},
			1.0,
		},
		{
			"same keys different values",
			map[string]interface{}{"q": "golang"},
			map[string]interface{}{"q": "rust"},
			0.3,
		},
		{
			"disjoint keys",
			map[string]interface{}{"a": 1},
			map[string]interface{}{"b": 1},
			0.0,
		},
		{
			"subset",
			map[string]interface{}{"q": "x", "n": 5},
			map[string]interface{}{"q": "x"},
			0.3*0.5 + 0.7*1.0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := argsSimilarity(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("argsSimilarity = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLoopGuidanceVariants(t *testing.T) {
	tests := []struct {
		tool string
		want string
	}{
		{"write_file", "content is a string"},
		{"insert_tdb_table", "JSON string"},
		{"kb_search", "different search terms"},
		{"send_reminder", "called repeatedly with similar parameters"},
	}
	for _, tt := range tests {
		t.Run(tt.tool, func(t *testing.T) {
			g := loopGuidance(tt.tool)
			if !strings.Contains(g, "LOOP DETECTED") {
				t.Errorf("guidance for %s missing the marker: %q", tt.tool, g)
			}
			if !strings.Contains(g, tt.want) {
				t.Errorf("guidance for %s = %q, want mention of %q", tt.tool, g, tt.want)
			}
			if !strings.Contains(g, "blocked until the arguments change") {
				t.Errorf("guidance for %s missing the block notice", tt.tool)
			}
		})
	}
}
