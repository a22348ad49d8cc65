package middleware

import (
	"context"
	"strings"
	"testing"

	"github.com/nextlevelbuilder/goaide/internal/config"
	"github.com/nextlevelbuilder/goaide/internal/memory"
	"github.com/nextlevelbuilder/goaide/internal/providers"
	"github.com/nextlevelbuilder/goaide/internal/store"
	"github.com/nextlevelbuilder/goaide/internal/workspace"
)

func testMemoryStore(t *testing.T) (*memory.Store, context.Context) {
	t.Helper()
	router := workspace.NewRouter(config.StorageConfig{Root: t.TempDir()})
	ctx := store.WithWorkspaceID(context.Background(), "ws:middleware-test")
	return memory.NewStore(router), ctx
}

func userRequest(content string) *Request {
	return &Request{Messages: []providers.Message{{Role: "user", Content: content}}}
}

func TestMemoryContextInjectsRankedMemories(t *testing.T) {
	st, ctx := testMemoryStore(t)
	seed := []memory.AddParams{
		{Content: "User's name is Alice and they live in Berlin", Type: memory.TypeSemantic, Confidence: 0.95},
		{Content: "User prefers metric units in every report", Type: memory.TypeProcedural, Confidence: 0.8},
		{Content: "Met with the platform team about Berlin onboarding", Type: memory.TypeEpisodic, Confidence: 0.9},
		{Content: "User might enjoy jazz", Type: memory.TypeSemantic, Confidence: 0.3},
	}
	for _, p := range seed {
		if _, err := st.Add(ctx, p); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	m := NewMemoryContext(st, 5)
	run := NewRun("thread")
	req := userRequest("what units does Alice use in Berlin?")
	if _, err := m.BeforeModel(ctx, run, req); err != nil {
		t.Fatalf("BeforeModel: %v", err)
	}

	if len(req.Inserts) != 1 {
		t.Fatalf("inserts = %d, want 1", len(req.Inserts))
	}
	block := req.Inserts[0]
	if !strings.HasPrefix(block, "## User Context (from memory)") {
		t.Errorf("block header missing:\n%s", block)
	}
	if !strings.Contains(block, "- **Fact**: User's name is Alice and they live in Berlin") {
		t.Errorf("high-confidence fact not bold:\n%s", block)
	}
	if !strings.Contains(block, "- Rule: User prefers metric units in every report") {
		t.Errorf("procedural rule missing:\n%s", block)
	}
	if strings.Contains(block, "platform team") {
		t.Errorf("episodic memory injected:\n%s", block)
	}
	if strings.Contains(block, "jazz") {
		t.Errorf("low-confidence memory injected:\n%s", block)
	}
	// The better-scoring memory renders first.
	if strings.Index(block, "Alice") > strings.Index(block, "metric units") {
		t.Errorf("ranking order wrong:\n%s", block)
	}
}

func TestMemoryContextDirectSubstringMatch(t *testing.T) {
	st, ctx := testMemoryStore(t)
	if _, err := st.Add(ctx, memory.AddParams{
		Content: "User prefers metric units in every report", Type: memory.TypeProcedural, Confidence: 0.8,
	}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	m := NewMemoryContext(st, 5)
	req := userRequest("metric units")
	if _, err := m.BeforeModel(ctx, NewRun("thread"), req); err != nil {
		t.Fatalf("BeforeModel: %v", err)
	}
	if len(req.Inserts) != 1 || !strings.Contains(req.Inserts[0], "metric units") {
		t.Fatalf("substring query found nothing: %v", req.Inserts)
	}
}

func TestMemoryContextTouchesInjected(t *testing.T) {
	st, ctx := testMemoryStore(t)
	added, err := st.Add(ctx, memory.AddParams{
		Content: "User works on the billing migration", Type: memory.TypeSemantic, Confidence: 0.9,
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	m := NewMemoryContext(st, 5)
	req := userRequest("how is the billing migration going?")
	if _, err := m.BeforeModel(ctx, NewRun("thread"), req); err != nil {
		t.Fatalf("BeforeModel: %v", err)
	}
	if len(req.Inserts) != 1 {
		t.Fatalf("memory not injected")
	}

	all, err := st.All(ctx, 0, nil)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	for _, mem := range all {
		if mem.ID == added.ID && mem.AccessCount < 1 {
			t.Errorf("injected memory not touched: access count %d", mem.AccessCount)
		}
	}
}

func TestMemoryContextNothingToInject(t *testing.T) {
	st, ctx := testMemoryStore(t)
	m := NewMemoryContext(st, 5)

	// Empty store.
	req := userRequest("anything at all today?")
	if _, err := m.BeforeModel(ctx, NewRun("thread"), req); err != nil {
		t.Fatalf("BeforeModel: %v", err)
	}
	if len(req.Inserts) != 0 {
		t.Errorf("empty store produced inserts: %v", req.Inserts)
	}

	// No user message.
	req = &Request{Messages: []providers.Message{{Role: "assistant", Content: "hello"}}}
	if _, err := m.BeforeModel(ctx, NewRun("thread"), req); err != nil {
		t.Fatalf("BeforeModel: %v", err)
	}
	if len(req.Inserts) != 0 {
		t.Errorf("assistant-only window produced inserts: %v", req.Inserts)
	}
}

func TestQueryWords(t *testing.T) {
	got := queryWords("What should I use for the Berlin report, please?")
	want := []string{"use", "berlin", "report"}
	if len(got) != len(want) {
		t.Fatalf("queryWords = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("word %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestFormatMemoryContextLabels(t *testing.T) {
	block := formatMemoryContext([]memory.Memory{
		{Content: "certain", Type: memory.TypeSemantic, Confidence: 0.95},
		{Content: "likely", Type: memory.TypeEpisodic, Confidence: 0.7},
		{Content: "habit", Type: memory.TypeProcedural, Confidence: 0.8},
	})
	for _, want := range []string{
		"- **Fact**: certain",
		"- Event: likely",
		"- Rule: habit",
	} {
		if !strings.Contains(block, want) {
			t.Errorf("block missing %q:\n%s", want, block)
		}
	}
}
