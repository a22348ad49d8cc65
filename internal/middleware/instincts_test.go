package middleware

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/nextlevelbuilder/goaide/internal/config"
	"github.com/nextlevelbuilder/goaide/internal/instinct"
	"github.com/nextlevelbuilder/goaide/internal/store"
	"github.com/nextlevelbuilder/goaide/internal/workspace"
)

func testInstinctStore(t *testing.T) (*instinct.Store, context.Context) {
	t.Helper()
	router := workspace.NewRouter(config.StorageConfig{Root: t.TempDir()})
	ctx := store.WithWorkspaceID(context.Background(), "ws:middleware-test")
	return instinct.NewStore(router), ctx
}

func TestInstinctInjectorAddsPatterns(t *testing.T) {
	st, ctx := testInstinctStore(t)
	created, err := st.Create(ctx, instinct.CreateParams{
		Trigger:    "user asks for status updates",
		Action:     "lead with a one-line summary",
		Domain:     instinct.DomainCommunication,
		Confidence: 0.9,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	m := NewInstinctInjector(st)
	req := userRequest("can you give me a status update on the migration?")
	if _, err := m.BeforeModel(ctx, NewRun("telegram:42"), req); err != nil {
		t.Fatalf("BeforeModel: %v", err)
	}

	if len(req.Inserts) != 1 {
		t.Fatalf("inserts = %d, want 1", len(req.Inserts))
	}
	block := req.Inserts[0]
	if !strings.Contains(block, "## Behavioral Patterns") {
		t.Errorf("header missing:\n%s", block)
	}
	if !strings.Contains(block, "lead with a one-line summary") {
		t.Errorf("instinct action missing:\n%s", block)
	}
	if got := m.lastApplied("telegram:42"); len(got) != 1 || got[0] != created.ID {
		t.Errorf("applied IDs = %v, want [%s]", got, created.ID)
	}
}

func TestInstinctInjectorTracksOutcome(t *testing.T) {
	st, ctx := testInstinctStore(t)
	created, err := st.Create(ctx, instinct.CreateParams{
		Trigger:    "user asks for status updates",
		Action:     "lead with a one-line summary",
		Domain:     instinct.DomainCommunication,
		Confidence: 0.9,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	m := NewInstinctInjector(st)
	threadKey := "telegram:42"

	// Turn one applies the instinct.
	req := userRequest("can you give me a status update on the migration?")
	if _, err := m.BeforeModel(ctx, NewRun(threadKey), req); err != nil {
		t.Fatalf("turn one: %v", err)
	}
	if len(m.lastApplied(threadKey)) == 0 {
		t.Fatal("turn one applied nothing")
	}

	// Turn two signals frustration, which dampens the applied instinct.
	req = userRequest("nevermind, forget it")
	if _, err := m.BeforeModel(ctx, NewRun(threadKey), req); err != nil {
		t.Fatalf("turn two: %v", err)
	}

	after, err := st.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if math.Abs(after.SuccessRate-0.8) > 1e-9 {
		t.Errorf("success rate = %v, want 0.8 after one failure", after.SuccessRate)
	}
}

func TestInstinctInjectorObservesCorrections(t *testing.T) {
	st, ctx := testInstinctStore(t)
	m := NewInstinctInjector(st)

	req := userRequest("no, i meant the staging cluster")
	if _, err := m.BeforeModel(ctx, NewRun("thread"), req); err != nil {
		t.Fatalf("BeforeModel: %v", err)
	}
	if n, _ := st.Count(ctx); n != 1 {
		t.Fatalf("instincts after correction = %d, want 1", n)
	}
}

func TestInstinctInjectorObservesOncePerRun(t *testing.T) {
	st, ctx := testInstinctStore(t)
	m := NewInstinctInjector(st)
	run := NewRun("thread")

	req := userRequest("no, i meant the staging cluster")
	for i := 0; i < 2; i++ {
		if _, err := m.BeforeModel(ctx, run, req); err != nil {
			t.Fatalf("call %d: %v", i+1, err)
		}
	}

	all, err := st.List(ctx, instinct.ListParams{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("instincts = %d, want 1", len(all))
	}
	// A second observation in the same run would have reinforced the
	// instinct to 0.75.
	if all[0].Confidence != 0.7 {
		t.Errorf("confidence = %v, want 0.7 (observed once)", all[0].Confidence)
	}
}

func TestInstinctInjectorSkipsEmptyMessage(t *testing.T) {
	st, ctx := testInstinctStore(t)
	m := NewInstinctInjector(st)

	req := &Request{}
	if _, err := m.BeforeModel(ctx, NewRun("thread"), req); err != nil {
		t.Fatalf("BeforeModel: %v", err)
	}
	if len(req.Inserts) != 0 {
		t.Errorf("empty message produced inserts: %v", req.Inserts)
	}
}
