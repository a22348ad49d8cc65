package instinct

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/nextlevelbuilder/goaide/internal/config"
	"github.com/nextlevelbuilder/goaide/internal/store"
	"github.com/nextlevelbuilder/goaide/internal/workspace"
)

func testStore(t *testing.T) (*Store, context.Context) {
	t.Helper()
	router := workspace.NewRouter(config.StorageConfig{Root: t.TempDir()})
	ctx := store.WithWorkspaceID(context.Background(), "ws:instinct-test")
	return NewStore(router), ctx
}

func TestCreateDefaults(t *testing.T) {
	s, ctx := testStore(t)

	inst, err := s.Create(ctx, CreateParams{Trigger: "user asks for status", Action: "lead with a one-line summary"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if inst.ID != "ins-1" {
		t.Errorf("ID = %q, want ins-1", inst.ID)
	}
	if inst.Domain != DomainWorkflow {
		t.Errorf("Domain = %q, want %q", inst.Domain, DomainWorkflow)
	}
	if inst.Confidence != 0.7 {
		t.Errorf("Confidence = %v, want 0.7", inst.Confidence)
	}
	if inst.SuccessRate != 1.0 {
		t.Errorf("SuccessRate = %v, want 1.0", inst.SuccessRate)
	}

	got, err := s.Get(ctx, inst.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Trigger != inst.Trigger || got.Action != inst.Action {
		t.Errorf("Get returned %+v, want %+v", got, inst)
	}
	if got.OccurrenceCount != 0 || got.LastTriggered != nil {
		t.Errorf("fresh instinct has occurrences %d, last triggered %v", got.OccurrenceCount, got.LastTriggered)
	}
}

func TestCreateRequiresTriggerAndAction(t *testing.T) {
	s, ctx := testStore(t)

	if _, err := s.Create(ctx, CreateParams{Action: "do something"}); err == nil {
		t.Error("Create without trigger succeeded")
	}
	if _, err := s.Create(ctx, CreateParams{Trigger: "something happens"}); err == nil {
		t.Error("Create without action succeeded")
	}
}

func TestListFiltersByDomainAndConfidence(t *testing.T) {
	s, ctx := testStore(t)

	mustCreate(t, s, ctx, CreateParams{Trigger: "a", Action: "x", Domain: DomainCommunication, Confidence: 0.9})
	mustCreate(t, s, ctx, CreateParams{Trigger: "b", Action: "y", Domain: DomainCommunication, Confidence: 0.4})
	mustCreate(t, s, ctx, CreateParams{Trigger: "c", Action: "z", Domain: DomainFormat, Confidence: 0.8})

	comm, err := s.List(ctx, ListParams{Domain: DomainCommunication, MinConfidence: 0.5})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(comm) != 1 || comm[0].Trigger != "a" {
		t.Errorf("List(communication, 0.5) = %+v, want single trigger a", comm)
	}

	all, err := s.List(ctx, ListParams{})
	if err != nil {
		t.Fatalf("List all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("List all returned %d instincts, want 3", len(all))
	}
	// Strongest first.
	if all[0].Confidence < all[1].Confidence || all[1].Confidence < all[2].Confidence {
		t.Errorf("List not ordered by confidence: %v %v %v", all[0].Confidence, all[1].Confidence, all[2].Confidence)
	}
}

func TestAdjustConfidenceClamps(t *testing.T) {
	s, ctx := testStore(t)
	inst := mustCreate(t, s, ctx, CreateParams{Trigger: "t", Action: "a", Confidence: 0.9})

	if err := s.AdjustConfidence(ctx, inst.ID, 0.5); err != nil {
		t.Fatalf("AdjustConfidence: %v", err)
	}
	got, _ := s.Get(ctx, inst.ID)
	if got.Confidence != 1.0 {
		t.Errorf("confidence after +0.5 = %v, want clamp at 1.0", got.Confidence)
	}

	if err := s.AdjustConfidence(ctx, inst.ID, -2); err != nil {
		t.Fatalf("AdjustConfidence: %v", err)
	}
	got, _ = s.Get(ctx, inst.ID)
	if got.Confidence != 0.0 {
		t.Errorf("confidence after -2 = %v, want clamp at 0.0", got.Confidence)
	}

	if err := s.AdjustConfidence(ctx, "ins-99", 0.1); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("AdjustConfidence(missing) err = %v, want ErrNotFound", err)
	}
}

func TestMarkTriggered(t *testing.T) {
	s, ctx := testStore(t)
	inst := mustCreate(t, s, ctx, CreateParams{Trigger: "t", Action: "a"})

	if err := s.MarkTriggered(ctx, inst.ID, "not-an-id", inst.ID); err != nil {
		t.Fatalf("MarkTriggered: %v", err)
	}
	got, _ := s.Get(ctx, inst.ID)
	if got.OccurrenceCount != 2 {
		t.Errorf("OccurrenceCount = %d, want 2", got.OccurrenceCount)
	}
	if got.LastTriggered == nil {
		t.Error("LastTriggered still nil after MarkTriggered")
	}
}

func TestRecordOutcomeMovingAverage(t *testing.T) {
	s, ctx := testStore(t)
	inst := mustCreate(t, s, ctx, CreateParams{Trigger: "t", Action: "a"})

	if err := s.RecordOutcome(ctx, inst.ID, false); err != nil {
		t.Fatalf("RecordOutcome: %v", err)
	}
	got, _ := s.Get(ctx, inst.ID)
	if math.Abs(got.SuccessRate-0.8) > 1e-9 {
		t.Errorf("success rate after one failure = %v, want 0.8", got.SuccessRate)
	}

	if err := s.RecordOutcome(ctx, inst.ID, false); err != nil {
		t.Fatalf("RecordOutcome: %v", err)
	}
	got, _ = s.Get(ctx, inst.ID)
	if math.Abs(got.SuccessRate-0.64) > 1e-9 {
		t.Errorf("success rate after two failures = %v, want 0.64", got.SuccessRate)
	}

	if err := s.RecordOutcome(ctx, inst.ID, true); err != nil {
		t.Fatalf("RecordOutcome: %v", err)
	}
	got, _ = s.Get(ctx, inst.ID)
	want := 0.2 + 0.8*0.64
	if math.Abs(got.SuccessRate-want) > 1e-9 {
		t.Errorf("success rate after recovery = %v, want %v", got.SuccessRate, want)
	}
}

func TestFindSimilar(t *testing.T) {
	s, ctx := testStore(t)

	mustCreate(t, s, ctx, CreateParams{Trigger: "user asks about deployment status", Action: "check the pipeline first"})
	mustCreate(t, s, ctx, CreateParams{Trigger: "user requests weather", Action: "include the forecast"})

	got, err := s.FindSimilar(ctx, "what is the deployment status?", 5)
	if err != nil {
		t.Fatalf("FindSimilar: %v", err)
	}
	if len(got) != 1 || got[0].Trigger != "user asks about deployment status" {
		t.Errorf("FindSimilar = %+v, want the deployment instinct only", got)
	}

	got, err = s.FindSimilar(ctx, "completely unrelated topic", 5)
	if err != nil {
		t.Fatalf("FindSimilar: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("FindSimilar(unrelated) = %+v, want none", got)
	}
}

func TestDeleteAndCount(t *testing.T) {
	s, ctx := testStore(t)
	inst := mustCreate(t, s, ctx, CreateParams{Trigger: "t", Action: "a"})

	n, err := s.Count(ctx)
	if err != nil || n != 1 {
		t.Fatalf("Count = %d, %v, want 1", n, err)
	}

	ok, err := s.Delete(ctx, inst.ID)
	if err != nil || !ok {
		t.Fatalf("Delete = %v, %v, want true", ok, err)
	}
	ok, err = s.Delete(ctx, inst.ID)
	if err != nil || ok {
		t.Fatalf("second Delete = %v, %v, want false", ok, err)
	}
	if _, err := s.Get(ctx, inst.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Get after delete err = %v, want ErrNotFound", err)
	}
}

func TestWorkspaceIsolation(t *testing.T) {
	router := workspace.NewRouter(config.StorageConfig{Root: t.TempDir()})
	s := NewStore(router)
	ctxA := store.WithWorkspaceID(context.Background(), "ws:a")
	ctxB := store.WithWorkspaceID(context.Background(), "ws:b")

	if _, err := s.Create(ctxA, CreateParams{Trigger: "t", Action: "a"}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	n, err := s.Count(ctxB)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 0 {
		t.Errorf("workspace b sees %d instincts, want 0", n)
	}
}

func mustCreate(t *testing.T, s *Store, ctx context.Context, p CreateParams) *Instinct {
	t.Helper()
	inst, err := s.Create(ctx, p)
	if err != nil {
		t.Fatalf("Create(%+v): %v", p, err)
	}
	return inst
}
