package file

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/nextlevelbuilder/goaide/internal/store"
)

func TestCheckpointPutLatestPrune(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileCheckpointStore(dir)
	if err != nil {
		t.Fatalf("NewFileCheckpointStore: %v", err)
	}
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		cp := &store.Checkpoint{
			WorkspaceID: "ws:test",
			ThreadID:    "telegram:1",
			State:       json.RawMessage(fmt.Sprintf(`{"iteration":%d}`, i)),
		}
		if err := s.Put(ctx, cp); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	latest, err := s.Latest(ctx, "telegram:1")
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if string(latest.State) != `{"iteration":4}` {
		t.Errorf("Latest state = %s, want iteration 4", latest.State)
	}

	if err := s.Prune(ctx, "telegram:1", 2); err != nil {
		t.Fatalf("Prune: %v", err)
	}
	latest, err = s.Latest(ctx, "telegram:1")
	if err != nil {
		t.Fatalf("Latest after prune: %v", err)
	}
	if string(latest.State) != `{"iteration":4}` {
		t.Errorf("Latest after prune = %s, want iteration 4", latest.State)
	}
}

func TestCheckpointSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := NewFileCheckpointStore(dir)
	if err != nil {
		t.Fatalf("NewFileCheckpointStore: %v", err)
	}
	cp := &store.Checkpoint{
		WorkspaceID: "ws:test",
		ThreadID:    "discord:9",
		State:       json.RawMessage(`{"messages":3}`),
	}
	if err := s.Put(ctx, cp); err != nil {
		t.Fatalf("Put: %v", err)
	}

	reopened, err := NewFileCheckpointStore(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	latest, err := reopened.Latest(ctx, "discord:9")
	if err != nil {
		t.Fatalf("Latest after reopen: %v", err)
	}
	if string(latest.State) != `{"messages":3}` {
		t.Errorf("state after reopen = %s", latest.State)
	}
	if latest.ID != cp.ID {
		t.Errorf("id after reopen = %v, want %v", latest.ID, cp.ID)
	}
}

func TestCheckpointDelete(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := NewFileCheckpointStore(dir)
	if err != nil {
		t.Fatalf("NewFileCheckpointStore: %v", err)
	}
	cp := &store.Checkpoint{WorkspaceID: "ws:test", ThreadID: "t:1", State: json.RawMessage(`{}`)}
	if err := s.Put(ctx, cp); err != nil {
		t.Fatalf("Put: %v", err)
	}

	if err := s.Delete(ctx, "t:1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Latest(ctx, "t:1"); err != store.ErrNotFound {
		t.Errorf("Latest after delete = %v, want ErrNotFound", err)
	}

	// Deleting a never-bound thread is a no-op.
	if err := s.Delete(ctx, "t:none"); err != nil {
		t.Errorf("Delete missing thread = %v, want nil", err)
	}
}

func TestCheckpointRejectsPathEscapes(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := NewFileCheckpointStore(dir)
	if err != nil {
		t.Fatalf("NewFileCheckpointStore: %v", err)
	}

	cp := &store.Checkpoint{WorkspaceID: "ws:test", ThreadID: "../escape", State: json.RawMessage(`{}`)}
	if err := s.Put(ctx, cp); err == nil {
		t.Error("Put with traversal thread id succeeded, want error")
	}
}
