package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Checkpoint is one persisted snapshot of agent state for a thread.
// State is opaque to the store; internal/agent owns its shape.
type Checkpoint struct {
	ID          uuid.UUID       `json:"id"`
	WorkspaceID string          `json:"workspace_id"`
	ThreadID    string          `json:"thread_id"`
	State       json.RawMessage `json:"state"`
	CreatedAt   time.Time       `json:"created_at"`
}

// CheckpointStore persists agent state snapshots keyed by thread.
// Writes are atomic: a reader never observes a partial snapshot.
type CheckpointStore interface {
	Put(ctx context.Context, cp *Checkpoint) error
	Latest(ctx context.Context, threadID string) (*Checkpoint, error) // ErrNotFound when none
	Delete(ctx context.Context, threadID string) error
	// Prune removes snapshots older than the keep horizon for a thread,
	// always retaining the most recent one.
	Prune(ctx context.Context, threadID string, keep int) error
}
