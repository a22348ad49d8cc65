package store

import (
	"context"
	"encoding/json"
	"time"
)

// Flow statuses.
const (
	FlowPending   = "pending"
	FlowRunning   = "running"
	FlowCompleted = "completed"
	FlowFailed    = "failed"
	FlowCancelled = "cancelled"
)

// Flow is one scheduled multi-agent chain instance. Spec holds the
// serialized flow definition; recurring flows enqueue a successor row
// on completion.
type Flow struct {
	ID             int64           `json:"id"`
	WorkspaceID    string          `json:"workspace_id"`
	ThreadID       string          `json:"thread_id"`
	UserID         string          `json:"user_id"`
	Name           string          `json:"name,omitempty"`
	Task           string          `json:"task,omitempty"` // human description
	Spec           json.RawMessage `json:"spec"`
	Cron           string          `json:"cron,omitempty"` // recurring schedule; "" = one-shot
	DueTime        time.Time       `json:"due_time"`
	Status         string          `json:"status"`
	Result         json.RawMessage `json:"result,omitempty"`
	LastError      string          `json:"last_error,omitempty"`
	NotifyChannels []string        `json:"notify_channels,omitempty"`
	StartedAt      *time.Time      `json:"started_at,omitempty"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// IsRecurring reports whether the flow re-schedules after completion.
func (f *Flow) IsRecurring() bool { return f.Cron != "" }

// FlowStore persists scheduled flows and their run ledger.
type FlowStore interface {
	Create(ctx context.Context, f *Flow) error // fills ID
	Get(ctx context.Context, id int64) (*Flow, error)
	ListByUser(ctx context.Context, userID, status string) ([]Flow, error)
	ListByThread(ctx context.Context, threadID, status string) ([]Flow, error)

	// Due returns pending flows with due_time <= now in due order.
	Due(ctx context.Context, now time.Time, limit int) ([]Flow, error)
	// Claim flips pending -> running; false when another writer won.
	Claim(ctx context.Context, id int64) (bool, error)
	MarkStarted(ctx context.Context, id int64, at time.Time) error
	MarkCompleted(ctx context.Context, id int64, result json.RawMessage, at time.Time) error
	MarkFailed(ctx context.Context, id int64, errMsg string, at time.Time) error

	// CreateNextInstance copies a recurring flow into a fresh pending row.
	CreateNextInstance(ctx context.Context, prev *Flow, nextDue time.Time) (*Flow, error)

	Cancel(ctx context.Context, id int64) (bool, error) // false when not pending
	Delete(ctx context.Context, id int64) (bool, error)
}
