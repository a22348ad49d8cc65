package store

import (
	"context"
	"time"
)

// Reminder statuses.
const (
	ReminderPending   = "pending"
	ReminderRunning   = "running"
	ReminderSent      = "sent"
	ReminderCancelled = "cancelled"
	ReminderFailed    = "failed"
)

// Reminder is one scheduled nudge back into a conversation. DueTime is
// naive local wall time; Timezone records the IANA zone the user gave
// for display.
type Reminder struct {
	ID          int64     `json:"id"`
	WorkspaceID string    `json:"workspace_id"`
	ThreadID    string    `json:"thread_id"`
	UserID      string    `json:"user_id,omitempty"`
	Message     string    `json:"message"`
	DueTime     time.Time `json:"due_time"`
	Recurrence  string    `json:"recurrence,omitempty"` // cron or named pattern; "" = one-shot
	Timezone    string    `json:"timezone,omitempty"`
	Status      string    `json:"status"`
	LastError   string    `json:"last_error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// IsRecurring reports whether the reminder re-schedules after firing.
func (r *Reminder) IsRecurring() bool { return r.Recurrence != "" }

// ReminderStore persists reminders and hands them to the scheduler.
type ReminderStore interface {
	Create(ctx context.Context, r *Reminder) error // fills ID
	Get(ctx context.Context, id int64) (*Reminder, error)
	ListByThread(ctx context.Context, threadID, status string) ([]Reminder, error)

	// Due returns pending reminders with due_time <= now in due order.
	Due(ctx context.Context, now time.Time, limit int) ([]Reminder, error)
	// Claim flips pending -> running; false when another writer won.
	Claim(ctx context.Context, id int64) (bool, error)
	MarkSent(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, errMsg string) error
	Cancel(ctx context.Context, id int64) (bool, error) // false when not pending

	// Update rewrites message/due/timezone; nil/empty fields keep current.
	Update(ctx context.Context, id int64, message string, dueTime *time.Time, timezone *string) (*Reminder, error)
}
