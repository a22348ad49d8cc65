package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nextlevelbuilder/goaide/internal/scheduler"
	"github.com/nextlevelbuilder/goaide/internal/store"
)

// Reminder tools schedule nudges back into the conversation. Times are
// parsed from natural language and stored as local wall time; the
// timezone string is kept for display.

const reminderLookupTimeout = 25 * time.Second

func reminderIDArg(args map[string]interface{}) (int64, bool) {
	if f, ok := args["reminder_id"].(float64); ok && f > 0 {
		return int64(f), true
	}
	return 0, false
}

// --- reminder_set ---

type ReminderSetTool struct {
	reminders store.ReminderStore
}

func NewReminderSetTool(reminders store.ReminderStore) *ReminderSetTool {
	return &ReminderSetTool{reminders: reminders}
}

func (t *ReminderSetTool) Name() string { return "reminder_set" }

func (t *ReminderSetTool) Description() string {
	return "Set a reminder. Time accepts natural language like 'in 30 minutes', 'tomorrow at 9am', 'next monday', '15:30', or '2025-01-15 14:00'."
}

func (t *ReminderSetTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"message": map[string]interface{}{
				"type":        "string",
				"description": "What to remind about",
			},
			"time": map[string]interface{}{
				"type":        "string",
				"description": "When to remind, in natural language or absolute form",
			},
			"recurrence": map[string]interface{}{
				"type":        "string",
				"description": "Optional recurrence like 'daily', 'weekly', 'daily at 9am', or a cron expression",
			},
			"timezone": map[string]interface{}{
				"type":        "string",
				"description": "Optional IANA timezone name (e.g. 'America/New_York') the time should be interpreted in",
			},
		},
		"required": []string{"message", "time"},
	}
}

func (t *ReminderSetTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	threadID := store.ThreadIDFromContext(ctx)
	if threadID == "" {
		return ErrorResult("Error: Could not determine conversation context for reminder.")
	}

	message, _ := args["message"].(string)
	if strings.TrimSpace(message) == "" {
		return ErrorResult("message is required")
	}
	timeExpr, _ := args["time"].(string)
	if strings.TrimSpace(timeExpr) == "" {
		return ErrorResult("time is required")
	}
	recurrence, _ := args["recurrence"].(string)
	timezone, _ := args["timezone"].(string)

	if recurrence != "" {
		if err := scheduler.ValidateRecurrence(recurrence); err != nil {
			return ErrorResult(fmt.Sprintf("Error: %v", err))
		}
	}

	parsed, err := scheduler.ParseTimeExpression(timeExpr, timezone)
	if err != nil {
		return ErrorResult(fmt.Sprintf("Error: %v", err))
	}
	dueTime := parsed.In(time.Local)

	reminder := &store.Reminder{
		WorkspaceID: store.WorkspaceIDFromContext(ctx),
		ThreadID:    threadID,
		UserID:      store.UserIDFromContext(ctx),
		Message:     message,
		DueTime:     dueTime,
		Recurrence:  recurrence,
		Timezone:    timezone,
		Status:      store.ReminderPending,
	}
	if err := t.reminders.Create(ctx, reminder); err != nil {
		return ErrorResult(fmt.Sprintf("Error: failed to save reminder: %v", err))
	}

	timezoneStr := ""
	if timezone != "" {
		timezoneStr = fmt.Sprintf(" (%s)", timezone)
	}
	recurrenceStr := ""
	if recurrence != "" {
		recurrenceStr = fmt.Sprintf(" (recurring: %s)", recurrence)
	}
	return NewResult(fmt.Sprintf("Reminder set for %s%s%s. ID: %d",
		dueTime.Format("2006-01-02 15:04"), timezoneStr, recurrenceStr, reminder.ID))
}

// --- reminder_list ---

type ReminderListTool struct {
	reminders store.ReminderStore
}

func NewReminderListTool(reminders store.ReminderStore) *ReminderListTool {
	return &ReminderListTool{reminders: reminders}
}

func (t *ReminderListTool) Name() string { return "reminder_list" }

func (t *ReminderListTool) Description() string {
	return "List reminders for this conversation, optionally filtered by status"
}

// ExecuteTimeout keeps reminder lookups snappy; a slow store should not
// eat the whole tool budget.
func (t *ReminderListTool) ExecuteTimeout() time.Duration { return reminderLookupTimeout }

func (t *ReminderListTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"status": map[string]interface{}{
				"type":        "string",
				"description": "Filter by status ('pending', 'running', 'sent', 'cancelled', 'failed'). Empty for all.",
			},
		},
	}
}

func (t *ReminderListTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	threadID := store.ThreadIDFromContext(ctx)
	if threadID == "" {
		return ErrorResult("Error: Could not determine conversation context.")
	}

	status, _ := args["status"].(string)
	switch status {
	case "", store.ReminderPending, store.ReminderRunning, store.ReminderSent,
		store.ReminderCancelled, store.ReminderFailed:
	default:
		return ErrorResult("Invalid status. Use one of: pending, running, sent, cancelled, failed")
	}

	reminders, err := t.reminders.ListByThread(ctx, threadID, status)
	if err != nil {
		return ErrorResult(fmt.Sprintf("Error: failed to list reminders: %v", err))
	}
	if len(reminders) == 0 {
		return NewResult("No reminders found.")
	}

	lines := []string{
		fmt.Sprintf("%-5s %-10s %-25s %s", "ID", "Status", "Due Time", "Message"),
		strings.Repeat("-", 80),
	}
	for _, r := range reminders {
		due := r.DueTime.Format("2006-01-02 15:04")
		if r.Timezone != "" {
			due += " " + r.Timezone
		}
		recurrenceStr := ""
		if r.IsRecurring() {
			recurrenceStr = " (recurring)"
		}
		lines = append(lines, fmt.Sprintf("%-5d %-10s %-25s %s%s", r.ID, r.Status, due, r.Message, recurrenceStr))
	}
	return NewResult(strings.Join(lines, "\n"))
}

// --- reminder_cancel ---

type ReminderCancelTool struct {
	reminders store.ReminderStore
}

func NewReminderCancelTool(reminders store.ReminderStore) *ReminderCancelTool {
	return &ReminderCancelTool{reminders: reminders}
}

func (t *ReminderCancelTool) Name() string { return "reminder_cancel" }

func (t *ReminderCancelTool) Description() string {
	return "Cancel a pending reminder by ID"
}

func (t *ReminderCancelTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"reminder_id": map[string]interface{}{
				"type":        "integer",
				"description": "ID of the reminder to cancel",
			},
		},
		"required": []string{"reminder_id"},
	}
}

func (t *ReminderCancelTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	threadID := store.ThreadIDFromContext(ctx)
	if threadID == "" {
		return ErrorResult("Error: Could not determine conversation context.")
	}
	id, ok := reminderIDArg(args)
	if !ok {
		return ErrorResult("reminder_id is required")
	}

	reminder, err := t.reminders.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return NewResult(fmt.Sprintf("Reminder %d not found.", id))
		}
		return ErrorResult(fmt.Sprintf("Error: failed to read reminder: %v", err))
	}
	if reminder.ThreadID != threadID {
		return NewResult("You can only cancel your own reminders.")
	}
	if reminder.Status != store.ReminderPending {
		return NewResult(fmt.Sprintf("Reminder %d is not pending (status: %s).", id, reminder.Status))
	}

	if _, err := t.reminders.Cancel(ctx, id); err != nil {
		return ErrorResult(fmt.Sprintf("Error: failed to cancel reminder: %v", err))
	}
	return NewResult(fmt.Sprintf("Reminder %d cancelled.", id))
}

// --- reminder_edit ---

type ReminderEditTool struct {
	reminders store.ReminderStore
}

func NewReminderEditTool(reminders store.ReminderStore) *ReminderEditTool {
	return &ReminderEditTool{reminders: reminders}
}

func (t *ReminderEditTool) Name() string { return "reminder_edit" }

func (t *ReminderEditTool) Description() string {
	return "Change a pending reminder's message, time, or timezone. Empty fields keep the current value; timezone 'remove' clears it."
}

func (t *ReminderEditTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"reminder_id": map[string]interface{}{
				"type":        "integer",
				"description": "ID of the reminder to edit",
			},
			"message": map[string]interface{}{
				"type":        "string",
				"description": "New reminder message",
			},
			"time": map[string]interface{}{
				"type":        "string",
				"description": "New due time in natural language or absolute form",
			},
			"timezone": map[string]interface{}{
				"type":        "string",
				"description": "New IANA timezone, or 'remove' to clear",
			},
		},
		"required": []string{"reminder_id"},
	}
}

func (t *ReminderEditTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	threadID := store.ThreadIDFromContext(ctx)
	if threadID == "" {
		return ErrorResult("Error: Could not determine conversation context.")
	}
	id, ok := reminderIDArg(args)
	if !ok {
		return ErrorResult("reminder_id is required")
	}
	message, _ := args["message"].(string)
	timeExpr, _ := args["time"].(string)
	timezone, _ := args["timezone"].(string)

	reminder, err := t.reminders.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return NewResult(fmt.Sprintf("Reminder %d not found.", id))
		}
		return ErrorResult(fmt.Sprintf("Error: failed to read reminder: %v", err))
	}
	if reminder.ThreadID != threadID {
		return NewResult("You can only edit your own reminders.")
	}
	if reminder.Status != store.ReminderPending {
		return NewResult(fmt.Sprintf("Reminder %d is not pending (status: %s).", id, reminder.Status))
	}

	var newDueTime *time.Time
	if timeExpr != "" {
		tz := timezone
		if tz == "" {
			tz = reminder.Timezone
		}
		parsed, err := scheduler.ParseTimeExpression(timeExpr, tz)
		if err != nil {
			return ErrorResult(fmt.Sprintf("Error: %v", err))
		}
		local := parsed.In(time.Local)
		newDueTime = &local
	}

	var newTimezone *string
	if timezone != "" {
		tz := timezone
		if tz == "remove" {
			tz = ""
		}
		newTimezone = &tz
	}

	updated, err := t.reminders.Update(ctx, id, message, newDueTime, newTimezone)
	if err != nil {
		return ErrorResult(fmt.Sprintf("Error: failed to update reminder: %v", err))
	}

	var changes []string
	if message != "" {
		changes = append(changes, fmt.Sprintf("message to '%s'", message))
	}
	if newDueTime != nil {
		tzStr := ""
		if updated.Timezone != "" {
			tzStr = " " + updated.Timezone
		}
		changes = append(changes, fmt.Sprintf("time to %s%s", newDueTime.Format("2006-01-02 15:04"), tzStr))
	}
	if newTimezone != nil {
		display := *newTimezone
		if display == "" {
			display = "None"
		}
		changes = append(changes, fmt.Sprintf("timezone to %s", display))
	}

	changeStr := "nothing"
	if len(changes) > 0 {
		changeStr = strings.Join(changes, " and ")
	}
	return NewResult(fmt.Sprintf("Reminder %d updated: %s.", id, changeStr))
}

// ReminderTools returns the reminder tool set.
func ReminderTools(reminders store.ReminderStore) []Tool {
	return []Tool{
		NewReminderSetTool(reminders),
		NewReminderListTool(reminders),
		NewReminderCancelTool(reminders),
		NewReminderEditTool(reminders),
	}
}
