package pg

import (
	"context"
	"database/sql"
	"time"

	"github.com/nextlevelbuilder/goaide/internal/store"
)

// PGReminderStore implements store.ReminderStore backed by Postgres.
type PGReminderStore struct {
	db *sql.DB
}

func NewPGReminderStore(db *sql.DB) *PGReminderStore {
	return &PGReminderStore{db: db}
}

const reminderSelectCols = `id, workspace_id, thread_id, user_id, message, due_time, recurrence, timezone, status, last_error, created_at, updated_at`

func (s *PGReminderStore) Create(ctx context.Context, r *store.Reminder) error {
	now := time.Now()
	r.CreatedAt = now
	r.UpdatedAt = now
	if r.Status == "" {
		r.Status = store.ReminderPending
	}
	return s.db.QueryRowContext(ctx,
		`INSERT INTO reminders (workspace_id, thread_id, user_id, message, due_time, recurrence, timezone, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id`,
		r.WorkspaceID, r.ThreadID, nilStr(r.UserID), r.Message, r.DueTime,
		nilStr(r.Recurrence), nilStr(r.Timezone), r.Status, now, now,
	).Scan(&r.ID)
}

func (s *PGReminderStore) Get(ctx context.Context, id int64) (*store.Reminder, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+reminderSelectCols+` FROM reminders WHERE id = $1`, id)
	r, err := scanReminderRow(row)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	return r, err
}

func (s *PGReminderStore) ListByThread(ctx context.Context, threadID, status string) ([]store.Reminder, error) {
	query := `SELECT ` + reminderSelectCols + ` FROM reminders WHERE thread_id = $1`
	args := []any{threadID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, status)
	}
	query += ` ORDER BY due_time`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanReminderRows(rows)
}

func (s *PGReminderStore) Due(ctx context.Context, now time.Time, limit int) ([]store.Reminder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+reminderSelectCols+` FROM reminders
		 WHERE status = $1 AND due_time <= $2
		 ORDER BY due_time
		 LIMIT $3`,
		store.ReminderPending, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanReminderRows(rows)
}

func (s *PGReminderStore) Claim(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE reminders SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`,
		store.ReminderRunning, time.Now(), id, store.ReminderPending)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *PGReminderStore) MarkSent(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE reminders SET status = $1, last_error = NULL, updated_at = $2 WHERE id = $3`,
		store.ReminderSent, time.Now(), id)
	return err
}

func (s *PGReminderStore) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE reminders SET status = $1, last_error = $2, updated_at = $3 WHERE id = $4`,
		store.ReminderFailed, nilStr(errMsg), time.Now(), id)
	return err
}

func (s *PGReminderStore) Cancel(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE reminders SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`,
		store.ReminderCancelled, time.Now(), id, store.ReminderPending)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *PGReminderStore) Update(ctx context.Context, id int64, message string, dueTime *time.Time, timezone *string) (*store.Reminder, error) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE reminders SET
		   message = COALESCE(NULLIF($1, ''), message),
		   due_time = COALESCE($2, due_time),
		   timezone = COALESCE($3, timezone),
		   updated_at = $4
		 WHERE id = $5`,
		message, nilTime(dueTime), timezonePtr(timezone), time.Now(), id)
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

func timezonePtr(tz *string) any {
	if tz == nil {
		return nil
	}
	return *tz
}

// ============================================================
// Scan helpers
// ============================================================

func scanReminderRow(row *sql.Row) (*store.Reminder, error) {
	var r store.Reminder
	var userID, recurrence, timezone, lastErr *string
	err := row.Scan(
		&r.ID, &r.WorkspaceID, &r.ThreadID, &userID, &r.Message, &r.DueTime,
		&recurrence, &timezone, &r.Status, &lastErr, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.UserID = derefStr(userID)
	r.Recurrence = derefStr(recurrence)
	r.Timezone = derefStr(timezone)
	r.LastError = derefStr(lastErr)
	return &r, nil
}

func scanReminderRows(rows *sql.Rows) ([]store.Reminder, error) {
	var out []store.Reminder
	for rows.Next() {
		var r store.Reminder
		var userID, recurrence, timezone, lastErr *string
		if err := rows.Scan(
			&r.ID, &r.WorkspaceID, &r.ThreadID, &userID, &r.Message, &r.DueTime,
			&recurrence, &timezone, &r.Status, &lastErr, &r.CreatedAt, &r.UpdatedAt,
		); err != nil {
			return nil, err
		}
		r.UserID = derefStr(userID)
		r.Recurrence = derefStr(recurrence)
		r.Timezone = derefStr(timezone)
		r.LastError = derefStr(lastErr)
		out = append(out, r)
	}
	return out, rows.Err()
}
