package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/lib/pq"

	"github.com/nextlevelbuilder/goaide/internal/store"
)

// PGFlowStore implements store.FlowStore backed by Postgres.
type PGFlowStore struct {
	db *sql.DB
}

func NewPGFlowStore(db *sql.DB) *PGFlowStore {
	return &PGFlowStore{db: db}
}

const flowSelectCols = `id, workspace_id, thread_id, user_id, name, task, spec, cron, due_time, status, result, last_error, notify_channels, started_at, completed_at, created_at`

func (s *PGFlowStore) Create(ctx context.Context, f *store.Flow) error {
	f.CreatedAt = time.Now()
	if f.Status == "" {
		f.Status = store.FlowPending
	}
	return s.db.QueryRowContext(ctx,
		`INSERT INTO scheduled_flows (workspace_id, thread_id, user_id, name, task, spec, cron, due_time, status, notify_channels, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING id`,
		f.WorkspaceID, f.ThreadID, f.UserID, nilStr(f.Name), nilStr(f.Task),
		jsonOrEmpty(f.Spec, "{}"), nilStr(f.Cron), f.DueTime, f.Status,
		pq.Array(f.NotifyChannels), f.CreatedAt,
	).Scan(&f.ID)
}

func (s *PGFlowStore) Get(ctx context.Context, id int64) (*store.Flow, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+flowSelectCols+` FROM scheduled_flows WHERE id = $1`, id)
	f, err := scanFlowRow(row)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	return f, err
}

func (s *PGFlowStore) ListByUser(ctx context.Context, userID, status string) ([]store.Flow, error) {
	return s.list(ctx, `user_id`, userID, status)
}

func (s *PGFlowStore) ListByThread(ctx context.Context, threadID, status string) ([]store.Flow, error) {
	return s.list(ctx, `thread_id`, threadID, status)
}

func (s *PGFlowStore) list(ctx context.Context, keyCol, key, status string) ([]store.Flow, error) {
	query := `SELECT ` + flowSelectCols + ` FROM scheduled_flows WHERE ` + keyCol + ` = $1`
	args := []any{key}
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
	return scanFlowRows(rows)
}

func (s *PGFlowStore) Due(ctx context.Context, now time.Time, limit int) ([]store.Flow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+flowSelectCols+` FROM scheduled_flows
		 WHERE status = $1 AND due_time <= $2
		 ORDER BY due_time
		 LIMIT $3`,
		store.FlowPending, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanFlowRows(rows)
}

func (s *PGFlowStore) Claim(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE scheduled_flows SET status = $1 WHERE id = $2 AND status = $3`,
		store.FlowRunning, id, store.FlowPending)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *PGFlowStore) MarkStarted(ctx context.Context, id int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE scheduled_flows SET status = $1, started_at = $2 WHERE id = $3`,
		store.FlowRunning, at, id)
	return err
}

func (s *PGFlowStore) MarkCompleted(ctx context.Context, id int64, result json.RawMessage, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE scheduled_flows SET status = $1, result = $2, completed_at = $3 WHERE id = $4`,
		store.FlowCompleted, jsonOrEmpty(result, "{}"), at, id)
	return err
}

func (s *PGFlowStore) MarkFailed(ctx context.Context, id int64, errMsg string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE scheduled_flows SET status = $1, last_error = $2, completed_at = $3 WHERE id = $4`,
		store.FlowFailed, nilStr(errMsg), at, id)
	return err
}

func (s *PGFlowStore) CreateNextInstance(ctx context.Context, prev *store.Flow, nextDue time.Time) (*store.Flow, error) {
	next := &store.Flow{
		WorkspaceID:    prev.WorkspaceID,
		ThreadID:       prev.ThreadID,
		UserID:         prev.UserID,
		Name:           prev.Name,
		Task:           prev.Task,
		Spec:           prev.Spec,
		Cron:           prev.Cron,
		DueTime:        nextDue,
		Status:         store.FlowPending,
		NotifyChannels: prev.NotifyChannels,
	}
	if err := s.Create(ctx, next); err != nil {
		return nil, err
	}
	return next, nil
}

func (s *PGFlowStore) Cancel(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE scheduled_flows SET status = $1 WHERE id = $2 AND status = $3`,
		store.FlowCancelled, id, store.FlowPending)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *PGFlowStore) Delete(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM scheduled_flows WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ============================================================
// Scan helpers
// ============================================================

func scanFlowRow(row *sql.Row) (*store.Flow, error) {
	var f store.Flow
	var name, task, cron, lastErr *string
	var result []byte
	err := row.Scan(
		&f.ID, &f.WorkspaceID, &f.ThreadID, &f.UserID, &name, &task,
		&f.Spec, &cron, &f.DueTime, &f.Status, &result, &lastErr,
		pq.Array(&f.NotifyChannels), &f.StartedAt, &f.CompletedAt, &f.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	f.Name = derefStr(name)
	f.Task = derefStr(task)
	f.Cron = derefStr(cron)
	f.LastError = derefStr(lastErr)
	f.Result = result
	return &f, nil
}

func scanFlowRows(rows *sql.Rows) ([]store.Flow, error) {
	var out []store.Flow
	for rows.Next() {
		var f store.Flow
		var name, task, cron, lastErr *string
		var result []byte
		if err := rows.Scan(
			&f.ID, &f.WorkspaceID, &f.ThreadID, &f.UserID, &name, &task,
			&f.Spec, &cron, &f.DueTime, &f.Status, &result, &lastErr,
			pq.Array(&f.NotifyChannels), &f.StartedAt, &f.CompletedAt, &f.CreatedAt,
		); err != nil {
			return nil, err
		}
		f.Name = derefStr(name)
		f.Task = derefStr(task)
		f.Cron = derefStr(cron)
		f.LastError = derefStr(lastErr)
		f.Result = result
		out = append(out, f)
	}
	return out, rows.Err()
}
