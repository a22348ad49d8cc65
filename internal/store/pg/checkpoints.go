package pg

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/goaide/internal/store"
)

// PGCheckpointStore implements store.CheckpointStore backed by Postgres.
type PGCheckpointStore struct {
	db *sql.DB
}

func NewPGCheckpointStore(db *sql.DB) *PGCheckpointStore {
	return &PGCheckpointStore{db: db}
}

func (s *PGCheckpointStore) Put(ctx context.Context, cp *store.Checkpoint) error {
	if cp.ID == uuid.Nil {
		cp.ID = store.GenNewID()
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO checkpoints (id, workspace_id, thread_id, state, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		cp.ID, cp.WorkspaceID, cp.ThreadID, jsonOrEmpty(cp.State, "{}"), cp.CreatedAt,
	)
	return err
}

func (s *PGCheckpointStore) Latest(ctx context.Context, threadID string) (*store.Checkpoint, error) {
	var cp store.Checkpoint
	err := s.db.QueryRowContext(ctx,
		`SELECT id, workspace_id, thread_id, state, created_at
		 FROM checkpoints
		 WHERE thread_id = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT 1`, threadID).Scan(
		&cp.ID, &cp.WorkspaceID, &cp.ThreadID, &cp.State, &cp.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &cp, nil
}

func (s *PGCheckpointStore) Delete(ctx context.Context, threadID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM checkpoints WHERE thread_id = $1`, threadID)
	return err
}

func (s *PGCheckpointStore) Prune(ctx context.Context, threadID string, keep int) error {
	if keep < 1 {
		keep = 1
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM checkpoints
		 WHERE thread_id = $1
		   AND id NOT IN (
		     SELECT id FROM checkpoints
		     WHERE thread_id = $1
		     ORDER BY created_at DESC, id DESC
		     LIMIT $2
		   )`, threadID, keep)
	return err
}
