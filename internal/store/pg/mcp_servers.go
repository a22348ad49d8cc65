package pg

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/goaide/internal/store"
)

// PGMCPServerStore implements store.MCPServerStore backed by Postgres.
type PGMCPServerStore struct {
	db *sql.DB
}

func NewPGMCPServerStore(db *sql.DB) *PGMCPServerStore {
	return &PGMCPServerStore{db: db}
}

const mcpSelectCols = `id, workspace_id, name, transport, command, args, url, headers, env, timeout_sec, enabled, created_by, created_at, updated_at`

func (s *PGMCPServerStore) Create(ctx context.Context, srv *store.MCPServer) error {
	if srv.ID == uuid.Nil {
		srv.ID = store.GenNewID()
	}
	now := time.Now()
	srv.CreatedAt = now
	srv.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO mcp_servers (id, workspace_id, name, transport, command, args, url, headers, env, timeout_sec, enabled, created_by, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		srv.ID, nilStr(srv.WorkspaceID), srv.Name, srv.Transport, nilStr(srv.Command),
		jsonOrEmpty(srv.Args, "[]"), nilStr(srv.URL),
		jsonOrEmpty(srv.Headers, "{}"), jsonOrEmpty(srv.Env, "{}"),
		srv.TimeoutSec, srv.Enabled, nilStr(srv.CreatedBy), now, now,
	)
	return err
}

func (s *PGMCPServerStore) GetByName(ctx context.Context, workspaceID, name string) (*store.MCPServer, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+mcpSelectCols+` FROM mcp_servers
		 WHERE name = $1 AND (workspace_id = $2 OR workspace_id IS NULL)
		 ORDER BY workspace_id NULLS LAST
		 LIMIT 1`, name, workspaceID)
	srv, err := scanMCPServerRow(row)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	return srv, err
}

// List returns the workspace's servers plus global ones, workspace
// entries first so they shadow globals of the same name.
func (s *PGMCPServerStore) List(ctx context.Context, workspaceID string) ([]store.MCPServer, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+mcpSelectCols+` FROM mcp_servers
		 WHERE workspace_id = $1 OR workspace_id IS NULL
		 ORDER BY workspace_id NULLS LAST, name`, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.MCPServer
	for rows.Next() {
		var srv store.MCPServer
		var workspace, command, url, createdBy *string
		if err := rows.Scan(
			&srv.ID, &workspace, &srv.Name, &srv.Transport, &command,
			&srv.Args, &url, &srv.Headers, &srv.Env,
			&srv.TimeoutSec, &srv.Enabled, &createdBy, &srv.CreatedAt, &srv.UpdatedAt,
		); err != nil {
			return nil, err
		}
		srv.WorkspaceID = derefStr(workspace)
		srv.Command = derefStr(command)
		srv.URL = derefStr(url)
		srv.CreatedBy = derefStr(createdBy)
		out = append(out, srv)
	}
	return out, rows.Err()
}

func (s *PGMCPServerStore) SetEnabled(ctx context.Context, workspaceID, name string, enabled bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE mcp_servers SET enabled = $1, updated_at = $2
		 WHERE name = $3 AND ((workspace_id = $4) OR (workspace_id IS NULL AND $4 = ''))`,
		enabled, time.Now(), name, workspaceID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *PGMCPServerStore) Delete(ctx context.Context, workspaceID, name string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM mcp_servers
		 WHERE name = $1 AND ((workspace_id = $2) OR (workspace_id IS NULL AND $2 = ''))`,
		name, workspaceID)
	return err
}

func scanMCPServerRow(row *sql.Row) (*store.MCPServer, error) {
	var srv store.MCPServer
	var workspace, command, url, createdBy *string
	err := row.Scan(
		&srv.ID, &workspace, &srv.Name, &srv.Transport, &command,
		&srv.Args, &url, &srv.Headers, &srv.Env,
		&srv.TimeoutSec, &srv.Enabled, &createdBy, &srv.CreatedAt, &srv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	srv.WorkspaceID = derefStr(workspace)
	srv.Command = derefStr(command)
	srv.URL = derefStr(url)
	srv.CreatedBy = derefStr(createdBy)
	return &srv, nil
}
