package pg

import (
	"context"
	"database/sql"
	"time"

	"github.com/nextlevelbuilder/goaide/internal/store"
)

// PGIdentityStore implements store.IdentityStore backed by Postgres.
type PGIdentityStore struct {
	db *sql.DB
}

func NewPGIdentityStore(db *sql.DB) *PGIdentityStore {
	return &PGIdentityStore{db: db}
}

const workspaceSelectCols = `workspace_id, type, name, owner_user_id, owner_group_id, owner_system_id, created_at`

// ============================================================
// Users and aliases
// ============================================================

func (s *PGIdentityStore) EnsureUser(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (user_id, created_at) VALUES ($1, $2)
		 ON CONFLICT (user_id) DO NOTHING`,
		userID, time.Now(),
	)
	return err
}

func (s *PGIdentityStore) GetAlias(ctx context.Context, aliasID string) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id FROM user_aliases WHERE alias_id = $1`, aliasID).Scan(&userID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return userID, nil
}

func (s *PGIdentityStore) PutAlias(ctx context.Context, aliasID, canonicalUserID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_aliases (alias_id, user_id, created_at) VALUES ($1, $2, $3)
		 ON CONFLICT (alias_id) DO UPDATE SET user_id = EXCLUDED.user_id`,
		aliasID, canonicalUserID, time.Now(),
	)
	return err
}

// ============================================================
// Workspaces
// ============================================================

func (s *PGIdentityStore) GetWorkspace(ctx context.Context, workspaceID string) (*store.Workspace, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+workspaceSelectCols+` FROM workspaces WHERE workspace_id = $1`, workspaceID)
	ws, err := scanWorkspaceRow(row)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	return ws, err
}

func (s *PGIdentityStore) CreateWorkspace(ctx context.Context, ws *store.Workspace) error {
	if ws.CreatedAt.IsZero() {
		ws.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO workspaces (workspace_id, type, name, owner_user_id, owner_group_id, owner_system_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (workspace_id) DO NOTHING`,
		ws.ID, ws.Type, ws.Name,
		nilStr(ws.OwnerUserID), nilStr(ws.OwnerGroupID), nilStr(ws.OwnerSystemID),
		ws.CreatedAt,
	)
	return err
}

func (s *PGIdentityStore) UserWorkspace(ctx context.Context, userID string) (string, error) {
	var workspaceID string
	err := s.db.QueryRowContext(ctx,
		`SELECT workspace_id FROM user_workspaces WHERE user_id = $1`, userID).Scan(&workspaceID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return workspaceID, nil
}

func (s *PGIdentityStore) LinkUserWorkspace(ctx context.Context, userID, workspaceID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_workspaces (user_id, workspace_id) VALUES ($1, $2)
		 ON CONFLICT (user_id) DO NOTHING`,
		userID, workspaceID,
	)
	return err
}

func (s *PGIdentityStore) EnsurePublicWorkspace(ctx context.Context) (string, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO workspaces (workspace_id, type, name, owner_system_id, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (workspace_id) DO NOTHING`,
		store.PublicWorkspaceID, store.WorkspacePublic, "Public", "public", time.Now(),
	)
	if err != nil {
		return "", err
	}
	return store.PublicWorkspaceID, nil
}

// ============================================================
// Thread bindings
// ============================================================

// BindThread records the first workspace a thread touches. Concurrent
// binds race on the insert; whoever loses reads back the winner.
func (s *PGIdentityStore) BindThread(ctx context.Context, threadID, workspaceID string) (string, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO thread_workspaces (thread_id, workspace_id, created_at) VALUES ($1, $2, $3)
		 ON CONFLICT (thread_id) DO NOTHING`,
		threadID, workspaceID, time.Now(),
	)
	if err != nil {
		return "", err
	}
	var bound string
	err = s.db.QueryRowContext(ctx,
		`SELECT workspace_id FROM thread_workspaces WHERE thread_id = $1`, threadID).Scan(&bound)
	if err != nil {
		return "", err
	}
	return bound, nil
}

func (s *PGIdentityStore) ThreadWorkspace(ctx context.Context, threadID string) (string, error) {
	var workspaceID string
	err := s.db.QueryRowContext(ctx,
		`SELECT workspace_id FROM thread_workspaces WHERE thread_id = $1`, threadID).Scan(&workspaceID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return workspaceID, nil
}

// ============================================================
// Explicit membership
// ============================================================

func (s *PGIdentityStore) AddMember(ctx context.Context, workspaceID, userID, role string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO workspace_members (workspace_id, user_id, role, added_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (workspace_id, user_id) DO UPDATE SET role = EXCLUDED.role`,
		workspaceID, userID, role, time.Now(),
	)
	return err
}

func (s *PGIdentityStore) RemoveMember(ctx context.Context, workspaceID, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM workspace_members WHERE workspace_id = $1 AND user_id = $2`,
		workspaceID, userID,
	)
	return err
}

func (s *PGIdentityStore) MemberRole(ctx context.Context, workspaceID, userID string) (string, error) {
	var role string
	err := s.db.QueryRowContext(ctx,
		`SELECT role FROM workspace_members WHERE workspace_id = $1 AND user_id = $2`,
		workspaceID, userID).Scan(&role)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return role, nil
}

func (s *PGIdentityStore) ListMemberWorkspaces(ctx context.Context, userID string) ([]store.WorkspaceAccess, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT w.workspace_id, w.type, w.name, w.owner_user_id, w.owner_group_id, w.owner_system_id, w.created_at, m.role
		 FROM workspace_members m
		 JOIN workspaces w ON w.workspace_id = m.workspace_id
		 WHERE m.user_id = $1
		 ORDER BY w.created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAccessRows(rows)
}

// ============================================================
// Group membership
// ============================================================

func (s *PGIdentityStore) AddGroupMember(ctx context.Context, groupID, userID, role string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO group_members (group_id, user_id, role, added_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (group_id, user_id) DO UPDATE SET role = EXCLUDED.role`,
		groupID, userID, role, time.Now(),
	)
	return err
}

func (s *PGIdentityStore) GroupRole(ctx context.Context, groupID, userID string) (string, error) {
	var role string
	err := s.db.QueryRowContext(ctx,
		`SELECT role FROM group_members WHERE group_id = $1 AND user_id = $2`,
		groupID, userID).Scan(&role)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return role, nil
}

func (s *PGIdentityStore) LinkGroupWorkspace(ctx context.Context, groupID, workspaceID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO group_workspaces (group_id, workspace_id) VALUES ($1, $2)
		 ON CONFLICT (group_id) DO NOTHING`,
		groupID, workspaceID,
	)
	return err
}

func (s *PGIdentityStore) GroupWorkspace(ctx context.Context, groupID string) (string, error) {
	var workspaceID string
	err := s.db.QueryRowContext(ctx,
		`SELECT workspace_id FROM group_workspaces WHERE group_id = $1`, groupID).Scan(&workspaceID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return workspaceID, nil
}

// ListGroupWorkspaces resolves workspaces owned by groups the user
// belongs to. Group admins hold the admin role on the workspace,
// plain members read.
func (s *PGIdentityStore) ListGroupWorkspaces(ctx context.Context, userID string) ([]store.WorkspaceAccess, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT w.workspace_id, w.type, w.name, w.owner_user_id, w.owner_group_id, w.owner_system_id, w.created_at,
		 CASE WHEN gm.role = 'admin' THEN 'admin' ELSE 'reader' END AS role
		 FROM group_members gm
		 JOIN workspaces w ON w.owner_group_id = gm.group_id
		 WHERE gm.user_id = $1
		 ORDER BY w.created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAccessRows(rows)
}

// ============================================================
// ACL grants
// ============================================================

func (s *PGIdentityStore) Grant(ctx context.Context, g *store.ACLGrant) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO workspace_acl (workspace_id, target_user_id, permission, granted_by, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (workspace_id, target_user_id)
		 DO UPDATE SET permission = EXCLUDED.permission, granted_by = EXCLUDED.granted_by,
		               expires_at = EXCLUDED.expires_at, created_at = EXCLUDED.created_at`,
		g.WorkspaceID, g.TargetUserID, g.Permission,
		nilStr(g.GrantedBy), nilTime(g.ExpiresAt), time.Now(),
	)
	return err
}

func (s *PGIdentityStore) Revoke(ctx context.Context, workspaceID, targetUserID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM workspace_acl WHERE workspace_id = $1 AND target_user_id = $2`,
		workspaceID, targetUserID,
	)
	return err
}

func (s *PGIdentityStore) GrantedPermission(ctx context.Context, workspaceID, userID string, now time.Time) (string, error) {
	var permission string
	err := s.db.QueryRowContext(ctx,
		`SELECT permission FROM workspace_acl
		 WHERE workspace_id = $1 AND target_user_id = $2
		   AND (expires_at IS NULL OR expires_at > $3)
		 ORDER BY CASE permission WHEN 'admin' THEN 3 WHEN 'write' THEN 2 WHEN 'read' THEN 1 ELSE 0 END DESC
		 LIMIT 1`,
		workspaceID, userID, now).Scan(&permission)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return permission, nil
}

func (s *PGIdentityStore) ListGrantedWorkspaces(ctx context.Context, userID string, now time.Time) ([]store.WorkspaceAccess, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT w.workspace_id, w.type, w.name, w.owner_user_id, w.owner_group_id, w.owner_system_id, w.created_at, a.permission
		 FROM workspace_acl a
		 JOIN workspaces w ON w.workspace_id = a.workspace_id
		 WHERE a.target_user_id = $1
		   AND (a.expires_at IS NULL OR a.expires_at > $2)
		 ORDER BY w.created_at`, userID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.WorkspaceAccess
	for rows.Next() {
		var wa store.WorkspaceAccess
		var ownerUser, ownerGroup, ownerSystem *string
		var permission string
		if err := rows.Scan(
			&wa.Workspace.ID, &wa.Workspace.Type, &wa.Workspace.Name,
			&ownerUser, &ownerGroup, &ownerSystem, &wa.Workspace.CreatedAt,
			&permission,
		); err != nil {
			return nil, err
		}
		wa.Workspace.OwnerUserID = derefStr(ownerUser)
		wa.Workspace.OwnerGroupID = derefStr(ownerGroup)
		wa.Workspace.OwnerSystemID = derefStr(ownerSystem)
		wa.Role = store.PermissionToRole(permission)
		out = append(out, wa)
	}
	return out, rows.Err()
}

// ============================================================
// Scan helpers
// ============================================================

func scanWorkspaceRow(row *sql.Row) (*store.Workspace, error) {
	var ws store.Workspace
	var ownerUser, ownerGroup, ownerSystem *string
	err := row.Scan(
		&ws.ID, &ws.Type, &ws.Name,
		&ownerUser, &ownerGroup, &ownerSystem, &ws.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	ws.OwnerUserID = derefStr(ownerUser)
	ws.OwnerGroupID = derefStr(ownerGroup)
	ws.OwnerSystemID = derefStr(ownerSystem)
	return &ws, nil
}

func scanAccessRows(rows *sql.Rows) ([]store.WorkspaceAccess, error) {
	var out []store.WorkspaceAccess
	for rows.Next() {
		var wa store.WorkspaceAccess
		var ownerUser, ownerGroup, ownerSystem *string
		if err := rows.Scan(
			&wa.Workspace.ID, &wa.Workspace.Type, &wa.Workspace.Name,
			&ownerUser, &ownerGroup, &ownerSystem, &wa.Workspace.CreatedAt,
			&wa.Role,
		); err != nil {
			return nil, err
		}
		wa.Workspace.OwnerUserID = derefStr(ownerUser)
		wa.Workspace.OwnerGroupID = derefStr(ownerGroup)
		wa.Workspace.OwnerSystemID = derefStr(ownerSystem)
		out = append(out, wa)
	}
	return out, rows.Err()
}
