package store

import (
	"context"
	"time"
)

// Workspace kinds.
const (
	WorkspaceIndividual = "individual"
	WorkspaceGroup      = "group"
	WorkspacePublic     = "public"
)

// PublicWorkspaceID is the fixed id of the single shared workspace.
const PublicWorkspaceID = "public"

// Workspace is one storage tenant. Individual workspaces have
// OwnerUserID set; group workspaces have OwnerGroupID; the public
// workspace has OwnerSystemID = "public".
type Workspace struct {
	ID            string    `json:"workspace_id"`
	Type          string    `json:"type"`
	Name          string    `json:"name"`
	OwnerUserID   string    `json:"owner_user_id,omitempty"`
	OwnerGroupID  string    `json:"owner_group_id,omitempty"`
	OwnerSystemID string    `json:"owner_system_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// WorkspaceAccess pairs a workspace with the role a user holds in it.
type WorkspaceAccess struct {
	Workspace Workspace `json:"workspace"`
	Role      string    `json:"role"`
}

// ACLGrant is an external access grant with optional expiry.
type ACLGrant struct {
	WorkspaceID  string     `json:"workspace_id"`
	TargetUserID string     `json:"target_user_id"`
	Permission   string     `json:"permission"` // read | write | admin
	GrantedBy    string     `json:"granted_by,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}

// IdentityStore persists users, aliases, workspaces, thread bindings,
// memberships and ACL grants. Access decisions compose these primitives
// in internal/identity.
type IdentityStore interface {
	// Users and aliases
	EnsureUser(ctx context.Context, userID string) error
	GetAlias(ctx context.Context, aliasID string) (string, error) // "" when absent
	PutAlias(ctx context.Context, aliasID, canonicalUserID string) error

	// Workspaces
	GetWorkspace(ctx context.Context, workspaceID string) (*Workspace, error)
	CreateWorkspace(ctx context.Context, ws *Workspace) error
	UserWorkspace(ctx context.Context, userID string) (string, error) // individual workspace id, "" when absent
	LinkUserWorkspace(ctx context.Context, userID, workspaceID string) error
	EnsurePublicWorkspace(ctx context.Context) (string, error)

	// Thread binding. First write wins; returns the winning workspace id.
	BindThread(ctx context.Context, threadID, workspaceID string) (string, error)
	ThreadWorkspace(ctx context.Context, threadID string) (string, error) // "" when unbound

	// Explicit membership
	AddMember(ctx context.Context, workspaceID, userID, role string) error
	RemoveMember(ctx context.Context, workspaceID, userID string) error
	MemberRole(ctx context.Context, workspaceID, userID string) (string, error) // "" when not a member
	ListMemberWorkspaces(ctx context.Context, userID string) ([]WorkspaceAccess, error)

	// Group membership (chat groups owning shared workspaces)
	AddGroupMember(ctx context.Context, groupID, userID, role string) error
	GroupRole(ctx context.Context, groupID, userID string) (string, error) // "" when not a member
	LinkGroupWorkspace(ctx context.Context, groupID, workspaceID string) error
	GroupWorkspace(ctx context.Context, groupID string) (string, error) // "" when absent
	ListGroupWorkspaces(ctx context.Context, userID string) ([]WorkspaceAccess, error)

	// ACL grants
	Grant(ctx context.Context, g *ACLGrant) error
	Revoke(ctx context.Context, workspaceID, targetUserID string) error
	GrantedPermission(ctx context.Context, workspaceID, userID string, now time.Time) (string, error) // strongest unexpired, "" when none
	ListGrantedWorkspaces(ctx context.Context, userID string, now time.Time) ([]WorkspaceAccess, error)
}
