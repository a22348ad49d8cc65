// Package identity resolves channel user ids to canonical users,
// provisions workspaces and binds conversation threads to them.
// Every inbound message passes through here before any storage or
// tool code runs.
package identity

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/nextlevelbuilder/goaide/internal/store"
)

// Chat types carried by channel adapters.
const (
	ChatDirect = "direct"
	ChatGroup  = "group"
	ChatPublic = "public"
)

// maxAliasDepth bounds alias chain walks. Chains longer than this are
// treated like cycles.
const maxAliasDepth = 10

// Binding is the identity outcome for one inbound message.
type Binding struct {
	UserID      string // canonical user id after alias resolution
	WorkspaceID string // workspace the thread is bound to
}

// BindRequest describes an inbound thread to bind.
type BindRequest struct {
	ThreadID  string
	UserID    string // user id as seen on the channel, possibly an alias
	ChatType  string // direct (default), group or public
	GroupID   string // chat group id, required for group chats
	GroupName string // optional display name for a new group workspace
}

// Resolver implements identity resolution and workspace access checks
// on top of a store.IdentityStore.
type Resolver struct {
	store store.IdentityStore
}

func NewResolver(st store.IdentityStore) *Resolver {
	return &Resolver{store: st}
}

// ResolveAlias follows the alias chain from id to the canonical user.
// A cycle anywhere in the chain resolves to the original input id so a
// bad mapping can never lock a user out; it is logged, not surfaced.
func (r *Resolver) ResolveAlias(ctx context.Context, id string) (string, error) {
	seen := map[string]bool{id: true}
	current := id
	for i := 0; i < maxAliasDepth; i++ {
		next, err := r.store.GetAlias(ctx, current)
		if err != nil {
			return "", fmt.Errorf("resolve alias %s: %w", id, err)
		}
		if next == "" {
			return current, nil
		}
		if seen[next] {
			slog.Warn("identity.alias_cycle", "id", id, "at", next)
			return id, nil
		}
		seen[next] = true
		current = next
	}
	slog.Warn("identity.alias_chain_too_long", "id", id, "depth", maxAliasDepth)
	return id, nil
}

// EnsureWorkspace returns the canonical user's individual workspace,
// creating it on first contact. Concurrent callers converge on one
// workspace; a loser's freshly created row is simply never linked.
func (r *Resolver) EnsureWorkspace(ctx context.Context, canonicalUserID string) (*store.Workspace, error) {
	if err := store.ValidateUserID(canonicalUserID); err != nil {
		return nil, err
	}
	if err := r.store.EnsureUser(ctx, canonicalUserID); err != nil {
		return nil, fmt.Errorf("ensure user %s: %w", canonicalUserID, err)
	}

	existing, err := r.store.UserWorkspace(ctx, canonicalUserID)
	if err != nil {
		return nil, err
	}
	if existing != "" {
		return r.store.GetWorkspace(ctx, existing)
	}

	ws := &store.Workspace{
		ID:          newWorkspaceID(),
		Type:        store.WorkspaceIndividual,
		Name:        "My Workspace",
		OwnerUserID: canonicalUserID,
	}
	if err := r.store.CreateWorkspace(ctx, ws); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	if err := r.store.LinkUserWorkspace(ctx, canonicalUserID, ws.ID); err != nil {
		return nil, fmt.Errorf("link workspace: %w", err)
	}

	// Re-read: another writer may have won the link.
	winner, err := r.store.UserWorkspace(ctx, canonicalUserID)
	if err != nil {
		return nil, err
	}
	if winner != "" && winner != ws.ID {
		return r.store.GetWorkspace(ctx, winner)
	}
	slog.Info("identity.workspace_created", "workspace", ws.ID, "user", canonicalUserID)
	return ws, nil
}

// EnsureGroupWorkspace returns the group's shared workspace, creating
// it on first contact with the group.
func (r *Resolver) EnsureGroupWorkspace(ctx context.Context, groupID, name string) (*store.Workspace, error) {
	if groupID == "" {
		return nil, fmt.Errorf("group id is empty")
	}
	existing, err := r.store.GroupWorkspace(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if existing != "" {
		return r.store.GetWorkspace(ctx, existing)
	}

	if name == "" {
		name = "Group " + groupID
	}
	ws := &store.Workspace{
		ID:           newWorkspaceID(),
		Type:         store.WorkspaceGroup,
		Name:         name,
		OwnerGroupID: groupID,
	}
	if err := r.store.CreateWorkspace(ctx, ws); err != nil {
		return nil, fmt.Errorf("create group workspace: %w", err)
	}
	if err := r.store.LinkGroupWorkspace(ctx, groupID, ws.ID); err != nil {
		return nil, fmt.Errorf("link group workspace: %w", err)
	}

	winner, err := r.store.GroupWorkspace(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if winner != "" && winner != ws.ID {
		return r.store.GetWorkspace(ctx, winner)
	}
	slog.Info("identity.group_workspace_created", "workspace", ws.ID, "group", groupID)
	return ws, nil
}

// EnsurePublicWorkspace returns the single shared public workspace.
func (r *Resolver) EnsurePublicWorkspace(ctx context.Context) (*store.Workspace, error) {
	id, err := r.store.EnsurePublicWorkspace(ctx)
	if err != nil {
		return nil, err
	}
	return r.store.GetWorkspace(ctx, id)
}

// BindThread resolves the sender, provisions the right workspace for
// the chat type and binds the thread to it. The first binding a thread
// ever gets is permanent; later calls return the original binding even
// if the request would now pick a different workspace.
func (r *Resolver) BindThread(ctx context.Context, req BindRequest) (*Binding, error) {
	if req.ThreadID == "" {
		return nil, fmt.Errorf("thread id is empty")
	}
	canonical, err := r.ResolveAlias(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	var ws *store.Workspace
	switch req.ChatType {
	case ChatGroup:
		if err := store.ValidateUserID(canonical); err != nil {
			return nil, err
		}
		if err := r.store.EnsureUser(ctx, canonical); err != nil {
			return nil, err
		}
		ws, err = r.EnsureGroupWorkspace(ctx, req.GroupID, req.GroupName)
	case ChatPublic:
		ws, err = r.EnsurePublicWorkspace(ctx)
	default:
		ws, err = r.EnsureWorkspace(ctx, canonical)
	}
	if err != nil {
		return nil, err
	}

	bound, err := r.store.BindThread(ctx, req.ThreadID, ws.ID)
	if err != nil {
		return nil, fmt.Errorf("bind thread %s: %w", req.ThreadID, err)
	}
	if bound != ws.ID {
		slog.Debug("identity.thread_already_bound", "thread", req.ThreadID, "workspace", bound)
	}
	return &Binding{UserID: canonical, WorkspaceID: bound}, nil
}

// ThreadWorkspace returns the workspace a thread is bound to, or ""
// when the thread has never been seen.
func (r *Resolver) ThreadWorkspace(ctx context.Context, threadID string) (string, error) {
	return r.store.ThreadWorkspace(ctx, threadID)
}

// CanAccess reports whether userID may perform action on the
// workspace. Sources are consulted in precedence order: ownership,
// explicit membership, group membership, public read, ACL grants.
// A source that does not grant falls through to the next.
func (r *Resolver) CanAccess(ctx context.Context, userID, workspaceID, action string) (bool, error) {
	ws, err := r.store.GetWorkspace(ctx, workspaceID)
	if err == store.ErrNotFound {
		return false, ErrWorkspaceNotFound
	}
	if err != nil {
		return false, err
	}

	if ws.OwnerUserID != "" && ws.OwnerUserID == userID {
		return true, nil
	}

	role, err := r.store.MemberRole(ctx, workspaceID, userID)
	if err != nil {
		return false, err
	}
	if store.RoleAllows(role, action) {
		return true, nil
	}

	if ws.OwnerGroupID != "" {
		groupRole, err := r.store.GroupRole(ctx, ws.OwnerGroupID, userID)
		if err != nil {
			return false, err
		}
		switch groupRole {
		case "admin":
			return true, nil
		case "member":
			if action == store.ActionRead {
				return true, nil
			}
		}
	}

	if ws.Type == store.WorkspacePublic && action == store.ActionRead {
		return true, nil
	}

	permission, err := r.store.GrantedPermission(ctx, workspaceID, userID, time.Now())
	if err != nil {
		return false, err
	}
	if store.RoleAllows(store.PermissionToRole(permission), action) {
		return true, nil
	}

	return false, nil
}

// Authorize is CanAccess with denial folded into the error.
func (r *Resolver) Authorize(ctx context.Context, userID, workspaceID, action string) error {
	ok, err := r.CanAccess(ctx, userID, workspaceID, action)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s on %s", ErrPermissionDenied, action, workspaceID)
	}
	return nil
}

// ListAccessibleWorkspaces unions every access source for the user:
// the owned individual workspace, explicit memberships, group
// workspaces and unexpired ACL grants. Duplicates collapse to the
// strongest role.
func (r *Resolver) ListAccessibleWorkspaces(ctx context.Context, userID string) ([]store.WorkspaceAccess, error) {
	byID := make(map[string]store.WorkspaceAccess)

	ownID, err := r.store.UserWorkspace(ctx, userID)
	if err != nil {
		return nil, err
	}
	if ownID != "" {
		ws, err := r.store.GetWorkspace(ctx, ownID)
		if err != nil && err != store.ErrNotFound {
			return nil, err
		}
		if ws != nil {
			byID[ws.ID] = store.WorkspaceAccess{Workspace: *ws, Role: store.RoleAdmin}
		}
	}

	lists := []func(context.Context, string) ([]store.WorkspaceAccess, error){
		r.store.ListMemberWorkspaces,
		r.store.ListGroupWorkspaces,
	}
	for _, list := range lists {
		entries, err := list(ctx, userID)
		if err != nil {
			return nil, err
		}
		mergeAccess(byID, entries)
	}

	granted, err := r.store.ListGrantedWorkspaces(ctx, userID, time.Now())
	if err != nil {
		return nil, err
	}
	mergeAccess(byID, granted)

	out := make([]store.WorkspaceAccess, 0, len(byID))
	for _, wa := range byID {
		out = append(out, wa)
	}
	sortByCreation(out)
	return out, nil
}

func mergeAccess(byID map[string]store.WorkspaceAccess, entries []store.WorkspaceAccess) {
	for _, wa := range entries {
		prev, ok := byID[wa.Workspace.ID]
		if !ok {
			byID[wa.Workspace.ID] = wa
			continue
		}
		prev.Role = store.MaxRole(prev.Role, wa.Role)
		byID[wa.Workspace.ID] = prev
	}
}

func sortByCreation(list []store.WorkspaceAccess) {
	sort.Slice(list, func(i, j int) bool {
		a, b := &list[i].Workspace, &list[j].Workspace
		if a.CreatedAt.Equal(b.CreatedAt) {
			return a.ID < b.ID
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
}

func newWorkspaceID() string {
	return "ws:" + store.GenNewID().String()
}
