// Package mem provides in-memory store implementations for
// single-node deployments and tests. State does not survive restarts;
// configure a Postgres DSN for durable identity and scheduling data.
package mem

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nextlevelbuilder/goaide/internal/store"
)

// MemIdentityStore implements store.IdentityStore in process memory.
type MemIdentityStore struct {
	mu           sync.RWMutex
	users        map[string]time.Time
	aliases      map[string]string
	workspaces   map[string]store.Workspace
	userWS       map[string]string
	threadWS     map[string]string
	members      map[string]map[string]string // workspace id -> user id -> role
	groupMembers map[string]map[string]string // group id -> user id -> role
	groupWS      map[string]string
	acl          map[string]map[string]store.ACLGrant // workspace id -> user id -> grant
}

func NewMemIdentityStore() *MemIdentityStore {
	return &MemIdentityStore{
		users:        make(map[string]time.Time),
		aliases:      make(map[string]string),
		workspaces:   make(map[string]store.Workspace),
		userWS:       make(map[string]string),
		threadWS:     make(map[string]string),
		members:      make(map[string]map[string]string),
		groupMembers: make(map[string]map[string]string),
		groupWS:      make(map[string]string),
		acl:          make(map[string]map[string]store.ACLGrant),
	}
}

func (s *MemIdentityStore) EnsureUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userID]; !ok {
		s.users[userID] = time.Now()
	}
	return nil
}

func (s *MemIdentityStore) GetAlias(_ context.Context, aliasID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.aliases[aliasID], nil
}

func (s *MemIdentityStore) PutAlias(_ context.Context, aliasID, canonicalUserID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aliases[aliasID] = canonicalUserID
	return nil
}

func (s *MemIdentityStore) GetWorkspace(_ context.Context, workspaceID string) (*store.Workspace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ws, ok := s.workspaces[workspaceID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &ws, nil
}

func (s *MemIdentityStore) CreateWorkspace(_ context.Context, ws *store.Workspace) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ws.CreatedAt.IsZero() {
		ws.CreatedAt = time.Now()
	}
	if _, ok := s.workspaces[ws.ID]; !ok {
		s.workspaces[ws.ID] = *ws
	}
	return nil
}

func (s *MemIdentityStore) UserWorkspace(_ context.Context, userID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userWS[userID], nil
}

func (s *MemIdentityStore) LinkUserWorkspace(_ context.Context, userID, workspaceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.userWS[userID]; !ok {
		s.userWS[userID] = workspaceID
	}
	return nil
}

func (s *MemIdentityStore) EnsurePublicWorkspace(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workspaces[store.PublicWorkspaceID]; !ok {
		s.workspaces[store.PublicWorkspaceID] = store.Workspace{
			ID:            store.PublicWorkspaceID,
			Type:          store.WorkspacePublic,
			Name:          "Public",
			OwnerSystemID: "public",
			CreatedAt:     time.Now(),
		}
	}
	return store.PublicWorkspaceID, nil
}

func (s *MemIdentityStore) BindThread(_ context.Context, threadID, workspaceID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if bound, ok := s.threadWS[threadID]; ok {
		return bound, nil
	}
	s.threadWS[threadID] = workspaceID
	return workspaceID, nil
}

func (s *MemIdentityStore) ThreadWorkspace(_ context.Context, threadID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.threadWS[threadID], nil
}

func (s *MemIdentityStore) AddMember(_ context.Context, workspaceID, userID, role string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[workspaceID]
	if !ok {
		m = make(map[string]string)
		s.members[workspaceID] = m
	}
	m[userID] = role
	return nil
}

func (s *MemIdentityStore) RemoveMember(_ context.Context, workspaceID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.members[workspaceID], userID)
	return nil
}

func (s *MemIdentityStore) MemberRole(_ context.Context, workspaceID, userID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.members[workspaceID][userID], nil
}

func (s *MemIdentityStore) ListMemberWorkspaces(_ context.Context, userID string) ([]store.WorkspaceAccess, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []store.WorkspaceAccess
	for wsID, m := range s.members {
		role, ok := m[userID]
		if !ok {
			continue
		}
		ws, ok := s.workspaces[wsID]
		if !ok {
			continue
		}
		out = append(out, store.WorkspaceAccess{Workspace: ws, Role: role})
	}
	sortAccess(out)
	return out, nil
}

func (s *MemIdentityStore) AddGroupMember(_ context.Context, groupID, userID, role string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.groupMembers[groupID]
	if !ok {
		m = make(map[string]string)
		s.groupMembers[groupID] = m
	}
	m[userID] = role
	return nil
}

func (s *MemIdentityStore) GroupRole(_ context.Context, groupID, userID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.groupMembers[groupID][userID], nil
}

func (s *MemIdentityStore) LinkGroupWorkspace(_ context.Context, groupID, workspaceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groupWS[groupID]; !ok {
		s.groupWS[groupID] = workspaceID
	}
	return nil
}

func (s *MemIdentityStore) GroupWorkspace(_ context.Context, groupID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.groupWS[groupID], nil
}

func (s *MemIdentityStore) ListGroupWorkspaces(_ context.Context, userID string) ([]store.WorkspaceAccess, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []store.WorkspaceAccess
	for groupID, m := range s.groupMembers {
		groupRole, ok := m[userID]
		if !ok {
			continue
		}
		for _, ws := range s.workspaces {
			if ws.OwnerGroupID != groupID {
				continue
			}
			role := store.RoleReader
			if groupRole == "admin" {
				role = store.RoleAdmin
			}
			out = append(out, store.WorkspaceAccess{Workspace: ws, Role: role})
		}
	}
	sortAccess(out)
	return out, nil
}

func (s *MemIdentityStore) Grant(_ context.Context, g *store.ACLGrant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.acl[g.WorkspaceID]
	if !ok {
		m = make(map[string]store.ACLGrant)
		s.acl[g.WorkspaceID] = m
	}
	m[g.TargetUserID] = *g
	return nil
}

func (s *MemIdentityStore) Revoke(_ context.Context, workspaceID, targetUserID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.acl[workspaceID], targetUserID)
	return nil
}

func (s *MemIdentityStore) GrantedPermission(_ context.Context, workspaceID, userID string, now time.Time) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.acl[workspaceID][userID]
	if !ok {
		return "", nil
	}
	if g.ExpiresAt != nil && !g.ExpiresAt.After(now) {
		return "", nil
	}
	return g.Permission, nil
}

func (s *MemIdentityStore) ListGrantedWorkspaces(_ context.Context, userID string, now time.Time) ([]store.WorkspaceAccess, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []store.WorkspaceAccess
	for wsID, m := range s.acl {
		g, ok := m[userID]
		if !ok {
			continue
		}
		if g.ExpiresAt != nil && !g.ExpiresAt.After(now) {
			continue
		}
		ws, ok := s.workspaces[wsID]
		if !ok {
			continue
		}
		out = append(out, store.WorkspaceAccess{Workspace: ws, Role: store.PermissionToRole(g.Permission)})
	}
	sortAccess(out)
	return out, nil
}

func sortAccess(list []store.WorkspaceAccess) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].Workspace.CreatedAt.Equal(list[j].Workspace.CreatedAt) {
			return list[i].Workspace.ID < list[j].Workspace.ID
		}
		return list[i].Workspace.CreatedAt.Before(list[j].Workspace.CreatedAt)
	})
}
