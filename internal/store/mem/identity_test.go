package mem

import (
	"context"
	"testing"
	"time"

	"github.com/nextlevelbuilder/goaide/internal/store"
)

func TestBindThreadFirstWriteWins(t *testing.T) {
	s := NewMemIdentityStore()
	ctx := context.Background()

	got, err := s.BindThread(ctx, "telegram:100", "ws:aaa")
	if err != nil {
		t.Fatalf("BindThread: %v", err)
	}
	if got != "ws:aaa" {
		t.Errorf("first bind = %q, want %q", got, "ws:aaa")
	}

	got, err = s.BindThread(ctx, "telegram:100", "ws:bbb")
	if err != nil {
		t.Fatalf("BindThread: %v", err)
	}
	if got != "ws:aaa" {
		t.Errorf("second bind = %q, want original %q", got, "ws:aaa")
	}

	bound, err := s.ThreadWorkspace(ctx, "telegram:100")
	if err != nil {
		t.Fatalf("ThreadWorkspace: %v", err)
	}
	if bound != "ws:aaa" {
		t.Errorf("ThreadWorkspace = %q, want %q", bound, "ws:aaa")
	}
}

func TestAliasRoundTrip(t *testing.T) {
	s := NewMemIdentityStore()
	ctx := context.Background()

	got, err := s.GetAlias(ctx, "discord:42")
	if err != nil {
		t.Fatalf("GetAlias: %v", err)
	}
	if got != "" {
		t.Errorf("GetAlias before put = %q, want empty", got)
	}

	if err := s.PutAlias(ctx, "discord:42", "telegram:7"); err != nil {
		t.Fatalf("PutAlias: %v", err)
	}
	got, err = s.GetAlias(ctx, "discord:42")
	if err != nil {
		t.Fatalf("GetAlias: %v", err)
	}
	if got != "telegram:7" {
		t.Errorf("GetAlias = %q, want %q", got, "telegram:7")
	}
}

func TestLinkUserWorkspaceIdempotent(t *testing.T) {
	s := NewMemIdentityStore()
	ctx := context.Background()

	if err := s.LinkUserWorkspace(ctx, "u1", "ws:one"); err != nil {
		t.Fatalf("LinkUserWorkspace: %v", err)
	}
	if err := s.LinkUserWorkspace(ctx, "u1", "ws:two"); err != nil {
		t.Fatalf("LinkUserWorkspace: %v", err)
	}

	got, err := s.UserWorkspace(ctx, "u1")
	if err != nil {
		t.Fatalf("UserWorkspace: %v", err)
	}
	if got != "ws:one" {
		t.Errorf("UserWorkspace = %q, want first link %q", got, "ws:one")
	}
}

func TestEnsurePublicWorkspace(t *testing.T) {
	s := NewMemIdentityStore()
	ctx := context.Background()

	id, err := s.EnsurePublicWorkspace(ctx)
	if err != nil {
		t.Fatalf("EnsurePublicWorkspace: %v", err)
	}
	if id != store.PublicWorkspaceID {
		t.Errorf("id = %q, want %q", id, store.PublicWorkspaceID)
	}

	ws, err := s.GetWorkspace(ctx, store.PublicWorkspaceID)
	if err != nil {
		t.Fatalf("GetWorkspace: %v", err)
	}
	if ws.Type != store.WorkspacePublic || ws.OwnerSystemID != "public" {
		t.Errorf("public workspace = %+v", ws)
	}

	// Second call must not recreate.
	created := ws.CreatedAt
	if _, err := s.EnsurePublicWorkspace(ctx); err != nil {
		t.Fatalf("EnsurePublicWorkspace again: %v", err)
	}
	ws2, _ := s.GetWorkspace(ctx, store.PublicWorkspaceID)
	if !ws2.CreatedAt.Equal(created) {
		t.Error("EnsurePublicWorkspace recreated the workspace")
	}
}

func TestGrantedPermissionExpiry(t *testing.T) {
	s := NewMemIdentityStore()
	ctx := context.Background()
	now := time.Now()

	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name      string
		expiresAt *time.Time
		want      string
	}{
		{"no expiry", nil, "write"},
		{"future expiry", &future, "write"},
		{"expired", &past, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Grant(ctx, &store.ACLGrant{
				WorkspaceID:  "ws:x",
				TargetUserID: "u1",
				Permission:   "write",
				ExpiresAt:    tt.expiresAt,
			})
			if err != nil {
				t.Fatalf("Grant: %v", err)
			}
			got, err := s.GrantedPermission(ctx, "ws:x", "u1", now)
			if err != nil {
				t.Fatalf("GrantedPermission: %v", err)
			}
			if got != tt.want {
				t.Errorf("GrantedPermission = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRevoke(t *testing.T) {
	s := NewMemIdentityStore()
	ctx := context.Background()

	if err := s.Grant(ctx, &store.ACLGrant{WorkspaceID: "ws:x", TargetUserID: "u1", Permission: "read"}); err != nil {
		t.Fatalf("Grant: %v", err)
	}
	if err := s.Revoke(ctx, "ws:x", "u1"); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	got, err := s.GrantedPermission(ctx, "ws:x", "u1", time.Now())
	if err != nil {
		t.Fatalf("GrantedPermission: %v", err)
	}
	if got != "" {
		t.Errorf("GrantedPermission after revoke = %q, want empty", got)
	}
}

func TestListGroupWorkspacesRoleMapping(t *testing.T) {
	s := NewMemIdentityStore()
	ctx := context.Background()

	ws := &store.Workspace{ID: "ws:g", Type: store.WorkspaceGroup, Name: "Team", OwnerGroupID: "grp:1"}
	if err := s.CreateWorkspace(ctx, ws); err != nil {
		t.Fatalf("CreateWorkspace: %v", err)
	}
	if err := s.AddGroupMember(ctx, "grp:1", "admin-user", "admin"); err != nil {
		t.Fatalf("AddGroupMember: %v", err)
	}
	if err := s.AddGroupMember(ctx, "grp:1", "plain-user", "member"); err != nil {
		t.Fatalf("AddGroupMember: %v", err)
	}

	tests := []struct {
		user string
		want string
	}{
		{"admin-user", store.RoleAdmin},
		{"plain-user", store.RoleReader},
	}
	for _, tt := range tests {
		list, err := s.ListGroupWorkspaces(ctx, tt.user)
		if err != nil {
			t.Fatalf("ListGroupWorkspaces(%q): %v", tt.user, err)
		}
		if len(list) != 1 {
			t.Fatalf("ListGroupWorkspaces(%q) returned %d entries, want 1", tt.user, len(list))
		}
		if list[0].Role != tt.want {
			t.Errorf("role for %q = %q, want %q", tt.user, list[0].Role, tt.want)
		}
	}

	list, err := s.ListGroupWorkspaces(ctx, "outsider")
	if err != nil {
		t.Fatalf("ListGroupWorkspaces: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("outsider sees %d group workspaces, want 0", len(list))
	}
}

func TestMemberRoleLifecycle(t *testing.T) {
	s := NewMemIdentityStore()
	ctx := context.Background()

	role, err := s.MemberRole(ctx, "ws:x", "u1")
	if err != nil {
		t.Fatalf("MemberRole: %v", err)
	}
	if role != "" {
		t.Errorf("MemberRole before add = %q, want empty", role)
	}

	if err := s.AddMember(ctx, "ws:x", "u1", store.RoleEditor); err != nil {
		t.Fatalf("AddMember: %v", err)
	}
	role, _ = s.MemberRole(ctx, "ws:x", "u1")
	if role != store.RoleEditor {
		t.Errorf("MemberRole = %q, want %q", role, store.RoleEditor)
	}

	// Re-adding upgrades the role in place.
	if err := s.AddMember(ctx, "ws:x", "u1", store.RoleAdmin); err != nil {
		t.Fatalf("AddMember: %v", err)
	}
	role, _ = s.MemberRole(ctx, "ws:x", "u1")
	if role != store.RoleAdmin {
		t.Errorf("MemberRole after upgrade = %q, want %q", role, store.RoleAdmin)
	}

	if err := s.RemoveMember(ctx, "ws:x", "u1"); err != nil {
		t.Fatalf("RemoveMember: %v", err)
	}
	role, _ = s.MemberRole(ctx, "ws:x", "u1")
	if role != "" {
		t.Errorf("MemberRole after remove = %q, want empty", role)
	}
}
