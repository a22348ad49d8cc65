package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nextlevelbuilder/goaide/internal/store"
	"github.com/nextlevelbuilder/goaide/internal/store/mem"
)

func newResolver() (*Resolver, store.IdentityStore) {
	st := mem.NewMemIdentityStore()
	return NewResolver(st), st
}

func TestResolveAlias(t *testing.T) {
	r, st := newResolver()
	ctx := context.Background()

	mustPut := func(alias, target string) {
		t.Helper()
		if err := st.PutAlias(ctx, alias, target); err != nil {
			t.Fatalf("PutAlias: %v", err)
		}
	}

	mustPut("discord:1", "telegram:1")
	mustPut("telegram:1", "canonical:1")

	// Cycle: a -> b -> a
	mustPut("cyc:a", "cyc:b")
	mustPut("cyc:b", "cyc:a")

	// Self loop
	mustPut("self:1", "self:1")

	tests := []struct {
		name string
		id   string
		want string
	}{
		{"no alias", "plain:9", "plain:9"},
		{"single hop", "telegram:1", "canonical:1"},
		{"two hops", "discord:1", "canonical:1"},
		{"cycle returns original", "cyc:a", "cyc:a"},
		{"cycle entered midway returns original", "cyc:b", "cyc:b"},
		{"self loop returns original", "self:1", "self:1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.ResolveAlias(ctx, tt.id)
			if err != nil {
				t.Fatalf("ResolveAlias(%q): %v", tt.id, err)
			}
			if got != tt.want {
				t.Errorf("ResolveAlias(%q) = %q, want %q", tt.id, got, tt.want)
			}
		})
	}
}

func TestEnsureWorkspaceIdempotent(t *testing.T) {
	r, _ := newResolver()
	ctx := context.Background()

	first, err := r.EnsureWorkspace(ctx, "telegram:7")
	if err != nil {
		t.Fatalf("EnsureWorkspace: %v", err)
	}
	if first.Type != store.WorkspaceIndividual || first.OwnerUserID != "telegram:7" {
		t.Errorf("workspace = %+v", first)
	}
	if len(first.ID) < 4 || first.ID[:3] != "ws:" {
		t.Errorf("workspace id %q does not carry ws: prefix", first.ID)
	}

	second, err := r.EnsureWorkspace(ctx, "telegram:7")
	if err != nil {
		t.Fatalf("EnsureWorkspace again: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("second EnsureWorkspace = %q, want %q", second.ID, first.ID)
	}
}

func TestEnsureWorkspaceRejectsBadIDs(t *testing.T) {
	r, _ := newResolver()
	ctx := context.Background()

	if _, err := r.EnsureWorkspace(ctx, ""); err == nil {
		t.Error("EnsureWorkspace with empty id succeeded")
	}
	if _, err := r.EnsureWorkspace(ctx, "bad\nid"); err == nil {
		t.Error("EnsureWorkspace with control chars succeeded")
	}
}

func TestBindThreadPerChatType(t *testing.T) {
	r, st := newResolver()
	ctx := context.Background()

	direct, err := r.BindThread(ctx, BindRequest{ThreadID: "telegram:100", UserID: "telegram:7"})
	if err != nil {
		t.Fatalf("BindThread direct: %v", err)
	}
	ws, err := st.GetWorkspace(ctx, direct.WorkspaceID)
	if err != nil {
		t.Fatalf("GetWorkspace: %v", err)
	}
	if ws.Type != store.WorkspaceIndividual {
		t.Errorf("direct chat bound to %q workspace", ws.Type)
	}

	group, err := r.BindThread(ctx, BindRequest{
		ThreadID: "telegram:-500", UserID: "telegram:7",
		ChatType: ChatGroup, GroupID: "tg-group-500", GroupName: "Ops",
	})
	if err != nil {
		t.Fatalf("BindThread group: %v", err)
	}
	gws, _ := st.GetWorkspace(ctx, group.WorkspaceID)
	if gws.Type != store.WorkspaceGroup || gws.OwnerGroupID != "tg-group-500" {
		t.Errorf("group workspace = %+v", gws)
	}
	if gws.Name != "Ops" {
		t.Errorf("group workspace name = %q, want Ops", gws.Name)
	}

	public, err := r.BindThread(ctx, BindRequest{
		ThreadID: "http:u1", UserID: "http:u1", ChatType: ChatPublic,
	})
	if err != nil {
		t.Fatalf("BindThread public: %v", err)
	}
	if public.WorkspaceID != store.PublicWorkspaceID {
		t.Errorf("public bind = %q, want %q", public.WorkspaceID, store.PublicWorkspaceID)
	}
}

func TestBindThreadFirstWriteSticks(t *testing.T) {
	r, _ := newResolver()
	ctx := context.Background()

	first, err := r.BindThread(ctx, BindRequest{ThreadID: "t:1", UserID: "u:1"})
	if err != nil {
		t.Fatalf("BindThread: %v", err)
	}

	// Same thread arriving later as a group chat keeps the original binding.
	second, err := r.BindThread(ctx, BindRequest{
		ThreadID: "t:1", UserID: "u:2", ChatType: ChatGroup, GroupID: "g:1",
	})
	if err != nil {
		t.Fatalf("BindThread second: %v", err)
	}
	if second.WorkspaceID != first.WorkspaceID {
		t.Errorf("rebind moved thread: %q -> %q", first.WorkspaceID, second.WorkspaceID)
	}
}

func TestBindThreadResolvesAliasFirst(t *testing.T) {
	r, st := newResolver()
	ctx := context.Background()

	if err := st.PutAlias(ctx, "discord:9", "telegram:9"); err != nil {
		t.Fatalf("PutAlias: %v", err)
	}

	viaTelegram, err := r.BindThread(ctx, BindRequest{ThreadID: "t:tg", UserID: "telegram:9"})
	if err != nil {
		t.Fatalf("BindThread: %v", err)
	}
	viaDiscord, err := r.BindThread(ctx, BindRequest{ThreadID: "t:dc", UserID: "discord:9"})
	if err != nil {
		t.Fatalf("BindThread: %v", err)
	}

	if viaDiscord.UserID != "telegram:9" {
		t.Errorf("canonical user = %q, want telegram:9", viaDiscord.UserID)
	}
	if viaDiscord.WorkspaceID != viaTelegram.WorkspaceID {
		t.Errorf("aliased user got a different workspace: %q vs %q",
			viaDiscord.WorkspaceID, viaTelegram.WorkspaceID)
	}
}

func TestCanAccessPrecedence(t *testing.T) {
	r, st := newResolver()
	ctx := context.Background()
	now := time.Now()
	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)

	owner, err := r.EnsureWorkspace(ctx, "owner:1")
	if err != nil {
		t.Fatalf("EnsureWorkspace: %v", err)
	}
	groupWS, err := r.EnsureGroupWorkspace(ctx, "grp:1", "Team")
	if err != nil {
		t.Fatalf("EnsureGroupWorkspace: %v", err)
	}
	publicWS, err := r.EnsurePublicWorkspace(ctx)
	if err != nil {
		t.Fatalf("EnsurePublicWorkspace: %v", err)
	}

	if err := st.AddMember(ctx, owner.ID, "editor:1", store.RoleEditor); err != nil {
		t.Fatalf("AddMember: %v", err)
	}
	if err := st.AddGroupMember(ctx, "grp:1", "gadmin:1", "admin"); err != nil {
		t.Fatalf("AddGroupMember: %v", err)
	}
	if err := st.AddGroupMember(ctx, "grp:1", "gmember:1", "member"); err != nil {
		t.Fatalf("AddGroupMember: %v", err)
	}
	if err := st.Grant(ctx, &store.ACLGrant{WorkspaceID: owner.ID, TargetUserID: "acl:1", Permission: "write", ExpiresAt: &future}); err != nil {
		t.Fatalf("Grant: %v", err)
	}
	if err := st.Grant(ctx, &store.ACLGrant{WorkspaceID: owner.ID, TargetUserID: "expired:1", Permission: "admin", ExpiresAt: &past}); err != nil {
		t.Fatalf("Grant: %v", err)
	}

	tests := []struct {
		name      string
		user      string
		workspace string
		action    string
		want      bool
	}{
		{"owner writes", "owner:1", owner.ID, store.ActionWrite, true},
		{"owner admins", "owner:1", owner.ID, store.ActionAdmin, true},
		{"editor writes", "editor:1", owner.ID, store.ActionWrite, true},
		{"editor cannot admin", "editor:1", owner.ID, store.ActionAdmin, false},
		{"group admin writes", "gadmin:1", groupWS.ID, store.ActionWrite, true},
		{"group member reads", "gmember:1", groupWS.ID, store.ActionRead, true},
		{"group member cannot write", "gmember:1", groupWS.ID, store.ActionWrite, false},
		{"anyone reads public", "stranger:1", publicWS.ID, store.ActionRead, true},
		{"stranger cannot write public", "stranger:1", publicWS.ID, store.ActionWrite, false},
		{"acl write grant", "acl:1", owner.ID, store.ActionWrite, true},
		{"acl grant capped at permission", "acl:1", owner.ID, store.ActionAdmin, false},
		{"expired grant denies", "expired:1", owner.ID, store.ActionRead, false},
		{"stranger denied", "stranger:1", owner.ID, store.ActionRead, false},
		{"unknown action denied", "owner:1", groupWS.ID, "transfer", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.CanAccess(ctx, tt.user, tt.workspace, tt.action)
			if err != nil {
				t.Fatalf("CanAccess: %v", err)
			}
			if got != tt.want {
				t.Errorf("CanAccess(%q, %q, %q) = %v, want %v",
					tt.user, tt.workspace, tt.action, got, tt.want)
			}
		})
	}
}

func TestCanAccessMissingWorkspace(t *testing.T) {
	r, _ := newResolver()
	_, err := r.CanAccess(context.Background(), "u:1", "ws:nope", store.ActionRead)
	if err != ErrWorkspaceNotFound {
		t.Errorf("CanAccess on missing workspace = %v, want ErrWorkspaceNotFound", err)
	}
}

func TestAuthorize(t *testing.T) {
	r, _ := newResolver()
	ctx := context.Background()

	ws, err := r.EnsureWorkspace(ctx, "owner:1")
	if err != nil {
		t.Fatalf("EnsureWorkspace: %v", err)
	}

	if err := r.Authorize(ctx, "owner:1", ws.ID, store.ActionWrite); err != nil {
		t.Errorf("Authorize owner = %v, want nil", err)
	}
	err = r.Authorize(ctx, "stranger:1", ws.ID, store.ActionWrite)
	if !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("Authorize stranger = %v, want ErrPermissionDenied", err)
	}
}

func TestListAccessibleWorkspacesDedupsHighestRole(t *testing.T) {
	r, st := newResolver()
	ctx := context.Background()
	future := time.Now().Add(time.Hour)

	own, err := r.EnsureWorkspace(ctx, "u:1")
	if err != nil {
		t.Fatalf("EnsureWorkspace: %v", err)
	}
	other, err := r.EnsureWorkspace(ctx, "u:2")
	if err != nil {
		t.Fatalf("EnsureWorkspace: %v", err)
	}

	// u:1 is both a reader member and holds a write grant on the same
	// workspace; the listing must collapse to editor.
	if err := st.AddMember(ctx, other.ID, "u:1", store.RoleReader); err != nil {
		t.Fatalf("AddMember: %v", err)
	}
	if err := st.Grant(ctx, &store.ACLGrant{WorkspaceID: other.ID, TargetUserID: "u:1", Permission: "write", ExpiresAt: &future}); err != nil {
		t.Fatalf("Grant: %v", err)
	}

	list, err := r.ListAccessibleWorkspaces(ctx, "u:1")
	if err != nil {
		t.Fatalf("ListAccessibleWorkspaces: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("list has %d entries, want 2: %+v", len(list), list)
	}

	roles := map[string]string{}
	for _, wa := range list {
		roles[wa.Workspace.ID] = wa.Role
	}
	if roles[own.ID] != store.RoleAdmin {
		t.Errorf("own workspace role = %q, want admin", roles[own.ID])
	}
	if roles[other.ID] != store.RoleEditor {
		t.Errorf("shared workspace role = %q, want editor (max of reader/write-grant)", roles[other.ID])
	}
}
