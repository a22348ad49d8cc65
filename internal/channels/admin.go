package channels

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nextlevelbuilder/goaide/internal/identity"
	"github.com/nextlevelbuilder/goaide/internal/store"
	"github.com/nextlevelbuilder/goaide/internal/workspace"
)

// Admin carries out the channel-side storage operations that bypass
// the agent: /reset commands and inbound upload placement. Both bind
// the thread first, so a command on a never-bound thread creates the
// workspace and acts on the fresh directory.
type Admin struct {
	identity   *identity.Resolver
	workspaces *workspace.Router
}

func NewAdmin(resolver *identity.Resolver, router *workspace.Router) *Admin {
	return &Admin{identity: resolver, workspaces: router}
}

func (a *Admin) bind(ctx context.Context, threadID, userID, chatType string) (context.Context, error) {
	binding, err := a.identity.BindThread(ctx, identity.BindRequest{
		ThreadID: threadID,
		UserID:   userID,
		ChatType: chatType,
	})
	if err != nil {
		return ctx, err
	}
	ctx = store.WithWorkspaceID(ctx, binding.WorkspaceID)
	ctx = store.WithThreadID(ctx, threadID)
	ctx = store.WithUserID(ctx, binding.UserID)
	return ctx, nil
}

// ResetThread wipes the given scope of the thread's workspace.
func (a *Admin) ResetThread(ctx context.Context, threadID, userID, chatType, scope string) error {
	ctx, err := a.bind(ctx, threadID, userID, chatType)
	if err != nil {
		return err
	}
	return a.workspaces.Reset(ctx, scope)
}

// SaveUpload places an inbound file under the thread's files
// directory, validated by the workspace sandbox (extension and size).
// Returns the absolute path of the stored file.
func (a *Admin) SaveUpload(ctx context.Context, threadID, userID, chatType, fileName string, data []byte) (string, error) {
	ctx, err := a.bind(ctx, threadID, userID, chatType)
	if err != nil {
		return "", err
	}
	sandbox, err := a.workspaces.SandboxFor(ctx)
	if err != nil {
		return "", err
	}
	if err := sandbox.CheckSize(int64(len(data))); err != nil {
		return "", err
	}

	rel := filepath.Join(workspace.Sanitize(threadID), filepath.Base(fileName))
	path, err := sandbox.ResolveFile(rel)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write upload: %w", err)
	}
	return path, nil
}
