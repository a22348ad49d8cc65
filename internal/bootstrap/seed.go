// Package bootstrap prepares the data root on startup: it ensures the
// shared public workspace exists and seeds fresh workspaces with a
// starter notes file.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/nextlevelbuilder/goaide/internal/identity"
	"github.com/nextlevelbuilder/goaide/internal/workspace"
)

// NotesFile is the starter file dropped into a brand-new workspace's
// file sandbox so list_files never comes up empty on first contact.
const NotesFile = "NOTES.md"

const notesContent = `# Notes

This folder is your assistant's workspace. Files it reads and writes
for you live here. Feel free to add your own.
`

// Seed ensures the public workspace exists and its directory tree is
// on disk. Called once at startup, before any channel starts.
func Seed(ctx context.Context, resolver *identity.Resolver, router *workspace.Router) error {
	ws, err := resolver.EnsurePublicWorkspace(ctx)
	if err != nil {
		return fmt.Errorf("ensure public workspace: %w", err)
	}
	if err := SeedWorkspaceFiles(router, ws.ID); err != nil {
		return err
	}
	slog.Info("bootstrap: data root ready", "root", router.Root(), "public_workspace", ws.ID)
	return nil
}

// SeedWorkspaceFiles creates the workspace directory tree and writes
// the starter file if the sandbox is empty. Existing files are never
// overwritten.
func SeedWorkspaceFiles(router *workspace.Router, workspaceID string) error {
	filesRoot, err := router.FilesRoot(workspaceID)
	if err != nil {
		return fmt.Errorf("workspace %s: %w", workspaceID, err)
	}
	created, err := seedFile(filepath.Join(filesRoot, NotesFile), notesContent)
	if err != nil {
		slog.Warn("bootstrap: seed starter file failed", "workspace", workspaceID, "error", err)
		return nil
	}
	if created {
		slog.Debug("bootstrap: seeded starter file", "workspace", workspaceID)
	}
	return nil
}

// seedFile writes content at path unless the file already exists.
func seedFile(path, content string) (bool, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return false, nil
		}
		return false, err
	}
	defer f.Close()
	if _, err := f.WriteString(content); err != nil {
		return false, err
	}
	return true, nil
}
