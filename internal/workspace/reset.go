package workspace

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// onboardingMarker is written by a full reset and consumed by the
// next turn, which re-runs first-contact onboarding when it sees it.
const onboardingMarker = ".force_onboarding"

// Reset scopes.
const (
	ResetTabular = "tdb"
	ResetVector  = "vdb"
	ResetFiles   = "files"
	ResetMemory  = "mem"
	ResetAll     = "all"
)

// Reset wipes part of the workspace bound to ctx. Cached database
// handles for the wiped stores are closed and evicted first, so the
// next access reopens against the fresh directory. A full reset also
// clears reminders and workflows and writes the onboarding marker.
func (r *Router) Reset(ctx context.Context, scope string) error {
	workspaceID, err := boundWorkspace(ctx)
	if err != nil {
		return err
	}
	dir, err := r.Dir(workspaceID)
	if err != nil {
		return err
	}

	switch scope {
	case ResetTabular:
		return r.resetSubdirs(workspaceID, dir, "db")
	case ResetVector:
		return r.resetSubdirs(workspaceID, dir, "kb")
	case ResetFiles:
		return r.resetSubdirs(workspaceID, dir, "files")
	case ResetMemory:
		return r.resetSubdirs(workspaceID, dir, "mem")
	case ResetAll:
		if err := r.resetSubdirs(workspaceID, dir, "db", "kb", "files", "mem", "reminders", "workflows"); err != nil {
			return err
		}
		return r.writeOnboardingMarker(dir)
	default:
		return fmt.Errorf("unknown reset scope %q", scope)
	}
}

func (r *Router) resetSubdirs(workspaceID, dir string, names ...string) error {
	r.evict(workspaceID, names...)
	for _, name := range names {
		sub := filepath.Join(dir, name)
		if err := os.RemoveAll(sub); err != nil {
			return fmt.Errorf("reset %s: %w", name, err)
		}
		if err := os.MkdirAll(sub, 0o755); err != nil {
			return fmt.Errorf("reset %s: %w", name, err)
		}
	}
	slog.Info("workspace.reset", "workspace", workspaceID, "scopes", names)
	return nil
}

// evict closes and drops cached handles whose backing store is being
// wiped. Chromem keeps its state in memory, so dropping the reference
// is enough; sqlite handles must be closed to release the WAL files.
func (r *Router) evict(workspaceID string, names ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, name := range names {
		switch name {
		case "db":
			if db, ok := r.tabular[workspaceID]; ok {
				db.Close()
				delete(r.tabular, workspaceID)
			}
		case "mem":
			if db, ok := r.memory[workspaceID]; ok {
				db.Close()
				delete(r.memory, workspaceID)
			}
		case "kb":
			delete(r.vectors, workspaceID)
		}
	}
}

func (r *Router) writeOnboardingMarker(dir string) error {
	path := filepath.Join(dir, onboardingMarker)
	if err := os.WriteFile(path, []byte{}, 0o644); err != nil {
		return fmt.Errorf("write onboarding marker: %w", err)
	}
	return nil
}

// ConsumeOnboardingMarker reports whether the workspace bound to ctx
// carries the force-onboarding marker, removing it when present.
func (r *Router) ConsumeOnboardingMarker(ctx context.Context) bool {
	workspaceID := boundWorkspaceOrEmpty(ctx)
	if workspaceID == "" {
		return false
	}
	dir := filepath.Join(r.root, "workspaces", Sanitize(workspaceID))
	path := filepath.Join(dir, onboardingMarker)
	if _, err := os.Stat(path); err != nil {
		return false
	}
	if err := os.Remove(path); err != nil {
		slog.Warn("workspace.marker_remove_failed", "workspace", workspaceID, "error", err)
		return false
	}
	return true
}

func boundWorkspaceOrEmpty(ctx context.Context) string {
	id, err := boundWorkspace(ctx)
	if err != nil {
		return ""
	}
	return id
}
