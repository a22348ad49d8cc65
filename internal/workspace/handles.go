package workspace

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/philippgille/chromem-go"
	_ "modernc.org/sqlite"

	"github.com/nextlevelbuilder/goaide/internal/store"
)

// TabularDB returns the tabular sqlite handle for the workspace bound
// to ctx, opening it on first use. Handles are cached per workspace
// and capped to a single connection; sqlite allows one writer at a
// time and a single connection avoids "database is locked" errors
// under concurrency.
func (r *Router) TabularDB(ctx context.Context) (*sql.DB, error) {
	workspaceID, err := boundWorkspace(ctx)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if db, ok := r.tabular[workspaceID]; ok {
		return db, nil
	}
	path, err := r.TabularDBPath(workspaceID)
	if err != nil {
		return nil, err
	}
	r.migrateLegacyFile(store.ThreadIDFromContext(ctx), filepath.Join("db", "db.sqlite"), path)

	db, err := openSQLite(path)
	if err != nil {
		return nil, err
	}
	r.tabular[workspaceID] = db
	return db, nil
}

// MemoryDB returns the memory sqlite handle for the workspace bound
// to ctx, opening it on first use.
func (r *Router) MemoryDB(ctx context.Context) (*sql.DB, error) {
	workspaceID, err := boundWorkspace(ctx)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if db, ok := r.memory[workspaceID]; ok {
		return db, nil
	}
	path, err := r.MemoryDBPath(workspaceID)
	if err != nil {
		return nil, err
	}
	r.migrateLegacyFile(store.ThreadIDFromContext(ctx), filepath.Join("mem", "mem.db"), path)

	db, err := openSQLite(path)
	if err != nil {
		return nil, err
	}
	r.memory[workspaceID] = db
	return db, nil
}

// VectorDB returns the persistent chromem database for the workspace
// bound to ctx, opening it on first use.
func (r *Router) VectorDB(ctx context.Context) (*chromem.DB, error) {
	workspaceID, err := boundWorkspace(ctx)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if db, ok := r.vectors[workspaceID]; ok {
		return db, nil
	}
	dir, err := r.KBDir(workspaceID)
	if err != nil {
		return nil, err
	}
	db, err := chromem.NewPersistentDB(dir, false)
	if err != nil {
		return nil, fmt.Errorf("open vector db: %w", err)
	}
	r.vectors[workspaceID] = db
	return db, nil
}

// CloseAll closes every cached database handle. Called on shutdown.
func (r *Router) CloseAll() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for id, db := range r.tabular {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close tabular db %s: %w", id, err)
		}
	}
	for id, db := range r.memory {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close memory db %s: %w", id, err)
		}
	}
	r.tabular = make(map[string]*sql.DB)
	r.memory = make(map[string]*sql.DB)
	r.vectors = make(map[string]*chromem.DB)
	return firstErr
}

func boundWorkspace(ctx context.Context) (string, error) {
	workspaceID := store.WorkspaceIDFromContext(ctx)
	if workspaceID == "" {
		return "", ErrNoWorkspace
	}
	return workspaceID, nil
}

// openSQLite opens a modernc sqlite database with WAL journaling and
// a busy timeout, capped to one connection.
func openSQLite(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	return db, nil
}

// migrateLegacyFile copies a database file from the pre-workspace
// per-thread layout into the workspace layout the first time the
// workspace copy is opened. The old file is read exactly once; all
// writes land in the new location.
func (r *Router) migrateLegacyFile(threadID, legacyRel, newPath string) {
	if _, err := os.Stat(newPath); err == nil {
		return // already migrated or created fresh
	}
	legacyDir := r.legacyThreadDir(threadID)
	if legacyDir == "" {
		return
	}
	oldPath := filepath.Join(legacyDir, legacyRel)
	if _, err := os.Stat(oldPath); err != nil {
		return
	}
	if err := copyFile(oldPath, newPath); err != nil {
		slog.Warn("workspace.legacy_migrate_failed", "from", oldPath, "to", newPath, "error", err)
		return
	}
	slog.Info("workspace.legacy_migrated", "from", oldPath, "to", newPath)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}
