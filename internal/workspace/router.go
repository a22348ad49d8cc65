// Package workspace routes storage to per-workspace directories.
//
// Every workspace owns a directory under <root>/workspaces/ with a
// fixed layout:
//
//	data/workspaces/{sanitized-id}/
//	  files/        user files (sandboxed)
//	  db/db.sqlite  tabular store
//	  kb/           vector knowledge base
//	  mem/mem.db    memories and instincts
//	  reminders/
//	  workflows/
//
// The Router derives these paths, creates them on first access, and
// owns the embedded database handles that live under them. Requests
// carry the bound workspace id on their context (internal/store);
// nothing in this package reads process globals.
package workspace

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/philippgille/chromem-go"

	"github.com/nextlevelbuilder/goaide/internal/config"
)

// ErrNoWorkspace is returned when a request context carries no bound
// workspace id. Channels bind threads before dispatching tools, so
// hitting this means a caller skipped the binding step.
var ErrNoWorkspace = errors.New("no workspace bound to context")

// Router derives per-workspace storage paths and caches the embedded
// database handles opened under them.
type Router struct {
	root     string // expanded data root, e.g. /home/u/.goaide/data
	legacy   bool   // consult pre-workspace per-thread dirs on reads
	allowed  []string
	maxBytes int64

	mu      sync.Mutex
	tabular map[string]*sql.DB     // workspace id -> db/db.sqlite
	memory  map[string]*sql.DB     // workspace id -> mem/mem.db
	vectors map[string]*chromem.DB // workspace id -> kb/
}

// NewRouter builds a Router from the storage config.
func NewRouter(cfg config.StorageConfig) *Router {
	return &Router{
		root:     config.ExpandHome(cfg.Root),
		legacy:   cfg.LegacyThreadDirs,
		allowed:  cfg.AllowedFileExtensions,
		maxBytes: cfg.MaxFileBytes(),
		tabular:  make(map[string]*sql.DB),
		memory:   make(map[string]*sql.DB),
		vectors:  make(map[string]*chromem.DB),
	}
}

// Root returns the data root the router was built with.
func (r *Router) Root() string { return r.root }

// Sanitize makes an id safe for use as a directory name. Colons,
// slashes, at-signs and backslashes all become underscores, so
// "telegram:123" and "email:a@b.com" map to distinct flat names.
func Sanitize(id string) string {
	replacer := strings.NewReplacer(":", "_", "/", "_", "@", "_", "\\", "_")
	return replacer.Replace(id)
}

// Dir returns the workspace's root directory, creating it with
// parents on first access.
func (r *Router) Dir(workspaceID string) (string, error) {
	if workspaceID == "" {
		return "", fmt.Errorf("workspace id is empty")
	}
	dir := filepath.Join(r.root, "workspaces", Sanitize(workspaceID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create workspace dir: %w", err)
	}
	return dir, nil
}

func (r *Router) subdir(workspaceID, name string) (string, error) {
	dir, err := r.Dir(workspaceID)
	if err != nil {
		return "", err
	}
	sub := filepath.Join(dir, name)
	if err := os.MkdirAll(sub, 0o755); err != nil {
		return "", fmt.Errorf("create %s dir: %w", name, err)
	}
	return sub, nil
}

// FilesRoot returns the workspace's sandboxed files directory.
func (r *Router) FilesRoot(workspaceID string) (string, error) {
	return r.subdir(workspaceID, "files")
}

// TabularDBPath returns the path of the workspace's tabular sqlite
// database, creating its parent directory.
func (r *Router) TabularDBPath(workspaceID string) (string, error) {
	dir, err := r.subdir(workspaceID, "db")
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "db.sqlite"), nil
}

// KBDir returns the workspace's vector knowledge base directory.
func (r *Router) KBDir(workspaceID string) (string, error) {
	return r.subdir(workspaceID, "kb")
}

// MemoryDBPath returns the path of the workspace's memory database,
// creating its parent directory.
func (r *Router) MemoryDBPath(workspaceID string) (string, error) {
	dir, err := r.subdir(workspaceID, "mem")
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "mem.db"), nil
}

// RemindersDir returns the workspace's reminders directory.
func (r *Router) RemindersDir(workspaceID string) (string, error) {
	return r.subdir(workspaceID, "reminders")
}

// WorkflowsDir returns the workspace's workflows directory.
func (r *Router) WorkflowsDir(workspaceID string) (string, error) {
	return r.subdir(workspaceID, "workflows")
}

// legacyThreadDir returns the pre-workspace per-thread directory for
// a thread if it exists on disk, "" otherwise. Legacy dirs are never
// created; they are read-only leftovers from the thread-routed layout.
func (r *Router) legacyThreadDir(threadID string) string {
	if !r.legacy || threadID == "" {
		return ""
	}
	dir := filepath.Join(r.root, "users", Sanitize(threadID))
	if info, err := os.Stat(dir); err == nil && info.IsDir() {
		return dir
	}
	return ""
}
