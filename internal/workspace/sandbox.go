package workspace

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nextlevelbuilder/goaide/internal/store"
)

// Sandbox violations. File tools render these as "Security error: ..."
// strings back to the model.
var (
	ErrPathTraversal   = errors.New("path traversal blocked")
	ErrExtensionDenied = errors.New("file type not allowed")
	ErrSizeExceeded    = errors.New("file size exceeds limit")
)

// Sandbox confines file operations to a workspace's files directory.
// Paths are canonicalized through symlinks before the containment
// check, so a link pointing outside the root is caught even when the
// literal path looks clean.
type Sandbox struct {
	root         string
	readFallback string // legacy per-thread files dir, reads only
	allowed      []string
	maxBytes     int64
}

// NewSandbox builds a sandbox rooted at root. allowed is the list of
// permitted file suffixes (".txt", ".md", ...); maxBytes caps a
// single file's size.
func NewSandbox(root string, allowed []string, maxBytes int64) *Sandbox {
	return &Sandbox{root: root, allowed: allowed, maxBytes: maxBytes}
}

// SandboxFor builds the file sandbox for the workspace bound to ctx.
// When legacy thread dirs are enabled and one exists for the bound
// thread, its files directory becomes the read fallback.
func (r *Router) SandboxFor(ctx context.Context) (*Sandbox, error) {
	workspaceID, err := boundWorkspace(ctx)
	if err != nil {
		return nil, err
	}
	root, err := r.FilesRoot(workspaceID)
	if err != nil {
		return nil, err
	}
	sb := NewSandbox(root, r.allowed, r.maxBytes)
	if legacy := r.legacyThreadDir(store.ThreadIDFromContext(ctx)); legacy != "" {
		old := filepath.Join(legacy, "files")
		if info, statErr := os.Stat(old); statErr == nil && info.IsDir() {
			sb.readFallback = old
		}
	}
	return sb, nil
}

// Root returns the sandbox's files root.
func (s *Sandbox) Root() string { return s.root }

// MaxBytes returns the per-file size ceiling.
func (s *Sandbox) MaxBytes() int64 { return s.maxBytes }

// ResolveFile validates a caller-supplied file path and returns its
// canonical location under the sandbox root.
func (s *Sandbox) ResolveFile(name string) (string, error) {
	path, err := s.resolveWithin(s.root, name)
	if err != nil {
		return "", err
	}
	if err := s.checkExtension(path); err != nil {
		return "", err
	}
	return path, nil
}

// ResolveDir validates a caller-supplied directory path. Directories
// carry no suffix, so only containment is checked.
func (s *Sandbox) ResolveDir(name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return s.root, nil
	}
	return s.resolveWithin(s.root, name)
}

// ResolveRead resolves a file path for reading. When the file is
// missing under the workspace root but present in the legacy
// per-thread directory, the legacy path is returned; writes never
// consult the fallback.
func (s *Sandbox) ResolveRead(name string) (string, error) {
	path, err := s.ResolveFile(name)
	if err != nil {
		return "", err
	}
	if _, statErr := os.Stat(path); statErr == nil || s.readFallback == "" {
		return path, nil
	}
	old, fbErr := s.resolveWithin(s.readFallback, name)
	if fbErr != nil {
		return path, nil
	}
	if _, statErr := os.Stat(old); statErr == nil {
		return old, nil
	}
	return path, nil
}

// CheckSize validates a payload against the per-file byte ceiling.
func (s *Sandbox) CheckSize(size int64) error {
	if size > s.maxBytes {
		return fmt.Errorf("%w: %d bytes, limit %d bytes", ErrSizeExceeded, size, s.maxBytes)
	}
	return nil
}

func (s *Sandbox) checkExtension(path string) error {
	ext := strings.ToLower(filepath.Ext(path))
	for _, allowed := range s.allowed {
		if ext == allowed {
			return nil
		}
	}
	return fmt.Errorf("%w: '%s'. Allowed types: %s", ErrExtensionDenied, ext, strings.Join(s.allowed, ", "))
}

// resolveWithin canonicalizes name relative to root and verifies the
// result stays inside. Symlinks are resolved in both the root and the
// candidate; non-existent targets resolve through their deepest
// existing ancestor, and dangling symlinks are validated by target.
func (s *Sandbox) resolveWithin(root, name string) (string, error) {
	var candidate string
	if filepath.IsAbs(name) {
		candidate = filepath.Clean(name)
	} else {
		candidate = filepath.Clean(filepath.Join(root, name))
	}

	rootReal, err := filepath.EvalSymlinks(root)
	if err != nil {
		rootReal = root
	}

	real, err := filepath.EvalSymlinks(candidate)
	if err != nil {
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("%w: cannot resolve %s", ErrPathTraversal, name)
		}
		if info, lerr := os.Lstat(candidate); lerr == nil && info.Mode()&os.ModeSymlink != 0 {
			// Dangling symlink: validate where it points, not where it sits.
			target, rerr := os.Readlink(candidate)
			if rerr != nil {
				return "", fmt.Errorf("%w: cannot resolve symlink %s", ErrPathTraversal, name)
			}
			if !filepath.IsAbs(target) {
				target = filepath.Join(filepath.Dir(candidate), target)
			}
			real, err = resolveThroughAncestors(filepath.Clean(target))
		} else {
			real, err = resolveThroughAncestors(candidate)
		}
		if err != nil {
			return "", fmt.Errorf("%w: cannot resolve %s", ErrPathTraversal, name)
		}
	}

	if !isPathInside(real, rootReal) {
		return "", fmt.Errorf("%w: %s is outside sandbox %s", ErrPathTraversal, real, rootReal)
	}
	return real, nil
}

// isPathInside checks whether child is inside or equal to parent.
func isPathInside(child, parent string) bool {
	if child == parent {
		return true
	}
	return strings.HasPrefix(child, parent+string(filepath.Separator))
}

// resolveThroughAncestors canonicalizes a path that may not exist by
// resolving its deepest existing ancestor and re-appending the
// remaining components. Catches chained symlinks whose intermediate
// targets escape the root.
func resolveThroughAncestors(target string) (string, error) {
	if real, err := filepath.EvalSymlinks(target); err == nil {
		return real, nil
	}

	current := target
	var tail []string
	for {
		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		tail = append([]string{filepath.Base(current)}, tail...)
		current = parent

		if realParent, err := filepath.EvalSymlinks(current); err == nil {
			result := realParent
			for _, component := range tail {
				result = filepath.Join(result, component)
			}
			return result, nil
		}
	}
	return filepath.Clean(target), nil
}
