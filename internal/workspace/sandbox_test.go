package workspace

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nextlevelbuilder/goaide/internal/store"
)

func testSandbox(t *testing.T) *Sandbox {
	t.Helper()
	return NewSandbox(t.TempDir(), []string{".txt", ".md"}, 100)
}

// canonRoot resolves the sandbox root the way resolveWithin does, so
// assertions hold when the temp dir itself sits behind a symlink.
func canonRoot(t *testing.T, root string) string {
	t.Helper()
	real, err := filepath.EvalSymlinks(root)
	if err != nil {
		return root
	}
	return real
}

func TestSandboxResolveFile(t *testing.T) {
	sb := testSandbox(t)

	tests := []struct {
		name    string
		path    string
		wantErr error
	}{
		{"relative inside", "notes.txt", nil},
		{"nested inside", "a/b/notes.md", nil},
		{"dot escape", "../outside.txt", ErrPathTraversal},
		{"deep dot escape", "a/../../outside.txt", ErrPathTraversal},
		{"absolute outside", "/etc/passwd.txt", ErrPathTraversal},
		{"denied extension", "run.exe", ErrExtensionDenied},
		{"no extension", "Makefile", ErrExtensionDenied},
		{"case insensitive extension", "NOTES.TXT", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := sb.ResolveFile(tt.path)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("ResolveFile(%q) = %v, want ok", tt.path, err)
				}
				if root := canonRoot(t, sb.Root()); !strings.HasPrefix(got, root) {
					t.Errorf("resolved path %q escapes root %q", got, root)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ResolveFile(%q) = %v, want %v", tt.path, err, tt.wantErr)
			}
		})
	}
}

func TestSandboxSymlinkEscape(t *testing.T) {
	outside := t.TempDir()
	sb := testSandbox(t)

	secret := filepath.Join(outside, "secret.txt")
	if err := os.WriteFile(secret, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(sb.Root(), "link.txt")
	if err := os.Symlink(secret, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	if _, err := sb.ResolveFile("link.txt"); !errors.Is(err, ErrPathTraversal) {
		t.Errorf("ResolveFile through symlink = %v, want ErrPathTraversal", err)
	}
}

func TestSandboxDanglingSymlinkEscape(t *testing.T) {
	sb := testSandbox(t)

	link := filepath.Join(sb.Root(), "dangling.txt")
	if err := os.Symlink("/nonexistent/outside.txt", link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	if _, err := sb.ResolveFile("dangling.txt"); !errors.Is(err, ErrPathTraversal) {
		t.Errorf("ResolveFile through dangling symlink = %v, want ErrPathTraversal", err)
	}
}

func TestSandboxResolveDir(t *testing.T) {
	sb := testSandbox(t)

	if got, err := sb.ResolveDir(""); err != nil || got != sb.Root() {
		t.Errorf("ResolveDir(\"\") = %q, %v; want root", got, err)
	}
	if _, err := sb.ResolveDir("sub"); err != nil {
		t.Errorf("ResolveDir(sub) = %v, want ok", err)
	}
	if _, err := sb.ResolveDir("../other"); !errors.Is(err, ErrPathTraversal) {
		t.Errorf("ResolveDir(../other) = %v, want ErrPathTraversal", err)
	}
}

func TestSandboxCheckSize(t *testing.T) {
	sb := testSandbox(t)

	if err := sb.CheckSize(100); err != nil {
		t.Errorf("CheckSize(at limit) = %v, want nil", err)
	}
	if err := sb.CheckSize(101); !errors.Is(err, ErrSizeExceeded) {
		t.Errorf("CheckSize(over limit) = %v, want ErrSizeExceeded", err)
	}
}

func TestSandboxReadFallback(t *testing.T) {
	sb := testSandbox(t)
	legacy := t.TempDir()
	sb.readFallback = legacy

	if err := os.WriteFile(filepath.Join(legacy, "old.txt"), []byte("legacy"), 0o644); err != nil {
		t.Fatal(err)
	}

	// Missing in the workspace, present in legacy: read from legacy.
	got, err := sb.ResolveRead("old.txt")
	if err != nil {
		t.Fatalf("ResolveRead: %v", err)
	}
	if !strings.HasPrefix(got, canonRoot(t, legacy)) {
		t.Errorf("ResolveRead = %q, want legacy path under %q", got, legacy)
	}

	// Present in the workspace: workspace copy wins.
	if err := os.WriteFile(filepath.Join(sb.Root(), "old.txt"), []byte("new"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err = sb.ResolveRead("old.txt")
	if err != nil {
		t.Fatalf("ResolveRead: %v", err)
	}
	if !strings.HasPrefix(got, canonRoot(t, sb.Root())) {
		t.Errorf("ResolveRead = %q, want workspace path under %q", got, sb.Root())
	}

	// Missing everywhere: new path returned for the caller's not-found error.
	got, err = sb.ResolveRead("never.txt")
	if err != nil {
		t.Fatalf("ResolveRead: %v", err)
	}
	if !strings.HasPrefix(got, canonRoot(t, sb.Root())) {
		t.Errorf("ResolveRead(missing) = %q, want workspace path", got)
	}
}

func TestSandboxForBindsLegacyFilesDir(t *testing.T) {
	r := testRouter(t)

	legacyFiles := filepath.Join(r.Root(), "users", "telegram_9", "files")
	if err := os.MkdirAll(legacyFiles, 0o755); err != nil {
		t.Fatal(err)
	}

	ctx := store.WithThreadID(store.WithWorkspaceID(context.Background(), "ws:sb"), "telegram:9")
	sb, err := r.SandboxFor(ctx)
	if err != nil {
		t.Fatalf("SandboxFor: %v", err)
	}
	if sb.readFallback != legacyFiles {
		t.Errorf("readFallback = %q, want %q", sb.readFallback, legacyFiles)
	}

	if _, err := r.SandboxFor(context.Background()); !errors.Is(err, ErrNoWorkspace) {
		t.Errorf("SandboxFor without binding = %v, want ErrNoWorkspace", err)
	}
}
