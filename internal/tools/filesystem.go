package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nextlevelbuilder/goaide/internal/workspace"
)

// File tools operate inside the per-workspace files sandbox. Sandbox
// violations come back as "Security error: ..." strings so the model
// can correct itself without killing the turn.

// --- read_file ---

type ReadFileTool struct {
	router *workspace.Router
}

func NewReadFileTool(router *workspace.Router) *ReadFileTool {
	return &ReadFileTool{router: router}
}

func (t *ReadFileTool) Name() string { return "read_file" }

func (t *ReadFileTool) Description() string {
	return "Read a file from the workspace files directory"
}

func (t *ReadFileTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"file_path": map[string]interface{}{
				"type":        "string",
				"description": "Path to the file relative to the files directory",
			},
		},
		"required": []string{"file_path"},
	}
}

func (t *ReadFileTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	path, _ := args["file_path"].(string)
	if path == "" {
		return ErrorResult("file_path is required")
	}
	sb, err := t.router.SandboxFor(ctx)
	if err != nil {
		return ErrorResult(err.Error())
	}
	resolved, err := sb.ResolveRead(path)
	if err != nil {
		return ErrorResult(fmt.Sprintf("Security error: %v", err))
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrorResult(fmt.Sprintf("File not found: %s", path))
		}
		return ErrorResult(fmt.Sprintf("Error reading file: %v", err))
	}
	if err := sb.CheckSize(int64(len(data))); err != nil {
		return ErrorResult(fmt.Sprintf("Security error: %v", err))
	}
	return NewResult(string(data))
}

// --- write_file ---

type WriteFileTool struct {
	router *workspace.Router
}

func NewWriteFileTool(router *workspace.Router) *WriteFileTool {
	return &WriteFileTool{router: router}
}

func (t *WriteFileTool) Name() string { return "write_file" }

func (t *WriteFileTool) Description() string {
	return "Write content to a file in the workspace files directory"
}

func (t *WriteFileTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"file_path": map[string]interface{}{
				"type":        "string",
				"description": "Path to the file relative to the files directory",
			},
			"content": map[string]interface{}{
				"type":        "string",
				"description": "Content to write",
			},
		},
		"required": []string{"file_path", "content"},
	}
}

func (t *WriteFileTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	path, _ := args["file_path"].(string)
	if path == "" {
		return ErrorResult("file_path is required")
	}
	content, _ := args["content"].(string)

	sb, err := t.router.SandboxFor(ctx)
	if err != nil {
		return ErrorResult(err.Error())
	}
	if err := sb.CheckSize(int64(len(content))); err != nil {
		return ErrorResult(fmt.Sprintf("Security error: %v", err))
	}
	resolved, err := sb.ResolveFile(path)
	if err != nil {
		return ErrorResult(fmt.Sprintf("Security error: %v", err))
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return ErrorResult(fmt.Sprintf("Error writing file: %v", err))
	}
	if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
		return ErrorResult(fmt.Sprintf("Error writing file: %v", err))
	}
	return NewResult(fmt.Sprintf("File written: %s (%d bytes)", path, len(content)))
}

// --- list_files ---

type ListFilesTool struct {
	router *workspace.Router
}

func NewListFilesTool(router *workspace.Router) *ListFilesTool {
	return &ListFilesTool{router: router}
}

func (t *ListFilesTool) Name() string { return "list_files" }

func (t *ListFilesTool) Description() string {
	return "List files in the workspace files directory"
}

func (t *ListFilesTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"directory": map[string]interface{}{
				"type":        "string",
				"description": "Subdirectory to list (empty for the files root)",
			},
		},
	}
}

func (t *ListFilesTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	directory, _ := args["directory"].(string)

	sb, err := t.router.SandboxFor(ctx)
	if err != nil {
		return ErrorResult(err.Error())
	}
	resolved, err := sb.ResolveDir(directory)
	if err != nil {
		return ErrorResult(fmt.Sprintf("Security error: %v", err))
	}
	entries, err := os.ReadDir(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrorResult(fmt.Sprintf("Directory not found: %s", directory))
		}
		return ErrorResult(fmt.Sprintf("Error listing files: %v", err))
	}

	items := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		items = append(items, name)
	}
	sort.Strings(items)

	label := directory
	if label == "" {
		label = "files"
	}
	return NewResult(fmt.Sprintf("Files in %s:\n%s", label, strings.Join(items, "\n")))
}

// --- delete_file ---

type DeleteFileTool struct {
	router *workspace.Router
}

func NewDeleteFileTool(router *workspace.Router) *DeleteFileTool {
	return &DeleteFileTool{router: router}
}

func (t *DeleteFileTool) Name() string { return "delete_file" }

func (t *DeleteFileTool) Description() string {
	return "Delete a file from the workspace files directory"
}

func (t *DeleteFileTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"file_path": map[string]interface{}{
				"type":        "string",
				"description": "Path to the file relative to the files directory",
			},
		},
		"required": []string{"file_path"},
	}
}

func (t *DeleteFileTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	path, _ := args["file_path"].(string)
	if path == "" {
		return ErrorResult("file_path is required")
	}
	sb, err := t.router.SandboxFor(ctx)
	if err != nil {
		return ErrorResult(err.Error())
	}
	resolved, err := sb.ResolveFile(path)
	if err != nil {
		return ErrorResult(fmt.Sprintf("Security error: %v", err))
	}
	if err := os.Remove(resolved); err != nil {
		if os.IsNotExist(err) {
			return ErrorResult(fmt.Sprintf("File not found: %s", path))
		}
		return ErrorResult(fmt.Sprintf("Error deleting file: %v", err))
	}
	return NewResult(fmt.Sprintf("File deleted: %s", path))
}

// FileTools returns the sandboxed file tool set for a router.
func FileTools(router *workspace.Router) []Tool {
	return []Tool{
		NewReadFileTool(router),
		NewWriteFileTool(router),
		NewListFilesTool(router),
		NewDeleteFileTool(router),
	}
}
