package store

import (
	"context"
	"encoding/json"
)

// MCPServer is a configured MCP endpoint scoped to a workspace
// (WorkspaceID "" means available everywhere). Credentials travel in
// Headers/Env, both stored as JSONB.
type MCPServer struct {
	BaseModel
	WorkspaceID string          `json:"workspace_id,omitempty"`
	Name        string          `json:"name"`
	Transport   string          `json:"transport"`         // "stdio", "sse", "streamable-http"
	Command     string          `json:"command,omitempty"`  // stdio
	Args        json.RawMessage `json:"args,omitempty"`     // JSONB string array
	URL         string          `json:"url,omitempty"`      // sse/http
	Headers     json.RawMessage `json:"headers,omitempty"`  // JSONB
	Env         json.RawMessage `json:"env,omitempty"`      // JSONB (stdio)
	TimeoutSec  int             `json:"timeout_sec"`
	Enabled     bool            `json:"enabled"`
	CreatedBy   string          `json:"created_by,omitempty"`
}

// MCPServerStore manages MCP server configs.
type MCPServerStore interface {
	Create(ctx context.Context, s *MCPServer) error
	GetByName(ctx context.Context, workspaceID, name string) (*MCPServer, error)
	List(ctx context.Context, workspaceID string) ([]MCPServer, error) // workspace servers plus globals
	SetEnabled(ctx context.Context, workspaceID, name string, enabled bool) error
	Delete(ctx context.Context, workspaceID, name string) error
}
