package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/nextlevelbuilder/goaide/internal/tools"
)

// BridgeTool exposes one remote MCP tool through the local registry.
// Registered names follow mcp_<server>_<tool> unless the server config
// sets an explicit prefix.
type BridgeTool struct {
	server    string
	original  string
	name      string
	desc      string
	params    map[string]interface{}
	client    *mcpclient.Client
	timeout   time.Duration
	connected *atomic.Bool
}

// NewBridgeTool wraps a discovered MCP tool. connected is shared with
// the owning server state so calls fail fast while reconnecting.
func NewBridgeTool(server string, tool mcpgo.Tool, client *mcpclient.Client, toolPrefix string, timeoutSec int, connected *atomic.Bool) *BridgeTool {
	prefix := toolPrefix
	if prefix == "" {
		prefix = "mcp_" + server
	}
	desc := tool.Description
	if desc == "" {
		desc = fmt.Sprintf("Tool %s from MCP server %s", tool.Name, server)
	}
	if timeoutSec <= 0 {
		timeoutSec = 60
	}
	return &BridgeTool{
		server:    server,
		original:  tool.Name,
		name:      sanitizeToolName(prefix + "_" + tool.Name),
		desc:      desc,
		params:    convertInputSchema(tool.InputSchema),
		client:    client,
		timeout:   time.Duration(timeoutSec) * time.Second,
		connected: connected,
	}
}

func (t *BridgeTool) Name() string        { return t.name }
func (t *BridgeTool) Description() string { return t.desc }

// OriginalName returns the tool name as the MCP server advertises it.
func (t *BridgeTool) OriginalName() string { return t.original }

// ServerName returns the owning MCP server.
func (t *BridgeTool) ServerName() string { return t.server }

// ExecuteTimeout applies the per-server call budget.
func (t *BridgeTool) ExecuteTimeout() time.Duration { return t.timeout }

func (t *BridgeTool) Parameters() map[string]interface{} {
	if t.params != nil {
		return t.params
	}
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}

func (t *BridgeTool) Execute(ctx context.Context, args map[string]interface{}) *tools.Result {
	if t.connected != nil && !t.connected.Load() {
		return tools.ErrorResult(fmt.Sprintf("MCP server '%s' is not connected", t.server))
	}

	req := mcpgo.CallToolRequest{}
	req.Params.Name = t.original
	req.Params.Arguments = args

	resp, err := t.client.CallTool(ctx, req)
	if err != nil {
		return tools.ErrorResult(fmt.Sprintf("MCP call %s/%s failed: %v", t.server, t.original, err))
	}

	text := flattenContent(resp.Content)
	if resp.IsError {
		if text == "" {
			text = "unknown error"
		}
		return tools.ErrorResult(text)
	}
	if text == "" {
		text = "(no output)"
	}
	return tools.NewResult(text)
}

// flattenContent joins text blocks; non-text content is summarized by
// type so the model knows something was returned.
func flattenContent(content []mcpgo.Content) string {
	var parts []string
	for _, c := range content {
		switch v := c.(type) {
		case mcpgo.TextContent:
			parts = append(parts, v.Text)
		case mcpgo.ImageContent:
			parts = append(parts, fmt.Sprintf("[image: %s]", v.MIMEType))
		case mcpgo.EmbeddedResource:
			parts = append(parts, "[embedded resource]")
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

// convertInputSchema reshapes the MCP schema into the plain map the
// registry expects. Nil on any marshal trouble; the caller substitutes
// an empty object schema.
func convertInputSchema(schema mcpgo.ToolInputSchema) map[string]interface{} {
	data, err := json.Marshal(schema)
	if err != nil {
		return nil
	}
	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	if out["type"] == nil {
		out["type"] = "object"
	}
	return out
}

// sanitizeToolName normalizes registry names; provider tool-name rules
// are stricter than MCP's.
func sanitizeToolName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_' || r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
