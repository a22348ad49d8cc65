package mcp

import (
	"github.com/nextlevelbuilder/goaide/internal/tools"
)

// ToolNames returns all registered MCP tool names.
func (m *Manager) ToolNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var names []string
	for _, ss := range m.servers {
		names = append(names, ss.toolNames...)
	}
	return names
}

// WorkspaceToolNames returns the MCP tool names visible to one
// workspace: its own servers plus the globals.
func (m *Manager) WorkspaceToolNames(workspaceID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var names []string
	for _, ss := range m.servers {
		if ss.workspaceID == "" || ss.workspaceID == workspaceID {
			names = append(names, ss.toolNames...)
		}
	}
	return names
}

// updateMCPGroup rebuilds the "mcp" group with all MCP tool names across servers.
// Must be called with m.mu NOT held (it acquires RLock).
func (m *Manager) updateMCPGroup() {
	allNames := m.ToolNames()
	if len(allNames) > 0 {
		tools.RegisterToolGroup("mcp", allNames)
	} else {
		tools.UnregisterToolGroup("mcp")
	}
}
