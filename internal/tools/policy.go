package tools

import (
	"sort"
	"strings"
	"sync"
)

// Tool groups map group names to tool names. Flow specs may list
// "group:fs" instead of enumerating every file tool.
var toolGroups = map[string][]string{
	"fs": {"read_file", "write_file", "list_files", "delete_file"},
	"tdb": {
		"create_tdb_table", "insert_tdb_table", "update_tdb_table",
		"query_tdb_table", "list_tdb_tables", "describe_tdb_table",
		"drop_tdb_table", "export_tdb_table", "import_tdb_table",
	},
	"kb": {
		"create_kb_collection", "add_kb_documents", "search_kb",
		"list_kb_collections", "describe_kb_collection",
		"delete_kb_collection", "delete_kb_documents",
	},
	"memory": {
		"save_memory", "search_memory", "update_memory", "delete_memory",
		"recent_memories", "export_memories", "import_memories",
	},
	"reminders": {"reminder_set", "reminder_list", "reminder_cancel", "reminder_edit"},
	"flows":     {"create_flow", "list_flows", "run_flow", "cancel_flow", "delete_flow"},
	"web":       {"web_search", "web_scrape"},
	"runtime":   {"exec", "ocr_image"},
}

var toolGroupsMu sync.RWMutex

// RegisterToolGroup adds or replaces a dynamic tool group. The MCP
// manager registers "mcp" and "mcp:{serverName}" groups.
func RegisterToolGroup(name string, members []string) {
	toolGroupsMu.Lock()
	defer toolGroupsMu.Unlock()
	toolGroups[name] = members
}

// UnregisterToolGroup removes a dynamic tool group.
func UnregisterToolGroup(name string) {
	toolGroupsMu.Lock()
	defer toolGroupsMu.Unlock()
	delete(toolGroups, name)
}

func groupMembers(name string) ([]string, bool) {
	toolGroupsMu.RLock()
	defer toolGroupsMu.RUnlock()
	members, ok := toolGroups[name]
	return members, ok
}

// FlowToolNames are the flow management tools. Flow steps may not use
// them: a flow that schedules flows recurses without bound.
var FlowToolNames = map[string]bool{
	"create_flow": true,
	"list_flows":  true,
	"run_flow":    true,
	"cancel_flow": true,
	"delete_flow": true,
}

// ForbiddenFlowTools returns the flow management tools named in spec,
// sorted, after group expansion. Empty means the spec is clean.
func ForbiddenFlowTools(spec []string) []string {
	found := make(map[string]bool)
	for _, name := range ExpandToolSpec(spec) {
		if FlowToolNames[name] {
			found[name] = true
		}
	}
	if len(found) == 0 {
		return nil
	}
	names := make([]string, 0, len(found))
	for name := range found {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ExpandToolSpec expands a tool spec list, resolving "group:xxx"
// entries into their members. Order follows the spec; duplicates are
// dropped.
func ExpandToolSpec(spec []string) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(name string) {
		if name != "" && !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	for _, s := range spec {
		if strings.HasPrefix(s, "group:") {
			if members, ok := groupMembers(strings.TrimPrefix(s, "group:")); ok {
				for _, m := range members {
					add(m)
				}
			}
			continue
		}
		add(s)
	}
	return out
}

// FilterForFlowStep resolves a flow step's tool spec against the
// registry, excluding flow management tools. A nil or empty spec means
// every registered tool except the flow set.
func FilterForFlowStep(registry *Registry, spec []string) []Tool {
	var names []string
	if len(spec) == 0 {
		names = registry.List()
	} else {
		names = ExpandToolSpec(spec)
	}

	var out []Tool
	for _, name := range names {
		if FlowToolNames[name] {
			continue
		}
		if t, ok := registry.Get(name); ok {
			out = append(out, t)
		}
	}
	return out
}
