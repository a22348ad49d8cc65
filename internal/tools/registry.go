package tools

import (
	"sort"
	"strings"
	"sync"
)

// Registry holds the tools available to the agent, keyed by name.
// Lookup falls back to squashed-lowercase matching because models
// occasionally emit "creatememory" when they mean "create_memory".
type Registry struct {
	mu       sync.RWMutex
	tools    map[string]Tool
	squashed map[string]string // squashed form -> canonical name
}

func NewRegistry() *Registry {
	return &Registry{
		tools:    make(map[string]Tool),
		squashed: make(map[string]string),
	}
}

// Register adds or replaces a tool by name.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := t.Name()
	r.tools[name] = t
	r.squashed[squashName(name)] = name
}

// Unregister removes a tool. MCP proxy tools come and go with their
// server configs.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tools[name]; !ok {
		return
	}
	delete(r.tools, name)
	sq := squashName(name)
	if r.squashed[sq] == name {
		delete(r.squashed, sq)
	}
}

// Get looks up a tool by exact name, then by squashed-lowercase form.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if t, ok := r.tools[name]; ok {
		return t, true
	}
	if canonical, ok := r.squashed[squashName(name)]; ok {
		t, ok := r.tools[canonical]
		return t, ok
	}
	return nil, false
}

// List returns all registered tool names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Tools returns all registered tools in name order.
func (r *Registry) Tools() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	ts := make([]Tool, 0, len(names))
	for _, name := range names {
		ts = append(ts, r.tools[name])
	}
	return ts
}

// squashName lowers a name and strips underscores and dashes.
func squashName(name string) string {
	s := strings.ToLower(name)
	s = strings.ReplaceAll(s, "_", "")
	s = strings.ReplaceAll(s, "-", "")
	return s
}
