package providers

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry holds the configured providers by name. Channels and the HTTP
// gateway resolve providers at request time, so registration is guarded for
// concurrent reads.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds or replaces a provider under its own name.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.providers, name)
}

func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		if len(r.providers) == 0 {
			return nil, fmt.Errorf("provider %q not registered (no providers configured)", name)
		}
		return nil, fmt.Errorf("provider %q not registered (available: %s)",
			name, strings.Join(r.names(), ", "))
	}
	return p, nil
}

// List returns the registered provider names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.names()
}

func (r *Registry) names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
