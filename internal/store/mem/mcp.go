package mem

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/goaide/internal/store"
)

type mcpKey struct {
	workspaceID string
	name        string
}

// MemMCPServerStore implements store.MCPServerStore in process memory.
type MemMCPServerStore struct {
	mu   sync.RWMutex
	rows map[mcpKey]store.MCPServer
}

func NewMemMCPServerStore() *MemMCPServerStore {
	return &MemMCPServerStore{rows: make(map[mcpKey]store.MCPServer)}
}

func (s *MemMCPServerStore) Create(_ context.Context, srv *store.MCPServer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if srv.ID == uuid.Nil {
		srv.ID = store.GenNewID()
	}
	now := time.Now()
	srv.CreatedAt = now
	srv.UpdatedAt = now
	s.rows[mcpKey{srv.WorkspaceID, srv.Name}] = *srv
	return nil
}

func (s *MemMCPServerStore) GetByName(_ context.Context, workspaceID, name string) (*store.MCPServer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if srv, ok := s.rows[mcpKey{workspaceID, name}]; ok {
		return &srv, nil
	}
	if srv, ok := s.rows[mcpKey{"", name}]; ok {
		return &srv, nil
	}
	return nil, store.ErrNotFound
}

func (s *MemMCPServerStore) List(_ context.Context, workspaceID string) ([]store.MCPServer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []store.MCPServer
	for k, srv := range s.rows {
		if k.workspaceID == workspaceID || k.workspaceID == "" {
			out = append(out, srv)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].WorkspaceID != out[j].WorkspaceID {
			return out[i].WorkspaceID > out[j].WorkspaceID // workspace entries before globals
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (s *MemMCPServerStore) SetEnabled(_ context.Context, workspaceID, name string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := mcpKey{workspaceID, name}
	srv, ok := s.rows[k]
	if !ok {
		return store.ErrNotFound
	}
	srv.Enabled = enabled
	srv.UpdatedAt = time.Now()
	s.rows[k] = srv
	return nil
}

func (s *MemMCPServerStore) Delete(_ context.Context, workspaceID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, mcpKey{workspaceID, name})
	return nil
}
