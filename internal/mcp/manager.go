// Package mcp connects external MCP servers and proxies their tools
// into the local registry as mcp_<server>_<tool>.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"

	"github.com/nextlevelbuilder/goaide/internal/config"
	"github.com/nextlevelbuilder/goaide/internal/store"
	"github.com/nextlevelbuilder/goaide/internal/tools"
)

const (
	healthCheckInterval  = 30 * time.Second
	initialBackoff       = 2 * time.Second
	maxBackoff           = 60 * time.Second
	maxReconnectAttempts = 10
)

// ServerStatus reports the connection status of an MCP server.
type ServerStatus struct {
	Name        string `json:"name"`
	WorkspaceID string `json:"workspace_id,omitempty"`
	Transport   string `json:"transport"`
	Connected   bool   `json:"connected"`
	ToolCount   int    `json:"tool_count"`
	Error       string `json:"error,omitempty"`
}

// serverState tracks a single MCP server connection.
type serverState struct {
	name        string
	workspaceID string // "" = global
	transport   string
	client      *mcpclient.Client
	connected   atomic.Bool
	toolNames   []string // registered tool names in the registry
	timeoutSec  int
	cancel      context.CancelFunc

	mu             sync.Mutex
	reconnAttempts int
	lastErr        string
}

func serverKey(workspaceID, name string) string {
	if workspaceID == "" {
		return name
	}
	return workspaceID + "/" + name
}

// Manager orchestrates MCP server connections and tool registration.
// Config-file servers and global store rows connect at Start;
// workspace-scoped rows connect when the workspace first becomes
// active via LoadWorkspace.
type Manager struct {
	mu       sync.RWMutex
	servers  map[string]*serverState // keyed by serverKey
	registry *tools.Registry

	configs map[string]*config.MCPServerConfig
	store   store.MCPServerStore
}

// ManagerOption configures the Manager.
type ManagerOption func(*Manager)

// WithConfigs sets static MCP server configs from the config file.
func WithConfigs(cfgs map[string]*config.MCPServerConfig) ManagerOption {
	return func(m *Manager) {
		m.configs = cfgs
	}
}

// WithStore sets the MCPServerStore for workspace-scoped servers.
func WithStore(s store.MCPServerStore) ManagerOption {
	return func(m *Manager) {
		m.store = s
	}
}

// NewManager creates a new MCP Manager.
func NewManager(registry *tools.Registry, opts ...ManagerOption) *Manager {
	m := &Manager{
		servers:  make(map[string]*serverState),
		registry: registry,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start connects config-file servers and global store servers.
// Non-fatal: logs warnings for servers that fail to connect and
// continues with the rest.
func (m *Manager) Start(ctx context.Context) error {
	var errs []string

	for name, cfg := range m.configs {
		if !cfg.IsEnabled() {
			slog.Info("mcp.server.disabled", "server", name)
			continue
		}
		err := m.connectServer(ctx, connectParams{
			name:       name,
			transport:  cfg.Transport,
			command:    cfg.Command,
			args:       cfg.Args,
			env:        cfg.Env,
			url:        cfg.URL,
			headers:    cfg.Headers,
			toolPrefix: cfg.ToolPrefix,
			timeoutSec: cfg.TimeoutSec,
		})
		if err != nil {
			slog.Warn("mcp.server.connect_failed", "server", name, "error", err)
			errs = append(errs, fmt.Sprintf("%s: %v", name, err))
		}
	}

	if m.store != nil {
		if err := m.LoadWorkspace(ctx, ""); err != nil {
			errs = append(errs, err.Error())
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("some MCP servers failed to connect: %s", joinErrors(errs))
	}
	return nil
}

// LoadWorkspace connects the stored servers of one workspace ("" =
// globals). Servers already connected are left alone; disabled rows
// are skipped.
func (m *Manager) LoadWorkspace(ctx context.Context, workspaceID string) error {
	if m.store == nil {
		return nil
	}

	servers, err := m.store.List(ctx, workspaceID)
	if err != nil {
		return fmt.Errorf("list MCP servers for workspace %q: %w", workspaceID, err)
	}

	var errs []string
	for _, srv := range servers {
		if !srv.Enabled || srv.WorkspaceID != workspaceID {
			continue
		}
		m.mu.RLock()
		_, exists := m.servers[serverKey(srv.WorkspaceID, srv.Name)]
		m.mu.RUnlock()
		if exists {
			continue
		}

		err := m.connectServer(ctx, connectParams{
			name:        srv.Name,
			workspaceID: srv.WorkspaceID,
			transport:   srv.Transport,
			command:     srv.Command,
			args:        jsonBytesToStringSlice(srv.Args),
			env:         jsonBytesToStringMap(srv.Env),
			url:         srv.URL,
			headers:     jsonBytesToStringMap(srv.Headers),
			timeoutSec:  srv.TimeoutSec,
		})
		if err != nil {
			slog.Warn("mcp.server.connect_failed", "server", srv.Name, "workspace", srv.WorkspaceID, "error", err)
			errs = append(errs, fmt.Sprintf("%s: %v", srv.Name, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("some MCP servers failed to connect: %s", joinErrors(errs))
	}
	return nil
}

// UnloadWorkspace disconnects every server of the workspace and
// unregisters its tools.
func (m *Manager) UnloadWorkspace(workspaceID string) {
	if workspaceID == "" {
		return
	}
	m.mu.Lock()
	for key, ss := range m.servers {
		if ss.workspaceID != workspaceID {
			continue
		}
		m.closeServerLocked(key, ss)
	}
	m.mu.Unlock()
	m.updateMCPGroup()
}

// Stop shuts down all MCP server connections and unregisters tools.
func (m *Manager) Stop() {
	m.mu.Lock()
	for key, ss := range m.servers {
		m.closeServerLocked(key, ss)
	}
	m.servers = make(map[string]*serverState)
	m.mu.Unlock()
	tools.UnregisterToolGroup("mcp")
}

// closeServerLocked tears one server down. Caller holds m.mu.
func (m *Manager) closeServerLocked(key string, ss *serverState) {
	if ss.cancel != nil {
		ss.cancel()
	}
	if ss.client != nil {
		if err := ss.client.Close(); err != nil {
			slog.Debug("mcp.server.close_error", "server", ss.name, "error", err)
		}
	}
	for _, toolName := range ss.toolNames {
		m.registry.Unregister(toolName)
	}
	tools.UnregisterToolGroup("mcp:" + ss.name)
	delete(m.servers, key)
}

// ServerStatus returns the status of all connected MCP servers.
func (m *Manager) ServerStatus() []ServerStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	statuses := make([]ServerStatus, 0, len(m.servers))
	for _, ss := range m.servers {
		ss.mu.Lock()
		lastErr := ss.lastErr
		ss.mu.Unlock()
		statuses = append(statuses, ServerStatus{
			Name:        ss.name,
			WorkspaceID: ss.workspaceID,
			Transport:   ss.transport,
			Connected:   ss.connected.Load(),
			ToolCount:   len(ss.toolNames),
			Error:       lastErr,
		})
	}
	return statuses
}
