package config

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// FlexibleStringSlice accepts both ["str"] and [123] in JSON.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}
	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

// Config is the root configuration for the goaide runtime.
type Config struct {
	Agent      AgentConfig      `json:"agent"`
	Providers  ProvidersConfig  `json:"providers"`
	Channels   ChannelsConfig   `json:"channels"`
	HTTP       HTTPConfig       `json:"http"`
	Storage    StorageConfig    `json:"storage"`
	Scheduler  SchedulerConfig  `json:"scheduler"`
	Middleware MiddlewareConfig `json:"middleware"`
	Tools      ToolsConfig      `json:"tools"`
	MCP        MCPConfig        `json:"mcp,omitempty"`
	Memory     MemoryConfig     `json:"memory,omitempty"`
	Instincts  InstinctsConfig  `json:"instincts,omitempty"`
	Telemetry  TelemetryConfig  `json:"telemetry,omitempty"`
	Tailscale  TailscaleConfig  `json:"tailscale,omitempty"`
	mu         sync.RWMutex
}

// AgentConfig bounds and shapes the reasoning loop.
type AgentConfig struct {
	MaxIterations       int    `json:"max_iterations"`                 // model/tool round-trips per turn (default 20)
	ContextWindow       int    `json:"context_window"`                 // tokens the active model can hold (default 200000)
	MaxContextTokens    int    `json:"max_context_tokens,omitempty"`   // summarize above this estimate (default 100000)
	EnableSummarization *bool  `json:"enable_summarization,omitempty"` // default true (nil = enabled)
	SummaryThreshold    int    `json:"summary_threshold,omitempty"`    // summarize after N messages (default 20)
	KeepLastMessages    int    `json:"keep_last_messages,omitempty"`   // messages preserved verbatim after summarize (default 4)
	TurnTimeoutSeconds  int    `json:"turn_timeout_seconds,omitempty"` // per chat turn; 0 = none (flows run unbounded)
	SystemPrompt        string `json:"system_prompt,omitempty"`        // replaces the built-in base prompt when set
}

// SummarizationEnabled reports whether running summaries are on (default true).
func (a AgentConfig) SummarizationEnabled() bool {
	return a.EnableSummarization == nil || *a.EnableSummarization
}

// TurnTimeout returns the chat turn deadline, or 0 for none.
func (a AgentConfig) TurnTimeout() time.Duration {
	if a.TurnTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.TurnTimeoutSeconds) * time.Second
}

// ProvidersConfig selects and configures the model backends.
type ProvidersConfig struct {
	Default   string         `json:"default"` // "anthropic" | "openai" | "zhipu"
	Anthropic ProviderConfig `json:"anthropic,omitempty"`
	OpenAI    ProviderConfig `json:"openai,omitempty"`
	Zhipu     ProviderConfig `json:"zhipu,omitempty"`
}

// ProviderConfig is one model backend. API keys load from env and are
// stripped before save.
type ProviderConfig struct {
	APIKey      string  `json:"api_key,omitempty"`
	Model       string  `json:"model,omitempty"`
	BaseURL     string  `json:"base_url,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

// ChannelsConfig holds the chat transport adapters.
type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram,omitempty"`
	Discord  DiscordConfig  `json:"discord,omitempty"`
}

// TelegramConfig configures the Telegram long-poll adapter.
type TelegramConfig struct {
	Enabled        bool                `json:"enabled"`
	Token          string              `json:"token,omitempty"` // env GOAIDE_TELEGRAM_TOKEN wins
	AllowedUserIDs FlexibleStringSlice `json:"allowed_user_ids,omitempty"`
}

// DiscordConfig configures the Discord gateway adapter.
type DiscordConfig struct {
	Enabled        bool                `json:"enabled"`
	Token          string              `json:"token,omitempty"` // env GOAIDE_DISCORD_TOKEN wins
	AllowedUserIDs FlexibleStringSlice `json:"allowed_user_ids,omitempty"`
}

// HTTPConfig configures the HTTP gateway (REST + SSE + /ws events).
type HTTPConfig struct {
	Host         string              `json:"host"`
	Port         int                 `json:"port"`
	Token        string              `json:"token,omitempty"`        // bearer; env GOAIDE_HTTP_TOKEN wins
	RequireUser  bool                `json:"require_user,omitempty"` // reject requests without auth when true
	RateLimitRPS float64             `json:"rate_limit_rps,omitempty"`
	RateBurst    int                 `json:"rate_burst,omitempty"`
	AdminUserIDs FlexibleStringSlice `json:"admin_user_ids,omitempty"`
}

// StorageConfig locates every byte the runtime persists.
// PostgresDSN is NEVER read from config.json (secret) — only from env
// GOAIDE_POSTGRES_DSN.
type StorageConfig struct {
	Root                  string   `json:"root"`                  // workspace data root (default ~/.goaide/data)
	Checkpoints           string   `json:"checkpoints,omitempty"` // "postgres" (default when DSN set) or "file"
	CheckpointDir         string   `json:"checkpoint_dir,omitempty"`
	PostgresDSN           string   `json:"-"`
	AllowedFileExtensions []string `json:"allowed_file_extensions,omitempty"`
	MaxFileSizeMB         int      `json:"max_file_size_mb,omitempty"`
	LegacyThreadDirs      bool     `json:"legacy_thread_dirs,omitempty"` // read pre-workspace per-thread layout when present
}

// MaxFileBytes returns the file sandbox byte ceiling.
func (s StorageConfig) MaxFileBytes() int64 {
	mb := s.MaxFileSizeMB
	if mb <= 0 {
		mb = 10
	}
	return int64(mb) * 1024 * 1024
}

// SchedulerConfig tunes the reminder/flow tick loop.
type SchedulerConfig struct {
	TickIntervalSeconds    int `json:"tick_interval_seconds,omitempty"`    // default 30, hard max 30
	ReminderTimeoutSeconds int `json:"reminder_timeout_seconds,omitempty"` // tool-side lookups (default 25)
}

// TickInterval returns the scheduler poll period clamped to [1s, 30s].
func (s SchedulerConfig) TickInterval() time.Duration {
	sec := s.TickIntervalSeconds
	if sec <= 0 || sec > 30 {
		sec = 30
	}
	return time.Duration(sec) * time.Second
}

// MiddlewareConfig enables and tunes the pipeline around the loop.
type MiddlewareConfig struct {
	Retry          RetryConfig          `json:"retry,omitempty"`
	ModelCallLimit int                  `json:"model_call_limit,omitempty"` // per run (default 25, 0 = default)
	ToolCallLimit  int                  `json:"tool_call_limit,omitempty"`  // per run (default 50)
	ContextEditing ContextEditingConfig `json:"context_editing,omitempty"`
	LoopBreaker    LoopBreakerConfig    `json:"loop_breaker,omitempty"`
	MemoryTopN     int                  `json:"memory_top_n,omitempty"` // memories injected per turn (default 5)
}

// TopMemories returns the per-turn memory injection count (default 5).
func (m MiddlewareConfig) TopMemories() int {
	if m.MemoryTopN > 0 {
		return m.MemoryTopN
	}
	return 5
}

// RetryConfig governs transient-error retries for model and tool calls.
type RetryConfig struct {
	MaxAttempts int    `json:"max_attempts,omitempty"` // default 3
	BaseDelay   string `json:"base_delay,omitempty"`   // Go duration (default "1s")
	MaxDelay    string `json:"max_delay,omitempty"`    // Go duration (default "30s")
}

// BaseDelayDuration parses BaseDelay with the default fallback.
func (r RetryConfig) BaseDelayDuration() time.Duration {
	if d, err := time.ParseDuration(r.BaseDelay); err == nil && d > 0 {
		return d
	}
	return time.Second
}

// MaxDelayDuration parses MaxDelay with the default fallback.
func (r RetryConfig) MaxDelayDuration() time.Duration {
	if d, err := time.ParseDuration(r.MaxDelay); err == nil && d > 0 {
		return d
	}
	return 30 * time.Second
}

// Attempts returns the retry budget (default 3).
func (r RetryConfig) Attempts() int {
	if r.MaxAttempts > 0 {
		return r.MaxAttempts
	}
	return 3
}

// ContextEditingConfig controls elision of stale tool payloads.
type ContextEditingConfig struct {
	Enabled       *bool `json:"enabled,omitempty"`        // default true
	TriggerTokens int   `json:"trigger_tokens,omitempty"` // default 100000
	KeepLast      int   `json:"keep_last,omitempty"`      // tool uses kept verbatim (default 10)
}

// EditingEnabled reports whether tool-payload elision is on (default true).
func (c ContextEditingConfig) EditingEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// LoopBreakerConfig tunes repeated-call detection.
type LoopBreakerConfig struct {
	Enabled             *bool   `json:"enabled,omitempty"`              // default true
	MaxRepeats          int     `json:"max_repeats,omitempty"`          // similar calls before breaking (default 3)
	SimilarityThreshold float64 `json:"similarity_threshold,omitempty"` // default 0.7
	WindowSeconds       int     `json:"window_seconds,omitempty"`       // default 30
}

// BreakerEnabled reports whether loop detection is on (default true).
func (l LoopBreakerConfig) BreakerEnabled() bool {
	return l.Enabled == nil || *l.Enabled
}

// Window returns the detection window clamped to a sane default.
func (l LoopBreakerConfig) Window() time.Duration {
	if l.WindowSeconds > 0 {
		return time.Duration(l.WindowSeconds) * time.Second
	}
	return 30 * time.Second
}

// ToolsConfig configures the built-in tool surface.
type ToolsConfig struct {
	Web     WebToolsConfig    `json:"web,omitempty"`
	Browser BrowserToolConfig `json:"browser,omitempty"`
	OCR     OCRToolConfig     `json:"ocr,omitempty"`
	Exec    ExecToolConfig    `json:"exec,omitempty"`
}

// WebToolsConfig configures web_search backends.
type WebToolsConfig struct {
	Brave      BraveConfig      `json:"brave,omitempty"`
	DuckDuckGo DuckDuckGoConfig `json:"duckduckgo,omitempty"`
}

// BraveConfig configures the Brave Search API backend.
type BraveConfig struct {
	Enabled    bool   `json:"enabled,omitempty"`
	APIKey     string `json:"api_key,omitempty"` // env GOAIDE_BRAVE_API_KEY wins
	MaxResults int    `json:"max_results,omitempty"`
}

// DuckDuckGoConfig configures the keyless fallback backend.
type DuckDuckGoConfig struct {
	Enabled    bool `json:"enabled"`
	MaxResults int  `json:"max_results,omitempty"`
}

// BrowserToolConfig controls the rendered web_scrape fallback.
type BrowserToolConfig struct {
	Enabled  bool `json:"enabled"`
	Headless bool `json:"headless"`
}

// OCRToolConfig selects the image-to-text engine.
type OCRToolConfig struct {
	Engine string `json:"engine,omitempty"` // "tesseract" (default) or "off"
}

// ExecToolConfig controls the code-execution tool.
type ExecToolConfig struct {
	Enabled        bool `json:"enabled,omitempty"`
	TimeoutSeconds int  `json:"timeout_seconds,omitempty"` // default 60
}

// MCPConfig declares global MCP servers connected at startup.
// Workspace-scoped servers live in the mcp_servers store instead.
type MCPConfig struct {
	Servers map[string]*MCPServerConfig `json:"servers,omitempty"`
}

// MCPServerConfig configures one external MCP server connection.
type MCPServerConfig struct {
	Transport  string            `json:"transport"`             // "stdio", "sse", "streamable-http"
	Command    string            `json:"command,omitempty"`     // stdio: command to spawn
	Args       []string          `json:"args,omitempty"`        // stdio: command arguments
	Env        map[string]string `json:"env,omitempty"`         // stdio: extra environment variables
	URL        string            `json:"url,omitempty"`         // sse/http: server URL
	Headers    map[string]string `json:"headers,omitempty"`     // sse/http: extra HTTP headers
	Enabled    *bool             `json:"enabled,omitempty"`     // default true
	ToolPrefix string            `json:"tool_prefix,omitempty"` // overrides the mcp_<server> name prefix
	TimeoutSec int               `json:"timeout_sec,omitempty"` // per-tool-call timeout in seconds (default 60)
}

// IsEnabled returns whether this MCP server is enabled (default true).
func (c *MCPServerConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// MemoryConfig enables the long-term memory store.
type MemoryConfig struct {
	Enabled *bool `json:"enabled,omitempty"` // default true
}

// MemoryEnabled reports whether the memory system is on.
func (m MemoryConfig) MemoryEnabled() bool {
	return m.Enabled == nil || *m.Enabled
}

// InstinctsConfig enables behavioral-pattern learning.
type InstinctsConfig struct {
	Enabled *bool `json:"enabled,omitempty"` // default true
}

// InstinctsEnabled reports whether instinct learning is on.
func (i InstinctsConfig) InstinctsEnabled() bool {
	return i.Enabled == nil || *i.Enabled
}

// TelemetryConfig configures OpenTelemetry export for traces and spans.
// When enabled, spans are exported to an OTLP-compatible backend
// (Jaeger, Tempo, Datadog, etc.).
type TelemetryConfig struct {
	Enabled     bool              `json:"enabled,omitempty"`      // enable OTLP export (default false)
	Endpoint    string            `json:"endpoint,omitempty"`     // OTLP endpoint (e.g. "localhost:4317")
	Protocol    string            `json:"protocol,omitempty"`     // "grpc" (default) or "http"
	Insecure    bool              `json:"insecure,omitempty"`     // skip TLS verification (local dev)
	ServiceName string            `json:"service_name,omitempty"` // OTEL service name (default "goaide")
	Headers     map[string]string `json:"headers,omitempty"`      // extra headers (auth tokens for cloud backends)
}

// TailscaleConfig configures the optional tsnet listener.
// Requires building with -tags tsnet. Auth key from env only (never persisted).
type TailscaleConfig struct {
	Hostname  string `json:"hostname,omitempty"`   // tailnet machine name (e.g. "goaide")
	StateDir  string `json:"state_dir,omitempty"`  // persistent state directory
	AuthKey   string `json:"-"`                    // from env GOAIDE_TSNET_AUTH_KEY only
	Ephemeral bool   `json:"ephemeral,omitempty"`  // remove node on exit
	EnableTLS bool   `json:"enable_tls,omitempty"` // ListenTLS for auto HTTPS certs
}

// ReplaceFrom copies all data fields from src into c, preserving c's mutex.
// Used by the hot-reload watcher so pointers held elsewhere stay valid.
func (c *Config) ReplaceFrom(src *Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Agent = src.Agent
	c.Providers = src.Providers
	c.Channels = src.Channels
	c.HTTP = src.HTTP
	c.Storage = src.Storage
	c.Scheduler = src.Scheduler
	c.Middleware = src.Middleware
	c.Tools = src.Tools
	c.MCP = src.MCP
	c.Memory = src.Memory
	c.Instincts = src.Instincts
	c.Telemetry = src.Telemetry
	c.Tailscale = src.Tailscale
}

// Provider returns the named provider config, falling back to the default
// provider when name is empty.
func (c *Config) Provider(name string) (string, ProviderConfig) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if name == "" {
		name = c.Providers.Default
	}
	switch name {
	case "openai":
		return name, c.Providers.OpenAI
	case "zhipu":
		return name, c.Providers.Zhipu
	default:
		return "anthropic", c.Providers.Anthropic
	}
}
