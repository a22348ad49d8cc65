package config

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/titanous/json5"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	autoTrue := true
	return &Config{
		Agent: AgentConfig{
			MaxIterations:      20,
			ContextWindow:      200000,
			MaxContextTokens:   100000,
			SummaryThreshold:   20,
			KeepLastMessages:   4,
			TurnTimeoutSeconds: 60,
		},
		Providers: ProvidersConfig{
			Default:   "anthropic",
			Anthropic: ProviderConfig{Model: "claude-sonnet-4-5-20250929", MaxTokens: 8192},
			OpenAI:    ProviderConfig{Model: "gpt-4o", MaxTokens: 8192},
			Zhipu:     ProviderConfig{Model: "glm-4-plus", MaxTokens: 8192},
		},
		HTTP: HTTPConfig{
			Host: "0.0.0.0",
			Port: 18890,
		},
		Storage: StorageConfig{
			Root:          "~/.goaide/data",
			CheckpointDir: "~/.goaide/checkpoints",
			AllowedFileExtensions: []string{
				".txt", ".md", ".py", ".js", ".ts", ".json", ".yaml", ".yml",
				".csv", ".xml", ".html", ".css", ".sh", ".bash",
				".png", ".jpg", ".jpeg", ".gif", ".webp", ".pdf",
			},
			MaxFileSizeMB: 10,
		},
		Scheduler: SchedulerConfig{
			TickIntervalSeconds:    30,
			ReminderTimeoutSeconds: 25,
		},
		Middleware: MiddlewareConfig{
			Retry:          RetryConfig{MaxAttempts: 3, BaseDelay: "1s", MaxDelay: "30s"},
			ModelCallLimit: 25,
			ToolCallLimit:  50,
			ContextEditing: ContextEditingConfig{TriggerTokens: 100000, KeepLast: 10},
			LoopBreaker:    LoopBreakerConfig{MaxRepeats: 3, SimilarityThreshold: 0.7, WindowSeconds: 30},
			MemoryTopN:     5,
		},
		Tools: ToolsConfig{
			Web: WebToolsConfig{
				DuckDuckGo: DuckDuckGoConfig{Enabled: true, MaxResults: 5},
			},
			Browser: BrowserToolConfig{
				Enabled:  true,
				Headless: true,
			},
			OCR:  OCRToolConfig{Engine: "tesseract"},
			Exec: ExecToolConfig{Enabled: true, TimeoutSeconds: 60},
		},
		Memory:    MemoryConfig{Enabled: &autoTrue},
		Instincts: InstinctsConfig{Enabled: &autoTrue},
	}
}

// Load reads config from a JSON5 file, then overlays env vars.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envStr("GOAIDE_ANTHROPIC_API_KEY", &c.Providers.Anthropic.APIKey)
	envStr("GOAIDE_OPENAI_API_KEY", &c.Providers.OpenAI.APIKey)
	envStr("GOAIDE_ZHIPU_API_KEY", &c.Providers.Zhipu.APIKey)
	envStr("GOAIDE_PROVIDER", &c.Providers.Default)
	envStr("GOAIDE_ANTHROPIC_MODEL", &c.Providers.Anthropic.Model)
	envStr("GOAIDE_OPENAI_MODEL", &c.Providers.OpenAI.Model)
	envStr("GOAIDE_ZHIPU_MODEL", &c.Providers.Zhipu.Model)

	envStr("GOAIDE_TELEGRAM_TOKEN", &c.Channels.Telegram.Token)
	envStr("GOAIDE_DISCORD_TOKEN", &c.Channels.Discord.Token)

	// Auto-enable channels when credentials arrive via env
	if c.Channels.Telegram.Token != "" {
		c.Channels.Telegram.Enabled = true
	}
	if c.Channels.Discord.Token != "" {
		c.Channels.Discord.Enabled = true
	}

	envStr("GOAIDE_HTTP_TOKEN", &c.HTTP.Token)
	envStr("GOAIDE_HOST", &c.HTTP.Host)
	if v := os.Getenv("GOAIDE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			c.HTTP.Port = port
		}
	}
	if v := os.Getenv("GOAIDE_REQUIRE_USER"); v != "" {
		c.HTTP.RequireUser = v == "true" || v == "1"
	}
	if v := os.Getenv("GOAIDE_ADMIN_USER_IDS"); v != "" {
		c.HTTP.AdminUserIDs = strings.Split(v, ",")
	}

	envStr("GOAIDE_STORAGE_ROOT", &c.Storage.Root)
	envStr("GOAIDE_POSTGRES_DSN", &c.Storage.PostgresDSN)
	envStr("GOAIDE_CHECKPOINTS", &c.Storage.Checkpoints)

	envStr("GOAIDE_BRAVE_API_KEY", &c.Tools.Web.Brave.APIKey)
	if c.Tools.Web.Brave.APIKey != "" {
		c.Tools.Web.Brave.Enabled = true
	}

	envStr("GOAIDE_TELEMETRY_ENDPOINT", &c.Telemetry.Endpoint)
	envStr("GOAIDE_TELEMETRY_PROTOCOL", &c.Telemetry.Protocol)
	envStr("GOAIDE_TELEMETRY_SERVICE_NAME", &c.Telemetry.ServiceName)
	if v := os.Getenv("GOAIDE_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("GOAIDE_TELEMETRY_INSECURE"); v != "" {
		c.Telemetry.Insecure = v == "true" || v == "1"
	}

	envStr("GOAIDE_TSNET_HOSTNAME", &c.Tailscale.Hostname)
	envStr("GOAIDE_TSNET_AUTH_KEY", &c.Tailscale.AuthKey)
	envStr("GOAIDE_TSNET_DIR", &c.Tailscale.StateDir)
}

// ApplyEnvOverrides re-applies environment variable overrides onto the config.
// Call after mutating the config to restore runtime secrets from env vars.
func (c *Config) ApplyEnvOverrides() {
	c.applyEnvOverrides()
}

// Save writes the config to a JSON file.
func Save(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// Hash returns a SHA-256 hash of the config for change detection.
func (c *Config) Hash() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, _ := json.Marshal(c)
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:8])
}

// StorageRoot returns the expanded workspace data root.
func (c *Config) StorageRoot() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ExpandHome(c.Storage.Root)
}

const secretMask = "***"

// MaskedCopy returns a deep copy of the config with all secret fields masked.
// Used by config reads surfaced to clients.
func (c *Config) MaskedCopy() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()

	// Deep copy via JSON round-trip
	data, err := json.Marshal(c)
	if err != nil {
		return &Config{}
	}
	cp := Default()
	if err := json.Unmarshal(data, cp); err != nil {
		return &Config{}
	}

	maskNonEmpty(&cp.Providers.Anthropic.APIKey)
	maskNonEmpty(&cp.Providers.OpenAI.APIKey)
	maskNonEmpty(&cp.Providers.Zhipu.APIKey)
	maskNonEmpty(&cp.HTTP.Token)
	maskNonEmpty(&cp.Channels.Telegram.Token)
	maskNonEmpty(&cp.Channels.Discord.Token)
	maskNonEmpty(&cp.Tools.Web.Brave.APIKey)
	maskNonEmpty(&cp.Tailscale.AuthKey)

	return cp
}

// StripSecrets zeros out all secret fields in the config.
// Called before saving so secrets never persist in config.json.
func (c *Config) StripSecrets() {
	c.Providers.Anthropic.APIKey = ""
	c.Providers.OpenAI.APIKey = ""
	c.Providers.Zhipu.APIKey = ""
	c.HTTP.Token = ""
	c.Channels.Telegram.Token = ""
	c.Channels.Discord.Token = ""
	c.Tools.Web.Brave.APIKey = ""
	c.Tailscale.AuthKey = ""
}

// StripMaskedSecrets strips only fields that still contain the mask value.
// Real values entered by the user are preserved.
func (c *Config) StripMaskedSecrets() {
	stripIfMasked := func(s *string) {
		if *s == secretMask {
			*s = ""
		}
	}
	stripIfMasked(&c.Providers.Anthropic.APIKey)
	stripIfMasked(&c.Providers.OpenAI.APIKey)
	stripIfMasked(&c.Providers.Zhipu.APIKey)
	stripIfMasked(&c.HTTP.Token)
	stripIfMasked(&c.Channels.Telegram.Token)
	stripIfMasked(&c.Channels.Discord.Token)
	stripIfMasked(&c.Tools.Web.Brave.APIKey)
	stripIfMasked(&c.Tailscale.AuthKey)
}

func maskNonEmpty(s *string) {
	if *s != "" {
		*s = secretMask
	}
}

// ExpandHome replaces leading ~ with the user home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, _ := os.UserHomeDir()
	if len(path) > 1 && path[1] == '/' {
		return home + path[1:]
	}
	return home
}
