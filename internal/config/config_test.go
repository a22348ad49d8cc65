package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultValues(t *testing.T) {
	cfg := Default()

	if cfg.Agent.MaxIterations != 20 {
		t.Errorf("MaxIterations = %d, want 20", cfg.Agent.MaxIterations)
	}
	if cfg.HTTP.Port != 18890 {
		t.Errorf("HTTP.Port = %d, want 18890", cfg.HTTP.Port)
	}
	if cfg.Providers.Default != "anthropic" {
		t.Errorf("Providers.Default = %q, want anthropic", cfg.Providers.Default)
	}
	if !cfg.Agent.SummarizationEnabled() {
		t.Error("summarization should default to enabled")
	}
	if cfg.Agent.SummaryThreshold != 20 {
		t.Errorf("SummaryThreshold = %d, want 20", cfg.Agent.SummaryThreshold)
	}
	if got := cfg.Storage.MaxFileBytes(); got != 10*1024*1024 {
		t.Errorf("MaxFileBytes = %d, want 10MiB", got)
	}
	if !cfg.Memory.MemoryEnabled() || !cfg.Instincts.InstinctsEnabled() {
		t.Error("memory and instincts should default to enabled")
	}
	want := []string{".txt", ".md", ".py", ".js", ".ts", ".json", ".yaml", ".yml", ".csv", ".xml", ".html", ".css", ".sh", ".bash", ".png", ".jpg", ".jpeg", ".gif", ".webp", ".pdf"}
	if len(cfg.Storage.AllowedFileExtensions) != len(want) {
		t.Errorf("AllowedFileExtensions has %d entries, want %d", len(cfg.Storage.AllowedFileExtensions), len(want))
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("Load on missing file: %v", err)
	}
	if cfg.Agent.MaxIterations != 20 {
		t.Errorf("missing file should yield defaults, got MaxIterations=%d", cfg.Agent.MaxIterations)
	}
}

func TestLoadJSON5WithComments(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	content := `{
		// comments are allowed
		agent: { max_iterations: 5 },
		http: { port: 9999 },
		providers: { default: "openai" },
	}`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Agent.MaxIterations != 5 {
		t.Errorf("MaxIterations = %d, want 5", cfg.Agent.MaxIterations)
	}
	if cfg.HTTP.Port != 9999 {
		t.Errorf("Port = %d, want 9999", cfg.HTTP.Port)
	}
	if cfg.Providers.Default != "openai" {
		t.Errorf("Default provider = %q, want openai", cfg.Providers.Default)
	}
	// Untouched sections keep defaults
	if cfg.Scheduler.TickIntervalSeconds != 30 {
		t.Errorf("TickIntervalSeconds = %d, want default 30", cfg.Scheduler.TickIntervalSeconds)
	}
}

func TestEnvOverridesWinAndAutoEnable(t *testing.T) {
	t.Setenv("GOAIDE_TELEGRAM_TOKEN", "tg-secret")
	t.Setenv("GOAIDE_PORT", "7777")
	t.Setenv("GOAIDE_POSTGRES_DSN", "postgres://u:p@h/db")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Channels.Telegram.Token != "tg-secret" {
		t.Errorf("telegram token = %q, want env value", cfg.Channels.Telegram.Token)
	}
	if !cfg.Channels.Telegram.Enabled {
		t.Error("telegram should auto-enable when token set via env")
	}
	if cfg.HTTP.Port != 7777 {
		t.Errorf("port = %d, want 7777", cfg.HTTP.Port)
	}
	if cfg.Storage.PostgresDSN != "postgres://u:p@h/db" {
		t.Errorf("dsn = %q", cfg.Storage.PostgresDSN)
	}
}

func TestSaveNeverPersistsSecrets(t *testing.T) {
	cfg := Default()
	cfg.Providers.Anthropic.APIKey = "sk-ant-secret"
	cfg.HTTP.Token = "bearer-secret"
	cfg.Storage.PostgresDSN = "postgres://u:p@h/db"
	cfg.StripSecrets()

	path := filepath.Join(t.TempDir(), "config.json")
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, secret := range []string{"sk-ant-secret", "bearer-secret", "postgres://u:p@h/db"} {
		if strings.Contains(string(data), secret) {
			t.Errorf("saved config leaks secret %q", secret)
		}
	}
}

func TestMaskedCopy(t *testing.T) {
	cfg := Default()
	cfg.Providers.Anthropic.APIKey = "sk-ant-secret"
	cfg.Channels.Discord.Token = "discord-secret"

	cp := cfg.MaskedCopy()
	if cp.Providers.Anthropic.APIKey != "***" {
		t.Errorf("anthropic key = %q, want masked", cp.Providers.Anthropic.APIKey)
	}
	if cp.Channels.Discord.Token != "***" {
		t.Errorf("discord token = %q, want masked", cp.Channels.Discord.Token)
	}
	// OpenAI key was empty and must stay empty, not masked
	if cp.Providers.OpenAI.APIKey != "" {
		t.Errorf("empty key should stay empty, got %q", cp.Providers.OpenAI.APIKey)
	}
	// Original untouched
	if cfg.Providers.Anthropic.APIKey != "sk-ant-secret" {
		t.Error("MaskedCopy mutated the original")
	}
}

func TestStripMaskedSecrets(t *testing.T) {
	cfg := Default()
	cfg.Providers.Anthropic.APIKey = "***"
	cfg.Channels.Telegram.Token = "real-token"

	cfg.StripMaskedSecrets()
	if cfg.Providers.Anthropic.APIKey != "" {
		t.Errorf("masked key should be stripped, got %q", cfg.Providers.Anthropic.APIKey)
	}
	if cfg.Channels.Telegram.Token != "real-token" {
		t.Errorf("real value should survive, got %q", cfg.Channels.Telegram.Token)
	}
}

func TestFlexibleStringSlice(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{name: "strings", in: `["a","b"]`, want: []string{"a", "b"}},
		{name: "numbers", in: `[123, 456]`, want: []string{"123", "456"}},
		{name: "mixed", in: `["a", 7]`, want: []string{"a", "7"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got FlexibleStringSlice
			if err := got.UnmarshalJSON([]byte(tt.in)); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("len = %d, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestProviderLookup(t *testing.T) {
	cfg := Default()
	cfg.Providers.Default = "zhipu"

	name, pc := cfg.Provider("")
	if name != "zhipu" || pc.Model != "glm-4-plus" {
		t.Errorf("default lookup = (%q, %q)", name, pc.Model)
	}
	name, pc = cfg.Provider("openai")
	if name != "openai" || pc.Model != "gpt-4o" {
		t.Errorf("openai lookup = (%q, %q)", name, pc.Model)
	}
	// Unknown names fall back to anthropic
	name, _ = cfg.Provider("mystery")
	if name != "anthropic" {
		t.Errorf("unknown provider resolved to %q, want anthropic", name)
	}
}

func TestSchedulerTickClamp(t *testing.T) {
	tests := []struct {
		name string
		sec  int
		want string
	}{
		{name: "default", sec: 0, want: "30s"},
		{name: "explicit", sec: 10, want: "10s"},
		{name: "over max", sec: 120, want: "30s"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := SchedulerConfig{TickIntervalSeconds: tt.sec}
			if got := s.TickInterval().String(); got != tt.want {
				t.Errorf("TickInterval = %s, want %s", got, tt.want)
			}
		})
	}
}
