package cmd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/goaide/internal/agent"
	"github.com/nextlevelbuilder/goaide/internal/bootstrap"
	"github.com/nextlevelbuilder/goaide/internal/bus"
	"github.com/nextlevelbuilder/goaide/internal/channels"
	"github.com/nextlevelbuilder/goaide/internal/channels/discord"
	"github.com/nextlevelbuilder/goaide/internal/channels/telegram"
	"github.com/nextlevelbuilder/goaide/internal/config"
	"github.com/nextlevelbuilder/goaide/internal/flows"
	"github.com/nextlevelbuilder/goaide/internal/gateway"
	httpapi "github.com/nextlevelbuilder/goaide/internal/http"
	"github.com/nextlevelbuilder/goaide/internal/identity"
	"github.com/nextlevelbuilder/goaide/internal/instinct"
	"github.com/nextlevelbuilder/goaide/internal/mcp"
	"github.com/nextlevelbuilder/goaide/internal/memory"
	"github.com/nextlevelbuilder/goaide/internal/middleware"
	"github.com/nextlevelbuilder/goaide/internal/providers"
	"github.com/nextlevelbuilder/goaide/internal/scheduler"
	"github.com/nextlevelbuilder/goaide/internal/store"
	"github.com/nextlevelbuilder/goaide/internal/store/file"
	"github.com/nextlevelbuilder/goaide/internal/store/mem"
	"github.com/nextlevelbuilder/goaide/internal/store/pg"
	"github.com/nextlevelbuilder/goaide/internal/tools"
	"github.com/nextlevelbuilder/goaide/internal/tracing"
	"github.com/nextlevelbuilder/goaide/internal/workspace"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the agent runtime (channels, HTTP gateway, scheduler)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	tracer, err := tracing.Setup(ctx, cfg.Telemetry)
	if err != nil {
		slog.Warn("telemetry disabled", "error", err)
	}
	if tracer != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			tracer.Shutdown(shutdownCtx)
		}()
	}

	registry, provider, model, err := buildProviders(cfg)
	if err != nil {
		return err
	}
	slog.Info("provider ready", "provider", provider.Name(), "model", model)

	stores, db, err := openStores(cfg)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	router := workspace.NewRouter(cfg.Storage)
	resolver := identity.NewResolver(stores.Identity)
	if err := bootstrap.Seed(ctx, resolver, router); err != nil {
		return err
	}

	var memStore *memory.Store
	if cfg.Memory.MemoryEnabled() {
		memStore = memory.NewStore(router)
	}
	var instincts *instinct.Store
	if cfg.Instincts.InstinctsEnabled() {
		instincts = instinct.NewStore(router)
	}

	msgBus := bus.New()

	toolReg := tools.NewRegistry()
	registerBuiltinTools(toolReg, cfg, router, stores, memStore, registry)

	mcpMgr := mcp.NewManager(toolReg, mcp.WithConfigs(cfg.MCP.Servers), mcp.WithStore(stores.MCP))
	if err := mcpMgr.Start(ctx); err != nil {
		slog.Warn("mcp startup incomplete", "error", err)
	}
	defer mcpMgr.Stop()

	breaker := middleware.NewLoopBreakerFromConfig(cfg.Middleware.LoopBreaker)
	dispatcherOpts := []tools.DispatcherOption{}
	if breaker != nil {
		dispatcherOpts = append(dispatcherOpts, tools.WithCallRecorder(breaker.Record))
	}
	dispatcher := tools.NewDispatcher(toolReg, dispatcherOpts...)

	chain := middleware.NewChain(middleware.DefaultStack(middleware.StackDeps{
		Config:      cfg,
		Provider:    provider,
		Model:       model,
		Memory:      memStore,
		Instincts:   instincts,
		LoopBreaker: breaker,
	})...)

	loop := agent.NewLoop(agent.LoopConfig{
		Provider:            provider,
		Model:               model,
		MaxIterations:       cfg.Agent.MaxIterations,
		ContextWindow:       cfg.Agent.ContextWindow,
		Chain:               chain,
		Dispatcher:          dispatcher,
		Checkpoints:         stores.Checkpoints,
		Events:              msgBus,
		Tracer:              tracer,
		SystemPrompt:        cfg.Agent.SystemPrompt,
		EnableSummarization: cfg.Agent.SummarizationEnabled(),
		SummaryThreshold:    cfg.Agent.SummaryThreshold,
		KeepLastMessages:    cfg.Agent.KeepLastMessages,
		TurnTimeout:         cfg.Agent.TurnTimeout(),
	})

	manager := channels.NewManager(msgBus)
	admin := channels.NewAdmin(resolver, router)

	if cfg.Channels.Telegram.Enabled {
		tg, err := telegram.New(cfg.Channels.Telegram, msgBus, admin)
		if err != nil {
			return fmt.Errorf("telegram channel: %w", err)
		}
		manager.Register(tg)
	}
	if cfg.Channels.Discord.Enabled {
		dc, err := discord.New(cfg.Channels.Discord, msgBus, admin)
		if err != nil {
			return fmt.Errorf("discord channel: %w", err)
		}
		manager.Register(dc)
	}

	flowRunner := flows.NewRunner(stores.Flows, loop, manager)
	toolReg.Register(tools.NewRunFlowTool(flowRunner))

	sched := scheduler.New(scheduler.Config{
		Reminders: stores.Reminders,
		Flows:     stores.Flows,
		Executor:  flowRunner,
		Router:    msgBus,
		Interval:  cfg.Scheduler.TickInterval(),
	})

	consumer := gateway.NewConsumer(msgBus, loop, resolver, router, manager)

	auth := httpapi.NewAuth(cfg.HTTP)
	srv := gateway.NewServer(cfg.HTTP, msgBus, readyProbe(db),
		httpapi.NewMessageHandler(consumer, auth),
		httpapi.NewSummarizeHandler(registry, provider.Name(), model, auth),
		httpapi.NewManagementHandler(stores.Reminders, stores.Flows, resolver, memStore, auth),
	)

	if err := manager.StartAll(ctx); err != nil {
		return fmt.Errorf("start channels: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		manager.StopAll(stopCtx)
	}()

	sched.Start(ctx)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		consumer.Run(ctx)
		return nil
	})
	g.Go(func() error {
		return srv.Start(ctx)
	})
	g.Go(func() error {
		err := config.Watch(ctx, cfgPath, cfg, func() {
			slog.Info("configuration reloaded", "path", cfgPath)
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	if cfg.Tailscale.Hostname != "" {
		g.Go(func() error {
			if err := srv.StartTailscale(ctx, cfg.Tailscale.Hostname); err != nil {
				slog.Warn("tailscale listener unavailable", "error", err)
			}
			return nil
		})
	}

	slog.Info("goaide running", "version", Version)
	err = g.Wait()
	sched.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	slog.Info("goaide stopped")
	return nil
}

// buildProviders registers every configured backend and returns the
// default one plus its model.
func buildProviders(cfg *config.Config) (*providers.Registry, providers.Provider, string, error) {
	registry := providers.NewRegistry()

	if key := cfg.Providers.Anthropic.APIKey; key != "" {
		opts := []providers.AnthropicOption{}
		if m := cfg.Providers.Anthropic.Model; m != "" {
			opts = append(opts, providers.WithAnthropicModel(m))
		}
		if u := cfg.Providers.Anthropic.BaseURL; u != "" {
			opts = append(opts, providers.WithAnthropicBaseURL(u))
		}
		registry.Register(providers.NewAnthropicProvider(key, opts...))
	}
	if key := cfg.Providers.OpenAI.APIKey; key != "" {
		registry.Register(providers.NewOpenAIProvider("openai", key,
			cfg.Providers.OpenAI.BaseURL, cfg.Providers.OpenAI.Model))
	}
	if key := cfg.Providers.Zhipu.APIKey; key != "" {
		registry.Register(providers.NewZhipuProvider(key,
			cfg.Providers.Zhipu.BaseURL, cfg.Providers.Zhipu.Model))
	}

	if len(registry.List()) == 0 {
		return nil, nil, "", fmt.Errorf("no model provider configured: set GOAIDE_ANTHROPIC_API_KEY, GOAIDE_OPENAI_API_KEY or GOAIDE_ZHIPU_API_KEY (or run 'goaide init')")
	}

	name, pcfg := cfg.Provider(cfg.Providers.Default)
	provider, err := registry.Get(name)
	if err != nil {
		// Default names an unconfigured backend; fall back to whatever is registered.
		first := registry.List()[0]
		provider, err = registry.Get(first)
		if err != nil {
			return nil, nil, "", err
		}
		slog.Warn("default provider not configured, using fallback", "requested", name, "using", first)
		_, pcfg = cfg.Provider(first)
	}
	model := pcfg.Model
	if model == "" {
		model = provider.DefaultModel()
	}
	return registry, provider, model, nil
}

// openStores picks the persistence backend: Postgres when a DSN is
// present, otherwise in-memory stores with file-backed checkpoints so
// conversations survive a restart even without a database.
func openStores(cfg *config.Config) (*store.Stores, *sql.DB, error) {
	if dsn := cfg.Storage.PostgresDSN; dsn != "" {
		stores, db, err := pg.NewPGStores(dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres stores: %w", err)
		}
		slog.Info("storage: postgres")
		return stores, db, nil
	}

	stores := mem.NewMemStores()
	dir := cfg.Storage.CheckpointDir
	if dir == "" {
		dir = filepath.Join(cfg.StorageRoot(), "checkpoints")
	}
	if cfg.Storage.Checkpoints != "postgres" {
		cps, err := file.NewFileCheckpointStore(dir)
		if err != nil {
			return nil, nil, fmt.Errorf("file checkpoints: %w", err)
		}
		stores.Checkpoints = cps
	}
	slog.Info("storage: in-memory with file checkpoints", "checkpoint_dir", dir)
	return stores, nil, nil
}

// readyProbe backs /health/ready. Without a database the process is
// ready as soon as it is serving.
func readyProbe(db *sql.DB) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if db == nil {
			return nil
		}
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		return db.PingContext(pingCtx)
	}
}
