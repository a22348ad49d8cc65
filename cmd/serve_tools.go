package cmd

import (
	"github.com/nextlevelbuilder/goaide/internal/config"
	"github.com/nextlevelbuilder/goaide/internal/memory"
	"github.com/nextlevelbuilder/goaide/internal/providers"
	"github.com/nextlevelbuilder/goaide/internal/store"
	"github.com/nextlevelbuilder/goaide/internal/tools"
	"github.com/nextlevelbuilder/goaide/internal/workspace"
)

// registerBuiltinTools wires every built-in tool into the registry.
// run_flow is registered separately once the flow runner exists.
func registerBuiltinTools(reg *tools.Registry, cfg *config.Config, router *workspace.Router, stores *store.Stores, memStore *memory.Store, registry *providers.Registry) {
	// Workspace file sandbox.
	reg.Register(tools.NewReadFileTool(router))
	reg.Register(tools.NewWriteFileTool(router))
	reg.Register(tools.NewListFilesTool(router))
	reg.Register(tools.NewDeleteFileTool(router))

	// Tabular store (per-workspace SQLite).
	reg.Register(tools.NewCreateTableTool(router))
	reg.Register(tools.NewInsertTableTool(router))
	reg.Register(tools.NewUpdateTableTool(router))
	reg.Register(tools.NewQueryTableTool(router))
	reg.Register(tools.NewListTablesTool(router))
	reg.Register(tools.NewDescribeTableTool(router))
	reg.Register(tools.NewDropTableTool(router))
	reg.Register(tools.NewExportTableTool(router))
	reg.Register(tools.NewImportTableTool(router))

	// Knowledge base (per-workspace vector store).
	embed := tools.ResolveEmbeddingFunc(cfg)
	reg.Register(tools.NewCreateKBCollectionTool(router, embed))
	reg.Register(tools.NewAddKBDocumentsTool(router, embed))
	reg.Register(tools.NewSearchKBTool(router, embed))
	reg.Register(tools.NewListKBCollectionsTool(router, embed))
	reg.Register(tools.NewDescribeKBCollectionTool(router, embed))
	reg.Register(tools.NewDeleteKBCollectionTool(router, embed))
	reg.Register(tools.NewDeleteKBDocumentsTool(router, embed))

	// Long-term memory.
	if memStore != nil {
		reg.Register(tools.NewSaveMemoryTool(memStore))
		reg.Register(tools.NewSearchMemoryTool(memStore))
		reg.Register(tools.NewUpdateMemoryTool(memStore))
		reg.Register(tools.NewDeleteMemoryTool(memStore))
		reg.Register(tools.NewRecentMemoriesTool(memStore))
		reg.Register(tools.NewExportMemoriesTool(memStore))
		reg.Register(tools.NewImportMemoriesTool(memStore))
	}

	// Reminders and flows.
	reg.Register(tools.NewReminderSetTool(stores.Reminders))
	reg.Register(tools.NewReminderListTool(stores.Reminders))
	reg.Register(tools.NewReminderCancelTool(stores.Reminders))
	reg.Register(tools.NewReminderEditTool(stores.Reminders))
	reg.Register(tools.NewCreateFlowTool(stores.Flows))
	reg.Register(tools.NewListFlowsTool(stores.Flows))
	reg.Register(tools.NewCancelFlowTool(stores.Flows))
	reg.Register(tools.NewDeleteFlowTool(stores.Flows))

	// Task state scratchpad.
	reg.Register(&tools.TaskStateSetTool{})
	reg.Register(&tools.TaskStateUpdateTool{})
	reg.Register(&tools.TaskStateClearTool{})
	reg.Register(&tools.TaskStateGetTool{})

	// Web access.
	if search := tools.NewWebSearchTool(webSearchConfig(cfg)); search != nil {
		reg.Register(search)
	}
	reg.Register(tools.NewWebScrapeTool(tools.WebScrapeConfig{
		BrowserEnabled:  cfg.Tools.Browser.Enabled,
		BrowserHeadless: cfg.Tools.Browser.Headless,
	}))

	// Images.
	reg.Register(tools.NewReadImageTool(registry))
	if cfg.Tools.OCR.Engine != "off" {
		reg.Register(tools.NewOCRImageTool(router, cfg.Tools.OCR))
	}

	// Sandboxed code execution, off unless enabled.
	if cfg.Tools.Exec.Enabled {
		reg.Register(tools.NewExecTool(router, cfg.Tools.Exec))
	}
}

func webSearchConfig(cfg *config.Config) tools.WebSearchConfig {
	web := cfg.Tools.Web
	count := web.Brave.MaxResults
	if count == 0 {
		count = web.DuckDuckGo.MaxResults
	}
	return tools.WebSearchConfig{
		BraveAPIKey:  web.Brave.APIKey,
		BraveEnabled: web.Brave.Enabled,
		DDGEnabled:   web.DuckDuckGo.Enabled,
		DefaultCount: count,
	}
}
