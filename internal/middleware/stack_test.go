package middleware

import (
	"reflect"
	"testing"

	"github.com/nextlevelbuilder/goaide/internal/config"
	"github.com/nextlevelbuilder/goaide/internal/instinct"
	"github.com/nextlevelbuilder/goaide/internal/memory"
	"github.com/nextlevelbuilder/goaide/internal/workspace"
)

func stackNames(mws []Middleware) []string {
	names := make([]string, len(mws))
	for i, mw := range mws {
		names[i] = mw.Name()
	}
	return names
}

func TestDefaultStackFull(t *testing.T) {
	router := workspace.NewRouter(config.StorageConfig{Root: t.TempDir()})
	cfg := &config.Config{}
	deps := StackDeps{
		Config:      cfg,
		Provider:    &stubProvider{response: "ok"},
		Model:       "m1",
		Memory:      memory.NewStore(router),
		Instincts:   instinct.NewStore(router),
		LoopBreaker: NewLoopBreakerFromConfig(cfg.Middleware.LoopBreaker),
	}

	got := stackNames(DefaultStack(deps))
	want := []string{
		"model_call_limit",
		"summarization",
		"context_editing",
		"memory_context",
		"instinct_injector",
		"model_retry",
		"tool_call_limit",
		"tool_loop_breaker",
		"tool_retry",
		"memory_learning",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("stack = %v, want %v", got, want)
	}
}

func TestDefaultStackRespectsToggles(t *testing.T) {
	off := false
	cfg := &config.Config{}
	cfg.Agent.EnableSummarization = &off
	cfg.Middleware.ContextEditing.Enabled = &off
	cfg.Middleware.LoopBreaker.Enabled = &off

	if b := NewLoopBreakerFromConfig(cfg.Middleware.LoopBreaker); b != nil {
		t.Fatal("breaker built with loop detection disabled")
	}
	got := stackNames(DefaultStack(StackDeps{Config: cfg}))
	want := []string{
		"model_call_limit",
		"model_retry",
		"tool_call_limit",
		"tool_retry",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("stack = %v, want %v", got, want)
	}
}

func TestDefaultStackMemoryToggle(t *testing.T) {
	off := false
	router := workspace.NewRouter(config.StorageConfig{Root: t.TempDir()})
	cfg := &config.Config{}
	cfg.Memory.Enabled = &off
	cfg.Instincts.Enabled = &off

	got := stackNames(DefaultStack(StackDeps{
		Config:    cfg,
		Memory:    memory.NewStore(router),
		Instincts: instinct.NewStore(router),
	}))
	for _, name := range got {
		switch name {
		case "memory_context", "memory_learning", "instinct_injector":
			t.Errorf("%s present with the feature disabled", name)
		}
	}
}
