package middleware

import (
	"github.com/nextlevelbuilder/goaide/internal/config"
	"github.com/nextlevelbuilder/goaide/internal/instinct"
	"github.com/nextlevelbuilder/goaide/internal/memory"
	"github.com/nextlevelbuilder/goaide/internal/providers"
)

// StackDeps carries the collaborators the built-in middlewares need.
// Nil Memory or Instincts leaves the corresponding middlewares out.
// The loop breaker is caller-owned so the same instance can be
// registered as the tool dispatcher's CallRecorder; nil leaves it out.
type StackDeps struct {
	Config      *config.Config
	Provider    providers.Provider // summarization model calls
	Model       string
	Memory      *memory.Store
	Instincts   *instinct.Store
	LoopBreaker *ToolLoopBreaker
}

// NewLoopBreakerFromConfig builds the shared breaker instance, or nil
// when loop detection is disabled.
func NewLoopBreakerFromConfig(cfg config.LoopBreakerConfig) *ToolLoopBreaker {
	if !cfg.BreakerEnabled() {
		return nil
	}
	return NewToolLoopBreaker(cfg.MaxRepeats, cfg.SimilarityThreshold, cfg.Window())
}

// DefaultStack assembles the built-in middlewares in their fixed order:
// caps and window shaping first, prompt injection next, retries around
// the calls themselves, learning last.
func DefaultStack(d StackDeps) []Middleware {
	cfg := d.Config
	mw := cfg.Middleware

	retry := providers.RetryConfig{
		MaxAttempts:  mw.Retry.Attempts(),
		InitialDelay: mw.Retry.BaseDelayDuration(),
		MaxDelay:     mw.Retry.MaxDelayDuration(),
	}

	memoryOn := d.Memory != nil && cfg.Memory.MemoryEnabled()

	var stack []Middleware
	stack = append(stack, NewModelCallLimit(mw.ModelCallLimit))
	if cfg.Agent.SummarizationEnabled() {
		stack = append(stack, NewSummarization(d.Provider, d.Model, cfg.Agent.MaxContextTokens, cfg.Agent.KeepLastMessages))
	}
	if mw.ContextEditing.EditingEnabled() {
		stack = append(stack, NewContextEditing(mw.ContextEditing.TriggerTokens, mw.ContextEditing.KeepLast))
	}
	if memoryOn {
		stack = append(stack, NewMemoryContext(d.Memory, mw.TopMemories()))
	}
	if d.Instincts != nil && cfg.Instincts.InstinctsEnabled() {
		stack = append(stack, NewInstinctInjector(d.Instincts))
	}
	stack = append(stack, NewModelRetry(retry))
	stack = append(stack, NewToolCallLimit(mw.ToolCallLimit))
	if d.LoopBreaker != nil {
		stack = append(stack, d.LoopBreaker)
	}
	stack = append(stack, NewToolRetry(retry))
	if memoryOn {
		stack = append(stack, NewMemoryLearning(d.Memory))
	}
	return stack
}
