// Package middleware composes interceptors around the reasoning loop.
//
// A middleware implements any subset of the hook interfaces (BeforeModel,
// WrapModelCall, AfterModel, BeforeTools, AfterTools, AfterAgent). The
// Chain asserts the hooks once at construction and invokes them in list
// order; WrapModelCall hooks nest with the first middleware outermost. A
// BeforeModel hook that returns a response short-circuits the remaining
// middlewares and the model call itself.
//
// Hooks mutate the request by replacing fields. Slices shared with the
// caller must never be edited in place; build a copy and swap it in.
package middleware

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/nextlevelbuilder/goaide/internal/providers"
	"github.com/nextlevelbuilder/goaide/internal/tools"
)

// Middleware is the common surface; behavior lives in the optional hook
// interfaces.
type Middleware interface {
	Name() string
}

// ModelCaller performs the underlying provider call.
type ModelCaller func(ctx context.Context, req *Request) (*providers.ChatResponse, error)

// ToolInvoker executes a single tool call. The loop supplies it when it
// opens a batch; hooks reuse it for retries.
type ToolInvoker func(ctx context.Context, call providers.ToolCall) *tools.Result

// BeforeModelHook runs before each model call. A non-nil response is
// used verbatim and the model is not called.
type BeforeModelHook interface {
	BeforeModel(ctx context.Context, run *Run, req *Request) (*providers.ChatResponse, error)
}

// WrapModelCallHook wraps the provider call itself, e.g. for retries.
type WrapModelCallHook interface {
	WrapModelCall(ctx context.Context, run *Run, req *Request, next ModelCaller) (*providers.ChatResponse, error)
}

// AfterModelHook runs after a successful model call and may edit the
// response in place.
type AfterModelHook interface {
	AfterModel(ctx context.Context, run *Run, req *Request, resp *providers.ChatResponse) error
}

// BeforeToolsHook runs before a batch of tool calls executes. Filling
// batch.Results[i] suppresses execution of that call.
type BeforeToolsHook interface {
	BeforeTools(ctx context.Context, run *Run, batch *ToolBatch) error
}

// AfterToolsHook runs once every call in the batch has a result. It may
// rewrite results or re-invoke individual calls.
type AfterToolsHook interface {
	AfterTools(ctx context.Context, run *Run, batch *ToolBatch) error
}

// AfterAgentHook runs once per turn with the messages the turn produced,
// the user message first.
type AfterAgentHook interface {
	AfterAgent(ctx context.Context, run *Run, msgs []providers.Message) error
}

// Request is the model-call input assembled by the loop. The system
// prompt travels in three parts so injecting middlewares can place their
// sections between the base prompt and the channel appendix.
type Request struct {
	System   string   // base system prompt
	Inserts  []string // blocks placed between System and Appendix
	Appendix string   // channel-specific suffix
	Messages []providers.Message
	Tools    []providers.ToolDefinition
	Model    string
	Options  map[string]interface{}
}

// ComposeSystem joins the system prompt parts, skipping empty blocks.
func (r *Request) ComposeSystem() string {
	parts := make([]string, 0, len(r.Inserts)+2)
	if s := strings.TrimSpace(r.System); s != "" {
		parts = append(parts, s)
	}
	for _, ins := range r.Inserts {
		if s := strings.TrimSpace(ins); s != "" {
			parts = append(parts, s)
		}
	}
	if s := strings.TrimSpace(r.Appendix); s != "" {
		parts = append(parts, s)
	}
	return strings.Join(parts, "\n\n")
}

// LastUserMessage returns the content of the most recent user message.
func (r *Request) LastUserMessage() string {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == "user" {
			return r.Messages[i].Content
		}
	}
	return ""
}

// Run tracks per-turn pipeline state shared across hooks. Counters are
// safe for the loop's parallel tool dispatch.
type Run struct {
	ThreadKey string

	modelCalls atomic.Int32
	toolCalls  atomic.Int32

	mu   sync.Mutex
	stop string
	seen map[string]bool
}

func NewRun(threadKey string) *Run {
	return &Run{ThreadKey: threadKey, seen: make(map[string]bool)}
}

// ModelCalls returns the number of completed model calls this turn.
func (r *Run) ModelCalls() int { return int(r.modelCalls.Load()) }

// ToolCalls returns the number of executed tool calls this turn.
func (r *Run) ToolCalls() int { return int(r.toolCalls.Load()) }

// Stop asks the loop to end the turn after the current node. The first
// message wins and becomes the closing assistant message when the model
// produced none.
func (r *Run) Stop(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stop == "" {
		r.stop = message
	}
}

// Stopped reports whether a middleware requested the turn to end.
func (r *Run) Stopped() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stop, r.stop != ""
}

// Once returns true the first time key is seen during this run. Hooks
// that fire on every model call use it to do once-per-turn work.
func (r *Run) Once(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.seen[key] {
		return false
	}
	r.seen[key] = true
	return true
}

// ToolBatch carries the tool calls of one model turn through the tool
// hooks. Results is index-aligned with Calls; a nil entry has not been
// executed yet.
type ToolBatch struct {
	Calls   []providers.ToolCall
	Results []*tools.Result

	run    *Run
	invoke ToolInvoker
}

// Invoke executes call i, records the result, and returns it. Safe for
// concurrent use on distinct indexes.
func (b *ToolBatch) Invoke(ctx context.Context, i int) *tools.Result {
	result := b.invoke(ctx, b.Calls[i])
	b.run.toolCalls.Add(1)
	b.Results[i] = result
	return result
}

// Pending returns the indexes that still need execution.
func (b *ToolBatch) Pending() []int {
	var idx []int
	for i, r := range b.Results {
		if r == nil {
			idx = append(idx, i)
		}
	}
	return idx
}

// Chain is an ordered middleware list with hooks resolved up front.
type Chain struct {
	names       []string
	beforeModel []BeforeModelHook
	wrapModel   []WrapModelCallHook
	afterModel  []AfterModelHook
	beforeTools []BeforeToolsHook
	afterTools  []AfterToolsHook
	afterAgent  []AfterAgentHook
}

// NewChain fixes the middleware order. Nil entries are skipped so callers
// can assemble the list conditionally.
func NewChain(mws ...Middleware) *Chain {
	c := &Chain{}
	for _, mw := range mws {
		if mw == nil {
			continue
		}
		c.names = append(c.names, mw.Name())
		if h, ok := mw.(BeforeModelHook); ok {
			c.beforeModel = append(c.beforeModel, h)
		}
		if h, ok := mw.(WrapModelCallHook); ok {
			c.wrapModel = append(c.wrapModel, h)
		}
		if h, ok := mw.(AfterModelHook); ok {
			c.afterModel = append(c.afterModel, h)
		}
		if h, ok := mw.(BeforeToolsHook); ok {
			c.beforeTools = append(c.beforeTools, h)
		}
		if h, ok := mw.(AfterToolsHook); ok {
			c.afterTools = append(c.afterTools, h)
		}
		if h, ok := mw.(AfterAgentHook); ok {
			c.afterAgent = append(c.afterAgent, h)
		}
	}
	return c
}

// Names lists the composed middlewares in order.
func (c *Chain) Names() []string {
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}

// CallModel runs the model hooks around caller and counts the call.
func (c *Chain) CallModel(ctx context.Context, run *Run, req *Request, caller ModelCaller) (*providers.ChatResponse, error) {
	for _, h := range c.beforeModel {
		resp, err := h.BeforeModel(ctx, run, req)
		if err != nil {
			return nil, err
		}
		if resp != nil {
			return resp, nil
		}
	}

	next := caller
	for i := len(c.wrapModel) - 1; i >= 0; i-- {
		h := c.wrapModel[i]
		inner := next
		next = func(ctx context.Context, req *Request) (*providers.ChatResponse, error) {
			return h.WrapModelCall(ctx, run, req, inner)
		}
	}

	resp, err := next(ctx, req)
	if err != nil {
		return nil, err
	}
	run.modelCalls.Add(1)

	for _, h := range c.afterModel {
		if err := h.AfterModel(ctx, run, req, resp); err != nil {
			return nil, err
		}
	}
	return resp, nil
}

// BeginTools opens a batch for one model turn's tool calls and runs the
// BeforeTools hooks. The loop executes the batch's Pending indexes and
// then calls FinishTools.
func (c *Chain) BeginTools(ctx context.Context, run *Run, calls []providers.ToolCall, invoke ToolInvoker) (*ToolBatch, error) {
	batch := &ToolBatch{
		Calls:   calls,
		Results: make([]*tools.Result, len(calls)),
		run:     run,
		invoke:  invoke,
	}
	for _, h := range c.beforeTools {
		if err := h.BeforeTools(ctx, run, batch); err != nil {
			return nil, err
		}
	}
	return batch, nil
}

// FinishTools runs the AfterTools hooks over a fully executed batch.
func (c *Chain) FinishTools(ctx context.Context, run *Run, batch *ToolBatch) error {
	for _, h := range c.afterTools {
		if err := h.AfterTools(ctx, run, batch); err != nil {
			return err
		}
	}
	return nil
}

// FinishRun runs the AfterAgent hooks with the turn's new messages.
func (c *Chain) FinishRun(ctx context.Context, run *Run, msgs []providers.Message) error {
	for _, h := range c.afterAgent {
		if err := h.AfterAgent(ctx, run, msgs); err != nil {
			return err
		}
	}
	return nil
}
