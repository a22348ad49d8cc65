// Package agent drives the reasoning loop: a bounded state machine over
// conversation state that interleaves model calls with tool execution,
// checkpointing after every node so a crash resumes where it stopped.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/goaide/internal/bus"
	"github.com/nextlevelbuilder/goaide/internal/middleware"
	"github.com/nextlevelbuilder/goaide/internal/providers"
	"github.com/nextlevelbuilder/goaide/internal/sessions"
	"github.com/nextlevelbuilder/goaide/internal/store"
	"github.com/nextlevelbuilder/goaide/internal/tools"
	"github.com/nextlevelbuilder/goaide/internal/tracing"
)

// iterationLimitMessage closes a turn that hit the reasoning cap.
const iterationLimitMessage = "I reached the iteration limit for this request. " +
	"Send a follow-up message and I will continue from here."

// providerFailureMessage is persisted when the model call fails for good
// so the thread history records why the turn ended.
const providerFailureMessage = "I could not reach the model provider and had to stop this turn."

// checkpointKeep bounds how many snapshots Prune retains per thread.
const checkpointKeep = 20

// Loop is the shared reasoning engine. One Loop serves every thread;
// Run serializes turns per thread internally.
type Loop struct {
	provider providers.Provider
	model    string

	maxIterations int
	contextWindow int

	chain       *middleware.Chain
	dispatcher  *tools.Dispatcher
	checkpoints store.CheckpointStore
	events      bus.EventPublisher
	tracer      *tracing.Tracer

	systemPrompt     string
	summarizeEnabled bool
	summaryThreshold int
	keepLast         int
	turnTimeout      time.Duration

	inputGuard      *InputGuard
	injectionAction string
	maxMessageChars int

	activeRuns  atomic.Int32
	threadLocks *sessions.Locks
}

// LoopConfig configures a new Loop.
type LoopConfig struct {
	Provider providers.Provider
	Model    string

	MaxIterations int // model/tool cycles per turn (default 20)
	ContextWindow int // tokens the model can hold (default 200000)

	Chain       *middleware.Chain
	Dispatcher  *tools.Dispatcher
	Checkpoints store.CheckpointStore
	Events      bus.EventPublisher // nil = no event broadcast
	Tracer      *tracing.Tracer    // nil = no spans

	SystemPrompt        string // replaces the built-in base prompt when set
	EnableSummarization bool
	SummaryThreshold    int // summarize after N user/assistant messages (default 20)
	KeepLastMessages    int // messages kept verbatim by the summarize node (default 4)
	TurnTimeout         time.Duration // per turn; 0 = unbounded

	InputGuard      *InputGuard // nil = auto-create when InjectionAction != "off"
	InjectionAction string      // "log", "warn" (default), "block", "off"
	MaxMessageChars int         // 0 = default 32000
}

func NewLoop(cfg LoopConfig) *Loop {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 20
	}
	if cfg.ContextWindow <= 0 {
		cfg.ContextWindow = 200000
	}
	if cfg.SummaryThreshold <= 0 {
		cfg.SummaryThreshold = 20
	}
	if cfg.KeepLastMessages <= 0 {
		cfg.KeepLastMessages = 4
	}
	if cfg.Chain == nil {
		cfg.Chain = middleware.NewChain()
	}

	action := cfg.InjectionAction
	switch action {
	case "log", "warn", "block", "off":
	default:
		action = "warn"
	}
	guard := cfg.InputGuard
	if guard == nil && action != "off" {
		guard = NewInputGuard()
	}

	return &Loop{
		provider:         cfg.Provider,
		model:            cfg.Model,
		maxIterations:    cfg.MaxIterations,
		contextWindow:    cfg.ContextWindow,
		chain:            cfg.Chain,
		dispatcher:       cfg.Dispatcher,
		checkpoints:      cfg.Checkpoints,
		events:           cfg.Events,
		tracer:           cfg.Tracer,
		systemPrompt:     cfg.SystemPrompt,
		summarizeEnabled: cfg.EnableSummarization,
		summaryThreshold: cfg.SummaryThreshold,
		keepLast:         cfg.KeepLastMessages,
		turnTimeout:      cfg.TurnTimeout,
		inputGuard:       guard,
		injectionAction:  action,
		maxMessageChars:  cfg.MaxMessageChars,
		threadLocks:      sessions.NewLocks(),
	}
}

// RunRequest is one user turn addressed to a thread.
type RunRequest struct {
	ThreadID    string // canonical "<channel>:<chat-id>"
	WorkspaceID string
	Content     string
	MessageID   string   // envelope message id; the reducer dedups on it
	Attachments []string // image files to attach to the user message
	Channel     string
	ChatType    string // "direct" or "group"
	UserID      string
	SenderID    string // individual sender in group chats
	RunID       string

	ExtraSystemPrompt string // channel appendix placed after the base prompt
	HistoryLimit      int    // max user turns sent to the model (0 = all)

	// OnChunk receives streamed content pieces. Nil disables streaming.
	OnChunk func(content string)
}

// RunResult is the output of a completed turn.
type RunResult struct {
	Content    string           `json:"content"`
	RunID      string           `json:"runId"`
	Iterations int              `json:"iterations"`
	Usage      *providers.Usage `json:"usage,omitempty"`
}

// turn carries one Run invocation through the state machine nodes.
type turn struct {
	req   RunRequest
	run   *middleware.Run
	state *State
	usage providers.Usage

	// msgs buffers every message this turn produced, user message first.
	// Survives summarize compaction, so AfterAgent hooks and the final
	// content extraction always see the whole turn.
	msgs []providers.Message
}

func (t *turn) append(msg providers.Message) {
	t.state.append(newStateMessage(msg))
	t.msgs = append(t.msgs, msg)
}

// IsRunning reports whether any turn is currently executing.
func (l *Loop) IsRunning() bool {
	return l.activeRuns.Load() > 0
}

// Run processes one turn through the reasoning machine. It blocks until
// the turn ends and returns the final assistant content. Turns for the
// same thread are serialized; checkpoint writes per thread are strictly
// ordered behind that lock.
func (l *Loop) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	l.activeRuns.Add(1)
	defer l.activeRuns.Add(-1)

	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}

	unlock := l.lockThread(req.ThreadID)
	defer unlock()

	if l.turnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.turnTimeout)
		defer cancel()
	}
	ctx = l.bindContext(ctx, req)

	l.emit("run.started", map[string]interface{}{
		"run_id": req.RunID, "thread_id": req.ThreadID, "channel": req.Channel,
	})

	ctx, span := l.tracer.StartRun(ctx, req.Channel, req.ThreadID, req.RunID)
	result, err := l.runTurn(ctx, req)
	tracing.End(span, err)

	if err != nil {
		l.emit("run.failed", map[string]interface{}{
			"run_id": req.RunID, "thread_id": req.ThreadID, "error": err.Error(),
		})
		return nil, err
	}

	l.emit("run.completed", map[string]interface{}{
		"run_id": req.RunID, "thread_id": req.ThreadID, "iterations": result.Iterations,
	})
	return result, nil
}

// bindContext scopes ctx to the request so storage and tools resolve the
// right tenant without further plumbing.
func (l *Loop) bindContext(ctx context.Context, req RunRequest) context.Context {
	if req.WorkspaceID != "" {
		ctx = store.WithWorkspaceID(ctx, req.WorkspaceID)
	}
	if req.ThreadID != "" {
		ctx = store.WithThreadID(ctx, req.ThreadID)
	}
	if req.UserID != "" {
		ctx = store.WithUserID(ctx, req.UserID)
	}
	if req.Channel != "" {
		ctx = store.WithChannel(ctx, req.Channel)
	}
	if req.ChatType != "" {
		ctx = store.WithChatType(ctx, req.ChatType)
	}
	if len(req.Attachments) > 0 {
		ctx = tools.WithMediaImages(ctx, loadImages(req.Attachments))
	}
	return ctx
}

func (l *Loop) lockThread(threadID string) func() {
	return l.threadLocks.Acquire(threadID)
}

func (l *Loop) runTurn(ctx context.Context, req RunRequest) (*RunResult, error) {
	if err := l.guardInput(&req); err != nil {
		return nil, err
	}

	st, resumeNode, err := l.loadState(ctx, req.ThreadID)
	if err != nil {
		return nil, err
	}

	// A non-end node in the latest checkpoint means the previous turn was
	// interrupted. Finish it first so the machine never runs two turns
	// interleaved on one thread; its closing message stays in history and
	// this turn's reply supersedes it.
	if resumeNode != nodeEnd {
		slog.Info("agent: resuming interrupted turn",
			"thread", req.ThreadID, "node", string(resumeNode))
		recovery := &turn{req: req, run: middleware.NewRun(req.ThreadID), state: st}
		if err := l.drive(ctx, recovery, resumeNode); err != nil {
			return nil, err
		}
	}

	t := &turn{req: req, run: middleware.NewRun(req.ThreadID), state: st}

	// New user input starts a fresh reasoning cycle.
	userMsg := providers.Message{
		Role:    "user",
		Content: req.Content,
		Images:  loadImages(req.Attachments),
	}
	id := req.MessageID
	if id == "" {
		id = uuid.NewString()
	}
	st.append(StateMessage{ID: id, Message: userMsg})
	t.msgs = append(t.msgs, userMsg)
	st.Iterations = 0
	st.UserID = req.UserID
	st.Channel = req.Channel

	l.checkpoint(ctx, req, nodeAgent, st)

	if err := l.drive(ctx, t, nodeAgent); err != nil {
		return nil, err
	}

	// A middleware stop message becomes the closing assistant message
	// when the machine ended without one.
	if msg, stopped := t.run.Stopped(); stopped {
		if last := st.lastMessage(); last == nil || last.Role != "assistant" || strings.TrimSpace(last.Content) == "" {
			t.append(providers.Message{Role: "assistant", Content: msg})
		}
	}

	finalContent := SanitizeAssistantContent(lastAssistantText(t.msgs))
	isSilent := IsSilentReply(finalContent)
	if finalContent == "" {
		finalContent = "..."
	}
	if isSilent {
		slog.Info("agent: silent reply, suppressing delivery", "thread", req.ThreadID)
		finalContent = ""
	}

	if err := l.chain.FinishRun(ctx, t.run, t.msgs); err != nil {
		slog.Warn("agent: after-agent hooks failed", "thread", req.ThreadID, "error", err)
	}

	if l.checkpoints != nil {
		if err := l.checkpoints.Prune(ctx, req.ThreadID, checkpointKeep); err != nil {
			slog.Warn("agent: checkpoint prune failed", "thread", req.ThreadID, "error", err)
		}
	}

	return &RunResult{
		Content:    finalContent,
		RunID:      req.RunID,
		Iterations: st.Iterations,
		Usage:      &t.usage,
	}, nil
}

// guardInput scans for injection patterns and truncates oversized
// messages before anything is persisted.
func (l *Loop) guardInput(req *RunRequest) error {
	if l.inputGuard != nil {
		if matches := l.inputGuard.Scan(req.Content); len(matches) > 0 {
			patterns := strings.Join(matches, ",")
			switch l.injectionAction {
			case "block":
				slog.Warn("security.injection_blocked",
					"thread", req.ThreadID, "user", req.UserID,
					"patterns", patterns, "message_len", len(req.Content))
				return fmt.Errorf("message blocked: potential prompt injection detected (%s)", patterns)
			case "log":
				slog.Info("security.injection_detected",
					"thread", req.ThreadID, "user", req.UserID,
					"patterns", patterns, "message_len", len(req.Content))
			default:
				slog.Warn("security.injection_detected",
					"thread", req.ThreadID, "user", req.UserID,
					"patterns", patterns, "message_len", len(req.Content))
			}
		}
	}

	maxChars := l.maxMessageChars
	if maxChars <= 0 {
		maxChars = 32_000
	}
	if len(req.Content) > maxChars {
		originalLen := len(req.Content)
		req.Content = req.Content[:maxChars] +
			fmt.Sprintf("\n\n[System: Message was truncated from %d to %d characters due to size limit. "+
				"Please ask the user to send shorter messages or use the read_file tool for large content.]",
				originalLen, maxChars)
		slog.Warn("security.message_truncated",
			"thread", req.ThreadID, "user", req.UserID,
			"original_len", originalLen, "truncated_to", maxChars)
	}
	return nil
}

// loadState restores the thread's state from its latest checkpoint.
// Returns the node the machine was at, nodeEnd when the last turn
// completed or no checkpoint exists.
func (l *Loop) loadState(ctx context.Context, threadID string) (*State, node, error) {
	if l.checkpoints == nil {
		return &State{}, nodeEnd, nil
	}
	cp, err := l.checkpoints.Latest(ctx, threadID)
	if errors.Is(err, store.ErrNotFound) {
		return &State{}, nodeEnd, nil
	}
	if err != nil {
		return nil, nodeEnd, fmt.Errorf("load checkpoint: %w", err)
	}
	snap, err := decodeSnapshot(cp.State)
	if err != nil {
		slog.Warn("agent: discarding unreadable checkpoint", "thread", threadID, "error", err)
		return &State{}, nodeEnd, nil
	}
	return &snap.State, snap.Node, nil
}

// checkpoint persists the machine position after a transition. Failures
// are logged, not fatal: losing a snapshot degrades crash recovery, not
// the running turn. A cancelled turn still writes its snapshot.
func (l *Loop) checkpoint(ctx context.Context, req RunRequest, n node, st *State) {
	if l.checkpoints == nil {
		return
	}
	raw, err := encodeSnapshot(n, st)
	if err != nil {
		slog.Warn("agent: checkpoint encode failed", "thread", req.ThreadID, "error", err)
		return
	}
	if ctx.Err() != nil {
		ctx = context.WithoutCancel(ctx)
	}
	cp := &store.Checkpoint{
		ID:          uuid.New(),
		WorkspaceID: req.WorkspaceID,
		ThreadID:    req.ThreadID,
		State:       raw,
		CreatedAt:   time.Now().UTC(),
	}
	if err := l.checkpoints.Put(ctx, cp); err != nil {
		slog.Warn("agent: checkpoint write failed", "thread", req.ThreadID, "node", string(n), "error", err)
	}
}

// drive runs the machine from start until it reaches end. Every
// transition is checkpointed; cancellation lands between nodes so the
// results of the node that just finished are already recorded.
func (l *Loop) drive(ctx context.Context, t *turn, start node) error {
	current := start
	for current != nodeEnd {
		var next node
		var err error

		switch current {
		case nodeAgent:
			next, err = l.agentNode(ctx, t)
		case nodeTools:
			next, err = l.toolsNode(ctx, t)
		case nodeSummarize:
			next, err = l.summarizeNode(ctx, t)
		default:
			next = nodeEnd
		}

		if _, stopped := t.run.Stopped(); stopped && err == nil {
			next = nodeEnd
		}

		l.checkpoint(ctx, t.req, next, t.state)
		if err != nil {
			return err
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		current = next
	}
	return nil
}

// agentNode performs one reasoning cycle: cap check, model call, route.
// Routing tie-breaks: tool calls beat summarization, summarization beats
// end. The cap check runs at entry, so a turn makes at most
// maxIterations model calls plus this one closing node.
func (l *Loop) agentNode(ctx context.Context, t *turn) (node, error) {
	st := t.state

	if st.Iterations >= l.maxIterations {
		slog.Warn("agent: iteration limit reached",
			"thread", t.req.ThreadID, "iterations", st.Iterations)
		t.append(providers.Message{Role: "assistant", Content: iterationLimitMessage})
		return nodeEnd, nil
	}
	st.Iterations++

	slog.Debug("agent: iteration",
		"thread", t.req.ThreadID, "iteration", st.Iterations, "messages", len(st.Messages))

	mreq := l.buildRequest(t)
	resp, err := l.chain.CallModel(ctx, t.run, mreq, l.modelCaller(t.req))
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nodeEnd, err
		}
		t.append(providers.Message{Role: "assistant", Content: providerFailureMessage})
		return nodeEnd, fmt.Errorf("model call failed (iteration %d): %w", st.Iterations, err)
	}

	if resp.Usage != nil {
		t.usage.PromptTokens += resp.Usage.PromptTokens
		t.usage.CompletionTokens += resp.Usage.CompletionTokens
		t.usage.TotalTokens += resp.Usage.TotalTokens
		t.usage.CacheCreationTokens += resp.Usage.CacheCreationTokens
		t.usage.CacheReadTokens += resp.Usage.CacheReadTokens
	}

	content := resp.Content
	toolCalls := resp.ToolCalls

	// Some models emit the tool-call block as text instead of using the
	// structured field.
	if len(toolCalls) == 0 && tools.HasEmbeddedCalls(content) {
		embedded, perr := tools.ParseEmbeddedCalls(content)
		if perr != nil {
			slog.Warn("agent: rejecting interleaved tool call block", "thread", t.req.ThreadID)
			t.append(providers.Message{Role: "assistant", Content: content})
			t.append(providers.Message{
				Role: "user",
				Content: "[System: The tool call block was mixed with prose and was not executed. " +
					"Reply with the tool call block alone, or answer in plain text without one.]",
			})
			return nodeAgent, nil
		}
		for _, ec := range embedded {
			toolCalls = append(toolCalls, providers.ToolCall{
				ID:        uuid.NewString(),
				Name:      ec.Name,
				Arguments: ec.Arguments,
			})
		}
		if len(toolCalls) > 0 {
			content = ""
		}
	}

	msg := providers.Message{Role: "assistant", Content: content, ToolCalls: toolCalls}
	t.append(msg)

	if len(toolCalls) > 0 {
		return nodeTools, nil
	}
	if l.summarizeEnabled && st.conversationalCount() >= l.summaryThreshold {
		return nodeSummarize, nil
	}
	return nodeEnd, nil
}

// modelCaller adapts the provider to the middleware chain's calling
// convention. Retry middleware re-invokes it per attempt, so each
// attempt gets its own span.
func (l *Loop) modelCaller(req RunRequest) middleware.ModelCaller {
	return func(ctx context.Context, mreq *middleware.Request) (*providers.ChatResponse, error) {
		messages := make([]providers.Message, 0, len(mreq.Messages)+1)
		messages = append(messages, providers.Message{Role: "system", Content: mreq.ComposeSystem()})
		messages = append(messages, mreq.Messages...)

		chatReq := providers.ChatRequest{
			Messages: messages,
			Tools:    mreq.Tools,
			Model:    mreq.Model,
			Options:  mreq.Options,
		}

		ctx, span := l.tracer.StartModelCall(ctx, l.provider.Name(), mreq.Model)

		var resp *providers.ChatResponse
		var err error
		if req.OnChunk != nil {
			resp, err = l.provider.ChatStream(ctx, chatReq, func(chunk providers.StreamChunk) {
				if chunk.Content == "" {
					return
				}
				req.OnChunk(chunk.Content)
				l.emit("chunk", map[string]interface{}{
					"run_id": req.RunID, "thread_id": req.ThreadID, "content": chunk.Content,
				})
			})
		} else {
			resp, err = l.provider.Chat(ctx, chatReq)
		}

		if err == nil && resp.Usage != nil {
			tracing.AddUsage(span, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
		}
		tracing.End(span, err)
		return resp, err
	}
}

// toolsNode executes every call of the last assistant message in the
// order the model produced them, appending one result per call id.
// Multiple calls run in parallel; results keep model order.
func (l *Loop) toolsNode(ctx context.Context, t *turn) (node, error) {
	last := t.state.lastMessage()
	if last == nil || len(last.ToolCalls) == 0 {
		return nodeAgent, nil
	}
	calls := last.ToolCalls

	// Task state tools read and write through this ref for the batch.
	ref := tools.NewTaskStateRef(t.state.TaskState)
	ctx = tools.WithTaskStateRef(ctx, ref)

	batch, err := l.chain.BeginTools(ctx, t.run, calls, l.toolInvoker())
	if err != nil {
		t.append(providers.Message{Role: "assistant", Content: providerFailureMessage})
		return nodeEnd, fmt.Errorf("before-tools hooks: %w", err)
	}

	// Announce every call upfront so channels can render progress.
	progress := tools.ToolProgressFromCtx(ctx)
	for i, call := range calls {
		l.emit("tool.call", map[string]interface{}{
			"run_id": t.req.RunID, "thread_id": t.req.ThreadID,
			"name": call.Name, "id": call.ID,
		})
		if progress != nil {
			progress(i, call.Name)
		}
	}

	pending := batch.Pending()
	if len(pending) == 1 {
		batch.Invoke(ctx, pending[0])
	} else if len(pending) > 1 {
		var wg sync.WaitGroup
		for _, i := range pending {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				batch.Invoke(ctx, i)
			}(i)
		}
		wg.Wait()
	}

	if err := l.chain.FinishTools(ctx, t.run, batch); err != nil {
		slog.Warn("agent: after-tools hooks failed", "thread", t.req.ThreadID, "error", err)
	}

	for i, call := range calls {
		result := batch.Results[i]
		if result == nil {
			result = tools.ErrorResult("Error: tool produced no result")
		}
		if result.IsError {
			errMsg := result.ForLLM
			if len(errMsg) > 200 {
				errMsg = errMsg[:200] + "..."
			}
			slog.Warn("agent: tool error", "thread", t.req.ThreadID, "tool", call.Name, "error", errMsg)
		}
		l.emit("tool.result", map[string]interface{}{
			"run_id": t.req.RunID, "thread_id": t.req.ThreadID,
			"name": call.Name, "id": call.ID, "is_error": result.IsError,
		})
		t.append(providers.Message{
			Role:       "tool",
			Content:    result.ForLLM,
			ToolCallID: call.ID,
		})
	}

	t.state.TaskState = ref.Get()
	return nodeAgent, nil
}

// toolInvoker dispatches a single call with its own span. The dispatcher
// owns the timeout, schema normalization, and the panic boundary.
func (l *Loop) toolInvoker() middleware.ToolInvoker {
	return func(ctx context.Context, call providers.ToolCall) *tools.Result {
		argsJSON, _ := json.Marshal(call.Arguments)
		slog.Info("agent: tool call", "tool", call.Name, "args_len", len(argsJSON))

		ctx, span := l.tracer.StartTool(ctx, call.Name, call.ID)
		result := l.dispatcher.Dispatch(ctx, call.Name, call.Arguments)
		if result.Usage != nil {
			tracing.AddUsage(span, result.Usage.PromptTokens, result.Usage.CompletionTokens)
		}
		tracing.End(span, result.Err)
		return result
	}
}

func (l *Loop) emit(name string, payload map[string]interface{}) {
	if l.events == nil {
		return
	}
	l.events.Broadcast(bus.Event{Name: name, Payload: payload})
}

// lastAssistantText returns the most recent non-empty assistant content
// from the turn's messages.
func lastAssistantText(msgs []providers.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == "assistant" && strings.TrimSpace(msgs[i].Content) != "" {
			return msgs[i].Content
		}
	}
	return ""
}
