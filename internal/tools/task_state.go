package tools

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"
)

// Task state is a small scratchpad the model keeps per thread: what it
// is working on, the next step, free-form notes. It lives in the agent
// state and survives restarts through checkpoints. The loop threads a
// TaskStateRef through the tool execution context so these tools can
// read and write it.

// TaskState is the per-thread task context.
type TaskState struct {
	Intent     string `json:"intent,omitempty"`
	Target     string `json:"target,omitempty"`
	NextAction string `json:"next_action,omitempty"`
	Status     string `json:"status,omitempty"`
	Notes      string `json:"notes,omitempty"`
	UpdatedAt  string `json:"updated_at,omitempty"`
}

// TaskStateRef is a mutable holder shared between the loop and the
// task_state tools for the duration of one tool batch.
type TaskStateRef struct {
	mu    sync.Mutex
	state *TaskState
}

func NewTaskStateRef(st *TaskState) *TaskStateRef {
	return &TaskStateRef{state: st}
}

// Get returns a copy of the current task state, or nil when unset.
func (r *TaskStateRef) Get() *TaskState {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == nil {
		return nil
	}
	cp := *r.state
	return &cp
}

// Set replaces the task state.
func (r *TaskStateRef) Set(st *TaskState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = st
}

// Merge applies non-empty fields of patch over the current state and
// stamps updated_at.
func (r *TaskStateRef) Merge(patch TaskState) *TaskState {
	r.mu.Lock()
	defer r.mu.Unlock()
	merged := TaskState{}
	if r.state != nil {
		merged = *r.state
	}
	if patch.Intent != "" {
		merged.Intent = patch.Intent
	}
	if patch.Target != "" {
		merged.Target = patch.Target
	}
	if patch.NextAction != "" {
		merged.NextAction = patch.NextAction
	}
	if patch.Status != "" {
		merged.Status = patch.Status
	}
	if patch.Notes != "" {
		merged.Notes = patch.Notes
	}
	merged.UpdatedAt = nowISO()
	r.state = &merged
	cp := merged
	return &cp
}

func nowISO() string {
	return time.Now().UTC().Truncate(time.Second).Format(time.RFC3339)
}

const ctxTaskState toolContextKey = "tool_task_state"

// WithTaskStateRef attaches the thread's task state holder for one
// tool batch.
func WithTaskStateRef(ctx context.Context, ref *TaskStateRef) context.Context {
	return context.WithValue(ctx, ctxTaskState, ref)
}

func TaskStateRefFromCtx(ctx context.Context) *TaskStateRef {
	v, _ := ctx.Value(ctxTaskState).(*TaskStateRef)
	return v
}

func taskStateFieldParams(required ...string) map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"intent": map[string]interface{}{
				"type":        "string",
				"description": "What the task is trying to accomplish",
			},
			"target": map[string]interface{}{
				"type":        "string",
				"description": "The object of the task (file, table, person, url)",
			},
			"next_action": map[string]interface{}{
				"type":        "string",
				"description": "The next concrete step",
			},
			"status": map[string]interface{}{
				"type":        "string",
				"description": "active, blocked, or done. Default active.",
			},
			"notes": map[string]interface{}{
				"type":        "string",
				"description": "Free-form working notes",
			},
		},
		"required": required,
	}
}

// --- task_state_set ---

type TaskStateSetTool struct{}

func (t *TaskStateSetTool) Name() string { return "task_state_set" }

func (t *TaskStateSetTool) Description() string {
	return "Set the task state for this conversation, replacing any previous one. Use it to keep track of multi-step work."
}

func (t *TaskStateSetTool) Parameters() map[string]interface{} {
	return taskStateFieldParams("intent")
}

func (t *TaskStateSetTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	ref := TaskStateRefFromCtx(ctx)
	if ref == nil {
		return ErrorResult("task state is unavailable in this run")
	}
	intent, _ := args["intent"].(string)
	if strings.TrimSpace(intent) == "" {
		return ErrorResult("intent is required")
	}
	st := &TaskState{
		Intent:     intent,
		Target:     stringArg(args, "target"),
		NextAction: stringArg(args, "next_action"),
		Status:     stringArg(args, "status"),
		Notes:      stringArg(args, "notes"),
		UpdatedAt:  nowISO(),
	}
	if st.Status == "" {
		st.Status = "active"
	}
	ref.Set(st)
	return SilentResult("Task state set.")
}

// --- task_state_update ---

type TaskStateUpdateTool struct{}

func (t *TaskStateUpdateTool) Name() string { return "task_state_update" }

func (t *TaskStateUpdateTool) Description() string {
	return "Update fields of the current task state, leaving unset fields as they are"
}

func (t *TaskStateUpdateTool) Parameters() map[string]interface{} {
	return taskStateFieldParams()
}

func (t *TaskStateUpdateTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	ref := TaskStateRefFromCtx(ctx)
	if ref == nil {
		return ErrorResult("task state is unavailable in this run")
	}
	ref.Merge(TaskState{
		Intent:     stringArg(args, "intent"),
		Target:     stringArg(args, "target"),
		NextAction: stringArg(args, "next_action"),
		Status:     stringArg(args, "status"),
		Notes:      stringArg(args, "notes"),
	})
	return SilentResult("Task state updated.")
}

// --- task_state_clear ---

type TaskStateClearTool struct{}

func (t *TaskStateClearTool) Name() string { return "task_state_clear" }

func (t *TaskStateClearTool) Description() string {
	return "Clear the task state when the work is finished or abandoned"
}

func (t *TaskStateClearTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}

func (t *TaskStateClearTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	ref := TaskStateRefFromCtx(ctx)
	if ref == nil {
		return ErrorResult("task state is unavailable in this run")
	}
	ref.Set(nil)
	return SilentResult("Task state cleared.")
}

// --- task_state_get ---

type TaskStateGetTool struct{}

func (t *TaskStateGetTool) Name() string { return "task_state_get" }

func (t *TaskStateGetTool) Description() string {
	return "Read the current task state as JSON"
}

func (t *TaskStateGetTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}

func (t *TaskStateGetTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	ref := TaskStateRefFromCtx(ctx)
	if ref == nil {
		return ErrorResult("task state is unavailable in this run")
	}
	st := ref.Get()
	if st == nil {
		return NewResult("{}")
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return ErrorResult(err.Error())
	}
	return NewResult(string(data))
}

func stringArg(args map[string]interface{}, key string) string {
	v, _ := args[key].(string)
	return strings.TrimSpace(v)
}

// RegisterTaskStateTools adds the task state tools to the registry.
func RegisterTaskStateTools(reg *Registry) {
	reg.Register(&TaskStateSetTool{})
	reg.Register(&TaskStateUpdateTool{})
	reg.Register(&TaskStateClearTool{})
	reg.Register(&TaskStateGetTool{})
}
