package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/goaide/internal/flows"
	"github.com/nextlevelbuilder/goaide/internal/scheduler"
	"github.com/nextlevelbuilder/goaide/internal/store"
	"github.com/nextlevelbuilder/goaide/internal/workspace"
)

// FlowRunner executes a stored flow immediately. The flows package
// runner implements it; the indirection keeps this package off the
// agent loop's import path.
type FlowRunner interface {
	RunByID(ctx context.Context, id int64) (json.RawMessage, error)
}

func flowIDArg(args map[string]interface{}) (int64, bool) {
	if f, ok := args["flow_id"].(float64); ok && f > 0 {
		return int64(f), true
	}
	return 0, false
}

func flowOwner(ctx context.Context, threadID string) string {
	if owner := store.UserIDFromContext(ctx); owner != "" {
		return owner
	}
	return workspace.Sanitize(threadID)
}

func decodeAgentSpecs(v interface{}) ([]flows.AgentSpec, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("invalid agents array: %v", err)
	}
	var agents []flows.AgentSpec
	if err := json.Unmarshal(raw, &agents); err != nil {
		return nil, fmt.Errorf("invalid agents array: %v", err)
	}
	return agents, nil
}

func decodeMiddleware(v interface{}) (flows.MiddlewareConfig, error) {
	var mw flows.MiddlewareConfig
	if v == nil {
		return mw, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return mw, fmt.Errorf("invalid middleware config: %v", err)
	}
	if err := json.Unmarshal(raw, &mw); err != nil {
		return mw, fmt.Errorf("invalid middleware config: %v", err)
	}
	return mw, nil
}

func stringSliceArg(args map[string]interface{}, key string) []string {
	items, ok := args[key].([]interface{})
	if !ok {
		return nil
	}
	var out []string
	for _, item := range items {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

func boolArg(args map[string]interface{}, key string, def bool) bool {
	if b, ok := args[key].(bool); ok {
		return b
	}
	return def
}

// --- create_flow ---

type CreateFlowTool struct {
	flows store.FlowStore
}

func NewCreateFlowTool(flowStore store.FlowStore) *CreateFlowTool {
	return &CreateFlowTool{flows: flowStore}
}

func (t *CreateFlowTool) Name() string { return "create_flow" }

func (t *CreateFlowTool) Description() string {
	return "Create a flow (a chain of agents run in sequence) for immediate, scheduled, or recurring execution. Each agent's prompt may reference $previous_output."
}

func (t *CreateFlowTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"name": map[string]interface{}{
				"type":        "string",
				"description": "Short flow name",
			},
			"description": map[string]interface{}{
				"type":        "string",
				"description": "What the flow does",
			},
			"agents": map[string]interface{}{
				"type":        "array",
				"description": "Agent steps, each {agent_id, model?, tools?, system_prompt, output_schema?}",
				"items":       map[string]interface{}{"type": "object"},
			},
			"schedule_type": map[string]interface{}{
				"type":        "string",
				"description": "'immediate' (default), 'scheduled', or 'recurring'",
			},
			"schedule_time": map[string]interface{}{
				"type":        "string",
				"description": "Due time for scheduled flows, natural language accepted",
			},
			"cron_expression": map[string]interface{}{
				"type":        "string",
				"description": "Cron schedule for recurring flows",
			},
			"notify_on_complete": map[string]interface{}{
				"type":        "boolean",
				"description": "Post a message when the flow completes (default false)",
			},
			"notify_on_failure": map[string]interface{}{
				"type":        "boolean",
				"description": "Post a message when the flow fails (default true)",
			},
			"notification_channels": map[string]interface{}{
				"type":        "array",
				"description": "Channels to notify; defaults to the current channel",
				"items":       map[string]interface{}{"type": "string"},
			},
			"middleware": map[string]interface{}{
				"type":        "object",
				"description": "Optional per-flow middleware overrides {model_call_limit, tool_call_limit, tool_retry_enabled, model_retry_enabled}",
			},
		},
		"required": []string{"name", "description", "agents"},
	}
}

func (t *CreateFlowTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	threadID := store.ThreadIDFromContext(ctx)
	if threadID == "" {
		return NewResult("No thread context available to create a flow.")
	}

	name, _ := args["name"].(string)
	description, _ := args["description"].(string)

	agents, err := decodeAgentSpecs(args["agents"])
	if err != nil {
		return ErrorResult(fmt.Sprintf("Error: %v", err))
	}
	mw, err := decodeMiddleware(args["middleware"])
	if err != nil {
		return ErrorResult(fmt.Sprintf("Error: %v", err))
	}

	scheduleType, _ := args["schedule_type"].(string)
	scheduleType = strings.ToLower(scheduleType)
	if scheduleType == "" {
		scheduleType = flows.ScheduleImmediate
	}
	scheduleTime, _ := args["schedule_time"].(string)
	cronExpression, _ := args["cron_expression"].(string)

	dueTime := time.Now()
	switch scheduleType {
	case flows.ScheduleImmediate:
	case flows.ScheduleScheduled:
		if scheduleTime == "" {
			return NewResult("schedule_time is required for scheduled flows.")
		}
		parsed, err := scheduler.ParseTimeExpression(scheduleTime, "")
		if err != nil {
			return ErrorResult(fmt.Sprintf("Error: %v", err))
		}
		dueTime = parsed
	case flows.ScheduleRecurring:
		if cronExpression == "" {
			return NewResult("cron_expression is required for recurring flows.")
		}
		next, err := scheduler.NextOccurrence(cronExpression, time.Now())
		if err != nil {
			return ErrorResult(fmt.Sprintf("Error: %v", err))
		}
		dueTime = next
	default:
		return NewResult("schedule_type must be immediate, scheduled, or recurring.")
	}

	var toolNames []string
	for _, agent := range agents {
		toolNames = append(toolNames, agent.Tools...)
	}
	if forbidden := ForbiddenFlowTools(toolNames); len(forbidden) > 0 {
		return NewResult(fmt.Sprintf("Flow agents may not use flow management tools: %s",
			strings.Join(forbidden, ", ")))
	}

	channels := stringSliceArg(args, "notification_channels")
	if len(channels) == 0 {
		channels = []string{strings.SplitN(threadID, ":", 2)[0]}
	}

	spec := &flows.FlowSpec{
		FlowID:               uuid.NewString(),
		Name:                 name,
		Description:          description,
		Owner:                flowOwner(ctx, threadID),
		Agents:               agents,
		ScheduleType:         scheduleType,
		CronExpression:       cronExpression,
		NotifyOnComplete:     boolArg(args, "notify_on_complete", false),
		NotifyOnFailure:      boolArg(args, "notify_on_failure", true),
		NotificationChannels: channels,
		Middleware:           mw,
	}
	if scheduleType == flows.ScheduleScheduled {
		spec.ScheduleTime = &dueTime
	}
	if err := spec.Validate(); err != nil {
		return ErrorResult(fmt.Sprintf("Error: %v", err))
	}

	payload, err := json.Marshal(spec)
	if err != nil {
		return ErrorResult(fmt.Sprintf("Error: failed to encode flow spec: %v", err))
	}

	flow := &store.Flow{
		WorkspaceID:    store.WorkspaceIDFromContext(ctx),
		ThreadID:       threadID,
		UserID:         spec.Owner,
		Name:           name,
		Task:           description,
		Spec:           payload,
		Cron:           cronExpression,
		DueTime:        dueTime,
		Status:         store.FlowPending,
		NotifyChannels: channels,
	}
	if err := t.flows.Create(ctx, flow); err != nil {
		return ErrorResult(fmt.Sprintf("Error: failed to save flow: %v", err))
	}

	return NewResult(fmt.Sprintf("Flow created: %d (%s) scheduled for %s",
		flow.ID, spec.Name, dueTime.Format(time.RFC3339)))
}

// --- list_flows ---

type ListFlowsTool struct {
	flows store.FlowStore
}

func NewListFlowsTool(flowStore store.FlowStore) *ListFlowsTool {
	return &ListFlowsTool{flows: flowStore}
}

func (t *ListFlowsTool) Name() string { return "list_flows" }

func (t *ListFlowsTool) Description() string {
	return "List flows for the current user, optionally filtered by status"
}

func (t *ListFlowsTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"status": map[string]interface{}{
				"type":        "string",
				"description": "Filter by status ('pending', 'running', 'completed', 'failed', 'cancelled'). Empty for all.",
			},
		},
	}
}

func (t *ListFlowsTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	threadID := store.ThreadIDFromContext(ctx)
	if threadID == "" {
		return NewResult("No thread context available to list flows.")
	}

	status, _ := args["status"].(string)
	items, err := t.flows.ListByUser(ctx, flowOwner(ctx, threadID), status)
	if err != nil {
		return ErrorResult(fmt.Sprintf("Error: failed to list flows: %v", err))
	}
	if len(items) == 0 {
		return NewResult("No flows found.")
	}

	lines := make([]string, 0, len(items))
	for _, flow := range items {
		name := flow.Name
		if name == "" {
			name = "-"
		}
		lines = append(lines, fmt.Sprintf("- [%d] %s — %s (due %s)",
			flow.ID, name, flow.Status, flow.DueTime.Format("2006-01-02 15:04:05")))
	}
	return NewResult(strings.Join(lines, "\n"))
}

// --- run_flow ---

type RunFlowTool struct {
	runner FlowRunner
}

func NewRunFlowTool(runner FlowRunner) *RunFlowTool {
	return &RunFlowTool{runner: runner}
}

func (t *RunFlowTool) Name() string { return "run_flow" }

func (t *RunFlowTool) Description() string {
	return "Run a flow immediately by ID"
}

func (t *RunFlowTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"flow_id": map[string]interface{}{
				"type":        "integer",
				"description": "ID of the flow to run",
			},
		},
		"required": []string{"flow_id"},
	}
}

func (t *RunFlowTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	id, ok := flowIDArg(args)
	if !ok {
		return ErrorResult("flow_id is required")
	}
	result, err := t.runner.RunByID(ctx, id)
	if err != nil {
		return ErrorResult(fmt.Sprintf("Error: %v", err))
	}
	return NewResult(string(result))
}

// --- cancel_flow ---

type CancelFlowTool struct {
	flows store.FlowStore
}

func NewCancelFlowTool(flowStore store.FlowStore) *CancelFlowTool {
	return &CancelFlowTool{flows: flowStore}
}

func (t *CancelFlowTool) Name() string { return "cancel_flow" }

func (t *CancelFlowTool) Description() string {
	return "Cancel a pending flow by ID"
}

func (t *CancelFlowTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"flow_id": map[string]interface{}{
				"type":        "integer",
				"description": "ID of the flow to cancel",
			},
		},
		"required": []string{"flow_id"},
	}
}

func (t *CancelFlowTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	id, ok := flowIDArg(args)
	if !ok {
		return ErrorResult("flow_id is required")
	}
	ok, err := t.flows.Cancel(ctx, id)
	if err != nil {
		return ErrorResult(fmt.Sprintf("Error: failed to cancel flow: %v", err))
	}
	if !ok {
		return NewResult(fmt.Sprintf("Flow %d not found or not pending.", id))
	}
	return NewResult(fmt.Sprintf("Flow %d cancelled.", id))
}

// --- delete_flow ---

type DeleteFlowTool struct {
	flows store.FlowStore
}

func NewDeleteFlowTool(flowStore store.FlowStore) *DeleteFlowTool {
	return &DeleteFlowTool{flows: flowStore}
}

func (t *DeleteFlowTool) Name() string { return "delete_flow" }

func (t *DeleteFlowTool) Description() string {
	return "Delete a flow by ID"
}

func (t *DeleteFlowTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"flow_id": map[string]interface{}{
				"type":        "integer",
				"description": "ID of the flow to delete",
			},
		},
		"required": []string{"flow_id"},
	}
}

func (t *DeleteFlowTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	id, ok := flowIDArg(args)
	if !ok {
		return ErrorResult("flow_id is required")
	}
	ok, err := t.flows.Delete(ctx, id)
	if err != nil {
		return ErrorResult(fmt.Sprintf("Error: failed to delete flow: %v", err))
	}
	if !ok {
		return NewResult(fmt.Sprintf("Flow %d not found.", id))
	}
	return NewResult(fmt.Sprintf("Flow %d deleted.", id))
}

// FlowTools returns the flow management tool set.
func FlowTools(flowStore store.FlowStore, runner FlowRunner) []Tool {
	return []Tool{
		NewCreateFlowTool(flowStore),
		NewListFlowsTool(flowStore),
		NewRunFlowTool(runner),
		NewCancelFlowTool(flowStore),
		NewDeleteFlowTool(flowStore),
	}
}
