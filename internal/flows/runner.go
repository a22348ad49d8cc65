package flows

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nextlevelbuilder/goaide/internal/scheduler"
	"github.com/nextlevelbuilder/goaide/internal/store"
)

// StepInvoker runs one flow step through the agent loop and returns
// the final assistant message. The agent package implements it.
type StepInvoker interface {
	RunFlowStep(ctx context.Context, step AgentSpec, prompt string, mw MiddlewareConfig) (string, error)
}

// Notifier posts a short system message back to a channel thread.
type Notifier interface {
	Notify(ctx context.Context, channel, threadID, text string) error
}

// Runner executes scheduled flows step by step and records the
// outcome on the flow row.
type Runner struct {
	flows   store.FlowStore
	invoker StepInvoker
	notify  Notifier
}

func NewRunner(flows store.FlowStore, invoker StepInvoker, notifier Notifier) *Runner {
	return &Runner{flows: flows, invoker: invoker, notify: notifier}
}

// Execute runs every agent of the flow in sequence. Each step's prompt
// gets the accumulated outputs of the steps before it. The first step
// failure fails the flow; recurring flows enqueue their next instance
// before the current row is marked complete.
func (r *Runner) Execute(ctx context.Context, flow *store.Flow) ([]StepResult, error) {
	spec, err := ParseSpec(flow.Spec, flow.UserID)
	if err != nil {
		if markErr := r.flows.MarkFailed(ctx, flow.ID, err.Error(), time.Now()); markErr != nil {
			slog.Warn("flows.mark_failed", "flow", flow.ID, "error", markErr)
		}
		return nil, err
	}

	ctx = store.WithWorkspaceID(ctx, flow.WorkspaceID)
	ctx = store.WithThreadID(ctx, flow.ThreadID)
	if flow.UserID != "" {
		ctx = store.WithUserID(ctx, flow.UserID)
	}

	if err := r.flows.MarkStarted(ctx, flow.ID, time.Now()); err != nil {
		return nil, fmt.Errorf("mark flow %d started: %w", flow.ID, err)
	}
	slog.Info("flows.started", "flow", flow.ID, "name", spec.Name, "agents", len(spec.Agents))

	previous := make(map[string]interface{})
	var results []StepResult

	for _, step := range spec.Agents {
		prompt := BuildPrompt(step.SystemPrompt, previous)

		content, err := r.invoker.RunFlowStep(ctx, step, prompt, spec.Middleware)
		if err != nil {
			return r.fail(ctx, flow, spec, fmt.Sprintf("agent %s: %v", step.AgentID, err))
		}
		output, err := ExtractOutput(content, step.OutputSchema)
		if err != nil {
			return r.fail(ctx, flow, spec, fmt.Sprintf("agent %s: %v", step.AgentID, err))
		}

		previous[step.AgentID] = output
		results = append(results, StepResult{AgentID: step.AgentID, Status: "success", Output: output})
	}

	payload, err := json.Marshal(map[string]interface{}{"results": results})
	if err != nil {
		return r.fail(ctx, flow, spec, fmt.Sprintf("encode result: %v", err))
	}

	// Recurring flows enqueue the successor before the current row
	// completes, so a crash between the two writes leaves an extra
	// pending row rather than a dead schedule.
	if spec.CronExpression != "" {
		next := scheduler.NextOccurrenceOrDaily(spec.CronExpression, time.Now())
		if _, err := r.flows.CreateNextInstance(ctx, flow, next); err != nil {
			slog.Warn("flows.create_next_instance", "flow", flow.ID, "error", err)
		}
	}

	if err := r.flows.MarkCompleted(ctx, flow.ID, payload, time.Now()); err != nil {
		return nil, fmt.Errorf("mark flow %d completed: %w", flow.ID, err)
	}
	slog.Info("flows.completed", "flow", flow.ID, "name", spec.Name)

	if spec.NotifyOnComplete {
		r.sendNotifications(ctx, flow, spec, fmt.Sprintf("Flow completed: %s", spec.Name))
	}

	return results, nil
}

func (r *Runner) fail(ctx context.Context, flow *store.Flow, spec *FlowSpec, msg string) ([]StepResult, error) {
	if err := r.flows.MarkFailed(ctx, flow.ID, msg, time.Now()); err != nil {
		slog.Warn("flows.mark_failed", "flow", flow.ID, "error", err)
	}
	slog.Warn("flows.failed", "flow", flow.ID, "name", spec.Name, "reason", msg)
	if spec.NotifyOnFailure {
		r.sendNotifications(ctx, flow, spec, fmt.Sprintf("Flow failed: %s", spec.Name))
	}
	return nil, errors.New(msg)
}

func (r *Runner) sendNotifications(ctx context.Context, flow *store.Flow, spec *FlowSpec, text string) {
	if r.notify == nil {
		return
	}
	channels := spec.NotificationChannels
	if len(channels) == 0 {
		channels = flow.NotifyChannels
	}
	for _, channel := range channels {
		if err := r.notify.Notify(ctx, channel, flow.ThreadID, text); err != nil {
			slog.Warn("flows.notify", "flow", flow.ID, "channel", channel, "error", err)
		}
	}
}

// Fire adapts Execute to the scheduler's dispatch contract.
func (r *Runner) Fire(ctx context.Context, flow *store.Flow) error {
	_, err := r.Execute(ctx, flow)
	return err
}

// RunByID loads a flow and executes it immediately, returning the
// result document as JSON.
func (r *Runner) RunByID(ctx context.Context, id int64) (json.RawMessage, error) {
	flow, err := r.flows.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("flow %d not found", id)
		}
		return nil, err
	}
	results, err := r.Execute(ctx, flow)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(map[string]interface{}{"status": "completed", "results": results})
	if err != nil {
		return nil, err
	}
	return payload, nil
}
