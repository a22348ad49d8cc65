package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/goaide/internal/flows"
	"github.com/nextlevelbuilder/goaide/internal/middleware"
	"github.com/nextlevelbuilder/goaide/internal/providers"
	"github.com/nextlevelbuilder/goaide/internal/tools"
)

// flowStepMaxIterations bounds one step's model/tool cycles regardless
// of the per-step middleware overrides.
const flowStepMaxIterations = 15

// RunFlowStep executes one flow agent as an isolated mini-run: fresh
// state, the step's own system prompt, a tool set filtered per the step
// spec with flow-management tools always excluded, and a guard chain
// built from the step's middleware overrides. Returns the step's final
// assistant content.
func (l *Loop) RunFlowStep(ctx context.Context, step flows.AgentSpec, prompt string, mw flows.MiddlewareConfig) (string, error) {
	model := step.Model
	if model == "" {
		model = l.model
	}

	var defs []providers.ToolDefinition
	var dispatcher *tools.Dispatcher
	if l.dispatcher != nil {
		allowed := tools.FilterForFlowStep(l.dispatcher.Registry(), step.Tools)
		reg := tools.NewRegistry()
		for _, t := range allowed {
			reg.Register(t)
		}
		dispatcher = tools.NewDispatcher(reg)
		defs = tools.ToProviderDefs(allowed)
	}

	chain := middleware.NewChain(flowStepStack(mw)...)
	run := middleware.NewRun("flow:" + step.AgentID)

	messages := []providers.Message{
		{Role: "user", Content: "Execute your task now."},
	}

	for i := 0; i < flowStepMaxIterations; i++ {
		mreq := &middleware.Request{
			System:   prompt,
			Messages: messages,
			Tools:    defs,
			Model:    model,
			Options: map[string]interface{}{
				"max_tokens":  8192,
				"temperature": 0.7,
			},
		}

		resp, err := chain.CallModel(ctx, run, mreq, func(ctx context.Context, mreq *middleware.Request) (*providers.ChatResponse, error) {
			full := make([]providers.Message, 0, len(mreq.Messages)+1)
			full = append(full, providers.Message{Role: "system", Content: mreq.ComposeSystem()})
			full = append(full, mreq.Messages...)
			return l.provider.Chat(ctx, providers.ChatRequest{
				Messages: full,
				Tools:    mreq.Tools,
				Model:    mreq.Model,
				Options:  mreq.Options,
			})
		})
		if err != nil {
			return "", fmt.Errorf("flow step %s: %w", step.AgentID, err)
		}

		content := resp.Content
		toolCalls := resp.ToolCalls
		if len(toolCalls) == 0 && tools.HasEmbeddedCalls(content) {
			if embedded, perr := tools.ParseEmbeddedCalls(content); perr == nil {
				for _, ec := range embedded {
					toolCalls = append(toolCalls, providers.ToolCall{
						ID:        uuid.NewString(),
						Name:      ec.Name,
						Arguments: ec.Arguments,
					})
				}
				content = ""
			}
		}

		messages = append(messages, providers.Message{Role: "assistant", Content: content, ToolCalls: toolCalls})

		if len(toolCalls) == 0 {
			final := SanitizeAssistantContent(content)
			if strings.TrimSpace(final) == "" {
				return "", fmt.Errorf("flow step %s produced no output", step.AgentID)
			}
			return final, nil
		}
		if dispatcher == nil {
			return "", fmt.Errorf("flow step %s requested tools but none are available", step.AgentID)
		}

		batch, err := chain.BeginTools(ctx, run, toolCalls, func(ctx context.Context, call providers.ToolCall) *tools.Result {
			return dispatcher.Dispatch(ctx, call.Name, call.Arguments)
		})
		if err != nil {
			return "", fmt.Errorf("flow step %s: %w", step.AgentID, err)
		}
		for _, idx := range batch.Pending() {
			batch.Invoke(ctx, idx)
		}
		if err := chain.FinishTools(ctx, run, batch); err != nil {
			slog.Warn("flows.step_after_tools", "agent", step.AgentID, "error", err)
		}
		for i, call := range toolCalls {
			result := batch.Results[i]
			if result == nil {
				result = tools.ErrorResult("Error: tool produced no result")
			}
			messages = append(messages, providers.Message{
				Role:       "tool",
				Content:    result.ForLLM,
				ToolCallID: call.ID,
			})
		}

		if msg, stopped := run.Stopped(); stopped {
			final := SanitizeAssistantContent(lastAssistantText(messages))
			if strings.TrimSpace(final) == "" {
				final = msg
			}
			return final, nil
		}
	}

	return "", fmt.Errorf("flow step %s exceeded %d iterations", step.AgentID, flowStepMaxIterations)
}

// flowStepStack builds the guard middlewares for one step. Flow steps
// never summarize, learn memories, or inject instincts; only the call
// caps and retries apply, with the step's overrides on top.
func flowStepStack(mw flows.MiddlewareConfig) []middleware.Middleware {
	modelLimit := 25
	if mw.ModelCallLimit != nil && *mw.ModelCallLimit > 0 {
		modelLimit = *mw.ModelCallLimit
	}
	toolLimit := 50
	if mw.ToolCallLimit != nil && *mw.ToolCallLimit > 0 {
		toolLimit = *mw.ToolCallLimit
	}

	retry := providers.DefaultRetryConfig()

	stack := []middleware.Middleware{
		middleware.NewModelCallLimit(modelLimit),
		middleware.NewToolCallLimit(toolLimit),
	}
	if mw.ModelRetryEnabled == nil || *mw.ModelRetryEnabled {
		stack = append(stack, middleware.NewModelRetry(retry))
	}
	if mw.ToolRetryEnabled == nil || *mw.ToolRetryEnabled {
		stack = append(stack, middleware.NewToolRetry(retry))
	}
	return stack
}
