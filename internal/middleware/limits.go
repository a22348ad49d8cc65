package middleware

import (
	"context"
	"log/slog"

	"github.com/nextlevelbuilder/goaide/internal/providers"
	"github.com/nextlevelbuilder/goaide/internal/tools"
)

// Stop texts injected when a per-run cap is hit.
const (
	modelLimitMessage = "Model call limit reached for this request. Send a follow-up message to continue."
	toolLimitMessage  = "Tool call limit reached for this request. Send a follow-up message to continue."
)

// ModelCallLimit caps provider calls per run.
type ModelCallLimit struct {
	limit int
}

// NewModelCallLimit builds the cap middleware; limit <= 0 selects 25.
func NewModelCallLimit(limit int) *ModelCallLimit {
	if limit <= 0 {
		limit = 25
	}
	return &ModelCallLimit{limit: limit}
}

func (m *ModelCallLimit) Name() string { return "model_call_limit" }

func (m *ModelCallLimit) BeforeModel(ctx context.Context, run *Run, req *Request) (*providers.ChatResponse, error) {
	if run.ModelCalls() < m.limit {
		return nil, nil
	}
	run.Stop(modelLimitMessage)
	slog.Warn("middleware.model_call_limit", "thread", run.ThreadKey, "limit", m.limit)
	return &providers.ChatResponse{Content: modelLimitMessage, FinishReason: "stop"}, nil
}

// ToolCallLimit caps tool executions per run.
type ToolCallLimit struct {
	limit int
}

// NewToolCallLimit builds the cap middleware; limit <= 0 selects 50.
func NewToolCallLimit(limit int) *ToolCallLimit {
	if limit <= 0 {
		limit = 50
	}
	return &ToolCallLimit{limit: limit}
}

func (m *ToolCallLimit) Name() string { return "tool_call_limit" }

func (m *ToolCallLimit) BeforeTools(ctx context.Context, run *Run, batch *ToolBatch) error {
	pending := batch.Pending()
	if run.ToolCalls()+len(pending) <= m.limit {
		return nil
	}
	run.Stop(toolLimitMessage)
	slog.Warn("middleware.tool_call_limit",
		"thread", run.ThreadKey, "limit", m.limit, "requested", len(pending))
	for _, i := range pending {
		batch.Results[i] = &tools.Result{
			ForLLM:  "Tool call limit reached for this request. Do not request more tool calls.",
			IsError: true,
			Silent:  true,
		}
	}
	return nil
}
