package middleware

import (
	"context"
	"log/slog"

	"github.com/nextlevelbuilder/goaide/internal/providers"
)

const elidedToolContent = "[Tool result elided to conserve context]"

// ContextEditing blanks stale tool results once the window grows past a
// token trigger. The most recent keepLast tool uses stay verbatim, and
// user/assistant text is never touched, so the model keeps the shape of
// what it did without dragging every payload along.
type ContextEditing struct {
	trigger  int
	keepLast int
	counter  TokenCounter
}

// NewContextEditing builds the elision middleware. trigger <= 0 selects
// 100000 tokens, keepLast <= 0 selects 10 tool uses.
func NewContextEditing(trigger, keepLast int) *ContextEditing {
	if trigger <= 0 {
		trigger = 100_000
	}
	if keepLast <= 0 {
		keepLast = 10
	}
	return &ContextEditing{trigger: trigger, keepLast: keepLast, counter: EstimateTokens}
}

func (m *ContextEditing) Name() string { return "context_editing" }

func (m *ContextEditing) BeforeModel(ctx context.Context, run *Run, req *Request) (*providers.ChatResponse, error) {
	estimate := m.counter(req.Messages)
	if estimate <= m.trigger {
		return nil, nil
	}

	edited := make([]providers.Message, len(req.Messages))
	copy(edited, req.Messages)

	kept, elided := 0, 0
	for i := len(edited) - 1; i >= 0; i-- {
		if edited[i].Role != "tool" {
			continue
		}
		if kept < m.keepLast {
			kept++
			continue
		}
		if edited[i].Content == elidedToolContent {
			continue
		}
		edited[i].Content = elidedToolContent
		elided++
	}
	if elided == 0 {
		return nil, nil
	}

	req.Messages = edited
	slog.Info("middleware.context_edited",
		"thread", run.ThreadKey, "estimate", estimate, "elided", elided)
	return nil, nil
}
