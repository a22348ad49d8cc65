package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nextlevelbuilder/goaide/internal/providers"
)

// Summarization condenses the long prefix of a conversation into a
// model-generated summary once the token estimate crosses the budget.
// The last keepLast messages survive verbatim; the cut never lands
// between an assistant tool call and its results.
type Summarization struct {
	provider  providers.Provider
	model     string
	maxTokens int
	keepLast  int
	counter   TokenCounter
}

// NewSummarization builds the middleware. maxTokens <= 0 selects 100000,
// keepLast <= 0 selects 4.
func NewSummarization(p providers.Provider, model string, maxTokens, keepLast int) *Summarization {
	if maxTokens <= 0 {
		maxTokens = 100_000
	}
	if keepLast <= 0 {
		keepLast = 4
	}
	return &Summarization{
		provider:  p,
		model:     model,
		maxTokens: maxTokens,
		keepLast:  keepLast,
		counter:   EstimateTokens,
	}
}

func (s *Summarization) Name() string { return "summarization" }

func (s *Summarization) BeforeModel(ctx context.Context, run *Run, req *Request) (*providers.ChatResponse, error) {
	if s.provider == nil || len(req.Messages) <= s.keepLast+1 {
		return nil, nil
	}
	estimate := s.counter(req.Messages)
	if estimate <= s.maxTokens {
		return nil, nil
	}

	cut := len(req.Messages) - s.keepLast
	for cut < len(req.Messages) && req.Messages[cut].Role == "tool" {
		cut++
	}
	if cut <= 0 || cut >= len(req.Messages) {
		return nil, nil
	}

	summary, err := s.summarize(ctx, req.Messages[:cut])
	if err != nil {
		// Run the turn unsummarized rather than failing it.
		slog.Warn("middleware.summarize_failed", "thread", run.ThreadKey, "error", err)
		return nil, nil
	}

	kept := req.Messages[cut:]
	rebuilt := make([]providers.Message, 0, len(kept)+2)
	rebuilt = append(rebuilt,
		providers.Message{Role: "user", Content: "[Previous conversation summary]\n" + summary},
		providers.Message{Role: "assistant", Content: "I understand the context from our previous conversation. How can I help you?"},
	)
	rebuilt = append(rebuilt, kept...)
	req.Messages = rebuilt

	slog.Info("middleware.summarized",
		"thread", run.ThreadKey, "estimate", estimate, "replaced", cut, "kept", len(kept))
	return nil, nil
}

// summarize renders the prefix as a plain transcript and asks the model
// for a replacement summary. Tool activity is noted by name so the
// summary keeps track of what was already done.
func (s *Summarization) summarize(ctx context.Context, msgs []providers.Message) (string, error) {
	var sb strings.Builder
	sb.WriteString("Provide a concise summary of this conversation, preserving key context, decisions, and any in-progress work:\n\n")
	for _, m := range msgs {
		switch m.Role {
		case "user":
			fmt.Fprintf(&sb, "user: %s\n", m.Content)
		case "assistant":
			if m.Content != "" {
				fmt.Fprintf(&sb, "assistant: %s\n", m.Content)
			}
			for _, tc := range m.ToolCalls {
				fmt.Fprintf(&sb, "assistant: [called %s]\n", tc.Name)
			}
		}
	}

	resp, err := s.provider.Chat(ctx, providers.ChatRequest{
		Messages: []providers.Message{{Role: "user", Content: sb.String()}},
		Model:    s.model,
		Options: map[string]interface{}{
			providers.OptMaxTokens:   1024,
			providers.OptTemperature: 0.3,
		},
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Content), nil
}
