package agent

import (
	"fmt"
	"log/slog"

	"github.com/nextlevelbuilder/goaide/internal/middleware"
	"github.com/nextlevelbuilder/goaide/internal/providers"
	"github.com/nextlevelbuilder/goaide/internal/tools"
)

// buildRequest assembles the middleware request for one model call.
// The current user message is already part of the state, so the history
// pipeline covers the whole conversation: turn limiting, pairing repair,
// then the summary preamble in front.
func (l *Loop) buildRequest(t *turn) *middleware.Request {
	history := t.state.history()
	history = limitHistoryTurns(history, t.req.HistoryLimit)
	history = sanitizeHistory(history)

	messages := append(summaryMessages(t.state.Summary), history...)

	var defs []providers.ToolDefinition
	if l.dispatcher != nil {
		defs = tools.ToProviderDefs(l.dispatcher.Registry().Tools())
	}

	return &middleware.Request{
		System:   l.basePrompt(),
		Appendix: t.req.ExtraSystemPrompt,
		Messages: messages,
		Tools:    defs,
		Model:    l.model,
		Options: map[string]interface{}{
			"max_tokens":  8192,
			"temperature": 0.7,
		},
	}
}

func (l *Loop) basePrompt() string {
	if l.systemPrompt != "" {
		return l.systemPrompt
	}
	var names []string
	if l.dispatcher != nil {
		names = l.dispatcher.Registry().List()
	}
	return BuildSystemPrompt(names)
}

// summaryMessages renders a compaction summary as a primer exchange so
// the model treats it as established context rather than instructions.
func summaryMessages(summary *StructuredSummary) []providers.Message {
	if summary == nil || summary.Summary == "" {
		return nil
	}
	return []providers.Message{
		{
			Role:    "user",
			Content: fmt.Sprintf("[Previous conversation summary]\n%s", summary.Render()),
		},
		{
			Role:    "assistant",
			Content: "I understand the context from our previous conversation. How can I help you?",
		},
	}
}

// limitHistoryTurns keeps only the last N user turns (and their
// associated assistant/tool messages). A "turn" is one user message plus
// all subsequent non-user messages until the next user message.
func limitHistoryTurns(msgs []providers.Message, limit int) []providers.Message {
	if limit <= 0 || len(msgs) == 0 {
		return msgs
	}

	userCount := 0
	lastUserIndex := len(msgs)

	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == "user" {
			userCount++
			if userCount > limit {
				return msgs[lastUserIndex:]
			}
			lastUserIndex = i
		}
	}

	return msgs
}

// sanitizeHistory repairs tool call/result pairing before a model call.
//
// Problems this fixes:
//   - orphaned tool messages at history start (after compaction)
//   - tool results without a matching call in the preceding assistant message
//   - assistant messages with tool calls but missing results
func sanitizeHistory(msgs []providers.Message) []providers.Message {
	if len(msgs) == 0 {
		return msgs
	}

	// 1. Skip leading orphaned tool messages.
	start := 0
	for start < len(msgs) && msgs[start].Role == "tool" {
		slog.Warn("dropping orphaned tool message at history start",
			"tool_call_id", msgs[start].ToolCallID)
		start++
	}

	if start >= len(msgs) {
		return nil
	}

	// 2. Walk through messages ensuring each result follows its call.
	var result []providers.Message
	for i := start; i < len(msgs); i++ {
		msg := msgs[i]

		if msg.Role == "assistant" && len(msg.ToolCalls) > 0 {
			expectedIDs := make(map[string]bool, len(msg.ToolCalls))
			for _, tc := range msg.ToolCalls {
				expectedIDs[tc.ID] = true
			}

			result = append(result, msg)

			for i+1 < len(msgs) && msgs[i+1].Role == "tool" {
				i++
				toolMsg := msgs[i]
				if expectedIDs[toolMsg.ToolCallID] {
					result = append(result, toolMsg)
					delete(expectedIDs, toolMsg.ToolCallID)
				} else {
					slog.Warn("dropping mismatched tool result",
						"tool_call_id", toolMsg.ToolCallID)
				}
			}

			for id := range expectedIDs {
				slog.Warn("synthesizing missing tool result", "tool_call_id", id)
				result = append(result, providers.Message{
					Role:       "tool",
					Content:    "[Tool result missing, the conversation was compacted]",
					ToolCallID: id,
				})
			}
		} else if msg.Role == "tool" {
			slog.Warn("dropping orphaned tool message mid-history",
				"tool_call_id", msg.ToolCallID)
		} else {
			result = append(result, msg)
		}
	}

	return result
}
