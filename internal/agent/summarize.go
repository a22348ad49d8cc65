package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nextlevelbuilder/goaide/internal/providers"
)

// summarizePrompt asks the model for a structured compaction payload.
// The JSON contract keeps topic tracking machine-readable so later
// turns can surface what is still in play.
const summarizePrompt = `Compact this conversation into a structured summary.
Respond with JSON only, no prose around it:
{"summary": "<concise summary preserving key facts, decisions, names, and unfinished work>",
 "active_topics": ["<topics still being discussed>"],
 "inactive_topics": ["<topics that were resolved or abandoned>"]}`

// summarizeNode compacts the thread: everything except the last
// keepLast messages is replaced by a structured summary. The boundary
// is adjusted backward so a tool-call/result pair is never split. On
// any failure the node degrades to a no-op; the conversation continues
// uncompacted and the next threshold crossing retries.
func (l *Loop) summarizeNode(ctx context.Context, t *turn) (node, error) {
	st := t.state
	keep := l.keepLast
	if len(st.Messages) <= keep {
		return nodeEnd, nil
	}

	cut := len(st.Messages) - keep
	// Never cut between an assistant tool call and its results.
	for cut > 0 && st.Messages[cut].Role == "tool" {
		cut--
	}
	if cut <= 0 {
		return nodeEnd, nil
	}
	head := st.Messages[:cut]

	var sb strings.Builder
	if st.Summary != nil && st.Summary.Summary != "" {
		fmt.Fprintf(&sb, "[Existing summary]\n%s\n\n", st.Summary.Render())
	}
	for _, m := range head {
		switch m.Role {
		case "user":
			fmt.Fprintf(&sb, "user: %s\n", m.Content)
		case "assistant":
			text := SanitizeAssistantContent(m.Content)
			if text == "" && len(m.ToolCalls) > 0 {
				names := make([]string, len(m.ToolCalls))
				for i, tc := range m.ToolCalls {
					names[i] = tc.Name
				}
				text = "(called tools: " + strings.Join(names, ", ") + ")"
			}
			fmt.Fprintf(&sb, "assistant: %s\n", text)
		}
	}

	resp, err := l.provider.Chat(ctx, providers.ChatRequest{
		Messages: []providers.Message{
			{Role: "system", Content: summarizePrompt},
			{Role: "user", Content: sb.String()},
		},
		Model:   l.model,
		Options: map[string]interface{}{"max_tokens": 1024, "temperature": 0.3},
	})
	if err != nil {
		slog.Warn("agent: summarization failed", "thread", t.req.ThreadID, "error", err)
		return nodeEnd, nil
	}

	summary := parseStructuredSummary(resp.Content)
	if summary == nil {
		slog.Warn("agent: summarization produced no usable summary", "thread", t.req.ThreadID)
		return nodeEnd, nil
	}

	tail := make([]StateMessage, len(st.Messages)-cut)
	copy(tail, st.Messages[cut:])
	st.Messages = tail
	st.Summary = summary

	slog.Info("agent: conversation compacted",
		"thread", t.req.ThreadID, "dropped", cut, "kept", len(tail))
	return nodeEnd, nil
}

// parseStructuredSummary extracts the JSON payload from the model reply,
// tolerating code fences and surrounding prose. Plain text replies are
// accepted as an unstructured summary.
func parseStructuredSummary(content string) *StructuredSummary {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}

	raw := content
	if i := strings.Index(raw, "{"); i >= 0 {
		if j := strings.LastIndex(raw, "}"); j > i {
			raw = raw[i : j+1]
		}
	}

	var s StructuredSummary
	if err := json.Unmarshal([]byte(raw), &s); err == nil && s.Summary != "" {
		return &s
	}
	return &StructuredSummary{Summary: content}
}

// Render formats the summary for injection into a model prompt.
func (s *StructuredSummary) Render() string {
	var sb strings.Builder
	sb.WriteString(s.Summary)
	if len(s.ActiveTopics) > 0 {
		fmt.Fprintf(&sb, "\nActive topics: %s", strings.Join(s.ActiveTopics, ", "))
	}
	if len(s.InactiveTopics) > 0 {
		fmt.Fprintf(&sb, "\nInactive topics: %s", strings.Join(s.InactiveTopics, ", "))
	}
	return sb.String()
}
