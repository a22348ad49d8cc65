package middleware

import (
	"context"
	"fmt"
	"testing"

	"github.com/nextlevelbuilder/goaide/internal/providers"
)

// toolHeavyWindow builds a conversation with n tool results, each
// tagged so the tests can tell which ones survived.
func toolHeavyWindow(n int) []providers.Message {
	msgs := []providers.Message{{Role: "user", Content: "do the thing"}}
	for i := 0; i < n; i++ {
		msgs = append(msgs,
			providers.Message{Role: "assistant", ToolCalls: []providers.ToolCall{{ID: fmt.Sprintf("c%d", i), Name: "read_file"}}},
			providers.Message{Role: "tool", ToolCallID: fmt.Sprintf("c%d", i), Content: fmt.Sprintf("payload %d", i)},
		)
	}
	return append(msgs, providers.Message{Role: "assistant", Content: "done"})
}

func TestContextEditingElidesOldToolResults(t *testing.T) {
	m := NewContextEditing(100, 10)
	m.counter = func(msgs []providers.Message) int { return 200 }
	run := NewRun("thread")

	original := toolHeavyWindow(15)
	req := &Request{Messages: original}
	if _, err := m.BeforeModel(context.Background(), run, req); err != nil {
		t.Fatalf("BeforeModel: %v", err)
	}

	var toolIdx []int
	for i, msg := range req.Messages {
		if msg.Role == "tool" {
			toolIdx = append(toolIdx, i)
		}
	}
	if len(toolIdx) != 15 {
		t.Fatalf("tool results = %d, want 15", len(toolIdx))
	}
	for n, i := range toolIdx {
		got := req.Messages[i].Content
		if n < 5 {
			if got != elidedToolContent {
				t.Errorf("old tool result %d kept: %q", n, got)
			}
		} else {
			if got == elidedToolContent {
				t.Errorf("recent tool result %d elided", n)
			}
		}
	}

	// Non-tool messages stay verbatim and the caller's slice is intact.
	if req.Messages[0].Content != "do the thing" {
		t.Errorf("user message touched: %q", req.Messages[0].Content)
	}
	if original[toolIdx[0]].Content != "payload 0" {
		t.Errorf("original slice mutated: %q", original[toolIdx[0]].Content)
	}
}

func TestContextEditingBelowTrigger(t *testing.T) {
	m := NewContextEditing(100, 10)
	m.counter = func(msgs []providers.Message) int { return 50 }
	run := NewRun("thread")

	msgs := toolHeavyWindow(15)
	req := &Request{Messages: msgs}
	if _, err := m.BeforeModel(context.Background(), run, req); err != nil {
		t.Fatalf("BeforeModel: %v", err)
	}
	for i, msg := range req.Messages {
		if msg.Content == elidedToolContent {
			t.Errorf("message %d elided below the trigger", i)
		}
	}
}

func TestContextEditingIdempotent(t *testing.T) {
	m := NewContextEditing(100, 10)
	m.counter = func(msgs []providers.Message) int { return 200 }
	run := NewRun("thread")

	req := &Request{Messages: toolHeavyWindow(15)}
	if _, err := m.BeforeModel(context.Background(), run, req); err != nil {
		t.Fatalf("first pass: %v", err)
	}
	once := req.Messages
	if _, err := m.BeforeModel(context.Background(), run, req); err != nil {
		t.Fatalf("second pass: %v", err)
	}
	// Nothing new to elide, so the window is left alone.
	if &req.Messages[0] != &once[0] {
		t.Error("second pass rebuilt an already-edited window")
	}
}

func TestContextEditingFewToolResults(t *testing.T) {
	// Fewer tool results than keepLast: everything stays even over
	// the trigger.
	m := NewContextEditing(100, 10)
	m.counter = func(msgs []providers.Message) int { return 200 }
	run := NewRun("thread")

	req := &Request{Messages: toolHeavyWindow(3)}
	if _, err := m.BeforeModel(context.Background(), run, req); err != nil {
		t.Fatalf("BeforeModel: %v", err)
	}
	for i, msg := range req.Messages {
		if msg.Content == elidedToolContent {
			t.Errorf("message %d elided with only 3 tool results", i)
		}
	}
}
