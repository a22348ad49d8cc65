package agent

import (
	"testing"

	"github.com/nextlevelbuilder/goaide/internal/providers"
)

func userMsg(id, content string) StateMessage {
	return StateMessage{ID: id, Message: providers.Message{Role: "user", Content: content}}
}

func TestStateAppendDeduplicatesByID(t *testing.T) {
	st := &State{}
	st.append(userMsg("m1", "hello"))
	st.append(userMsg("m1", "hello again"))
	st.append(userMsg("m2", "second"))

	if len(st.Messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(st.Messages))
	}
	if st.Messages[0].Content != "hello" {
		t.Errorf("duplicate id overwrote the original: %q", st.Messages[0].Content)
	}
}

func TestStateAppendAssignsMissingIDs(t *testing.T) {
	st := &State{}
	st.append(StateMessage{Message: providers.Message{Role: "assistant", Content: "hi"}})
	if st.Messages[0].ID == "" {
		t.Error("appended message has no id")
	}
}

func TestConversationalCountSkipsToolMessages(t *testing.T) {
	st := &State{}
	st.append(
		userMsg("m1", "q"),
		StateMessage{ID: "m2", Message: providers.Message{Role: "assistant", Content: "a"}},
		StateMessage{ID: "m3", Message: providers.Message{Role: "tool", Content: "result", ToolCallID: "c1"}},
	)
	if got := st.conversationalCount(); got != 2 {
		t.Errorf("conversationalCount = %d, want 2", got)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	st := &State{
		UserID:  "u1",
		Channel: "telegram",
		Summary: &StructuredSummary{Summary: "talked about gophers", ActiveTopics: []string{"gophers"}},
	}
	st.append(userMsg("m1", "hello"))

	raw, err := encodeSnapshot(nodeTools, st)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	snap, err := decodeSnapshot(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.Node != nodeTools {
		t.Errorf("node = %q, want %q", snap.Node, nodeTools)
	}
	if len(snap.State.Messages) != 1 || snap.State.Messages[0].ID != "m1" {
		t.Errorf("messages did not survive the round trip: %+v", snap.State.Messages)
	}
	if snap.State.Summary == nil || snap.State.Summary.Summary != "talked about gophers" {
		t.Errorf("summary did not survive: %+v", snap.State.Summary)
	}
}

func TestDecodeSnapshotDefaultsToEnd(t *testing.T) {
	snap, err := decodeSnapshot([]byte(`{"state":{"messages":[]}}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.Node != nodeEnd {
		t.Errorf("node = %q, want %q", snap.Node, nodeEnd)
	}
}

func TestParseStructuredSummary(t *testing.T) {
	t.Run("plain json", func(t *testing.T) {
		s := parseStructuredSummary(`{"summary":"facts","active_topics":["a"],"inactive_topics":["b"]}`)
		if s == nil || s.Summary != "facts" || len(s.ActiveTopics) != 1 {
			t.Fatalf("got %+v", s)
		}
	})
	t.Run("fenced json with prose", func(t *testing.T) {
		s := parseStructuredSummary("Sure!\n```json\n{\"summary\":\"facts\"}\n```")
		if s == nil || s.Summary != "facts" {
			t.Fatalf("got %+v", s)
		}
	})
	t.Run("plain text falls back to unstructured", func(t *testing.T) {
		s := parseStructuredSummary("We discussed deployment.")
		if s == nil || s.Summary != "We discussed deployment." {
			t.Fatalf("got %+v", s)
		}
	})
	t.Run("empty yields nil", func(t *testing.T) {
		if s := parseStructuredSummary("  "); s != nil {
			t.Fatalf("got %+v, want nil", s)
		}
	})
}

func TestStructuredSummaryRender(t *testing.T) {
	s := &StructuredSummary{Summary: "base", ActiveTopics: []string{"x", "y"}}
	got := s.Render()
	want := "base\nActive topics: x, y"
	if got != want {
		t.Errorf("Render() = %q, want %q", got, want)
	}
}
