package flows

import (
	"strings"
	"testing"
)

func validSpecJSON() []byte {
	return []byte(`{
		"flow_id": "f1",
		"name": "daily digest",
		"schedule_type": "recurring",
		"cron_expression": "0 9 * * *",
		"agents": [
			{"agent_id": "collector", "system_prompt": "Collect the news."},
			{"agent_id": "writer", "system_prompt": "Write a digest from $previous_output"}
		]
	}`)
}

func TestParseSpecFillsOwner(t *testing.T) {
	spec, err := ParseSpec(validSpecJSON(), "user-1")
	if err != nil {
		t.Fatalf("ParseSpec: %v", err)
	}
	if spec.Owner != "user-1" {
		t.Errorf("Owner = %q, want user-1", spec.Owner)
	}
	if len(spec.Agents) != 2 {
		t.Errorf("got %d agents, want 2", len(spec.Agents))
	}
}

func TestParseSpecRejectsGarbage(t *testing.T) {
	if _, err := ParseSpec([]byte("not json"), ""); err == nil {
		t.Error("expected an error for invalid JSON")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*FlowSpec)
		wantErr string
	}{
		{"valid", func(s *FlowSpec) {}, ""},
		{"no agents", func(s *FlowSpec) { s.Agents = nil }, "at least one agent"},
		{"bad schedule type", func(s *FlowSpec) { s.ScheduleType = "whenever" }, "schedule_type"},
		{"missing agent id", func(s *FlowSpec) { s.Agents[0].AgentID = "" }, "agent_id"},
		{"blank prompt", func(s *FlowSpec) { s.Agents[1].SystemPrompt = "  " }, "system_prompt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec, err := ParseSpec(validSpecJSON(), "u")
			if err != nil {
				t.Fatal(err)
			}
			tt.mutate(spec)
			err = spec.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestBuildPrompt(t *testing.T) {
	prompt := BuildPrompt("Summarize: $previous_output", map[string]interface{}{
		"collector": map[string]interface{}{"raw": "headline"},
	})
	if !strings.Contains(prompt, `"headline"`) {
		t.Errorf("previous output not substituted: %q", prompt)
	}
	if strings.Contains(prompt, "$previous_output") {
		t.Errorf("token survived substitution: %q", prompt)
	}

	untouched := BuildPrompt("Summarize: $previous_output", nil)
	if untouched != "Summarize: $previous_output" {
		t.Errorf("empty previous should leave the prompt alone, got %q", untouched)
	}
}

func TestExtractOutput(t *testing.T) {
	t.Run("no schema wraps raw text", func(t *testing.T) {
		out, err := ExtractOutput("plain text", nil)
		if err != nil {
			t.Fatal(err)
		}
		if out["raw"] != "plain text" {
			t.Errorf("got %+v", out)
		}
	})
	t.Run("schema extracts embedded json", func(t *testing.T) {
		schema := map[string]interface{}{"type": "object"}
		out, err := ExtractOutput("Here it is:\n{\"count\": 3}", schema)
		if err != nil {
			t.Fatal(err)
		}
		if out["count"] != float64(3) {
			t.Errorf("got %+v", out)
		}
	})
	t.Run("schema with no json errors", func(t *testing.T) {
		schema := map[string]interface{}{"type": "object"}
		if _, err := ExtractOutput("no payload here", schema); err == nil {
			t.Error("expected an error")
		}
	})
}
