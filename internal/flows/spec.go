// Package flows executes scheduled multi-agent chains. A flow is a
// sequence of agent steps; each step sees the JSON outputs of every
// earlier step through the $previous_output prompt token.
package flows

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Schedule types.
const (
	ScheduleImmediate = "immediate"
	ScheduleScheduled = "scheduled"
	ScheduleRecurring = "recurring"
)

// AgentSpec describes one step of a flow chain.
type AgentSpec struct {
	AgentID      string                 `json:"agent_id"`
	Model        string                 `json:"model,omitempty"`
	Tools        []string               `json:"tools,omitempty"`
	SystemPrompt string                 `json:"system_prompt"`
	OutputSchema map[string]interface{} `json:"output_schema,omitempty"`
}

// MiddlewareConfig tunes the guard middleware applied to flow steps.
// Nil fields fall back to the configured defaults.
type MiddlewareConfig struct {
	ModelCallLimit    *int  `json:"model_call_limit,omitempty"`
	ToolCallLimit     *int  `json:"tool_call_limit,omitempty"`
	ToolRetryEnabled  *bool `json:"tool_retry_enabled,omitempty"`
	ModelRetryEnabled *bool `json:"model_retry_enabled,omitempty"`
}

// FlowSpec is the serialized flow definition stored with each
// scheduled flow row.
type FlowSpec struct {
	FlowID               string           `json:"flow_id"`
	Name                 string           `json:"name"`
	Description          string           `json:"description,omitempty"`
	Owner                string           `json:"owner,omitempty"`
	Agents               []AgentSpec      `json:"agents"`
	ScheduleType         string           `json:"schedule_type"`
	ScheduleTime         *time.Time       `json:"schedule_time,omitempty"`
	CronExpression       string           `json:"cron_expression,omitempty"`
	NotifyOnComplete     bool             `json:"notify_on_complete"`
	NotifyOnFailure      bool             `json:"notify_on_failure"`
	NotificationChannels []string         `json:"notification_channels,omitempty"`
	Middleware           MiddlewareConfig `json:"middleware"`
}

// ParseSpec decodes a stored flow payload. A missing owner falls back
// to the given one.
func ParseSpec(payload []byte, owner string) (*FlowSpec, error) {
	var spec FlowSpec
	if err := json.Unmarshal(payload, &spec); err != nil {
		return nil, fmt.Errorf("invalid flow spec: %w", err)
	}
	if spec.Owner == "" {
		spec.Owner = owner
	}
	return &spec, nil
}

// Validate checks structural requirements before a spec is stored.
func (s *FlowSpec) Validate() error {
	if len(s.Agents) == 0 {
		return fmt.Errorf("flow needs at least one agent")
	}
	switch s.ScheduleType {
	case ScheduleImmediate, ScheduleScheduled, ScheduleRecurring:
	default:
		return fmt.Errorf("schedule_type must be immediate, scheduled, or recurring")
	}
	for i, agent := range s.Agents {
		if agent.AgentID == "" {
			return fmt.Errorf("agent %d is missing agent_id", i+1)
		}
		if strings.TrimSpace(agent.SystemPrompt) == "" {
			return fmt.Errorf("agent %q is missing system_prompt", agent.AgentID)
		}
	}
	return nil
}

// BuildPrompt substitutes the $previous_output token in a step prompt
// with a JSON dump of all earlier step outputs keyed by agent id. With
// no prior outputs the prompt passes through untouched.
func BuildPrompt(systemPrompt string, previous map[string]interface{}) string {
	if len(previous) == 0 {
		return systemPrompt
	}
	dump, err := json.MarshalIndent(previous, "", "  ")
	if err != nil {
		return systemPrompt
	}
	return strings.ReplaceAll(systemPrompt, "$previous_output", string(dump))
}

// ExtractOutput carves the step result from the final assistant
// message. With no schema the raw text is wrapped as {"raw": content};
// otherwise the slice from the first '{' to the last '}' must parse as
// a JSON object.
func ExtractOutput(content string, schema map[string]interface{}) (map[string]interface{}, error) {
	if len(schema) == 0 {
		return map[string]interface{}{"raw": content}, nil
	}
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start != -1 && end > start {
		var out map[string]interface{}
		if err := json.Unmarshal([]byte(content[start:end+1]), &out); err == nil {
			return out, nil
		}
	}
	return nil, fmt.Errorf("agent output did not contain a valid JSON payload")
}

// StepResult is one agent's outcome in the persisted flow result.
type StepResult struct {
	AgentID string                 `json:"agent_id"`
	Status  string                 `json:"status"`
	Output  map[string]interface{} `json:"output,omitempty"`
	Error   string                 `json:"error,omitempty"`
}
