package tools

import (
	"context"
	"time"

	"github.com/nextlevelbuilder/goaide/internal/providers"
)

// Tool is the interface every agent tool implements. Parameters returns
// a JSON schema object describing the arguments.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]interface{}
	Execute(ctx context.Context, args map[string]interface{}) *Result
}

// TimeoutOverrider lets a tool shorten or extend the default execution
// timeout. Reminder lookups use this to stay under the channel typing
// refresh interval.
type TimeoutOverrider interface {
	ExecuteTimeout() time.Duration
}

// AsyncCallback delivers the final result of a tool that returned an
// AsyncResult and kept working in the background.
type AsyncCallback func(toolName string, result *Result)

// ToProviderDef converts a tool to the function definition shape the
// model providers expect.
func ToProviderDef(t Tool) providers.ToolDefinition {
	params := t.Parameters()
	if params == nil {
		params = map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{},
		}
	}
	return providers.ToolDefinition{
		Type: "function",
		Function: providers.ToolFunctionSchema{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  params,
		},
	}
}

// ToProviderDefs converts a tool list preserving order.
func ToProviderDefs(ts []Tool) []providers.ToolDefinition {
	defs := make([]providers.ToolDefinition, 0, len(ts))
	for _, t := range ts {
		defs = append(defs, ToProviderDef(t))
	}
	return defs
}
