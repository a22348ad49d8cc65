package tools

import (
	"context"
	"log/slog"
	"runtime/debug"
	"strconv"
	"strings"
	"time"
)

// DefaultTimeout bounds a single tool execution. Tools that need a
// different budget implement TimeoutOverrider.
const DefaultTimeout = 45 * time.Second

// CallRecorder observes every dispatched call before it runs. The loop
// breaker middleware registers one to maintain its similarity window.
type CallRecorder func(ctx context.Context, tool string, args map[string]interface{})

// Dispatcher resolves tool names, normalizes arguments, and runs tools
// behind an error boundary. Every failure mode comes back as a Result;
// nothing escapes into the reasoning loop as a Go error.
type Dispatcher struct {
	registry *Registry
	timeout  time.Duration
	recorder CallRecorder
}

type DispatcherOption func(*Dispatcher)

// WithDefaultTimeout overrides the 45s per-call budget.
func WithDefaultTimeout(d time.Duration) DispatcherOption {
	return func(dp *Dispatcher) {
		if d > 0 {
			dp.timeout = d
		}
	}
}

// WithCallRecorder registers the loop-break buffer hook.
func WithCallRecorder(rec CallRecorder) DispatcherOption {
	return func(dp *Dispatcher) { dp.recorder = rec }
}

func NewDispatcher(reg *Registry, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{registry: reg, timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Registry exposes the underlying registry for definition listing.
func (d *Dispatcher) Registry() *Registry { return d.registry }

// Dispatch runs one tool call. Unknown names, panics, timeouts and nil
// results all render as single-line error results; messages a tool
// returns itself pass through untouched.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, args map[string]interface{}) *Result {
	tool, ok := d.registry.Get(name)
	if !ok {
		return Errorf("unknown tool '%s'", name)
	}

	args = NormalizeArgs(tool.Parameters(), args)

	if d.recorder != nil {
		d.recorder(ctx, tool.Name(), args)
	}

	timeout := d.timeout
	if to, ok := tool.(TimeoutOverrider); ok {
		if t := to.ExecuteTimeout(); t > 0 {
			timeout = t
		}
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan *Result, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("tool panicked",
					"tool", tool.Name(),
					"panic", rec,
					"stack", string(debug.Stack()),
				)
				done <- Errorf("%v", rec)
			}
		}()
		done <- tool.Execute(ctx, args)
	}()

	select {
	case result := <-done:
		if result == nil {
			return Errorf("tool '%s' returned no result", tool.Name())
		}
		if result.Err != nil && result.ForLLM == "" {
			result.ForLLM = formatToolError(result.Err.Error())
			result.IsError = true
		}
		return result
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return Errorf("tool '%s' timed out after %s", tool.Name(), timeout)
		}
		return Errorf("tool '%s' cancelled", tool.Name())
	}
}

// NormalizeArgs renames model-produced argument aliases to the names the
// schema declares (squashed-lowercase match, e.g. numresults ->
// num_results) and coerces numeric strings where the schema expects a
// number.
func NormalizeArgs(schema map[string]interface{}, args map[string]interface{}) map[string]interface{} {
	if len(args) == 0 {
		return args
	}
	props, _ := schema["properties"].(map[string]interface{})
	squashed := make(map[string]string, len(props))
	for name := range props {
		squashed[squashName(name)] = name
	}

	out := make(map[string]interface{}, len(args))
	for key, val := range args {
		name := key
		if _, declared := props[key]; !declared {
			if canonical, ok := squashed[squashName(key)]; ok {
				name = canonical
			}
		}
		out[name] = coerceArg(props[name], val)
	}
	return out
}

// coerceArg converts string values to numbers when the declared schema
// type is numeric. Everything else passes through unchanged.
func coerceArg(propSchema interface{}, val interface{}) interface{} {
	prop, ok := propSchema.(map[string]interface{})
	if !ok {
		return val
	}
	typ, _ := prop["type"].(string)
	if typ != "number" && typ != "integer" {
		return val
	}
	s, ok := val.(string)
	if !ok {
		return val
	}
	if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
		return f
	}
	return val
}
