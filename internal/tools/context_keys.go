package tools

import "context"

// Tool execution context keys. Request identity (workspace, thread,
// user, channel) travels in the store context; these keys carry the
// tool-plumbing callbacks the channel layer injects per request.

type toolContextKey string

const (
	ctxAsyncCB  toolContextKey = "tool_async_cb"
	ctxProgress toolContextKey = "tool_progress"
)

// WithToolAsyncCB attaches the callback async tools use to deliver
// their final result after returning early.
func WithToolAsyncCB(ctx context.Context, cb AsyncCallback) context.Context {
	return context.WithValue(ctx, ctxAsyncCB, cb)
}

func ToolAsyncCBFromCtx(ctx context.Context) AsyncCallback {
	v, _ := ctx.Value(ctxAsyncCB).(AsyncCallback)
	return v
}

// ProgressFunc receives (step index, tool name) as each call of a turn
// starts. Channels render it as a transient status; delivery is best
// effort.
type ProgressFunc func(step int, toolName string)

func WithToolProgress(ctx context.Context, fn ProgressFunc) context.Context {
	return context.WithValue(ctx, ctxProgress, fn)
}

func ToolProgressFromCtx(ctx context.Context) ProgressFunc {
	v, _ := ctx.Value(ctxProgress).(ProgressFunc)
	return v
}
