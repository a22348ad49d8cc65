package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/nextlevelbuilder/goaide/internal/providers"
)

// ModelRetry retries transient provider failures around the model call.
// Classification and backoff live in providers.RetryDo so the loop and
// the HTTP layer agree on what counts as transient.
type ModelRetry struct {
	cfg providers.RetryConfig
}

func NewModelRetry(cfg providers.RetryConfig) *ModelRetry {
	if cfg.MaxAttempts < 1 {
		cfg = providers.DefaultRetryConfig()
	}
	return &ModelRetry{cfg: cfg}
}

func (m *ModelRetry) Name() string { return "model_retry" }

func (m *ModelRetry) WrapModelCall(ctx context.Context, run *Run, req *Request, next ModelCaller) (*providers.ChatResponse, error) {
	return providers.RetryDo(ctx, m.cfg, func() (*providers.ChatResponse, error) {
		return next(ctx, req)
	})
}

// ToolRetry re-runs tool calls whose results carry a transient error.
// String-form tool errors (Result.IsError with a message for the model)
// are the model's problem to react to; only Result.Err is retried.
type ToolRetry struct {
	cfg providers.RetryConfig
}

func NewToolRetry(cfg providers.RetryConfig) *ToolRetry {
	if cfg.MaxAttempts < 1 {
		cfg = providers.DefaultRetryConfig()
	}
	return &ToolRetry{cfg: cfg}
}

func (m *ToolRetry) Name() string { return "tool_retry" }

func (m *ToolRetry) AfterTools(ctx context.Context, run *Run, batch *ToolBatch) error {
	for i, result := range batch.Results {
		if result == nil || result.Err == nil || !transientToolError(result.Err) {
			continue
		}
		delay := m.cfg.InitialDelay
		for attempt := 2; attempt <= m.cfg.MaxAttempts; attempt++ {
			wait := retryWait(result.Err, delay, m.cfg.MaxDelay)
			slog.Warn("middleware.tool_retry",
				"tool", batch.Calls[i].Name, "attempt", attempt, "wait", wait, "error", result.Err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(wait):
			}
			delay *= 2
			result = batch.Invoke(ctx, i)
			if result.Err == nil || !transientToolError(result.Err) {
				break
			}
		}
	}
	return nil
}

// transientToolError mirrors the provider classification and adds plain
// network timeouts surfaced by tool transports.
func transientToolError(err error) bool {
	var apiErr *providers.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

// retryWait honors a RetryAfter hint over the computed backoff.
func retryWait(err error, delay, max time.Duration) time.Duration {
	wait := delay
	var apiErr *providers.APIError
	if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
		wait = apiErr.RetryAfter
	}
	if max > 0 && wait > max {
		wait = max
	}
	return wait
}
