package providers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// RetryConfig controls the exponential backoff applied to provider requests.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
	}
}

// RetryDo runs fn until it succeeds, the error is permanent, or attempts are
// exhausted. A RetryAfter hint on the error overrides the computed backoff.
// Callers retry only the connection phase of streaming requests; once a
// stream is consumed the response cannot be replayed.
func RetryDo[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	var zero T
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}

	delay := cfg.InitialDelay
	for attempt := 1; ; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		if attempt >= cfg.MaxAttempts || !isRetryable(err) {
			return zero, err
		}

		wait := delay
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
			wait = apiErr.RetryAfter
		}
		if wait > cfg.MaxDelay {
			wait = cfg.MaxDelay
		}

		slog.Warn("provider request failed, retrying",
			"attempt", attempt, "wait", wait, "error", err)

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(wait):
		}
		delay *= 2
	}
}

// isRetryable treats typed APIErrors per their classification. Anything else
// (marshal failures, decode failures on a 200 body) is permanent.
func isRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	return false
}

// ParseRetryAfter reads a Retry-After header value, either delta-seconds
// or an HTTP date. Returns 0 when the header is absent or unparseable.
func ParseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(header); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
