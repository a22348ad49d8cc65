package providers

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestRetryDo_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	got, err := RetryDo(context.Background(), fastRetryConfig(), func() (string, error) {
		calls++
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("expected nil error, got: %v", err)
	}
	if got != "ok" || calls != 1 {
		t.Fatalf("got %q after %d calls, want \"ok\" after 1", got, calls)
	}
}

func TestRetryDo_RetriesTransientThenSucceeds(t *testing.T) {
	calls := 0
	got, err := RetryDo(context.Background(), fastRetryConfig(), func() (string, error) {
		calls++
		if calls < 3 {
			return "", &APIError{Provider: "openai", Kind: KindServer, StatusCode: 503, Message: "unavailable"}
		}
		return "recovered", nil
	})
	if err != nil {
		t.Fatalf("expected recovery, got: %v", err)
	}
	if got != "recovered" || calls != 3 {
		t.Fatalf("got %q after %d calls, want \"recovered\" after 3", got, calls)
	}
}

func TestRetryDo_PermanentErrorFailsFast(t *testing.T) {
	calls := 0
	_, err := RetryDo(context.Background(), fastRetryConfig(), func() (string, error) {
		calls++
		return "", &APIError{Provider: "openai", Kind: KindAuthentication, StatusCode: 401, Message: "bad key"}
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("permanent error retried %d times, want 1 attempt", calls)
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Kind != KindAuthentication {
		t.Fatalf("expected authentication APIError, got: %v", err)
	}
}

func TestRetryDo_ExhaustsAttempts(t *testing.T) {
	calls := 0
	_, err := RetryDo(context.Background(), fastRetryConfig(), func() (int, error) {
		calls++
		return 0, &APIError{Provider: "openai", Kind: KindRateLimit, StatusCode: 429, Message: "slow down"}
	})
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if calls != 3 {
		t.Fatalf("made %d attempts, want 3", calls)
	}
}

func TestRetryDo_HonorsRetryAfterHint(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 2, InitialDelay: time.Hour, MaxDelay: time.Hour}
	start := time.Now()
	calls := 0
	_, _ = RetryDo(context.Background(), cfg, func() (int, error) {
		calls++
		if calls == 1 {
			return 0, &APIError{
				Provider:   "openai",
				Kind:       KindRateLimit,
				StatusCode: 429,
				RetryAfter: time.Millisecond,
				Message:    "slow down",
			}
		}
		return 1, nil
	})
	if calls != 2 {
		t.Fatalf("made %d attempts, want 2", calls)
	}
	// Without the hint the backoff would have waited an hour.
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("retry waited %v, want the RetryAfter hint to override backoff", elapsed)
	}
}

func TestRetryDo_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := RetryConfig{MaxAttempts: 3, InitialDelay: time.Hour, MaxDelay: time.Hour}

	calls := 0
	done := make(chan error, 1)
	go func() {
		_, err := RetryDo(ctx, cfg, func() (int, error) {
			calls++
			return 0, &APIError{Provider: "openai", Kind: KindConnection, Message: "dial refused"}
		})
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("RetryDo did not return after context cancellation")
	}
	if calls != 1 {
		t.Fatalf("made %d attempts before cancel, want 1", calls)
	}
}

func TestRetryDo_NonAPIErrorIsPermanent(t *testing.T) {
	calls := 0
	_, err := RetryDo(context.Background(), fastRetryConfig(), func() (int, error) {
		calls++
		return 0, errors.New("decode response: unexpected EOF")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("plain error retried %d times, want 1 attempt", calls)
	}
}
