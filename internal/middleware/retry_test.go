package middleware

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nextlevelbuilder/goaide/internal/providers"
	"github.com/nextlevelbuilder/goaide/internal/tools"
)

func fastRetry() providers.RetryConfig {
	return providers.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestModelRetryRecovers(t *testing.T) {
	chain := NewChain(NewModelRetry(fastRetry()))
	run := NewRun("thread")

	calls := 0
	resp, err := chain.CallModel(context.Background(), run, &Request{}, func(ctx context.Context, req *Request) (*providers.ChatResponse, error) {
		calls++
		if calls < 3 {
			return nil, &providers.APIError{Provider: "anthropic", Kind: providers.KindConnection, Message: "conn reset"}
		}
		return &providers.ChatResponse{Content: "recovered"}, nil
	})
	if err != nil {
		t.Fatalf("expected recovery, got: %v", err)
	}
	if resp.Content != "recovered" || calls != 3 {
		t.Errorf("got %q after %d calls, want \"recovered\" after 3", resp.Content, calls)
	}
	if run.ModelCalls() != 1 {
		t.Errorf("model calls = %d, want 1 (retries are one logical call)", run.ModelCalls())
	}
}

func TestModelRetryPermanentFailsFast(t *testing.T) {
	chain := NewChain(NewModelRetry(fastRetry()))
	run := NewRun("thread")

	calls := 0
	_, err := chain.CallModel(context.Background(), run, &Request{}, func(ctx context.Context, req *Request) (*providers.ChatResponse, error) {
		calls++
		return nil, &providers.APIError{Provider: "anthropic", Kind: providers.KindAuthentication, StatusCode: 401, Message: "bad key"}
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("permanent error retried %d times, want 1 attempt", calls)
	}
	if run.ModelCalls() != 0 {
		t.Errorf("failed call counted: %d", run.ModelCalls())
	}
}

func TestToolRetryTransientThenOK(t *testing.T) {
	chain := NewChain(NewToolRetry(fastRetry()))
	run := NewRun("thread")

	attempts := 0
	batch, err := chain.BeginTools(context.Background(), run,
		[]providers.ToolCall{{ID: "1", Name: "web_search"}},
		func(ctx context.Context, call providers.ToolCall) *tools.Result {
			attempts++
			if attempts == 1 {
				return &tools.Result{
					ForLLM:  "rate limited",
					IsError: true,
					Err:     &providers.APIError{Provider: "brave", Kind: providers.KindRateLimit, StatusCode: 429, Message: "slow down"},
				}
			}
			return tools.NewResult("results")
		})
	if err != nil {
		t.Fatalf("BeginTools: %v", err)
	}
	for _, i := range batch.Pending() {
		batch.Invoke(context.Background(), i)
	}

	if err := chain.FinishTools(context.Background(), run, batch); err != nil {
		t.Fatalf("FinishTools: %v", err)
	}
	if attempts != 2 {
		t.Errorf("tool ran %d times, want 2", attempts)
	}
	final := batch.Results[0]
	if final.Err != nil || final.IsError {
		t.Errorf("final result still failing: %+v", final)
	}
	if final.ForLLM != "results" {
		t.Errorf("final result = %q, want the retried output", final.ForLLM)
	}
	if run.ToolCalls() != 2 {
		t.Errorf("tool calls = %d, want 2 (the retry executes again)", run.ToolCalls())
	}
}

func TestToolRetrySkipsNonTransient(t *testing.T) {
	chain := NewChain(NewToolRetry(fastRetry()))
	run := NewRun("thread")

	attempts := 0
	batch, err := chain.BeginTools(context.Background(), run,
		[]providers.ToolCall{{ID: "1", Name: "read_file"}},
		func(ctx context.Context, call providers.ToolCall) *tools.Result {
			attempts++
			return &tools.Result{ForLLM: "no such file", IsError: true, Err: errors.New("open: no such file")}
		})
	if err != nil {
		t.Fatalf("BeginTools: %v", err)
	}
	for _, i := range batch.Pending() {
		batch.Invoke(context.Background(), i)
	}

	if err := chain.FinishTools(context.Background(), run, batch); err != nil {
		t.Fatalf("FinishTools: %v", err)
	}
	if attempts != 1 {
		t.Errorf("non-transient error retried: %d attempts", attempts)
	}
}

func TestToolRetrySkipsModelFacingErrors(t *testing.T) {
	// IsError without Err is a message for the model, not a transport
	// failure. The model reacts to it; retrying would repeat the call
	// the model already saw fail.
	chain := NewChain(NewToolRetry(fastRetry()))
	run := NewRun("thread")

	attempts := 0
	batch, _ := chain.BeginTools(context.Background(), run,
		[]providers.ToolCall{{ID: "1", Name: "update_tdb_table"}},
		func(ctx context.Context, call providers.ToolCall) *tools.Result {
			attempts++
			return &tools.Result{ForLLM: "no rows matched the WHERE clause", IsError: true}
		})
	for _, i := range batch.Pending() {
		batch.Invoke(context.Background(), i)
	}
	if err := chain.FinishTools(context.Background(), run, batch); err != nil {
		t.Fatalf("FinishTools: %v", err)
	}
	if attempts != 1 {
		t.Errorf("model-facing error retried: %d attempts", attempts)
	}
}

func TestTransientToolError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil wrapped api rate limit", &providers.APIError{Kind: providers.KindRateLimit}, true},
		{"api connection", &providers.APIError{Kind: providers.KindConnection}, true},
		{"api auth", &providers.APIError{Kind: providers.KindAuthentication}, false},
		{"plain error", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := transientToolError(tt.err); got != tt.want {
				t.Errorf("transientToolError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestRetryWaitHonorsHint(t *testing.T) {
	hinted := &providers.APIError{Kind: providers.KindRateLimit, RetryAfter: 3 * time.Millisecond}
	if got := retryWait(hinted, time.Millisecond, 10*time.Millisecond); got != 3*time.Millisecond {
		t.Errorf("wait = %v, want the RetryAfter hint", got)
	}
	// The cap applies to hints too.
	if got := retryWait(hinted, time.Millisecond, 2*time.Millisecond); got != 2*time.Millisecond {
		t.Errorf("wait = %v, want the cap", got)
	}
	if got := retryWait(errors.New("plain"), 4*time.Millisecond, 10*time.Millisecond); got != 4*time.Millisecond {
		t.Errorf("wait = %v, want the backoff delay", got)
	}
}
