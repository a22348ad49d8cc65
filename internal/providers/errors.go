package providers

import (
	"encoding/json"
	"fmt"
	"time"
)

// ErrorKind classifies a provider failure for retry and HTTP mapping decisions.
type ErrorKind string

const (
	KindAuthentication ErrorKind = "authentication"
	KindRateLimit      ErrorKind = "rate_limit"
	KindModelNotFound  ErrorKind = "model_not_found"
	KindConnection     ErrorKind = "connection"
	KindServer         ErrorKind = "server"
)

// APIError is the typed failure every provider adapter returns for non-2xx
// responses and transport errors. Middleware retry consumes Kind/RetryAfter;
// the HTTP layer maps Kind to a status code.
type APIError struct {
	Provider   string
	Kind       ErrorKind
	StatusCode int           // 0 for transport-level failures
	RetryAfter time.Duration // from Retry-After header, 0 when absent
	Message    string
	Err        error // underlying transport error, nil for HTTP status errors
}

func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: HTTP %d: %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func (e *APIError) Unwrap() error { return e.Err }

// Retryable reports whether a retry could plausibly succeed.
// Non-5xx statuses classified as KindServer (unrecognized 4xx) are permanent.
func (e *APIError) Retryable() bool {
	switch e.Kind {
	case KindRateLimit, KindConnection:
		return true
	case KindServer:
		return e.StatusCode == 0 || e.StatusCode >= 500
	}
	return false
}

// connectionError wraps a transport-level failure (dial, TLS, context cancel).
func connectionError(provider string, err error) *APIError {
	return &APIError{
		Provider: provider,
		Kind:     KindConnection,
		Message:  err.Error(),
		Err:      err,
	}
}

// classifyStatus maps an HTTP error response to an APIError.
// Both Anthropic and OpenAI-compatible APIs wrap failures as
// {"error": {"message": ...}}; the raw body is kept when that shape is absent.
func classifyStatus(provider string, status int, body []byte, retryAfter time.Duration) *APIError {
	kind := KindServer
	switch {
	case status == 401 || status == 403:
		kind = KindAuthentication
	case status == 404:
		kind = KindModelNotFound
	case status == 429:
		kind = KindRateLimit
	}

	return &APIError{
		Provider:   provider,
		Kind:       kind,
		StatusCode: status,
		RetryAfter: retryAfter,
		Message:    errorMessageFromBody(body),
	}
}

func errorMessageFromBody(body []byte) string {
	var wire struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &wire); err == nil && wire.Error.Message != "" {
		return wire.Error.Message
	}
	msg := string(body)
	if len(msg) > 2000 {
		msg = msg[:2000]
	}
	return msg
}
