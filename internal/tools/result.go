package tools

import (
	"fmt"
	"strings"

	"github.com/nextlevelbuilder/goaide/internal/providers"
)

// Result is the unified return type from tool execution. Validation
// problems travel in ForLLM as ordinary single-line "Error: ..." text
// so the model can react; Err is reserved for infrastructure failures
// the dispatcher and retry middleware act on.
type Result struct {
	ForLLM  string `json:"for_llm"`            // content sent to the LLM
	ForUser string `json:"for_user,omitempty"`  // content shown to the user
	Silent  bool   `json:"silent"`              // suppress user message
	IsError bool   `json:"is_error"`            // marks error
	Async   bool   `json:"async"`               // running asynchronously
	Err     error  `json:"-"`                   // internal error (not serialized)

	// Usage holds token usage from tools that make internal LLM calls (e.g. read_image).
	// When set, the agent loop records these on the tool span for tracing.
	Usage    *providers.Usage `json:"-"`
	Provider string           `json:"-"` // provider name (for tool span metadata)
	Model    string           `json:"-"` // model used (for tool span metadata)
}

func NewResult(forLLM string) *Result {
	return &Result{ForLLM: forLLM}
}

// SilentResult informs the model without surfacing anything to the user.
func SilentResult(forLLM string) *Result {
	return &Result{ForLLM: forLLM, Silent: true}
}

func ErrorResult(message string) *Result {
	return &Result{ForLLM: message, IsError: true}
}

// Errorf builds an error result in the single-line "Error: ..." form.
func Errorf(format string, args ...interface{}) *Result {
	return ErrorResult(formatToolError(fmt.Sprintf(format, args...)))
}

func UserResult(content string) *Result {
	return &Result{ForLLM: content, ForUser: content}
}

func AsyncResult(message string) *Result {
	return &Result{ForLLM: message, Async: true}
}

func (r *Result) WithError(err error) *Result {
	r.Err = err
	return r
}

// formatToolError renders an internal failure as the single-line form
// the model sees. Full traces stay in the logs.
func formatToolError(msg string) string {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		msg = "internal error"
	}
	if idx := strings.IndexByte(msg, '\n'); idx >= 0 {
		msg = msg[:idx]
	}
	return "Error: " + strings.TrimPrefix(msg, "Error: ")
}
