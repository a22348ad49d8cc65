package middleware

import (
	"encoding/json"
	"log/slog"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"

	"github.com/nextlevelbuilder/goaide/internal/providers"
)

// TokenCounter estimates the token footprint of a message window.
type TokenCounter func(msgs []providers.Message) int

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
)

// encoder returns the shared cl100k_base encoding, or nil when the BPE
// table cannot be loaded (offline hosts fall back to the heuristic).
func encoder() *tiktoken.Tiktoken {
	encOnce.Do(func() {
		e, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			slog.Debug("middleware.tiktoken_unavailable", "error", err)
			return
		}
		enc = e
	})
	return enc
}

// EstimateText counts tokens in s, approximating with one token per
// three runes when the encoding is unavailable.
func EstimateText(s string) int {
	if s == "" {
		return 0
	}
	if e := encoder(); e != nil {
		return len(e.Encode(s, nil, nil))
	}
	return utf8.RuneCountInString(s) / 3
}

// EstimateTokens estimates tokens for a message window, including tool
// call arguments and a small per-message framing overhead.
func EstimateTokens(msgs []providers.Message) int {
	total := 0
	for _, m := range msgs {
		total += 3 // role framing
		total += EstimateText(m.Content)
		for _, tc := range m.ToolCalls {
			total += EstimateText(tc.Name)
			if len(tc.Arguments) > 0 {
				if raw, err := json.Marshal(tc.Arguments); err == nil {
					total += EstimateText(string(raw))
				}
			}
		}
	}
	return total
}
