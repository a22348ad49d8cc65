package middleware

import (
	"strings"
	"testing"

	"github.com/nextlevelbuilder/goaide/internal/providers"
)

// The assertions hold under both the cl100k_base encoding and the
// rune-count fallback, so the tests pass with or without the BPE table.

func TestEstimateTextEmpty(t *testing.T) {
	if got := EstimateText(""); got != 0 {
		t.Errorf("EstimateText(\"\") = %d, want 0", got)
	}
}

func TestEstimateTextGrowsWithLength(t *testing.T) {
	short := EstimateText("a quick note")
	long := EstimateText(strings.Repeat("a considerably longer sentence about nothing in particular. ", 20))
	if long <= short {
		t.Errorf("long text %d tokens <= short text %d tokens", long, short)
	}
	if long == 0 {
		t.Error("long text estimated at zero tokens")
	}
}

func TestEstimateTokensFraming(t *testing.T) {
	if got := EstimateTokens(nil); got != 0 {
		t.Errorf("EstimateTokens(nil) = %d, want 0", got)
	}
	// An empty message still costs its role framing.
	if got := EstimateTokens([]providers.Message{{Role: "user"}}); got != 3 {
		t.Errorf("framing-only message = %d tokens, want 3", got)
	}
}

func TestEstimateTokensCountsToolCalls(t *testing.T) {
	base := []providers.Message{{Role: "assistant", Content: "checking the usual places"}}
	withCall := []providers.Message{{
		Role:    "assistant",
		Content: "checking the usual places",
		ToolCalls: []providers.ToolCall{{
			ID:   "c1",
			Name: "search_web",
			Arguments: map[string]interface{}{
				"query": "average rainfall in the pacific northwest by month",
			},
		}},
	}}
	if EstimateTokens(withCall) <= EstimateTokens(base) {
		t.Errorf("tool call added no tokens: %d vs %d", EstimateTokens(withCall), EstimateTokens(base))
	}
}

func TestEstimateTokensAccumulates(t *testing.T) {
	one := []providers.Message{{Role: "user", Content: "first message with some words in it"}}
	two := append(one, providers.Message{Role: "assistant", Content: "second message with some more words"})
	if EstimateTokens(two) <= EstimateTokens(one) {
		t.Errorf("window of two <= window of one: %d vs %d", EstimateTokens(two), EstimateTokens(one))
	}
}
