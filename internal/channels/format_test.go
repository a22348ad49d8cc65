package channels

import (
	"strings"
	"testing"
)

func TestSplitMessageLossless(t *testing.T) {
	cases := []struct {
		name    string
		content string
		limit   int
	}{
		{"short passes through", "hello", 100},
		{"splits on newlines", "line one\nline two\nline three\n", 10},
		{"hard splits long line", strings.Repeat("x", 45), 10},
		{"mixed", "short\n" + strings.Repeat("y", 30) + "\nend", 12},
		{"empty", "", 10},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			chunks := SplitMessage(tc.content, tc.limit)
			if got := strings.Join(chunks, ""); got != tc.content {
				t.Errorf("joined chunks = %q, want original %q", got, tc.content)
			}
			for i, chunk := range chunks {
				if len(chunk) > tc.limit {
					t.Errorf("chunk %d is %d bytes, over limit %d", i, len(chunk), tc.limit)
				}
			}
		})
	}
}

func TestSplitMessagePrefersNewlines(t *testing.T) {
	chunks := SplitMessage("aaa\nbbb\nccc", 8)
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2: %q", len(chunks), chunks)
	}
	if chunks[0] != "aaa\nbbb\n" {
		t.Errorf("first chunk = %q, want split at the newline boundary", chunks[0])
	}
}

func TestFormatTelegramBoldAndHeadings(t *testing.T) {
	in := "# Title\nsome **bold** text\n## Sub\ndone"
	want := "Title\nsome *bold* text\nSub\ndone"
	if got := FormatTelegram(in); got != want {
		t.Errorf("FormatTelegram() = %q, want %q", got, want)
	}
}

func TestFormatTelegramPreservesCodeBlocks(t *testing.T) {
	in := "before **b**\n```go\n# not a heading\nx := \"**literal**\"\n```\nafter **b**"
	got := FormatTelegram(in)

	if !strings.Contains(got, "# not a heading") {
		t.Error("heading marker inside code fence was stripped")
	}
	if !strings.Contains(got, "\"**literal**\"") {
		t.Error("bold marker inside code fence was rewritten")
	}
	if !strings.Contains(got, "before *b*") || !strings.Contains(got, "after *b*") {
		t.Error("bold markers outside the fence should be rewritten")
	}
}

func TestFormatTelegramUnterminatedFence(t *testing.T) {
	in := "text **b**\n```\nraw ** stays"
	got := FormatTelegram(in)
	if !strings.Contains(got, "raw ** stays") {
		t.Error("content after an unterminated fence must pass through verbatim")
	}
	if !strings.HasPrefix(got, "text *b*") {
		t.Errorf("prefix before fence should be formatted, got %q", got)
	}
}
