package agent

import (
	"log/slog"
	"regexp"
	"strings"
)

// SanitizeAssistantContent cleans assistant text before it is persisted
// or delivered: tool-call artifacts some models leak as prose, thinking
// tags, echoed system blocks, duplicated paragraphs, and media markers
// that channels deliver out of band.
func SanitizeAssistantContent(content string) string {
	if content == "" {
		return content
	}

	original := content

	content = stripGarbledToolXML(content)
	if content == "" {
		return ""
	}
	content = stripDowngradedToolCallText(content)
	content = stripThinkingTags(content)
	content = stripFinalTags(content)
	content = stripEchoedSystemMessages(content)
	content = collapseConsecutiveDuplicateBlocks(content)
	content = stripMediaPaths(content)
	content = strings.TrimSpace(content)

	if content != original {
		slog.Debug("sanitized assistant content",
			"original_len", len(original), "cleaned_len", len(content))
	}
	return content
}

// garbledToolXMLPattern matches XML tool-call fragments that some
// models emit as text instead of using the structured field.
var garbledToolXMLPattern = regexp.MustCompile(
	`(?s)</?(?:function_calls?|invoke|tool_call|tool_use|parameter)[^>]*>`,
)

var garbledToolXMLIndicators = []string{
	"<parameter name=",
	"</parameter",
	"<function_call",
	"<tool_call",
	"<tool_use",
	"<invoke",
}

// stripGarbledToolXML drops a reply that is really a mangled tool-call
// block. A reply containing the markers is not user-facing text; the
// loop will re-prompt rather than deliver the fragments.
func stripGarbledToolXML(content string) string {
	lower := strings.ToLower(content)
	found := false
	for _, ind := range garbledToolXMLIndicators {
		if strings.Contains(lower, ind) {
			found = true
			break
		}
	}
	if !found {
		return content
	}

	cleaned := strings.TrimSpace(garbledToolXMLPattern.ReplaceAllString(content, ""))
	slog.Warn("stripped garbled tool call response",
		"original_len", len(content), "remaining_len", len(cleaned))
	return ""
}

// stripDowngradedToolCallText removes "[Tool Call: ...]" and
// "[Tool Result ...]" blocks rendered as text. Line-based because the
// regexp package has no lookahead.
func stripDowngradedToolCallText(content string) string {
	if !strings.Contains(content, "[Tool Call:") &&
		!strings.Contains(content, "[Tool Result") {
		return content
	}

	lines := strings.Split(content, "\n")
	var result []string
	skipping := false

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "[Tool Call:") ||
			strings.HasPrefix(trimmed, "[Tool Result") {
			skipping = true
			continue
		}
		if skipping {
			// Argument JSON and tool output are indented or empty.
			if trimmed == "" || strings.HasPrefix(trimmed, "Arguments:") ||
				strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "}") {
				continue
			}
			skipping = false
		}
		result = append(result, line)
	}
	return strings.TrimSpace(strings.Join(result, "\n"))
}

var thinkingTagPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)<think>.*?</think>`),
	regexp.MustCompile(`(?is)<thinking>.*?</thinking>`),
	regexp.MustCompile(`(?is)<thought>.*?</thought>`),
}

func stripThinkingTags(content string) string {
	lower := strings.ToLower(content)
	if !strings.Contains(lower, "<think") && !strings.Contains(lower, "<thought") {
		return content
	}
	result := content
	for _, pat := range thinkingTagPatterns {
		result = pat.ReplaceAllString(result, "")
	}
	return strings.TrimSpace(result)
}

// stripFinalTags removes <final> wrappers but keeps what is inside.
var finalTagPattern = regexp.MustCompile(`(?i)<\s*/?\s*final\s*>`)

func stripFinalTags(content string) string {
	if !strings.Contains(strings.ToLower(content), "final") {
		return content
	}
	return finalTagPattern.ReplaceAllString(content, "")
}

// stripEchoedSystemMessages removes "[System Message]" blocks the model
// echoed back from its own prompt.
func stripEchoedSystemMessages(content string) string {
	if !strings.Contains(content, "[System Message]") {
		return content
	}

	lines := strings.Split(content, "\n")
	var result []string
	skipping := false

	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "[System Message]") {
			skipping = true
			continue
		}
		if skipping {
			if strings.TrimSpace(line) == "" {
				skipping = false
			}
			continue
		}
		result = append(result, line)
	}

	cleaned := strings.TrimSpace(strings.Join(result, "\n"))
	if cleaned != strings.TrimSpace(content) {
		slog.Warn("stripped echoed system message block",
			"original_len", len(content), "cleaned_len", len(cleaned))
	}
	return cleaned
}

func collapseConsecutiveDuplicateBlocks(content string) string {
	blocks := strings.Split(content, "\n\n")
	if len(blocks) <= 1 {
		return content
	}

	var result []string
	for _, block := range blocks {
		trimmed := strings.TrimSpace(block)
		if trimmed == "" {
			continue
		}
		if len(result) > 0 && trimmed == strings.TrimSpace(result[len(result)-1]) {
			continue
		}
		result = append(result, block)
	}
	return strings.Join(result, "\n\n")
}

// stripMediaPaths removes MEDIA: marker lines. Channels pick media up
// from the outbound message, not from the reply text.
func stripMediaPaths(content string) string {
	if !strings.Contains(content, "MEDIA:") {
		return content
	}
	lines := strings.Split(content, "\n")
	var result []string
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "MEDIA:") {
			continue
		}
		result = append(result, line)
	}
	return strings.TrimSpace(strings.Join(result, "\n"))
}

// IsSilentReply reports whether the text is the NO_REPLY token the
// system prompt offers for group messages that need no answer.
func IsSilentReply(text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return false
	}
	const token = "NO_REPLY"
	if trimmed == token {
		return true
	}
	if strings.HasPrefix(trimmed, token) {
		rest := trimmed[len(token):]
		if rest == "" || !isWordChar(rune(rest[0])) {
			return true
		}
	}
	if strings.HasSuffix(trimmed, token) {
		before := trimmed[:len(trimmed)-len(token)]
		if before == "" || !isWordChar(rune(before[len(before)-1])) {
			return true
		}
	}
	return false
}

func isWordChar(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_'
}
