package tools

import (
	"encoding/json"
	"errors"
	"regexp"
	"strconv"
	"strings"
)

// Models without native tool calling sometimes emit their calls as an
// XML block inside ordinary content:
//
//	<function_calls>
//	  <invoke name="add">
//	    <parameter name="a" string="false">2</parameter>
//	  </invoke>
//	</function_calls>
//
// Both <function_calls> and <functioncalls> appear in the wild, and the
// close tag does not always match the open tag.

// ErrProseInterleaved reports a tool-call block mixed with prose. The
// caller turns this into a single retry-style error result.
var ErrProseInterleaved = errors.New("tool call block is interleaved with prose")

// EmbeddedCall is one parsed <invoke> entry.
type EmbeddedCall struct {
	Name      string
	Arguments map[string]interface{}
}

var (
	reCallBlock = regexp.MustCompile(`(?is)<function_?calls>(.*?)</function_?calls>`)
	reCallOpen  = regexp.MustCompile(`(?i)<function_?calls>`)
	reInvoke    = regexp.MustCompile(`(?is)<invoke\s+name="([^"]+)"\s*>(.*?)</invoke>`)
	reParameter = regexp.MustCompile(`(?is)<parameter\s+name="([^"]+)"(?:\s+string="(true|false)")?\s*>(.*?)</parameter>`)
)

// HasEmbeddedCalls reports whether content contains a tool-call block.
func HasEmbeddedCalls(content string) bool {
	return reCallOpen.MatchString(content)
}

// ParseEmbeddedCalls extracts tool calls from content. It returns
// (nil, nil) when no block is present and ErrProseInterleaved when the
// block is mixed with other text.
func ParseEmbeddedCalls(content string) ([]EmbeddedCall, error) {
	if !HasEmbeddedCalls(content) {
		return nil, nil
	}

	blocks := reCallBlock.FindAllStringSubmatchIndex(content, -1)
	var inner []string
	remainder := content
	if len(blocks) > 0 {
		// Strip matched blocks back to front so indexes stay valid.
		for i := len(blocks) - 1; i >= 0; i-- {
			m := blocks[i]
			inner = append(inner, content[m[2]:m[3]])
			remainder = remainder[:m[0]] + remainder[m[1]:]
		}
	} else {
		// Open tag without any close tag: take everything after it.
		loc := reCallOpen.FindStringIndex(content)
		inner = append(inner, content[loc[1]:])
		remainder = content[:loc[0]]
	}

	if strings.TrimSpace(remainder) != "" {
		return nil, ErrProseInterleaved
	}

	var calls []EmbeddedCall
	for i := len(inner) - 1; i >= 0; i-- { // restore document order
		for _, inv := range reInvoke.FindAllStringSubmatch(inner[i], -1) {
			call := EmbeddedCall{
				Name:      strings.TrimSpace(inv[1]),
				Arguments: parseInvokeParams(inv[2]),
			}
			if call.Name != "" {
				calls = append(calls, call)
			}
		}
	}
	return calls, nil
}

func parseInvokeParams(body string) map[string]interface{} {
	args := make(map[string]interface{})
	for _, p := range reParameter.FindAllStringSubmatch(body, -1) {
		name := strings.TrimSpace(p[1])
		if name == "" {
			continue
		}
		isString := strings.EqualFold(p[2], "true")
		raw := p[3]
		if isString {
			args[name] = raw
			continue
		}
		args[name] = coerceParamValue(strings.TrimSpace(raw))
	}
	return args
}

// coerceParamValue decodes a non-string parameter: JSON first, then
// integer and boolean literals, falling back to the raw string.
func coerceParamValue(raw string) interface{} {
	var v interface{}
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		return v
	}
	if n, err := strconv.Atoi(raw); err == nil {
		return n
	}
	if b, err := strconv.ParseBool(raw); err == nil {
		return b
	}
	return raw
}
