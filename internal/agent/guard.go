package agent

import (
	"regexp"
)

// InputGuard scans inbound user text for prompt-injection markers before
// it reaches the model. Detection is pattern-based and intentionally
// coarse: the guard flags, the configured action decides what happens.
type InputGuard struct {
	patterns []guardPattern
}

type guardPattern struct {
	name string
	re   *regexp.Regexp
}

// NewInputGuard builds a guard with the built-in pattern set.
func NewInputGuard() *InputGuard {
	compile := func(name, expr string) guardPattern {
		return guardPattern{name: name, re: regexp.MustCompile(expr)}
	}
	return &InputGuard{patterns: []guardPattern{
		compile("ignore_instructions", `(?i)ignore\s+(all\s+)?(previous|prior|above)\s+(instructions|prompts|rules)`),
		compile("disregard_instructions", `(?i)disregard\s+(all\s+)?(previous|prior|your)\s+(instructions|rules|guidelines)`),
		compile("reveal_prompt", `(?i)(reveal|show|print|repeat)\s+(your\s+)?(system\s+prompt|initial\s+instructions|hidden\s+instructions)`),
		compile("role_override", `(?i)you\s+are\s+now\s+(a\s+)?(different|new|unrestricted)`),
		compile("jailbreak_dan", `(?i)\b(DAN\s+mode|developer\s+mode\s+enabled|jailbreak)\b`),
		compile("fake_system", `(?i)^\s*(\[system\]|<\|?system\|?>|system\s*:)`),
		compile("fake_tool_result", `(?i)<tool_result>|\[tool\s+output\]`),
	}}
}

// Scan returns the names of every pattern the text matches, empty when
// the input is clean.
func (g *InputGuard) Scan(text string) []string {
	var matches []string
	for _, p := range g.patterns {
		if p.re.MatchString(text) {
			matches = append(matches, p.name)
		}
	}
	return matches
}
