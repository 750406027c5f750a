package prompt

import "strings"

var strictnessDirectives = []string{
	"",
	"Return strict JSON only. No commentary, no code fences. Do not repeat earlier suggestions.",
	"Your previous reply could not be parsed. Output one JSON object and nothing else: " +
		"it must start with '{' and end with '}'. No commentary, no code fences.",
}

// StrictnessDirective returns the output-format reminder for an escalation
// level. Level 0 adds nothing; levels past the last directive reuse it.
func StrictnessDirective(level int) string {
	if level <= 0 {
		return ""
	}
	if level >= len(strictnessDirectives) {
		level = len(strictnessDirectives) - 1
	}
	return strictnessDirectives[level]
}

// WithStrictness appends the directive for level to p's user text.
func (p Prompt) WithStrictness(level int) Prompt {
	d := StrictnessDirective(level)
	if d == "" {
		return p
	}
	p.User = strings.TrimRight(p.User, "\n") + "\n\n" + d
	return p
}
