package invoker

import (
	"encoding/json"
	"strings"
)

// Document is a decoded JSON object of unknown shape.
type Document map[string]any

// String returns the value at key when it is a string.
func (d Document) String(key string) (string, bool) {
	v, ok := d[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Object returns the value at key when it is a JSON object.
func (d Document) Object(key string) (Document, bool) {
	v, ok := d[key].(map[string]any)
	return Document(v), ok
}

// ExtractJSON returns the first complete top-level JSON object in s, after
// removing any Markdown code fence. It returns "" when none is found.
func ExtractJSON(s string) string {
	s = stripCodeFence(s)
	candidates := jsonCandidates(s)
	for _, c := range candidates {
		if json.Valid([]byte(c)) {
			return c
		}
	}
	if len(candidates) > 0 {
		return candidates[0]
	}
	return ""
}

func stripCodeFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return s
	}
	firstNewline := strings.Index(trimmed, "\n")
	lastFence := strings.LastIndex(trimmed, "```")
	if firstNewline == -1 || lastFence <= firstNewline {
		return s
	}
	return strings.TrimSpace(trimmed[firstNewline+1 : lastFence])
}

// jsonCandidates scans for balanced top-level {...} spans, ignoring braces
// inside string literals.
func jsonCandidates(s string) []string {
	var (
		out      []string
		depth    int
		start    = -1
		inString bool
		escape   bool
	)
	for i := 0; i < len(s); i++ {
		b := s[i]
		if depth > 0 && inString {
			switch {
			case escape:
				escape = false
			case b == '\\':
				escape = true
			case b == '"':
				inString = false
			}
			continue
		}
		switch b {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 {
					out = append(out, s[start:i+1])
					start = -1
				}
			}
		}
	}
	return out
}

// decodeObject parses raw as a JSON object, tolerating surrounding prose.
func decodeObject(raw string) (Document, bool) {
	candidate := ExtractJSON(raw)
	if candidate == "" {
		return nil, false
	}
	var doc Document
	if err := json.Unmarshal([]byte(candidate), &doc); err != nil || doc == nil {
		return nil, false
	}
	return doc, true
}
