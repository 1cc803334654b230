package synthesizer

import (
	"encoding/json"
	"strings"

	"docqa/internal/rag/schema"
)

// ParseAnswer decodes the model output into a StructuredAnswer. Code fences and
// text around the outermost JSON object are ignored. Output that does not
// decode into an object with a non-empty answer becomes {answer: raw}.
func ParseAnswer(raw string) *schema.StructuredAnswer {
	trimmed := strings.TrimSpace(raw)
	fallback := &schema.StructuredAnswer{Answer: trimmed}

	body := outermostObject(stripFences(trimmed))
	if body == "" {
		return fallback
	}
	var parsed schema.StructuredAnswer
	if err := json.Unmarshal([]byte(body), &parsed); err != nil {
		return fallback
	}
	parsed.Answer = strings.TrimSpace(parsed.Answer)
	if parsed.Answer == "" {
		return fallback
	}
	parsed.Structured = true
	return &parsed
}

// stripFences removes a surrounding ``` or ```json fence.
func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	if end := strings.LastIndex(s, "```"); end >= 0 {
		s = s[:end]
	}
	return strings.TrimSpace(s)
}

// outermostObject returns the span from the first '{' to its matching '}',
// skipping braces inside JSON strings.
func outermostObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth, inString, escaped := 0, false, false
	for i := start; i < len(s); i++ {
		ch := s[i]
		switch {
		case escaped:
			escaped = false
		case inString && ch == '\\':
			escaped = true
		case ch == '"':
			inString = !inString
		case inString:
		case ch == '{':
			depth++
		case ch == '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
