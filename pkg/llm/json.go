package llm

import (
	"strings"
)

// ExtractJSON pulls the JSON document out of a model response. Models often
// wrap JSON in markdown code fences or surround it with prose; this strips
// both and returns the outermost object or array.
func ExtractJSON(content string) string {
	s := strings.TrimSpace(content)

	// Strip markdown code fences
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx >= 0 {
			s = s[idx+1:]
		}
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}

	// Trim prose around the outermost JSON value
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return s
	}
	var end int
	if s[start] == '{' {
		end = strings.LastIndex(s, "}")
	} else {
		end = strings.LastIndex(s, "]")
	}
	if end <= start {
		return s
	}
	return s[start : end+1]
}
