package logging

import (
	"regexp"
	"strings"
)

const (
	// MaxJobErrorLength is the maximum length of an error message persisted to
	// a job record or emitted to a client.
	MaxJobErrorLength = 200
	// RedactedText is the replacement text for sensitive data
	RedactedText = "[REDACTED]"
)

var (
	// Pattern to match potential passwords in connection strings
	// Matches: password=xxx, pwd=xxx, pass=xxx (until next delimiter)
	passwordPattern = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`)

	// Pattern to match potential API keys
	apiKeyPattern = regexp.MustCompile(`(?i)(api[_-]?key|apikey|key)=[A-Za-z0-9-_]{20,}`)

	// Pattern to match connection string credentials (user:pass@host format)
	connStringPattern = regexp.MustCompile(`://[^:]+:[^@]+@[^/\s]+`)

	// Pattern to match filesystem paths that leak server layout into messages
	filePathPattern = regexp.MustCompile(`(/[A-Za-z0-9._-]+){3,}`)
)

// SanitizeError sanitizes error messages that might contain sensitive data
// or server internals. Use this before persisting any error to a job record.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return SanitizeMessage(err.Error())
}

// SanitizeMessage scrubs credentials and file paths from a message and
// truncates it to MaxJobErrorLength.
func SanitizeMessage(msg string) string {
	if msg == "" {
		return ""
	}

	sanitized := passwordPattern.ReplaceAllString(msg, "${1}="+RedactedText)
	sanitized = apiKeyPattern.ReplaceAllString(sanitized, "${1}="+RedactedText)
	sanitized = connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@"+RedactedText)
	sanitized = filePathPattern.ReplaceAllString(sanitized, RedactedText)

	sanitized = strings.TrimSpace(sanitized)
	if len(sanitized) > MaxJobErrorLength {
		sanitized = sanitized[:MaxJobErrorLength] + "..."
	}
	return sanitized
}
