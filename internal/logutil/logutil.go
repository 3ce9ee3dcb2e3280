// Package logutil shapes user-entered text for log lines.
package logutil

import (
	"strings"
	"unicode/utf8"
)

// DefaultMaxChars bounds form values written to logs.
const DefaultMaxChars = 80

// TruncateForLog returns a single-line preview of value cut to maxChars runes.
// maxChars <= 0 disables truncation.
func TruncateForLog(value string, maxChars int) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	normalized := strings.NewReplacer("\r", "\\r", "\n", "\\n", "\t", "\\t").Replace(trimmed)
	if maxChars <= 0 || utf8.RuneCountInString(normalized) <= maxChars {
		return normalized
	}
	runes := []rune(normalized)
	return string(runes[:maxChars]) + "... [truncated]"
}

// FieldForLog previews a form value. Empty values are reported as "<empty>" so that
// clearing a field is distinguishable from a missing attribute.
func FieldForLog(value string) string {
	if value == "" {
		return "<empty>"
	}
	if preview := TruncateForLog(value, DefaultMaxChars); preview != "" {
		return preview
	}
	return "<blank>"
}
