// Package util provides shared utility functions used across the codebase.
package util

import "strings"

// TruncateString truncates a string to maxLen runes, adding "..." if truncated.
func TruncateString(s string, maxLen int) string {
	if maxLen <= 3 {
		return "..."
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-3]) + "..."
}

// JoinBounded joins up to max elements with the separator, appending an
// ellipsis when elements were dropped. Used when listing task or worker
// IDs in log lines and CLI output.
func JoinBounded(elems []string, sep string, max int) string {
	if max <= 0 || len(elems) <= max {
		return strings.Join(elems, sep)
	}
	return strings.Join(elems[:max], sep) + sep + "..."
}
