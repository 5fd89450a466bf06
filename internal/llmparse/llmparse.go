// Package llmparse contains tolerant parsers for LLM text output. Models
// wrap JSON in markdown fences or reshape requested formats; these helpers
// normalize the common variants before strict decoding.
package llmparse

import "strings"

// StripCodeFence removes a surrounding markdown code fence, including an
// optional language hint, and trims whitespace. Text without a fence is
// returned trimmed.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}

	var kept []string
	for _, line := range strings.Split(s, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

// ListItems extracts items from numbered ("1. foo", "2) bar") or dashed
// ("- foo", "* bar") list output, one item per line. Non-list lines are
// ignored.
func ListItems(s string) []string {
	var items []string
	for _, line := range strings.Split(StripCodeFence(s), "\n") {
		item := trimListMarker(strings.TrimSpace(line))
		if item != "" {
			items = append(items, item)
		}
	}
	return items
}

// trimListMarker strips a leading list marker and returns the remaining text,
// or "" when the line carries no marker.
func trimListMarker(line string) string {
	if line == "" {
		return ""
	}

	if strings.HasPrefix(line, "- ") || strings.HasPrefix(line, "* ") {
		return strings.TrimSpace(line[2:])
	}

	// Numbered markers: digits followed by '.' or ')'.
	i := 0
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	if i == 0 || i >= len(line) {
		return ""
	}
	if line[i] != '.' && line[i] != ')' {
		return ""
	}
	return strings.TrimSpace(line[i+1:])
}
