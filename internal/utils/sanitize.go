package utils

import (
	"regexp"
	"strings"
)

// The rewrite oracle is instructed to answer with a bare query string, but
// models routinely wrap the answer in markdown fences, quotes, or leftover
// prompt markers. Everything here is defensive parsing of that untrusted
// text; the output is never interpolated into a store query unsanitized.

var (
	codeFenceRe = regexp.MustCompile("(?s)```(?:[a-zA-Z]+)?\\s*(.+?)\\s*```")
	controlRe   = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F]`)
)

// Markers some models prepend despite being told not to. Checked in order;
// everything before and including the last marker occurrence is dropped.
var replyMarkers = []string{
	"STANDALONE CORRECTED QUERY:",
	"CORRECTED QUERY:",
	"OUTPUT:",
	"Query:",
	"City:",
}

// CleanOracleReply reduces a raw oracle completion to the single line of
// useful text it should have been: markdown fences unwrapped, prompt markers
// stripped, surrounding quotes removed, control characters dropped.
func CleanOracleReply(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}

	if matches := codeFenceRe.FindStringSubmatch(s); len(matches) > 1 {
		s = strings.TrimSpace(matches[1])
	}

	for _, marker := range replyMarkers {
		if idx := strings.LastIndex(s, marker); idx >= 0 {
			s = s[idx+len(marker):]
		}
	}

	s = controlRe.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)

	// Models sometimes answer with several lines of reasoning followed by
	// the actual query. Keep the last non-empty line.
	if idx := strings.LastIndex(s, "\n"); idx >= 0 {
		for _, line := range strings.Split(s, "\n") {
			if trimmed := strings.TrimSpace(line); trimmed != "" {
				s = trimmed
			}
		}
	}

	s = strings.Trim(s, `"'`)
	s = strings.TrimSuffix(s, ".")
	return strings.TrimSpace(s)
}

// TruncateString shortens s to maxLen characters for log output.
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
