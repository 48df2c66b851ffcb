package slug

import (
	"regexp"
	"strings"
	"time"
)

var (
	nonAlphaNum = regexp.MustCompile(`[^a-z0-9]+`)
	dashes      = regexp.MustCompile(`-{2,}`)
)

const maxLen = 64

// Make joins parts into a lowercase [a-z0-9-] slug of at most 64 characters.
func Make(parts ...string) string {
	s := strings.ToLower(strings.Join(parts, "-"))
	s = nonAlphaNum.ReplaceAllString(s, "-")
	s = dashes.ReplaceAllString(s, "-")
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	s = strings.Trim(s, "-")
	if s == "" {
		return "session"
	}
	return s
}

// Note names a markdown note by its time of day and slugged parts: 070000-run-sess-1.md.
func Note(at time.Time, parts ...string) string {
	return at.Format("150405") + "-" + Make(parts...) + ".md"
}
