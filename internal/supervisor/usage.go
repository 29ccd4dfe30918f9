package supervisor

import (
	"regexp"
	"strconv"

	"tame/internal/session"
)

// usagePatterns is the built-in, non-configurable regex set scanned
// against every complete line (spec.md §4.F step 7) to keep a session's
// resource-usage record current. Agent CLIs tend to print a status line
// like "Model: claude-sonnet-4  |  42/100 messages  |  resets 3:00pm".
var (
	usageModelRe   = regexp.MustCompile(`(?i)model:\s*([\w.\-]+)`)
	usageMessages  = regexp.MustCompile(`(?i)(\d+)\s*/\s*(\d+)\s*messages`)
	usageTokens    = regexp.MustCompile(`(?i)(\d+)\s*/\s*(\d+)\s*tokens`)
	usageRemaining = regexp.MustCompile(`(?i)([\d.]+%?\s*(?:remaining|left))`)
	usageRefresh   = regexp.MustCompile(`(?i)(?:resets?|refreshes?)\s+(?:at\s+)?([\w:. ]+?)(?:$|[.,;])`)
)

// scanUsage updates s.Usage in place from a single line of output,
// leaving fields it finds no match for untouched.
func scanUsage(s *session.Session, line string) {
	matched := false

	if m := usageModelRe.FindStringSubmatch(line); m != nil {
		s.Usage.ModelName = m[1]
		matched = true
	}
	if m := usageMessages.FindStringSubmatch(line); m != nil {
		if used, err := strconv.Atoi(m[1]); err == nil {
			s.Usage.MessagesUsed = &used
			matched = true
		}
	}
	if m := usageTokens.FindStringSubmatch(line); m != nil {
		if used, err := strconv.Atoi(m[1]); err == nil {
			s.Usage.TokensUsed = &used
			matched = true
		}
	}
	if m := usageRemaining.FindStringSubmatch(line); m != nil {
		v := m[1]
		s.Usage.QuotaRemaining = &v
		matched = true
	}
	if m := usageRefresh.FindStringSubmatch(line); m != nil {
		v := m[1]
		s.Usage.RefreshTime = &v
		matched = true
	}

	if matched {
		s.Usage.RawText = line
	}
}
