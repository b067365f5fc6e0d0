package triage

import "strings"

var disagreementPhrases = []string{
	"doesn't apply", "don't apply", "does not apply", "do not apply",
	"already tried", "already did", "already done",
	"didn't work", "did not work", "doesn't work", "does not work",
	"still broken", "still failing", "still see", "still getting",
	"not working", "not relevant", "not applicable",
	"different error", "different issue", "different problem",
	"need clarification", "not sure how", "unclear how",
	"not my case", "not my situation", "doesn't match",
	"disagree", "disagrees", "disagreed", "disagreement",
}

// ParseCommand finds /stop or /diagnose anywhere in a comment. /stop wins
// when both appear.
func ParseCommand(body string) Command {
	lower := strings.ToLower(body)
	switch {
	case strings.Contains(lower, "/stop"):
		return CommandStop
	case strings.Contains(lower, "/diagnose"):
		return CommandDiagnose
	default:
		return CommandNone
	}
}

// DetectDisagreement reports whether a reply pushes back on a posted brief.
func DetectDisagreement(body string) bool {
	lower := strings.ToLower(body)
	for _, phrase := range disagreementPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
