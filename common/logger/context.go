package logger

import "context"

type contextKey string

const logFieldsKey contextKey = "log_fields"

// LogFields contains structured fields automatically added to all logs within a context.
// Fields flow through context enrichment so that the conversation being triaged
// (repo, issue, participant) is attached to every log line without threading it by hand.
type LogFields struct {
	Repo        *string // owner/name or GitLab project path
	IssueNumber *int64  // Issue number (GitHub) or IID (GitLab)
	Participant *string // Participant whose conversation state is being processed
	RunID       *int64  // Snowflake ID of a single triage run
	MessageID   *string // Redis stream message ID
	EventType   *string // Canonical event type (e.g., "issue_opened", "comment_created")
	Component   string  // Component name (OTel semantic convention style, e.g., "concierge.triage.orchestrator")
}

// WithLogFields enriches context with structured log fields.
// Multiple calls merge fields, with newer non-nil/non-empty values taking precedence.
func WithLogFields(ctx context.Context, fields LogFields) context.Context {
	existing := GetLogFields(ctx)
	merged := mergeFields(existing, fields)
	return context.WithValue(ctx, logFieldsKey, merged)
}

// GetLogFields retrieves log fields from context.
// Returns empty LogFields if none are set.
func GetLogFields(ctx context.Context) LogFields {
	if fields, ok := ctx.Value(logFieldsKey).(LogFields); ok {
		return fields
	}
	return LogFields{}
}

func mergeFields(existing, next LogFields) LogFields {
	result := existing

	if next.Repo != nil {
		result.Repo = next.Repo
	}
	if next.IssueNumber != nil {
		result.IssueNumber = next.IssueNumber
	}
	if next.Participant != nil {
		result.Participant = next.Participant
	}
	if next.RunID != nil {
		result.RunID = next.RunID
	}
	if next.MessageID != nil {
		result.MessageID = next.MessageID
	}
	if next.EventType != nil {
		result.EventType = next.EventType
	}
	if next.Component != "" {
		result.Component = next.Component
	}

	return result
}

// Ptr is a helper to create a pointer from a value.
// Useful for setting LogFields inline: logger.WithLogFields(ctx, logger.LogFields{Repo: logger.Ptr(repo)})
func Ptr[T any](v T) *T {
	return &v
}

// Truncate truncates a string to maxLen bytes, appending "..." if truncated.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
