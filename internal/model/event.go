package model

// EventType is the canonical kind of tracker activity the orchestrator reacts to.
type EventType string

const (
	EventIssueOpened    EventType = "issue_opened"
	EventCommentCreated EventType = "comment_created"
	EventIgnored        EventType = "ignored"
)

// Event is a tracker event normalized from a webhook, a queued message or the
// GitHub Actions event file.
type Event struct {
	ID         string     `json:"id,omitempty"`
	Type       EventType  `json:"type"`
	Action     string     `json:"action,omitempty"`
	Issue      Issue      `json:"issue"`
	Comment    *Comment   `json:"comment,omitempty"`
	Repository Repository `json:"repository"`
	TraceID    string     `json:"trace_id,omitempty"`
}
