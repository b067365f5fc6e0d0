package model

import "time"

// Phase is the explicit state-machine position of a conversation.
type Phase string

const (
	PhaseNew           Phase = "new"
	PhaseLooping       Phase = "looping"
	PhaseOffTopicFinal Phase = "off_topic_final"
	PhaseActionable    Phase = "actionable_final"
	PhaseEscalated     Phase = "escalated_final"
	PhaseRevising      Phase = "revising"
	PhaseOptedOut      Phase = "opted_out"
)

// IsFinal reports whether the phase ends the follow-up loop.
func (p Phase) IsFinal() bool {
	switch p {
	case PhaseOffTopicFinal, PhaseActionable, PhaseEscalated, PhaseRevising, PhaseOptedOut:
		return true
	}
	return false
}

// ConversationState is the only persisted entity: one per participant per issue.
// The JSON keys are the on-the-wire marker format and must stay stable.
type ConversationState struct {
	Category            string     `json:"category"`
	LoopCount           int        `json:"loop_count"`
	AskedFields         []string   `json:"asked_fields"`
	LastUpdated         time.Time  `json:"last_updated"`
	IsActionable        bool       `json:"is_actionable"`
	CompletenessScore   int        `json:"completeness_score"`
	Participant         string     `json:"issue_author"`
	IsFinalized         bool       `json:"is_finalized"`
	FinalizedAt         *time.Time `json:"finalized_at"`
	BriefCommentID      *int64     `json:"engineer_brief_comment_id"`
	BriefIterationCount int        `json:"brief_iteration_count"`
	Phase               Phase      `json:"phase,omitempty"`
}

// Clone returns a deep copy so a run can mutate state without touching the
// snapshot it loaded.
func (s *ConversationState) Clone() *ConversationState {
	if s == nil {
		return nil
	}
	c := *s
	c.AskedFields = append([]string(nil), s.AskedFields...)
	if s.FinalizedAt != nil {
		t := *s.FinalizedAt
		c.FinalizedAt = &t
	}
	if s.BriefCommentID != nil {
		id := *s.BriefCommentID
		c.BriefCommentID = &id
	}
	return &c
}

// Finalize marks the conversation closed at now.
func (s *ConversationState) Finalize(phase Phase, now time.Time) {
	s.IsFinalized = true
	s.FinalizedAt = &now
	s.Phase = phase
	s.LastUpdated = now
}
