package state

import (
	"encoding/json"
	"strings"
	"time"

	"basegraph.app/concierge/internal/model"
)

// legacyState is the PascalCase marker layout written by earlier versions of
// the bot. Those markers carry no phase; Transition derives it from the flags.
type legacyState struct {
	Category               string
	LoopCount              int
	AskedFields            []string
	LastUpdated            legacyTime
	IsActionable           bool
	CompletenessScore      int
	IssueAuthor            string
	IsFinalized            bool
	FinalizedAt            *legacyTime
	EngineerBriefCommentID *int64 `json:"EngineerBriefCommentId"`
	BriefIterationCount    int
}

// legacyTime accepts timestamps with or without a zone. Zoneless values are
// taken as UTC.
type legacyTime struct {
	time.Time
}

var legacyTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.9999999",
	"2006-01-02T15:04:05",
}

func (t *legacyTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}

	var lastErr error
	for _, layout := range legacyTimeLayouts {
		parsed, err := time.Parse(layout, s)
		if err == nil {
			t.Time = parsed.UTC()
			return nil
		}
		lastErr = err
	}
	return lastErr
}

// isLegacy reports whether data uses the PascalCase layout. Only the keys
// are inspected.
func isLegacy(data []byte) bool {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err != nil {
		return false
	}
	for k := range keys {
		if k == "IssueAuthor" || k == "LoopCount" || k == "EngineerBriefCommentId" {
			return true
		}
	}
	return false
}

func decodeLegacy(data []byte) (*model.ConversationState, error) {
	var old legacyState
	if err := json.Unmarshal(data, &old); err != nil {
		return nil, err
	}

	st := &model.ConversationState{
		Category:            strings.TrimSpace(old.Category),
		LoopCount:           old.LoopCount,
		AskedFields:         old.AskedFields,
		LastUpdated:         old.LastUpdated.Time,
		IsActionable:        old.IsActionable,
		CompletenessScore:   old.CompletenessScore,
		Participant:         old.IssueAuthor,
		IsFinalized:         old.IsFinalized,
		BriefCommentID:      old.EngineerBriefCommentID,
		BriefIterationCount: old.BriefIterationCount,
	}
	if st.AskedFields == nil {
		st.AskedFields = []string{}
	}
	if old.FinalizedAt != nil && !old.FinalizedAt.IsZero() {
		finalized := old.FinalizedAt.Time
		st.FinalizedAt = &finalized
	}
	return st, nil
}
