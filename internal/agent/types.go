package agent

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"basegraph.app/concierge/internal/model"
)

type Classification struct {
	Category   string  `json:"category" jsonschema_description:"One of the configured category names"`
	Confidence float64 `json:"confidence" jsonschema_description:"Confidence 0.0-1.0"`
	Reasoning  string  `json:"reasoning" jsonschema_description:"One sentence on why the category fits"`
}

// Degraded reports whether the classification is a fallback rather than a model answer.
func (c Classification) Degraded() bool {
	return c.Reasoning == degradedReasoning
}

type FollowUp struct {
	Field     string `json:"field" jsonschema_description:"Checklist field this question fills"`
	Question  string `json:"question" jsonschema_description:"The question to ask the reporter"`
	WhyNeeded string `json:"why_needed" jsonschema_description:"Short reason the maintainers need this"`
}

type followUpsResponse struct {
	Questions []FollowUp `json:"questions" jsonschema_description:"At most three targeted questions"`
}

type EnvEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// EnvList is the brief's environment table. Structured-output providers need a
// fixed shape, so it is requested as a list of key/value pairs, but a plain
// JSON object is accepted too.
type EnvList []EnvEntry

func (l *EnvList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*l = nil
		return nil
	}

	if data[0] == '[' {
		var entries []EnvEntry
		if err := json.Unmarshal(data, &entries); err != nil {
			return err
		}
		*l = entries
		return nil
	}

	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("environment: %w", err)
	}
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	entries := make([]EnvEntry, 0, len(keys))
	for _, k := range keys {
		entries = append(entries, EnvEntry{Key: k, Value: stringify(obj[k])})
	}
	*l = entries
	return nil
}

type DuplicateRef struct {
	IssueNumber      int64  `json:"issue_number" jsonschema_description:"Number of the possibly related issue"`
	SimilarityReason string `json:"similarity_reason" jsonschema_description:"Why it looks related"`
}

// Brief is the engineer-facing summary posted when a conversation becomes actionable.
type Brief struct {
	Summary                 string         `json:"summary" jsonschema_description:"One-sentence summary of the issue"`
	Symptoms                []string       `json:"symptoms"`
	ReproSteps              []string       `json:"repro_steps"`
	Environment             EnvList        `json:"environment"`
	KeyEvidence             []string       `json:"key_evidence" jsonschema_description:"Short log or error excerpts"`
	NextSteps               []string       `json:"next_steps"`
	ValidationConfirmations []string       `json:"validation_confirmations" jsonschema_description:"Two or three yes/no checks for the reporter"`
	PossibleDuplicates      []DuplicateRef `json:"possible_duplicates"`
}

// IsEmpty reports whether the brief carries no content at all.
func (b Brief) IsEmpty() bool {
	return b.Summary == "" && len(b.Symptoms) == 0 && len(b.ReproSteps) == 0 &&
		len(b.Environment) == 0 && len(b.KeyEvidence) == 0 && len(b.NextSteps) == 0
}

type BriefInput struct {
	IssueBody  string
	Comments   string
	Category   string
	Fields     model.Fields
	Playbook   string
	RepoDocs   string
	Duplicates []model.IssueSummary
}

type RevisionInput struct {
	PreviousBrief string
	Feedback      string
	Category      string
	Fields        model.Fields
	Playbook      string
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64, bool:
		return fmt.Sprint(t)
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(data)
	}
}
