package mapper

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"basegraph.app/concierge/internal/model"
)

const (
	gitlabEventHeader = "X-Gitlab-Event"
	gitlabUUIDHeader  = "X-Gitlab-Event-UUID"
)

var gitlabTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05 MST",
	"2006-01-02 15:04:05 -0700",
}

type gitlabUser struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

type gitlabProject struct {
	PathWithNamespace string `json:"path_with_namespace"`
	DefaultBranch     string `json:"default_branch"`
}

type gitlabLabel struct {
	Title string `json:"title"`
}

type gitlabIssueAttributes struct {
	ID          int64  `json:"id"`
	IID         int64  `json:"iid"`
	Title       string `json:"title"`
	Description string `json:"description"`
	AuthorID    int64  `json:"author_id"`
	Action      string `json:"action"`
	URL         string `json:"url"`
}

type gitlabNoteAttributes struct {
	ID           int64  `json:"id"`
	Note         string `json:"note"`
	NoteableType string `json:"noteable_type"`
	AuthorID     int64  `json:"author_id"`
	CreatedAt    string `json:"created_at"`
	System       bool   `json:"system"`
}

type gitlabWebhookPayload struct {
	ObjectKind       string                 `json:"object_kind"`
	User             gitlabUser             `json:"user"`
	Project          gitlabProject          `json:"project"`
	ObjectAttributes json.RawMessage        `json:"object_attributes"`
	Issue            *gitlabIssueAttributes `json:"issue"`
	Labels           []gitlabLabel          `json:"labels"`
}

type GitLabEventMapper struct{}

func NewGitLabEventMapper() *GitLabEventMapper {
	return &GitLabEventMapper{}
}

// Map handles "Issue Hook" with action open and "Note Hook" on issues.
func (m *GitLabEventMapper) Map(_ context.Context, body []byte, headers map[string]string) (model.Event, error) {
	var payload gitlabWebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return model.Event{}, fmt.Errorf("decoding gitlab payload: %w", err)
	}

	kind := payload.ObjectKind
	switch header(headers, gitlabEventHeader) {
	case "Issue Hook", "Confidential Issue Hook":
		kind = "issue"
	case "Note Hook", "Confidential Note Hook":
		kind = "note"
	}

	if payload.Project.PathWithNamespace == "" && (kind == "issue" || kind == "note") {
		return model.Event{}, fmt.Errorf("gitlab %s payload has no project", kind)
	}

	ev := model.Event{
		ID: header(headers, gitlabUUIDHeader),
		Repository: model.Repository{
			FullName:      payload.Project.PathWithNamespace,
			DefaultBranch: payload.Project.DefaultBranch,
		},
	}
	for _, l := range payload.Labels {
		ev.Issue.Labels = append(ev.Issue.Labels, l.Title)
	}

	switch kind {
	case "issue":
		var attrs gitlabIssueAttributes
		if err := json.Unmarshal(payload.ObjectAttributes, &attrs); err != nil {
			return model.Event{}, fmt.Errorf("decoding gitlab issue attributes: %w", err)
		}
		if attrs.Action != "open" {
			return model.Event{}, fmt.Errorf("gitlab issue action %q: %w", attrs.Action, ErrUnsupportedEvent)
		}
		ev.Type = model.EventIssueOpened
		ev.Action = "opened"
		ev.Issue = m.issue(payload, attrs, ev.Issue.Labels)
		return ev, nil

	case "note":
		var note gitlabNoteAttributes
		if err := json.Unmarshal(payload.ObjectAttributes, &note); err != nil {
			return model.Event{}, fmt.Errorf("decoding gitlab note attributes: %w", err)
		}
		if note.NoteableType != "Issue" || payload.Issue == nil {
			return model.Event{}, fmt.Errorf("gitlab note on %q: %w", note.NoteableType, ErrUnsupportedEvent)
		}
		if note.System {
			return model.Event{}, fmt.Errorf("gitlab system note: %w", ErrUnsupportedEvent)
		}
		ev.Type = model.EventCommentCreated
		ev.Action = "created"
		ev.Issue = m.issue(payload, *payload.Issue, ev.Issue.Labels)
		ev.Comment = &model.Comment{
			ID:        note.ID,
			Author:    payload.User.Username,
			Body:      note.Note,
			CreatedAt: parseGitLabTime(note.CreatedAt),
		}
		return ev, nil
	}

	return model.Event{}, fmt.Errorf("gitlab event %q: %w", kind, ErrUnsupportedEvent)
}

func (m *GitLabEventMapper) issue(payload gitlabWebhookPayload, attrs gitlabIssueAttributes, labels []string) model.Issue {
	return model.Issue{
		Ref: model.IssueRef{
			Provider: model.ProviderGitLab,
			Repo:     payload.Project.PathWithNamespace,
			Number:   attrs.IID,
		},
		Title:  attrs.Title,
		Body:   attrs.Description,
		Author: issueAuthor(payload.User, attrs.AuthorID),
		URL:    attrs.URL,
		Labels: labels,
	}
}

// Webhooks carry the acting user's name but only the author's numeric id.
// When they differ the id is kept in a form that never matches a username.
func issueAuthor(actor gitlabUser, authorID int64) string {
	if authorID == 0 || authorID == actor.ID {
		return actor.Username
	}
	return fmt.Sprintf("id:%d", authorID)
}

func parseGitLabTime(value string) time.Time {
	for _, layout := range gitlabTimeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	return time.Time{}
}
