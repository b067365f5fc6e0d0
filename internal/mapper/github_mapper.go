package mapper

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"basegraph.app/concierge/internal/model"
)

const (
	githubEventHeader    = "X-GitHub-Event"
	githubDeliveryHeader = "X-GitHub-Delivery"
)

type githubUser struct {
	Login string `json:"login"`
}

type githubLabel struct {
	Name string `json:"name"`
}

type githubIssue struct {
	Number      int64           `json:"number"`
	Title       string          `json:"title"`
	Body        string          `json:"body"`
	HTMLURL     string          `json:"html_url"`
	User        githubUser      `json:"user"`
	Labels      []githubLabel   `json:"labels"`
	PullRequest json.RawMessage `json:"pull_request,omitempty"`
}

type githubComment struct {
	ID        int64      `json:"id"`
	Body      string     `json:"body"`
	User      githubUser `json:"user"`
	CreatedAt time.Time  `json:"created_at"`
}

type githubRepository struct {
	FullName      string `json:"full_name"`
	DefaultBranch string `json:"default_branch"`
}

type githubWebhookPayload struct {
	Action     string           `json:"action"`
	Issue      *githubIssue     `json:"issue"`
	Comment    *githubComment   `json:"comment"`
	Repository githubRepository `json:"repository"`
}

type GitHubEventMapper struct{}

func NewGitHubEventMapper() *GitHubEventMapper {
	return &GitHubEventMapper{}
}

// Map handles issues/opened and issue_comment/created. Comments on pull
// requests arrive as issue_comment too and are skipped.
func (m *GitHubEventMapper) Map(ctx context.Context, body []byte, headers map[string]string) (model.Event, error) {
	return m.MapNamed(ctx, header(headers, githubEventHeader), header(headers, githubDeliveryHeader), body)
}

// MapNamed maps a payload whose event name came from somewhere other than a
// webhook header, e.g. GITHUB_EVENT_NAME inside an Actions run.
func (m *GitHubEventMapper) MapNamed(_ context.Context, eventName, deliveryID string, body []byte) (model.Event, error) {
	if eventName != "issues" && eventName != "issue_comment" {
		return model.Event{}, fmt.Errorf("github event %q: %w", eventName, ErrUnsupportedEvent)
	}

	var payload githubWebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return model.Event{}, fmt.Errorf("decoding github payload: %w", err)
	}
	if payload.Issue == nil {
		return model.Event{}, fmt.Errorf("github %s payload has no issue", eventName)
	}
	if payload.Repository.FullName == "" {
		return model.Event{}, fmt.Errorf("github %s payload has no repository", eventName)
	}
	if len(payload.Issue.PullRequest) > 0 && string(payload.Issue.PullRequest) != "null" {
		return model.Event{}, fmt.Errorf("pull request comment: %w", ErrUnsupportedEvent)
	}

	ev := model.Event{
		ID:     deliveryID,
		Action: payload.Action,
		Issue: model.Issue{
			Ref: model.IssueRef{
				Provider: model.ProviderGitHub,
				Repo:     payload.Repository.FullName,
				Number:   payload.Issue.Number,
			},
			Title:  payload.Issue.Title,
			Body:   payload.Issue.Body,
			Author: payload.Issue.User.Login,
			URL:    payload.Issue.HTMLURL,
		},
		Repository: model.Repository{
			FullName:      payload.Repository.FullName,
			DefaultBranch: payload.Repository.DefaultBranch,
		},
	}
	for _, l := range payload.Issue.Labels {
		ev.Issue.Labels = append(ev.Issue.Labels, l.Name)
	}

	switch {
	case eventName == "issues" && payload.Action == "opened":
		ev.Type = model.EventIssueOpened
	case eventName == "issue_comment" && payload.Action == "created":
		if payload.Comment == nil {
			return model.Event{}, fmt.Errorf("github issue_comment payload has no comment")
		}
		ev.Type = model.EventCommentCreated
		ev.Comment = &model.Comment{
			ID:        payload.Comment.ID,
			Author:    payload.Comment.User.Login,
			Body:      payload.Comment.Body,
			CreatedAt: payload.Comment.CreatedAt,
		}
	default:
		return model.Event{}, fmt.Errorf("github %s/%s: %w", eventName, payload.Action, ErrUnsupportedEvent)
	}

	return ev, nil
}
