package dto

import (
	"time"

	"basegraph.app/concierge/internal/model"
)

type IngestComment struct {
	ID        int64     `json:"id" binding:"required"`
	Author    string    `json:"author" binding:"required"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// IngestEventRequest is a pre-normalized event for sources that are not
// GitHub or GitLab webhooks, e.g. a forwarder or a replay script.
type IngestEventRequest struct {
	EventID       string         `json:"event_id,omitempty"`
	Type          string         `json:"type" binding:"required,oneof=issue_opened comment_created"`
	Provider      string         `json:"provider" binding:"required,oneof=github gitlab"`
	Repo          string         `json:"repo" binding:"required"`
	IssueNumber   int64          `json:"issue_number" binding:"required,gt=0"`
	Title         string         `json:"title"`
	Body          string         `json:"body"`
	Author        string         `json:"author" binding:"required"`
	Labels        []string       `json:"labels,omitempty"`
	URL           string         `json:"url,omitempty"`
	DefaultBranch string         `json:"default_branch,omitempty"`
	Comment       *IngestComment `json:"comment,omitempty"`
}

type IngestEventResponse struct {
	DedupeKey  string `json:"dedupe_key"`
	Enqueued   bool   `json:"enqueued"`
	Duplicated bool   `json:"duplicated"`
}

func (r IngestEventRequest) ToEvent() model.Event {
	ev := model.Event{
		ID:   r.EventID,
		Type: model.EventType(r.Type),
		Issue: model.Issue{
			Ref: model.IssueRef{
				Provider: model.Provider(r.Provider),
				Repo:     r.Repo,
				Number:   r.IssueNumber,
			},
			Title:  r.Title,
			Body:   r.Body,
			Author: r.Author,
			Labels: r.Labels,
			URL:    r.URL,
		},
		Repository: model.Repository{
			FullName:      r.Repo,
			DefaultBranch: r.DefaultBranch,
		},
	}
	switch ev.Type {
	case model.EventIssueOpened:
		ev.Action = "opened"
	case model.EventCommentCreated:
		ev.Action = "created"
	}
	if r.Comment != nil {
		ev.Comment = &model.Comment{
			ID:        r.Comment.ID,
			Author:    r.Comment.Author,
			Body:      r.Comment.Body,
			CreatedAt: r.Comment.CreatedAt,
		}
	}
	return ev
}
