package model

import (
	"fmt"
	"time"
)

// IssueRef addresses one issue on one tracker. Repo is "owner/name" on GitHub
// and the project path on GitLab; Number is the issue number or IID.
type IssueRef struct {
	Provider Provider `json:"provider"`
	Repo     string   `json:"repo"`
	Number   int64    `json:"number"`
}

func (r IssueRef) String() string {
	return fmt.Sprintf("%s:%s#%d", r.Provider, r.Repo, r.Number)
}

type Issue struct {
	Ref    IssueRef `json:"ref"`
	Title  string   `json:"title"`
	Body   string   `json:"body"`
	Author string   `json:"author"`
	Labels []string `json:"labels,omitempty"`
	URL    string   `json:"url,omitempty"`
}

type Repository struct {
	FullName      string `json:"full_name"`
	DefaultBranch string `json:"default_branch"`
}

type Comment struct {
	ID        int64     `json:"id"`
	Author    string    `json:"author"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// IssueSummary is a search hit used for duplicate detection.
type IssueSummary struct {
	Number int64  `json:"number"`
	Title  string `json:"title"`
	URL    string `json:"url,omitempty"`
	State  string `json:"state,omitempty"`
}
