package issue_tracker

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	gitlab "gitlab.com/gitlab-org/api/client-go"

	"basegraph.app/concierge/internal/model"
)

// GitLabTracker maps issue comments to notes. IssueRef.Repo is the project
// path (group/subgroup/project) and IssueRef.Number the issue IID.
type GitLabTracker struct {
	client *gitlab.Client
}

func NewGitLabTracker(token, baseURL string) (*GitLabTracker, error) {
	client, err := newGitLabClient(token, baseURL)
	if err != nil {
		return nil, fmt.Errorf("creating gitlab client: %w", err)
	}
	return &GitLabTracker{client: client}, nil
}

func newGitLabClient(token, baseURL string) (*gitlab.Client, error) {
	if baseURL == "" {
		return gitlab.NewClient(token)
	}
	apiURL := strings.TrimSuffix(baseURL, "/") + "/api/v4"
	return gitlab.NewClient(token, gitlab.WithBaseURL(apiURL))
}

func (t *GitLabTracker) ListComments(ctx context.Context, ref model.IssueRef) ([]model.Comment, error) {
	opts := &gitlab.ListIssueNotesOptions{
		ListOptions: gitlab.ListOptions{
			Page:    1,
			PerPage: 100,
		},
		OrderBy: gitlab.Ptr("created_at"),
		Sort:    gitlab.Ptr("asc"),
	}

	var comments []model.Comment
	for {
		notes, resp, err := t.client.Notes.ListIssueNotes(ref.Repo, ref.Number, opts, gitlab.WithContext(ctx))
		if err != nil {
			if gitlabNotFound(resp) {
				return nil, nil
			}
			return nil, fmt.Errorf("listing gitlab notes: %w", err)
		}

		for _, n := range notes {
			if n == nil || n.System {
				continue
			}
			comments = append(comments, mapNote(n))
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return comments, nil
}

func (t *GitLabTracker) PostComment(ctx context.Context, ref model.IssueRef, body string) (*model.Comment, error) {
	note, _, err := t.client.Notes.CreateIssueNote(ref.Repo, ref.Number, &gitlab.CreateIssueNoteOptions{
		Body: gitlab.Ptr(body),
	}, gitlab.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("creating gitlab note: %w", err)
	}
	c := mapNote(note)
	return &c, nil
}

func (t *GitLabTracker) AddLabels(ctx context.Context, ref model.IssueRef, labels []string) error {
	if len(labels) == 0 {
		return nil
	}
	add := gitlab.LabelOptions(labels)
	_, _, err := t.client.Issues.UpdateIssue(ref.Repo, ref.Number, &gitlab.UpdateIssueOptions{
		AddLabels: &add,
	}, gitlab.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("adding gitlab labels: %w", err)
	}
	return nil
}

// AddAssignees resolves usernames to user IDs and appends them to the issue's
// current assignees. Unknown usernames are skipped.
func (t *GitLabTracker) AddAssignees(ctx context.Context, ref model.IssueRef, assignees []string) error {
	if len(assignees) == 0 {
		return nil
	}

	issue, _, err := t.client.Issues.GetIssue(ref.Repo, ref.Number, nil, gitlab.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("fetching issue from gitlab: %w", err)
	}

	ids := make([]int64, 0, len(issue.Assignees)+len(assignees))
	seen := make(map[int64]bool)
	for _, a := range issue.Assignees {
		if a != nil && !seen[int64(a.ID)] {
			ids = append(ids, int64(a.ID))
			seen[int64(a.ID)] = true
		}
	}

	added := 0
	for _, username := range assignees {
		users, _, err := t.client.Users.ListUsers(&gitlab.ListUsersOptions{
			Username: gitlab.Ptr(username),
		}, gitlab.WithContext(ctx))
		if err != nil {
			return fmt.Errorf("looking up gitlab user %s: %w", username, err)
		}
		for _, u := range users {
			if u != nil && !seen[int64(u.ID)] {
				ids = append(ids, int64(u.ID))
				seen[int64(u.ID)] = true
				added++
			}
		}
	}
	if added == 0 {
		return nil
	}

	_, _, err = t.client.Issues.UpdateIssue(ref.Repo, ref.Number, &gitlab.UpdateIssueOptions{
		AssigneeIDs: &ids,
	}, gitlab.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("assigning gitlab issue: %w", err)
	}
	return nil
}

func (t *GitLabTracker) GetFile(ctx context.Context, ref model.IssueRef, path, branch string) (string, error) {
	opts := &gitlab.GetRawFileOptions{}
	if branch != "" {
		opts.Ref = gitlab.Ptr(branch)
	}
	data, resp, err := t.client.RepositoryFiles.GetRawFile(ref.Repo, strings.TrimPrefix(path, "/"), opts, gitlab.WithContext(ctx))
	if err != nil {
		if gitlabNotFound(resp) {
			return "", nil
		}
		return "", fmt.Errorf("fetching %s from gitlab: %w", path, err)
	}
	return string(data), nil
}

func (t *GitLabTracker) SearchIssues(ctx context.Context, ref model.IssueRef, query string, limit int) ([]model.IssueSummary, error) {
	if strings.TrimSpace(query) == "" || limit <= 0 {
		return nil, nil
	}

	issues, resp, err := t.client.Issues.ListProjectIssues(ref.Repo, &gitlab.ListProjectIssuesOptions{
		ListOptions: gitlab.ListOptions{
			Page:    1,
			PerPage: 20,
		},
		Search: gitlab.Ptr(query),
	}, gitlab.WithContext(ctx))
	if err != nil {
		if gitlabNotFound(resp) {
			return nil, nil
		}
		return nil, fmt.Errorf("searching gitlab issues: %w", err)
	}

	summaries := make([]model.IssueSummary, 0, limit)
	for _, i := range issues {
		if i == nil {
			continue
		}
		summaries = append(summaries, model.IssueSummary{
			Number: int64(i.IID),
			Title:  i.Title,
			URL:    i.WebURL,
			State:  i.State,
		})
		if len(summaries) == limit {
			break
		}
	}
	return summaries, nil
}

func mapNote(n *gitlab.Note) model.Comment {
	c := model.Comment{
		ID:     int64(n.ID),
		Author: n.Author.Username,
		Body:   n.Body,
	}
	if c.Author == "" {
		c.Author = fmt.Sprintf("id:%d", n.Author.ID)
	}
	if n.CreatedAt != nil {
		c.CreatedAt = *n.CreatedAt
	} else if n.UpdatedAt != nil {
		c.CreatedAt = *n.UpdatedAt
	}
	return c
}

func gitlabNotFound(resp *gitlab.Response) bool {
	return resp != nil && resp.StatusCode == http.StatusNotFound
}
