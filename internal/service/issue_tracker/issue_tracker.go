package issue_tracker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	gitlab "gitlab.com/gitlab-org/api/client-go"

	"basegraph.app/concierge/internal/model"
)

// IssueTracker is the slice of a tracker API the triage flow needs. Lookups of
// things that do not exist return empty results rather than errors.
type IssueTracker interface {
	// ListComments returns every comment on the issue, oldest first.
	ListComments(ctx context.Context, ref model.IssueRef) ([]model.Comment, error)
	PostComment(ctx context.Context, ref model.IssueRef, body string) (*model.Comment, error)
	AddLabels(ctx context.Context, ref model.IssueRef, labels []string) error
	AddAssignees(ctx context.Context, ref model.IssueRef, assignees []string) error
	// GetFile returns the file content at branch, or "" when it does not exist.
	GetFile(ctx context.Context, ref model.IssueRef, path, branch string) (string, error)
	SearchIssues(ctx context.Context, ref model.IssueRef, query string, limit int) ([]model.IssueSummary, error)
}

// Router dispatches each call to the tracker registered for the ref's provider.
type Router struct {
	trackers map[model.Provider]IssueTracker
}

func NewRouter(trackers map[model.Provider]IssueTracker) *Router {
	return &Router{trackers: trackers}
}

func (r *Router) tracker(ref model.IssueRef) (IssueTracker, error) {
	t, ok := r.trackers[ref.Provider]
	if !ok || t == nil {
		return nil, fmt.Errorf("no issue tracker configured for provider %q", ref.Provider)
	}
	return t, nil
}

func (r *Router) ListComments(ctx context.Context, ref model.IssueRef) ([]model.Comment, error) {
	t, err := r.tracker(ref)
	if err != nil {
		return nil, err
	}
	return t.ListComments(ctx, ref)
}

func (r *Router) PostComment(ctx context.Context, ref model.IssueRef, body string) (*model.Comment, error) {
	t, err := r.tracker(ref)
	if err != nil {
		return nil, err
	}
	return t.PostComment(ctx, ref, body)
}

func (r *Router) AddLabels(ctx context.Context, ref model.IssueRef, labels []string) error {
	t, err := r.tracker(ref)
	if err != nil {
		return err
	}
	return t.AddLabels(ctx, ref, labels)
}

func (r *Router) AddAssignees(ctx context.Context, ref model.IssueRef, assignees []string) error {
	t, err := r.tracker(ref)
	if err != nil {
		return err
	}
	return t.AddAssignees(ctx, ref, assignees)
}

func (r *Router) GetFile(ctx context.Context, ref model.IssueRef, path, branch string) (string, error) {
	t, err := r.tracker(ref)
	if err != nil {
		return "", err
	}
	return t.GetFile(ctx, ref, path, branch)
}

func (r *Router) SearchIssues(ctx context.Context, ref model.IssueRef, query string, limit int) ([]model.IssueSummary, error) {
	t, err := r.tracker(ref)
	if err != nil {
		return nil, err
	}
	return t.SearchIssues(ctx, ref, query, limit)
}

// IsRetryable reports whether a tracker error is transient: throttling, a
// provider 5xx or a network failure.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}

	var glErr *gitlab.ErrorResponse
	if errors.As(err, &glErr) && glErr.Response != nil {
		status := glErr.Response.StatusCode
		return status == http.StatusTooManyRequests || status >= 500
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}
