package issue_tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/go-github/v68/github"
	"golang.org/x/time/rate"

	"basegraph.app/concierge/internal/model"
)

const (
	DefaultGitHubAPIURL = "https://api.github.com"

	githubPageSize = 100
	githubMaxPages = 20
)

// APIError is a non-2xx reply from the GitHub REST API.
type APIError struct {
	StatusCode int
	Method     string
	Path       string
	Body       string
	// RateLimited is set for primary and secondary rate limits, which GitHub
	// may report as 403.
	RateLimited bool
	Err         error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("github %s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Retryable reports whether GitHub asked us to slow down or failed on its side.
func (e *APIError) Retryable() bool {
	return e.RateLimited || e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

func isNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

type GitHubOptions struct {
	Token      string
	APIURL     string
	HTTPClient *http.Client
	// MaxRetries bounds retries of rate-limited, 5xx and transport failures.
	MaxRetries     uint64
	InitialBackoff time.Duration
	// RequestsPerSecond throttles outgoing calls; 0 means 10/s.
	RequestsPerSecond float64
}

type GitHubTracker struct {
	client     *github.Client
	limiter    *rate.Limiter
	maxRetries uint64
	initial    time.Duration
}

func NewGitHubTracker(opts GitHubOptions) (*GitHubTracker, error) {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	client := github.NewClient(httpClient)
	if opts.Token != "" {
		client = client.WithAuthToken(opts.Token)
	}
	if base := strings.TrimSuffix(opts.APIURL, "/"); base != "" && base != DefaultGitHubAPIURL {
		u, err := url.Parse(base + "/")
		if err != nil {
			return nil, fmt.Errorf("parse github api url: %w", err)
		}
		client.BaseURL = u
	}

	rps := opts.RequestsPerSecond
	if rps <= 0 {
		rps = 10
	}
	maxRetries := opts.MaxRetries
	if maxRetries == 0 {
		maxRetries = 3
	}
	initial := opts.InitialBackoff
	if initial <= 0 {
		initial = 500 * time.Millisecond
	}

	return &GitHubTracker{
		client:     client,
		limiter:    rate.NewLimiter(rate.Limit(rps), int(rps)),
		maxRetries: maxRetries,
		initial:    initial,
	}, nil
}

func splitRepo(ref model.IssueRef) (string, string, error) {
	owner, repo, ok := strings.Cut(ref.Repo, "/")
	if !ok || owner == "" || repo == "" {
		return "", "", fmt.Errorf("invalid github repository %q", ref.Repo)
	}
	return owner, repo, nil
}

func toComment(c *github.IssueComment) model.Comment {
	return model.Comment{
		ID:        c.GetID(),
		Author:    c.GetUser().GetLogin(),
		Body:      c.GetBody(),
		CreatedAt: c.GetCreatedAt().Time,
	}
}

// ListComments returns the issue's comments oldest first. When the thread
// spans more than githubMaxPages pages only the newest pages are read, since
// the latest state marker lives at the end.
func (t *GitHubTracker) ListComments(ctx context.Context, ref model.IssueRef) ([]model.Comment, error) {
	owner, repo, err := splitRepo(ref)
	if err != nil {
		return nil, err
	}
	opts := &github.IssueListCommentsOptions{ListOptions: github.ListOptions{PerPage: githubPageSize}}

	comments, resp, err := t.commentPage(ctx, owner, repo, int(ref.Number), opts)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list comments: %w", err)
	}

	next, pages := resp.NextPage, 1
	if resp.LastPage > githubMaxPages {
		start := resp.LastPage - githubMaxPages + 1
		slog.WarnContext(ctx, "comment thread exceeds page cap, skipping oldest pages",
			"repo", ref.Repo,
			"issue_number", ref.Number,
			"pages", resp.LastPage,
			"first_page_read", start)
		comments, next, pages = nil, start, 0
	}

	for ; next != 0 && pages < githubMaxPages; pages++ {
		opts.Page = next
		batch, resp, err := t.commentPage(ctx, owner, repo, int(ref.Number), opts)
		if err != nil {
			return nil, fmt.Errorf("list comments: %w", err)
		}
		comments = append(comments, batch...)
		next = resp.NextPage
	}
	if next != 0 {
		slog.WarnContext(ctx, "comment listing stopped at page cap",
			"repo", ref.Repo,
			"issue_number", ref.Number,
			"max_pages", githubMaxPages)
	}
	return comments, nil
}

func (t *GitHubTracker) commentPage(ctx context.Context, owner, repo string, number int, opts *github.IssueListCommentsOptions) ([]model.Comment, *github.Response, error) {
	var (
		batch []*github.IssueComment
		resp  *github.Response
	)
	err := t.call(ctx, http.MethodGet, func() (*github.Response, error) {
		var err error
		batch, resp, err = t.client.Issues.ListComments(ctx, owner, repo, number, opts)
		return resp, err
	})
	if err != nil {
		return nil, nil, err
	}

	comments := make([]model.Comment, 0, len(batch))
	for _, c := range batch {
		comments = append(comments, toComment(c))
	}
	return comments, resp, nil
}

func (t *GitHubTracker) PostComment(ctx context.Context, ref model.IssueRef, body string) (*model.Comment, error) {
	owner, repo, err := splitRepo(ref)
	if err != nil {
		return nil, err
	}

	var created *github.IssueComment
	err = t.call(ctx, http.MethodPost, func() (*github.Response, error) {
		var (
			resp *github.Response
			err  error
		)
		created, resp, err = t.client.Issues.CreateComment(ctx, owner, repo, int(ref.Number), &github.IssueComment{Body: github.Ptr(body)})
		return resp, err
	})
	if err != nil {
		return nil, fmt.Errorf("post comment: %w", err)
	}

	c := toComment(created)
	return &c, nil
}

func (t *GitHubTracker) AddLabels(ctx context.Context, ref model.IssueRef, labels []string) error {
	if len(labels) == 0 {
		return nil
	}
	owner, repo, err := splitRepo(ref)
	if err != nil {
		return err
	}

	err = t.call(ctx, http.MethodPost, func() (*github.Response, error) {
		_, resp, err := t.client.Issues.AddLabelsToIssue(ctx, owner, repo, int(ref.Number), labels)
		return resp, err
	})
	if err != nil {
		return fmt.Errorf("add labels: %w", err)
	}
	return nil
}

func (t *GitHubTracker) AddAssignees(ctx context.Context, ref model.IssueRef, assignees []string) error {
	if len(assignees) == 0 {
		return nil
	}
	owner, repo, err := splitRepo(ref)
	if err != nil {
		return err
	}

	err = t.call(ctx, http.MethodPost, func() (*github.Response, error) {
		_, resp, err := t.client.Issues.AddAssignees(ctx, owner, repo, int(ref.Number), assignees)
		return resp, err
	})
	if err != nil {
		return fmt.Errorf("add assignees: %w", err)
	}
	return nil
}

func (t *GitHubTracker) GetFile(ctx context.Context, ref model.IssueRef, path, branch string) (string, error) {
	owner, repo, err := splitRepo(ref)
	if err != nil {
		return "", err
	}

	var file *github.RepositoryContent
	err = t.call(ctx, http.MethodGet, func() (*github.Response, error) {
		var (
			resp *github.Response
			err  error
		)
		file, _, resp, err = t.client.Repositories.GetContents(ctx, owner, repo, strings.TrimPrefix(path, "/"),
			&github.RepositoryContentGetOptions{Ref: branch})
		return resp, err
	})
	if err != nil {
		if isNotFound(err) {
			return "", nil
		}
		return "", fmt.Errorf("get file %s: %w", path, err)
	}
	// a directory listing comes back without a file
	if file == nil {
		return "", nil
	}

	content, err := file.GetContent()
	if err != nil {
		return "", fmt.Errorf("decode file %s: %w", path, err)
	}
	return content, nil
}

func (t *GitHubTracker) SearchIssues(ctx context.Context, ref model.IssueRef, query string, limit int) ([]model.IssueSummary, error) {
	if strings.TrimSpace(query) == "" || limit <= 0 {
		return nil, nil
	}

	q := fmt.Sprintf("%s repo:%s is:issue", query, ref.Repo)
	var result *github.IssuesSearchResult
	err := t.call(ctx, http.MethodGet, func() (*github.Response, error) {
		var (
			resp *github.Response
			err  error
		)
		result, resp, err = t.client.Search.Issues(ctx, q, &github.SearchOptions{ListOptions: github.ListOptions{PerPage: limit}})
		return resp, err
	})
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("search issues: %w", err)
	}

	summaries := make([]model.IssueSummary, 0, len(result.Issues))
	for _, item := range result.Issues {
		summaries = append(summaries, model.IssueSummary{
			Number: int64(item.GetNumber()),
			Title:  item.GetTitle(),
			URL:    item.GetHTMLURL(),
			State:  item.GetState(),
		})
		if len(summaries) == limit {
			break
		}
	}
	return summaries, nil
}

// call runs one API call with exponential backoff. Reads retry rate limits,
// 5xx replies and transport errors. A write may have been applied when a 5xx
// or a broken connection comes back, so writes only retry rate limits and
// connections that were never established.
func (t *GitHubTracker) call(ctx context.Context, method string, fn func() (*github.Response, error)) error {
	attempt := 0
	op := func() error {
		attempt++
		if err := t.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}

		resp, err := fn()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}

		apiErr := toAPIError(method, resp, err)
		if apiErr == nil {
			if !retrySafe(method) && !neverSent(err) {
				return backoff.Permanent(err)
			}
			slog.WarnContext(ctx, "github request failed, will retry",
				"method", method,
				"attempt", attempt,
				"error", err)
			return err
		}

		throttled := apiErr.RateLimited || apiErr.StatusCode == http.StatusTooManyRequests
		if throttled || (apiErr.StatusCode >= 500 && retrySafe(method)) {
			slog.WarnContext(ctx, "github request throttled or failed, will retry",
				"method", method,
				"path", apiErr.Path,
				"status_code", apiErr.StatusCode,
				"attempt", attempt)
			return apiErr
		}
		return backoff.Permanent(apiErr)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = t.initial
	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, t.maxRetries), ctx))
}

// toAPIError turns go-github's error replies into an APIError. Transport
// failures, which carry no reply, return nil.
func toAPIError(method string, resp *github.Response, err error) *APIError {
	apiErr := &APIError{Method: method, Err: err}

	var (
		rateErr  *github.RateLimitError
		abuseErr *github.AbuseRateLimitError
		replyErr *github.ErrorResponse
		httpResp *http.Response
	)
	switch {
	case errors.As(err, &rateErr):
		apiErr.RateLimited = true
		apiErr.Body = rateErr.Message
		httpResp = rateErr.Response
	case errors.As(err, &abuseErr):
		apiErr.RateLimited = true
		apiErr.Body = abuseErr.Message
		httpResp = abuseErr.Response
	case errors.As(err, &replyErr):
		apiErr.Body = replyErr.Message
		httpResp = replyErr.Response
	default:
		return nil
	}

	if httpResp == nil && resp != nil {
		httpResp = resp.Response
	}
	if httpResp != nil {
		apiErr.StatusCode = httpResp.StatusCode
		if httpResp.Request != nil && httpResp.Request.URL != nil {
			apiErr.Path = httpResp.Request.URL.Path
		}
	}
	return apiErr
}

func retrySafe(method string) bool {
	return method == http.MethodGet || method == http.MethodHead
}

// neverSent reports a failure to connect, before any byte of the request left.
func neverSent(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}
