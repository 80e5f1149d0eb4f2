// Package github implements tracker.Client on the GitHub REST API.
package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	gh "github.com/google/go-github/v74/github"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/steveyegge/flakewatch/internal/tracker"
	"github.com/steveyegge/flakewatch/internal/types"
)

const perPage = 100

// Options configures a Client.
type Options struct {
	// Token is a personal access or installation token. Empty means
	// unauthenticated requests.
	Token string

	// BaseURL overrides the API endpoint (GitHub Enterprise, tests).
	BaseURL string

	// RateLimit is the maximum number of requests per second.
	// Zero disables client-side limiting.
	RateLimit float64
	Burst     int

	// HTTPClient is used instead of the default transport when set.
	// The token is still added on top of it.
	HTTPClient *http.Client

	Logger *slog.Logger
}

// Client is bound to one repository.
type Client struct {
	gh      *gh.Client
	owner   string
	repo    string
	limiter *rate.Limiter
	logger  *slog.Logger
}

var _ tracker.Client = (*Client)(nil)

// New creates a client for owner/repo.
func New(ctx context.Context, owner, repo string, opts Options) (*Client, error) {
	if owner == "" || repo == "" {
		return nil, fmt.Errorf("owner and repo are required")
	}

	httpClient := opts.HTTPClient
	if opts.Token != "" {
		if httpClient != nil {
			ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)
		}
		httpClient = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.Token}))
	}

	client := gh.NewClient(httpClient)
	if opts.BaseURL != "" {
		base := opts.BaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("invalid base URL %q: %w", opts.BaseURL, err)
		}
		client.BaseURL = u
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{gh: client, owner: owner, repo: repo, limiter: limiter, logger: logger}, nil
}

// Repo returns a client for another repository that shares the HTTP
// client and rate limiter.
func (c *Client) Repo(owner, repo string) *Client {
	return &Client{gh: c.gh, owner: owner, repo: repo, limiter: c.limiter, logger: c.logger}
}

// FullName returns "owner/repo".
func (c *Client) FullName() string {
	return c.owner + "/" + c.repo
}

func (c *Client) wait(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	return nil
}

func (c *Client) ListIssues(ctx context.Context, label string) ([]*types.Issue, error) {
	opts := &gh.IssueListByRepoOptions{
		State:       "all",
		ListOptions: gh.ListOptions{PerPage: perPage},
	}
	if label != "" {
		opts.Labels = []string{label}
	}

	var issues []*types.Issue
	for {
		if err := c.wait(ctx); err != nil {
			return nil, err
		}
		page, resp, err := c.gh.Issues.ListByRepo(ctx, c.owner, c.repo, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to list issues in %s: %w", c.FullName(), wrapNotFound(err))
		}
		for _, issue := range page {
			if issue.IsPullRequest() {
				continue
			}
			issues = append(issues, convertIssue(issue))
		}
		if resp.NextPage == 0 {
			break
		}
		opts.ListOptions.Page = resp.NextPage
	}
	c.logger.Debug("listed issues", "repo", c.FullName(), "label", label, "count", len(issues))
	return issues, nil
}

func (c *Client) GetIssue(ctx context.Context, number int) (*types.Issue, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	issue, _, err := c.gh.Issues.Get(ctx, c.owner, c.repo, number)
	if err != nil {
		return nil, fmt.Errorf("failed to get issue #%d: %w", number, wrapNotFound(err))
	}
	return convertIssue(issue), nil
}

func (c *Client) CreateIssue(ctx context.Context, title, body string, labels []string) (int, error) {
	if err := c.wait(ctx); err != nil {
		return 0, err
	}
	req := &gh.IssueRequest{
		Title:  gh.Ptr(title),
		Body:   gh.Ptr(body),
		Labels: &labels,
	}
	issue, _, err := c.gh.Issues.Create(ctx, c.owner, c.repo, req)
	if err != nil {
		return 0, fmt.Errorf("failed to create issue %q: %w", title, wrapNotFound(err))
	}
	return issue.GetNumber(), nil
}

func (c *Client) UpdateIssue(ctx context.Context, number int, update types.IssueUpdate) error {
	req := &gh.IssueRequest{Labels: update.Labels}
	if update.State != nil {
		req.State = gh.Ptr(string(*update.State))
	}
	if err := c.wait(ctx); err != nil {
		return err
	}
	if _, _, err := c.gh.Issues.Edit(ctx, c.owner, c.repo, number, req); err != nil {
		return fmt.Errorf("failed to update issue #%d: %w", number, wrapNotFound(err))
	}
	return nil
}

func (c *Client) CreateComment(ctx context.Context, number int, body string) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	if _, _, err := c.gh.Issues.CreateComment(ctx, c.owner, c.repo, number, &gh.IssueComment{Body: gh.Ptr(body)}); err != nil {
		return fmt.Errorf("failed to comment on issue #%d: %w", number, wrapNotFound(err))
	}
	return nil
}

func (c *Client) ListComments(ctx context.Context, number int) ([]*types.Comment, error) {
	opts := &gh.IssueListCommentsOptions{ListOptions: gh.ListOptions{PerPage: perPage}}
	var comments []*types.Comment
	for {
		if err := c.wait(ctx); err != nil {
			return nil, err
		}
		page, resp, err := c.gh.Issues.ListComments(ctx, c.owner, c.repo, number, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to list comments on issue #%d: %w", number, wrapNotFound(err))
		}
		for _, comment := range page {
			comments = append(comments, &types.Comment{
				ID:        comment.GetID(),
				Body:      comment.GetBody(),
				CreatedAt: comment.GetCreatedAt().Time,
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return comments, nil
}

// GetFile returns the decoded contents of path in owner/repo on the
// default branch.
func (c *Client) GetFile(ctx context.Context, owner, repo, path string) ([]byte, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	file, _, _, err := c.gh.Repositories.GetContents(ctx, owner, repo, path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s from %s/%s: %w", path, owner, repo, wrapNotFound(err))
	}
	if file == nil {
		return nil, fmt.Errorf("%s in %s/%s is a directory: %w", path, owner, repo, tracker.ErrNotFound)
	}
	content, err := file.GetContent()
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return []byte(content), nil
}

// ListLabels returns every label defined in the repository.
func (c *Client) ListLabels(ctx context.Context) ([]types.Label, error) {
	opts := &gh.ListOptions{PerPage: perPage}
	var labels []types.Label
	for {
		if err := c.wait(ctx); err != nil {
			return nil, err
		}
		page, resp, err := c.gh.Issues.ListLabels(ctx, c.owner, c.repo, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to list labels in %s: %w", c.FullName(), wrapNotFound(err))
		}
		for _, l := range page {
			labels = append(labels, types.Label{
				Name:        l.GetName(),
				Color:       l.GetColor(),
				Description: l.GetDescription(),
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return labels, nil
}

// CreateLabel defines a new label.
func (c *Client) CreateLabel(ctx context.Context, label types.Label) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	_, _, err := c.gh.Issues.CreateLabel(ctx, c.owner, c.repo, &gh.Label{
		Name:        gh.Ptr(label.Name),
		Color:       gh.Ptr(label.Color),
		Description: gh.Ptr(label.Description),
	})
	if err != nil {
		return fmt.Errorf("failed to create label %q: %w", label.Name, err)
	}
	return nil
}

// UpdateLabel sets the color and description of an existing label.
func (c *Client) UpdateLabel(ctx context.Context, label types.Label) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	_, _, err := c.gh.Issues.EditLabel(ctx, c.owner, c.repo, label.Name, &gh.Label{
		Name:        gh.Ptr(label.Name),
		Color:       gh.Ptr(label.Color),
		Description: gh.Ptr(label.Description),
	})
	if err != nil {
		return fmt.Errorf("failed to update label %q: %w", label.Name, wrapNotFound(err))
	}
	return nil
}

func convertIssue(issue *gh.Issue) *types.Issue {
	out := &types.Issue{
		Number: issue.GetNumber(),
		Title:  issue.GetTitle(),
		State:  types.IssueState(issue.GetState()),
		Body:   issue.GetBody(),
		Locked: issue.GetLocked(),
		URL:    issue.GetURL(),
	}
	for _, l := range issue.Labels {
		out.Labels = append(out.Labels, l.GetName())
	}
	if issue.ClosedAt != nil {
		t := issue.GetClosedAt().Time
		out.ClosedAt = &t
	}
	return out
}

func wrapNotFound(err error) error {
	var ghErr *gh.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil && ghErr.Response.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", tracker.ErrNotFound, ghErr.Message)
	}
	return err
}
