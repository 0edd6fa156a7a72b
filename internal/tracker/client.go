// Package tracker talks to the issue tracker: reading issues and comments,
// posting results and creating sub-issues.
package tracker

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/google/go-github/v57/github"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/fyrsmithlabs/specforge/internal/config"
	"github.com/fyrsmithlabs/specforge/internal/logging"
)

// validNamePattern bounds owner and repository names.
var validNamePattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// Issue is an issue or epic.
type Issue struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	Body   string `json:"body"`
	URL    string `json:"url"`
}

// Comment is an issue comment.
type Comment struct {
	ID        int64     `json:"id"`
	Body      string    `json:"body"`
	Author    string    `json:"author"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
}

// Tracker is the set of issue operations the bot uses.
type Tracker interface {
	GetIssue(ctx context.Context, number int) (*Issue, error)
	ListComments(ctx context.Context, number int) ([]Comment, error)
	CreateComment(ctx context.Context, number int, body string) (*Comment, error)
	EditIssueBody(ctx context.Context, number int, body string) error
	CreateIssue(ctx context.Context, title, body string, labels []string) (*Issue, error)
}

// ParseRepository splits and validates an "owner/name" identifier.
func ParseRepository(repository string) (owner, name string, err error) {
	owner, name, ok := strings.Cut(repository, "/")
	if !ok || !validName(owner) || !validName(name) {
		return "", "", fmt.Errorf("invalid repository %q: expected owner/name", repository)
	}
	return owner, name, nil
}

func validName(s string) bool {
	return s != "." && s != ".." && validNamePattern.MatchString(s)
}

// GitHub implements Tracker with the GitHub REST API.
type GitHub struct {
	client *github.Client
	owner  string
	repo   string
	retry  RetryConfig
	logger *logging.Logger
}

// Option customizes a GitHub tracker.
type Option func(*GitHub) error

// WithBaseURL points the client at a GitHub Enterprise or test server.
func WithBaseURL(base string) Option {
	return func(g *GitHub) error {
		if base == "" {
			return nil
		}
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return fmt.Errorf("invalid base URL: %w", err)
		}
		g.client.BaseURL = u
		return nil
	}
}

// WithRetry overrides the retry settings.
func WithRetry(cfg RetryConfig) Option {
	return func(g *GitHub) error {
		g.retry = cfg
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(g *GitHub) error {
		if l != nil {
			g.logger = l.Named("tracker")
		}
		return nil
	}
}

// NewGitHub creates a tracker for repository ("owner/name") authenticated
// with token.
func NewGitHub(ctx context.Context, token config.Secret, repository string, opts ...Option) (*GitHub, error) {
	if !token.IsSet() {
		return nil, fmt.Errorf("GitHub token not set")
	}
	owner, repo, err := ParseRepository(repository)
	if err != nil {
		return nil, err
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token.Value()})
	g := &GitHub{
		client: github.NewClient(oauth2.NewClient(ctx, ts)),
		owner:  owner,
		repo:   repo,
		retry:  DefaultRetryConfig(),
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		if err := opt(g); err != nil {
			return nil, err
		}
	}
	return g, nil
}

func (g *GitHub) GetIssue(ctx context.Context, number int) (*Issue, error) {
	var issue *github.Issue
	_, err := retry(ctx, g.retry, g.logger, "get issue", func() (*github.Response, error) {
		var resp *github.Response
		var err error
		issue, resp, err = g.client.Issues.Get(ctx, g.owner, g.repo, number)
		return resp, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get issue #%d: %w", number, err)
	}
	return toIssue(issue), nil
}

// ListComments returns every comment on the issue, oldest first.
func (g *GitHub) ListComments(ctx context.Context, number int) ([]Comment, error) {
	opts := &github.IssueListCommentsOptions{
		ListOptions: github.ListOptions{PerPage: 100},
	}

	var all []Comment
	for {
		var page []*github.IssueComment
		resp, err := retry(ctx, g.retry, g.logger, "list comments", func() (*github.Response, error) {
			var resp *github.Response
			var err error
			page, resp, err = g.client.Issues.ListComments(ctx, g.owner, g.repo, number, opts)
			return resp, err
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list comments on #%d: %w", number, err)
		}
		for _, c := range page {
			all = append(all, toComment(c))
		}
		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return all, nil
}

func (g *GitHub) CreateComment(ctx context.Context, number int, body string) (*Comment, error) {
	var created *github.IssueComment
	_, err := retry(ctx, g.retry, g.logger, "create comment", func() (*github.Response, error) {
		var resp *github.Response
		var err error
		created, resp, err = g.client.Issues.CreateComment(ctx, g.owner, g.repo, number, &github.IssueComment{
			Body: github.String(body),
		})
		return resp, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to comment on #%d: %w", number, err)
	}
	c := toComment(created)
	g.logger.Info(ctx, "posted comment", zap.Int("issue", number), zap.String("url", c.URL))
	return &c, nil
}

func (g *GitHub) EditIssueBody(ctx context.Context, number int, body string) error {
	_, err := retry(ctx, g.retry, g.logger, "edit issue", func() (*github.Response, error) {
		_, resp, err := g.client.Issues.Edit(ctx, g.owner, g.repo, number, &github.IssueRequest{
			Body: github.String(body),
		})
		return resp, err
	})
	if err != nil {
		return fmt.Errorf("failed to edit issue #%d: %w", number, err)
	}
	return nil
}

func (g *GitHub) CreateIssue(ctx context.Context, title, body string, labels []string) (*Issue, error) {
	req := &github.IssueRequest{
		Title: github.String(title),
		Body:  github.String(body),
	}
	if len(labels) > 0 {
		req.Labels = &labels
	}

	var issue *github.Issue
	_, err := retry(ctx, g.retry, g.logger, "create issue", func() (*github.Response, error) {
		var resp *github.Response
		var err error
		issue, resp, err = g.client.Issues.Create(ctx, g.owner, g.repo, req)
		return resp, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create issue %q: %w", title, err)
	}
	return toIssue(issue), nil
}

func toIssue(i *github.Issue) *Issue {
	return &Issue{
		Number: i.GetNumber(),
		Title:  i.GetTitle(),
		Body:   i.GetBody(),
		URL:    i.GetHTMLURL(),
	}
}

func toComment(c *github.IssueComment) Comment {
	return Comment{
		ID:        c.GetID(),
		Body:      c.GetBody(),
		Author:    c.GetUser().GetLogin(),
		URL:       c.GetHTMLURL(),
		CreatedAt: c.GetCreatedAt().Time,
	}
}
