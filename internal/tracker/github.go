package tracker

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	gh "github.com/google/go-github/v80/github"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/wardenhq/warden/internal/types"
)

const (
	// defaultTimeout bounds each GitHub API request
	defaultTimeout = 30 * time.Second

	// requestsPerSecond keeps us well under GitHub's secondary rate limits
	requestsPerSecond = 2
)

// GitHubConfig holds the settings for the GitHub tracker backend.
type GitHubConfig struct {
	Token string `yaml:"token"`
	Owner string `yaml:"owner"`
	Repo  string `yaml:"repo"`

	// BaseURL overrides the API endpoint for GitHub Enterprise. Empty means
	// github.com.
	BaseURL string `yaml:"base_url,omitempty"`
}

// Validate checks the configuration for required fields.
func (c *GitHubConfig) Validate() error {
	if c.Token == "" {
		return fmt.Errorf("github token is required")
	}
	if c.Owner == "" || c.Repo == "" {
		return fmt.Errorf("github owner and repo are required")
	}
	return nil
}

// GitHub implements Tracker against the GitHub Issues API.
type GitHub struct {
	client  *gh.Client
	owner   string
	repo    string
	limiter *rate.Limiter
}

// NewGitHub creates a GitHub tracker backend.
func NewGitHub(ctx context.Context, cfg GitHubConfig) (*GitHub, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})
	tc := oauth2.NewClient(ctx, ts)
	tc.Timeout = defaultTimeout

	client := gh.NewClient(tc)
	if cfg.BaseURL != "" {
		var err error
		client, err = client.WithEnterpriseURLs(cfg.BaseURL, cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid github base url: %w", err)
		}
	}

	return &GitHub{
		client:  client,
		owner:   cfg.Owner,
		repo:    cfg.Repo,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
	}, nil
}

// Create opens a GitHub issue mirroring the internal issue.
func (g *GitHub) Create(ctx context.Context, issue *types.Issue) (int64, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	labels := append([]string{string(issue.Severity), issue.Category}, issue.Labels...)
	req := &gh.IssueRequest{
		Title:  gh.Ptr(issue.Title),
		Body:   gh.Ptr(issueBody(issue)),
		Labels: &labels,
	}

	created, resp, err := g.client.Issues.Create(ctx, g.owner, g.repo, req)
	if err != nil {
		return 0, fmt.Errorf("failed to create github issue: %w", err)
	}
	if resp.StatusCode != http.StatusCreated {
		return 0, fmt.Errorf("unexpected status creating github issue: %d", resp.StatusCode)
	}
	return int64(created.GetNumber()), nil
}

// IsClosed reports whether the external issue has been closed.
func (g *GitHub) IsClosed(ctx context.Context, externalID int64) (bool, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return false, err
	}

	issue, _, err := g.client.Issues.Get(ctx, g.owner, g.repo, int(externalID))
	if err != nil {
		return false, fmt.Errorf("failed to fetch github issue #%d: %w", externalID, err)
	}
	return issue.GetState() == "closed", nil
}

// Comments returns the comment bodies on the external issue, oldest first.
func (g *GitHub) Comments(ctx context.Context, externalID int64) ([]string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	opts := &gh.IssueListCommentsOptions{
		Sort:        gh.Ptr("created"),
		Direction:   gh.Ptr("asc"),
		ListOptions: gh.ListOptions{PerPage: 100},
	}

	var bodies []string
	for {
		comments, resp, err := g.client.Issues.ListComments(ctx, g.owner, g.repo, int(externalID), opts)
		if err != nil {
			return nil, fmt.Errorf("failed to list comments on #%d: %w", externalID, err)
		}
		for _, c := range comments {
			bodies = append(bodies, c.GetBody())
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return bodies, nil
}

// Close closes the external issue with a closing comment.
func (g *GitHub) Close(ctx context.Context, externalID int64, comment string) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return err
	}

	if comment != "" {
		_, _, err := g.client.Issues.CreateComment(ctx, g.owner, g.repo, int(externalID),
			&gh.IssueComment{Body: gh.Ptr(comment)})
		if err != nil {
			return fmt.Errorf("failed to comment on #%d: %w", externalID, err)
		}
	}

	_, _, err := g.client.Issues.Edit(ctx, g.owner, g.repo, int(externalID),
		&gh.IssueRequest{State: gh.Ptr("closed")})
	if err != nil {
		return fmt.Errorf("failed to close github issue #%d: %w", externalID, err)
	}
	return nil
}

func issueBody(issue *types.Issue) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**Internal ID:** %s\n", issue.ID)
	fmt.Fprintf(&b, "**Severity:** %s\n", issue.Severity)
	fmt.Fprintf(&b, "**Category:** %s\n", issue.Category)
	if issue.File != "" {
		loc := issue.File
		if issue.Line > 0 {
			loc = fmt.Sprintf("%s:%d", issue.File, issue.Line)
		}
		fmt.Fprintf(&b, "**Location:** %s\n", loc)
	}
	if issue.ErrorText != "" {
		fmt.Fprintf(&b, "\n```\n%s\n```\n", issue.ErrorText)
	}
	return b.String()
}
