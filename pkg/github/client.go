package github

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/go-github/v66/github"
	"golang.org/x/oauth2"
)

const (
	// DefaultBaseURL is the public GitHub REST endpoint
	DefaultBaseURL = "https://api.github.com/"

	// DefaultAccept is the media type sent with every request
	DefaultAccept = "application/vnd.github+json"

	// DefaultPerPage is the page size used for listings
	DefaultPerPage = 100
)

// ClientOptions configures a Client. The resulting client is immutable.
type ClientOptions struct {
	BaseURL     string
	Token       string
	Accept      string
	UserAgent   string
	Logger      *slog.Logger
	Retry       *RetryConfig
	RateLimiter RateLimiter

	// Transport is the innermost round tripper, http.DefaultTransport when nil
	Transport http.RoundTripper
}

// Client implements the APIClient interface using the GitHub REST API
type Client struct {
	client  *github.Client
	accept  string
	retry   *RetryConfig
	limiter RateLimiter
	logger  *slog.Logger
}

// NewClient creates a new GitHub API client
func NewClient(opts ClientOptions) (*Client, error) {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, &ValidationError{Field: "base_url", Value: opts.BaseURL, Message: err.Error()}
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, &ValidationError{Field: "base_url", Value: opts.BaseURL, Message: "must be an absolute URL"}
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	limiter := opts.RateLimiter
	if limiter == nil {
		limiter = NewRateLimiter(nil)
	}
	retry := opts.Retry
	if retry == nil {
		retry = DefaultRetryConfig()
	}
	accept := opts.Accept
	if accept == "" {
		accept = DefaultAccept
	}

	transport := opts.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	if opts.Token != "" {
		transport = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.Token}),
			Base:   transport,
		}
	}
	transport = &rateLimitTransport{next: transport, limiter: limiter}
	transport = &loggingTransport{next: transport, logger: logger}

	gh := github.NewClient(&http.Client{Transport: transport})
	gh.BaseURL = parsed
	if opts.UserAgent != "" {
		gh.UserAgent = opts.UserAgent
	}

	return &Client{
		client:  gh,
		accept:  accept,
		retry:   retry,
		limiter: limiter,
		logger:  logger,
	}, nil
}

// RateLimitStats returns the pacing statistics gathered during the run
func (c *Client) RateLimitStats() RateLimiterStats {
	return c.limiter.GetStats()
}

// ListLabels lists every label of a repository
func (c *Client) ListLabels(ctx context.Context, repo string) Iterator[Label] {
	path := fmt.Sprintf("repos/%s/labels?per_page=%d", repo, DefaultPerPage)
	return newPager(ctx, c, path, fmt.Sprintf("repos/%s/labels", repo), convertGitHubLabel)
}

// ListMilestones lists the milestones of a repository in the given state
func (c *Client) ListMilestones(ctx context.Context, repo, state string) Iterator[Milestone] {
	query := url.Values{}
	query.Set("state", state)
	query.Set("per_page", strconv.Itoa(DefaultPerPage))
	path := fmt.Sprintf("repos/%s/milestones?%s", repo, query.Encode())
	return newPager(ctx, c, path, fmt.Sprintf("repos/%s/milestones", repo), convertGitHubMilestone)
}

// ListIssues lists the issues of a repository matching filter
func (c *Client) ListIssues(ctx context.Context, repo string, filter IssueFilter) Iterator[Issue] {
	query := url.Values{}
	if filter.Milestone != "" {
		query.Set("milestone", filter.Milestone)
	}
	if len(filter.Labels) > 0 {
		query.Set("labels", strings.Join(filter.Labels, ","))
	}
	if filter.State != "" {
		query.Set("state", filter.State)
	}
	perPage := filter.PerPage
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	query.Set("per_page", strconv.Itoa(perPage))

	path := fmt.Sprintf("repos/%s/issues?%s", repo, query.Encode())
	return newPager(ctx, c, path, fmt.Sprintf("repos/%s/issues", repo), convertGitHubIssue)
}

// GetLabel retrieves a single label by name
func (c *Client) GetLabel(ctx context.Context, repo, name string) (*Label, error) {
	path := labelPath(repo, name)

	var label github.Label
	err := WithRetry(ctx, func() error {
		req, err := c.newRequest(http.MethodGet, path, nil)
		if err != nil {
			return err
		}
		if _, err := c.client.Do(ctx, req, &label); err != nil {
			return WrapGitHubError(err, path)
		}
		return nil
	}, c.retry)

	if err != nil {
		return nil, err
	}

	converted := convertGitHubLabel(&label)
	return &converted, nil
}

type labelRequest struct {
	Name        string  `json:"name"`
	NewName     string  `json:"new_name,omitempty"`
	Color       string  `json:"color"`
	Description *string `json:"description"`
}

// CreateLabel creates a label
func (c *Client) CreateLabel(ctx context.Context, repo string, label Label) error {
	return c.send(ctx, http.MethodPost, fmt.Sprintf("repos/%s/labels", repo), labelRequest{
		Name:        label.Name,
		Color:       label.Color,
		Description: label.Description,
	})
}

// UpdateLabel rewrites the label currently named currentName, renaming it if needed
func (c *Client) UpdateLabel(ctx context.Context, repo, currentName string, label Label) error {
	return c.send(ctx, http.MethodPatch, labelPath(repo, currentName), labelRequest{
		Name:        label.Name,
		NewName:     label.Name,
		Color:       label.Color,
		Description: label.Description,
	})
}

// DeleteLabel deletes a label
func (c *Client) DeleteLabel(ctx context.Context, repo, name string) error {
	return c.send(ctx, http.MethodDelete, labelPath(repo, name), nil)
}

type milestoneRequest struct {
	Title       string     `json:"title"`
	Description *string    `json:"description"`
	DueOn       *time.Time `json:"due_on"`
}

// CreateMilestone creates a milestone
func (c *Client) CreateMilestone(ctx context.Context, repo string, milestone Milestone) error {
	return c.send(ctx, http.MethodPost, fmt.Sprintf("repos/%s/milestones", repo), milestoneRequest{
		Title:       milestone.Title,
		Description: milestone.Description,
		DueOn:       milestone.DueOn,
	})
}

// UpdateMilestone rewrites the title, description and due date of a milestone
func (c *Client) UpdateMilestone(ctx context.Context, repo string, number int, milestone Milestone) error {
	return c.send(ctx, http.MethodPatch, milestonePath(repo, number), milestoneRequest{
		Title:       milestone.Title,
		Description: milestone.Description,
		DueOn:       milestone.DueOn,
	})
}

// CloseMilestone closes a milestone
func (c *Client) CloseMilestone(ctx context.Context, repo string, number int) error {
	return c.send(ctx, http.MethodPatch, milestonePath(repo, number), map[string]string{
		"state": MilestoneStateClosed,
	})
}

// AddLabelsToIssue attaches labels to an issue
func (c *Client) AddLabelsToIssue(ctx context.Context, repo string, number int, labels []string) error {
	return c.send(ctx, http.MethodPost, fmt.Sprintf("repos/%s/issues/%d/labels", repo, number), labels)
}

// send issues a write request whose response body is discarded
func (c *Client) send(ctx context.Context, method, path string, body interface{}) error {
	return WithRetry(ctx, func() error {
		req, err := c.newRequest(method, path, body)
		if err != nil {
			return err
		}
		if _, err := c.client.Do(ctx, req, nil); err != nil {
			return WrapGitHubError(err, path)
		}
		return nil
	}, c.retry)
}

func (c *Client) newRequest(method, urlStr string, body interface{}) (*http.Request, error) {
	req, err := c.client.NewRequest(method, urlStr, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", c.accept)
	return req, nil
}

func labelPath(repo, name string) string {
	return fmt.Sprintf("repos/%s/labels/%s", repo, url.PathEscape(name))
}

func milestonePath(repo string, number int) string {
	return fmt.Sprintf("repos/%s/milestones/%d", repo, number)
}

func convertGitHubLabel(label *github.Label) Label {
	return Label{
		Name:        label.GetName(),
		Color:       label.GetColor(),
		Description: label.Description,
	}
}

func convertGitHubMilestone(milestone *github.Milestone) Milestone {
	converted := Milestone{
		Number:      milestone.GetNumber(),
		Title:       milestone.GetTitle(),
		Description: milestone.Description,
		State:       milestone.GetState(),
		OpenIssues:  milestone.GetOpenIssues(),
	}
	if milestone.DueOn != nil {
		dueOn := milestone.DueOn.Time
		converted.DueOn = &dueOn
	}
	return converted
}

func convertGitHubIssue(issue *github.Issue) Issue {
	converted := Issue{
		Number: issue.GetNumber(),
		Title:  issue.GetTitle(),
		Labels: make([]string, 0, len(issue.Labels)),
	}
	for _, label := range issue.Labels {
		converted.Labels = append(converted.Labels, label.GetName())
	}
	if issue.Milestone != nil {
		milestone := convertGitHubMilestone(issue.Milestone)
		converted.Milestone = &milestone
	}
	return converted
}

// loggingTransport logs every request on start and its status on completion
type loggingTransport struct {
	next   http.RoundTripper
	logger *slog.Logger
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	target := req.URL.Path
	if req.URL.RawQuery != "" {
		target += "?" + req.URL.RawQuery
	}
	t.logger.Debug(req.Method + " " + target)

	start := time.Now()
	resp, err := t.next.RoundTrip(req)
	elapsed := time.Since(start).Round(time.Millisecond)
	if err != nil {
		t.logger.Error("request failed", "method", req.Method, "path", req.URL.Path, "error", err)
		return nil, err
	}

	if resp.StatusCode >= http.StatusBadRequest {
		t.logger.Error(http.StatusText(resp.StatusCode), "method", req.Method, "path", req.URL.Path, "status", resp.StatusCode)
	} else {
		t.logger.Debug(http.StatusText(resp.StatusCode), "status", resp.StatusCode, "elapsed", elapsed)
	}
	return resp, nil
}
