// Package github fetches workflow run history and job steps from the GitHub Actions REST API.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	gh "github.com/google/go-github/v53/github"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"github.com/nadmax/nightlies/internal/metrics"
	"github.com/nadmax/nightlies/internal/nightly"
	"github.com/nadmax/nightlies/internal/workflow"
)

const (
	DefaultTimeout = 15 * time.Second
	DefaultBaseURL = "https://api.github.com/"

	runsPerPage = nightly.MaxRuns
	jobsPerPage = 30
)

// FetchError is returned for any non-2xx response other than a 404 on the run listing.
type FetchError struct {
	Status int
	Body   string
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("github API returned %d: %s", e.Status, e.Body)
}

type Options struct {
	BaseURL string
	Timeout time.Duration
	Logger  logrus.FieldLogger
}

type Client struct {
	client *gh.Client
	logger logrus.FieldLogger
}

func NewClient(token string, opts Options) (*Client, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}

	base := cleanhttp.DefaultPooledClient()
	base.Timeout = opts.Timeout

	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	client := gh.NewClient(oauth2.NewClient(ctx, ts))

	if opts.BaseURL != "" {
		baseURL := opts.BaseURL
		if !strings.HasSuffix(baseURL, "/") {
			baseURL += "/"
		}
		u, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid GitHub API URL %q: %w", opts.BaseURL, err)
		}
		client.BaseURL = u
	}

	return &Client{
		client: client,
		logger: opts.Logger,
	}, nil
}

// FetchRuns returns up to seven of the most recent runs of def, newest first.
// A missing workflow file yields an empty history rather than an error.
func (c *Client) FetchRuns(ctx context.Context, def workflow.Definition) ([]nightly.Run, error) {
	opts := &gh.ListWorkflowRunsOptions{
		ListOptions: gh.ListOptions{PerPage: runsPerPage},
	}

	result, resp, err := c.client.Actions.ListWorkflowRunsByFileName(ctx, def.Owner(), def.Name(), def.WorkflowFile, opts)
	if err != nil {
		if statusCode(resp) == http.StatusNotFound {
			metrics.RecordUpstreamRequest("runs", "not_found")
			c.logger.WithField("workflow", def.ID()).Debug("Workflow has no history yet")
			return []nightly.Run{}, nil
		}
		metrics.RecordUpstreamRequest("runs", "error")
		return nil, toFetchError(resp, err)
	}
	metrics.RecordUpstreamRequest("runs", "ok")

	ghRuns := result.WorkflowRuns
	if len(ghRuns) > nightly.MaxRuns {
		ghRuns = ghRuns[:nightly.MaxRuns]
	}

	runs := make([]nightly.Run, 0, len(ghRuns))
	for _, r := range ghRuns {
		runs = append(runs, convertRun(r, def))
	}
	return runs, nil
}

// FetchSteps returns every step of every job of a run, flattened in job order.
func (c *Client) FetchSteps(ctx context.Context, repo string, runID int64) ([]nightly.Step, error) {
	owner, name, ok := strings.Cut(repo, "/")
	if !ok {
		return nil, fmt.Errorf("invalid repository %q", repo)
	}

	opts := &gh.ListWorkflowJobsOptions{
		ListOptions: gh.ListOptions{PerPage: jobsPerPage},
	}

	jobs, resp, err := c.client.Actions.ListWorkflowJobs(ctx, owner, name, runID, opts)
	if err != nil {
		metrics.RecordUpstreamRequest("jobs", "error")
		return nil, toFetchError(resp, err)
	}
	metrics.RecordUpstreamRequest("jobs", "ok")

	var steps []nightly.Step
	for _, job := range jobs.Jobs {
		for _, s := range job.Steps {
			steps = append(steps, nightly.Step{
				Job:        job.GetName(),
				Name:       s.GetName(),
				Status:     s.GetStatus(),
				Conclusion: s.GetConclusion(),
			})
		}
	}
	return steps, nil
}

func convertRun(r *gh.WorkflowRun, def workflow.Definition) nightly.Run {
	run := nightly.Run{
		ID:        r.GetID(),
		Status:    r.GetStatus(),
		CreatedAt: r.GetCreatedAt().Time,
		UpdatedAt: r.GetUpdatedAt().Time,
		HTMLURL:   r.GetHTMLURL(),
		RunNumber: r.GetRunNumber(),
		Event:     r.GetEvent(),
		Model:     def.Model,
		GPUType:   def.GPUType,
		GPUCount:  def.GPUCount,
	}
	if r.Conclusion != nil && run.Status == nightly.StatusCompleted {
		c := r.GetConclusion()
		run.Conclusion = &c
	}
	return run
}

func statusCode(resp *gh.Response) int {
	if resp == nil || resp.Response == nil {
		return 0
	}
	return resp.StatusCode
}

func toFetchError(resp *gh.Response, err error) error {
	code := statusCode(resp)
	if code == 0 {
		return fmt.Errorf("github request failed: %w", err)
	}

	body := err.Error()
	var errResp *gh.ErrorResponse
	if errors.As(err, &errResp) && errResp.Message != "" {
		body = errResp.Message
	}
	return &FetchError{Status: code, Body: body}
}
