package ci

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"

	"github.com/flakeseer/flakeseer/internal/logging"
)

// GitHubClient reads workflow run history from the GitHub Actions API.
type GitHubClient struct {
	// Repo is the "owner/name" slug.
	Repo string
	// Token is a personal access token with actions:read scope.
	// Optional for public repositories.
	Token string
	// Workflow, when set, keeps only runs whose workflow name contains
	// it (case-insensitive).
	Workflow string
	// BaseURL defaults to the public API endpoint.
	BaseURL string

	httpClient *http.Client
}

// NewGitHub returns a client for the given repository slug.
func NewGitHub(repo, token string) *GitHubClient {
	return &GitHubClient{
		Repo:       repo,
		Token:      token,
		BaseURL:    "https://api.github.com",
		httpClient: cleanhttp.DefaultClient(),
	}
}

type ghRun struct {
	ID         int64     `json:"id"`
	RunNumber  int       `json:"run_number"`
	Name       string    `json:"name"`
	HeadBranch string    `json:"head_branch"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

type ghRunList struct {
	WorkflowRuns []ghRun `json:"workflow_runs"`
}

type ghJob struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type ghJobList struct {
	Jobs []ghJob `json:"jobs"`
}

// Analyze fetches completed workflow runs from the last `days` days on
// `branch` (empty matches all branches), downloads their job logs and
// accumulates per-test outcome histories. At most maxRuns runs are
// inspected, oldest first so run indexes follow chronology.
func (c *GitHubClient) Analyze(ctx context.Context, branch string, days, maxRuns int) (Histories, error) {
	if maxRuns < 1 {
		maxRuns = DefaultMaxRuns
	}
	log := logging.New("ci.github")

	runs, err := c.listRuns(ctx, branch, days)
	if err != nil {
		return nil, err
	}
	if c.Workflow != "" {
		filtered := runs[:0]
		for _, run := range runs {
			if strings.Contains(strings.ToLower(run.Name), strings.ToLower(c.Workflow)) {
				filtered = append(filtered, run)
			}
		}
		runs = filtered
	}
	if len(runs) > maxRuns {
		runs = runs[len(runs)-maxRuns:]
	}
	log.Info("fetched workflow runs", "repo", c.Repo, "runs", len(runs))

	histories := make(Histories)
	for i, run := range runs {
		logs, err := c.jobLogs(ctx, run.ID)
		if err != nil {
			log.Warn("skipping run", "run", run.RunNumber, "error", err)
			continue
		}
		for name, outcome := range ParseTestLog(logs) {
			histories.record(name, outcome, i, run.HeadBranch)
		}
	}
	return histories, nil
}

func (c *GitHubClient) listRuns(ctx context.Context, branch string, days int) ([]ghRun, error) {
	if days < 1 {
		days = 7
	}
	since := time.Now().AddDate(0, 0, -days).Format("2006-01-02")

	q := url.Values{}
	q.Set("status", "completed")
	q.Set("per_page", "100")
	q.Set("created", ">="+since)
	if branch != "" {
		q.Set("branch", branch)
	}

	var list ghRunList
	u := fmt.Sprintf("%s/repos/%s/actions/runs?%s", c.BaseURL, c.Repo, q.Encode())
	if err := c.getJSON(ctx, u, &list); err != nil {
		return nil, fmt.Errorf("list workflow runs for %s: %w", c.Repo, err)
	}

	// The API returns newest first. Reverse so histories read in
	// execution order.
	runs := list.WorkflowRuns
	for i, j := 0, len(runs)-1; i < j; i, j = i+1, j-1 {
		runs[i], runs[j] = runs[j], runs[i]
	}
	return runs, nil
}

// jobLogs concatenates the logs of every job in a run. Per-job log
// endpoints avoid the zip archive the run-level endpoint returns.
func (c *GitHubClient) jobLogs(ctx context.Context, runID int64) (string, error) {
	var jobs ghJobList
	u := fmt.Sprintf("%s/repos/%s/actions/runs/%d/jobs", c.BaseURL, c.Repo, runID)
	if err := c.getJSON(ctx, u, &jobs); err != nil {
		return "", fmt.Errorf("list jobs of run %d: %w", runID, err)
	}

	var all []byte
	for _, job := range jobs.Jobs {
		u := fmt.Sprintf("%s/repos/%s/actions/jobs/%d/logs", c.BaseURL, c.Repo, job.ID)
		body, err := c.get(ctx, u)
		if err != nil {
			return "", fmt.Errorf("logs of job %q: %w", job.Name, err)
		}
		all = append(all, body...)
		all = append(all, '\n')
	}
	return string(all), nil
}

func (c *GitHubClient) getJSON(ctx context.Context, url string, v any) error {
	body, err := c.get(ctx, url)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, v)
}

func (c *GitHubClient) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.client().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: %s", url, resp.Status)
	}
	return io.ReadAll(resp.Body)
}

func (c *GitHubClient) client() *http.Client {
	if c.httpClient == nil {
		c.httpClient = cleanhttp.DefaultClient()
	}
	return c.httpClient
}
