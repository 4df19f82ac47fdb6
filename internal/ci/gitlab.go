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

// GitLabClient reads pipeline history from the GitLab CI API.
type GitLabClient struct {
	// Project is the numeric ID or URL-encoded "group/project" path.
	Project string
	// Token is a personal or project access token with read_api scope.
	Token string
	// BaseURL defaults to gitlab.com.
	BaseURL string

	httpClient *http.Client
}

// NewGitLab returns a client for the given project.
func NewGitLab(project, token string) *GitLabClient {
	return &GitLabClient{
		Project:    project,
		Token:      token,
		BaseURL:    "https://gitlab.com",
		httpClient: cleanhttp.DefaultClient(),
	}
}

type glPipeline struct {
	ID        int64     `json:"id"`
	Ref       string    `json:"ref"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

type glJob struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Stage string `json:"stage"`
}

// Analyze fetches finished pipelines from the last `days` days on `ref`
// (empty matches all refs), downloads traces of test jobs and
// accumulates per-test outcome histories. At most maxRuns pipelines are
// inspected, oldest first.
func (c *GitLabClient) Analyze(ctx context.Context, ref string, days, maxRuns int) (Histories, error) {
	if maxRuns < 1 {
		maxRuns = DefaultMaxRuns
	}
	log := logging.New("ci.gitlab")

	pipelines, err := c.listPipelines(ctx, ref, days)
	if err != nil {
		return nil, err
	}
	if len(pipelines) > maxRuns {
		pipelines = pipelines[len(pipelines)-maxRuns:]
	}
	log.Info("fetched pipelines", "project", c.Project, "pipelines", len(pipelines))

	histories := make(Histories)
	for i, p := range pipelines {
		logs, err := c.testJobTraces(ctx, p.ID)
		if err != nil {
			log.Warn("skipping pipeline", "pipeline", p.ID, "error", err)
			continue
		}
		for name, outcome := range ParseTestLog(logs) {
			histories.record(name, outcome, i, p.Ref)
		}
	}
	return histories, nil
}

func (c *GitLabClient) listPipelines(ctx context.Context, ref string, days int) ([]glPipeline, error) {
	if days < 1 {
		days = 7
	}
	since := time.Now().AddDate(0, 0, -days).UTC().Format(time.RFC3339)

	q := url.Values{}
	q.Set("per_page", "100")
	q.Set("updated_after", since)
	if ref != "" {
		q.Set("ref", ref)
	}

	var pipelines []glPipeline
	u := fmt.Sprintf("%s/api/v4/projects/%s/pipelines?%s", c.BaseURL, url.PathEscape(c.Project), q.Encode())
	if err := c.getJSON(ctx, u, &pipelines); err != nil {
		return nil, fmt.Errorf("list pipelines of %s: %w", c.Project, err)
	}

	// Keep only finished pipelines; running ones have partial logs.
	finished := pipelines[:0]
	for _, p := range pipelines {
		if p.Status == "success" || p.Status == "failed" {
			finished = append(finished, p)
		}
	}

	// Newest first from the API; reverse into execution order.
	for i, j := 0, len(finished)-1; i < j; i, j = i+1, j-1 {
		finished[i], finished[j] = finished[j], finished[i]
	}
	return finished, nil
}

// testJobTraces concatenates the traces of jobs that look like test
// jobs. When no job name matches, every trace is taken so pipelines
// with unconventional naming still contribute.
func (c *GitLabClient) testJobTraces(ctx context.Context, pipelineID int64) (string, error) {
	var jobs []glJob
	u := fmt.Sprintf("%s/api/v4/projects/%s/pipelines/%d/jobs", c.BaseURL, url.PathEscape(c.Project), pipelineID)
	if err := c.getJSON(ctx, u, &jobs); err != nil {
		return "", fmt.Errorf("list jobs of pipeline %d: %w", pipelineID, err)
	}

	selected := jobs[:0]
	for _, job := range jobs {
		if looksLikeTestJob(job) {
			selected = append(selected, job)
		}
	}
	if len(selected) == 0 {
		selected = jobs
	}

	var all []byte
	for _, job := range selected {
		u := fmt.Sprintf("%s/api/v4/projects/%s/jobs/%d/trace", c.BaseURL, url.PathEscape(c.Project), job.ID)
		body, err := c.get(ctx, u)
		if err != nil {
			return "", fmt.Errorf("trace of job %q: %w", job.Name, err)
		}
		all = append(all, body...)
		all = append(all, '\n')
	}
	return string(all), nil
}

func looksLikeTestJob(job glJob) bool {
	name := strings.ToLower(job.Name)
	stage := strings.ToLower(job.Stage)
	return strings.Contains(name, "test") || strings.Contains(stage, "test")
}

func (c *GitLabClient) getJSON(ctx context.Context, url string, v any) error {
	body, err := c.get(ctx, url)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, v)
}

func (c *GitLabClient) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if c.Token != "" {
		req.Header.Set("PRIVATE-TOKEN", c.Token)
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

func (c *GitLabClient) client() *http.Client {
	if c.httpClient == nil {
		c.httpClient = cleanhttp.DefaultClient()
	}
	return c.httpClient
}
