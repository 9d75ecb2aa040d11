package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"Actionboard/internal/config"
	"Actionboard/internal/metrics"
	"Actionboard/internal/models"
)

const (
	endpointRepositories = "repositories"
	endpointWorkflowRuns = "workflow_runs"

	// maxErrorBody caps how much of a failed response is kept in the error
	maxErrorBody = 512
)

// Client talks to the GitHub REST API. It performs a single request per call
// and never retries; callers wrap it in a retry policy.
type Client struct {
	baseURL   string
	token     string
	userAgent string
	client    *http.Client
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

type repositoryResponse struct {
	Name  string `json:"name"`
	Owner struct {
		Login string `json:"login"`
	} `json:"owner"`
}

type workflowRunResponse struct {
	ID           uint64  `json:"id"`
	Name         string  `json:"name"`
	DisplayTitle string  `json:"display_title"`
	Event        string  `json:"event"`
	Status       string  `json:"status"`
	Conclusion   *string `json:"conclusion"`
	CreatedAt    string  `json:"created_at"`
	UpdatedAt    string  `json:"updated_at"`
	HTMLURL      string  `json:"html_url"`
	Repository   struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
}

type workflowRunsResponse struct {
	TotalCount   int                   `json:"total_count"`
	WorkflowRuns []workflowRunResponse `json:"workflow_runs"`
}

func NewClient(cfg config.GitHubConfig, met *metrics.Metrics, logger *slog.Logger) *Client {
	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		token:     cfg.Token,
		userAgent: cfg.UserAgent,
		client:    &http.Client{Timeout: cfg.RequestTimeout},
		metrics:   met,
		logger:    logger.With("component", "github-client"),
	}
}

// FetchRepositories lists the authenticated user's own repositories, most
// recently pushed first
func (c *Client) FetchRepositories(ctx context.Context, count uint8) ([]models.Repository, error) {
	query := url.Values{}
	query.Set("type", "owner")
	query.Set("sort", "pushed")
	query.Set("direction", "desc")
	query.Set("per_page", strconv.Itoa(int(count)))
	reqURL := c.baseURL + "/user/repos?" + query.Encode()

	var items []repositoryResponse
	if err := c.get(ctx, endpointRepositories, reqURL, &items); err != nil {
		return nil, err
	}

	repositories := make([]models.Repository, 0, len(items))
	for _, item := range items {
		repositories = append(repositories, models.Repository{
			Owner: item.Owner.Login,
			Name:  item.Name,
		})
	}

	return repositories, nil
}

// FetchWorkflowRuns returns the latest workflow runs of one repository.
// The result is not ordered by creation time.
func (c *Client) FetchWorkflowRuns(ctx context.Context, owner, repo string, count uint8) ([]models.Run, error) {
	reqURL := fmt.Sprintf("%s/repos/%s/%s/actions/runs?per_page=%d",
		c.baseURL, url.PathEscape(owner), url.PathEscape(repo), count)

	var resp workflowRunsResponse
	if err := c.get(ctx, endpointWorkflowRuns, reqURL, &resp); err != nil {
		return nil, err
	}

	runs := make([]models.Run, 0, len(resp.WorkflowRuns))
	for _, item := range resp.WorkflowRuns {
		run, err := toRun(item)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	return runs, nil
}

func toRun(item workflowRunResponse) (models.Run, error) {
	createdAt, err := parseTime(item.ID, "created_at", item.CreatedAt)
	if err != nil {
		return models.Run{}, err
	}
	updatedAt, err := parseTime(item.ID, "updated_at", item.UpdatedAt)
	if err != nil {
		return models.Run{}, err
	}

	conclusion := ""
	if item.Conclusion != nil {
		conclusion = *item.Conclusion
	}

	return models.Run{
		RepositoryName: item.Repository.FullName,
		ID:             item.ID,
		WorkflowName:   item.Name,
		DisplayTitle:   item.DisplayTitle,
		Event:          item.Event,
		Status:         models.DeriveStatus(item.Status, conclusion),
		CreatedAt:      createdAt,
		UpdatedAt:      updatedAt,
		URL:            item.HTMLURL,
	}, nil
}

func parseTime(runID uint64, field, value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, &models.TimeParseError{RunID: runID, Field: field, Value: value, Err: err}
	}
	return t.UTC(), nil
}

func (c *Client) get(ctx context.Context, endpoint, reqURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", endpoint, err)
	}

	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	c.metrics.GitHubAPIDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.GitHubAPIRequests.WithLabelValues(endpoint, "error").Inc()
		return &models.TransportError{Op: endpoint, Err: err}
	}
	defer resp.Body.Close()

	c.metrics.GitHubAPIRequests.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()
	c.recordRateLimit(resp.Header)

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Debug("unexpected status",
			"endpoint", endpoint,
			"status", resp.StatusCode,
		)
		return &models.StatusError{
			Op:         endpoint,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &models.DecodeError{Op: endpoint, Err: err}
	}

	return nil
}

func (c *Client) recordRateLimit(h http.Header) {
	if v := h.Get("X-RateLimit-Remaining"); v != "" {
		if remaining, err := strconv.ParseFloat(v, 64); err == nil {
			c.metrics.GitHubAPIRateLimit.Set(remaining)
		}
	}
	if v := h.Get("X-RateLimit-Reset"); v != "" {
		if reset, err := strconv.ParseFloat(v, 64); err == nil {
			c.metrics.GitHubAPIRateLimitReset.Set(reset)
		}
	}
}
