// Package ticktick pulls tasks from a TickTick-style REST endpoint. The
// client only moves bytes: timestamps and priority codes pass through to
// the normalizer untouched, so parsing policy lives in one place.
package ticktick

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"

	"taskcal/internal/log"
	"taskcal/internal/model"
	"taskcal/internal/normalize"
)

// DefaultBaseURL is the hosted TickTick open API.
const DefaultBaseURL = "https://api.ticktick.com"

// statusCompleted is the provider's status code for a done task.
const statusCompleted = 2

const maxBodyBytes = 4 << 20

// HTTPClient is the subset of *http.Client the client needs; tests inject
// a fake.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config addresses one TickTick project.
type Config struct {
	// AccessToken is sent as a bearer token.
	AccessToken string
	// ProjectID selects the project (TickTick's inbox is a project too).
	ProjectID string
	// BaseURL overrides DefaultBaseURL, mainly for tests.
	BaseURL string
}

// Client fetches one project's tasks.
type Client struct {
	cfg  Config
	http HTTPClient
	log  *logrus.Entry
}

// New returns a client. A nil httpClient falls back to http.DefaultClient,
// a nil entry to a discarding logger.
func New(cfg Config, httpClient HTTPClient, logger *logrus.Entry) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = log.Discard()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	return &Client{cfg: cfg, http: httpClient, log: logger}
}

// task mirrors the provider's JSON. Date strings stay verbatim.
type task struct {
	Title     string `json:"title"`
	StartDate string `json:"startDate"`
	DueDate   string `json:"dueDate"`
	IsAllDay  bool   `json:"isAllDay"`
	Priority  int    `json:"priority"`
	Status    int    `json:"status"`
}

// projectData is the /project/{id}/data response envelope.
type projectData struct {
	Tasks []task `json:"tasks"`
}

// Fetch returns the project's tasks as normalizer rows, in the provider's
// order.
func (c *Client) Fetch(ctx context.Context) ([]normalize.Record, error) {
	if c.cfg.AccessToken == "" {
		return nil, errors.New("ticktick: access token is empty")
	}
	if c.cfg.ProjectID == "" {
		return nil, errors.New("ticktick: project ID is empty")
	}

	url := fmt.Sprintf("%s/open/v1/project/%s/data", c.cfg.BaseURL, c.cfg.ProjectID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("ticktick: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ticktick: fetch project data: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ticktick: unexpected status %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("ticktick: read response: %w", err)
	}

	var data projectData
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("ticktick: decode response: %w", err)
	}

	recs := make([]normalize.Record, 0, len(data.Tasks))
	for _, t := range data.Tasks {
		recs = append(recs, normalize.Record{
			Source:    model.SourceTask,
			Title:     t.Title,
			Start:     t.StartDate,
			End:       t.DueDate,
			AllDay:    t.IsAllDay,
			Priority:  t.Priority,
			Completed: t.Status == statusCompleted,
		})
	}
	c.log.WithField("tasks", len(recs)).Debug("ticktick fetched")
	return recs, nil
}
