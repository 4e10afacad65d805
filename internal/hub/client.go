// Package hub implements a rate-limited client for a dataset hub rows API,
// used to resolve named datasets that are not local paths.
package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/lamim/prefharvest/internal/metrics"
	"github.com/lamim/prefharvest/internal/util"
)

const (
	// DefaultTimeout is the default timeout for rows API requests
	DefaultTimeout = 120 * time.Second
	// DefaultPageSize is the number of rows requested per page
	DefaultPageSize = 100
	// LogPreviewLength is the maximum length for error body previews
	LogPreviewLength = 500
)

// Client fetches dataset rows from a hub rows API
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	pageSize   int
	logger     *slog.Logger
	metrics    *metrics.Collector
}

// Option configures a Client
type Option func(*Client)

// WithPageSize overrides the rows-per-request page size
func WithPageSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithMetrics attaches a metrics collector
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// NewClient creates a hub client. requestsPerMinute bounds the request
// rate; the limiter allows a small burst above the steady rate.
func NewClient(baseURL string, requestsPerMinute int, timeout time.Duration, logger *slog.Logger, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if requestsPerMinute <= 0 {
		requestsPerMinute = 60
	}

	rps := float64(requestsPerMinute) / 60.0
	burst := max(5, requestsPerMinute/5)

	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter:  rate.NewLimiter(rate.Limit(rps), burst),
		pageSize: DefaultPageSize,
		logger:   logger.With("component", "hub_client"),
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// rowsResponse mirrors the rows API payload
type rowsResponse struct {
	Rows []struct {
		Row map[string]any `json:"row"`
	} `json:"rows"`
	NumRowsTotal int `json:"num_rows_total"`
}

// LoadRows fetches every row of the named dataset split, paginating until
// the reported total is reached.
func (c *Client) LoadRows(ctx context.Context, name, split string) ([]map[string]any, error) {
	var rows []map[string]any
	offset := 0

	for {
		page, total, err := c.fetchPage(ctx, name, split, offset)
		if err != nil {
			return nil, err
		}
		rows = append(rows, page...)

		if len(rows) >= total || len(page) == 0 {
			break
		}
		offset += len(page)
	}

	c.logger.Info("Loaded dataset rows", "dataset", name, "split", split, "rows", len(rows))
	return rows, nil
}

func (c *Client) fetchPage(ctx context.Context, name, split string, offset int) ([]map[string]any, int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, 0, fmt.Errorf("rate limiter wait failed: %w", err)
	}

	query := url.Values{}
	query.Set("dataset", name)
	query.Set("split", split)
	query.Set("offset", fmt.Sprintf("%d", offset))
	query.Set("length", fmt.Sprintf("%d", c.pageSize))
	endpoint := fmt.Sprintf("%s/rows?%s", c.baseURL, query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create rows request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if c.metrics != nil {
			c.metrics.RecordHubRequest(time.Since(start), false)
		}
		return nil, 0, fmt.Errorf("rows request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if c.metrics != nil {
			c.metrics.RecordHubRequest(time.Since(start), false)
		}
		return nil, 0, fmt.Errorf("failed to read rows response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if c.metrics != nil {
			c.metrics.RecordHubRequest(time.Since(start), false)
		}
		return nil, 0, fmt.Errorf("rows request returned status %d: %s",
			resp.StatusCode, util.TruncateString(string(body), LogPreviewLength))
	}

	var parsed rowsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		if c.metrics != nil {
			c.metrics.RecordHubRequest(time.Since(start), false)
		}
		return nil, 0, fmt.Errorf("failed to parse rows response: %w", err)
	}

	if c.metrics != nil {
		c.metrics.RecordHubRequest(time.Since(start), true)
	}

	page := make([]map[string]any, 0, len(parsed.Rows))
	for _, r := range parsed.Rows {
		page = append(page, r.Row)
	}

	c.logger.Debug("Fetched dataset page",
		"dataset", name,
		"offset", offset,
		"rows", len(page),
		"total", parsed.NumRowsTotal)

	return page, parsed.NumRowsTotal, nil
}
