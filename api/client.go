// Package api is the HTTP client for the cost-management reports API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	reportsync "github.com/AnandSundar/go-reportsync"
	"github.com/AnandSundar/go-reportsync/internal/log"
	"github.com/AnandSundar/go-reportsync/report"
)

// DefaultTimeout bounds each HTTP request
const DefaultTimeout = 60 * time.Second

// maxErrorBody caps how much of an error response is kept as the message
const maxErrorBody = 4 << 10

// Error is returned when the API answers with a non-2xx status.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("API error (HTTP %d): %s", e.StatusCode, e.Message)
}

// HTTPStatus returns the response status code
func (e *Error) HTTPStatus() int {
	return e.StatusCode
}

// IsNotFound reports whether err is an API 404
func IsNotFound(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Client is the HTTP wrapper around the cost-management API. It implements
// reportsync.Fetcher. Requests are not retried.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *log.Logger
}

var _ reportsync.Fetcher = (*Client)(nil)

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the per-request timeout. A client passed to WithHTTPClient
// is copied, not modified.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		hc := *c.httpClient
		hc.Timeout = d
		c.httpClient = &hc
	}
}

// WithLogger sets the logger used for request tracing at debug level
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = log.FromSlog(l, log.ComponentAPI)
	}
}

// NewClient creates a client for the API rooted at baseURL, e.g.
// https://console.redhat.com/api/cost-management/v1/. An empty token sends
// no Authorization header.
func NewClient(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/") + "/",
		token:      token,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     log.FromSlog(nil, log.ComponentAPI),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch performs GET <path>?<query> and decodes the report.
func (c *Client) Fetch(ctx context.Context, path, query string) (*report.Report, error) {
	body, err := c.get(ctx, path, query, "application/json")
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var r report.Report
	if err := json.NewDecoder(body).Decode(&r); err != nil {
		return nil, fmt.Errorf("failed to parse report %s: %w", path, err)
	}
	return &r, nil
}

// Export performs GET <path>?<query> asking for CSV and returns the raw body.
func (c *Client) Export(ctx context.Context, path, query string) ([]byte, error) {
	body, err := c.get(ctx, path, query, "text/csv")
	if err != nil {
		return nil, err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("failed to read export %s: %w", path, err)
	}
	return data, nil
}

func (c *Client) url(path, query string) string {
	u := c.baseURL + strings.TrimLeft(path, "/")
	if query != "" {
		u += "?" + query
	}
	return u
}

func (c *Client) get(ctx context.Context, path, query, accept string) (io.ReadCloser, error) {
	urlStr := c.url(path, query)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", accept)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	c.logger.DebugContext(ctx, "GET "+urlStr,
		log.NewFields().
			WithHTTPRequest(http.MethodGet, path, query).
			WithHTTPResponse(resp.StatusCode, time.Since(start).Milliseconds()).
			ToSlice()...)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &Error{StatusCode: resp.StatusCode, Message: errorMessage(resp.StatusCode, raw)}
	}

	return resp.Body, nil
}

// errorBody is the error document the API returns, e.g.
// {"errors":[{"detail":"Invalid filter","status":400}]}
type errorBody struct {
	Errors []struct {
		Detail string `json:"detail"`
		Source string `json:"source"`
	} `json:"errors"`
}

func errorMessage(status int, raw []byte) string {
	var eb errorBody
	if err := json.Unmarshal(raw, &eb); err == nil && len(eb.Errors) > 0 {
		details := make([]string, 0, len(eb.Errors))
		for _, e := range eb.Errors {
			if e.Source != "" {
				details = append(details, e.Source+": "+e.Detail)
			} else {
				details = append(details, e.Detail)
			}
		}
		return strings.Join(details, "; ")
	}

	msg := strings.TrimSpace(string(raw))
	if msg == "" {
		msg = http.StatusText(status)
	}
	return msg
}
