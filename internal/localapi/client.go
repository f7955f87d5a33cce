package localapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"aiwatch/internal/costs"
	"aiwatch/internal/errorlog"
	"aiwatch/internal/jobs"
	"aiwatch/internal/recommendations"
	"aiwatch/internal/results"
)

// ErrUnavailable means no watcher answered on the configured address.
var ErrUnavailable = errors.New("aiwatch is not running")

// APIError is a non-2xx response from the local API.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("local api: %d %s", e.Code, e.Message)
}

// Client talks to a running watcher.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient builds a client for the bind address (host:port or URL).
func NewClient(bind, token string) *Client {
	base := strings.TrimRight(strings.TrimSpace(bind), "/")
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &Client{baseURL: base, token: token, http: &http.Client{Timeout: 60 * time.Second}}
}

func (c *Client) Status(ctx context.Context) (StatusResponse, error) {
	var resp StatusResponse
	err := c.do(ctx, http.MethodGet, "/api/status", nil, nil, &resp)
	return resp, err
}

func (c *Client) Jobs(ctx context.Context, filter jobs.Filter) ([]jobs.Job, error) {
	var resp JobsResponse
	err := c.do(ctx, http.MethodGet, "/api/jobs", FilterQuery(filter), nil, &resp)
	return resp.Jobs, err
}

func (c *Client) Result(ctx context.Context, jobID string) (results.Result, error) {
	var resp results.Result
	err := c.do(ctx, http.MethodGet, "/api/jobs/"+url.PathEscape(jobID)+"/result", nil, nil, &resp)
	return resp, err
}

func (c *Client) Retry(ctx context.Context, jobID string) error {
	return c.do(ctx, http.MethodPost, "/api/jobs/"+url.PathEscape(jobID)+"/retry", nil, nil, nil)
}

func (c *Client) Cancel(ctx context.Context, jobID string) error {
	return c.do(ctx, http.MethodPost, "/api/jobs/"+url.PathEscape(jobID)+"/cancel", nil, nil, nil)
}

func (c *Client) Costs(ctx context.Context, r costs.DateRange) (CostsResponse, error) {
	q := url.Values{}
	if r.From != "" {
		q.Set("from", string(r.From))
	}
	if r.To != "" {
		q.Set("to", string(r.To))
	}
	var resp CostsResponse
	err := c.do(ctx, http.MethodGet, "/api/costs", q, nil, &resp)
	return resp, err
}

// Errors lists the error log, optionally only entries with status.
func (c *Client) Errors(ctx context.Context, status string) (ErrorsResponse, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	var resp ErrorsResponse
	err := c.do(ctx, http.MethodGet, "/api/errors", q, nil, &resp)
	return resp, err
}

func (c *Client) ResolveError(ctx context.Context, id, status string) (errorlog.Entry, error) {
	var entry errorlog.Entry
	err := c.do(ctx, http.MethodPost, "/api/errors/"+url.PathEscape(id)+"/status", nil, ErrorStatusRequest{Status: status}, &entry)
	return entry, err
}

func (c *Client) Providers(ctx context.Context) (ProvidersResponse, error) {
	var resp ProvidersResponse
	err := c.do(ctx, http.MethodGet, "/api/providers", nil, nil, &resp)
	return resp, err
}

func (c *Client) Recommendations(ctx context.Context) (RecommendationsResponse, error) {
	var resp RecommendationsResponse
	err := c.do(ctx, http.MethodGet, "/api/recommendations", nil, nil, &resp)
	return resp, err
}

func (c *Client) SetRecommendation(ctx context.Context, id string, implemented bool) (recommendations.Recommendation, error) {
	var rec recommendations.Recommendation
	err := c.do(ctx, http.MethodPost, "/api/recommendations/"+url.PathEscape(id), nil, RecommendationRequest{Implemented: implemented}, &rec)
	return rec, err
}

func (c *Client) Refresh(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/refresh", nil, nil, nil)
}

// Export returns the raw export document.
func (c *Client) Export(ctx context.Context, kind, format string, filter jobs.Filter) ([]byte, error) {
	q := FilterQuery(filter)
	q.Set("kind", kind)
	q.Set("format", format)
	resp, err := c.send(ctx, http.MethodGet, "/api/export", q, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	resp, err := c.send(ctx, method, path, query, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, query url.Values, body any) (*http.Response, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w at %s: %w", ErrUnavailable, c.baseURL, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var decoded errorResponse
		message := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &decoded) == nil && decoded.Error != "" {
			message = decoded.Error
		}
		return nil, &APIError{Code: resp.StatusCode, Message: message}
	}
	return resp, nil
}
