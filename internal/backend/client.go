package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"aiwatch/internal/config"
	"aiwatch/internal/logging"
)

// HTTPDoer describes the HTTP client used for backend calls.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// StatusError is a non-2xx backend response.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("%s %s returned %d", e.Method, e.Path, e.Code)
	}
	return fmt.Sprintf("%s %s returned %d: %s", e.Method, e.Path, e.Code, body)
}

// IsRetryable reports whether err is worth another attempt: transport
// failures, 429 and 5xx responses.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code == http.StatusTooManyRequests || statusErr.Code >= http.StatusInternalServerError
	}
	return true
}

// IsNotFound reports whether err is a 404 response.
func IsNotFound(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.Code == http.StatusNotFound
}

// Options configures a Client.
type Options struct {
	BaseURL    string
	Token      string
	OwnerID    string
	HTTPClient HTTPDoer
	// Timeout bounds each request, zero means no per-request bound.
	Timeout time.Duration
	// MaxTries bounds read attempts; writes are never retried.
	MaxTries uint
	Logger   *slog.Logger
}

// Client is the backend REST client.
type Client struct {
	baseURL  string
	token    string
	ownerID  string
	client   HTTPDoer
	timeout  time.Duration
	maxTries uint
	logger   *slog.Logger
}

// New returns a Client for opts.
func New(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, errors.New("backend base url is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("parse backend base url: %w", err)
	}
	if strings.TrimSpace(opts.OwnerID) == "" {
		return nil, errors.New("backend owner id is required")
	}
	client := opts.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	tries := opts.MaxTries
	if tries == 0 {
		tries = 3
	}
	return &Client{
		baseURL:  base,
		token:    strings.TrimSpace(opts.Token),
		ownerID:  strings.TrimSpace(opts.OwnerID),
		client:   client,
		timeout:  opts.Timeout,
		maxTries: tries,
		logger:   logging.NewComponentLogger(opts.Logger, "backend"),
	}, nil
}

// NewFromConfig builds a Client from the backend section of cfg.
func NewFromConfig(cfg *config.Config, logger *slog.Logger) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	return New(Options{
		BaseURL: cfg.Backend.BaseURL,
		Token:   cfg.Backend.APIToken,
		OwnerID: cfg.Backend.OwnerID,
		Timeout: cfg.RequestTimeout(),
		Logger:  logger,
	})
}

// OwnerID returns the owner every request is scoped to.
func (c *Client) OwnerID() string {
	return c.ownerID
}

// getJSON fetches path into out, retrying transient failures with
// exponential backoff.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	if query == nil {
		query = url.Values{}
	}
	query.Set("userId", c.ownerID)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxInterval = 2 * time.Second

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := c.do(ctx, http.MethodGet, path, query, nil, out)
		if err != nil && !IsRetryable(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		if err != nil {
			c.logger.Debug("backend read failed; retrying",
				logging.String("path", path),
				logging.Error(err),
			)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(bo), backoff.WithMaxTries(c.maxTries))
	return err
}

// send performs a single write. Writes are not retried so that a duplicate
// retry or cancel never reaches the backend.
func (c *Client) send(ctx context.Context, method, path string, body any) error {
	return c.do(ctx, method, path, nil, body, nil)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s body: %w", path, err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: string(data)}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
