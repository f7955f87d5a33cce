package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"aiwatch/internal/errorlog"
	"aiwatch/internal/logging"
	"aiwatch/internal/recommendations"
	"aiwatch/internal/results"
)

type jobAction struct {
	JobID string `json:"jobId"`
}

// Retry asks the backend to re-run a job. Local state is untouched; the
// outcome arrives on the sync channel.
func (c *Client) Retry(ctx context.Context, jobID string) error {
	return c.jobAction(ctx, "retry", jobID)
}

// Cancel asks the backend to stop a job.
func (c *Client) Cancel(ctx context.Context, jobID string) error {
	return c.jobAction(ctx, "cancel", jobID)
}

func (c *Client) jobAction(ctx context.Context, action, jobID string) error {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return errors.New("job id is required")
	}
	if err := c.send(ctx, http.MethodPost, "/api/ai/video-processing/"+action, jobAction{JobID: jobID}); err != nil {
		return fmt.Errorf("%s job %s: %w", action, jobID, err)
	}
	c.logger.Info("job action accepted",
		logging.String("action", action),
		logging.String(logging.FieldJobID, jobID),
	)
	return nil
}

// ResolveError writes an error status change upstream.
func (c *Client) ResolveError(ctx context.Context, id string, status errorlog.Status) error {
	body := struct {
		Status errorlog.Status `json:"status"`
	}{Status: status}
	if err := c.send(ctx, http.MethodPatch, "/api/ai/errors/"+url.PathEscape(id), body); err != nil {
		return fmt.Errorf("update error %s: %w", id, err)
	}
	return nil
}

// SetRecommendationImplemented writes a recommendation flag upstream.
func (c *Client) SetRecommendationImplemented(ctx context.Context, id string, implemented bool) error {
	body := struct {
		Implemented bool `json:"implemented"`
	}{Implemented: implemented}
	if err := c.send(ctx, http.MethodPatch, "/api/ai/recommendations/"+url.PathEscape(id), body); err != nil {
		return fmt.Errorf("update recommendation %s: %w", id, err)
	}
	return nil
}

// FetchResult loads the processing result of one job.
func (c *Client) FetchResult(ctx context.Context, jobID string) (results.Result, error) {
	var result results.Result
	if err := c.getJSON(ctx, "/api/ai/results/"+url.PathEscape(jobID), nil, &result); err != nil {
		return results.Result{}, fmt.Errorf("fetch result %s: %w", jobID, err)
	}
	if result.JobID == "" {
		result.JobID = jobID
	}
	return result, nil
}

var (
	_ errorlog.Resolver       = (*Client)(nil)
	_ recommendations.Updater = (*Client)(nil)
	_ Puller                  = (*Client)(nil)
)
