package backend

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"golang.org/x/sync/errgroup"

	"aiwatch/internal/costs"
	"aiwatch/internal/errorlog"
	"aiwatch/internal/jobs"
	"aiwatch/internal/logging"
	"aiwatch/internal/providers"
	"aiwatch/internal/quota"
	"aiwatch/internal/recommendations"
)

// Query scopes a full-refresh pull.
type Query struct {
	Jobs  jobs.Filter
	Costs costs.DateRange
}

// Snapshot is the result of one successful full-refresh pull.
type Snapshot struct {
	Jobs []jobs.Job
	// JobsFiltered is set when the job listing was narrowed by Query.Jobs,
	// so absence from Jobs says nothing about a job's existence.
	JobsFiltered    bool
	Costs           []costs.Entry
	CostRange       costs.DateRange
	Quota           *quota.Usage
	Providers       []providers.Status
	Models          []providers.ModelMetrics
	Errors          []errorlog.Entry
	Recommendations []recommendations.Recommendation
	FetchedAt       time.Time
}

// Puller performs full-refresh pulls.
type Puller interface {
	Pull(ctx context.Context, q Query) (Snapshot, error)
}

// Pull fetches every read endpoint concurrently. Any failure fails the pull.
func (c *Client) Pull(ctx context.Context, q Query) (Snapshot, error) {
	started := time.Now()
	snap := Snapshot{JobsFiltered: !q.Jobs.IsZero(), CostRange: q.Costs}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.getJSON(gctx, "/api/ai/jobs", jobQuery(q.Jobs), &snap.Jobs)
	})
	g.Go(func() error {
		return c.getJSON(gctx, "/api/ai/costs", rangeQuery(q.Costs), &snap.Costs)
	})
	g.Go(func() error {
		var usage quota.Usage
		err := c.getJSON(gctx, "/api/ai/quota", nil, &usage)
		switch {
		case IsNotFound(err):
			return nil
		case err != nil:
			return err
		}
		snap.Quota = &usage
		return nil
	})
	g.Go(func() error {
		return c.getJSON(gctx, "/api/ai/providers", nil, &snap.Providers)
	})
	g.Go(func() error {
		return c.getJSON(gctx, "/api/ai/models", nil, &snap.Models)
	})
	g.Go(func() error {
		return c.getJSON(gctx, "/api/ai/errors", nil, &snap.Errors)
	})
	g.Go(func() error {
		return c.getJSON(gctx, "/api/ai/recommendations", nil, &snap.Recommendations)
	})
	if err := g.Wait(); err != nil {
		return Snapshot{}, fmt.Errorf("full refresh: %w", err)
	}

	for i := range snap.Errors {
		snap.Errors[i].Origin = errorlog.OriginRemote
	}
	snap.FetchedAt = time.Now().UTC()
	c.logger.Debug("full refresh pulled",
		logging.Int("jobs", len(snap.Jobs)),
		logging.Int("cost_entries", len(snap.Costs)),
		logging.Int("providers", len(snap.Providers)),
		logging.Int("errors", len(snap.Errors)),
		logging.Duration("elapsed", time.Since(started)),
	)
	return snap, nil
}

func jobQuery(f jobs.Filter) url.Values {
	q := url.Values{}
	if !f.From.IsZero() {
		q.Set("from", f.From.UTC().Format(time.RFC3339))
	}
	if !f.To.IsZero() {
		q.Set("to", f.To.UTC().Format(time.RFC3339))
	}
	if f.Status != "" {
		q.Set("status", string(f.Status))
	}
	if f.Provider != "" {
		q.Set("provider", f.Provider)
	}
	if f.Search != "" {
		q.Set("search", f.Search)
	}
	return q
}

func rangeQuery(r costs.DateRange) url.Values {
	q := url.Values{}
	if r.From != "" {
		q.Set("from", string(r.From))
	}
	if r.To != "" {
		q.Set("to", string(r.To))
	}
	return q
}
