package engine

import (
	"context"
	"fmt"

	"aiwatch/internal/errorlog"
	"aiwatch/internal/jobs"
	"aiwatch/internal/logging"
	"aiwatch/internal/recommendations"
	"aiwatch/internal/results"
)

// Retry asks the backend to re-run a known job. Local state is untouched;
// the new status arrives over the channel or the next refresh.
func (e *Engine) Retry(ctx context.Context, jobID string) error {
	if _, ok := e.registry.Get(jobID); !ok {
		return fmt.Errorf("%w: %s", jobs.ErrUnknownJob, jobID)
	}
	return e.opts.Backend.Retry(ctx, jobID)
}

// Cancel asks the backend to stop a known job.
func (e *Engine) Cancel(ctx context.Context, jobID string) error {
	if _, ok := e.registry.Get(jobID); !ok {
		return fmt.Errorf("%w: %s", jobs.ErrUnknownJob, jobID)
	}
	return e.opts.Backend.Cancel(ctx, jobID)
}

// ResolveError changes an error's triage status. Remote entries are written
// upstream first and change locally only when that succeeds; locally raised
// entries have no upstream copy.
func (e *Engine) ResolveError(ctx context.Context, id, status string) (errorlog.Entry, error) {
	next, err := errorlog.ParseStatus(status)
	if err != nil {
		return errorlog.Entry{}, err
	}
	entry, ok := e.findError(id)
	if !ok {
		return errorlog.Entry{}, fmt.Errorf("%w: %s", errorlog.ErrNotFound, id)
	}
	if entry.Origin != errorlog.OriginLocal {
		if err := e.opts.Backend.ResolveError(ctx, id, next); err != nil {
			return errorlog.Entry{}, fmt.Errorf("resolve error %s: %w", id, err)
		}
	}

	var (
		updated  errorlog.Entry
		localErr error
	)
	if err := e.submit(ctx, func(loopCtx context.Context) {
		updated, localErr = e.errors.Resolve(loopCtx, id, string(next), nil)
	}); err != nil {
		return errorlog.Entry{}, err
	}
	if localErr != nil {
		return errorlog.Entry{}, localErr
	}
	e.logger.Info("error status updated",
		logging.String("error_id", id),
		logging.String("status", string(next)),
	)
	return updated, nil
}

func (e *Engine) findError(id string) (errorlog.Entry, bool) {
	for _, entry := range e.view.Load().Errors {
		if entry.ID == id {
			return entry, true
		}
	}
	return errorlog.Entry{}, false
}

// SetRecommendation flips a recommendation's implemented flag upstream and
// then locally.
func (e *Engine) SetRecommendation(ctx context.Context, id string, implemented bool) (recommendations.Recommendation, error) {
	found := false
	for _, rec := range e.view.Load().Recommendations {
		if rec.ID == id {
			found = true
			break
		}
	}
	if !found {
		return recommendations.Recommendation{}, fmt.Errorf("%w: %s", recommendations.ErrNotFound, id)
	}
	if err := e.opts.Backend.SetRecommendationImplemented(ctx, id, implemented); err != nil {
		return recommendations.Recommendation{}, fmt.Errorf("update recommendation %s: %w", id, err)
	}

	var (
		updated  recommendations.Recommendation
		localErr error
	)
	if err := e.submit(ctx, func(loopCtx context.Context) {
		updated, localErr = e.recs.SetImplemented(loopCtx, id, implemented, nil)
	}); err != nil {
		return recommendations.Recommendation{}, err
	}
	return updated, localErr
}

// Inspect returns the processing result for a job, fetching it on first use.
func (e *Engine) Inspect(ctx context.Context, jobID string) (results.Result, error) {
	if result, ok := e.results.Get(jobID); ok {
		return result, nil
	}
	if _, ok := e.registry.Get(jobID); !ok {
		return results.Result{}, fmt.Errorf("%w: %s", jobs.ErrUnknownJob, jobID)
	}
	result, err := e.opts.Backend.FetchResult(ctx, jobID)
	if err != nil {
		return results.Result{}, err
	}
	if err := e.submit(ctx, func(context.Context) {
		// A refresh may have evicted the job while the fetch was in flight.
		if _, ok := e.registry.Get(jobID); ok {
			e.results.Put(result)
		}
	}); err != nil {
		return results.Result{}, err
	}
	return result, nil
}
