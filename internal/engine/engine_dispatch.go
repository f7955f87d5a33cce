package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"aiwatch/internal/costs"
	"aiwatch/internal/errorlog"
	"aiwatch/internal/events"
	"aiwatch/internal/jobs"
	"aiwatch/internal/logging"
	"aiwatch/internal/providers"
	"aiwatch/internal/results"
)

// Outcome classifies what a merge did.
type Outcome string

const (
	OutcomeApplied Outcome = "applied"
	OutcomeStale   Outcome = "stale"
	OutcomeInvalid Outcome = "invalid"
	OutcomeIgnored Outcome = "ignored"
)

func (e *Engine) handleEvent(ctx context.Context, ev events.Event) {
	logger := e.eventLogger(ctx, ev)
	outcome, err := e.apply(ev)

	switch outcome {
	case OutcomeStale:
		logger.Debug("stale event discarded", logging.String(logging.FieldOutcome, string(outcome)))
	case OutcomeInvalid:
		logging.WarnWithContext(logger, "invalid event rejected", "event_invalid",
			logging.Error(err),
			logging.String(logging.FieldOutcome, string(outcome)),
			logging.String(logging.FieldImpact, "event not applied; state unchanged"),
			logging.String(logging.FieldErrorHint, "likely a duplicate or out-of-order event; the next refresh reconciles"),
		)
	default:
		attrs := []logging.Attr{logging.String(logging.FieldOutcome, string(outcome))}
		if err != nil {
			attrs = append(attrs, logging.Error(err))
		}
		logger.Debug("event merged", logging.Args(attrs...)...)
	}
	e.recorder.EventOutcome(string(ev.Kind()), string(outcome))
	if outcome == OutcomeApplied {
		e.publish()
	}
}

func (e *Engine) eventLogger(ctx context.Context, ev events.Event) *slog.Logger {
	switch typed := ev.(type) {
	case events.StatusUpdate:
		ctx = logging.WithJobID(ctx, typed.JobID)
	case events.ProcessingComplete:
		ctx = logging.WithJobID(ctx, typed.JobID)
	case events.ProcessingError:
		ctx = logging.WithJobID(ctx, typed.JobID)
	case events.TranscriptionComplete:
		ctx = logging.WithJobID(ctx, typed.JobID)
	case events.ChaptersComplete:
		ctx = logging.WithJobID(ctx, typed.JobID)
	case events.AnalyticsUpdate:
		ctx = logging.WithJobID(ctx, typed.JobID)
	case events.ProviderStatus:
		ctx = logging.WithProviderID(ctx, typed.ProviderID)
	}
	return logging.WithContext(ctx, e.logger).With(logging.String(logging.FieldEventType, string(ev.Kind())))
}

// apply merges one event into the stores. It never performs I/O; follow-up
// pulls are requested asynchronously.
func (e *Engine) apply(ev events.Event) (Outcome, error) {
	switch typed := ev.(type) {
	case events.StatusUpdate:
		change, err := e.registry.Apply(typed.JobID, typed.Patch, typed.At())
		outcome, err := e.classifyJob(err, change.Modified)
		if outcome == OutcomeApplied && change.EnteredFailed() {
			e.raiseJobFailed(change.Job)
		}
		return outcome, err

	case events.TranscriptionComplete:
		return e.replaceSection(typed.JobID, results.Update{Section: results.SectionTranscription, Transcription: typed.Segments})
	case events.ChaptersComplete:
		return e.replaceSection(typed.JobID, results.Update{Section: results.SectionChapters, Chapters: typed.Chapters})
	case events.AnalyticsUpdate:
		return e.replaceSection(typed.JobID, results.Update{Section: results.SectionAnalytics, Analytics: typed.Analytics})

	case events.ProcessingComplete:
		status := jobs.StatusCompleted
		progress := 100
		change, err := e.registry.Apply(typed.JobID, jobs.Patch{Status: &status, Progress: &progress}, typed.At())
		outcome, err := e.classifyJob(err, change.Modified)
		if !errors.Is(err, jobs.ErrUnknownJob) {
			// Progress events may have been dropped while processing.
			e.RequestRefresh("processing_complete")
		}
		return outcome, err

	case events.ProcessingError:
		status := jobs.StatusFailed
		message := typed.Message
		change, err := e.registry.Apply(typed.JobID, jobs.Patch{Status: &status, Error: &message}, typed.At())
		outcome, err := e.classifyJob(err, change.Modified)
		if outcome == OutcomeStale || outcome == OutcomeInvalid {
			return outcome, err
		}
		_, added := e.errors.Append(errorlog.Entry{
			ID:        processingErrorID(typed),
			Timestamp: typed.At().UTC(),
			JobID:     typed.JobID,
			Provider:  typed.Provider,
			Code:      errorlog.CodeProcessingError,
			Message:   message,
			Impact:    errorlog.ImpactMedium,
			Origin:    errorlog.OriginRemote,
		})
		if added {
			outcome = OutcomeApplied
		}
		return outcome, err

	case events.ProviderStatus:
		_, err := e.providers.Apply(typed.ProviderID, typed.Patch, typed.At())
		switch {
		case err == nil:
			return OutcomeApplied, nil
		case errors.Is(err, providers.ErrStale):
			return OutcomeStale, err
		case errors.Is(err, providers.ErrUnknownProvider):
			e.RequestRefresh("unknown_provider")
			return OutcomeIgnored, err
		default:
			return OutcomeInvalid, err
		}

	case events.CostRecorded:
		entry := typed.Entry
		if entry.OwnerID != "" && e.opts.OwnerID != "" && entry.OwnerID != e.opts.OwnerID {
			return OutcomeIgnored, fmt.Errorf("cost entry %s belongs to another owner", entry.ID)
		}
		if entry.Timestamp.IsZero() {
			entry.Timestamp = typed.At()
		}
		entry = costs.WithDerivedID(entry)
		if !e.ledger.Record(entry) {
			return OutcomeIgnored, nil
		}
		return OutcomeApplied, nil

	case events.Pong, events.Authenticated:
		return OutcomeIgnored, nil

	default:
		return OutcomeIgnored, fmt.Errorf("unhandled event type %q", ev.Kind())
	}
}

// classifyJob maps a registry result to an outcome. An unknown job triggers
// a refresh so the record gets created from the authoritative list.
func (e *Engine) classifyJob(err error, modified bool) (Outcome, error) {
	switch {
	case err == nil && modified:
		return OutcomeApplied, nil
	case err == nil:
		return OutcomeIgnored, nil
	case errors.Is(err, jobs.ErrStale):
		return OutcomeStale, err
	case errors.Is(err, jobs.ErrUnknownJob):
		e.RequestRefresh("unknown_job")
		return OutcomeIgnored, err
	default:
		return OutcomeInvalid, err
	}
}

func (e *Engine) replaceSection(jobID string, update results.Update) (Outcome, error) {
	if e.results.ReplaceSection(jobID, update) {
		return OutcomeApplied, nil
	}
	// Results are fetched lazily on inspection, which picks up this section.
	return OutcomeIgnored, nil
}

// raiseJobFailed records a local error for a job seen failing without any
// error entry. Entries are keyed by job so repeats collapse.
func (e *Engine) raiseJobFailed(job jobs.Job) {
	if e.errors.HasForJob(job.ID) {
		return
	}
	message := job.Error
	if message == "" {
		message = "job failed without an error report"
	}
	e.errors.Append(errorlog.Entry{
		ID:        "local-" + job.ID + "-failed",
		Timestamp: job.UpdatedAt.UTC(),
		JobID:     job.ID,
		Provider:  job.Options.PreferredProvider,
		Code:      errorlog.CodeJobFailed,
		Message:   message,
		Impact:    errorlog.ImpactMedium,
		Origin:    errorlog.OriginLocal,
	})
}

// processingErrorID derives a stable id so a replayed event does not
// duplicate its error entry.
func processingErrorID(ev events.ProcessingError) string {
	return fmt.Sprintf("evt-%s-%d", ev.JobID, ev.At().UnixMilli())
}
