package engine

import (
	"errors"
	"strings"

	"aiwatch/internal/backend"
	"aiwatch/internal/costs"
	"aiwatch/internal/jobs"
	"aiwatch/internal/logging"
	"aiwatch/internal/providers"
)

type mergeStats struct {
	applied int
	stale   int
	invalid int
	evicted int
}

// merge folds a pulled snapshot into the stores. Records are upserted under
// the same recency rule as channel events; only an unfiltered job listing is
// authoritative enough to evict.
func (e *Engine) merge(snap backend.Snapshot) {
	var stats mergeStats

	keep := make([]string, 0, len(snap.Jobs))
	for _, job := range snap.Jobs {
		keep = append(keep, strings.TrimSpace(job.ID))
		change, err := e.registry.Upsert(job)
		switch {
		case err == nil:
			if change.Modified {
				stats.applied++
			}
		case errors.Is(err, jobs.ErrStale):
			stats.stale++
		default:
			stats.invalid++
			logging.WarnWithContext(e.logger, "pulled job rejected", "refresh_job_invalid",
				logging.String(logging.FieldJobID, job.ID),
				logging.Error(err),
				logging.String(logging.FieldImpact, "local record kept as is"),
			)
		}
	}
	if !snap.JobsFiltered {
		evicted := e.registry.Retain(keep)
		for _, id := range evicted {
			e.results.Evict(id)
		}
		stats.evicted = len(evicted)
	}

	for _, entry := range snap.Costs {
		if entry.Timestamp.IsZero() {
			stats.invalid++
			logging.WarnWithContext(e.logger, "pulled cost entry rejected", "refresh_cost_invalid",
				logging.String("cost_id", entry.ID),
				logging.String(logging.FieldImpact, "entry left out of rollups"),
				logging.String(logging.FieldErrorHint, "backend returned a cost entry without a timestamp"),
			)
			continue
		}
		e.ledger.Record(costs.WithDerivedID(entry))
	}
	if snap.Quota != nil {
		e.quota.Set(*snap.Quota)
	}

	providerIDs := make([]string, 0, len(snap.Providers))
	for _, row := range snap.Providers {
		providerIDs = append(providerIDs, row.ID)
		if err := e.providers.Upsert(row); err != nil && !errors.Is(err, providers.ErrStale) {
			logging.WarnWithContext(e.logger, "pulled provider rejected", "refresh_provider_invalid",
				logging.String(logging.FieldProviderID, row.ID),
				logging.Error(err),
			)
		}
	}
	e.providers.Retain(providerIDs)
	e.models.Replace(snap.Models)
	e.errors.Replace(snap.Errors)
	e.recs.Replace(snap.Recommendations)

	e.logger.Info("full refresh merged",
		logging.Int("jobs", len(snap.Jobs)),
		logging.Int("applied", stats.applied),
		logging.Int("stale", stats.stale),
		logging.Int("invalid", stats.invalid),
		logging.Int("evicted", stats.evicted),
		logging.Bool("filtered", snap.JobsFiltered),
	)
}
