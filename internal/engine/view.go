package engine

import (
	"time"

	"aiwatch/internal/channel"
	"aiwatch/internal/costs"
	"aiwatch/internal/errorlog"
	"aiwatch/internal/jobs"
	"aiwatch/internal/providers"
	"aiwatch/internal/quota"
	"aiwatch/internal/recommendations"
	"aiwatch/internal/statestore"
)

// View is a frozen, derived picture of every store.
type View struct {
	Jobs         []jobs.Job          `json:"jobs" yaml:"jobs"`
	StatusCounts map[jobs.Status]int `json:"status_counts" yaml:"status_counts"`

	CostRange costs.DateRange `json:"cost_range" yaml:"cost_range"`
	Rollups   []costs.Rollup  `json:"rollups" yaml:"rollups"`
	CostTotal costs.Micros    `json:"cost_total_micros" yaml:"cost_total_micros"`
	Breakdown []costs.Slice   `json:"breakdown" yaml:"breakdown"`
	CostAlert bool            `json:"cost_alert" yaml:"cost_alert"`

	Quota      *quota.Usage `json:"quota,omitempty" yaml:"quota,omitempty"`
	QuotaRatio float64      `json:"quota_ratio" yaml:"quota_ratio"`

	Providers            []providers.Status       `json:"providers" yaml:"providers"`
	OperationalProviders int                      `json:"operational_providers" yaml:"operational_providers"`
	Models               []providers.ModelMetrics `json:"models" yaml:"models"`

	Errors      []errorlog.Entry        `json:"errors" yaml:"errors"`
	ErrorCounts map[errorlog.Status]int `json:"error_counts" yaml:"error_counts"`

	Recommendations  []recommendations.Recommendation `json:"recommendations" yaml:"recommendations"`
	PotentialSavings float64                          `json:"potential_savings" yaml:"potential_savings"`

	Channel          channel.Status `json:"channel" yaml:"channel"`
	LastRefresh      time.Time      `json:"last_refresh,omitzero" yaml:"last_refresh,omitempty"`
	LastRefreshError string         `json:"last_refresh_error,omitempty" yaml:"last_refresh_error,omitempty"`
	GeneratedAt      time.Time      `json:"generated_at" yaml:"generated_at"`
}

// View returns the latest view. The channel status is always current.
func (e *Engine) View() View {
	v := *e.view.Load()
	v.Channel = e.channelStatus()
	return v
}

// Subscribe returns a channel that receives the latest view after each
// change. Slow subscribers only ever see the newest view. Call cancel to
// unsubscribe.
func (e *Engine) Subscribe() (<-chan View, func()) {
	ch := make(chan View, 1)
	ch <- e.View()

	e.subsMu.Lock()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = ch
	e.subsMu.Unlock()
	return ch, func() {
		e.subsMu.Lock()
		defer e.subsMu.Unlock()
		if _, ok := e.subs[id]; ok {
			delete(e.subs, id)
			close(ch)
		}
	}
}

func (e *Engine) costRange() costs.DateRange {
	return costs.LastDays(e.now(), e.opts.CostRangeDays)
}

// publish recomputes the view from the stores. Only the loop (or New and
// Restore before the loop starts) calls it.
func (e *Engine) publish() {
	costRange := e.costRange()
	rollups := e.ledger.Rollup(costRange)
	total := costs.SumTotals(rollups)

	v := &View{
		Jobs:         e.registry.Snapshot(),
		StatusCounts: e.registry.StatusCounts(),
		CostRange:    costRange,
		Rollups:      rollups,
		CostTotal:    total,
		Breakdown:    costs.Breakdown(rollups),
		CostAlert:    costs.AlertExceeded(total, e.opts.CostAlertThreshold),
		QuotaRatio:   e.quota.Ratio(),
		Providers:    e.providers.Snapshot(),
		Models:       e.models.Snapshot(),
		Errors:       e.errors.Snapshot(),

		Recommendations:  e.recs.Snapshot(),
		LastRefresh:      e.lastRefresh,
		LastRefreshError: e.lastRefreshErr,
		GeneratedAt:      e.now().UTC(),
	}
	if usage, ok := e.quota.Usage(); ok {
		v.Quota = &usage
	}
	v.OperationalProviders = providers.CountOperational(v.Providers)
	v.ErrorCounts = errorlog.CountByStatus(v.Errors)
	v.PotentialSavings = recommendations.PotentialSavings(v.Recommendations)

	e.view.Store(v)
	e.recorder.StateObserved(v.StatusCounts, v.CostTotal, v.QuotaRatio)
	e.broadcast()
}

func (e *Engine) broadcast() {
	v := e.View()
	e.subsMu.Lock()
	defer e.subsMu.Unlock()
	for _, ch := range e.subs {
		select {
		case <-ch:
		default:
		}
		ch <- v
	}
}

func (e *Engine) stateSnapshot() statestore.Snapshot {
	v := e.view.Load()
	return statestore.Snapshot{
		Jobs:            v.Jobs,
		Costs:           e.ledger.Entries(),
		Quota:           v.Quota,
		Providers:       v.Providers,
		Models:          v.Models,
		Errors:          v.Errors,
		Recommendations: v.Recommendations,
		SavedAt:         e.now().UTC(),
	}
}
