package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"aiwatch/internal/backend"
	"aiwatch/internal/channel"
	"aiwatch/internal/config"
	"aiwatch/internal/costs"
	"aiwatch/internal/errorlog"
	"aiwatch/internal/events"
	"aiwatch/internal/jobs"
	"aiwatch/internal/logging"
	"aiwatch/internal/providers"
	"aiwatch/internal/quota"
	"aiwatch/internal/recommendations"
	"aiwatch/internal/results"
	"aiwatch/internal/statestore"
)

var (
	// ErrStopped is returned by calls made after Run has exited.
	ErrStopped = errors.New("engine stopped")
	// ErrRefreshThrottled is returned when a manual refresh arrives sooner
	// than the configured minimum interval.
	ErrRefreshThrottled = errors.New("refresh throttled")
)

// Backend is the upstream the engine pulls from and writes through to.
type Backend interface {
	backend.Puller
	errorlog.Resolver
	recommendations.Updater
	Retry(ctx context.Context, jobID string) error
	Cancel(ctx context.Context, jobID string) error
	FetchResult(ctx context.Context, jobID string) (results.Result, error)
}

// StateStore persists the last known state.
type StateStore interface {
	Save(ctx context.Context, snap statestore.Snapshot) error
}

// CostSink receives daily rollups after each refresh.
type CostSink interface {
	WriteRollups(ctx context.Context, ownerID string, rollups []costs.Rollup) error
}

// Options configures an Engine. Backend is required.
type Options struct {
	Backend  Backend
	Store    StateStore
	Sink     CostSink
	Recorder Recorder
	Logger   *slog.Logger

	OwnerID            string
	JobFilter          jobs.Filter
	CostRangeDays      int
	CostAlertThreshold float64
	// RefreshInterval schedules periodic pulls; zero disables them.
	RefreshInterval    time.Duration
	RefreshMinInterval time.Duration

	Now func() time.Time
}

// OptionsFromConfig fills the tunables of Options from cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		OwnerID:            cfg.Backend.OwnerID,
		CostRangeDays:      cfg.Refresh.DefaultRangeDays,
		CostAlertThreshold: cfg.Costs.AlertThreshold,
		RefreshInterval:    cfg.RefreshInterval(),
		RefreshMinInterval: cfg.RefreshMinInterval(),
	}
}

type command func(ctx context.Context)

type refreshRequest struct {
	reason string
	manual bool
	done   chan error
}

type pullResult struct {
	snap    backend.Snapshot
	err     error
	elapsed time.Duration
}

// Engine reconciles channel events and pulls into the in-memory stores.
type Engine struct {
	opts     Options
	logger   *slog.Logger
	recorder Recorder
	now      func() time.Time

	registry  *jobs.Registry
	ledger    *costs.Ledger
	quota     *quota.Tracker
	providers *providers.Table
	models    *providers.Models
	errors    *errorlog.Log
	recs      *recommendations.Adapter
	results   *results.Cache

	inbox     chan events.Event
	commands  chan command
	refreshes chan refreshRequest
	autoReqs  chan string
	pulled    chan pullResult
	dirty     chan struct{}
	stopped   chan struct{}
	running   atomic.Bool

	limiter *rate.Limiter

	// Loop-owned refresh bookkeeping.
	inFlight       bool
	pending        bool
	waiters        []chan error
	pendingWaiters []chan error
	deferred       *time.Timer
	deferredC      <-chan time.Time
	lastRefresh    time.Time
	lastRefreshErr string

	sinkWG sync.WaitGroup

	view atomic.Pointer[View]

	subsMu  sync.Mutex
	subs    map[int]chan View
	nextSub int

	channelMu sync.Mutex
	channel   channel.Status
}

// New constructs an idle engine.
func New(opts Options) (*Engine, error) {
	if opts.Backend == nil {
		return nil, errors.New("engine backend is required")
	}
	if opts.Recorder == nil {
		opts.Recorder = NopRecorder{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.CostRangeDays <= 0 {
		opts.CostRangeDays = 30
	}
	limit := rate.Inf
	if opts.RefreshMinInterval > 0 {
		limit = rate.Every(opts.RefreshMinInterval)
	}

	e := &Engine{
		opts:      opts,
		logger:    logging.NewComponentLogger(opts.Logger, "engine"),
		recorder:  opts.Recorder,
		now:       opts.Now,
		registry:  jobs.NewRegistry(),
		ledger:    costs.NewLedger(),
		quota:     quota.NewTracker(),
		providers: providers.NewTable(),
		models:    providers.NewModels(),
		errors:    errorlog.New(),
		recs:      recommendations.New(),
		results:   results.NewCache(),
		inbox:     make(chan events.Event, 256),
		commands:  make(chan command),
		refreshes: make(chan refreshRequest),
		autoReqs:  make(chan string, 1),
		pulled:    make(chan pullResult),
		dirty:     make(chan struct{}, 1),
		stopped:   make(chan struct{}),
		limiter:   rate.NewLimiter(limit, 1),
		subs:      make(map[int]chan View),
	}
	e.publish()
	return e, nil
}

// Restore seeds the stores from a persisted snapshot. It must be called
// before Run.
func (e *Engine) Restore(snap statestore.Snapshot) {
	for _, job := range snap.Jobs {
		if _, err := e.registry.Upsert(job); err != nil {
			e.logger.Debug("skipping cached job", logging.String(logging.FieldJobID, job.ID), logging.Error(err))
		}
	}
	for _, entry := range snap.Costs {
		e.ledger.Record(costs.WithDerivedID(entry))
	}
	if snap.Quota != nil {
		e.quota.Set(*snap.Quota)
	}
	for _, row := range snap.Providers {
		_ = e.providers.Upsert(row)
	}
	e.models.Replace(snap.Models)
	e.errors.Restore(snap.Errors)
	e.recs.Replace(snap.Recommendations)
	e.lastRefresh = snap.SavedAt
	e.publish()
	e.logger.Info("restored cached state",
		logging.Int("jobs", len(snap.Jobs)),
		logging.Int("cost_entries", len(snap.Costs)),
		logging.String("saved_at", snap.SavedAt.Format(time.RFC3339)),
	)
}

// Deliver implements channel.Sink. It blocks until the loop accepts ev, ctx
// is done, or the engine stops.
func (e *Engine) Deliver(ctx context.Context, ev events.Event) {
	select {
	case e.inbox <- ev:
	case <-ctx.Done():
	case <-e.stopped:
	}
}

// ChannelStatus implements channel.Observer.
func (e *Engine) ChannelStatus(st channel.Status) {
	e.channelMu.Lock()
	e.channel = st
	e.channelMu.Unlock()
	select {
	case e.dirty <- struct{}{}:
	default:
	}
}

// ChannelReconnect implements channel.Observer.
func (e *Engine) ChannelReconnect() {}

// HeartbeatLatency implements channel.Observer.
func (e *Engine) HeartbeatLatency(time.Duration) {}

func (e *Engine) channelStatus() channel.Status {
	e.channelMu.Lock()
	defer e.channelMu.Unlock()
	return e.channel
}

// submit runs fn on the loop and waits for it.
func (e *Engine) submit(ctx context.Context, fn command) error {
	done := make(chan struct{})
	wrapped := func(loopCtx context.Context) {
		defer close(done)
		fn(loopCtx)
	}
	select {
	case e.commands <- wrapped:
	case <-ctx.Done():
		return ctx.Err()
	case <-e.stopped:
		return ErrStopped
	}
	// An accepted command always runs to completion on the loop.
	<-done
	return nil
}

var (
	_ channel.Sink     = (*Engine)(nil)
	_ channel.Observer = (*Engine)(nil)
)
