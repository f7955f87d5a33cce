package engine

import (
	"context"
	"errors"
	"time"

	"aiwatch/internal/backend"
	"aiwatch/internal/logging"
)

const shutdownSaveTimeout = 5 * time.Second

// Run processes events, refreshes and commands until ctx is cancelled. A
// startup refresh is requested immediately. On exit the state is persisted
// and nothing further is applied.
func (e *Engine) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return errors.New("engine already running")
	}
	defer close(e.stopped)

	var ticker <-chan time.Time
	if e.opts.RefreshInterval > 0 {
		t := time.NewTicker(e.opts.RefreshInterval)
		defer t.Stop()
		ticker = t.C
	}

	e.logger.Info("engine started",
		logging.String("owner_id", e.opts.OwnerID),
		logging.Duration("refresh_interval", e.opts.RefreshInterval),
	)
	e.scheduleRefresh(ctx, refreshRequest{reason: "startup"})

	for {
		select {
		case <-ctx.Done():
			e.shutdown()
			return nil
		case ev := <-e.inbox:
			if ctx.Err() != nil {
				continue
			}
			e.handleEvent(ctx, ev)
		case cmd := <-e.commands:
			cmd(ctx)
			e.publish()
		case req := <-e.refreshes:
			e.scheduleRefresh(ctx, req)
		case reason := <-e.autoReqs:
			e.scheduleRefresh(ctx, refreshRequest{reason: reason})
		case res := <-e.pulled:
			e.onPulled(ctx, res)
		case <-ticker:
			e.scheduleRefresh(ctx, refreshRequest{reason: "periodic"})
		case <-e.deferredC:
			e.deferred, e.deferredC = nil, nil
			e.startRefresh(ctx, "deferred", nil)
		case <-e.dirty:
			e.broadcast()
		}
	}
}

func (e *Engine) shutdown() {
	if e.deferred != nil {
		e.deferred.Stop()
	}
	for _, ch := range append(e.waiters, e.pendingWaiters...) {
		ch <- context.Canceled
	}
	e.waiters, e.pendingWaiters = nil, nil
	e.sinkWG.Wait()

	if e.opts.Store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownSaveTimeout)
		defer cancel()
		if err := e.opts.Store.Save(ctx, e.stateSnapshot()); err != nil {
			logging.WarnWithContext(e.logger, "state cache save failed on shutdown", "state_save_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "next start serves older cached state"),
				logging.String(logging.FieldErrorHint, "check state_dir permissions"),
			)
		}
	}
	e.logger.Info("engine stopped")
}

// RequestRefresh asks for a full refresh without waiting for it. Requests
// made before the loop picks up a pending one collapse into it. Automatic
// requests share the rate limit with manual ones and are deferred, not
// dropped, when throttled.
func (e *Engine) RequestRefresh(reason string) {
	select {
	case e.autoReqs <- reason:
	default:
	}
}

// Refresh performs a manual full refresh and waits for its outcome. It
// returns ErrRefreshThrottled when called sooner than the minimum interval.
func (e *Engine) Refresh(ctx context.Context) error {
	req := refreshRequest{reason: "manual", manual: true, done: make(chan error, 1)}
	select {
	case e.refreshes <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-e.stopped:
		return ErrStopped
	}
	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-e.stopped:
		return ErrStopped
	}
}

func (e *Engine) scheduleRefresh(ctx context.Context, req refreshRequest) {
	if req.manual {
		if !e.limiter.Allow() {
			req.done <- ErrRefreshThrottled
			return
		}
		e.startRefresh(ctx, req.reason, req.done)
		return
	}

	reservation := e.limiter.Reserve()
	delay := reservation.Delay()
	if delay <= 0 {
		e.startRefresh(ctx, req.reason, nil)
		return
	}
	if e.deferred != nil {
		reservation.Cancel()
		return
	}
	e.logger.Debug("refresh deferred by rate limit",
		logging.String("reason", req.reason),
		logging.Duration("delay", delay),
	)
	e.deferred = time.NewTimer(delay)
	e.deferredC = e.deferred.C
}

func (e *Engine) startRefresh(ctx context.Context, reason string, done chan error) {
	if e.inFlight {
		e.pending = true
		if done != nil {
			e.pendingWaiters = append(e.pendingWaiters, done)
		}
		return
	}
	e.inFlight = true
	if done != nil {
		e.waiters = append(e.waiters, done)
	}
	query := backend.Query{Jobs: e.opts.JobFilter, Costs: e.costRange()}
	e.logger.Debug("full refresh started", logging.String("reason", reason))

	go func() {
		started := time.Now()
		snap, err := e.opts.Backend.Pull(ctx, query)
		res := pullResult{snap: snap, err: err, elapsed: time.Since(started)}
		select {
		case e.pulled <- res:
		case <-e.stopped:
		}
	}()
}

func (e *Engine) onPulled(ctx context.Context, res pullResult) {
	e.inFlight = false
	waiters := e.waiters
	e.waiters = nil

	err := res.err
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		e.recorder.RefreshDone("error", res.elapsed)
		if ctx.Err() == nil {
			e.lastRefreshErr = err.Error()
			logging.WarnWithContext(e.logger, "full refresh failed; keeping last known state", "refresh_failed",
				logging.Error(err),
				logging.Duration("elapsed", res.elapsed),
				logging.String(logging.FieldImpact, "view may lag the backend until the next refresh"),
				logging.String(logging.FieldErrorHint, "check backend.base_url and backend.api_token"),
			)
			e.publish()
		}
	} else {
		e.merge(res.snap)
		e.lastRefresh = res.snap.FetchedAt
		if e.lastRefresh.IsZero() {
			e.lastRefresh = e.now().UTC()
		}
		e.lastRefreshErr = ""
		e.recorder.RefreshDone("ok", res.elapsed)
		e.publish()
		e.persist(ctx)
		e.writeSink(ctx)
	}
	for _, ch := range waiters {
		ch <- err
	}

	if e.pending && ctx.Err() == nil {
		e.pending = false
		next := e.pendingWaiters
		e.pendingWaiters = nil
		e.startRefresh(ctx, "pending", nil)
		e.waiters = append(e.waiters, next...)
	}
}

func (e *Engine) persist(ctx context.Context) {
	if e.opts.Store == nil {
		return
	}
	if err := e.opts.Store.Save(ctx, e.stateSnapshot()); err != nil {
		logging.WarnWithContext(e.logger, "state cache save failed", "state_save_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "a restart may serve older cached state"),
			logging.String(logging.FieldErrorHint, "check state_dir permissions and free space"),
		)
	}
}

func (e *Engine) writeSink(ctx context.Context) {
	if e.opts.Sink == nil {
		return
	}
	rollups := e.view.Load().Rollups
	e.sinkWG.Add(1)
	go func() {
		defer e.sinkWG.Done()
		if err := e.opts.Sink.WriteRollups(ctx, e.opts.OwnerID, rollups); err != nil && ctx.Err() == nil {
			logging.WarnWithContext(e.logger, "cost sink write failed", "cost_sink_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "cost time series misses this refresh"),
				logging.String(logging.FieldErrorHint, "check the [influx] settings"),
			)
		}
	}()
}
