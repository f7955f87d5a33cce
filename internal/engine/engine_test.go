package engine_test

import (
	"context"
	"errors"
	"runtime"
	"slices"
	"testing"
	"time"

	"aiwatch/internal/backend"
	"aiwatch/internal/costs"
	"aiwatch/internal/engine"
	"aiwatch/internal/errorlog"
	"aiwatch/internal/events"
	"aiwatch/internal/jobs"
	"aiwatch/internal/providers"
	"aiwatch/internal/recommendations"
	"aiwatch/internal/results"
	"aiwatch/internal/testsupport"
)

func ptr[T any](v T) *T { return &v }

func statusUpdate(jobID string, status jobs.Status, progress int, at time.Time) events.StatusUpdate {
	return events.StatusUpdate{
		Header: events.Header{Timestamp: at},
		JobID:  jobID,
		Patch:  jobs.Patch{Status: ptr(status), Progress: ptr(progress)},
	}
}

func TestStaleStatusUpdateDoesNotRegress(t *testing.T) {
	fb := newFakeBackend(job("J1", jobs.StatusQueued, 0, t0))
	h := startEngine(t, fb, nil)

	h.deliver(t,
		statusUpdate("J1", jobs.StatusProcessing, 40, t0.Add(time.Minute)),
		statusUpdate("J1", jobs.StatusQueued, 0, t0.Add(30*time.Second)),
	)

	got := findJob(t, h.engine.View(), "J1")
	if got.Status != jobs.StatusProcessing || got.Progress != 40 {
		t.Fatalf("expected processing/40, got %s/%d", got.Status, got.Progress)
	}
	want := []string{"status_update:applied", "status_update:stale"}
	if outcomes := h.recorder.Outcomes(); !slices.Equal(outcomes, want) {
		t.Fatalf("outcomes = %v, want %v", outcomes, want)
	}
}

func TestInvalidTransitionIsRejected(t *testing.T) {
	fb := newFakeBackend(job("J1", jobs.StatusCompleted, 100, t0))
	h := startEngine(t, fb, nil)

	h.deliver(t, statusUpdate("J1", jobs.StatusProcessing, 10, t0.Add(time.Minute)))

	got := findJob(t, h.engine.View(), "J1")
	if got.Status != jobs.StatusCompleted || got.Progress != 100 {
		t.Fatalf("completed job must not move back, got %s/%d", got.Status, got.Progress)
	}
	if outcomes := h.recorder.Outcomes(); !slices.Equal(outcomes, []string{"status_update:invalid"}) {
		t.Fatalf("unexpected outcomes %v", outcomes)
	}
}

func TestRefreshEvictsAbsentJobsAndKeepsPresentOnes(t *testing.T) {
	fb := newFakeBackend(
		job("J1", jobs.StatusQueued, 0, t0),
		job("J2", jobs.StatusQueued, 0, t0),
		job("J3", jobs.StatusQueued, 0, t0),
	)
	h := startEngine(t, fb, nil)
	if ids := jobIDs(h.engine.View()); len(ids) != 3 {
		t.Fatalf("expected 3 jobs after startup, got %v", ids)
	}

	// J2 moves ahead locally; the pull carries an older copy of it.
	h.deliver(t, statusUpdate("J2", jobs.StatusProcessing, 70, t0.Add(10*time.Minute)))
	fb.setSnapshot(backend.Snapshot{Jobs: []jobs.Job{
		job("J2", jobs.StatusProcessing, 20, t0.Add(5*time.Minute)),
		job("J3", jobs.StatusQueued, 0, t0),
		job("J4", jobs.StatusQueued, 0, t0),
	}})
	if err := h.engine.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	ids := jobIDs(h.engine.View())
	slices.Sort(ids)
	if !slices.Equal(ids, []string{"J2", "J3", "J4"}) {
		t.Fatalf("unexpected jobs after refresh: %v", ids)
	}
	if got := findJob(t, h.engine.View(), "J2"); got.Progress != 70 {
		t.Fatalf("pull must not override a newer local record, got progress %d", got.Progress)
	}
}

func TestFilteredRefreshDoesNotEvict(t *testing.T) {
	fb := newFakeBackend(job("J1", jobs.StatusFailed, 0, t0), job("J2", jobs.StatusQueued, 0, t0))
	h := startEngine(t, fb, func(o *engine.Options) {
		o.JobFilter = jobs.Filter{Status: jobs.StatusFailed}
	})

	fb.setSnapshot(backend.Snapshot{Jobs: []jobs.Job{job("J1", jobs.StatusFailed, 0, t0)}})
	if err := h.engine.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if ids := jobIDs(h.engine.View()); len(ids) != 2 {
		t.Fatalf("filtered pull must not evict, got %v", ids)
	}
}

func TestFailedRefreshKeepsLastKnownState(t *testing.T) {
	fb := newFakeBackend(job("J1", jobs.StatusProcessing, 10, t0))
	h := startEngine(t, fb, nil)

	fb.setSnapshot(backend.Snapshot{})
	fb.setPullErr(errors.New("backend down"))
	if err := h.engine.Refresh(context.Background()); err == nil {
		t.Fatal("expected refresh error")
	}
	v := h.engine.View()
	if len(v.Jobs) != 1 {
		t.Fatalf("failed pull must leave state untouched, got %v", jobIDs(v))
	}
	if v.LastRefreshError == "" {
		t.Fatal("expected last refresh error in view")
	}
}

func TestManualRefreshIsThrottled(t *testing.T) {
	fb := newFakeBackend()
	h := startEngine(t, fb, func(o *engine.Options) {
		o.RefreshMinInterval = time.Hour
	})

	if err := h.engine.Refresh(context.Background()); !errors.Is(err, engine.ErrRefreshThrottled) {
		t.Fatalf("expected ErrRefreshThrottled, got %v", err)
	}
	if fb.pullCount() != 1 {
		t.Fatalf("expected only the startup pull, got %d", fb.pullCount())
	}
}

func TestProcessingErrorFailsJobAndLogsOnce(t *testing.T) {
	fb := newFakeBackend(job("J1", jobs.StatusProcessing, 50, t0))
	h := startEngine(t, fb, nil)

	ev := events.ProcessingError{
		Header:   events.Header{Timestamp: t0.Add(time.Minute)},
		JobID:    "J1",
		Provider: "openai",
		Message:  "model overloaded",
	}
	h.deliver(t, ev, ev)

	v := h.engine.View()
	got := findJob(t, v, "J1")
	if got.Status != jobs.StatusFailed || got.Error != "model overloaded" || got.CompletedAt == nil {
		t.Fatalf("unexpected job after processing error: %+v", got)
	}
	if len(v.Errors) != 1 {
		t.Fatalf("expected one error entry, got %+v", v.Errors)
	}
	entry := v.Errors[0]
	if entry.Code != errorlog.CodeProcessingError || entry.Status != errorlog.StatusNew || entry.Impact != errorlog.ImpactMedium {
		t.Fatalf("unexpected error entry %+v", entry)
	}
	if entry.JobID != "J1" || entry.Provider != "openai" {
		t.Fatalf("unexpected error references %+v", entry)
	}
}

func TestStatusUpdateToFailedRaisesLocalError(t *testing.T) {
	fb := newFakeBackend(job("J1", jobs.StatusProcessing, 50, t0))
	h := startEngine(t, fb, nil)

	update := statusUpdate("J1", jobs.StatusFailed, 50, t0.Add(time.Minute))
	update.Patch.Error = ptr("decoder crashed")
	h.deliver(t, update, update)

	v := h.engine.View()
	if len(v.Errors) != 1 {
		t.Fatalf("expected one local error, got %+v", v.Errors)
	}
	if e := v.Errors[0]; e.Code != errorlog.CodeJobFailed || e.Origin != errorlog.OriginLocal || e.Message != "decoder crashed" {
		t.Fatalf("unexpected local error %+v", e)
	}
}

func TestUnknownJobTriggersRefresh(t *testing.T) {
	fb := newFakeBackend()
	h := startEngine(t, fb, nil)

	fb.setSnapshot(backend.Snapshot{Jobs: []jobs.Job{job("J9", jobs.StatusQueued, 0, t0)}})
	h.deliver(t, statusUpdate("J9", jobs.StatusProcessing, 5, t0.Add(time.Minute)))

	testsupport.Eventually(t, 2*time.Second, func() bool { return len(h.engine.View().Jobs) == 1 }, "job created by refresh")
	if fb.pullCount() < 2 {
		t.Fatalf("expected a follow-up pull, got %d", fb.pullCount())
	}
}

func TestProcessingCompleteCompletesAndRefreshes(t *testing.T) {
	fb := newFakeBackend(job("J1", jobs.StatusProcessing, 80, t0))
	h := startEngine(t, fb, nil)

	h.deliver(t, events.ProcessingComplete{Header: events.Header{Timestamp: t0.Add(time.Minute)}, JobID: "J1"})

	got := findJob(t, h.engine.View(), "J1")
	if got.Status != jobs.StatusCompleted || got.Progress != 100 {
		t.Fatalf("expected completed/100, got %s/%d", got.Status, got.Progress)
	}
	testsupport.Eventually(t, 2*time.Second, func() bool { return fb.pullCount() >= 2 }, "refresh after completion")
}

func TestCostEventsAreDeduplicated(t *testing.T) {
	fb := newFakeBackend()
	fb.snap.Costs = []costs.Entry{costEntry("c1", costs.CategoryTranscription, 1.20)}
	h := startEngine(t, fb, nil)

	h.deliver(t,
		events.CostRecorded{Header: events.Header{Timestamp: t0}, Entry: costEntry("c1", costs.CategoryTranscription, 1.20)},
		events.CostRecorded{Header: events.Header{Timestamp: t0}, Entry: costEntry("c2", costs.CategorySentiment, 0.30)},
	)

	v := h.engine.View()
	if v.CostTotal != costs.FromFloat(1.50) {
		t.Fatalf("cost total = %s, want 1.50", v.CostTotal)
	}
	if len(v.Rollups) != 1 || v.Rollups[0].Date != costs.DayOf(t0) {
		t.Fatalf("unexpected rollups %+v", v.Rollups)
	}
	want := []string{"cost_recorded:ignored", "cost_recorded:applied"}
	if outcomes := h.recorder.Outcomes(); !slices.Equal(outcomes, want) {
		t.Fatalf("outcomes = %v, want %v", outcomes, want)
	}
}

func TestProviderStatusMergesPartialUpdate(t *testing.T) {
	fb := newFakeBackend()
	fb.snap.Providers = []providers.Status{{ID: "openai", Name: "OpenAI", Health: providers.HealthOperational, LatencyMS: 100, LastChecked: t0}}
	h := startEngine(t, fb, nil)

	h.deliver(t,
		events.ProviderStatus{Header: events.Header{Timestamp: t0.Add(time.Minute)}, ProviderID: "openai", Patch: providers.Patch{Health: ptr(providers.HealthDegraded)}},
		events.ProviderStatus{Header: events.Header{Timestamp: t0.Add(30 * time.Second)}, ProviderID: "openai", Patch: providers.Patch{Health: ptr(providers.HealthOutage)}},
	)

	v := h.engine.View()
	if len(v.Providers) != 1 || v.Providers[0].Health != providers.HealthDegraded || v.Providers[0].LatencyMS != 100 {
		t.Fatalf("unexpected providers %+v", v.Providers)
	}
	if v.OperationalProviders != 0 {
		t.Fatalf("expected no operational providers, got %d", v.OperationalProviders)
	}
}

func TestResolveErrorWritesThroughFirst(t *testing.T) {
	fb := newFakeBackend()
	fb.snap.Errors = []errorlog.Entry{{ID: "e1", Timestamp: t0, Code: "RATE_LIMIT", Status: errorlog.StatusNew, Origin: errorlog.OriginRemote}}
	h := startEngine(t, fb, nil)
	ctx := context.Background()

	fb.mu.Lock()
	fb.resolveErr = errors.New("upstream 500")
	fb.mu.Unlock()
	if _, err := h.engine.ResolveError(ctx, "e1", "resolved"); err == nil {
		t.Fatal("expected upstream failure")
	}
	if got := h.engine.View().Errors[0].Status; got != errorlog.StatusNew {
		t.Fatalf("failed write-through must leave status untouched, got %s", got)
	}

	fb.mu.Lock()
	fb.resolveErr = nil
	fb.mu.Unlock()
	entry, err := h.engine.ResolveError(ctx, "e1", "resolved")
	if err != nil {
		t.Fatalf("ResolveError: %v", err)
	}
	if entry.Status != errorlog.StatusResolved || h.engine.View().Errors[0].Status != errorlog.StatusResolved {
		t.Fatalf("expected resolved entry, got %+v", entry)
	}
	if _, err := h.engine.ResolveError(ctx, "e1", "bogus"); !errors.Is(err, errorlog.ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
	if _, err := h.engine.ResolveError(ctx, "missing", "resolved"); !errors.Is(err, errorlog.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSetRecommendationWritesThrough(t *testing.T) {
	fb := newFakeBackend()
	fb.snap.Recommendations = []recommendations.Recommendation{{ID: "r1", Title: "Batch", EstimatedSavings: 10}}
	h := startEngine(t, fb, nil)

	rec, err := h.engine.SetRecommendation(context.Background(), "r1", true)
	if err != nil {
		t.Fatalf("SetRecommendation: %v", err)
	}
	if !rec.Implemented || h.engine.View().PotentialSavings != 0 {
		t.Fatalf("expected implemented recommendation, got %+v", rec)
	}
	fb.mu.Lock()
	upstream := fb.recs["r1"]
	fb.mu.Unlock()
	if !upstream {
		t.Fatal("expected upstream write")
	}
}

func TestRetryAndCancelRequireKnownJob(t *testing.T) {
	fb := newFakeBackend(job("J1", jobs.StatusFailed, 0, t0))
	h := startEngine(t, fb, nil)
	ctx := context.Background()

	if err := h.engine.Retry(ctx, "J1"); err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if err := h.engine.Cancel(ctx, "nope"); !errors.Is(err, jobs.ErrUnknownJob) {
		t.Fatalf("expected ErrUnknownJob, got %v", err)
	}
	if got := findJob(t, h.engine.View(), "J1"); got.Status != jobs.StatusFailed {
		t.Fatalf("retry must not change local state, got %s", got.Status)
	}
}

func TestInspectFetchesOnceAndTakesSectionUpdates(t *testing.T) {
	fb := newFakeBackend(job("J1", jobs.StatusCompleted, 100, t0))
	fb.results["J1"] = results.Result{JobID: "J1", Provider: "openai", Transcription: []results.Segment{{ID: "s1", Text: "old"}}}
	h := startEngine(t, fb, nil)
	ctx := context.Background()

	if _, err := h.engine.Inspect(ctx, "J1"); err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	h.deliver(t, events.TranscriptionComplete{
		Header:   events.Header{Timestamp: t0.Add(time.Minute)},
		JobID:    "J1",
		Segments: []results.Segment{{ID: "s2", Start: 1, Text: "new"}},
	})
	result, err := h.engine.Inspect(ctx, "J1")
	if err != nil {
		t.Fatalf("second Inspect: %v", err)
	}
	if len(result.Transcription) != 1 || result.Transcription[0].Text != "new" {
		t.Fatalf("expected replaced transcription, got %+v", result.Transcription)
	}
	fb.mu.Lock()
	fetches := fb.fetches
	fb.mu.Unlock()
	if fetches != 1 {
		t.Fatalf("expected one fetch, got %d", fetches)
	}
}

func TestShutdownPersistsState(t *testing.T) {
	store := &memoryStore{}
	fb := newFakeBackend(job("J1", jobs.StatusQueued, 0, t0))
	h := startEngine(t, fb, func(o *engine.Options) { o.Store = store })

	testsupport.Eventually(t, 2*time.Second, func() bool { _, n := store.Last(); return n >= 1 }, "save after refresh")
	h.deliver(t, statusUpdate("J1", jobs.StatusProcessing, 15, t0.Add(time.Minute)))
	h.stop()

	snap, _ := store.Last()
	if len(snap.Jobs) != 1 || snap.Jobs[0].Progress != 15 {
		t.Fatalf("expected shutdown save with latest state, got %+v", snap.Jobs)
	}
	if err := h.engine.Refresh(context.Background()); !errors.Is(err, engine.ErrStopped) {
		t.Fatalf("expected ErrStopped after shutdown, got %v", err)
	}
}

func TestSubscribeReceivesLatestView(t *testing.T) {
	fb := newFakeBackend(job("J1", jobs.StatusQueued, 0, t0))
	h := startEngine(t, fb, nil)

	views, cancel := h.engine.Subscribe()
	defer cancel()
	<-views

	h.deliver(t, statusUpdate("J1", jobs.StatusProcessing, 30, t0.Add(time.Minute)))
	select {
	case v := <-views:
		if got := findJob(t, v, "J1"); got.Progress != 30 {
			t.Fatalf("expected progress 30 in broadcast view, got %d", got.Progress)
		}
	case <-time.After(time.Second):
		t.Fatal("no view broadcast after mutation")
	}
}

func TestRejectedProcessingErrorsLeaveErrorLogUntouched(t *testing.T) {
	fb := newFakeBackend(job("J1", jobs.StatusCompleted, 100, t0.Add(10*time.Minute)))
	h := startEngine(t, fb, nil)

	late := events.ProcessingError{Header: events.Header{Timestamp: t0.Add(time.Minute)}, JobID: "J1", Message: "timeout"}
	after := events.ProcessingError{Header: events.Header{Timestamp: t0.Add(20 * time.Minute)}, JobID: "J1", Message: "timeout"}
	h.deliver(t, late, after)

	v := h.engine.View()
	if got := findJob(t, v, "J1"); got.Status != jobs.StatusCompleted {
		t.Fatalf("completed job must stay completed, got %s", got.Status)
	}
	if len(v.Errors) != 0 {
		t.Fatalf("discarded processing errors must not reach the error log, got %+v", v.Errors)
	}
	want := []string{"processing_error:stale", "processing_error:invalid"}
	if outcomes := h.recorder.Outcomes(); !slices.Equal(outcomes, want) {
		t.Fatalf("outcomes = %v, want %v", outcomes, want)
	}
}

func TestPulledCostEntriesWithoutIDsAreAllCounted(t *testing.T) {
	fb := newFakeBackend()
	fb.snap.Costs = []costs.Entry{
		costEntry("", costs.CategoryTranscription, 1.20),
		costEntry("", costs.CategorySentiment, 0.30),
	}
	h := startEngine(t, fb, nil)

	v := h.engine.View()
	if v.CostTotal != costs.FromFloat(1.50) {
		t.Fatalf("cost total = %s, want 1.50", v.CostTotal)
	}
	if len(v.Rollups) != 1 || v.Rollups[0].Subtotal(costs.CategorySentiment) != costs.FromFloat(0.30) {
		t.Fatalf("unexpected rollups %+v", v.Rollups)
	}

	// The same entries pulled again, or replayed on the channel, count once.
	if err := h.engine.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	h.deliver(t, events.CostRecorded{Header: events.Header{Timestamp: t0}, Entry: costEntry("", costs.CategoryTranscription, 1.20)})
	if got := h.engine.View().CostTotal; got != costs.FromFloat(1.50) {
		t.Fatalf("repeated id-less entries changed the total to %s", got)
	}
}

func TestRefreshKeepsJobsWithPaddedIDs(t *testing.T) {
	fb := newFakeBackend(job(" J1 ", jobs.StatusQueued, 0, t0))
	h := startEngine(t, fb, nil)

	if ids := jobIDs(h.engine.View()); !slices.Equal(ids, []string{"J1"}) {
		t.Fatalf("expected J1 to survive the pull, got %v", ids)
	}
	if err := h.engine.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if ids := jobIDs(h.engine.View()); !slices.Equal(ids, []string{"J1"}) {
		t.Fatalf("expected J1 after a second pull, got %v", ids)
	}
}

func TestRefreshRequestsCoalesce(t *testing.T) {
	fb := newFakeBackend()
	eng, err := engine.New(engine.Options{Backend: fb, OwnerID: "owner-1", Now: testsupport.NewFakeClock(t0).Now})
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}

	before := runtime.NumGoroutine()
	for range 500 {
		eng.RequestRefresh("unknown_job")
	}
	if grown := runtime.NumGoroutine() - before; grown > 5 {
		t.Fatalf("refresh requests parked %d goroutines", grown)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = eng.Run(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	testsupport.Eventually(t, 2*time.Second, func() bool { return fb.pullCount() >= 2 }, "startup and requested refresh")
	time.Sleep(50 * time.Millisecond)
	if got := fb.pullCount(); got != 2 {
		t.Fatalf("expected queued requests to collapse into one pull, got %d pulls", got)
	}
}
