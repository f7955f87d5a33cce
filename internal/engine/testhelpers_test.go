package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"aiwatch/internal/backend"
	"aiwatch/internal/costs"
	"aiwatch/internal/engine"
	"aiwatch/internal/errorlog"
	"aiwatch/internal/events"
	"aiwatch/internal/jobs"
	"aiwatch/internal/results"
	"aiwatch/internal/statestore"
	"aiwatch/internal/testsupport"
)

var t0 = time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

type fakeBackend struct {
	mu         sync.Mutex
	snap       backend.Snapshot
	pullErr    error
	pulls      int
	queries    []backend.Query
	retries    []string
	cancels    []string
	resolved   map[string]errorlog.Status
	resolveErr error
	recs       map[string]bool
	results    map[string]results.Result
	fetches    int
}

func newFakeBackend(jobList ...jobs.Job) *fakeBackend {
	return &fakeBackend{
		snap:     backend.Snapshot{Jobs: jobList},
		resolved: map[string]errorlog.Status{},
		recs:     map[string]bool{},
		results:  map[string]results.Result{},
	}
}

func (f *fakeBackend) setSnapshot(snap backend.Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap = snap
}

func (f *fakeBackend) setPullErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pullErr = err
}

func (f *fakeBackend) pullCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pulls
}

func (f *fakeBackend) Pull(_ context.Context, q backend.Query) (backend.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pulls++
	f.queries = append(f.queries, q)
	if f.pullErr != nil {
		return backend.Snapshot{}, f.pullErr
	}
	snap := f.snap
	snap.Jobs = append([]jobs.Job(nil), f.snap.Jobs...)
	snap.JobsFiltered = !q.Jobs.IsZero()
	return snap, nil
}

func (f *fakeBackend) ResolveError(_ context.Context, id string, status errorlog.Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.resolveErr != nil {
		return f.resolveErr
	}
	f.resolved[id] = status
	return nil
}

func (f *fakeBackend) SetRecommendationImplemented(_ context.Context, id string, implemented bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recs[id] = implemented
	return nil
}

func (f *fakeBackend) Retry(_ context.Context, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retries = append(f.retries, jobID)
	return nil
}

func (f *fakeBackend) Cancel(_ context.Context, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels = append(f.cancels, jobID)
	return nil
}

func (f *fakeBackend) FetchResult(_ context.Context, jobID string) (results.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	result, ok := f.results[jobID]
	if !ok {
		return results.Result{}, errors.New("no result")
	}
	return result, nil
}

type countingRecorder struct {
	engine.NopRecorder
	mu       sync.Mutex
	outcomes []string
	refresh  []string
}

func (r *countingRecorder) EventOutcome(eventType, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, eventType+":"+outcome)
}

func (r *countingRecorder) RefreshDone(result string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refresh = append(r.refresh, result)
}

func (r *countingRecorder) Outcomes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.outcomes...)
}

func (r *countingRecorder) Refreshes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.refresh)
}

type memoryStore struct {
	mu    sync.Mutex
	saves []statestore.Snapshot
}

func (s *memoryStore) Save(_ context.Context, snap statestore.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves = append(s.saves, snap)
	return nil
}

func (s *memoryStore) Last() (statestore.Snapshot, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.saves) == 0 {
		return statestore.Snapshot{}, 0
	}
	return s.saves[len(s.saves)-1], len(s.saves)
}

type harness struct {
	engine   *engine.Engine
	backend  *fakeBackend
	recorder *countingRecorder
	cancel   context.CancelFunc
	done     chan struct{}
	runErr   error
}

// startEngine runs an engine against fb and waits for the startup refresh.
func startEngine(t *testing.T, fb *fakeBackend, mutate func(*engine.Options)) *harness {
	t.Helper()
	clock := testsupport.NewFakeClock(t0)
	rec := &countingRecorder{}
	opts := engine.Options{
		Backend:       fb,
		Recorder:      rec,
		OwnerID:       "owner-1",
		CostRangeDays: 7,
		Now:           clock.Now,
	}
	if mutate != nil {
		mutate(&opts)
	}
	eng, err := engine.New(opts)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	h := &harness{engine: eng, backend: fb, recorder: rec, cancel: cancel, done: make(chan struct{})}
	go func() {
		h.runErr = eng.Run(ctx)
		close(h.done)
	}()
	t.Cleanup(h.stop)

	testsupport.Eventually(t, 2*time.Second, func() bool { return rec.Refreshes() >= 1 }, "startup refresh")
	return h
}

func (h *harness) stop() {
	h.cancel()
	select {
	case <-h.done:
	case <-time.After(2 * time.Second):
	}
}

// deliver sends events and waits until the engine has classified them all.
func (h *harness) deliver(t *testing.T, evs ...events.Event) {
	t.Helper()
	want := len(h.recorder.Outcomes()) + len(evs)
	for _, ev := range evs {
		h.engine.Deliver(context.Background(), ev)
	}
	testsupport.Eventually(t, 2*time.Second, func() bool { return len(h.recorder.Outcomes()) >= want }, "events merged")
}

func job(id string, status jobs.Status, progress int, updated time.Time) jobs.Job {
	return jobs.Job{
		ID:        id,
		OwnerID:   "owner-1",
		VideoPath: "/videos/" + id + ".mp4",
		Status:    status,
		Progress:  progress,
		CreatedAt: t0.Add(-time.Hour),
		UpdatedAt: updated,
	}
}

func findJob(t *testing.T, v engine.View, id string) jobs.Job {
	t.Helper()
	for _, j := range v.Jobs {
		if j.ID == id {
			return j
		}
	}
	t.Fatalf("job %s not in view", id)
	return jobs.Job{}
}

func jobIDs(v engine.View) []string {
	ids := make([]string, 0, len(v.Jobs))
	for _, j := range v.Jobs {
		ids = append(ids, j.ID)
	}
	return ids
}

func costEntry(id string, category costs.Category, amount float64) costs.Entry {
	return costs.Entry{ID: id, OwnerID: "owner-1", Category: category, Amount: costs.FromFloat(amount), Timestamp: t0}
}
