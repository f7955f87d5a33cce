package jobs_test

import (
	"errors"
	"testing"
	"time"

	"aiwatch/internal/jobs"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func at(seconds int) time.Time {
	return base.Add(time.Duration(seconds) * time.Second)
}

func ptr[T any](v T) *T { return &v }

func newJob(id string, status jobs.Status, progress int, updated time.Time) jobs.Job {
	return jobs.Job{
		ID:        id,
		OwnerID:   "owner",
		VideoPath: "videos/" + id + ".mp4",
		Status:    status,
		Progress:  progress,
		CreatedAt: base,
		UpdatedAt: updated,
	}
}

func TestUpsertInsertsAndClampsUpdatedAt(t *testing.T) {
	reg := jobs.NewRegistry()
	job := newJob("j1", jobs.StatusQueued, 0, base.Add(-time.Minute))
	change, err := reg.Upsert(job)
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if !change.Created {
		t.Fatal("expected created change")
	}
	stored, ok := reg.Get("j1")
	if !ok {
		t.Fatal("expected job stored")
	}
	if !stored.UpdatedAt.Equal(stored.CreatedAt) {
		t.Fatalf("expected updated_at clamped to created_at, got %s", stored.UpdatedAt)
	}
}

func TestUpsertRejectsOlderRecord(t *testing.T) {
	reg := jobs.NewRegistry()
	if _, err := reg.Upsert(newJob("j1", jobs.StatusProcessing, 40, at(10))); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	_, err := reg.Upsert(newJob("j1", jobs.StatusQueued, 0, at(5)))
	if !errors.Is(err, jobs.ErrStale) {
		t.Fatalf("expected ErrStale, got %v", err)
	}
	stored, _ := reg.Get("j1")
	if stored.Status != jobs.StatusProcessing || stored.Progress != 40 {
		t.Fatalf("stale record modified state: %+v", stored)
	}
}

// Applying events in any order never leaves the stored updated_at below the
// maximum seen, and the newest event's values win.
func TestApplyRecencyMonotonic(t *testing.T) {
	orders := [][]int{{1, 2, 3}, {3, 2, 1}, {2, 3, 1}, {1, 3, 2}}
	for _, order := range orders {
		reg := jobs.NewRegistry()
		if _, err := reg.Upsert(newJob("j1", jobs.StatusQueued, 0, base)); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
		var maxSeen time.Time
		for _, n := range order {
			ts := at(n * 10)
			_, err := reg.Apply("j1", jobs.Patch{Status: ptr(jobs.StatusProcessing), Progress: ptr(n * 10)}, ts)
			if err != nil && !errors.Is(err, jobs.ErrStale) {
				t.Fatalf("order %v: unexpected error %v", order, err)
			}
			if ts.After(maxSeen) {
				maxSeen = ts
			}
			stored, _ := reg.Get("j1")
			if stored.UpdatedAt.Before(maxSeen) {
				t.Fatalf("order %v: updated_at %s regressed below %s", order, stored.UpdatedAt, maxSeen)
			}
		}
		stored, _ := reg.Get("j1")
		if stored.Progress != 30 {
			t.Fatalf("order %v: expected newest progress 30, got %d", order, stored.Progress)
		}
	}
}

func TestApplyIsIdempotent(t *testing.T) {
	reg := jobs.NewRegistry()
	if _, err := reg.Upsert(newJob("j1", jobs.StatusQueued, 0, base)); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	patch := jobs.Patch{Status: ptr(jobs.StatusProcessing), Progress: ptr(55)}
	first, err := reg.Apply("j1", patch, at(5))
	if err != nil {
		t.Fatalf("first Apply: %v", err)
	}
	afterFirst, _ := reg.Get("j1")
	second, err := reg.Apply("j1", patch, at(5))
	if err != nil {
		t.Fatalf("second Apply: %v", err)
	}
	afterSecond, _ := reg.Get("j1")
	if !first.Modified || second.Modified {
		t.Fatalf("expected first modified and second not, got %v/%v", first.Modified, second.Modified)
	}
	if afterFirst.Progress != afterSecond.Progress || afterFirst.Status != afterSecond.Status || !afterFirst.UpdatedAt.Equal(afterSecond.UpdatedAt) {
		t.Fatalf("replay changed state: %+v vs %+v", afterFirst, afterSecond)
	}
}

func TestApplyRejectsBackwardTransitions(t *testing.T) {
	cases := []struct {
		name string
		from jobs.Status
		to   jobs.Status
	}{
		{"completed to processing", jobs.StatusCompleted, jobs.StatusProcessing},
		{"failed to processing", jobs.StatusFailed, jobs.StatusProcessing},
		{"completed to failed", jobs.StatusCompleted, jobs.StatusFailed},
		{"processing to queued", jobs.StatusProcessing, jobs.StatusQueued},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			reg := jobs.NewRegistry()
			if _, err := reg.Upsert(newJob("j1", tc.from, 50, base)); err != nil {
				t.Fatalf("Upsert: %v", err)
			}
			before, _ := reg.Get("j1")
			_, err := reg.Apply("j1", jobs.Patch{Status: ptr(tc.to)}, at(60))
			if !errors.Is(err, jobs.ErrInvalidTransition) {
				t.Fatalf("expected ErrInvalidTransition, got %v", err)
			}
			after, _ := reg.Get("j1")
			if after.Status != before.Status || !after.UpdatedAt.Equal(before.UpdatedAt) {
				t.Fatalf("rejected transition changed state: %+v", after)
			}
		})
	}
}

func TestApplyAcceptsForwardJumps(t *testing.T) {
	reg := jobs.NewRegistry()
	if _, err := reg.Upsert(newJob("j1", jobs.StatusQueued, 0, base)); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	change, err := reg.Apply("j1", jobs.Patch{Status: ptr(jobs.StatusCompleted), Progress: ptr(100)}, at(30))
	if err != nil {
		t.Fatalf("queued -> completed: %v", err)
	}
	if change.Job.CompletedAt == nil || !change.Job.CompletedAt.Equal(at(30)) {
		t.Fatalf("expected completed_at set to event time, got %v", change.Job.CompletedAt)
	}
}

func TestApplyKeepsProgressWhileProcessing(t *testing.T) {
	reg := jobs.NewRegistry()
	if _, err := reg.Upsert(newJob("j1", jobs.StatusProcessing, 70, base)); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if _, err := reg.Apply("j1", jobs.Patch{Progress: ptr(40)}, at(5)); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	stored, _ := reg.Get("j1")
	if stored.Progress != 70 {
		t.Fatalf("expected progress kept at 70, got %d", stored.Progress)
	}
	if !stored.UpdatedAt.Equal(at(5)) {
		t.Fatalf("expected updated_at advanced, got %s", stored.UpdatedAt)
	}
}

func TestApplyUnknownJob(t *testing.T) {
	reg := jobs.NewRegistry()
	_, err := reg.Apply("missing", jobs.Patch{Progress: ptr(1)}, base)
	if !errors.Is(err, jobs.ErrUnknownJob) {
		t.Fatalf("expected ErrUnknownJob, got %v", err)
	}
}

func TestCompletedAtOnlyWhenTerminal(t *testing.T) {
	reg := jobs.NewRegistry()
	job := newJob("j1", jobs.StatusQueued, 0, base)
	job.CompletedAt = ptr(base)
	change, err := reg.Upsert(job)
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if change.Job.CompletedAt != nil {
		t.Fatal("expected completed_at cleared for queued job")
	}
	change, err = reg.Apply("j1", jobs.Patch{Status: ptr(jobs.StatusFailed), Error: ptr("boom")}, at(1))
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if change.Job.CompletedAt == nil || !change.EnteredFailed() {
		t.Fatalf("expected failed job with completed_at, got %+v", change.Job)
	}
}

func TestSnapshotOrderAndRetain(t *testing.T) {
	reg := jobs.NewRegistry()
	for i, id := range []string{"b", "a", "c"} {
		job := newJob(id, jobs.StatusQueued, 0, base)
		job.CreatedAt = at(i)
		if id == "a" {
			job.CreatedAt = at(2)
		}
		job.UpdatedAt = job.CreatedAt
		if _, err := reg.Upsert(job); err != nil {
			t.Fatalf("Upsert %s: %v", id, err)
		}
	}
	snap := reg.Snapshot()
	got := []string{snap[0].ID, snap[1].ID, snap[2].ID}
	want := []string{"a", "c", "b"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("snapshot order = %v, want %v", got, want)
		}
	}

	evicted := reg.Retain([]string{"a"})
	if len(evicted) != 2 || evicted[0] != "b" || evicted[1] != "c" {
		t.Fatalf("unexpected evicted ids %v", evicted)
	}
	if reg.Len() != 1 {
		t.Fatalf("expected one job left, got %d", reg.Len())
	}
	counts := reg.StatusCounts()
	if counts[jobs.StatusQueued] != 1 || counts[jobs.StatusFailed] != 0 {
		t.Fatalf("unexpected counts %v", counts)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	reg := jobs.NewRegistry()
	job := newJob("j1", jobs.StatusCompleted, 100, base)
	if _, err := reg.Upsert(job); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	snap := reg.Snapshot()
	snap[0].Status = jobs.StatusFailed
	*snap[0].CompletedAt = at(999)
	stored, _ := reg.Get("j1")
	if stored.Status != jobs.StatusCompleted || stored.CompletedAt.Equal(at(999)) {
		t.Fatalf("snapshot mutation leaked into registry: %+v", stored)
	}
}
