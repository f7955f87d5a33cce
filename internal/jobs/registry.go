package jobs

import (
	"fmt"
	"reflect"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"
)

// Registry stores jobs keyed by id.
type Registry struct {
	mu   sync.RWMutex
	jobs map[string]Job
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{jobs: make(map[string]Job)}
}

// Upsert inserts job or replaces the stored record when job.UpdatedAt is not
// older than the stored one.
func (r *Registry) Upsert(job Job) (Change, error) {
	job.ID = strings.TrimSpace(job.ID)
	if job.ID == "" {
		return Change{}, fmt.Errorf("%w: missing id", ErrInvalidJob)
	}
	status, ok := ParseStatus(string(job.Status))
	if !ok {
		return Change{}, fmt.Errorf("%w: job %s has status %q", ErrInvalidJob, job.ID, job.Status)
	}
	job.Status = status
	job = job.clone()
	if job.UpdatedAt.Before(job.CreatedAt) {
		job.UpdatedAt = job.CreatedAt
	}
	job.Progress = clampProgress(job.Progress)

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, found := r.jobs[job.ID]
	if !found {
		normalizeCompletion(&job, job.UpdatedAt)
		r.jobs[job.ID] = job
		return Change{Job: job.clone(), Created: true, Modified: true}, nil
	}
	if job.UpdatedAt.Before(existing.UpdatedAt) {
		return Change{Job: existing.clone(), Previous: existing.clone()}, ErrStale
	}
	if err := CheckTransition(existing.Status, job.Status); err != nil {
		return Change{Job: existing.clone(), Previous: existing.clone()}, fmt.Errorf("job %s: %w", job.ID, err)
	}
	if existing.Status == StatusProcessing && job.Status == StatusProcessing && job.Progress < existing.Progress {
		job.Progress = existing.Progress
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = existing.CreatedAt
	}
	if job.CompletedAt == nil && job.Status == existing.Status && existing.CompletedAt != nil {
		ts := *existing.CompletedAt
		job.CompletedAt = &ts
	}
	normalizeCompletion(&job, job.UpdatedAt)
	r.jobs[job.ID] = job
	return Change{
		Job:      job.clone(),
		Previous: existing.clone(),
		Modified: !reflect.DeepEqual(existing, job),
	}, nil
}

// Apply merges a partial update for a known job. eventTime becomes the new
// updated_at when the patch is applied.
func (r *Registry) Apply(jobID string, patch Patch, eventTime time.Time) (Change, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, found := r.jobs[jobID]
	if !found {
		return Change{}, fmt.Errorf("%w: %s", ErrUnknownJob, jobID)
	}
	if eventTime.Before(existing.UpdatedAt) {
		return Change{Job: existing.clone(), Previous: existing.clone()}, ErrStale
	}

	next := existing.clone()
	if patch.Status != nil {
		status, ok := ParseStatus(string(*patch.Status))
		if !ok {
			return Change{Job: existing.clone(), Previous: existing.clone()}, fmt.Errorf("%w: job %s has status %q", ErrInvalidJob, jobID, *patch.Status)
		}
		if err := CheckTransition(existing.Status, status); err != nil {
			return Change{Job: existing.clone(), Previous: existing.clone()}, fmt.Errorf("job %s: %w", jobID, err)
		}
		next.Status = status
	}
	if patch.Progress != nil {
		progress := clampProgress(*patch.Progress)
		if !(existing.Status == StatusProcessing && next.Status == StatusProcessing && progress < existing.Progress) {
			next.Progress = progress
		}
	}
	if patch.Error != nil {
		next.Error = *patch.Error
	}
	next.UpdatedAt = eventTime
	normalizeCompletion(&next, eventTime)

	r.jobs[jobID] = next
	return Change{
		Job:      next.clone(),
		Previous: existing.clone(),
		Modified: !sameState(existing, next),
	}, nil
}

// sameState ignores updated_at so that a replayed event reports no change.
func sameState(a, b Job) bool {
	a.UpdatedAt = time.Time{}
	b.UpdatedAt = time.Time{}
	return reflect.DeepEqual(a, b)
}

// normalizeCompletion keeps completed_at set exactly when the status is
// terminal.
func normalizeCompletion(job *Job, at time.Time) {
	if !job.Status.IsTerminal() {
		job.CompletedAt = nil
		return
	}
	if job.CompletedAt == nil {
		ts := at
		job.CompletedAt = &ts
	}
}

// Get returns a copy of the job with the given id.
func (r *Registry) Get(jobID string) (Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return Job{}, false
	}
	return job.clone(), true
}

// Len returns the number of stored jobs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}

// Snapshot returns copies of all jobs, newest created_at first. Ties break
// by id.
func (r *Registry) Snapshot() []Job {
	r.mu.RLock()
	out := make([]Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		out = append(out, job.clone())
	}
	r.mu.RUnlock()
	SortNewestFirst(out)
	return out
}

// SortNewestFirst orders jobs the way Snapshot does.
func SortNewestFirst(list []Job) {
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.After(list[j].CreatedAt)
		}
		return list[i].ID < list[j].ID
	})
}

// Evict removes a job. It reports whether the job existed.
func (r *Registry) Evict(jobID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[jobID]; !ok {
		return false
	}
	delete(r.jobs, jobID)
	return true
}

// Retain evicts every job whose id is not in keep and returns the evicted
// ids in sorted order.
func (r *Registry) Retain(keep []string) []string {
	set := make(map[string]struct{}, len(keep))
	for _, id := range keep {
		set[id] = struct{}{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var evicted []string
	for id := range r.jobs {
		if _, ok := set[id]; !ok {
			evicted = append(evicted, id)
			delete(r.jobs, id)
		}
	}
	slices.Sort(evicted)
	return evicted
}

// StatusCounts returns the number of jobs per status. Every lifecycle status
// is present in the map.
func (r *Registry) StatusCounts() map[Status]int {
	counts := make(map[Status]int, len(AllStatuses))
	for _, status := range AllStatuses {
		counts[status] = 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, job := range r.jobs {
		counts[job.Status]++
	}
	return counts
}
