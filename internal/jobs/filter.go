package jobs

import (
	"strings"
	"time"
)

// Filter narrows a job listing. Zero fields match everything.
type Filter struct {
	From     time.Time
	To       time.Time
	Status   Status
	Provider string
	Search   string
}

// IsZero reports whether the filter matches every job.
func (f Filter) IsZero() bool {
	return f.From.IsZero() && f.To.IsZero() && f.Status == "" && f.Provider == "" && strings.TrimSpace(f.Search) == ""
}

// Match reports whether job passes the filter. The date range is inclusive
// and applies to created_at. Search is a case-insensitive substring match on
// the job id and video path.
func (f Filter) Match(job Job) bool {
	if !f.From.IsZero() && job.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && job.CreatedAt.After(f.To) {
		return false
	}
	if f.Status != "" && job.Status != f.Status {
		return false
	}
	if f.Provider != "" && job.Options.PreferredProvider != f.Provider {
		return false
	}
	if search := strings.ToLower(strings.TrimSpace(f.Search)); search != "" {
		return strings.Contains(strings.ToLower(job.ID), search) ||
			strings.Contains(strings.ToLower(job.VideoPath), search)
	}
	return true
}

// Select returns the jobs that pass the filter, preserving order.
func (f Filter) Select(list []Job) []Job {
	out := make([]Job, 0, len(list))
	for _, job := range list {
		if f.Match(job) {
			out = append(out, job)
		}
	}
	return out
}
