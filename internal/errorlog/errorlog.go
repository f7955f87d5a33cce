// Package errorlog keeps the AI error log shown to operators.
//
// Entries come from the backend (remote origin) or are raised locally when a
// job is seen failing without a matching processing error. Status changes are
// written through to the backend before the local copy is touched.
package errorlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound      = errors.New("error entry not found")
	ErrInvalidStatus = errors.New("invalid error status")
)

// Status is the triage state of an entry.
type Status string

const (
	StatusNew           Status = "new"
	StatusInvestigating Status = "investigating"
	StatusResolved      Status = "resolved"
)

// ParseStatus normalizes a triage status.
func ParseStatus(value string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(value)))
	switch s {
	case StatusNew, StatusInvestigating, StatusResolved:
		return s, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, value)
}

// Impact grades the user-facing consequence of an error.
type Impact string

const (
	ImpactLow      Impact = "low"
	ImpactMedium   Impact = "medium"
	ImpactHigh     Impact = "high"
	ImpactCritical Impact = "critical"
)

// Origin records where an entry was created.
type Origin string

const (
	OriginRemote Origin = "remote"
	OriginLocal  Origin = "local"
)

const (
	CodeProcessingError = "PROCESSING_ERROR"
	CodeJobFailed       = "JOB_FAILED"
)

// Entry is one AI error.
type Entry struct {
	ID        string          `json:"id" yaml:"id"`
	Timestamp time.Time       `json:"timestamp" yaml:"timestamp"`
	JobID     string          `json:"jobId,omitempty" yaml:"job_id,omitempty"`
	Provider  string          `json:"provider,omitempty" yaml:"provider,omitempty"`
	Code      string          `json:"errorCode" yaml:"code"`
	Message   string          `json:"message" yaml:"message"`
	Details   json.RawMessage `json:"details,omitempty" yaml:"-"`
	Status    Status          `json:"status" yaml:"status"`
	Impact    Impact          `json:"impact" yaml:"impact"`
	Origin    Origin          `json:"origin,omitempty" yaml:"origin"`
}

func (e Entry) clone() Entry {
	e.Details = append(json.RawMessage(nil), e.Details...)
	return e
}

// Resolver writes a status change upstream.
type Resolver interface {
	ResolveError(ctx context.Context, id string, status Status) error
}

// Log is the ordered error log.
type Log struct {
	mu      sync.RWMutex
	entries map[string]Entry
	now     func() time.Time
}

func New() *Log {
	return &Log{entries: make(map[string]Entry), now: time.Now}
}

// Append records a new entry with status forced to new. Impact defaults to
// medium, id to a fresh uuid, and timestamp to now. It returns the stored
// entry and false when an entry with the same id already exists.
func (l *Log) Append(entry Entry) (Entry, bool) {
	if strings.TrimSpace(entry.ID) == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = l.now().UTC()
	}
	if entry.Impact == "" {
		entry.Impact = ImpactMedium
	}
	if entry.Origin == "" {
		entry.Origin = OriginLocal
	}
	entry.Status = StatusNew

	l.mu.Lock()
	defer l.mu.Unlock()
	if existing, ok := l.entries[entry.ID]; ok {
		return existing.clone(), false
	}
	l.entries[entry.ID] = entry.clone()
	return entry, true
}

// Resolve changes an entry's status. The upstream write happens first and
// local state changes only when it succeeds. Any status direction is allowed.
func (l *Log) Resolve(ctx context.Context, id string, status string, upstream Resolver) (Entry, error) {
	next, err := ParseStatus(status)
	if err != nil {
		return Entry{}, err
	}
	l.mu.RLock()
	_, ok := l.entries[id]
	l.mu.RUnlock()
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if upstream != nil {
		if err := upstream.ResolveError(ctx, id, next); err != nil {
			return Entry{}, fmt.Errorf("resolve error %s: %w", id, err)
		}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.entries[id]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	entry.Status = next
	l.entries[id] = entry
	return entry.clone(), nil
}

// Replace swaps every remote entry for the authoritative list. Local entries
// are kept.
func (l *Log) Replace(remote []Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, entry := range l.entries {
		if entry.Origin != OriginLocal {
			delete(l.entries, id)
		}
	}
	for _, entry := range remote {
		entry.Origin = OriginRemote
		if entry.Impact == "" {
			entry.Impact = ImpactMedium
		}
		if entry.Status == "" {
			entry.Status = StatusNew
		}
		l.entries[entry.ID] = entry.clone()
	}
}

// Restore loads entries verbatim, origin included. Used to seed from the
// local state cache.
func (l *Log) Restore(entries []Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = make(map[string]Entry, len(entries))
	for _, entry := range entries {
		l.entries[entry.ID] = entry.clone()
	}
}

// HasLocalForJob reports whether a locally raised entry exists for jobID.
func (l *Log) HasLocalForJob(jobID string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, entry := range l.entries {
		if entry.Origin == OriginLocal && entry.JobID == jobID {
			return true
		}
	}
	return false
}

// HasForJob reports whether any entry references jobID.
func (l *Log) HasForJob(jobID string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, entry := range l.entries {
		if entry.JobID == jobID {
			return true
		}
	}
	return false
}

// Snapshot returns copies ordered newest first, ties by id.
func (l *Log) Snapshot() []Entry {
	l.mu.RLock()
	out := make([]Entry, 0, len(l.entries))
	for _, entry := range l.entries {
		out = append(out, entry.clone())
	}
	l.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// CountByStatus tallies entries per status.
func CountByStatus(entries []Entry) map[Status]int {
	counts := map[Status]int{StatusNew: 0, StatusInvestigating: 0, StatusResolved: 0}
	for _, entry := range entries {
		counts[entry.Status]++
	}
	return counts
}
