package results

import (
	"sort"
	"sync"
)

// Section names a replaceable part of a result.
type Section string

const (
	SectionTranscription Section = "transcription"
	SectionChapters      Section = "chapters"
	SectionAnalytics     Section = "analytics"
)

// Update carries the payload for one section. Only the field matching
// Section is read.
type Update struct {
	Section       Section
	Transcription []Segment
	Chapters      []Chapter
	Analytics     Analytics
}

// Cache holds fetched results keyed by job id.
type Cache struct {
	mu      sync.RWMutex
	results map[string]Result
}

func NewCache() *Cache {
	return &Cache{results: make(map[string]Result)}
}

// Put stores a fetched result.
func (c *Cache) Put(result Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results[result.JobID] = result.clone()
}

// Get returns a copy of the cached result for jobID.
func (c *Cache) Get(jobID string) (Result, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.results[jobID]
	if !ok {
		return Result{}, false
	}
	return r.clone(), true
}

// ReplaceSection swaps one section of a cached result. It reports false and
// changes nothing when no result is cached for jobID.
func (c *Cache) ReplaceSection(jobID string, update Update) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.results[jobID]
	if !ok {
		return false
	}
	switch update.Section {
	case SectionTranscription:
		r.Transcription = cloneSegments(update.Transcription)
		sort.SliceStable(r.Transcription, func(i, j int) bool { return r.Transcription[i].Start < r.Transcription[j].Start })
	case SectionChapters:
		r.Chapters = cloneChapters(update.Chapters)
		sort.SliceStable(r.Chapters, func(i, j int) bool { return r.Chapters[i].Start < r.Chapters[j].Start })
	case SectionAnalytics:
		a := update.Analytics.clone()
		r.Analytics = &a
	default:
		return false
	}
	c.results[jobID] = r
	return true
}

// Evict drops the cached result for jobID.
func (c *Cache) Evict(jobID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.results, jobID)
}

// Snapshot returns copies of every cached result ordered by job id.
func (c *Cache) Snapshot() []Result {
	c.mu.RLock()
	out := make([]Result, 0, len(c.results))
	for _, r := range c.results {
		out = append(out, r.clone())
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].JobID < out[j].JobID })
	return out
}
