// Package quota tracks the owner's processing quota as last reported by the
// backend.
package quota

import (
	"strings"
	"sync"
	"time"
)

// Tier is the owner's billing plan.
type Tier string

const (
	TierFree       Tier = "free"
	TierPro        Tier = "pro"
	TierEnterprise Tier = "enterprise"
)

// HistoryPoint is one day of quota consumption.
type HistoryPoint struct {
	Date string  `json:"date" yaml:"date"`
	Used float64 `json:"used" yaml:"used"`
}

// Usage is the quota snapshot. Used may exceed Total; no cap is enforced.
type Usage struct {
	OwnerID   string         `json:"userId" yaml:"owner_id"`
	Used      float64        `json:"used" yaml:"used"`
	Total     float64        `json:"total" yaml:"total"`
	ResetDate time.Time      `json:"resetDate" yaml:"reset_date"`
	Tier      Tier           `json:"tier" yaml:"tier"`
	History   []HistoryPoint `json:"history" yaml:"history"`
}

// Ratio returns used/total, or 0 when total is not positive.
func (u Usage) Ratio() float64 {
	if u.Total <= 0 {
		return 0
	}
	return u.Used / u.Total
}

// Tracker holds the latest usage snapshot.
type Tracker struct {
	mu    sync.RWMutex
	usage Usage
	set   bool
}

func NewTracker() *Tracker {
	return &Tracker{}
}

// Set overwrites the stored usage.
func (t *Tracker) Set(usage Usage) {
	usage.Tier = Tier(strings.ToLower(strings.TrimSpace(string(usage.Tier))))
	usage.History = append([]HistoryPoint(nil), usage.History...)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.usage = usage
	t.set = true
}

// Usage returns a copy of the stored snapshot and whether one was ever set.
func (t *Tracker) Usage() (Usage, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	u := t.usage
	u.History = append([]HistoryPoint(nil), u.History...)
	return u, t.set
}

// Ratio returns the stored usage ratio.
func (t *Tracker) Ratio() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.usage.Ratio()
}
