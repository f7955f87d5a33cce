package providers

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"
)

var (
	ErrStale           = errors.New("stale provider status")
	ErrUnknownProvider = errors.New("unknown provider")
	ErrInvalidHealth   = errors.New("invalid provider health")
)

// Table is the provider health table.
type Table struct {
	mu   sync.RWMutex
	rows map[string]Status
}

func NewTable() *Table {
	return &Table{rows: make(map[string]Status)}
}

// Upsert stores a full row unless the stored row was checked more recently.
func (t *Table) Upsert(row Status) error {
	row.ID = strings.TrimSpace(row.ID)
	if row.ID == "" {
		return errors.New("provider row missing id")
	}
	if h, ok := ParseHealth(string(row.Health)); ok {
		row.Health = h
	} else if row.Health != "" {
		return fmt.Errorf("%w: %q", ErrInvalidHealth, row.Health)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if existing, ok := t.rows[row.ID]; ok && row.LastChecked.Before(existing.LastChecked) {
		return ErrStale
	}
	t.rows[row.ID] = row.clone()
	return nil
}

// Apply merges a partial update into a known provider. The recency key is
// patch.LastChecked when present and eventTime otherwise.
func (t *Table) Apply(id string, patch Patch, eventTime time.Time) (Status, error) {
	checked := eventTime
	if patch.LastChecked != nil && !patch.LastChecked.IsZero() {
		checked = *patch.LastChecked
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	row, ok := t.rows[id]
	if !ok {
		return Status{}, fmt.Errorf("%w: %s", ErrUnknownProvider, id)
	}
	if checked.Before(row.LastChecked) {
		return row.clone(), ErrStale
	}
	if patch.Health != nil {
		h, ok := ParseHealth(string(*patch.Health))
		if !ok {
			return row.clone(), fmt.Errorf("%w: %q", ErrInvalidHealth, *patch.Health)
		}
		row.Health = h
	}
	if patch.Name != nil {
		row.Name = *patch.Name
	}
	if patch.LatencyMS != nil {
		row.LatencyMS = *patch.LatencyMS
	}
	if patch.Uptime != nil {
		row.Uptime = *patch.Uptime
	}
	if patch.CostPerUnit != nil {
		row.CostPerUnit = *patch.CostPerUnit
	}
	if patch.QuotaUsed != nil {
		row.QuotaUsed = *patch.QuotaUsed
	}
	if patch.QuotaTotal != nil {
		row.QuotaTotal = *patch.QuotaTotal
	}
	if patch.Features != nil {
		row.Features = append([]string(nil), patch.Features...)
	}
	row.LastChecked = checked
	t.rows[id] = row
	return row.clone(), nil
}

// Retain drops rows whose id is not in keep and returns the dropped ids.
func (t *Table) Retain(keep []string) []string {
	set := make(map[string]struct{}, len(keep))
	for _, id := range keep {
		set[id] = struct{}{}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	var dropped []string
	for id := range t.rows {
		if _, ok := set[id]; !ok {
			dropped = append(dropped, id)
			delete(t.rows, id)
		}
	}
	slices.Sort(dropped)
	return dropped
}

// Get returns a copy of one row.
func (t *Table) Get(id string) (Status, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	row, ok := t.rows[id]
	return row.clone(), ok
}

// Snapshot returns copies of all rows ordered by id.
func (t *Table) Snapshot() []Status {
	t.mu.RLock()
	out := make([]Status, 0, len(t.rows))
	for _, row := range t.rows {
		out = append(out, row.clone())
	}
	t.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// CountOperational returns how many rows report operational health.
func CountOperational(rows []Status) int {
	n := 0
	for _, row := range rows {
		if row.Health == HealthOperational {
			n++
		}
	}
	return n
}

// Models holds the last pulled model metrics.
type Models struct {
	mu     sync.RWMutex
	models []ModelMetrics
}

func NewModels() *Models {
	return &Models{}
}

// Replace swaps the full model list.
func (m *Models) Replace(list []ModelMetrics) {
	next := append([]ModelMetrics(nil), list...)
	sort.SliceStable(next, func(i, j int) bool {
		if next[i].Provider != next[j].Provider {
			return next[i].Provider < next[j].Provider
		}
		return next[i].ModelID < next[j].ModelID
	})
	m.mu.Lock()
	defer m.mu.Unlock()
	m.models = next
}

// Snapshot returns a copy of the model list.
func (m *Models) Snapshot() []ModelMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]ModelMetrics(nil), m.models...)
}
