package costs

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Ledger holds cost entries deduplicated by id.
type Ledger struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func NewLedger() *Ledger {
	return &Ledger{entries: make(map[string]Entry)}
}

// Record appends entry. It returns false, leaving the ledger unchanged, when
// the id is empty or an entry with the same id is already present.
func (l *Ledger) Record(entry Entry) bool {
	entry.ID = strings.TrimSpace(entry.ID)
	if entry.ID == "" {
		return false
	}
	entry.Category = NormalizeCategory(string(entry.Category))
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, dup := l.entries[entry.ID]; dup {
		return false
	}
	l.entries[entry.ID] = entry
	return true
}

// WithDerivedID fills a missing id from the entry's owner, job, category,
// amount and timestamp, so the same operation reported twice gets the same
// id. Entries that already carry an id are returned unchanged.
func WithDerivedID(entry Entry) Entry {
	if strings.TrimSpace(entry.ID) != "" {
		return entry
	}
	key := fmt.Sprintf("%s|%s|%s|%d|%d",
		entry.OwnerID, entry.JobID, NormalizeCategory(string(entry.Category)),
		int64(entry.Amount), entry.Timestamp.UTC().UnixNano())
	entry.ID = "derived-" + uuid.NewSHA1(uuid.NameSpaceOID, []byte(key)).String()
	return entry
}

// Len returns the number of recorded entries.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Entries returns recorded entries ordered by timestamp then id.
func (l *Ledger) Entries() []Entry {
	l.mu.RLock()
	out := make([]Entry, 0, len(l.entries))
	for _, e := range l.entries {
		out = append(out, e)
	}
	l.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Rollup aggregates entries inside r into per-day rollups ordered by date.
func (l *Ledger) Rollup(r DateRange) []Rollup {
	l.mu.RLock()
	defer l.mu.RUnlock()
	byDay := make(map[Day]*Rollup)
	for _, e := range l.entries {
		day := e.Day()
		if !r.Contains(day) {
			continue
		}
		roll, ok := byDay[day]
		if !ok {
			roll = &Rollup{Date: day, Subtotals: make(map[Category]Micros)}
			byDay[day] = roll
		}
		roll.Subtotals[e.Category] += e.Amount
		roll.Total += e.Amount
	}
	days := make([]Day, 0, len(byDay))
	for day := range byDay {
		days = append(days, day)
	}
	slices.Sort(days)
	out := make([]Rollup, 0, len(days))
	for _, day := range days {
		out = append(out, *byDay[day])
	}
	return out
}

// TotalCost returns the sum of rollup totals inside r.
func (l *Ledger) TotalCost(r DateRange) Micros {
	return SumTotals(l.Rollup(r))
}

// SumTotals adds the totals of rollups.
func SumTotals(rollups []Rollup) Micros {
	var total Micros
	for _, roll := range rollups {
		total += roll.Total
	}
	return total
}

// Breakdown sums subtotals per category across rollups. Known categories
// come first in their canonical order, then others alphabetically. Zero
// categories are dropped.
func Breakdown(rollups []Rollup) []Slice {
	sums := make(map[Category]Micros)
	for _, roll := range rollups {
		for category, amount := range roll.Subtotals {
			sums[category] += amount
		}
	}
	out := make([]Slice, 0, len(sums))
	for _, category := range KnownCategories {
		if amount := sums[category]; amount != 0 {
			out = append(out, Slice{Category: category, Amount: amount})
		}
		delete(sums, category)
	}
	others := make([]Category, 0, len(sums))
	for category := range sums {
		others = append(others, category)
	}
	slices.Sort(others)
	for _, category := range others {
		if amount := sums[category]; amount != 0 {
			out = append(out, Slice{Category: category, Amount: amount})
		}
	}
	return out
}

// AlertExceeded reports whether total is above a positive threshold given in
// currency units. A zero threshold disables the alert.
func AlertExceeded(total Micros, threshold float64) bool {
	if threshold <= 0 {
		return false
	}
	return total > FromFloat(threshold)
}
