package costs

import (
	"fmt"
	"strings"
	"time"
)

// Category is the operation an entry was billed for.
type Category string

const (
	CategoryTranscription      Category = "transcription"
	CategorySentiment          Category = "sentiment"
	CategoryChapters           Category = "chapters"
	CategorySpeakerDiarization Category = "speaker_diarization"
	CategoryEntities           Category = "entities"
)

// KnownCategories lists the operations the dashboard buckets explicitly.
var KnownCategories = []Category{
	CategoryTranscription,
	CategorySentiment,
	CategoryChapters,
	CategorySpeakerDiarization,
	CategoryEntities,
}

// NormalizeCategory lower-cases and trims a category. Empty values become
// "other".
func NormalizeCategory(value string) Category {
	trimmed := strings.ToLower(strings.TrimSpace(value))
	if trimmed == "" {
		return "other"
	}
	return Category(trimmed)
}

// Day is a UTC calendar date formatted as YYYY-MM-DD.
type Day string

const dayLayout = "2006-01-02"

// DayOf returns the UTC day containing ts.
func DayOf(ts time.Time) Day {
	return Day(ts.UTC().Format(dayLayout))
}

// ParseDay validates a YYYY-MM-DD string.
func ParseDay(value string) (Day, error) {
	trimmed := strings.TrimSpace(value)
	if _, err := time.Parse(dayLayout, trimmed); err != nil {
		return "", fmt.Errorf("parse day %q: %w", value, err)
	}
	return Day(trimmed), nil
}

// Time returns midnight UTC of the day.
func (d Day) Time() time.Time {
	ts, err := time.Parse(dayLayout, string(d))
	if err != nil {
		return time.Time{}
	}
	return ts
}

// DateRange is an inclusive range of days. An empty bound is open.
type DateRange struct {
	From Day `json:"from,omitempty" yaml:"from,omitempty"`
	To   Day `json:"to,omitempty" yaml:"to,omitempty"`
}

// LastDays returns the range covering the n days ending on now's UTC day.
func LastDays(now time.Time, n int) DateRange {
	if n <= 0 {
		n = 1
	}
	return DateRange{
		From: DayOf(now.AddDate(0, 0, -(n - 1))),
		To:   DayOf(now),
	}
}

// Contains reports whether day falls inside the range. Day strings compare
// lexically in calendar order.
func (r DateRange) Contains(day Day) bool {
	if r.From != "" && day < r.From {
		return false
	}
	if r.To != "" && day > r.To {
		return false
	}
	return true
}

// Entry is one immutable billed operation.
type Entry struct {
	ID        string    `json:"id" yaml:"id"`
	OwnerID   string    `json:"userId" yaml:"owner_id"`
	JobID     string    `json:"jobId,omitempty" yaml:"job_id,omitempty"`
	Category  Category  `json:"operation" yaml:"category"`
	Amount    Micros    `json:"-" yaml:"amount_micros"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}

// Day returns the UTC day the entry is billed on.
func (e Entry) Day() Day {
	return DayOf(e.Timestamp)
}

// Rollup aggregates one day of spend.
type Rollup struct {
	Date      Day                 `json:"date" yaml:"date"`
	Subtotals map[Category]Micros `json:"subtotals" yaml:"subtotals"`
	Total     Micros              `json:"total" yaml:"total"`
}

// Subtotal returns the amount for one category, zero when absent.
func (r Rollup) Subtotal(category Category) Micros {
	return r.Subtotals[category]
}

// Slice is one named share of the spend breakdown.
type Slice struct {
	Category Category `json:"category" yaml:"category"`
	Amount   Micros   `json:"amount" yaml:"amount"`
}
