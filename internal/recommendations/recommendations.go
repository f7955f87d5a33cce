// Package recommendations holds cost optimization recommendations pulled
// from the backend and the owner's implemented flags.
package recommendations

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var ErrNotFound = errors.New("recommendation not found")

// Difficulty estimates the effort to apply a recommendation.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Recommendation is one optimization suggestion.
type Recommendation struct {
	ID               string     `json:"id" yaml:"id"`
	Title            string     `json:"title" yaml:"title"`
	Description      string     `json:"description" yaml:"description"`
	EstimatedSavings float64    `json:"estimatedSavings" yaml:"estimated_savings"`
	Difficulty       Difficulty `json:"difficulty" yaml:"difficulty"`
	Implemented      bool       `json:"implemented" yaml:"implemented"`
}

// Updater writes the implemented flag upstream.
type Updater interface {
	SetRecommendationImplemented(ctx context.Context, id string, implemented bool) error
}

// Adapter stores the recommendation list in backend order.
type Adapter struct {
	mu   sync.RWMutex
	list []Recommendation
}

func New() *Adapter {
	return &Adapter{}
}

// Replace swaps the full list.
func (a *Adapter) Replace(list []Recommendation) {
	next := append([]Recommendation(nil), list...)
	a.mu.Lock()
	defer a.mu.Unlock()
	a.list = next
}

// Snapshot returns a copy of the list.
func (a *Adapter) Snapshot() []Recommendation {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]Recommendation(nil), a.list...)
}

// SetImplemented writes the flag upstream and updates the local copy only on
// success.
func (a *Adapter) SetImplemented(ctx context.Context, id string, implemented bool, upstream Updater) (Recommendation, error) {
	if _, ok := a.find(id); !ok {
		return Recommendation{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if upstream != nil {
		if err := upstream.SetRecommendationImplemented(ctx, id, implemented); err != nil {
			return Recommendation{}, fmt.Errorf("update recommendation %s: %w", id, err)
		}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := range a.list {
		if a.list[i].ID == id {
			a.list[i].Implemented = implemented
			return a.list[i], nil
		}
	}
	return Recommendation{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

func (a *Adapter) find(id string) (Recommendation, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, r := range a.list {
		if r.ID == id {
			return r, true
		}
	}
	return Recommendation{}, false
}

// PotentialSavings sums estimated savings of recommendations not yet
// implemented.
func PotentialSavings(list []Recommendation) float64 {
	var total float64
	for _, r := range list {
		if !r.Implemented {
			total += r.EstimatedSavings
		}
	}
	return total
}
