package engine

import (
	"time"

	"aiwatch/internal/costs"
	"aiwatch/internal/jobs"
)

// Recorder receives engine telemetry.
type Recorder interface {
	EventOutcome(eventType, outcome string)
	RefreshDone(result string, elapsed time.Duration)
	StateObserved(counts map[jobs.Status]int, costTotal costs.Micros, quotaRatio float64)
}

// NopRecorder discards telemetry.
type NopRecorder struct{}

func (NopRecorder) EventOutcome(string, string)                              {}
func (NopRecorder) RefreshDone(string, time.Duration)                        {}
func (NopRecorder) StateObserved(map[jobs.Status]int, costs.Micros, float64) {}
