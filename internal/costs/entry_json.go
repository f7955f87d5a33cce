package costs

import (
	"encoding/json"
	"time"
)

type entryWire struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"userId"`
	JobID     string    `json:"jobId,omitempty"`
	Category  string    `json:"operation"`
	Cost      float64   `json:"cost"`
	Timestamp time.Time `json:"timestamp"`
}

// MarshalJSON encodes the amount as a currency float under "cost", the shape
// the backend's cost_tracking rows use.
func (e Entry) MarshalJSON() ([]byte, error) {
	return json.Marshal(entryWire{
		ID:        e.ID,
		OwnerID:   e.OwnerID,
		JobID:     e.JobID,
		Category:  string(e.Category),
		Cost:      e.Amount.Float(),
		Timestamp: e.Timestamp,
	})
}

func (e *Entry) UnmarshalJSON(data []byte) error {
	var wire entryWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*e = Entry{
		ID:        wire.ID,
		OwnerID:   wire.OwnerID,
		JobID:     wire.JobID,
		Category:  NormalizeCategory(wire.Category),
		Amount:    FromFloat(wire.Cost),
		Timestamp: wire.Timestamp,
	}
	return nil
}
