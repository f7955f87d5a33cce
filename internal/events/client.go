package events

import "time"

// Authenticate is sent once per connection.
type Authenticate struct {
	Type   Type   `json:"type"`
	UserID string `json:"userId"`
}

// Ping is the heartbeat probe. The backend echoes Timestamp in its pong.
type Ping struct {
	Type      Type      `json:"type"`
	Timestamp Timestamp `json:"timestamp"`
}

func NewAuthenticate(ownerID string) Authenticate {
	return Authenticate{Type: TypeAuthenticate, UserID: ownerID}
}

// NewPing stamps a ping with millisecond precision.
func NewPing(at time.Time) Ping {
	return Ping{Type: TypePing, Timestamp: Millis(at.UnixMilli())}
}
