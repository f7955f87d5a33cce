package channel

import (
	"sync"
	"time"

	"aiwatch/internal/events"
)

// Heartbeat tracks the outstanding ping and consecutive missed pongs.
type Heartbeat struct {
	mu        sync.Mutex
	maxMissed int
	pending   bool
	stamp     int64
	sentAt    time.Time
	missed    int
	latency   time.Duration
}

// NewHeartbeat returns a tracker that reports expiry after maxMissed
// consecutive unanswered pings.
func NewHeartbeat(maxMissed int) *Heartbeat {
	if maxMissed <= 0 {
		maxMissed = 2
	}
	return &Heartbeat{maxMissed: maxMissed}
}

// Tick is called at each heartbeat interval. It returns the ping to send,
// or expired=true when the connection should be treated as dead.
func (h *Heartbeat) Tick(now time.Time) (ping events.Ping, expired bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.pending {
		h.missed++
		if h.missed >= h.maxMissed {
			return events.Ping{}, true
		}
	}
	ping = events.NewPing(now)
	h.pending = true
	h.stamp = now.UnixMilli()
	h.sentAt = now
	return ping, false
}

// Pong records a pong whose echoed timestamp is echo, received at now. It
// returns the measured latency and false when the pong does not match the
// outstanding ping.
func (h *Heartbeat) Pong(echo time.Time, now time.Time) (time.Duration, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.pending || echo.UnixMilli() != h.stamp {
		return 0, false
	}
	h.pending = false
	h.missed = 0
	h.latency = now.Sub(h.sentAt)
	return h.latency, true
}

// Latency returns the last measured round trip.
func (h *Heartbeat) Latency() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.latency
}

// Reset clears outstanding state for a new connection. The last latency is
// kept for display.
func (h *Heartbeat) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pending = false
	h.missed = 0
}
