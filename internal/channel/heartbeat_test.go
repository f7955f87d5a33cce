package channel_test

import (
	"testing"
	"time"

	"aiwatch/internal/channel"
)

func TestHeartbeatLatencyIsExact(t *testing.T) {
	hb := channel.NewHeartbeat(2)
	t0 := time.Date(2026, 2, 3, 4, 5, 6, 789_123_456, time.UTC)
	t1 := t0.Add(1234567 * time.Nanosecond)

	ping, expired := hb.Tick(t0)
	if expired {
		t.Fatal("first tick must not expire")
	}
	latency, ok := hb.Pong(ping.Timestamp.Time, t1)
	if !ok {
		t.Fatal("expected pong to match outstanding ping")
	}
	if latency != t1.Sub(t0) {
		t.Fatalf("latency = %s, want %s", latency, t1.Sub(t0))
	}
	if hb.Latency() != t1.Sub(t0) {
		t.Fatalf("stored latency = %s", hb.Latency())
	}
}

func TestHeartbeatIgnoresMismatchedPong(t *testing.T) {
	hb := channel.NewHeartbeat(2)
	t0 := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	hb.Tick(t0)
	if _, ok := hb.Pong(t0.Add(-time.Second), t0.Add(time.Second)); ok {
		t.Fatal("pong with a different timestamp must not match")
	}
}

func TestHeartbeatExpiresAfterMissedPongs(t *testing.T) {
	hb := channel.NewHeartbeat(2)
	t0 := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	if _, expired := hb.Tick(t0); expired {
		t.Fatal("unexpected expiry on first tick")
	}
	if _, expired := hb.Tick(t0.Add(30 * time.Second)); expired {
		t.Fatal("one missed pong must not expire")
	}
	if _, expired := hb.Tick(t0.Add(60 * time.Second)); !expired {
		t.Fatal("expected expiry after two consecutive missed pongs")
	}
}

func TestHeartbeatPongResetsMissedCount(t *testing.T) {
	hb := channel.NewHeartbeat(2)
	t0 := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	hb.Tick(t0)
	ping, _ := hb.Tick(t0.Add(30 * time.Second))
	if _, ok := hb.Pong(ping.Timestamp.Time, t0.Add(31*time.Second)); !ok {
		t.Fatal("expected latest ping to match")
	}
	if _, expired := hb.Tick(t0.Add(60 * time.Second)); expired {
		t.Fatal("answered ping must reset the missed count")
	}
}
