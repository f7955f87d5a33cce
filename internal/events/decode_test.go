package events_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"aiwatch/internal/costs"
	"aiwatch/internal/events"
	"aiwatch/internal/jobs"
	"aiwatch/internal/providers"
)

func TestDecodeEnvelopedStatusUpdate(t *testing.T) {
	frame := `{"type":"status_update","jobId":"J1","timestamp":1767225600000,"payload":{"status":"processing","progress":40}}`
	ev, err := events.Decode([]byte(frame))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	su, ok := ev.(events.StatusUpdate)
	if !ok {
		t.Fatalf("expected StatusUpdate, got %T", ev)
	}
	if su.JobID != "J1" || *su.Patch.Status != jobs.StatusProcessing || *su.Patch.Progress != 40 {
		t.Fatalf("unexpected event %+v", su)
	}
	if !su.At().Equal(time.UnixMilli(1767225600000)) {
		t.Fatalf("unexpected timestamp %s", su.At())
	}
	if su.Patch.Error != nil {
		t.Fatal("expected no error patch")
	}
}

func TestDecodeFlatFrameWithRFC3339(t *testing.T) {
	frame := `{"type":"processing_error","jobId":"J2","timestamp":"2026-01-01T10:00:00Z","error":""}`
	ev, err := events.Decode([]byte(frame))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	pe := ev.(events.ProcessingError)
	if pe.Message != events.ProcessingErrorMessage {
		t.Fatalf("expected default message, got %q", pe.Message)
	}
	if pe.At().Hour() != 10 {
		t.Fatalf("unexpected timestamp %s", pe.At())
	}
}

func TestDecodeProviderStatusPartial(t *testing.T) {
	frame := `{"type":"provider_status","providerId":"openai","timestamp":1767225600000,"status":{"status":"degraded","latency":900}}`
	ev, err := events.Decode([]byte(frame))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	ps := ev.(events.ProviderStatus)
	if ps.ProviderID != "openai" || *ps.Patch.Health != providers.HealthDegraded || *ps.Patch.LatencyMS != 900 {
		t.Fatalf("unexpected patch %+v", ps)
	}
	if ps.Patch.Uptime != nil {
		t.Fatal("absent fields must stay nil")
	}
}

func TestDecodeCostRecorded(t *testing.T) {
	frame := `{"type":"cost_recorded","timestamp":1767225600000,"payload":{"id":"c9","operation":"sentiment","cost":0.3,"timestamp":"2026-01-01T00:00:00Z"}}`
	ev, err := events.Decode([]byte(frame))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	cr := ev.(events.CostRecorded)
	if cr.Entry.ID != "c9" || cr.Entry.Amount != costs.FromFloat(0.3) {
		t.Fatalf("unexpected entry %+v", cr.Entry)
	}
}

func TestDecodeRejections(t *testing.T) {
	cases := []struct {
		name  string
		frame string
		want  error
	}{
		{"garbage", `not json`, events.ErrInvalidEnvelope},
		{"missing type", `{"jobId":"J1"}`, events.ErrInvalidEnvelope},
		{"unknown type", `{"type":"billing_cycle","timestamp":1}`, events.ErrUnknownType},
		{"missing timestamp", `{"type":"status_update","jobId":"J1","status":"queued"}`, events.ErrInvalidEnvelope},
		{"missing job", `{"type":"processing_complete","timestamp":1}`, events.ErrInvalidEnvelope},
		{"bad status", `{"type":"status_update","jobId":"J1","timestamp":1,"status":"paused"}`, events.ErrInvalidEnvelope},
		{"bad timestamp", `{"type":"status_update","jobId":"J1","timestamp":"yesterday"}`, events.ErrInvalidEnvelope},
	}
	for _, tc := range cases {
		if _, err := events.Decode([]byte(tc.frame)); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
}

func TestPingRoundTripsTimestampAsMillis(t *testing.T) {
	at := time.Date(2026, 1, 1, 0, 0, 0, 123_456_789, time.UTC)
	data, err := json.Marshal(events.NewPing(at))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"type":"ping","timestamp":1767225600123}` {
		t.Fatalf("unexpected ping frame %s", data)
	}
	ev, err := events.Decode([]byte(`{"type":"pong","timestamp":1767225600123}`))
	if err != nil {
		t.Fatalf("Decode pong: %v", err)
	}
	if ev.At().UnixMilli() != 1767225600123 {
		t.Fatalf("pong timestamp mismatch: %d", ev.At().UnixMilli())
	}
}
