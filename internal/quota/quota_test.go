package quota_test

import (
	"testing"

	"aiwatch/internal/quota"
)

func TestRatio(t *testing.T) {
	tracker := quota.NewTracker()
	if _, ok := tracker.Usage(); ok {
		t.Fatal("expected no usage before Set")
	}
	if tracker.Ratio() != 0 {
		t.Fatal("expected zero ratio when unset")
	}
	tracker.Set(quota.Usage{Used: 150, Total: 100, Tier: " PRO "})
	if got := tracker.Ratio(); got != 1.5 {
		t.Fatalf("expected ratio 1.5 without capping, got %v", got)
	}
	usage, _ := tracker.Usage()
	if usage.Tier != quota.TierPro {
		t.Fatalf("expected normalized tier, got %q", usage.Tier)
	}
	tracker.Set(quota.Usage{Used: 5, Total: 0})
	if tracker.Ratio() != 0 {
		t.Fatal("expected zero ratio for zero total")
	}
}
