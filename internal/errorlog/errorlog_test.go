package errorlog_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"aiwatch/internal/errorlog"
)

type fakeResolver struct {
	err   error
	calls int
}

func (f *fakeResolver) ResolveError(context.Context, string, errorlog.Status) error {
	f.calls++
	return f.err
}

func TestAppendForcesNewAndDefaults(t *testing.T) {
	log := errorlog.New()
	entry, added := log.Append(errorlog.Entry{Code: "X", Status: errorlog.StatusResolved})
	if !added {
		t.Fatal("expected entry added")
	}
	if entry.Status != errorlog.StatusNew || entry.Impact != errorlog.ImpactMedium {
		t.Fatalf("unexpected defaults: %+v", entry)
	}
	if entry.ID == "" || entry.Timestamp.IsZero() {
		t.Fatalf("expected generated id and timestamp, got %+v", entry)
	}
	if _, added := log.Append(errorlog.Entry{ID: entry.ID}); added {
		t.Fatal("expected duplicate id rejected")
	}
}

func TestResolveWritesThroughFirst(t *testing.T) {
	log := errorlog.New()
	entry, _ := log.Append(errorlog.Entry{ID: "e1", Code: "X"})

	failing := &fakeResolver{err: errors.New("503")}
	if _, err := log.Resolve(context.Background(), entry.ID, "resolved", failing); err == nil {
		t.Fatal("expected upstream error")
	}
	if got := log.Snapshot()[0].Status; got != errorlog.StatusNew {
		t.Fatalf("failed write-through changed local state to %s", got)
	}

	ok := &fakeResolver{}
	updated, err := log.Resolve(context.Background(), entry.ID, "Resolved", ok)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if updated.Status != errorlog.StatusResolved || ok.calls != 1 {
		t.Fatalf("unexpected resolve result %+v calls=%d", updated, ok.calls)
	}
	// Reopening is allowed.
	if _, err := log.Resolve(context.Background(), entry.ID, "new", ok); err != nil {
		t.Fatalf("reopen: %v", err)
	}
}

func TestResolveValidatesBeforeUpstream(t *testing.T) {
	log := errorlog.New()
	log.Append(errorlog.Entry{ID: "e1"})
	upstream := &fakeResolver{}
	if _, err := log.Resolve(context.Background(), "e1", "closed", upstream); !errors.Is(err, errorlog.ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
	if _, err := log.Resolve(context.Background(), "missing", "resolved", upstream); !errors.Is(err, errorlog.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if upstream.calls != 0 {
		t.Fatalf("upstream called %d times for invalid requests", upstream.calls)
	}
}

func TestReplaceKeepsLocalEntries(t *testing.T) {
	log := errorlog.New()
	log.Append(errorlog.Entry{ID: "local-1", JobID: "j1", Code: errorlog.CodeJobFailed, Origin: errorlog.OriginLocal})
	log.Replace([]errorlog.Entry{{ID: "r1", Code: "X", Timestamp: time.Now()}})
	log.Replace([]errorlog.Entry{{ID: "r2", Code: "Y", Timestamp: time.Now()}})

	ids := map[string]bool{}
	for _, entry := range log.Snapshot() {
		ids[entry.ID] = true
	}
	if !ids["local-1"] || !ids["r2"] || ids["r1"] {
		t.Fatalf("unexpected ids after replace: %v", ids)
	}
	if !log.HasLocalForJob("j1") || log.HasLocalForJob("j2") {
		t.Fatal("HasLocalForJob misreports")
	}
}
