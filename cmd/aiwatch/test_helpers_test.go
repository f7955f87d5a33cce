package main

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"aiwatch/internal/backend"
	"aiwatch/internal/config"
	"aiwatch/internal/costs"
	"aiwatch/internal/engine"
	"aiwatch/internal/errorlog"
	"aiwatch/internal/jobs"
	"aiwatch/internal/localapi"
	"aiwatch/internal/recommendations"
	"aiwatch/internal/results"
	"aiwatch/internal/testsupport"
)

var t0 = time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

type stubBackend struct {
	mu      sync.Mutex
	snap    backend.Snapshot
	retries []string
}

func (s *stubBackend) Pull(context.Context, backend.Query) (backend.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.snap
	snap.FetchedAt = t0
	return snap, nil
}

func (s *stubBackend) ResolveError(context.Context, string, errorlog.Status) error { return nil }

func (s *stubBackend) SetRecommendationImplemented(context.Context, string, bool) error { return nil }

func (s *stubBackend) Retry(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retries = append(s.retries, jobID)
	return nil
}

func (s *stubBackend) Cancel(context.Context, string) error { return nil }

func (s *stubBackend) FetchResult(_ context.Context, jobID string) (results.Result, error) {
	if jobID != "J1" {
		return results.Result{}, errors.New("no result")
	}
	return results.Result{
		JobID:    "J1",
		Provider: "openai",
		Cost:     0.42,
		Chapters: []results.Chapter{{ID: "c1", Title: "Introduction", Start: 0, End: 30}},
	}, nil
}

type cliTestEnv struct {
	cfg        *config.Config
	backend    *stubBackend
	engine     *engine.Engine
	configPath string
}

func sampleSnapshot() backend.Snapshot {
	done := t0.Add(-30 * time.Minute)
	return backend.Snapshot{
		Jobs: []jobs.Job{
			{ID: "J1", OwnerID: "owner-test", VideoPath: "/videos/keynote.mp4", Status: jobs.StatusCompleted, Progress: 100, CreatedAt: t0.Add(-2 * time.Hour), UpdatedAt: done, CompletedAt: &done},
			{ID: "J2", OwnerID: "owner-test", VideoPath: "/videos/webinar.mp4", Status: jobs.StatusProcessing, Progress: 40, CreatedAt: t0.Add(-time.Hour), UpdatedAt: t0},
		},
		Costs: []costs.Entry{
			{ID: "c1", OwnerID: "owner-test", Category: costs.CategoryTranscription, Amount: costs.FromFloat(1.25), Timestamp: t0},
			{ID: "c2", OwnerID: "owner-test", Category: costs.CategoryChapters, Amount: costs.FromFloat(0.25), Timestamp: t0},
		},
		Errors: []errorlog.Entry{
			{ID: "e1", Timestamp: t0, JobID: "J2", Code: "RATE_LIMIT", Message: "provider throttled", Status: errorlog.StatusNew, Impact: errorlog.ImpactHigh},
		},
		Recommendations: []recommendations.Recommendation{
			{ID: "r1", Title: "Batch short clips", EstimatedSavings: 18.5, Difficulty: recommendations.DifficultyEasy},
		},
	}
}

// setupCLITestEnv runs an engine and local API against a stub backend and
// writes a config pointing the CLI at it.
func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	t.Setenv("HOME", t.TempDir())
	cfg := testsupport.NewConfig(t, testsupport.WithAPIToken("cli-token"))
	stub := &stubBackend{snap: sampleSnapshot()}

	opts := engine.OptionsFromConfig(cfg)
	opts.Backend = stub
	opts.Now = func() time.Time { return t0 }
	opts.RefreshMinInterval = 0
	eng, err := engine.New(opts)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = eng.Run(ctx)
		close(done)
	}()

	srv := localapi.New(eng, localapi.Options{Token: cfg.API.Token, OwnerID: cfg.Backend.OwnerID})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		cancel()
		<-done
	})
	testsupport.Eventually(t, 2*time.Second, func() bool { return !eng.View().LastRefresh.IsZero() }, "initial refresh")

	cfg.API.Bind = strings.TrimPrefix(ts.URL, "http://")
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)

	return &cliTestEnv{cfg: cfg, backend: stub, engine: eng, configPath: configPath}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, configPath string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
