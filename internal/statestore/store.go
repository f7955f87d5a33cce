package statestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"aiwatch/internal/config"
	"aiwatch/internal/costs"
	"aiwatch/internal/errorlog"
	"aiwatch/internal/jobs"
	"aiwatch/internal/providers"
	"aiwatch/internal/quota"
	"aiwatch/internal/recommendations"
)

// Snapshot is everything the watcher persists between runs.
type Snapshot struct {
	Jobs            []jobs.Job
	Costs           []costs.Entry
	Quota           *quota.Usage
	Providers       []providers.Status
	Models          []providers.ModelMetrics
	Errors          []errorlog.Entry
	Recommendations []recommendations.Recommendation
	SavedAt         time.Time
}

// Store is the SQLite-backed state cache.
type Store struct {
	db   *sql.DB
	path string
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond

	metaSavedAt = "saved_at"
)

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

// Open initializes or connects to the state cache under cfg's state dir.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(cfg.StateDBPath())
}

// OpenPath opens the state cache at dbPath.
func OpenPath(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save replaces the persisted state with snap in one transaction.
func (s *Store) Save(ctx context.Context, snap Snapshot) error {
	if snap.SavedAt.IsZero() {
		snap.SavedAt = time.Now().UTC()
	}
	return retryOnBusy(ctx, func() error {
		return s.save(ctx, snap)
	})
}

func (s *Store) save(ctx context.Context, snap Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"jobs", "cost_entries", "quota", "providers", "models", "ai_errors", "recommendations"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	for _, job := range snap.Jobs {
		if err := insertJSON(ctx, tx,
			"INSERT INTO jobs (id, status, created_at, updated_at, data) VALUES (?, ?, ?, ?, ?)",
			job, job.ID, string(job.Status), formatTime(job.CreatedAt), formatTime(job.UpdatedAt),
		); err != nil {
			return fmt.Errorf("save job %s: %w", job.ID, err)
		}
	}
	for _, entry := range snap.Costs {
		if err := insertJSON(ctx, tx,
			"INSERT INTO cost_entries (id, day, category, amount_micros, data) VALUES (?, ?, ?, ?, ?)",
			entry, entry.ID, string(entry.Day()), string(entry.Category), int64(entry.Amount),
		); err != nil {
			return fmt.Errorf("save cost entry %s: %w", entry.ID, err)
		}
	}
	if snap.Quota != nil {
		if err := insertJSON(ctx, tx, "INSERT INTO quota (owner_id, data) VALUES (?, ?)", *snap.Quota, snap.Quota.OwnerID); err != nil {
			return fmt.Errorf("save quota: %w", err)
		}
	}
	for _, row := range snap.Providers {
		if err := insertJSON(ctx, tx, "INSERT INTO providers (id, data) VALUES (?, ?)", row, row.ID); err != nil {
			return fmt.Errorf("save provider %s: %w", row.ID, err)
		}
	}
	for _, model := range snap.Models {
		if err := insertJSON(ctx, tx, "INSERT OR REPLACE INTO models (id, data) VALUES (?, ?)", model, model.ModelID); err != nil {
			return fmt.Errorf("save model %s: %w", model.ModelID, err)
		}
	}
	for _, entry := range snap.Errors {
		if err := insertJSON(ctx, tx,
			"INSERT INTO ai_errors (id, origin, status, data) VALUES (?, ?, ?, ?)",
			entry, entry.ID, string(entry.Origin), string(entry.Status),
		); err != nil {
			return fmt.Errorf("save error %s: %w", entry.ID, err)
		}
	}
	for _, rec := range snap.Recommendations {
		if err := insertJSON(ctx, tx, "INSERT OR REPLACE INTO recommendations (id, data) VALUES (?, ?)", rec, rec.ID); err != nil {
			return fmt.Errorf("save recommendation %s: %w", rec.ID, err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		metaSavedAt, formatTime(snap.SavedAt),
	); err != nil {
		return fmt.Errorf("save meta: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save: %w", err)
	}
	return nil
}

// Load reads the persisted state. The bool is false when nothing has been
// saved yet.
func (s *Store) Load(ctx context.Context) (Snapshot, bool, error) {
	var savedAt string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM meta WHERE key = ?", metaSavedAt).Scan(&savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("read saved_at: %w", err)
	}

	var snap Snapshot
	if snap.SavedAt, err = time.Parse(time.RFC3339Nano, savedAt); err != nil {
		return Snapshot{}, false, fmt.Errorf("parse saved_at: %w", err)
	}
	if snap.Jobs, err = loadRows[jobs.Job](ctx, s.db, "SELECT data FROM jobs ORDER BY id"); err != nil {
		return Snapshot{}, false, err
	}
	if snap.Costs, err = loadRows[costs.Entry](ctx, s.db, "SELECT data FROM cost_entries ORDER BY day, id"); err != nil {
		return Snapshot{}, false, err
	}
	quotas, err := loadRows[quota.Usage](ctx, s.db, "SELECT data FROM quota LIMIT 1")
	if err != nil {
		return Snapshot{}, false, err
	}
	if len(quotas) == 1 {
		snap.Quota = &quotas[0]
	}
	if snap.Providers, err = loadRows[providers.Status](ctx, s.db, "SELECT data FROM providers ORDER BY id"); err != nil {
		return Snapshot{}, false, err
	}
	if snap.Models, err = loadRows[providers.ModelMetrics](ctx, s.db, "SELECT data FROM models ORDER BY id"); err != nil {
		return Snapshot{}, false, err
	}
	if snap.Errors, err = loadRows[errorlog.Entry](ctx, s.db, "SELECT data FROM ai_errors ORDER BY id"); err != nil {
		return Snapshot{}, false, err
	}
	if snap.Recommendations, err = loadRows[recommendations.Recommendation](ctx, s.db, "SELECT data FROM recommendations ORDER BY id"); err != nil {
		return Snapshot{}, false, err
	}
	return snap, true, nil
}

// SavedAt reports when state was last saved, zero when never.
func (s *Store) SavedAt(ctx context.Context) (time.Time, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM meta WHERE key = ?", metaSavedAt).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("read saved_at: %w", err)
	}
	return time.Parse(time.RFC3339Nano, value)
}

func insertJSON(ctx context.Context, tx *sql.Tx, query string, value any, args ...any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	args = append(args, string(data))
	_, err = tx.ExecContext(ctx, query, args...)
	return err
}

func loadRows[T any](ctx context.Context, db *sql.DB, query string) ([]T, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", query, err)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		var value T
		if err := json.Unmarshal([]byte(data), &value); err != nil {
			return nil, fmt.Errorf("decode row: %w", err)
		}
		out = append(out, value)
	}
	return out, rows.Err()
}

func formatTime(ts time.Time) string {
	return ts.UTC().Format(time.RFC3339Nano)
}
