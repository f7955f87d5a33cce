package testsupport

import (
	"testing"

	"aiwatch/internal/config"
	"aiwatch/internal/statestore"
)

// MustOpenStateStore opens a statestore.Store for tests and registers cleanup.
func MustOpenStateStore(t testing.TB, cfg *config.Config) *statestore.Store {
	t.Helper()

	store, err := statestore.Open(cfg)
	if err != nil {
		t.Fatalf("statestore.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}
