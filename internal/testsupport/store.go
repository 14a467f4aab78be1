package testsupport

import (
	"testing"

	"regeval/internal/config"
	"regeval/internal/runstore"
)

// MustOpenRunStore opens the history database under the config's state dir
// and registers cleanup.
func MustOpenRunStore(t testing.TB, cfg *config.Config) *runstore.Store {
	t.Helper()

	store, err := runstore.Open(cfg.HistoryPath())
	if err != nil {
		t.Fatalf("runstore.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}
