package testsupport

import (
	"context"
	"testing"

	"digitflow/internal/config"
	"digitflow/internal/corrections"
)

// MustOpenStore opens a corrections.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *corrections.Store {
	t.Helper()

	store, err := corrections.Open(cfg.Paths.DatabasePath)
	if err != nil {
		t.Fatalf("corrections.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// RecordCorrection inserts a correction row for tests and returns its id.
func RecordCorrection(t testing.TB, store *corrections.Store, imageRef string, trueLabel, predictedLabel int) int64 {
	t.Helper()

	id, err := store.Record(context.Background(), imageRef, trueLabel, predictedLabel)
	if err != nil {
		t.Fatalf("store.Record: %v", err)
	}
	return id
}
