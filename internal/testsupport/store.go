package testsupport

import (
	"context"
	"testing"
	"time"

	"psorcast/internal/config"
	"psorcast/internal/history"
	"psorcast/internal/study"
)

// MustOpenStore opens a history.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *history.Store {
	t.Helper()

	store, err := history.Open(cfg)
	if err != nil {
		t.Fatalf("history.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// StartTreatment opens a treatment range for tests using the provided store.
func StartTreatment(t testing.TB, store *history.Store, start time.Time, treatments ...string) study.TreatmentRange {
	t.Helper()

	if len(treatments) == 0 {
		treatments = []string{"Methotrexate"}
	}
	r, err := store.StartTreatment(context.Background(), treatments, start)
	if err != nil {
		t.Fatalf("store.StartTreatment: %v", err)
	}
	return r
}
