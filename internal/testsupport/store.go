package testsupport

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"mediarepo/internal/config"
	"mediarepo/internal/ingest"
	"mediarepo/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// NewJob builds an ingesting job with one pending asset per kind.
func NewJob(name string, kinds ...ingest.Kind) *ingest.Job {
	now := time.Now().UTC()
	job := &ingest.Job{
		ID:        uuid.NewString(),
		Name:      name,
		Brief:     "test job",
		Status:    ingest.JobIngesting,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for i, kind := range kinds {
		job.Assets = append(job.Assets, ingest.Asset{
			ID:         uuid.NewString(),
			Name:       string(kind) + "-" + string(rune('a'+i)),
			Kind:       kind,
			Status:     ingest.AssetPending,
			RawBlobRef: "blob://" + uuid.NewString(),
		})
	}
	return job
}

// MustPutJob persists job and fails the test on error.
func MustPutJob(t testing.TB, st *store.Store, job *ingest.Job) {
	t.Helper()
	if err := st.PutJob(context.Background(), job); err != nil {
		t.Fatalf("PutJob: %v", err)
	}
}
