package store_test

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"mediarepo/internal/ingest"
	"mediarepo/internal/repo"
	"mediarepo/internal/store"
	"mediarepo/internal/testsupport"
)

func TestOpenBootstrapsSchema(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	health, err := st.CheckHealth(context.Background())
	if err != nil {
		t.Fatalf("CheckHealth: %v", err)
	}
	if !health.Healthy() {
		t.Fatalf("expected healthy store, got %+v", health)
	}
}

func TestOpenRebuildsMissingTable(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	st.Close()

	db, err := sql.Open("sqlite", cfg.StorePath())
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	if _, err := db.Exec("DROP TABLE repos"); err != nil {
		t.Fatalf("drop table: %v", err)
	}
	db.Close()

	st = testsupport.MustOpenStore(t, cfg)
	health, err := st.CheckHealth(context.Background())
	if err != nil {
		t.Fatalf("CheckHealth: %v", err)
	}
	if len(health.MissingTables) != 0 {
		t.Fatalf("expected repos rebuilt, missing %v", health.MissingTables)
	}
}

func TestWriteRebuildsDroppedTableOnce(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))
	st, err := store.Open(cfg, store.WithLogger(logger))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	ctx := context.Background()

	db, err := sql.Open("sqlite", cfg.StorePath())
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()
	if _, err := db.Exec("DROP TABLE pending_jobs"); err != nil {
		t.Fatalf("drop table: %v", err)
	}

	job := testsupport.NewJob("Recovered", ingest.KindImage)
	if err := st.PutJob(ctx, job); err != nil {
		t.Fatalf("PutJob after drop: %v", err)
	}
	if _, err := st.GetJob(ctx, job.ID); err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if n := strings.Count(logs.String(), `"store_rebuild"`); n != 1 {
		t.Fatalf("expected one rebuild, got %d", n)
	}

	logs.Reset()
	if _, err := db.Exec(`CREATE TRIGGER reject_jobs BEFORE UPDATE ON pending_jobs
		BEGIN SELECT RAISE(ABORT, 'job writes rejected'); END`); err != nil {
		t.Fatalf("create trigger: %v", err)
	}
	_, err = st.UpdateJob(ctx, job.ID, func(j *ingest.Job) error {
		j.Error = "changed"
		return nil
	})
	if err == nil || !strings.Contains(err.Error(), "job writes rejected") {
		t.Fatalf("expected persistent failure to surface, got %v", err)
	}
	if n := strings.Count(logs.String(), `"store_rebuild"`); n != 1 {
		t.Fatalf("expected exactly one rebuild before surfacing, got %d", n)
	}
}

func TestJobRoundTripAndUpdate(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	job := testsupport.NewJob("Trip", ingest.KindVideo, ingest.KindImage)
	testsupport.MustPutJob(t, st, job)

	loaded, err := st.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if loaded.Name != "Trip" || len(loaded.Assets) != 2 || loaded.Status != ingest.JobIngesting {
		t.Fatalf("unexpected job %+v", loaded)
	}

	asset := loaded.Assets[1]
	asset.Status = ingest.AssetReady
	asset.StageResults.Semantic = &ingest.Semantic{Description: "cat", Tags: []string{"cat"}}
	if _, err := st.UpdateAsset(ctx, job.ID, asset); err != nil {
		t.Fatalf("UpdateAsset: %v", err)
	}
	loaded, _ = st.GetJob(ctx, job.ID)
	if loaded.Assets[1].Status != ingest.AssetReady || loaded.Assets[1].StageResults.Semantic == nil {
		t.Fatalf("asset update not persisted: %+v", loaded.Assets[1])
	}

	sentinel := errors.New("nope")
	if _, err := st.UpdateJob(ctx, job.ID, func(*ingest.Job) error { return sentinel }); !errors.Is(err, sentinel) {
		t.Fatalf("expected mutation error, got %v", err)
	}
	if _, err := st.GetJob(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	jobs, err := st.ListJobs(ctx, ingest.JobIngesting)
	if err != nil || len(jobs) != 1 {
		t.Fatalf("ListJobs = %d, %v", len(jobs), err)
	}
	if jobs, _ := st.ListJobs(ctx, ingest.JobFailed); len(jobs) != 0 {
		t.Fatalf("expected no failed jobs, got %d", len(jobs))
	}
}

func TestConcurrentAssetUpdatesAreSerialized(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	job := testsupport.NewJob("Many", ingest.KindImage, ingest.KindImage, ingest.KindImage, ingest.KindImage)
	testsupport.MustPutJob(t, st, job)

	var wg sync.WaitGroup
	for _, asset := range job.Assets {
		wg.Add(1)
		go func(a ingest.Asset) {
			defer wg.Done()
			a.Status = ingest.AssetReady
			if _, err := st.UpdateAsset(ctx, job.ID, a); err != nil {
				t.Errorf("UpdateAsset: %v", err)
			}
		}(asset)
	}
	wg.Wait()

	loaded, err := st.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if !loaded.AllTerminal() {
		t.Fatalf("expected every asset update to survive, got %+v", loaded.Counts())
	}
}

func TestLeaseLifecycle(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	job := testsupport.NewJob("Lease", ingest.KindAudio)
	testsupport.MustPutJob(t, st, job)

	ok, err := st.ClaimLease(ctx, job.ID, "owner-a", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first claim = %v, %v", ok, err)
	}
	if ok, _ := st.ClaimLease(ctx, job.ID, "owner-b", time.Minute); ok {
		t.Fatal("expected live foreign lease to block claim")
	}
	if ok, _ := st.ClaimLease(ctx, job.ID, "owner-a", time.Minute); !ok {
		t.Fatal("expected owner to reclaim its own lease")
	}
	if err := st.Heartbeat(ctx, job.ID, "owner-b"); !errors.Is(err, store.ErrLeaseLost) {
		t.Fatalf("expected ErrLeaseLost, got %v", err)
	}
	if err := st.Heartbeat(ctx, job.ID, "owner-a"); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}

	// A zero timeout treats any heartbeat as stale.
	time.Sleep(5 * time.Millisecond)
	if ok, _ := st.ClaimLease(ctx, job.ID, "owner-b", 0); !ok {
		t.Fatal("expected stale lease to be claimable")
	}

	cleared, err := st.ReclaimStale(ctx, time.Now().Add(time.Second))
	if err != nil || cleared != 1 {
		t.Fatalf("ReclaimStale = %d, %v", cleared, err)
	}
	loaded, _ := st.GetJob(ctx, job.ID)
	if loaded.LeaseOwner != "" || loaded.LastHeartbeat != nil {
		t.Fatalf("expected lease cleared, got %q", loaded.LeaseOwner)
	}

	if _, err := st.ClaimLease(ctx, "missing", "owner-a", time.Minute); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing job, got %v", err)
	}
}

func TestPromoteMovesJobToRepository(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	job := testsupport.NewJob("Promote", ingest.KindImage)
	job.Assets[0].Status = ingest.AssetReady
	testsupport.MustPutJob(t, st, job)
	if err := st.PutBlob(ctx, store.BlobRecord{ID: "b1", OwnerID: job.ID, Data: []byte("raw")}); err != nil {
		t.Fatalf("PutBlob: %v", err)
	}

	r := repo.BuildFromJob(job, nil)
	if err := st.Promote(ctx, r, job.ID); err != nil {
		t.Fatalf("Promote: %v", err)
	}
	if _, err := st.GetJob(ctx, job.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected pending job deleted, got %v", err)
	}
	got, err := st.GetRepo(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetRepo: %v", err)
	}
	if err := repo.Verify(got); err != nil {
		t.Fatalf("persisted repository inconsistent: %v", err)
	}
	if byJob, err := st.FindRepoByJob(ctx, job.ID); err != nil || byJob.ID != r.ID {
		t.Fatalf("FindRepoByJob = %v, %v", byJob, err)
	}
	blob, err := st.GetBlob(ctx, "b1")
	if err != nil || blob.OwnerID != r.ID || string(blob.Data) != "raw" {
		t.Fatalf("expected blob ownership transferred, got %+v, %v", blob, err)
	}

	if err := st.Promote(ctx, r, job.ID); err == nil {
		t.Fatal("expected second promotion of the same repository to fail")
	}

	summaries, err := st.ListRepos(ctx)
	if err != nil || len(summaries) != 1 || summaries[0].CommitCount != 1 {
		t.Fatalf("ListRepos = %+v, %v", summaries, err)
	}

	if err := st.DeleteRepo(ctx, r.ID); err != nil {
		t.Fatalf("DeleteRepo: %v", err)
	}
	if _, err := st.GetBlob(ctx, "b1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected owned blobs deleted, got %v", err)
	}
}

func TestBlobRoundTrip(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	rec := store.BlobRecord{ID: "x", OwnerID: "job", Kind: "frame", Name: "f.jpg", ContentType: "image/jpeg", Data: []byte{1, 2, 3}}
	if err := st.PutBlob(ctx, rec); err != nil {
		t.Fatalf("PutBlob: %v", err)
	}
	got, err := st.GetBlob(ctx, "x")
	if err != nil {
		t.Fatalf("GetBlob: %v", err)
	}
	if got.Size != 3 || got.ContentType != "image/jpeg" || len(got.Data) != 3 {
		t.Fatalf("unexpected blob %+v", got)
	}
	keys, err := st.BlobKeysByOwner(ctx, "job")
	if err != nil || len(keys) != 1 {
		t.Fatalf("BlobKeysByOwner = %v, %v", keys, err)
	}
	if err := st.DeleteBlob(ctx, "x"); err != nil {
		t.Fatalf("DeleteBlob: %v", err)
	}
	if _, err := st.GetBlob(ctx, "x"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
