package workflow_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"mediarepo/internal/blobstore"
	"mediarepo/internal/config"
	"mediarepo/internal/events"
	"mediarepo/internal/ingest"
	"mediarepo/internal/pipeline"
	"mediarepo/internal/repo"
	"mediarepo/internal/services"
	"mediarepo/internal/store"
	"mediarepo/internal/testsupport"
	"mediarepo/internal/workflow"
)

type env struct {
	cfg         *config.Config
	store       *store.Store
	blobs       blobstore.Store
	bus         *events.Bus
	events      <-chan events.Event
	transcriber *testsupport.FakeTranscriber
	tagger      *testsupport.FakeTagger
	sampler     *testsupport.FakeFrameSampler
	manager     *workflow.Manager
}

func newEnv(t *testing.T, opts ...workflow.Option) *env {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	blobs := blobstore.NewSQLite(st)
	bus := events.NewBus(nil)
	ch, cancel := bus.Subscribe(1024)
	t.Cleanup(cancel)

	e := &env{
		cfg:         cfg,
		store:       st,
		blobs:       blobs,
		bus:         bus,
		events:      ch,
		transcriber: &testsupport.FakeTranscriber{},
		tagger:      &testsupport.FakeTagger{},
		sampler:     &testsupport.FakeFrameSampler{Frames: 2},
	}
	e.manager = e.newManager(opts...)
	return e
}

func (e *env) newManager(opts ...workflow.Option) *workflow.Manager {
	runner := pipeline.NewRunner(e.cfg, pipeline.Clients{
		FrameSampler:   e.sampler,
		AudioExtractor: &testsupport.FakeAudioExtractor{Size: 64},
		Transcriber:    e.transcriber,
		Tagger:         e.tagger,
	}, e.blobs, nil)
	return workflow.NewManager(e.cfg, e.store, e.blobs, runner, e.bus, nil, opts...)
}

func (e *env) drain() []events.Event {
	var out []events.Event
	for {
		select {
		case evt := <-e.events:
			out = append(out, evt)
		default:
			return out
		}
	}
}

func countType(evts []events.Event, typ events.Type) int {
	n := 0
	for _, evt := range evts {
		if evt.Type == typ {
			n++
		}
	}
	return n
}

func TestOneVideoEventOrder(t *testing.T) {
	e := newEnv(t)
	job := testsupport.SeedJob(t, e.blobs, "Beach Day", ingest.KindVideo)
	testsupport.MustPutJob(t, e.store, job)

	if err := e.manager.Process(context.Background(), job.ID); err != nil {
		t.Fatalf("Process: %v", err)
	}

	evts := e.drain()
	if len(evts) < 3 {
		t.Fatalf("expected at least 3 events, got %d", len(evts))
	}
	if evts[0].Type != events.JobStarted {
		t.Fatalf("first event should be JOB_STARTED, got %s", evts[0].Type)
	}
	last := evts[len(evts)-1]
	if last.Type != events.JobCompleted || last.RepoID == "" {
		t.Fatalf("last event should be JOB_COMPLETED with repo id, got %+v", last)
	}
	var statuses []ingest.AssetStatus
	for _, evt := range evts[1 : len(evts)-1] {
		if evt.Type != events.AssetUpdate || evt.Asset == nil {
			t.Fatalf("expected only ASSET_UPDATE between start and completion, got %s", evt.Type)
		}
		statuses = append(statuses, evt.Asset.Status)
	}
	if statuses[0] != ingest.AssetProcessing || statuses[len(statuses)-1] != ingest.AssetReady {
		t.Fatalf("unexpected asset status sequence %v", statuses)
	}

	if _, err := e.store.GetJob(context.Background(), job.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("completed job must leave the pending store, got %v", err)
	}
	r, err := e.store.GetRepo(context.Background(), last.RepoID)
	if err != nil {
		t.Fatalf("GetRepo: %v", err)
	}
	if err := repo.Verify(r); err != nil {
		t.Fatalf("promoted repository inconsistent: %v", err)
	}
	if r.JobID != job.ID || len(r.Commits) != 1 {
		t.Fatalf("unexpected repository %+v", r.Summarize())
	}
}

func TestConcurrentProcessPromotesOnce(t *testing.T) {
	e := newEnv(t)
	job := testsupport.SeedJob(t, e.blobs, "race", ingest.KindVideo, ingest.KindImage)
	testsupport.MustPutJob(t, e.store, job)
	other := e.newManager(workflow.WithOwner("second-process"))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		mgr := e.manager
		if i%2 == 1 {
			mgr = other
		}
		go func() {
			defer wg.Done()
			_ = mgr.Process(context.Background(), job.ID)
		}()
	}
	wg.Wait()
	// A trigger arriving after promotion is a no-op too.
	if err := e.manager.Process(context.Background(), job.ID); err != nil {
		t.Fatalf("late Process: %v", err)
	}

	evts := e.drain()
	if got := countType(evts, events.JobCompleted); got != 1 {
		t.Fatalf("expected exactly one JOB_COMPLETED, got %d", got)
	}
	repos, err := e.store.ListRepos(context.Background())
	if err != nil {
		t.Fatalf("ListRepos: %v", err)
	}
	if len(repos) != 1 {
		t.Fatalf("expected one repository, got %d", len(repos))
	}
}

func TestSubscriberEncodesAssetUpdatesWhileRunning(t *testing.T) {
	e := newEnv(t)
	job := testsupport.SeedJob(t, e.blobs, "two clips", ingest.KindVideo, ingest.KindVideo)
	testsupport.MustPutJob(t, e.store, job)

	ctx, cancel := context.WithCancel(context.Background())
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		encoded int
		encErr  error
	)
	ready := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		ch, unsubscribe := e.bus.Subscribe(256)
		defer unsubscribe()
		close(ready)
		encode := func(evt events.Event) {
			_, err := json.Marshal(evt)
			mu.Lock()
			encoded++
			if err != nil && encErr == nil {
				encErr = err
			}
			mu.Unlock()
		}
		for {
			select {
			case evt := <-ch:
				encode(evt)
			case <-ctx.Done():
				for {
					select {
					case evt := <-ch:
						encode(evt)
					default:
						return
					}
				}
			}
		}
	}()
	<-ready

	if err := e.manager.Process(context.Background(), job.ID); err != nil {
		t.Fatalf("Process: %v", err)
	}
	evts := e.drain()
	cancel()
	wg.Wait()

	if countType(evts, events.JobCompleted) != 1 {
		t.Fatalf("expected completion, got %v", evts)
	}
	mu.Lock()
	defer mu.Unlock()
	if encErr != nil {
		t.Fatalf("marshal event: %v", encErr)
	}
	if encoded == 0 {
		t.Fatal("subscriber saw no events")
	}
}

func TestTranscriptionErrorDoesNotBlockCompletion(t *testing.T) {
	e := newEnv(t)
	job := testsupport.SeedJob(t, e.blobs, "pair", ingest.KindVideo, ingest.KindVideo)
	e.transcriber.FailFor = "video-2"
	testsupport.MustPutJob(t, e.store, job)

	if err := e.manager.Process(context.Background(), job.ID); err != nil {
		t.Fatalf("Process: %v", err)
	}

	evts := e.drain()
	if countType(evts, events.JobCompleted) != 1 || countType(evts, events.JobFailed) != 0 {
		t.Fatalf("expected completion without failure, got %v", evts)
	}
	final := map[string]ingest.Asset{}
	for _, evt := range evts {
		if evt.Type == events.AssetUpdate && evt.Asset != nil {
			final[evt.Asset.ID] = *evt.Asset
		}
	}
	if len(final) != 2 {
		t.Fatalf("expected updates for 2 assets, got %d", len(final))
	}
	degraded := 0
	for _, asset := range final {
		if asset.Status != ingest.AssetReady {
			t.Fatalf("asset %s should be ready, got %s", asset.Name, asset.Status)
		}
		if asset.StageErrors[ingest.StageTranscription] != "" {
			degraded++
		}
	}
	if degraded != 1 {
		t.Fatalf("expected one degraded transcription, got %d", degraded)
	}
}

func TestPromotionFailureKeepsJobPending(t *testing.T) {
	e := newEnv(t)
	job := testsupport.SeedJob(t, e.blobs, "unpromotable", ingest.KindImage)
	testsupport.MustPutJob(t, e.store, job)

	db, err := sql.Open("sqlite", e.store.Path())
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()
	if _, err := db.Exec(`CREATE TRIGGER reject_repos BEFORE INSERT ON repos
		BEGIN SELECT RAISE(ABORT, 'repository insert rejected'); END`); err != nil {
		t.Fatalf("create trigger: %v", err)
	}

	if err := e.manager.Process(context.Background(), job.ID); err == nil {
		t.Fatal("expected promotion failure")
	}
	evts := e.drain()
	if countType(evts, events.JobFailed) != 1 || countType(evts, events.JobCompleted) != 0 {
		t.Fatalf("expected JOB_FAILED without completion, got %v", evts)
	}
	pending, err := e.store.GetJob(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("job should still be pending: %v", err)
	}
	if pending.Status != ingest.JobIngesting || !pending.AllTerminal() {
		t.Fatalf("unexpected pending job %+v", pending)
	}
	if repos, err := e.store.ListRepos(context.Background()); err != nil || len(repos) != 0 {
		t.Fatalf("expected no repositories, got %v %v", repos, err)
	}

	if _, err := db.Exec("DROP TRIGGER reject_repos"); err != nil {
		t.Fatalf("drop trigger: %v", err)
	}
	if err := e.manager.Process(context.Background(), job.ID); err != nil {
		t.Fatalf("second Process: %v", err)
	}
	if countType(e.drain(), events.JobCompleted) != 1 {
		t.Fatal("job should complete once promotion succeeds")
	}
	if e.tagger.Calls() != 1 {
		t.Fatalf("finished asset must not be reprocessed, tagger calls %d", e.tagger.Calls())
	}
}

func TestProcessSkipsReadyAssets(t *testing.T) {
	e := newEnv(t)
	job := testsupport.SeedJob(t, e.blobs, "half done", ingest.KindVideo, ingest.KindVideo)
	job.Assets[0].Status = ingest.AssetReady
	job.Assets[0].Progress = 100
	testsupport.MustPutJob(t, e.store, job)

	if err := e.manager.Process(context.Background(), job.ID); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if countType(e.drain(), events.JobCompleted) != 1 {
		t.Fatal("job should complete")
	}
	if got := e.sampler.Calls(); got != 1 {
		t.Fatalf("expected frames sampled for one asset, got %d", got)
	}
	if got := e.transcriber.Calls(); got != 1 {
		t.Fatalf("expected one transcription, got %d", got)
	}
	if got := e.tagger.Calls(); got != 1 {
		t.Fatalf("expected one tagging call, got %d", got)
	}
}

func TestForeignLeaseMakesTriggerNoop(t *testing.T) {
	e := newEnv(t)
	job := testsupport.SeedJob(t, e.blobs, "leased", ingest.KindImage)
	testsupport.MustPutJob(t, e.store, job)
	claimed, err := e.store.ClaimLease(context.Background(), job.ID, "someone-else", time.Minute)
	if err != nil || !claimed {
		t.Fatalf("ClaimLease: %v %v", claimed, err)
	}

	if err := e.manager.Process(context.Background(), job.ID); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if evts := e.drain(); len(evts) != 0 {
		t.Fatalf("expected no events, got %v", evts)
	}
	if e.tagger.Calls() != 0 {
		t.Fatal("leased job must not be processed")
	}
}

func TestResumeReclaimsStaleLease(t *testing.T) {
	e := newEnv(t)
	e.cfg.Workflow.HeartbeatTimeout = 1
	job := testsupport.SeedJob(t, e.blobs, "stale", ingest.KindImage)
	testsupport.MustPutJob(t, e.store, job)
	if _, err := e.store.ClaimLease(context.Background(), job.ID, "crashed-process", time.Minute); err != nil {
		t.Fatalf("ClaimLease: %v", err)
	}
	time.Sleep(1100 * time.Millisecond)

	manager := e.newManager()
	ids, err := manager.Resume(context.Background())
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	manager.Wait()
	if len(ids) != 1 || ids[0] != job.ID {
		t.Fatalf("expected resumed job %s, got %v", job.ID, ids)
	}
	if countType(e.drain(), events.JobCompleted) != 1 {
		t.Fatal("resumed job should complete")
	}
}

func TestRetryAssetReprocessesFailedJob(t *testing.T) {
	e := newEnv(t)
	job := testsupport.SeedJob(t, e.blobs, "retry", ingest.KindImage)
	job.Status = ingest.JobFailed
	job.Assets[0].Fail("semantic: tagger unavailable")
	testsupport.MustPutJob(t, e.store, job)

	retried, err := e.manager.RetryAsset(context.Background(), job.ID, job.Assets[0].ID)
	if err != nil {
		t.Fatalf("RetryAsset: %v", err)
	}
	if retried.Status != ingest.AssetPending || retried.Error != "" {
		t.Fatalf("expected pending asset, got %+v", retried)
	}
	if _, err := e.manager.RetryAsset(context.Background(), job.ID, job.Assets[0].ID); err == nil {
		t.Fatal("retrying a pending asset should fail")
	}

	if err := e.manager.Process(context.Background(), job.ID); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if e.tagger.Calls() != 1 {
		t.Fatalf("expected tagger called once, got %d", e.tagger.Calls())
	}
	if countType(e.drain(), events.JobCompleted) != 1 {
		t.Fatal("retried job should complete")
	}
}

func TestSubmitValidatesAndImports(t *testing.T) {
	e := newEnv(t)

	_, err := e.manager.Submit(context.Background(), workflow.SubmitRequest{Brief: "no name"})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	var verr *workflow.ValidationError
	if !errors.As(err, &verr) || len(verr.Fields) == 0 {
		t.Fatalf("expected field errors, got %v", err)
	}

	path := filepath.Join(t.TempDir(), "Sunset Walk.mp4")
	testsupport.WriteFile(t, path, 128)
	id, err := e.manager.Submit(context.Background(), workflow.SubmitRequest{
		Name:   "Evening",
		Brief:  "walk",
		Assets: []workflow.AssetInput{{Path: path}},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	job, err := e.store.GetJob(context.Background(), id)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if job.Status != ingest.JobIngesting || len(job.Assets) != 1 {
		t.Fatalf("unexpected job %+v", job)
	}
	asset := job.Assets[0]
	if asset.Kind != ingest.KindVideo || asset.Name != "Sunset Walk.mp4" || asset.Size != 128 {
		t.Fatalf("unexpected asset %+v", asset)
	}
	obj, err := e.blobs.Get(context.Background(), asset.RawBlobRef)
	if err != nil || obj.OwnerID != id {
		t.Fatalf("raw blob should be owned by job: %+v %v", obj, err)
	}

	_, err = e.manager.Submit(context.Background(), workflow.SubmitRequest{
		Name:   "Missing",
		Assets: []workflow.AssetInput{{Path: filepath.Join(t.TempDir(), "nope.mp4")}},
	})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for missing file, got %v", err)
	}
}

func TestSubmitCopiesForeignBlobToJob(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	staged, err := e.blobs.Put(ctx, blobstore.Object{
		OwnerID:     "uploads",
		Kind:        "raw",
		Name:        "harbor.jpg",
		ContentType: "image/jpeg",
		Data:        testsupport.MediaBytes(32),
	})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	id, err := e.manager.Submit(ctx, workflow.SubmitRequest{
		Name:   "Harbor",
		Assets: []workflow.AssetInput{{RawBlobRef: staged}},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	job, err := e.store.GetJob(ctx, id)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	ref := job.Assets[0].RawBlobRef
	if ref == staged {
		t.Fatal("job must not share a blob owned elsewhere")
	}
	if obj, err := e.blobs.Get(ctx, ref); err != nil || obj.OwnerID != id || obj.Name != "harbor.jpg" {
		t.Fatalf("copied blob should be owned by job: %+v %v", obj, err)
	}

	if err := e.manager.Process(ctx, id); err != nil {
		t.Fatalf("Process: %v", err)
	}
	repos, err := e.store.ListRepos(ctx)
	if err != nil || len(repos) != 1 {
		t.Fatalf("ListRepos: %v %v", repos, err)
	}
	if obj, err := e.blobs.Get(ctx, ref); err != nil || obj.OwnerID != repos[0].ID {
		t.Fatalf("raw blob should move to repository: %+v %v", obj, err)
	}
	if obj, err := e.blobs.Get(ctx, staged); err != nil || obj.OwnerID != "uploads" {
		t.Fatalf("staged blob should be untouched: %+v %v", obj, err)
	}
}

func TestStartResumesAndStopWaits(t *testing.T) {
	e := newEnv(t)
	job := testsupport.SeedJob(t, e.blobs, "boot", ingest.KindImage)
	testsupport.MustPutJob(t, e.store, job)

	if err := e.manager.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := e.manager.Start(context.Background()); err == nil {
		t.Fatal("second Start should fail")
	}
	e.manager.Wait()
	e.manager.Stop()

	if countType(e.drain(), events.JobCompleted) != 1 {
		t.Fatal("pending job should be resumed on start")
	}
	status := e.manager.Status(context.Background())
	if status.Running || len(status.Active) != 0 {
		t.Fatalf("unexpected status %+v", status)
	}
}
