package daemon_test

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"gopkg.in/yaml.v3"

	"mediarepo/internal/api"
	"mediarepo/internal/blobstore"
	"mediarepo/internal/config"
	"mediarepo/internal/daemon"
	"mediarepo/internal/events"
	"mediarepo/internal/logging"
	"mediarepo/internal/pipeline"
	"mediarepo/internal/repo"
	"mediarepo/internal/testsupport"
	"mediarepo/internal/workflow"
)

type harness struct {
	cfg    *config.Config
	daemon *daemon.Daemon
	client *api.Client
	tagger *testsupport.FakeTagger
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	// No key keeps the startup LLM check offline.
	cfg.LLM.APIKey = ""
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	return cfg
}

func newDaemon(t *testing.T, cfg *config.Config) (*daemon.Daemon, *testsupport.FakeTagger) {
	t.Helper()
	st := testsupport.MustOpenStore(t, cfg)
	tagger := &testsupport.FakeTagger{}
	clients := pipeline.Clients{
		FrameSampler:   &testsupport.FakeFrameSampler{Frames: 2},
		AudioExtractor: &testsupport.FakeAudioExtractor{Size: 64},
		Transcriber:    &testsupport.FakeTranscriber{},
		Tagger:         tagger,
	}
	d, err := daemon.Assemble(cfg, logging.NewNop(), st, blobstore.NewSQLite(st), clients, logging.NewStreamHub(256))
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	return d, tagger
}

func startHarness(t *testing.T) *harness {
	t.Helper()
	cfg := testConfig(t)
	d, tagger := newDaemon(t, cfg)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		d.Stop()
	})
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return &harness{
		cfg:    cfg,
		daemon: d,
		client: api.NewClient(api.BaseURLForBind(d.APIAddress())),
		tagger: tagger,
	}
}

func (h *harness) submitImage(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(testsupport.BaseDir(h.cfg), "inbox", name)
	testsupport.WriteFile(t, path, 128)
	id, err := h.client.Submit(context.Background(), workflow.SubmitRequest{
		Name:   "Beach day",
		Brief:  "Photos from the coast.",
		Assets: []workflow.AssetInput{{Path: path}},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	return id
}

func (h *harness) waitForRepo(t *testing.T) repo.Summary {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		repos, err := h.client.ListRepos(context.Background())
		if err != nil {
			t.Fatalf("ListRepos: %v", err)
		}
		if len(repos) == 1 {
			return repos[0]
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("timed out waiting for repository")
	return repo.Summary{}
}

func TestDaemonStartStop(t *testing.T) {
	cfg := testConfig(t)
	d, _ := newDaemon(t, cfg)
	t.Cleanup(func() { d.Stop() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	status := d.Status(ctx)
	if !status.Running || !status.Workflow.Running {
		t.Fatalf("expected daemon and workflow running, got %+v", status)
	}
	if status.LockFilePath != cfg.LockPath() {
		t.Fatalf("unexpected lock path %q", status.LockFilePath)
	}
	if len(status.Checks) == 0 {
		t.Fatal("expected startup preflight results")
	}

	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	d.Stop()
	if d.Status(ctx).Running {
		t.Fatal("expected daemon to be stopped")
	}
}

func TestSecondDaemonIsLockedOut(t *testing.T) {
	cfg := testConfig(t)
	first, _ := newDaemon(t, cfg)
	t.Cleanup(func() { first.Stop() })
	ctx := context.Background()
	if err := first.Start(ctx); err != nil {
		t.Fatalf("first Start: %v", err)
	}

	second, _ := newDaemon(t, cfg)
	err := second.Start(ctx)
	if err == nil || !strings.Contains(err.Error(), "already running") {
		t.Fatalf("expected lock error, got %v", err)
	}
}

func TestSubmitThroughAPIProducesRepository(t *testing.T) {
	h := startHarness(t)
	ctx := context.Background()

	jobID := h.submitImage(t, "shore.jpg")
	summary := h.waitForRepo(t)
	if summary.Name != "Beach day" {
		t.Fatalf("unexpected repository name %q", summary.Name)
	}
	if _, err := h.client.GetJob(ctx, jobID); !api.IsNotFound(err) {
		t.Fatalf("expected promoted job to be gone, got %v", err)
	}

	full, err := h.client.GetRepo(ctx, summary.ID)
	if err != nil {
		t.Fatalf("GetRepo: %v", err)
	}
	if err := repo.Verify(full); err != nil {
		t.Fatalf("repository inconsistent: %v", err)
	}
	if repo.FindPath(full.FileTree, "tags/shore.txt") == nil {
		t.Fatalf("expected tags artifact, paths: %v", repo.Paths(full.FileTree))
	}

	exported, err := h.client.ExportRepo(ctx, summary.ID)
	if err != nil {
		t.Fatalf("ExportRepo: %v", err)
	}
	var decoded repo.Repository
	if err := yaml.Unmarshal(exported, &decoded); err != nil {
		t.Fatalf("export is not YAML: %v", err)
	}
	if decoded.ID != summary.ID || len(decoded.Commits) != 1 {
		t.Fatalf("unexpected export: id=%s commits=%d", decoded.ID, len(decoded.Commits))
	}
}

func TestRepositoryEditsRespectLocks(t *testing.T) {
	h := startHarness(t)
	ctx := context.Background()
	h.submitImage(t, "pier.jpg")
	summary := h.waitForRepo(t)

	full, err := h.client.GetRepo(ctx, summary.ID)
	if err != nil {
		t.Fatalf("GetRepo: %v", err)
	}
	locked := repo.FindPath(full.FileTree, "tags/pier.txt")
	if locked == nil {
		t.Fatal("expected tags/pier.txt")
	}
	_, err = h.client.DeleteNode(ctx, summary.ID, locked.ID, "")
	var se *api.StatusError
	if !errors.As(err, &se) || se.Status != http.StatusConflict {
		t.Fatalf("expected 409 for locked node, got %v", err)
	}

	content := "call the harbour master"
	added, err := h.client.AddNode(ctx, summary.ID, api.NodeRequest{ParentID: full.FileTree.ID, Name: "notes.md", Content: &content})
	if err != nil {
		t.Fatalf("AddNode: %v", err)
	}
	if added.Parent == nil || *added.Parent != full.Commits[0].ID {
		t.Fatalf("expected new commit on top of head, got %+v", added)
	}

	full, err = h.client.GetRepo(ctx, summary.ID)
	if err != nil {
		t.Fatalf("GetRepo: %v", err)
	}
	notes := repo.FindPath(full.FileTree, "notes.md")
	if notes == nil || notes.Content != content {
		t.Fatalf("expected notes.md with content, got %+v", notes)
	}
	if _, err := h.client.DeleteNode(ctx, summary.ID, notes.ID, "drop notes"); err != nil {
		t.Fatalf("DeleteNode: %v", err)
	}

	full, err = h.client.GetRepo(ctx, summary.ID)
	if err != nil {
		t.Fatalf("GetRepo: %v", err)
	}
	if len(full.Commits) != 3 || full.Commits[0].Message != "drop notes" {
		t.Fatalf("unexpected history: %+v", full.Commits)
	}
	if err := repo.Verify(full); err != nil {
		t.Fatalf("repository inconsistent after edits: %v", err)
	}
}

func TestSubmitRejectsInvalidRequest(t *testing.T) {
	h := startHarness(t)
	_, err := h.client.Submit(context.Background(), workflow.SubmitRequest{Name: "empty"})
	var se *api.StatusError
	if !errors.As(err, &se) || se.Status != http.StatusBadRequest || se.Kind != "validation" {
		t.Fatalf("expected 400 validation error, got %v", err)
	}
}

func TestEventStreamDeliversLifecycle(t *testing.T) {
	h := startHarness(t)

	url := "ws://" + h.daemon.APIAddress() + "/api/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial events: %v", err)
	}
	defer conn.Close()

	// The subscription is registered once the handler runs; give it a beat.
	time.Sleep(50 * time.Millisecond)
	jobID := h.submitImage(t, "dunes.jpg")

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var seen []events.Type
	for {
		var evt events.Event
		if err := conn.ReadJSON(&evt); err != nil {
			t.Fatalf("read event (seen %v): %v", seen, err)
		}
		if evt.JobID != jobID {
			continue
		}
		seen = append(seen, evt.Type)
		if evt.Type == events.JobCompleted {
			if evt.RepoID == "" {
				t.Fatal("expected repository id on completion")
			}
			break
		}
	}
	if seen[0] != events.JobStarted {
		t.Fatalf("expected JOB_STARTED first, got %v", seen)
	}
}

func TestLogsEndpointReturnsDaemonLines(t *testing.T) {
	cfg := testConfig(t)
	hub := logging.NewStreamHub(256)
	logger, err := logging.New(logging.Options{Level: "debug", Format: "json", OutputPaths: []string{filepath.Join(cfg.Paths.LogDir, "test.log")}, Hub: hub})
	if err != nil {
		t.Fatalf("logging.New: %v", err)
	}
	st := testsupport.MustOpenStore(t, cfg)
	d, err := daemon.Assemble(cfg, logger, st, blobstore.NewSQLite(st), pipeline.Clients{}, hub)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	t.Cleanup(func() { d.Stop() })
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	client := api.NewClient(api.BaseURLForBind(d.APIAddress()))
	resp, err := client.Logs(context.Background(), api.LogQuery{Tail: true, Limit: 50})
	if err != nil {
		t.Fatalf("Logs: %v", err)
	}
	found := false
	for _, evt := range resp.Events {
		if evt.Message == "mediarepo daemon started" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected daemon start line in %d events", len(resp.Events))
	}
}
