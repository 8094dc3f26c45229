package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"mediarepo/internal/events"
	"mediarepo/internal/logging"
	"mediarepo/internal/notifications"
	"mediarepo/internal/testsupport"
)

type capture struct {
	mu       sync.Mutex
	requests []captured
}

type captured struct {
	title, body, tags, priority string
}

func (c *capture) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read body: %v", err)
		}
		c.mu.Lock()
		c.requests = append(c.requests, captured{
			title:    r.Header.Get("Title"),
			body:     string(body),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
		})
		c.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}
}

func (c *capture) all() []captured {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]captured(nil), c.requests...)
}

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(cfg)
	if err := svc.NotifyJobFailed(context.Background(), "job-1", "boom"); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	var c capture
	srv := httptest.NewServer(c.handler(t))
	defer srv.Close()

	svc := notifications.NewService(testsupport.NewConfig(t, testsupport.WithNtfyTopic(srv.URL)))
	ctx := context.Background()
	if err := notifications.Dispatch(ctx, svc, events.Event{Type: events.JobCompleted, JobID: "job-1", RepoID: "repo-9"}); err != nil {
		t.Fatalf("completed: %v", err)
	}
	if err := notifications.Dispatch(ctx, svc, events.Event{Type: events.JobFailed, JobID: "job-2", Error: "disk full"}); err != nil {
		t.Fatalf("failed: %v", err)
	}
	if err := notifications.Dispatch(ctx, svc, events.Event{Type: events.AssetUpdate, JobID: "job-2"}); err != nil {
		t.Fatalf("asset update: %v", err)
	}

	got := c.all()
	if len(got) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(got))
	}
	if got[0].title != "mediarepo - Ingest Complete" || got[0].body != "✅ Job job-1 ingested as repository repo-9" {
		t.Fatalf("unexpected completion payload: %+v", got[0])
	}
	if got[0].tags != "mediarepo,ingest,completed" || got[0].priority != "" {
		t.Fatalf("unexpected completion headers: %+v", got[0])
	}
	if got[1].body != "❌ Job job-2 failed: disk full" || got[1].priority != "high" {
		t.Fatalf("unexpected failure payload: %+v", got[1])
	}
}

func TestNtfyServiceIgnoresSuppressedEvents(t *testing.T) {
	var c capture
	srv := httptest.NewServer(c.handler(t))
	defer srv.Close()

	cfg := testsupport.NewConfig(t, testsupport.WithNtfyTopic(srv.URL))
	cfg.Notifications.JobCompleted = false
	svc := notifications.NewService(cfg)
	if err := svc.NotifyJobCompleted(context.Background(), "job-1", "repo-1"); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if got := c.all(); len(got) != 0 {
		t.Fatalf("expected suppressed notification, got %+v", got)
	}
}

func TestNtfyServiceReportsHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "topic closed", http.StatusForbidden)
	}))
	defer srv.Close()

	svc := notifications.NewService(testsupport.NewConfig(t, testsupport.WithNtfyTopic(srv.URL)))
	if err := svc.TestNotification(context.Background()); err == nil {
		t.Fatal("expected error for 403 response")
	}
}

func TestListenForwardsBusEvents(t *testing.T) {
	var c capture
	srv := httptest.NewServer(c.handler(t))
	defer srv.Close()

	svc := notifications.NewService(testsupport.NewConfig(t, testsupport.WithNtfyTopic(srv.URL)))
	bus := events.NewBus(logging.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		notifications.Listen(ctx, bus, svc, logging.NewNop())
		close(done)
	}()

	// The listener subscribes asynchronously; keep publishing until it hears one.
	deadline := time.Now().Add(2 * time.Second)
	for len(c.all()) == 0 && time.Now().Before(deadline) {
		bus.Publish(events.Event{Type: events.JobFailed, JobID: "job-7", Error: "lease lost"})
		time.Sleep(20 * time.Millisecond)
	}
	cancel()
	<-done

	got := c.all()
	if len(got) == 0 {
		t.Fatal("expected listener to forward a failure notification")
	}
	if got[0].body != "❌ Job job-7 failed: lease lost" {
		t.Fatalf("unexpected body %q", got[0].body)
	}
}
