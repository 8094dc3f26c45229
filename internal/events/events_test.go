package events_test

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"mediarepo/internal/events"
	"mediarepo/internal/ingest"
	"mediarepo/internal/logging"
)

func TestPublishFansOutToSubscribers(t *testing.T) {
	bus := events.NewBus(logging.NewNop())
	a, cancelA := bus.Subscribe(4)
	defer cancelA()
	b, cancelB := bus.Subscribe(4)
	defer cancelB()

	bus.Publish(events.Event{Type: events.JobStarted, JobID: "j1"})

	for _, ch := range []<-chan events.Event{a, b} {
		select {
		case e := <-ch:
			if e.Type != events.JobStarted || e.JobID != "j1" || e.Timestamp.IsZero() {
				t.Fatalf("unexpected event %+v", e)
			}
		default:
			t.Fatal("expected event delivered to every subscriber")
		}
	}
}

func TestPublishDropsWhenBufferFull(t *testing.T) {
	bus := events.NewBus(logging.NewNop())
	ch, cancel := bus.Subscribe(1)
	defer cancel()

	bus.Publish(events.Event{Type: events.JobStarted, JobID: "1"})
	bus.Publish(events.Event{Type: events.JobCompleted, JobID: "1"})

	if got := bus.Dropped(); got != 1 {
		t.Fatalf("expected one dropped delivery, got %d", got)
	}
	if e := <-ch; e.Type != events.JobStarted {
		t.Fatalf("expected first event kept, got %s", e.Type)
	}
}

func TestCancelClosesChannel(t *testing.T) {
	bus := events.NewBus(nil)
	ch, cancel := bus.Subscribe(1)
	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Fatal("expected closed channel")
	}
	bus.Publish(events.Event{Type: events.JobStarted, JobID: "x"})
}

func TestLine(t *testing.T) {
	asset := &ingest.Asset{ID: "a", Name: "clip", Kind: ingest.KindVideo, Status: ingest.AssetError, Error: "frame sampling failed"}
	line := events.Event{Type: events.AssetUpdate, JobID: "j", Asset: asset}.Line()
	if !strings.Contains(line, "clip") || !strings.Contains(line, "frame sampling failed") {
		t.Fatalf("unexpected line %q", line)
	}
	if line := (events.Event{Type: events.JobFailed, JobID: "j", Error: "boom"}).Line(); line != "job j failed: boom" {
		t.Fatalf("unexpected line %q", line)
	}
}

func TestErroredAssetLogKeepsPartialArtifacts(t *testing.T) {
	var logs bytes.Buffer
	bus := events.NewBus(slog.New(slog.NewJSONHandler(&logs, nil)))
	asset := &ingest.Asset{ID: "a", Name: "clip", Kind: ingest.KindVideo, Status: ingest.AssetError, Error: "frame sampling failed"}

	bus.Publish(events.Event{Type: events.AssetUpdate, JobID: "j", Asset: asset})

	out := logs.String()
	if !strings.Contains(out, `"impact":"asset kept with partial artifacts`) {
		t.Fatalf("unexpected impact in %s", out)
	}
	if strings.Contains(out, "excluded") {
		t.Fatalf("errored assets are not excluded: %s", out)
	}
}
