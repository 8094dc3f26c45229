// Package events is the in-process publish/subscribe bus for ingestion
// lifecycle events. Delivery is fire-and-forget and at most once: a
// subscriber whose buffer is full misses the event.
package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"mediarepo/internal/ingest"
	"mediarepo/internal/logging"
)

// Type names a lifecycle event.
type Type string

const (
	JobStarted   Type = "JOB_STARTED"
	AssetUpdate  Type = "ASSET_UPDATE"
	JobCompleted Type = "JOB_COMPLETED"
	JobFailed    Type = "JOB_FAILED"
)

// Event is one lifecycle notification.
type Event struct {
	Type      Type          `json:"type"`
	JobID     string        `json:"jobId"`
	Asset     *ingest.Asset `json:"asset,omitempty"`
	RepoID    string        `json:"repoId,omitempty"`
	Error     string        `json:"error,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// Line renders the event as a human-readable log line.
func (e Event) Line() string {
	switch e.Type {
	case JobStarted:
		return fmt.Sprintf("job %s started", e.JobID)
	case AssetUpdate:
		if e.Asset == nil {
			return fmt.Sprintf("job %s asset updated", e.JobID)
		}
		line := fmt.Sprintf("job %s asset %s (%s) %s %d%%", e.JobID, e.Asset.Name, e.Asset.Kind, e.Asset.Status, e.Asset.Progress)
		if e.Asset.Error != "" {
			line += ": " + e.Asset.Error
		}
		return line
	case JobCompleted:
		if e.RepoID != "" {
			return fmt.Sprintf("job %s completed as repository %s", e.JobID, e.RepoID)
		}
		return fmt.Sprintf("job %s completed", e.JobID)
	case JobFailed:
		return fmt.Sprintf("job %s failed: %s", e.JobID, e.Error)
	}
	return fmt.Sprintf("job %s %s", e.JobID, e.Type)
}

// Publisher is what producers depend on.
type Publisher interface {
	Publish(Event)
}

// DefaultBuffer is the per-subscriber channel capacity.
const DefaultBuffer = 64

// Bus fans events out to subscribers.
type Bus struct {
	mu      sync.RWMutex
	subs    map[uint64]chan Event
	nextID  uint64
	dropped atomic.Uint64
	logger  *slog.Logger
}

// NewBus returns a bus that also logs every event through logger.
func NewBus(logger *slog.Logger) *Bus {
	return &Bus{
		subs:   make(map[uint64]chan Event),
		logger: logging.NewComponentLogger(logger, "events"),
	}
}

// Subscribe registers a consumer. The returned cancel func unregisters it and
// closes the channel.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	ch := make(chan Event, buffer)
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Publish delivers e to every subscriber without blocking.
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	b.log(e)

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.dropped.Add(1)
		}
	}
}

// Dropped reports how many deliveries were skipped because a buffer was full.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Run invokes fn for each event until ctx ends. It is the usual way to attach
// a long-lived consumer.
func (b *Bus) Run(ctx context.Context, buffer int, fn func(Event)) {
	ch, cancel := b.Subscribe(buffer)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			fn(e)
		}
	}
}

func (b *Bus) log(e Event) {
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, string(e.Type)),
		logging.String(logging.FieldJobID, e.JobID),
	}
	if e.Asset != nil {
		attrs = append(attrs,
			logging.String(logging.FieldAssetID, e.Asset.ID),
			logging.String("asset_status", string(e.Asset.Status)),
		)
	}
	if e.RepoID != "" {
		attrs = append(attrs, logging.String(logging.FieldRepoID, e.RepoID))
	}
	switch {
	case e.Type == JobFailed:
		logging.ErrorWithContext(b.logger, e.Line(), "job_failed",
			append(attrs, logging.String(logging.FieldErrorHint, "retry errored assets with 'mediarepo jobs retry'"))...)
	case e.Type == AssetUpdate && e.Asset != nil && e.Asset.Status == ingest.AssetError:
		logging.WarnWithContext(b.logger, e.Line(), "asset_failed",
			append(attrs, logging.String(logging.FieldImpact, "asset kept with partial artifacts; retry with 'mediarepo jobs retry'"))...)
	case e.Type == AssetUpdate:
		b.logger.Debug(e.Line(), logging.Args(attrs...)...)
	default:
		b.logger.Info(e.Line(), logging.Args(attrs...)...)
	}
}
