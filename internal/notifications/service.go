package notifications

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"mediarepo/internal/config"
	"mediarepo/internal/events"
	"mediarepo/internal/logging"
)

const userAgent = "mediarepo/0.1.0"

// Service defines the notification surface used by the daemon.
type Service interface {
	NotifyJobCompleted(ctx context.Context, jobID, repoID string) error
	NotifyJobFailed(ctx context.Context, jobID, reason string) error
	TestNotification(ctx context.Context) error
}

// NewService builds an ntfy-backed service, or a noop one when no topic is
// configured.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}
	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint:     topic,
		client:       &http.Client{Timeout: timeout},
		jobCompleted: cfg.Notifications.JobCompleted,
		jobFailed:    cfg.Notifications.JobFailed,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint     string
	client       *http.Client
	jobCompleted bool
	jobFailed    bool
}

func (n *ntfyService) NotifyJobCompleted(ctx context.Context, jobID, repoID string) error {
	if !n.jobCompleted {
		return nil
	}
	message := fmt.Sprintf("✅ Job %s ingested", jobID)
	if repoID != "" {
		message += " as repository " + repoID
	}
	return n.send(ctx, payload{
		title:   "mediarepo - Ingest Complete",
		message: message,
		tags:    []string{"mediarepo", "ingest", "completed"},
	})
}

func (n *ntfyService) NotifyJobFailed(ctx context.Context, jobID, reason string) error {
	if !n.jobFailed {
		return nil
	}
	message := fmt.Sprintf("❌ Job %s failed", jobID)
	if reason = strings.TrimSpace(reason); reason != "" {
		message += ": " + reason
	}
	return n.send(ctx, payload{
		title:    "mediarepo - Ingest Failed",
		message:  message,
		tags:     []string{"mediarepo", "ingest", "error"},
		priority: "high",
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "mediarepo - Test",
		message:  "🧪 Notification system test",
		tags:     []string{"mediarepo", "test"},
		priority: "low",
	})
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyJobCompleted(context.Context, string, string) error { return nil }
func (noopService) NotifyJobFailed(context.Context, string, string) error    { return nil }
func (noopService) TestNotification(context.Context) error                  { return nil }

// Dispatch sends the notification matching e, if any.
func Dispatch(ctx context.Context, svc Service, e events.Event) error {
	switch e.Type {
	case events.JobCompleted:
		return svc.NotifyJobCompleted(ctx, e.JobID, e.RepoID)
	case events.JobFailed:
		return svc.NotifyJobFailed(ctx, e.JobID, e.Error)
	}
	return nil
}

// Listen forwards job completions and failures from bus to svc until ctx
// ends. Delivery errors are logged and otherwise ignored.
func Listen(ctx context.Context, bus *events.Bus, svc Service, logger *slog.Logger) {
	if bus == nil || svc == nil {
		return
	}
	logger = logging.NewComponentLogger(logger, "notifications")
	bus.Run(ctx, events.DefaultBuffer, func(e events.Event) {
		if err := Dispatch(ctx, svc, e); err != nil {
			logging.WarnWithContext(logger, "notification delivery failed", "notify_failed",
				logging.String(logging.FieldJobID, e.JobID),
				logging.String(logging.FieldEventType, string(e.Type)),
				logging.Error(err),
				logging.String(logging.FieldImpact, "push notification not delivered"),
			)
		}
	})
}
