package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"

	"mediarepo/internal/blobstore"
	"mediarepo/internal/config"
	"mediarepo/internal/events"
	"mediarepo/internal/logging"
	"mediarepo/internal/notifications"
	"mediarepo/internal/pipeline"
	"mediarepo/internal/preflight"
	"mediarepo/internal/repo"
	"mediarepo/internal/staging"
	"mediarepo/internal/store"
	"mediarepo/internal/workflow"
)

// Dependencies are the collaborators a daemon coordinates.
type Dependencies struct {
	Store    *store.Store
	Blobs    blobstore.Store
	Bus      *events.Bus
	Workflow *workflow.Manager
	Clients  pipeline.Clients
	Hub      *logging.StreamHub
	Notifier notifications.Service
	Writer   *repo.Writer
}

// Daemon coordinates background processing and the HTTP API, and enforces
// single-instance execution.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	deps   Dependencies

	lockPath string
	lock     *flock.Flock
	api      *apiServer

	mu      sync.Mutex
	checks  []preflight.Result
	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running       bool
	PID           int
	StorePath     string
	LockFilePath  string
	Workflow      workflow.StatusSummary
	Checks        []preflight.Result
	EventsDropped uint64
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, logger *slog.Logger, deps Dependencies) (*Daemon, error) {
	if cfg == nil || deps.Store == nil || deps.Workflow == nil || deps.Bus == nil {
		return nil, errors.New("daemon requires config, store, event bus, and workflow manager")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if deps.Notifier == nil {
		deps.Notifier = notifications.NewService(cfg)
	}
	if deps.Writer == nil {
		deps.Writer = repo.NewWriter(repo.DefaultAuthor)
	}
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		deps:     deps,
		lockPath: cfg.LockPath(),
		lock:     flock.New(cfg.LockPath()),
	}
	d.api = newAPIServer(cfg.Paths.APIBind, d, logger)
	return d, nil
}

// Start acquires the daemon lock, runs preflight checks, starts the workflow
// manager, attaches notifications, and begins serving the API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another mediarepo daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.runPreflight(runCtx)
	staging.CleanStale(runCtx, d.cfg.Paths.StagingDir, staging.DefaultMaxAge, d.logger)

	if err := d.deps.Workflow.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start workflow: %w", err)
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		notifications.Listen(runCtx, d.deps.Bus, d.deps.Notifier, d.logger)
	}()

	if err := d.api.start(runCtx); err != nil {
		cancel()
		d.deps.Workflow.Stop()
		d.wg.Wait()
		_ = d.lock.Unlock()
		return err
	}

	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("mediarepo daemon started",
		logging.String(logging.FieldEventType, "daemon_start"),
		logging.String("lock", d.lockPath),
		logging.String("api", d.api.address()),
	)
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.stop()
	d.deps.Workflow.Stop()
	d.wg.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("mediarepo daemon stopped", logging.String(logging.FieldEventType, "daemon_stop"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	return d.deps.Store.Close()
}

// APIAddress returns the address the API listens on once started.
func (d *Daemon) APIAddress() string {
	return d.api.address()
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	d.mu.Lock()
	checks := append([]preflight.Result(nil), d.checks...)
	d.mu.Unlock()
	return Status{
		Running:       d.running.Load(),
		PID:           os.Getpid(),
		StorePath:     d.deps.Store.Path(),
		LockFilePath:  d.lockPath,
		Workflow:      d.deps.Workflow.Status(ctx),
		Checks:        checks,
		EventsDropped: d.deps.Bus.Dropped(),
	}
}

// RefreshChecks reruns preflight and returns the new results.
func (d *Daemon) RefreshChecks(ctx context.Context) []preflight.Result {
	return d.runPreflight(ctx)
}

// TestNotification sends a test push using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) error {
	return d.deps.Notifier.TestNotification(ctx)
}

func (d *Daemon) runPreflight(ctx context.Context) []preflight.Result {
	results := preflight.RunAll(ctx, d.cfg, d.deps.Store, d.deps.Clients)
	for _, r := range preflight.Failed(results) {
		logging.WarnWithContext(d.logger, "preflight check failed", "preflight_failed",
			logging.String("check", r.Name),
			logging.String("detail", r.Detail),
			logging.String(logging.FieldImpact, "stages depending on this check will fail or degrade"),
		)
	}
	d.mu.Lock()
	d.checks = results
	d.mu.Unlock()
	return results
}
