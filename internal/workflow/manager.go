package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"mediarepo/internal/blobstore"
	"mediarepo/internal/config"
	"mediarepo/internal/events"
	"mediarepo/internal/logging"
	"mediarepo/internal/pipeline"
	"mediarepo/internal/repo"
	"mediarepo/internal/store"
)

// Manager coordinates job processing.
type Manager struct {
	cfg       *config.Config
	store     *store.Store
	blobs     blobstore.Store
	runner    *pipeline.Runner
	bus       events.Publisher
	logger    *slog.Logger
	owner     string
	heartbeat *HeartbeatMonitor
	jobLogs   *JobLogger
	writer    *repo.Writer
	validate  *validator.Validate

	mu      sync.Mutex
	active  map[string]struct{}
	running bool
	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	lastErr error
	lastJob string
}

// Option configures optional Manager behavior.
type Option func(*Manager)

// WithOwner fixes the lease owner id (tests simulate a second process).
func WithOwner(owner string) Option {
	return func(m *Manager) {
		if owner != "" {
			m.owner = owner
		}
	}
}

// WithWriter overrides the commit writer (fixed clock in tests).
func WithWriter(w *repo.Writer) Option {
	return func(m *Manager) {
		if w != nil {
			m.writer = w
		}
	}
}

// NewManager constructs a workflow manager.
func NewManager(cfg *config.Config, st *store.Store, blobs blobstore.Store, runner *pipeline.Runner, bus events.Publisher, logger *slog.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "workflow")
	m := &Manager{
		cfg:       cfg,
		store:     st,
		blobs:     blobs,
		runner:    runner,
		bus:       bus,
		logger:    logger,
		owner:     uuid.NewString(),
		heartbeat: NewHeartbeatMonitor(st, logger, cfg.HeartbeatInterval(), cfg.HeartbeatTimeout()),
		jobLogs:   NewJobLogger(cfg),
		writer:    repo.NewWriter(repo.DefaultAuthor),
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		active:    make(map[string]struct{}),
		baseCtx:   context.Background(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Owner returns this process's lease owner id.
func (m *Manager) Owner() string {
	return m.owner
}

// Start enables background processing and, when configured, resumes pending
// jobs left by a previous run.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.baseCtx = runCtx
	m.cancel = cancel
	m.running = true
	m.mu.Unlock()

	m.logger.Info("workflow started",
		logging.String(logging.FieldEventType, "workflow_start"),
		logging.String("lease_owner", m.owner),
		logging.Int("concurrency", m.cfg.Pipeline.Concurrency),
	)
	if m.cfg.Workflow.ResumeOnStart {
		if _, err := m.Resume(runCtx); err != nil {
			m.setLastError(err)
			logging.WarnWithContext(m.logger, "resume pending jobs failed", "resume_failed",
				logging.String(logging.FieldErrorHint, "check store access; pending jobs can be processed manually"),
				logging.Error(err),
			)
		}
	}
	return nil
}

// Stop cancels background work and waits for it to finish.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		m.wg.Wait()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
	m.logger.Info("workflow stopped", logging.String(logging.FieldEventType, "workflow_stop"))
}

// Trigger processes jobID in the background. Duplicate triggers are ignored
// by Process itself.
func (m *Manager) Trigger(jobID string) {
	m.mu.Lock()
	ctx := m.baseCtx
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := m.Process(ctx, jobID); err != nil && !errors.Is(err, context.Canceled) {
			m.logger.Debug("background process ended with error", logging.String(logging.FieldJobID, jobID), logging.Error(err))
		}
	}()
}

// Wait blocks until all triggered work has returned.
func (m *Manager) Wait() {
	m.wg.Wait()
}

func (m *Manager) activate(jobID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.active[jobID]; ok {
		return false
	}
	m.active[jobID] = struct{}{}
	return true
}

func (m *Manager) deactivate(jobID string) {
	m.mu.Lock()
	delete(m.active, jobID)
	m.mu.Unlock()
}

// Active lists the job ids currently being processed by this process.
func (m *Manager) Active() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.active))
	for id := range m.active {
		ids = append(ids, id)
	}
	return ids
}

func (m *Manager) publish(e events.Event) {
	if m.bus == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	m.bus.Publish(e)
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) setLastJob(id string) {
	m.mu.Lock()
	m.lastJob = id
	m.mu.Unlock()
}
