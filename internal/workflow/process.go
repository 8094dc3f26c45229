package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"mediarepo/internal/events"
	"mediarepo/internal/ingest"
	"mediarepo/internal/logging"
	"mediarepo/internal/pipeline"
	"mediarepo/internal/repo"
	"mediarepo/internal/services"
	"mediarepo/internal/store"
)

// Process runs jobID to completion. It is a no-op when the job is already
// active in this process, leased by another live process, or gone (already
// promoted). The returned error describes a failed run; asset failures are
// not run failures.
func (m *Manager) Process(ctx context.Context, jobID string) error {
	if !m.activate(jobID) {
		m.logger.Debug("duplicate trigger ignored", logging.String(logging.FieldJobID, jobID))
		return nil
	}
	defer m.deactivate(jobID)
	m.setLastJob(jobID)

	ctx = services.WithJobID(ctx, jobID)
	claimed, err := m.store.ClaimLease(ctx, jobID, m.owner, m.cfg.HeartbeatTimeout())
	if errors.Is(err, store.ErrNotFound) {
		m.logger.Debug("trigger for missing job ignored", logging.String(logging.FieldJobID, jobID))
		return nil
	}
	if err != nil {
		return m.failRun(ctx, jobID, fmt.Errorf("claim lease: %w", err), false)
	}
	if !claimed {
		m.logger.Info("job leased by another worker; trigger ignored",
			logging.String(logging.FieldEventType, "lease_busy"),
			logging.String(logging.FieldJobID, jobID),
		)
		return nil
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	var hb sync.WaitGroup
	hb.Add(1)
	go func() {
		defer hb.Done()
		m.heartbeat.StartLoop(runCtx, jobID, m.owner, func() { cancel(store.ErrLeaseLost) })
	}()
	defer func() {
		cancel(nil)
		hb.Wait()
		releaseCtx, done := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer done()
		if err := m.store.ReleaseLease(releaseCtx, jobID, m.owner); err != nil {
			m.logger.Warn("release lease failed", logging.String(logging.FieldJobID, jobID), logging.Error(err))
		}
	}()

	job, err := m.store.UpdateJob(runCtx, jobID, func(j *ingest.Job) error {
		j.Status = ingest.JobIngesting
		j.Error = ""
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return m.failRun(ctx, jobID, fmt.Errorf("load job: %w", err), false)
	}

	logger, closeLog := m.jobLogs.Logger(m.logger, job)
	defer closeLog()
	logger = logging.WithContext(runCtx, logger)

	m.publish(events.Event{Type: events.JobStarted, JobID: jobID})
	logger.Info("job started",
		logging.String(logging.FieldEventType, "job_start"),
		logging.String("job_name", job.Name),
		logging.Int("assets", len(job.Assets)),
	)

	if err := m.runAssets(runCtx, logger, job); err != nil {
		if cause := context.Cause(runCtx); errors.Is(cause, store.ErrLeaseLost) {
			return m.failRun(ctx, jobID, cause, false)
		}
		if ctx.Err() != nil {
			// Shutdown: leave the job ingesting so the next start resumes it.
			return m.failRun(ctx, jobID, err, false)
		}
		return m.failRun(ctx, jobID, err, true)
	}

	return m.promote(runCtx, logger, jobID)
}

// runAssets processes every non-terminal asset with a bounded pool. Each
// asset's result is persisted before its slot takes the next asset.
func (m *Manager) runAssets(ctx context.Context, logger *slog.Logger, job *ingest.Job) error {
	limit := m.cfg.Pipeline.Concurrency
	if limit < 1 {
		limit = 1
	}
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(limit)

	jobCtx := pipeline.JobContext{JobID: job.ID, Brief: job.Brief}
	for i := range job.Assets {
		asset := job.Assets[i]
		if asset.Terminal() {
			continue
		}
		group.Go(func() error {
			return m.runner.Run(groupCtx, jobCtx, &asset, m.persistAsset(job.ID))
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}
	logger.Info("all assets finished", logging.String(logging.FieldEventType, "assets_finished"))
	return nil
}

func (m *Manager) persistAsset(jobID string) pipeline.PersistFunc {
	return func(ctx context.Context, asset ingest.Asset) error {
		if _, err := m.store.UpdateAsset(ctx, jobID, asset); err != nil {
			return err
		}
		snapshot := asset.Clone()
		m.publish(events.Event{Type: events.AssetUpdate, JobID: jobID, Asset: &snapshot})
		return nil
	}
}

// promote builds the repository after the barrier and hands it to the store.
// A failed promotion keeps the job pending (still ingesting) for a later run.
func (m *Manager) promote(ctx context.Context, logger *slog.Logger, jobID string) error {
	job, err := m.store.GetJob(ctx, jobID)
	if err != nil {
		return m.failRun(ctx, jobID, fmt.Errorf("reload job: %w", err), false)
	}
	if !job.AllTerminal() {
		return m.failRun(ctx, jobID, fmt.Errorf("job %s has unfinished assets after run", jobID), true)
	}

	repository := repo.BuildFromJob(job, m.writer)
	if err := m.store.Promote(ctx, repository, jobID); err != nil {
		logging.ErrorWithContext(logger, "promotion failed; job kept pending", "promotion_failed",
			logging.String(logging.FieldErrorHint, "check store health, then process the job again"),
			logging.Error(err),
		)
		return m.failRun(ctx, jobID, fmt.Errorf("promote: %w", err), false)
	}

	counts := job.Counts()
	logger.Info("job completed",
		logging.String(logging.FieldEventType, "job_completed"),
		logging.String(logging.FieldRepoID, repository.ID),
		logging.Int("ready", counts[ingest.AssetReady]),
		logging.Int("errored", counts[ingest.AssetError]),
	)
	m.publish(events.Event{Type: events.JobCompleted, JobID: jobID, RepoID: repository.ID})
	return nil
}

// failRun records a run failure and broadcasts JOB_FAILED. markFailed moves
// the job to failed; otherwise it stays ingesting with the error noted.
func (m *Manager) failRun(ctx context.Context, jobID string, runErr error, markFailed bool) error {
	m.setLastError(runErr)
	message := strings.TrimSpace(services.Details(runErr).Message)
	if message == "" {
		message = runErr.Error()
	}

	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if _, err := m.store.UpdateJob(persistCtx, jobID, func(j *ingest.Job) error {
		if markFailed {
			j.Status = ingest.JobFailed
		}
		j.Error = message
		return nil
	}); err != nil && !errors.Is(err, store.ErrNotFound) {
		m.logger.Error("persist job failure", logging.String(logging.FieldJobID, jobID), logging.Error(err))
	}

	logging.ErrorWithContext(m.logger, "job run failed", "job_failed",
		logging.String(logging.FieldJobID, jobID),
		logging.Bool("marked_failed", markFailed),
		logging.Error(runErr),
	)
	m.publish(events.Event{Type: events.JobFailed, JobID: jobID, Error: message})
	return runErr
}
