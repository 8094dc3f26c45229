package workflow

import (
	"context"
	"fmt"

	"mediarepo/internal/events"
	"mediarepo/internal/ingest"
	"mediarepo/internal/logging"
	"mediarepo/internal/store"
)

// RetryAsset moves an errored asset back to pending, keeping the results of
// stages that already succeeded, and re-triggers the job when the manager is
// running.
func (m *Manager) RetryAsset(ctx context.Context, jobID, assetID string) (*ingest.Asset, error) {
	var retried ingest.Asset
	_, err := m.store.UpdateJob(ctx, jobID, func(j *ingest.Job) error {
		idx := j.AssetIndex(assetID)
		if idx < 0 {
			return fmt.Errorf("asset %s: %w", assetID, store.ErrNotFound)
		}
		if err := j.Assets[idx].Retry(); err != nil {
			return err
		}
		j.Status = ingest.JobIngesting
		j.Error = ""
		retried = j.Assets[idx].Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.logger.Info("asset queued for retry",
		logging.String(logging.FieldEventType, "asset_retry"),
		logging.String(logging.FieldJobID, jobID),
		logging.String(logging.FieldAssetID, assetID),
	)
	m.publish(events.Event{Type: events.AssetUpdate, JobID: jobID, Asset: &retried})

	m.mu.Lock()
	running := m.running
	m.mu.Unlock()
	if running {
		m.Trigger(jobID)
	}
	return &retried, nil
}

// Resume reclaims stale leases and triggers every ingesting job. It returns
// the ids it triggered.
func (m *Manager) Resume(ctx context.Context) ([]string, error) {
	if _, err := m.heartbeat.ReclaimStale(ctx); err != nil {
		logging.WarnWithContext(m.logger, "reclaim stale leases failed", "lease_reclaim_failed",
			logging.String(logging.FieldErrorHint, "check store access"),
			logging.Error(err),
		)
	}
	jobs, err := m.store.ListJobs(ctx, ingest.JobIngesting, ingest.JobIdle)
	if err != nil {
		return nil, fmt.Errorf("list pending jobs: %w", err)
	}
	ids := make([]string, 0, len(jobs))
	for _, job := range jobs {
		ids = append(ids, job.ID)
		m.Trigger(job.ID)
	}
	if len(ids) > 0 {
		m.logger.Info("resuming pending jobs",
			logging.String(logging.FieldEventType, "jobs_resumed"),
			logging.Int("count", len(ids)),
		)
	}
	return ids, nil
}
