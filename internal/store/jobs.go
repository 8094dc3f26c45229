package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"mediarepo/internal/ingest"
	"mediarepo/internal/repo"
)

const jobColumns = "id, data_json, lease_owner, last_heartbeat"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*ingest.Job, error) {
	var (
		id           string
		data         string
		leaseOwner   sql.NullString
		heartbeatRaw sql.NullString
	)
	if err := scanner.Scan(&id, &data, &leaseOwner, &heartbeatRaw); err != nil {
		return nil, err
	}
	var job ingest.Job
	if err := json.Unmarshal([]byte(data), &job); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", id, err)
	}
	job.ID = id
	job.LeaseOwner = leaseOwner.String
	job.LastHeartbeat = nil
	if heartbeatRaw.Valid {
		if hb, err := parseTimeString(heartbeatRaw.String); err == nil {
			job.LastHeartbeat = &hb
		}
	}
	return &job, nil
}

func encodeJob(job *ingest.Job) (string, error) {
	cp := *job
	cp.LeaseOwner = ""
	cp.LastHeartbeat = nil
	data, err := json.Marshal(cp)
	if err != nil {
		return "", fmt.Errorf("encode job %s: %w", job.ID, err)
	}
	return string(data), nil
}

// PutJob inserts or replaces a pending job document. Lease columns are left
// untouched on update.
func (s *Store) PutJob(ctx context.Context, job *ingest.Job) error {
	if job == nil || job.ID == "" {
		return errors.New("job id is required")
	}
	unlock := s.lockJob(job.ID)
	defer unlock()

	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	data, err := encodeJob(job)
	if err != nil {
		return err
	}
	return s.withRecovery(ctx, func() error {
		_, err := s.db.ExecContext(ensureContext(ctx),
			`INSERT INTO pending_jobs (id, name, status, data_json, created_at, updated_at)
             VALUES (?, ?, ?, ?, ?, ?)
             ON CONFLICT(id) DO UPDATE SET
                name = excluded.name,
                status = excluded.status,
                data_json = excluded.data_json,
                updated_at = excluded.updated_at`,
			job.ID, job.Name, string(job.Status), data, formatTime(job.CreatedAt), formatTime(job.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("put job %s: %w", job.ID, err)
		}
		return nil
	})
}

// GetJob loads a pending job.
func (s *Store) GetJob(ctx context.Context, id string) (*ingest.Job, error) {
	ctx = ensureContext(ctx)
	var job *ingest.Job
	err := retryOnBusy(ctx, func() error {
		row := s.db.QueryRowContext(ctx, "SELECT "+jobColumns+" FROM pending_jobs WHERE id = ?", id)
		scanned, err := scanJob(row)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("job %s: %w", id, ErrNotFound)
			}
			return fmt.Errorf("get job %s: %w", id, err)
		}
		job = scanned
		return nil
	})
	return job, err
}

// ListJobs returns pending jobs oldest first, optionally filtered by status.
func (s *Store) ListJobs(ctx context.Context, statuses ...ingest.JobStatus) ([]*ingest.Job, error) {
	ctx = ensureContext(ctx)
	query := "SELECT " + jobColumns + " FROM pending_jobs"
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += " WHERE status IN (" + makePlaceholders(len(statuses)) + ")"
		for _, status := range statuses {
			args = append(args, string(status))
		}
	}
	query += " ORDER BY created_at, id"

	var jobs []*ingest.Job
	err := retryOnBusy(ctx, func() error {
		jobs = nil
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("list jobs: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			job, err := scanJob(rows)
			if err != nil {
				return err
			}
			jobs = append(jobs, job)
		}
		return rows.Err()
	})
	return jobs, err
}

// UpdateJob performs a serialized read-modify-write of one job. fn runs inside
// the transaction; returning an error aborts without writing.
func (s *Store) UpdateJob(ctx context.Context, id string, fn func(*ingest.Job) error) (*ingest.Job, error) {
	unlock := s.lockJob(id)
	defer unlock()

	ctx = ensureContext(ctx)
	var updated *ingest.Job
	err := s.withRecovery(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin job tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		job, err := scanJob(tx.QueryRowContext(ctx, "SELECT "+jobColumns+" FROM pending_jobs WHERE id = ?", id))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("job %s: %w", id, ErrNotFound)
			}
			return fmt.Errorf("load job %s: %w", id, err)
		}
		if err := fn(job); err != nil {
			return fmt.Errorf("%w: %w", errMutation, err)
		}
		job.ID = id
		job.UpdatedAt = time.Now().UTC()
		data, err := encodeJob(job)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE pending_jobs SET name = ?, status = ?, data_json = ?, updated_at = ? WHERE id = ?",
			job.Name, string(job.Status), data, formatTime(job.UpdatedAt), id,
		); err != nil {
			return fmt.Errorf("update job %s: %w", id, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit job %s: %w", id, err)
		}
		updated = job
		return nil
	})
	if err != nil {
		return nil, unwrapMutation(err)
	}
	return updated, nil
}

// UpdateAsset replaces one asset inside its job.
func (s *Store) UpdateAsset(ctx context.Context, jobID string, asset ingest.Asset) (*ingest.Job, error) {
	return s.UpdateJob(ctx, jobID, func(job *ingest.Job) error {
		idx := job.AssetIndex(asset.ID)
		if idx < 0 {
			return fmt.Errorf("asset %s in job %s: %w", asset.ID, jobID, ErrNotFound)
		}
		job.Assets[idx] = asset
		return nil
	})
}

// DeleteJob removes a pending job. Deleting a missing job is not an error.
func (s *Store) DeleteJob(ctx context.Context, id string) error {
	unlock := s.lockJob(id)
	defer unlock()
	return s.withRecovery(ctx, func() error {
		if _, err := s.db.ExecContext(ensureContext(ctx), "DELETE FROM pending_jobs WHERE id = ?", id); err != nil {
			return fmt.Errorf("delete job %s: %w", id, err)
		}
		return nil
	})
}

// Promote persists the repository, hands blob ownership from the job to the
// repository, and deletes the pending job in one transaction. On failure
// nothing changes and the job stays pending.
func (s *Store) Promote(ctx context.Context, r *repo.Repository, jobID string) error {
	unlock := s.lockJob(jobID)
	defer unlock()

	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode repository %s: %w", r.ID, err)
	}
	ctx = ensureContext(ctx)
	return s.withRecovery(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin promote tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO repos (id, name, job_id, data_json, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
			r.ID, r.Name, nullableString(jobID), string(data), formatTime(r.Created), formatTime(r.Updated),
		); err != nil {
			return fmt.Errorf("insert repository %s: %w", r.ID, err)
		}
		if _, err := tx.ExecContext(ctx, "UPDATE assets SET owner_id = ? WHERE owner_id = ?", r.ID, jobID); err != nil {
			return fmt.Errorf("transfer blobs to %s: %w", r.ID, err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM pending_jobs WHERE id = ?", jobID); err != nil {
			return fmt.Errorf("delete promoted job %s: %w", jobID, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit promote %s: %w", jobID, err)
		}
		return nil
	})
}

// JobStats counts pending jobs by status.
func (s *Store) JobStats(ctx context.Context) (map[ingest.JobStatus]int, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, "SELECT status, COUNT(1) FROM pending_jobs GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[ingest.JobStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[ingest.JobStatus(status)] = count
	}
	return stats, rows.Err()
}

func unwrapMutation(err error) error {
	var joined interface{ Unwrap() []error }
	if !errors.Is(err, errMutation) || !errors.As(err, &joined) {
		return err
	}
	for _, inner := range joined.Unwrap() {
		if inner != errMutation {
			return inner
		}
	}
	return err
}
