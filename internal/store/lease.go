package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrLeaseLost is returned when a heartbeat finds the lease held by someone else.
var ErrLeaseLost = errors.New("job lease lost")

// ClaimLease takes the processing lease on a job for owner. The claim succeeds
// when the lease is free, already held by owner, or its heartbeat is older
// than timeout. It returns false when another live owner holds it.
func (s *Store) ClaimLease(ctx context.Context, jobID, owner string, timeout time.Duration) (bool, error) {
	ctx = ensureContext(ctx)
	now := time.Now().UTC()
	cutoff := now.Add(-timeout)
	var claimed bool
	err := s.withRecovery(ctx, func() error {
		res, err := s.db.ExecContext(ctx,
			`UPDATE pending_jobs SET lease_owner = ?, last_heartbeat = ?
             WHERE id = ? AND (
                lease_owner IS NULL OR lease_owner = ? OR
                last_heartbeat IS NULL OR last_heartbeat < ?
             )`,
			owner, formatTime(now), jobID, owner, formatTime(cutoff),
		)
		if err != nil {
			return fmt.Errorf("claim lease %s: %w", jobID, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("claim lease rows: %w", err)
		}
		claimed = affected == 1
		return nil
	})
	if err != nil {
		return false, err
	}
	if !claimed {
		if _, err := s.GetJob(ctx, jobID); err != nil {
			return false, err
		}
	}
	return claimed, nil
}

// Heartbeat refreshes owner's lease on a job.
func (s *Store) Heartbeat(ctx context.Context, jobID, owner string) error {
	ctx = ensureContext(ctx)
	return s.withRecovery(ctx, func() error {
		res, err := s.db.ExecContext(ctx,
			"UPDATE pending_jobs SET last_heartbeat = ? WHERE id = ? AND lease_owner = ?",
			formatTime(time.Now()), jobID, owner,
		)
		if err != nil {
			return fmt.Errorf("heartbeat %s: %w", jobID, err)
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			return fmt.Errorf("job %s: %w", jobID, ErrLeaseLost)
		}
		return nil
	})
}

// ReleaseLease clears owner's lease. Releasing a lease held by someone else or
// on a deleted job is a no-op.
func (s *Store) ReleaseLease(ctx context.Context, jobID, owner string) error {
	ctx = ensureContext(ctx)
	return s.withRecovery(ctx, func() error {
		if _, err := s.db.ExecContext(ctx,
			"UPDATE pending_jobs SET lease_owner = NULL, last_heartbeat = NULL WHERE id = ? AND lease_owner = ?",
			jobID, owner,
		); err != nil {
			return fmt.Errorf("release lease %s: %w", jobID, err)
		}
		return nil
	})
}

// ReclaimStale clears leases whose heartbeat predates cutoff and reports how
// many were cleared.
func (s *Store) ReclaimStale(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx = ensureContext(ctx)
	var cleared int64
	err := s.withRecovery(ctx, func() error {
		res, err := s.db.ExecContext(ctx,
			`UPDATE pending_jobs SET lease_owner = NULL, last_heartbeat = NULL
             WHERE lease_owner IS NOT NULL AND (last_heartbeat IS NULL OR last_heartbeat < ?)`,
			formatTime(cutoff),
		)
		if err != nil {
			return fmt.Errorf("reclaim stale leases: %w", err)
		}
		cleared, err = res.RowsAffected()
		return err
	})
	return cleared, err
}
