package workflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"mediarepo/internal/logging"
	"mediarepo/internal/store"
)

// HeartbeatMonitor keeps job leases alive and reclaims abandoned ones.
type HeartbeatMonitor struct {
	store             *store.Store
	logger            *slog.Logger
	heartbeatInterval time.Duration
	heartbeatTimeout  time.Duration
}

// NewHeartbeatMonitor creates a new monitor.
func NewHeartbeatMonitor(st *store.Store, logger *slog.Logger, interval, timeout time.Duration) *HeartbeatMonitor {
	return &HeartbeatMonitor{
		store:             st,
		logger:            logger,
		heartbeatInterval: interval,
		heartbeatTimeout:  timeout,
	}
}

// ReclaimStale clears leases whose owner stopped sending heartbeats.
func (h *HeartbeatMonitor) ReclaimStale(ctx context.Context) (int64, error) {
	if h.heartbeatTimeout <= 0 {
		return 0, nil
	}
	cutoff := time.Now().Add(-h.heartbeatTimeout)
	reclaimed, err := h.store.ReclaimStale(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if reclaimed > 0 {
		h.logger.Info("reclaimed stale job leases",
			logging.String(logging.FieldEventType, "lease_reclaimed"),
			logging.Int64("count", reclaimed),
		)
	}
	return reclaimed, nil
}

// StartLoop refreshes owner's lease on jobID until ctx ends. When the lease
// is taken over, onLost is called once and the loop exits.
func (h *HeartbeatMonitor) StartLoop(ctx context.Context, jobID, owner string, onLost func()) {
	if h.heartbeatInterval <= 0 {
		return
	}
	ticker := time.NewTicker(h.heartbeatInterval)
	defer ticker.Stop()

	logger := logging.WithContext(ctx, h.logger.With(logging.String(logging.FieldComponent, "workflow-heartbeat")))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := h.store.Heartbeat(ctx, jobID, owner)
			switch {
			case err == nil:
			case errors.Is(err, context.Canceled):
				logger.Debug("heartbeat cancelled")
				return
			case errors.Is(err, store.ErrLeaseLost):
				logging.WarnWithContext(logger, "job lease lost; abandoning run", "lease_lost",
					logging.String(logging.FieldImpact, "another process owns this job"),
					logging.Error(err),
				)
				if onLost != nil {
					onLost()
				}
				return
			default:
				logger.Warn("heartbeat update failed", logging.Error(err))
			}
		}
	}
}
