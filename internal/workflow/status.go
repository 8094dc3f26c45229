package workflow

import (
	"context"
	"sort"

	"mediarepo/internal/ingest"
	"mediarepo/internal/logging"
)

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Running    bool                     `json:"running"`
	LeaseOwner string                   `json:"leaseOwner"`
	Active     []string                 `json:"active"`
	LastError  string                   `json:"lastError,omitempty"`
	LastJobID  string                   `json:"lastJobId,omitempty"`
	JobStats   map[ingest.JobStatus]int `json:"jobStats"`
}

// Status returns the latest workflow information.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.Lock()
	summary := StatusSummary{
		Running:    m.running,
		LeaseOwner: m.owner,
		LastJobID:  m.lastJob,
	}
	if m.lastErr != nil {
		summary.LastError = m.lastErr.Error()
	}
	m.mu.Unlock()

	summary.Active = m.Active()
	sort.Strings(summary.Active)

	stats, err := m.store.JobStats(ctx)
	if err != nil {
		m.logger.Warn("failed to read job stats", logging.Error(err))
	}
	summary.JobStats = stats
	return summary
}
