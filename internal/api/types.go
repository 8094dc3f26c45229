package api

import (
	"mediarepo/internal/logging"
	"mediarepo/internal/preflight"
	"mediarepo/internal/repo"
	"mediarepo/internal/workflow"
)

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Asset describes one asset of a pending job.
type Asset struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Kind        string            `json:"kind"`
	Status      string            `json:"status"`
	Progress    int               `json:"progress"`
	RawBlobRef  string            `json:"rawBlobRef"`
	ContentType string            `json:"contentType,omitempty"`
	Size        int64             `json:"size,omitempty"`
	Completed   []string          `json:"completedStages"`
	StageErrors map[string]string `json:"stageErrors,omitempty"`
	Error       string            `json:"error,omitempty"`
	Tags        []string          `json:"tags,omitempty"`
	Language    string            `json:"language,omitempty"`
	UpdatedAt   string            `json:"updatedAt,omitempty"`
}

// Job describes a pending ingestion job.
type Job struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Brief     string         `json:"brief"`
	Status    string         `json:"status"`
	Error     string         `json:"error,omitempty"`
	Lease     string         `json:"leaseOwner,omitempty"`
	Counts    map[string]int `json:"counts"`
	Assets    []Asset        `json:"assets"`
	CreatedAt string         `json:"createdAt,omitempty"`
	UpdatedAt string         `json:"updatedAt,omitempty"`
}

// JobListResponse wraps a collection of jobs.
type JobListResponse struct {
	Jobs []Job `json:"jobs"`
}

// JobResponse wraps a single job.
type JobResponse struct {
	Job Job `json:"job"`
}

// SubmitResponse acknowledges a new job.
type SubmitResponse struct {
	JobID string `json:"jobId"`
}

// AssetResponse wraps a single asset.
type AssetResponse struct {
	JobID string `json:"jobId"`
	Asset Asset  `json:"asset"`
}

// ProcessResponse acknowledges a process trigger.
type ProcessResponse struct {
	JobID     string `json:"jobId"`
	Triggered bool   `json:"triggered"`
}

// NotifyResponse reports a test notification. Sent is false when no topic
// is configured.
type NotifyResponse struct {
	Sent bool `json:"sent"`
}

// RepoListResponse wraps repository summaries.
type RepoListResponse struct {
	Repositories []repo.Summary `json:"repositories"`
}

// RepoResponse wraps a full repository document.
type RepoResponse struct {
	Repository *repo.Repository `json:"repository"`
}

// NodeRequest adds or edits a user file in a repository. For additions
// ParentID and Name are required; for edits any of Name and Content may be set.
type NodeRequest struct {
	ParentID string  `json:"parentId,omitempty"`
	Name     string  `json:"name,omitempty"`
	Content  *string `json:"content,omitempty"`
	Message  string  `json:"message,omitempty"`
}

// CommitResponse reports the commit created by a repository edit.
type CommitResponse struct {
	Commit repo.Commit `json:"commit"`
}

// WorkflowStatus summarizes workflow execution state.
type WorkflowStatus struct {
	Running    bool           `json:"running"`
	LeaseOwner string         `json:"leaseOwner"`
	Active     []string       `json:"active"`
	LastError  string         `json:"lastError,omitempty"`
	LastJobID  string         `json:"lastJobId,omitempty"`
	JobStats   map[string]int `json:"jobStats"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool               `json:"running"`
	PID          int                `json:"pid"`
	StorePath    string             `json:"storePath"`
	LockFilePath string             `json:"lockFilePath"`
	Workflow     WorkflowStatus     `json:"workflow"`
	Checks       []preflight.Result `json:"checks"`
	EventsDrops  uint64             `json:"eventsDropped"`
}

// LogStreamResponse is one page of log events.
type LogStreamResponse struct {
	Events []logging.LogEvent `json:"events"`
	Next   uint64             `json:"next"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// FromStatusSummary converts the workflow summary.
func FromStatusSummary(s workflow.StatusSummary) WorkflowStatus {
	stats := make(map[string]int, len(s.JobStats))
	for status, count := range s.JobStats {
		stats[string(status)] = count
	}
	return WorkflowStatus{
		Running:    s.Running,
		LeaseOwner: s.LeaseOwner,
		Active:     s.Active,
		LastError:  s.LastError,
		LastJobID:  s.LastJobID,
		JobStats:   stats,
	}
}
