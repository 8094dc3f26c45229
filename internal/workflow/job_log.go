package workflow

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"mediarepo/internal/config"
	"mediarepo/internal/ingest"
	"mediarepo/internal/logging"
)

// JobLogger manages dedicated log files for individual jobs.
type JobLogger struct {
	baseDir string
	level   slog.Level
}

// NewJobLogger creates a job logger rooted at <log_dir>/jobs.
func NewJobLogger(cfg *config.Config) *JobLogger {
	j := &JobLogger{level: slog.LevelInfo}
	if cfg == nil {
		return j
	}
	if cfg.Paths.LogDir != "" {
		j.baseDir = filepath.Join(cfg.Paths.LogDir, "jobs")
	}
	if level := strings.TrimSpace(cfg.Logging.Level); level != "" {
		_ = j.level.UnmarshalText([]byte(level))
	}
	return j
}

// Path returns the log file location for job.
func (j *JobLogger) Path(job *ingest.Job) string {
	if j == nil || strings.TrimSpace(j.baseDir) == "" || job == nil {
		return ""
	}
	return filepath.Join(j.baseDir, j.filename(job))
}

// Logger returns base tee'd into the job's JSON log file. When the file
// cannot be opened base is returned unchanged. The close func is always safe
// to call.
func (j *JobLogger) Logger(base *slog.Logger, job *ingest.Job) (*slog.Logger, func()) {
	path := j.Path(job)
	if path == "" {
		return base, func() {}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		base.Debug("job log directory unavailable", logging.Error(err))
		return base, func() {}
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o664)
	if err != nil {
		base.Debug("job log file unavailable", logging.Error(err))
		return base, func() {}
	}
	handler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: j.level})
	logger := logging.TeeLogger(base, handler).With(logging.String("job_log", path))
	return logger, func() { _ = file.Close() }
}

func (j *JobLogger) filename(job *ingest.Job) string {
	created := job.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	slug := ingest.Slug(job.Name)
	if slug == "" {
		slug = "untitled"
	}
	short := job.ID
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("%s-%s-%s.log", created.UTC().Format("20060102T150405"), slug, short)
}
