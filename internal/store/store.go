package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"mediarepo/internal/config"
	"mediarepo/internal/logging"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// Store manages durable state backed by SQLite.
type Store struct {
	db     *sql.DB
	path   string
	logger *slog.Logger

	jobLocks sync.Map // job id -> *sync.Mutex
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// Option customizes a Store.
type Option func(*Store)

// WithLogger sets the logger used for schema and recovery messages.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Open initializes or connects to the store database and bootstraps its schema.
func Open(cfg *config.Config, opts ...Option) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(cfg.StorePath(), cfg.Store.BusyTimeoutMS, opts...)
}

// OpenPath opens the database at dbPath directly.
func OpenPath(dbPath string, busyTimeoutMS int, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if busyTimeoutMS <= 0 {
		busyTimeoutMS = 5000
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeoutMS),
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(store)
	}
	store.logger = logging.NewComponentLogger(store.logger, "store")
	if err := store.bootstrap(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code()&0xff == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

// withRecovery runs op with busy retries. A failure that is not busy, not a
// missing record, and not a cancellation triggers one schema rebuild followed
// by exactly one more attempt.
func (s *Store) withRecovery(ctx context.Context, op func() error) error {
	ctx = ensureContext(ctx)
	err := retryOnBusy(ctx, op)
	if err == nil || !recoverable(err) {
		return err
	}
	logging.WarnWithContext(s.logger, "store write failed; attempting rebuild", "store_write_failed",
		logging.Error(err),
		logging.String(logging.FieldImpact, "one rebuild and retry before the error surfaces"),
	)
	if rebuildErr := s.rebuild(ctx); rebuildErr != nil {
		return fmt.Errorf("%w (rebuild failed: %v)", err, rebuildErr)
	}
	return retryOnBusy(ctx, op)
}

func recoverable(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, ErrSchemaMismatch),
		errors.Is(err, errMutation),
		errors.Is(err, ErrLeaseLost),
		isSQLiteBusy(err):
		return false
	}
	return true
}

// errMutation wraps failures returned by caller-supplied mutation funcs so
// they are not mistaken for storage faults.
var errMutation = errors.New("mutation rejected")

func (s *Store) lockJob(id string) func() {
	value, _ := s.jobLocks.LoadOrStore(id, &sync.Mutex{})
	mu := value.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
