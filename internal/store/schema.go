package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current base schema version. Additive changes go in
// migrations/ instead of bumping this.
const schemaVersion = 1

// RequiredTables lists the collections that must exist for the store to work.
var RequiredTables = []string{"pending_jobs", "repos", "assets"}

// ErrSchemaMismatch indicates the database was written by a newer schema.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// bootstrap creates or repairs the schema and applies migrations.
func (s *Store) bootstrap(ctx context.Context) error {
	missing, err := s.missingTables(ctx)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		s.logger.Info("building store schema", "missing_tables", strings.Join(missing, ","))
		if err := s.createSchema(ctx); err != nil {
			return err
		}
	}
	if err := s.checkVersion(ctx); err != nil {
		return err
	}
	return s.applyMigrations(ctx)
}

// rebuild recreates missing tables after a failed write. Existing rows are kept.
func (s *Store) rebuild(ctx context.Context) error {
	s.logger.Warn("rebuilding store schema after write failure",
		"event_type", "store_rebuild",
		"error_hint", "check disk space and database file permissions",
	)
	if err := s.createSchema(ctx); err != nil {
		return err
	}
	// Migrations are idempotent; re-run them so indexes on recreated tables return.
	migrations, err := loadMigrations()
	if err != nil {
		return err
	}
	for _, m := range migrations {
		if _, err := s.db.ExecContext(ctx, m.sql); err != nil {
			return fmt.Errorf("reapply migration %s: %w", m.version, err)
		}
	}
	return s.applyMigrations(ctx)
}

func (s *Store) missingTables(ctx context.Context) ([]string, error) {
	var missing []string
	for _, table := range append([]string{"schema_version"}, RequiredTables...) {
		var count int
		err := s.db.QueryRowContext(ctx,
			"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&count)
		if err != nil {
			return nil, fmt.Errorf("check table %s: %w", table, err)
		}
		if count == 0 {
			missing = append(missing, table)
		}
	}
	return missing, nil
}

func (s *Store) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	var rows int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(1) FROM schema_version").Scan(&rows); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if rows == 0 {
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

func (s *Store) checkVersion(ctx context.Context) error {
	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version > schemaVersion {
		return fmt.Errorf("%w: database has version %d, this build supports %d",
			ErrSchemaMismatch, version, schemaVersion)
	}
	return nil
}
