package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"mediarepo/internal/repo"
)

// PutRepo writes the whole repository document in one statement.
func (s *Store) PutRepo(ctx context.Context, r *repo.Repository) error {
	if r == nil || r.ID == "" {
		return errors.New("repository id is required")
	}
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode repository %s: %w", r.ID, err)
	}
	ctx = ensureContext(ctx)
	return s.withRecovery(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO repos (id, name, job_id, data_json, created_at, updated_at)
             VALUES (?, ?, ?, ?, ?, ?)
             ON CONFLICT(id) DO UPDATE SET
                name = excluded.name,
                data_json = excluded.data_json,
                updated_at = excluded.updated_at`,
			r.ID, r.Name, nullableString(r.JobID), string(data), formatTime(r.Created), formatTime(r.Updated),
		)
		if err != nil {
			return fmt.Errorf("put repository %s: %w", r.ID, err)
		}
		return nil
	})
}

// GetRepo loads a repository by id.
func (s *Store) GetRepo(ctx context.Context, id string) (*repo.Repository, error) {
	ctx = ensureContext(ctx)
	var r *repo.Repository
	err := retryOnBusy(ctx, func() error {
		var data string
		if err := s.db.QueryRowContext(ctx, "SELECT data_json FROM repos WHERE id = ?", id).Scan(&data); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("repository %s: %w", id, ErrNotFound)
			}
			return fmt.Errorf("get repository %s: %w", id, err)
		}
		var decoded repo.Repository
		if err := json.Unmarshal([]byte(data), &decoded); err != nil {
			return fmt.Errorf("decode repository %s: %w", id, err)
		}
		r = &decoded
		return nil
	})
	return r, err
}

// FindRepoByJob returns the repository promoted from jobID.
func (s *Store) FindRepoByJob(ctx context.Context, jobID string) (*repo.Repository, error) {
	ctx = ensureContext(ctx)
	var id string
	if err := s.db.QueryRowContext(ctx, "SELECT id FROM repos WHERE job_id = ? LIMIT 1", jobID).Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("repository for job %s: %w", jobID, ErrNotFound)
		}
		return nil, fmt.Errorf("find repository for job %s: %w", jobID, err)
	}
	return s.GetRepo(ctx, id)
}

// ListRepos returns repository summaries, most recently updated first.
func (s *Store) ListRepos(ctx context.Context) ([]repo.Summary, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, "SELECT data_json FROM repos ORDER BY updated_at DESC, id")
	if err != nil {
		return nil, fmt.Errorf("list repositories: %w", err)
	}
	defer rows.Close()

	var out []repo.Summary
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var r repo.Repository
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return nil, fmt.Errorf("decode repository: %w", err)
		}
		out = append(out, r.Summarize())
	}
	return out, rows.Err()
}

// DeleteRepo removes a repository and the blobs it owns.
func (s *Store) DeleteRepo(ctx context.Context, id string) error {
	ctx = ensureContext(ctx)
	return s.withRecovery(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin delete tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()
		res, err := tx.ExecContext(ctx, "DELETE FROM repos WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("delete repository %s: %w", id, err)
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			return fmt.Errorf("repository %s: %w", id, ErrNotFound)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM assets WHERE owner_id = ?", id); err != nil {
			return fmt.Errorf("delete repository blobs %s: %w", id, err)
		}
		return tx.Commit()
	})
}
