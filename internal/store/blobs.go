package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// BlobRecord is one row of the assets table. Data is empty when the bytes
// live in external object storage under ExternalKey.
type BlobRecord struct {
	ID          string
	OwnerID     string
	Kind        string
	Name        string
	ContentType string
	Size        int64
	Data        []byte
	ExternalKey string
	CreatedAt   time.Time
}

// PutBlob inserts or replaces a blob record.
func (s *Store) PutBlob(ctx context.Context, rec BlobRecord) error {
	if rec.ID == "" {
		return errors.New("blob id is required")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if rec.Size == 0 {
		rec.Size = int64(len(rec.Data))
	}
	ctx = ensureContext(ctx)
	return s.withRecovery(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO assets (id, owner_id, kind, name, content_type, size, data, external_key, created_at)
             VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
             ON CONFLICT(id) DO UPDATE SET
                owner_id = excluded.owner_id,
                kind = excluded.kind,
                name = excluded.name,
                content_type = excluded.content_type,
                size = excluded.size,
                data = excluded.data,
                external_key = excluded.external_key`,
			rec.ID, nullableString(rec.OwnerID), nullableString(rec.Kind), nullableString(rec.Name),
			nullableString(rec.ContentType), rec.Size, rec.Data, nullableString(rec.ExternalKey), formatTime(rec.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("put blob %s: %w", rec.ID, err)
		}
		return nil
	})
}

// GetBlob loads a blob record including its bytes.
func (s *Store) GetBlob(ctx context.Context, id string) (BlobRecord, error) {
	ctx = ensureContext(ctx)
	var rec BlobRecord
	err := retryOnBusy(ctx, func() error {
		var (
			owner, kind, name, contentType, externalKey sql.NullString
			createdRaw                                  string
		)
		row := s.db.QueryRowContext(ctx,
			"SELECT id, owner_id, kind, name, content_type, size, data, external_key, created_at FROM assets WHERE id = ?", id)
		if err := row.Scan(&rec.ID, &owner, &kind, &name, &contentType, &rec.Size, &rec.Data, &externalKey, &createdRaw); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("blob %s: %w", id, ErrNotFound)
			}
			return fmt.Errorf("get blob %s: %w", id, err)
		}
		rec.OwnerID = owner.String
		rec.Kind = kind.String
		rec.Name = name.String
		rec.ContentType = contentType.String
		rec.ExternalKey = externalKey.String
		if created, err := parseTimeString(createdRaw); err == nil {
			rec.CreatedAt = created
		}
		return nil
	})
	return rec, err
}

// DeleteBlob removes a blob record. Missing records are ignored.
func (s *Store) DeleteBlob(ctx context.Context, id string) error {
	ctx = ensureContext(ctx)
	return s.withRecovery(ctx, func() error {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM assets WHERE id = ?", id); err != nil {
			return fmt.Errorf("delete blob %s: %w", id, err)
		}
		return nil
	})
}

// BlobKeysByOwner lists blob ids and external keys owned by ownerID.
func (s *Store) BlobKeysByOwner(ctx context.Context, ownerID string) (map[string]string, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, "SELECT id, external_key FROM assets WHERE owner_id = ?", ownerID)
	if err != nil {
		return nil, fmt.Errorf("list blobs for %s: %w", ownerID, err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var id string
		var key sql.NullString
		if err := rows.Scan(&id, &key); err != nil {
			return nil, err
		}
		out[id] = key.String
	}
	return out, rows.Err()
}
