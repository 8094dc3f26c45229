// Package blobstore keeps raw and derived asset bytes behind a small
// Put/Get/Delete interface. References have the form blob://<id>.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"mediarepo/internal/config"
	"mediarepo/internal/store"
)

const refScheme = "blob://"

// ErrNotFound is returned when a reference does not resolve.
var ErrNotFound = errors.New("blob not found")

// Object is one stored blob.
type Object struct {
	ID          string
	OwnerID     string
	Kind        string
	Name        string
	ContentType string
	Data        []byte
}

// Store persists blob bytes.
type Store interface {
	Put(ctx context.Context, obj Object) (string, error)
	Get(ctx context.Context, ref string) (Object, error)
	Delete(ctx context.Context, ref string) error
}

// NewRef formats an id as a blob reference.
func NewRef(id string) string {
	return refScheme + id
}

// ParseRef extracts the id from a blob reference.
func ParseRef(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if !strings.HasPrefix(ref, refScheme) {
		return "", fmt.Errorf("invalid blob reference %q", ref)
	}
	id := strings.TrimPrefix(ref, refScheme)
	if id == "" || strings.ContainsAny(id, "/\\") {
		return "", fmt.Errorf("invalid blob reference %q", ref)
	}
	return id, nil
}

// Open selects the backend named by cfg.Blobs.Backend.
func Open(ctx context.Context, cfg *config.Config, st *store.Store) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Blobs.Backend)) {
	case "", "sqlite":
		return NewSQLite(st), nil
	case "s3":
		return NewS3(ctx, cfg.S3, st)
	default:
		return nil, fmt.Errorf("unsupported blob backend %q", cfg.Blobs.Backend)
	}
}

func ensureID(obj *Object) {
	if obj.ID == "" {
		obj.ID = uuid.NewString()
	}
}

// SQLiteStore keeps bytes inline in the store's assets table.
type SQLiteStore struct {
	st *store.Store
}

// NewSQLite returns the default inline backend.
func NewSQLite(st *store.Store) *SQLiteStore {
	return &SQLiteStore{st: st}
}

// Put stores obj and returns its reference.
func (s *SQLiteStore) Put(ctx context.Context, obj Object) (string, error) {
	ensureID(&obj)
	if err := s.st.PutBlob(ctx, store.BlobRecord{
		ID:          obj.ID,
		OwnerID:     obj.OwnerID,
		Kind:        obj.Kind,
		Name:        obj.Name,
		ContentType: obj.ContentType,
		Size:        int64(len(obj.Data)),
		Data:        obj.Data,
	}); err != nil {
		return "", err
	}
	return NewRef(obj.ID), nil
}

// Get loads the object behind ref.
func (s *SQLiteStore) Get(ctx context.Context, ref string) (Object, error) {
	id, err := ParseRef(ref)
	if err != nil {
		return Object{}, err
	}
	rec, err := s.st.GetBlob(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Object{}, fmt.Errorf("%s: %w", ref, ErrNotFound)
		}
		return Object{}, err
	}
	return recordObject(rec, rec.Data), nil
}

// Delete removes the object behind ref.
func (s *SQLiteStore) Delete(ctx context.Context, ref string) error {
	id, err := ParseRef(ref)
	if err != nil {
		return err
	}
	return s.st.DeleteBlob(ctx, id)
}

func recordObject(rec store.BlobRecord, data []byte) Object {
	return Object{
		ID:          rec.ID,
		OwnerID:     rec.OwnerID,
		Kind:        rec.Kind,
		Name:        rec.Name,
		ContentType: rec.ContentType,
		Data:        data,
	}
}
