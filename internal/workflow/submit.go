package workflow

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"mediarepo/internal/blobstore"
	"mediarepo/internal/ingest"
	"mediarepo/internal/logging"
	"mediarepo/internal/services"
)

// AssetInput is one raw asset in a submit request. Either RawBlobRef (bytes
// already stored) or Path (a local file to import) is required.
type AssetInput struct {
	ID         string `json:"id" validate:"omitempty,max=128"`
	Name       string `json:"name" validate:"omitempty,max=255"`
	Kind       string `json:"kind" validate:"omitempty,oneof=video audio image"`
	RawBlobRef string `json:"rawBlobRef" validate:"required_without=Path"`
	Path       string `json:"path" validate:"required_without=RawBlobRef"`
}

// SubmitRequest creates an ingestion job.
type SubmitRequest struct {
	Name   string       `json:"name" validate:"required,max=200"`
	Brief  string       `json:"brief" validate:"max=4000"`
	Assets []AssetInput `json:"assets" validate:"required,min=1,dive"`
}

// ValidationError lists the failed fields of a submit request.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "invalid submit request: " + strings.Join(e.Fields, "; ")
}

// Unwrap tags the error as a validation failure.
func (e *ValidationError) Unwrap() error {
	return services.ErrValidation
}

// Validate checks a request without persisting it.
func (m *Manager) Validate(req SubmitRequest) error {
	if err := m.validate.Struct(req); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			out := &ValidationError{}
			for _, fe := range fieldErrs {
				out.Fields = append(out.Fields, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
			}
			return out
		}
		return fmt.Errorf("validate submit request: %w", err)
	}
	return nil
}

// Submit persists a new ingesting job and returns its id. Local paths are
// imported into blob storage first, owned by the job, and pre-stored blobs
// owned by anything else are copied to the job. When the manager is
// running the job is processed in the background.
func (m *Manager) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	if err := m.Validate(req); err != nil {
		return "", err
	}
	now := time.Now().UTC()
	job := &ingest.Job{
		ID:        uuid.NewString(),
		Name:      strings.TrimSpace(req.Name),
		Brief:     strings.TrimSpace(req.Brief),
		Status:    ingest.JobIngesting,
		CreatedAt: now,
		UpdatedAt: now,
	}
	imported := make([]string, 0, len(req.Assets))
	cleanup := func() {
		for _, ref := range imported {
			_ = m.blobs.Delete(ctx, ref)
		}
	}

	seen := make(map[string]struct{}, len(req.Assets))
	for i, input := range req.Assets {
		asset, importedRef, err := m.buildAsset(ctx, job.ID, input)
		if importedRef != "" {
			imported = append(imported, importedRef)
		}
		if err != nil {
			cleanup()
			return "", fmt.Errorf("asset %d: %w", i, err)
		}
		if _, dup := seen[asset.ID]; dup {
			cleanup()
			return "", &ValidationError{Fields: []string{fmt.Sprintf("assets[%d].id %q is duplicated", i, asset.ID)}}
		}
		seen[asset.ID] = struct{}{}
		asset.UpdatedAt = now
		job.Assets = append(job.Assets, asset)
	}

	if err := m.store.PutJob(ctx, job); err != nil {
		cleanup()
		return "", fmt.Errorf("persist job: %w", err)
	}
	m.logger.Info("job submitted",
		logging.String(logging.FieldEventType, "job_submitted"),
		logging.String(logging.FieldJobID, job.ID),
		logging.String("job_name", job.Name),
		logging.Int("assets", len(job.Assets)),
	)

	m.mu.Lock()
	running := m.running
	m.mu.Unlock()
	if running {
		m.Trigger(job.ID)
	}
	return job.ID, nil
}

func (m *Manager) buildAsset(ctx context.Context, jobID string, input AssetInput) (ingest.Asset, string, error) {
	asset := ingest.Asset{
		ID:         strings.TrimSpace(input.ID),
		Name:       strings.TrimSpace(input.Name),
		Status:     ingest.AssetPending,
		RawBlobRef: strings.TrimSpace(input.RawBlobRef),
	}
	if asset.ID == "" {
		asset.ID = uuid.NewString()
	}

	var importedRef string
	if asset.RawBlobRef == "" {
		ref, obj, err := blobstore.ImportFile(ctx, m.blobs, jobID, "raw", input.Path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return asset, "", services.Wrap(services.ErrValidation, "submit", "import", input.Path, err)
			}
			return asset, "", err
		}
		importedRef = ref
		asset.RawBlobRef = ref
		asset.ContentType = obj.ContentType
		asset.Size = int64(len(obj.Data))
		if asset.Name == "" {
			asset.Name = obj.Name
		}
	} else {
		if _, err := blobstore.ParseRef(asset.RawBlobRef); err != nil {
			return asset, "", services.Wrap(services.ErrValidation, "submit", "parse blob ref", "", err)
		}
		obj, err := m.blobs.Get(ctx, asset.RawBlobRef)
		if err != nil {
			return asset, "", services.Wrap(services.ErrValidation, "submit", "resolve blob", asset.RawBlobRef, err)
		}
		// The job must own its raw blob so promotion hands it to the
		// repository. A blob owned elsewhere is copied, never shared.
		if obj.OwnerID != jobID {
			ref, err := m.blobs.Put(ctx, blobstore.Object{
				OwnerID:     jobID,
				Kind:        "raw",
				Name:        obj.Name,
				ContentType: obj.ContentType,
				Data:        obj.Data,
			})
			if err != nil {
				return asset, "", fmt.Errorf("copy raw blob %s: %w", asset.RawBlobRef, err)
			}
			importedRef = ref
			asset.RawBlobRef = ref
		}
		asset.ContentType = obj.ContentType
		asset.Size = int64(len(obj.Data))
		if asset.Name == "" {
			asset.Name = obj.Name
		}
	}
	if asset.Name == "" {
		asset.Name = asset.ID
	}

	kind := strings.TrimSpace(input.Kind)
	if kind == "" {
		guessed, ok := ingest.KindFromPath(asset.Name)
		if !ok {
			guessed, ok = kindFromContentType(asset.ContentType)
		}
		if !ok {
			return asset, importedRef, services.Wrap(services.ErrValidation, "submit", "detect kind", fmt.Sprintf("cannot infer kind of %q; pass kind explicitly", asset.Name), nil)
		}
		asset.Kind = guessed
	} else {
		parsed, err := ingest.ParseKind(kind)
		if err != nil {
			return asset, importedRef, services.Wrap(services.ErrValidation, "submit", "parse kind", "", err)
		}
		asset.Kind = parsed
	}
	return asset, importedRef, nil
}

func kindFromContentType(contentType string) (ingest.Kind, bool) {
	switch {
	case strings.HasPrefix(contentType, "video/"):
		return ingest.KindVideo, true
	case strings.HasPrefix(contentType, "audio/"):
		return ingest.KindAudio, true
	case strings.HasPrefix(contentType, "image/"):
		return ingest.KindImage, true
	}
	return "", false
}
