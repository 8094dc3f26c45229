package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"mediarepo/internal/blobstore"
	"mediarepo/internal/config"
	"mediarepo/internal/ingest"
	"mediarepo/internal/logging"
	"mediarepo/internal/services"
	"mediarepo/internal/stage"
)

// PersistFunc stores the asset after every transition.
type PersistFunc func(ctx context.Context, asset ingest.Asset) error

// Settings are the pipeline knobs read from config.
type Settings struct {
	FrameRate         float64
	MaxFrames         int
	MaxTaggingFrames  int
	TargetSampleRate  int
	AudioCeilingBytes int64
	FallbackEncoding  string
	Language          string
	MaxUploadBytes    int64
	WordAlignment     bool
}

// SettingsFromConfig copies the pipeline and transcription sections.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		FrameRate:         cfg.Pipeline.FrameRate,
		MaxFrames:         cfg.Pipeline.MaxFrames,
		MaxTaggingFrames:  cfg.Pipeline.MaxTaggingFrames,
		TargetSampleRate:  cfg.Pipeline.TargetSampleRate,
		AudioCeilingBytes: cfg.Pipeline.AudioCeilingBytes,
		FallbackEncoding:  cfg.Pipeline.FallbackEncoding,
		Language:          cfg.Transcription.Language,
		MaxUploadBytes:    cfg.Transcription.MaxUploadBytes,
		WordAlignment:     cfg.Transcription.WordAlignment,
	}
}

// Runner executes the stage plan for one asset at a time. It is safe for
// concurrent use across assets.
type Runner struct {
	clients  Clients
	blobs    blobstore.Store
	settings Settings
	policy   RetryPolicy
	logger   *slog.Logger
}

// NewRunner wires clients and blob storage using cfg.
func NewRunner(cfg *config.Config, clients Clients, blobs blobstore.Store, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Runner{
		clients:  clients,
		blobs:    blobs,
		settings: SettingsFromConfig(cfg),
		policy: RetryPolicy{
			Attempts: cfg.Pipeline.RetryAttempts,
			Initial:  time.Duration(cfg.Pipeline.RetryInitialMS) * time.Millisecond,
			Max:      time.Duration(cfg.Pipeline.RetryMaxMS) * time.Millisecond,
		},
		logger: logging.NewComponentLogger(logger, "pipeline"),
	}
}

// JobContext is the job-level information a stage needs.
type JobContext struct {
	JobID string
	Brief string
}

// assetRun holds bytes fetched during one Run so later stages do not
// re-read blobs.
type assetRun struct {
	job    JobContext
	asset  *ingest.Asset
	raw    *services.Media
	audio  *services.Media
	frames map[string][]byte
	logger *slog.Logger
}

type stageFunc func(ctx context.Context, run *assetRun) error

// errNotApplicable means a stage had nothing to work on (e.g. transcription
// without audio). The stage is skipped without an error.
var errNotApplicable = errors.New("stage not applicable")

// Run drives asset to ready or error. Terminal assets are left alone. The returned error is non-nil only when
// persisting fails or ctx ends; stage failures are recorded on the asset.
func (r *Runner) Run(ctx context.Context, job JobContext, asset *ingest.Asset, persist PersistFunc) error {
	if asset.Terminal() {
		return nil
	}
	ctx = services.WithAssetID(services.WithJobID(ctx, job.JobID), asset.ID)
	run := &assetRun{
		job:    job,
		asset:  asset,
		frames: make(map[string][]byte),
		logger: logging.WithContext(ctx, r.logger),
	}

	asset.Status = ingest.AssetProcessing
	asset.Error = ""
	asset.UpdatedAt = time.Now().UTC()
	if err := persist(ctx, *asset); err != nil {
		return fmt.Errorf("persist processing transition: %w", err)
	}

	plan := stage.Plan(asset.Kind)
	if len(plan) == 0 {
		asset.Fail(fmt.Sprintf("unsupported asset kind %q", asset.Kind))
		return r.persistTerminal(ctx, run, persist)
	}

	stages := map[string]stageFunc{
		ingest.StageFrames:        r.runFrames,
		ingest.StageAudio:         r.runAudio,
		ingest.StageTranscription: r.runTranscription,
		ingest.StageSemantic:      r.runSemantic,
	}

	for i, name := range plan {
		if asset.StageResults.Has(name) {
			run.logger.Debug("stage skipped; result present", logging.String(logging.FieldStage, name))
			asset.Progress = progressAfter(i, len(plan))
			continue
		}
		stageCtx := services.WithStage(ctx, name)
		stageLogger := logging.WithContext(stageCtx, r.logger)
		stageLogger.Info("stage started", logging.String(logging.FieldEventType, "stage_start"))

		started := time.Now()
		attempts, err := r.retry(stageCtx, name, func() error {
			return stages[name](stageCtx, run)
		})
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if asset.Attempts == nil {
			asset.Attempts = make(map[string]int)
		}
		asset.Attempts[name] = attempts

		switch {
		case err == nil:
			asset.ClearStageError(name)
			stageLogger.Info("stage completed",
				logging.String(logging.FieldEventType, "stage_complete"),
				logging.Int("attempts", attempts),
				logging.Duration("elapsed", time.Since(started)),
			)
		case errors.Is(err, errNotApplicable):
			stageLogger.Debug("stage not applicable")
		default:
			details := services.Details(err)
			message := fmt.Sprintf("%s: %s", name, details.Message)
			if stage.For(asset.Kind, name) == stage.Required {
				logging.ErrorWithContext(stageLogger, "required stage failed", "stage_failure",
					logging.String("error_kind", details.Kind),
					logging.Int("attempts", attempts),
					logging.Error(err),
				)
				asset.SetStageError(name, details.Message)
				asset.Fail(message)
				return r.persistTerminal(ctx, run, persist)
			}
			logging.WarnWithContext(stageLogger, "optional stage degraded", "stage_degraded",
				logging.String("error_kind", details.Kind),
				logging.String(logging.FieldImpact, "asset continues without "+name),
				logging.Int("attempts", attempts),
				logging.Error(err),
			)
			asset.SetStageError(name, details.Message)
		}

		asset.Progress = progressAfter(i, len(plan))
		asset.UpdatedAt = time.Now().UTC()
		if err := persist(ctx, *asset); err != nil {
			return fmt.Errorf("persist %s result: %w", name, err)
		}
	}

	asset.Status = ingest.AssetReady
	asset.Progress = 100
	asset.Error = ""
	return r.persistTerminal(ctx, run, persist)
}

func (r *Runner) persistTerminal(ctx context.Context, run *assetRun, persist PersistFunc) error {
	run.asset.UpdatedAt = time.Now().UTC()
	if err := persist(ctx, *run.asset); err != nil {
		return fmt.Errorf("persist %s asset: %w", run.asset.Status, err)
	}
	run.logger.Info("asset finished",
		logging.String(logging.FieldEventType, "asset_"+string(run.asset.Status)),
		logging.String("status", string(run.asset.Status)),
		logging.String("error", run.asset.Error),
	)
	return nil
}

func progressAfter(index, total int) int {
	if total == 0 {
		return 100
	}
	// Leave the last few percent for the terminal transition.
	return (index + 1) * 95 / total
}

// rawMedia loads the asset's raw bytes once per run.
func (r *Runner) rawMedia(ctx context.Context, run *assetRun) (services.Media, error) {
	if run.raw != nil {
		return *run.raw, nil
	}
	obj, err := r.blobs.Get(ctx, run.asset.RawBlobRef)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return services.Media{}, services.Wrap(services.ErrNotFound, "pipeline", "load raw", "raw blob missing", err)
		}
		return services.Media{}, services.Wrap(services.ErrTransient, "pipeline", "load raw", "", err)
	}
	contentType := strings.TrimSpace(run.asset.ContentType)
	if contentType == "" {
		contentType = obj.ContentType
	}
	media := services.Media{Name: run.asset.Name, ContentType: contentType, Data: obj.Data}
	run.raw = &media
	return media, nil
}

func (r *Runner) putBlob(ctx context.Context, run *assetRun, kind, name, contentType string, data []byte) (string, error) {
	ref, err := r.blobs.Put(ctx, blobstore.Object{
		OwnerID:     run.job.JobID,
		Kind:        kind,
		Name:        name,
		ContentType: contentType,
		Data:        data,
	})
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "pipeline", "store "+kind, "", err)
	}
	return ref, nil
}
