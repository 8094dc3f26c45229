package ingest

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"mediarepo/internal/transcript"
)

// Kind classifies an asset's media type.
type Kind string

const (
	KindVideo Kind = "video"
	KindAudio Kind = "audio"
	KindImage Kind = "image"
)

// ParseKind normalizes a kind string.
func ParseKind(value string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(value))) {
	case KindVideo:
		return KindVideo, nil
	case KindAudio:
		return KindAudio, nil
	case KindImage:
		return KindImage, nil
	}
	return "", fmt.Errorf("unknown asset kind %q", value)
}

// KindFromPath guesses a kind from a file extension. ok is false for unknown extensions.
func KindFromPath(path string) (Kind, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp4", ".mov", ".mkv", ".webm", ".avi", ".m4v":
		return KindVideo, true
	case ".mp3", ".wav", ".flac", ".m4a", ".aac", ".ogg", ".opus":
		return KindAudio, true
	case ".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp", ".heic":
		return KindImage, true
	}
	return "", false
}

// ErrNotRetryable is returned when a retry targets an asset that is not errored.
var ErrNotRetryable = errors.New("only errored assets can be retried")

// AssetStatus is the per-asset processing state.
type AssetStatus string

const (
	AssetPending    AssetStatus = "pending"
	AssetProcessing AssetStatus = "processing"
	AssetReady      AssetStatus = "ready"
	AssetError      AssetStatus = "error"
)

// JobStatus is the lifecycle state of an ingestion job.
type JobStatus string

const (
	JobIdle      JobStatus = "idle"
	JobIngesting JobStatus = "ingesting"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Stage names, in pipeline order.
const (
	StageFrames        = "frames"
	StageAudio         = "audio"
	StageTranscription = "transcription"
	StageSemantic      = "semantic"
)

// Frame references one sampled still image.
type Frame struct {
	Index       int     `json:"index"`
	Timestamp   float64 `json:"timestamp"`
	ContentType string  `json:"contentType"`
	BlobRef     string  `json:"blobRef"`
}

// Audio is the extracted mono audio artifact.
type Audio struct {
	BlobRef          string `json:"blobRef"`
	ContentType      string `json:"contentType"`
	Encoding         string `json:"encoding"`
	SampleRate       int    `json:"sampleRate"`
	SourceSampleRate int    `json:"sourceSampleRate,omitempty"`
	Size             int64  `json:"size"`
	Fallback         bool   `json:"fallback,omitempty"`
}

// Semantic is the tagging service's description of an asset.
type Semantic struct {
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

// StageResults maps each stage to its artifact. A nil field means the stage
// produced nothing (not run, degraded, or not applicable).
type StageResults struct {
	Frames        []Frame                `json:"frames,omitempty"`
	Audio         *Audio                 `json:"audio,omitempty"`
	NoAudio       bool                   `json:"noAudio,omitempty"`
	Transcription *transcript.Transcript `json:"transcription,omitempty"`
	Semantic      *Semantic              `json:"semantic,omitempty"`
}

// Has reports whether the named stage already holds a result. "No audio" counts
// as a result for the audio stage so a resumed run does not re-extract.
func (r StageResults) Has(stage string) bool {
	switch stage {
	case StageFrames:
		return len(r.Frames) > 0
	case StageAudio:
		return r.Audio != nil || r.NoAudio
	case StageTranscription:
		return r.Transcription != nil
	case StageSemantic:
		return r.Semantic != nil
	}
	return false
}

// Asset is one raw media input plus its derived artifacts.
type Asset struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Kind         Kind              `json:"kind"`
	Status       AssetStatus       `json:"status"`
	Progress     int               `json:"progress"`
	RawBlobRef   string            `json:"rawBlobRef"`
	ContentType  string            `json:"contentType,omitempty"`
	Size         int64             `json:"size,omitempty"`
	StageResults StageResults      `json:"stageResults"`
	StageErrors  map[string]string `json:"stageErrors,omitempty"`
	Attempts     map[string]int    `json:"attempts,omitempty"`
	Error        string            `json:"error,omitempty"`
	UpdatedAt    time.Time         `json:"updatedAt"`
}

// Clone returns a deep copy of the asset. Event payloads carry clones so
// subscribers never share maps or slices with the runner.
func (a Asset) Clone() Asset {
	out := a
	if a.StageErrors != nil {
		out.StageErrors = make(map[string]string, len(a.StageErrors))
		for k, v := range a.StageErrors {
			out.StageErrors[k] = v
		}
	}
	if a.Attempts != nil {
		out.Attempts = make(map[string]int, len(a.Attempts))
		for k, v := range a.Attempts {
			out.Attempts[k] = v
		}
	}
	r := a.StageResults
	if r.Frames != nil {
		out.StageResults.Frames = append([]Frame(nil), r.Frames...)
	}
	if r.Audio != nil {
		audio := *r.Audio
		out.StageResults.Audio = &audio
	}
	if r.Transcription != nil {
		tr := r.Transcription.Clone()
		out.StageResults.Transcription = &tr
	}
	if r.Semantic != nil {
		sem := *r.Semantic
		sem.Tags = append([]string(nil), r.Semantic.Tags...)
		out.StageResults.Semantic = &sem
	}
	return out
}

// Terminal reports whether the asset reached ready or error.
func (a Asset) Terminal() bool {
	return a.Status == AssetReady || a.Status == AssetError
}

// SetStageError records a degraded optional stage.
func (a *Asset) SetStageError(stage, message string) {
	if a.StageErrors == nil {
		a.StageErrors = make(map[string]string)
	}
	a.StageErrors[stage] = message
}

// ClearStageError removes a previously recorded stage error.
func (a *Asset) ClearStageError(stage string) {
	delete(a.StageErrors, stage)
	if len(a.StageErrors) == 0 {
		a.StageErrors = nil
	}
}

// Fail marks the asset as errored with a short message.
func (a *Asset) Fail(message string) {
	a.Status = AssetError
	a.Error = strings.TrimSpace(message)
	a.UpdatedAt = time.Now().UTC()
}

// Retry performs the manual error→pending transition. Results from stages that
// already succeeded are kept so the retry only redoes missing work.
func (a *Asset) Retry() error {
	if a.Status != AssetError {
		return fmt.Errorf("asset %s is %s: %w", a.ID, a.Status, ErrNotRetryable)
	}
	a.Status = AssetPending
	a.Error = ""
	a.Progress = 0
	a.StageErrors = nil
	a.Attempts = nil
	a.UpdatedAt = time.Now().UTC()
	return nil
}

// Job is one unit of ingestion work.
type Job struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Brief     string    `json:"brief"`
	Assets    []Asset   `json:"assets"`
	Status    JobStatus `json:"jobStatus"`
	Error     string    `json:"error,omitempty"`
	RepoID    string    `json:"repoId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// Lease fields are owned by the store columns, not the JSON document.
	LeaseOwner    string     `json:"leaseOwner,omitempty"`
	LastHeartbeat *time.Time `json:"lastHeartbeat,omitempty"`
}

// AssetIndex returns the position of the asset with id, or -1.
func (j *Job) AssetIndex(id string) int {
	for i := range j.Assets {
		if j.Assets[i].ID == id {
			return i
		}
	}
	return -1
}

// AllTerminal reports whether every asset is ready or errored.
func (j *Job) AllTerminal() bool {
	for _, asset := range j.Assets {
		if !asset.Terminal() {
			return false
		}
	}
	return true
}

// Counts tallies assets by status.
func (j *Job) Counts() map[AssetStatus]int {
	counts := make(map[AssetStatus]int, 4)
	for _, asset := range j.Assets {
		counts[asset.Status]++
	}
	return counts
}
