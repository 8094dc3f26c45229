package api

import (
	"sort"

	"mediarepo/internal/ingest"
	"mediarepo/internal/language"
	"mediarepo/internal/stage"
)

// FromJob converts a pending job to its API representation.
func FromJob(job *ingest.Job) Job {
	if job == nil {
		return Job{}
	}
	dto := Job{
		ID:     job.ID,
		Name:   job.Name,
		Brief:  job.Brief,
		Status: string(job.Status),
		Error:  job.Error,
		Lease:  job.LeaseOwner,
		Counts: make(map[string]int),
		Assets: make([]Asset, 0, len(job.Assets)),
	}
	for status, n := range job.Counts() {
		dto.Counts[string(status)] = n
	}
	for _, asset := range job.Assets {
		dto.Assets = append(dto.Assets, FromAsset(asset))
	}
	if !job.CreatedAt.IsZero() {
		dto.CreatedAt = job.CreatedAt.UTC().Format(dateTimeFormat)
	}
	if !job.UpdatedAt.IsZero() {
		dto.UpdatedAt = job.UpdatedAt.UTC().Format(dateTimeFormat)
	}
	return dto
}

// FromJobs converts a slice of jobs.
func FromJobs(jobs []*ingest.Job) []Job {
	out := make([]Job, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, FromJob(job))
	}
	return out
}

// FromAsset converts one asset. Completed lists stages holding a result, in
// pipeline order.
func FromAsset(asset ingest.Asset) Asset {
	dto := Asset{
		ID:          asset.ID,
		Name:        asset.Name,
		Kind:        string(asset.Kind),
		Status:      string(asset.Status),
		Progress:    asset.Progress,
		RawBlobRef:  asset.RawBlobRef,
		ContentType: asset.ContentType,
		Size:        asset.Size,
		Completed:   []string{},
		Error:       asset.Error,
	}
	for _, name := range stage.Plan(asset.Kind) {
		if asset.StageResults.Has(name) {
			dto.Completed = append(dto.Completed, name)
		}
	}
	if len(asset.StageErrors) > 0 {
		dto.StageErrors = make(map[string]string, len(asset.StageErrors))
		for k, v := range asset.StageErrors {
			dto.StageErrors[k] = v
		}
	}
	if sem := asset.StageResults.Semantic; sem != nil && len(sem.Tags) > 0 {
		dto.Tags = append([]string(nil), sem.Tags...)
		sort.Strings(dto.Tags)
	}
	if tr := asset.StageResults.Transcription; tr != nil && !tr.Placeholder && tr.Language != "" {
		dto.Language = language.DisplayName(tr.Language)
	}
	if !asset.UpdatedAt.IsZero() {
		dto.UpdatedAt = asset.UpdatedAt.UTC().Format(dateTimeFormat)
	}
	return dto
}
