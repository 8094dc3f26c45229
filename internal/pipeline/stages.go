package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"mediarepo/internal/ingest"
	"mediarepo/internal/services"
	"mediarepo/internal/services/llm"
	"mediarepo/internal/transcript"
)

func (r *Runner) runFrames(ctx context.Context, run *assetRun) error {
	if r.clients.FrameSampler == nil {
		return services.Wrap(services.ErrConfiguration, ingest.StageFrames, "sample", "frame sampler not configured", nil)
	}
	media, err := r.rawMedia(ctx, run)
	if err != nil {
		return err
	}
	sampled, err := r.clients.FrameSampler.Sample(ctx, media, services.SampleOptions{
		FPS:       r.settings.FrameRate,
		MaxFrames: r.settings.MaxFrames,
	})
	if err != nil {
		return err
	}
	if len(sampled) == 0 {
		return services.Wrap(services.ErrValidation, ingest.StageFrames, "sample", "no frames returned", nil)
	}
	if r.settings.MaxFrames > 0 && len(sampled) > r.settings.MaxFrames {
		sampled = sampled[:r.settings.MaxFrames]
	}

	// The stage restarts from t=0 on failure, so partial uploads are discarded.
	frames := make([]ingest.Frame, 0, len(sampled))
	base := baseName(run.asset.Name)
	for i, frame := range sampled {
		contentType := frame.ContentType
		if contentType == "" {
			contentType = "image/jpeg"
		}
		ref, err := r.putBlob(ctx, run, "frame", fmt.Sprintf("%s-frame-%04d.jpg", base, i+1), contentType, frame.Data)
		if err != nil {
			r.discardBlobs(ctx, frames)
			return err
		}
		run.frames[ref] = frame.Data
		frames = append(frames, ingest.Frame{
			Index:       i,
			Timestamp:   frame.Timestamp,
			ContentType: contentType,
			BlobRef:     ref,
		})
	}
	run.asset.StageResults.Frames = frames
	return nil
}

func (r *Runner) discardBlobs(ctx context.Context, frames []ingest.Frame) {
	for _, frame := range frames {
		if err := r.blobs.Delete(ctx, frame.BlobRef); err != nil {
			r.logger.Debug("discard partial frame failed", "blob_ref", frame.BlobRef, "error", err)
		}
	}
}

func (r *Runner) runAudio(ctx context.Context, run *assetRun) error {
	if r.clients.AudioExtractor == nil {
		return services.Wrap(services.ErrConfiguration, ingest.StageAudio, "extract", "audio extractor not configured", nil)
	}
	media, err := r.rawMedia(ctx, run)
	if err != nil {
		return err
	}
	opts := services.ExtractOptions{SampleRate: r.settings.TargetSampleRate, Encoding: "wav"}
	extracted, err := r.clients.AudioExtractor.Extract(ctx, media, opts)
	if errors.Is(err, services.ErrNoAudio) && run.asset.Kind == ingest.KindVideo {
		run.asset.StageResults.NoAudio = true
		return nil
	}
	if err != nil {
		// Extraction failure on a video degrades to "no audio".
		if run.asset.Kind == ingest.KindVideo {
			run.asset.StageResults.NoAudio = true
		}
		return err
	}

	fallback := false
	ceiling := r.settings.AudioCeilingBytes
	if ceiling > 0 && int64(len(extracted.Data)) > ceiling && r.settings.FallbackEncoding != "" && r.settings.FallbackEncoding != extracted.Encoding {
		opts.Encoding = r.settings.FallbackEncoding
		smaller, err := r.clients.AudioExtractor.Extract(ctx, media, opts)
		if err != nil {
			return err
		}
		extracted = smaller
		fallback = true
	}
	if extracted.Encoding == "" {
		extracted.Encoding = opts.Encoding
	}

	name := baseName(run.asset.Name) + "." + extracted.Encoding
	ref, err := r.putBlob(ctx, run, "audio", name, extracted.ContentType, extracted.Data)
	if err != nil {
		return err
	}
	run.audio = &services.Media{Name: name, ContentType: extracted.ContentType, Data: extracted.Data}
	run.asset.StageResults.NoAudio = false
	run.asset.StageResults.Audio = &ingest.Audio{
		BlobRef:          ref,
		ContentType:      extracted.ContentType,
		Encoding:         extracted.Encoding,
		SampleRate:       extracted.SampleRate,
		SourceSampleRate: extracted.SourceSampleRate,
		Size:             int64(len(extracted.Data)),
		Fallback:         fallback,
	}
	return nil
}

func (r *Runner) runTranscription(ctx context.Context, run *assetRun) error {
	audio := run.asset.StageResults.Audio
	if audio == nil {
		return errNotApplicable
	}
	if r.settings.MaxUploadBytes > 0 && audio.Size > r.settings.MaxUploadBytes {
		placeholder := transcript.Placeholder(fmt.Sprintf("audio is %d bytes, above the %d byte upload limit", audio.Size, r.settings.MaxUploadBytes))
		run.asset.StageResults.Transcription = &placeholder
		run.logger.Info("transcription skipped; audio above upload limit",
			"event_type", "transcription_placeholder",
			"audio_bytes", audio.Size,
		)
		return nil
	}
	if r.clients.Transcriber == nil {
		return services.Wrap(services.ErrConfiguration, ingest.StageTranscription, "transcribe", "transcription service not configured", nil)
	}
	media, err := r.audioMedia(ctx, run)
	if err != nil {
		return err
	}
	raw, err := r.clients.Transcriber.Transcribe(ctx, media, r.settings.Language)
	if err != nil {
		return err
	}
	normalized, err := transcript.Normalize(raw)
	if err != nil {
		return services.Wrap(services.ErrValidation, ingest.StageTranscription, "normalize", "", err)
	}

	if r.settings.WordAlignment && len(normalized.Segments) > 0 {
		words, alignErr := r.clients.Transcriber.Align(ctx, media, normalized)
		switch {
		case alignErr != nil:
			normalized.Note = "word alignment unavailable"
			run.logger.Warn("word alignment failed; keeping segment granularity",
				"event_type", "alignment_degraded",
				"error", alignErr,
			)
		case len(words) > 0:
			transcript.ApplyWords(&normalized, words)
		}
	}
	run.asset.StageResults.Transcription = &normalized
	return nil
}

func (r *Runner) audioMedia(ctx context.Context, run *assetRun) (services.Media, error) {
	if run.audio != nil {
		return *run.audio, nil
	}
	audio := run.asset.StageResults.Audio
	obj, err := r.blobs.Get(ctx, audio.BlobRef)
	if err != nil {
		return services.Media{}, services.Wrap(services.ErrTransient, ingest.StageTranscription, "load audio", "", err)
	}
	media := services.Media{Name: obj.Name, ContentType: audio.ContentType, Data: obj.Data}
	run.audio = &media
	return media, nil
}

func (r *Runner) runSemantic(ctx context.Context, run *assetRun) error {
	if r.clients.Tagger == nil {
		return services.Wrap(services.ErrConfiguration, ingest.StageSemantic, "tag", "tagger not configured", nil)
	}
	images, err := r.taggingImages(ctx, run)
	if err != nil {
		return err
	}
	req := llm.TagRequest{
		Name:   run.asset.Name,
		Kind:   run.asset.Kind,
		Brief:  run.job.Brief,
		Images: images,
	}
	if tr := run.asset.StageResults.Transcription; tr != nil && !tr.Placeholder {
		req.Transcript = tr.Text
	}
	semantic, err := r.clients.Tagger.Tag(ctx, req)
	if err != nil {
		return err
	}
	run.asset.StageResults.Semantic = &semantic
	return nil
}

// taggingImages picks evenly spaced frames, or the raw blob for images.
func (r *Runner) taggingImages(ctx context.Context, run *assetRun) ([]llm.Image, error) {
	frames := SelectFrames(run.asset.StageResults.Frames, r.settings.MaxTaggingFrames)
	if len(frames) == 0 {
		if run.asset.Kind != ingest.KindImage {
			return nil, nil
		}
		media, err := r.rawMedia(ctx, run)
		if err != nil {
			return nil, err
		}
		return []llm.Image{{ContentType: media.ContentType, Data: media.Data}}, nil
	}
	images := make([]llm.Image, 0, len(frames))
	for _, frame := range frames {
		data, ok := run.frames[frame.BlobRef]
		if !ok {
			obj, err := r.blobs.Get(ctx, frame.BlobRef)
			if err != nil {
				return nil, services.Wrap(services.ErrTransient, ingest.StageSemantic, "load frame", "", err)
			}
			data = obj.Data
			run.frames[frame.BlobRef] = data
		}
		images = append(images, llm.Image{ContentType: frame.ContentType, Data: data})
	}
	return images, nil
}

// SelectFrames returns up to n frames spread evenly across the sequence,
// always including the first.
func SelectFrames(frames []ingest.Frame, n int) []ingest.Frame {
	if n <= 0 || len(frames) <= n {
		return frames
	}
	selected := make([]ingest.Frame, 0, n)
	step := float64(len(frames)) / float64(n)
	for i := 0; i < n; i++ {
		selected = append(selected, frames[int(float64(i)*step)])
	}
	return selected
}

func baseName(name string) string {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	if base == "" || base == "." {
		return "asset"
	}
	return base
}
