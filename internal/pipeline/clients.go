package pipeline

import (
	"context"

	"mediarepo/internal/ingest"
	"mediarepo/internal/services"
	"mediarepo/internal/services/llm"
	"mediarepo/internal/transcript"
)

// FrameSampler turns video bytes into stills.
type FrameSampler interface {
	Sample(ctx context.Context, media services.Media, opts services.SampleOptions) ([]services.SampledFrame, error)
}

// AudioExtractor turns media bytes into mono audio.
type AudioExtractor interface {
	Extract(ctx context.Context, media services.Media, opts services.ExtractOptions) (services.ExtractedAudio, error)
}

// Transcriber turns audio into text and, optionally, word timings.
type Transcriber interface {
	Transcribe(ctx context.Context, audio services.Media, language string) (transcript.Raw, error)
	Align(ctx context.Context, audio services.Media, tr transcript.Transcript) ([]transcript.Word, error)
}

// Tagger describes an asset from images and transcript text.
type Tagger interface {
	Tag(ctx context.Context, req llm.TagRequest) (ingest.Semantic, error)
}

// Clients are the external analysis services, injected by the caller.
type Clients struct {
	FrameSampler   FrameSampler
	AudioExtractor AudioExtractor
	Transcriber    Transcriber
	Tagger         Tagger
}
