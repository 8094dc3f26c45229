package testsupport

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"

	"mediarepo/internal/blobstore"
	"mediarepo/internal/ingest"
	"mediarepo/internal/services"
	"mediarepo/internal/services/llm"
	"mediarepo/internal/transcript"
)

// FakeFrameSampler returns Frames synthetic stills and counts calls.
type FakeFrameSampler struct {
	Frames int
	Err    error
	calls  atomic.Int64
}

// Calls reports how many Sample requests were made.
func (f *FakeFrameSampler) Calls() int { return int(f.calls.Load()) }

// Sample implements the frame sampler contract.
func (f *FakeFrameSampler) Sample(_ context.Context, media services.Media, opts services.SampleOptions) ([]services.SampledFrame, error) {
	f.calls.Add(1)
	if f.Err != nil {
		return nil, f.Err
	}
	count := f.Frames
	if count <= 0 {
		count = 3
	}
	if opts.MaxFrames > 0 && count > opts.MaxFrames {
		count = opts.MaxFrames
	}
	fps := opts.FPS
	if fps <= 0 {
		fps = 1
	}
	frames := make([]services.SampledFrame, count)
	for i := range frames {
		frames[i] = services.SampledFrame{
			Index:       i,
			Timestamp:   float64(i) / fps,
			ContentType: "image/jpeg",
			Data:        []byte(fmt.Sprintf("%s-frame-%d", media.Name, i)),
		}
	}
	return frames, nil
}

// FakeAudioExtractor returns Size bytes of audio (FallbackSize for the
// fallback encoding) and counts calls.
type FakeAudioExtractor struct {
	Size         int
	FallbackSize int
	NoAudio      bool
	Err          error

	mu        sync.Mutex
	encodings []string
}

// Calls reports how many Extract requests were made.
func (f *FakeAudioExtractor) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.encodings)
}

// Encodings lists the encodings requested, in order.
func (f *FakeAudioExtractor) Encodings() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.encodings...)
}

// Extract implements the audio extractor contract.
func (f *FakeAudioExtractor) Extract(_ context.Context, _ services.Media, opts services.ExtractOptions) (services.ExtractedAudio, error) {
	f.mu.Lock()
	f.encodings = append(f.encodings, opts.Encoding)
	f.mu.Unlock()
	if f.Err != nil {
		return services.ExtractedAudio{}, f.Err
	}
	if f.NoAudio {
		return services.ExtractedAudio{}, services.ErrNoAudio
	}
	size := f.Size
	if size <= 0 {
		size = 64
	}
	contentType := "audio/wav"
	if opts.Encoding != "" && opts.Encoding != "wav" {
		if f.FallbackSize > 0 {
			size = f.FallbackSize
		}
		contentType = "audio/mpeg"
	}
	return services.ExtractedAudio{
		Data:             []byte(strings.Repeat("a", size)),
		ContentType:      contentType,
		Encoding:         opts.Encoding,
		SampleRate:       opts.SampleRate,
		SourceSampleRate: 48000,
	}, nil
}

// FakeTranscriber returns a two-segment transcript. FailFor names audio
// blobs whose transcription fails.
type FakeTranscriber struct {
	Err      error
	FailFor  string
	AlignErr error

	transcribeCalls atomic.Int64
	alignCalls      atomic.Int64
}

// Calls reports how many Transcribe requests were made.
func (f *FakeTranscriber) Calls() int { return int(f.transcribeCalls.Load()) }

// AlignCalls reports how many Align requests were made.
func (f *FakeTranscriber) AlignCalls() int { return int(f.alignCalls.Load()) }

// Transcribe implements the transcription contract.
func (f *FakeTranscriber) Transcribe(_ context.Context, audio services.Media, _ string) (transcript.Raw, error) {
	f.transcribeCalls.Add(1)
	if f.Err != nil {
		return transcript.Raw{}, f.Err
	}
	if f.FailFor != "" && strings.HasPrefix(audio.Name, f.FailFor) {
		return transcript.Raw{}, services.Wrap(services.ErrValidation, "transcription", "transcribe", "unsupported audio", nil)
	}
	return transcript.Raw{
		Segments: []transcript.Segment{
			{Start: 0, End: 1.5, Text: "hello there"},
			{Start: 1.5, End: 3, Text: "general kenobi"},
		},
		Language: "en",
	}, nil
}

// Align implements the word alignment contract.
func (f *FakeTranscriber) Align(_ context.Context, _ services.Media, tr transcript.Transcript) ([]transcript.Word, error) {
	f.alignCalls.Add(1)
	if f.AlignErr != nil {
		return nil, f.AlignErr
	}
	var words []transcript.Word
	for _, seg := range tr.Segments {
		fields := strings.Fields(seg.Text)
		if len(fields) == 0 {
			continue
		}
		span := (seg.End - seg.Start) / float64(len(fields))
		for i, word := range fields {
			start := seg.Start + float64(i)*span
			words = append(words, transcript.Word{Word: word, Start: start, End: start + span, Score: 0.9})
		}
	}
	return words, nil
}

// FakeTagger echoes the asset name into its tags and counts calls.
type FakeTagger struct {
	Err error

	calls  atomic.Int64
	mu     sync.Mutex
	images []int
}

// Calls reports how many Tag requests were made.
func (f *FakeTagger) Calls() int { return int(f.calls.Load()) }

// ImageCounts lists the number of images attached to each request.
func (f *FakeTagger) ImageCounts() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.images...)
}

// Tag implements the tagger contract.
func (f *FakeTagger) Tag(_ context.Context, req llm.TagRequest) (ingest.Semantic, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.images = append(f.images, len(req.Images))
	f.mu.Unlock()
	if f.Err != nil {
		return ingest.Semantic{}, f.Err
	}
	return ingest.Semantic{
		Description: "A test description of " + req.Name + ".",
		Tags:        []string{string(req.Kind), "test"},
	}, nil
}

// SeedJob builds an ingesting job whose assets have real raw blobs in blobs.
// Asset names are "<kind>-<n>.<ext>".
func SeedJob(t testing.TB, blobs blobstore.Store, name string, kinds ...ingest.Kind) *ingest.Job {
	t.Helper()
	job := NewJob(name, kinds...)
	for i := range job.Assets {
		asset := &job.Assets[i]
		asset.Name = fmt.Sprintf("%s-%d%s", asset.Kind, i+1, extensionFor(asset.Kind))
		ref, err := blobs.Put(context.Background(), blobstore.Object{
			ID:          uuid.NewString(),
			OwnerID:     job.ID,
			Kind:        "raw",
			Name:        asset.Name,
			ContentType: contentTypeFor(asset.Kind),
			Data:        []byte("raw-" + asset.Name),
		})
		if err != nil {
			t.Fatalf("seed raw blob: %v", err)
		}
		asset.RawBlobRef = ref
		asset.ContentType = contentTypeFor(asset.Kind)
		asset.Size = int64(len("raw-" + asset.Name))
	}
	return job
}

func extensionFor(kind ingest.Kind) string {
	switch kind {
	case ingest.KindAudio:
		return ".mp3"
	case ingest.KindImage:
		return ".jpg"
	}
	return ".mp4"
}

func contentTypeFor(kind ingest.Kind) string {
	switch kind {
	case ingest.KindAudio:
		return "audio/mpeg"
	case ingest.KindImage:
		return "image/jpeg"
	}
	return "video/mp4"
}
