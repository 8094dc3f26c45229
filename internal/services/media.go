package services

import "errors"

// ErrNoAudio reports that a source has no decodable audio stream. It is an
// outcome, not a failure: the audio stage records "no audio" and moves on.
var ErrNoAudio = errors.New("no decodable audio")

// Media is an asset's bytes as handed to an analysis service.
type Media struct {
	Name        string
	ContentType string
	Data        []byte
}

// Size returns the payload length.
func (m Media) Size() int64 {
	return int64(len(m.Data))
}

// SampleOptions bounds frame sampling.
type SampleOptions struct {
	FPS       float64
	MaxFrames int
}

// SampledFrame is one still returned by a frame sampler.
type SampledFrame struct {
	Index       int
	Timestamp   float64
	ContentType string
	Data        []byte
}

// ExtractOptions asks for mono audio at SampleRate (only when the source is
// higher) encoded as Encoding.
type ExtractOptions struct {
	SampleRate int
	Encoding   string
}

// ExtractedAudio is the audio extractor's output.
type ExtractedAudio struct {
	Data             []byte
	ContentType      string
	Encoding         string
	SampleRate       int
	SourceSampleRate int
}
