package pipeline

import (
	"errors"
	"fmt"

	"mediarepo/internal/config"
	"mediarepo/internal/services/audioextract"
	"mediarepo/internal/services/ffmpeg"
	"mediarepo/internal/services/framesampler"
	"mediarepo/internal/services/httpservice"
	"mediarepo/internal/services/llm"
	"mediarepo/internal/services/transcribe"
	"mediarepo/internal/stage"
)

// Service labels used in health reports and error messages.
const (
	ServiceFrameSampler   = "frame_sampler"
	ServiceAudioExtractor = "audio_extractor"
	ServiceTranscription  = "transcription"
	ServiceTagger         = "llm"
)

// ClientsFromConfig builds every analysis client named by cfg. Clients that
// cannot be built are left nil and reported in the joined error, so callers
// that only need health reports can carry on.
func ClientsFromConfig(cfg *config.Config) (Clients, error) {
	var (
		clients Clients
		errs    []error
		local   *ffmpeg.Adapter
	)
	localAdapter := func() *ffmpeg.Adapter {
		if local == nil {
			local = ffmpeg.New(cfg.Services.FFmpegBinary, cfg.Services.FFprobeBinary, cfg.Paths.StagingDir)
		}
		return local
	}

	if cfg.Services.FrameSampler.Mode == "ffmpeg" {
		clients.FrameSampler = localAdapter()
	} else if transport, err := newTransport(ServiceFrameSampler, cfg.Services.FrameSampler); err != nil {
		errs = append(errs, err)
	} else {
		clients.FrameSampler = framesampler.New(transport)
	}

	if cfg.Services.AudioExtractor.Mode == "ffmpeg" {
		clients.AudioExtractor = localAdapter()
	} else if transport, err := newTransport(ServiceAudioExtractor, cfg.Services.AudioExtractor); err != nil {
		errs = append(errs, err)
	} else {
		clients.AudioExtractor = audioextract.New(transport)
	}

	if transport, err := newTransport(ServiceTranscription, cfg.Services.Transcription); err != nil {
		errs = append(errs, err)
	} else {
		clients.Transcriber = transcribe.New(transport)
	}

	clients.Tagger = llm.NewTagger(llm.NewClient(llm.Config{
		APIKey:         cfg.LLM.APIKey,
		BaseURL:        cfg.LLM.BaseURL,
		Model:          cfg.LLM.Model,
		Referer:        cfg.LLM.Referer,
		Title:          cfg.LLM.Title,
		TimeoutSeconds: cfg.LLM.TimeoutSeconds,
	}, llm.WithRetryMaxAttempts(1))) // the stage runner owns the retry budget
	return clients, errors.Join(errs...)
}

func newTransport(name string, ep config.Endpoint) (*httpservice.Client, error) {
	transport, err := httpservice.New(name, ep.BaseURL, ep.ServiceTimeout())
	if err != nil {
		return nil, fmt.Errorf("services.%s: %w", name, err)
	}
	return transport, nil
}

// NamedChecker pairs a service label with its health probe. Checker is nil
// when the service is not configured.
type NamedChecker struct {
	Name    string
	Checker stage.Checker
}

// Checkers lists a health probe for each client slot in a stable order.
func (c Clients) Checkers() []NamedChecker {
	return []NamedChecker{
		{Name: ServiceFrameSampler, Checker: asChecker(c.FrameSampler)},
		{Name: ServiceAudioExtractor, Checker: asChecker(c.AudioExtractor)},
		{Name: ServiceTranscription, Checker: asChecker(c.Transcriber)},
		{Name: ServiceTagger, Checker: asChecker(c.Tagger)},
	}
}

func asChecker(client any) stage.Checker {
	if checker, ok := client.(stage.Checker); ok {
		return checker
	}
	return nil
}
