package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"mediarepo/internal/language"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateBlobs(); err != nil {
		return err
	}
	if err := c.validateServices(); err != nil {
		return err
	}
	if err := c.validateTranscription(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateBlobs() error {
	switch c.Blobs.Backend {
	case "sqlite":
		return nil
	case "s3":
		if c.S3.Bucket == "" {
			return errors.New("s3.bucket must be set when blobs.backend is \"s3\"")
		}
		if (c.S3.AccessKeyID == "") != (c.S3.SecretAccessKey == "") {
			return errors.New("s3.access_key_id and s3.secret_access_key must be set together")
		}
		if c.S3.Endpoint != "" {
			if err := validateURL("s3.endpoint", c.S3.Endpoint); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("blobs.backend: unsupported value %q (want sqlite or s3)", c.Blobs.Backend)
	}
}

func (c *Config) validateServices() error {
	endpoints := []struct {
		key        string
		endpoint   Endpoint
		allowLocal bool
	}{
		{"services.frame_sampler", c.Services.FrameSampler, true},
		{"services.audio_extractor", c.Services.AudioExtractor, true},
		{"services.transcription", c.Services.Transcription, false},
	}
	for _, ep := range endpoints {
		switch ep.endpoint.Mode {
		case "http":
			if ep.endpoint.BaseURL == "" {
				continue
			}
			if err := validateURL(ep.key+".base_url", ep.endpoint.BaseURL); err != nil {
				return err
			}
		case "ffmpeg":
			if !ep.allowLocal {
				return fmt.Errorf("%s.mode: ffmpeg is not supported for this service", ep.key)
			}
		default:
			return fmt.Errorf("%s.mode: unsupported value %q", ep.key, ep.endpoint.Mode)
		}
	}
	if err := validateURL("llm.base_url", c.LLM.BaseURL); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if c.Pipeline.Concurrency <= 0 {
		return errors.New("pipeline.concurrency must be positive")
	}
	if c.Pipeline.MaxFrames <= 0 {
		return errors.New("pipeline.max_frames must be positive")
	}
	if c.Pipeline.MaxTaggingFrames <= 0 {
		return errors.New("pipeline.max_tagging_frames must be positive")
	}
	if c.Pipeline.TargetSampleRate < 8000 {
		return errors.New("pipeline.target_sample_rate must be at least 8000")
	}
	if c.Pipeline.AudioCeilingBytes <= 0 {
		return errors.New("pipeline.audio_ceiling_bytes must be positive")
	}
	if c.Pipeline.RetryInitialMS < 0 || c.Pipeline.RetryMaxMS < 0 {
		return errors.New("pipeline retry delays must not be negative")
	}
	if c.Pipeline.RetryMaxMS > 0 && c.Pipeline.RetryInitialMS > c.Pipeline.RetryMaxMS {
		return errors.New("pipeline.retry_initial_ms must not exceed pipeline.retry_max_ms")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.HeartbeatInterval <= 0 {
		return errors.New("workflow.heartbeat_interval must be positive")
	}
	if c.Workflow.HeartbeatTimeout <= c.Workflow.HeartbeatInterval {
		return errors.New("workflow.heartbeat_timeout must be greater than workflow.heartbeat_interval")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

func (c *Config) validateTranscription() error {
	if c.Transcription.Language != "" && language.ToISO2(c.Transcription.Language) == "" {
		return fmt.Errorf("transcription.language: unrecognized language %q", c.Transcription.Language)
	}
	return nil
}

func validateURL(key, raw string) error {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%s: expected http(s) url, got %q", key, raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%s: missing host in %q", key, raw)
	}
	return nil
}
