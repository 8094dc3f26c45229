package config

import (
	"fmt"
	"os"
	"strings"

	"mediarepo/internal/language"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeStore()
	c.normalizeBlobs()
	c.normalizeServices()
	c.normalizeTranscription()
	c.normalizeLLM()
	c.normalizePipeline()
	c.normalizeLogging()
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StagingDir) == "" {
		c.Paths.StagingDir = defaultStagingDir
	}
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	return nil
}

func (c *Config) normalizeStore() {
	c.Store.Filename = strings.TrimSpace(c.Store.Filename)
	if c.Store.Filename == "" {
		c.Store.Filename = defaultStoreFilename
	}
	if c.Store.BusyTimeoutMS <= 0 {
		c.Store.BusyTimeoutMS = defaultBusyTimeoutMS
	}
}

func (c *Config) normalizeBlobs() {
	c.Blobs.Backend = strings.ToLower(strings.TrimSpace(c.Blobs.Backend))
	if c.Blobs.Backend == "" {
		c.Blobs.Backend = defaultBlobBackend
	}
	c.S3.Bucket = strings.TrimSpace(c.S3.Bucket)
	c.S3.Endpoint = strings.TrimSpace(c.S3.Endpoint)
	c.S3.Prefix = strings.Trim(strings.TrimSpace(c.S3.Prefix), "/")
	c.S3.Region = strings.TrimSpace(c.S3.Region)
	if c.S3.Region == "" {
		c.S3.Region = defaultS3Region
	}
	if c.S3.AccessKeyID == "" {
		if value, ok := os.LookupEnv("MEDIAREPO_S3_ACCESS_KEY_ID"); ok {
			c.S3.AccessKeyID = value
		}
	}
	if c.S3.SecretAccessKey == "" {
		if value, ok := os.LookupEnv("MEDIAREPO_S3_SECRET_ACCESS_KEY"); ok {
			c.S3.SecretAccessKey = value
		}
	}
	c.S3.AccessKeyID = strings.TrimSpace(c.S3.AccessKeyID)
	c.S3.SecretAccessKey = strings.TrimSpace(c.S3.SecretAccessKey)
}

func (c *Config) normalizeServices() {
	for _, ep := range []*Endpoint{&c.Services.FrameSampler, &c.Services.AudioExtractor, &c.Services.Transcription} {
		ep.Mode = strings.ToLower(strings.TrimSpace(ep.Mode))
		if ep.Mode == "" {
			ep.Mode = defaultServiceMode
		}
		ep.BaseURL = strings.TrimRight(strings.TrimSpace(ep.BaseURL), "/")
		if ep.TimeoutSeconds <= 0 {
			ep.TimeoutSeconds = defaultServiceTimeoutSeconds
		}
	}
	c.Services.FFmpegBinary = strings.TrimSpace(c.Services.FFmpegBinary)
	if c.Services.FFmpegBinary == "" {
		c.Services.FFmpegBinary = defaultFFmpegBinary
	}
	c.Services.FFprobeBinary = strings.TrimSpace(c.Services.FFprobeBinary)
	if c.Services.FFprobeBinary == "" {
		c.Services.FFprobeBinary = defaultFFprobeBinary
	}
}

func (c *Config) normalizeTranscription() {
	c.Transcription.Language = language.Normalize(c.Transcription.Language)
	if c.Transcription.MaxUploadBytes <= 0 {
		c.Transcription.MaxUploadBytes = defaultTranscriptionMaxUpload
	}
}

func (c *Config) normalizeLLM() {
	if c.LLM.APIKey == "" {
		if value, ok := os.LookupEnv("MEDIAREPO_LLM_API_KEY"); ok {
			c.LLM.APIKey = value
		} else if value, ok := os.LookupEnv("OPENROUTER_API_KEY"); ok {
			c.LLM.APIKey = value
		}
	}
	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = defaultLLMBaseURL
	}
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	if c.LLM.Model == "" {
		c.LLM.Model = defaultLLMModel
	}
	c.LLM.Referer = strings.TrimSpace(c.LLM.Referer)
	c.LLM.Title = strings.TrimSpace(c.LLM.Title)
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = defaultLLMTimeoutSeconds
	}
}

func (c *Config) normalizePipeline() {
	if c.Pipeline.FrameRate <= 0 {
		c.Pipeline.FrameRate = defaultFrameRate
	}
	c.Pipeline.FallbackEncoding = strings.ToLower(strings.TrimSpace(c.Pipeline.FallbackEncoding))
	if c.Pipeline.FallbackEncoding == "" {
		c.Pipeline.FallbackEncoding = defaultFallbackEncoding
	}
	if c.Pipeline.RetryAttempts <= 0 {
		c.Pipeline.RetryAttempts = 1
	}
}

func (c *Config) normalizeLogging() {
	format := strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch format {
	case "", "console", "text", "pretty":
		c.Logging.Format = "console"
	default:
		c.Logging.Format = format
	}
	level := strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if level == "" {
		level = defaultLogLevel
	}
	c.Logging.Level = level
}
