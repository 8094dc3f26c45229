package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir    string `toml:"data_dir"`
	LogDir     string `toml:"log_dir"`
	StagingDir string `toml:"staging_dir"`
	APIBind    string `toml:"api_bind"`
}

// Store contains SQLite settings for the durable store.
type Store struct {
	Filename      string `toml:"filename"`
	BusyTimeoutMS int    `toml:"busy_timeout_ms"`
}

// Blobs selects where raw and derived asset bytes live.
type Blobs struct {
	// Backend is "sqlite" (bytes inline in the assets table) or "s3".
	Backend string `toml:"backend"`
}

// S3 configures the S3-compatible blob backend.
type S3 struct {
	Bucket          string `toml:"bucket"`
	Region          string `toml:"region"`
	Endpoint        string `toml:"endpoint"`
	Prefix          string `toml:"prefix"`
	AccessKeyID     string `toml:"access_key_id"`
	SecretAccessKey string `toml:"secret_access_key"`
	UsePathStyle    bool   `toml:"use_path_style"`
}

// Endpoint describes one external analysis service.
type Endpoint struct {
	// Mode is "http" (default) or "ffmpeg" for the local adapter where supported.
	Mode           string `toml:"mode"`
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Services groups the external analysis services the pipeline calls.
type Services struct {
	FrameSampler   Endpoint `toml:"frame_sampler"`
	AudioExtractor Endpoint `toml:"audio_extractor"`
	Transcription  Endpoint `toml:"transcription"`
	FFmpegBinary   string   `toml:"ffmpeg_binary"`
	FFprobeBinary  string   `toml:"ffprobe_binary"`
}

// Transcription contains transcription request settings.
type Transcription struct {
	Language       string `toml:"language"`
	MaxUploadBytes int64  `toml:"max_upload_bytes"`
	WordAlignment  bool   `toml:"word_alignment"`
}

// LLM contains connection settings for the semantic tagging service.
type LLM struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Referer        string `toml:"referer"`
	Title          string `toml:"title"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Pipeline contains stage runner limits.
type Pipeline struct {
	Concurrency       int     `toml:"concurrency"`
	FrameRate         float64 `toml:"frame_rate"`
	MaxFrames         int     `toml:"max_frames"`
	MaxTaggingFrames  int     `toml:"max_tagging_frames"`
	TargetSampleRate  int     `toml:"target_sample_rate"`
	AudioCeilingBytes int64   `toml:"audio_ceiling_bytes"`
	FallbackEncoding  string  `toml:"fallback_encoding"`
	RetryAttempts     int     `toml:"retry_attempts"`
	RetryInitialMS    int     `toml:"retry_initial_ms"`
	RetryMaxMS        int     `toml:"retry_max_ms"`
}

// Workflow contains configuration for worker leases and startup behavior.
type Workflow struct {
	HeartbeatInterval int  `toml:"heartbeat_interval"`
	HeartbeatTimeout  int  `toml:"heartbeat_timeout"`
	ResumeOnStart     bool `toml:"resume_on_start"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	JobCompleted   bool   `toml:"job_completed"`
	JobFailed      bool   `toml:"job_failed"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for mediarepo.
//
// Configuration sections by subsystem:
//   - Paths: data, log, and staging directories plus the API bind address
//   - Store: SQLite database file and busy timeout
//   - Blobs / S3: where asset bytes are kept
//   - Services: frame sampler, audio extractor, transcription endpoints
//   - Transcription: language hint, upload ceiling, word alignment
//   - LLM: semantic tagging chat-completions endpoint
//   - Pipeline: concurrency, sampling, ceilings, retry policy
//   - Workflow: job lease heartbeats and resume behavior
//   - Notifications: ntfy push settings
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Store         Store         `toml:"store"`
	Blobs         Blobs         `toml:"blobs"`
	S3            S3            `toml:"s3"`
	Services      Services      `toml:"services"`
	Transcription Transcription `toml:"transcription"`
	LLM           LLM           `toml:"llm"`
	Pipeline      Pipeline      `toml:"pipeline"`
	Workflow      Workflow      `toml:"workflow"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("mediarepo.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir, c.Paths.StagingDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// StorePath returns the SQLite database location.
func (c *Config) StorePath() string {
	return filepath.Join(c.Paths.DataDir, c.Store.Filename)
}

// LockPath returns the daemon single-instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "mediarepo.lock")
}

// HeartbeatInterval returns the lease refresh cadence.
func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.Workflow.HeartbeatInterval) * time.Second
}

// HeartbeatTimeout returns how long a lease survives without a heartbeat.
func (c *Config) HeartbeatTimeout() time.Duration {
	return time.Duration(c.Workflow.HeartbeatTimeout) * time.Second
}

// ServiceTimeout converts an endpoint timeout to a duration, falling back to the default.
func (e Endpoint) ServiceTimeout() time.Duration {
	if e.TimeoutSeconds <= 0 {
		return time.Duration(defaultServiceTimeoutSeconds) * time.Second
	}
	return time.Duration(e.TimeoutSeconds) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
