package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"mediarepo/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("MEDIAREPO_LLM_API_KEY", "env-key")

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "mediarepo")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.StorePath() != filepath.Join(wantData, "mediarepo.db") {
		t.Fatalf("unexpected store path: %q", cfg.StorePath())
	}
	if cfg.Paths.APIBind != "127.0.0.1:7488" {
		t.Fatalf("unexpected api bind: %q", cfg.Paths.APIBind)
	}
	if cfg.LLM.APIKey != "env-key" {
		t.Fatalf("expected LLM key from env, got %q", cfg.LLM.APIKey)
	}
	if cfg.Pipeline.FrameRate != 1 {
		t.Fatalf("expected default frame rate 1, got %v", cfg.Pipeline.FrameRate)
	}
	if cfg.Pipeline.TargetSampleRate != 16000 {
		t.Fatalf("expected default target sample rate 16000, got %d", cfg.Pipeline.TargetSampleRate)
	}
	if cfg.Blobs.Backend != "sqlite" {
		t.Fatalf("expected sqlite blob backend, got %q", cfg.Blobs.Backend)
	}
	if cfg.Services.FrameSampler.Mode != "http" {
		t.Fatalf("expected http frame sampler mode, got %q", cfg.Services.FrameSampler.Mode)
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "mediarepo.toml")

	type payload struct {
		Paths struct {
			DataDir string `toml:"data_dir"`
		} `toml:"paths"`
		Pipeline struct {
			Concurrency int `toml:"concurrency"`
			MaxFrames   int `toml:"max_frames"`
		} `toml:"pipeline"`
		Workflow struct {
			HeartbeatInterval int `toml:"heartbeat_interval"`
			HeartbeatTimeout  int `toml:"heartbeat_timeout"`
		} `toml:"workflow"`
		Logging struct {
			Format string `toml:"format"`
		} `toml:"logging"`
	}
	custom := payload{}
	custom.Paths.DataDir = filepath.Join(tempDir, "data")
	custom.Pipeline.Concurrency = 7
	custom.Pipeline.MaxFrames = 30
	custom.Workflow.HeartbeatInterval = 20
	custom.Workflow.HeartbeatTimeout = 200
	custom.Logging.Format = "JSON"

	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("expected custom config to be used, got %q exists=%v", resolved, exists)
	}
	if cfg.Paths.DataDir != filepath.Join(tempDir, "data") {
		t.Fatalf("unexpected data dir %q", cfg.Paths.DataDir)
	}
	if cfg.Pipeline.Concurrency != 7 || cfg.Pipeline.MaxFrames != 30 {
		t.Fatalf("unexpected pipeline settings: %+v", cfg.Pipeline)
	}
	if cfg.Pipeline.MaxTaggingFrames != 8 {
		t.Fatalf("expected untouched default for max_tagging_frames, got %d", cfg.Pipeline.MaxTaggingFrames)
	}
	if cfg.HeartbeatInterval().Seconds() != 20 {
		t.Fatalf("expected heartbeat interval 20s, got %s", cfg.HeartbeatInterval())
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("expected normalized json format, got %q", cfg.Logging.Format)
	}
}

func TestFileValueWinsOverEnvForLLMKey(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "mediarepo.toml")
	if err := os.WriteFile(configPath, []byte("[llm]\napi_key = \"file-key\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("MEDIAREPO_LLM_API_KEY", "env-key")

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.LLM.APIKey != "file-key" {
		t.Fatalf("expected file key, got %q", cfg.LLM.APIKey)
	}
}

func TestCreateSample(t *testing.T) {
	tempDir := t.TempDir()
	target := filepath.Join(tempDir, "nested", "config.toml")
	if err := config.CreateSample(target); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}
	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	for _, fragment := range []string{"[paths]", "[pipeline]", "[services.transcription]", "[workflow]"} {
		if !strings.Contains(string(data), fragment) {
			t.Fatalf("expected sample to contain %q", fragment)
		}
	}

	t.Setenv("HOME", tempDir)
	if _, _, _, err := config.Load(target); err != nil {
		t.Fatalf("sample config should load cleanly: %v", err)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"concurrency", func(c *config.Config) { c.Pipeline.Concurrency = 0 }, "pipeline.concurrency"},
		{"heartbeat", func(c *config.Config) { c.Workflow.HeartbeatTimeout = c.Workflow.HeartbeatInterval }, "heartbeat_timeout"},
		{"blob backend", func(c *config.Config) { c.Blobs.Backend = "ftp" }, "blobs.backend"},
		{"s3 bucket", func(c *config.Config) { c.Blobs.Backend = "s3" }, "s3.bucket"},
		{"transcription ffmpeg", func(c *config.Config) { c.Services.Transcription.Mode = "ffmpeg" }, "services.transcription.mode"},
		{"service url", func(c *config.Config) { c.Services.FrameSampler.BaseURL = "ftp://nope" }, "services.frame_sampler.base_url"},
		{"log level", func(c *config.Config) { c.Logging.Level = "verbose" }, "logging.level"},
		{"language", func(c *config.Config) { c.Transcription.Language = "not a language" }, "transcription.language"},
	}
	for _, tc := range cases {
		cfg := config.Default()
		tc.mutate(&cfg)
		err := cfg.Validate()
		if err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
		if !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: expected %q in %q", tc.name, tc.want, err.Error())
		}
	}

	valid := config.Default()
	if err := valid.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}
