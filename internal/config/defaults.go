package config

const (
	defaultConfigPath             = "~/.config/mediarepo/config.toml"
	defaultDataDir                = "~/.local/share/mediarepo"
	defaultLogDir                 = "~/.local/share/mediarepo/logs"
	defaultStagingDir             = "~/.local/share/mediarepo/staging"
	defaultAPIBind                = "127.0.0.1:7488"
	defaultStoreFilename          = "mediarepo.db"
	defaultBusyTimeoutMS          = 5000
	defaultBlobBackend            = "sqlite"
	defaultS3Region               = "us-east-1"
	defaultServiceMode            = "http"
	defaultServiceTimeoutSeconds  = 120
	defaultFFmpegBinary           = "ffmpeg"
	defaultFFprobeBinary          = "ffprobe"
	defaultTranscriptionLanguage  = "en"
	defaultTranscriptionMaxUpload = 25 * 1024 * 1024
	defaultLLMBaseURL             = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel               = "google/gemini-2.5-flash"
	defaultLLMReferer             = "https://github.com/mediarepo/mediarepo"
	defaultLLMTitle               = "mediarepo semantic tagger"
	defaultLLMTimeoutSeconds      = 60
	defaultConcurrency            = 3
	defaultFrameRate              = 1.0
	defaultMaxFrames              = 120
	defaultMaxTaggingFrames       = 8
	defaultTargetSampleRate       = 16000
	defaultAudioCeilingBytes      = 20 * 1024 * 1024
	defaultFallbackEncoding       = "mp3"
	defaultRetryAttempts          = 3
	defaultRetryInitialMS         = 500
	defaultRetryMaxMS             = 8000
	defaultHeartbeatInterval      = 15
	defaultHeartbeatTimeout       = 120
	defaultNotifyRequestTimeout   = 10
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:    defaultDataDir,
			LogDir:     defaultLogDir,
			StagingDir: defaultStagingDir,
			APIBind:    defaultAPIBind,
		},
		Store: Store{
			Filename:      defaultStoreFilename,
			BusyTimeoutMS: defaultBusyTimeoutMS,
		},
		Blobs: Blobs{Backend: defaultBlobBackend},
		S3: S3{
			Region: defaultS3Region,
		},
		Services: Services{
			FrameSampler:   Endpoint{Mode: defaultServiceMode, TimeoutSeconds: defaultServiceTimeoutSeconds},
			AudioExtractor: Endpoint{Mode: defaultServiceMode, TimeoutSeconds: defaultServiceTimeoutSeconds},
			Transcription:  Endpoint{Mode: defaultServiceMode, TimeoutSeconds: defaultServiceTimeoutSeconds},
			FFmpegBinary:   defaultFFmpegBinary,
			FFprobeBinary:  defaultFFprobeBinary,
		},
		Transcription: Transcription{
			Language:       defaultTranscriptionLanguage,
			MaxUploadBytes: defaultTranscriptionMaxUpload,
			WordAlignment:  true,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			Referer:        defaultLLMReferer,
			Title:          defaultLLMTitle,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		Pipeline: Pipeline{
			Concurrency:       defaultConcurrency,
			FrameRate:         defaultFrameRate,
			MaxFrames:         defaultMaxFrames,
			MaxTaggingFrames:  defaultMaxTaggingFrames,
			TargetSampleRate:  defaultTargetSampleRate,
			AudioCeilingBytes: defaultAudioCeilingBytes,
			FallbackEncoding:  defaultFallbackEncoding,
			RetryAttempts:     defaultRetryAttempts,
			RetryInitialMS:    defaultRetryInitialMS,
			RetryMaxMS:        defaultRetryMaxMS,
		},
		Workflow: Workflow{
			HeartbeatInterval: defaultHeartbeatInterval,
			HeartbeatTimeout:  defaultHeartbeatTimeout,
			ResumeOnStart:     true,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			JobCompleted:   true,
			JobFailed:      true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
