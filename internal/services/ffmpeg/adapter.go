package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"mediarepo/internal/services"
	"mediarepo/internal/services/audioextract"
	"mediarepo/internal/staging"
)

// Runner executes a command and returns its combined output.
type Runner interface {
	Run(ctx context.Context, binary string, args ...string) ([]byte, error)
}

// ExecRunner runs real processes.
type ExecRunner struct{}

// Run implements Runner.
func (ExecRunner) Run(ctx context.Context, binary string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	return cmd.CombinedOutput()
}

// Adapter implements Sample and Extract with local binaries.
type Adapter struct {
	ffmpeg     string
	ffprobe    string
	stagingDir string
	runner     Runner
}

// Option customizes an Adapter.
type Option func(*Adapter)

// WithRunner swaps the process runner (tests).
func WithRunner(r Runner) Option {
	return func(a *Adapter) {
		if r != nil {
			a.runner = r
		}
	}
}

// New builds an adapter. Empty binaries default to ffmpeg / ffprobe on PATH.
func New(ffmpegBinary, ffprobeBinary, stagingDir string, opts ...Option) *Adapter {
	a := &Adapter{
		ffmpeg:     strings.TrimSpace(ffmpegBinary),
		ffprobe:    strings.TrimSpace(ffprobeBinary),
		stagingDir: strings.TrimSpace(stagingDir),
		runner:     ExecRunner{},
	}
	if a.ffmpeg == "" {
		a.ffmpeg = "ffmpeg"
	}
	if a.ffprobe == "" {
		a.ffprobe = "ffprobe"
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Sample writes up to MaxFrames JPEG stills at FPS starting from t=0.
func (a *Adapter) Sample(ctx context.Context, media services.Media, opts services.SampleOptions) ([]services.SampledFrame, error) {
	fps := opts.FPS
	if fps <= 0 {
		fps = 1
	}
	work, source, err := a.stage(media)
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(work)

	framesDir := filepath.Join(work, "frames")
	if err := os.MkdirAll(framesDir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrTransient, "ffmpeg", "sample", "create frames dir", err)
	}
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", source,
		"-vf", "fps=" + strconv.FormatFloat(fps, 'f', -1, 64),
		"-q:v", "3",
	}
	if opts.MaxFrames > 0 {
		args = append(args, "-frames:v", strconv.Itoa(opts.MaxFrames))
	}
	args = append(args, filepath.Join(framesDir, "frame-%04d.jpg"))
	if output, err := a.runner.Run(ctx, a.ffmpeg, args...); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "ffmpeg", "sample", strings.TrimSpace(string(output)), err)
	}

	entries, err := os.ReadDir(framesDir)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "ffmpeg", "sample", "read frames", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".jpg") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	if opts.MaxFrames > 0 && len(names) > opts.MaxFrames {
		names = names[:opts.MaxFrames]
	}
	frames := make([]services.SampledFrame, 0, len(names))
	for i, name := range names {
		data, err := os.ReadFile(filepath.Join(framesDir, name))
		if err != nil {
			return nil, services.Wrap(services.ErrExternalTool, "ffmpeg", "sample", "read frame", err)
		}
		frames = append(frames, services.SampledFrame{
			Index:       i,
			Timestamp:   float64(i) / fps,
			ContentType: "image/jpeg",
			Data:        data,
		})
	}
	if len(frames) == 0 {
		return nil, services.Wrap(services.ErrValidation, "ffmpeg", "sample", "no frames decoded", nil)
	}
	return frames, nil
}

// Extract decodes the first audio stream to mono, resampling down to
// SampleRate when the source is higher.
func (a *Adapter) Extract(ctx context.Context, media services.Media, opts services.ExtractOptions) (services.ExtractedAudio, error) {
	work, source, err := a.stage(media)
	if err != nil {
		return services.ExtractedAudio{}, err
	}
	defer os.RemoveAll(work)

	probe, err := a.Probe(ctx, source)
	if err != nil {
		return services.ExtractedAudio{}, services.Wrap(services.ErrExternalTool, "ffprobe", "extract", "", err)
	}
	stream, ok := probe.AudioStream()
	if !ok {
		return services.ExtractedAudio{}, services.ErrNoAudio
	}
	sourceRate := stream.SampleRateHz()
	rate := TargetRate(sourceRate, opts.SampleRate)

	encoding := strings.ToLower(strings.TrimSpace(opts.Encoding))
	if encoding == "" {
		encoding = "wav"
	}
	codec, ext := codecFor(encoding)
	dest := filepath.Join(work, "audio."+ext)
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", source,
		"-map", fmt.Sprintf("0:%d", stream.Index),
		"-vn",
		"-sn",
		"-dn",
		"-ac", "1",
	}
	if rate > 0 {
		args = append(args, "-ar", strconv.Itoa(rate))
	}
	args = append(args, codec...)
	args = append(args, dest)
	if output, err := a.runner.Run(ctx, a.ffmpeg, args...); err != nil {
		return services.ExtractedAudio{}, services.Wrap(services.ErrExternalTool, "ffmpeg", "extract", strings.TrimSpace(string(output)), err)
	}
	data, err := os.ReadFile(dest)
	if err != nil {
		return services.ExtractedAudio{}, services.Wrap(services.ErrExternalTool, "ffmpeg", "extract", "read output", err)
	}
	if len(data) == 0 {
		return services.ExtractedAudio{}, services.ErrNoAudio
	}
	return services.ExtractedAudio{
		Data:             data,
		ContentType:      audioextract.ContentTypeFor(encoding),
		Encoding:         encoding,
		SampleRate:       rate,
		SourceSampleRate: sourceRate,
	}, nil
}

// Health checks that both binaries run.
func (a *Adapter) Health(ctx context.Context) error {
	for _, binary := range []string{a.ffmpeg, a.ffprobe} {
		if output, err := a.runner.Run(ctx, binary, "-version"); err != nil {
			return services.Wrap(services.ErrConfiguration, "ffmpeg", "health", strings.TrimSpace(string(output)), err)
		}
	}
	return nil
}

// TargetRate picks the output rate: the target when the source is higher,
// otherwise the source rate. Unknown source rates use the target.
func TargetRate(sourceRate, target int) int {
	if target <= 0 {
		return sourceRate
	}
	if sourceRate > 0 && sourceRate <= target {
		return sourceRate
	}
	return target
}

func codecFor(encoding string) ([]string, string) {
	switch encoding {
	case "mp3":
		return []string{"-c:a", "libmp3lame", "-b:a", "64k"}, "mp3"
	case "flac":
		return []string{"-c:a", "flac"}, "flac"
	case "ogg", "opus":
		return []string{"-c:a", "libopus", "-b:a", "32k"}, "ogg"
	default:
		return []string{"-c:a", "pcm_s16le"}, "wav"
	}
}

// stage writes media into a fresh scratch directory.
func (a *Adapter) stage(media services.Media) (string, string, error) {
	work, err := staging.NewWorkDir(a.stagingDir, "ffmpeg")
	if err != nil {
		return "", "", services.Wrap(services.ErrTransient, "ffmpeg", "stage", "create scratch dir", err)
	}
	ext := filepath.Ext(media.Name)
	if ext == "" {
		ext = ".bin"
	}
	source := filepath.Join(work, "source"+ext)
	if err := os.WriteFile(source, media.Data, 0o644); err != nil {
		_ = os.RemoveAll(work)
		return "", "", services.Wrap(services.ErrTransient, "ffmpeg", "stage", "write source", err)
	}
	return work, source, nil
}
