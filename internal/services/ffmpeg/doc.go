// Package ffmpeg is the local adapter for the frame sampler and audio
// extractor contracts. It writes the asset to a scratch directory under the
// staging path, runs ffmpeg/ffprobe through an injectable Runner, and reads
// the results back.
package ffmpeg
