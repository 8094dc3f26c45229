// Package audioextract talks to the remote audio extraction service.
//
// Contract: POST {base}/extract?sample_rate=&channels=1&encoding= with the raw
// media as the body. The reply body is the encoded audio; X-Sample-Rate and
// X-Source-Sample-Rate describe it. 204 or 422 means the source has no
// decodable audio.
package audioextract

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"mediarepo/internal/services"
	"mediarepo/internal/services/httpservice"
)

// Client extracts audio over HTTP.
type Client struct {
	http *httpservice.Client
}

// New wraps a transport client.
func New(transport *httpservice.Client) *Client {
	return &Client{http: transport}
}

// Extract requests mono audio. It returns services.ErrNoAudio when the source
// has none.
func (c *Client) Extract(ctx context.Context, media services.Media, opts services.ExtractOptions) (services.ExtractedAudio, error) {
	encoding := strings.ToLower(strings.TrimSpace(opts.Encoding))
	if encoding == "" {
		encoding = "wav"
	}
	query := url.Values{}
	query.Set("channels", "1")
	query.Set("encoding", encoding)
	if opts.SampleRate > 0 {
		query.Set("sample_rate", strconv.Itoa(opts.SampleRate))
	}
	resp, err := c.http.Post(ctx, "extract", query, media.ContentType, media.Data,
		http.StatusNoContent, http.StatusUnprocessableEntity)
	if err != nil {
		return services.ExtractedAudio{}, err
	}
	if resp.Status == http.StatusNoContent || resp.Status == http.StatusUnprocessableEntity || len(resp.Body) == 0 {
		return services.ExtractedAudio{}, services.ErrNoAudio
	}

	out := services.ExtractedAudio{
		Data:             resp.Body,
		ContentType:      resp.Header.Get("Content-Type"),
		Encoding:         encoding,
		SampleRate:       headerInt(resp.Header, "X-Sample-Rate"),
		SourceSampleRate: headerInt(resp.Header, "X-Source-Sample-Rate"),
	}
	if out.ContentType == "" {
		out.ContentType = ContentTypeFor(encoding)
	}
	if out.SampleRate == 0 {
		out.SampleRate = opts.SampleRate
	}
	return out, nil
}

// Health checks the service.
func (c *Client) Health(ctx context.Context) error {
	return c.http.Health(ctx)
}

// ContentTypeFor maps an encoding name to a MIME type.
func ContentTypeFor(encoding string) string {
	switch strings.ToLower(encoding) {
	case "mp3":
		return "audio/mpeg"
	case "flac":
		return "audio/flac"
	case "ogg", "opus":
		return "audio/ogg"
	case "m4a", "aac":
		return "audio/mp4"
	default:
		return "audio/wav"
	}
}

func headerInt(h http.Header, key string) int {
	value, err := strconv.Atoi(strings.TrimSpace(h.Get(key)))
	if err != nil {
		return 0
	}
	return value
}
