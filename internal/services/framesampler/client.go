// Package framesampler talks to the remote frame sampling service.
//
// Contract: POST {base}/sample?fps=&max= with the raw video as the body,
// answered by {"frames":[{index, timestamp, contentType, data}]} where data is
// base64. Sampling always restarts from t=0.
package framesampler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/url"
	"sort"
	"strconv"

	"mediarepo/internal/services"
	"mediarepo/internal/services/httpservice"
)

const stageName = "frames"

// Client samples frames over HTTP.
type Client struct {
	http *httpservice.Client
}

// New wraps a transport client.
func New(transport *httpservice.Client) *Client {
	return &Client{http: transport}
}

type sampleResponse struct {
	Frames []struct {
		Index       int     `json:"index"`
		Timestamp   float64 `json:"timestamp"`
		ContentType string  `json:"contentType"`
		Data        string  `json:"data"`
	} `json:"frames"`
}

// Sample returns at most opts.MaxFrames frames ordered by timestamp.
func (c *Client) Sample(ctx context.Context, media services.Media, opts services.SampleOptions) ([]services.SampledFrame, error) {
	query := url.Values{}
	if opts.FPS > 0 {
		query.Set("fps", strconv.FormatFloat(opts.FPS, 'f', -1, 64))
	}
	if opts.MaxFrames > 0 {
		query.Set("max", strconv.Itoa(opts.MaxFrames))
	}
	resp, err := c.http.Post(ctx, "sample", query, media.ContentType, media.Data)
	if err != nil {
		return nil, err
	}

	var decoded sampleResponse
	if err := json.Unmarshal(resp.Body, &decoded); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, stageName, "decode", "invalid sampler response", err)
	}
	frames := make([]services.SampledFrame, 0, len(decoded.Frames))
	for _, f := range decoded.Frames {
		data, err := base64.StdEncoding.DecodeString(f.Data)
		if err != nil {
			return nil, services.Wrap(services.ErrExternalTool, stageName, "decode", "invalid frame payload", err)
		}
		contentType := f.ContentType
		if contentType == "" {
			contentType = "image/jpeg"
		}
		frames = append(frames, services.SampledFrame{
			Index:       f.Index,
			Timestamp:   f.Timestamp,
			ContentType: contentType,
			Data:        data,
		})
	}
	sort.SliceStable(frames, func(i, j int) bool { return frames[i].Timestamp < frames[j].Timestamp })
	if opts.MaxFrames > 0 && len(frames) > opts.MaxFrames {
		frames = frames[:opts.MaxFrames]
	}
	return frames, nil
}

// Health checks the service.
func (c *Client) Health(ctx context.Context) error {
	return c.http.Health(ctx)
}
