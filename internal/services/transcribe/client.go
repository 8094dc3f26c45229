// Package transcribe talks to the remote transcription service.
//
// Contract: POST {base}/transcribe?language= with audio bytes, answered by
// JSON carrying any of text, segments, srt. POST {base}/align with a JSON
// document (base64 audio plus segments) answers {"words":[...]}.
package transcribe

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/url"
	"strings"

	"mediarepo/internal/services"
	"mediarepo/internal/services/httpservice"
	"mediarepo/internal/transcript"
)

const stageName = "transcription"

// Client transcribes audio over HTTP.
type Client struct {
	http *httpservice.Client
}

// New wraps a transport client.
func New(transport *httpservice.Client) *Client {
	return &Client{http: transport}
}

// Transcribe submits audio and returns the raw service payload.
func (c *Client) Transcribe(ctx context.Context, audio services.Media, language string) (transcript.Raw, error) {
	query := url.Values{}
	if language = strings.TrimSpace(language); language != "" {
		query.Set("language", language)
	}
	resp, err := c.http.Post(ctx, "transcribe", query, audio.ContentType, audio.Data)
	if err != nil {
		return transcript.Raw{}, err
	}
	var raw transcript.Raw
	if err := json.Unmarshal(resp.Body, &raw); err != nil {
		// Some servers answer with a bare SRT or text body.
		body := strings.TrimSpace(string(resp.Body))
		if body == "" {
			return transcript.Raw{}, services.Wrap(services.ErrExternalTool, stageName, "decode", "empty transcription response", nil)
		}
		if strings.Contains(body, "-->") {
			return transcript.Raw{SRT: body, Language: language}, nil
		}
		return transcript.Raw{Text: body, Language: language}, nil
	}
	if raw.Language == "" {
		raw.Language = language
	}
	return raw, nil
}

type alignRequest struct {
	Audio       string               `json:"audio"`
	ContentType string               `json:"contentType,omitempty"`
	Language    string               `json:"language,omitempty"`
	Segments    []transcript.Segment `json:"segments"`
}

type alignResponse struct {
	Words []transcript.Word `json:"words"`
}

// Align requests word-level timings for an existing transcript.
func (c *Client) Align(ctx context.Context, audio services.Media, tr transcript.Transcript) ([]transcript.Word, error) {
	body, err := json.Marshal(alignRequest{
		Audio:       base64.StdEncoding.EncodeToString(audio.Data),
		ContentType: audio.ContentType,
		Language:    tr.Language,
		Segments:    tr.Segments,
	})
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, stageName, "align", "encode request", err)
	}
	resp, err := c.http.PostJSON(ctx, "align", body)
	if err != nil {
		return nil, err
	}
	var decoded alignResponse
	if err := json.Unmarshal(resp.Body, &decoded); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, stageName, "align", "invalid alignment response", err)
	}
	return decoded.Words, nil
}

// Health checks the service.
func (c *Client) Health(ctx context.Context) error {
	return c.http.Health(ctx)
}
