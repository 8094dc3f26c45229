// Package httpservice is the shared transport for the opaque HTTP analysis
// services (frame sampler, audio extractor, transcription). It classifies
// failures with the services error markers so the pipeline knows whether to
// back off, degrade, or give up.
package httpservice

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"mediarepo/internal/services"
)

const maxErrorBody = 512

// Client posts payloads to one service base URL.
type Client struct {
	name       string
	baseURL    string
	httpClient *http.Client
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// New validates baseURL and builds a client. name labels errors.
func New(name, baseURL string, timeout time.Duration, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, services.Wrap(services.ErrConfiguration, name, "configure", "base_url is required", nil)
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, name, "configure", "invalid base_url", err)
	}
	c := &Client{name: name, baseURL: baseURL, httpClient: &http.Client{Timeout: timeout}}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Name returns the service label.
func (c *Client) Name() string {
	return c.name
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Response is a completed HTTP exchange with a 2xx status.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// StatusError is a non-2xx reply.
type StatusError struct {
	Service string
	Status  int
	Body    string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: http %d", e.Service, e.Status)
	}
	return fmt.Sprintf("%s: http %d: %s", e.Service, e.Status, e.Body)
}

// Post sends body to {base}/{path}?query. Statuses listed in accept are
// returned as responses instead of errors.
func (c *Client) Post(ctx context.Context, path string, query url.Values, contentType string, body []byte, accept ...int) (Response, error) {
	endpoint := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Response{}, services.Wrap(services.ErrConfiguration, c.name, path, "build request", err)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Request-ID", requestID(ctx))
	return c.do(req, path, accept)
}

// PostJSON sends an encoded JSON document.
func (c *Client) PostJSON(ctx context.Context, path string, body []byte) (Response, error) {
	return c.Post(ctx, path, nil, "application/json", body)
}

// Health issues GET {base}/health.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, c.name, "health", "build request", err)
	}
	_, err = c.do(req, "health", nil)
	return err
}

func (c *Client) do(req *http.Request, op string, accept []int) (Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Response{}, classifyTransportError(c.name, op, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, services.Wrap(services.ErrTransient, c.name, op, "read response", err)
	}
	out := Response{Status: resp.StatusCode, Header: resp.Header, Body: body}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return out, nil
	}
	for _, code := range accept {
		if resp.StatusCode == code {
			return out, nil
		}
	}
	snippet := strings.TrimSpace(string(body))
	if len(snippet) > maxErrorBody {
		snippet = snippet[:maxErrorBody] + "..."
	}
	statusErr := &StatusError{Service: c.name, Status: resp.StatusCode, Body: snippet}
	return out, services.Wrap(StatusMarker(resp.StatusCode), c.name, op, "", statusErr)
}

// StatusMarker maps an HTTP status to a services error marker.
func StatusMarker(status int) error {
	switch {
	case status == http.StatusRequestTimeout, status == http.StatusGatewayTimeout:
		return services.ErrTimeout
	case status == http.StatusTooManyRequests, status >= 500:
		return services.ErrTransient
	case status == http.StatusRequestEntityTooLarge:
		return services.ErrSizeLimit
	case status == http.StatusNotFound:
		return services.ErrNotFound
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return services.ErrConfiguration
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity, status == http.StatusUnsupportedMediaType:
		return services.ErrValidation
	default:
		return services.ErrExternalTool
	}
}

func classifyTransportError(name, op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return services.Wrap(services.ErrTimeout, name, op, "request timed out", err)
	}
	return services.Wrap(services.ErrTransient, name, op, "request failed", err)
}

func requestID(ctx context.Context) string {
	if id, ok := services.RequestIDFromContext(ctx); ok {
		return id
	}
	return uuid.NewString()
}
