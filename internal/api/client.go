package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"syscall"
	"time"

	"mediarepo/internal/repo"
	"mediarepo/internal/workflow"
)

// ErrDaemonUnavailable is returned when nothing listens on the API address.
var ErrDaemonUnavailable = errors.New("daemon unavailable")

// StatusError is a non-2xx API reply.
type StatusError struct {
	Status  int
	Message string
	Kind    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api returned %d", e.Status)
	}
	return fmt.Sprintf("api returned %d: %s", e.Status, e.Message)
}

// IsNotFound reports whether err is a 404 reply.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Status == http.StatusNotFound
}

// Client calls the daemon HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// NewClient returns a client for baseURL (for example http://127.0.0.1:7488).
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURLForBind derives a loopback URL from a listen address. Wildcard hosts
// are dialed on 127.0.0.1.
func BaseURLForBind(bind string) string {
	host, port, err := net.SplitHostPort(strings.TrimSpace(bind))
	if err != nil {
		return "http://" + strings.TrimSpace(bind)
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

// Status returns daemon status.
func (c *Client) Status(ctx context.Context) (*DaemonStatus, error) {
	var resp DaemonStatus
	if err := c.do(ctx, http.MethodGet, "/api/status", nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RefreshStatus reruns the daemon's dependency checks and returns status.
func (c *Client) RefreshStatus(ctx context.Context) (*DaemonStatus, error) {
	var resp DaemonStatus
	query := url.Values{"checks": []string{"1"}}
	if err := c.do(ctx, http.MethodGet, "/api/status", query, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Submit creates a job and returns its id.
func (c *Client) Submit(ctx context.Context, req workflow.SubmitRequest) (string, error) {
	var resp SubmitResponse
	if err := c.do(ctx, http.MethodPost, "/api/jobs", nil, req, &resp); err != nil {
		return "", err
	}
	return resp.JobID, nil
}

// ListJobs lists pending jobs, optionally filtered by status.
func (c *Client) ListJobs(ctx context.Context, statuses ...string) ([]Job, error) {
	query := url.Values{}
	for _, s := range statuses {
		if s = strings.TrimSpace(s); s != "" {
			query.Add("status", s)
		}
	}
	var resp JobListResponse
	if err := c.do(ctx, http.MethodGet, "/api/jobs", query, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Jobs, nil
}

// GetJob returns one pending job.
func (c *Client) GetJob(ctx context.Context, id string) (*Job, error) {
	var resp JobResponse
	if err := c.do(ctx, http.MethodGet, "/api/jobs/"+url.PathEscape(id), nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Job, nil
}

// Process triggers background processing of a job.
func (c *Client) Process(ctx context.Context, id string) (*ProcessResponse, error) {
	var resp ProcessResponse
	if err := c.do(ctx, http.MethodPost, "/api/jobs/"+url.PathEscape(id)+"/process", nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RetryAsset moves an errored asset back to pending.
func (c *Client) RetryAsset(ctx context.Context, jobID, assetID string) (*Asset, error) {
	var resp AssetResponse
	path := "/api/jobs/" + url.PathEscape(jobID) + "/assets/" + url.PathEscape(assetID) + "/retry"
	if err := c.do(ctx, http.MethodPost, path, nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Asset, nil
}

// ListRepos lists repository summaries.
func (c *Client) ListRepos(ctx context.Context) ([]repo.Summary, error) {
	var resp RepoListResponse
	if err := c.do(ctx, http.MethodGet, "/api/repos", nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Repositories, nil
}

// GetRepo returns a full repository document.
func (c *Client) GetRepo(ctx context.Context, id string) (*repo.Repository, error) {
	var resp RepoResponse
	if err := c.do(ctx, http.MethodGet, "/api/repos/"+url.PathEscape(id), nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Repository, nil
}

// ExportRepo returns the repository rendered as YAML.
func (c *Client) ExportRepo(ctx context.Context, id string) ([]byte, error) {
	var buf bytes.Buffer
	if err := c.do(ctx, http.MethodGet, "/api/repos/"+url.PathEscape(id)+"/export", nil, nil, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// AddNode adds a user file to a repository.
func (c *Client) AddNode(ctx context.Context, repoID string, req NodeRequest) (repo.Commit, error) {
	var resp CommitResponse
	err := c.do(ctx, http.MethodPost, "/api/repos/"+url.PathEscape(repoID)+"/nodes", nil, req, &resp)
	return resp.Commit, err
}

// EditNode renames a node or replaces a file's content.
func (c *Client) EditNode(ctx context.Context, repoID, nodeID string, req NodeRequest) (repo.Commit, error) {
	var resp CommitResponse
	err := c.do(ctx, http.MethodPatch, nodePath(repoID, nodeID), nil, req, &resp)
	return resp.Commit, err
}

// DeleteNode removes a node and its descendants.
func (c *Client) DeleteNode(ctx context.Context, repoID, nodeID, message string) (repo.Commit, error) {
	query := url.Values{}
	if message != "" {
		query.Set("message", message)
	}
	var resp CommitResponse
	err := c.do(ctx, http.MethodDelete, nodePath(repoID, nodeID), query, nil, &resp)
	return resp.Commit, err
}

// TestNotification asks the daemon to send a test push.
func (c *Client) TestNotification(ctx context.Context) (bool, error) {
	var resp NotifyResponse
	if err := c.do(ctx, http.MethodPost, "/api/notifications/test", nil, nil, &resp); err != nil {
		return false, err
	}
	return resp.Sent, nil
}

// LogQuery filters a log fetch.
type LogQuery struct {
	Since  uint64
	Limit  int
	Follow bool
	Tail   bool
	JobID  string
}

// Logs fetches one page of daemon log events.
func (c *Client) Logs(ctx context.Context, q LogQuery) (*LogStreamResponse, error) {
	query := url.Values{}
	if q.Since > 0 {
		query.Set("since", strconv.FormatUint(q.Since, 10))
	}
	if q.Limit > 0 {
		query.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Follow {
		query.Set("follow", "1")
	}
	if q.Tail {
		query.Set("tail", "1")
	}
	if q.JobID != "" {
		query.Set("job", q.JobID)
	}
	var resp LogStreamResponse
	if err := c.do(ctx, http.MethodGet, "/api/logs", query, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func nodePath(repoID, nodeID string) string {
	return "/api/repos/" + url.PathEscape(repoID) + "/nodes/" + url.PathEscape(nodeID)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, syscall.ECONNREFUSED) {
			return fmt.Errorf("%s: %w", c.baseURL, ErrDaemonUnavailable)
		}
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var payload ErrorResponse
		if json.Unmarshal(raw, &payload) != nil || payload.Error == "" {
			payload.Error = strings.TrimSpace(string(raw))
		}
		return &StatusError{Status: resp.StatusCode, Message: payload.Error, Kind: payload.Kind}
	}
	switch dst := out.(type) {
	case nil:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	case *bytes.Buffer:
		_, err := dst.ReadFrom(resp.Body)
		return err
	default:
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s response: %w", path, err)
		}
		return nil
	}
}
