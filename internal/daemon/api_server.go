package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"mediarepo/internal/api"
	"mediarepo/internal/ingest"
	"mediarepo/internal/logging"
	"mediarepo/internal/repo"
	"mediarepo/internal/services"
	"mediarepo/internal/store"
	"mediarepo/internal/workflow"
)

const maxRequestBody = 1 << 20

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
	done     <-chan struct{}
	// repoMu serializes read-modify-write edits of repository documents.
	repoMu sync.Mutex
}

func newAPIServer(bind string, d *Daemon, logger *slog.Logger) *apiServer {
	s := &apiServer{
		bind:   strings.TrimSpace(bind),
		logger: logging.NewComponentLogger(logger, "api-server"),
		daemon: d,
	}
	s.server = &http.Server{
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *apiServer) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("POST /api/jobs", s.handleSubmit)
	mux.HandleFunc("GET /api/jobs", s.handleListJobs)
	mux.HandleFunc("GET /api/jobs/{id}", s.handleGetJob)
	mux.HandleFunc("POST /api/jobs/{id}/process", s.handleProcess)
	mux.HandleFunc("POST /api/jobs/{id}/assets/{assetId}/retry", s.handleRetryAsset)
	mux.HandleFunc("GET /api/events", s.handleEvents)
	mux.HandleFunc("GET /api/logs", s.handleLogs)
	mux.HandleFunc("GET /api/repos", s.handleListRepos)
	mux.HandleFunc("GET /api/repos/{id}", s.handleGetRepo)
	mux.HandleFunc("GET /api/repos/{id}/export", s.handleExportRepo)
	mux.HandleFunc("POST /api/repos/{id}/nodes", s.handleAddNode)
	mux.HandleFunc("PATCH /api/repos/{id}/nodes/{nodeId}", s.handleEditNode)
	mux.HandleFunc("DELETE /api/repos/{id}/nodes/{nodeId}", s.handleDeleteNode)
	mux.HandleFunc("POST /api/notifications/test", s.handleTestNotification)
	return mux
}

func (s *apiServer) start(ctx context.Context) error {
	if s.bind == "" {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.mu.Lock()
	s.listener = listener
	s.done = ctx.Done()
	s.mu.Unlock()
	s.server.BaseContext = func(net.Listener) context.Context { return ctx }

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		s.stop()
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
}

func (s *apiServer) address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return s.bind
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("checks") == "1" {
		s.daemon.RefreshChecks(r.Context())
	}
	status := s.daemon.Status(r.Context())
	s.writeJSON(w, http.StatusOK, api.DaemonStatus{
		Running:      status.Running,
		PID:          status.PID,
		StorePath:    status.StorePath,
		LockFilePath: status.LockFilePath,
		Workflow:     api.FromStatusSummary(status.Workflow),
		Checks:       status.Checks,
		EventsDrops:  status.EventsDropped,
	})
}

func (s *apiServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req workflow.SubmitRequest
	if !s.decode(w, r, &req) {
		return
	}
	id, err := s.daemon.deps.Workflow.Submit(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, api.SubmitResponse{JobID: id})
}

func (s *apiServer) handleListJobs(w http.ResponseWriter, r *http.Request) {
	var statuses []ingest.JobStatus
	for _, value := range r.URL.Query()["status"] {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			statuses = append(statuses, ingest.JobStatus(trimmed))
		}
	}
	jobs, err := s.daemon.deps.Store.ListJobs(r.Context(), statuses...)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.JobListResponse{Jobs: api.FromJobs(jobs)})
}

func (s *apiServer) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.daemon.deps.Store.GetJob(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.JobResponse{Job: api.FromJob(job)})
}

func (s *apiServer) handleProcess(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.daemon.deps.Store.GetJob(r.Context(), id); err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.daemon.deps.Workflow.Trigger(id)
	s.writeJSON(w, http.StatusAccepted, api.ProcessResponse{JobID: id, Triggered: true})
}

func (s *apiServer) handleRetryAsset(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	asset, err := s.daemon.deps.Workflow.RetryAsset(r.Context(), jobID, r.PathValue("assetId"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.AssetResponse{JobID: jobID, Asset: api.FromAsset(*asset)})
}

func (s *apiServer) handleLogs(w http.ResponseWriter, r *http.Request) {
	hub := s.daemon.deps.Hub
	if hub == nil {
		s.writeJSON(w, http.StatusOK, api.LogStreamResponse{})
		return
	}

	query := r.URL.Query()
	since, _ := strconv.ParseUint(query.Get("since"), 10, 64)
	limit, _ := strconv.Atoi(query.Get("limit"))
	if limit <= 0 {
		limit = 200
	}
	follow := flagValue(query.Get("follow"))
	tail := flagValue(query.Get("tail"))
	jobID := strings.TrimSpace(query.Get("job"))
	component := strings.TrimSpace(query.Get("component"))

	var (
		raw  []logging.LogEvent
		next uint64
	)
	if tail && since == 0 && !follow {
		raw, next = hub.Tail(limit)
	} else {
		var err error
		raw, next, err = hub.Fetch(r.Context(), since, limit, follow)
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			s.writeError(w, http.StatusInternalServerError, err.Error(), "")
			return
		}
	}

	filtered := make([]logging.LogEvent, 0, len(raw))
	for _, evt := range raw {
		if jobID != "" && evt.JobID != jobID {
			continue
		}
		if component != "" && !strings.EqualFold(component, evt.Component) {
			continue
		}
		filtered = append(filtered, evt)
	}
	s.writeJSON(w, http.StatusOK, api.LogStreamResponse{Events: filtered, Next: next})
}

func (s *apiServer) handleListRepos(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.daemon.deps.Store.ListRepos(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if summaries == nil {
		summaries = []repo.Summary{}
	}
	s.writeJSON(w, http.StatusOK, api.RepoListResponse{Repositories: summaries})
}

func (s *apiServer) handleGetRepo(w http.ResponseWriter, r *http.Request) {
	repository, err := s.daemon.deps.Store.GetRepo(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.RepoResponse{Repository: repository})
}

func (s *apiServer) handleExportRepo(w http.ResponseWriter, r *http.Request) {
	repository, err := s.daemon.deps.Store.GetRepo(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	encoded, err := yaml.Marshal(repository)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("encode repository: %v", err), "")
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", ingest.Slug(repository.Name)+".yaml"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(encoded)
}

func (s *apiServer) handleAddNode(w http.ResponseWriter, r *http.Request) {
	var req api.NodeRequest
	if !s.decode(w, r, &req) {
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" || strings.Contains(name, "/") || strings.TrimSpace(req.ParentID) == "" {
		s.writeError(w, http.StatusBadRequest, "parentId and a plain file name are required", "validation")
		return
	}
	s.editRepo(w, r, func(repository *repo.Repository, writer *repo.Writer) (repo.Commit, error) {
		if err := repo.GuardUserEdit(repository.FileTree, req.ParentID); err != nil {
			return repo.Commit{}, err
		}
		content := ""
		if req.Content != nil {
			content = *req.Content
		}
		node := &repo.Node{Name: name, Kind: repo.NodeFile, Content: content, ContentType: "text/plain"}
		return writer.AddFile(repository, req.ParentID, node, repo.CategoryUser, req.Message)
	})
}

func (s *apiServer) handleEditNode(w http.ResponseWriter, r *http.Request) {
	var req api.NodeRequest
	if !s.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Name) == "" && req.Content == nil {
		s.writeError(w, http.StatusBadRequest, "name or content is required", "validation")
		return
	}
	if strings.TrimSpace(req.Name) != "" && req.Content != nil {
		s.writeError(w, http.StatusBadRequest, "rename and content edits are separate commits", "validation")
		return
	}
	nodeID := r.PathValue("nodeId")
	s.editRepo(w, r, func(repository *repo.Repository, writer *repo.Writer) (repo.Commit, error) {
		if err := repo.GuardUserEdit(repository.FileTree, nodeID); err != nil {
			return repo.Commit{}, err
		}
		if req.Content != nil {
			return writer.WriteContent(repository, nodeID, *req.Content, req.Message)
		}
		return writer.Rename(repository, nodeID, req.Name, req.Message)
	})
}

func (s *apiServer) handleTestNotification(w http.ResponseWriter, r *http.Request) {
	if err := s.daemon.TestNotification(r.Context()); err != nil {
		s.writeError(w, http.StatusBadGateway, err.Error(), "notification")
		return
	}
	s.writeJSON(w, http.StatusOK, api.NotifyResponse{Sent: s.daemon.cfg.Notifications.NtfyTopic != ""})
}

func (s *apiServer) handleDeleteNode(w http.ResponseWriter, r *http.Request) {
	nodeID := r.PathValue("nodeId")
	message := strings.TrimSpace(r.URL.Query().Get("message"))
	s.editRepo(w, r, func(repository *repo.Repository, writer *repo.Writer) (repo.Commit, error) {
		if err := repo.GuardUserEdit(repository.FileTree, nodeID); err != nil {
			return repo.Commit{}, err
		}
		return writer.Delete(repository, nodeID, message)
	})
}

// editRepo loads a repository, applies one writer mutation, and persists the
// result. Edits to the same daemon are serialized.
func (s *apiServer) editRepo(w http.ResponseWriter, r *http.Request, edit func(*repo.Repository, *repo.Writer) (repo.Commit, error)) {
	s.repoMu.Lock()
	defer s.repoMu.Unlock()

	repository, err := s.daemon.deps.Store.GetRepo(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	commit, err := edit(repository, s.daemon.deps.Writer)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if err := s.daemon.deps.Store.PutRepo(r.Context(), repository); err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.logger.Info("repository edited",
		logging.String(logging.FieldEventType, "repo_edit"),
		logging.String(logging.FieldRepoID, repository.ID),
		logging.String("commit", commit.ID),
		logging.String("message", commit.Message),
	)
	s.writeJSON(w, http.StatusOK, api.CommitResponse{Commit: commit})
}

func (s *apiServer) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err), "validation")
		return false
	}
	return true
}

func (s *apiServer) writeServiceError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	kind := services.Details(err).Kind
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, services.ErrNotFound), errors.Is(err, repo.ErrNodeNotFound):
		status = http.StatusNotFound
		kind = "not_found"
	case errors.Is(err, repo.ErrLocked), errors.Is(err, ingest.ErrNotRetryable):
		status = http.StatusConflict
		kind = "conflict"
	case errors.Is(err, services.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, repo.ErrInvalidEdit):
		status = http.StatusBadRequest
		kind = "validation"
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("api request failed", logging.Error(err))
	}
	s.writeError(w, status, err.Error(), kind)
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message, kind string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message, Kind: kind})
}

func flagValue(v string) bool {
	return v == "1" || strings.EqualFold(v, "true")
}
