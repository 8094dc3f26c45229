package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"mediarepo/internal/config"
	"mediarepo/internal/services"
	"mediarepo/internal/services/llm"
	"mediarepo/internal/stage"
	"mediarepo/internal/store"
)

const serviceCheckTimeout = 5 * time.Second

// CheckLLM verifies that the tagging API is reachable and the key is valid.
// It uses a 30-second timeout and a single attempt (no retries).
func CheckLLM(ctx context.Context, cfg config.LLM) Result {
	const name = "Semantic tagger (LLM)"
	if strings.TrimSpace(cfg.APIKey) == "" {
		return Result{Name: name, Detail: "API key missing"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	client := llm.NewClient(llm.Config{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		Referer: cfg.Referer,
		Title:   cfg.Title,
	}, llm.WithRetryMaxAttempts(1))

	if err := client.HealthCheck(checkCtx); err != nil {
		return Result{Name: name, Detail: summarizeError(err)}
	}
	return Result{Name: name, Passed: true, Detail: "API reachable"}
}

// CheckService probes one analysis service through its health endpoint.
func CheckService(ctx context.Context, name string, checker stage.Checker) Result {
	checkCtx, cancel := context.WithTimeout(ctx, serviceCheckTimeout)
	defer cancel()

	health := stage.Check(checkCtx, name, checker)
	if !health.Ready {
		detail := health.Detail
		if checker != nil {
			detail = summarizeDetail(checkCtx, detail)
		}
		return Result{Name: displayName(name), Detail: detail}
	}
	return Result{Name: displayName(name), Passed: true, Detail: "Reachable"}
}

// CheckStore verifies the store database is readable and intact.
func CheckStore(ctx context.Context, st *store.Store) Result {
	const name = "Store"
	health, err := st.CheckHealth(ctx)
	switch {
	case err != nil:
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", health.DBPath, err)}
	case !health.DatabaseExists:
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", health.DBPath)}
	case len(health.MissingTables) > 0:
		return Result{Name: name, Detail: fmt.Sprintf("missing tables: %s", strings.Join(health.MissingTables, ", "))}
	case !health.IntegrityCheck:
		return Result{Name: name, Detail: "integrity check failed"}
	}
	return Result{
		Name:   name,
		Passed: true,
		Detail: fmt.Sprintf("%d pending jobs, %d repositories, %d blobs", health.PendingJobs, health.Repositories, health.Blobs),
	}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

func displayName(service string) string {
	switch service {
	case "frame_sampler":
		return "Frame sampler"
	case "audio_extractor":
		return "Audio extractor"
	case "transcription":
		return "Transcription"
	}
	return service
}

func summarizeDetail(ctx context.Context, detail string) string {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "health check timed out"
	}
	return detail
}

// summarizeError produces a human-readable summary for health check failures.
func summarizeError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "health check timed out (API unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "health check timed out (API unreachable)"
	}
	if errors.Is(err, services.ErrConfiguration) {
		return "rejected: " + services.Details(err).Message
	}
	return err.Error()
}
