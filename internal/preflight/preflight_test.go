package preflight

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"mediarepo/internal/config"
	"mediarepo/internal/ingest"
	"mediarepo/internal/pipeline"
	"mediarepo/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if !strings.Contains(result.Detail, "does not exist") {
		t.Fatalf("unexpected detail %q", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckLLM_MissingKey(t *testing.T) {
	result := CheckLLM(context.Background(), config.LLM{})
	if result.Passed || result.Detail != "API key missing" {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestCheckLLM_RejectedKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	result := CheckLLM(context.Background(), config.LLM{APIKey: "nope", BaseURL: srv.URL, Model: "demo"})
	if result.Passed {
		t.Fatal("expected failure for rejected key")
	}
	if !strings.HasPrefix(result.Detail, "rejected: ") {
		t.Fatalf("unexpected detail %q", result.Detail)
	}
}

func TestCheckServiceNotConfigured(t *testing.T) {
	result := CheckService(context.Background(), pipeline.ServiceTranscription, nil)
	if result.Passed || result.Detail != "not configured" || result.Name != "Transcription" {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestCheckStoreHealthy(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	testsupport.MustPutJob(t, st, testsupport.NewJob("holiday", ingest.KindImage))

	result := CheckStore(context.Background(), st)
	if !result.Passed {
		t.Fatalf("expected healthy store, got %s", result.Detail)
	}
	if !strings.HasPrefix(result.Detail, "1 pending jobs") {
		t.Fatalf("unexpected detail %q", result.Detail)
	}
}

func TestRunAllReportsEveryDependency(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/chat", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"choices":[{"message":{"content":"{\"ok\":true}"}}]}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := testsupport.NewConfig(t, testsupport.WithServiceURL(srv.URL))
	cfg.LLM.BaseURL = srv.URL + "/chat"
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	st := testsupport.MustOpenStore(t, cfg)
	clients, err := pipeline.ClientsFromConfig(cfg)
	if err != nil {
		t.Fatalf("ClientsFromConfig: %v", err)
	}

	results := RunAll(context.Background(), cfg, st, clients)
	if len(results) != 8 {
		t.Fatalf("expected 8 results, got %d: %+v", len(results), results)
	}
	if failed := Failed(results); len(failed) != 0 {
		t.Fatalf("expected every check to pass, got %+v", failed)
	}
}

func TestRunAllFlagsUnreachableService(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cfg := testsupport.NewConfig(t, testsupport.WithServiceURL(srv.URL))
	cfg.LLM.APIKey = ""
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	clients, err := pipeline.ClientsFromConfig(cfg)
	if err != nil {
		t.Fatalf("ClientsFromConfig: %v", err)
	}

	failed := Failed(RunAll(context.Background(), cfg, nil, clients))
	if len(failed) != 4 {
		t.Fatalf("expected 3 services plus the LLM to fail, got %+v", failed)
	}
}
