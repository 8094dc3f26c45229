package logging_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"mediarepo/internal/config"
	"mediarepo/internal/logging"
	"mediarepo/internal/services"
)

func TestNewFromConfigWritesLogFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()

	logger, err := logging.NewFromConfig(&cfg, nil)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("hello file")

	content, err := os.ReadFile(filepath.Join(cfg.Paths.LogDir, "mediarepo.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), "hello file") {
		t.Fatalf("expected message in log file, got %q", content)
	}
}

func TestFileOutputIsJSONWithoutCallerForInfo(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "info.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("message without caller", logging.String("k", "v"))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var record map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(content))), &record); err != nil {
		t.Fatalf("expected json log line, got %q: %v", content, err)
	}
	if record["msg"] != "message without caller" || record["k"] != "v" {
		t.Fatalf("unexpected record %v", record)
	}
	if _, ok := record["source"]; ok {
		t.Fatalf("expected no caller information in info logs, got %v", record)
	}
}

func TestDebugLevelIncludesCaller(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "debug.log")
	logger, err := logging.New(logging.Options{Level: "debug", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("message with caller")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), ".go:") {
		t.Fatalf("expected caller information in debug logs, got %q", content)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestHubReceivesRecords(t *testing.T) {
	hub := logging.NewStreamHub(16)
	logger, err := logging.New(logging.Options{Level: "info", OutputPaths: []string{filepath.Join(t.TempDir(), "x.log")}, Hub: hub})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Debug("filtered out")
	logger.Info("kept", logging.String(logging.FieldJobID, "job-1"))

	events, next := hub.Tail(10)
	if len(events) != 1 || next != 1 {
		t.Fatalf("expected one event, got %d (next=%d)", len(events), next)
	}
	if events[0].JobID != "job-1" || events[0].Message != "kept" {
		t.Fatalf("unexpected event %+v", events[0])
	}
}

func TestWithContextAddsFields(t *testing.T) {
	hub := logging.NewStreamHub(16)
	base, err := logging.New(logging.Options{OutputPaths: []string{filepath.Join(t.TempDir(), "ctx.log")}, Hub: hub})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := services.WithJobID(context.Background(), "job-9")
	ctx = services.WithAssetID(ctx, "asset-3")
	ctx = services.WithStage(ctx, "frames")
	ctx = services.WithRequestID(ctx, "req-1")

	logging.WithContext(ctx, base).Info("stage event")

	events, _ := hub.Tail(1)
	if len(events) != 1 {
		t.Fatalf("expected one event, got %d", len(events))
	}
	evt := events[0]
	if evt.JobID != "job-9" || evt.AssetID != "asset-3" || evt.Stage != "frames" || evt.CorrelationID != "req-1" {
		t.Fatalf("context fields missing: %+v", evt)
	}
}

func TestNopLoggerDiscards(t *testing.T) {
	logger := logging.NewNop()
	logger.Error("ignored")
	if logger.Enabled(context.Background(), 8) {
		t.Fatal("expected nop logger to be disabled")
	}
}
