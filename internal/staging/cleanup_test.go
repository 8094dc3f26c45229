package staging

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mediarepo/internal/logging"
)

func TestCleanStaleInvalidPaths(t *testing.T) {
	for _, dir := range []string{"", "   ", "/nonexistent/path/12345"} {
		result := CleanStale(context.Background(), dir, time.Hour, logging.NewNop())
		if len(result.Removed) != 0 || len(result.Errors) != 0 {
			t.Errorf("expected empty result for path %q", dir)
		}
	}
}

func TestCleanStaleRemovesOldDirectories(t *testing.T) {
	tmpDir := t.TempDir()

	oldDir := filepath.Join(tmpDir, "ffmpeg-old")
	if err := os.Mkdir(oldDir, 0o755); err != nil {
		t.Fatalf("create old dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(oldDir, "source.mp4"), []byte("data"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	oldTime := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(oldDir, oldTime, oldTime); err != nil {
		t.Fatalf("set old time: %v", err)
	}
	recentDir := filepath.Join(tmpDir, "ffmpeg-recent")
	if err := os.Mkdir(recentDir, 0o755); err != nil {
		t.Fatalf("create recent dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(tmpDir, "stray.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write stray file: %v", err)
	}
	if err := os.Chtimes(filepath.Join(tmpDir, "stray.txt"), oldTime, oldTime); err != nil {
		t.Fatalf("set stray time: %v", err)
	}

	result := CleanStale(context.Background(), tmpDir, time.Hour, nil)
	if len(result.Removed) != 1 || result.Removed[0] != oldDir {
		t.Fatalf("expected only %s removed, got %v", oldDir, result.Removed)
	}
	if _, err := os.Stat(oldDir); !os.IsNotExist(err) {
		t.Fatal("old directory should have been removed")
	}
	if _, err := os.Stat(recentDir); err != nil {
		t.Fatal("recent directory should still exist")
	}
	if _, err := os.Stat(filepath.Join(tmpDir, "stray.txt")); err != nil {
		t.Fatal("plain files are left alone")
	}
}

func TestCleanStaleStopsOnCancelledContext(t *testing.T) {
	tmpDir := t.TempDir()
	oldDir := filepath.Join(tmpDir, "ffmpeg-old")
	if err := os.Mkdir(oldDir, 0o755); err != nil {
		t.Fatalf("create dir: %v", err)
	}
	oldTime := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(oldDir, oldTime, oldTime); err != nil {
		t.Fatalf("set old time: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result := CleanStale(ctx, tmpDir, time.Hour, logging.NewNop())
	if len(result.Removed) != 0 {
		t.Fatalf("expected nothing removed, got %v", result.Removed)
	}
}

func TestNewWorkDirAndListDirectories(t *testing.T) {
	base := filepath.Join(t.TempDir(), "staging")
	work, err := NewWorkDir(base, "ffmpeg")
	if err != nil {
		t.Fatalf("NewWorkDir: %v", err)
	}
	if !strings.HasPrefix(filepath.Base(work), "ffmpeg-") || filepath.Dir(work) != base {
		t.Fatalf("unexpected work dir %s", work)
	}
	if err := os.WriteFile(filepath.Join(work, "frame.jpg"), make([]byte, 10), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	dirs, err := ListDirectories(base)
	if err != nil {
		t.Fatalf("ListDirectories: %v", err)
	}
	if len(dirs) != 1 || dirs[0].Path != work || dirs[0].Size != 10 {
		t.Fatalf("unexpected listing %+v", dirs)
	}
}
