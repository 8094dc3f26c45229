package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// MediaBytes returns size bytes of deterministic filler. Tests compare blob
// contents, so the pattern varies by offset.
func MediaBytes(size int) []byte {
	if size <= 0 {
		size = 1
	}
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return data
}

// WriteFile creates path, and any missing parents, holding size bytes of
// MediaBytes filler.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, MediaBytes(int(size)), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
