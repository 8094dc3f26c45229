package blobstore

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// ImportFile reads a local file into the store and returns its reference and
// the detected content type.
func ImportFile(ctx context.Context, blobs Store, ownerID, kind, filePath string) (string, Object, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", Object{}, fmt.Errorf("read %s: %w", filePath, err)
	}
	obj := Object{
		OwnerID:     ownerID,
		Kind:        kind,
		Name:        filepath.Base(filePath),
		ContentType: DetectContentType(filePath, data),
		Data:        data,
	}
	ref, err := blobs.Put(ctx, obj)
	if err != nil {
		return "", Object{}, err
	}
	obj.ID, _ = ParseRef(ref)
	return ref, obj, nil
}

var mediaTypes = map[string]string{
	".mp4":  "video/mp4",
	".m4v":  "video/mp4",
	".mov":  "video/quicktime",
	".mkv":  "video/x-matroska",
	".webm": "video/webm",
	".avi":  "video/x-msvideo",
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".flac": "audio/flac",
	".m4a":  "audio/mp4",
	".aac":  "audio/aac",
	".ogg":  "audio/ogg",
	".opus": "audio/opus",
	".heic": "image/heic",
}

// DetectContentType prefers the extension and falls back to sniffing.
func DetectContentType(name string, data []byte) string {
	ext := strings.ToLower(filepath.Ext(name))
	if known, ok := mediaTypes[ext]; ok {
		return known
	}
	if byExt := mime.TypeByExtension(ext); byExt != "" {
		return stripParams(byExt)
	}
	if len(data) == 0 {
		return "application/octet-stream"
	}
	return stripParams(http.DetectContentType(data))
}

func stripParams(contentType string) string {
	if semi := strings.IndexByte(contentType, ';'); semi >= 0 {
		return strings.TrimSpace(contentType[:semi])
	}
	return contentType
}
