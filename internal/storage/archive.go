package storage

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/mirae/stylegen/internal/logger"
)

// Archiver keeps a durable copy of every reference image a batch
// uploads, keyed by session and job. The archive is advisory: callers
// treat failures as a skipped archive, never as a job failure.
type Archiver struct {
	store ObjectStore
}

// NewArchiver creates an archiver on top of an object store.
func NewArchiver(store ObjectStore) *Archiver {
	return &Archiver{store: store}
}

var archiveDataURLPrefix = regexp.MustCompile(`^data:image/[a-z]+;base64,`)

// ArchiveReference stores the job's reference image and returns its
// public URL.
func (a *Archiver) ArchiveReference(ctx context.Context, sessionID, jobID, imageBase64, fileName string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(archiveDataURLPrefix.ReplaceAllString(imageBase64, ""))
	if err != nil {
		return "", fmt.Errorf("failed to decode reference image: %w", err)
	}

	contentType := http.DetectContentType(data)
	key := fmt.Sprintf("references/%s/%s%s", sessionID, jobID, extensionFor(contentType, fileName))

	if err := a.store.Put(ctx, key, data, contentType); err != nil {
		return "", fmt.Errorf("failed to archive reference image: %w", err)
	}

	url := a.store.URL(key)
	logger.CtxDebug(ctx, "Reference image archived: %s (%dKB)", key, len(data)/1024)
	return url, nil
}

// extensionFor picks the object key extension from the sniffed content
// type, falling back to the original file name.
func extensionFor(contentType, fileName string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	}
	if idx := strings.LastIndex(fileName, "."); idx != -1 {
		return strings.ToLower(fileName[idx:])
	}
	return ".jpg"
}
