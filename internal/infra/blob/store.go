// Package blob stores question images on local disk and returns URLs the
// HTTP layer serves under /media/. Upload failures never touch game state:
// the admin embeds the returned URL in a later question push.
package blob

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path"
	"path/filepath"

	"github.com/google/uuid"
)

// ErrEmptyContent is returned when an uploaded file has no bytes.
var ErrEmptyContent = errors.New("uploaded file was empty")

type Store struct {
	dir     string
	baseURL string
}

// NewStore writes files under dir and builds URLs as baseURL + /media/...
func NewStore(dir, baseURL string) *Store {
	return &Store{dir: dir, baseURL: baseURL}
}

// Put stores content and returns its public URL. Blob names carry a random
// suffix so re-uploads never clobber an image already referenced by a
// published question.
func (s *Store) Put(_ context.Context, sessionID, questionID, filename string, content []byte, contentType string) (string, error) {
	if len(content) == 0 {
		return "", ErrEmptyContent
	}

	ext := filepath.Ext(filename)
	if ext == "" && contentType != "" {
		if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
			ext = exts[0]
		}
	}

	name := fmt.Sprintf("%s-%s%s", questionID, uuid.NewString(), ext)
	sessionDir := filepath.Join(s.dir, sessionID)
	if err := os.MkdirAll(sessionDir, 0o755); err != nil {
		return "", fmt.Errorf("create media dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(sessionDir, name), content, 0o644); err != nil {
		return "", fmt.Errorf("write media file: %w", err)
	}

	return s.baseURL + path.Join("/media", sessionID, name), nil
}

// Dir exposes the root for the HTTP file server.
func (s *Store) Dir() string {
	return s.dir
}
