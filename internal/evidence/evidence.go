// Package evidence persists alert evidence clips to durable storage, keyed
// by tier, camera token, class name and timestamp.
package evidence

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/karnali/wildguard-go/internal/errors"
)

// Key identifies one evidence clip.
type Key struct {
	Tier        string
	CameraToken string
	ClassName   string
	Timestamp   time.Time
}

// Filename renders the storage name for the clip.
func (k Key) Filename() string {
	return fmt.Sprintf("alert_%s_%s_%s_%s.mp4",
		k.Tier,
		sanitize(k.CameraToken),
		sanitize(k.ClassName),
		k.Timestamp.Format("20060102_150405"))
}

// sanitize strips path separators and spaces from key parts.
func sanitize(part string) string {
	replacer := strings.NewReplacer("/", "-", "\\", "-", " ", "_", "..", "")
	return replacer.Replace(part)
}

// Store persists evidence clips. Save returns the stored location: a file
// path for the filesystem store, an object path for S3.
type Store interface {
	Save(ctx context.Context, key Key, payload []byte) (string, error)
}

// FilesystemStore writes evidence clips under a local directory.
type FilesystemStore struct {
	dir string
}

// NewFilesystemStore creates the directory if needed and returns the store.
func NewFilesystemStore(dir string) (*FilesystemStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.New(err).
			Component("evidence").
			Category(errors.CategoryFileIO).
			Context("dir", dir).
			Build()
	}
	return &FilesystemStore{dir: dir}, nil
}

// Save writes the clip to disk and returns its path.
func (s *FilesystemStore) Save(ctx context.Context, key Key, payload []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	path := filepath.Join(s.dir, key.Filename())
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return "", errors.New(err).
			Component("evidence").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	return path, nil
}
