package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shoalmedia/shoal/pkg/models"
)

// Mode describes where locally written artifacts end up.
type Mode string

const (
	// ModeDirect means files written under the local root are already in
	// their final serving location.
	ModeDirect Mode = "direct"
	// ModeIndirect means produced files must additionally be pushed to a
	// remote object store via the upload backend.
	ModeIndirect Mode = "indirect"
)

// UploadTarget carries the parameters for one remote upload.
type UploadTarget struct {
	URL    string
	Method string
}

// UploadBackend hands out upload parameters for a destination path and
// deletes remote objects. Only consulted in indirect mode.
type UploadBackend interface {
	RequestUploadTarget(ctx context.Context, destPath string, size int64) (UploadTarget, error)
	Delete(ctx context.Context, destPath string) error
}

// ArtifactStore resolves logical storage paths to filesystem paths,
// persists produced files locally, and optionally pushes them to a remote
// object store.
type ArtifactStore struct {
	mode     Mode
	basePath string
	backend  UploadBackend
	client   *http.Client
	logger   *zap.Logger
}

// NewArtifactStore creates an artifact store rooted at basePath. backend
// may be nil in direct mode.
func NewArtifactStore(mode Mode, basePath string, backend UploadBackend, logger *zap.Logger) (*ArtifactStore, error) {
	if mode == ModeIndirect && backend == nil {
		return nil, fmt.Errorf("indirect storage mode requires an upload backend")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create base path: %w", err)
	}

	return &ArtifactStore{
		mode:     mode,
		basePath: basePath,
		backend:  backend,
		client:   &http.Client{Timeout: 10 * time.Minute},
		logger:   logger,
	}, nil
}

// Mode reports the storage capability flag callers branch on.
func (s *ArtifactStore) Mode() Mode {
	return s.mode
}

// ResolvePath maps a logical path to an absolute filesystem path under the
// store root.
func (s *ArtifactStore) ResolvePath(logical string) string {
	return filepath.Join(s.basePath, filepath.FromSlash(logical))
}

// SaveLocal writes a stream to a newly generated logical path. The
// template's single "{0}" slot is filled with a fresh unique component.
// The content hash is computed while writing, in the same pass. A caller
// that knows the expected byte count can pass it to reject truncated or
// corrupted streams; pass a negative size to skip the check.
func (s *ArtifactStore) SaveLocal(logicalTemplate string, r io.Reader, expectedSize int64) (*models.StoredFile, error) {
	logical := strings.ReplaceAll(logicalTemplate, "{0}", uuid.New().String())
	path := s.ResolvePath(logical)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	hasher := sha256.New()
	written, err := io.Copy(io.MultiWriter(file, hasher), r)
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("failed to write file: %w", err)
	}

	if expectedSize >= 0 && written != expectedSize {
		os.Remove(path)
		return nil, fmt.Errorf("size mismatch writing %s: got %d bytes, expected %d", logical, written, expectedSize)
	}

	return &models.StoredFile{
		Path:        logical,
		Size:        written,
		ContentHash: hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

// RecordLocal builds a stored-file record for a file that already exists
// under the store root, hashing it in one read.
func (s *ArtifactStore) RecordLocal(logical string) (*models.StoredFile, error) {
	path := s.ResolvePath(logical)

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	hasher := sha256.New()
	size, err := io.Copy(hasher, file)
	if err != nil {
		return nil, fmt.Errorf("failed to hash file: %w", err)
	}

	return &models.StoredFile{
		Path:        logical,
		Size:        size,
		ContentHash: hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

// Upload pushes a locally written file to its remote destination. It asks
// the backend for upload parameters, then transmits the bytes in one PUT.
func (s *ArtifactStore) Upload(ctx context.Context, localPath, destLogical string, size int64) error {
	if s.mode != ModeIndirect {
		return fmt.Errorf("upload not supported in %s storage mode", s.mode)
	}

	target, err := s.backend.RequestUploadTarget(ctx, destLogical, size)
	if err != nil {
		return fmt.Errorf("failed to request upload target: %w", err)
	}

	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open local file: %w", err)
	}
	defer file.Close()

	req, err := http.NewRequestWithContext(ctx, target.Method, target.URL, file)
	if err != nil {
		return fmt.Errorf("failed to build upload request: %w", err)
	}
	req.ContentLength = size

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", destLogical, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("upload of %s rejected with status %d", destLogical, resp.StatusCode)
	}

	s.logger.Debug("uploaded artifact",
		zap.String("dest", destLogical),
		zap.Int64("size", size))
	return nil
}

// Delete removes the remote copy of a logical path, best effort. Deleting
// the local file remains the caller's responsibility.
func (s *ArtifactStore) Delete(ctx context.Context, logical string) error {
	if s.mode != ModeIndirect {
		return nil
	}
	if err := s.backend.Delete(ctx, logical); err != nil {
		s.logger.Warn("remote delete failed",
			zap.String("path", logical),
			zap.Error(err))
		return err
	}
	return nil
}
