package storage

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// presignExpiry bounds how long a handed-out upload URL stays valid.
const presignExpiry = 15 * time.Minute

// MinIOBackend hands out presigned PUT URLs against a MinIO (or any
// S3-compatible) endpoint.
type MinIOBackend struct {
	client *minio.Client
	bucket string
	logger *zap.Logger
}

// NewMinIOBackend creates a MinIO upload backend.
func NewMinIOBackend(endpoint, accessKey, secretKey, bucket string, useSSL bool, logger *zap.Logger) (*MinIOBackend, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &MinIOBackend{
		client: client,
		bucket: bucket,
		logger: logger,
	}, nil
}

// RequestUploadTarget returns a presigned PUT URL for the destination path.
func (b *MinIOBackend) RequestUploadTarget(ctx context.Context, destPath string, size int64) (UploadTarget, error) {
	url, err := b.client.PresignedPutObject(ctx, b.bucket, destPath, presignExpiry)
	if err != nil {
		return UploadTarget{}, fmt.Errorf("failed to presign put for %s: %w", destPath, err)
	}

	return UploadTarget{
		URL:    url.String(),
		Method: http.MethodPut,
	}, nil
}

// Delete removes the object at the destination path.
func (b *MinIOBackend) Delete(ctx context.Context, destPath string) error {
	if err := b.client.RemoveObject(ctx, b.bucket, destPath, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to remove %s: %w", destPath, err)
	}
	return nil
}
