package storage

import (
	"context"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

// S3Backend hands out presigned PUT URLs against AWS S3.
type S3Backend struct {
	client   *s3.Client
	presign  *s3.PresignClient
	bucket   string
	prefix   string
	logger   *zap.Logger
}

// NewS3Backend creates an S3 upload backend using the default AWS
// credential chain.
func NewS3Backend(ctx context.Context, bucket, prefix, region string, logger *zap.Logger) (*S3Backend, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg)

	return &S3Backend{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  bucket,
		prefix:  prefix,
		logger:  logger,
	}, nil
}

// RequestUploadTarget returns a presigned PUT URL for the destination path.
func (b *S3Backend) RequestUploadTarget(ctx context.Context, destPath string, size int64) (UploadTarget, error) {
	req, err := b.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(b.bucket),
		Key:           aws.String(b.fullKey(destPath)),
		ContentLength: aws.Int64(size),
	}, s3.WithPresignExpires(presignExpiry))
	if err != nil {
		return UploadTarget{}, fmt.Errorf("failed to presign put for %s: %w", destPath, err)
	}

	return UploadTarget{
		URL:    req.URL,
		Method: req.Method,
	}, nil
}

// Delete removes the object at the destination path.
func (b *S3Backend) Delete(ctx context.Context, destPath string) error {
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.fullKey(destPath)),
	})
	if err != nil {
		return fmt.Errorf("failed to delete %s from S3: %w", destPath, err)
	}
	return nil
}

func (b *S3Backend) fullKey(key string) string {
	if b.prefix != "" {
		return path.Join(b.prefix, key)
	}
	return key
}
